package engine

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/yourusername/hogengine/internal/dice"
	"github.com/yourusername/hogengine/internal/policy"
	"github.com/yourusername/hogengine/internal/policystore"
	"github.com/yourusername/hogengine/internal/rules"
)

func TestNewEngineDefaults(t *testing.T) {
	e, err := NewEngine(EngineOptions{})
	require.NoError(t, err)
	assert.Equal(t, rules.Goal, e.Goal())
	assert.True(t, e.Exact(), "the library never prunes unless asked")

	_, err = NewEngine(EngineOptions{Goal: -3})
	assert.Error(t, err)
}

func TestNewEngineWarnsWhenPruning(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	e, err := NewEngine(EngineOptions{ProbCutoff: big.NewRat(1, 1000), Logger: zap.New(core)})
	require.NoError(t, err)
	assert.False(t, e.Exact())

	warnings := logs.FilterLevelExact(zapcore.WarnLevel).All()
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0].Message, "pruning")
}

func TestWarmTablesSkipRecomputation(t *testing.T) {
	solved := sharedSolvedEngine(t)
	dir := t.TempDir()
	optPath := filepath.Join(dir, "optimal.json")
	greedyPath := filepath.Join(dir, "greedy.json")
	require.NoError(t, policystore.SaveOptimalFile(optPath, solved.Optimal().Table()))
	require.NoError(t, policystore.SaveGreedyFile(greedyPath, solved.Greedy().Table()))

	warm, err := NewEngine(EngineOptions{
		Goal:             smallGoal,
		OptimalTableFile: optPath,
		GreedyTableFile:  greedyPath,
		Logger:           zaptest.NewLogger(t),
	})
	require.NoError(t, err)

	for score := 0; score < smallGoal; score++ {
		for opp := 0; opp < smallGoal; opp++ {
			s := policy.State{Score: score, OpponentScore: opp}
			entry, err := warm.Optimal().Solve(s)
			require.NoError(t, err)
			want, _ := solved.Optimal().Table().Get(s)
			assert.Equal(t, want.Move, entry.Move, "state %s", s)
			assert.Equal(t, 0, entry.WinProb.Cmp(policy.RoundProb(want.WinProb, policystore.Precision)), "state %s", s)

			_, err = warm.Greedy().Solve(s)
			require.NoError(t, err)
		}
	}
	assert.Zero(t, warm.Optimal().Stats().Solved)
	assert.Zero(t, warm.Greedy().Stats().Solved)
}

func TestMissingTableFileSolvesOnDemand(t *testing.T) {
	e, err := NewEngine(EngineOptions{
		Goal:             smallGoal,
		OptimalTableFile: filepath.Join(t.TempDir(), "absent.json"),
		Logger:           zap.NewNop(),
	})
	require.NoError(t, err)
	assert.Zero(t, e.Optimal().Table().Len())
}

func TestCorruptTableFileRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "greedy.json")
	require.NoError(t, os.WriteFile(path, []byte(`[[0,1],[2,99]]`), 0o644))

	_, err := NewEngine(EngineOptions{Goal: 2, GreedyTableFile: path, Logger: zap.NewNop()})
	assert.ErrorIs(t, err, policystore.ErrMalformedTable)
}

func TestEngineDistribution(t *testing.T) {
	e := newTestEngine(t, rules.Goal)
	d, err := e.Distribution(2)
	require.NoError(t, err)
	assert.Equal(t, 0, d.Prob(1).Cmp(big.NewRat(11, 36)))

	_, err = e.Distribution(0)
	assert.ErrorIs(t, err, dice.ErrInvalidDiceCount)
}

func TestParsePolicyKind(t *testing.T) {
	tests := []struct {
		in   string
		want PolicyKind
		ok   bool
	}{
		{"", PolicyOptimal, true},
		{"optimal", PolicyOptimal, true},
		{"greedy", PolicyGreedy, true},
		{"hybrid", PolicyHybrid, true},
		{"random", "", false},
	}
	for _, tt := range tests {
		got, err := ParsePolicyKind(tt.in)
		if tt.ok {
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		} else {
			assert.ErrorIs(t, err, ErrUnknownPolicy)
		}
	}
}

func TestEngineDecide(t *testing.T) {
	e := sharedSolvedEngine(t)
	s := policy.State{Score: 3, OpponentScore: 7}

	entry, _ := e.Optimal().Table().Get(s)
	greedy, _ := e.Greedy().Table().Get(s)

	got, err := e.Decide(PolicyOptimal, s, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, entry.Move, got)

	got, err = e.Decide(PolicyGreedy, s, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, greedy, got)

	// Behind by four with a loss switch of 10: optimal.
	got, err = e.Decide(PolicyHybrid, s, DefaultLossSwitch, DefaultEndSwitch)
	require.NoError(t, err)
	assert.Equal(t, entry.Move, got)

	_, err = e.Decide("coin", s, 0, 0)
	assert.ErrorIs(t, err, ErrUnknownPolicy)

	_, err = e.Decide(PolicyOptimal, policy.State{Score: smallGoal}, 0, 0)
	assert.ErrorIs(t, err, policy.ErrStateOutOfRange)
}

func TestEngineStrategyWinRate(t *testing.T) {
	e := sharedSolvedEngine(t)
	optimal, err := e.Strategy(PolicyOptimal, 0, 0)
	require.NoError(t, err)

	result, err := e.WinRate(optimal, AlwaysRoll(6), RolloutOptions{Trials: 2000, Workers: 4, Seed: 99})
	require.NoError(t, err)
	// Optimal play cannot lose on average to a fixed strategy.
	assert.Greater(t, result.WinRate, 0.45)

	_, err = e.Strategy("coin", 0, 0)
	assert.ErrorIs(t, err, ErrUnknownPolicy)
}

func TestPreloadedTables(t *testing.T) {
	solved := sharedSolvedEngine(t)
	e, err := NewEngine(EngineOptions{
		Goal:             smallGoal,
		OptimalTable:     solved.Optimal().Table(),
		GreedyTable:      solved.Greedy().Table(),
		OptimalTableFile: filepath.Join(t.TempDir(), "ignored.json"),
		Logger:           zap.NewNop(),
	})
	require.NoError(t, err)
	assert.Same(t, solved.Optimal().Table(), e.Optimal().Table())
	assert.Same(t, solved.Greedy().Table(), e.Greedy().Table())

	_, err = NewEngine(EngineOptions{Goal: smallGoal + 1, OptimalTable: solved.Optimal().Table()})
	assert.Error(t, err)
	_, err = NewEngine(EngineOptions{Goal: smallGoal + 1, GreedyTable: solved.Greedy().Table()})
	assert.Error(t, err)
}
