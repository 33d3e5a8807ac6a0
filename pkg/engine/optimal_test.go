package engine

import (
	"context"
	"math/big"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourusername/hogengine/internal/policy"
	"github.com/yourusername/hogengine/internal/rules"
)

// smallGoal keeps exhaustive exact solves fast.
const smallGoal = 12

func newTestEngine(t testing.TB, goal int) *Engine {
	t.Helper()
	e, err := NewEngine(EngineOptions{Goal: goal, Logger: zap.NewNop()})
	require.NoError(t, err)
	return e
}

var (
	solvedOnce   sync.Once
	solvedEngine *Engine
	solvedErr    error
)

// sharedSolvedEngine returns an engine with both smallGoal tables filled.
// Tables are write-once, so tests may share it.
func sharedSolvedEngine(t testing.TB) *Engine {
	t.Helper()
	solvedOnce.Do(func() {
		e, err := NewEngine(EngineOptions{Goal: smallGoal, Logger: zap.NewNop()})
		if err != nil {
			solvedErr = err
			return
		}
		if err := e.Optimal().SolveAll(context.Background(), runtime.GOMAXPROCS(0), nil); err != nil {
			solvedErr = err
			return
		}
		solvedErr = e.Greedy().SolveAll(context.Background())
		solvedEngine = e
	})
	require.NoError(t, solvedErr)
	return solvedEngine
}

func TestSolveFinishingMove(t *testing.T) {
	e := newTestEngine(t, rules.Goal)
	for _, opp := range []int{0, 50, 99} {
		entry, err := e.Optimal().Solve(policy.State{Score: 99, OpponentScore: opp})
		require.NoError(t, err)
		// Every move wins from 99, so the tie goes to the lowest move.
		assert.Equal(t, 0, entry.Move, "opponent %d", opp)
		assert.Equal(t, 0, entry.WinProb.Cmp(big.NewRat(1, 1)), "opponent %d", opp)
	}
}

func TestSolveSmallGoalByHand(t *testing.T) {
	// Goal 5 from (0,0): zero dice scores 1 -> 4 and the opponent's tail
	// then wins outright. Two dice win unless they bust: 25/36.
	e := newTestEngine(t, 5)

	entry, err := e.Optimal().Solve(policy.State{Score: 0, OpponentScore: 0})
	require.NoError(t, err)
	assert.Equal(t, 2, entry.Move)
	assert.Equal(t, 0, entry.WinProb.Cmp(big.NewRat(25, 36)), "win prob = %s", entry.WinProb)

	entry, err = e.Optimal().Solve(policy.State{Score: 0, OpponentScore: 4})
	require.NoError(t, err)
	assert.Equal(t, 0, entry.Move, "tail(4) = 9 wins at once")
	assert.Equal(t, 0, entry.WinProb.Cmp(big.NewRat(1, 1)))

	probs, err := e.Optimal().MoveWinProbs(policy.State{Score: 0, OpponentScore: 0})
	require.NoError(t, err)
	assert.Equal(t, 0, probs[0].Sign())
	assert.Equal(t, 0, probs[1].Cmp(big.NewRat(1, 2)))
	assert.Equal(t, 0, probs[3].Cmp(big.NewRat(125, 216)))
}

func TestSolveOutOfRange(t *testing.T) {
	e := newTestEngine(t, rules.Goal)
	for _, s := range []policy.State{{Score: 100, OpponentScore: 0}, {Score: 0, OpponentScore: 100}, {Score: -1, OpponentScore: 0}, {Score: 0, OpponentScore: -5}} {
		_, err := e.Optimal().Solve(s)
		assert.ErrorIs(t, err, policy.ErrStateOutOfRange, "state %s", s)

		_, err = e.Optimal().MoveWinProbs(s)
		assert.ErrorIs(t, err, policy.ErrStateOutOfRange, "state %s", s)
	}
	assert.Zero(t, e.Optimal().Stats().Lookups, "rejected states must not touch the table")
}

func TestSolveIsArgmaxOfMoves(t *testing.T) {
	e := sharedSolvedEngine(t)
	one := big.NewRat(1, 1)
	for score := 0; score < smallGoal; score++ {
		for opp := 0; opp < smallGoal; opp++ {
			s := policy.State{Score: score, OpponentScore: opp}
			entry, err := e.Optimal().Solve(s)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, entry.WinProb.Sign(), 0, "state %s", s)
			assert.LessOrEqual(t, entry.WinProb.Cmp(one), 0, "state %s", s)

			probs, err := e.Optimal().MoveWinProbs(s)
			require.NoError(t, err)
			for m, p := range probs {
				cmp := p.Cmp(entry.WinProb)
				assert.LessOrEqual(t, cmp, 0, "state %s: move %d beats chosen move", s, m)
				if m < entry.Move {
					assert.Negative(t, cmp, "state %s: lower move %d ties the chosen move", s, m)
				}
			}
			assert.Equal(t, 0, probs[entry.Move].Cmp(entry.WinProb), "state %s", s)
		}
	}
}

func TestSolveAllSequentialMatchesParallel(t *testing.T) {
	seq := newTestEngine(t, smallGoal)
	require.NoError(t, seq.Optimal().SolveAll(context.Background(), 1, nil))
	require.True(t, seq.Optimal().Table().Complete())

	par := sharedSolvedEngine(t)
	for score := 0; score < smallGoal; score++ {
		for opp := 0; opp < smallGoal; opp++ {
			s := policy.State{Score: score, OpponentScore: opp}
			a, ok := seq.Optimal().Table().Get(s)
			require.True(t, ok)
			b, ok := par.Optimal().Table().Get(s)
			require.True(t, ok)
			assert.Equal(t, a.Move, b.Move, "state %s", s)
			assert.Equal(t, 0, a.WinProb.Cmp(b.WinProb), "state %s", s)
		}
	}
}

func TestSolveAllProgress(t *testing.T) {
	e := newTestEngine(t, 6)
	var calls, maxDone atomic.Int64
	err := e.Optimal().SolveAll(context.Background(), 4, func(done, total int) {
		calls.Add(1)
		assert.Equal(t, 36, total)
		for {
			cur := maxDone.Load()
			if int64(done) <= cur || maxDone.CompareAndSwap(cur, int64(done)) {
				break
			}
		}
	})
	require.NoError(t, err)
	assert.Equal(t, int64(36), calls.Load())
	assert.Equal(t, int64(36), maxDone.Load())
}

func TestSolveAllCanceled(t *testing.T) {
	e := newTestEngine(t, smallGoal)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := e.Optimal().SolveAll(ctx, 4, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, e.Optimal().Table().Len())
}

func TestSolveConcurrentCallers(t *testing.T) {
	e := newTestEngine(t, smallGoal)
	start := policy.State{Score: 0, OpponentScore: 0}

	var wg sync.WaitGroup
	results := make([]*policy.OptimalEntry, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entry, err := e.Optimal().Solve(start)
			if err != nil {
				t.Errorf("Solve: %v", err)
				return
			}
			results[i] = entry
		}(i)
	}
	wg.Wait()

	for _, r := range results[1:] {
		assert.Same(t, results[0], r)
	}
	stats := e.Optimal().Stats()
	assert.Equal(t, uint64(e.Optimal().Table().Len()), stats.Solved)
}

func TestSolveStatsHits(t *testing.T) {
	e := newTestEngine(t, 6)
	require.NoError(t, e.Optimal().SolveAll(context.Background(), 1, nil))
	before := e.Optimal().Stats()

	_, err := e.Optimal().Solve(policy.State{Score: 3, OpponentScore: 2})
	require.NoError(t, err)
	after := e.Optimal().Stats()

	assert.Equal(t, before.Lookups+1, after.Lookups)
	assert.Equal(t, before.Hits+1, after.Hits)
	assert.Equal(t, before.Solved, after.Solved)
	assert.Greater(t, after.HitRate(), 0.0)
}

func TestSolveRecursionLimit(t *testing.T) {
	e := newTestEngine(t, smallGoal)
	e.Optimal().maxDepth = 0

	_, err := e.Optimal().Solve(policy.State{Score: 0, OpponentScore: 0})
	assert.ErrorIs(t, err, ErrRecursionLimit)
	_, ok := e.Optimal().Table().Get(policy.State{Score: 0, OpponentScore: 0})
	assert.False(t, ok, "failed states must not be stored")
}

func TestSolveFullGoal(t *testing.T) {
	if os.Getenv("HOG_FULL_SOLVE") == "" {
		t.Skip("set HOG_FULL_SOLVE=1 to solve the full goal exactly")
	}
	e := newTestEngine(t, rules.Goal)
	require.NoError(t, e.Optimal().SolveAll(context.Background(), runtime.GOMAXPROCS(0), nil))
	assert.True(t, e.Optimal().Table().Complete())

	one := big.NewRat(1, 1)
	for score := 0; score < rules.Goal; score++ {
		for opp := 0; opp < rules.Goal; opp++ {
			entry, _ := e.Optimal().Table().Get(policy.State{Score: score, OpponentScore: opp})
			assert.GreaterOrEqual(t, entry.WinProb.Sign(), 0)
			assert.LessOrEqual(t, entry.WinProb.Cmp(one), 0)
		}
	}
	t.Logf("(0,0): move %d, win prob %s", mustSolve(t, e, 0, 0).Move, mustSolve(t, e, 0, 0).WinProb.FloatString(5))
}

func mustSolve(t testing.TB, e *Engine, score, opp int) *policy.OptimalEntry {
	t.Helper()
	entry, err := e.Optimal().Solve(policy.State{Score: score, OpponentScore: opp})
	require.NoError(t, err)
	return entry
}

// Win probability is not monotone in the mover's own score. A bust from
// 15 lands on 16 and is bumped to 25, while a bust from 16 only reaches 17.
func TestWinProbNotMonotoneInScore(t *testing.T) {
	e := newTestEngine(t, 40)
	for _, score := range []int{15, 24} {
		lower := mustSolve(t, e, score, 0)
		higher := mustSolve(t, e, score+1, 0)
		assert.Equal(t, 1, lower.WinProb.Cmp(higher.WinProb),
			"W(%d,0)=%s should exceed W(%d,0)=%s", score, lower.WinProb.FloatString(6), score+1, higher.WinProb.FloatString(6))
	}
}

// Any state whose tail move reaches the goal is a certain win, and the
// tail move is chosen because it is the lowest winning move.
func TestWinProbCertainWhenTailFinishes(t *testing.T) {
	e := sharedSolvedEngine(t)
	one := big.NewRat(1, 1)
	for score := 0; score < smallGoal; score++ {
		for opp := 0; opp < smallGoal; opp++ {
			if rules.Update(score, rules.TailPoints(opp)) < smallGoal {
				continue
			}
			entry, ok := e.Optimal().Table().Get(policy.State{Score: score, OpponentScore: opp})
			require.True(t, ok)
			assert.Equal(t, 0, entry.Move, "state (%d,%d)", score, opp)
			assert.Equal(t, 0, entry.WinProb.Cmp(one), "state (%d,%d)", score, opp)
		}
	}
}
