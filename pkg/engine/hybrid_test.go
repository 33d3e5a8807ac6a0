package engine

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/hogengine/internal/policy"
	"github.com/yourusername/hogengine/internal/rules"
)

func TestHybridRouting(t *testing.T) {
	e := newTestEngine(t, rules.Goal)

	tests := []struct {
		name            string
		score, opponent int
		loss, end       int
		optimal         bool
	}{
		{"comfortable lead", 50, 10, DefaultLossSwitch, DefaultEndSwitch, false},
		{"behind", 95, 97, DefaultLossSwitch, DefaultEndSwitch, true},
		{"narrow lead", 25, 20, DefaultLossSwitch, DefaultEndSwitch, true},
		{"end game", 97, 90, 0, DefaultEndSwitch, true},
		{"end boundary", 84, 10, DefaultLossSwitch, DefaultEndSwitch, false},
		{"past end boundary", 85, 10, DefaultLossSwitch, DefaultEndSwitch, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := e.Hybrid(tt.loss, tt.end)
			assert.Equal(t, tt.optimal, h.UsesOptimal(tt.score, tt.opponent))
		})
	}
}

func TestHybridDecide(t *testing.T) {
	e := newTestEngine(t, rules.Goal)
	h := e.Hybrid(DefaultLossSwitch, DefaultEndSwitch)

	// Greedy region: no optimal solving happens.
	m, err := h.Decide(50, 10)
	require.NoError(t, err)
	want, err := e.Greedy().Solve(policy.State{Score: 50, OpponentScore: 10})
	require.NoError(t, err)
	assert.Equal(t, want, m)
	assert.Zero(t, e.Optimal().Table().Len())

	// Behind near the end: optimal.
	m, err = h.Decide(95, 97)
	require.NoError(t, err)
	entry, err := e.Optimal().Solve(policy.State{Score: 95, OpponentScore: 97})
	require.NoError(t, err)
	assert.Equal(t, entry.Move, m)

	// End switch with the loss switch disabled.
	m, err = e.Hybrid(0, DefaultEndSwitch).Decide(97, 90)
	require.NoError(t, err)
	entry, err = e.Optimal().Solve(policy.State{Score: 97, OpponentScore: 90})
	require.NoError(t, err)
	assert.Equal(t, entry.Move, m)
}

func TestHybridOutOfRange(t *testing.T) {
	e := newTestEngine(t, rules.Goal)
	h := e.Hybrid(DefaultLossSwitch, DefaultEndSwitch)

	_, err := h.Decide(100, 50)
	assert.ErrorIs(t, err, policy.ErrStateOutOfRange)
	_, err = h.Decide(50, -1)
	assert.ErrorIs(t, err, policy.ErrStateOutOfRange)
}

func TestHybridMatchesSolversOnSmallGoal(t *testing.T) {
	e := sharedSolvedEngine(t)
	h := e.Hybrid(2, 4)
	for score := 0; score < smallGoal; score++ {
		for opp := 0; opp < smallGoal; opp++ {
			s := policy.State{Score: score, OpponentScore: opp}
			got, err := h.Decide(score, opp)
			require.NoError(t, err)

			var want int
			if score < opp+2 || score > smallGoal-4 {
				entry, _ := e.Optimal().Table().Get(s)
				want = entry.Move
			} else {
				want, _ = e.Greedy().Table().Get(s)
			}
			assert.Equal(t, want, got, "state %s", s)
		}
	}
}

func TestHybridHugeSwitches(t *testing.T) {
	e := newTestEngine(t, rules.Goal)

	h := e.Hybrid(math.MaxInt, 0)
	assert.Equal(t, rules.Goal+1, h.LossSwitch)
	assert.True(t, h.UsesOptimal(50, 10), "a huge loss switch must not wrap around to greedy")

	h = e.Hybrid(0, math.MaxInt)
	assert.Equal(t, rules.Goal+1, h.EndSwitch)
	assert.True(t, h.UsesOptimal(50, 10))
	assert.True(t, h.UsesOptimal(0, 0))

	// An end switch equal to the goal still leaves score 0 to greedy.
	assert.False(t, e.Hybrid(0, rules.Goal).UsesOptimal(0, 0))
	assert.True(t, e.Hybrid(0, rules.Goal).UsesOptimal(1, 0))
}
