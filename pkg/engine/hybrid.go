package engine

import (
	"github.com/yourusername/hogengine/internal/policy"
)

// Default hybrid thresholds.
const (
	DefaultLossSwitch = 10
	DefaultEndSwitch  = 16
)

// HybridPolicy plays the greedy move in comfortable positions and the
// optimal move when behind or near the end of the game.
type HybridPolicy struct {
	Optimal    *OptimalSolver
	Greedy     *GreedySolver
	LossSwitch int // Use optimal while score < opponentScore + LossSwitch
	EndSwitch  int // Use optimal once score > goal - EndSwitch
}

// NewHybridPolicy combines two solvers that share a goal. Switches above
// goal+1 already route every state to the optimal solver, so they are
// capped there.
func NewHybridPolicy(optimal *OptimalSolver, greedy *GreedySolver, lossSwitch, endSwitch int) *HybridPolicy {
	limit := optimal.Goal() + 1
	return &HybridPolicy{
		Optimal:    optimal,
		Greedy:     greedy,
		LossSwitch: min(lossSwitch, limit),
		EndSwitch:  min(endSwitch, limit),
	}
}

// UsesOptimal reports whether Decide defers to the optimal solver at this state.
// The comparisons are arranged so that no sum can overflow.
func (h *HybridPolicy) UsesOptimal(score, opponentScore int) bool {
	goal := h.Optimal.Goal()
	return h.LossSwitch > score-opponentScore || h.EndSwitch > goal-score
}

// Decide returns the number of dice to roll.
func (h *HybridPolicy) Decide(score, opponentScore int) (int, error) {
	state := policy.State{Score: score, OpponentScore: opponentScore}
	if h.UsesOptimal(score, opponentScore) {
		e, err := h.Optimal.Solve(state)
		if err != nil {
			return 0, err
		}
		return e.Move, nil
	}
	return h.Greedy.Solve(state)
}
