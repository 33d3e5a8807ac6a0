package engine

import (
	"fmt"

	"github.com/yourusername/hogengine/internal/policy"
	"github.com/yourusername/hogengine/internal/rules"
)

// Strategy returns the number of dice to roll given the mover's score and
// the opponent's score.
type Strategy func(score, opponentScore int) int

// Defaults for the threshold strategies.
const (
	DefaultThreshold = 12
	DefaultNumRolls  = 6
)

// AlwaysRoll returns a strategy that always rolls n dice.
// It panics if n is not a legal dice count.
func AlwaysRoll(n int) Strategy {
	if !policy.ValidMove(n) {
		panic(fmt.Sprintf("engine: AlwaysRoll(%d): dice count out of range", n))
	}
	return func(int, int) int { return n }
}

// CatchUp rolls 5 dice, or 6 when behind.
func CatchUp(score, opponentScore int) int {
	if score < opponentScore {
		return 6
	}
	return 5
}

// TailStrategy rolls zero dice when the tail rule is worth at least
// threshold points, and numRolls dice otherwise.
func TailStrategy(threshold, numRolls int) Strategy {
	return func(_, opponentScore int) int {
		if rules.TailPoints(opponentScore) >= threshold {
			return 0
		}
		return numRolls
	}
}

// SquareStrategy rolls zero dice when doing so gains at least threshold
// points once the square rule is applied, and numRolls dice otherwise.
func SquareStrategy(threshold, numRolls int) Strategy {
	return func(score, opponentScore int) int {
		if rules.Update(score, rules.TailPoints(opponentScore))-score >= threshold {
			return 0
		}
		return numRolls
	}
}

// IsAlwaysRoll reports whether strategy returns the same dice count for
// every state below goal.
func IsAlwaysRoll(strategy Strategy, goal int) bool {
	first := strategy(0, 0)
	for score := 0; score < goal; score++ {
		for opp := 0; opp < goal; opp++ {
			if strategy(score, opp) != first {
				return false
			}
		}
	}
	return true
}

// OptimalStrategy adapts an optimal solver to a Strategy.
// The strategy panics on states the solver rejects.
func OptimalStrategy(o *OptimalSolver) Strategy {
	return func(score, opponentScore int) int {
		e, err := o.Solve(policy.State{Score: score, OpponentScore: opponentScore})
		if err != nil {
			panic(fmt.Sprintf("engine: optimal strategy: %v", err))
		}
		return e.Move
	}
}

// GreedyStrategy adapts a greedy solver to a Strategy.
// The strategy panics on states the solver rejects.
func GreedyStrategy(g *GreedySolver) Strategy {
	return func(score, opponentScore int) int {
		m, err := g.Solve(policy.State{Score: score, OpponentScore: opponentScore})
		if err != nil {
			panic(fmt.Sprintf("engine: greedy strategy: %v", err))
		}
		return m
	}
}

// HybridStrategy adapts a hybrid policy to a Strategy.
// The strategy panics on states the policy rejects.
func HybridStrategy(h *HybridPolicy) Strategy {
	return func(score, opponentScore int) int {
		m, err := h.Decide(score, opponentScore)
		if err != nil {
			panic(fmt.Sprintf("engine: hybrid strategy: %v", err))
		}
		return m
	}
}
