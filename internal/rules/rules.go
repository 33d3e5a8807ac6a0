// Package rules implements the scoring rules of Hog.
// Everything here is a pure function of its arguments.
package rules

import (
	"errors"
	"fmt"
	"math"
)

// Game constants
const (
	Goal    = 100 // Default score needed to win
	MaxDice = 10  // Most dice a player may roll in one turn
	Faces   = 6   // Dice are fair and six-sided
)

// ErrInvalidRollCount is returned when a dice count falls outside [0, MaxDice].
var ErrInvalidRollCount = errors.New("invalid roll count")

// TailPoints returns the points scored by rolling zero dice
// when the opponent has opponentScore points.
func TailPoints(opponentScore int) int {
	ones := opponentScore % 10
	tens := (opponentScore / 10) % 10
	diff := tens - ones
	if diff < 0 {
		diff = -diff
	}
	return 2*diff + 1
}

// IsPerfectSquare reports whether n is the square of an integer.
func IsPerfectSquare(n int) bool {
	if n < 0 {
		return false
	}
	r := isqrt(n)
	return r*r == n
}

// ApplySquare bumps a score that lands on a perfect square up to the next
// perfect square. Any other score is returned unchanged.
func ApplySquare(score int) int {
	if !IsPerfectSquare(score) {
		return score
	}
	r := isqrt(score) + 1
	return r * r
}

// isqrt returns floor(sqrt(n)) for n >= 0.
// The float result only seeds the search; the correction loops make it exact.
func isqrt(n int) int {
	r := int(math.Sqrt(float64(n)))
	for r*r > n {
		r--
	}
	for (r+1)*(r+1) <= n {
		r++
	}
	return r
}

// Update returns a player's new score after scoring points on a turn.
func Update(score, points int) int {
	return ApplySquare(score + points)
}

// RollDice rolls n dice using roll and applies the bust rule:
// if any die shows 1 the turn is worth exactly 1 point.
// All n dice are rolled even after a bust.
func RollDice(n int, roll func() int) (int, error) {
	if n < 1 || n > MaxDice {
		return 0, fmt.Errorf("%w: must roll 1-%d dice, got %d", ErrInvalidRollCount, MaxDice, n)
	}
	sum := 0
	bust := false
	for i := 0; i < n; i++ {
		r := roll()
		if r == 1 {
			bust = true
		}
		sum += r
	}
	if bust {
		return 1, nil
	}
	return sum, nil
}

// TakeTurn returns the points scored on a turn rolling n dice
// against an opponent with opponentScore points.
func TakeTurn(n, opponentScore int, roll func() int) (int, error) {
	if n < 0 || n > MaxDice {
		return 0, fmt.Errorf("%w: must roll 0-%d dice, got %d", ErrInvalidRollCount, MaxDice, n)
	}
	if n == 0 {
		return TailPoints(opponentScore), nil
	}
	return RollDice(n, roll)
}
