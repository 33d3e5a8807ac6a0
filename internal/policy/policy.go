// Package policy holds the state and table types shared by the solvers
// and the policy store.
//
// Tables are dense goal x goal grids indexed by (score, opponentScore).
// Each cell is written at most once, so a table can serve as a solver's
// memo cache while other goroutines read from it.
package policy

import (
	"errors"
	"fmt"
	"math/big"
	"sync/atomic"

	"github.com/yourusername/hogengine/internal/rules"
)

// ErrStateOutOfRange is returned for a state with a coordinate outside [0, goal).
var ErrStateOutOfRange = errors.New("state out of range")

// State is a decision point: the mover's score and the other player's score.
type State struct {
	Score         int
	OpponentScore int
}

// Validate checks that both scores are in [0, goal).
func (s State) Validate(goal int) error {
	if s.Score < 0 || s.Score >= goal || s.OpponentScore < 0 || s.OpponentScore >= goal {
		return fmt.Errorf("%w: (%d, %d) with goal %d", ErrStateOutOfRange, s.Score, s.OpponentScore, goal)
	}
	return nil
}

// Swap returns the state seen by the other player.
func (s State) Swap() State {
	return State{Score: s.OpponentScore, OpponentScore: s.Score}
}

func (s State) String() string {
	return fmt.Sprintf("(%d,%d)", s.Score, s.OpponentScore)
}

func (s State) index(goal int) int {
	return s.Score*goal + s.OpponentScore
}

// ValidMove reports whether m is a legal dice count.
func ValidMove(m int) bool {
	return m >= 0 && m <= rules.MaxDice
}

// OptimalEntry is the solved decision for one state.
// WinProb is shared with the table and must be treated as read-only.
type OptimalEntry struct {
	Move    int
	WinProb *big.Rat
}

// WinProbFloat returns WinProb as a float64 for display.
func (e *OptimalEntry) WinProbFloat() float64 {
	f, _ := e.WinProb.Float64()
	return f
}

// OptimalTable is a dense grid of optimal entries.
type OptimalTable struct {
	goal  int
	cells []atomic.Pointer[OptimalEntry]
	count atomic.Int64
}

// NewOptimalTable allocates an empty goal x goal table.
func NewOptimalTable(goal int) *OptimalTable {
	return &OptimalTable{
		goal:  goal,
		cells: make([]atomic.Pointer[OptimalEntry], goal*goal),
	}
}

// Goal returns the goal score the table was sized for.
func (t *OptimalTable) Goal() int {
	return t.goal
}

// Get returns the entry for s, if one has been stored.
// s must be valid for the table's goal.
func (t *OptimalTable) Get(s State) (*OptimalEntry, bool) {
	e := t.cells[s.index(t.goal)].Load()
	return e, e != nil
}

// Put stores e for s unless an entry is already present, and returns the
// entry that ends up in the table.
func (t *OptimalTable) Put(s State, e *OptimalEntry) *OptimalEntry {
	cell := &t.cells[s.index(t.goal)]
	if cell.CompareAndSwap(nil, e) {
		t.count.Add(1)
		return e
	}
	return cell.Load()
}

// Len returns the number of solved states.
func (t *OptimalTable) Len() int {
	return int(t.count.Load())
}

// Complete reports whether every state has an entry.
func (t *OptimalTable) Complete() bool {
	return t.Len() == t.goal*t.goal
}

// GreedyTable is a dense grid of greedy moves.
type GreedyTable struct {
	goal  int
	cells []atomic.Int32 // move+1; zero means unsolved
	count atomic.Int64
}

// NewGreedyTable allocates an empty goal x goal table.
func NewGreedyTable(goal int) *GreedyTable {
	return &GreedyTable{
		goal:  goal,
		cells: make([]atomic.Int32, goal*goal),
	}
}

// Goal returns the goal score the table was sized for.
func (t *GreedyTable) Goal() int {
	return t.goal
}

// Get returns the move for s, if one has been stored.
func (t *GreedyTable) Get(s State) (int, bool) {
	v := t.cells[s.index(t.goal)].Load()
	return int(v) - 1, v != 0
}

// Put stores move for s unless a move is already present, and returns the
// move that ends up in the table.
func (t *GreedyTable) Put(s State, move int) int {
	cell := &t.cells[s.index(t.goal)]
	if cell.CompareAndSwap(0, int32(move+1)) {
		t.count.Add(1)
		return move
	}
	return int(cell.Load()) - 1
}

// Len returns the number of solved states.
func (t *GreedyTable) Len() int {
	return int(t.count.Load())
}

// Complete reports whether every state has a move.
func (t *GreedyTable) Complete() bool {
	return t.Len() == t.goal*t.goal
}

// RoundProb rounds p to the given number of decimal digits, half away from zero.
// The result is an exact decimal.
func RoundProb(p *big.Rat, digits int) *big.Rat {
	r, _ := new(big.Rat).SetString(p.FloatString(digits))
	return r
}
