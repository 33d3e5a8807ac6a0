package engine

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"go.uber.org/zap"

	"github.com/yourusername/hogengine/internal/dice"
	"github.com/yourusername/hogengine/internal/policy"
	"github.com/yourusername/hogengine/internal/rules"
)

// GreedySolver picks the move with the highest expected score after this
// turn, ignoring the opponent. It is safe for concurrent use.
type GreedySolver struct {
	goal   int
	dice   *dice.Calculator
	table  *policy.GreedyTable
	stats  cacheCounters
	logger *zap.Logger

	meansOnce sync.Once
	means     []*big.Rat // expected turn score per dice count; index 0 unused
	meansErr  error
}

// NewGreedySolver creates a solver that memoizes into table.
func NewGreedySolver(calc *dice.Calculator, table *policy.GreedyTable, logger *zap.Logger) *GreedySolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GreedySolver{
		goal:   table.Goal(),
		dice:   calc,
		table:  table,
		logger: logger,
	}
}

// Goal returns the score needed to win.
func (g *GreedySolver) Goal() int {
	return g.goal
}

// Table returns the solver's memo table.
func (g *GreedySolver) Table() *policy.GreedyTable {
	return g.table
}

// Stats returns memo usage counters.
func (g *GreedySolver) Stats() CacheStats {
	return g.stats.snapshot()
}

// Solve returns the greedy move for state.
func (g *GreedySolver) Solve(state policy.State) (int, error) {
	if err := state.Validate(g.goal); err != nil {
		return 0, err
	}
	if m, ok := g.table.Get(state); ok {
		g.stats.lookup(true)
		return m, nil
	}
	g.stats.lookup(false)

	scores, err := g.ExpectedScores(state)
	if err != nil {
		return 0, err
	}
	best := big.NewRat(-1, 1)
	bestMove := 0
	for m, s := range scores {
		if s.Cmp(best) > 0 {
			best = s
			bestMove = m
		}
	}

	stored := g.table.Put(state, bestMove)
	if stored == bestMove {
		g.stats.solved.Add(1)
	}
	return stored, nil
}

// ExpectedScores returns the expected score after this turn for every move
// from state, indexed by dice count. Rolling zero dice is deterministic and
// takes the square rule into account. Dice rolls use the plain mean.
func (g *GreedySolver) ExpectedScores(state policy.State) ([]*big.Rat, error) {
	if err := state.Validate(g.goal); err != nil {
		return nil, err
	}
	means, err := g.turnMeans()
	if err != nil {
		return nil, err
	}

	scores := make([]*big.Rat, rules.MaxDice+1)
	tail := rules.ApplySquare(state.Score + rules.TailPoints(state.OpponentScore))
	scores[0] = new(big.Rat).SetInt64(int64(tail))
	base := new(big.Rat).SetInt64(int64(state.Score))
	for m := 1; m <= rules.MaxDice; m++ {
		scores[m] = new(big.Rat).Add(base, means[m])
	}
	return scores, nil
}

func (g *GreedySolver) turnMeans() ([]*big.Rat, error) {
	g.meansOnce.Do(func() {
		g.means = make([]*big.Rat, rules.MaxDice+1)
		for m := 1; m <= rules.MaxDice; m++ {
			d, err := g.dice.Compute(m)
			if err != nil {
				g.meansErr = fmt.Errorf("turn mean for %d dice: %w", m, err)
				return
			}
			g.means[m] = d.Mean()
		}
	})
	return g.means, g.meansErr
}

// SolveAll fills the table for every state.
func (g *GreedySolver) SolveAll(ctx context.Context) error {
	g.logger.Info("solving greedy policy", zap.Int("goal", g.goal), zap.Int("cached", g.table.Len()))
	for score := g.goal - 1; score >= 0; score-- {
		if err := ctx.Err(); err != nil {
			return err
		}
		for opp := g.goal - 1; opp >= 0; opp-- {
			if _, err := g.Solve(policy.State{Score: score, OpponentScore: opp}); err != nil {
				return err
			}
		}
	}
	g.logger.Info("greedy policy solved", zap.Int("states", g.table.Len()))
	return nil
}
