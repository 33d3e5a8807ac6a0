package engine

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/yourusername/hogengine/internal/dice"
	"github.com/yourusername/hogengine/internal/policy"
	"github.com/yourusername/hogengine/internal/rules"
)

// ErrRecursionLimit is returned when the solver recurses deeper than any
// acyclic game can require.
var ErrRecursionLimit = errors.New("recursion limit exceeded")

// ProgressFunc receives the number of solved states and the total.
// It may be called from several goroutines.
type ProgressFunc func(done, total int)

// OptimalSolver finds the move that maximizes the exact probability of
// winning from each state, by backward induction over the opponent's replies.
// It is safe for concurrent use.
type OptimalSolver struct {
	goal     int
	maxDepth int
	dice     *dice.Calculator
	table    *policy.OptimalTable
	group    singleflight.Group
	stats    cacheCounters
	logger   *zap.Logger
}

// NewOptimalSolver creates a solver that memoizes into table. Entries already
// in table (a warm cache) are trusted and never recomputed.
func NewOptimalSolver(calc *dice.Calculator, table *policy.OptimalTable, logger *zap.Logger) *OptimalSolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OptimalSolver{
		goal:     table.Goal(),
		maxDepth: 2*table.Goal() + 2,
		dice:     calc,
		table:    table,
		logger:   logger,
	}
}

// Goal returns the score needed to win.
func (o *OptimalSolver) Goal() int {
	return o.goal
}

// Table returns the solver's memo table.
func (o *OptimalSolver) Table() *policy.OptimalTable {
	return o.table
}

// Stats returns memo usage counters.
func (o *OptimalSolver) Stats() CacheStats {
	return o.stats.snapshot()
}

// Solve returns the optimal move and its win probability for state.
func (o *OptimalSolver) Solve(state policy.State) (*policy.OptimalEntry, error) {
	if err := state.Validate(o.goal); err != nil {
		return nil, err
	}
	return o.solve(state, 0)
}

// MoveWinProbs returns the win probability of every move from state,
// indexed by dice count.
func (o *OptimalSolver) MoveWinProbs(state policy.State) ([]*big.Rat, error) {
	if err := state.Validate(o.goal); err != nil {
		return nil, err
	}
	probs := make([]*big.Rat, rules.MaxDice+1)
	for m := range probs {
		p, err := o.moveWinProb(state, m, 0)
		if err != nil {
			return nil, err
		}
		probs[m] = p
	}
	return probs, nil
}

func (o *OptimalSolver) solve(state policy.State, depth int) (*policy.OptimalEntry, error) {
	if e, ok := o.table.Get(state); ok {
		o.stats.lookup(true)
		return e, nil
	}
	o.stats.lookup(false)
	if depth > o.maxDepth {
		return nil, fmt.Errorf("%w: depth %d at state %s", ErrRecursionLimit, depth, state)
	}

	key := strconv.Itoa(state.Score*o.goal + state.OpponentScore)
	v, err, _ := o.group.Do(key, func() (any, error) {
		if e, ok := o.table.Get(state); ok {
			return e, nil
		}
		e, err := o.compute(state, depth)
		if err != nil {
			return nil, err
		}
		stored := o.table.Put(state, e)
		if stored == e {
			o.stats.solved.Add(1)
			o.logger.Debug("solved state",
				zap.Int("score", state.Score),
				zap.Int("opponent_score", state.OpponentScore),
				zap.Int("move", e.Move),
				zap.String("win_prob", e.WinProb.FloatString(5)),
			)
		}
		return stored, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*policy.OptimalEntry), nil
}

// compute evaluates every move from state. Only a strictly better
// probability replaces the current best, so the lowest move wins ties.
func (o *OptimalSolver) compute(state policy.State, depth int) (*policy.OptimalEntry, error) {
	best := big.NewRat(-1, 1)
	bestMove := 0
	for m := 0; m <= rules.MaxDice; m++ {
		p, err := o.moveWinProb(state, m, depth)
		if err != nil {
			return nil, err
		}
		if p.Cmp(best) > 0 {
			best = p
			bestMove = m
		}
	}
	return &policy.OptimalEntry{Move: bestMove, WinProb: best}, nil
}

// moveWinProb is the probability of winning from state by rolling m dice now
// and playing optimally afterwards.
func (o *OptimalSolver) moveWinProb(state policy.State, m, depth int) (*big.Rat, error) {
	outcomes, err := o.outcomes(state, m)
	if err != nil {
		return nil, err
	}

	one := big.NewRat(1, 1)
	total := new(big.Rat)
	term := new(big.Rat)
	for _, out := range outcomes {
		newScore := rules.ApplySquare(state.Score + out.Value)
		if newScore >= o.goal {
			total.Add(total, out.Prob)
			continue
		}
		// The opponent moves next from the swapped state.
		next, err := o.solve(policy.State{Score: state.OpponentScore, OpponentScore: newScore}, depth+1)
		if err != nil {
			return nil, err
		}
		term.Sub(one, next.WinProb)
		term.Mul(term, out.Prob)
		total.Add(total, term)
	}
	return total, nil
}

func (o *OptimalSolver) outcomes(state policy.State, m int) ([]dice.Outcome, error) {
	if m == 0 {
		return []dice.Outcome{{Value: rules.TailPoints(state.OpponentScore), Prob: big.NewRat(1, 1)}}, nil
	}
	d, err := o.dice.Compute(m)
	if err != nil {
		return nil, err
	}
	return d.Outcomes, nil
}

// SolveAll fills the table for every state, visiting scores from goal-1
// down to 0. Up to workers states are solved at once. Cancellation is
// checked between states; a state is never left half-solved.
func (o *OptimalSolver) SolveAll(ctx context.Context, workers int, progress ProgressFunc) error {
	if workers < 1 {
		workers = 1
	}
	total := o.goal * o.goal
	o.logger.Info("solving optimal policy",
		zap.Int("goal", o.goal),
		zap.Int("workers", workers),
		zap.Int("cached", o.table.Len()),
		zap.Bool("exact", o.dice.Exact()),
	)

	var done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

visit:
	for score := o.goal - 1; score >= 0; score-- {
		for opp := o.goal - 1; opp >= 0; opp-- {
			if gctx.Err() != nil {
				break visit
			}
			state := policy.State{Score: score, OpponentScore: opp}
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				if _, err := o.solve(state, 0); err != nil {
					return err
				}
				n := done.Add(1)
				if progress != nil {
					progress(int(n), total)
				}
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	stats := o.Stats()
	o.logger.Info("optimal policy solved",
		zap.Int("states", o.table.Len()),
		zap.Uint64("computed", stats.Solved),
		zap.Float64("hit_rate", stats.HitRate()),
	)
	return nil
}
