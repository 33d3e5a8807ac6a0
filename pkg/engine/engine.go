// Package engine solves Hog for optimal, greedy and hybrid play and
// simulates games between strategies.
package engine

import (
	"errors"
	"fmt"
	"io/fs"
	"math/big"

	"go.uber.org/zap"

	"github.com/yourusername/hogengine/internal/dice"
	"github.com/yourusername/hogengine/internal/policy"
	"github.com/yourusername/hogengine/internal/policystore"
	"github.com/yourusername/hogengine/internal/rules"
)

// ErrUnknownPolicy is returned for a policy name other than optimal, greedy or hybrid.
var ErrUnknownPolicy = errors.New("unknown policy")

// PolicyKind names one of the engine's policies.
type PolicyKind string

// Policies
const (
	PolicyOptimal PolicyKind = "optimal"
	PolicyGreedy  PolicyKind = "greedy"
	PolicyHybrid  PolicyKind = "hybrid"
)

// ParsePolicyKind validates a policy name. An empty name means optimal.
func ParsePolicyKind(s string) (PolicyKind, error) {
	switch PolicyKind(s) {
	case "", PolicyOptimal:
		return PolicyOptimal, nil
	case PolicyGreedy, PolicyHybrid:
		return PolicyKind(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
}

// Engine owns the distribution calculator and both solvers for one goal.
type Engine struct {
	goal    int
	dice    *dice.Calculator
	optimal *OptimalSolver
	greedy  *GreedySolver
	logger  *zap.Logger
}

// EngineOptions configures the engine
type EngineOptions struct {
	Goal             int         // Score needed to win (0 = rules.Goal)
	ProbCutoff       *big.Rat    // Drop outcomes below this probability (nil or 0 = exact)
	OptimalTableFile string      // Warm optimal table (JSON); missing file = solve on demand
	GreedyTableFile  string      // Warm greedy table (JSON); missing file = solve on demand
	Logger           *zap.Logger // nil = no logging

	// Preloaded tables, e.g. from a SQLiteStore. They take precedence over
	// the table files and must match Goal.
	OptimalTable *policy.OptimalTable
	GreedyTable  *policy.GreedyTable
}

// NewEngine creates a new engine with the given options
func NewEngine(opts EngineOptions) (*Engine, error) {
	if opts.Goal == 0 {
		opts.Goal = rules.Goal
	}
	if opts.Goal < 1 {
		return nil, fmt.Errorf("goal must be positive, got %d", opts.Goal)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{
		goal:   opts.Goal,
		dice:   dice.NewCalculator(opts.ProbCutoff),
		logger: logger,
	}
	if !e.dice.Exact() {
		logger.Warn("probability pruning enabled; win probabilities are approximate",
			zap.String("cutoff", e.dice.Cutoff().FloatString(6)))
	}

	optimalTable := policy.NewOptimalTable(opts.Goal)
	if t := opts.OptimalTable; t != nil {
		if t.Goal() != opts.Goal {
			return nil, fmt.Errorf("optimal table is for goal %d, engine goal is %d", t.Goal(), opts.Goal)
		}
		optimalTable = t
	} else if opts.OptimalTableFile != "" {
		t, err := policystore.LoadOptimalFile(opts.OptimalTableFile, opts.Goal)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			logger.Info("no optimal table on disk; solving on demand", zap.String("path", opts.OptimalTableFile))
		case err != nil:
			return nil, fmt.Errorf("failed to load optimal table: %w", err)
		default:
			logger.Info("loaded optimal table", zap.String("path", opts.OptimalTableFile), zap.Int("states", t.Len()))
			optimalTable = t
		}
	}

	greedyTable := policy.NewGreedyTable(opts.Goal)
	if t := opts.GreedyTable; t != nil {
		if t.Goal() != opts.Goal {
			return nil, fmt.Errorf("greedy table is for goal %d, engine goal is %d", t.Goal(), opts.Goal)
		}
		greedyTable = t
	} else if opts.GreedyTableFile != "" {
		t, err := policystore.LoadGreedyFile(opts.GreedyTableFile, opts.Goal)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			logger.Info("no greedy table on disk; solving on demand", zap.String("path", opts.GreedyTableFile))
		case err != nil:
			return nil, fmt.Errorf("failed to load greedy table: %w", err)
		default:
			logger.Info("loaded greedy table", zap.String("path", opts.GreedyTableFile), zap.Int("states", t.Len()))
			greedyTable = t
		}
	}

	e.optimal = NewOptimalSolver(e.dice, optimalTable, logger.Named("optimal"))
	e.greedy = NewGreedySolver(e.dice, greedyTable, logger.Named("greedy"))
	return e, nil
}

// Goal returns the score needed to win.
func (e *Engine) Goal() int {
	return e.goal
}

// Optimal returns the optimal solver.
func (e *Engine) Optimal() *OptimalSolver {
	return e.optimal
}

// Greedy returns the greedy solver.
func (e *Engine) Greedy() *GreedySolver {
	return e.greedy
}

// Hybrid returns a hybrid policy over the engine's solvers.
func (e *Engine) Hybrid(lossSwitch, endSwitch int) *HybridPolicy {
	return NewHybridPolicy(e.optimal, e.greedy, lossSwitch, endSwitch)
}

// Distribution returns the outcome distribution for rolling n dice.
func (e *Engine) Distribution(n int) (*dice.Distribution, error) {
	return e.dice.Compute(n)
}

// Exact reports whether the engine keeps every dice outcome.
func (e *Engine) Exact() bool {
	return e.dice.Exact()
}

// Decide returns the move chosen by the named policy. The switches are only
// used by the hybrid policy.
func (e *Engine) Decide(kind PolicyKind, state policy.State, lossSwitch, endSwitch int) (int, error) {
	switch kind {
	case PolicyOptimal:
		entry, err := e.optimal.Solve(state)
		if err != nil {
			return 0, err
		}
		return entry.Move, nil
	case PolicyGreedy:
		return e.greedy.Solve(state)
	case PolicyHybrid:
		return e.Hybrid(lossSwitch, endSwitch).Decide(state.Score, state.OpponentScore)
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownPolicy, kind)
}

// Strategy returns the named policy as a Strategy.
func (e *Engine) Strategy(kind PolicyKind, lossSwitch, endSwitch int) (Strategy, error) {
	switch kind {
	case PolicyOptimal:
		return OptimalStrategy(e.optimal), nil
	case PolicyGreedy:
		return GreedyStrategy(e.greedy), nil
	case PolicyHybrid:
		return HybridStrategy(e.Hybrid(lossSwitch, endSwitch)), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, kind)
}

// WinRate simulates strategy against baseline at the engine's goal.
func (e *Engine) WinRate(strategy, baseline Strategy, opts RolloutOptions) (*RolloutResult, error) {
	result, err := WinRate(strategy, baseline, e.goal, opts)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("win rate simulated",
		zap.Int("trials", result.Trials),
		zap.Float64("win_rate", result.WinRate),
		zap.Float64("ci", result.CI),
	)
	return result, nil
}
