package engine

import (
	"fmt"
	"math/rand"

	"go.uber.org/zap"
)

// ExperimentBaseline is the dice count of the fixed strategy every
// experiment plays against.
const ExperimentBaseline = 6

// DefaultSweepStep is the spacing of the hybrid threshold grid.
const DefaultSweepStep = 5

// ExperimentOptions configures RunExperiments.
type ExperimentOptions struct {
	Rollout    RolloutOptions // Games per win rate, workers and seed
	Samples    int            // Turns per dice count for MaxScoringNumRolls (0 = Rollout.Trials)
	LossSwitch int            // Hybrid thresholds for the strategy battery
	EndSwitch  int
	SweepStep  int // Grid spacing for the threshold sweep (0 = DefaultSweepStep)

	// Progress, if set, is called after each sweep point.
	Progress func(SweepPoint)
}

// NamedResult is the win rate of one named strategy against the baseline.
type NamedResult struct {
	Name   string
	Result *RolloutResult
}

// SweepPoint is the win rate of the hybrid policy at one pair of thresholds.
type SweepPoint struct {
	LossSwitch int
	EndSwitch  int
	WinRate    float64
}

// ExperimentReport collects the results of RunExperiments.
type ExperimentReport struct {
	MaxScoringNumRolls int
	Strategies         []NamedResult
	Sweep              []SweepPoint
	Best               SweepPoint // First sweep point with the highest win rate
}

// SweepValues returns 0, step, 2*step, ... up to and including goal.
func SweepValues(goal, step int) []int {
	var values []int
	for v := 0; v <= goal; v += step {
		values = append(values, v)
	}
	return values
}

// RunExperiments measures the fixed strategies and the hybrid policy
// against AlwaysRoll(ExperimentBaseline), and sweeps both hybrid thresholds
// over a grid to find the best pair. Every win rate uses the same seed, so
// the sweep compares thresholds on identical dice.
func (e *Engine) RunExperiments(opts ExperimentOptions) (*ExperimentReport, error) {
	if opts.Rollout.Trials <= 0 {
		opts.Rollout.Trials = DefaultRolloutOptions().Trials
	}
	if opts.Rollout.Seed == 0 {
		opts.Rollout.Seed = rand.Int63()
	}
	if opts.Samples <= 0 {
		opts.Samples = opts.Rollout.Trials
	}
	if opts.SweepStep == 0 {
		opts.SweepStep = DefaultSweepStep
	}
	if opts.SweepStep < 0 {
		return nil, fmt.Errorf("sweep step must be positive, got %d", opts.SweepStep)
	}

	report := &ExperimentReport{}
	var err error
	roll := DieRoller(rand.New(rand.NewSource(opts.Rollout.Seed)))
	if report.MaxScoringNumRolls, err = MaxScoringNumRolls(roll, opts.Samples); err != nil {
		return nil, err
	}

	baseline := AlwaysRoll(ExperimentBaseline)
	battery := []struct {
		name     string
		strategy Strategy
	}{
		{fmt.Sprintf("always:%d", ExperimentBaseline), AlwaysRoll(ExperimentBaseline)},
		{"catchup", CatchUp},
		{"always:3", AlwaysRoll(3)},
		{"always:8", AlwaysRoll(8)},
		{"tail", TailStrategy(DefaultThreshold, DefaultNumRolls)},
		{"square", SquareStrategy(DefaultThreshold, DefaultNumRolls)},
		{"hybrid", HybridStrategy(e.Hybrid(opts.LossSwitch, opts.EndSwitch))},
	}
	for _, b := range battery {
		result, err := e.WinRate(b.strategy, baseline, opts.Rollout)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.name, err)
		}
		report.Strategies = append(report.Strategies, NamedResult{Name: b.name, Result: result})
	}

	values := SweepValues(e.goal, opts.SweepStep)
	report.Best.WinRate = -1
	for _, loss := range values {
		for _, end := range values {
			result, err := e.WinRate(HybridStrategy(e.Hybrid(loss, end)), baseline, opts.Rollout)
			if err != nil {
				return nil, fmt.Errorf("hybrid %d/%d: %w", loss, end, err)
			}
			point := SweepPoint{LossSwitch: loss, EndSwitch: end, WinRate: result.WinRate}
			report.Sweep = append(report.Sweep, point)
			if point.WinRate > report.Best.WinRate {
				report.Best = point
			}
			if opts.Progress != nil {
				opts.Progress(point)
			}
		}
	}

	e.logger.Info("experiments finished",
		zap.Int("max_scoring_num_rolls", report.MaxScoringNumRolls),
		zap.Int("sweep_points", len(report.Sweep)),
		zap.Int("best_loss_switch", report.Best.LossSwitch),
		zap.Int("best_end_switch", report.Best.EndSwitch),
		zap.Float64("best_win_rate", report.Best.WinRate),
	)
	return report, nil
}
