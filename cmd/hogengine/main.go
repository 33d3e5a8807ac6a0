// hogengine - optimal policy solver for the dice game Hog
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/hogengine/internal/bootstrap"
	"github.com/yourusername/hogengine/internal/config"
	"github.com/yourusername/hogengine/internal/observability"
	"github.com/yourusername/hogengine/internal/policy"
	"github.com/yourusername/hogengine/internal/policystore"
	"github.com/yourusername/hogengine/internal/rules"
	"github.com/yourusername/hogengine/pkg/engine"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "solve":
		cmdSolve(args)
	case "move":
		cmdMove(args)
	case "dist":
		cmdDist(args)
	case "simulate":
		cmdSimulate(args)
	case "experiments":
		cmdExperiments(args)
	case "export":
		cmdExport(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`hogengine - Hog optimal policy solver

Usage: hogengine <command> [options]

Commands:
  solve      Solve every state and save the policy tables
  move       Show the move a policy makes at a state
  dist       Show the turn score distribution for n dice
  simulate   Estimate a strategy's win rate against a baseline
  experiments
             Run the strategy battery and sweep the hybrid thresholds
  export     Write solved tables to SQLite and parquet

Use "hogengine <command> -h" for command-specific help.

Every command reads a YAML config (-config); HOG_* environment variables
override it, e.g. HOG_GAME_GOAL=50 or HOG_SOLVER_PROB_CUTOFF=0.`)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// setup loads configuration and the logger. Flags that mirror config keys
// override the loaded values when set.
func setup(configPath string, exact bool) (config.Config, *zap.Logger) {
	cfg, err := config.Load(configPath)
	if err != nil {
		fatal(err)
	}
	if exact {
		cfg.Solver.ProbCutoff = "0"
	}
	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		fatal(err)
	}
	return cfg, logger
}

func createEngine(ctx context.Context, cfg config.Config, logger *zap.Logger) *engine.Engine {
	e, err := bootstrap.NewEngine(ctx, cfg, logger)
	if err != nil {
		fatal(fmt.Errorf("failed to create engine: %w", err))
	}
	return e
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func cmdSolve(args []string) {
	fs := flag.NewFlagSet("solve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to YAML config (empty = defaults)")
	workers := fs.Int("workers", -1, "States solved in parallel (0 = one per CPU, -1 = from config)")
	exact := fs.Bool("exact", false, "Disable probability pruning")
	fs.Parse(args)

	cfg, logger := setup(*configPath, *exact)
	defer logger.Sync()
	if *workers >= 0 {
		cfg.Solver.Workers = *workers
	}

	ctx, cancel := signalContext()
	defer cancel()

	e := createEngine(ctx, cfg, logger)
	goal := e.Goal()
	progress := func(done, total int) {
		if done%(goal*10) == 0 || done == total {
			logger.Info("progress", zap.Int("done", done), zap.Int("total", total))
		}
	}

	start := time.Now()
	if err := bootstrap.SolveAll(ctx, e, cfg.Solver.Workers, progress); err != nil {
		fatal(err)
	}
	if err := bootstrap.SaveTables(ctx, cfg.Tables, e, logger); err != nil {
		fatal(err)
	}

	opening, err := e.Optimal().Solve(policy.State{})
	if err != nil {
		fatal(err)
	}
	fmt.Printf("Solved %d states for goal %d in %.1fs\n", goal*goal, goal, time.Since(start).Seconds())
	fmt.Printf("  Opening move: roll %d (win %.2f%%)\n", opening.Move, opening.WinProbFloat()*100)
	if !e.Exact() {
		fmt.Println("  Probability pruning was on; win probabilities are approximate.")
	}
}

func cmdMove(args []string) {
	fs := flag.NewFlagSet("move", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to YAML config (empty = defaults)")
	score := fs.Int("score", 0, "Current player's score")
	opp := fs.Int("opp", 0, "Opponent's score")
	policyName := fs.String("policy", "optimal", "Policy: optimal, greedy or hybrid")
	all := fs.Bool("all", false, "Show every move (optimal: win probability, greedy: expected score)")
	exact := fs.Bool("exact", false, "Disable probability pruning")
	fs.Parse(args)

	cfg, logger := setup(*configPath, *exact)
	defer logger.Sync()

	kind, err := engine.ParsePolicyKind(*policyName)
	if err != nil {
		fatal(err)
	}

	ctx, cancel := signalContext()
	defer cancel()
	e := createEngine(ctx, cfg, logger)

	state := policy.State{Score: *score, OpponentScore: *opp}
	move, err := e.Decide(kind, state, cfg.Hybrid.LossSwitch, cfg.Hybrid.EndSwitch)
	if err != nil {
		fatal(err)
	}

	fmt.Printf("%s policy at %s: roll %d\n", kind, state, move)
	if move == 0 {
		fmt.Printf("  Tail points: %d\n", rules.TailPoints(*opp))
	}
	if kind == engine.PolicyHybrid {
		route := "greedy"
		if e.Hybrid(cfg.Hybrid.LossSwitch, cfg.Hybrid.EndSwitch).UsesOptimal(*score, *opp) {
			route = "optimal"
		}
		fmt.Printf("  Routed to: %s\n", route)
	}
	if !*all {
		return
	}

	switch kind {
	case engine.PolicyGreedy:
		scores, err := e.Greedy().ExpectedScores(state)
		if err != nil {
			fatal(err)
		}
		fmt.Println("  Dice  Expected score")
		for m, s := range scores {
			f, _ := s.Float64()
			fmt.Printf("  %4d  %14.4f\n", m, f)
		}
	default:
		probs, err := e.Optimal().MoveWinProbs(state)
		if err != nil {
			fatal(err)
		}
		fmt.Println("  Dice  Win %")
		for m, p := range probs {
			f, _ := p.Float64()
			fmt.Printf("  %4d  %6.2f%%\n", m, f*100)
		}
	}
}

func cmdDist(args []string) {
	fs := flag.NewFlagSet("dist", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to YAML config (empty = defaults)")
	n := fs.Int("n", 1, "Number of dice (1-10)")
	exact := fs.Bool("exact", false, "Disable probability pruning")
	fs.Parse(args)

	cfg, logger := setup(*configPath, *exact)
	defer logger.Sync()

	cutoff, err := cfg.Solver.Cutoff()
	if err != nil {
		fatal(err)
	}
	e, err := engine.NewEngine(engine.EngineOptions{Goal: cfg.Game.Goal, ProbCutoff: cutoff, Logger: logger})
	if err != nil {
		fatal(err)
	}
	d, err := e.Distribution(*n)
	if err != nil {
		fatal(err)
	}

	mean, stddev := d.Summary()
	fmt.Printf("Rolling %d dice (%d outcomes):\n", d.Dice, d.Len())
	for _, o := range d.Outcomes {
		f, _ := o.Prob.Float64()
		fmt.Printf("  %3d  %-24s %.6f\n", o.Value, o.Prob.RatString(), f)
	}
	fmt.Printf("  Mean: %.4f  StdDev: %.4f\n", mean, stddev)
	if !e.Exact() {
		fmt.Printf("  Pruned mass: %s\n", d.Discarded().RatString())
	}
}

// parseStrategy resolves a strategy name: a policy (optimal, greedy,
// hybrid) or a fixed strategy (always:N, catchup, tail, square).
func parseStrategy(name string, e *engine.Engine, cfg config.Config) (engine.Strategy, error) {
	switch {
	case strings.HasPrefix(name, "always:"):
		n, err := strconv.Atoi(strings.TrimPrefix(name, "always:"))
		if err != nil || !policy.ValidMove(n) {
			return nil, fmt.Errorf("always:N needs N in 0-%d, got %q", rules.MaxDice, name)
		}
		return engine.AlwaysRoll(n), nil
	case name == "catchup":
		return engine.CatchUp, nil
	case name == "tail":
		return engine.TailStrategy(engine.DefaultThreshold, engine.DefaultNumRolls), nil
	case name == "square":
		return engine.SquareStrategy(engine.DefaultThreshold, engine.DefaultNumRolls), nil
	}
	kind, err := engine.ParsePolicyKind(name)
	if err != nil {
		return nil, err
	}
	return e.Strategy(kind, cfg.Hybrid.LossSwitch, cfg.Hybrid.EndSwitch)
}

func cmdSimulate(args []string) {
	fs := flag.NewFlagSet("simulate", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to YAML config (empty = defaults)")
	strategyName := fs.String("strategy", "optimal", "Strategy: optimal, greedy, hybrid, always:N, catchup, tail, square")
	baselineName := fs.String("baseline", "always:6", "Baseline strategy")
	trials := fs.Int("trials", 0, "Games to simulate (0 = from config)")
	seed := fs.Int64("seed", 0, "Random seed (0 = from config)")
	exact := fs.Bool("exact", false, "Disable probability pruning")
	fs.Parse(args)

	cfg, logger := setup(*configPath, *exact)
	defer logger.Sync()
	if *trials > 0 {
		cfg.Simulation.Trials = *trials
	}
	if *seed != 0 {
		cfg.Simulation.Seed = *seed
	}

	ctx, cancel := signalContext()
	defer cancel()
	e := createEngine(ctx, cfg, logger)

	strategy, err := parseStrategy(*strategyName, e, cfg)
	if err != nil {
		fatal(err)
	}
	baseline, err := parseStrategy(*baselineName, e, cfg)
	if err != nil {
		fatal(err)
	}

	opts := engine.RolloutOptions{
		Trials:  cfg.Simulation.Trials,
		Workers: cfg.Simulation.Workers,
		Seed:    cfg.Simulation.Seed,
	}

	start := time.Now()
	result, err := e.WinRate(strategy, baseline, opts)
	elapsed := time.Since(start)
	if err != nil {
		fatal(err)
	}

	fmt.Printf("%s vs %s (%d games, %.1fs):\n", *strategyName, *baselineName, result.Trials, elapsed.Seconds())
	fmt.Printf("  Win rate: %.2f%% ± %.2f%% (95%% CI)\n", result.WinRate*100, result.CI*100)
	fmt.Printf("  Moving first:  %.2f%%\n", result.WinRateFirst*100)
	fmt.Printf("  Moving second: %.2f%%\n", result.WinRateSecond*100)
}

func cmdExperiments(args []string) {
	fs := flag.NewFlagSet("experiments", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to YAML config (empty = defaults)")
	trials := fs.Int("trials", 0, "Games per win rate (0 = from config)")
	seed := fs.Int64("seed", 0, "Random seed (0 = from config)")
	step := fs.Int("step", engine.DefaultSweepStep, "Spacing of the hybrid threshold grid")
	verbose := fs.Bool("v", false, "Print every sweep point")
	exact := fs.Bool("exact", false, "Disable probability pruning")
	fs.Parse(args)

	cfg, logger := setup(*configPath, *exact)
	defer logger.Sync()
	if *trials > 0 {
		cfg.Simulation.Trials = *trials
	}
	if *seed != 0 {
		cfg.Simulation.Seed = *seed
	}
	if *step < 1 {
		fatal(fmt.Errorf("-step must be positive, got %d", *step))
	}

	ctx, cancel := signalContext()
	defer cancel()
	e := createEngine(ctx, cfg, logger)

	// Every sweep point reads the whole optimal table, so fill it first.
	if err := bootstrap.SolveAll(ctx, e, cfg.Solver.Workers, nil); err != nil {
		fatal(err)
	}

	values := len(engine.SweepValues(e.Goal(), *step))
	opts := engine.ExperimentOptions{
		Rollout: engine.RolloutOptions{
			Trials:  cfg.Simulation.Trials,
			Workers: cfg.Simulation.Workers,
			Seed:    cfg.Simulation.Seed,
		},
		LossSwitch: cfg.Hybrid.LossSwitch,
		EndSwitch:  cfg.Hybrid.EndSwitch,
		SweepStep:  *step,
	}
	done := 0
	opts.Progress = func(p engine.SweepPoint) {
		done++
		if *verbose {
			fmt.Printf("  hybrid %3d/%-3d  %.4f\n", p.LossSwitch, p.EndSwitch, p.WinRate)
		}
		if done%values == 0 {
			logger.Info("sweep progress", zap.Int("done", done), zap.Int("total", values*values))
		}
	}

	start := time.Now()
	report, err := e.RunExperiments(opts)
	if err != nil {
		fatal(err)
	}

	fmt.Printf("Max scoring num rolls for six-sided dice: %d\n", report.MaxScoringNumRolls)
	fmt.Printf("Win rates against always:%d (%d games each):\n", engine.ExperimentBaseline, cfg.Simulation.Trials)
	for _, r := range report.Strategies {
		fmt.Printf("  %-10s %.4f ± %.4f\n", r.Name, r.Result.WinRate, r.Result.CI)
	}
	fmt.Printf("Best hybrid thresholds: loss %d, end %d (win rate %.4f)\n",
		report.Best.LossSwitch, report.Best.EndSwitch, report.Best.WinRate)
	fmt.Printf("Swept %d threshold pairs in %.1fs\n", len(report.Sweep), time.Since(start).Seconds())
}

func cmdExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to YAML config (empty = defaults)")
	sqlitePath := fs.String("sqlite", "", "SQLite store (default tables.sqlite)")
	parquetPath := fs.String("parquet", "", "Parquet file (default tables.parquet)")
	fs.Parse(args)

	cfg, logger := setup(*configPath, false)
	defer logger.Sync()
	if *sqlitePath != "" {
		cfg.Tables.SQLite = *sqlitePath
	}
	if *parquetPath != "" {
		cfg.Tables.Parquet = *parquetPath
	}
	if cfg.Tables.SQLite == "" && cfg.Tables.Parquet == "" {
		fatal(fmt.Errorf("nothing to export: set -sqlite or -parquet"))
	}

	ctx, cancel := signalContext()
	defer cancel()

	// Export reads the JSON tables; it never solves.
	source := cfg
	source.Tables.SQLite = ""
	e := createEngine(ctx, source, logger)
	if !e.Optimal().Table().Complete() || !e.Greedy().Table().Complete() {
		fatal(fmt.Errorf("%w: run \"hogengine solve\" first", policystore.ErrIncompleteTable))
	}

	dest := config.TablesConfig{SQLite: cfg.Tables.SQLite, Parquet: cfg.Tables.Parquet}
	if err := bootstrap.SaveTables(ctx, dest, e, logger); err != nil {
		fatal(err)
	}
	fmt.Printf("Exported goal %d tables\n", e.Goal())
}
