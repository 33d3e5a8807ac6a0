// Package bootstrap wires configuration, persisted tables and the engine
// together for the commands.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"go.uber.org/zap"

	"github.com/yourusername/hogengine/internal/config"
	"github.com/yourusername/hogengine/internal/policystore"
	"github.com/yourusername/hogengine/pkg/engine"
)

// NewEngine builds an engine for cfg. When tables.sqlite is set and holds
// complete tables for the goal, those are installed; otherwise the JSON
// table files are used. Missing tables are solved on demand.
func NewEngine(ctx context.Context, cfg config.Config, logger *zap.Logger) (*engine.Engine, error) {
	cutoff, err := cfg.Solver.Cutoff()
	if err != nil {
		return nil, err
	}
	opts := engine.EngineOptions{
		Goal:             cfg.Game.Goal,
		ProbCutoff:       cutoff,
		OptimalTableFile: cfg.Tables.Optimal,
		GreedyTableFile:  cfg.Tables.Greedy,
		Logger:           logger,
	}

	if cfg.Tables.SQLite != "" {
		if err := loadFromStore(ctx, cfg, &opts, logger); err != nil {
			return nil, err
		}
	}
	return engine.NewEngine(opts)
}

func loadFromStore(ctx context.Context, cfg config.Config, opts *engine.EngineOptions, logger *zap.Logger) error {
	store, err := policystore.Open(cfg.Tables.SQLite)
	if err != nil {
		return err
	}
	defer store.Close()

	goal := cfg.Game.Goal
	optimal, err := store.LoadOptimal(ctx, goal)
	switch {
	case errors.Is(err, policystore.ErrIncompleteTable):
		logger.Info("no complete optimal table in store", zap.String("path", cfg.Tables.SQLite), zap.Int("goal", goal))
	case err != nil:
		return fmt.Errorf("failed to load optimal table from store: %w", err)
	default:
		logger.Info("loaded optimal table from store", zap.String("path", cfg.Tables.SQLite), zap.Int("goal", goal))
		opts.OptimalTable = optimal
	}

	greedy, err := store.LoadGreedy(ctx, goal)
	switch {
	case errors.Is(err, policystore.ErrIncompleteTable):
		logger.Info("no complete greedy table in store", zap.String("path", cfg.Tables.SQLite), zap.Int("goal", goal))
	case err != nil:
		return fmt.Errorf("failed to load greedy table from store: %w", err)
	default:
		logger.Info("loaded greedy table from store", zap.String("path", cfg.Tables.SQLite), zap.Int("goal", goal))
		opts.GreedyTable = greedy
	}
	return nil
}

// SolveAll fills both tables of e. Zero workers means one per CPU.
func SolveAll(ctx context.Context, e *engine.Engine, workers int, progress engine.ProgressFunc) error {
	if workers == 0 {
		workers = runtime.NumCPU()
	}
	if err := e.Optimal().SolveAll(ctx, workers, progress); err != nil {
		return fmt.Errorf("solving optimal policy: %w", err)
	}
	if err := e.Greedy().SolveAll(ctx); err != nil {
		return fmt.Errorf("solving greedy policy: %w", err)
	}
	return nil
}

// SaveTables writes e's solved tables to every destination configured in
// tables: the JSON files, the SQLite store and the parquet export. Both
// tables must be complete.
func SaveTables(ctx context.Context, tables config.TablesConfig, e *engine.Engine, logger *zap.Logger) error {
	optimal, greedy := e.Optimal().Table(), e.Greedy().Table()

	if tables.Optimal != "" {
		if err := policystore.SaveOptimalFile(tables.Optimal, optimal); err != nil {
			return fmt.Errorf("saving optimal table: %w", err)
		}
		logger.Info("saved optimal table", zap.String("path", tables.Optimal))
	}
	if tables.Greedy != "" {
		if err := policystore.SaveGreedyFile(tables.Greedy, greedy); err != nil {
			return fmt.Errorf("saving greedy table: %w", err)
		}
		logger.Info("saved greedy table", zap.String("path", tables.Greedy))
	}

	if tables.SQLite != "" {
		store, err := policystore.Open(tables.SQLite)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.SaveOptimal(ctx, optimal); err != nil {
			return err
		}
		if err := store.SaveGreedy(ctx, greedy); err != nil {
			return err
		}
		logger.Info("saved tables to store", zap.String("path", tables.SQLite), zap.Int("goal", e.Goal()))
	}

	if tables.Parquet != "" {
		if err := policystore.ExportParquet(tables.Parquet, optimal, greedy); err != nil {
			return err
		}
		logger.Info("exported parquet", zap.String("path", tables.Parquet))
	}
	return nil
}
