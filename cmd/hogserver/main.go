// Command hogserver runs the Hog policy query server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/yourusername/hogengine/internal/bootstrap"
	"github.com/yourusername/hogengine/internal/config"
	"github.com/yourusername/hogengine/internal/observability"
	"github.com/yourusername/hogengine/pkg/api"
	"github.com/yourusername/hogengine/pkg/external"
)

const version = "0.1.0"

type options struct {
	configPath string
	host       string
	port       int
	warm       bool
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "Path to YAML config (empty = defaults)")
	flag.StringVar(&opts.host, "host", "", "Host to bind to (overrides server.host)")
	flag.IntVar(&opts.port, "port", 0, "Port to listen on (overrides server.port)")
	flag.BoolVar(&opts.warm, "warm", false, "Solve every state before serving")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("hogserver v%s\n", version)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, opts)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run serves until ctx is done. Every resource it opens is released before
// it returns.
func run(ctx context.Context, opts options) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if opts.host != "" {
		cfg.Server.Host = opts.host
	}
	if opts.port != 0 {
		cfg.Server.Port = opts.port
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer logger.Sync()

	eng, err := bootstrap.NewEngine(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}

	if opts.warm {
		if err := bootstrap.SolveAll(ctx, eng, cfg.Solver.Workers, nil); err != nil {
			return fmt.Errorf("warming tables: %w", err)
		}
		if err := bootstrap.SaveTables(ctx, cfg.Tables, eng, logger); err != nil {
			return fmt.Errorf("saving tables: %w", err)
		}
	}

	if cfg.Server.LinePort != 0 {
		lineOpts := external.DefaultServerOptions()
		lineOpts.Addr = cfg.Server.LineAddr()
		lineOpts.LossSwitch = cfg.Hybrid.LossSwitch
		lineOpts.EndSwitch = cfg.Hybrid.EndSwitch
		line := external.NewServer(eng, lineOpts, logger.Named("line"))
		if err := line.Start(); err != nil {
			return fmt.Errorf("starting line protocol: %w", err)
		}
		defer func() {
			if err := line.Stop(); err != nil {
				logger.Warn("stopping line protocol", zap.Error(err))
			}
		}()
	}

	if err := api.NewServer(eng, cfg.Server, version, logger).Run(ctx); err != nil {
		logger.Error("server error", zap.Error(err))
		return err
	}
	return nil
}
