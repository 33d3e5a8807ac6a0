package config

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func validConfig() Config {
	return Config{
		Game:   GameConfig{Goal: 100},
		Solver: SolverConfig{ProbCutoff: "0.001", Workers: 4},
		Hybrid: HybridConfig{LossSwitch: 10, EndSwitch: 16},
		Tables: TablesConfig{
			Optimal: "data/optimal.json",
			Greedy:  "data/greedy.json",
		},
		Simulation: SimulationConfig{Trials: 1000},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Server: ServerConfig{
			Host:           "localhost",
			Port:           8080,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   30 * time.Second,
			IdleTimeout:    time.Minute,
			MaxFastWorkers: 100,
			MaxSlowWorkers: 2,
		},
	}
}

func TestValidConfig(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestServerAddr(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, "localhost:8080", cfg.Server.Addr())
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 100, cfg.Game.Goal)
	assert.Equal(t, "0.001", cfg.Solver.ProbCutoff)
	assert.Equal(t, 10, cfg.Hybrid.LossSwitch)
	assert.Equal(t, 16, cfg.Hybrid.EndSwitch)
	assert.Equal(t, 1000, cfg.Simulation.Trials)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "console", cfg.Logging.Format)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hog.yaml")
	err := os.WriteFile(path, []byte(`
game:
  goal: 50
solver:
  prob_cutoff: 0.0005
  workers: 8
hybrid:
  loss_switch: 5
  end_switch: 20
tables:
  optimal: /tmp/opt.json
  sqlite: /tmp/hog.db
simulation:
  trials: 250
  seed: 42
logging:
  level: debug
  format: console
server:
  port: 9090
  read_timeout: 1m
`), 0644)
	require.NoError(t, err)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.Game.Goal)
	assert.Equal(t, 8, cfg.Solver.Workers)
	assert.Equal(t, 5, cfg.Hybrid.LossSwitch)
	assert.Equal(t, "/tmp/hog.db", cfg.Tables.SQLite)
	assert.Equal(t, "data/greedy.json", cfg.Tables.Greedy, "unset keys keep defaults")
	assert.Equal(t, int64(42), cfg.Simulation.Seed)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, time.Minute, cfg.Server.ReadTimeout)

	cutoff, err := cfg.Solver.Cutoff()
	require.NoError(t, err)
	assert.Equal(t, 0, cutoff.Cmp(big.NewRat(1, 2000)), "cutoff = %s", cutoff)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("HOG_GAME_GOAL", "60")
	t.Setenv("HOG_SOLVER_PROB_CUTOFF", "0")
	t.Setenv("HOG_LOGGING_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 60, cfg.Game.Goal)
	assert.Equal(t, "warn", cfg.Logging.Level)

	cutoff, err := cfg.Solver.Cutoff()
	require.NoError(t, err)
	assert.Zero(t, cutoff.Sign())
}

func TestLoadInvalidPath(t *testing.T) {
	_, err := Load("/nonexistent/path.yaml")
	assert.Error(t, err)
}

func TestLoadInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("game:\n  goal: 0\n"), 0644))
	_, err := Load(path)
	assert.ErrorContains(t, err, "game.goal")
}

func TestSolverCutoff(t *testing.T) {
	tests := []struct {
		in   string
		want *big.Rat
		ok   bool
	}{
		{"0", new(big.Rat), true},
		{"0.001", big.NewRat(1, 1000), true},
		{"1/1000", big.NewRat(1, 1000), true},
		{" 0.25 ", big.NewRat(1, 4), true},
		{"1", nil, false},
		{"-0.1", nil, false},
		{"tiny", nil, false},
		{"", nil, false},
	}
	for _, tt := range tests {
		got, err := SolverConfig{ProbCutoff: tt.in}.Cutoff()
		if !tt.ok {
			assert.Error(t, err, "cutoff %q", tt.in)
			continue
		}
		require.NoError(t, err, "cutoff %q", tt.in)
		assert.Equal(t, 0, got.Cmp(tt.want), "cutoff %q", tt.in)
	}
}

func TestValidateReportsAllViolations(t *testing.T) {
	cfg := validConfig()
	cfg.Game.Goal = 0
	cfg.Solver.ProbCutoff = "2"
	cfg.Server.Port = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "game.goal")
	assert.Contains(t, err.Error(), "solver.prob_cutoff")
	assert.Contains(t, err.Error(), "server.port")
}

func TestValidateHybrid(t *testing.T) {
	cfg := validConfig()
	cfg.Hybrid.LossSwitch = -1
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Hybrid.EndSwitch = 101
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Hybrid.EndSwitch = 0
	assert.NoError(t, cfg.Validate())
}

func TestValidateLoggingLevel(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		cfg := validConfig()
		cfg.Logging.Level = level
		assert.NoError(t, cfg.Validate(), "level %q should be valid", level)
	}
	cfg := validConfig()
	cfg.Logging.Level = "trace"
	assert.Error(t, cfg.Validate())
}

func TestValidateLoggingFormat(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.Format = "xml"
	assert.Error(t, cfg.Validate())
}

func TestValidateSimulation(t *testing.T) {
	cfg := validConfig()
	cfg.Simulation.Trials = 0
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Simulation.Workers = -2
	assert.Error(t, cfg.Validate())
}

func TestValidateServerWorkers(t *testing.T) {
	cfg := validConfig()
	cfg.Server.MaxSlowWorkers = 0
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Server.ReadTimeout = -time.Second
	assert.Error(t, cfg.Validate())
}

func TestValidateLinePort(t *testing.T) {
	cfg := validConfig()
	cfg.Server.LinePort = 1234
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, "localhost:1234", cfg.Server.LineAddr())

	cfg.Server.LinePort = cfg.Server.Port
	assert.ErrorContains(t, cfg.Validate(), "server.line_port")

	cfg.Server.LinePort = 70000
	assert.Error(t, cfg.Validate())
}

// Property-based tests

func TestPropertyGoalPositive(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		goal := rapid.IntRange(16, 1000).Draw(t, "goal")
		cfg := validConfig()
		cfg.Game.Goal = goal
		if err := cfg.Validate(); err != nil {
			t.Fatalf("valid goal %d rejected: %v", goal, err)
		}
	})
}

func TestPropertyCutoffFractions(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		den := rapid.Int64Range(2, 1_000_000).Draw(t, "den")
		num := rapid.Int64Range(0, den-1).Draw(t, "num")
		want := big.NewRat(num, den)
		got, err := SolverConfig{ProbCutoff: want.RatString()}.Cutoff()
		if err != nil {
			t.Fatalf("cutoff %s rejected: %v", want, err)
		}
		if got.Cmp(want) != 0 {
			t.Fatalf("cutoff %s parsed as %s", want, got)
		}
	})
}
