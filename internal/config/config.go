// Package config provides Viper-based configuration loading for the Hog engine.
package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// GameConfig holds the game rules that may vary.
type GameConfig struct {
	// Goal is the score needed to win.
	Goal int `mapstructure:"goal"`
}

// SolverConfig holds optimal-solver settings.
type SolverConfig struct {
	// ProbCutoff drops dice outcomes less likely than this. It accepts a
	// decimal ("0.001") or a fraction ("1/1000"). "0" solves exactly.
	ProbCutoff string `mapstructure:"prob_cutoff"`
	// Workers is the number of states solved in parallel by a full solve.
	// Zero means one per CPU.
	Workers int `mapstructure:"workers"`
}

// Cutoff parses ProbCutoff exactly.
//
// Postcondition: Returns a rational in [0, 1) or a non-nil error.
func (s SolverConfig) Cutoff() (*big.Rat, error) {
	r, ok := new(big.Rat).SetString(strings.TrimSpace(s.ProbCutoff))
	if !ok {
		return nil, fmt.Errorf("solver.prob_cutoff %q is not a number", s.ProbCutoff)
	}
	if r.Sign() < 0 || r.Cmp(big.NewRat(1, 1)) >= 0 {
		return nil, fmt.Errorf("solver.prob_cutoff must be in [0, 1), got %s", s.ProbCutoff)
	}
	return r, nil
}

// HybridConfig holds the thresholds of the hybrid policy.
type HybridConfig struct {
	// LossSwitch: play optimally while score < opponent + LossSwitch.
	LossSwitch int `mapstructure:"loss_switch"`
	// EndSwitch: play optimally once score > goal - EndSwitch.
	EndSwitch int `mapstructure:"end_switch"`
}

// TablesConfig holds the paths of persisted policy tables.
// An empty path disables that store.
type TablesConfig struct {
	Optimal string `mapstructure:"optimal"`
	Greedy  string `mapstructure:"greedy"`
	SQLite  string `mapstructure:"sqlite"`
	Parquet string `mapstructure:"parquet"`
}

// SimulationConfig holds win-rate simulation settings.
type SimulationConfig struct {
	Trials  int   `mapstructure:"trials"`
	Workers int   `mapstructure:"workers"`
	Seed    int64 `mapstructure:"seed"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// ServerConfig holds policy server settings.
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	MaxFastWorkers int           `mapstructure:"max_fast_workers"`
	MaxSlowWorkers int           `mapstructure:"max_slow_workers"`
	// LinePort serves the plain-text line protocol on the same host.
	// Zero disables it.
	LinePort int `mapstructure:"line_port"`
}

// Addr returns the "host:port" listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LineAddr returns the "host:port" address of the line protocol.
func (s ServerConfig) LineAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.LinePort)
}

// Config is the top-level application configuration.
type Config struct {
	Game       GameConfig       `mapstructure:"game"`
	Solver     SolverConfig     `mapstructure:"solver"`
	Hybrid     HybridConfig     `mapstructure:"hybrid"`
	Tables     TablesConfig     `mapstructure:"tables"`
	Simulation SimulationConfig `mapstructure:"simulation"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Server     ServerConfig     `mapstructure:"server"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if c.Game.Goal < 1 {
		errs = append(errs, fmt.Sprintf("game.goal must be >= 1, got %d", c.Game.Goal))
	}
	if _, err := c.Solver.Cutoff(); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Solver.Workers < 0 {
		errs = append(errs, fmt.Sprintf("solver.workers must be >= 0, got %d", c.Solver.Workers))
	}
	if err := validateHybrid(c.Hybrid, c.Game.Goal); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateSimulation(c.Simulation); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateServer(c.Server); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateHybrid(h HybridConfig, goal int) error {
	var errs []string
	if h.LossSwitch < 0 {
		errs = append(errs, fmt.Sprintf("hybrid.loss_switch must be >= 0, got %d", h.LossSwitch))
	}
	if h.EndSwitch < 0 || h.EndSwitch > goal {
		errs = append(errs, fmt.Sprintf("hybrid.end_switch must be 0-%d, got %d", goal, h.EndSwitch))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateSimulation(s SimulationConfig) error {
	var errs []string
	if s.Trials < 1 {
		errs = append(errs, fmt.Sprintf("simulation.trials must be >= 1, got %d", s.Trials))
	}
	if s.Workers < 0 {
		errs = append(errs, fmt.Sprintf("simulation.workers must be >= 0, got %d", s.Workers))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

func validateServer(s ServerConfig) error {
	var errs []string
	if s.Port < 1 || s.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", s.Port))
	}
	if s.LinePort < 0 || s.LinePort > 65535 || (s.LinePort != 0 && s.LinePort == s.Port) {
		errs = append(errs, fmt.Sprintf("server.line_port must be 0 or a free port 1-65535, got %d", s.LinePort))
	}
	if s.ReadTimeout < 0 || s.WriteTimeout < 0 || s.IdleTimeout < 0 {
		errs = append(errs, "server timeouts must not be negative")
	}
	if s.MaxFastWorkers < 1 {
		errs = append(errs, fmt.Sprintf("server.max_fast_workers must be >= 1, got %d", s.MaxFastWorkers))
	}
	if s.MaxSlowWorkers < 1 {
		errs = append(errs, fmt.Sprintf("server.max_slow_workers must be >= 1, got %d", s.MaxSlowWorkers))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result. An empty path uses defaults and
// environment variables only.
//
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()

	// Environment variable overrides with HOG_ prefix
	v.SetEnvPrefix("HOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("game.goal", 100)

	v.SetDefault("solver.prob_cutoff", "0.001")
	v.SetDefault("solver.workers", 0)

	v.SetDefault("hybrid.loss_switch", 10)
	v.SetDefault("hybrid.end_switch", 16)

	v.SetDefault("tables.optimal", "data/optimal.json")
	v.SetDefault("tables.greedy", "data/greedy.json")
	v.SetDefault("tables.sqlite", "")
	v.SetDefault("tables.parquet", "")

	v.SetDefault("simulation.trials", 1000)
	v.SetDefault("simulation.workers", 0)
	v.SetDefault("simulation.seed", 0)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.max_fast_workers", 100)
	v.SetDefault("server.max_slow_workers", 2)
	v.SetDefault("server.line_port", 0)
}
