// Package config loads and validates YAML run configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the full bayopt run configuration.
type Config struct {
	Run         RunConfig         `yaml:"run"`
	Model       ModelConfig       `yaml:"model"`
	Acquisition AcquisitionConfig `yaml:"acquisition"`
	Optimize    OptimizeConfig    `yaml:"optimize"`
	Store       StoreConfig       `yaml:"store"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// RunConfig holds the outer loop settings.
type RunConfig struct {
	Objective          string  `yaml:"objective"` // sphere, branin
	Dim                int     `yaml:"dim"`
	Iters              int     `yaml:"iters"`
	BatchSize          int     `yaml:"batch_size"` // candidates observed per iteration
	InitSamples        int     `yaml:"init_samples"`
	Seed               int64   `yaml:"seed"`
	NoiseStd           float64 `yaml:"noise_std"` // observation noise added to objective evaluations
	CheckpointInterval int     `yaml:"checkpoint_interval"`
}

// ModelConfig holds Gaussian process surrogate settings.
type ModelConfig struct {
	Kernel      string  `yaml:"kernel"` // rbf, matern52
	Lengthscale float64 `yaml:"lengthscale"`
	Variance    float64 `yaml:"variance"`
	Noise       float64 `yaml:"noise"`
}

// AcquisitionConfig holds acquisition function settings.
type AcquisitionConfig struct {
	Type       string  `yaml:"type"` // ei, ucb, qei
	Xi         float64 `yaml:"xi"`   // EI exploration offset
	Beta       float64 `yaml:"beta"` // UCB confidence multiplier
	MCSamples  int     `yaml:"mc_samples"`
	SampleSeed int64   `yaml:"sample_seed"`
}

// OptimizeConfig holds candidate generation settings.
type OptimizeConfig struct {
	NumRestarts    int     `yaml:"num_restarts"`
	RawSamples     int     `yaml:"raw_samples"`
	BatchLimit     int     `yaml:"batch_limit"`
	MaxIter        int     `yaml:"max_iter"`
	StoppingEta    float64 `yaml:"stopping_eta"`
	StoppingRelTol float64 `yaml:"stopping_rel_tol"`
}

// StoreConfig holds persistence settings.
type StoreConfig struct {
	DataDir string `yaml:"data_dir"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// Default returns a configuration with all defaults applied.
func Default() Config {
	var cfg Config
	cfg.ApplyDefaults()
	return cfg
}

// Load reads configuration from a YAML file. An empty path returns the
// defaults. Values of the form ${VAR} or ${VAR:-default} are substituted
// from the environment before parsing.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.Run.Objective == "" {
		c.Run.Objective = "sphere"
	}
	if c.Run.Dim <= 0 {
		c.Run.Dim = 2
	}
	if c.Run.Iters <= 0 {
		c.Run.Iters = 20
	}
	if c.Run.BatchSize <= 0 {
		c.Run.BatchSize = 1
	}
	if c.Run.InitSamples <= 0 {
		c.Run.InitSamples = 5
	}
	if c.Model.Kernel == "" {
		c.Model.Kernel = "matern52"
	}
	if c.Model.Lengthscale <= 0 {
		c.Model.Lengthscale = 0.2
	}
	if c.Model.Variance <= 0 {
		c.Model.Variance = 1.0
	}
	if c.Model.Noise <= 0 {
		c.Model.Noise = 1e-6
	}
	if c.Acquisition.Type == "" {
		c.Acquisition.Type = "ei"
	}
	if c.Acquisition.Beta <= 0 {
		c.Acquisition.Beta = 2.0
	}
	if c.Acquisition.MCSamples <= 0 {
		c.Acquisition.MCSamples = 128
	}
	if c.Optimize.NumRestarts <= 0 {
		c.Optimize.NumRestarts = 8
	}
	if c.Optimize.RawSamples <= 0 {
		c.Optimize.RawSamples = 128
	}
	if c.Optimize.BatchLimit <= 0 {
		c.Optimize.BatchLimit = 32
	}
	if c.Optimize.MaxIter <= 0 {
		c.Optimize.MaxIter = 50
	}
	if c.Optimize.StoppingEta <= 0 {
		c.Optimize.StoppingEta = 1.0
	}
	if c.Optimize.StoppingRelTol <= 0 {
		c.Optimize.StoppingRelTol = 1e-5
	}
	if c.Store.DataDir == "" {
		c.Store.DataDir = "./data"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	switch c.Run.Objective {
	case "sphere", "branin":
	default:
		return fmt.Errorf("run.objective must be \"sphere\" or \"branin\", got %q", c.Run.Objective)
	}
	if c.Run.Objective == "branin" && c.Run.Dim != 2 {
		return fmt.Errorf("run.dim must be 2 for branin, got %d", c.Run.Dim)
	}
	switch c.Model.Kernel {
	case "rbf", "matern52":
	default:
		return fmt.Errorf("model.kernel must be \"rbf\" or \"matern52\", got %q", c.Model.Kernel)
	}
	switch c.Acquisition.Type {
	case "ei", "ucb", "qei":
	default:
		return fmt.Errorf("acquisition.type must be \"ei\", \"ucb\" or \"qei\", got %q", c.Acquisition.Type)
	}
	if c.Acquisition.Xi < 0 {
		return fmt.Errorf("acquisition.xi cannot be negative, got %v", c.Acquisition.Xi)
	}
	if c.Run.NoiseStd < 0 {
		return fmt.Errorf("run.noise_std cannot be negative, got %v", c.Run.NoiseStd)
	}
	if c.Run.CheckpointInterval < 0 {
		return fmt.Errorf("run.checkpoint_interval cannot be negative, got %d", c.Run.CheckpointInterval)
	}
	if c.Optimize.RawSamples < c.Optimize.NumRestarts {
		return fmt.Errorf("optimize.raw_samples (%d) must be at least optimize.num_restarts (%d)",
			c.Optimize.RawSamples, c.Optimize.NumRestarts)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	return nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
