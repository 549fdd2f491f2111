package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	logLevel string
	logger   *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "bayopt",
	Short: "Bayesian optimization with Gaussian process surrogates",
	Long: `bayopt runs sample-efficient global optimization of expensive black-box
functions, using multi-start acquisition optimization over a Gaussian
process surrogate with checkpointed, resumable runs.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		configureLogging(logLevel)
	},
}

// configureLogging installs a JSON slog handler at the given level. Commands
// that load a config file call it again with the configured level when the
// --log-level flag was not set explicitly.
func configureLogging(levelName string) {
	var level slog.Level
	switch levelName {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	logger = slog.New(handler)
	slog.SetDefault(logger)
	logger.Debug("Logging configured", "level", level)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
}
