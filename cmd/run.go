package main

import (
	"fmt"
	"log/slog"

	"github.com/cwbudde/bayopt/internal/config"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	configPath         string
	objective          string
	dim                int
	iters              int
	batchSize          int
	initSamples        int
	acquisition        string
	seed               int64
	dataDir            string
	checkpointInterval int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start a new optimization run",
	Long: `Starts a Bayesian optimization run on a benchmark objective and writes
a trace and resumable checkpoint under the data directory.`,
	RunE: runOptimization,
}

func init() {
	runCmd.Flags().StringVar(&configPath, "config", "", "Path to YAML config file (optional)")
	runCmd.Flags().StringVar(&objective, "objective", "sphere", "Objective function: sphere, branin")
	runCmd.Flags().IntVar(&dim, "dim", 2, "Input dimension")
	runCmd.Flags().IntVar(&iters, "iters", 20, "Optimization iterations")
	runCmd.Flags().IntVar(&batchSize, "batch", 1, "Candidates observed per iteration")
	runCmd.Flags().IntVar(&initSamples, "init", 5, "Initial design size")
	runCmd.Flags().StringVar(&acquisition, "acq", "ei", "Acquisition function: ei, ucb, qei")
	runCmd.Flags().Int64Var(&seed, "seed", 42, "Random seed")
	runCmd.Flags().StringVar(&dataDir, "data-dir", "./data", "Base directory for run data")
	runCmd.Flags().IntVar(&checkpointInterval, "checkpoint-interval", 0, "Checkpoint every N iterations (0 = final only)")

	rootCmd.AddCommand(runCmd)
}

func runOptimization(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyFlagOverrides(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if !cmd.Flags().Changed("log-level") {
		configureLogging(cfg.Logging.Level)
	}

	runID := uuid.New().String()
	slog.Info("Starting run",
		"runID", runID,
		"objective", cfg.Run.Objective,
		"dim", cfg.Run.Dim,
		"acquisition", cfg.Acquisition.Type,
		"iters", cfg.Run.Iters,
	)

	return runLoop(cfg, runID, nil, nil, 0)
}

// applyFlagOverrides lets explicitly set flags win over config file values.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("objective") {
		cfg.Run.Objective = objective
	}
	if cmd.Flags().Changed("dim") {
		cfg.Run.Dim = dim
	}
	if cmd.Flags().Changed("iters") {
		cfg.Run.Iters = iters
	}
	if cmd.Flags().Changed("batch") {
		cfg.Run.BatchSize = batchSize
	}
	if cmd.Flags().Changed("init") {
		cfg.Run.InitSamples = initSamples
	}
	if cmd.Flags().Changed("acq") {
		cfg.Acquisition.Type = acquisition
	}
	if cmd.Flags().Changed("seed") {
		cfg.Run.Seed = seed
	}
	if cmd.Flags().Changed("data-dir") {
		cfg.Store.DataDir = dataDir
	}
	if cmd.Flags().Changed("checkpoint-interval") {
		cfg.Run.CheckpointInterval = checkpointInterval
	}
}
