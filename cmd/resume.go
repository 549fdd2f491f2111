package main

import (
	"fmt"
	"log/slog"

	"github.com/cwbudde/bayopt/internal/config"
	"github.com/cwbudde/bayopt/internal/store"
	"github.com/spf13/cobra"
)

var (
	resumeConfigPath string
	resumeDataDir    string
	resumeIters      int
)

var resumeCmd = &cobra.Command{
	Use:   "resume [run-id]",
	Short: "Resume an optimization run from its checkpoint",
	Long: `Loads the checkpoint for the given run, rebuilds the surrogate from the
saved observations, and continues optimizing where the run left off.`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

func init() {
	resumeCmd.Flags().StringVar(&resumeConfigPath, "config", "", "Path to YAML config file (optional)")
	resumeCmd.Flags().StringVar(&resumeDataDir, "data-dir", "./data", "Base directory for run data")
	resumeCmd.Flags().IntVar(&resumeIters, "iters", 0, "New total iteration count (0 = keep checkpointed value)")

	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	runID := args[0]

	cfg, err := config.Load(resumeConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !cmd.Flags().Changed("log-level") {
		configureLogging(cfg.Logging.Level)
	}
	if cmd.Flags().Changed("data-dir") {
		cfg.Store.DataDir = resumeDataDir
	}

	st, err := store.NewFSStore(cfg.Store.DataDir)
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}

	cp, err := st.LoadCheckpoint(runID)
	if err != nil {
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if err := cp.Validate(); err != nil {
		return fmt.Errorf("checkpoint is invalid: %w", err)
	}

	// Restore the run settings the checkpoint was created with; the
	// config file only contributes model and optimizer tuning.
	cfg.Run.Objective = cp.Config.Objective
	cfg.Acquisition.Type = cp.Config.Acquisition
	cfg.Run.Dim = cp.Config.Dim
	cfg.Run.Iters = cp.Config.Iters
	if cp.Config.BatchSize > 0 {
		cfg.Run.BatchSize = cp.Config.BatchSize
	}
	cfg.Run.InitSamples = cp.Config.InitSamples
	cfg.Optimize.NumRestarts = cp.Config.NumRestarts
	cfg.Optimize.RawSamples = cp.Config.RawSamples
	cfg.Run.Seed = cp.Config.Seed
	cfg.Run.CheckpointInterval = cp.Config.CheckpointInterval

	if cmd.Flags().Changed("iters") {
		if resumeIters <= cp.Iteration {
			return fmt.Errorf("--iters %d must exceed completed iterations %d", resumeIters, cp.Iteration)
		}
		cfg.Run.Iters = resumeIters
	}
	if err := cp.IsCompatible(toRunConfig(cfg)); err != nil {
		return fmt.Errorf("cannot resume: %w", err)
	}

	if cp.Iteration >= cfg.Run.Iters {
		fmt.Printf("Run %s already completed %d of %d iterations; nothing to do.\n",
			runID, cp.Iteration, cfg.Run.Iters)
		return nil
	}

	slog.Info("Resuming run",
		"runID", runID,
		"completed", cp.Iteration,
		"total", cfg.Run.Iters,
		"observations", len(cp.Y),
		"best", cp.BestValue,
	)

	return runLoop(cfg, runID, cp.X, cp.Y, cp.Iteration)
}
