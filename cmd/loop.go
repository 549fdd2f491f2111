package main

import (
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/cwbudde/bayopt/internal/acq"
	"github.com/cwbudde/bayopt/internal/config"
	"github.com/cwbudde/bayopt/internal/gp"
	"github.com/cwbudde/bayopt/internal/optimize"
	"github.com/cwbudde/bayopt/internal/store"
	"gonum.org/v1/gonum/mat"
)

// buildKernel constructs the surrogate kernel from config.
func buildKernel(cfg config.ModelConfig) gp.Kernel {
	switch cfg.Kernel {
	case "rbf":
		return gp.NewRBF(cfg.Lengthscale, cfg.Variance)
	default:
		return gp.NewMatern52(cfg.Lengthscale, cfg.Variance)
	}
}

// buildAcquisition constructs the acquisition function from config.
// The model must already be fitted.
func buildAcquisition(cfg config.AcquisitionConfig, model *gp.GP) acq.Function {
	switch cfg.Type {
	case "ucb":
		return acq.NewUpperConfidenceBound(model, cfg.Beta)
	case "qei":
		return acq.NewQExpectedImprovement(model, model.BestObserved(), cfg.MCSamples, cfg.SampleSeed)
	default:
		ei := acq.NewExpectedImprovement(model, model.BestObserved())
		ei.Xi = cfg.Xi
		return ei
	}
}

// buildOptimizeOptions assembles the per-iteration candidate generation
// options from config. The seed is offset by the iteration so every
// iteration draws fresh but reproducible initial conditions.
func buildOptimizeOptions(cfg config.Config, iter int) *optimize.Options {
	return &optimize.Options{
		RawSamples: cfg.Optimize.RawSamples,
		Options: map[string]any{
			"batch_limit": cfg.Optimize.BatchLimit,
			"maxiter":     cfg.Optimize.MaxIter,
			"seed":        cfg.Run.Seed + int64(iter),
		},
	}
}

// buildStoppingConfig maps the configured stopping knobs onto the cyclic
// refinement criterion.
func buildStoppingConfig(cfg config.Config) optimize.StoppingConfig {
	stopping := optimize.DefaultStoppingConfig()
	stopping.Eta = cfg.Optimize.StoppingEta
	stopping.RelTol = cfg.Optimize.StoppingRelTol
	return stopping
}

// runLoop executes the Bayesian optimization outer loop starting from the
// given observation history. With empty history an initial design of
// cfg.Run.InitSamples uniform points is evaluated first. startIter is the
// number of already completed iterations (nonzero on resume).
func runLoop(cfg config.Config, runID string, x [][]float64, y []float64, startIter int) error {
	obj, err := lookupObjective(cfg.Run.Objective, cfg.Run.Dim)
	if err != nil {
		return err
	}

	st, err := store.NewFSStore(cfg.Store.DataDir)
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}
	trace, err := store.NewTraceWriter(cfg.Store.DataDir, runID, startIter > 0)
	if err != nil {
		return fmt.Errorf("failed to create trace writer: %w", err)
	}
	defer trace.Close()

	// Reseed offset by completed iterations so a resumed run does not
	// replay the draws already consumed before the checkpoint.
	rng := rand.New(rand.NewSource(cfg.Run.Seed + int64(startIter)))

	if len(x) == 0 {
		slog.Info("Evaluating initial design", "samples", cfg.Run.InitSamples)
		for i := 0; i < cfg.Run.InitSamples; i++ {
			point := make([]float64, obj.Dim)
			for d := range point {
				lo, hi := obj.Bounds.Lower[d], obj.Bounds.Upper[d]
				point[d] = lo + rng.Float64()*(hi-lo)
			}
			x = append(x, point)
			y = append(y, observe(obj, point, cfg.Run.NoiseStd, rng))
		}
	}

	kernel := buildKernel(cfg.Model)
	runCfg := toRunConfig(cfg)
	start := time.Now()

	for iter := startIter; iter < cfg.Run.Iters; iter++ {
		model := gp.New(kernel, cfg.Model.Noise)
		if err := model.Fit(denseFromRows(x, obj.Dim), y); err != nil {
			return fmt.Errorf("failed to fit surrogate at iteration %d: %w", iter, err)
		}

		acqf := buildAcquisition(cfg.Acquisition, model)
		opts := buildOptimizeOptions(cfg, iter)

		q := cfg.Run.BatchSize
		var res *optimize.Result
		if q > 1 {
			res, err = optimize.ACQFCyclic(acqf, obj.Bounds, q, cfg.Optimize.NumRestarts, opts, buildStoppingConfig(cfg))
		} else {
			res, err = optimize.ACQF(acqf, obj.Bounds, 1, cfg.Optimize.NumRestarts, opts)
		}
		if err != nil {
			return fmt.Errorf("candidate generation failed at iteration %d: %w", iter, err)
		}

		rows, _ := res.Candidates.Dims()
		for r := 0; r < rows; r++ {
			candidate := append([]float64(nil), res.Candidates.RawRowView(r)...)
			value := observe(obj, candidate, cfg.Run.NoiseStd, rng)
			x = append(x, candidate)
			y = append(y, value)

			_, bestValue := bestObservation(x, y)
			if err := trace.Write(store.TraceEntry{
				Iteration: iter,
				BestValue: bestValue,
				AcqValue:  res.Values[min(r, len(res.Values)-1)],
				Timestamp: time.Now(),
				Candidate: candidate,
			}); err != nil {
				return fmt.Errorf("failed to write trace: %w", err)
			}
		}
		if err := trace.Flush(); err != nil {
			return fmt.Errorf("failed to flush trace: %w", err)
		}

		bestX, bestValue := bestObservation(x, y)
		slog.Info("Iteration complete",
			"runID", runID,
			"iteration", iter,
			"candidates", rows,
			"best", bestValue,
		)

		interval := cfg.Run.CheckpointInterval
		if interval > 0 && (iter+1)%interval == 0 && iter+1 < cfg.Run.Iters {
			cp := store.NewCheckpoint(runID, x, y, bestX, bestValue, iter+1, runCfg)
			if err := st.SaveCheckpoint(runID, cp); err != nil {
				return fmt.Errorf("failed to save checkpoint: %w", err)
			}
		}
	}

	bestX, bestValue := bestObservation(x, y)
	cp := store.NewCheckpoint(runID, x, y, bestX, bestValue, cfg.Run.Iters, runCfg)
	if err := st.SaveCheckpoint(runID, cp); err != nil {
		return fmt.Errorf("failed to save final checkpoint: %w", err)
	}

	elapsed := time.Since(start)
	slog.Info("Run complete",
		"runID", runID,
		"elapsed", elapsed,
		"observations", len(y),
		"best", bestValue,
	)
	fmt.Printf("Run %s: best %.6f at %v (%d observations, %s)\n",
		runID, bestValue, bestX, len(y), elapsed.Round(time.Millisecond))

	return nil
}

// observe evaluates the objective with optional Gaussian observation noise.
func observe(obj Objective, x []float64, noiseStd float64, rng *rand.Rand) float64 {
	v := obj.Eval(x)
	if noiseStd > 0 {
		v += noiseStd * rng.NormFloat64()
	}
	return v
}

// bestObservation returns the point with the largest observed value.
func bestObservation(x [][]float64, y []float64) ([]float64, float64) {
	best := 0
	for i := 1; i < len(y); i++ {
		if y[i] > y[best] {
			best = i
		}
	}
	return x[best], y[best]
}

func denseFromRows(x [][]float64, dim int) *mat.Dense {
	out := mat.NewDense(len(x), dim, nil)
	for i, row := range x {
		copy(out.RawRowView(i), row)
	}
	return out
}

func toRunConfig(cfg config.Config) store.RunConfig {
	return store.RunConfig{
		Objective:          cfg.Run.Objective,
		Acquisition:        cfg.Acquisition.Type,
		Dim:                cfg.Run.Dim,
		Iters:              cfg.Run.Iters,
		BatchSize:          cfg.Run.BatchSize,
		InitSamples:        cfg.Run.InitSamples,
		NumRestarts:        cfg.Optimize.NumRestarts,
		RawSamples:         cfg.Optimize.RawSamples,
		Seed:               cfg.Run.Seed,
		CheckpointInterval: cfg.Run.CheckpointInterval,
	}
}
