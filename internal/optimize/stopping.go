package optimize

import (
	"log/slog"
	"math"
)

// StoppingConfig defines parameters for the exponential-moving-average
// stopping criterion used by the cyclic variant.
type StoppingConfig struct {
	// MaxIter is a hard cap on the number of evaluations.
	MaxIter int

	// NWindow is the moving-average window length.
	NWindow int

	// Eta controls the exponential decay of the window weights.
	Eta float64

	// RelTol is the relative improvement below which iteration stops.
	RelTol float64

	// Minimize flips the improvement direction. The engine maximizes
	// acquisition values, so it stays false there.
	Minimize bool
}

// DefaultStoppingConfig returns sensible defaults for cyclic refinement.
func DefaultStoppingConfig() StoppingConfig {
	return StoppingConfig{
		MaxIter: 50,
		NWindow: 10,
		Eta:     1.0,
		RelTol:  1e-5,
	}
}

// ExpMAStopping detects convergence of a sequence of value vectors by
// comparing exponentially weighted moving averages over a sliding window.
type ExpMAStopping struct {
	config  StoppingConfig
	iter    int
	weights []float64
	window  [][]float64 // most recent NWindow+1 value vectors
}

// NewExpMAStopping creates a stopping criterion with the given config.
func NewExpMAStopping(config StoppingConfig) *ExpMAStopping {
	if config.MaxIter < 1 {
		config.MaxIter = DefaultStoppingConfig().MaxIter
	}
	if config.NWindow < 1 {
		config.NWindow = DefaultStoppingConfig().NWindow
	}
	weights := make([]float64, config.NWindow)
	var total float64
	for i := range weights {
		// exp(eta * t) for t evenly spaced in [-1, 0].
		t := -1.0 + float64(i)/float64(config.NWindow-1)
		if config.NWindow == 1 {
			t = 0
		}
		weights[i] = math.Exp(config.Eta * t)
		total += weights[i]
	}
	for i := range weights {
		weights[i] /= total
	}
	return &ExpMAStopping{config: config, weights: weights}
}

// Evaluate records a new value vector and reports whether to stop. The
// vector length must stay constant across calls.
func (c *ExpMAStopping) Evaluate(fvals []float64) bool {
	c.iter++
	if c.iter >= c.config.MaxIter {
		slog.Debug("Stopping criterion reached max iterations", "iter", c.iter)
		return true
	}

	c.window = append(c.window, append([]float64(nil), fvals...))
	if len(c.window) > c.config.NWindow+1 {
		c.window = c.window[len(c.window)-(c.config.NWindow+1):]
	}
	if len(c.window) < c.config.NWindow+1 {
		return false
	}

	n := len(fvals)
	maxRelDelta := math.Inf(-1)
	for j := 0; j < n; j++ {
		var prevMA, ma float64
		for i := 0; i < c.config.NWindow; i++ {
			prevMA += c.weights[i] * c.window[i][j]
			ma += c.weights[i] * c.window[i+1][j]
		}
		relDelta := (prevMA - ma) / math.Abs(prevMA)
		if !c.config.Minimize {
			relDelta = -relDelta
		}
		if relDelta > maxRelDelta {
			maxRelDelta = relDelta
		}
	}
	if maxRelDelta < c.config.RelTol {
		slog.Debug("Stopping criterion converged", "iter", c.iter, "max_rel_delta", maxRelDelta)
		return true
	}
	return false
}

// Iterations returns the number of Evaluate calls so far.
func (c *ExpMAStopping) Iterations() int { return c.iter }
