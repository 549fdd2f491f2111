package acq

import (
	"math"

	"github.com/cwbudde/bayopt/internal/gp"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// ExpectedImprovement is the analytic EI criterion over a single-task GP.
// It is defined for single points; for a multi-point set the per-point
// values are averaged. Pending points are ignored (analytic EI has no way
// to account for them; use QExpectedImprovement instead).
type ExpectedImprovement struct {
	PendingState
	Model *gp.GP
	Best  float64
	Xi    float64
}

// NewExpectedImprovement creates an EI acquisition over a fitted model.
// best is the incumbent value to improve on, typically model.BestObserved().
func NewExpectedImprovement(model *gp.GP, best float64) *ExpectedImprovement {
	return &ExpectedImprovement{Model: model, Best: best, Xi: 0.0}
}

func (e *ExpectedImprovement) Evaluate(X *mat.Dense) float64 {
	q, _ := X.Dims()
	var total float64
	for i := 0; i < q; i++ {
		mean, variance := e.Model.Predict(X.RawRowView(i))
		total += expectedImprovement(mean, variance, e.Best, e.Xi)
	}
	return total / float64(q)
}

func expectedImprovement(mean, variance, best, xi float64) float64 {
	sigma := math.Sqrt(variance)
	if sigma < 1e-12 {
		return math.Max(mean-best-xi, 0)
	}
	z := (mean - best - xi) / sigma
	return (mean-best-xi)*distuv.UnitNormal.CDF(z) + sigma*distuv.UnitNormal.Prob(z)
}

// UpperConfidenceBound is the analytic UCB criterion mean + sqrt(beta)*sigma.
type UpperConfidenceBound struct {
	PendingState
	Model *gp.GP
	Beta  float64
}

// NewUpperConfidenceBound creates a UCB acquisition over a fitted model.
func NewUpperConfidenceBound(model *gp.GP, beta float64) *UpperConfidenceBound {
	return &UpperConfidenceBound{Model: model, Beta: beta}
}

func (u *UpperConfidenceBound) Evaluate(X *mat.Dense) float64 {
	q, _ := X.Dims()
	var total float64
	for i := 0; i < q; i++ {
		mean, variance := u.Model.Predict(X.RawRowView(i))
		total += mean + math.Sqrt(u.Beta*variance)
	}
	return total / float64(q)
}

// PosteriorMean scores candidates by the model's posterior mean alone.
type PosteriorMean struct {
	PendingState
	Model *gp.GP
}

// NewPosteriorMean creates a posterior-mean acquisition.
func NewPosteriorMean(model *gp.GP) *PosteriorMean {
	return &PosteriorMean{Model: model}
}

func (p *PosteriorMean) Evaluate(X *mat.Dense) float64 {
	q, _ := X.Dims()
	var total float64
	for i := 0; i < q; i++ {
		mean, _ := p.Model.Predict(X.RawRowView(i))
		total += mean
	}
	return total / float64(q)
}
