// Package acq defines the acquisition-function capability set used by the
// optimization engine, plus concrete analytic and Monte Carlo acquisition
// functions over GP surrogates.
package acq

import "gonum.org/v1/gonum/mat"

// Function scores how valuable it is to evaluate the black-box objective at
// a candidate set X (q x d), given current data. Higher is better; the
// engine always maximizes.
//
// Pending points are candidates already committed within an in-progress
// batch selection. The engine borrows this state: it may set pending points
// transiently during its own execution but restores the original value
// before returning. Implementations that cannot account for pending points
// may ignore them.
type Function interface {
	Evaluate(X *mat.Dense) float64
	Pending() *mat.Dense
	SetPending(X *mat.Dense)
}

// BatchEvaluator is an optional capability for acquisition functions that
// can score many candidate sets at once (e.g. with shared posterior work).
// The engine falls back to per-set Evaluate calls when it is absent.
type BatchEvaluator interface {
	EvaluateBatch(sets []*mat.Dense) []float64
}

// OneShot marks acquisition functions whose optimization jointly searches an
// augmented representation (such as fantasy continuations) that must be
// reduced back to real candidates afterwards. The engine checks for this
// capability explicitly and never optimizes such functions sequentially.
type OneShot interface {
	Function

	// AugmentedSize returns the number of points in the full optimization
	// tree for q actual candidates.
	AugmentedSize(q int) int

	// ExtractCandidates reduces a full augmented tree to the q x d matrix of
	// actual candidates.
	ExtractCandidates(full *mat.Dense) *mat.Dense
}

// PendingState is an embeddable pending-points holder satisfying the
// Pending/SetPending half of Function.
type PendingState struct {
	pending *mat.Dense
}

func (p *PendingState) Pending() *mat.Dense     { return p.pending }
func (p *PendingState) SetPending(X *mat.Dense) { p.pending = X }

// WithPending returns X with the pending rows of f appended, or X itself
// when there are none.
func WithPending(f Function, X *mat.Dense) *mat.Dense {
	pend := f.Pending()
	if pend == nil {
		return X
	}
	xr, d := X.Dims()
	pr, _ := pend.Dims()
	all := mat.NewDense(xr+pr, d, nil)
	all.Slice(0, xr, 0, d).(*mat.Dense).Copy(X)
	all.Slice(xr, xr+pr, 0, d).(*mat.Dense).Copy(pend)
	return all
}
