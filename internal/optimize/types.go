// Package optimize implements multi-start acquisition-function optimization:
// joint and sequential candidate generation plus cyclic, list, mixed and
// discrete variants, orchestrating a black-box local solver over a bounded
// search domain.
package optimize

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Bounds defines the box search domain, one lower/upper pair per dimension.
type Bounds struct {
	Lower []float64
	Upper []float64
}

// NewUnitBounds creates [0,1] bounds in d dimensions.
func NewUnitBounds(d int) Bounds {
	lower := make([]float64, d)
	upper := make([]float64, d)
	for i := range upper {
		upper[i] = 1
	}
	return Bounds{Lower: lower, Upper: upper}
}

// Dim returns the dimensionality of the domain.
func (b Bounds) Dim() int { return len(b.Lower) }

// Validate checks that the bounds are well formed: equal lengths and
// lower <= upper elementwise.
func (b Bounds) Validate() error {
	if len(b.Lower) == 0 {
		return errors.New("optimize: bounds must have at least one dimension")
	}
	if len(b.Lower) != len(b.Upper) {
		return fmt.Errorf("optimize: %d lower bounds but %d upper bounds", len(b.Lower), len(b.Upper))
	}
	for i := range b.Lower {
		if b.Lower[i] > b.Upper[i] {
			return fmt.Errorf("optimize: lower bound %g exceeds upper bound %g at dimension %d", b.Lower[i], b.Upper[i], i)
		}
	}
	return nil
}

// Clamp projects x onto the box in place.
func (b Bounds) Clamp(x []float64) {
	for i := range x {
		if x[i] < b.Lower[i] {
			x[i] = b.Lower[i]
		} else if x[i] > b.Upper[i] {
			x[i] = b.Upper[i]
		}
	}
}

// Constraint encodes a single linear constraint sum_i coefficients[i] *
// x[indices[i]] >= rhs (inequality) or = rhs (equality) over one candidate
// point. A list of constraints is conjunctive.
type Constraint struct {
	Indices      []int
	Coefficients []float64
	RHS          float64
}

// Slack returns sum(coef*x[idx]) - rhs.
func (c Constraint) Slack(x []float64) float64 {
	var s float64
	for i, idx := range c.Indices {
		s += c.Coefficients[i] * x[idx]
	}
	return s - c.RHS
}

// Restart is one restart's locally optimized candidate set and value.
type Restart struct {
	Candidates *mat.Dense // q x d
	Value      float64
}

// Result is the outcome of an acquisition optimization run.
type Result struct {
	// Candidates is the selected q x d candidate set. Nil when
	// ReturnAllRestarts was requested; Restarts then carries every
	// restart's solution.
	Candidates *mat.Dense

	// Values holds the acquisition values: a single joint value for joint
	// optimization and the mixed variant, or q per-step values for the
	// sequential, cyclic, list and discrete variants.
	Values []float64

	// Restarts is populated instead of Candidates/Values when
	// ReturnAllRestarts is set.
	Restarts []Restart
}
