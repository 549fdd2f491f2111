package optimize

import (
	"sort"

	"github.com/cwbudde/bayopt/internal/acq"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// GenCandidatesFunc is the contract for the batched local optimizer: given
// initial candidate sets, the domain and a filtered options mapping, it
// returns locally optimized candidates and their acquisition values, one per
// initial set. Implementations return a best-effort result instead of
// failing on non-convergence. The engine maximizes acquisition values;
// adapters over minimizers handle the sign flip internally.
type GenCandidatesFunc func(
	ics []*mat.Dense,
	acqf acq.Function,
	bounds Bounds,
	options map[string]any,
	inequality, equality []Constraint,
	fixed map[int]float64,
) ([]*mat.Dense, []float64, error)

// GenCandidatesGonum is the default local optimizer: derivative-free
// Nelder-Mead per restart over the free (non-fixed) dimensions, with bound
// clamping and penalty terms for linear constraints.
func GenCandidatesGonum(
	ics []*mat.Dense,
	acqf acq.Function,
	bounds Bounds,
	options map[string]any,
	inequality, equality []Constraint,
	fixed map[int]float64,
) ([]*mat.Dense, []float64, error) {
	d := bounds.Dim()
	free := freeDims(d, fixed)
	maxIter := intOption(options, "maxiter", 200)

	candidates := make([]*mat.Dense, len(ics))
	values := make([]float64, len(ics))
	for i, ic := range ics {
		q, _ := ic.Dims()

		// Flatten the free dimensions of all q points into one vector.
		x0 := make([]float64, q*len(free))
		for r := 0; r < q; r++ {
			row := ic.RawRowView(r)
			for j, dim := range free {
				x0[r*len(free)+j] = row[dim]
			}
		}

		assemble := func(v []float64) *mat.Dense {
			X := mat.NewDense(q, d, nil)
			for r := 0; r < q; r++ {
				row := X.RawRowView(r)
				for j, dim := range free {
					row[dim] = v[r*len(free)+j]
				}
				for dim, val := range fixed {
					row[dim] = val
				}
				bounds.Clamp(row)
			}
			return X
		}

		problem := optimize.Problem{
			Func: func(v []float64) float64 {
				X := assemble(v)
				obj := -acqf.Evaluate(X)
				return obj + constraintPenalty(X, inequality, equality)
			},
		}
		settings := &optimize.Settings{
			Converger: &optimize.FunctionConverge{
				Absolute:   1e-10,
				Iterations: maxIter,
			},
		}

		best := assemble(x0)
		result, err := optimize.Minimize(problem, x0, settings, &optimize.NelderMead{})
		if err == nil && result != nil {
			// Non-convergence statuses still carry the best point found.
			best = assemble(result.X)
		}
		candidates[i] = best
		values[i] = acqf.Evaluate(best)
	}
	return candidates, values, nil
}

func freeDims(d int, fixed map[int]float64) []int {
	free := make([]int, 0, d)
	for i := 0; i < d; i++ {
		if _, ok := fixed[i]; !ok {
			free = append(free, i)
		}
	}
	return free
}

// constraintPenalty sums scaled violations of the linear constraints over
// every candidate point in X.
func constraintPenalty(X *mat.Dense, inequality, equality []Constraint) float64 {
	const scale = 1e6
	q, _ := X.Dims()
	var penalty float64
	for r := 0; r < q; r++ {
		row := X.RawRowView(r)
		for _, c := range inequality {
			if slack := c.Slack(row); slack < 0 {
				penalty += scale * -slack
			}
		}
		for _, c := range equality {
			slack := c.Slack(row)
			if slack < 0 {
				slack = -slack
			}
			penalty += scale * slack
		}
	}
	return penalty
}

// evalSets scores candidate sets, using the batch capability when the
// acquisition function offers one.
func evalSets(acqf acq.Function, sets []*mat.Dense) []float64 {
	if be, ok := acqf.(acq.BatchEvaluator); ok {
		return be.EvaluateBatch(sets)
	}
	vals := make([]float64, len(sets))
	for i, s := range sets {
		vals[i] = acqf.Evaluate(s)
	}
	return vals
}

// argmax returns the index of the maximum value, first occurrence on ties.
func argmax(vals []float64) int {
	best := 0
	for i := 1; i < len(vals); i++ {
		if vals[i] > vals[best] {
			best = i
		}
	}
	return best
}

// topIndices returns the indices of the k largest values in descending
// order, preserving original order among equal values.
func topIndices(vals []float64, k int) []int {
	idx := make([]int, len(vals))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return vals[idx[a]] > vals[idx[b]] })
	if k > len(idx) {
		k = len(idx)
	}
	return idx[:k]
}
