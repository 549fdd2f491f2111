package optimize

import (
	"fmt"
	"log/slog"

	"github.com/cwbudde/bayopt/internal/acq"
	"gonum.org/v1/gonum/mat"
)

// ACQFCyclic generates q candidates via cyclic optimization: an initial
// sequential solve followed by rounds of one-at-a-time refinement, where
// candidate i is re-optimized (warm-started from its current value) with
// all other candidates held as pending points. Rounds continue until the
// stopping criterion converges on the q acquisition values. For q=1 this is
// exactly a plain sequential call.
func ACQFCyclic(acqf acq.Function, bounds Bounds, q, numRestarts int, opts *Options, stopping StoppingConfig) (*Result, error) {
	if opts == nil {
		opts = &Options{}
	}
	seqOpts := opts.clone()
	seqOpts.Sequential = true
	seqOpts.ReturnAllRestarts = false

	res, err := ACQF(acqf, bounds, q, numRestarts, seqOpts)
	if err != nil {
		return nil, err
	}
	if q <= 1 {
		return res, nil
	}

	criterion := NewExpMAStopping(stopping)
	stop := criterion.Evaluate(res.Values)

	basePending := acqf.Pending()
	defer acqf.SetPending(basePending)

	candidates := res.Candidates
	values := res.Values
	_, d := candidates.Dims()

	refineOpts := seqOpts.clone()
	for !stop {
		for i := 0; i < q; i++ {
			acqf.SetPending(concatRows(basePending, rowsExcept(candidates, i)))

			warmStart := mat.NewDense(1, d, nil)
			copy(warmStart.RawRowView(0), candidates.RawRowView(i))
			refineOpts.BatchInitialConditions = []*mat.Dense{warmStart}

			ri, err := ACQF(acqf, bounds, 1, numRestarts, refineOpts)
			if err != nil {
				return nil, err
			}
			copy(candidates.RawRowView(i), ri.Candidates.RawRowView(0))
			values[i] = ri.Values[0]
		}
		stop = criterion.Evaluate(values)
		slog.Debug("Completed cyclic pass", "iterations", criterion.Iterations(), "stop", stop)
	}
	return &Result{Candidates: candidates, Values: values}, nil
}

// ACQFList generates one candidate per acquisition function via sequential
// greedy optimization: each function is optimized with all previously
// generated candidates (plus the first function's pre-existing pending
// points) held pending. Every function's pending state is restored before
// returning.
func ACQFList(acqfs []acq.Function, bounds Bounds, numRestarts int, opts *Options) (*Result, error) {
	if len(acqfs) == 0 {
		return nil, ErrEmptyFunctionList
	}
	if opts == nil {
		opts = &Options{}
	}

	basePending := acqfs[0].Pending()
	for _, f := range acqfs {
		defer f.SetPending(f.Pending())
	}

	sub := opts.clone()
	sub.Sequential = false
	sub.ReturnAllRestarts = false

	var candidates *mat.Dense
	values := make([]float64, 0, len(acqfs))
	for i, f := range acqfs {
		if candidates != nil {
			f.SetPending(concatRows(basePending, candidates))
		}
		res, err := ACQF(f, bounds, 1, numRestarts, sub)
		if err != nil {
			return nil, fmt.Errorf("optimize: list entry %d: %w", i, err)
		}
		candidates = appendRows(candidates, res.Candidates)
		values = append(values, res.Values[0])
	}
	return &Result{Candidates: candidates, Values: values}, nil
}

// ACQFMixed optimizes over an enumerated list of fixed-feature assignments,
// useful for mixed discrete/continuous domains. For q=1 the engine runs
// once per assignment and the best by value wins (first occurrence on
// ties). For q>1 candidates are generated by sequential greedy selection
// over the q=1 problem; the returned value is one joint acquisition value
// over the full candidate set, computed with the original pending state
// restored.
func ACQFMixed(acqf acq.Function, bounds Bounds, q, numRestarts int, fixedFeaturesList []map[int]float64, opts *Options) (*Result, error) {
	if len(fixedFeaturesList) == 0 {
		return nil, ErrEmptyFixedFeaturesList
	}
	if opts == nil {
		opts = &Options{}
	}

	if q == 1 {
		return mixedSingle(acqf, bounds, numRestarts, fixedFeaturesList, opts)
	}

	basePending := acqf.Pending()
	defer acqf.SetPending(basePending)

	var candidates *mat.Dense
	for i := 0; i < q; i++ {
		res, err := mixedSingle(acqf, bounds, numRestarts, fixedFeaturesList, opts)
		if err != nil {
			return nil, err
		}
		candidates = appendRows(candidates, res.Candidates)
		acqf.SetPending(concatRows(basePending, candidates))
	}

	acqf.SetPending(basePending)
	jointValue := acqf.Evaluate(candidates)
	return &Result{Candidates: candidates, Values: []float64{jointValue}}, nil
}

func mixedSingle(acqf acq.Function, bounds Bounds, numRestarts int, fixedFeaturesList []map[int]float64, opts *Options) (*Result, error) {
	sub := opts.clone()
	sub.Sequential = false
	sub.ReturnAllRestarts = false

	results := make([]*Result, 0, len(fixedFeaturesList))
	values := make([]float64, 0, len(fixedFeaturesList))
	for i, fixed := range fixedFeaturesList {
		sub.FixedFeatures = fixed
		res, err := ACQF(acqf, bounds, 1, numRestarts, sub)
		if err != nil {
			return nil, fmt.Errorf("optimize: fixed features entry %d: %w", i, err)
		}
		results = append(results, res)
		values = append(values, res.Values[0])
	}
	return results[argmax(values)], nil
}

// ACQFDiscrete optimizes over an explicit finite choice set. Choices are
// scored in chunks of at most maxBatchSize rows to bound evaluation cost.
// For q>1 selection is greedy with pending-point conditioning; with unique
// set, chosen rows are removed from the pool so they cannot repeat. The
// returned values are the q per-selection scores, not a joint value.
func ACQFDiscrete(acqf acq.Function, q int, choices *mat.Dense, maxBatchSize int, unique bool) (*Result, error) {
	if choices == nil {
		return nil, ErrEmptyChoices
	}
	n, d := choices.Dims()
	if n == 0 {
		return nil, ErrEmptyChoices
	}
	if maxBatchSize < 1 {
		maxBatchSize = 2048
	}

	if q == 1 {
		vals := evalChoices(acqf, choices, maxBatchSize)
		best := argmax(vals)
		return &Result{
			Candidates: mat.DenseCopyOf(choices.Slice(best, best+1, 0, d)),
			Values:     []float64{vals[best]},
		}, nil
	}

	basePending := acqf.Pending()
	defer acqf.SetPending(basePending)

	pool := mat.DenseCopyOf(choices)
	var candidates *mat.Dense
	values := make([]float64, 0, q)
	for i := 0; i < q; i++ {
		pr, _ := pool.Dims()
		if pr == 0 {
			return nil, fmt.Errorf("optimize: %d unique choices exhausted after %d selections, need %d", n, i, q)
		}
		vals := evalChoices(acqf, pool, maxBatchSize)
		best := argmax(vals)

		candidates = appendRows(candidates, mat.DenseCopyOf(pool.Slice(best, best+1, 0, d)))
		values = append(values, vals[best])
		acqf.SetPending(concatRows(basePending, candidates))

		if unique {
			pool = removeRow(pool, best)
		}
	}
	return &Result{Candidates: candidates, Values: values}, nil
}

// evalChoices scores each row of pool as a single-point candidate set,
// chunked by maxBatchSize.
func evalChoices(acqf acq.Function, pool *mat.Dense, maxBatchSize int) []float64 {
	n, d := pool.Dims()
	vals := make([]float64, 0, n)
	for start := 0; start < n; start += maxBatchSize {
		end := min(start+maxBatchSize, n)
		sets := make([]*mat.Dense, 0, end-start)
		for i := start; i < end; i++ {
			sets = append(sets, pool.Slice(i, i+1, 0, d).(*mat.Dense))
		}
		vals = append(vals, evalSets(acqf, sets)...)
	}
	return vals
}

// rowsExcept returns a copy of X without row i, or nil when X has one row.
func rowsExcept(X *mat.Dense, i int) *mat.Dense {
	r, d := X.Dims()
	if r <= 1 {
		return nil
	}
	out := mat.NewDense(r-1, d, nil)
	for j, k := 0, 0; j < r; j++ {
		if j == i {
			continue
		}
		copy(out.RawRowView(k), X.RawRowView(j))
		k++
	}
	return out
}

// removeRow returns a copy of X without row i.
func removeRow(X *mat.Dense, i int) *mat.Dense {
	r, d := X.Dims()
	out := mat.NewDense(r-1, d, nil)
	for j, k := 0, 0; j < r; j++ {
		if j == i {
			continue
		}
		copy(out.RawRowView(k), X.RawRowView(j))
		k++
	}
	return out
}
