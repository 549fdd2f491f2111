package optimize

import (
	"fmt"
	"log/slog"

	"github.com/cwbudde/bayopt/internal/acq"
	"gonum.org/v1/gonum/mat"
)

// ACQF generates a set of q candidates via multi-start optimization of an
// acquisition function over the given bounds.
//
// In the default joint mode all q candidates are optimized simultaneously
// from numRestarts starting sets and the best restart is returned (ties
// broken by lowest index). With opts.Sequential the q candidates are
// generated one at a time, each conditioned on the previous ones through
// the acquisition function's pending points; that state is always restored
// to its value at entry before returning.
func ACQF(acqf acq.Function, bounds Bounds, q, numRestarts int, opts *Options) (*Result, error) {
	if opts == nil {
		opts = &Options{}
	}
	if err := bounds.Validate(); err != nil {
		return nil, err
	}
	if q < 1 || numRestarts < 1 {
		return nil, fmt.Errorf("optimize: q (%d) and restart count (%d) must be positive", q, numRestarts)
	}

	// Trivial case: every dimension fixed, nothing to search.
	if len(opts.FixedFeatures) == bounds.Dim() {
		return fullyFixedResult(acqf, bounds, q, opts.FixedFeatures)
	}

	if opts.Sequential && q > 1 {
		return optimizeSequential(acqf, bounds, q, numRestarts, opts)
	}
	return optimizeJoint(acqf, bounds, q, numRestarts, opts)
}

// fullyFixedResult builds the single implied point, replicates it q times
// and evaluates once. No local optimizer runs.
func fullyFixedResult(acqf acq.Function, bounds Bounds, q int, fixed map[int]float64) (*Result, error) {
	d := bounds.Dim()
	point := make([]float64, d)
	for i := 0; i < d; i++ {
		v, ok := fixed[i]
		if !ok {
			return nil, fmt.Errorf("optimize: fixed features cover all %d dimensions but dimension %d is missing", d, i)
		}
		point[i] = v
	}
	X := mat.NewDense(q, d, nil)
	for r := 0; r < q; r++ {
		copy(X.RawRowView(r), point)
	}
	return &Result{Candidates: X, Values: []float64{acqf.Evaluate(X)}}, nil
}

// optimizeSequential solves q single-candidate subproblems in a loop,
// accumulating chosen candidates into the acquisition function's pending
// points between iterations. Callers reuse the same acquisition function
// across calls, so the pending state held at entry is restored even on
// error paths.
func optimizeSequential(acqf acq.Function, bounds Bounds, q, numRestarts int, opts *Options) (*Result, error) {
	if opts.ReturnAllRestarts {
		return nil, ErrSequentialAllRestarts
	}
	if _, oneShot := acqf.(acq.OneShot); oneShot {
		return nil, ErrSequentialOneShot
	}

	basePending := acqf.Pending()
	defer acqf.SetPending(basePending)

	sub := opts.clone()
	sub.Sequential = false
	sub.BatchInitialConditions = nil
	sub.ReturnAllRestarts = false

	var candidates *mat.Dense
	values := make([]float64, 0, q)
	for i := 0; i < q; i++ {
		res, err := optimizeJoint(acqf, bounds, 1, numRestarts, sub)
		if err != nil {
			return nil, err
		}
		candidates = appendRows(candidates, res.Candidates)
		values = append(values, res.Values[0])
		acqf.SetPending(concatRows(basePending, candidates))
		slog.Debug("Generated sequential candidate", "index", i+1, "of", q)
	}
	return &Result{Candidates: candidates, Values: values}, nil
}

// optimizeJoint runs the multi-start joint optimization: initial conditions,
// batched dispatch to the local optimizer, post-processing, selection and
// one-shot extraction.
func optimizeJoint(acqf acq.Function, bounds Bounds, q, numRestarts int, opts *Options) (*Result, error) {
	ics := opts.BatchInitialConditions
	if ics == nil {
		if opts.RawSamples <= 0 {
			return nil, ErrMissingRawSamples
		}
		icGen := opts.ICGen
		if icGen == nil {
			if _, oneShot := acqf.(acq.OneShot); oneShot {
				icGen = GenOneShotInitialConditions
			} else {
				icGen = GenBatchInitialConditions
			}
		}
		var err error
		ics, err = icGen(acqf, bounds, q, numRestarts, opts.RawSamples, opts.FixedFeatures, opts.Options, opts.Inequality, opts.Equality)
		if err != nil {
			return nil, err
		}
	}

	gen := opts.Gen
	if gen == nil {
		gen = GenCandidatesGonum
	}
	genOptions := filterGenOptions(opts.Options)
	batchLimit := intOption(opts.Options, "batch_limit", numRestarts)
	if batchLimit < 1 {
		batchLimit = numRestarts
	}

	var candidates []*mat.Dense
	var values []float64
	numBatches := (len(ics) + batchLimit - 1) / batchLimit
	for start := 0; start < len(ics); start += batchLimit {
		end := min(start+batchLimit, len(ics))
		batchCands, batchVals, err := gen(ics[start:end], acqf, bounds, genOptions, opts.Inequality, opts.Equality, opts.FixedFeatures)
		if err != nil {
			return nil, fmt.Errorf("optimize: candidate generation failed: %w", err)
		}
		candidates = append(candidates, batchCands...)
		values = append(values, batchVals...)
		slog.Debug("Generated candidate batch", "batch", start/batchLimit+1, "of", numBatches)
	}

	if opts.PostProcess != nil {
		candidates = opts.PostProcess(candidates)
	}

	oneShot, isOneShot := acqf.(acq.OneShot)
	extract := func(X *mat.Dense) *mat.Dense {
		if isOneShot && !opts.ReturnFullTree {
			return oneShot.ExtractCandidates(X)
		}
		return X
	}

	if !opts.ReturnAllRestarts {
		best := argmax(values)
		return &Result{
			Candidates: extract(candidates[best]),
			Values:     []float64{values[best]},
		}, nil
	}

	restarts := make([]Restart, len(candidates))
	for i := range candidates {
		restarts[i] = Restart{Candidates: extract(candidates[i]), Value: values[i]}
	}
	return &Result{Restarts: restarts}, nil
}

// appendRows appends the rows of add to dst, creating dst when nil.
func appendRows(dst, add *mat.Dense) *mat.Dense {
	if add == nil {
		return dst
	}
	if dst == nil {
		return mat.DenseCopyOf(add)
	}
	dr, d := dst.Dims()
	ar, _ := add.Dims()
	out := mat.NewDense(dr+ar, d, nil)
	out.Slice(0, dr, 0, d).(*mat.Dense).Copy(dst)
	out.Slice(dr, dr+ar, 0, d).(*mat.Dense).Copy(add)
	return out
}

// concatRows returns base with extra appended, handling nil on either side.
func concatRows(base, extra *mat.Dense) *mat.Dense {
	if base == nil {
		return extra
	}
	return appendRows(mat.DenseCopyOf(base), extra)
}
