package optimize

import (
	"fmt"
	"time"

	"github.com/cwbudde/bayopt/internal/acq"
	exprand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"
	"gonum.org/v1/gonum/stat/distmv"
	"gonum.org/v1/gonum/stat/samplemv"
)

// GenInitialConditionsFunc produces starting candidate sets for multi-start
// optimization: numRestarts sets of q points each.
type GenInitialConditionsFunc func(
	acqf acq.Function,
	bounds Bounds,
	q, numRestarts, rawSamples int,
	fixed map[int]float64,
	options map[string]any,
	inequality, equality []Constraint,
) ([]*mat.Dense, error)

// GenBatchInitialConditions is the default initial condition generator:
// rawSamples low-discrepancy candidate sets, scored in chunks bounded by
// the init_batch_limit option, with the top numRestarts sets kept. A "seed"
// option makes generation deterministic.
func GenBatchInitialConditions(
	acqf acq.Function,
	bounds Bounds,
	q, numRestarts, rawSamples int,
	fixed map[int]float64,
	options map[string]any,
	inequality, equality []Constraint,
) ([]*mat.Dense, error) {
	if rawSamples < numRestarts {
		return nil, fmt.Errorf("optimize: raw samples %d must be at least the restart count %d", rawSamples, numRestarts)
	}
	seed := int64Option(options, "seed", time.Now().UnixNano())
	src := exprand.NewSource(uint64(seed))

	d := bounds.Dim()
	total := rawSamples * q
	pts := quasiRandomPoints(src, bounds, total)
	constrainPoints(pts, src, bounds, fixed, inequality, equality)

	raw := make([]*mat.Dense, rawSamples)
	for i := range raw {
		raw[i] = mat.DenseCopyOf(pts.Slice(i*q, (i+1)*q, 0, d))
	}

	// Score the raw sets in bounded chunks; a large raw-sample count can
	// otherwise make posterior-backed acquisition evaluation expensive per
	// batch.
	initBatchLimit := intOption(options, "init_batch_limit", rawSamples)
	vals := make([]float64, 0, rawSamples)
	for start := 0; start < rawSamples; start += initBatchLimit {
		end := min(start+initBatchLimit, rawSamples)
		vals = append(vals, evalSets(acqf, raw[start:end])...)
	}

	ics := make([]*mat.Dense, 0, numRestarts)
	for _, i := range topIndices(vals, numRestarts) {
		ics = append(ics, raw[i])
	}
	return ics, nil
}

// GenOneShotInitialConditions seeds one-shot acquisition functions: the
// generated sets span the full augmented tree (actual candidates plus
// fantasy solutions) so the local optimizer searches the joint space.
func GenOneShotInitialConditions(
	acqf acq.Function,
	bounds Bounds,
	q, numRestarts, rawSamples int,
	fixed map[int]float64,
	options map[string]any,
	inequality, equality []Constraint,
) ([]*mat.Dense, error) {
	os, ok := acqf.(acq.OneShot)
	if !ok {
		return GenBatchInitialConditions(acqf, bounds, q, numRestarts, rawSamples, fixed, options, inequality, equality)
	}
	return GenBatchInitialConditions(acqf, bounds, os.AugmentedSize(q), numRestarts, rawSamples, fixed, options, inequality, equality)
}

// quasiRandomPoints draws n points within bounds from an Owen-scrambled
// Halton sequence. The scrambling randomness comes from src, so a seeded
// source makes the draws reproducible.
func quasiRandomPoints(src exprand.Source, bounds Bounds, n int) *mat.Dense {
	d := bounds.Dim()
	bnds := make([]r1.Interval, d)
	for i := range bnds {
		bnds[i] = r1.Interval{Min: bounds.Lower[i], Max: bounds.Upper[i]}
	}
	sampler := samplemv.Halton{Kind: samplemv.Owen, Q: distmv.NewUniform(bnds, src), Src: src}
	pts := mat.NewDense(n, d, nil)
	sampler.Sample(pts)
	return pts
}

// constrainPoints substitutes fixed features into every row of pts and,
// under linear constraints, rejection-samples infeasible rows from further
// quasi-random draws with a bounded number of tries. The last draw is kept
// when no feasible point is found, leaving repair to the local optimizer's
// penalty terms.
func constrainPoints(pts *mat.Dense, src exprand.Source, bounds Bounds, fixed map[int]float64, inequality, equality []Constraint) {
	const maxTries = 100
	n, _ := pts.Dims()
	constrained := len(inequality) > 0 || len(equality) > 0

	var spare *mat.Dense
	spareAt := n
	for r := 0; r < n; r++ {
		row := pts.RawRowView(r)
		for dim, val := range fixed {
			row[dim] = val
		}
		if !constrained || feasible(row, inequality, equality) {
			continue
		}
		for try := 0; try < maxTries; try++ {
			if spareAt >= n {
				spare = quasiRandomPoints(src, bounds, n)
				spareAt = 0
			}
			copy(row, spare.RawRowView(spareAt))
			spareAt++
			for dim, val := range fixed {
				row[dim] = val
			}
			if feasible(row, inequality, equality) {
				break
			}
		}
	}
}

func feasible(x []float64, inequality, equality []Constraint) bool {
	const tol = 1e-8
	for _, c := range inequality {
		if c.Slack(x) < -tol {
			return false
		}
	}
	for _, c := range equality {
		if s := c.Slack(x); s < -tol || s > tol {
			return false
		}
	}
	return true
}
