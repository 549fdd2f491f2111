package acq

import (
	"math"
	"math/rand"

	"github.com/cwbudde/bayopt/internal/gp"
	"gonum.org/v1/gonum/mat"
)

// QExpectedImprovement is a Monte Carlo EI over candidate sets of any size.
// Pending points are appended to the set before sampling, so already
// committed candidates are accounted for when scoring further ones. Base
// draws are regenerated from a fixed seed for every evaluation, which keeps
// the criterion deterministic for the local optimizer.
type QExpectedImprovement struct {
	PendingState
	Model      *gp.GP
	Best       float64
	NumSamples int
	Seed       int64
}

// NewQExpectedImprovement creates a MC-EI acquisition with the given sample
// count and base-sample seed.
func NewQExpectedImprovement(model *gp.GP, best float64, numSamples int, seed int64) *QExpectedImprovement {
	return &QExpectedImprovement{Model: model, Best: best, NumSamples: numSamples, Seed: seed}
}

func (q *QExpectedImprovement) Evaluate(X *mat.Dense) float64 {
	all := WithPending(q, X)
	n, _ := all.Dims()

	base := normalDraws(q.Seed, q.NumSamples, n)
	samples, err := q.Model.SampleJoint(all, base)
	if err != nil {
		return math.Inf(-1)
	}

	var total float64
	for s := 0; s < q.NumSamples; s++ {
		row := samples.RawRowView(s)
		best := math.Inf(-1)
		for _, v := range row {
			if v > best {
				best = v
			}
		}
		total += math.Max(best-q.Best, 0)
	}
	return total / float64(q.NumSamples)
}

// KnowledgeGradient is a one-shot acquisition: the optimization tree for q
// candidates is augmented with NumFantasies fantasy solutions, optimized
// jointly, and reduced back to the real candidates afterwards. The value of
// a full tree is the average posterior mean attained at each fantasy
// solution under the model conditioned on a fantasized observation of the
// candidates.
type KnowledgeGradient struct {
	PendingState
	Model        *gp.GP
	NumFantasies int
	Seed         int64
}

// NewKnowledgeGradient creates a one-shot KG acquisition.
func NewKnowledgeGradient(model *gp.GP, numFantasies int, seed int64) *KnowledgeGradient {
	return &KnowledgeGradient{Model: model, NumFantasies: numFantasies, Seed: seed}
}

// AugmentedSize returns q plus one fantasy solution per fantasy sample.
func (k *KnowledgeGradient) AugmentedSize(q int) int { return q + k.NumFantasies }

// ExtractCandidates returns the leading rows of the tree, dropping the
// fantasy solutions.
func (k *KnowledgeGradient) ExtractCandidates(full *mat.Dense) *mat.Dense {
	r, d := full.Dims()
	q := r - k.NumFantasies
	if q < 1 {
		q = r
	}
	return mat.DenseCopyOf(full.Slice(0, q, 0, d))
}

func (k *KnowledgeGradient) Evaluate(full *mat.Dense) float64 {
	r, d := full.Dims()
	q := r - k.NumFantasies
	if q < 1 {
		return math.Inf(-1)
	}
	cand := WithPending(k, mat.DenseCopyOf(full.Slice(0, q, 0, d)))

	n, _ := cand.Dims()
	base := normalDraws(k.Seed, k.NumFantasies, n)
	fantasyY, err := k.Model.SampleJoint(cand, base)
	if err != nil {
		return math.Inf(-1)
	}

	var total float64
	for j := 0; j < k.NumFantasies; j++ {
		cond, err := k.Model.Condition(cand, fantasyY.RawRowView(j))
		if err != nil {
			return math.Inf(-1)
		}
		mean, _ := cond.Predict(full.RawRowView(q + j))
		total += mean
	}
	return total / float64(k.NumFantasies)
}

// normalDraws generates a deterministic rows x cols matrix of standard
// normals from the given seed.
func normalDraws(seed int64, rows, cols int) *mat.Dense {
	rng := rand.New(rand.NewSource(seed))
	out := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		row := out.RawRowView(i)
		for j := range row {
			row[j] = rng.NormFloat64()
		}
	}
	return out
}
