package posterior

import (
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/mat"
)

// MultitaskGPPosterior is the posterior over test-point outputs of a
// Kronecker-structured multi-task GP. Sampling is reparameterized through
// three independent noise sources (joint covariance, training noise and
// optionally test observation noise) and conditioned on the training data
// via Matheron's rule, so the full joint covariance is only ever accessed
// through its root and matrix-free solves.
type MultitaskGPPosterior struct {
	jointCovar      Operator // covariance over stacked train+test points, size tasks*(train+test)
	testTrainCovar  Operator // cross covariance, tasks*test x tasks*train
	trainDiff       *mat.Dense
	testMean        *mat.Dense
	trainTrainCovar Operator
	trainNoise      Operator
	testNoise       Operator // nil when observation noise is not modeled

	numTrain int
	numTasks int

	rng *rand.Rand
}

// NewMultitaskGPPosterior builds the posterior from its structured pieces.
// trainDiff is the numTrain x numTasks matrix of train responses minus the
// train mean; testMean is numTest x numTasks. testNoise may be nil, in which
// case samples carry no observation noise. The task count is inferred from
// the trailing Kronecker factor of the test-train cross covariance.
func NewMultitaskGPPosterior(
	jointCovar, testTrainCovar Operator,
	trainDiff, testMean *mat.Dense,
	trainTrainCovar, trainNoise, testNoise Operator,
) (*MultitaskGPPosterior, error) {
	kron, ok := testTrainCovar.(*Kronecker)
	if !ok {
		return nil, fmt.Errorf("posterior: test-train covariance must be a Kronecker operator to infer the task count, got %T", testTrainCovar)
	}
	_, numTasks := kron.B.Dims()

	numTrain, t := trainDiff.Dims()
	if t != numTasks {
		return nil, fmt.Errorf("posterior: train residual has %d tasks, cross covariance implies %d", t, numTasks)
	}
	numTest, t := testMean.Dims()
	if t != numTasks {
		return nil, fmt.Errorf("posterior: test mean has %d tasks, cross covariance implies %d", t, numTasks)
	}

	js, _ := jointCovar.Dims()
	if js != numTasks*(numTrain+numTest) {
		return nil, fmt.Errorf("posterior: joint covariance size %d does not match tasks*(train+test)=%d", js, numTasks*(numTrain+numTest))
	}
	tn, _ := trainNoise.Dims()
	if tn != numTasks*numTrain {
		return nil, fmt.Errorf("posterior: train noise size %d does not match tasks*train=%d", tn, numTasks*numTrain)
	}
	if testNoise != nil {
		ts, _ := testNoise.Dims()
		if ts != numTasks*numTest {
			return nil, fmt.Errorf("posterior: test noise size %d does not match tasks*test=%d", ts, numTasks*numTest)
		}
	}

	return &MultitaskGPPosterior{
		jointCovar:      jointCovar,
		testTrainCovar:  testTrainCovar,
		trainDiff:       trainDiff,
		testMean:        testMean,
		trainTrainCovar: trainTrainCovar,
		trainNoise:      trainNoise,
		testNoise:       testNoise,
		numTrain:        numTrain,
		numTasks:        numTasks,
		rng:             rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// SetRand replaces the generator used for freshly drawn base samples.
func (p *MultitaskGPPosterior) SetRand(rng *rand.Rand) { p.rng = rng }

// NumTasks returns the number of tasks.
func (p *MultitaskGPPosterior) NumTasks() int { return p.numTasks }

// NumTest returns the number of test points.
func (p *MultitaskGPPosterior) NumTest() int {
	n, _ := p.testMean.Dims()
	return n
}

// ObservationNoise reports whether samples include test observation noise.
func (p *MultitaskGPPosterior) ObservationNoise() bool { return p.testNoise != nil }

// BaseSampleSize returns the number of standard-normal draws needed per
// sample: the joint size plus the training-noise size, plus the test-noise
// size when observation noise is modeled. This is larger than the test size
// alone, which upstream samplers are typically unaware of.
func (p *MultitaskGPPosterior) BaseSampleSize() int {
	js, _ := p.jointCovar.Dims()
	tn, _ := p.trainNoise.Dims()
	size := js + tn
	if p.testNoise != nil {
		ts, _ := p.testNoise.Dims()
		size += ts
	}
	return size
}

// prepareBaseSamples validates or repairs caller-provided base samples and
// splits them into the three independent noise sources. A numSamples x
// (numTest*numTasks) matrix is accepted by padding with fresh normals;
// any other mismatched shape is discarded and redrawn.
func (p *MultitaskGPPosterior) prepareBaseSamples(numSamples int, base *mat.Dense) (joint, noise, testNoise *mat.Dense, err error) {
	js, _ := p.jointCovar.Dims()
	tn, _ := p.trainNoise.Dims()
	tns := 0
	if p.testNoise != nil {
		tns, _ = p.testNoise.Dims()
	}
	required := js + tn + tns

	if base != nil {
		r, c := base.Dims()
		if r != numSamples {
			return nil, nil, nil, fmt.Errorf("posterior: base samples have %d rows, expected sample count %d", r, numSamples)
		}
		if c != required {
			natural := p.NumTest() * p.numTasks
			if c == natural {
				// Upstream sampler sized its draws for the test points only;
				// keep them for the head of the joint segment and pad the rest.
				padded := mat.NewDense(numSamples, required, nil)
				for i := 0; i < numSamples; i++ {
					row := padded.RawRowView(i)
					copy(row, base.RawRowView(i))
					for j := c; j < required; j++ {
						row[j] = p.rng.NormFloat64()
					}
				}
				base = padded
			} else {
				slog.Debug("Discarding incompatible base samples",
					"provided", c, "required", required, "natural", natural)
				base = nil
			}
		}
	}

	if base == nil {
		base = mat.NewDense(numSamples, required, nil)
		for i := 0; i < numSamples; i++ {
			row := base.RawRowView(i)
			for j := range row {
				row[j] = p.rng.NormFloat64()
			}
		}
	}

	joint = base.Slice(0, numSamples, 0, js).(*mat.Dense)
	noise = base.Slice(0, numSamples, js, js+tn).(*mat.Dense)
	if tns > 0 {
		testNoise = base.Slice(0, numSamples, js+tn, required).(*mat.Dense)
	}
	return joint, noise, testNoise, nil
}

// drawFromBaseCovar reparameterizes standard-normal draws z through a root
// factor R of the covariance as R*z. Draws beyond the root's rank are
// truncated; a root wider than the draws is a shape error.
func drawFromBaseCovar(c Operator, z []float64) ([]float64, error) {
	root, err := c.Root()
	if err != nil {
		return nil, err
	}
	rows, cols := root.Dims()
	if cols < len(z) {
		z = z[:cols]
	} else if cols > len(z) {
		return nil, fmt.Errorf("posterior: root rank %d exceeds the %d provided base samples", cols, len(z))
	}
	dst := make([]float64, rows)
	root.MulVec(dst, z)
	return dst, nil
}

// Rsample draws numSamples reparameterized samples from the posterior.
// base may be nil (fresh standard normals are drawn) or a numSamples x
// BaseSampleSize() matrix for deterministic sampling. Each returned sample
// is a numTest x numTasks matrix.
func (p *MultitaskGPPosterior) Rsample(numSamples int, base *mat.Dense) ([]*mat.Dense, error) {
	if numSamples < 1 {
		return nil, fmt.Errorf("posterior: sample count must be positive, got %d", numSamples)
	}
	jointBase, noiseBase, testNoiseBase, err := p.prepareBaseSamples(numSamples, base)
	if err != nil {
		return nil, err
	}

	nObs := p.numTasks * p.numTrain
	numTest := p.NumTest()

	// Residual target: train responses minus mean, flattened with tasks
	// varying fastest to match the Kronecker index convention.
	diff := flattenRowMajor(p.trainDiff)

	trainPlusNoise := NewSum(p.trainTrainCovar, p.trainNoise)

	out := make([]*mat.Dense, numSamples)
	for s := 0; s < numSamples; s++ {
		jointSample, err := drawFromBaseCovar(p.jointCovar, jointBase.RawRowView(s))
		if err != nil {
			return nil, err
		}
		noiseSample, err := drawFromBaseCovar(p.trainNoise, noiseBase.RawRowView(s))
		if err != nil {
			return nil, err
		}

		obs := jointSample[:nObs]
		test := jointSample[nObs:]
		for i := range obs {
			obs[i] += noiseSample[i]
		}

		resid := make([]float64, nObs)
		for i := range resid {
			resid[i] = diff[i] - obs[i]
		}

		// Conditioning step: a true solve against train covariance plus
		// noise, never a plain multiply.
		solved := make([]float64, nObs)
		if err := trainPlusNoise.SolveVec(solved, resid); err != nil {
			return nil, err
		}

		correction := make([]float64, len(test))
		p.testTrainCovar.MulVec(correction, solved)
		for i := range test {
			test[i] += correction[i]
		}

		if p.testNoise != nil {
			tn, err := drawFromBaseCovar(p.testNoise, testNoiseBase.RawRowView(s))
			if err != nil {
				return nil, err
			}
			for i := range test {
				test[i] += tn[i]
			}
		}

		sample := mat.NewDense(numTest, p.numTasks, test)
		sample.Add(sample, p.testMean)
		out[s] = sample
	}
	return out, nil
}

func flattenRowMajor(m *mat.Dense) []float64 {
	r, c := m.Dims()
	out := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		out = append(out, m.RawRowView(i)...)
	}
	return out
}
