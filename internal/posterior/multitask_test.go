package posterior

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// buildTestPosterior constructs a small posterior over 2 train points,
// 2 test points and 2 tasks with an RBF data kernel.
func buildTestPosterior(t *testing.T, withTestNoise bool, trainDiff *mat.Dense) *MultitaskGPPosterior {
	t.Helper()

	rbf := func(a, b float64) float64 {
		d := a - b
		return math.Exp(-0.5 * d * d)
	}
	train := []float64{0.0, 1.0}
	test := []float64{0.5, 1.5}
	all := append(append([]float64(nil), train...), test...)

	kernelSym := func(pts []float64) *mat.SymDense {
		n := len(pts)
		K := mat.NewSymDense(n, nil)
		for i := 0; i < n; i++ {
			for j := i; j < n; j++ {
				K.SetSym(i, j, rbf(pts[i], pts[j]))
			}
		}
		return K
	}
	kernelRect := func(a, b []float64) *mat.Dense {
		K := mat.NewDense(len(a), len(b), nil)
		for i := range a {
			for j := range b {
				K.Set(i, j, rbf(a[i], b[j]))
			}
		}
		return K
	}

	taskCovar := NewDense(mat.NewSymDense(2, []float64{1, 0.5, 0.5, 1}))

	jointCovar := NewKronecker(NewDense(kernelSym(all)), taskCovar)
	trainTrain := NewKronecker(NewDense(kernelSym(train)), taskCovar)
	testTrain := NewKronecker(NewRect(kernelRect(test, train)), taskCovar)

	trainNoise := NewHomoskedasticDiag(0.1, 4)
	var testNoise Operator
	if withTestNoise {
		testNoise = NewHomoskedasticDiag(0.1, 4)
	}

	if trainDiff == nil {
		trainDiff = mat.NewDense(2, 2, []float64{0.3, -0.2, 0.1, 0.4})
	}
	testMean := mat.NewDense(2, 2, []float64{1.0, 2.0, 1.0, 2.0})

	p, err := NewMultitaskGPPosterior(jointCovar, testTrain, trainDiff, testMean, trainTrain, trainNoise, testNoise)
	if err != nil {
		t.Fatalf("NewMultitaskGPPosterior failed: %v", err)
	}
	return p
}

func TestNewMultitaskGPPosterior_InfersTasks(t *testing.T) {
	p := buildTestPosterior(t, false, nil)
	if p.NumTasks() != 2 {
		t.Errorf("Expected 2 tasks, got %d", p.NumTasks())
	}
	if p.NumTest() != 2 {
		t.Errorf("Expected 2 test points, got %d", p.NumTest())
	}
	if p.ObservationNoise() {
		t.Error("Observation noise should be off")
	}
}

func TestNewMultitaskGPPosterior_RejectsNonKroneckerCross(t *testing.T) {
	trainDiff := mat.NewDense(2, 2, nil)
	testMean := mat.NewDense(2, 2, nil)
	cross := NewRect(mat.NewDense(4, 4, nil))
	joint := NewHomoskedasticDiag(1, 8)
	trainTrain := NewHomoskedasticDiag(1, 4)
	trainNoise := NewHomoskedasticDiag(0.1, 4)

	_, err := NewMultitaskGPPosterior(joint, cross, trainDiff, testMean, trainTrain, trainNoise, nil)
	if err == nil {
		t.Fatal("Expected error for non-Kronecker cross covariance")
	}
}

func TestNewMultitaskGPPosterior_SizeValidation(t *testing.T) {
	// Wrong trainDiff task count against the inferred 2 tasks.
	rbfSym := mat.NewSymDense(2, []float64{1, 0.5, 0.5, 1})
	taskCovar := NewDense(rbfSym)
	cross := NewKronecker(NewRect(mat.NewDense(2, 2, []float64{1, 0, 0, 1})), taskCovar)
	joint := NewHomoskedasticDiag(1, 8)
	trainTrain := NewHomoskedasticDiag(1, 4)
	trainNoise := NewHomoskedasticDiag(0.1, 4)

	badDiff := mat.NewDense(2, 3, nil)
	testMean := mat.NewDense(2, 2, nil)
	if _, err := NewMultitaskGPPosterior(joint, cross, badDiff, testMean, trainTrain, trainNoise, nil); err == nil {
		t.Error("Expected error for mismatched train residual tasks")
	}

	goodDiff := mat.NewDense(2, 2, nil)
	badNoise := NewHomoskedasticDiag(0.1, 3)
	if _, err := NewMultitaskGPPosterior(joint, cross, goodDiff, testMean, trainTrain, badNoise, nil); err == nil {
		t.Error("Expected error for mismatched train noise size")
	}
}

func TestBaseSampleSize(t *testing.T) {
	// joint 8 + train noise 4
	p := buildTestPosterior(t, false, nil)
	if got := p.BaseSampleSize(); got != 12 {
		t.Errorf("Expected base sample size 12, got %d", got)
	}

	// plus test noise 4
	p = buildTestPosterior(t, true, nil)
	if got := p.BaseSampleSize(); got != 16 {
		t.Errorf("Expected base sample size 16 with test noise, got %d", got)
	}
}

func TestRsample_Shapes(t *testing.T) {
	p := buildTestPosterior(t, true, nil)
	p.SetRand(rand.New(rand.NewSource(1)))

	samples, err := p.Rsample(3, nil)
	if err != nil {
		t.Fatalf("Rsample failed: %v", err)
	}
	if len(samples) != 3 {
		t.Fatalf("Expected 3 samples, got %d", len(samples))
	}
	for i, s := range samples {
		r, c := s.Dims()
		if r != 2 || c != 2 {
			t.Errorf("Sample %d is %dx%d, want 2x2 (test x tasks)", i, r, c)
		}
	}
}

func TestRsample_ZeroBaseZeroResidualIsMean(t *testing.T) {
	zeroDiff := mat.NewDense(2, 2, nil)
	p := buildTestPosterior(t, false, zeroDiff)

	base := mat.NewDense(1, p.BaseSampleSize(), nil) // all zeros
	samples, err := p.Rsample(1, base)
	if err != nil {
		t.Fatalf("Rsample failed: %v", err)
	}

	want := mat.NewDense(2, 2, []float64{1.0, 2.0, 1.0, 2.0})
	matricesClose(t, samples[0], want, 1e-10, "zero-base sample vs test mean")
}

func TestRsample_DeterministicWithFullBase(t *testing.T) {
	p := buildTestPosterior(t, false, nil)

	size := p.BaseSampleSize()
	rng := rand.New(rand.NewSource(5))
	data := make([]float64, 2*size)
	for i := range data {
		data[i] = rng.NormFloat64()
	}

	first, err := p.Rsample(2, mat.NewDense(2, size, append([]float64(nil), data...)))
	if err != nil {
		t.Fatalf("Rsample failed: %v", err)
	}
	second, err := p.Rsample(2, mat.NewDense(2, size, append([]float64(nil), data...)))
	if err != nil {
		t.Fatalf("Rsample failed: %v", err)
	}
	for i := range first {
		matricesClose(t, first[i], second[i], 0, "repeated full-base samples")
	}
}

func TestRsample_NaturalShapeIsPadded(t *testing.T) {
	p := buildTestPosterior(t, false, nil)
	p.SetRand(rand.New(rand.NewSource(2)))

	// numTest * numTasks = 4, the shape an upstream sampler would produce
	natural := mat.NewDense(2, 4, []float64{
		0.1, -0.3, 0.5, 0.2,
		-0.1, 0.4, 0.0, 0.3,
	})
	samples, err := p.Rsample(2, natural)
	if err != nil {
		t.Fatalf("Rsample with natural-shape base failed: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("Expected 2 samples, got %d", len(samples))
	}
	for i, s := range samples {
		r, c := s.Dims()
		if r != 2 || c != 2 {
			t.Errorf("Sample %d is %dx%d, want 2x2", i, r, c)
		}
	}
}

func TestRsample_IncompatibleShapeIsRedrawn(t *testing.T) {
	p := buildTestPosterior(t, false, nil)
	p.SetRand(rand.New(rand.NewSource(3)))

	// Neither the required size nor the natural test-only size.
	odd := mat.NewDense(2, 7, nil)
	samples, err := p.Rsample(2, odd)
	if err != nil {
		t.Fatalf("Rsample with incompatible base failed: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("Expected 2 samples, got %d", len(samples))
	}
}

func TestRsample_WrongRowCount(t *testing.T) {
	p := buildTestPosterior(t, false, nil)

	base := mat.NewDense(3, p.BaseSampleSize(), nil)
	if _, err := p.Rsample(2, base); err == nil {
		t.Fatal("Expected error for mismatched sample count")
	}
}

func TestRsample_InvalidCount(t *testing.T) {
	p := buildTestPosterior(t, false, nil)
	if _, err := p.Rsample(0, nil); err == nil {
		t.Fatal("Expected error for zero samples")
	}
}

func TestRsample_MeanConvergence(t *testing.T) {
	// With many fresh samples the empirical mean approaches the posterior
	// mean, which has the Matheron correction pulled toward the residuals.
	p := buildTestPosterior(t, false, nil)
	p.SetRand(rand.New(rand.NewSource(7)))

	const n = 4000
	samples, err := p.Rsample(n, nil)
	if err != nil {
		t.Fatalf("Rsample failed: %v", err)
	}

	avg := mat.NewDense(2, 2, nil)
	for _, s := range samples {
		avg.Add(avg, s)
	}
	avg.Scale(1.0/float64(n), avg)

	// The analytic posterior mean: testMean + K_st (K_tt + noise)^-1 diff
	diff := flattenRowMajor(p.trainDiff)
	solved := make([]float64, 4)
	if err := NewSum(p.trainTrainCovar, p.trainNoise).SolveVec(solved, diff); err != nil {
		t.Fatalf("Reference solve failed: %v", err)
	}
	corr := make([]float64, 4)
	p.testTrainCovar.MulVec(corr, solved)

	want := mat.NewDense(2, 2, append([]float64(nil), corr...))
	want.Add(want, p.testMean)

	matricesClose(t, avg, want, 0.1, "empirical vs analytic posterior mean")
}
