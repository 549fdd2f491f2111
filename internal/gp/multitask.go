package gp

import (
	"errors"
	"fmt"

	"github.com/cwbudde/bayopt/internal/posterior"
	"gonum.org/v1/gonum/mat"
)

// MultiTaskGP is a Kronecker-structured multi-task GP (intrinsic
// coregionalization model): the covariance between (x, task i) and
// (x', task j) factors as k(x, x') * B[i, j] for a task covariance B.
// Its posterior is represented structurally and sampled via
// posterior.MultitaskGPPosterior rather than through a dense joint
// covariance.
type MultiTaskGP struct {
	kernel    Kernel
	taskCovar *mat.SymDense
	noise     float64

	x    *mat.Dense // n x d
	y    *mat.Dense // n x tasks
	mean []float64  // per-task constant mean
}

// NewMultiTask creates an unfitted multi-task GP.
func NewMultiTask(kernel Kernel, taskCovar *mat.SymDense, noise float64) *MultiTaskGP {
	return &MultiTaskGP{kernel: kernel, taskCovar: taskCovar, noise: noise}
}

// Fit stores the training set. X is n x d, Y is n x tasks.
func (m *MultiTaskGP) Fit(X, Y *mat.Dense) error {
	if X == nil || Y == nil {
		return errors.New("gp: multi-task training data must not be nil")
	}
	n, _ := X.Dims()
	yn, tasks := Y.Dims()
	if n != yn {
		return fmt.Errorf("gp: %d inputs but %d response rows", n, yn)
	}
	if tasks != m.taskCovar.SymmetricDim() {
		return fmt.Errorf("gp: responses have %d tasks, task covariance has %d", tasks, m.taskCovar.SymmetricDim())
	}

	mean := make([]float64, tasks)
	for t := 0; t < tasks; t++ {
		for i := 0; i < n; i++ {
			mean[t] += Y.At(i, t)
		}
		mean[t] /= float64(n)
	}

	m.x = mat.DenseCopyOf(X)
	m.y = mat.DenseCopyOf(Y)
	m.mean = mean
	return nil
}

// NumTasks returns the number of tasks.
func (m *MultiTaskGP) NumTasks() int { return m.taskCovar.SymmetricDim() }

// dataKernel evaluates the data kernel between the rows of A and B.
func (m *MultiTaskGP) dataKernel(A, B *mat.Dense) *mat.Dense {
	ra, _ := A.Dims()
	rb, _ := B.Dims()
	K := mat.NewDense(ra, rb, nil)
	for i := 0; i < ra; i++ {
		ai := A.RawRowView(i)
		for j := 0; j < rb; j++ {
			K.Set(i, j, m.kernel.Eval(ai, B.RawRowView(j)))
		}
	}
	return K
}

func symFromDense(d *mat.Dense) *mat.SymDense {
	n, _ := d.Dims()
	s := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			s.SetSym(i, j, 0.5*(d.At(i, j)+d.At(j, i)))
		}
	}
	return s
}

// Posterior builds the structured posterior at the test inputs Xtest
// (m x d). With observationNoise, samples from the posterior additionally
// carry independent test noise.
func (m *MultiTaskGP) Posterior(Xtest *mat.Dense, observationNoise bool) (*posterior.MultitaskGPPosterior, error) {
	if m.x == nil {
		return nil, errors.New("gp: multi-task model is not fitted")
	}
	n, d := m.x.Dims()
	numTest, dt := Xtest.Dims()
	if dt != d {
		return nil, fmt.Errorf("gp: test inputs have %d features, train has %d", dt, d)
	}
	tasks := m.NumTasks()

	// Stack train above test and build the joint data kernel once; the task
	// factor keeps the full joint covariance Kronecker-structured.
	stacked := mat.NewDense(n+numTest, d, nil)
	stacked.Slice(0, n, 0, d).(*mat.Dense).Copy(m.x)
	stacked.Slice(n, n+numTest, 0, d).(*mat.Dense).Copy(Xtest)

	taskOp := posterior.NewDense(m.taskCovar)
	jointCovar := posterior.NewKronecker(posterior.NewDense(symFromDense(m.dataKernel(stacked, stacked))), taskOp)
	trainTrain := posterior.NewKronecker(posterior.NewDense(symFromDense(m.dataKernel(m.x, m.x))), taskOp)
	testTrain := posterior.NewKronecker(posterior.NewRect(m.dataKernel(Xtest, m.x)), taskOp)

	trainNoise := posterior.NewHomoskedasticDiag(m.noise, n*tasks)
	var testNoise posterior.Operator
	if observationNoise {
		testNoise = posterior.NewHomoskedasticDiag(m.noise, numTest*tasks)
	}

	trainDiff := mat.NewDense(n, tasks, nil)
	for i := 0; i < n; i++ {
		for t := 0; t < tasks; t++ {
			trainDiff.Set(i, t, m.y.At(i, t)-m.mean[t])
		}
	}
	testMean := mat.NewDense(numTest, tasks, nil)
	for i := 0; i < numTest; i++ {
		for t := 0; t < tasks; t++ {
			testMean.Set(i, t, m.mean[t])
		}
	}

	return posterior.NewMultitaskGPPosterior(
		jointCovar, testTrain, trainDiff, testMean, trainTrain, trainNoise, testNoise,
	)
}
