package gp

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/mat"
)

// GP is a single-output Gaussian Process regression model with a constant
// (empirical) mean. It backs the analytic acquisition functions.
type GP struct {
	kernel Kernel
	noise  float64

	x     *mat.Dense
	y     []float64
	mean  float64
	chol  *mat.Cholesky
	alpha *mat.VecDense
}

// New creates an unfitted GP with the given kernel and observation noise
// variance.
func New(kernel Kernel, noise float64) *GP {
	return &GP{kernel: kernel, noise: noise}
}

// Fit conditions the GP on training inputs X (n x d) and responses y.
func (g *GP) Fit(X *mat.Dense, y []float64) error {
	if X == nil {
		return errors.New("gp: training inputs must not be nil")
	}
	n, d := X.Dims()
	if n == 0 || d == 0 {
		return errors.New("gp: training inputs must not be empty")
	}
	if n != len(y) {
		return fmt.Errorf("gp: %d inputs but %d responses", n, len(y))
	}

	mean := 0.0
	for _, v := range y {
		mean += v
	}
	mean /= float64(n)

	K := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		xi := X.RawRowView(i)
		for j := i; j < n; j++ {
			K.SetSym(i, j, g.kernel.Eval(xi, X.RawRowView(j)))
		}
		K.SetSym(i, i, K.At(i, i)+g.noise)
	}

	chol, err := choleskyWithJitter(K)
	if err != nil {
		return fmt.Errorf("gp: factorizing kernel matrix: %w", err)
	}

	centered := mat.NewVecDense(n, nil)
	for i, v := range y {
		centered.SetVec(i, v-mean)
	}
	alpha := mat.NewVecDense(n, nil)
	if err := chol.SolveVecTo(alpha, centered); err != nil {
		return fmt.Errorf("gp: solving for alpha: %w", err)
	}

	g.x = mat.DenseCopyOf(X)
	g.y = append([]float64(nil), y...)
	g.mean = mean
	g.chol = chol
	g.alpha = alpha

	slog.Debug("Fitted GP", "samples", n, "features", d, "noise", g.noise)
	return nil
}

// choleskyWithJitter factorizes K, adding escalating diagonal jitter when
// the matrix is numerically indefinite.
func choleskyWithJitter(K *mat.SymDense) (*mat.Cholesky, error) {
	n := K.SymmetricDim()
	jitter := 0.0
	for attempt := 0; attempt < 6; attempt++ {
		work := mat.NewSymDense(n, nil)
		work.CopySym(K)
		if jitter > 0 {
			for i := 0; i < n; i++ {
				work.SetSym(i, i, work.At(i, i)+jitter)
			}
			slog.Debug("Retrying Cholesky with jitter", "attempt", attempt, "jitter", jitter)
		}
		var chol mat.Cholesky
		if chol.Factorize(work) {
			return &chol, nil
		}
		if jitter == 0 {
			jitter = 1e-10
		} else {
			jitter *= 100
		}
	}
	return nil, errors.New("matrix is not positive definite")
}

// Fitted reports whether the model has been conditioned on data.
func (g *GP) Fitted() bool { return g.chol != nil }

// BestObserved returns the maximum training response.
func (g *GP) BestObserved() float64 {
	best := math.Inf(-1)
	for _, v := range g.y {
		if v > best {
			best = v
		}
	}
	return best
}

// Predict returns the posterior mean and variance at a single point.
func (g *GP) Predict(x []float64) (mean, variance float64) {
	n, _ := g.x.Dims()
	k := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		k.SetVec(i, g.kernel.Eval(x, g.x.RawRowView(i)))
	}
	mean = g.mean + mat.Dot(k, g.alpha)

	v := mat.NewVecDense(n, nil)
	if err := g.chol.SolveVecTo(v, k); err != nil {
		return mean, g.kernel.Eval(x, x)
	}
	variance = g.kernel.Eval(x, x) - mat.Dot(k, v)
	if variance < 0 {
		variance = 0
	}
	return mean, variance
}

// PosteriorCovariance returns the posterior mean vector and covariance
// matrix over the rows of X.
func (g *GP) PosteriorCovariance(X *mat.Dense) ([]float64, *mat.SymDense, error) {
	if !g.Fitted() {
		return nil, nil, errors.New("gp: model is not fitted")
	}
	m, _ := X.Dims()
	n, _ := g.x.Dims()

	kStar := mat.NewDense(m, n, nil)
	for i := 0; i < m; i++ {
		xi := X.RawRowView(i)
		for j := 0; j < n; j++ {
			kStar.Set(i, j, g.kernel.Eval(xi, g.x.RawRowView(j)))
		}
	}

	mu := make([]float64, m)
	for i := 0; i < m; i++ {
		mu[i] = g.mean + mat.Dot(mat.NewVecDense(n, kStar.RawRowView(i)), g.alpha)
	}

	// V = K^-1 K*^T, then cov = K** - K* V.
	V := mat.NewDense(n, m, nil)
	if err := g.chol.SolveTo(V, kStar.T()); err != nil {
		return nil, nil, fmt.Errorf("gp: posterior solve: %w", err)
	}
	cov := mat.NewSymDense(m, nil)
	for i := 0; i < m; i++ {
		xi := X.RawRowView(i)
		for j := i; j < m; j++ {
			var s float64
			for l := 0; l < n; l++ {
				s += kStar.At(i, l) * V.At(l, j)
			}
			cov.SetSym(i, j, g.kernel.Eval(xi, X.RawRowView(j))-s)
		}
	}
	return mu, cov, nil
}

// SampleJoint draws joint posterior samples at the rows of X using the
// provided standard-normal base draws (numSamples x m). The same base draws
// always produce the same samples, which keeps Monte Carlo acquisition
// values deterministic across evaluations.
func (g *GP) SampleJoint(X *mat.Dense, base *mat.Dense) (*mat.Dense, error) {
	m, _ := X.Dims()
	numSamples, c := base.Dims()
	if c != m {
		return nil, fmt.Errorf("gp: base samples have %d columns, expected %d", c, m)
	}

	mu, cov, err := g.PosteriorCovariance(X)
	if err != nil {
		return nil, err
	}
	chol, err := choleskyWithJitter(cov)
	if err != nil {
		return nil, fmt.Errorf("gp: factorizing posterior covariance: %w", err)
	}
	var L mat.TriDense
	chol.LTo(&L)

	out := mat.NewDense(numSamples, m, nil)
	tmp := mat.NewVecDense(m, nil)
	for s := 0; s < numSamples; s++ {
		tmp.MulVec(&L, mat.NewVecDense(m, base.RawRowView(s)))
		row := out.RawRowView(s)
		for i := 0; i < m; i++ {
			row[i] = mu[i] + tmp.AtVec(i)
		}
	}
	return out, nil
}

// Condition returns a new GP additionally conditioned on the observations
// (X, y). The model is refit from scratch; fantasy models in this codebase
// are small enough that this is not worth a low-rank update.
func (g *GP) Condition(X *mat.Dense, y []float64) (*GP, error) {
	n, d := g.x.Dims()
	m, _ := X.Dims()
	allX := mat.NewDense(n+m, d, nil)
	allX.Slice(0, n, 0, d).(*mat.Dense).Copy(g.x)
	allX.Slice(n, n+m, 0, d).(*mat.Dense).Copy(X)
	allY := append(append([]float64(nil), g.y...), y...)

	next := New(g.kernel, g.noise)
	if err := next.Fit(allX, allY); err != nil {
		return nil, err
	}
	return next, nil
}
