package posterior

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Operator is a structured covariance-like matrix accessed only through
// multiplies, a root factor and linear solves. Implementations must never
// materialize composite structures densely.
type Operator interface {
	// Dims returns the number of rows and columns.
	Dims() (r, c int)

	// MulVec computes dst = C * x. dst must have length r, x length c.
	MulVec(dst, x []float64)

	// Root returns a factor R with R*R^T approximately equal to C.
	// Returns ErrNoRoot for operators without a closed-form factor.
	Root() (Operator, error)

	// SolveVec solves C * dst = b.
	// Returns ErrNoSolve for operators that cannot solve.
	SolveVec(dst, b []float64) error
}

// ErrNoRoot is returned by operators without a root decomposition.
var ErrNoRoot = errors.New("posterior: root decomposition unavailable for this operator")

// ErrNoSolve is returned by operators that cannot perform linear solves.
var ErrNoSolve = errors.New("posterior: linear solve unavailable for this operator")

// Dense wraps a symmetric positive (semi-)definite matrix. The root is a
// Cholesky factor, computed lazily with escalating diagonal jitter when the
// matrix is only semi-definite.
type Dense struct {
	m    *mat.SymDense
	root *mat.TriDense
	chol *mat.Cholesky
}

// NewDense creates a dense covariance operator.
func NewDense(m *mat.SymDense) *Dense {
	return &Dense{m: m}
}

func (d *Dense) Dims() (int, int) {
	n := d.m.SymmetricDim()
	return n, n
}

func (d *Dense) MulVec(dst, x []float64) {
	v := mat.NewVecDense(len(dst), dst)
	v.MulVec(d.m, mat.NewVecDense(len(x), x))
}

func (d *Dense) Root() (Operator, error) {
	if d.root == nil {
		chol, err := factorizeWithJitter(d.m)
		if err != nil {
			return nil, err
		}
		d.chol = chol
		d.root = &mat.TriDense{}
		chol.LTo(d.root)
	}
	return &Rect{m: d.root}, nil
}

func (d *Dense) SolveVec(dst, b []float64) error {
	if d.chol == nil {
		chol, err := factorizeWithJitter(d.m)
		if err != nil {
			return err
		}
		d.chol = chol
	}
	v := mat.NewVecDense(len(dst), dst)
	return d.chol.SolveVecTo(v, mat.NewVecDense(len(b), b))
}

// factorizeWithJitter attempts a Cholesky factorization, adding escalating
// diagonal jitter when the matrix is numerically indefinite.
func factorizeWithJitter(m *mat.SymDense) (*mat.Cholesky, error) {
	n := m.SymmetricDim()
	jitter := 0.0
	for attempt := 0; attempt < 6; attempt++ {
		work := mat.NewSymDense(n, nil)
		work.CopySym(m)
		if jitter > 0 {
			for i := 0; i < n; i++ {
				work.SetSym(i, i, work.At(i, i)+jitter)
			}
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
	return nil, fmt.Errorf("posterior: matrix of size %d is not positive definite", n)
}

// Rect wraps a general (possibly rectangular) matrix, e.g. a cross-covariance
// or a root factor. It supports multiplication only.
type Rect struct {
	m mat.Matrix
}

// NewRect creates an operator from a general matrix.
func NewRect(m mat.Matrix) *Rect {
	return &Rect{m: m}
}

func (q *Rect) Dims() (int, int) { return q.m.Dims() }

func (q *Rect) MulVec(dst, x []float64) {
	v := mat.NewVecDense(len(dst), dst)
	v.MulVec(q.m, mat.NewVecDense(len(x), x))
}

func (q *Rect) Root() (Operator, error)   { return nil, ErrNoRoot }
func (q *Rect) SolveVec(_, _ []float64) error { return ErrNoSolve }

// Diag is a diagonal covariance, typically an independent noise covariance.
type Diag struct {
	d []float64
}

// NewDiag creates a diagonal operator from the given diagonal entries.
func NewDiag(d []float64) *Diag {
	return &Diag{d: d}
}

// NewHomoskedasticDiag creates an n-dimensional diagonal operator with a
// constant variance on the diagonal.
func NewHomoskedasticDiag(variance float64, n int) *Diag {
	d := make([]float64, n)
	for i := range d {
		d[i] = variance
	}
	return &Diag{d: d}
}

func (g *Diag) Dims() (int, int) { return len(g.d), len(g.d) }

func (g *Diag) MulVec(dst, x []float64) {
	for i := range g.d {
		dst[i] = g.d[i] * x[i]
	}
}

func (g *Diag) Root() (Operator, error) {
	r := make([]float64, len(g.d))
	for i, v := range g.d {
		if v < 0 {
			return nil, fmt.Errorf("posterior: negative variance %g at index %d", v, i)
		}
		r[i] = math.Sqrt(v)
	}
	return &Diag{d: r}, nil
}

func (g *Diag) SolveVec(dst, b []float64) error {
	for i, v := range g.d {
		if v == 0 {
			return fmt.Errorf("posterior: singular diagonal at index %d", i)
		}
		dst[i] = b[i] / v
	}
	return nil
}

// Kronecker is the Kronecker product A ⊗ B. Indices are row-major with the
// B dimension varying fastest, so for covariances over (point, task) pairs
// with A the data covariance and B the task covariance, the flat index is
// point*tasks + task.
type Kronecker struct {
	A, B Operator
}

// NewKronecker creates the Kronecker product of two operators.
func NewKronecker(a, b Operator) *Kronecker {
	return &Kronecker{A: a, B: b}
}

func (k *Kronecker) Dims() (int, int) {
	ra, ca := k.A.Dims()
	rb, cb := k.B.Dims()
	return ra * rb, ca * cb
}

// MulVec applies (A ⊗ B) x without forming the product: with x reshaped
// row-major to a ca x cb matrix X, the result is vec(A X B^T).
func (k *Kronecker) MulVec(dst, x []float64) {
	ra, ca := k.A.Dims()
	rb, cb := k.B.Dims()

	// Z = X B^T, one B multiply per row of X.
	z := make([]float64, ca*rb)
	for i := 0; i < ca; i++ {
		k.B.MulVec(z[i*rb:(i+1)*rb], x[i*cb:(i+1)*cb])
	}

	// Y = A Z, one A multiply per column of Z.
	col := make([]float64, ca)
	out := make([]float64, ra)
	for j := 0; j < rb; j++ {
		for i := 0; i < ca; i++ {
			col[i] = z[i*rb+j]
		}
		k.A.MulVec(out, col)
		for i := 0; i < ra; i++ {
			dst[i*rb+j] = out[i]
		}
	}
}

// Root composes the factor roots: root(A ⊗ B) = root(A) ⊗ root(B).
func (k *Kronecker) Root() (Operator, error) {
	ra, err := k.A.Root()
	if err != nil {
		return nil, err
	}
	rb, err := k.B.Root()
	if err != nil {
		return nil, err
	}
	return &Kronecker{A: ra, B: rb}, nil
}

// SolveVec uses (A ⊗ B)^-1 = A^-1 ⊗ B^-1, solving against each factor in
// the same reshape scheme as MulVec.
func (k *Kronecker) SolveVec(dst, b []float64) error {
	ra, _ := k.A.Dims()
	rb, _ := k.B.Dims()

	z := make([]float64, ra*rb)
	for i := 0; i < ra; i++ {
		if err := k.B.SolveVec(z[i*rb:(i+1)*rb], b[i*rb:(i+1)*rb]); err != nil {
			return err
		}
	}
	col := make([]float64, ra)
	out := make([]float64, ra)
	for j := 0; j < rb; j++ {
		for i := 0; i < ra; i++ {
			col[i] = z[i*rb+j]
		}
		if err := k.A.SolveVec(out, col); err != nil {
			return err
		}
		for i := 0; i < ra; i++ {
			dst[i*rb+j] = out[i]
		}
	}
	return nil
}

// Sum is the sum of same-shaped operators, e.g. a covariance plus a noise
// term. It has no closed-form root; solves run matrix-free via conjugate
// gradients so the sum is never densified.
type Sum struct {
	terms []Operator
}

// NewSum creates the sum of the given operators. All operators must share
// the same dimensions.
func NewSum(terms ...Operator) *Sum {
	return &Sum{terms: terms}
}

func (s *Sum) Dims() (int, int) { return s.terms[0].Dims() }

func (s *Sum) MulVec(dst, x []float64) {
	tmp := make([]float64, len(dst))
	for i := range dst {
		dst[i] = 0
	}
	for _, t := range s.terms {
		t.MulVec(tmp, x)
		for i := range dst {
			dst[i] += tmp[i]
		}
	}
}

func (s *Sum) Root() (Operator, error) { return nil, ErrNoRoot }

// SolveVec runs conjugate gradients on the (assumed positive definite) sum.
func (s *Sum) SolveVec(dst, b []float64) error {
	n := len(b)
	x := dst
	for i := range x {
		x[i] = 0
	}
	r := make([]float64, n)
	copy(r, b)
	p := make([]float64, n)
	copy(p, b)
	ap := make([]float64, n)

	bNorm := norm2(b)
	if bNorm == 0 {
		return nil
	}
	tol := 1e-10 * bNorm

	rsOld := dot(r, r)
	maxIter := 20 * n
	for iter := 0; iter < maxIter; iter++ {
		if math.Sqrt(rsOld) < tol {
			return nil
		}
		s.MulVec(ap, p)
		pap := dot(p, ap)
		if pap <= 0 {
			return fmt.Errorf("posterior: conjugate gradients encountered non-positive curvature at iteration %d", iter)
		}
		alpha := rsOld / pap
		for i := 0; i < n; i++ {
			x[i] += alpha * p[i]
			r[i] -= alpha * ap[i]
		}
		rsNew := dot(r, r)
		beta := rsNew / rsOld
		for i := 0; i < n; i++ {
			p[i] = r[i] + beta*p[i]
		}
		rsOld = rsNew
	}
	if math.Sqrt(rsOld) < 1e-6*bNorm {
		// Loose but usable; accept rather than fail a long solve outright.
		return nil
	}
	return fmt.Errorf("posterior: conjugate gradients did not converge (residual %g)", math.Sqrt(rsOld)/bNorm)
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func norm2(a []float64) float64 {
	return math.Sqrt(dot(a, a))
}
