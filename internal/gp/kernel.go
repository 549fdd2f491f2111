package gp

import "math"

// Kernel computes the covariance between two input points.
type Kernel interface {
	Eval(x, y []float64) float64
}

// RBF is the squared-exponential kernel.
type RBF struct {
	LengthScale float64
	Variance    float64
}

// NewRBF creates an RBF kernel.
func NewRBF(lengthScale, variance float64) *RBF {
	return &RBF{LengthScale: lengthScale, Variance: variance}
}

func (k *RBF) Eval(x, y []float64) float64 {
	var d2 float64
	for i := range x {
		d := x[i] - y[i]
		d2 += d * d
	}
	return k.Variance * math.Exp(-0.5*d2/(k.LengthScale*k.LengthScale))
}

// Matern52 is the Matern kernel with smoothness 5/2, a common default for
// Bayesian optimization surrogates.
type Matern52 struct {
	LengthScale float64
	Variance    float64
}

// NewMatern52 creates a Matern-5/2 kernel.
func NewMatern52(lengthScale, variance float64) *Matern52 {
	return &Matern52{LengthScale: lengthScale, Variance: variance}
}

func (k *Matern52) Eval(x, y []float64) float64 {
	var d2 float64
	for i := range x {
		d := x[i] - y[i]
		d2 += d * d
	}
	r := math.Sqrt(d2) / k.LengthScale
	s5r := math.Sqrt(5) * r
	return k.Variance * (1 + s5r + 5*r*r/3) * math.Exp(-s5r)
}
