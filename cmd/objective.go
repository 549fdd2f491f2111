package main

import (
	"fmt"
	"math"

	"github.com/cwbudde/bayopt/internal/optimize"
)

// Objective is a synthetic benchmark function. Eval returns the value to
// MAXIMIZE, so the classical minimization benchmarks are negated.
type Objective struct {
	Name   string
	Dim    int
	Bounds optimize.Bounds
	Eval   func(x []float64) float64
}

// lookupObjective returns the named benchmark objective.
func lookupObjective(name string, dim int) (Objective, error) {
	switch name {
	case "sphere":
		return sphereObjective(dim), nil
	case "branin":
		if dim != 2 {
			return Objective{}, fmt.Errorf("branin requires dim 2, got %d", dim)
		}
		return braninObjective(), nil
	default:
		return Objective{}, fmt.Errorf("unknown objective %q", name)
	}
}

// sphereObjective is -||x - 0.5||^2 on the unit cube, maximized at the
// center with value 0.
func sphereObjective(dim int) Objective {
	return Objective{
		Name:   "sphere",
		Dim:    dim,
		Bounds: optimize.NewUnitBounds(dim),
		Eval: func(x []float64) float64 {
			var sum float64
			for _, v := range x {
				d := v - 0.5
				sum += d * d
			}
			return -sum
		},
	}
}

// braninObjective is the negated Branin function on [-5,10] x [0,15].
// The three global optima have value -0.397887.
func braninObjective() Objective {
	const (
		a = 1.0
		b = 5.1 / (4 * math.Pi * math.Pi)
		c = 5.0 / math.Pi
		r = 6.0
		s = 10.0
		t = 1.0 / (8 * math.Pi)
	)
	return Objective{
		Name: "branin",
		Dim:  2,
		Bounds: optimize.Bounds{
			Lower: []float64{-5, 0},
			Upper: []float64{10, 15},
		},
		Eval: func(x []float64) float64 {
			x1, x2 := x[0], x[1]
			v := a*math.Pow(x2-b*x1*x1+c*x1-r, 2) + s*(1-t)*math.Cos(x1) + s
			return -v
		},
	}
}
