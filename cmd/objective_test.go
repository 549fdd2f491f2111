package main

import (
	"math"
	"testing"
)

func TestLookupObjective_Sphere(t *testing.T) {
	obj, err := lookupObjective("sphere", 3)
	if err != nil {
		t.Fatalf("lookupObjective failed: %v", err)
	}
	if obj.Dim != 3 {
		t.Errorf("Expected dim 3, got %d", obj.Dim)
	}

	// Maximum at the center of the unit cube
	if v := obj.Eval([]float64{0.5, 0.5, 0.5}); v != 0 {
		t.Errorf("Expected 0 at center, got %v", v)
	}
	if v := obj.Eval([]float64{0, 0, 0}); math.Abs(v-(-0.75)) > 1e-12 {
		t.Errorf("Expected -0.75 at origin, got %v", v)
	}
}

func TestLookupObjective_Branin(t *testing.T) {
	obj, err := lookupObjective("branin", 2)
	if err != nil {
		t.Fatalf("lookupObjective failed: %v", err)
	}

	// Known global optima of the Branin function
	optima := [][]float64{
		{-math.Pi, 12.275},
		{math.Pi, 2.275},
		{9.42478, 2.475},
	}
	for _, x := range optima {
		v := obj.Eval(x)
		if math.Abs(v-(-0.397887)) > 1e-4 {
			t.Errorf("Expected -0.397887 at %v, got %v", x, v)
		}
	}
}

func TestLookupObjective_Errors(t *testing.T) {
	if _, err := lookupObjective("branin", 3); err == nil {
		t.Error("Expected error for branin with dim 3")
	}
	if _, err := lookupObjective("rosenbrock", 2); err == nil {
		t.Error("Expected error for unknown objective")
	}
}

func TestBestObservation(t *testing.T) {
	x := [][]float64{{0.1}, {0.2}, {0.3}}
	y := []float64{-1.0, 0.5, -0.2}

	bestX, bestVal := bestObservation(x, y)
	if bestVal != 0.5 {
		t.Errorf("Expected best value 0.5, got %v", bestVal)
	}
	if bestX[0] != 0.2 {
		t.Errorf("Expected best point 0.2, got %v", bestX[0])
	}
}
