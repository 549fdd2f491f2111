package store

import (
	"testing"
	"time"
)

func validCheckpoint() *Checkpoint {
	return createTestCheckpoint("validate-run")
}

func TestCheckpointValidate_OK(t *testing.T) {
	if err := validCheckpoint().Validate(); err != nil {
		t.Fatalf("Valid checkpoint failed validation: %v", err)
	}
}

func TestCheckpointValidate_Errors(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(c *Checkpoint)
	}{
		{"empty run ID", func(c *Checkpoint) { c.RunID = "" }},
		{"no observations", func(c *Checkpoint) { c.X = nil; c.Y = nil }},
		{"X/Y length mismatch", func(c *Checkpoint) { c.Y = c.Y[:len(c.Y)-1] }},
		{"wrong point dimension", func(c *Checkpoint) { c.X[1] = []float64{0.3} }},
		{"wrong bestX dimension", func(c *Checkpoint) { c.BestX = []float64{0.5} }},
		{"negative iteration", func(c *Checkpoint) { c.Iteration = -1 }},
		{"zero timestamp", func(c *Checkpoint) { c.Timestamp = time.Time{} }},
		{"empty objective", func(c *Checkpoint) { c.Config.Objective = "" }},
		{"empty acquisition", func(c *Checkpoint) { c.Config.Acquisition = "" }},
		{"zero dim", func(c *Checkpoint) { c.Config.Dim = 0 }},
		{"zero iters", func(c *Checkpoint) { c.Config.Iters = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := validCheckpoint()
			tc.mutate(c)
			if err := c.Validate(); err == nil {
				t.Errorf("Expected validation error for %s", tc.name)
			}
		})
	}
}

func TestCheckpointToInfo(t *testing.T) {
	c := validCheckpoint()
	info := c.ToInfo()

	if info.RunID != c.RunID {
		t.Errorf("RunID mismatch: got %q, want %q", info.RunID, c.RunID)
	}
	if info.Observations != len(c.Y) {
		t.Errorf("Observations mismatch: got %d, want %d", info.Observations, len(c.Y))
	}
	if info.BestValue != c.BestValue {
		t.Errorf("BestValue mismatch: got %v, want %v", info.BestValue, c.BestValue)
	}
	if info.Objective != c.Config.Objective || info.Acquisition != c.Config.Acquisition {
		t.Errorf("Config fields not carried over: %+v", info)
	}
}

func TestCheckpointIsCompatible(t *testing.T) {
	c := validCheckpoint()

	if err := c.IsCompatible(c.Config); err != nil {
		t.Fatalf("Same config should be compatible: %v", err)
	}

	other := c.Config
	other.Objective = "branin"
	if err := c.IsCompatible(other); err == nil {
		t.Error("Expected incompatibility for different objective")
	}

	other = c.Config
	other.Acquisition = "ucb"
	if err := c.IsCompatible(other); err == nil {
		t.Error("Expected incompatibility for different acquisition")
	}

	other = c.Config
	other.Dim = 3
	if err := c.IsCompatible(other); err == nil {
		t.Error("Expected incompatibility for different dim")
	}

	// Fields not affecting the surrogate may differ
	other = c.Config
	other.Iters = 999
	other.Seed = 7
	if err := c.IsCompatible(other); err != nil {
		t.Errorf("Iters/Seed changes should be compatible: %v", err)
	}
}
