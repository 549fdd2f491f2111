package store

import (
	"fmt"
	"time"
)

// RunConfig holds configuration for an optimization run (checkpoint copy).
// This avoids import cycles with the cmd package.
type RunConfig struct {
	Objective          string `json:"objective"`   // sphere, branin
	Acquisition        string `json:"acquisition"` // ei, ucb, qei
	Dim                int    `json:"dim"`
	Iters              int    `json:"iters"`
	BatchSize          int    `json:"batchSize,omitempty"` // candidates observed per iteration (0 means 1)
	InitSamples        int    `json:"initSamples"`
	NumRestarts        int    `json:"numRestarts"`
	RawSamples         int    `json:"rawSamples"`
	Seed               int64  `json:"seed"`
	CheckpointInterval int    `json:"checkpointInterval,omitempty"` // Checkpoint every N iterations (0 = disabled)
}

// Checkpoint represents a saved optimization run state that can be resumed.
// All fields are serialized to JSON for persistence.
//
// The checkpoint saves the full observation history, which is all a
// Gaussian process surrogate needs to be rebuilt exactly. Transient state
// (fitted Cholesky factors, restart candidates mid-iteration) is
// reconstructed on resume by refitting the model, so resume after refit
// produces the same posterior as an uninterrupted run at the same
// iteration. The random stream is reseeded from Config.Seed offset by the
// iteration count rather than replayed, so candidate draws after a resume
// may differ from the uninterrupted run even though the surrogate does not.
type Checkpoint struct {
	// RunID is the unique identifier for this optimization run
	RunID string `json:"runId"`

	// X holds the evaluated input points, one row of Dim values per observation
	X [][]float64 `json:"x"`

	// Y holds the observed objective values, aligned with X
	Y []float64 `json:"y"`

	// BestX is the input that achieved BestValue
	BestX []float64 `json:"bestX"`

	// BestValue is the best (largest) observed objective value so far
	BestValue float64 `json:"bestValue"`

	// Iteration is the number of completed optimization iterations
	// (excluding the initial design)
	Iteration int `json:"iteration"`

	// Timestamp records when this checkpoint was created
	Timestamp time.Time `json:"timestamp"`

	// Config holds the run configuration, needed for validation during resume
	Config RunConfig `json:"config"`
}

// CheckpointInfo contains metadata about a checkpoint without the
// observation history. Used for listing runs without loading large arrays.
type CheckpointInfo struct {
	RunID        string    `json:"runId"`
	BestValue    float64   `json:"bestValue"`
	Iteration    int       `json:"iteration"`
	Observations int       `json:"observations"`
	Timestamp    time.Time `json:"timestamp"`
	Objective    string    `json:"objective"`
	Acquisition  string    `json:"acquisition"`
	Dim          int       `json:"dim"`
}

// NewCheckpoint creates a checkpoint from run state.
func NewCheckpoint(runID string, x [][]float64, y []float64, bestX []float64, bestValue float64, iteration int, config RunConfig) *Checkpoint {
	return &Checkpoint{
		RunID:     runID,
		X:         x,
		Y:         y,
		BestX:     bestX,
		BestValue: bestValue,
		Iteration: iteration,
		Timestamp: time.Now(),
		Config:    config,
	}
}

// ToInfo converts a full Checkpoint to CheckpointInfo (metadata only).
func (c *Checkpoint) ToInfo() CheckpointInfo {
	return CheckpointInfo{
		RunID:        c.RunID,
		BestValue:    c.BestValue,
		Iteration:    c.Iteration,
		Observations: len(c.Y),
		Timestamp:    c.Timestamp,
		Objective:    c.Config.Objective,
		Acquisition:  c.Config.Acquisition,
		Dim:          c.Config.Dim,
	}
}

// Validate checks if the checkpoint has valid data.
// Returns an error if any required field is missing or inconsistent.
func (c *Checkpoint) Validate() error {
	if c.RunID == "" {
		return &ValidationError{Field: "RunID", Reason: "cannot be empty"}
	}
	if len(c.X) == 0 {
		return &ValidationError{Field: "X", Reason: "cannot be empty"}
	}
	if len(c.X) != len(c.Y) {
		return &ValidationError{
			Field:  "Y",
			Reason: fmt.Sprintf("length mismatch: %d observations for %d points", len(c.Y), len(c.X)),
		}
	}
	for i, row := range c.X {
		if len(row) != c.Config.Dim {
			return &ValidationError{
				Field:  "X",
				Reason: fmt.Sprintf("row %d has %d values, expected %d", i, len(row), c.Config.Dim),
			}
		}
	}
	if len(c.BestX) != c.Config.Dim {
		return &ValidationError{Field: "BestX", Reason: fmt.Sprintf("length must equal dim %d", c.Config.Dim)}
	}
	if c.Iteration < 0 {
		return &ValidationError{Field: "Iteration", Reason: "cannot be negative"}
	}
	if c.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	if c.Config.Objective == "" {
		return &ValidationError{Field: "Config.Objective", Reason: "cannot be empty"}
	}
	if c.Config.Acquisition == "" {
		return &ValidationError{Field: "Config.Acquisition", Reason: "cannot be empty"}
	}
	if c.Config.Dim <= 0 {
		return &ValidationError{Field: "Config.Dim", Reason: "must be positive"}
	}
	if c.Config.Iters <= 0 {
		return &ValidationError{Field: "Config.Iters", Reason: "must be positive"}
	}
	return nil
}

// ValidationError represents a checkpoint validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}

// IsCompatible checks if this checkpoint can be resumed with the given
// config. Returns an error if the configs are incompatible.
func (c *Checkpoint) IsCompatible(config RunConfig) error {
	if c.Config.Objective != config.Objective {
		return &CompatibilityError{
			Field:    "Objective",
			Expected: c.Config.Objective,
			Actual:   config.Objective,
		}
	}
	if c.Config.Acquisition != config.Acquisition {
		return &CompatibilityError{
			Field:    "Acquisition",
			Expected: c.Config.Acquisition,
			Actual:   config.Acquisition,
		}
	}
	if c.Config.Dim != config.Dim {
		return &CompatibilityError{
			Field:    "Dim",
			Expected: fmt.Sprintf("%d", c.Config.Dim),
			Actual:   fmt.Sprintf("%d", config.Dim),
		}
	}
	return nil
}

// CompatibilityError represents a checkpoint compatibility error.
type CompatibilityError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *CompatibilityError) Error() string {
	return "compatibility error: " + e.Field + " mismatch (expected " + e.Expected + ", got " + e.Actual + ")"
}
