package optimize

import (
	"errors"
	"math"
	"testing"

	"github.com/cwbudde/bayopt/internal/acq"
	exprand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// bowlAcq is a deterministic stand-in acquisition function: the negated
// mean squared distance of all rows to a center point, maximized exactly at
// the center.
type bowlAcq struct {
	acq.PendingState
	center []float64
	evals  int
}

func newBowlAcq(center ...float64) *bowlAcq {
	return &bowlAcq{center: center}
}

func (a *bowlAcq) Evaluate(X *mat.Dense) float64 {
	a.evals++
	r, _ := X.Dims()
	var total float64
	for i := 0; i < r; i++ {
		row := X.RawRowView(i)
		for j, c := range a.center {
			d := row[j] - c
			total -= d * d
		}
	}
	return total / float64(r)
}

// oneShotBowl adds the one-shot capability on top of bowlAcq.
type oneShotBowl struct {
	*bowlAcq
	fantasies int
}

func (o *oneShotBowl) AugmentedSize(q int) int { return q + o.fantasies }

func (o *oneShotBowl) ExtractCandidates(full *mat.Dense) *mat.Dense {
	r, d := full.Dims()
	return mat.DenseCopyOf(full.Slice(0, r-o.fantasies, 0, d))
}

func defaultOpts() *Options {
	return &Options{
		RawSamples: 64,
		Options:    map[string]any{"seed": int64(7)},
	}
}

func TestACQF_FindsBowlMaximum(t *testing.T) {
	acqf := newBowlAcq(0.5, 0.5)
	res, err := ACQF(acqf, NewUnitBounds(2), 1, 4, defaultOpts())
	if err != nil {
		t.Fatalf("ACQF failed: %v", err)
	}

	r, d := res.Candidates.Dims()
	if r != 1 || d != 2 {
		t.Fatalf("Expected 1x2 candidates, got %dx%d", r, d)
	}
	row := res.Candidates.RawRowView(0)
	for j, c := range []float64{0.5, 0.5} {
		if math.Abs(row[j]-c) > 0.05 {
			t.Errorf("Candidate dim %d = %v, want near %v", j, row[j], c)
		}
	}
	if len(res.Values) != 1 {
		t.Fatalf("Expected one joint value, got %d", len(res.Values))
	}
	if res.Values[0] < -0.01 {
		t.Errorf("Expected near-zero acquisition value at optimum, got %v", res.Values[0])
	}
}

func TestACQF_InvalidArgs(t *testing.T) {
	acqf := newBowlAcq(0.5)
	if _, err := ACQF(acqf, NewUnitBounds(1), 0, 4, defaultOpts()); err == nil {
		t.Error("Expected error for q=0")
	}
	if _, err := ACQF(acqf, NewUnitBounds(1), 1, 0, defaultOpts()); err == nil {
		t.Error("Expected error for zero restarts")
	}
	bad := Bounds{Lower: []float64{1}, Upper: []float64{0}}
	if _, err := ACQF(acqf, bad, 1, 4, defaultOpts()); err == nil {
		t.Error("Expected error for inverted bounds")
	}
}

func TestACQF_MissingRawSamples(t *testing.T) {
	acqf := newBowlAcq(0.5, 0.5)
	_, err := ACQF(acqf, NewUnitBounds(2), 1, 4, &Options{})
	if !errors.Is(err, ErrMissingRawSamples) {
		t.Fatalf("Expected ErrMissingRawSamples, got %v", err)
	}
}

func TestACQF_FullyFixed(t *testing.T) {
	acqf := newBowlAcq(0.5, 0.5)
	opts := &Options{FixedFeatures: map[int]float64{0: 0.25, 1: 0.75}}

	res, err := ACQF(acqf, NewUnitBounds(2), 3, 4, opts)
	if err != nil {
		t.Fatalf("ACQF failed: %v", err)
	}

	r, _ := res.Candidates.Dims()
	if r != 3 {
		t.Fatalf("Expected 3 replicated rows, got %d", r)
	}
	for i := 0; i < 3; i++ {
		row := res.Candidates.RawRowView(i)
		if row[0] != 0.25 || row[1] != 0.75 {
			t.Errorf("Row %d = %v, want [0.25 0.75]", i, row)
		}
	}
	if len(res.Values) != 1 {
		t.Errorf("Expected a single value, got %d", len(res.Values))
	}
	// No optimizer runs; the implied point is evaluated exactly once.
	if acqf.evals != 1 {
		t.Errorf("Expected exactly one evaluation, got %d", acqf.evals)
	}
}

func TestACQF_FullyFixed_MissingDimension(t *testing.T) {
	acqf := newBowlAcq(0.5, 0.5)
	// Two entries cover the count but not dimension 1.
	opts := &Options{FixedFeatures: map[int]float64{0: 0.25, 5: 0.75}}

	if _, err := ACQF(acqf, NewUnitBounds(2), 1, 4, opts); err == nil {
		t.Fatal("Expected error for fixed features missing a dimension")
	}
}

func TestACQF_PartialFixedFeature(t *testing.T) {
	acqf := newBowlAcq(0.5, 0.5)
	opts := defaultOpts()
	opts.FixedFeatures = map[int]float64{0: 0.3}

	res, err := ACQF(acqf, NewUnitBounds(2), 1, 4, opts)
	if err != nil {
		t.Fatalf("ACQF failed: %v", err)
	}
	row := res.Candidates.RawRowView(0)
	if row[0] != 0.3 {
		t.Errorf("Fixed dimension moved: got %v, want 0.3", row[0])
	}
	if math.Abs(row[1]-0.5) > 0.05 {
		t.Errorf("Free dimension = %v, want near 0.5", row[1])
	}
}

func TestACQF_SequentialRestoresPending(t *testing.T) {
	acqf := newBowlAcq(0.5, 0.5)
	base := mat.NewDense(1, 2, []float64{0.1, 0.9})
	acqf.SetPending(base)

	opts := defaultOpts()
	opts.Sequential = true

	res, err := ACQF(acqf, NewUnitBounds(2), 3, 4, opts)
	if err != nil {
		t.Fatalf("ACQF failed: %v", err)
	}

	r, _ := res.Candidates.Dims()
	if r != 3 {
		t.Errorf("Expected 3 candidates, got %d", r)
	}
	if len(res.Values) != 3 {
		t.Errorf("Expected 3 per-step values, got %d", len(res.Values))
	}
	if acqf.Pending() != base {
		t.Error("Pending state was not restored after sequential optimization")
	}
}

func TestACQF_SequentialRejectsAllRestarts(t *testing.T) {
	acqf := newBowlAcq(0.5, 0.5)
	opts := defaultOpts()
	opts.Sequential = true
	opts.ReturnAllRestarts = true

	_, err := ACQF(acqf, NewUnitBounds(2), 2, 4, opts)
	if !errors.Is(err, ErrSequentialAllRestarts) {
		t.Fatalf("Expected ErrSequentialAllRestarts, got %v", err)
	}
}

func TestACQF_SequentialRejectsOneShot(t *testing.T) {
	acqf := &oneShotBowl{bowlAcq: newBowlAcq(0.5, 0.5), fantasies: 2}
	opts := defaultOpts()
	opts.Sequential = true

	_, err := ACQF(acqf, NewUnitBounds(2), 2, 4, opts)
	if !errors.Is(err, ErrSequentialOneShot) {
		t.Fatalf("Expected ErrSequentialOneShot, got %v", err)
	}
}

func TestACQF_ReturnAllRestarts(t *testing.T) {
	acqf := newBowlAcq(0.5, 0.5)
	opts := defaultOpts()
	opts.ReturnAllRestarts = true

	res, err := ACQF(acqf, NewUnitBounds(2), 1, 4, opts)
	if err != nil {
		t.Fatalf("ACQF failed: %v", err)
	}
	if res.Candidates != nil {
		t.Error("Candidates should be nil when all restarts are returned")
	}
	if len(res.Restarts) != 4 {
		t.Fatalf("Expected 4 restarts, got %d", len(res.Restarts))
	}
	for i, restart := range res.Restarts {
		r, d := restart.Candidates.Dims()
		if r != 1 || d != 2 {
			t.Errorf("Restart %d has %dx%d candidates, want 1x2", i, r, d)
		}
	}
}

func TestACQF_BatchInitialConditions(t *testing.T) {
	acqf := newBowlAcq(0.5, 0.5)
	opts := &Options{
		BatchInitialConditions: []*mat.Dense{
			mat.NewDense(1, 2, []float64{0.4, 0.6}),
		},
	}

	// RawSamples unset is fine when initial conditions are supplied.
	res, err := ACQF(acqf, NewUnitBounds(2), 1, 1, opts)
	if err != nil {
		t.Fatalf("ACQF failed: %v", err)
	}
	row := res.Candidates.RawRowView(0)
	if math.Abs(row[0]-0.5) > 0.05 || math.Abs(row[1]-0.5) > 0.05 {
		t.Errorf("Candidate %v, want near [0.5 0.5]", row)
	}
}

func TestACQF_OneShotExtraction(t *testing.T) {
	acqf := &oneShotBowl{bowlAcq: newBowlAcq(0.5, 0.5), fantasies: 3}

	res, err := ACQF(acqf, NewUnitBounds(2), 2, 2, defaultOpts())
	if err != nil {
		t.Fatalf("ACQF failed: %v", err)
	}
	r, d := res.Candidates.Dims()
	if r != 2 || d != 2 {
		t.Errorf("Expected extracted 2x2 candidates, got %dx%d", r, d)
	}

	// Full tree on request
	opts := defaultOpts()
	opts.ReturnFullTree = true
	res, err = ACQF(acqf, NewUnitBounds(2), 2, 2, opts)
	if err != nil {
		t.Fatalf("ACQF failed: %v", err)
	}
	r, _ = res.Candidates.Dims()
	if r != 5 {
		t.Errorf("Expected full tree with 5 rows, got %d", r)
	}
}

func TestACQF_PostProcess(t *testing.T) {
	acqf := newBowlAcq(0.5, 0.5)
	called := false
	opts := defaultOpts()
	opts.PostProcess = func(cands []*mat.Dense) []*mat.Dense {
		called = true
		return cands
	}

	if _, err := ACQF(acqf, NewUnitBounds(2), 1, 2, opts); err != nil {
		t.Fatalf("ACQF failed: %v", err)
	}
	if !called {
		t.Error("PostProcess hook was not invoked")
	}
}

func TestArgmax_FirstOccurrenceTie(t *testing.T) {
	if got := argmax([]float64{1, 2, 2, 0}); got != 1 {
		t.Errorf("argmax tie-break: got %d, want 1", got)
	}
	if got := argmax([]float64{3}); got != 0 {
		t.Errorf("argmax single: got %d, want 0", got)
	}
}

func TestTopIndices(t *testing.T) {
	got := topIndices([]float64{0.1, 0.9, 0.5, 0.9}, 3)
	want := []int{1, 3, 2}
	if len(got) != len(want) {
		t.Fatalf("topIndices returned %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("topIndices returned %v, want %v", got, want)
		}
	}

	// k larger than the slice is truncated
	if got := topIndices([]float64{1, 2}, 5); len(got) != 2 {
		t.Errorf("Expected 2 indices, got %d", len(got))
	}
}

func TestBounds(t *testing.T) {
	b := NewUnitBounds(3)
	if b.Dim() != 3 {
		t.Errorf("Expected dim 3, got %d", b.Dim())
	}
	if err := b.Validate(); err != nil {
		t.Errorf("Unit bounds should validate: %v", err)
	}

	x := []float64{-0.5, 0.5, 1.5}
	b.Clamp(x)
	if x[0] != 0 || x[1] != 0.5 || x[2] != 1 {
		t.Errorf("Clamp produced %v", x)
	}

	empty := Bounds{}
	if err := empty.Validate(); err == nil {
		t.Error("Empty bounds should not validate")
	}
	mismatched := Bounds{Lower: []float64{0}, Upper: []float64{1, 2}}
	if err := mismatched.Validate(); err == nil {
		t.Error("Mismatched bounds should not validate")
	}
}

func TestConstraintSlack(t *testing.T) {
	// x0 + 2*x2 >= 1
	c := Constraint{Indices: []int{0, 2}, Coefficients: []float64{1, 2}, RHS: 1}
	if got := c.Slack([]float64{0.5, 9.0, 0.25}); got != 0 {
		t.Errorf("Expected slack 0 at boundary, got %v", got)
	}
	if got := c.Slack([]float64{1, 0, 1}); got != 2 {
		t.Errorf("Expected slack 2, got %v", got)
	}
}

func TestGenBatchInitialConditions(t *testing.T) {
	acqf := newBowlAcq(0.5, 0.5)
	bounds := NewUnitBounds(2)
	options := map[string]any{"seed": int64(11)}

	ics, err := GenBatchInitialConditions(acqf, bounds, 2, 3, 16, nil, options, nil, nil)
	if err != nil {
		t.Fatalf("GenBatchInitialConditions failed: %v", err)
	}
	if len(ics) != 3 {
		t.Fatalf("Expected 3 initial condition sets, got %d", len(ics))
	}
	for i, ic := range ics {
		r, d := ic.Dims()
		if r != 2 || d != 2 {
			t.Fatalf("Set %d is %dx%d, want 2x2", i, r, d)
		}
		for ri := 0; ri < r; ri++ {
			for _, v := range ic.RawRowView(ri) {
				if v < 0 || v > 1 {
					t.Errorf("Set %d has out-of-bounds value %v", i, v)
				}
			}
		}
	}

	// Deterministic under a fixed seed
	again, err := GenBatchInitialConditions(acqf, bounds, 2, 3, 16, nil, options, nil, nil)
	if err != nil {
		t.Fatalf("GenBatchInitialConditions failed: %v", err)
	}
	for i := range ics {
		if !mat.Equal(ics[i], again[i]) {
			t.Errorf("Set %d differs between seeded runs", i)
		}
	}
}

func TestGenBatchInitialConditions_TooFewRawSamples(t *testing.T) {
	acqf := newBowlAcq(0.5)
	_, err := GenBatchInitialConditions(acqf, NewUnitBounds(1), 1, 8, 4, nil, nil, nil, nil)
	if err == nil {
		t.Fatal("Expected error when raw samples < restarts")
	}
}

func TestGenBatchInitialConditions_FixedFeatures(t *testing.T) {
	acqf := newBowlAcq(0.5, 0.5)
	fixed := map[int]float64{1: 0.42}

	ics, err := GenBatchInitialConditions(acqf, NewUnitBounds(2), 1, 2, 8, fixed, map[string]any{"seed": int64(3)}, nil, nil)
	if err != nil {
		t.Fatalf("GenBatchInitialConditions failed: %v", err)
	}
	for i, ic := range ics {
		if got := ic.At(0, 1); got != 0.42 {
			t.Errorf("Set %d fixed dim = %v, want 0.42", i, got)
		}
	}
}

func TestQuasiRandomPoints_Stratified(t *testing.T) {
	bounds := NewUnitBounds(1)
	pts := quasiRandomPoints(exprand.NewSource(11), bounds, 64)

	// A scrambled Halton sequence fills dyadic bins evenly; 64 uniform
	// draws routinely leave one of eight bins much emptier.
	bins := make([]int, 8)
	for i := 0; i < 64; i++ {
		v := pts.At(i, 0)
		if v < 0 || v >= 1 {
			t.Fatalf("Point %d = %v is out of bounds", i, v)
		}
		bins[int(v*8)]++
	}
	for b, n := range bins {
		if n < 4 {
			t.Errorf("Bin %d holds only %d of 64 points; draws are not low-discrepancy", b, n)
		}
	}
}

func TestQuasiRandomPoints_ScaledBoundsAndDeterminism(t *testing.T) {
	bounds := Bounds{Lower: []float64{-2, 0}, Upper: []float64{3, 0.5}}
	pts := quasiRandomPoints(exprand.NewSource(5), bounds, 32)
	for i := 0; i < 32; i++ {
		row := pts.RawRowView(i)
		if row[0] < -2 || row[0] > 3 || row[1] < 0 || row[1] > 0.5 {
			t.Errorf("Point %d = %v escapes bounds", i, row)
		}
	}

	again := quasiRandomPoints(exprand.NewSource(5), bounds, 32)
	if !mat.Equal(pts, again) {
		t.Error("Equal sources should reproduce identical draws")
	}
}

func TestGenBatchInitialConditions_Constraints(t *testing.T) {
	acqf := newBowlAcq(0.5, 0.5)
	ineq := []Constraint{{Indices: []int{0}, Coefficients: []float64{1}, RHS: 0.6}}

	ics, err := GenBatchInitialConditions(acqf, NewUnitBounds(2), 1, 4, 16, nil,
		map[string]any{"seed": int64(13)}, ineq, nil)
	if err != nil {
		t.Fatalf("GenBatchInitialConditions failed: %v", err)
	}
	for i, ic := range ics {
		if got := ic.At(0, 0); got < 0.6-1e-8 {
			t.Errorf("Set %d violates the constraint: x0 = %v", i, got)
		}
	}
}

func TestFilterGenOptions(t *testing.T) {
	in := map[string]any{
		"seed":        int64(1),
		"batch_limit": 8,
		"maxiter":     100,
	}
	out := filterGenOptions(in)
	if _, ok := out["seed"]; ok {
		t.Error("Reserved key seed should be stripped")
	}
	if _, ok := out["batch_limit"]; ok {
		t.Error("Reserved key batch_limit should be stripped")
	}
	if out["maxiter"] != 100 {
		t.Error("Non-reserved key maxiter should pass through")
	}
}

func TestIntOptions(t *testing.T) {
	opts := map[string]any{"a": 5, "b": int64(6), "c": 7.0}
	if intOption(opts, "a", 0) != 5 || intOption(opts, "b", 0) != 6 || intOption(opts, "c", 0) != 7 {
		t.Error("intOption failed to coerce numeric types")
	}
	if intOption(opts, "missing", 42) != 42 {
		t.Error("intOption default not applied")
	}
	if int64Option(opts, "a", 0) != 5 || int64Option(nil, "x", 9) != 9 {
		t.Error("int64Option failed")
	}
}
