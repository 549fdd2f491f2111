package optimize

import (
	"errors"

	"gonum.org/v1/gonum/mat"
)

// Usage errors surfaced synchronously before any optimization work begins.
var (
	// ErrMissingRawSamples is returned when neither initial conditions nor a
	// raw-sample count are supplied.
	ErrMissingRawSamples = errors.New("optimize: RawSamples must be set when BatchInitialConditions is nil")

	// ErrSequentialAllRestarts is returned for sequential optimization with
	// ReturnAllRestarts; per-restart output is only defined for joint runs.
	ErrSequentialAllRestarts = errors.New("optimize: ReturnAllRestarts is only supported for joint optimization")

	// ErrSequentialOneShot is returned for sequential optimization of a
	// one-shot acquisition function, which requires joint optimization of
	// its augmented tree by construction.
	ErrSequentialOneShot = errors.New("optimize: sequential optimization is not supported for one-shot acquisition functions")

	// ErrEmptyFunctionList is returned by the list variant for an empty list.
	ErrEmptyFunctionList = errors.New("optimize: acquisition function list must be non-empty")

	// ErrEmptyFixedFeaturesList is returned by the mixed variant for an
	// empty fixed-features list.
	ErrEmptyFixedFeaturesList = errors.New("optimize: fixed features list must be non-empty")

	// ErrEmptyChoices is returned by the discrete variant for an empty
	// choice set.
	ErrEmptyChoices = errors.New("optimize: choice set must be non-empty")
)

// initOptionKeys are generation options consumed during initialization only.
// They are stripped before the options map reaches the local solver, which
// would not understand them.
var initOptionKeys = map[string]struct{}{
	"alpha":                           {},
	"batch_limit":                     {},
	"eta":                             {},
	"init_batch_limit":                {},
	"nonnegative":                     {},
	"n_burnin":                        {},
	"sample_around_best":              {},
	"sample_around_best_sigma":        {},
	"sample_around_best_prob_perturb": {},
	"seed":                            {},
	"thinning":                        {},
}

// Options configures a single engine invocation. The zero value requests a
// best-only joint optimization with default generators.
type Options struct {
	// RawSamples is the number of raw samples used to seed the initial
	// condition generator. Required when BatchInitialConditions is nil.
	RawSamples int

	// Generation options. Keys in the reserved initialization set are
	// filtered out before reaching the local solver.
	Options map[string]any

	// Linear constraints over each candidate point.
	Inequality []Constraint
	Equality   []Constraint

	// FixedFeatures pins dimensions to fixed values during optimization.
	FixedFeatures map[int]float64

	// PostProcess, if set, is applied to the concatenated candidate batch
	// before selection.
	PostProcess func([]*mat.Dense) []*mat.Dense

	// BatchInitialConditions bypasses the initial condition generator.
	BatchInitialConditions []*mat.Dense

	// ReturnAllRestarts returns every restart's solution instead of the
	// best one. Only supported for joint optimization.
	ReturnAllRestarts bool

	// Sequential solves q independent single-candidate subproblems instead
	// of one joint q-candidate problem.
	Sequential bool

	// ReturnFullTree skips candidate extraction for one-shot acquisition
	// functions and returns the full augmented tree.
	ReturnFullTree bool

	// Gen is the batched local optimizer. Defaults to GenCandidatesGonum.
	Gen GenCandidatesFunc

	// ICGen generates initial conditions. Defaults to
	// GenBatchInitialConditions, or GenOneShotInitialConditions for
	// one-shot acquisition functions.
	ICGen GenInitialConditionsFunc
}

func (o *Options) clone() *Options {
	c := *o
	return &c
}

// filterGenOptions strips the reserved initialization keys.
func filterGenOptions(opts map[string]any) map[string]any {
	out := make(map[string]any, len(opts))
	for k, v := range opts {
		if _, reserved := initOptionKeys[k]; !reserved {
			out[k] = v
		}
	}
	return out
}

// intOption reads an integer generation option with a default.
func intOption(opts map[string]any, key string, def int) int {
	if opts == nil {
		return def
	}
	if v, ok := opts[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case float64:
			return int(n)
		}
	}
	return def
}

// int64Option reads an int64 generation option with a default.
func int64Option(opts map[string]any, key string, def int64) int64 {
	if opts == nil {
		return def
	}
	if v, ok := opts[key]; ok {
		switch n := v.(type) {
		case int:
			return int64(n)
		case int64:
			return n
		case float64:
			return int64(n)
		}
	}
	return def
}
