package model

import (
	"fmt"
	"sort"
	"strings"

	"golmm/domain/core"
)

// Criterion selects the estimation criterion for variance components
type Criterion string

const (
	REML Criterion = "REML" // restricted maximum likelihood
	ML   Criterion = "ML"   // maximum likelihood
)

// DFMethod selects the degrees-of-freedom approximation for fixed-effect t-tests.
// The chosen method is recorded verbatim on the Result so p-values are
// reproducible across implementations.
type DFMethod string

const (
	// DFResidual uses df = n - p for every coefficient
	DFResidual DFMethod = "residual"
	// DFSatterthwaite uses a Satterthwaite-style approximation:
	// df_j = 2*C_jj^2 / Var(C_jj), with Var(C_jj) from a finite-difference
	// delta method over the variance parameters
	DFSatterthwaite DFMethod = "satterthwaite"
)

// Term is one fixed-effect term: a single column name, or a product of
// column names for an interaction
type Term struct {
	Factors []string `json:"factors"`
}

// NewTerm creates a main-effect term
func NewTerm(column string) Term {
	return Term{Factors: []string{column}}
}

// Interaction creates an interaction term from two or more base columns
func Interaction(columns ...string) Term {
	return Term{Factors: columns}
}

// String returns the canonical term name; interaction factors are sorted so
// a:b and b:a compare equal
func (t Term) String() string {
	if len(t.Factors) == 1 {
		return t.Factors[0]
	}
	sorted := make([]string, len(t.Factors))
	copy(sorted, t.Factors)
	sort.Strings(sorted)
	return strings.Join(sorted, ":")
}

// IsInteraction reports whether the term is a product of two or more columns
func (t Term) IsInteraction() bool { return len(t.Factors) > 1 }

// Spec is an immutable description of one regression to fit.
// Construct with NewSpec; derive variants with WithResponse.
type Spec struct {
	Response  string    `json:"response"`
	Terms     []Term    `json:"terms"`   // fixed effects; intercept is implicit
	Nesting   []string  `json:"nesting"` // random-intercept levels, outermost first
	Criterion Criterion `json:"criterion"`
}

// NewSpec validates and constructs a model specification
func NewSpec(response string, terms []Term, nesting []string, criterion Criterion) (Spec, error) {
	if strings.TrimSpace(response) == "" {
		return Spec{}, core.NewSpecError("response variable is required")
	}
	if criterion != REML && criterion != ML {
		return Spec{}, core.NewSpecError(fmt.Sprintf("unknown criterion %q", criterion))
	}
	if len(nesting) == 0 {
		return Spec{}, core.NewSpecError("at least one random-intercept level is required")
	}
	seen := make(map[string]bool, len(terms))
	for _, term := range terms {
		if len(term.Factors) == 0 {
			return Spec{}, core.NewSpecError("empty fixed-effect term")
		}
		for _, f := range term.Factors {
			if strings.TrimSpace(f) == "" {
				return Spec{}, core.NewSpecError("blank factor in fixed-effect term")
			}
		}
		key := term.String()
		if seen[key] {
			return Spec{}, core.NewSpecError(fmt.Sprintf("duplicate term %q", key))
		}
		seen[key] = true
	}
	levels := make(map[string]bool, len(nesting))
	for _, level := range nesting {
		if levels[level] {
			return Spec{}, core.NewSpecError(fmt.Sprintf("duplicate nesting level %q", level))
		}
		levels[level] = true
	}
	return Spec{
		Response:  response,
		Terms:     cloneTerms(terms),
		Nesting:   append([]string(nil), nesting...),
		Criterion: criterion,
	}, nil
}

// MustNewSpec constructs a specification and panics on invalid input.
// Use only in tests and fixtures.
func MustNewSpec(response string, terms []Term, nesting []string, criterion Criterion) Spec {
	spec, err := NewSpec(response, terms, nesting, criterion)
	if err != nil {
		panic(err)
	}
	return spec
}

// WithResponse returns a copy of the specification with a substituted
// response column; the batch runner uses this to iterate outcomes
func (s Spec) WithResponse(response string) Spec {
	out := s
	out.Response = response
	out.Terms = cloneTerms(s.Terms)
	out.Nesting = append([]string(nil), s.Nesting...)
	return out
}

// WithCriterion returns a copy with a different estimation criterion
func (s Spec) WithCriterion(criterion Criterion) Spec {
	out := s.WithResponse(s.Response)
	out.Criterion = criterion
	return out
}

// TermSet returns the canonical term names as a set
func (s Spec) TermSet() map[string]bool {
	set := make(map[string]bool, len(s.Terms))
	for _, t := range s.Terms {
		set[t.String()] = true
	}
	return set
}

// NestsWithin reports whether s's terms and nesting levels are subsets of
// other's, with at least one strict inclusion. Term sets are compared by
// exact canonical strings, not heuristically.
func (s Spec) NestsWithin(other Spec) bool {
	mine, theirs := s.TermSet(), other.TermSet()
	for t := range mine {
		if !theirs[t] {
			return false
		}
	}
	theirLevels := make(map[string]bool, len(other.Nesting))
	for _, l := range other.Nesting {
		theirLevels[l] = true
	}
	for _, l := range s.Nesting {
		if !theirLevels[l] {
			return false
		}
	}
	return len(mine) < len(theirs) || len(s.Nesting) < len(other.Nesting)
}

func cloneTerms(terms []Term) []Term {
	out := make([]Term, len(terms))
	for i, t := range terms {
		out[i] = Term{Factors: append([]string(nil), t.Factors...)}
	}
	return out
}

// Options carries engine tuning knobs that are not part of the model
// identity (the criterion is; it lives on the Spec)
type Options struct {
	MaxIterations int      `json:"max_iterations"` // optimizer budget
	VarianceFloor float64  `json:"variance_floor"` // minimum variance component
	DFMethod      DFMethod `json:"df_method"`
}

// DefaultOptions returns the engine defaults
func DefaultOptions() Options {
	return Options{
		MaxIterations: 500,
		VarianceFloor: 1e-8,
		DFMethod:      DFResidual,
	}
}
