package model

import (
	"math"
	"testing"
)

func TestTerm_CanonicalString(t *testing.T) {
	if got := NewTerm("x").String(); got != "x" {
		t.Errorf("main effect string %q, want x", got)
	}
	ab := Interaction("a", "b").String()
	ba := Interaction("b", "a").String()
	if ab != "a:b" || ba != "a:b" {
		t.Errorf("interaction strings %q and %q must both canonicalize to a:b", ab, ba)
	}
}

func TestNewSpec_Validation(t *testing.T) {
	nesting := []string{"region", "school"}

	cases := []struct {
		name     string
		response string
		terms    []Term
		nesting  []string
		crit     Criterion
	}{
		{"empty response", "", nil, nesting, REML},
		{"unknown criterion", "y", nil, nesting, Criterion("MAP")},
		{"no nesting", "y", nil, nil, REML},
		{"empty term", "y", []Term{{}}, nesting, REML},
		{"duplicate terms", "y", []Term{NewTerm("x"), NewTerm("x")}, nesting, REML},
		{"duplicate interaction", "y", []Term{Interaction("a", "b"), Interaction("b", "a")}, nesting, REML},
		{"duplicate nesting", "y", nil, []string{"region", "region"}, REML},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewSpec(tc.response, tc.terms, tc.nesting, tc.crit); err == nil {
				t.Error("expected a validation error")
			}
		})
	}

	if _, err := NewSpec("y", []Term{NewTerm("x")}, nesting, ML); err != nil {
		t.Errorf("valid spec rejected: %v", err)
	}
}

func TestSpec_NestsWithin(t *testing.T) {
	nesting := []string{"region", "school"}
	reduced := MustNewSpec("y", []Term{NewTerm("a")}, nesting, ML)
	full := MustNewSpec("y", []Term{NewTerm("a"), NewTerm("b")}, nesting, ML)
	other := MustNewSpec("y", []Term{NewTerm("c")}, nesting, ML)

	if !reduced.NestsWithin(full) {
		t.Error("strict term subset must nest")
	}
	if full.NestsWithin(reduced) {
		t.Error("the fuller model cannot nest within the reduced one")
	}
	if reduced.NestsWithin(reduced) {
		t.Error("a spec must not nest within itself")
	}
	if other.NestsWithin(full) {
		t.Error("disjoint term sets must not nest")
	}

	fewerLevels := MustNewSpec("y", []Term{NewTerm("a")}, []string{"school"}, ML)
	if !fewerLevels.NestsWithin(reduced) {
		t.Error("a strict nesting-level subset with equal terms must nest")
	}
}

func TestSpec_WithResponseIsACopy(t *testing.T) {
	base := MustNewSpec("b1", []Term{NewTerm("x")}, []string{"region"}, REML)
	derived := base.WithResponse("b2")

	if derived.Response != "b2" || base.Response != "b1" {
		t.Fatalf("WithResponse must not mutate the original: %q / %q", base.Response, derived.Response)
	}
	derived.Terms[0].Factors[0] = "mutated"
	if base.Terms[0].Factors[0] != "x" {
		t.Error("derived spec shares term storage with its origin")
	}
}

func TestSpec_WithCriterionIsACopy(t *testing.T) {
	base := MustNewSpec("b1", []Term{NewTerm("x")}, []string{"region"}, REML)
	derived := base.WithCriterion(ML)

	if derived.Criterion != ML || base.Criterion != REML {
		t.Fatalf("WithCriterion must not mutate the original: %q / %q", base.Criterion, derived.Criterion)
	}
	derived.Terms[0].Factors[0] = "mutated"
	if base.Terms[0].Factors[0] != "x" {
		t.Error("derived spec shares term storage with its origin")
	}
}

func TestInformationCriteria(t *testing.T) {
	aic, bic := InformationCriteria(-100, 5, 300)
	if math.Abs(aic-210) > 1e-12 {
		t.Errorf("AIC = %v, want 210", aic)
	}
	wantBIC := 200 + 5*math.Log(300)
	if math.Abs(bic-wantBIC) > 1e-12 {
		t.Errorf("BIC = %v, want %v", bic, wantBIC)
	}
}
