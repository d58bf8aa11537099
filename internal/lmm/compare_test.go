package lmm

import (
	"errors"
	"testing"

	"golmm/domain/core"
	"golmm/domain/model"
	"golmm/internal/prepare"
	"golmm/internal/testkit"
)

func fitOn(t *testing.T, frame *prepare.Frame, spec model.Spec) *model.Result {
	t.Helper()
	data, err := prepare.Build(frame, spec)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	result, err := Fit(data, spec, model.DefaultOptions())
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	return result
}

func mainEffects() []model.Term {
	return []model.Term{
		model.NewTerm("intervention"),
		model.NewTerm("time_years"),
		model.NewTerm("teaching_experience_years"),
		model.NewTerm("class_size"),
	}
}

func withInteraction() []model.Term {
	return append(mainEffects(), model.Interaction("intervention", "time_years"))
}

func TestCompare_InteractionLRT(t *testing.T) {
	frame := testkit.GenerateSurveyFrame(testkit.DefaultSurveyConfig())
	nesting := []string{"region_id", "school_id"}

	reduced := model.MustNewSpec("b1", mainEffects(), nesting, model.ML)
	full := model.MustNewSpec("b1", withInteraction(), nesting, model.ML)

	a := fitOn(t, frame, reduced)
	b := fitOn(t, frame, full)

	cmp, err := Compare(reduced, a, full, b)
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}

	if cmp.DFDiff != 1 {
		t.Errorf("expected 1 extra parameter, got %d", cmp.DFDiff)
	}
	if cmp.LRStatistic < 0 {
		t.Errorf("LR statistic %.4f must be non-negative", cmp.LRStatistic)
	}
	if cmp.PValue < 0 || cmp.PValue > 1 {
		t.Errorf("p-value %v outside [0,1]", cmp.PValue)
	}
	// The fuller model cannot fit materially worse; small optimizer slack
	// is tolerated
	if b.LogLik < a.LogLik-0.5 {
		t.Errorf("full model loglik %.4f well below reduced %.4f", b.LogLik, a.LogLik)
	}
}

func TestCompare_RejectsNonNestedTerms(t *testing.T) {
	frame := testkit.GenerateSurveyFrame(testkit.DefaultSurveyConfig())
	nesting := []string{"region_id", "school_id"}

	specA := model.MustNewSpec("b1", []model.Term{model.NewTerm("class_size")}, nesting, model.ML)
	specB := model.MustNewSpec("b1", []model.Term{
		model.NewTerm("intervention"), model.NewTerm("time_years"),
	}, nesting, model.ML)

	a := fitOn(t, frame, specA)
	b := fitOn(t, frame, specB)

	_, err := Compare(specA, a, specB, b)
	if !core.IsNotNested(err) {
		t.Fatalf("expected not-nested error, got %v", err)
	}
}

func TestCompare_RefusesREMLAcrossFixedEffects(t *testing.T) {
	frame := testkit.GenerateSurveyFrame(testkit.DefaultSurveyConfig())
	nesting := []string{"region_id", "school_id"}

	reduced := model.MustNewSpec("b1", mainEffects(), nesting, model.REML)
	full := model.MustNewSpec("b1", withInteraction(), nesting, model.REML)

	a := fitOn(t, frame, reduced)
	b := fitOn(t, frame, full)

	_, err := Compare(reduced, a, full, b)
	if !errors.Is(err, core.ErrREMLNotComparable) {
		t.Fatalf("expected REML comparability refusal, got %v", err)
	}
}

func TestCompare_RejectsCriterionMismatch(t *testing.T) {
	frame := testkit.GenerateSurveyFrame(testkit.DefaultSurveyConfig())
	nesting := []string{"region_id", "school_id"}

	reduced := model.MustNewSpec("b1", mainEffects(), nesting, model.ML)
	full := model.MustNewSpec("b1", withInteraction(), nesting, model.REML)

	a := fitOn(t, frame, reduced)
	b := fitOn(t, frame, full)

	_, err := Compare(reduced, a, full, b)
	if !errors.Is(err, core.ErrCriterionMismatch) {
		t.Fatalf("expected criterion mismatch, got %v", err)
	}
}

func TestCompare_RejectsResponseMismatch(t *testing.T) {
	frame := testkit.GenerateSurveyFrame(testkit.DefaultSurveyConfig())
	nesting := []string{"region_id", "school_id"}

	reduced := model.MustNewSpec("b1", mainEffects(), nesting, model.ML)
	full := model.MustNewSpec("b2", withInteraction(), nesting, model.ML)

	a := fitOn(t, frame, reduced)
	b := fitOn(t, frame, full)

	_, err := Compare(reduced, a, full, b)
	if !errors.Is(err, core.ErrResponseMismatch) {
		t.Fatalf("expected response mismatch, got %v", err)
	}
}
