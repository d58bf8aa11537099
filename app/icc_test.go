package app

import (
	"math"
	"testing"

	"golmm/domain/core"
	"golmm/domain/model"
	"golmm/internal/testkit"
)

func TestNullModelReport_VarianceShares(t *testing.T) {
	frame := testkit.GenerateSurveyFrame(testkit.DefaultSurveyConfig())

	rows, err := NullModelReport(frame, model.DefaultOptions(), []string{"b1"}, nil)
	if err != nil {
		t.Fatalf("NullModelReport failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	row := rows[0]

	// The residual carries real variance on this data; a zero share means
	// the decomposition dropped it
	if row.ResidualShare <= 0.05 || row.ResidualShare >= 0.95 {
		t.Errorf("residual share %.4f implausible for the synthetic survey", row.ResidualShare)
	}
	for name, share := range map[string]float64{
		"region":   row.RegionICC,
		"school":   row.SchoolICC,
		"residual": row.ResidualShare,
	} {
		if share < 0 || share > 1 {
			t.Errorf("%s share %.4f outside [0,1]", name, share)
		}
	}
	sum := row.RegionICC + row.SchoolICC + row.ResidualShare
	if math.Abs(sum-1) > 1e-6 {
		t.Errorf("variance shares sum to %.6f, want 1", sum)
	}
}

func TestNullModelReport_SkipsDegenerateOutcomes(t *testing.T) {
	frame := testkit.GenerateSurveyFrame(testkit.DefaultSurveyConfig())
	if err := frame.AddNumeric("flat", make([]float64, frame.Len())); err != nil {
		t.Fatalf("AddNumeric failed: %v", err)
	}

	rows, err := NullModelReport(frame, model.DefaultOptions(), []string{"b1", "flat"}, nil)
	if err != nil {
		t.Fatalf("a degenerate outcome must be skipped, not fatal: %v", err)
	}
	if len(rows) != 1 || rows[0].Outcome != "b1" {
		t.Fatalf("expected only the b1 row, got %+v", rows)
	}
}

func TestNullModelReport_UnknownColumnIsFatal(t *testing.T) {
	frame := testkit.GenerateSurveyFrame(testkit.DefaultSurveyConfig())

	_, err := NullModelReport(frame, model.DefaultOptions(), []string{"b99"}, nil)
	if !core.IsSchemaError(err) {
		t.Fatalf("expected a schema error for an unknown outcome, got %v", err)
	}
}
