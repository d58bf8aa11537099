package model

import (
	"encoding/json"
	"math"
	"testing"
)

func TestStat_MarshalsNaNAsNull(t *testing.T) {
	row := SummaryRow{
		Outcome:            "b1",
		Intercept:          Stat(60.5),
		InterventionEffect: Stat(math.NaN()),
	}
	data, err := json.Marshal(row)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded SummaryRow
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if float64(decoded.Intercept) != 60.5 {
		t.Errorf("intercept %v, want 60.5", decoded.Intercept)
	}
	if !math.IsNaN(float64(decoded.InterventionEffect)) {
		t.Errorf("null must decode back to NaN, got %v", decoded.InterventionEffect)
	}
}

func TestBatchSummary_Entry(t *testing.T) {
	summary := &BatchSummary{
		Entries: []BatchEntry{
			{Outcome: "b1", Result: &Result{Response: "b1"}},
			{Outcome: "b2", Error: "fit failed"},
		},
	}

	entry, ok := summary.Entry("b2")
	if !ok || !entry.Failed() {
		t.Errorf("expected the failed b2 entry, got %+v (ok=%v)", entry, ok)
	}
	if _, ok := summary.Entry("b9"); ok {
		t.Error("unknown outcome must not resolve")
	}
}
