package model

import (
	"encoding/json"
	"math"

	"golmm/domain/core"
)

// Stat is a float64 that serializes NaN/Inf as JSON null, so absent
// statistics survive serialization instead of poisoning the document
type Stat float64

// MarshalJSON renders non-finite values as null
func (s Stat) MarshalJSON() ([]byte, error) {
	v := float64(s)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

// UnmarshalJSON reads null back as NaN
func (s *Stat) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = Stat(math.NaN())
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*s = Stat(v)
	return nil
}

// BatchEntry is the outcome of one fit inside a batch: either a Result or a
// captured error, never a silent omission
type BatchEntry struct {
	Outcome string  `json:"outcome"`
	Result  *Result `json:"result,omitempty"`
	Error   string  `json:"error,omitempty"`
}

// Failed reports whether this entry captured an error
func (e BatchEntry) Failed() bool { return e.Error != "" }

// SummaryRow is one comparative row per outcome, mirroring the shape handed
// to the external reporting layer
type SummaryRow struct {
	Outcome            string `json:"outcome"`
	Intercept          Stat   `json:"intercept"`
	InterventionEffect Stat   `json:"intervention_effect"`
	InterventionP      Stat   `json:"intervention_p"`
	TimeEffect         Stat   `json:"time_effect"`
	TimeP              Stat   `json:"time_p"`
	InteractionEffect  Stat   `json:"interaction_effect"`
	InteractionP       Stat   `json:"interaction_p"`
	R2Marginal         Stat   `json:"r2_marginal"`
	R2Conditional      Stat   `json:"r2_conditional"`
	Converged          bool   `json:"converged"`
	Error              string `json:"error,omitempty"`
}

// BatchSummary aggregates one batch run across outcome variables
type BatchSummary struct {
	BatchID   core.BatchID   `json:"batch_id"`
	CreatedAt core.Timestamp `json:"created_at"`
	Criterion Criterion      `json:"criterion"`

	Entries []BatchEntry `json:"entries"`
	Rows    []SummaryRow `json:"rows"`

	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Entry returns the batch entry for an outcome, if present
func (b *BatchSummary) Entry(outcome string) (BatchEntry, bool) {
	for _, e := range b.Entries {
		if e.Outcome == outcome {
			return e, true
		}
	}
	return BatchEntry{}, false
}
