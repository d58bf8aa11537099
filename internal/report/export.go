// Package report writes finished analysis artifacts to disk for the
// external reporting layer: an indented JSON document with the complete
// batch, and a flat CSV with one comparative row per outcome.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strconv"

	"golmm/domain/model"
	apperrors "golmm/internal/errors"
)

// WriteJSON marshals any document with indentation and writes it to path
func WriteJSON(path string, doc interface{}) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return apperrors.Wrapf(err, "failed to marshal %s", path)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return apperrors.Wrapf(err, "failed to write %s", path)
	}
	return nil
}

// ReadSummary loads a batch summary previously written by WriteJSON
func ReadSummary(path string) (*model.BatchSummary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.DataSourceError(path, err)
	}
	var summary model.BatchSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, apperrors.DataSourceError(path, err)
	}
	return &summary, nil
}

// WriteSummaryCSV writes the per-outcome rows; missing statistics are
// emitted as empty cells
func WriteSummaryCSV(path string, summary *model.BatchSummary) error {
	file, err := os.Create(path)
	if err != nil {
		return apperrors.Wrapf(err, "failed to create %s", path)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	header := []string{
		"outcome", "intercept",
		"intervention_effect", "intervention_p",
		"time_effect", "time_p",
		"interaction_effect", "interaction_p",
		"r2_marginal", "r2_conditional",
		"converged", "error",
	}
	if err := w.Write(header); err != nil {
		return apperrors.Wrapf(err, "failed to write %s", path)
	}
	for _, row := range summary.Rows {
		record := []string{
			row.Outcome,
			fmtStat(row.Intercept),
			fmtStat(row.InterventionEffect),
			fmtStat(row.InterventionP),
			fmtStat(row.TimeEffect),
			fmtStat(row.TimeP),
			fmtStat(row.InteractionEffect),
			fmtStat(row.InteractionP),
			fmtStat(row.R2Marginal),
			fmtStat(row.R2Conditional),
			strconv.FormatBool(row.Converged),
			row.Error,
		}
		if err := w.Write(record); err != nil {
			return apperrors.Wrapf(err, "failed to write %s", path)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return apperrors.Wrapf(err, "failed to flush %s", path)
	}
	return nil
}

func fmtStat(s model.Stat) string {
	v := float64(s)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return fmt.Sprintf("%.6g", v)
}
