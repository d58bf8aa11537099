package app

import (
	"golmm/domain/core"
	"golmm/domain/model"
	"golmm/internal"
	"golmm/internal/prepare"
)

// ICCRow is one outcome's intercept-only variance decomposition: the
// fraction of total outcome variance sitting at each nesting level, plus
// the residual share. The three fractions sum to one.
type ICCRow struct {
	Outcome       string  `json:"outcome"`
	RegionICC     float64 `json:"region_icc"`
	SchoolICC     float64 `json:"school_icc"`
	ResidualShare float64 `json:"residual_share"`
	Converged     bool    `json:"converged"`
}

// NullModelReport fits an intercept-only REML model per outcome and reports
// the variance decomposition. Outcomes whose null model cannot be estimated
// (a constant column, say) are skipped with a warning; anything else, such
// as a missing column, is a real error and aborts the report.
func NullModelReport(frame *prepare.Frame, opts model.Options, outcomes []string, logger *internal.Logger) ([]ICCRow, error) {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	rows := make([]ICCRow, 0, len(outcomes))
	for _, outcome := range outcomes {
		spec, err := model.NewSpec(outcome, nil, []string{"region_id", "school_id"}, model.REML)
		if err != nil {
			return nil, err
		}
		result, err := FitSpec(frame, spec, opts)
		if err != nil {
			if core.IsEstimationError(err) {
				logger.Warn("outcome %s: null model failed: %v", outcome, err)
				continue
			}
			return nil, err
		}

		row := ICCRow{Outcome: outcome, Converged: result.Converged}
		if c, ok := result.Component("region_id"); ok {
			row.RegionICC = c.ICC
		}
		if c, ok := result.Component("school_id"); ok {
			row.SchoolICC = c.ICC
		}
		// The residual component carries no ICC; its share is its variance
		// against the total
		if c, ok := result.Component(model.ResidualLevel); ok {
			if total := result.TotalVariance(); total > 0 {
				row.ResidualShare = c.Variance / total
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
