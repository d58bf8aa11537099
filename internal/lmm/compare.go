package lmm

import (
	"fmt"
	"math"

	"golmm/domain/core"
	"golmm/domain/model"

	"gonum.org/v1/gonum/stat/distuv"
)

// Comparison is the output of a likelihood-ratio test between two nested
// model fits, plus the information criteria of both
type Comparison struct {
	Response  string          `json:"response"`
	Criterion model.Criterion `json:"criterion"`

	LRStatistic float64 `json:"lr_statistic"`
	DFDiff      int     `json:"df_diff"`
	PValue      float64 `json:"p_value"`

	LogLikA float64 `json:"log_lik_a"`
	LogLikB float64 `json:"log_lik_b"`
	AICA    float64 `json:"aic_a"`
	AICB    float64 `json:"aic_b"`
	BICA    float64 `json:"bic_a"`
	BICB    float64 `json:"bic_b"`
}

// Compare runs a likelihood-ratio test of the reduced model A against the
// fuller model B. A's term set and random-effect structure must be a strict
// subset of B's (checked by exact canonical term strings, never
// heuristically), both fits must share the response, the data and the
// estimation criterion, and REML fits cannot be compared across different
// fixed-effect sets.
func Compare(specA model.Spec, a *model.Result, specB model.Spec, b *model.Result) (*Comparison, error) {
	if a.Response != b.Response {
		return nil, fmt.Errorf("%w: %q vs %q", core.ErrResponseMismatch, a.Response, b.Response)
	}
	if a.Criterion != b.Criterion {
		return nil, fmt.Errorf("%w: %s vs %s", core.ErrCriterionMismatch, a.Criterion, b.Criterion)
	}
	if a.RowsUsed != b.RowsUsed {
		return nil, fmt.Errorf("%w: %d vs %d rows", core.ErrSampleSizeMismatch, a.RowsUsed, b.RowsUsed)
	}
	if !specA.NestsWithin(specB) {
		return nil, fmt.Errorf("%w: %q terms are not a strict subset of %q terms",
			core.ErrNotNested, specA.Response, specB.Response)
	}
	fixedDiffer := len(specA.TermSet()) != len(specB.TermSet())
	if a.Criterion == model.REML && fixedDiffer {
		return nil, core.ErrREMLNotComparable
	}

	dfDiff := b.NumParams - a.NumParams
	if dfDiff < 1 {
		return nil, fmt.Errorf("%w: parameter counts %d vs %d", core.ErrNotNested,
			a.NumParams, b.NumParams)
	}

	// The fuller model can never fit worse; negative differences are
	// round-off and clamped to zero
	lr := math.Max(0, 2*(b.LogLik-a.LogLik))
	chi := distuv.ChiSquared{K: float64(dfDiff)}

	return &Comparison{
		Response:    a.Response,
		Criterion:   a.Criterion,
		LRStatistic: lr,
		DFDiff:      dfDiff,
		PValue:      1 - chi.CDF(lr),
		LogLikA:     a.LogLik,
		LogLikB:     b.LogLik,
		AICA:        a.AIC,
		AICB:        b.AIC,
		BICA:        a.BIC,
		BICB:        b.BIC,
	}, nil
}
