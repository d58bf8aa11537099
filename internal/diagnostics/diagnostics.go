// Package diagnostics computes post-fit checks on a model result: residual
// shape, normality of residuals and random effects, and a simple
// heteroscedasticity indicator. Everything here is computed, never rendered;
// charting belongs to an external caller.
package diagnostics

import (
	"fmt"
	"math"
	"sort"

	"golmm/domain/model"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat/distuv"
)

// NormalityTest is a Shapiro-Francia-style normality check: the squared
// correlation between sorted values and their expected normal order
// statistics, with Royston's normal approximation for the p-value.
type NormalityTest struct {
	WPrime     float64 `json:"w_prime"`
	PValue     float64 `json:"p_value"`
	SampleSize int     `json:"sample_size"`
}

// Report collects the summary diagnostics for one fit
type Report struct {
	FitID    string `json:"fit_id"`
	Response string `json:"response"`

	Skewness float64 `json:"skewness"`
	Kurtosis float64 `json:"kurtosis"` // excess kurtosis

	ResidualNormality     NormalityTest            `json:"residual_normality"`
	RandomEffectNormality map[string]NormalityTest `json:"random_effect_normality"`

	// Pearson correlation between squared residuals and fitted values;
	// values far from zero indicate heteroscedasticity
	Heteroscedasticity float64 `json:"heteroscedasticity"`

	StandardizedResiduals []float64 `json:"standardized_residuals"`
}

// Diagnose computes the diagnostic report for a finished fit
func Diagnose(result *model.Result) (*Report, error) {
	if len(result.Residuals) == 0 {
		return nil, fmt.Errorf("result has no residuals")
	}

	report := &Report{
		FitID:                 result.FitID.String(),
		Response:              result.Response,
		RandomEffectNormality: make(map[string]NormalityTest),
	}

	resid := result.Residuals
	mean, _ := stats.Mean(resid)
	sd, _ := stats.StandardDeviation(resid)
	report.Skewness = moment(resid, mean, sd, 3)
	report.Kurtosis = moment(resid, mean, sd, 4) - 3

	residualVar := 1.0
	if comp, ok := result.Component(model.ResidualLevel); ok && comp.Variance > 0 {
		residualVar = comp.Variance
	}
	report.StandardizedResiduals = make([]float64, len(resid))
	scale := math.Sqrt(residualVar)
	for i, r := range resid {
		report.StandardizedResiduals[i] = r / scale
	}

	report.ResidualNormality = ShapiroFrancia(resid)
	for level, blups := range blupsByLevel(result) {
		report.RandomEffectNormality[level] = ShapiroFrancia(blups)
	}

	squared := make([]float64, len(resid))
	for i, r := range resid {
		squared[i] = r * r
	}
	if corr, err := stats.Pearson(squared, result.Fitted); err == nil {
		report.Heteroscedasticity = corr
	}

	return report, nil
}

func blupsByLevel(result *model.Result) map[string][]float64 {
	byLevel := make(map[string][]float64)
	for _, re := range result.RandomEffects {
		byLevel[re.Level] = append(byLevel[re.Level], re.BLUP)
	}
	return byLevel
}

// moment computes the standardized sample moment of the given order
func moment(data []float64, mean, sd float64, order float64) float64 {
	if sd == 0 || len(data) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range data {
		sum += math.Pow((v-mean)/sd, order)
	}
	return sum / float64(len(data))
}

// ShapiroFrancia computes the W' statistic: the squared Pearson correlation
// between the sorted sample and Blom-scored normal quantiles. The p-value
// uses Royston's (1993) normal approximation of ln(1 - W').
func ShapiroFrancia(data []float64) NormalityTest {
	n := len(data)
	if n < 5 {
		return NormalityTest{WPrime: 1, PValue: 1, SampleSize: n}
	}

	sorted := make([]float64, n)
	copy(sorted, data)
	sort.Float64s(sorted)

	quantiles := make([]float64, n)
	for i := range quantiles {
		p := (float64(i+1) - 0.375) / (float64(n) + 0.25)
		quantiles[i] = distuv.UnitNormal.Quantile(p)
	}

	corr, err := stats.Pearson(sorted, quantiles)
	if err != nil || math.IsNaN(corr) {
		return NormalityTest{WPrime: 0, PValue: 0, SampleSize: n}
	}
	w := corr * corr
	if w >= 1 {
		return NormalityTest{WPrime: 1, PValue: 1, SampleSize: n}
	}

	u := math.Log(math.Log(float64(n)))
	v := math.Log(float64(n))
	mu := -1.2725 + 1.0521*(u-v)
	sigma := 1.0308 - 0.26758*(u+2/v)
	z := (math.Log(1-w) - mu) / sigma
	p := 1 - distuv.UnitNormal.CDF(z)

	return NormalityTest{WPrime: w, PValue: p, SampleSize: n}
}
