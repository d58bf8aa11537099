package lmm

import (
	"errors"
	"math"
	"testing"

	"golmm/domain/core"
	"golmm/domain/model"
	"golmm/internal/prepare"
	"golmm/internal/testkit"

	"gonum.org/v1/gonum/mat"
)

// studyTerms is the full intervention model used by the synthetic tests
func studyTerms() []model.Term {
	return []model.Term{
		model.NewTerm("intervention"),
		model.NewTerm("time_years"),
		model.Interaction("intervention", "time_years"),
		model.NewTerm("teaching_experience_years"),
		model.NewTerm("class_size"),
	}
}

func fitSynthetic(t *testing.T, cfg testkit.SurveyConfig, response string, criterion model.Criterion, opts model.Options) (*prepare.ModelData, *model.Result) {
	t.Helper()
	frame := testkit.GenerateSurveyFrame(cfg)
	spec := model.MustNewSpec(response, studyTerms(), []string{"region_id", "school_id"}, criterion)
	data, err := prepare.Build(frame, spec)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	result, err := Fit(data, spec, opts)
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	return data, result
}

func TestFit_RecoversInjectedEffects(t *testing.T) {
	cfg := testkit.DefaultSurveyConfig()
	_, result := fitSynthetic(t, cfg, "b1", model.ML, model.DefaultOptions())

	intervention, ok := result.Coefficient("intervention")
	if !ok {
		t.Fatal("intervention coefficient missing")
	}
	if math.Abs(intervention.Estimate-cfg.InterventionEffect) > 1.0 {
		t.Errorf("intervention estimate %.3f not within 1.0 of injected %.1f",
			intervention.Estimate, cfg.InterventionEffect)
	}

	timeCoef, ok := result.Coefficient("time_years")
	if !ok {
		t.Fatal("time_years coefficient missing")
	}
	if math.Abs(timeCoef.Estimate-cfg.TimeEffect) > 0.5 {
		t.Errorf("time estimate %.3f not within 0.5 of injected %.1f",
			timeCoef.Estimate, cfg.TimeEffect)
	}

	// No interaction was injected; the estimate should be near zero and its
	// test should not scream significance
	interaction, ok := result.Coefficient("intervention:time_years")
	if !ok {
		t.Fatal("interaction coefficient missing")
	}
	if math.Abs(interaction.Estimate) > 0.5 {
		t.Errorf("interaction estimate %.3f should be near zero", interaction.Estimate)
	}
	if interaction.PValue < 0.01 {
		t.Errorf("interaction p=%.4f should not be strongly significant", interaction.PValue)
	}

	if result.R2Conditional < result.R2Marginal {
		t.Errorf("conditional R2 %.3f below marginal %.3f", result.R2Conditional, result.R2Marginal)
	}
	if len(result.Fitted) != result.RowsUsed || len(result.Residuals) != result.RowsUsed {
		t.Errorf("fitted/residual vectors must cover all %d rows", result.RowsUsed)
	}
}

func TestFit_ZeroBetweenGroupVarianceMatchesOLS(t *testing.T) {
	cfg := testkit.DefaultSurveyConfig()
	cfg.RegionSD = 0
	cfg.SchoolSD = 0
	data, result := fitSynthetic(t, cfg, "b1", model.REML, model.DefaultOptions())

	for _, comp := range result.Components {
		if comp.Level == model.ResidualLevel {
			continue
		}
		if comp.Variance > 0.2 {
			t.Errorf("level %s variance %.4f should collapse toward zero", comp.Level, comp.Variance)
		}
	}

	// With no group variance the GLS estimates reduce to OLS
	n := data.N()
	var beta mat.Dense
	if err := beta.Solve(data.X, mat.NewDense(n, 1, append([]float64(nil), data.Y...))); err != nil {
		t.Fatalf("OLS solve failed: %v", err)
	}
	for j, name := range data.ColNames {
		c, ok := result.Coefficient(name)
		if !ok {
			t.Fatalf("coefficient %s missing", name)
		}
		if diff := math.Abs(c.Estimate - beta.At(j, 0)); diff > 0.3 {
			t.Errorf("coefficient %s: GLS %.4f vs OLS %.4f (diff %.4f)",
				name, c.Estimate, beta.At(j, 0), diff)
		}
	}

	resid, _ := result.Component(model.ResidualLevel)
	if resid.Variance < 0.5 || resid.Variance > 2.0 {
		t.Errorf("residual variance %.3f far from the injected 1.0", resid.Variance)
	}
}

func TestFit_ICCBoundsAndDecomposition(t *testing.T) {
	_, result := fitSynthetic(t, testkit.DefaultSurveyConfig(), "b2", model.REML, model.DefaultOptions())

	sum := 0.0
	for _, comp := range result.Components {
		if comp.Variance < 0 {
			t.Errorf("variance for %s is negative: %v", comp.Level, comp.Variance)
		}
		if comp.Level == model.ResidualLevel {
			if comp.Variance <= 0 {
				t.Error("residual variance must be positive")
			}
			continue
		}
		if comp.ICC < 0 || comp.ICC > 1 {
			t.Errorf("ICC for %s out of [0,1]: %v", comp.Level, comp.ICC)
		}
		sum += comp.ICC
	}
	if sum > 1+1e-9 {
		t.Errorf("level ICCs sum to %.6f, above 1", sum)
	}
}

func TestFit_DegenerateResponse(t *testing.T) {
	cfg := testkit.DefaultSurveyConfig()
	cfg.InterventionEffect = 0
	cfg.TimeEffect = 0
	cfg.InteractionEffect = 0
	cfg.ExperienceEffect = 0
	cfg.ClassSizeEffect = 0
	cfg.RegionSD = 0
	cfg.SchoolSD = 0
	cfg.ResidualSD = 0 // every outcome collapses to the baseline constant

	frame := testkit.GenerateSurveyFrame(cfg)
	spec := model.MustNewSpec("b1", studyTerms(), []string{"region_id", "school_id"}, model.REML)
	data, err := prepare.Build(frame, spec)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	_, err = Fit(data, spec, model.DefaultOptions())
	if !errors.Is(err, core.ErrDegenerateResponse) {
		t.Fatalf("expected degenerate response error, got %v", err)
	}
	if !core.IsEstimationError(err) {
		t.Errorf("degenerate response must classify as an estimation error: %v", err)
	}
}

func TestFit_ReportsDroppedRows(t *testing.T) {
	frame := testkit.GenerateSurveyFrame(testkit.DefaultSurveyConfig())
	vals, _ := frame.Numeric("class_size")
	vals[7] = math.NaN()

	spec := model.MustNewSpec("b1", studyTerms(), []string{"region_id", "school_id"}, model.REML)
	data, err := prepare.Build(frame, spec)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	result, err := Fit(data, spec, model.DefaultOptions())
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	if result.RowsDropped != 1 {
		t.Errorf("expected 1 dropped row, got %d", result.RowsDropped)
	}
	if !result.HasWarning(model.WarningRowsDropped) {
		t.Error("dropped rows must surface as a structured warning")
	}
}

func TestFit_SatterthwaiteDF(t *testing.T) {
	opts := model.DefaultOptions()
	opts.DFMethod = model.DFSatterthwaite
	data, result := fitSynthetic(t, testkit.DefaultSurveyConfig(), "b3", model.REML, opts)

	// Either the approximation succeeded, or it fell back with a warning;
	// both must be visible on the result
	if result.DFMethod == model.DFResidual && !result.HasWarning(model.WarningDFFallback) {
		t.Error("fallback to residual df must carry a warning")
	}
	residualDF := float64(data.N() - data.P())
	for _, c := range result.Coefficients {
		if c.DF < 1 || c.DF > residualDF+1e-9 {
			t.Errorf("coefficient %s df %.2f outside [1, %g]", c.Name, c.DF, residualDF)
		}
		if c.PValue < 0 || c.PValue > 1 {
			t.Errorf("coefficient %s p-value %v outside [0,1]", c.Name, c.PValue)
		}
	}
}

func TestFit_RandomEffectsCoverGroups(t *testing.T) {
	data, result := fitSynthetic(t, testkit.DefaultSurveyConfig(), "b4", model.REML, model.DefaultOptions())

	counts := map[string]int{}
	for _, re := range result.RandomEffects {
		counts[re.Level]++
		if math.IsNaN(re.BLUP) {
			t.Errorf("BLUP for %s/%s is NaN", re.Level, re.Group)
		}
	}
	for _, level := range data.Levels {
		if counts[level.Name] != level.NumGroups() {
			t.Errorf("level %s: %d BLUPs for %d groups", level.Name, counts[level.Name], level.NumGroups())
		}
	}
}
