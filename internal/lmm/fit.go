package lmm

import (
	"fmt"
	"math"

	"golmm/domain/core"
	"golmm/domain/model"
	"golmm/internal/prepare"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Fit estimates one model specification on prepared data and produces an
// immutable Result. Fatal conditions (degenerate response, singular design)
// return an error; recoverable ones (non-convergence, boundary variances,
// dropped rows) are attached to the Result as structured warnings.
func Fit(data *prepare.ModelData, spec model.Spec, opts model.Options) (*model.Result, error) {
	opts = withDefaults(opts)

	if v := stat.Variance(data.Y, nil); v < 1e-12 {
		return nil, core.NewDegenerateResponseError(spec.Response)
	}

	pr := &profiler{data: data, reml: spec.Criterion == model.REML}
	est, err := estimateTheta(pr, data, opts)
	if err != nil {
		return nil, err
	}
	ev, err := pr.eval(est.theta)
	if err != nil {
		return nil, fmt.Errorf("likelihood evaluation at the optimum failed: %w", err)
	}

	n, p := data.N(), data.P()
	k := len(data.Levels)

	result := &model.Result{
		FitID:       core.NewFitID(),
		Response:    spec.Response,
		Criterion:   spec.Criterion,
		DFMethod:    opts.DFMethod,
		CreatedAt:   core.Now(),
		LogLik:      ev.logLik,
		NumParams:   p + k + 1,
		RowsUsed:    n,
		RowsDropped: data.RowsDropped,
		Converged:   est.converged,
		EvalCount:   est.evals,
	}
	result.AIC, result.BIC = model.InformationCriteria(ev.logLik, result.NumParams, n)

	if !est.converged {
		result.AddWarning(model.WarningConvergence,
			"optimizer stopped after %d evaluations without meeting tolerance", est.evals)
	}
	if data.RowsDropped > 0 {
		result.AddWarning(model.WarningRowsDropped,
			"%d rows dropped for missing response or covariates", data.RowsDropped)
	}

	total := 0.0
	for _, v := range est.theta {
		total += v
	}
	for lev, level := range data.Levels {
		atFloor := est.theta[lev] <= opts.VarianceFloor
		if atFloor {
			result.AddWarning(model.WarningVarianceFloor,
				"variance component for %s estimated at the boundary", level.Name)
		}
		result.Components = append(result.Components, model.VarianceComponent{
			Level:    level.Name,
			Variance: est.theta[lev],
			ICC:      est.theta[lev] / total,
			AtFloor:  atFloor,
		})
	}
	result.Components = append(result.Components, model.VarianceComponent{
		Level:    model.ResidualLevel,
		Variance: est.theta[k],
	})

	if err := fillCoefficients(result, data, pr, ev, opts); err != nil {
		return nil, err
	}
	fillRandomEffects(result, data, ev)
	fillFitAndResiduals(result, data, ev, est.theta)

	return result, nil
}

func withDefaults(opts model.Options) model.Options {
	def := model.DefaultOptions()
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = def.MaxIterations
	}
	if opts.VarianceFloor <= 0 {
		opts.VarianceFloor = def.VarianceFloor
	}
	if opts.DFMethod == "" {
		opts.DFMethod = def.DFMethod
	}
	return opts
}

// fillCoefficients computes GLS estimates, standard errors and t-tests
func fillCoefficients(result *model.Result, data *prepare.ModelData, pr *profiler, ev *evaluation, opts model.Options) error {
	n, p := data.N(), data.P()
	cov, err := ev.coefCovariance()
	if err != nil {
		return err
	}

	dfs := make([]float64, p)
	residualDF := math.Max(float64(n-p), 1)
	for j := range dfs {
		dfs[j] = residualDF
	}
	if opts.DFMethod == model.DFSatterthwaite {
		satt, err := satterthwaiteDF(pr, ev, cov, n, p)
		if err != nil {
			result.AddWarning(model.WarningDFFallback,
				"satterthwaite df unavailable (%v); residual df used", err)
			result.DFMethod = model.DFResidual
		} else {
			dfs = satt
		}
	}

	for j := 0; j < p; j++ {
		est := ev.beta.AtVec(j)
		se := math.Sqrt(math.Max(cov.At(j, j), 0))
		t := 0.0
		pValue := 1.0
		if se > 0 {
			t = est / se
			tDist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: dfs[j]}
			pValue = 2 * (1 - tDist.CDF(math.Abs(t)))
		}
		result.Coefficients = append(result.Coefficients, model.Coefficient{
			Name:     data.ColNames[j],
			Estimate: est,
			StdErr:   se,
			TValue:   t,
			DF:       dfs[j],
			PValue:   pValue,
		})
	}
	return nil
}

// fillRandomEffects computes the BLUPs: u_k = theta_k Z_k' V^-1 (y - X beta).
// Z_k' picks the rows of each group, so each BLUP is a theta-scaled sum of
// the whitened residuals over the group's observations.
func fillRandomEffects(result *model.Result, data *prepare.ModelData, ev *evaluation) {
	for lev, level := range data.Levels {
		sums := make([]float64, level.NumGroups())
		for i, g := range level.Index {
			sums[g] += ev.vinvR[i]
		}
		for g, label := range level.Groups {
			result.RandomEffects = append(result.RandomEffects, model.RandomEffect{
				Level: level.Name,
				Group: label,
				BLUP:  ev.theta[lev] * sums[g],
			})
		}
	}
}

// fillFitAndResiduals computes conditional fitted values, residuals and the
// Nakagawa-style marginal/conditional R-squared decomposition
func fillFitAndResiduals(result *model.Result, data *prepare.ModelData, ev *evaluation, theta []float64) {
	n := data.N()
	k := len(data.Levels)

	marginal := mat.NewVecDense(n, nil)
	marginal.MulVec(data.X, ev.beta)

	blups := make([][]float64, k)
	for lev, level := range data.Levels {
		blups[lev] = make([]float64, level.NumGroups())
		for i, g := range level.Index {
			blups[lev][g] += ev.vinvR[i]
		}
		for g := range blups[lev] {
			blups[lev][g] *= theta[lev]
		}
	}

	fitted := make([]float64, n)
	residuals := make([]float64, n)
	marginalVals := make([]float64, n)
	for i := 0; i < n; i++ {
		f := marginal.AtVec(i)
		marginalVals[i] = f
		for lev, level := range data.Levels {
			f += blups[lev][level.Index[i]]
		}
		fitted[i] = f
		residuals[i] = data.Y[i] - f
	}
	result.Fitted = fitted
	result.Residuals = residuals

	varFixed := stat.Variance(marginalVals, nil)
	varRandom := 0.0
	for lev := 0; lev < k; lev++ {
		varRandom += theta[lev]
	}
	denom := varFixed + varRandom + theta[k]
	if denom > 0 {
		result.R2Marginal = varFixed / denom
		result.R2Conditional = (varFixed + varRandom) / denom
	}
}
