package lmm

import (
	"fmt"
	"math"

	"golmm/domain/model"
	"golmm/internal/prepare"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
)

// estimate maximizes the profiled log-likelihood over the variance
// parameters. Positivity is enforced by optimizing over log-variances and
// flooring after the exponential, so boundary solutions are clamped and
// flagged rather than crashed on. The only budget is the iteration cap:
// non-convergence is reported, never raised.
type estimate struct {
	theta     []float64
	converged bool
	evals     int
}

func estimateTheta(pr *profiler, data *prepare.ModelData, opts model.Options) (*estimate, error) {
	start := momStart(data, opts.VarianceFloor)

	// The start point must be evaluable; a failure here is a real modeling
	// error (e.g. rank-deficient design), not a convergence problem.
	if _, err := pr.eval(start); err != nil {
		return nil, fmt.Errorf("initial likelihood evaluation failed: %w", err)
	}

	eta0 := make([]float64, len(start))
	for i, v := range start {
		eta0[i] = math.Log(v)
	}

	evals := 0
	problem := optimize.Problem{
		Func: func(eta []float64) float64 {
			evals++
			ev, err := pr.eval(thetaFromEta(eta, opts.VarianceFloor))
			if err != nil {
				return math.Inf(1)
			}
			return -ev.logLik
		},
	}
	settings := &optimize.Settings{
		MajorIterations: opts.MaxIterations,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-10,
			Iterations: 50,
		},
	}

	result, err := optimize.Minimize(problem, eta0, settings, &optimize.NelderMead{})

	best := eta0
	converged := false
	if result != nil && len(result.X) == len(eta0) && !math.IsInf(result.F, 0) {
		best = result.X
		converged = err == nil &&
			(result.Status == optimize.FunctionConvergence ||
				result.Status == optimize.MethodConverge)
	}

	return &estimate{
		theta:     thetaFromEta(best, opts.VarianceFloor),
		converged: converged,
		evals:     evals,
	}, nil
}

func thetaFromEta(eta []float64, floor float64) []float64 {
	theta := make([]float64, len(eta))
	for i, e := range eta {
		theta[i] = math.Max(math.Exp(e), floor)
	}
	return theta
}

// momStart seeds the optimizer with method-of-moments estimates: an OLS fit
// gives raw residuals, whose between/within group decomposition per nesting
// level yields non-degenerate starting variances.
func momStart(data *prepare.ModelData, floor float64) []float64 {
	n, p := data.N(), data.P()
	k := len(data.Levels)
	theta := make([]float64, k+1)

	resid := olsResiduals(data)
	s2 := 0.0
	for _, e := range resid {
		s2 += e * e
	}
	if n > p {
		s2 /= float64(n - p)
	} else {
		s2 /= float64(n)
	}
	if s2 < floor {
		s2 = math.Max(floor, 1e-6)
	}

	for lev, level := range data.Levels {
		groups := level.NumGroups()
		sums := make([]float64, groups)
		counts := make([]float64, groups)
		for i, g := range level.Index {
			sums[g] += resid[i]
			counts[g]++
		}
		means := make([]float64, groups)
		avgSize := 0.0
		for g := range sums {
			means[g] = sums[g] / counts[g]
			avgSize += counts[g]
		}
		avgSize /= float64(groups)

		between := 0.0
		if groups > 1 {
			between = stat.Variance(means, nil) - s2/avgSize
		}
		theta[lev] = math.Max(between, 0.02*s2)
	}
	theta[k] = s2
	return theta
}

// olsResiduals computes ordinary least squares residuals of y on X
func olsResiduals(data *prepare.ModelData) []float64 {
	n := data.N()
	y := mat.NewDense(n, 1, append([]float64(nil), data.Y...))

	var beta mat.Dense
	resid := make([]float64, n)
	if err := beta.Solve(data.X, y); err != nil {
		// Fall back to centered response; the optimizer start only needs a
		// usable scale, not a good fit
		mean := stat.Mean(data.Y, nil)
		for i, v := range data.Y {
			resid[i] = v - mean
		}
		return resid
	}

	var fitted mat.Dense
	fitted.Mul(data.X, &beta)
	for i := 0; i < n; i++ {
		resid[i] = data.Y[i] - fitted.At(i, 0)
	}
	return resid
}
