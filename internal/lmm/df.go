package lmm

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// satterthwaiteDF computes a Satterthwaite-style degrees-of-freedom
// approximation for each fixed effect:
//
//	df_j = 2 * C_jj^2 / Var(C_jj)
//
// where C = (X'V^-1 X)^-1 and Var(C_jj) comes from a finite-difference
// delta method: the gradient of C_jj with respect to theta, combined with
// Cov(theta) taken as the inverse finite-difference Hessian of the profiled
// deviance. Exact Satterthwaite needs analytic derivatives; this numerical
// variant is documented on the Result as "satterthwaite".
func satterthwaiteDF(pr *profiler, ev *evaluation, cov *mat.SymDense, n, p int) ([]float64, error) {
	theta := ev.theta
	q := len(theta)

	steps := make([]float64, q)
	for i, t := range theta {
		steps[i] = math.Min(math.Max(1e-3*t, 1e-6), 0.5*t)
		if steps[i] <= 0 {
			return nil, fmt.Errorf("variance parameter %d too small to differentiate", i)
		}
	}

	negLogLik := func(t []float64) (float64, error) {
		e, err := pr.eval(t)
		if err != nil {
			return 0, err
		}
		return -e.logLik, nil
	}

	covTheta, err := thetaCovariance(negLogLik, theta, steps, q)
	if err != nil {
		return nil, err
	}

	// C_jj at perturbed theta, for the delta-method gradients
	diagAt := func(t []float64) ([]float64, error) {
		e, err := pr.eval(t)
		if err != nil {
			return nil, err
		}
		c, err := e.coefCovariance()
		if err != nil {
			return nil, err
		}
		diag := make([]float64, p)
		for j := 0; j < p; j++ {
			diag[j] = c.At(j, j)
		}
		return diag, nil
	}

	grads := make([][]float64, p) // grads[j][m] = d C_jj / d theta_m
	for j := range grads {
		grads[j] = make([]float64, q)
	}
	for m := 0; m < q; m++ {
		plus := perturb(theta, m, steps[m])
		minus := perturb(theta, m, -steps[m])
		diagPlus, err := diagAt(plus)
		if err != nil {
			return nil, err
		}
		diagMinus, err := diagAt(minus)
		if err != nil {
			return nil, err
		}
		for j := 0; j < p; j++ {
			grads[j][m] = (diagPlus[j] - diagMinus[j]) / (2 * steps[m])
		}
	}

	residualDF := math.Max(float64(n-p), 1)
	dfs := make([]float64, p)
	g := mat.NewVecDense(q, nil)
	tmp := mat.NewVecDense(q, nil)
	for j := 0; j < p; j++ {
		for m := 0; m < q; m++ {
			g.SetVec(m, grads[j][m])
		}
		tmp.MulVec(covTheta, g)
		varC := mat.Dot(g, tmp)
		cjj := cov.At(j, j)
		if varC <= 0 || cjj <= 0 {
			dfs[j] = residualDF
			continue
		}
		df := 2 * cjj * cjj / varC
		dfs[j] = math.Min(math.Max(df, 1), residualDF)
	}
	return dfs, nil
}

// thetaCovariance inverts the central-difference Hessian of the profiled
// negative log-likelihood at theta
func thetaCovariance(f func([]float64) (float64, error), theta, steps []float64, q int) (*mat.SymDense, error) {
	f0, err := f(theta)
	if err != nil {
		return nil, err
	}

	h := mat.NewSymDense(q, nil)
	for i := 0; i < q; i++ {
		fp, err := f(perturb(theta, i, steps[i]))
		if err != nil {
			return nil, err
		}
		fm, err := f(perturb(theta, i, -steps[i]))
		if err != nil {
			return nil, err
		}
		h.SetSym(i, i, (fp-2*f0+fm)/(steps[i]*steps[i]))
		for j := i + 1; j < q; j++ {
			fpp, err := f(perturb(perturb(theta, i, steps[i]), j, steps[j]))
			if err != nil {
				return nil, err
			}
			fpm, err := f(perturb(perturb(theta, i, steps[i]), j, -steps[j]))
			if err != nil {
				return nil, err
			}
			fmp, err := f(perturb(perturb(theta, i, -steps[i]), j, steps[j]))
			if err != nil {
				return nil, err
			}
			fmm, err := f(perturb(perturb(theta, i, -steps[i]), j, -steps[j]))
			if err != nil {
				return nil, err
			}
			h.SetSym(i, j, (fpp-fpm-fmp+fmm)/(4*steps[i]*steps[j]))
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(h); !ok {
		return nil, fmt.Errorf("information matrix is not positive definite")
	}
	cov := mat.NewSymDense(q, nil)
	if err := chol.InverseTo(cov); err != nil {
		return nil, err
	}
	return cov, nil
}

func perturb(theta []float64, i int, delta float64) []float64 {
	out := append([]float64(nil), theta...)
	out[i] += delta
	return out
}
