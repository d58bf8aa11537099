package lmm

import (
	"fmt"
	"math"

	"golmm/domain/core"
	"golmm/internal/prepare"

	"gonum.org/v1/gonum/mat"
)

const log2Pi = 1.8378770664093453

// profiler evaluates the profiled REML/ML log-likelihood of a nested
// random-intercept model at a variance-parameter vector theta.
//
// The marginal covariance V(theta) = sum_k theta_k Z_k Z_k' + sigma2 I is
// block-diagonal by outermost group because observations only share random
// effects when they share a top-level group, so V is factored blockwise
// rather than as one dense n x n matrix. The fixed effects are profiled out
// with a closed-form GLS solve per evaluation.
type profiler struct {
	data *prepare.ModelData
	reml bool
}

// evaluation is the full state of one likelihood evaluation at theta:
// theta = (level variances outermost..innermost, residual variance)
type evaluation struct {
	theta  []float64
	logLik float64

	beta  *mat.VecDense
	cholA mat.Cholesky // factor of X'V^-1X, for SEs and the REML term
	vinvR []float64    // V^-1 (y - X beta), per kept row; feeds the BLUPs
}

// eval computes the profiled log-likelihood at theta. It returns an error
// when V(theta) or X'V^-1X cannot be factored; the optimizer treats that as
// an infinitely bad point.
func (pr *profiler) eval(theta []float64) (*evaluation, error) {
	d := pr.data
	n, p := d.N(), d.P()
	k := len(d.Levels)
	if len(theta) != k+1 {
		return nil, fmt.Errorf("theta has %d parameters, want %d", len(theta), k+1)
	}
	sigma2 := theta[k]

	aDense := mat.NewDense(p, p, nil)
	bVec := mat.NewVecDense(p, nil)
	tmpA := mat.NewDense(p, p, nil)
	tmpB := mat.NewVecDense(p, nil)

	logDetV := 0.0
	ytViy := 0.0

	type blockState struct {
		rows  []int
		vinvX *mat.Dense
		vinvY *mat.VecDense
	}
	blocks := make([]blockState, 0, len(d.TopBlocks))

	for _, rows := range d.TopBlocks {
		m := len(rows)
		v := mat.NewSymDense(m, nil)
		for i := 0; i < m; i++ {
			for j := i; j < m; j++ {
				cov := 0.0
				if i == j {
					cov += sigma2
				}
				for lev := 0; lev < k; lev++ {
					idx := d.Levels[lev].Index
					if idx[rows[i]] == idx[rows[j]] {
						cov += theta[lev]
					}
				}
				v.SetSym(i, j, cov)
			}
		}

		var chol mat.Cholesky
		if ok := chol.Factorize(v); !ok {
			return nil, fmt.Errorf("covariance block of size %d is not positive definite", m)
		}
		logDetV += chol.LogDet()

		xBlk := mat.NewDense(m, p, nil)
		yBlk := mat.NewVecDense(m, nil)
		for i, row := range rows {
			for j := 0; j < p; j++ {
				xBlk.Set(i, j, d.X.At(row, j))
			}
			yBlk.SetVec(i, d.Y[row])
		}

		vinvX := mat.NewDense(m, p, nil)
		if err := chol.SolveTo(vinvX, xBlk); err != nil {
			return nil, fmt.Errorf("block solve failed: %w", err)
		}
		vinvY := mat.NewVecDense(m, nil)
		if err := chol.SolveVecTo(vinvY, yBlk); err != nil {
			return nil, fmt.Errorf("block solve failed: %w", err)
		}

		tmpA.Mul(xBlk.T(), vinvX)
		aDense.Add(aDense, tmpA)
		tmpB.MulVec(xBlk.T(), vinvY)
		bVec.AddVec(bVec, tmpB)
		ytViy += mat.Dot(yBlk, vinvY)

		blocks = append(blocks, blockState{rows: rows, vinvX: vinvX, vinvY: vinvY})
	}

	// Symmetrize the accumulated X'V^-1X against round-off before factoring
	aSym := mat.NewSymDense(p, nil)
	for i := 0; i < p; i++ {
		for j := i; j < p; j++ {
			aSym.SetSym(i, j, 0.5*(aDense.At(i, j)+aDense.At(j, i)))
		}
	}

	ev := &evaluation{theta: append([]float64(nil), theta...)}
	if ok := ev.cholA.Factorize(aSym); !ok {
		return nil, core.ErrSingularDesign
	}

	ev.beta = mat.NewVecDense(p, nil)
	if err := ev.cholA.SolveVecTo(ev.beta, bVec); err != nil {
		return nil, fmt.Errorf("%w: GLS solve failed: %v", core.ErrSingularDesign, err)
	}

	// Quadratic form r'V^-1 r via the profiled identity y'V^-1y - beta'b
	quad := ytViy - mat.Dot(ev.beta, bVec)

	ev.vinvR = make([]float64, n)
	for _, blk := range blocks {
		m := len(blk.rows)
		work := mat.NewVecDense(m, nil)
		work.MulVec(blk.vinvX, ev.beta)
		for i, row := range blk.rows {
			ev.vinvR[row] = blk.vinvY.AtVec(i) - work.AtVec(i)
		}
	}

	if pr.reml {
		ev.logLik = -0.5 * (float64(n-p)*log2Pi + logDetV + ev.cholA.LogDet() + quad)
	} else {
		ev.logLik = -0.5 * (float64(n)*log2Pi + logDetV + quad)
	}
	if math.IsNaN(ev.logLik) || math.IsInf(ev.logLik, 0) {
		return nil, fmt.Errorf("log-likelihood is not finite at theta %v", theta)
	}
	return ev, nil
}

// coefCovariance returns (X'V^-1X)^-1, the covariance of the GLS estimates
func (ev *evaluation) coefCovariance() (*mat.SymDense, error) {
	p := ev.beta.Len()
	cov := mat.NewSymDense(p, nil)
	if err := ev.cholA.InverseTo(cov); err != nil {
		return nil, fmt.Errorf("%w: covariance inverse failed: %v", core.ErrSingularDesign, err)
	}
	return cov, nil
}
