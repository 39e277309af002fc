package forecast

import (
	"fmt"
	"math"

	"spendcast/internal/core"

	"gonum.org/v1/gonum/mat"
)

type olsFit struct {
	prediction float64 // x0ᵀβ
	leverage   float64 // x0ᵀ(XᵀX)⁻¹x0
	sse        float64
	df         int
}

// design builds the regression matrix: intercept, trend, then a sin/cos pair
// per harmonic on the calendar month phase.
func design(t []float64, idx []int, harmonics int) *mat.Dense {
	p := 2 + 2*harmonics
	x := mat.NewDense(len(t), p, nil)
	for i := range t {
		x.SetRow(i, row(t[i], idx[i], harmonics))
	}
	return x
}

func row(t float64, idx int, harmonics int) []float64 {
	r := make([]float64, 2+2*harmonics)
	r[0] = 1
	r[1] = t
	phase := 2 * math.Pi * float64(idx%12) / 12
	for k := 1; k <= harmonics; k++ {
		r[2*k] = math.Sin(float64(k) * phase)
		r[2*k+1] = math.Cos(float64(k) * phase)
	}
	return r
}

// solve fits β by the normal equations through a Cholesky factorisation and
// evaluates the prediction at x0.
func solve(x *mat.Dense, y []float64, x0 []float64) (olsFit, error) {
	n, p := x.Dims()

	var xtx mat.SymDense
	xtx.SymOuterK(1, x.T())
	var chol mat.Cholesky
	if ok := chol.Factorize(&xtx); !ok {
		return olsFit{}, fmt.Errorf("%w: design matrix is singular", core.ErrModelFit)
	}

	yv := mat.NewVecDense(n, y)
	var xty mat.VecDense
	xty.MulVec(x.T(), yv)
	var beta mat.VecDense
	if err := chol.SolveVecTo(&beta, &xty); err != nil {
		return olsFit{}, fmt.Errorf("%w: %v", core.ErrModelFit, err)
	}

	var fitted mat.VecDense
	fitted.MulVec(x, &beta)
	var resid mat.VecDense
	resid.SubVec(yv, &fitted)
	sse := mat.Dot(&resid, &resid)

	x0v := mat.NewVecDense(p, x0)
	var z mat.VecDense
	if err := chol.SolveVecTo(&z, x0v); err != nil {
		return olsFit{}, fmt.Errorf("%w: %v", core.ErrModelFit, err)
	}

	return olsFit{
		prediction: mat.Dot(x0v, &beta),
		leverage:   mat.Dot(x0v, &z),
		sse:        sse,
		df:         n - p,
	}, nil
}
