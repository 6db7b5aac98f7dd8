package quantile

import (
	"fmt"
	"math"
	"math/rand/v2"

	"acore/domain/core"
	"acore/internal/logit"

	"gonum.org/v1/gonum/mat"
)

// Linear fits y ≈ [1, x]β under the pinball loss by iteratively reweighted least squares
type Linear struct {
	maxIter int
	tol     float64
	beta    *mat.VecDense
}

// NewLinear creates a linear quantile regressor
func NewLinear(maxIter int) *Linear {
	if maxIter <= 0 {
		maxIter = 100
	}
	return &Linear{maxIter: maxIter, tol: 1e-8}
}

func (l *Linear) Fit(x *mat.Dense, y []float64, alpha float64, _ *rand.Rand) error {
	n, _ := x.Dims()
	if n == 0 {
		return fmt.Errorf("linear qr: %w", core.ErrEmptyInput)
	}
	if len(y) != n {
		return fmt.Errorf("linear qr: %w", core.NewDimensionError("response", len(y), n))
	}
	xc := logit.AddConstant(x)
	_, k := xc.Dims()
	yv := mat.NewVecDense(n, append([]float64(nil), y...))

	w := make([]float64, n)
	for i := range w {
		w[i] = 1
	}
	beta := mat.NewVecDense(k, nil)
	if err := weightedSolve(xc, yv, w, beta); err != nil {
		return err
	}

	var scale float64
	for _, v := range y {
		scale += math.Abs(v)
	}
	eps := 1e-6 * (1 + scale/float64(n))

	resid := mat.NewVecDense(n, nil)
	next := mat.NewVecDense(k, nil)
	for it := 0; it < l.maxIter; it++ {
		resid.MulVec(xc, beta)
		resid.SubVec(yv, resid)
		for i := 0; i < n; i++ {
			r := resid.AtVec(i)
			a := math.Max(math.Abs(r), eps)
			if r > 0 {
				w[i] = alpha / a
			} else {
				w[i] = (1 - alpha) / a
			}
		}
		if err := weightedSolve(xc, yv, w, next); err != nil {
			return err
		}
		var step float64
		for j := 0; j < k; j++ {
			step = math.Max(step, math.Abs(next.AtVec(j)-beta.AtVec(j)))
		}
		beta.CopyVec(next)
		if step < l.tol {
			break
		}
	}
	l.beta = beta
	return nil
}

func (l *Linear) Predict(x *mat.Dense) ([]float64, error) {
	if l.beta == nil {
		return nil, fmt.Errorf("linear qr: %w", core.ErrNotFitted)
	}
	n, _ := x.Dims()
	out := mat.NewVecDense(n, nil)
	out.MulVec(logit.AddConstant(x), l.beta)
	return out.RawVector().Data, nil
}

// weightedSolve solves (XᵀWX)β = XᵀWy
func weightedSolve(x *mat.Dense, y *mat.VecDense, w []float64, beta *mat.VecDense) error {
	n, k := x.Dims()
	xtwx := mat.NewSymDense(k, nil)
	xtwy := mat.NewVecDense(k, nil)
	for i := 0; i < n; i++ {
		row := x.RawRowView(i)
		for a := 0; a < k; a++ {
			xtwy.SetVec(a, xtwy.AtVec(a)+w[i]*row[a]*y.AtVec(i))
			for b := a; b < k; b++ {
				xtwx.SetSym(a, b, xtwx.At(a, b)+w[i]*row[a]*row[b])
			}
		}
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(xtwx); !ok {
		return fmt.Errorf("linear qr: weighted normal equations are singular")
	}
	return chol.SolveVecTo(beta, xtwy)
}
