// Package logit fits binary logistic regression with gonum's Newton optimizer and
// propagates the parameter covariance to predicted probabilities with the delta method.
package logit

import (
	"errors"
	"fmt"
	"math"

	"acore/domain/core"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

var (
	// ErrSingleClass means every label is identical, so the MLE does not exist
	ErrSingleClass = errors.New("logit: response has a single class")
	// ErrSingular means the observed information matrix could not be factorized
	ErrSingular = errors.New("logit: singular information matrix")
)

// Options controls the Newton iterations
type Options struct {
	MaxIter int
	// Tol is the max-norm gradient threshold that counts as convergence
	Tol float64
	// L2 is a ridge penalty on every coefficient except the intercept (column 0)
	L2 float64
}

// DefaultOptions matches the usual Newton defaults for a logit fit
func DefaultOptions() Options {
	return Options{MaxIter: 35, Tol: 1e-8, L2: 1e-4}
}

// Result is a fitted logistic model
type Result struct {
	Params     []float64
	Cov        *mat.SymDense
	Converged  bool
	Iterations int
}

// AddConstant prepends an intercept column of ones
func AddConstant(x *mat.Dense) *mat.Dense {
	n, d := x.Dims()
	out := mat.NewDense(n, d+1, nil)
	for i := 0; i < n; i++ {
		out.Set(i, 0, 1)
		for j := 0; j < d; j++ {
			out.Set(i, j+1, x.At(i, j))
		}
	}
	return out
}

// Fit estimates the coefficients of P(y=1|x) = σ(xβ). x must already carry the intercept column.
func Fit(x *mat.Dense, y []float64, opts Options) (*Result, error) {
	n, k := x.Dims()
	if n == 0 {
		return nil, fmt.Errorf("logit: %w", core.ErrEmptyInput)
	}
	if len(y) != n {
		return nil, fmt.Errorf("logit: %w", core.NewDimensionError("response", len(y), n))
	}
	if opts.MaxIter <= 0 {
		opts.MaxIter = DefaultOptions().MaxIter
	}
	if opts.Tol <= 0 {
		opts.Tol = DefaultOptions().Tol
	}

	first := y[0]
	single := true
	for _, v := range y[1:] {
		if v != first {
			single = false
			break
		}
	}
	if single {
		return nil, ErrSingleClass
	}

	obj := objective{x: x, y: y, l2: opts.L2}
	settings := &optimize.Settings{
		GradientThreshold: opts.Tol,
		MajorIterations:   opts.MaxIter,
	}
	problem := optimize.Problem{Func: obj.negLogLik, Grad: obj.grad, Hess: obj.hess}
	opt, err := optimize.Minimize(problem, make([]float64, k), settings, &optimize.Newton{})
	if opt == nil {
		return nil, fmt.Errorf("%w: %v", ErrSingular, err)
	}

	res := &Result{
		Params:     opt.X,
		Converged:  err == nil && opt.Status == optimize.GradientThreshold,
		Iterations: opt.Stats.MajorIterations,
	}
	if hasNaN(res.Params) {
		return res, ErrSingular
	}

	info := information(x, predict(x, res.Params), opts.L2)
	var chol mat.Cholesky
	if ok := chol.Factorize(info); !ok {
		return res, ErrSingular
	}
	cov := mat.NewSymDense(k, nil)
	if err := chol.InverseTo(cov); err != nil {
		return res, fmt.Errorf("%w: %v", ErrSingular, err)
	}
	res.Cov = cov
	return res, nil
}

// objective is the penalized negative log-likelihood of the logit model
type objective struct {
	x  *mat.Dense
	y  []float64
	l2 float64
}

func (o objective) negLogLik(beta []float64) float64 {
	n, _ := o.x.Dims()
	var f float64
	for i := 0; i < n; i++ {
		z := dot(o.x.RawRowView(i), beta)
		f += softplus(z) - o.y[i]*z
	}
	for j := 1; j < len(beta); j++ {
		f += 0.5 * o.l2 * beta[j] * beta[j]
	}
	return f
}

func (o objective) grad(grad, beta []float64) {
	n, k := o.x.Dims()
	for j := range grad {
		grad[j] = 0
	}
	for i := 0; i < n; i++ {
		row := o.x.RawRowView(i)
		r := sigmoid(dot(row, beta)) - o.y[i]
		for j := 0; j < k; j++ {
			grad[j] += r * row[j]
		}
	}
	for j := 1; j < k; j++ {
		grad[j] += o.l2 * beta[j]
	}
}

func (o objective) hess(hess *mat.SymDense, beta []float64) {
	hess.CopySym(information(o.x, predict(o.x, beta), o.l2))
}

// Predict returns σ(xβ) for every row of x
func (r *Result) Predict(x *mat.Dense) []float64 {
	return predict(x, r.Params)
}

// StdErrors propagates the parameter covariance to each predicted probability:
// g = p(1-p)·x, var = g Σ gᵀ, se = √var. Negative variances from rounding are
// clamped to zero and counted.
func (r *Result) StdErrors(x *mat.Dense, proba []float64) ([]float64, int) {
	n, k := x.Dims()
	se := make([]float64, n)
	clamped := 0
	g := mat.NewVecDense(k, nil)
	for i := 0; i < n; i++ {
		w := proba[i] * (1 - proba[i])
		row := x.RawRowView(i)
		for j := 0; j < k; j++ {
			g.SetVec(j, w*row[j])
		}
		v := mat.Inner(g, r.Cov, g)
		if v < 0 || math.IsNaN(v) {
			v = 0
			clamped++
		}
		se[i] = math.Sqrt(v)
	}
	return se, clamped
}

func information(x *mat.Dense, p []float64, l2 float64) *mat.SymDense {
	n, k := x.Dims()
	info := mat.NewSymDense(k, nil)
	for i := 0; i < n; i++ {
		w := p[i] * (1 - p[i])
		row := x.RawRowView(i)
		for a := 0; a < k; a++ {
			for b := a; b < k; b++ {
				info.SetSym(a, b, info.At(a, b)+w*row[a]*row[b])
			}
		}
	}
	for j := 1; j < k; j++ {
		info.SetSym(j, j, info.At(j, j)+l2)
	}
	return info
}

func predict(x *mat.Dense, beta []float64) []float64 {
	n, _ := x.Dims()
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = sigmoid(dot(x.RawRowView(i), beta))
	}
	return out
}

func dot(row, beta []float64) float64 {
	var z float64
	for j, v := range row {
		z += v * beta[j]
	}
	return z
}

// softplus is log(1 + e^z) without overflow
func softplus(z float64) float64 {
	if z > 0 {
		return z + math.Log1p(math.Exp(-z))
	}
	return math.Log1p(math.Exp(z))
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

func hasNaN(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return true
		}
	}
	return false
}
