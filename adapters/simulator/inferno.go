package simulator

import (
	"math"
	"math/rand/v2"

	"acore/domain/inference"
	apperrors "acore/internal/errors"
	"acore/ports"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Three-dimensional signal/background mixture. Background events have
// (x0, x1) ~ N((2+r, 3), diag(5, 9)) and x2 ~ Exp(λ); signal events have
// (x0, x1) ~ N((1, 1), I) and x2 ~ Exp(2). θ = (μ, λ) with μ the signal fraction.
// The benchmark selects the background shift r.
var (
	infernoShift   = []float64{0, 0.2, 0.5, 1.0, 2.0}
	infernoBPrimes = []int{100, 500, 1000, 5000, 10000, 50000, 100000}
)

// NewInferno creates the mixture loader for the given benchmark (0–4)
func NewInferno(opts ports.SimulatorOptions) (ports.Simulator, error) {
	if opts.Benchmark < 0 || opts.Benchmark >= len(infernoShift) {
		return nil, apperrors.Newf(apperrors.CodeConfigInvalid, "inferno benchmark must be between 0 and %d, got %d",
			len(infernoShift)-1, opts.Benchmark)
	}
	r := infernoShift[opts.Benchmark]
	draw := func(theta []float64, out *mat.Dense, rng *rand.Rand) {
		drawInferno(theta, r, out, rng)
	}
	l, err := newLoader(inference.ModelInferno, []float64{0, 2}, []float64{0.5, 4}, 3, draw, opts)
	if err != nil {
		return nil, err
	}
	l.bPrimes = infernoBPrimes
	l.outDir = "inferno_toy/"
	return l, nil
}

func drawInferno(theta []float64, r float64, out *mat.Dense, rng *rand.Rand) {
	mu, lambda := theta[0], theta[1]
	isSignal := distuv.Bernoulli{P: mu, Src: rng}
	sig0 := distuv.Normal{Mu: 1, Sigma: 1, Src: rng}
	sig2 := distuv.Exponential{Rate: 2, Src: rng}
	bkg0 := distuv.Normal{Mu: 2 + r, Sigma: math.Sqrt(5), Src: rng}
	bkg1 := distuv.Normal{Mu: 3, Sigma: 3, Src: rng}
	bkg2 := distuv.Exponential{Rate: lambda, Src: rng}

	n, _ := out.Dims()
	for i := 0; i < n; i++ {
		if isSignal.Rand() == 1 {
			out.Set(i, 0, sig0.Rand())
			out.Set(i, 1, sig0.Rand())
			out.Set(i, 2, sig2.Rand())
		} else {
			out.Set(i, 0, bkg0.Rand())
			out.Set(i, 1, bkg1.Rand())
			out.Set(i, 2, bkg2.Rand())
		}
	}
}
