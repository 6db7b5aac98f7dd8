package simulator

import (
	"math/rand/v2"

	"acore/domain/inference"
	"acore/ports"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// On/off counting experiment: the signal region sees Poisson(ν·b + μ·s) events,
// the control region Poisson(τ·ν·b). μ is the signal strength and ν the
// background scale, which is the nuisance parameter when nuisance handling is on.
const (
	poissonSignal     = 10.0
	poissonBackground = 100.0
	poissonTau        = 1.0
)

var poissonBPrimes = []int{100, 500, 1000, 5000, 10000, 50000, 100000}

// NewPoisson creates the on/off Poisson loader with θ = (μ, ν)
func NewPoisson(opts ports.SimulatorOptions) (ports.Simulator, error) {
	l, err := newLoader(inference.ModelPoisson, []float64{0, 0.7}, []float64{5, 1.3}, 2, drawPoisson, opts)
	if err != nil {
		return nil, err
	}
	l.bPrimes = poissonBPrimes
	l.outDir = "poisson/"
	return l, nil
}

func drawPoisson(theta []float64, out *mat.Dense, rng *rand.Rand) {
	mu, nu := theta[0], theta[1]
	on := distuv.Poisson{Lambda: nu*poissonBackground + mu*poissonSignal, Src: rng}
	off := distuv.Poisson{Lambda: poissonTau * nu * poissonBackground, Src: rng}
	n, _ := out.Dims()
	for i := 0; i < n; i++ {
		out.Set(i, 0, on.Rand())
		out.Set(i, 1, off.Rand())
	}
}
