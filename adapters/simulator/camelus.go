package simulator

import (
	"math"
	"math/rand/v2"

	"acore/domain/core"
	"acore/domain/inference"
	apperrors "acore/internal/errors"
	"acore/ports"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Weak-lensing peak counts in three signal-to-noise bins. The expected count in
// bin k scales as A_k · (Ω_m/0.3)^a_k · (σ_8/0.8)^b_k.
var (
	camelusAmplitude = []float64{150, 60, 15}
	camelusOmegaExp  = []float64{0.6, 1.0, 1.4}
	camelusSigmaExp  = []float64{2.0, 2.8, 3.6}
	camelusBPrimes   = []int{100, 500, 1000, 5000, 10000, 50000}
)

// NewCamelus creates the peak-count loader with θ = (Ω_m, σ_8). The model has
// no nuisance parameters, so requesting them is a configuration error.
func NewCamelus(opts ports.SimulatorOptions) (ports.Simulator, error) {
	if opts.NuisanceParameters {
		return nil, apperrors.WithCause(apperrors.CodeConfigInvalid, "camelus has no nuisance parameters", core.ErrNuisanceRejected)
	}
	l, err := newLoader(inference.ModelCamelus, []float64{0.1, 0.4}, []float64{0.6, 1.2}, 3, drawCamelus, opts)
	if err != nil {
		return nil, err
	}
	l.bPrimes = camelusBPrimes
	l.outDir = "camelus_wl/"
	return l, nil
}

func drawCamelus(theta []float64, out *mat.Dense, rng *rand.Rand) {
	bins := make([]distuv.Poisson, len(camelusAmplitude))
	for k := range bins {
		lambda := camelusAmplitude[k] * math.Pow(theta[0]/0.3, camelusOmegaExp[k]) * math.Pow(theta[1]/0.8, camelusSigmaExp[k])
		bins[k] = distuv.Poisson{Lambda: lambda, Src: rng}
	}
	n, _ := out.Dims()
	for i := 0; i < n; i++ {
		for k := range bins {
			out.Set(i, k, bins[k].Rand())
		}
	}
}
