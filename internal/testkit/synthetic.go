package testkit

import (
	"math"
	"math/rand/v2"

	"acore/domain/core"
	"acore/domain/inference"
	"acore/ports"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// referenceVariance is the per-axis variance of the synthetic reference distribution
const referenceVariance = 2.0

// GaussianSimulator is a two-parameter location model, x ~ N(θ, I) in two
// dimensions, with θ uniform on [-1, 1]² and reference G = N(0, 2I). Its
// exact odds are known, which makes it a convenient end-to-end fixture.
type GaussianSimulator struct {
	GridPoints int
	PredPoints int
	BPrimes    []int
	Nuisance   bool

	referenceSet bool
}

// NewGaussianSimulator creates the synthetic model with small grids
func NewGaussianSimulator() *GaussianSimulator {
	return &GaussianSimulator{GridPoints: 5, PredPoints: 9, BPrimes: []int{200, 400}}
}

func (s *GaussianSimulator) ID() inference.ModelID { return inference.ModelID("synthetic") }
func (s *GaussianSimulator) ParamDim() int         { return 2 }
func (s *GaussianSimulator) ObsDim() int           { return 2 }
func (s *GaussianSimulator) BPrimeGrid() []int     { return s.BPrimes }
func (s *GaussianSimulator) OutputDir() string     { return "synthetic/" }
func (s *GaussianSimulator) NuisanceFlag() bool    { return s.Nuisance }
func (s *GaussianSimulator) Grid() *mat.Dense      { return square(s.GridPoints) }
func (s *GaussianSimulator) PredGrid() *mat.Dense  { return square(s.PredPoints) }

// SetReference only marks the analytic reference as fixed
func (s *GaussianSimulator) SetReference(size int, rng *rand.Rand) error {
	s.referenceSet = true
	return nil
}

func (s *GaussianSimulator) SampleParams(size int, rng *rand.Rand) *mat.Dense {
	theta := mat.NewDense(size, 2, nil)
	for i := 0; i < size; i++ {
		theta.Set(i, 0, 2*rng.Float64()-1)
		theta.Set(i, 1, 2*rng.Float64()-1)
	}
	return theta
}

func (s *GaussianSimulator) SampleCheck(nPoints, nPerPoint int, rng *rand.Rand) (*mat.Dense, inference.SampleTensor, error) {
	return s.sampleAt(nPoints, nPerPoint, rng)
}

func (s *GaussianSimulator) SampleCalibration(bPrime, nPerPoint int, rng *rand.Rand) (*mat.Dense, inference.SampleTensor, error) {
	return s.sampleAt(bPrime, nPerPoint, rng)
}

func (s *GaussianSimulator) GenerateSample(size int, rng *rand.Rand) (*mat.Dense, []float64, error) {
	if !s.referenceSet {
		return nil, nil, core.ErrReferenceNotSet
	}
	theta := s.SampleParams(size, rng)
	x := mat.NewDense(size, 4, nil)
	y := make([]float64, size)
	sd := math.Sqrt(referenceVariance)
	for i := 0; i < size; i++ {
		row := x.RawRowView(i)
		row[0], row[1] = theta.At(i, 0), theta.At(i, 1)
		if rng.Float64() < 0.5 {
			y[i] = 1
			row[2] = row[0] + rng.NormFloat64()
			row[3] = row[1] + rng.NormFloat64()
		} else {
			row[2] = sd * rng.NormFloat64()
			row[3] = sd * rng.NormFloat64()
		}
	}
	return x, y, nil
}

func (s *GaussianSimulator) sampleAt(nPoints, nPerPoint int, rng *rand.Rand) (*mat.Dense, inference.SampleTensor, error) {
	theta := s.SampleParams(nPoints, rng)
	samples := make(inference.SampleTensor, nPoints)
	for k := 0; k < nPoints; k++ {
		obs := mat.NewDense(nPerPoint, 2, nil)
		for i := 0; i < nPerPoint; i++ {
			obs.Set(i, 0, theta.At(k, 0)+rng.NormFloat64())
			obs.Set(i, 1, theta.At(k, 1)+rng.NormFloat64())
		}
		samples[k] = obs
	}
	return theta, samples, nil
}

func square(n int) *mat.Dense {
	axis := make([]float64, n)
	floats.Span(axis, -1, 1)
	grid := mat.NewDense(n*n, 2, nil)
	for i, a := range axis {
		for j, b := range axis {
			grid.Set(i*n+j, 0, a)
			grid.Set(i*n+j, 1, b)
		}
	}
	return grid
}

// AnalyticClassifier returns the exact P(drawn under θ | θ, x) for GaussianSimulator.
// Fit only counts calls.
type AnalyticClassifier struct {
	FitCalls int
}

func (c *AnalyticClassifier) Fit(x *mat.Dense, y []float64) error {
	c.FitCalls++
	return nil
}

func (c *AnalyticClassifier) PredictProba(x *mat.Dense) ([]float64, error) {
	n, _ := x.Dims()
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		r := x.RawRowView(i)
		d0, d1 := r[2]-r[0], r[3]-r[1]
		logF := -0.5 * (d0*d0 + d1*d1)
		logG := -0.5*(r[2]*r[2]+r[3]*r[3])/referenceVariance - math.Log(referenceVariance)
		out[i] = 1 / (1 + math.Exp(logG-logF))
	}
	return out, nil
}

// AnalyticClassifierSpec registers the analytic classifier under the id "analytic"
func AnalyticClassifierSpec() ports.ClassifierSpec {
	return ports.ClassifierSpec{
		ID:          "analytic",
		DisplayName: "Analytic",
		New:         func() ports.ProbClassifier { return &AnalyticClassifier{} },
	}
}
