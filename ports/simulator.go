package ports

import (
	"math/rand/v2"

	"acore/domain/inference"

	"gonum.org/v1/gonum/mat"
)

// ParamGenerator draws size parameter points (size × d) from the model prior
type ParamGenerator func(size int, rng *rand.Rand) *mat.Dense

// SampleGenerator draws size labelled (θ, x) rows for odds-classifier training.
// The feature matrix is size × (d + d_obs); label 1 means x was drawn under θ,
// label 0 means x was drawn from the reference distribution.
type SampleGenerator func(size int, rng *rand.Rand) (*mat.Dense, []float64, error)

// Simulator is the model loader contract consumed by the calibration loop
type Simulator interface {
	// ID returns the run/model identifier
	ID() inference.ModelID

	// ParamDim is the dimension d of a parameter point
	ParamDim() int
	// ObsDim is the dimension d_obs of one observation
	ObsDim() int

	// SetReference fixes the reference/marginal distribution G used by both the
	// odds classifier training data and the Bayes-factor statistics
	SetReference(size int, rng *rand.Rand) error

	// SampleCheck draws nPoints parameters from the prior with nPerPoint observations each
	SampleCheck(nPoints, nPerPoint int, rng *rand.Rand) (*mat.Dense, inference.SampleTensor, error)
	// SampleCalibration draws bPrime parameters with nPerPoint observations each
	SampleCalibration(bPrime, nPerPoint int, rng *rand.Rand) (*mat.Dense, inference.SampleTensor, error)

	// GenerateSample is the odds-classifier training data generator
	GenerateSample(size int, rng *rand.Rand) (*mat.Dense, []float64, error)
	// SampleParams draws parameter points from the prior
	SampleParams(size int, rng *rand.Rand) *mat.Dense

	// Grid is the fixed grid of alternative parameter points
	Grid() *mat.Dense
	// PredGrid is the grid on which the smoothed coverage curve is evaluated
	PredGrid() *mat.Dense
	// BPrimeGrid lists the training budgets to sweep
	BPrimeGrid() []int
	// OutputDir is the model sub-directory under the output root
	OutputDir() string
	// NuisanceFlag reports whether this configuration needs nuisance-parameter handling
	NuisanceFlag() bool
}

// SimulatorOptions are the loader options shared by every model
type SimulatorOptions struct {
	Benchmark          int
	EmpiricalMarginal  bool
	NuisanceParameters bool
	NEvalGrid          int
}

// SimulatorFactory builds a simulator from loader options
type SimulatorFactory func(opts SimulatorOptions) (Simulator, error)

// SimulatorRegistry loads simulators by run identifier
type SimulatorRegistry interface {
	Load(id inference.ModelID, opts SimulatorOptions) (Simulator, error)
	SupportsNuisance(id inference.ModelID) bool
}
