// Package simulator provides the model loaders: prior, forward simulation,
// reference distribution and parameter grids for each supported run.
package simulator

import (
	"math/rand/v2"

	"acore/domain/core"
	"acore/domain/inference"
	apperrors "acore/internal/errors"
	"acore/ports"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultNEvalGrid is the number of grid points per parameter axis
const DefaultNEvalGrid = 51

// drawFunc fills out (n × d_obs) with observations simulated under theta
type drawFunc func(theta []float64, out *mat.Dense, rng *rand.Rand)

// loader holds what every model has in common. Model files only supply the
// prior box, the forward simulator and their constants.
type loader struct {
	id       inference.ModelID
	dObs     int
	lows     []float64
	highs    []float64
	bPrimes  []int
	outDir   string
	nuisance bool

	empirical bool
	draw      drawFunc
	ref       reference

	grid     *mat.Dense
	predGrid *mat.Dense
}

func newLoader(id inference.ModelID, lows, highs []float64, dObs int, draw drawFunc, opts ports.SimulatorOptions) (*loader, error) {
	n := opts.NEvalGrid
	if n <= 0 {
		n = DefaultNEvalGrid
	}
	if n < 2 {
		return nil, apperrors.Newf(apperrors.CodeConfigInvalid, "n_eval_grid must be at least 2, got %d", n)
	}
	return &loader{
		id:        id,
		dObs:      dObs,
		lows:      lows,
		highs:     highs,
		nuisance:  opts.NuisanceParameters,
		empirical: opts.EmpiricalMarginal,
		draw:      draw,
		grid:      boxGrid(lows, highs, n),
		predGrid:  boxGrid(lows, highs, 2*n-1),
	}, nil
}

func (l *loader) ID() inference.ModelID { return l.id }
func (l *loader) ParamDim() int         { return len(l.lows) }
func (l *loader) ObsDim() int           { return l.dObs }
func (l *loader) Grid() *mat.Dense      { return l.grid }
func (l *loader) PredGrid() *mat.Dense  { return l.predGrid }
func (l *loader) BPrimeGrid() []int     { return append([]int(nil), l.bPrimes...) }
func (l *loader) OutputDir() string     { return l.outDir }
func (l *loader) NuisanceFlag() bool    { return l.nuisance }

// SampleParams draws from the uniform prior over the parameter box
func (l *loader) SampleParams(size int, rng *rand.Rand) *mat.Dense {
	d := len(l.lows)
	theta := mat.NewDense(size, d, nil)
	axes := make([]distuv.Uniform, d)
	for j := range axes {
		axes[j] = distuv.Uniform{Min: l.lows[j], Max: l.highs[j], Src: rng}
	}
	for i := 0; i < size; i++ {
		for j := range axes {
			theta.Set(i, j, axes[j].Rand())
		}
	}
	return theta
}

// SetReference draws size points from the marginal of x (θ from the prior,
// one observation each) and fixes G from them
func (l *loader) SetReference(size int, rng *rand.Rand) error {
	if size < 2 {
		return apperrors.Newf(apperrors.CodeInvalidInput, "size_reference must be at least 2, got %d", size)
	}
	theta := l.SampleParams(size, rng)
	marginal := mat.NewDense(size, l.dObs, nil)
	one := mat.NewDense(1, l.dObs, nil)
	for i := 0; i < size; i++ {
		l.draw(theta.RawRowView(i), one, rng)
		marginal.SetRow(i, one.RawRowView(0))
	}

	if l.empirical {
		l.ref = &empiricalReference{obs: marginal}
		return nil
	}
	g, err := fitGaussian(marginal)
	if err != nil {
		return err
	}
	l.ref = g
	return nil
}

// GenerateSample draws labelled (θ, x) rows: label 1 with x simulated under θ,
// label 0 with x drawn from the reference
func (l *loader) GenerateSample(size int, rng *rand.Rand) (*mat.Dense, []float64, error) {
	if l.ref == nil {
		return nil, nil, core.ErrReferenceNotSet
	}
	d := len(l.lows)
	theta := l.SampleParams(size, rng)
	coin := distuv.Bernoulli{P: 0.5, Src: rng}
	y := make([]float64, size)
	var fromRef int
	for i := range y {
		y[i] = coin.Rand()
		if y[i] == 0 {
			fromRef++
		}
	}
	refObs, err := l.ref.Sample(fromRef, rng)
	if err != nil {
		return nil, nil, err
	}

	x := mat.NewDense(size, d+l.dObs, nil)
	one := mat.NewDense(1, l.dObs, nil)
	k := 0
	for i := 0; i < size; i++ {
		row := x.RawRowView(i)
		copy(row[:d], theta.RawRowView(i))
		if y[i] == 1 {
			l.draw(theta.RawRowView(i), one, rng)
			copy(row[d:], one.RawRowView(0))
		} else {
			copy(row[d:], refObs.RawRowView(k))
			k++
		}
	}
	return x, y, nil
}

func (l *loader) SampleCheck(nPoints, nPerPoint int, rng *rand.Rand) (*mat.Dense, inference.SampleTensor, error) {
	return l.sampleTensor(nPoints, nPerPoint, rng)
}

func (l *loader) SampleCalibration(bPrime, nPerPoint int, rng *rand.Rand) (*mat.Dense, inference.SampleTensor, error) {
	return l.sampleTensor(bPrime, nPerPoint, rng)
}

func (l *loader) sampleTensor(nPoints, nPerPoint int, rng *rand.Rand) (*mat.Dense, inference.SampleTensor, error) {
	if nPoints <= 0 || nPerPoint <= 0 {
		return nil, nil, apperrors.Newf(apperrors.CodeInvalidInput, "sample sizes must be positive, got %d points × %d", nPoints, nPerPoint)
	}
	theta := l.SampleParams(nPoints, rng)
	samples := make(inference.SampleTensor, nPoints)
	for k := range samples {
		obs := mat.NewDense(nPerPoint, l.dObs, nil)
		l.draw(theta.RawRowView(k), obs, rng)
		samples[k] = obs
	}
	return theta, samples, nil
}

// boxGrid is the Cartesian product of n evenly spaced points per axis, last axis fastest
func boxGrid(lows, highs []float64, n int) *mat.Dense {
	d := len(lows)
	axes := make([][]float64, d)
	total := 1
	for j := range axes {
		axes[j] = floats.Span(make([]float64, n), lows[j], highs[j])
		total *= n
	}
	grid := mat.NewDense(total, d, nil)
	for i := 0; i < total; i++ {
		rem := i
		for j := d - 1; j >= 0; j-- {
			grid.Set(i, j, axes[j][rem%n])
			rem /= n
		}
	}
	return grid
}
