package simulator

import (
	"math/rand/v2"

	"acore/domain/core"
	apperrors "acore/internal/errors"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distmv"
)

// reference is the fixed distribution G that odds are measured against
type reference interface {
	Sample(n int, rng *rand.Rand) (*mat.Dense, error)
}

// gaussianReference is a multivariate normal fitted to a marginal sample
type gaussianReference struct {
	mean []float64
	cov  *mat.SymDense
}

// fitGaussian estimates mean and covariance of obs. A small ridge keeps the
// covariance positive definite for discrete observations.
func fitGaussian(obs *mat.Dense) (*gaussianReference, error) {
	n, d := obs.Dims()
	if n < 2 {
		return nil, apperrors.WithCause(apperrors.CodeInvalidInput, "reference fit needs at least two observations", core.ErrEmptyInput)
	}
	mean := make([]float64, d)
	for j := 0; j < d; j++ {
		mean[j] = stat.Mean(mat.Col(nil, j, obs), nil)
	}
	cov := mat.NewSymDense(d, nil)
	stat.CovarianceMatrix(cov, obs, nil)

	ridge := 1e-9
	for j := 0; j < d; j++ {
		ridge += 1e-6 * cov.At(j, j) / float64(d)
	}
	for j := 0; j < d; j++ {
		cov.SetSym(j, j, cov.At(j, j)+ridge)
	}
	if _, ok := distmv.NewNormal(mean, cov, nil); !ok {
		return nil, apperrors.SimulationError("reference covariance is not positive definite", nil)
	}
	return &gaussianReference{mean: mean, cov: cov}, nil
}

func (g *gaussianReference) Sample(n int, rng *rand.Rand) (*mat.Dense, error) {
	dist, ok := distmv.NewNormal(g.mean, g.cov, rng)
	if !ok {
		return nil, apperrors.SimulationError("reference covariance is not positive definite", nil)
	}
	out := mat.NewDense(n, len(g.mean), nil)
	for i := 0; i < n; i++ {
		dist.Rand(out.RawRowView(i))
	}
	return out, nil
}

// empiricalReference resamples the stored marginal draws with replacement
type empiricalReference struct {
	obs *mat.Dense
}

func (e *empiricalReference) Sample(n int, rng *rand.Rand) (*mat.Dense, error) {
	rows, d := e.obs.Dims()
	if rows == 0 {
		return nil, core.ErrReferenceNotSet
	}
	out := mat.NewDense(n, d, nil)
	for i := 0; i < n; i++ {
		out.SetRow(i, e.obs.RawRowView(rng.IntN(rows)))
	}
	return out, nil
}
