package quantile

import (
	"math/rand/v2"

	"acore/internal/trees"

	"gonum.org/v1/gonum/mat"
)

// Boosted adapts the pinball-loss tree booster to the regressor contract
type Boosted struct {
	booster *trees.QuantileBooster
}

func (b *Boosted) Fit(x *mat.Dense, y []float64, alpha float64, _ *rand.Rand) error {
	return b.booster.Fit(x, y, alpha)
}

func (b *Boosted) Predict(x *mat.Dense) ([]float64, error) {
	return b.booster.Predict(x)
}

// Forest adapts the quantile regression forest; the level is fixed at fit time
type Forest struct {
	forest *trees.Forest
	alpha  float64
}

func (f *Forest) Fit(x *mat.Dense, y []float64, alpha float64, rng *rand.Rand) error {
	f.alpha = alpha
	return f.forest.Fit(x, y, rng)
}

func (f *Forest) Predict(x *mat.Dense) ([]float64, error) {
	return f.forest.PredictQuantile(x, f.alpha)
}
