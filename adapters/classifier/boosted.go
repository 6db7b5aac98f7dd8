package classifier

import (
	"acore/internal/trees"
	"acore/ports"

	"gonum.org/v1/gonum/mat"
)

// Boosted is a logistic-loss gradient-boosted tree classifier
type Boosted struct {
	booster *trees.Booster
}

// NewBoosted creates a boosted classifier with the given depth and number of rounds
func NewBoosted(depth, rounds int) *Boosted {
	return &Boosted{booster: trees.NewBooster(trees.DefaultBoosterParams(depth, rounds))}
}

func boosted(depth, rounds int) ports.ClassifierFactory {
	return func() ports.ProbClassifier { return NewBoosted(depth, rounds) }
}

func (b *Boosted) Fit(x *mat.Dense, y []float64) error {
	return b.booster.Fit(x, y)
}

func (b *Boosted) PredictProba(x *mat.Dense) ([]float64, error) {
	return b.booster.PredictProba(x)
}
