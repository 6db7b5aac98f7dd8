package ports

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// QuantileRegressor estimates the conditional α-quantile of a scalar response
type QuantileRegressor interface {
	Fit(x *mat.Dense, y []float64, alpha float64, rng *rand.Rand) error
	Predict(x *mat.Dense) ([]float64, error)
}

// AlgorithmFamily groups quantile algorithms for policy decisions such as the B′ skip rule
type AlgorithmFamily string

const (
	FamilyLinear           AlgorithmFamily = "linear"
	FamilyGradientBoosting AlgorithmFamily = "gradient_boosting"
	FamilyRandomForest     AlgorithmFamily = "random_forest"
	FamilyNearestNeighbors AlgorithmFamily = "nearest_neighbors"
)

// QuantileAlgorithm is one (name → algorithm, hyperparameters, extra config) registry entry
type QuantileAlgorithm struct {
	Name        string             `yaml:"name" json:"name"`
	AlgoID      string             `yaml:"algorithm" json:"algorithm"`
	Family      AlgorithmFamily    `yaml:"family" json:"family"`
	Hyper       map[string]float64 `yaml:"hyperparameters" json:"hyperparameters"`
	ExtraConfig map[string]float64 `yaml:"extra,omitempty" json:"extra,omitempty"`
}

// QuantileRegistry yields algorithms ordered by name and builds regressors for them
type QuantileRegistry interface {
	Algorithms() []QuantileAlgorithm
	Build(algo QuantileAlgorithm) (QuantileRegressor, error)
}
