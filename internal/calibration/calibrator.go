// Package calibration fits critical-value estimators: conditional α-quantiles of
// the test statistic as a function of the parameter.
package calibration

import (
	"context"
	"math/rand/v2"
	"slices"
	"time"

	"acore/domain/core"
	"acore/internal"
	apperrors "acore/internal/errors"
	"acore/ports"

	"gonum.org/v1/gonum/mat"
)

// DefaultSkipAboveBPrime is the training budget above which tree ensembles are not fitted
const DefaultSkipAboveBPrime = 10000

// SkipPolicy excludes expensive algorithm families at large training budgets.
// It is a cost-control rule and is reported in the run configuration.
type SkipPolicy struct {
	MaxBPrime int                     `yaml:"skip_above_b_prime" json:"skip_above_b_prime"`
	Families  []ports.AlgorithmFamily `yaml:"skip_families" json:"skip_families"`
}

// DefaultSkipPolicy skips the tree-ensemble families when B′ exceeds 10 000
func DefaultSkipPolicy() SkipPolicy {
	return SkipPolicy{
		MaxBPrime: DefaultSkipAboveBPrime,
		Families:  []ports.AlgorithmFamily{ports.FamilyGradientBoosting, ports.FamilyRandomForest},
	}
}

// Skip reports whether algo must not be fitted for this training budget
func (p SkipPolicy) Skip(algo ports.QuantileAlgorithm, bPrime int) bool {
	if p.MaxBPrime <= 0 || bPrime <= p.MaxBPrime {
		return false
	}
	return slices.Contains(p.Families, algo.Family)
}

// Calibrator trains one quantile regressor per call; nothing is shared between calls
type Calibrator struct {
	registry ports.QuantileRegistry
	logger   *internal.Logger
}

// NewCalibrator creates a calibrator backed by the given algorithm registry
func NewCalibrator(registry ports.QuantileRegistry, logger *internal.Logger) *Calibrator {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Calibrator{registry: registry, logger: logger.WithComponent("calibration")}
}

// Calibrate fits the α-quantile of stats given thetaMat and returns the predicted
// critical value at every row of predGrid
func (c *Calibrator) Calibrate(ctx context.Context, algo ports.QuantileAlgorithm, thetaMat *mat.Dense, stats []float64, alpha float64, predGrid *mat.Dense, rng *rand.Rand) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n, _ := thetaMat.Dims()
	if len(stats) != n {
		return nil, apperrors.WithCause(apperrors.CodeInvalidInput, "calibration data", core.NewDimensionError("statistics", len(stats), n))
	}

	regressor, err := c.registry.Build(algo)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	if err := regressor.Fit(thetaMat, stats, alpha, rng); err != nil {
		return nil, apperrors.FitFailed(algo.Name, err)
	}
	pred, err := regressor.Predict(predGrid)
	if err != nil {
		return nil, apperrors.FitFailed(algo.Name, err)
	}
	c.logger.Debug("%s (%s) fitted on %d pairs in %s", algo.Name, algo.AlgoID, n, time.Since(start).Round(time.Millisecond))
	return pred, nil
}
