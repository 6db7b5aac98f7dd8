package inference

import (
	"fmt"
	"strings"

	"acore/domain/core"

	"gonum.org/v1/gonum/mat"
)

// SampleTensor holds one (n × d_obs) observation block per parameter point.
// Index k of the tensor corresponds to row k of the matching θ matrix.
type SampleTensor []*mat.Dense

// Len returns the number of parameter points the tensor covers
func (t SampleTensor) Len() int {
	return len(t)
}

// StatisticKind selects one of the four test-statistic formulas
type StatisticKind string

const (
	StatisticACORE       StatisticKind = "acore"
	StatisticAvgACORE    StatisticKind = "avgacore"
	StatisticLogAvgACORE StatisticKind = "logavgacore"
	StatisticAverageOdds StatisticKind = "averageodds"
)

// StatisticKinds lists the valid kinds in documentation order
func StatisticKinds() []StatisticKind {
	return []StatisticKind{StatisticACORE, StatisticAvgACORE, StatisticLogAvgACORE, StatisticAverageOdds}
}

// ParseStatisticKind validates a test-statistic name
func ParseStatisticKind(s string) (StatisticKind, error) {
	for _, k := range StatisticKinds() {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: test_statistic needs to be either acore, avgacore, logavgacore or averageodds, got %q",
		core.ErrUnknownStatistic, s)
}

// ModelID names a simulator family
type ModelID string

const (
	ModelCamelus ModelID = "camelus"
	ModelPoisson ModelID = "poisson"
	ModelInferno ModelID = "inferno"
)

// ModelIDs lists the recognised simulator families
func ModelIDs() []ModelID {
	return []ModelID{ModelCamelus, ModelPoisson, ModelInferno}
}

// ParseModelID validates a run/model identifier
func ParseModelID(s string) (ModelID, error) {
	for _, m := range ModelIDs() {
		if string(m) == s {
			return m, nil
		}
	}
	names := make([]string, 0, 3)
	for _, m := range ModelIDs() {
		names = append(names, string(m))
	}
	return "", fmt.Errorf("%w: run must be one of %s, got %q", core.ErrUnknownModel, strings.Join(names, "|"), s)
}

// Diagnostic is a non-fatal condition raised while producing a row
type Diagnostic struct {
	Code      string `json:"code" db:"code"`
	Message   string `json:"message" db:"message"`
	BPrime    int    `json:"b_prime" db:"b_prime"`
	Algorithm string `json:"algorithm" db:"algorithm"`
}

// Diagnostic codes
const (
	DiagLogitNotConverged = "logit_not_converged"
	DiagLogitSingular     = "logit_singular_hessian"
	DiagSingleClass       = "single_class_indicator"
	DiagNegativeVariance  = "negative_variance_clamped"
)
