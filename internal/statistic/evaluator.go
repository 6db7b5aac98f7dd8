// Package statistic evaluates the odds-based test statistics on observation samples.
package statistic

import (
	"fmt"
	"math"
	"math/rand/v2"

	"acore/domain/core"
	"acore/domain/inference"
	apperrors "acore/internal/errors"
	"acore/ports"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// probFloor keeps log-odds finite when a classifier returns hard 0/1 probabilities
const probFloor = 1e-15

// DefaultMonteCarloSamples is the number of prior draws used by the Bayes-factor statistics
const DefaultMonteCarloSamples = 1000

// Evaluator computes one test statistic for a single (θ₀, observation sample) pair.
// Every variant shares this signature; rng is only consumed by variants that draw alternatives.
type Evaluator interface {
	Kind() inference.StatisticKind
	Evaluate(clf ports.ProbClassifier, sample *mat.Dense, theta0 []float64, rng *rand.Rand) (float64, error)
}

// Aux carries the formula-specific auxiliary inputs
type Aux struct {
	// Grid holds the alternative parameter points for acore, one per row
	Grid *mat.Dense
	// GenParams draws alternatives from the prior for avgacore and logavgacore
	GenParams ports.ParamGenerator
	// MonteCarloSamples is the number of alternatives drawn per evaluation
	MonteCarloSamples int
}

// New builds the evaluator for kind, failing with a configuration error when
// the auxiliary input that kind needs is absent
func New(kind inference.StatisticKind, aux Aux) (Evaluator, error) {
	mc := aux.MonteCarloSamples
	if mc <= 0 {
		mc = DefaultMonteCarloSamples
	}
	switch kind {
	case inference.StatisticACORE:
		if aux.Grid == nil {
			return nil, apperrors.WithCause(apperrors.CodeConfigInvalid, "acore needs grid_param_t1", core.ErrMissingGrid)
		}
		return &ACORE{Grid: aux.Grid}, nil
	case inference.StatisticAvgACORE:
		if aux.GenParams == nil {
			return nil, apperrors.WithCause(apperrors.CodeConfigInvalid, "avgacore needs gen_param_fun", core.ErrMissingGenerator)
		}
		return &BayesFactor{GenParams: aux.GenParams, Samples: mc}, nil
	case inference.StatisticLogAvgACORE:
		if aux.GenParams == nil {
			return nil, apperrors.WithCause(apperrors.CodeConfigInvalid, "logavgacore needs gen_param_fun", core.ErrMissingGenerator)
		}
		return &LogBayesFactor{GenParams: aux.GenParams, Samples: mc}, nil
	case inference.StatisticAverageOdds:
		return &AverageOdds{}, nil
	default:
		_, err := inference.ParseStatisticKind(string(kind))
		return nil, apperrors.WithCause(apperrors.CodeInvalidInput, "unrecognised test statistic", err)
	}
}

// EvaluateBatch applies ev to every (θ_k, sample_k) pair. It is the single entry
// point for both the check set and each calibration batch.
func EvaluateBatch(ev Evaluator, clf ports.ProbClassifier, thetas *mat.Dense, samples inference.SampleTensor, rng *rand.Rand) ([]float64, error) {
	n, _ := thetas.Dims()
	if samples.Len() != n {
		return nil, apperrors.WithCause(apperrors.CodeInvalidInput, "statistic batch",
			core.NewDimensionError("samples", samples.Len(), n))
	}
	out := make([]float64, n)
	for k := 0; k < n; k++ {
		v, err := ev.Evaluate(clf, samples[k], thetas.RawRowView(k), rng)
		if err != nil {
			return nil, apperrors.Wrapf(err, "%s statistic at point %d", ev.Kind(), k)
		}
		out[k] = v
	}
	return out, nil
}

// ACORE compares the summed log-odds at θ₀ against the best alternative on a fixed grid
type ACORE struct {
	Grid *mat.Dense
}

func (s *ACORE) Kind() inference.StatisticKind { return inference.StatisticACORE }

func (s *ACORE) Evaluate(clf ports.ProbClassifier, sample *mat.Dense, theta0 []float64, _ *rand.Rand) (float64, error) {
	l0, err := logOddsAt(clf, sample, [][]float64{theta0})
	if err != nil {
		return 0, err
	}
	alts, err := logOddsAt(clf, sample, rowsOf(s.Grid))
	if err != nil {
		return 0, err
	}
	return l0[0] - floats.Max(alts), nil
}

// BayesFactor is the odds at θ₀ over the odds averaged across prior draws, in natural scale
type BayesFactor struct {
	GenParams ports.ParamGenerator
	Samples   int
}

func (s *BayesFactor) Kind() inference.StatisticKind { return inference.StatisticAvgACORE }

func (s *BayesFactor) Evaluate(clf ports.ProbClassifier, sample *mat.Dense, theta0 []float64, rng *rand.Rand) (float64, error) {
	l0, err := logOddsAt(clf, sample, [][]float64{theta0})
	if err != nil {
		return 0, err
	}
	alts, err := logOddsAt(clf, sample, rowsOf(s.GenParams(s.Samples, rng)))
	if err != nil {
		return 0, err
	}
	// Both sides are scaled by exp(-m) so summed log-odds beyond the float64 range cancel.
	m := math.Max(l0[0], floats.Max(alts))
	var mean float64
	for _, l := range alts {
		mean += math.Exp(l - m)
	}
	mean /= float64(len(alts))
	return math.Exp(l0[0]-m) / mean, nil
}

// LogBayesFactor is the same ratio as BayesFactor computed entirely in log space
type LogBayesFactor struct {
	GenParams ports.ParamGenerator
	Samples   int
}

func (s *LogBayesFactor) Kind() inference.StatisticKind { return inference.StatisticLogAvgACORE }

func (s *LogBayesFactor) Evaluate(clf ports.ProbClassifier, sample *mat.Dense, theta0 []float64, rng *rand.Rand) (float64, error) {
	l0, err := logOddsAt(clf, sample, [][]float64{theta0})
	if err != nil {
		return 0, err
	}
	alts, err := logOddsAt(clf, sample, rowsOf(s.GenParams(s.Samples, rng)))
	if err != nil {
		return 0, err
	}
	return l0[0] - (floats.LogSumExp(alts) - math.Log(float64(len(alts)))), nil
}

// AverageOdds is the mean per-observation odds at θ₀; it needs no alternatives
type AverageOdds struct{}

func (s *AverageOdds) Kind() inference.StatisticKind { return inference.StatisticAverageOdds }

func (s *AverageOdds) Evaluate(clf ports.ProbClassifier, sample *mat.Dense, theta0 []float64, _ *rand.Rand) (float64, error) {
	probs, err := predictAt(clf, sample, [][]float64{theta0})
	if err != nil {
		return 0, err
	}
	var sum float64
	for _, p := range probs {
		p = clip(p)
		sum += p / (1 - p)
	}
	return sum / float64(len(probs)), nil
}

// logOddsAt returns, for each parameter point, Σ_i log p(x_i) − log(1 − p(x_i))
func logOddsAt(clf ports.ProbClassifier, sample *mat.Dense, thetas [][]float64) ([]float64, error) {
	probs, err := predictAt(clf, sample, thetas)
	if err != nil {
		return nil, err
	}
	n, _ := sample.Dims()
	out := make([]float64, len(thetas))
	for t := range thetas {
		var s float64
		for _, p := range probs[t*n : (t+1)*n] {
			p = clip(p)
			s += math.Log(p) - math.Log(1-p)
		}
		out[t] = s
	}
	return out, nil
}

// predictAt stacks [θ_t, x_i] for every parameter point and observation and
// queries the classifier once. Output block t holds the n probabilities for θ_t.
func predictAt(clf ports.ProbClassifier, sample *mat.Dense, thetas [][]float64) ([]float64, error) {
	n, dObs := sample.Dims()
	if n == 0 || len(thetas) == 0 {
		return nil, apperrors.WithCause(apperrors.CodeInvalidInput, "statistic input", core.ErrEmptyInput)
	}
	d := len(thetas[0])
	features := mat.NewDense(len(thetas)*n, d+dObs, nil)
	for t, theta := range thetas {
		if len(theta) != d {
			return nil, apperrors.WithCause(apperrors.CodeInvalidInput, "statistic input",
				core.NewDimensionError("theta", len(theta), d))
		}
		for i := 0; i < n; i++ {
			row := features.RawRowView(t*n + i)
			copy(row[:d], theta)
			copy(row[d:], sample.RawRowView(i))
		}
	}
	probs, err := clf.PredictProba(features)
	if err != nil {
		return nil, fmt.Errorf("odds classifier prediction: %w", err)
	}
	return probs, nil
}

func rowsOf(m *mat.Dense) [][]float64 {
	r, _ := m.Dims()
	rows := make([][]float64, r)
	for i := range rows {
		rows[i] = m.RawRowView(i)
	}
	return rows
}

func clip(p float64) float64 {
	return math.Min(math.Max(p, probFloor), 1-probFloor)
}
