// Package coverage smooths binary coverage indicators over the parameter space
// and summarises them against the nominal confidence level.
package coverage

import (
	"errors"
	"fmt"
	"math"

	"acore/domain/core"
	"acore/domain/inference"
	"acore/internal"
	apperrors "acore/internal/errors"
	"acore/internal/logit"
	"acore/internal/trees"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/mat"
)

// Upper-bound multipliers on the logistic standard error
const (
	OneStd     = 1.0
	NinetyFive = 1.96
)

// Options configures the two smoothing models
type Options struct {
	Alpha   float64
	Booster trees.BoosterParams
	Logit   logit.Options
}

// DefaultOptions uses a depth-3, 100-round booster and the default Newton settings
func DefaultOptions(alpha float64) Options {
	return Options{
		Alpha:   alpha,
		Booster: trees.DefaultBoosterParams(3, 100),
		Logit:   logit.DefaultOptions(),
	}
}

// Summary holds the four (exceedance fraction, mean) pairs of one row
type Summary struct {
	PercentCorrect float64
	Average        float64

	PercentCorrectLR float64
	AverageLR        float64

	PercentCorrect1Std float64
	Average1Std        float64

	PercentCorrect2Std float64
	Average2Std        float64

	// LogitConverged is false when the Newton iterations hit the cap or the fit degenerated
	LogitConverged bool
	Diagnostics    []inference.Diagnostic
}

// Summarizer fits the smoothing models for one (B′, algorithm) combination
type Summarizer struct {
	opts   Options
	logger *internal.Logger
}

// NewSummarizer creates a coverage summarizer
func NewSummarizer(opts Options, logger *internal.Logger) *Summarizer {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Summarizer{opts: opts, logger: logger.WithComponent("coverage")}
}

// Indicators returns 1{τ_obs > critical value} for every check point
func Indicators(tauObs, critical []float64) ([]bool, error) {
	if len(tauObs) != len(critical) {
		return nil, apperrors.WithCause(apperrors.CodeInvalidInput, "coverage indicators",
			core.NewDimensionError("critical values", len(critical), len(tauObs)))
	}
	in := make([]bool, len(tauObs))
	for i := range tauObs {
		in[i] = tauObs[i] > critical[i]
	}
	return in, nil
}

// Summarize fits the boosted-tree model on (θ, indicator) and evaluates it on
// predGrid, then fits the logistic model and evaluates it on thetaVec itself.
// The two models are deliberately evaluated on different grids.
func (s *Summarizer) Summarize(thetaVec *mat.Dense, indicators []bool, predGrid *mat.Dense) (*Summary, error) {
	n, _ := thetaVec.Dims()
	if n == 0 {
		return nil, apperrors.WithCause(apperrors.CodeInvalidInput, "coverage summary", core.ErrEmptyInput)
	}
	if len(indicators) != n {
		return nil, apperrors.WithCause(apperrors.CodeInvalidInput, "coverage summary",
			core.NewDimensionError("indicators", len(indicators), n))
	}
	y := make([]float64, n)
	for i, in := range indicators {
		if in {
			y[i] = 1
		}
	}
	threshold := 1 - s.opts.Alpha
	summary := &Summary{LogitConverged: true}

	booster := trees.NewBooster(s.opts.Booster)
	if err := booster.Fit(thetaVec, y); err != nil {
		return nil, apperrors.FitFailed("coverage booster", err)
	}
	treeProba, err := booster.PredictProba(predGrid)
	if err != nil {
		return nil, apperrors.FitFailed("coverage booster", err)
	}
	summary.PercentCorrect, summary.Average = exceedance(treeProba, threshold)

	x := logit.AddConstant(thetaVec)
	proba, se, err := s.fitLogit(x, y, summary)
	if err != nil {
		return nil, err
	}
	summary.PercentCorrectLR, summary.AverageLR = exceedance(proba, threshold)

	upper1 := upperBound(proba, se, OneStd)
	summary.PercentCorrect1Std, summary.Average1Std = exceedance(upper1, threshold)

	upper2 := upperBound(proba, se, NinetyFive)
	summary.PercentCorrect2Std, summary.Average2Std = exceedance(upper2, threshold)

	return summary, nil
}

// fitLogit returns point probabilities and standard errors on the rows of x.
// A fit that cannot produce a covariance falls back to the constant
// empirical-rate model with zero standard error and records why.
func (s *Summarizer) fitLogit(x *mat.Dense, y []float64, summary *Summary) ([]float64, []float64, error) {
	n, _ := x.Dims()
	res, err := logit.Fit(x, y, s.opts.Logit)
	switch {
	case errors.Is(err, logit.ErrSingleClass):
		summary.LogitConverged = false
		summary.Diagnostics = append(summary.Diagnostics, inference.Diagnostic{
			Code:    inference.DiagSingleClass,
			Message: fmt.Sprintf("all %d coverage indicators equal %v; logistic fit replaced by a constant", n, y[0]),
		})
		return constant(n, y[0]), make([]float64, n), nil
	case errors.Is(err, logit.ErrSingular):
		summary.LogitConverged = false
		rate, _ := stats.Mean(y)
		summary.Diagnostics = append(summary.Diagnostics, inference.Diagnostic{
			Code:    inference.DiagLogitSingular,
			Message: fmt.Sprintf("logistic information matrix singular after %d iterations; using empirical rate %.4f", iterations(res), rate),
		})
		return constant(n, rate), make([]float64, n), nil
	case err != nil:
		return nil, nil, apperrors.FitFailed("coverage logit", err)
	}

	if !res.Converged {
		summary.LogitConverged = false
		summary.Diagnostics = append(summary.Diagnostics, inference.Diagnostic{
			Code:    inference.DiagLogitNotConverged,
			Message: fmt.Sprintf("logistic regression did not converge in %d iterations; estimate kept", res.Iterations),
		})
	}
	proba := res.Predict(x)
	se, clamped := res.StdErrors(x, proba)
	if clamped > 0 {
		summary.Diagnostics = append(summary.Diagnostics, inference.Diagnostic{
			Code:    inference.DiagNegativeVariance,
			Message: fmt.Sprintf("%d delta-method variances were negative and clamped to zero", clamped),
		})
	}
	return proba, se, nil
}

// exceedance returns the fraction of values strictly above threshold and their mean
func exceedance(values []float64, threshold float64) (float64, float64) {
	var above float64
	for _, v := range values {
		if v > threshold {
			above++
		}
	}
	mean, err := stats.Mean(values)
	if err != nil {
		mean = math.NaN()
	}
	return above / float64(len(values)), mean
}

func upperBound(proba, se []float64, k float64) []float64 {
	out := make([]float64, len(proba))
	for i := range proba {
		out[i] = math.Max(0, math.Min(1, proba[i]+k*se[i]))
	}
	return out
}

func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func iterations(res *logit.Result) int {
	if res == nil {
		return 0
	}
	return res.Iterations
}
