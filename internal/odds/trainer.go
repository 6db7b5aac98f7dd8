// Package odds trains the classifier that separates samples drawn under θ from reference samples.
package odds

import (
	"context"
	"math/rand/v2"
	"time"

	"acore/internal"
	apperrors "acore/internal/errors"
	"acore/ports"
)

// Trainer fits the odds classifier once per run
type Trainer struct {
	logger *internal.Logger
}

// NewTrainer creates an odds classifier trainer
func NewTrainer(logger *internal.Logger) *Trainer {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Trainer{logger: logger.WithComponent("odds")}
}

// Train draws b labelled (θ, x) rows from gen and fits a fresh classifier from spec.
// Errors returned by the classifier's Fit are passed through as they are.
func (t *Trainer) Train(ctx context.Context, b int, spec ports.ClassifierSpec, gen ports.SampleGenerator, rng *rand.Rand) (ports.ProbClassifier, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if b <= 0 {
		return nil, apperrors.Newf(apperrors.CodeInvalidInput, "odds training budget must be positive, got %d", b)
	}
	if spec.New == nil {
		return nil, apperrors.Newf(apperrors.CodeConfigInvalid, "classifier %q has no factory", spec.ID)
	}

	x, y, err := gen(b, rng)
	if err != nil {
		return nil, apperrors.SimulationError("odds training sample generation failed", err)
	}

	var positives int
	for _, v := range y {
		if v == 1 {
			positives++
		}
	}
	t.logger.Debug("training %s on %d rows (%d drawn under θ, %d from reference)", spec.DisplayName, len(y), positives, len(y)-positives)

	start := time.Now()
	clf := spec.New()
	if err := clf.Fit(x, y); err != nil {
		return nil, err
	}
	t.logger.Info("%s trained in %s", spec.DisplayName, time.Since(start).Round(time.Millisecond))
	return clf, nil
}
