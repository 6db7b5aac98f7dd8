package classifier

import (
	"fmt"

	"acore/domain/core"
	"acore/internal/logit"

	"gonum.org/v1/gonum/mat"
)

// Logistic is an (almost) unpenalised logistic regression on the raw features
type Logistic struct {
	opts logit.Options
	fit  *logit.Result
}

// NewLogistic creates a logistic classifier with a long iteration budget
func NewLogistic() *Logistic {
	return &Logistic{opts: logit.Options{MaxIter: 200, Tol: 1e-8, L2: 1e-6}}
}

func (l *Logistic) Fit(x *mat.Dense, y []float64) error {
	res, err := logit.Fit(logit.AddConstant(x), y, l.opts)
	if err != nil {
		return err
	}
	l.fit = res
	return nil
}

func (l *Logistic) PredictProba(x *mat.Dense) ([]float64, error) {
	if l.fit == nil {
		return nil, fmt.Errorf("logistic: %w", core.ErrNotFitted)
	}
	return l.fit.Predict(logit.AddConstant(x)), nil
}
