package classifier

import (
	"errors"
	"fmt"
	"math"

	"acore/domain/core"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distmv"
)

// qdaRidge is added to each class covariance diagonal
const qdaRidge = 1e-6

// QDA models each class as a multivariate normal with its own covariance
type QDA struct {
	class    [2]*distmv.Normal
	logPrior [2]float64
	fitted   bool
}

// NewQDA creates an unfitted quadratic discriminant classifier
func NewQDA() *QDA {
	return &QDA{}
}

func (q *QDA) Fit(x *mat.Dense, y []float64) error {
	n, d := x.Dims()
	if len(y) != n {
		return fmt.Errorf("qda: %w", core.NewDimensionError("labels", len(y), n))
	}
	var rows [2][]int
	for i, v := range y {
		c := 0
		if v == 1 {
			c = 1
		}
		rows[c] = append(rows[c], i)
	}
	for c := 0; c < 2; c++ {
		if len(rows[c]) < 2 {
			return errors.New("qda: each class needs at least two rows")
		}
		sub := mat.NewDense(len(rows[c]), d, nil)
		for k, i := range rows[c] {
			sub.SetRow(k, x.RawRowView(i))
		}
		mean := make([]float64, d)
		for j := 0; j < d; j++ {
			mean[j] = stat.Mean(mat.Col(nil, j, sub), nil)
		}
		cov := mat.NewSymDense(d, nil)
		stat.CovarianceMatrix(cov, sub, nil)
		for j := 0; j < d; j++ {
			cov.SetSym(j, j, cov.At(j, j)+qdaRidge)
		}
		normal, ok := distmv.NewNormal(mean, cov, nil)
		if !ok {
			return fmt.Errorf("qda: covariance of class %d is not positive definite", c)
		}
		q.class[c] = normal
		q.logPrior[c] = math.Log(float64(len(rows[c])) / float64(n))
	}
	q.fitted = true
	return nil
}

func (q *QDA) PredictProba(x *mat.Dense) ([]float64, error) {
	if !q.fitted {
		return nil, fmt.Errorf("qda: %w", core.ErrNotFitted)
	}
	n, _ := x.Dims()
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		row := x.RawRowView(i)
		z := q.class[1].LogProb(row) + q.logPrior[1] - q.class[0].LogProb(row) - q.logPrior[0]
		out[i] = 1 / (1 + math.Exp(-z))
	}
	return out, nil
}
