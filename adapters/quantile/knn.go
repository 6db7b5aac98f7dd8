package quantile

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"acore/domain/core"
	"acore/internal/trees"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// KNN predicts the α-quantile of the responses of the k nearest training points.
// Distances are computed on standardised features.
type KNN struct {
	k     int
	alpha float64
	mean  []float64
	scale []float64
	x     *mat.Dense
	y     []float64
}

// NewKNN creates a kNN quantile regressor
func NewKNN(k int) *KNN {
	return &KNN{k: k}
}

func (q *KNN) Fit(x *mat.Dense, y []float64, alpha float64, _ *rand.Rand) error {
	n, d := x.Dims()
	if n == 0 {
		return fmt.Errorf("knn qr: %w", core.ErrEmptyInput)
	}
	if len(y) != n {
		return fmt.Errorf("knn qr: %w", core.NewDimensionError("response", len(y), n))
	}
	if q.k <= 0 {
		return fmt.Errorf("knn qr: n_neighbors must be positive, got %d", q.k)
	}
	q.alpha = alpha
	q.mean = make([]float64, d)
	q.scale = make([]float64, d)
	for j := 0; j < d; j++ {
		col := mat.Col(nil, j, x)
		m, sd := stat.MeanStdDev(col, nil)
		if sd == 0 || math.IsNaN(sd) {
			sd = 1
		}
		q.mean[j], q.scale[j] = m, sd
	}
	q.x = mat.NewDense(n, d, nil)
	for i := 0; i < n; i++ {
		q.standardize(x.RawRowView(i), q.x.RawRowView(i))
	}
	q.y = append([]float64(nil), y...)
	return nil
}

func (q *KNN) Predict(x *mat.Dense) ([]float64, error) {
	if q.x == nil {
		return nil, fmt.Errorf("knn qr: %w", core.ErrNotFitted)
	}
	n, d := x.Dims()
	train, _ := q.x.Dims()
	k := min(q.k, train)

	type neighbour struct {
		dist float64
		row  int
	}
	all := make([]neighbour, train)
	query := make([]float64, d)
	vals := make([]float64, k)
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		q.standardize(x.RawRowView(i), query)
		for r := 0; r < train; r++ {
			var s float64
			for j, v := range q.x.RawRowView(r) {
				diff := v - query[j]
				s += diff * diff
			}
			all[r] = neighbour{dist: s, row: r}
		}
		sort.Slice(all, func(a, b int) bool {
			if all[a].dist == all[b].dist {
				return all[a].row < all[b].row
			}
			return all[a].dist < all[b].dist
		})
		for j := 0; j < k; j++ {
			vals[j] = q.y[all[j].row]
		}
		out[i] = trees.Quantile(vals, q.alpha)
	}
	return out, nil
}

func (q *KNN) standardize(in, out []float64) {
	for j, v := range in {
		out[j] = (v - q.mean[j]) / q.scale[j]
	}
}
