package trees

import (
	"fmt"
	"sort"

	"acore/domain/core"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// QuantileBoosterParams configures a pinball-loss gradient-boosted regressor
type QuantileBoosterParams struct {
	Tree         Params
	NEstimators  int
	LearningRate float64
}

// QuantileBooster fits the conditional α-quantile with boosted trees.
// Each round grows a tree on the pinball-loss gradient and then resets every
// leaf to the α-quantile of the residuals that fall into it.
type QuantileBooster struct {
	params QuantileBoosterParams
	alpha  float64
	init   float64
	trees  []*Tree
	fitted bool
}

// NewQuantileBooster creates an unfitted quantile booster
func NewQuantileBooster(p QuantileBoosterParams) *QuantileBooster {
	return &QuantileBooster{params: p}
}

// Fit trains the booster on (x, y) for quantile level alpha
func (q *QuantileBooster) Fit(x *mat.Dense, y []float64, alpha float64) error {
	n, d := x.Dims()
	if n == 0 {
		return fmt.Errorf("quantile booster: %w", core.ErrEmptyInput)
	}
	if len(y) != n {
		return fmt.Errorf("quantile booster: %w", core.NewDimensionError("response", len(y), n))
	}
	if alpha <= 0 || alpha >= 1 {
		return fmt.Errorf("quantile booster: alpha %v outside (0, 1)", alpha)
	}
	q.alpha = alpha
	q.init = Quantile(y, alpha)
	q.trees = q.trees[:0]

	cols := make([][]float64, d)
	for j := 0; j < d; j++ {
		cols[j] = mat.Col(nil, j, x)
	}
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}

	pred := make([]float64, n)
	for i := range pred {
		pred[i] = q.init
	}
	grad := make([]float64, n)
	hess := make([]float64, n)
	for i := range hess {
		hess[i] = 1
	}
	resid := make([]float64, n)

	for m := 0; m < q.params.NEstimators; m++ {
		for i := range pred {
			resid[i] = y[i] - pred[i]
			if resid[i] > 0 {
				grad[i] = -alpha
			} else {
				grad[i] = 1 - alpha
			}
		}
		tree := growColumns(cols, grad, hess, rows, q.params.Tree, nil)

		members := make(map[int][]float64)
		leafOf := make([]int, n)
		for i := 0; i < n; i++ {
			leaf := tree.Leaf(x.RawRowView(i))
			leafOf[i] = leaf
			members[leaf] = append(members[leaf], resid[i])
		}
		for leaf, rs := range members {
			tree.SetLeafValue(leaf, q.params.LearningRate*Quantile(rs, alpha))
		}
		for i := range pred {
			pred[i] += tree.nodes[leafOf[i]].value
		}
		q.trees = append(q.trees, tree)
	}
	q.fitted = true
	return nil
}

// Predict returns the estimated α-quantile for every row of x
func (q *QuantileBooster) Predict(x *mat.Dense) ([]float64, error) {
	if !q.fitted {
		return nil, fmt.Errorf("quantile booster: %w", core.ErrNotFitted)
	}
	n, _ := x.Dims()
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		row := x.RawRowView(i)
		v := q.init
		for _, t := range q.trees {
			v += t.Predict(row)
		}
		out[i] = v
	}
	return out, nil
}

// Quantile returns the linearly interpolated p-quantile of values without modifying them
func Quantile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return stat.Quantile(p, stat.LinInterp, sorted, nil)
}
