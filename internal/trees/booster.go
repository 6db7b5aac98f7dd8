package trees

import (
	"fmt"
	"math"

	"acore/domain/core"

	"gonum.org/v1/gonum/mat"
)

// BoosterParams configures a gradient-boosted binary classifier
type BoosterParams struct {
	Tree         Params
	NEstimators  int
	LearningRate float64
}

// DefaultBoosterParams mirrors the usual xgboost defaults for a given depth and round count
func DefaultBoosterParams(depth, rounds int) BoosterParams {
	return BoosterParams{
		Tree: Params{
			MaxDepth:       depth,
			MinChildWeight: 1,
			MinSamplesLeaf: 1,
			Lambda:         1,
		},
		NEstimators:  rounds,
		LearningRate: 0.3,
	}
}

// Booster is a logistic-loss gradient-boosted tree ensemble
type Booster struct {
	params BoosterParams
	base   float64
	trees  []*Tree
	fitted bool
}

// NewBooster creates an unfitted booster
func NewBooster(p BoosterParams) *Booster {
	return &Booster{params: p}
}

// Fit trains the ensemble on binary labels y ∈ {0, 1}
func (b *Booster) Fit(x *mat.Dense, y []float64) error {
	n, _ := x.Dims()
	if n == 0 {
		return fmt.Errorf("booster: %w", core.ErrEmptyInput)
	}
	if len(y) != n {
		return fmt.Errorf("booster: %w", core.NewDimensionError("labels", len(y), n))
	}

	var pos float64
	for i, v := range y {
		if v != 0 && v != 1 {
			return fmt.Errorf("booster: label %d is %v, want 0 or 1", i, v)
		}
		pos += v
	}
	b.base = logit(clamp(pos/float64(n), 1e-6, 1-1e-6))
	b.trees = b.trees[:0]

	_, d := x.Dims()
	cols := make([][]float64, d)
	for j := 0; j < d; j++ {
		cols[j] = mat.Col(nil, j, x)
	}
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}

	margin := make([]float64, n)
	for i := range margin {
		margin[i] = b.base
	}
	grad := make([]float64, n)
	hess := make([]float64, n)
	for m := 0; m < b.params.NEstimators; m++ {
		for i := range margin {
			p := sigmoid(margin[i])
			grad[i] = p - y[i]
			hess[i] = math.Max(p*(1-p), 1e-16)
		}
		tree := growColumns(cols, grad, hess, rows, b.params.Tree, nil)
		tree.Scale(b.params.LearningRate)
		for i := range margin {
			margin[i] += tree.Predict(x.RawRowView(i))
		}
		b.trees = append(b.trees, tree)
	}
	b.fitted = true
	return nil
}

// Margin returns the raw log-odds score for one row
func (b *Booster) Margin(row []float64) float64 {
	f := b.base
	for _, t := range b.trees {
		f += t.Predict(row)
	}
	return f
}

// PredictProba returns P(y = 1) for every row of x
func (b *Booster) PredictProba(x *mat.Dense) ([]float64, error) {
	if !b.fitted {
		return nil, fmt.Errorf("booster: %w", core.ErrNotFitted)
	}
	n, _ := x.Dims()
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = sigmoid(b.Margin(x.RawRowView(i)))
	}
	return out, nil
}

// NumTrees reports the number of fitted rounds
func (b *Booster) NumTrees() int {
	return len(b.trees)
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

func logit(p float64) float64 {
	return math.Log(p / (1 - p))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
