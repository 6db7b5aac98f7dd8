package trees

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func thresholdData(n int, rng *rand.Rand) (*mat.Dense, []float64) {
	x := mat.NewDense(n, 2, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		a, b := rng.Float64(), rng.Float64()
		x.Set(i, 0, a)
		x.Set(i, 1, b)
		if a > 0.4 {
			y[i] = 1
		}
	}
	return x, y
}

func shiftedUniform(n int, rng *rand.Rand) (*mat.Dense, []float64) {
	x := mat.NewDense(n, 1, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		v := 4 * rng.Float64()
		x.Set(i, 0, v)
		y[i] = v + rng.Float64()
	}
	return x, y
}

func TestBooster_SeparatesThreshold(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	x, y := thresholdData(1000, rng)

	b := NewBooster(DefaultBoosterParams(3, 50))
	require.NoError(t, b.Fit(x, y))
	assert.Equal(t, 50, b.NumTrees())

	proba, err := b.PredictProba(x)
	require.NoError(t, err)
	var correct int
	for i, p := range proba {
		if (p > 0.5) == (y[i] == 1) {
			correct++
		}
	}
	assert.Greater(t, float64(correct)/float64(len(y)), 0.97)

	for _, tree := range b.trees {
		assert.LessOrEqual(t, tree.Depth(), 3)
	}
}

func TestBooster_Errors(t *testing.T) {
	b := NewBooster(DefaultBoosterParams(3, 10))
	_, err := b.PredictProba(mat.NewDense(1, 1, nil))
	assert.Error(t, err, "predict before fit")

	err = b.Fit(mat.NewDense(2, 1, []float64{0, 1}), []float64{0, 2})
	assert.Error(t, err, "non-binary label")

	err = b.Fit(mat.NewDense(2, 1, []float64{0, 1}), []float64{0})
	assert.Error(t, err, "length mismatch")
}

func TestQuantileBooster_HitsLevel(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	x, y := shiftedUniform(3000, rng)

	q := NewQuantileBooster(QuantileBoosterParams{
		Tree:         Params{MaxDepth: 3, MinSamplesLeaf: 20, Lambda: 1},
		NEstimators:  100,
		LearningRate: 0.1,
	})
	require.NoError(t, q.Fit(x, y, 0.9))

	pred, err := q.Predict(x)
	require.NoError(t, err)
	var below int
	for i := range y {
		if y[i] <= pred[i] {
			below++
		}
	}
	assert.InDelta(t, 0.9, float64(below)/float64(len(y)), 0.04)
}

func TestForest_HitsLevelAndIsReproducible(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 6))
	x, y := shiftedUniform(2000, rng)
	params := ForestParams{Tree: Params{MaxDepth: 8, MinSamplesLeaf: 10, Lambda: 0}, NEstimators: 30}

	fit := func(seed uint64) []float64 {
		f := NewForest(params)
		require.NoError(t, f.Fit(x, y, rand.New(rand.NewPCG(seed, 1))))
		pred, err := f.PredictQuantile(x, 0.1)
		require.NoError(t, err)
		return pred
	}

	first := fit(42)
	assert.Equal(t, first, fit(42), "same seed must give identical forests")

	var below int
	for i := range y {
		if y[i] <= first[i] {
			below++
		}
	}
	assert.InDelta(t, 0.1, float64(below)/float64(len(y)), 0.06)
}

func TestQuantile_MonotoneAndNonDestructive(t *testing.T) {
	values := []float64{5, 1, 4, 2, 3}
	lo := Quantile(values, 0.1)
	mid := Quantile(values, 0.5)
	hi := Quantile(values, 0.9)
	assert.LessOrEqual(t, lo, mid)
	assert.LessOrEqual(t, mid, hi)
	assert.Equal(t, []float64{5, 1, 4, 2, 3}, values)
	assert.Equal(t, 0.0, Quantile(nil, 0.5))
}
