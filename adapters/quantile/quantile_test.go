package quantile

import (
	"errors"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"acore/domain/core"
	"acore/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// heteroscedastic returns y = 2θ + θ·u/2 with u ~ U(0, 1), whose α-quantile is θ(2 + α/2)
func heteroscedastic(n int, rng *rand.Rand) (*mat.Dense, []float64) {
	x := mat.NewDense(n, 1, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		th := 1 + 4*rng.Float64()
		x.Set(i, 0, th)
		y[i] = 2*th + 0.5*th*rng.Float64()
	}
	return x, y
}

func TestRegistries_AreSortedByName(t *testing.T) {
	for _, reg := range []*Registry{Complete(), Small()} {
		algos := reg.Algorithms()
		require.NotEmpty(t, algos)
		assert.True(t, sort.SliceIsSorted(algos, func(i, j int) bool { return algos[i].Name < algos[j].Name }))
		for _, a := range algos {
			assert.NotEmpty(t, a.Family, a.Name)
		}
	}
	assert.Len(t, Small().Algorithms(), 4)
}

func TestAlgorithms_EstimateConditionalQuantile(t *testing.T) {
	const alpha = 0.8
	rng := rand.New(rand.NewPCG(10, 10))
	x, y := heteroscedastic(3000, rng)
	grid := mat.NewDense(3, 1, []float64{2, 3, 4})

	for _, algo := range Small().Algorithms() {
		t.Run(algo.Name, func(t *testing.T) {
			r, err := Small().Build(algo)
			require.NoError(t, err)
			require.NoError(t, r.Fit(x, y, alpha, rand.New(rand.NewPCG(1, 2))))
			pred, err := r.Predict(grid)
			require.NoError(t, err)
			for i, th := range []float64{2, 3, 4} {
				assert.InDelta(t, th*(2+alpha/2), pred[i], 0.4, "θ=%v", th)
			}
		})
	}
}

func TestBuild_ReturnsFreshRegressor(t *testing.T) {
	reg := Small()
	algo := reg.Algorithms()[0]
	a, err := reg.Build(algo)
	require.NoError(t, err)
	b, err := reg.Build(algo)
	require.NoError(t, err)
	assert.NotSame(t, a, b)
}

func TestNewRegistry_Validation(t *testing.T) {
	_, err := NewRegistry([]ports.QuantileAlgorithm{{Name: "gp", AlgoID: "gaussian_process"}})
	assert.True(t, errors.Is(err, core.ErrUnknownAlgorithm))

	_, err = NewRegistry([]ports.QuantileAlgorithm{
		{Name: "a", AlgoID: AlgoKNN},
		{Name: "a", AlgoID: AlgoLinear},
	})
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qr.yaml")
	content := `algorithms:
  - name: zz_linear
    algorithm: linear
  - name: forest
    algorithm: qrf
    hyperparameters:
      n_estimators: 20
    extra:
      workers: 2
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	reg, err := LoadFile(path)
	require.NoError(t, err)
	algos := reg.Algorithms()
	require.Len(t, algos, 2)
	assert.Equal(t, "forest", algos[0].Name)
	assert.Equal(t, ports.FamilyRandomForest, algos[0].Family)
	assert.Equal(t, 20.0, algos[0].Hyper["n_estimators"])
	assert.Equal(t, ports.FamilyLinear, algos[1].Family)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
