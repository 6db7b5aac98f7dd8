package statistic

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"acore/adapters/rng"
	"acore/domain/core"
	"acore/domain/inference"
	apperrors "acore/internal/errors"
	"acore/internal/testkit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func fixture(t *testing.T) (*testkit.GaussianSimulator, *testkit.AnalyticClassifier, *mat.Dense, inference.SampleTensor) {
	t.Helper()
	sim := testkit.NewGaussianSimulator()
	theta, samples, err := sim.SampleCheck(20, 5, rng.New(3))
	require.NoError(t, err)
	return sim, &testkit.AnalyticClassifier{}, theta, samples
}

func TestLogAvgACOREMatchesLogOfAvgACORE(t *testing.T) {
	sim, clf, theta, samples := fixture(t)
	aux := Aux{Grid: sim.Grid(), GenParams: sim.SampleParams, MonteCarloSamples: 200}

	linear, err := New(inference.StatisticAvgACORE, aux)
	require.NoError(t, err)
	logScale, err := New(inference.StatisticLogAvgACORE, aux)
	require.NoError(t, err)

	// Both paths draw their alternatives from identically seeded generators
	lin, err := EvaluateBatch(linear, clf, theta, samples, rng.New(99))
	require.NoError(t, err)
	logv, err := EvaluateBatch(logScale, clf, theta, samples, rng.New(99))
	require.NoError(t, err)

	for k := range lin {
		require.Greater(t, lin[k], 0.0)
		assert.InDelta(t, math.Log(lin[k]), logv[k], 1e-9, "point %d", k)
	}
}

func TestAverageOddsIsOrderInvariant(t *testing.T) {
	_, clf, theta, samples := fixture(t)
	ev, err := New(inference.StatisticAverageOdds, Aux{})
	require.NoError(t, err)

	perm := rand.New(rand.NewPCG(1, 1))
	for k := 0; k < samples.Len(); k++ {
		original, err := ev.Evaluate(clf, samples[k], theta.RawRowView(k), nil)
		require.NoError(t, err)

		n, d := samples[k].Dims()
		shuffled := mat.NewDense(n, d, nil)
		for i, j := range perm.Perm(n) {
			shuffled.SetRow(i, samples[k].RawRowView(j))
		}
		reordered, err := ev.Evaluate(clf, shuffled, theta.RawRowView(k), nil)
		require.NoError(t, err)
		assert.InDelta(t, original, reordered, 1e-12*math.Max(1, math.Abs(original)))
	}
}

func TestACOREIsNonPositiveWhenNullIsOnGrid(t *testing.T) {
	sim, clf, _, samples := fixture(t)
	grid := sim.Grid()
	ev, err := New(inference.StatisticACORE, Aux{Grid: grid})
	require.NoError(t, err)

	for k := 0; k < samples.Len(); k++ {
		v, err := ev.Evaluate(clf, samples[k], grid.RawRowView(k%5), nil)
		require.NoError(t, err)
		assert.LessOrEqual(t, v, 0.0)
	}
}

func TestNewConfigurationErrors(t *testing.T) {
	tests := []struct {
		name     string
		kind     inference.StatisticKind
		aux      Aux
		code     string
		sentinel error
	}{
		{"acore without grid", inference.StatisticACORE, Aux{}, apperrors.CodeConfigInvalid, core.ErrMissingGrid},
		{"avgacore without generator", inference.StatisticAvgACORE, Aux{}, apperrors.CodeConfigInvalid, core.ErrMissingGenerator},
		{"logavgacore without generator", inference.StatisticLogAvgACORE, Aux{}, apperrors.CodeConfigInvalid, core.ErrMissingGenerator},
		{"unknown kind", inference.StatisticKind("maxodds"), Aux{}, apperrors.CodeInvalidInput, core.ErrUnknownStatistic},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.kind, tt.aux)
			require.Error(t, err)
			assert.True(t, apperrors.HasCode(err, tt.code), "got %v", err)
			assert.True(t, errors.Is(err, tt.sentinel), "got %v", err)
		})
	}

	_, err := New("maxodds", Aux{})
	assert.Contains(t, err.Error(), "acore, avgacore, logavgacore or averageodds")
}

func TestEvaluateBatchRejectsMismatch(t *testing.T) {
	_, clf, theta, samples := fixture(t)
	ev, err := New(inference.StatisticAverageOdds, Aux{})
	require.NoError(t, err)

	_, err = EvaluateBatch(ev, clf, theta, samples[:3], nil)
	assert.True(t, errors.Is(err, core.ErrDimensionMismatch))
}

func TestClipKeepsLogOddsFinite(t *testing.T) {
	assert.Equal(t, probFloor, clip(0))
	assert.Equal(t, 1-probFloor, clip(1))
	assert.False(t, math.IsInf(math.Log(clip(0))-math.Log(1-clip(0)), 0))
}

// hardVote is certain about the class whenever the parameter column is non-negative
type hardVote struct{}

func (hardVote) Fit(x *mat.Dense, y []float64) error { return nil }

func (hardVote) PredictProba(x *mat.Dense) ([]float64, error) {
	n, _ := x.Dims()
	out := make([]float64, n)
	for i := range out {
		out[i] = 0.9
		if x.At(i, 0) >= 0 {
			out[i] = 1
		}
	}
	return out, nil
}

func TestAvgACOREStaysFiniteForSaturatedOdds(t *testing.T) {
	// 200 evenly spaced prior draws on [-1, 1]; half of them are non-negative
	evenly := func(size int, _ *rand.Rand) *mat.Dense {
		m := mat.NewDense(size, 1, nil)
		for i := 0; i < size; i++ {
			m.Set(i, 0, -1+2*float64(i)/float64(size-1))
		}
		return m
	}
	aux := Aux{GenParams: evenly, MonteCarloSamples: 200}
	linear, err := New(inference.StatisticAvgACORE, aux)
	require.NoError(t, err)
	logScale, err := New(inference.StatisticLogAvgACORE, aux)
	require.NoError(t, err)

	// 25 observations at probability 1 sum to more log-odds than exp can hold
	sample := mat.NewDense(25, 1, nil)
	theta0 := []float64{0.5}

	lin, err := linear.Evaluate(hardVote{}, sample, theta0, rng.New(1))
	require.NoError(t, err)
	logv, err := logScale.Evaluate(hardVote{}, sample, theta0, rng.New(1))
	require.NoError(t, err)

	require.False(t, math.IsNaN(lin) || math.IsInf(lin, 0), "avgacore = %v", lin)
	assert.InDelta(t, 2.0, lin, 1e-9)
	assert.InDelta(t, math.Log(lin), logv, 1e-9)
}
