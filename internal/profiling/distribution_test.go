package profiling

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeDistribution_NormalSample(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	data := make([]float64, 5000)
	for i := range data {
		data[i] = 3 + 2*rng.NormFloat64()
	}

	p, err := NewDistributionAnalyzer().AnalyzeDistribution(data)
	require.NoError(t, err)
	assert.Equal(t, 5000, p.Count)
	assert.Zero(t, p.NonFinite)
	assert.InDelta(t, 3, p.Mean, 0.1)
	assert.InDelta(t, 2, p.StdDev, 0.1)
	assert.InDelta(t, 0, p.Skewness, 0.15)
	assert.InDelta(t, 3, p.Kurtosis, 0.3)
	assert.True(t, p.Q25 < p.Median && p.Median < p.Q75)
	assert.True(t, p.IsNormal)
}

func TestAnalyzeDistribution_CountsNonFinite(t *testing.T) {
	data := []float64{1, 2, math.Inf(1), 3, math.NaN(), 4, 100}
	p, err := NewDistributionAnalyzer().AnalyzeDistribution(data)
	require.NoError(t, err)
	assert.Equal(t, 7, p.Count)
	assert.Equal(t, 2, p.NonFinite)
	assert.Equal(t, 100.0, p.Max)
	assert.Equal(t, 1, p.Outliers)
	assert.Contains(t, p.String(), "nonfinite=2")
}

func TestAnalyzeDistribution_AllNonFinite(t *testing.T) {
	_, err := NewDistributionAnalyzer().AnalyzeDistribution([]float64{math.NaN()})
	assert.Error(t, err)
}
