// Package profiling summarises the distribution of a statistic vector for logging.
package profiling

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat/distuv"
)

// Profile describes the shape of one vector of statistic values
type Profile struct {
	Count     int
	NonFinite int // NaN or ±Inf entries, excluded from every other field

	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
	Median float64
	Q25    float64
	Q75    float64

	Skewness   float64
	Kurtosis   float64
	IsNormal   bool
	NormalityP float64
	Outliers   int
}

// String renders the profile on one log line
func (p Profile) String() string {
	return fmt.Sprintf("n=%d nonfinite=%d mean=%.4g sd=%.4g min=%.4g q25=%.4g median=%.4g q75=%.4g max=%.4g skew=%.3f outliers=%d",
		p.Count, p.NonFinite, p.Mean, p.StdDev, p.Min, p.Q25, p.Median, p.Q75, p.Max, p.Skewness, p.Outliers)
}

// DistributionAnalyzer handles distribution shape analysis
type DistributionAnalyzer struct{}

// NewDistributionAnalyzer creates a new distribution analyzer
func NewDistributionAnalyzer() *DistributionAnalyzer {
	return &DistributionAnalyzer{}
}

// AnalyzeDistribution profiles the finite entries of data
func (da *DistributionAnalyzer) AnalyzeDistribution(data []float64) (Profile, error) {
	profile := Profile{Count: len(data)}

	finite := make([]float64, 0, len(data))
	for _, x := range data {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			profile.NonFinite++
			continue
		}
		finite = append(finite, x)
	}

	mean, err := stats.Mean(finite)
	if err != nil {
		return profile, err
	}

	stdDev, err := stats.StandardDeviation(finite)
	if err != nil {
		return profile, err
	}

	min, err := stats.Min(finite)
	if err != nil {
		return profile, err
	}

	max, err := stats.Max(finite)
	if err != nil {
		return profile, err
	}

	median, err := stats.Median(finite)
	if err != nil {
		return profile, err
	}

	// Quartiles for IQR-based outlier detection
	q25, err := stats.Percentile(finite, 25)
	if err != nil {
		return profile, err
	}

	q75, err := stats.Percentile(finite, 75)
	if err != nil {
		return profile, err
	}

	profile.Mean = mean
	profile.StdDev = stdDev
	profile.Min = min
	profile.Max = max
	profile.Median = median
	profile.Q25 = q25
	profile.Q75 = q75

	if stdDev > 0 {
		profile.Skewness = calculateSkewness(finite, mean, stdDev)
		profile.Kurtosis = calculateKurtosis(finite, mean, stdDev)
		profile.IsNormal, profile.NormalityP = testNormality(profile.Skewness, profile.Kurtosis, len(finite))
	}
	profile.Outliers = detectOutliers(finite, q25, q75)

	return profile, nil
}

// calculateSkewness computes sample skewness using the adjusted Fisher-Pearson coefficient
func calculateSkewness(data []float64, mean, stdDev float64) float64 {
	if len(data) < 3 {
		return 0
	}

	n := float64(len(data))
	sumCubedDeviations := 0.0

	for _, x := range data {
		deviation := (x - mean) / stdDev
		sumCubedDeviations += deviation * deviation * deviation
	}

	skewness := sumCubedDeviations / n
	return skewness * math.Sqrt(n*(n-1)) / (n - 2)
}

// calculateKurtosis computes sample kurtosis (not excess)
func calculateKurtosis(data []float64, mean, stdDev float64) float64 {
	if len(data) < 4 {
		return 3
	}

	n := float64(len(data))
	sumFourthDeviations := 0.0

	for _, x := range data {
		deviation := (x - mean) / stdDev
		sumFourthDeviations += deviation * deviation * deviation * deviation
	}

	g2 := sumFourthDeviations/n - 3
	excessKurtosis := ((n+1)*g2 + 6) * (n - 1) / ((n - 2) * (n - 3))

	return excessKurtosis + 3
}

// testNormality is the Jarque–Bera test: JB = n/6·(S² + (K−3)²/4) ~ χ²(2)
func testNormality(skewness, kurtosis float64, n int) (bool, float64) {
	if n < 8 {
		return false, 1.0
	}
	excess := kurtosis - 3
	jb := float64(n) / 6 * (skewness*skewness + excess*excess/4)
	pValue := 1 - distuv.ChiSquared{K: 2}.CDF(jb)
	return pValue > 0.05, pValue
}

// detectOutliers identifies outliers using IQR method
func detectOutliers(data []float64, q25, q75 float64) int {
	iqr := q75 - q25
	lowerBound := q25 - 1.5*iqr
	upperBound := q75 + 1.5*iqr

	outlierCount := 0
	for _, x := range data {
		if x < lowerBound || x > upperBound {
			outlierCount++
		}
	}

	return outlierCount
}
