package app

import (
	"context"
	"testing"

	"acore/adapters/classifier"
	"acore/adapters/quantile"
	"acore/adapters/simulator"
	"acore/domain/core"
	"acore/domain/inference"
	"acore/internal"
	"acore/internal/calibration"
	"acore/internal/config"
	apperrors "acore/internal/errors"
	"acore/internal/testkit"
	"acore/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syntheticRegistry serves a fresh GaussianSimulator for every load
type syntheticRegistry struct {
	bPrimes  []int
	nuisance bool
	loads    int
}

func (r *syntheticRegistry) Load(id inference.ModelID, opts ports.SimulatorOptions) (ports.Simulator, error) {
	r.loads++
	sim := testkit.NewGaussianSimulator()
	if r.bPrimes != nil {
		sim.BPrimes = r.bPrimes
	}
	sim.Nuisance = opts.NuisanceParameters && r.nuisance
	return sim, nil
}

func (r *syntheticRegistry) SupportsNuisance(id inference.ModelID) bool { return r.nuisance }

func classifiers() *classifier.Registry {
	reg := classifier.DefaultRegistry()
	spec := testkit.AnalyticClassifierSpec()
	reg.Register(spec.ID, spec.DisplayName, spec.New)
	return reg
}

func newSyntheticLoop(t *testing.T, sims ports.SimulatorRegistry, algos []ports.QuantileAlgorithm) (*CalibrationLoop, *testkit.TestKit) {
	t.Helper()
	kit, err := testkit.NewTestKit()
	require.NoError(t, err)
	qr, err := quantile.NewRegistry(algos)
	require.NoError(t, err)
	loop := NewCalibrationLoop(LoopDeps{
		Simulators:  sims,
		Classifiers: classifiers(),
		Quantiles:   qr,
		RNG:         kit.RNGAdapter(),
		Writers:     []ports.ResultWriter{kit.Writer()},
		Ledger:      kit.LedgerAdapter(),
		SkipPolicy:  calibration.DefaultSkipPolicy(),
		Logger:      internal.NewLogger(internal.LogLevelError),
	})
	return loop, kit
}

func syntheticRequest() RunRequest {
	return RunRequest{
		Model:           "synthetic",
		Classifier:      "analytic",
		Statistic:       inference.StatisticACORE,
		Seed:            7,
		Alpha:           0.1,
		B:               50,
		SampleSizeObs:   5,
		SampleSizeCheck: 150,
		SizeReference:   100,
		Simulator:       ports.SimulatorOptions{NEvalGrid: 5},
	}
}

func linearAndKNN() []ports.QuantileAlgorithm {
	return []ports.QuantileAlgorithm{
		{Name: "linear_qr", AlgoID: quantile.AlgoLinear, Hyper: map[string]float64{"max_iter": 100}},
		{Name: "knn_k30", AlgoID: quantile.AlgoKNN, Hyper: map[string]float64{"n_neighbors": 30}},
	}
}

func TestPoissonDebugEndToEnd(t *testing.T) {
	cfg := config.Default()
	cfg.Run.Debug = true
	cfg.Run.Classifier = "log_regr"
	cfg.Run.NEvalGrid = 5
	cfg.Run.SampleSizeCheck = 200
	cfg.Run.SizeReference = 200

	sims := simulator.DefaultRegistry()
	clfs := classifier.DefaultRegistry()
	require.NoError(t, cfg.Validate(Catalog{Simulators: sims, Classifiers: clfs}))

	req, err := RequestFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, config.DebugB, req.B)
	assert.Equal(t, config.DebugSampleSizeObs, req.SampleSizeObs)

	kit, err := testkit.NewTestKit()
	require.NoError(t, err)
	loop := NewCalibrationLoop(LoopDeps{
		Simulators:     sims,
		Classifiers:    clfs,
		Quantiles:      quantile.Complete(),
		DebugQuantiles: quantile.Small(),
		RNG:            kit.RNGAdapter(),
		Writers:        []ports.ResultWriter{kit.Writer()},
		SkipPolicy:     cfg.SkipPolicy(),
		Logger:         internal.NewLogger(internal.LogLevelError),
	})

	result, err := loop.Run(context.Background(), req)
	require.NoError(t, err)

	small := quantile.Small().Algorithms()
	require.Len(t, result.Rows, 2*len(small))
	for i, row := range result.Rows {
		assert.Contains(t, []int{500, 1000}, row.BPrime)
		assert.Equal(t, small[i%len(small)].Name, row.ClassCDE, "algorithms are iterated by name")
		assert.Equal(t, "Log.-Regr.", row.Classifier)
		assert.Equal(t, "poisson", row.Run)
		assert.Equal(t, "acore", row.TestStatistics)
		assert.Equal(t, 5, row.NEvalGrid)
		assert.Equal(t, 200, row.SampleCheck)
		assert.Equal(t, 200, row.SampleReference)
		for _, v := range []float64{row.PercentCorrectCoverage, row.AverageCoverage, row.PercentCorrectCoverageLR, row.AverageCoverageLR} {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 1.0)
		}
		assert.GreaterOrEqual(t, row.PercentCorrectCoverage2Std, row.PercentCorrectCoverage1Std)
		assert.GreaterOrEqual(t, row.PercentCorrectCoverage1Std, row.PercentCorrectCoverageLR)
	}
	assert.Equal(t, 500, result.Rows[0].BPrime)
	assert.Equal(t, 1000, result.Rows[len(result.Rows)-1].BPrime)

	require.Len(t, kit.Writer().Tables, 1, "results are persisted exactly once")
	assert.Equal(t, "poisson/", kit.Writer().Tables[0].OutputDir)
	assert.Equal(t, []int{500, 1000}, result.Manifest.BPrimeGrid)
	assert.NoError(t, result.Manifest.Validate())
}

func TestRunIsReproducible(t *testing.T) {
	sims := &syntheticRegistry{}
	loop, _ := newSyntheticLoop(t, sims, linearAndKNN())

	first, err := loop.Run(context.Background(), syntheticRequest())
	require.NoError(t, err)
	second, err := loop.Run(context.Background(), syntheticRequest())
	require.NoError(t, err)

	assert.Equal(t, first.TauObs, second.TauObs, "tau_obs must be bit-identical")
	require.Len(t, second.Rows, len(first.Rows))
	for i := range first.Rows {
		assert.Equal(t, first.Rows[i].BPrime, second.Rows[i].BPrime)
		assert.Equal(t, first.Rows[i].ClassCDE, second.Rows[i].ClassCDE)
		assert.InDelta(t, first.Rows[i].AverageCoverage, second.Rows[i].AverageCoverage, 1e-12)
		assert.InDelta(t, first.Rows[i].AverageCoverageLR, second.Rows[i].AverageCoverageLR, 1e-12)
		assert.InDelta(t, first.Rows[i].AverageCoverage2Std, second.Rows[i].AverageCoverage2Std, 1e-12)
	}
	assert.Equal(t, first.Manifest.Fingerprint, second.Manifest.Fingerprint)
	assert.NotEqual(t, first.Manifest.RunID, second.Manifest.RunID)
}

func TestRunRecordsLedger(t *testing.T) {
	loop, kit := newSyntheticLoop(t, &syntheticRegistry{}, linearAndKNN())

	result, err := loop.Run(context.Background(), syntheticRequest())
	require.NoError(t, err)
	require.Len(t, result.Rows, 4)

	ctx := context.Background()
	stored, err := kit.LedgerAdapter().GetRows(ctx, result.Manifest.RunID)
	require.NoError(t, err)
	assert.Equal(t, result.Rows, stored)

	manifest, err := kit.LedgerAdapter().GetRun(ctx, result.Manifest.RunID)
	require.NoError(t, err)
	assert.Equal(t, result.Manifest.Fingerprint, manifest.Fingerprint)
}

func TestNuisanceFailsAfterOddsTraining(t *testing.T) {
	sims := &syntheticRegistry{nuisance: true}
	kit, err := testkit.NewTestKit()
	require.NoError(t, err)

	analytic := &testkit.AnalyticClassifier{}
	clfs := classifier.DefaultRegistry()
	clfs.Register("analytic", "Analytic", func() ports.ProbClassifier { return analytic })

	qr, err := quantile.NewRegistry(linearAndKNN())
	require.NoError(t, err)
	loop := NewCalibrationLoop(LoopDeps{
		Simulators:  sims,
		Classifiers: clfs,
		Quantiles:   qr,
		RNG:         kit.RNGAdapter(),
		Writers:     []ports.ResultWriter{kit.Writer()},
		Logger:      internal.NewLogger(internal.LogLevelError),
	})

	req := syntheticRequest()
	req.Simulator.NuisanceParameters = true
	_, err = loop.Run(context.Background(), req)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotImplemented))
	assert.ErrorIs(t, err, core.ErrNuisanceNotImplemented)

	assert.Equal(t, 1, analytic.FitCalls, "odds classifier is trained before the failure")
	assert.Empty(t, kit.Writer().Tables, "nothing is persisted")
}

func TestSkipRuleAboveTenThousand(t *testing.T) {
	sims := &syntheticRegistry{bPrimes: []int{300, 10001}}
	algos := append(linearAndKNN(),
		ports.QuantileAlgorithm{Name: "qrf_n10_d4", AlgoID: quantile.AlgoForest, Hyper: map[string]float64{"n_estimators": 10, "max_depth": 4, "min_samples_leaf": 5}},
		ports.QuantileAlgorithm{Name: "xgb_d2_n10", AlgoID: quantile.AlgoBoosted, Hyper: map[string]float64{"max_depth": 2, "n_estimators": 10, "learning_rate": 0.3}},
	)
	loop, _ := newSyntheticLoop(t, sims, algos)

	req := syntheticRequest()
	req.SampleSizeCheck = 100
	result, err := loop.Run(context.Background(), req)
	require.NoError(t, err)

	var small, large []string
	for _, row := range result.Rows {
		if row.BPrime == 300 {
			small = append(small, row.ClassCDE)
		} else {
			large = append(large, row.ClassCDE)
		}
	}
	assert.Equal(t, []string{"knn_k30", "linear_qr", "qrf_n10_d4", "xgb_d2_n10"}, small)
	assert.Equal(t, []string{"knn_k30", "linear_qr"}, large)
	assert.Equal(t, 2, result.Skipped)
}

func TestConfigurationErrorsFailBeforeSimulation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *RunRequest)
		code    string
		wantErr error
	}{
		{"unknown statistic", func(r *RunRequest) { r.Statistic = "lrt" }, apperrors.CodeConfigInvalid, core.ErrUnknownStatistic},
		{"unknown classifier", func(r *RunRequest) { r.Classifier = "svm" }, apperrors.CodeConfigInvalid, core.ErrUnknownClassifier},
		{"alpha out of range", func(r *RunRequest) { r.Alpha = 1.5 }, apperrors.CodeConfigInvalid, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sims := &syntheticRegistry{}
			loop, kit := newSyntheticLoop(t, sims, linearAndKNN())
			req := syntheticRequest()
			tt.mutate(&req)

			_, err := loop.Run(context.Background(), req)
			require.Error(t, err)
			assert.True(t, apperrors.HasCode(err, tt.code))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.Zero(t, sims.loads, "no simulator is loaded")
			assert.Empty(t, kit.Writer().Tables)
		})
	}
}

func TestUnknownModelFailsFast(t *testing.T) {
	kit, err := testkit.NewTestKit()
	require.NoError(t, err)
	loop := NewCalibrationLoop(LoopDeps{
		Simulators:  simulator.DefaultRegistry(),
		Classifiers: classifiers(),
		Quantiles:   quantile.Small(),
		RNG:         kit.RNGAdapter(),
		Logger:      internal.NewLogger(internal.LogLevelError),
	})

	req := syntheticRequest()
	req.Model = "gauss"
	_, err = loop.Run(context.Background(), req)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConfigInvalid))
	assert.ErrorIs(t, err, core.ErrUnknownModel)
}

func TestRequestFromConfigRejectsUnknownStatistic(t *testing.T) {
	cfg := config.Default()
	cfg.Run.TestStatistic = "odds"
	_, err := RequestFromConfig(cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrUnknownStatistic)
}
