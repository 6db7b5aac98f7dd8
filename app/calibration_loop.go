package app

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"time"

	"acore/domain/core"
	"acore/domain/inference"
	"acore/domain/run"
	"acore/internal"
	"acore/internal/calibration"
	"acore/internal/config"
	"acore/internal/coverage"
	apperrors "acore/internal/errors"
	"acore/internal/odds"
	"acore/internal/profiling"
	"acore/internal/statistic"
	"acore/ports"

	"gonum.org/v1/gonum/mat"
)

// Stage names one step of the calibration state machine
type Stage string

const (
	StageInit      Stage = "INIT"
	StageOddsTrain Stage = "ODDS_TRAIN"
	StageCheckEval Stage = "CHECK_EVAL"
	StageSimulate  Stage = "SIMULATE"
	StageStatEval  Stage = "STAT_EVAL"
	StageCalibrate Stage = "CALIBRATE"
	StageCoverage  Stage = "COVERAGE"
	StageSummarize Stage = "SUMMARIZE"
	StageAppendRow Stage = "APPEND_ROW"
	StagePersist   Stage = "PERSIST"
)

// RunRequest holds every input of one calibration run
type RunRequest struct {
	Model             inference.ModelID
	Classifier        string
	Statistic         inference.StatisticKind
	Seed              int64
	Alpha             float64
	B                 int
	SampleSizeObs     int
	SampleSizeCheck   int
	SizeReference     int
	MonteCarloSamples int
	Simulator         ports.SimulatorOptions
	// BPrimes overrides the simulator's B′ list when non-empty
	BPrimes []int
	Debug   bool
}

// RequestFromConfig resolves the debug overrides and converts a validated configuration
func RequestFromConfig(cfg *config.Config) (RunRequest, error) {
	resolved := cfg.Resolved()
	kind, err := resolved.StatisticKind()
	if err != nil {
		return RunRequest{}, apperrors.WithCause(apperrors.CodeConfigInvalid, "invalid test statistic", err)
	}
	model, err := resolved.ModelID()
	if err != nil {
		return RunRequest{}, apperrors.WithCause(apperrors.CodeConfigInvalid, "invalid run", err)
	}
	r := resolved.Run
	return RunRequest{
		Model:             model,
		Classifier:        r.Classifier,
		Statistic:         kind,
		Seed:              r.Seed,
		Alpha:             r.Alpha,
		B:                 r.B,
		SampleSizeObs:     r.SampleSizeObs,
		SampleSizeCheck:   r.SampleSizeCheck,
		SizeReference:     r.SizeReference,
		MonteCarloSamples: r.MonteCarloSamples,
		Simulator:         resolved.SimulatorOptions(),
		BPrimes:           r.BPrimes,
		Debug:             r.Debug,
	}, nil
}

// RunResult contains the complete output of a calibration run
type RunResult struct {
	Manifest    *run.Manifest          `json:"manifest"`
	Rows        []inference.ResultRow  `json:"rows"`
	Diagnostics []inference.Diagnostic `json:"diagnostics"`
	TauObs      []float64              `json:"-"`
	Paths       []string               `json:"paths"`
	Skipped     int                    `json:"skipped"`
	RuntimeMs   int64                  `json:"runtime_ms"`
}

// LoopDeps are the collaborators injected into the calibration loop
type LoopDeps struct {
	Simulators  ports.SimulatorRegistry
	Classifiers ports.ClassifierRegistry
	Quantiles   ports.QuantileRegistry
	// DebugQuantiles replaces Quantiles in debug runs when set
	DebugQuantiles ports.QuantileRegistry
	RNG            ports.RNGPort
	Writers        []ports.ResultWriter
	// Ledger is optional
	Ledger     ports.LedgerWriterPort
	SkipPolicy calibration.SkipPolicy
	Logger     *internal.Logger
}

// CalibrationLoop drives the B′ × quantile-algorithm sweep for one odds classifier
type CalibrationLoop struct {
	deps     LoopDeps
	trainer  *odds.Trainer
	profiler *profiling.DistributionAnalyzer
	logger   *internal.Logger
}

// NewCalibrationLoop creates the calibration loop service
func NewCalibrationLoop(deps LoopDeps) *CalibrationLoop {
	logger := deps.Logger
	if logger == nil {
		logger = internal.DefaultLogger
	}
	deps.Logger = logger
	return &CalibrationLoop{
		deps:     deps,
		trainer:  odds.NewTrainer(logger),
		profiler: profiling.NewDistributionAnalyzer(),
		logger:   logger.WithComponent("loop"),
	}
}

// Run executes the full state machine. Rows are persisted once, after every
// (B′, algorithm) combination has completed; any fit failure aborts the run
// without writing anything.
func (l *CalibrationLoop) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	startTime := time.Now()

	// INIT
	l.stage(StageInit, "run=%s classifier=%s statistic=%s seed=%d", req.Model, req.Classifier, req.Statistic, req.Seed)
	kind, err := inference.ParseStatisticKind(string(req.Statistic))
	if err != nil {
		return nil, apperrors.WithCause(apperrors.CodeConfigInvalid, "invalid test statistic", err)
	}
	if req.Alpha <= 0 || req.Alpha >= 1 {
		return nil, apperrors.Newf(apperrors.CodeConfigInvalid, "alpha must lie in (0, 1), got %g", req.Alpha)
	}
	spec, err := l.deps.Classifiers.Lookup(req.Classifier)
	if err != nil {
		return nil, err
	}
	sim, err := l.deps.Simulators.Load(req.Model, req.Simulator)
	if err != nil {
		return nil, err
	}
	evaluator, err := statistic.New(kind, statistic.Aux{
		Grid:              sim.Grid(),
		GenParams:         sim.SampleParams,
		MonteCarloSamples: req.MonteCarloSamples,
	})
	if err != nil {
		return nil, err
	}

	bPrimes := req.BPrimes
	if len(bPrimes) == 0 {
		bPrimes = sim.BPrimeGrid()
	}
	manifest := &run.Manifest{
		RunID:             core.NewRunID(),
		Model:             sim.ID(),
		ClassifierID:      req.Classifier,
		ClassifierName:    spec.DisplayName,
		Statistic:         kind,
		Seed:              req.Seed,
		Alpha:             req.Alpha,
		B:                 req.B,
		SampleSizeObs:     req.SampleSizeObs,
		SampleSizeCheck:   req.SampleSizeCheck,
		SizeReference:     req.SizeReference,
		NEvalGrid:         req.Simulator.NEvalGrid,
		BPrimeGrid:        append([]int(nil), bPrimes...),
		Benchmark:         req.Simulator.Benchmark,
		EmpiricalMarginal: req.Simulator.EmpiricalMarginal,
		Debug:             req.Debug,
		CreatedAt:         time.Now().UTC(),
	}
	manifest.Seal()
	l.logger.Info("run %s fingerprint %s", manifest.RunID, manifest.Fingerprint.Short())

	rng, err := l.deps.RNG.SeededStream(ctx, "init", req.Seed)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to create run RNG")
	}
	if err := sim.SetReference(req.SizeReference, rng); err != nil {
		return nil, apperrors.SimulationError("failed to set reference distribution", err)
	}
	thetaVec, checkSamples, err := sim.SampleCheck(req.SampleSizeCheck, req.SampleSizeObs, rng)
	if err != nil {
		return nil, apperrors.SimulationError("failed to draw check set", err)
	}

	// ODDS_TRAIN
	l.stage(StageOddsTrain, "%s on B=%d", spec.DisplayName, req.B)
	clf, err := l.trainer.Train(ctx, req.B, spec, sim.GenerateSample, rng)
	if err != nil {
		return nil, err
	}
	if sim.NuisanceFlag() {
		return nil, apperrors.NotImplemented(
			fmt.Sprintf("coverage with nuisance parameters for run %q: nuisance values would have to be profiled for every check sample", sim.ID()),
			core.ErrNuisanceNotImplemented)
	}

	// CHECK_EVAL
	l.stage(StageCheckEval, "%d check points", req.SampleSizeCheck)
	tauObs, err := statistic.EvaluateBatch(evaluator, clf, thetaVec, checkSamples, rng)
	if err != nil {
		return nil, err
	}
	l.profile("tau_obs", tauObs)

	algorithms := l.algorithms(req.Debug)
	summarizer := coverage.NewSummarizer(coverage.DefaultOptions(req.Alpha), l.deps.Logger)
	calibrator := calibration.NewCalibrator(l.registry(req.Debug), l.deps.Logger)
	predGrid := sim.PredGrid()

	result := &RunResult{Manifest: manifest, TauObs: tauObs}
	for _, bPrime := range bPrimes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// SIMULATE
		l.stage(StageSimulate, "B′=%d", bPrime)
		bRNG, err := l.deps.RNG.SeededStream(ctx, fmt.Sprintf("b_prime_%d", bPrime), req.Seed)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to reseed RNG")
		}
		thetaMat, sampleMat, err := sim.SampleCalibration(bPrime, req.SampleSizeObs, bRNG)
		if err != nil {
			return nil, apperrors.SimulationError(fmt.Sprintf("failed to simulate B′=%d", bPrime), err)
		}

		// STAT_EVAL
		l.stage(StageStatEval, "B′=%d", bPrime)
		statsMat, err := statistic.EvaluateBatch(evaluator, clf, thetaMat, sampleMat, bRNG)
		if err != nil {
			return nil, err
		}
		l.profile(fmt.Sprintf("stats_mat[B′=%d]", bPrime), statsMat)

		for _, algo := range algorithms {
			if l.deps.SkipPolicy.Skip(algo, bPrime) {
				l.logger.Info("skipping %s (%s) at B′=%d", algo.Name, algo.Family, bPrime)
				result.Skipped++
				continue
			}
			row, diags, err := l.evaluateAlgorithm(ctx, calibrator, summarizer, algo, bPrime, thetaMat, statsMat, thetaVec, tauObs, predGrid, bRNG, req, manifest)
			if err != nil {
				return nil, err
			}
			// APPEND_ROW
			l.logger.Debug("%s B′=%d %s: coverage %.3f (lr %.3f)", StageAppendRow, bPrime, algo.Name, row.AverageCoverage, row.AverageCoverageLR)
			result.Rows = append(result.Rows, row)
			result.Diagnostics = append(result.Diagnostics, diags...)
		}
	}

	// PERSIST
	l.stage(StagePersist, "%d rows, %d diagnostics", len(result.Rows), len(result.Diagnostics))
	table := ports.ResultTable{Manifest: manifest, OutputDir: sim.OutputDir(), Rows: result.Rows}
	for _, w := range l.deps.Writers {
		path, err := w.Write(ctx, table)
		if err != nil {
			return nil, apperrors.PersistenceError("failed to write result table", err)
		}
		l.logger.Info("results written to %s", path)
		result.Paths = append(result.Paths, path)
	}
	if l.deps.Ledger != nil {
		if err := l.deps.Ledger.RecordRun(ctx, manifest); err != nil {
			return nil, apperrors.PersistenceError("failed to record run", err)
		}
		if err := l.deps.Ledger.AppendRows(ctx, manifest.RunID, result.Rows, result.Diagnostics); err != nil {
			return nil, apperrors.PersistenceError("failed to append rows", err)
		}
	}

	result.RuntimeMs = time.Since(startTime).Milliseconds()
	l.logger.Info("run %s complete in %s", manifest.RunID, time.Since(startTime).Round(time.Millisecond))
	return result, nil
}

// evaluateAlgorithm runs CALIBRATE, COVERAGE and SUMMARIZE for one algorithm
func (l *CalibrationLoop) evaluateAlgorithm(
	ctx context.Context,
	calibrator *calibration.Calibrator,
	summarizer *coverage.Summarizer,
	algo ports.QuantileAlgorithm,
	bPrime int,
	thetaMat *mat.Dense,
	statsMat []float64,
	thetaVec *mat.Dense,
	tauObs []float64,
	predGrid *mat.Dense,
	rng *rand.Rand,
	req RunRequest,
	manifest *run.Manifest,
) (inference.ResultRow, []inference.Diagnostic, error) {
	l.logger.Debug("%s B′=%d %s (%s)", StageCalibrate, bPrime, algo.Name, algo.AlgoID)
	critical, err := calibrator.Calibrate(ctx, algo, thetaMat, statsMat, req.Alpha, thetaVec, rng)
	if err != nil {
		return inference.ResultRow{}, nil, err
	}

	l.logger.Trace("%s B′=%d %s", StageCoverage, bPrime, algo.Name)
	indicators, err := coverage.Indicators(tauObs, critical)
	if err != nil {
		return inference.ResultRow{}, nil, err
	}

	l.logger.Trace("%s B′=%d %s", StageSummarize, bPrime, algo.Name)
	summary, err := summarizer.Summarize(thetaVec, indicators, predGrid)
	if err != nil {
		return inference.ResultRow{}, nil, apperrors.Wrapf(err, "coverage summary for %s at B′=%d", algo.Name, bPrime)
	}
	for i := range summary.Diagnostics {
		summary.Diagnostics[i].BPrime = bPrime
		summary.Diagnostics[i].Algorithm = algo.Name
		l.logger.Warn("B′=%d %s: %s: %s", bPrime, algo.Name, summary.Diagnostics[i].Code, summary.Diagnostics[i].Message)
	}

	row := inference.ResultRow{
		BPrime:          bPrime,
		Classifier:      manifest.ClassifierName,
		ClassCDE:        algo.Name,
		Run:             string(manifest.Model),
		NEvalGrid:       manifest.NEvalGrid,
		SampleCheck:     req.SampleSizeCheck,
		SampleReference: req.SizeReference,

		PercentCorrectCoverage:     summary.PercentCorrect,
		AverageCoverage:            summary.Average,
		PercentCorrectCoverageLR:   summary.PercentCorrectLR,
		AverageCoverageLR:          summary.AverageLR,
		PercentCorrectCoverage1Std: summary.PercentCorrect1Std,
		AverageCoverage1Std:        summary.Average1Std,
		PercentCorrectCoverage2Std: summary.PercentCorrect2Std,
		AverageCoverage2Std:        summary.Average2Std,

		TestStatistics: string(manifest.Statistic),
	}
	return row, summary.Diagnostics, nil
}

func (l *CalibrationLoop) registry(debug bool) ports.QuantileRegistry {
	if debug && l.deps.DebugQuantiles != nil {
		return l.deps.DebugQuantiles
	}
	return l.deps.Quantiles
}

// algorithms returns the registry's algorithms ordered by name
func (l *CalibrationLoop) algorithms(debug bool) []ports.QuantileAlgorithm {
	algos := append([]ports.QuantileAlgorithm(nil), l.registry(debug).Algorithms()...)
	sort.SliceStable(algos, func(i, j int) bool { return algos[i].Name < algos[j].Name })
	return algos
}

func (l *CalibrationLoop) stage(s Stage, format string, args ...interface{}) {
	l.logger.Info("[%s] %s", s, fmt.Sprintf(format, args...))
}

func (l *CalibrationLoop) profile(name string, values []float64) {
	p, err := l.profiler.AnalyzeDistribution(values)
	if err != nil {
		l.logger.Warn("%s: %v", name, err)
		return
	}
	if p.NonFinite > 0 {
		l.logger.Warn("%s: %d of %d values are not finite", name, p.NonFinite, p.Count)
	}
	l.logger.Debug("%s: %s", name, p)
}

// Catalog answers configuration questions from the injected registries
type Catalog struct {
	Simulators  ports.SimulatorRegistry
	Classifiers ports.ClassifierRegistry
}

// SupportsNuisance reports whether the model accepts nuisance parameters
func (c Catalog) SupportsNuisance(id inference.ModelID) bool {
	return c.Simulators.SupportsNuisance(id)
}

// ClassifierIDs lists the known odds classifiers
func (c Catalog) ClassifierIDs() []string {
	return c.Classifiers.IDs()
}
