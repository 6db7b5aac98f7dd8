package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"

	"acore/adapters/classifier"
	"acore/adapters/quantile"
	"acore/app"
	"acore/internal/config"
	"acore/internal/container"
	"acore/ports"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "bprime",
		Short: "B′ calibration and coverage analysis for odds-based test statistics",
	}

	rootCmd.AddCommand(
		newRunCmd(),
		newAlgorithmsCmd(),
		newClassifiersCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runFlags mirrors the configuration keys that can be set on the command line
type runFlags struct {
	configPath string
	verbose    bool

	seed              int64
	b                 int
	alpha             float64
	debug             bool
	sampleSizeObs     int
	run               string
	classifier        string
	sizeReference     int
	testStatistic     string
	benchmark         int
	empiricalMarginal bool
	nuisance          bool
	nEvalGrid         int
	sampleSizeCheck   int
	monteCarlo        int

	outputRoot   string
	xlsx         bool
	ledgerDriver string
	ledgerDSN    string
	qrRegistry   string
}

func newRunCmd() *cobra.Command {
	var f runFlags
	defaults := config.Default()

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the B′ sweep for one odds classifier and write the coverage table",
		Long: `Train the odds classifier, compute the observed statistics on the check set and,
for every training budget B′ and quantile algorithm, estimate the coverage of the
calibrated confidence sets. One CSV row is written per (B′, algorithm).

Configuration priority: flags > ACORE_* environment variables (.env is loaded) > --config YAML > defaults.

Example: bprime run --run poisson --classifier xgb_d3_n100 --test_statistic acore --debug`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(cmd.Context(), cmd.Flags(), &f)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.configPath, "config", "", "YAML configuration file")
	fl.BoolVar(&f.verbose, "verbose", false, "Log every stage and fit at debug level")

	fl.Int64Var(&f.seed, "seed", defaults.Run.Seed, "Random state")
	fl.IntVar(&f.b, "b", defaults.Run.B, "Sample size to train the classifier for calculating odds")
	fl.Float64Var(&f.alpha, "alpha", defaults.Run.Alpha, "Statistical confidence level")
	fl.BoolVar(&f.debug, "debug", false, "Shrink all sample sizes for a quick run")
	fl.IntVar(&f.sampleSizeObs, "sample_size_obs", defaults.Run.SampleSizeObs, "Sample size of the observed data")
	fl.StringVar(&f.run, "run", defaults.Run.Model, "Problem to run: camelus|poisson|inferno")
	fl.StringVar(&f.classifier, "classifier", defaults.Run.Classifier, "Classifier used to learn the odds")
	fl.IntVar(&f.sizeReference, "size_reference", defaults.Run.SizeReference, "Number of samples used for the reference distribution")
	fl.StringVar(&f.testStatistic, "test_statistic", defaults.Run.TestStatistic, "Test statistic: acore|avgacore|logavgacore|averageodds")
	fl.IntVar(&f.benchmark, "benchmark", defaults.Run.Benchmark, "Benchmark to use for the inferno model")
	fl.BoolVar(&f.empiricalMarginal, "empirical_marginal", false, "Sample the reference directly from the empirical marginal")
	fl.BoolVar(&f.nuisance, "nuisance", false, "Use nuisance parameters if the model has them")
	fl.IntVar(&f.nEvalGrid, "n_eval_grid", defaults.Run.NEvalGrid, "Grid points per parameter axis")
	fl.IntVar(&f.sampleSizeCheck, "sample_size_check", defaults.Run.SampleSizeCheck, "Number of check-set parameter draws")
	fl.IntVar(&f.monteCarlo, "monte_carlo_samples", defaults.Run.MonteCarloSamples, "Prior draws per Bayes-factor evaluation")

	fl.StringVar(&f.outputRoot, "output-root", defaults.Output.Root, "Directory under which result files are written")
	fl.BoolVar(&f.xlsx, "xlsx", false, "Also write an XLSX workbook")
	fl.StringVar(&f.ledgerDriver, "ledger-driver", defaults.Ledger.Driver, "Ledger driver: sqlite|postgres")
	fl.StringVar(&f.ledgerDSN, "ledger-dsn", "", "Ledger data source; empty disables the ledger")
	fl.StringVar(&f.qrRegistry, "qr-registry", "", "YAML file replacing the quantile algorithm list")

	return cmd
}

// applyFlags overrides cfg with every flag the user set explicitly
func applyFlags(cfg *config.Config, fs *pflag.FlagSet, f *runFlags) {
	set := func(name string, apply func()) {
		if fs.Changed(name) {
			apply()
		}
	}
	set("seed", func() { cfg.Run.Seed = f.seed })
	set("b", func() { cfg.Run.B = f.b })
	set("alpha", func() { cfg.Run.Alpha = f.alpha })
	set("debug", func() { cfg.Run.Debug = f.debug })
	set("sample_size_obs", func() { cfg.Run.SampleSizeObs = f.sampleSizeObs })
	set("run", func() { cfg.Run.Model = f.run })
	set("classifier", func() { cfg.Run.Classifier = f.classifier })
	set("size_reference", func() { cfg.Run.SizeReference = f.sizeReference })
	set("test_statistic", func() { cfg.Run.TestStatistic = f.testStatistic })
	set("benchmark", func() { cfg.Run.Benchmark = f.benchmark })
	set("empirical_marginal", func() { cfg.Run.EmpiricalMarginal = f.empiricalMarginal })
	set("nuisance", func() { cfg.Run.Nuisance = f.nuisance })
	set("n_eval_grid", func() { cfg.Run.NEvalGrid = f.nEvalGrid })
	set("sample_size_check", func() { cfg.Run.SampleSizeCheck = f.sampleSizeCheck })
	set("monte_carlo_samples", func() { cfg.Run.MonteCarloSamples = f.monteCarlo })
	set("output-root", func() { cfg.Output.Root = f.outputRoot })
	set("xlsx", func() { cfg.Output.XLSX = f.xlsx })
	set("ledger-driver", func() { cfg.Ledger.Driver = f.ledgerDriver })
	set("ledger-dsn", func() { cfg.Ledger.DSN = f.ledgerDSN })
	set("qr-registry", func() { cfg.Calibration.RegistryFile = f.qrRegistry })
	if f.verbose {
		cfg.LogLevel = "debug"
	}
}

func runSweep(ctx context.Context, fs *pflag.FlagSet, f *runFlags) error {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return err
	}
	applyFlags(cfg, fs, f)

	c, err := container.New(cfg)
	if err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return err
	}
	req, err := app.RequestFromConfig(cfg)
	if err != nil {
		return err
	}
	if err := c.InitLedger(ctx); err != nil {
		return err
	}
	defer c.Shutdown(context.Background())

	result, err := c.CalibrationLoop().Run(ctx, req)
	if err != nil {
		return err
	}

	fmt.Printf("run %s: %d rows (%d skipped by policy), %d diagnostics in %dms\n",
		result.Manifest.RunID, len(result.Rows), result.Skipped, len(result.Diagnostics), result.RuntimeMs)
	for _, p := range result.Paths {
		fmt.Println(p)
	}
	return nil
}

func newAlgorithmsCmd() *cobra.Command {
	var debug bool
	var registryFile string

	cmd := &cobra.Command{
		Use:   "algorithms",
		Short: "List the quantile regression algorithms in iteration order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var reg ports.QuantileRegistry = quantile.Complete()
			if debug {
				reg = quantile.Small()
			}
			if registryFile != "" {
				loaded, err := quantile.LoadFile(registryFile)
				if err != nil {
					return err
				}
				reg = loaded
			}
			policy := config.Default().SkipPolicy()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tALGORITHM\tFAMILY\tSKIPPED ABOVE B′\tHYPERPARAMETERS")
			for _, a := range reg.Algorithms() {
				skip := "-"
				if policy.Skip(a, policy.MaxBPrime+1) {
					skip = fmt.Sprint(policy.MaxBPrime)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", a.Name, a.AlgoID, a.Family, skip, formatHyper(a.Hyper))
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&debug, "debug", false, "Show the short debug list")
	cmd.Flags().StringVar(&registryFile, "qr-registry", "", "YAML file replacing the quantile algorithm list")
	return cmd
}

func newClassifiersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classifiers",
		Short: "List the odds classifiers and their display names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := classifier.DefaultRegistry()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME")
			for _, id := range reg.IDs() {
				spec, err := reg.Lookup(id)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s\t%s\n", id, spec.DisplayName)
			}
			return w.Flush()
		},
	}
}

func formatHyper(h map[string]float64) string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%g", k, h[k])
	}
	return strings.Join(parts, " ")
}
