package config

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"acore/domain/core"
	"acore/domain/inference"
	"acore/internal/calibration"
	"acore/internal/errors"
	"acore/ports"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment variable name
const EnvPrefix = "ACORE_"

// Debug-mode overrides
const (
	DebugB             = 100
	DebugSampleSizeObs = 5
)

// DebugBPrimes replaces the model's B′ list in debug runs
var DebugBPrimes = []int{500, 1000}

// Config represents the complete application configuration
type Config struct {
	Run         RunConfig         `yaml:"run"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Output      OutputConfig      `yaml:"output"`
	Ledger      LedgerConfig      `yaml:"ledger"`
	Server      ServerConfig      `yaml:"server"`
	LogLevel    string            `yaml:"log_level" validate:"omitempty,oneof=error warn info debug trace"`
}

// RunConfig holds the options of one calibration run
type RunConfig struct {
	Seed              int64   `yaml:"seed"`
	B                 int     `yaml:"b" validate:"gt=0"`
	Alpha             float64 `yaml:"alpha" validate:"gt=0,lt=1"`
	Debug             bool    `yaml:"debug"`
	SampleSizeObs     int     `yaml:"sample_size_obs" validate:"gt=0"`
	Model             string  `yaml:"run" validate:"required"`
	Classifier        string  `yaml:"classifier" validate:"required"`
	SizeReference     int     `yaml:"size_reference" validate:"gt=1"`
	TestStatistic     string  `yaml:"test_statistic" validate:"required"`
	Benchmark         int     `yaml:"benchmark" validate:"gte=0"`
	EmpiricalMarginal bool    `yaml:"empirical_marginal"`
	Nuisance          bool    `yaml:"nuisance"`
	NEvalGrid         int     `yaml:"n_eval_grid" validate:"gte=2"`
	SampleSizeCheck   int     `yaml:"sample_size_check" validate:"gt=0"`
	MonteCarloSamples int     `yaml:"monte_carlo_samples" validate:"gt=0"`
	// BPrimes overrides the model's B′ list when non-empty
	BPrimes []int `yaml:"b_prime_vec" validate:"omitempty,dive,gt=0"`
}

// CalibrationConfig holds the quantile-algorithm settings
type CalibrationConfig struct {
	RegistryFile    string   `yaml:"qr_registry_file"`
	SkipAboveBPrime int      `yaml:"skip_above_b_prime" validate:"gte=0"`
	SkipFamilies    []string `yaml:"skip_families" validate:"dive,oneof=linear gradient_boosting random_forest nearest_neighbors"`
}

// OutputConfig holds the result file settings
type OutputConfig struct {
	Root string `yaml:"root" validate:"required"`
	XLSX bool   `yaml:"xlsx"`
}

// LedgerConfig holds the optional SQL ledger connection
type LedgerConfig struct {
	Driver string `yaml:"driver" validate:"omitempty,oneof=sqlite postgres"`
	DSN    string `yaml:"dsn"`
}

// ServerConfig holds the API server settings
type ServerConfig struct {
	Port string `yaml:"port" validate:"required"`
}

// Catalog answers the registry questions that validation needs
type Catalog interface {
	SupportsNuisance(id inference.ModelID) bool
	ClassifierIDs() []string
}

// Default returns the configuration used when nothing else is set
func Default() *Config {
	policy := calibration.DefaultSkipPolicy()
	families := make([]string, len(policy.Families))
	for i, f := range policy.Families {
		families[i] = string(f)
	}
	return &Config{
		Run: RunConfig{
			Seed:              7,
			B:                 50000,
			Alpha:             0.1,
			SampleSizeObs:     10,
			Model:             string(inference.ModelPoisson),
			Classifier:        "xgb_d3_n100",
			SizeReference:     1000,
			TestStatistic:     string(inference.StatisticACORE),
			Benchmark:         1,
			NEvalGrid:         51,
			SampleSizeCheck:   1000,
			MonteCarloSamples: 1000,
		},
		Calibration: CalibrationConfig{
			SkipAboveBPrime: policy.MaxBPrime,
			SkipFamilies:    families,
		},
		Output:   OutputConfig{Root: "sims"},
		Ledger:   LedgerConfig{Driver: "sqlite"},
		Server:   ServerConfig{Port: "8080"},
		LogLevel: "info",
	}
}

// Load builds the configuration from defaults, an optional YAML file and the
// environment, in increasing priority. A .env file in the working directory is
// loaded first if present. Command-line flags are applied by the caller.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !stderrors.Is(err, os.ErrNotExist) {
		return nil, errors.WithCause(errors.CodeConfigInvalid, "failed to load .env file", err)
	}

	config := Default()
	if path != "" {
		if err := loadFile(path, config); err != nil {
			return nil, err
		}
	}
	applyEnv(config)
	return config, nil
}

func loadFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.WithCause(errors.CodeConfigInvalid, "failed to read configuration file", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(config); err != nil {
		return errors.WithCause(errors.CodeConfigInvalid, fmt.Sprintf("failed to parse %s", path), err)
	}
	return nil
}

func applyEnv(c *Config) {
	r := &c.Run
	r.Seed = int64(getEnvIntOrDefault("SEED", int(r.Seed)))
	r.B = getEnvIntOrDefault("B", r.B)
	r.Alpha = getEnvFloatOrDefault("ALPHA", r.Alpha)
	r.Debug = getEnvBoolOrDefault("DEBUG", r.Debug)
	r.SampleSizeObs = getEnvIntOrDefault("SAMPLE_SIZE_OBS", r.SampleSizeObs)
	r.Model = getEnvOrDefault("RUN", r.Model)
	r.Classifier = getEnvOrDefault("CLASSIFIER", r.Classifier)
	r.SizeReference = getEnvIntOrDefault("SIZE_REFERENCE", r.SizeReference)
	r.TestStatistic = getEnvOrDefault("TEST_STATISTIC", r.TestStatistic)
	r.Benchmark = getEnvIntOrDefault("BENCHMARK", r.Benchmark)
	r.EmpiricalMarginal = getEnvBoolOrDefault("EMPIRICAL_MARGINAL", r.EmpiricalMarginal)
	r.Nuisance = getEnvBoolOrDefault("NUISANCE", r.Nuisance)
	r.NEvalGrid = getEnvIntOrDefault("N_EVAL_GRID", r.NEvalGrid)
	r.SampleSizeCheck = getEnvIntOrDefault("SAMPLE_SIZE_CHECK", r.SampleSizeCheck)
	r.MonteCarloSamples = getEnvIntOrDefault("MONTE_CARLO_SAMPLES", r.MonteCarloSamples)

	c.Calibration.RegistryFile = getEnvOrDefault("QR_REGISTRY_FILE", c.Calibration.RegistryFile)
	c.Calibration.SkipAboveBPrime = getEnvIntOrDefault("SKIP_ABOVE_B_PRIME", c.Calibration.SkipAboveBPrime)

	c.Output.Root = getEnvOrDefault("OUTPUT_ROOT", c.Output.Root)
	c.Output.XLSX = getEnvBoolOrDefault("XLSX", c.Output.XLSX)

	c.Ledger.Driver = getEnvOrDefault("LEDGER_DRIVER", c.Ledger.Driver)
	c.Ledger.DSN = getEnvOrDefault("LEDGER_DSN", c.Ledger.DSN)
	if c.Ledger.DSN == "" {
		if url := os.Getenv("DATABASE_URL"); url != "" {
			c.Ledger.Driver = "postgres"
			c.Ledger.DSN = url
		}
	}

	c.Server.Port = getEnvOrDefault("PORT", c.Server.Port)
	c.LogLevel = getEnvOrDefault("LOG_LEVEL", c.LogLevel)
}

// Resolved returns a copy with the debug overrides applied
func (c *Config) Resolved() *Config {
	out := *c
	out.Run.BPrimes = append([]int(nil), c.Run.BPrimes...)
	out.Calibration.SkipFamilies = append([]string(nil), c.Calibration.SkipFamilies...)
	if out.Run.Debug {
		out.Run.B = DebugB
		out.Run.SampleSizeObs = DebugSampleSizeObs
		out.Run.BPrimes = append([]int(nil), DebugBPrimes...)
	}
	return &out
}

// StatisticKind returns the parsed test statistic
func (c *Config) StatisticKind() (inference.StatisticKind, error) {
	return inference.ParseStatisticKind(c.Run.TestStatistic)
}

// ModelID returns the parsed run identifier
func (c *Config) ModelID() (inference.ModelID, error) {
	return inference.ParseModelID(c.Run.Model)
}

// SkipPolicy returns the configured calibration skip rule
func (c *Config) SkipPolicy() calibration.SkipPolicy {
	families := make([]ports.AlgorithmFamily, len(c.Calibration.SkipFamilies))
	for i, f := range c.Calibration.SkipFamilies {
		families[i] = ports.AlgorithmFamily(f)
	}
	return calibration.SkipPolicy{MaxBPrime: c.Calibration.SkipAboveBPrime, Families: families}
}

// SimulatorOptions returns the loader options
func (c *Config) SimulatorOptions() ports.SimulatorOptions {
	return ports.SimulatorOptions{
		Benchmark:          c.Run.Benchmark,
		EmpiricalMarginal:  c.Run.EmpiricalMarginal,
		NuisanceParameters: c.Run.Nuisance,
		NEvalGrid:          c.Run.NEvalGrid,
	}
}

// Validate checks the configuration before any simulation work. Unknown
// statistics and run identifiers are reported first, with the valid choices.
// cat may be nil, in which case registry membership is not checked.
func (c *Config) Validate(cat Catalog) error {
	if _, err := c.StatisticKind(); err != nil {
		return errors.WithCause(errors.CodeConfigInvalid, "invalid test statistic", err)
	}
	model, err := c.ModelID()
	if err != nil {
		return errors.WithCause(errors.CodeConfigInvalid, "invalid run", err)
	}

	if err := validator.New().Struct(c); err != nil {
		return errors.WithCause(errors.CodeConfigInvalid, "configuration validation failed", err)
	}

	if cat != nil {
		if c.Run.Nuisance && !cat.SupportsNuisance(model) {
			return errors.WithCause(errors.CodeConfigInvalid,
				fmt.Sprintf("run %q does not support nuisance parameters", model), core.ErrNuisanceRejected)
		}
		known := false
		for _, id := range cat.ClassifierIDs() {
			if id == c.Run.Classifier {
				known = true
				break
			}
		}
		if !known {
			return errors.WithCause(errors.CodeConfigInvalid,
				fmt.Sprintf("classifier %q is not one of %s", c.Run.Classifier, strings.Join(cat.ClassifierIDs(), ", ")),
				core.ErrUnknownClassifier)
		}
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
