package config

import (
	"os"
	"path/filepath"
	"testing"

	"acore/domain/core"
	"acore/domain/inference"
	"acore/internal/errors"
	"acore/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCatalog struct {
	nuisance    map[inference.ModelID]bool
	classifiers []string
}

func (c stubCatalog) SupportsNuisance(id inference.ModelID) bool { return c.nuisance[id] }
func (c stubCatalog) ClassifierIDs() []string                    { return c.classifiers }

func newCatalog() stubCatalog {
	return stubCatalog{
		nuisance:    map[inference.ModelID]bool{inference.ModelPoisson: true},
		classifiers: []string{"log_regr", "xgb_d3_n100"},
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate(newCatalog()))

	assert.Equal(t, int64(7), cfg.Run.Seed)
	assert.Equal(t, 50000, cfg.Run.B)
	assert.Equal(t, 0.1, cfg.Run.Alpha)
	assert.Equal(t, "poisson", cfg.Run.Model)
	assert.Equal(t, "acore", cfg.Run.TestStatistic)
	assert.Equal(t, 51, cfg.Run.NEvalGrid)
	assert.Equal(t, 1000, cfg.Run.SampleSizeCheck)
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.yaml")
	body := `
run:
  run: inferno
  alpha: 0.05
  b: 2000
calibration:
  skip_above_b_prime: 5000
  skip_families: [random_forest]
output:
  root: out
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	t.Setenv("ACORE_B", "3000")
	t.Setenv("ACORE_TEST_STATISTIC", "logavgacore")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "inferno", cfg.Run.Model)
	assert.Equal(t, 0.05, cfg.Run.Alpha)
	assert.Equal(t, 3000, cfg.Run.B, "environment overrides the file")
	assert.Equal(t, "logavgacore", cfg.Run.TestStatistic)
	assert.Equal(t, "out", cfg.Output.Root)
	assert.Equal(t, 10, cfg.Run.SampleSizeObs, "unset keys keep their defaults")

	policy := cfg.SkipPolicy()
	assert.Equal(t, 5000, policy.MaxBPrime)
	assert.Equal(t, []ports.AlgorithmFamily{ports.FamilyRandomForest}, policy.Families)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("run:\n  sede: 3\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeConfigInvalid))
}

func TestDatabaseURLSelectsPostgres(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/acore")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Ledger.Driver)
	assert.Equal(t, "postgres://localhost/acore", cfg.Ledger.DSN)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr error
	}{
		{"unknown statistic", func(c *Config) { c.Run.TestStatistic = "lrt" }, core.ErrUnknownStatistic},
		{"unknown run", func(c *Config) { c.Run.Model = "gauss" }, core.ErrUnknownModel},
		{"alpha zero", func(c *Config) { c.Run.Alpha = 0 }, nil},
		{"alpha one", func(c *Config) { c.Run.Alpha = 1 }, nil},
		{"non-positive budget", func(c *Config) { c.Run.B = 0 }, nil},
		{"grid too small", func(c *Config) { c.Run.NEvalGrid = 1 }, nil},
		{"bad skip family", func(c *Config) { c.Calibration.SkipFamilies = []string{"svm"} }, nil},
		{"nuisance on camelus", func(c *Config) {
			c.Run.Model = "camelus"
			c.Run.Nuisance = true
		}, core.ErrNuisanceRejected},
		{"unknown classifier", func(c *Config) { c.Run.Classifier = "svm" }, core.ErrUnknownClassifier},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate(newCatalog())
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, errors.CodeConfigInvalid))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestValidateStatisticMessageListsChoices(t *testing.T) {
	cfg := Default()
	cfg.Run.TestStatistic = "lrt"
	err := cfg.Validate(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "acore, avgacore, logavgacore or averageodds")
}

func TestNuisanceAllowedOnPoisson(t *testing.T) {
	cfg := Default()
	cfg.Run.Nuisance = true
	assert.NoError(t, cfg.Validate(newCatalog()))
}

func TestResolvedDebugOverrides(t *testing.T) {
	cfg := Default()
	cfg.Run.Debug = true
	cfg.Run.BPrimes = []int{123}

	got := cfg.Resolved()
	assert.Equal(t, DebugB, got.Run.B)
	assert.Equal(t, DebugSampleSizeObs, got.Run.SampleSizeObs)
	assert.Equal(t, DebugBPrimes, got.Run.BPrimes)

	assert.Equal(t, 50000, cfg.Run.B, "original is untouched")
	assert.Equal(t, []int{123}, cfg.Run.BPrimes)

	cfg.Run.Debug = false
	assert.Equal(t, 50000, cfg.Resolved().Run.B)
}
