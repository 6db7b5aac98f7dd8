package run

import (
	"time"

	"acore/domain/core"
	"acore/domain/inference"
)

// Manifest is the complete, fingerprinted description of one calibration run.
// It is the truth source for replay: two manifests with the same fingerprint
// describe runs that must produce identical tables.
type Manifest struct {
	RunID             core.RunID              `json:"run_id" db:"run_id"`
	Model             inference.ModelID       `json:"run" db:"model"`
	ClassifierID      string                  `json:"classifier_id" db:"classifier_id"`
	ClassifierName    string                  `json:"classifier" db:"classifier_name"`
	Statistic         inference.StatisticKind `json:"test_statistic" db:"statistic"`
	Seed              int64                   `json:"seed" db:"seed"`
	Alpha             float64                 `json:"alpha" db:"alpha"`
	B                 int                     `json:"b" db:"b"`
	SampleSizeObs     int                     `json:"sample_size_obs" db:"sample_size_obs"`
	SampleSizeCheck   int                     `json:"sample_size_check" db:"sample_size_check"`
	SizeReference     int                     `json:"size_reference" db:"size_reference"`
	NEvalGrid         int                     `json:"n_eval_grid" db:"n_eval_grid"`
	BPrimeGrid        []int                   `json:"b_prime_grid" db:"-"`
	Benchmark         int                     `json:"benchmark" db:"benchmark"`
	EmpiricalMarginal bool                    `json:"empirical_marginal" db:"empirical_marginal"`
	Debug             bool                    `json:"debug" db:"debug"`
	Fingerprint       core.Hash               `json:"fingerprint" db:"fingerprint"`
	CreatedAt         time.Time               `json:"created_at" db:"created_at"`
}

// Seal computes the fingerprint from every field that influences the results
func (m *Manifest) Seal() {
	m.Fingerprint = m.ComputeFingerprint()
}

// ComputeFingerprint hashes the determinism parameters; RunID and CreatedAt are excluded
func (m *Manifest) ComputeFingerprint() core.Hash {
	return core.HashFields(map[string]interface{}{
		"model":              m.Model,
		"classifier":         m.ClassifierID,
		"statistic":          m.Statistic,
		"seed":               m.Seed,
		"alpha":              m.Alpha,
		"b":                  m.B,
		"sample_size_obs":    m.SampleSizeObs,
		"sample_size_check":  m.SampleSizeCheck,
		"size_reference":     m.SizeReference,
		"n_eval_grid":        m.NEvalGrid,
		"b_prime_grid":       m.BPrimeGrid,
		"benchmark":          m.Benchmark,
		"empirical_marginal": m.EmpiricalMarginal,
		"debug":              m.Debug,
	})
}

// MaxBPrime returns the largest configured training budget
func (m *Manifest) MaxBPrime() int {
	max := 0
	for _, b := range m.BPrimeGrid {
		if b > max {
			max = b
		}
	}
	return max
}

// Validate checks if the manifest is complete
func (m *Manifest) Validate() error {
	if core.ID(m.RunID).IsEmpty() {
		return core.NewValidationError("run_manifest", "run_id cannot be empty")
	}
	if m.Model == "" {
		return core.NewValidationError("run_manifest", "model cannot be empty")
	}
	if m.Statistic == "" {
		return core.NewValidationError("run_manifest", "statistic cannot be empty")
	}
	if len(m.BPrimeGrid) == 0 {
		return core.NewValidationError("run_manifest", "b_prime grid cannot be empty")
	}
	if m.Fingerprint.IsEmpty() {
		return core.NewValidationError("run_manifest", "fingerprint cannot be empty")
	}
	return nil
}
