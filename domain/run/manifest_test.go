package run

import (
	"testing"

	"acore/domain/core"
	"acore/domain/inference"
)

func baseManifest() *Manifest {
	m := &Manifest{
		RunID:           core.RunID("run-1"),
		Model:           inference.ModelPoisson,
		ClassifierID:    "xgb_d3_n100",
		ClassifierName:  "XGBoost-(d3,-n100)",
		Statistic:       inference.StatisticACORE,
		Seed:            7,
		Alpha:           0.1,
		B:               100,
		SampleSizeObs:   5,
		SampleSizeCheck: 1000,
		SizeReference:   1000,
		NEvalGrid:       51,
		BPrimeGrid:      []int{500, 1000},
		Debug:           true,
	}
	m.Seal()
	return m
}

func TestManifestFingerprint_Deterministic(t *testing.T) {
	m1 := baseManifest()
	m2 := baseManifest()
	m2.RunID = core.RunID("run-2")
	m2.Seal()

	if m1.Fingerprint != m2.Fingerprint {
		t.Errorf("Fingerprints differ for identical configuration: %s vs %s", m1.Fingerprint, m2.Fingerprint)
	}
}

func TestManifestFingerprint_Unique(t *testing.T) {
	base := baseManifest()

	testCases := []struct {
		name   string
		mutate func(m *Manifest)
	}{
		{"different seed", func(m *Manifest) { m.Seed = 8 }},
		{"different alpha", func(m *Manifest) { m.Alpha = 0.05 }},
		{"different statistic", func(m *Manifest) { m.Statistic = inference.StatisticAverageOdds }},
		{"different b prime grid", func(m *Manifest) { m.BPrimeGrid = []int{500} }},
		{"different model", func(m *Manifest) { m.Model = inference.ModelCamelus }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m := baseManifest()
			tc.mutate(m)
			m.Seal()
			if m.Fingerprint == base.Fingerprint {
				t.Errorf("Fingerprint unchanged after %s", tc.name)
			}
		})
	}
}

func TestManifest_MaxBPrime(t *testing.T) {
	m := baseManifest()
	m.BPrimeGrid = []int{1000, 50000, 500}
	if got := m.MaxBPrime(); got != 50000 {
		t.Errorf("MaxBPrime = %d, want 50000", got)
	}
}

func TestManifest_Validate(t *testing.T) {
	m := baseManifest()
	if err := m.Validate(); err != nil {
		t.Fatalf("Unexpected validation error: %v", err)
	}

	m.RunID = ""
	if err := m.Validate(); err == nil {
		t.Error("Expected error for empty run id")
	}

	m = baseManifest()
	m.Fingerprint = ""
	if err := m.Validate(); err == nil {
		t.Error("Expected error for unsealed manifest")
	}
}
