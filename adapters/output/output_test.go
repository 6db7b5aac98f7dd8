package output

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"acore/domain/core"
	"acore/domain/inference"
	"acore/domain/run"
	"acore/internal"
	"acore/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func testTable() ports.ResultTable {
	m := &run.Manifest{
		RunID:           core.NewRunID(),
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
		CreatedAt:       time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC),
	}
	m.Seal()
	rows := []inference.ResultRow{
		{BPrime: 500, Classifier: m.ClassifierName, ClassCDE: "knn_k30", Run: "poisson", NEvalGrid: 51, SampleCheck: 1000,
			SampleReference: 1000, PercentCorrectCoverage: 0.5, AverageCoverage: 0.875, TestStatistics: "acore"},
		{BPrime: 1000, Classifier: m.ClassifierName, ClassCDE: "linear_qr", Run: "poisson", NEvalGrid: 51, SampleCheck: 1000,
			SampleReference: 1000, PercentCorrectCoverageLR: 0.25, AverageCoverage2Std: 1, TestStatistics: "acore"},
	}
	return ports.ResultTable{Manifest: m, OutputDir: "poisson/", Rows: rows}
}

func TestBaseName(t *testing.T) {
	table := testTable()
	assert.Equal(t,
		"b_prime_analysis_xgb_d3_n100_poisson_alpha0-1_ngrid51_sizecheck1000_bprimemax1000_logregint_acore_2024-03-09",
		BaseName(table.Manifest))

	table.Manifest.Alpha = 0.05
	assert.Contains(t, BaseName(table.Manifest), "_alpha0-05_")
}

func TestBaseNameUsesLocalDate(t *testing.T) {
	table := testTable()
	m := table.Manifest

	// Manifests store UTC; the stamp follows the local calendar day on either side of midnight
	m.CreatedAt = time.Date(2024, 3, 9, 23, 59, 0, 0, time.Local).UTC()
	assert.True(t, strings.HasSuffix(BaseName(m), "_2024-03-09"), BaseName(m))

	m.CreatedAt = time.Date(2024, 3, 10, 0, 1, 0, 0, time.Local).UTC()
	assert.True(t, strings.HasSuffix(BaseName(m), "_2024-03-10"), BaseName(m))
}

func TestCSVWriter(t *testing.T) {
	root := t.TempDir()
	w := NewCSVWriter(root, internal.NewLogger(internal.LogLevelError))
	table := testTable()

	path, err := w.Write(context.Background(), table)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "poisson", BaseName(table.Manifest)+".csv"), path)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, records, 3)
	assert.Equal(t, inference.ResultColumns, records[0])
	assert.Equal(t, table.Rows[0].Record(), records[1])
	assert.Equal(t, "500", records[1][0])
	assert.Equal(t, "0.875", records[1][8])
	assert.Equal(t, "linear_qr", records[2][2])

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files left behind")
}

func TestCSVWriterRequiresManifest(t *testing.T) {
	w := NewCSVWriter(t.TempDir(), nil)
	_, err := w.Write(context.Background(), ports.ResultTable{})
	assert.Error(t, err)
}

func TestXLSXWriter(t *testing.T) {
	root := t.TempDir()
	w := NewXLSXWriter(root, internal.NewLogger(internal.LogLevelError))
	table := testTable()

	path, err := w.Write(context.Background(), table)
	require.NoError(t, err)
	assert.Equal(t, ".xlsx", filepath.Ext(path))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(ResultsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, inference.ResultColumns, rows[0])
	assert.Equal(t, "knn_k30", rows[1][2])
	assert.Equal(t, "1000", rows[2][0])

	manifest, err := f.GetRows(ManifestSheet)
	require.NoError(t, err)
	assert.Equal(t, []string{"run_id", table.Manifest.RunID.String()}, manifest[0])
	assert.Equal(t, []string{"fingerprint", table.Manifest.Fingerprint.String()}, manifest[1])
}
