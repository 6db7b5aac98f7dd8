package output

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"acore/domain/inference"
	"acore/internal"
	apperrors "acore/internal/errors"
	"acore/ports"

	"github.com/xuri/excelize/v2"
)

// Sheet names of the workbook
const (
	ResultsSheet  = "results"
	ManifestSheet = "manifest"
)

// XLSXWriter writes the result table and the run manifest to a workbook next to the CSV
type XLSXWriter struct {
	root   string
	logger *internal.Logger
}

// NewXLSXWriter creates a workbook writer rooted at root
func NewXLSXWriter(root string, logger *internal.Logger) *XLSXWriter {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &XLSXWriter{root: root, logger: logger.WithComponent("xlsx")}
}

// Write implements ports.ResultWriter
func (w *XLSXWriter) Write(ctx context.Context, table ports.ResultTable) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if table.Manifest == nil {
		return "", apperrors.InvalidInput("result table without manifest")
	}

	path := Path(w.root, table.OutputDir, table.Manifest, ".xlsx")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", apperrors.PersistenceError("failed to create output directory", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	// NewFile starts with Sheet1
	if err := f.SetSheetName("Sheet1", ResultsSheet); err != nil {
		return "", apperrors.PersistenceError("failed to name results sheet", err)
	}
	if err := setRow(f, ResultsSheet, 1, toCells(inference.ResultColumns)); err != nil {
		return "", err
	}
	for i, row := range table.Rows {
		if err := setRow(f, ResultsSheet, i+2, row.Values()); err != nil {
			return "", err
		}
	}

	if _, err := f.NewSheet(ManifestSheet); err != nil {
		return "", apperrors.PersistenceError("failed to create manifest sheet", err)
	}
	for i, kv := range manifestCells(table) {
		if err := setRow(f, ManifestSheet, i+1, kv); err != nil {
			return "", err
		}
	}

	if err := f.SaveAs(path); err != nil {
		return "", apperrors.PersistenceError("failed to save workbook", err)
	}
	w.logger.Debug("wrote %d rows to %s", len(table.Rows), path)
	return path, nil
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return apperrors.PersistenceError("invalid cell coordinates", err)
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return apperrors.PersistenceError(fmt.Sprintf("failed to write %s row %d", sheet, row), err)
	}
	return nil
}

func toCells(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func manifestCells(table ports.ResultTable) [][]interface{} {
	m := table.Manifest
	bPrimes := make([]string, len(m.BPrimeGrid))
	for i, b := range m.BPrimeGrid {
		bPrimes[i] = strconv.Itoa(b)
	}
	return [][]interface{}{
		{"run_id", m.RunID.String()},
		{"fingerprint", m.Fingerprint.String()},
		{"run", string(m.Model)},
		{"classifier", m.ClassifierName},
		{"test_statistic", string(m.Statistic)},
		{"seed", m.Seed},
		{"alpha", m.Alpha},
		{"b", m.B},
		{"sample_size_obs", m.SampleSizeObs},
		{"sample_size_check", m.SampleSizeCheck},
		{"size_reference", m.SizeReference},
		{"n_eval_grid", m.NEvalGrid},
		{"b_prime_grid", strings.Join(bPrimes, ",")},
		{"benchmark", m.Benchmark},
		{"empirical_marginal", m.EmpiricalMarginal},
		{"debug", m.Debug},
		{"created_at", m.CreatedAt.Format("2006-01-02T15:04:05Z07:00")},
	}
}
