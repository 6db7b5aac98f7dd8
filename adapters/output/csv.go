package output

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"

	"acore/domain/inference"
	"acore/internal"
	apperrors "acore/internal/errors"
	"acore/ports"
)

// CSVWriter writes one CSV file per run under <root>/<model dir>/
type CSVWriter struct {
	root   string
	logger *internal.Logger
}

// NewCSVWriter creates a CSV writer rooted at root
func NewCSVWriter(root string, logger *internal.Logger) *CSVWriter {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &CSVWriter{root: root, logger: logger.WithComponent("csv")}
}

// Write implements ports.ResultWriter
func (w *CSVWriter) Write(ctx context.Context, table ports.ResultTable) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if table.Manifest == nil {
		return "", apperrors.InvalidInput("result table without manifest")
	}

	path := Path(w.root, table.OutputDir, table.Manifest, ".csv")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", apperrors.PersistenceError("failed to create output directory", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".b_prime_*.csv")
	if err != nil {
		return "", apperrors.PersistenceError("failed to create output file", err)
	}
	defer os.Remove(tmp.Name())

	cw := csv.NewWriter(tmp)
	if err := cw.Write(inference.ResultColumns); err != nil {
		tmp.Close()
		return "", apperrors.PersistenceError("failed to write header", err)
	}
	for _, row := range table.Rows {
		if err := cw.Write(row.Record()); err != nil {
			tmp.Close()
			return "", apperrors.PersistenceError("failed to write row", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		tmp.Close()
		return "", apperrors.PersistenceError("failed to flush rows", err)
	}
	if err := tmp.Close(); err != nil {
		return "", apperrors.PersistenceError("failed to close output file", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", apperrors.PersistenceError("failed to move output file into place", err)
	}

	w.logger.Debug("wrote %d rows to %s", len(table.Rows), path)
	return path, nil
}
