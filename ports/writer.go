package ports

import (
	"context"

	"acore/domain/inference"
	"acore/domain/run"
)

// ResultTable is the complete output of one run, written once after the loop finishes
type ResultTable struct {
	Manifest *run.Manifest
	// OutputDir is the model sub-directory under the output root
	OutputDir string
	Rows      []inference.ResultRow
}

// ResultWriter persists a result table and returns the path it wrote
type ResultWriter interface {
	Write(ctx context.Context, table ResultTable) (string, error)
}
