package ports

import (
	"context"

	"acore/domain/core"
	"acore/domain/inference"
	"acore/domain/run"
)

// LedgerWriterPort provides append-only write access to run results
type LedgerWriterPort interface {
	RecordRun(ctx context.Context, manifest *run.Manifest) error
	AppendRows(ctx context.Context, runID core.RunID, rows []inference.ResultRow, diagnostics []inference.Diagnostic) error
}

// LedgerReaderPort provides read-only access to stored runs
type LedgerReaderPort interface {
	ListRuns(ctx context.Context, limit int) ([]run.Manifest, error)
	GetRun(ctx context.Context, runID core.RunID) (*run.Manifest, error)
	GetRows(ctx context.Context, runID core.RunID) ([]inference.ResultRow, error)
	GetDiagnostics(ctx context.Context, runID core.RunID) ([]inference.Diagnostic, error)
}

// LedgerPort combines read and write access
type LedgerPort interface {
	LedgerWriterPort
	LedgerReaderPort
}
