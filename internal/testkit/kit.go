package testkit

import (
	"context"
	"math/rand/v2"
	"sort"
	"sync"

	"acore/adapters/rng"
	"acore/domain/core"
	"acore/domain/inference"
	"acore/domain/run"
	apperrors "acore/internal/errors"
	"acore/ports"
)

// TestKit provides testing utilities and fixtures
type TestKit struct {
	ledger *InMemoryLedgerAdapter // Shared ledger instance
	writer *MemoryWriter
}

// NewTestKit creates a new test kit instance
func NewTestKit() (*TestKit, error) {
	return &TestKit{
		ledger: NewInMemoryLedgerAdapter(),
		writer: &MemoryWriter{},
	}, nil
}

// RNGAdapter returns the seeded RNG adapter
func (t *TestKit) RNGAdapter() ports.RNGPort {
	return &RNGAdapter{}
}

// LedgerAdapter returns the shared in-memory ledger
func (t *TestKit) LedgerAdapter() ports.LedgerPort {
	return t.ledger
}

// Writer returns the in-memory result writer
func (t *TestKit) Writer() *MemoryWriter {
	return t.writer
}

// RNGAdapter implements the RNGPort interface for testing
type RNGAdapter struct{}

// SeededStream creates a deterministic random number generator for a named operation
func (r *RNGAdapter) SeededStream(ctx context.Context, name string, seed int64) (*rand.Rand, error) {
	return rng.New(seed), nil
}

// MemoryWriter keeps written tables instead of touching the filesystem
type MemoryWriter struct {
	mu     sync.Mutex
	Tables []ports.ResultTable
}

// Write records the table and returns a synthetic path
func (w *MemoryWriter) Write(ctx context.Context, table ports.ResultTable) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Tables = append(w.Tables, table)
	return "memory://" + table.Manifest.RunID.String(), nil
}

// InMemoryLedgerAdapter implements LedgerPort with in-memory storage
type InMemoryLedgerAdapter struct {
	runs        map[core.RunID]run.Manifest
	rows        map[core.RunID][]inference.ResultRow
	diagnostics map[core.RunID][]inference.Diagnostic
	mu          sync.RWMutex
}

func NewInMemoryLedgerAdapter() *InMemoryLedgerAdapter {
	return &InMemoryLedgerAdapter{
		runs:        make(map[core.RunID]run.Manifest),
		rows:        make(map[core.RunID][]inference.ResultRow),
		diagnostics: make(map[core.RunID][]inference.Diagnostic),
	}
}

func (s *InMemoryLedgerAdapter) RecordRun(ctx context.Context, manifest *run.Manifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[manifest.RunID]; exists {
		return apperrors.PersistenceError("run already recorded: "+manifest.RunID.String(), nil)
	}
	s.runs[manifest.RunID] = *manifest
	return nil
}

func (s *InMemoryLedgerAdapter) AppendRows(ctx context.Context, runID core.RunID, rows []inference.ResultRow, diagnostics []inference.Diagnostic) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[runID]; !exists {
		return apperrors.NotFound("run " + runID.String())
	}
	s.rows[runID] = append(s.rows[runID], rows...)
	s.diagnostics[runID] = append(s.diagnostics[runID], diagnostics...)
	return nil
}

func (s *InMemoryLedgerAdapter) ListRuns(ctx context.Context, limit int) ([]run.Manifest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]run.Manifest, 0, len(s.runs))
	for _, m := range s.runs {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryLedgerAdapter) GetRun(ctx context.Context, runID core.RunID) (*run.Manifest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, exists := s.runs[runID]
	if !exists {
		return nil, apperrors.NotFound("run " + runID.String())
	}
	return &m, nil
}

func (s *InMemoryLedgerAdapter) GetRows(ctx context.Context, runID core.RunID) ([]inference.ResultRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]inference.ResultRow(nil), s.rows[runID]...), nil
}

func (s *InMemoryLedgerAdapter) GetDiagnostics(ctx context.Context, runID core.RunID) ([]inference.Diagnostic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]inference.Diagnostic(nil), s.diagnostics[runID]...), nil
}
