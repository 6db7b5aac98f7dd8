package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"acore/domain/core"
	"acore/domain/inference"
	"acore/domain/run"
	apperrors "acore/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestLedger(t *testing.T) *SQLLedger {
	t.Helper()
	l, err := Open(context.Background(), DriverSQLite, filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func testManifest(created time.Time) *run.Manifest {
	m := &run.Manifest{
		RunID:             core.NewRunID(),
		Model:             inference.ModelInferno,
		ClassifierID:      "qda",
		ClassifierName:    "QDA",
		Statistic:         inference.StatisticLogAvgACORE,
		Seed:              11,
		Alpha:             0.05,
		B:                 5000,
		SampleSizeObs:     10,
		SampleSizeCheck:   1000,
		SizeReference:     1000,
		NEvalGrid:         51,
		BPrimeGrid:        []int{100, 500, 1000},
		Benchmark:         2,
		EmpiricalMarginal: true,
		CreatedAt:         created.UTC(),
	}
	m.Seal()
	return m
}

func TestRecordAndGetRun(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()
	m := testManifest(time.Now())

	require.NoError(t, l.RecordRun(ctx, m))

	got, err := l.GetRun(ctx, m.RunID)
	require.NoError(t, err)
	assert.Equal(t, m.RunID, got.RunID)
	assert.Equal(t, m.Fingerprint, got.Fingerprint)
	assert.Equal(t, []int{100, 500, 1000}, got.BPrimeGrid)
	assert.True(t, got.EmpiricalMarginal)
	assert.False(t, got.Debug)
	assert.True(t, m.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, m.Fingerprint, got.ComputeFingerprint(), "stored fields reproduce the fingerprint")

	assert.Error(t, l.RecordRun(ctx, m), "run ids are unique")
}

func TestGetRunNotFound(t *testing.T) {
	l := openTestLedger(t)
	_, err := l.GetRun(context.Background(), core.NewRunID())
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestAppendRowsKeepsOrder(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()
	m := testManifest(time.Now())
	require.NoError(t, l.RecordRun(ctx, m))

	first := []inference.ResultRow{
		{BPrime: 100, ClassCDE: "linear_qr", Run: "inferno", AverageCoverage: 0.91, TestStatistics: "logavgacore"},
		{BPrime: 100, ClassCDE: "knn_k30", Run: "inferno", AverageCoverage: 0.88, TestStatistics: "logavgacore"},
	}
	diags := []inference.Diagnostic{
		{Code: inference.DiagLogitNotConverged, Message: "hit iteration cap", BPrime: 100, Algorithm: "linear_qr"},
	}
	require.NoError(t, l.AppendRows(ctx, m.RunID, first, diags))

	second := []inference.ResultRow{
		{BPrime: 500, ClassCDE: "linear_qr", Run: "inferno", AverageCoverage2Std: 1, TestStatistics: "logavgacore"},
	}
	require.NoError(t, l.AppendRows(ctx, m.RunID, second, nil))

	rows, err := l.GetRows(ctx, m.RunID)
	require.NoError(t, err)
	assert.Equal(t, append(first, second...), rows)

	gotDiags, err := l.GetDiagnostics(ctx, m.RunID)
	require.NoError(t, err)
	assert.Equal(t, diags, gotDiags)
}

func TestAppendRowsUnknownRun(t *testing.T) {
	l := openTestLedger(t)
	err := l.AppendRows(context.Background(), core.NewRunID(), []inference.ResultRow{{BPrime: 1}}, nil)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestListRunsNewestFirst(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	var ids []core.RunID
	for i := 0; i < 3; i++ {
		m := testManifest(base.Add(time.Duration(i) * time.Hour))
		require.NoError(t, l.RecordRun(ctx, m))
		ids = append(ids, m.RunID)
	}

	all, err := l.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ids[2], all[0].RunID)
	assert.Equal(t, ids[0], all[2].RunID)

	limited, err := l.ListRuns(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestMigrateIsIdempotent(t *testing.T) {
	l := openTestLedger(t)
	require.NoError(t, Migrate(context.Background(), l.db))

	var n int
	require.NoError(t, l.db.Get(&n, "SELECT COUNT(*) FROM schema_migrations"))
	assert.Equal(t, len(migrations), n)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConfigInvalid))
}
