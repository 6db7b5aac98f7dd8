package api

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"acore/domain/core"
	"acore/domain/inference"
	"acore/domain/run"
	"acore/internal"
	"acore/internal/testkit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seededServer(t *testing.T) (*Server, *run.Manifest) {
	t.Helper()
	kit, err := testkit.NewTestKit()
	require.NoError(t, err)
	ledger := kit.LedgerAdapter()

	m := &run.Manifest{
		RunID:           core.NewRunID(),
		Model:           inference.ModelCamelus,
		ClassifierID:    "log_regr",
		ClassifierName:  "Log.-Regr.",
		Statistic:       inference.StatisticAverageOdds,
		Seed:            7,
		Alpha:           0.1,
		BPrimeGrid:      []int{100, 500},
		SampleSizeCheck: 1000,
		CreatedAt:       time.Now().UTC(),
	}
	m.Seal()
	ctx := context.Background()
	require.NoError(t, ledger.RecordRun(ctx, m))
	require.NoError(t, ledger.AppendRows(ctx, m.RunID,
		[]inference.ResultRow{
			{BPrime: 100, ClassCDE: "knn_k30", Run: "camelus", AverageCoverage: 0.9, TestStatistics: "averageodds"},
			{BPrime: 500, ClassCDE: "knn_k30", Run: "camelus", AverageCoverage: 0.95, TestStatistics: "averageodds"},
		},
		[]inference.Diagnostic{{Code: inference.DiagSingleClass, Message: "all covered", BPrime: 500, Algorithm: "knn_k30"}},
	))
	return NewServer(ledger, internal.NewLogger(internal.LogLevelError)), m
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestListRuns(t *testing.T) {
	s, m := seededServer(t)

	rec := get(t, s, "/runs")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Runs  []run.Manifest `json:"runs"`
		Count int            `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, m.RunID, body.Runs[0].RunID)
	assert.Equal(t, m.Fingerprint, body.Runs[0].Fingerprint)
}

func TestRoutes(t *testing.T) {
	s, m := seededServer(t)
	base := "/runs/" + m.RunID.String()

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"health", "/healthz", http.StatusOK},
		{"run", base, http.StatusOK},
		{"rows", base + "/rows", http.StatusOK},
		{"diagnostics", base + "/diagnostics", http.StatusOK},
		{"unknown run", "/runs/" + core.NewRunID().String(), http.StatusNotFound},
		{"rows of unknown run", "/runs/" + core.NewRunID().String() + "/rows", http.StatusNotFound},
		{"bad limit", "/runs?limit=-3", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, s, tt.path)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestGetRows(t *testing.T) {
	s, m := seededServer(t)

	rec := get(t, s, "/runs/"+m.RunID.String()+"/rows")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Columns []string              `json:"columns"`
		Rows    []inference.ResultRow `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, inference.ResultColumns, body.Columns)
	require.Len(t, body.Rows, 2)
	assert.Equal(t, 500, body.Rows[1].BPrime)
	assert.Equal(t, 0.95, body.Rows[1].AverageCoverage)
}

func TestGetRowsCSV(t *testing.T) {
	s, m := seededServer(t)

	rec := get(t, s, "/runs/"+m.RunID.String()+"/rows.csv")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))

	records, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, inference.ResultColumns, records[0])
	assert.Equal(t, "100", records[1][0])
}

func TestGetDiagnostics(t *testing.T) {
	s, m := seededServer(t)

	rec := get(t, s, "/runs/"+m.RunID.String()+"/diagnostics")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Diagnostics []inference.Diagnostic `json:"diagnostics"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Diagnostics, 1)
	assert.Equal(t, inference.DiagSingleClass, body.Diagnostics[0].Code)
	assert.Equal(t, "knn_k30", body.Diagnostics[0].Algorithm)
}
