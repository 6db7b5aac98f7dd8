// Package api serves stored calibration runs over HTTP.
package api

import (
	"encoding/csv"
	"encoding/json"
	"net/http"
	"strconv"

	"acore/domain/core"
	"acore/domain/inference"
	"acore/internal"
	apperrors "acore/internal/errors"
	"acore/ports"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// DefaultListLimit caps /runs when no limit is given
const DefaultListLimit = 50

// Server exposes a read-only view of the results ledger
type Server struct {
	router *chi.Mux
	reader ports.LedgerReaderPort
	logger *internal.Logger
}

// NewServer creates the API server over reader
func NewServer(reader ports.LedgerReaderPort, logger *internal.Logger) *Server {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	s := &Server{
		router: chi.NewRouter(),
		reader: reader,
		logger: logger.WithComponent("api"),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Route("/runs", func(r chi.Router) {
		r.Get("/", s.handleListRuns)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetRun)
			r.Get("/rows", s.handleGetRows)
			r.Get("/rows.csv", s.handleGetRowsCSV)
			r.Get("/diagnostics", s.handleGetDiagnostics)
		})
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := DefaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, apperrors.Newf(apperrors.CodeInvalidInput, "limit must be a positive integer, got %q", v))
			return
		}
		limit = n
	}
	runs, err := s.reader.ListRuns(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"runs": runs, "count": len(runs)})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id, err := runID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	manifest, err := s.reader.GetRun(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, manifest)
}

func (s *Server) handleGetRows(w http.ResponseWriter, r *http.Request) {
	rows, ok := s.rows(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"columns": inference.ResultColumns, "rows": rows})
}

func (s *Server) handleGetRowsCSV(w http.ResponseWriter, r *http.Request) {
	rows, ok := s.rows(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	cw := csv.NewWriter(w)
	cw.Write(inference.ResultColumns)
	for _, row := range rows {
		cw.Write(row.Record())
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		s.logger.Warn("csv response: %v", err)
	}
}

func (s *Server) handleGetDiagnostics(w http.ResponseWriter, r *http.Request) {
	id, err := runID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if _, err := s.reader.GetRun(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	diags, err := s.reader.GetDiagnostics(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if diags == nil {
		diags = []inference.Diagnostic{}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"diagnostics": diags})
}

// rows loads the rows of an existing run, writing the error response itself
func (s *Server) rows(w http.ResponseWriter, r *http.Request) ([]inference.ResultRow, bool) {
	id, err := runID(r)
	if err != nil {
		s.writeError(w, err)
		return nil, false
	}
	if _, err := s.reader.GetRun(r.Context(), id); err != nil {
		s.writeError(w, err)
		return nil, false
	}
	rows, err := s.reader.GetRows(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return nil, false
	}
	if rows == nil {
		rows = []inference.ResultRow{}
	}
	return rows, true
}

func runID(r *http.Request) (core.RunID, error) {
	id, err := core.ParseRunID(chi.URLParam(r, "id"))
	if err != nil {
		return "", apperrors.WithCause(apperrors.CodeInvalidInput, "invalid run id", err)
	}
	return id, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("json response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case apperrors.HasCode(err, apperrors.CodeNotFound):
		status = http.StatusNotFound
	case apperrors.HasCode(err, apperrors.CodeInvalidInput):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed: %v", err)
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error(), "code": apperrors.GetCode(err)})
}
