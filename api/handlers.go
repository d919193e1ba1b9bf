package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/synoet/spellbook/core"
	"github.com/synoet/spellbook/ledger"
	"github.com/synoet/spellbook/schema"
)

// maxBodyBytes caps request bodies; push payloads for large pushes stay well below.
const maxBodyBytes = 5 << 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Status          string       `json:"status"`
	LastSync        *ledger.Sync `json:"last_sync,omitempty"`
	PendingFailures *int         `json:"pending_failures,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{Status: "ok"}
	if s.status == nil {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	last, err := s.status.LastSync(r.Context(), r.URL.Query().Get("repo"))
	switch {
	case errors.Is(err, ledger.ErrNotFound):
	case err != nil:
		WriteError(w, fmt.Errorf("read last sync: %w", err))
		return
	default:
		resp.LastSync = last
	}

	pending, err := s.status.CountPending(r.Context())
	if err != nil {
		WriteError(w, fmt.Errorf("count pending failures: %w", err))
		return
	}
	resp.PendingFailures = &pending
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/schema+json")
	writeJSON(w, http.StatusOK, schema.Manifest())
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, core.Verdict{Valid: false, Reason: err.Error()})
		return
	}
	verdict := core.ValidateManifest(body)
	status := http.StatusOK
	if !verdict.Valid {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, verdict)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		WriteError(w, err)
		return
	}
	results, err := s.engine.Search(r.Context(), q.Get("query"), limit)
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		WriteError(w, core.NewError(core.MalformedManifest, "unreadable body", err))
		return
	}
	m, err := core.ParseManifest(body)
	if err != nil {
		WriteError(w, err)
		return
	}
	ctx, cancel := s.syncContext(r.Context())
	defer cancel()

	report, err := s.engine.IndexManifest(ctx, m)
	if err != nil {
		writeErrorReport(w, err, report)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleReplay(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			WriteError(w, core.NewError(core.InvalidQuery, "limit must be a non-negative integer", err))
			return
		}
		limit = n
	}
	ctx, cancel := s.syncContext(r.Context())
	defer cancel()

	report, err := s.engine.Replay(ctx, limit)
	if err != nil {
		writeErrorReport(w, err, report)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) syncContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	return io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
}

// parseLimit reads an optional result limit; empty means the engine default.
func parseLimit(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, core.NewError(core.InvalidQuery, "limit must be a positive integer", err)
	}
	return n, nil
}
