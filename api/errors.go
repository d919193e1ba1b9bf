package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/synoet/spellbook/core"
	"github.com/synoet/spellbook/engine"
)

// ErrorResponse represents an HTTP error response
type ErrorResponse struct {
	Error  string         `json:"error"`
	Code   string         `json:"code"`
	Report *engine.Report `json:"report,omitempty"`
}

// WriteError writes err as JSON with the status mapped from its code.
func WriteError(w http.ResponseWriter, err error) {
	writeErrorReport(w, err, nil)
}

func writeErrorReport(w http.ResponseWriter, err error, report *engine.Report) {
	code := string(core.CodeOf(err))
	if code == "" {
		code = "INTERNAL_ERROR"
	}
	writeJSON(w, StatusFor(err), ErrorResponse{Error: err.Error(), Code: code, Report: report})
}

// StatusFor maps an error to an HTTP status code.
func StatusFor(err error) int {
	if errors.Is(err, engine.ErrNoLedger) {
		return http.StatusNotImplemented
	}
	switch core.CodeOf(err) {
	case core.MalformedManifest, core.InvalidQuery:
		return http.StatusBadRequest
	case core.RevisionNotFound, core.PathNotFoundInTree:
		return http.StatusUnprocessableEntity
	case core.RepositoryUnavailable, core.IndexOperationFailed:
		return http.StatusBadGateway
	case core.EmbeddingUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
