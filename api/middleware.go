package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// accessLog logs one line per request.
func accessLog(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			level := slog.LevelInfo
			if status >= http.StatusInternalServerError {
				level = slog.LevelWarn
			}
			logger.Log(r.Context(), level, "request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

// requireToken admits requests carrying "Authorization: Bearer <token>".
// An empty token rejects everything.
func requireToken(token []byte, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if len(token) == 0 || !ok || subtle.ConstantTimeCompare([]byte(got), token) != 1 {
				logger.Warn("rejected unauthenticated request", "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()))
				w.Header().Set("WWW-Authenticate", `Bearer realm="spellbook"`)
				writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "missing or invalid admin token", Code: "UNAUTHORIZED"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
