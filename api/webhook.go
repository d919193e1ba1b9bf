package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/synoet/spellbook/core"
)

const (
	signatureHeader = "X-Hub-Signature-256"
	eventHeader     = "X-GitHub-Event"
	deliveryHeader  = "X-GitHub-Delivery"
)

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "BAD_REQUEST"})
		return
	}
	if s.secret != nil && !validSignature(s.secret, body, r.Header.Get(signatureHeader)) {
		s.logger.Warn("rejected webhook with bad signature", "delivery", r.Header.Get(deliveryHeader))
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "invalid signature", Code: "UNAUTHORIZED"})
		return
	}

	switch event := r.Header.Get(eventHeader); event {
	case "", "push":
	case "ping":
		writeJSON(w, http.StatusOK, map[string]string{"status": "pong"})
		return
	default:
		s.logger.Debug("ignoring webhook event", "event", event)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored", "event": event})
		return
	}

	var push core.PushEvent
	if err := json.Unmarshal(body, &push); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid push payload: " + err.Error(), Code: "BAD_REQUEST"})
		return
	}
	if push.After == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "push payload has no `after` commit", Code: "BAD_REQUEST"})
		return
	}

	ctx, cancel := s.syncContext(r.Context())
	defer cancel()

	report, err := s.engine.HandlePush(ctx, &push)
	if err != nil {
		s.logger.Error("sync failed",
			"delivery", r.Header.Get(deliveryHeader),
			"after", push.After,
			"code", core.CodeOf(err),
			"error", err,
		)
		writeErrorReport(w, err, report)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// validSignature checks a "sha256=<hex>" HMAC of body.
func validSignature(secret, body []byte, header string) bool {
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}
