package api

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/synoet/spellbook/core"
	"github.com/synoet/spellbook/engine"
)

// SearchRequest is one type-ahead query sent over /ws/search.
type SearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

// SearchResults answers a SearchRequest that succeeded.
type SearchResults struct {
	Query   string          `json:"query"`
	Results []engine.Result `json:"results"`
}

// SearchError answers a SearchRequest that failed.
type SearchError struct {
	Query string `json:"query"`
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// handleSearchSocket answers each query on the connection in order until the
// client goes away.
func (s *Server) handleSearchSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	for {
		var req SearchRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("search socket closed", "error", err)
			}
			return
		}

		var msg any
		results, err := s.engine.Search(r.Context(), req.Query, req.Limit)
		if err != nil {
			msg = SearchError{Query: req.Query, Error: err.Error(), Code: string(core.CodeOf(err))}
		} else {
			if results == nil {
				results = []engine.Result{}
			}
			msg = SearchResults{Query: req.Query, Results: results}
		}
		if err := conn.WriteJSON(msg); err != nil {
			return
		}
	}
}
