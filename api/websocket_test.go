package api_test

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/synoet/spellbook/api"
	"github.com/synoet/spellbook/core"
	"github.com/synoet/spellbook/engine"
)

func TestSearchSocket(t *testing.T) {
	eng := &fakeEngine{results: []engine.Result{
		{Entry: core.Entry{Invocation: "docker ps", Description: "list containers"}},
	}}
	srv := httptest.NewServer(api.NewServer(eng, api.Options{}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/search"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	if err := conn.WriteJSON(api.SearchRequest{Query: "containers", Limit: 2}); err != nil {
		t.Fatal(err)
	}
	var res api.SearchResults
	if err := conn.ReadJSON(&res); err != nil {
		t.Fatal(err)
	}
	if res.Query != "containers" || len(res.Results) != 1 || res.Results[0].Invocation != "docker ps" {
		t.Errorf("unexpected results %+v", res)
	}
	if eng.lastLimit != 2 {
		t.Errorf("expected limit 2, got %d", eng.lastLimit)
	}

	// The connection stays usable after a failed query.
	if err := conn.WriteJSON(api.SearchRequest{Query: "  "}); err != nil {
		t.Fatal(err)
	}
	var fail api.SearchError
	if err := conn.ReadJSON(&fail); err != nil {
		t.Fatal(err)
	}
	if fail.Code != string(core.InvalidQuery) || fail.Error == "" {
		t.Errorf("unexpected error message %+v", fail)
	}

	if err := conn.WriteJSON(api.SearchRequest{Query: "again"}); err != nil {
		t.Fatal(err)
	}
	res = api.SearchResults{}
	if err := conn.ReadJSON(&res); err != nil {
		t.Fatal(err)
	}
	if res.Query != "again" {
		t.Errorf("expected answer to second query, got %+v", res)
	}
}
