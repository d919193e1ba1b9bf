package qdrant

import (
	"errors"
	"fmt"
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/synoet/spellbook/core"
	"github.com/synoet/spellbook/index"
)

func TestFromValueMap_RoundTripsEntryPayload(t *testing.T) {
	entries := []core.Entry{
		{Invocation: "ls -la", Description: "list files"},
		{Invocation: "cp <src> <dst>", Description: "copy", Placeholders: []core.Placeholder{
			{Name: "src", Description: "source"},
			{Name: "dst", Description: "destination"},
		}},
		{Invocation: "true", Description: "", Placeholders: []core.Placeholder{}},
	}

	for _, e := range entries {
		t.Run(e.Invocation, func(t *testing.T) {
			values, err := qdrant.TryValueMap(e.Payload())
			if err != nil {
				t.Fatalf("TryValueMap: %v", err)
			}
			got, err := core.DecodePayload(FromValueMap(values))
			if err != nil {
				t.Fatalf("DecodePayload: %v", err)
			}
			if !got.Equal(e) {
				t.Errorf("expected %+v, got %+v", e, got)
			}
		})
	}
}

func TestFromValueMap_Scalars(t *testing.T) {
	got := FromValueMap(map[string]*qdrant.Value{
		"n":    qdrant.NewValueInt(3),
		"f":    qdrant.NewValueDouble(1.5),
		"b":    qdrant.NewValueBool(true),
		"null": qdrant.NewValueNull(),
	})
	if got["n"] != int64(3) || got["f"] != 1.5 || got["b"] != true || got["null"] != nil {
		t.Errorf("unexpected conversion %#v", got)
	}
	if FromValueMap(nil) != nil {
		t.Error("nil payload should stay nil")
	}
}

func TestParseURL(t *testing.T) {
	tests := []struct {
		raw     string
		host    string
		port    int
		tls     bool
		wantErr bool
	}{
		{raw: "http://localhost:6334", host: "localhost", port: 6334},
		{raw: "https://xyz.cloud.qdrant.io:6334", host: "xyz.cloud.qdrant.io", port: 6334, tls: true},
		{raw: "https://xyz.cloud.qdrant.io", host: "xyz.cloud.qdrant.io", port: defaultGRPCPort, tls: true},
		{raw: "", wantErr: true},
		{raw: "localhost", wantErr: true},
		{raw: "http://localhost:port", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			host, port, useTLS, err := parseURL(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if host != tt.host || port != tt.port || useTLS != tt.tls {
				t.Errorf("got (%s, %d, %v)", host, port, useTLS)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	permanent := classify("upsert", status.Error(codes.InvalidArgument, "wrong vector size"))
	if !errors.Is(permanent, index.ErrPermanent) {
		t.Errorf("expected InvalidArgument to be permanent: %v", permanent)
	}
	transient := classify("upsert", status.Error(codes.Unavailable, "connection refused"))
	if errors.Is(transient, index.ErrPermanent) {
		t.Errorf("expected Unavailable to be retryable: %v", transient)
	}
	if classify("delete", fmt.Errorf("plain")) == nil {
		t.Error("expected an error")
	}
}
