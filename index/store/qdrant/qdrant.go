// Package qdrant stores records in a Qdrant collection over gRPC.
package qdrant

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"

	"github.com/synoet/spellbook/index"
)

// DefaultCollection matches the collection name used by earlier deployments.
const DefaultCollection = "commands-v0"

const defaultGRPCPort = 6334

// Options configures a Store.
type Options struct {
	// URL of the Qdrant gRPC endpoint, e.g. "http://localhost:6334". https enables TLS.
	URL        string
	APIKey     string
	Collection string
	// Dimensions sizes the collection when it has to be created.
	Dimensions int
	Logger     *slog.Logger
}

// Store is an index.Store backed by Qdrant.
type Store struct {
	client     *qdrant.Client
	collection string
	logger     *slog.Logger
}

// New connects to Qdrant and makes sure the collection exists.
func New(ctx context.Context, opts Options) (*Store, error) {
	host, port, useTLS, err := parseURL(opts.URL)
	if err != nil {
		return nil, err
	}
	if opts.Dimensions <= 0 {
		return nil, fmt.Errorf("qdrant: dimensions must be positive, got %d", opts.Dimensions)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: opts.APIKey,
		UseTLS: useTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithKeepaliveParams(keepalive.ClientParameters{
				Time:                30 * time.Second,
				Timeout:             10 * time.Second,
				PermitWithoutStream: true,
			}),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: connect %s: %w", opts.URL, err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	name := opts.Collection
	if name == "" {
		name = DefaultCollection
	}

	s := &Store{
		client:     client,
		collection: name,
		logger:     logger.With("component", "qdrant", "collection", name),
	}
	if err := s.ensureCollection(ctx, opts.Dimensions); err != nil {
		client.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureCollection(ctx context.Context, dims int) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return classify("check collection", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dims),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return classify("create collection", err)
	}
	s.logger.Info("created collection", "dimensions", dims)
	return nil
}

// Upsert inserts or overwrites a point.
func (s *Store) Upsert(ctx context.Context, rec index.Record) error {
	payload, err := qdrant.TryValueMap(rec.Payload)
	if err != nil {
		return fmt.Errorf("qdrant: convert payload: %w: %w", index.ErrPermanent, err)
	}

	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewID(rec.ID),
			Vectors: qdrant.NewVectors(rec.Vector...),
			Payload: payload,
		}},
	})
	if err != nil {
		return classify("upsert", err)
	}
	return nil
}

// Delete removes a point. Qdrant treats absent IDs as a successful no-op.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelector(qdrant.NewID(id)),
	})
	if err != nil {
		return classify("delete", err)
	}
	return nil
}

// Search returns the k nearest points with their payloads.
func (s *Store) Search(ctx context.Context, vector []float32, k int) ([]index.Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, classify("query", err)
	}

	hits := make([]index.Hit, 0, len(points))
	for _, p := range points {
		hits = append(hits, index.Hit{
			ID:      p.GetId().GetUuid(),
			Score:   p.GetScore(),
			Payload: FromValueMap(p.GetPayload()),
		})
	}
	return hits, nil
}

// Close closes the gRPC connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// classify marks request errors that retrying cannot fix.
func classify(op string, err error) error {
	switch status.Code(err) {
	case codes.InvalidArgument, codes.NotFound, codes.PermissionDenied, codes.Unauthenticated:
		return fmt.Errorf("qdrant: %s: %w: %w", op, index.ErrPermanent, err)
	default:
		return fmt.Errorf("qdrant: %s: %w", op, err)
	}
}

func parseURL(raw string) (host string, port int, useTLS bool, err error) {
	if raw == "" {
		return "", 0, false, fmt.Errorf("qdrant: url is required")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", 0, false, fmt.Errorf("qdrant: invalid url %q", raw)
	}
	useTLS = u.Scheme == "https"

	host, portStr, err := net.SplitHostPort(u.Host)
	if err != nil {
		return u.Host, defaultGRPCPort, useTLS, nil
	}
	port, err = strconv.Atoi(portStr)
	if err != nil {
		return "", 0, false, fmt.Errorf("qdrant: invalid port in %q", raw)
	}
	return host, port, useTLS, nil
}
