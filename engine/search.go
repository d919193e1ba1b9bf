package engine

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/synoet/spellbook/core"
)

const (
	// DefaultSearchLimit is the number of results returned when the caller does not ask for one.
	DefaultSearchLimit = 5
	// DefaultSearchMaxLimit caps caller-supplied limits.
	DefaultSearchMaxLimit = 50
)

// Result is one search match.
type Result struct {
	core.Entry
	Score float32 `json:"-"`
}

// Search embeds query and returns the closest entries, best first.
// k <= 0 selects the default limit; larger values are capped.
// Hits whose payload does not decode are dropped.
func (e *Engine) Search(ctx context.Context, query string, k int) (results []Result, err error) {
	ctx, span := e.tracer.Start(ctx, "spellbook.search", trace.WithAttributes(
		attribute.Int("spellbook.k", k),
	))
	defer span.End()
	defer func() {
		status := "ok"
		if err != nil {
			status = string(core.CodeOf(err))
			if status == "" {
				status = "error"
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		e.metrics.searchRequests.WithLabelValues(status).Inc()
	}()

	if strings.TrimSpace(query) == "" {
		return nil, core.NewError(core.InvalidQuery, "query must not be empty", nil)
	}
	if k <= 0 {
		k = e.searchLimit
	}
	if k > e.searchMaxLimit {
		k = e.searchMaxLimit
	}

	vec, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil {
		if !core.IsCode(err, core.EmbeddingUnavailable) {
			err = core.NewError(core.EmbeddingUnavailable, "embed query", err)
		}
		return nil, err
	}

	hits, err := e.store.Search(ctx, vec, k)
	if err != nil {
		return nil, core.NewError(core.IndexOperationFailed, "search", err)
	}

	results = make([]Result, 0, len(hits))
	for _, h := range hits {
		entry, err := core.DecodePayload(h.Payload)
		if err != nil {
			e.logger.Warn("dropping search hit with undecodable payload", "id", h.ID, "error", err)
			e.metrics.payloadsDropped.Inc()
			continue
		}
		results = append(results, Result{Entry: entry, Score: h.Score})
	}
	span.SetAttributes(attribute.Int("spellbook.results", len(results)))
	return results, nil
}
