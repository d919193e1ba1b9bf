package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/synoet/spellbook/config"
	"github.com/synoet/spellbook/engine"
	"github.com/synoet/spellbook/gitrev"
	"github.com/synoet/spellbook/index"
	"github.com/synoet/spellbook/index/embedder/mock"
	"github.com/synoet/spellbook/index/embedder/onnx"
	"github.com/synoet/spellbook/index/embedder/openai"
	"github.com/synoet/spellbook/index/store/chromem"
	"github.com/synoet/spellbook/index/store/qdrant"
	"github.com/synoet/spellbook/ledger"
)

// app holds every long-lived component built from the configuration.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	filter   *gitrev.Filter
	store    index.Store
	gateway  *index.Gateway
	ledger   *ledger.Ledger // nil when disabled
	engine   *engine.Engine
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a := &app{
		cfg:      cfg,
		logger:   config.NewLogger(os.Stderr, cfg.Logging.Format, cfg.Logging.Level),
		registry: prometheus.NewRegistry(),
	}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if err := a.build(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) build(ctx context.Context) error {
	cfg := a.cfg

	emb, err := newEmbedder(cfg.Embedding, a.logger)
	if err != nil {
		return fmt.Errorf("embedding provider: %w", err)
	}
	gwOpts := []index.GatewayOption{index.WithGatewayLogger(a.logger)}
	if cfg.Embedding.CacheBytes > 0 {
		gwOpts = append(gwOpts, index.WithQueryCache(cfg.Embedding.CacheBytes))
	}
	a.gateway, err = index.NewGateway(emb, gwOpts...)
	if err != nil {
		return err
	}

	store, err := newStore(ctx, cfg.Index, a.gateway.Dimensions(), a.logger)
	if err != nil {
		return fmt.Errorf("vector store: %w", err)
	}
	a.store = store

	if cfg.Ledger.Path != "" {
		a.ledger, err = ledger.Open(cfg.Ledger.Path, a.logger)
		if err != nil {
			return err
		}
	}

	a.filter, err = gitrev.NewFilter(cfg.Registry.Patterns...)
	if err != nil {
		return err
	}
	ws, err := gitrev.NewWorkspace(cfg.Workspace.Dir, cfg.Workspace.Isolate)
	if err != nil {
		return err
	}
	extractor := gitrev.NewExtractor(ws, gitrev.GitCloner{Token: cfg.Registry.Token}, a.logger)

	opts := []engine.Option{
		engine.WithLogger(a.logger),
		engine.WithMetrics(a.registry),
		engine.WithFilter(a.filter),
		engine.WithWorkers(cfg.Sync.Workers),
		engine.WithRetry(engine.RetryPolicy{
			Attempts:  cfg.Sync.RetryAttempts,
			BaseDelay: cfg.Sync.RetryBaseDelay,
			MaxDelay:  cfg.Sync.RetryMaxDelay,
		}),
		engine.WithSearchLimits(cfg.Search.DefaultLimit, cfg.Search.MaxLimit),
	}
	if a.ledger != nil {
		opts = append(opts, engine.WithLedger(a.ledger))
	}
	a.engine = engine.New(extractor, a.store, a.gateway, opts...)
	return nil
}

func newEmbedder(cfg config.EmbeddingConfig, logger *slog.Logger) (index.Embedder, error) {
	switch cfg.Provider {
	case "mock":
		return mock.New(cfg.Dimensions), nil
	case "openai":
		emb, err := openai.New(openai.Config{
			BaseURL:    cfg.BaseURL,
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Timeout:    cfg.Timeout,
		})
		if err != nil {
			return nil, err
		}
		return emb, nil
	case "onnx":
		emb, err := onnx.New(onnx.Config{
			ModelPath:         cfg.ModelPath,
			TokenizerPath:     cfg.TokenizerPath,
			SharedLibraryPath: cfg.LibraryPath,
			Dimensions:        cfg.Dimensions,
		}, logger)
		if err != nil {
			return nil, err
		}
		return emb, nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

func newStore(ctx context.Context, cfg config.IndexConfig, dims int, logger *slog.Logger) (index.Store, error) {
	switch cfg.Backend {
	case "chromem":
		store, err := chromem.New(chromem.Options{
			Collection: cfg.Collection,
			Path:       cfg.Path,
			Compress:   cfg.Compress,
			Logger:     logger,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	case "qdrant":
		store, err := qdrant.New(ctx, qdrant.Options{
			URL:        cfg.URL,
			APIKey:     cfg.APIKey,
			Collection: cfg.Collection,
			Dimensions: dims,
			Logger:     logger,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// Close releases the store, the embedder and the ledger.
func (a *app) Close() error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.gateway != nil {
		errs = append(errs, a.gateway.Close())
	}
	if a.ledger != nil {
		errs = append(errs, a.ledger.Close())
	}
	return errors.Join(errs...)
}
