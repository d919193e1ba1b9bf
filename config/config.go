// Package config loads service configuration from defaults, an optional
// config file, a .env file and SPELLBOOK_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable: index.url is SPELLBOOK_INDEX_URL.
const EnvPrefix = "SPELLBOOK"

// Config represents the complete service configuration.
type Config struct {
	Server    ServerConfig    `json:"server" mapstructure:"server"`
	Webhook   WebhookConfig   `json:"webhook" mapstructure:"webhook"`
	Registry  RegistryConfig  `json:"registry" mapstructure:"registry"`
	Workspace WorkspaceConfig `json:"workspace" mapstructure:"workspace"`
	Sync      SyncConfig      `json:"sync" mapstructure:"sync"`
	Search    SearchConfig    `json:"search" mapstructure:"search"`
	Index     IndexConfig     `json:"index" mapstructure:"index"`
	Embedding EmbeddingConfig `json:"embedding" mapstructure:"embedding"`
	Ledger    LedgerConfig    `json:"ledger" mapstructure:"ledger"`
	Logging   LoggingConfig   `json:"logging" mapstructure:"logging"`
}

// ServerConfig contains HTTP listener settings
type ServerConfig struct {
	Addr string `json:"addr" mapstructure:"addr"`
	// AdminToken guards bulk indexing and replay. Unset disables those routes.
	AdminToken string `json:"-" mapstructure:"admin_token"`
}

// WebhookConfig contains push webhook settings
type WebhookConfig struct {
	// Secret enables X-Hub-Signature-256 verification.
	Secret string `json:"-" mapstructure:"secret"`
}

// RegistryConfig describes the registry repository
type RegistryConfig struct {
	// URL is used by CLI syncs that are not driven by a push payload.
	URL      string   `json:"url" mapstructure:"url"`
	Token    string   `json:"-" mapstructure:"token"`
	Patterns []string `json:"patterns" mapstructure:"patterns"`
}

// WorkspaceConfig contains local checkout settings
type WorkspaceConfig struct {
	Dir     string `json:"dir" mapstructure:"dir"`
	Isolate bool   `json:"isolate" mapstructure:"isolate"`
}

// SyncConfig contains reconciliation settings
type SyncConfig struct {
	Workers        int           `json:"workers" mapstructure:"workers"`
	Timeout        time.Duration `json:"timeout" mapstructure:"timeout"`
	RetryAttempts  int           `json:"retry_attempts" mapstructure:"retry_attempts"`
	RetryBaseDelay time.Duration `json:"retry_base_delay" mapstructure:"retry_base_delay"`
	RetryMaxDelay  time.Duration `json:"retry_max_delay" mapstructure:"retry_max_delay"`
}

// SearchConfig contains query settings
type SearchConfig struct {
	DefaultLimit int `json:"default_limit" mapstructure:"default_limit"`
	MaxLimit     int `json:"max_limit" mapstructure:"max_limit"`
}

// IndexConfig selects and configures the vector store
type IndexConfig struct {
	// Backend is "chromem" or "qdrant". Empty picks qdrant when URL is set.
	Backend    string `json:"backend" mapstructure:"backend"`
	Collection string `json:"collection" mapstructure:"collection"`
	URL        string `json:"url" mapstructure:"url"`
	APIKey     string `json:"-" mapstructure:"api_key"`
	// Path persists the chromem store; empty keeps it in memory.
	Path     string `json:"path" mapstructure:"path"`
	Compress bool   `json:"compress" mapstructure:"compress"`
}

// EmbeddingConfig selects and configures the embedding provider
type EmbeddingConfig struct {
	// Provider is "openai", "onnx" or "mock".
	Provider   string        `json:"provider" mapstructure:"provider"`
	BaseURL    string        `json:"base_url" mapstructure:"base_url"`
	APIKey     string        `json:"-" mapstructure:"api_key"`
	Model      string        `json:"model" mapstructure:"model"`
	Dimensions int           `json:"dimensions" mapstructure:"dimensions"`
	Timeout    time.Duration `json:"timeout" mapstructure:"timeout"`
	// CacheBytes bounds the query vector cache. Zero disables it.
	CacheBytes int64 `json:"cache_bytes" mapstructure:"cache_bytes"`

	ModelPath     string `json:"model_path" mapstructure:"model_path"`
	TokenizerPath string `json:"tokenizer_path" mapstructure:"tokenizer_path"`
	LibraryPath   string `json:"library_path" mapstructure:"library_path"`
}

// LedgerConfig contains sync ledger settings
type LedgerConfig struct {
	// Path of the sqlite database. Empty disables the ledger.
	Path string `json:"path" mapstructure:"path"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Format string `json:"format" mapstructure:"format"`
	Level  string `json:"level" mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.admin_token", "")
	v.SetDefault("webhook.secret", "")

	v.SetDefault("registry.url", "")
	v.SetDefault("registry.token", "")
	v.SetDefault("registry.patterns", []string{"**/*.json"})

	v.SetDefault("workspace.dir", filepath.Join(os.TempDir(), "spellbook"))
	v.SetDefault("workspace.isolate", true)

	v.SetDefault("sync.workers", 1)
	v.SetDefault("sync.timeout", 2*time.Minute)
	v.SetDefault("sync.retry_attempts", 3)
	v.SetDefault("sync.retry_base_delay", 200*time.Millisecond)
	v.SetDefault("sync.retry_max_delay", 5*time.Second)

	v.SetDefault("search.default_limit", 5)
	v.SetDefault("search.max_limit", 50)

	v.SetDefault("index.backend", "")
	v.SetDefault("index.collection", "commands-v0")
	v.SetDefault("index.url", "")
	v.SetDefault("index.api_key", "")
	v.SetDefault("index.path", "")
	v.SetDefault("index.compress", false)

	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.base_url", "")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.model", "")
	v.SetDefault("embedding.dimensions", 0)
	v.SetDefault("embedding.timeout", 30*time.Second)
	v.SetDefault("embedding.cache_bytes", int64(8<<20))
	v.SetDefault("embedding.model_path", "")
	v.SetDefault("embedding.tokenizer_path", "")
	v.SetDefault("embedding.library_path", "")

	v.SetDefault("ledger.path", "")

	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.level", "info")
}

// Load builds the configuration. path is an optional YAML, JSON or TOML file;
// a .env file in the working directory is read first when present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.applyLegacyEnv()
	if cfg.Index.Backend == "" {
		cfg.Index.Backend = "chromem"
		if cfg.Index.URL != "" {
			cfg.Index.Backend = "qdrant"
		}
	}
	return &cfg, nil
}

// applyLegacyEnv honours the variable names earlier deployments used.
func (c *Config) applyLegacyEnv() {
	fallback := func(dst *string, name string) {
		if *dst == "" {
			*dst = os.Getenv(name)
		}
	}
	fallback(&c.Index.URL, "QDRANT_URL")
	fallback(&c.Index.APIKey, "QDRANT_TOKEN")
	fallback(&c.Embedding.APIKey, "OPENAI_TOKEN")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return &Error{Field: "server.addr", Message: "must not be empty"}
	}
	if c.Workspace.Dir == "" {
		return &Error{Field: "workspace.dir", Message: "must not be empty"}
	}
	if len(c.Registry.Patterns) == 0 {
		return &Error{Field: "registry.patterns", Message: "at least one pattern is required"}
	}
	if c.Sync.Workers < 1 {
		return &Error{Field: "sync.workers", Message: "must be at least 1"}
	}
	if c.Sync.RetryAttempts < 1 {
		return &Error{Field: "sync.retry_attempts", Message: "must be at least 1"}
	}
	if c.Sync.Timeout < 0 {
		return &Error{Field: "sync.timeout", Message: "must not be negative"}
	}
	if c.Search.DefaultLimit < 1 {
		return &Error{Field: "search.default_limit", Message: "must be at least 1"}
	}
	if c.Search.MaxLimit < c.Search.DefaultLimit {
		return &Error{Field: "search.max_limit", Message: "must not be below search.default_limit"}
	}

	switch c.Index.Backend {
	case "chromem":
	case "qdrant":
		if c.Index.URL == "" {
			return &Error{Field: "index.url", Message: "required for the qdrant backend (or set QDRANT_URL)"}
		}
	default:
		return &Error{Field: "index.backend", Message: fmt.Sprintf("unknown backend %q", c.Index.Backend)}
	}

	switch c.Embedding.Provider {
	case "mock":
	case "openai":
		if c.Embedding.APIKey == "" {
			return &Error{Field: "embedding.api_key", Message: "required for the openai provider (or set OPENAI_TOKEN)"}
		}
	case "onnx":
		if c.Embedding.ModelPath == "" || c.Embedding.TokenizerPath == "" {
			return &Error{Field: "embedding.model_path", Message: "model_path and tokenizer_path are required for the onnx provider"}
		}
	default:
		return &Error{Field: "embedding.provider", Message: fmt.Sprintf("unknown provider %q", c.Embedding.Provider)}
	}
	if c.Embedding.CacheBytes < 0 {
		return &Error{Field: "embedding.cache_bytes", Message: "must not be negative"}
	}

	if !slices.Contains([]string{"text", "json"}, c.Logging.Format) {
		return &Error{Field: "logging.format", Message: "must be text or json"}
	}
	return nil
}

// Error represents a configuration error
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
