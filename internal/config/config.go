// Package config provides configuration loading for ragdocs.
//
// Configuration is layered: hardcoded defaults, an optional YAML file, then
// environment variables. Consumers that must observe reconfiguration at
// runtime depend on a Source and call Load on every use instead of holding
// on to a *Config.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Supported store providers.
const (
	ProviderChroma  = "chroma"
	ProviderQdrant  = "qdrant"
	ProviderChromem = "chromem"
)

// Supported embedding providers.
const (
	EmbeddingOllama = "ollama"
	EmbeddingOpenAI = "openai"
)

// DefaultEmbeddingModel is used when neither EMBEDDING_MODEL nor OLLAMA_EMBEDDING is set.
const DefaultEmbeddingModel = "nomic-embed-text"

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the complete ragdocs configuration.
type Config struct {
	Store     StoreConfig     `koanf:"store"`
	Embedding EmbeddingConfig `koanf:"embedding"`
	Log       LogConfig       `koanf:"log"`
	Server    ServerConfig    `koanf:"server"`
	Ingest    IngestConfig    `koanf:"ingest"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

// StoreConfig describes how to reach the vector database.
//
// Host and Port have no defaults. A zero value means "not configured" and
// makes the store connector report the store as unavailable.
type StoreConfig struct {
	Provider   string   `koanf:"provider"`
	Host       string   `koanf:"host"`
	Port       int      `koanf:"port"`
	Tenant     string   `koanf:"tenant"`
	Database   string   `koanf:"database"`
	Path       string   `koanf:"path"`
	APIKey     Secret   `koanf:"api_key"`
	UseTLS     bool     `koanf:"use_tls"`
	VectorSize int      `koanf:"vector_size"`
	Timeout    Duration `koanf:"timeout"`
}

// Configured reports whether both host and port are present.
func (s StoreConfig) Configured() bool {
	return s.Host != "" && s.Port != 0
}

// Address returns host:port.
func (s StoreConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// EmbeddingConfig selects the embedding model.
type EmbeddingConfig struct {
	Provider string   `koanf:"provider"`
	Model    string   `koanf:"model"`
	BaseURL  string   `koanf:"base_url"`
	APIKey   Secret   `koanf:"api_key"`
	Timeout  Duration `koanf:"timeout"`
}

// LogConfig holds the logging knobs exposed through configuration.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// ServerConfig holds MCP and admin HTTP server settings.
type ServerConfig struct {
	Name     string `koanf:"name"`
	Version  string `koanf:"version"`
	HTTPAddr string `koanf:"http_addr"`
}

// IngestConfig holds the defaults offered by the ingestion form and CLI.
type IngestConfig struct {
	ChunkSize    int    `koanf:"chunk_size"`
	ChunkOverlap int    `koanf:"chunk_overlap"`
	Collection   string `koanf:"collection"`
	Description  string `koanf:"description"`
	Source       string `koanf:"source"`
	Language     string `koanf:"language"`
	DocType      string `koanf:"doc_type"`
}

// TelemetryConfig controls OpenTelemetry export.
type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	Endpoint    string `koanf:"endpoint"`
	Protocol    string `koanf:"protocol"`
	ServiceName string `koanf:"service_name"`
	Insecure    bool   `koanf:"insecure"`
}

// Default returns a configuration populated with defaults.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg, func(string) bool { return false })
	return cfg
}

// applyDefaults sets default values for missing configuration fields.
// Numeric fields where zero is meaningful are only defaulted when isSet
// reports the key as absent.
func applyDefaults(cfg *Config, isSet func(key string) bool) {
	if cfg.Store.Provider == "" {
		cfg.Store.Provider = ProviderChroma
	}
	if cfg.Store.Tenant == "" {
		cfg.Store.Tenant = "default_tenant"
	}
	if cfg.Store.Database == "" {
		cfg.Store.Database = "default_database"
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "~/.local/share/ragdocs/vectorstore"
	}
	if cfg.Store.VectorSize == 0 {
		cfg.Store.VectorSize = 768 // nomic-embed-text
	}
	if cfg.Store.Timeout == 0 {
		cfg.Store.Timeout = Duration(30 * time.Second)
	}

	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = EmbeddingOllama
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = DefaultEmbeddingModel
	}
	if cfg.Embedding.BaseURL == "" {
		switch cfg.Embedding.Provider {
		case EmbeddingOpenAI:
			cfg.Embedding.BaseURL = "https://api.openai.com/v1"
		default:
			cfg.Embedding.BaseURL = "http://localhost:11434"
		}
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = Duration(120 * time.Second)
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}

	if cfg.Server.Name == "" {
		cfg.Server.Name = "Chroma DB Document Storage"
	}
	if cfg.Server.Version == "" {
		cfg.Server.Version = "0.1.0"
	}

	if cfg.Ingest.ChunkSize == 0 && !isSet("ingest.chunk_size") {
		cfg.Ingest.ChunkSize = 500
	}
	if !isSet("ingest.chunk_overlap") {
		// A fifth of the chunk size: 100 for the default 500.
		cfg.Ingest.ChunkOverlap = cfg.Ingest.ChunkSize / 5
	}
	if cfg.Ingest.Collection == "" {
		cfg.Ingest.Collection = "khmer_press_release"
	}
	if cfg.Ingest.Description == "" {
		cfg.Ingest.Description = "This is a collection of Khmer press release documents."
	}
	if cfg.Ingest.Source == "" {
		cfg.Ingest.Source = "Khmer Press Release"
	}
	if cfg.Ingest.Language == "" {
		cfg.Ingest.Language = "English"
	}
	if cfg.Ingest.DocType == "" {
		cfg.Ingest.DocType = "PDF"
	}

	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4318"
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "http/protobuf"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "ragdocs"
	}
}

// Validate validates the configuration.
//
// Missing store host or port is not a validation error: it is reported by
// the store connector as an unavailable store.
func (c *Config) Validate() error {
	switch c.Store.Provider {
	case ProviderChroma, ProviderQdrant, ProviderChromem:
	default:
		return fmt.Errorf("%w: unsupported store provider %q (supported: chroma, qdrant, chromem)", ErrInvalidConfig, c.Store.Provider)
	}

	if c.Store.Port < 0 || c.Store.Port > 65535 {
		return fmt.Errorf("%w: invalid store port: %d (must be 1-65535)", ErrInvalidConfig, c.Store.Port)
	}

	if c.Store.VectorSize <= 0 {
		return fmt.Errorf("%w: store vector size must be positive", ErrInvalidConfig)
	}

	switch c.Embedding.Provider {
	case EmbeddingOllama, EmbeddingOpenAI:
	default:
		return fmt.Errorf("%w: unsupported embedding provider %q (supported: ollama, openai)", ErrInvalidConfig, c.Embedding.Provider)
	}

	if c.Ingest.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidConfig, c.Ingest.ChunkSize)
	}
	if c.Ingest.ChunkOverlap < 0 || c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		return fmt.Errorf("%w: chunk overlap must be in [0, %d), got %d", ErrInvalidConfig, c.Ingest.ChunkSize, c.Ingest.ChunkOverlap)
	}

	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		return fmt.Errorf("%w: telemetry endpoint required when telemetry is enabled", ErrInvalidConfig)
	}

	return nil
}
