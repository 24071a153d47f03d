// Package config provides configuration loading for assessd.
//
// Values come from three layers, highest precedence first: environment
// variables, a YAML file, and the defaults returned by Default.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidConfig wraps every validation failure returned by Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the complete assessd configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Data          DataConfig          `koanf:"data"`
	Chunking      ChunkingConfig      `koanf:"chunking"`
	Embeddings    EmbeddingsConfig    `koanf:"embeddings"`
	VectorStore   VectorStoreConfig   `koanf:"vectorstore"`
	Qdrant        QdrantConfig        `koanf:"qdrant"`
	LLM           LLMConfig           `koanf:"llm"`
	Retrieval     RetrievalConfig     `koanf:"retrieval"`
	Scrub         ScrubConfig         `koanf:"scrub"`
	Logging       LoggingConfig       `koanf:"logging"`
	Observability ObservabilityConfig `koanf:"observability"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	// Warmup builds or loads the index before the listener starts.
	Warmup bool `koanf:"warmup"`
}

// DataConfig locates the catalog spreadsheets.
type DataConfig struct {
	Path string `koanf:"path"`
}

// ChunkingConfig controls segment length and overlap, in characters.
type ChunkingConfig struct {
	Size    int `koanf:"size"`
	Overlap int `koanf:"overlap"`
}

// EmbeddingsConfig selects the embedding provider.
type EmbeddingsConfig struct {
	// Provider is one of "fastembed", "tei", "openai" or "langchain".
	Provider string `koanf:"provider"`
	Model    string `koanf:"model"`
	BaseURL  string `koanf:"base_url"`
	APIKey   Secret `koanf:"api_key"`
	CacheDir string `koanf:"cache_dir"`
}

// VectorStoreConfig selects and locates the vector index.
type VectorStoreConfig struct {
	// Provider is "chromem" (embedded, default) or "qdrant".
	Provider   string `koanf:"provider"`
	Path       string `koanf:"path"`
	Collection string `koanf:"collection"`
	Compress   bool   `koanf:"compress"`
}

// QdrantConfig holds connection settings used when VectorStore.Provider is "qdrant".
type QdrantConfig struct {
	Host       string `koanf:"host"`
	Port       int    `koanf:"port"`
	APIKey     Secret `koanf:"api_key"`
	UseTLS     bool   `koanf:"use_tls"`
	VectorSize uint64 `koanf:"vector_size"`
}

// LLMConfig configures the hosted text-generation model.
type LLMConfig struct {
	// Provider is "cohere" (default) or "openai".
	Provider    string   `koanf:"provider"`
	Model       string   `koanf:"model"`
	BaseURL     string   `koanf:"base_url"`
	APIKey      Secret   `koanf:"api_key"`
	Temperature float64  `koanf:"temperature"`
	MaxTokens   int      `koanf:"max_tokens"`
	Timeout     Duration `koanf:"timeout"`
	// RateLimit is requests per second; Burst is the token bucket size.
	RateLimit float64 `koanf:"rate_limit"`
	Burst     int     `koanf:"burst"`
}

// RetrievalConfig controls the similarity search.
type RetrievalConfig struct {
	TopK int `koanf:"top_k"`
}

// ScrubConfig toggles secret scrubbing of user queries.
type ScrubConfig struct {
	Enabled bool `koanf:"enabled"`
}

// LoggingConfig is the subset of logging settings exposed to operators.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// ObservabilityConfig holds OpenTelemetry export settings.
type ObservabilityConfig struct {
	EnableTelemetry bool   `koanf:"enable_telemetry"`
	ServiceName     string `koanf:"service_name"`
	Endpoint        string `koanf:"endpoint"`
	Protocol        string `koanf:"protocol"`
	Insecure        bool   `koanf:"insecure"`
}

// Default returns the configuration used when nothing else is set.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            5000,
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Data: DataConfig{
			Path: "./data",
		},
		Chunking: ChunkingConfig{
			Size:    500,
			Overlap: 50,
		},
		Embeddings: EmbeddingsConfig{
			Provider: "fastembed",
			Model:    "sentence-transformers/all-MiniLM-L6-v2",
			CacheDir: "./local_cache",
		},
		VectorStore: VectorStoreConfig{
			Provider:   "chromem",
			Path:       "./vectorstore/db_chromem",
			Collection: "assessments",
			Compress:   true,
		},
		Qdrant: QdrantConfig{
			Host:       "localhost",
			Port:       6334,
			VectorSize: 384,
		},
		LLM: LLMConfig{
			Provider:    "cohere",
			Model:       "command-a-03-2025",
			Temperature: 0.3,
			MaxTokens:   256,
			Timeout:     Duration(60 * time.Second),
			RateLimit:   2,
			Burst:       1,
		},
		Retrieval: RetrievalConfig{
			TopK: 5,
		},
		Scrub: ScrubConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Observability: ObservabilityConfig{
			ServiceName: "assessd",
			Endpoint:    "localhost:4317",
			Protocol:    "grpc",
			Insecure:    true,
		},
	}
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		add("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if strings.TrimSpace(c.Data.Path) == "" {
		add("data.path is required")
	}
	if c.Chunking.Size <= 0 {
		add("chunking.size must be positive, got %d", c.Chunking.Size)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		add("chunking.overlap must be in [0, size), got %d", c.Chunking.Overlap)
	}
	switch c.Embeddings.Provider {
	case "fastembed", "openai":
	case "tei", "langchain":
		if c.Embeddings.BaseURL == "" {
			add("embeddings.base_url is required for %s", c.Embeddings.Provider)
		}
	default:
		add("embeddings.provider must be fastembed, tei, openai or langchain, got %q", c.Embeddings.Provider)
	}
	switch c.VectorStore.Provider {
	case "chromem":
		if c.VectorStore.Path == "" {
			add("vectorstore.path is required for chromem")
		}
	case "qdrant":
		if c.Qdrant.Host == "" {
			add("qdrant.host is required")
		}
	default:
		add("vectorstore.provider must be chromem or qdrant, got %q", c.VectorStore.Provider)
	}
	if c.VectorStore.Collection == "" {
		add("vectorstore.collection is required")
	}
	switch c.LLM.Provider {
	case "cohere", "openai":
	default:
		add("llm.provider must be cohere or openai, got %q", c.LLM.Provider)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		add("llm.temperature must be between 0 and 2, got %v", c.LLM.Temperature)
	}
	if c.LLM.MaxTokens <= 0 {
		add("llm.max_tokens must be positive, got %d", c.LLM.MaxTokens)
	}
	if c.Retrieval.TopK <= 0 {
		add("retrieval.top_k must be positive, got %d", c.Retrieval.TopK)
	}
	return errors.Join(errs...)
}
