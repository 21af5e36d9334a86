// Package config provides configuration loading for braind.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the top-level braind configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Database   DatabaseConfig   `koanf:"database"`
	GitHub     GitHubConfig     `koanf:"github"`
	Embeddings EmbeddingsConfig `koanf:"embeddings"`
	Indexing   IndexingConfig   `koanf:"indexing"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// DatabaseConfig holds Postgres connection configuration.
type DatabaseConfig struct {
	// URL is the Postgres connection string (postgres://...).
	URL Secret `koanf:"url"`
}

// GitHubConfig holds GitHub API access configuration.
type GitHubConfig struct {
	// Token is the personal access token used by the tree lister.
	Token Secret `koanf:"token"`
	// Timeout applies to each outbound GitHub API call.
	Timeout Duration `koanf:"timeout"`
}

// EmbeddingsConfig holds embedding provider configuration.
type EmbeddingsConfig struct {
	// Provider is the provider type: "fastembed" (default).
	Provider string `koanf:"provider"`
	// Model is the embedding model name.
	Model string `koanf:"model"`
	// CacheDir is the model cache directory.
	CacheDir string `koanf:"cache_dir"`
	// Dimension is the process-wide embedding dimension D. Every stored and
	// queried vector must have exactly this length.
	Dimension int `koanf:"dimension"`
}

// IndexingConfig holds chunking and indexing-run configuration.
type IndexingConfig struct {
	// ChunkMaxChars is the soft chunk size ceiling in characters.
	ChunkMaxChars int `koanf:"chunk_max_chars"`
	// ChunkOverlapChars is the trailing context carried into the next chunk.
	ChunkOverlapChars int `koanf:"chunk_overlap_chars"`
	// MaxBlobBytes caps the size of a blob fetched for indexing.
	MaxBlobBytes int `koanf:"max_blob_bytes"`
	// SkipExtensions is the comma-separated set of file extensions that are
	// never indexed (binaries, images, archives).
	SkipExtensions string `koanf:"skip_extensions"`
	// StreamDefaultLimit and StreamMaxLimit bound the per-run file limit for
	// streaming runs.
	StreamDefaultLimit int `koanf:"stream_default_limit"`
	StreamMaxLimit     int `koanf:"stream_max_limit"`
	// BatchDefaultLimit and BatchMaxLimit bound the per-run file limit for
	// batch runs.
	BatchDefaultLimit int `koanf:"batch_default_limit"`
	BatchMaxLimit     int `koanf:"batch_max_limit"`
}

// LoggingConfig holds logger configuration.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// defaultSkipExtensions covers common binaries and large/low-value assets.
const defaultSkipExtensions = ".png,.jpg,.jpeg,.gif,.pdf,.zip,.tar,.gz,.7z,.exe,.dll,.so,.dylib,.bin,.ico,.svg"

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8090
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	if cfg.GitHub.Timeout == 0 {
		cfg.GitHub.Timeout = Duration(20 * time.Second)
	}

	if cfg.Embeddings.Provider == "" {
		cfg.Embeddings.Provider = "fastembed"
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "BAAI/bge-small-en-v1.5"
	}
	if cfg.Embeddings.Dimension == 0 {
		cfg.Embeddings.Dimension = 384 // bge-small-en-v1.5 dimensions
	}

	if cfg.Indexing.ChunkMaxChars == 0 {
		cfg.Indexing.ChunkMaxChars = 2000
	}
	if cfg.Indexing.ChunkOverlapChars == 0 {
		cfg.Indexing.ChunkOverlapChars = 200
	}
	if cfg.Indexing.MaxBlobBytes == 0 {
		cfg.Indexing.MaxBlobBytes = 512 * 1024
	}
	if cfg.Indexing.SkipExtensions == "" {
		cfg.Indexing.SkipExtensions = defaultSkipExtensions
	}
	if cfg.Indexing.StreamDefaultLimit == 0 {
		cfg.Indexing.StreamDefaultLimit = 50
	}
	if cfg.Indexing.StreamMaxLimit == 0 {
		cfg.Indexing.StreamMaxLimit = 1000
	}
	if cfg.Indexing.BatchDefaultLimit == 0 {
		cfg.Indexing.BatchDefaultLimit = 1000
	}
	if cfg.Indexing.BatchMaxLimit == 0 {
		cfg.Indexing.BatchMaxLimit = 5000
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Validate checks the configuration for startup-fatal errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be 1-65535, got %d", c.Server.Port)
	}
	if !c.Database.URL.IsSet() {
		return fmt.Errorf("database url is required")
	}
	if c.Embeddings.Dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive, got %d", c.Embeddings.Dimension)
	}
	if c.Indexing.ChunkMaxChars <= 0 {
		return fmt.Errorf("chunk_max_chars must be positive, got %d", c.Indexing.ChunkMaxChars)
	}
	if c.Indexing.ChunkOverlapChars <= 0 {
		return fmt.Errorf("chunk_overlap_chars must be positive, got %d", c.Indexing.ChunkOverlapChars)
	}
	if c.Indexing.ChunkOverlapChars >= c.Indexing.ChunkMaxChars {
		return fmt.Errorf("chunk_overlap_chars (%d) must be smaller than chunk_max_chars (%d)",
			c.Indexing.ChunkOverlapChars, c.Indexing.ChunkMaxChars)
	}
	if c.Indexing.MaxBlobBytes <= 0 {
		return fmt.Errorf("max_blob_bytes must be positive, got %d", c.Indexing.MaxBlobBytes)
	}
	if c.Indexing.StreamMaxLimit < c.Indexing.StreamDefaultLimit {
		return fmt.Errorf("stream_max_limit (%d) below stream_default_limit (%d)",
			c.Indexing.StreamMaxLimit, c.Indexing.StreamDefaultLimit)
	}
	if c.Indexing.BatchMaxLimit < c.Indexing.BatchDefaultLimit {
		return fmt.Errorf("batch_max_limit (%d) below batch_default_limit (%d)",
			c.Indexing.BatchMaxLimit, c.Indexing.BatchDefaultLimit)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging format must be 'json' or 'console', got %q", c.Logging.Format)
	}
	return nil
}

// SkipExtensionSet parses SkipExtensions into a lookup set of lowercased
// extensions (".png", ".zip", ...).
func (c *IndexingConfig) SkipExtensionSet() map[string]bool {
	set := make(map[string]bool)
	for _, ext := range strings.Split(c.SkipExtensions, ",") {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		set[ext] = true
	}
	return set
}
