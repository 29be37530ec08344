package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Profile is configuration to start the indexer, listener and search server.
type Profile struct {
	// Embedding configuration (OpenAI-compatible protocol)
	EmbeddingProvider   string // openai, siliconflow, dashscope, ollama
	EmbeddingModel      string
	EmbeddingAPIKey     string
	EmbeddingBaseURL    string
	EmbeddingDimensions int
	EmbeddingCacheSize  int     // bounded LRU entries
	EmbeddingRPS        float64 // client-side rate limit, 0 disables
	EmbeddingTimeout    time.Duration

	// Chunking
	ChunkSize    int
	ChunkOverlap int

	// Reindex orchestration
	Debounce       time.Duration
	Workers        int
	ReindexRetries int // reserved; passes are never retried

	// Search
	VectorWeight float64

	// Document extraction (Apache Tika)
	TextExtractEnabled bool
	TikaServerURL      string

	// Server and storage
	Mode     string
	Addr     string
	Port     int
	Data     string
	Driver   string
	DSN      string
	LogLevel string
	Version  string
}

// Provider default configurations for embeddings.
// Used when the base URL or model is not explicitly set.
var embeddingProviderDefaults = map[string]struct {
	BaseURL    string
	Model      string
	Dimensions int
}{
	"openai": {
		BaseURL:    "https://api.openai.com/v1",
		Model:      "text-embedding-3-small",
		Dimensions: 1536,
	},
	"siliconflow": {
		BaseURL:    "https://api.siliconflow.cn/v1",
		Model:      "BAAI/bge-m3",
		Dimensions: 1024,
	},
	"dashscope": {
		BaseURL:    "https://dashscope.aliyuncs.com/compatible-mode/v1",
		Model:      "text-embedding-v3",
		Dimensions: 1024,
	},
	"ollama": {
		BaseURL:    "http://localhost:11434/v1",
		Model:      "nomic-embed-text",
		Dimensions: 768,
	},
}

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
	DefaultDebounce     = time.Second
	DefaultWorkers      = 3
	DefaultVectorWeight = 0.7
	DefaultCacheSize    = 10000
)

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsEmbeddingEnabled returns true if an embedding API key is configured or the
// provider needs none.
func (p *Profile) IsEmbeddingEnabled() bool {
	return p.EmbeddingAPIKey != "" || p.EmbeddingProvider == "ollama"
}

// getEnvOrDefault returns environment variable value or default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrDefaultInt returns environment variable value as int or default value.
func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvOrDefaultFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvOrDefaultDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// FromEnv loads configuration from environment variables. Values already set
// on the profile (from flags) win over the environment.
func (p *Profile) FromEnv() {
	p.EmbeddingProvider = firstNonEmpty(p.EmbeddingProvider, getEnvOrDefault("RECRUITSENSE_EMBEDDING_PROVIDER", "openai"))
	p.EmbeddingModel = firstNonEmpty(p.EmbeddingModel, getEnvOrDefault("RECRUITSENSE_EMBEDDING_MODEL", ""))
	p.EmbeddingAPIKey = firstNonEmpty(p.EmbeddingAPIKey, getEnvOrDefault("RECRUITSENSE_EMBEDDING_API_KEY", ""))
	p.EmbeddingBaseURL = firstNonEmpty(p.EmbeddingBaseURL, getEnvOrDefault("RECRUITSENSE_EMBEDDING_BASE_URL", ""))
	if p.EmbeddingDimensions == 0 {
		p.EmbeddingDimensions = getEnvOrDefaultInt("RECRUITSENSE_EMBEDDING_DIMENSIONS", 0)
	}
	if p.EmbeddingCacheSize == 0 {
		p.EmbeddingCacheSize = getEnvOrDefaultInt("RECRUITSENSE_EMBEDDING_CACHE_SIZE", DefaultCacheSize)
	}
	if p.EmbeddingRPS == 0 {
		p.EmbeddingRPS = getEnvOrDefaultFloat("RECRUITSENSE_EMBEDDING_RPS", 0)
	}
	if p.EmbeddingTimeout == 0 {
		p.EmbeddingTimeout = getEnvOrDefaultDuration("RECRUITSENSE_EMBEDDING_TIMEOUT", 30*time.Second)
	}

	// Validate and apply provider defaults if not explicitly set
	defaults, ok := embeddingProviderDefaults[p.EmbeddingProvider]
	if !ok {
		slog.Warn("Unknown embedding provider, using default: openai", "provider", p.EmbeddingProvider)
		p.EmbeddingProvider = "openai"
		defaults = embeddingProviderDefaults["openai"]
	}
	if p.EmbeddingBaseURL == "" {
		p.EmbeddingBaseURL = defaults.BaseURL
	}
	if p.EmbeddingModel == "" {
		p.EmbeddingModel = defaults.Model
	}
	if p.EmbeddingDimensions == 0 {
		p.EmbeddingDimensions = defaults.Dimensions
	}

	if p.ChunkSize == 0 {
		p.ChunkSize = getEnvOrDefaultInt("RECRUITSENSE_CHUNK_SIZE", DefaultChunkSize)
	}
	if p.ChunkOverlap == 0 {
		p.ChunkOverlap = getEnvOrDefaultInt("RECRUITSENSE_CHUNK_OVERLAP", DefaultChunkOverlap)
	}
	if p.Debounce == 0 {
		p.Debounce = getEnvOrDefaultDuration("RECRUITSENSE_REINDEX_DEBOUNCE", DefaultDebounce)
	}
	if p.Workers == 0 {
		p.Workers = getEnvOrDefaultInt("RECRUITSENSE_REINDEX_WORKERS", DefaultWorkers)
	}
	if p.VectorWeight == 0 {
		p.VectorWeight = getEnvOrDefaultFloat("RECRUITSENSE_SEARCH_VECTOR_WEIGHT", DefaultVectorWeight)
	}

	// Document extraction configuration
	p.TextExtractEnabled = p.TextExtractEnabled || getEnvOrDefault("RECRUITSENSE_TEXTEXTRACT_ENABLED", "false") == "true"
	p.TikaServerURL = firstNonEmpty(p.TikaServerURL, getEnvOrDefault("RECRUITSENSE_TEXTEXTRACT_TIKA_URL", "http://localhost:9998"))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		absDir, err := filepath.Abs(dataDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

// Validate normalizes the profile and rejects invalid combinations.
func (p *Profile) Validate() error {
	if p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "dev"
	}
	if p.ChunkSize <= 0 {
		return errors.Errorf("chunk size must be positive: %d", p.ChunkSize)
	}
	if p.ChunkOverlap < 0 || p.ChunkOverlap >= p.ChunkSize {
		return errors.Errorf("chunk overlap must be in [0, %d): %d", p.ChunkSize, p.ChunkOverlap)
	}
	if p.VectorWeight < 0 || p.VectorWeight > 1 {
		return errors.Errorf("vector weight must be in [0, 1]: %v", p.VectorWeight)
	}
	if p.Workers <= 0 {
		p.Workers = DefaultWorkers
	}
	if p.Debounce <= 0 {
		p.Debounce = DefaultDebounce
	}
	if p.EmbeddingDimensions <= 0 {
		return errors.Errorf("embedding dimensions must be positive: %d", p.EmbeddingDimensions)
	}
	if p.ReindexRetries > 0 {
		slog.Warn("reindex retries are not supported, failed passes are surfaced only", "retries", p.ReindexRetries)
	}

	switch p.Driver {
	case "postgres":
		if p.DSN == "" {
			return errors.New("dsn required for postgres driver")
		}
	case "sqlite":
		if p.DSN == "" {
			if p.Data == "" {
				p.Data = "."
			}
			dataDir, err := checkDataDir(p.Data)
			if err != nil {
				slog.Error("failed to check data dir", slog.String("data", p.Data), slog.String("error", err.Error()))
				return err
			}
			p.Data = dataDir
			p.DSN = filepath.Join(dataDir, fmt.Sprintf("recruitsense_%s.db", p.Mode))
		}
	default:
		return errors.Errorf("unsupported driver: %q", p.Driver)
	}

	return nil
}
