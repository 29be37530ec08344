package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/hrygo/recruitsense/internal/errs"
	"github.com/hrygo/recruitsense/internal/profile"
)

// Config holds the embedding provider configuration.
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int
	Timeout    time.Duration
	// RequestsPerSecond limits provider calls; zero disables limiting.
	RequestsPerSecond float64
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:    "https://api.openai.com/v1",
		Model:      "text-embedding-3-small",
		Dimensions: 1536,
		Timeout:    30 * time.Second,
	}
}

// ConfigFromProfile maps the instance profile onto a provider config.
func ConfigFromProfile(p *profile.Profile) *Config {
	return &Config{
		BaseURL:           p.EmbeddingBaseURL,
		APIKey:            p.EmbeddingAPIKey,
		Model:             p.EmbeddingModel,
		Dimensions:        p.EmbeddingDimensions,
		Timeout:           p.EmbeddingTimeout,
		RequestsPerSecond: p.EmbeddingRPS,
	}
}

// Provider calls an OpenAI-compatible /embeddings endpoint.
type Provider struct {
	config  *Config
	client  *openai.Client
	limiter *rate.Limiter
	metrics Metrics
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithProviderMetrics records call latency and failures.
func WithProviderMetrics(m Metrics) ProviderOption {
	return func(p *Provider) {
		p.metrics = m
	}
}

// NewProvider creates a new Provider. A nil config uses DefaultConfig and zero
// values are filled with defaults.
func NewProvider(cfg *Config, opts ...ProviderOption) (*Provider, error) {
	defaults := DefaultConfig()
	if cfg == nil {
		cfg = defaults
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaults.Model
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = defaults.Dimensions
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}

	// Generic configuration for any OpenAI-compatible provider
	// Includes siliconflow, openai, ollama, dashscope, etc.
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = cfg.BaseURL
	clientConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	p := &Provider{
		config: cfg,
		client: openai.NewClientWithConfig(clientConfig),
	}
	if cfg.RequestsPerSecond > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), max(1, int(cfg.RequestsPerSecond)))
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// NewProviderFromEnv creates a provider from RECRUITSENSE_EMBEDDING_* variables.
func NewProviderFromEnv() (*Provider, error) {
	dims, _ := strconv.Atoi(getEnv("RECRUITSENSE_EMBEDDING_DIMENSIONS", "0"))
	return NewProvider(&Config{
		BaseURL:    getEnv("RECRUITSENSE_EMBEDDING_BASE_URL", ""),
		APIKey:     getEnv("RECRUITSENSE_EMBEDDING_API_KEY", ""),
		Model:      getEnv("RECRUITSENSE_EMBEDDING_MODEL", ""),
		Dimensions: dims,
	})
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Model returns the embedding model identifier.
func (p *Provider) Model() string {
	return p.config.Model
}

// Dimensions returns the configured vector dimension.
func (p *Provider) Dimensions() int {
	return p.config.Dimensions
}

// Validate checks that the provider can be called. Local endpoints do not
// need an API key.
func (p *Provider) Validate(ctx context.Context) error {
	if p.config.APIKey == "" && !isLocal(p.config.BaseURL) {
		return errors.New("API key is required")
	}
	return nil
}

func isLocal(baseURL string) bool {
	return strings.Contains(baseURL, "localhost") || strings.Contains(baseURL, "127.0.0.1")
}

// Embed generates the vector for a single text.
func (p *Provider) Embed(ctx context.Context, text string) (*Embedding, error) {
	if err := checkText(text); err != nil {
		return nil, err
	}

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, errs.ProviderUnavailable(err, "embedding rate limiter")
		}
	}

	start := time.Now()
	vector, err := p.create(ctx, text)
	if p.metrics != nil {
		p.metrics.RecordEmbedding(p.config.Model, time.Since(start), errorType(err))
	}
	if err != nil {
		return nil, err
	}
	return &Embedding{Vector: vector, Model: p.config.Model}, nil
}

func (p *Provider) create(ctx context.Context, text string) ([]float32, error) {
	req := openai.EmbeddingRequest{
		Input:      []string{text},
		Model:      openai.EmbeddingModel(p.config.Model),
		Dimensions: p.config.Dimensions,
	}

	resp, err := p.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, errs.ProviderUnavailable(err, describe(err))
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, errs.ProviderUnavailable(nil, "empty embedding response")
	}

	vector := resp.Data[0].Embedding
	if len(vector) != p.config.Dimensions {
		return nil, errs.ProviderUnavailable(nil, fmt.Sprintf("embedding dimension mismatch: got %d, want %d", len(vector), p.config.Dimensions))
	}
	return vector, nil
}

// describe labels a provider error by its HTTP status when one is present.
func describe(err error) string {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return "embedding provider rejected credentials"
		case http.StatusTooManyRequests:
			return "embedding provider rate limited"
		default:
			return fmt.Sprintf("embedding provider returned status %d", apiErr.HTTPStatusCode)
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Sprintf("embedding provider returned status %d", reqErr.HTTPStatusCode)
	}
	return "embedding provider request failed"
}

func errorType(err error) string {
	if err == nil {
		return ""
	}
	return errs.Kind(err)
}
