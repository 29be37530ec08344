// Package embedding turns text into vectors through an OpenAI-compatible
// provider, with a bounded memoization layer in front of it.
package embedding

import (
	"context"
	"strings"
	"time"

	"github.com/hrygo/recruitsense/internal/errs"
)

// Embedding is a vector together with the model that produced it.
type Embedding struct {
	Vector []float32
	Model  string
}

// Service generates embeddings for single texts.
type Service interface {
	// Embed returns the embedding of text. Whitespace-only text is rejected
	// with errs.ErrInvalidInput; provider failures wrap errs.ErrProviderUnavailable.
	Embed(ctx context.Context, text string) (*Embedding, error)

	// Model returns the model identifier.
	Model() string

	// Dimensions returns the vector dimension.
	Dimensions() int
}

// Metrics receives embedding observations. *metrics.PrometheusExporter
// implements it.
type Metrics interface {
	RecordEmbedding(model string, latency time.Duration, errorType string)
	RecordCacheHit(cacheType string)
	RecordCacheMiss(cacheType string)
}

func checkText(text string) error {
	if strings.TrimSpace(text) == "" {
		return errs.InvalidInput("cannot embed empty text")
	}
	return nil
}
