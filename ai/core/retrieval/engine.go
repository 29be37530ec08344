// Package retrieval answers vector, lexical and hybrid queries over the
// indexed records and degrades to lexical matching when no vector can be used.
package retrieval

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hrygo/recruitsense/ai/core/embedding"
	"github.com/hrygo/recruitsense/ai/internal/strutil"
	"github.com/hrygo/recruitsense/internal/errs"
	"github.com/hrygo/recruitsense/store"
)

const (
	// MaxQueryLength is the longest accepted query, in characters.
	MaxQueryLength = 1000
	// DefaultLimit applies when a query leaves Limit at zero.
	DefaultLimit = 10
	// MaxLimit bounds the number of results of a single query.
	MaxLimit = 100
	// DefaultVectorWeight is the share of the vector score in a hybrid score.
	DefaultVectorWeight = 0.7

	// hybrid queries fetch this many candidates per method for each result slot.
	candidateFactor   = 3
	minCandidateLimit = 50
)

// Mode selects the ranking path of a query.
type Mode string

const (
	ModeVector  Mode = "vector"
	ModeLexical Mode = "lexical"
	ModeHybrid  Mode = "hybrid"
)

// ParseMode validates s. An empty string selects hybrid.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeHybrid:
		return ModeHybrid, nil
	case ModeVector:
		return ModeVector, nil
	case ModeLexical:
		return ModeLexical, nil
	default:
		return "", errs.InvalidInput("unknown search mode %q", s)
	}
}

// Query is a single search request.
type Query struct {
	Text    string
	Entity  store.EntityType
	Limit   int
	Mode    Mode
	Filters store.SearchFilters
	// VectorWeight overrides the engine weight for hybrid queries.
	VectorWeight *float64
}

// Result is one ranked record.
type Result struct {
	ID           string           `json:"id"`
	Entity       store.EntityType `json:"entity"`
	Record       store.Record     `json:"record"`
	SearchText   string           `json:"search_text"`
	Score        float32          `json:"score"`
	VectorScore  float32          `json:"vector_score"`
	LexicalScore float32          `json:"lexical_score"`
}

// Response carries the ranked results and how they were produced.
type Response struct {
	RequestID string    `json:"request_id"`
	Results   []*Result `json:"results"`
	Mode      Mode      `json:"mode"`
	// Fallback is set when the results come from the unranked lexical path.
	Fallback bool `json:"fallback"`
}

// SearchStore is the slice of *store.Store the engine needs.
type SearchStore interface {
	HasEmbeddings(ctx context.Context, entity store.EntityType) (bool, error)
	VectorSearch(ctx context.Context, opts *store.VectorSearchOptions) ([]*store.ScoredRecord, error)
	LexicalSearch(ctx context.Context, opts *store.LexicalSearchOptions) ([]*store.ScoredRecord, error)
	HybridSearch(ctx context.Context, opts *store.HybridSearchOptions) ([]*store.HybridCandidate, error)
}

// Metrics receives one observation per completed search.
type Metrics interface {
	RecordSearch(entity, mode string, fallback bool, latency time.Duration)
}

// Option configures an Engine.
type Option func(*Engine)

// WithVectorWeight sets the default hybrid vector weight, clamped to [0, 1].
func WithVectorWeight(w float64) Option {
	return func(e *Engine) { e.vectorWeight = clamp(w) }
}

// WithMetrics records search latency and fallbacks.
func WithMetrics(m Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger replaces the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// Engine executes search queries.
type Engine struct {
	store        SearchStore
	embedder     embedding.Service
	vectorWeight float64
	metrics      Metrics
	logger       *slog.Logger
}

// NewEngine creates an Engine.
func NewEngine(st SearchStore, embedder embedding.Service, opts ...Option) *Engine {
	e := &Engine{
		store:        st,
		embedder:     embedder,
		vectorWeight: DefaultVectorWeight,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Search runs q. Invalid queries fail with ErrInvalidInput before any I/O.
// An unavailable provider, or an entity without any embedding, yields
// recency-ordered lexical matches with Response.Fallback set.
func (e *Engine) Search(ctx context.Context, q *Query) (*Response, error) {
	start := time.Now()
	if err := normalize(q); err != nil {
		return nil, err
	}

	requestID := uuid.NewString()
	logger := e.logger.With("request_id", requestID, "entity", q.Entity, "mode", q.Mode)

	resp, err := e.search(ctx, q, logger)
	if err != nil {
		logger.ErrorContext(ctx, "Search failed", "error", err)
		return nil, err
	}
	resp.RequestID = requestID

	latency := time.Since(start)
	if e.metrics != nil {
		e.metrics.RecordSearch(string(q.Entity), string(resp.Mode), resp.Fallback, latency)
	}
	logger.InfoContext(ctx, "Search completed",
		"query", strutil.Preview(q.Text, 64),
		"result_count", len(resp.Results),
		"fallback", resp.Fallback,
		"latency_ms", latency.Milliseconds(),
	)
	return resp, nil
}

func (e *Engine) search(ctx context.Context, q *Query, logger *slog.Logger) (*Response, error) {
	if q.Mode == ModeLexical {
		return e.lexical(ctx, q, true)
	}

	has, err := e.store.HasEmbeddings(ctx, q.Entity)
	if err != nil {
		return nil, err
	}
	if !has {
		logger.InfoContext(ctx, "No embeddings indexed, using lexical fallback")
		return e.lexical(ctx, q, false)
	}

	emb, err := e.embedder.Embed(ctx, q.Text)
	if err != nil {
		if errors.Is(err, errs.ErrProviderUnavailable) {
			logger.WarnContext(ctx, "Embedding provider unavailable, using lexical fallback", "error", err)
			return e.lexical(ctx, q, false)
		}
		return nil, err
	}

	if q.Mode == ModeVector {
		return e.vector(ctx, q, emb.Vector)
	}
	return e.hybrid(ctx, q, emb.Vector)
}

func (e *Engine) vector(ctx context.Context, q *Query, vec []float32) (*Response, error) {
	hits, err := e.store.VectorSearch(ctx, &store.VectorSearchOptions{
		Entity:  q.Entity,
		Vector:  vec,
		Limit:   q.Limit,
		Filters: q.Filters,
	})
	if err != nil {
		return nil, err
	}
	results := make([]*Result, 0, len(hits))
	for _, h := range hits {
		r := newResult(h.Record, h.SearchText)
		r.Score, r.VectorScore = h.Score, h.Score
		results = append(results, r)
	}
	return &Response{Results: results, Mode: ModeVector}, nil
}

// lexical matches the query terms. Ranked results are scored by the store's
// text rank, unranked ones are the recency-ordered fallback with zero score.
func (e *Engine) lexical(ctx context.Context, q *Query, ranked bool) (*Response, error) {
	resp := &Response{Results: []*Result{}, Mode: ModeLexical, Fallback: !ranked}
	terms := store.Tokenize(q.Text)
	if len(terms) == 0 {
		return resp, nil
	}

	hits, err := e.store.LexicalSearch(ctx, &store.LexicalSearchOptions{
		Entity:  q.Entity,
		Terms:   terms,
		Limit:   q.Limit,
		Ranked:  ranked,
		Filters: q.Filters,
	})
	if err != nil {
		return nil, err
	}
	for _, h := range hits {
		r := newResult(h.Record, h.SearchText)
		r.Score, r.LexicalScore = h.Score, h.Score
		resp.Results = append(resp.Results, r)
	}
	return resp, nil
}

func (e *Engine) hybrid(ctx context.Context, q *Query, vec []float32) (*Response, error) {
	terms := store.Tokenize(q.Text)
	if len(terms) == 0 {
		return e.vector(ctx, q, vec)
	}

	candidates, err := e.store.HybridSearch(ctx, &store.HybridSearchOptions{
		Entity:         q.Entity,
		Vector:         vec,
		Terms:          terms,
		CandidateLimit: candidateLimit(q.Limit),
		Filters:        q.Filters,
	})
	if err != nil {
		return nil, err
	}

	weight := e.vectorWeight
	if q.VectorWeight != nil {
		weight = clamp(*q.VectorWeight)
	}
	return &Response{Results: fuse(candidates, weight, q.Limit), Mode: ModeHybrid}, nil
}

// fuse normalizes both scores to [0, 1], combines them with weight, keeps the
// best score per record and returns the top limit results.
func fuse(candidates []*store.HybridCandidate, weight float64, limit int) []*Result {
	var maxLexical float32
	for _, c := range candidates {
		if c.LexicalScore > maxLexical {
			maxLexical = c.LexicalScore
		}
	}

	best := make(map[string]*Result, len(candidates))
	for _, c := range candidates {
		var v, l float32
		if c.HasVector {
			v = float32(clamp(float64(c.VectorScore)))
		}
		if maxLexical > 0 {
			l = c.LexicalScore / maxLexical
		}
		r := newResult(c.Record, c.SearchText)
		r.VectorScore, r.LexicalScore = v, l
		r.Score = float32(weight)*v + float32(1-weight)*l

		if prev, ok := best[r.ID]; ok && prev.Score >= r.Score {
			continue
		}
		best[r.ID] = r
	}

	results := make([]*Result, 0, len(best))
	for _, r := range best {
		results = append(results, r)
	}
	sortResults(results)
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

// sortResults orders by score, then most recent update, then id.
func sortResults(results []*Result) {
	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		ua, ub := a.Record.LastUpdated(), b.Record.LastUpdated()
		if !ua.Equal(ub) {
			return ua.After(ub)
		}
		return a.ID < b.ID
	})
}

func newResult(rec store.Record, searchText string) *Result {
	return &Result{
		ID:         rec.RecordID(),
		Entity:     rec.Entity(),
		Record:     rec,
		SearchText: searchText,
	}
}

func normalize(q *Query) error {
	if q == nil {
		return errs.InvalidInput("query is required")
	}
	if strings.TrimSpace(q.Text) == "" {
		return errs.InvalidInput("query text is empty")
	}
	if n := utf8.RuneCountInString(q.Text); n > MaxQueryLength {
		return errs.InvalidInput("query too long: %d characters (max %d)", n, MaxQueryLength)
	}
	if !q.Entity.Valid() {
		return errs.InvalidInput("unknown entity %q", q.Entity)
	}
	switch {
	case q.Limit < 0:
		return errs.InvalidInput("limit cannot be negative: %d", q.Limit)
	case q.Limit == 0:
		q.Limit = DefaultLimit
	case q.Limit > MaxLimit:
		return errs.InvalidInput("limit too large: %d (max %d)", q.Limit, MaxLimit)
	}
	mode, err := ParseMode(string(q.Mode))
	if err != nil {
		return err
	}
	q.Mode = mode
	return nil
}

func candidateLimit(limit int) int {
	n := limit * candidateFactor
	if n < minCandidateLimit {
		n = minCandidateLimit
	}
	if n > store.MaxSearchLimit {
		n = store.MaxSearchLimit
	}
	return n
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
