package reindex

import (
	"context"
	"errors"
	"log/slog"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/hrygo/recruitsense/ai/chunk"
	"github.com/hrygo/recruitsense/ai/extract"
	"github.com/hrygo/recruitsense/ai/internal/strutil"
	"github.com/hrygo/recruitsense/ai/projector"
	"github.com/hrygo/recruitsense/internal/errs"
	"github.com/hrygo/recruitsense/store"
)

// ErrRecordNotFound is returned when the record to reindex no longer exists.
var ErrRecordNotFound = errors.New("record not found")

// RecordStore is the slice of *store.Store the pipeline reads from.
type RecordStore interface {
	GetRecord(ctx context.Context, entity store.EntityType, id string) (store.Record, error)
	ListRecordIDs(ctx context.Context, find *store.FindRecordIDs) ([]string, error)
}

// IndexWriter persists a record's search projection.
type IndexWriter interface {
	WriteSegment(ctx context.Context, rec store.Record, searchText, segment string) error
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithExtractor enables document text extraction. A nil extractor disables it.
func WithExtractor(e extract.Extractor) PipelineOption {
	return func(p *Pipeline) { p.extractor = e }
}

// WithChunking sets the chunk size and overlap used to pick the embedded segment.
func WithChunking(size, overlap int) PipelineOption {
	return func(p *Pipeline) { p.chunkSize, p.chunkOverlap = size, overlap }
}

// WithBatchConcurrency bounds how many records a batch reindexes at once.
func WithBatchConcurrency(n int) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.batchConcurrency = n
		}
	}
}

// WithPipelineLogger replaces the default logger.
func WithPipelineLogger(l *slog.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = l }
}

// Pipeline runs one reindex pass: fetch, enrich, project, chunk, write.
type Pipeline struct {
	store            RecordStore
	writer           IndexWriter
	extractor        extract.Extractor
	chunkSize        int
	chunkOverlap     int
	batchConcurrency int
	logger           *slog.Logger
}

// NewPipeline creates a Pipeline.
func NewPipeline(st RecordStore, writer IndexWriter, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		store:            st,
		writer:           writer,
		chunkSize:        chunk.DefaultChunkSize,
		chunkOverlap:     chunk.DefaultChunkOverlap,
		batchConcurrency: DefaultWorkers,
		logger:           slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ReindexEvent reindexes the record an orchestrated event refers to.
func (p *Pipeline) ReindexEvent(ctx context.Context, e *Event) error {
	return p.ReindexRecord(ctx, e.Entity, e.RecordID, e.Trigger)
}

// ReindexRecord fetches the current record and reindexes it.
func (p *Pipeline) ReindexRecord(ctx context.Context, entity store.EntityType, id string, trigger Trigger) error {
	rec, err := p.store.GetRecord(ctx, entity, id)
	if err != nil {
		return err
	}
	if rec == nil {
		return pkgerrors.Wrapf(ErrRecordNotFound, "%s %s", entity, id)
	}
	return p.Reindex(ctx, rec, trigger)
}

// Reindex projects rec, embeds its primary segment and writes the entry.
// The persisted search text is always the full projection; the embedding is
// computed from the whole text when it fits one chunk, otherwise from the
// first chunk.
func (p *Pipeline) Reindex(ctx context.Context, rec store.Record, trigger Trigger) error {
	start := time.Now()
	extras := p.enrich(ctx, rec, trigger)

	searchText := projector.Project(rec, extras...)
	segment := searchText
	chunks := chunk.Chunk(searchText, p.chunkSize, p.chunkOverlap)
	if len(chunks) > 1 {
		segment = chunks[0].Text
	}

	if err := p.writer.WriteSegment(ctx, rec, searchText, segment); err != nil {
		return err
	}

	p.logger.DebugContext(ctx, "record reindexed",
		"entity", rec.Entity(),
		"record_id", rec.RecordID(),
		"trigger", trigger,
		"enriched", len(extras),
		"chunks", len(chunks),
		"segment", strutil.Preview(segment, 80),
		"latency_ms", time.Since(start).Milliseconds())
	return nil
}

// fileSource is an externally stored file referenced by a record.
type fileSource struct {
	kind projector.ExtractedKind
	url  string
}

// fileSources lists the files rec currently references. Every pass extracts
// all of them so the projection depends on the record alone, not on which
// field changed.
func fileSources(rec store.Record) []fileSource {
	var sources []fileSource
	switch r := rec.(type) {
	case *store.Candidate:
		if r.CVURL != "" {
			sources = append(sources, fileSource{projector.CVText, r.CVURL})
		}
		if f, ok := r.LatestCompetenceFile(); ok && f.URL != "" {
			sources = append(sources, fileSource{projector.CompetenceText, f.URL})
		}
	case *store.Document:
		if r.FileURL != "" {
			sources = append(sources, fileSource{projector.DocumentText, r.FileURL})
		}
	}
	return sources
}

// enrich extracts the text of every file rec references. A failed file is
// logged and left out.
func (p *Pipeline) enrich(ctx context.Context, rec store.Record, trigger Trigger) []projector.Extracted {
	if p.extractor == nil {
		return nil
	}

	var extras []projector.Extracted
	for _, src := range fileSources(rec) {
		text, err := p.extractor.Extract(ctx, src.url)
		if err != nil {
			level := slog.LevelWarn
			if !errors.Is(err, errs.ErrEnrichmentUnavailable) {
				level = slog.LevelError
			}
			p.logger.Log(ctx, level, "enrichment skipped",
				"entity", rec.Entity(),
				"record_id", rec.RecordID(),
				"trigger", trigger,
				"source", src.kind,
				"error", err)
			continue
		}
		extras = append(extras, projector.Extracted{Kind: src.kind, Text: text})
	}
	return extras
}
