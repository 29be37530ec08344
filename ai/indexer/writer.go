// Package indexer persists the search projection of a record.
package indexer

import (
	"context"
	"log/slog"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/recruitsense/ai/core/embedding"
	"github.com/hrygo/recruitsense/internal/errs"
	"github.com/hrygo/recruitsense/store"
)

// IndexStore is the slice of *store.Store the writer needs.
type IndexStore interface {
	UpdateIndexEntry(ctx context.Context, update *store.UpdateIndexEntry) error
}

// Writer embeds search text and commits it with the vector in one statement.
type Writer struct {
	embedder embedding.Service
	store    IndexStore
}

// NewWriter creates a Writer.
func NewWriter(embedder embedding.Service, store IndexStore) *Writer {
	return &Writer{embedder: embedder, store: store}
}

// Write embeds searchText and persists both on the record row.
func (w *Writer) Write(ctx context.Context, rec store.Record, searchText string) error {
	return w.WriteSegment(ctx, rec, searchText, searchText)
}

// WriteSegment persists searchText with the embedding of segment, which is
// searchText itself or its primary chunk. On any failure the row keeps its
// previous index entry.
func (w *Writer) WriteSegment(ctx context.Context, rec store.Record, searchText, segment string) error {
	if strings.TrimSpace(searchText) == "" {
		return errs.InvalidInput("empty search text for %s %s", rec.Entity(), rec.RecordID())
	}

	emb, err := w.embedder.Embed(ctx, segment)
	if err != nil {
		return errors.Wrapf(err, "embed %s %s", rec.Entity(), rec.RecordID())
	}

	err = w.store.UpdateIndexEntry(ctx, &store.UpdateIndexEntry{
		Entity:     rec.Entity(),
		RecordID:   rec.RecordID(),
		SearchText: searchText,
		Embedding:  emb.Vector,
		Model:      emb.Model,
	})
	if err != nil {
		return errors.Wrapf(err, "write index entry %s %s", rec.Entity(), rec.RecordID())
	}

	slog.Debug("index entry written",
		"entity", rec.Entity(),
		"record_id", rec.RecordID(),
		"search_text_len", len(searchText),
		"segment_len", len(segment),
		"model", emb.Model)
	return nil
}
