package main

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/recruitsense/ai/chunk"
	"github.com/hrygo/recruitsense/ai/core/retrieval"
	"github.com/hrygo/recruitsense/ai/reindex"
	"github.com/hrygo/recruitsense/internal/errs"
	"github.com/hrygo/recruitsense/internal/profile"
	"github.com/hrygo/recruitsense/store"
	"github.com/hrygo/recruitsense/store/db/sqlite"
)

func TestReindexFlags_Criteria(t *testing.T) {
	f := &reindexFlags{
		entity:           "job",
		missingEmbedding: true,
		status:           "open",
		updatedAfter:     "2026-03-01T00:00:00Z",
		where:            `has(record.title)`,
		limit:            25,
	}
	c, err := f.criteria()
	require.NoError(t, err)
	assert.Equal(t, store.EntityJob, c.Entity)
	assert.True(t, c.MissingEmbedding)
	require.NotNil(t, c.Status)
	assert.Equal(t, "open", *c.Status)
	require.NotNil(t, c.UpdatedAfter)
	assert.Equal(t, 3, int(c.UpdatedAfter.Month()))
	assert.Equal(t, `has(record.title)`, c.Where)
	assert.Equal(t, 25, c.Limit)

	c, err = (&reindexFlags{entity: "candidate"}).criteria()
	require.NoError(t, err)
	assert.Nil(t, c.Status)
	assert.Nil(t, c.UpdatedAfter)
}

func TestReindexFlags_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		flags reindexFlags
	}{
		{"unknown entity", reindexFlags{entity: "memo"}},
		{"negative limit", reindexFlags{entity: "candidate", limit: -1}},
		{"bad time", reindexFlags{entity: "candidate", updatedAfter: "last week"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.flags.criteria()
			assert.Error(t, err)
		})
	}
}

func TestPrintReport(t *testing.T) {
	var buf bytes.Buffer
	printReport(&buf, &reindex.Report{
		Selected:  4,
		Skipped:   1,
		Succeeded: 2,
		Failed:    []reindex.Failure{{RecordID: "c-9", Err: errs.InvalidInput("empty search text")}},
	})
	out := buf.String()
	assert.Contains(t, out, "succeeded=2 failed=1")
	assert.Contains(t, out, "selected=4 skipped=1")
	assert.Contains(t, out, "c-9: ")
}

func TestSearchFlags_Query(t *testing.T) {
	f := &searchFlags{entity: "candidate", mode: "lexical", limit: 3, status: "active", location: "Berlin"}
	q, err := f.query("go developer")
	require.NoError(t, err)
	assert.Equal(t, "go developer", q.Text)
	assert.Equal(t, retrieval.ModeLexical, q.Mode)
	assert.Equal(t, 3, q.Limit)
	assert.Equal(t, "active", *q.Filters.Status)
	assert.Equal(t, "Berlin", *q.Filters.Location)

	_, err = (&searchFlags{entity: "candidate", mode: "semantic"}).query("x")
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestPrintResponse(t *testing.T) {
	var buf bytes.Buffer
	printResponse(&buf, &retrieval.Response{
		Mode:     retrieval.ModeLexical,
		Fallback: true,
		Results:  []*retrieval.Result{{ID: "c-1", Score: 0, SearchText: "Name: Ada\nTitle: Engineer"}},
	})
	out := buf.String()
	assert.Contains(t, out, "1 results, mode lexical (fallback)")
	assert.Contains(t, out, "c-1")
	assert.Contains(t, out, "Name: Ada")
	assert.NotContains(t, out, "Title: Engineer")
}

func TestPrintChunks(t *testing.T) {
	var buf bytes.Buffer
	printChunks(&buf, []chunk.Segment{
		{Text: "Skills: Go", EndOffset: 10, Metadata: chunk.Metadata{Index: 0, Total: 2, Type: chunk.TypeSection, Section: "Skills"}},
		{Text: "Summary: ok", EndOffset: 11, Metadata: chunk.Metadata{Index: 1, Total: 2, Type: chunk.TypeSection, Section: "Summary"}},
	})
	out := buf.String()
	assert.Contains(t, out, "--- 1/2 section [Skills] bytes 0-10\nSkills: Go\n")
	assert.Contains(t, out, "--- 2/2 section [Summary]")
}

func TestNewLogger_Level(t *testing.T) {
	logger := newLogger(&profile.Profile{Mode: "prod", LogLevel: "warn"})
	assert.False(t, logger.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, logger.Enabled(context.Background(), slog.LevelWarn))

	logger = newLogger(&profile.Profile{Mode: "dev", LogLevel: "nonsense"})
	assert.True(t, logger.Enabled(context.Background(), slog.LevelInfo))
	assert.False(t, logger.Enabled(context.Background(), slog.LevelDebug))
}

func TestOpenStore_SQLiteMigratesOnOpen(t *testing.T) {
	ctx := context.Background()
	p := &profile.Profile{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "open.db"), EmbeddingDimensions: 3}
	st, err := openStore(ctx, p)
	require.NoError(t, err)
	defer st.Close()
	assert.NoError(t, checkSchema(ctx, st))
}

func TestCheckSchema_MissingTables(t *testing.T) {
	ctx := context.Background()
	p := &profile.Profile{DSN: filepath.Join(t.TempDir(), "empty.db"), EmbeddingDimensions: 3}
	driver, err := sqlite.NewDB(p)
	require.NoError(t, err)
	st := store.New(driver, p)
	defer st.Close()

	err = checkSchema(ctx, st)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recruitsense migrate")
}
