package reindex

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/recruitsense/internal/errs"
	"github.com/hrygo/recruitsense/store"
)

func seedBatch(t *testing.T, f *pipelineFixture) {
	t.Helper()
	base := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	for i := 1; i <= 5; i++ {
		c := &store.Candidate{
			ID:        fmt.Sprintf("c-%d", i),
			FirstName: fmt.Sprintf("Person %d", i),
			Status:    "active",
			UpdatedAt: base.Add(time.Duration(i) * time.Hour),
		}
		if i%2 == 0 {
			c.Status = "placed"
			c.CVURL = "https://files/cv.pdf"
		}
		f.put(t, c)
	}
	// No projectable field: projection is empty and the write is rejected.
	f.put(t, &store.Candidate{ID: "c-broken", UpdatedAt: base})
}

func TestReindexByCriteria_IsolatesFailures(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t)
	seedBatch(t, f)
	p := f.pipeline(WithBatchConcurrency(2))

	report, err := p.ReindexByCriteria(ctx, &Criteria{Entity: store.EntityCandidate})
	require.NoError(t, err)

	assert.Equal(t, 6, report.Selected)
	assert.Equal(t, 5, report.Succeeded)
	assert.Zero(t, report.Skipped)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, "c-broken", report.Failed[0].RecordID)
	assert.True(t, errors.Is(report.Failed[0].Err, errs.ErrInvalidInput))

	for i := 1; i <= 5; i++ {
		entry := f.entry(t, store.EntityCandidate, fmt.Sprintf("c-%d", i))
		assert.NotNil(t, entry.Embedding)
	}

	// Only the failed record is still missing an embedding.
	report, err = p.ReindexByCriteria(ctx, &Criteria{Entity: store.EntityCandidate, MissingEmbedding: true})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Selected)
	assert.Zero(t, report.Succeeded)
	assert.Len(t, report.Failed, 1)
}

func TestReindexByCriteria_Selection(t *testing.T) {
	placed := "placed"
	cutoff := time.Date(2024, 2, 1, 3, 30, 0, 0, time.UTC)

	tests := []struct {
		name      string
		criteria  Criteria
		selected  int
		succeeded int
		skipped   int
	}{
		{"status", Criteria{Status: &placed}, 2, 2, 0},
		{"updated after", Criteria{UpdatedAfter: &cutoff}, 2, 2, 0},
		{"limit", Criteria{Limit: 3}, 3, 3, 0},
		{"where", Criteria{Where: `record.status == "active"`}, 6, 3, 3},
		{"where has", Criteria{Where: `has(record.cv_url) && id != "c-2"`}, 6, 1, 5},
		{"where with status", Criteria{Status: &placed, Where: `record.first_name.endsWith("4")`}, 2, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPipelineFixture(t)
			seedBatch(t, f)
			tt.criteria.Entity = store.EntityCandidate

			report, err := f.pipeline().ReindexByCriteria(context.Background(), &tt.criteria)
			require.NoError(t, err)
			assert.Equal(t, tt.selected, report.Selected)
			assert.Equal(t, tt.succeeded, report.Succeeded)
			assert.Equal(t, tt.skipped, report.Skipped)
		})
	}
}

func TestReindexByCriteria_InvalidWhere(t *testing.T) {
	f := newPipelineFixture(t)
	p := f.pipeline()

	for _, expr := range []string{`record.status ==`, `1 + 1`, `unknown_var == "x"`} {
		_, err := p.ReindexByCriteria(context.Background(), &Criteria{Entity: store.EntityCandidate, Where: expr})
		assert.True(t, errors.Is(err, errs.ErrInvalidInput), "%s: got %v", expr, err)
	}
}

func TestReindexByCriteria_StoreError(t *testing.T) {
	f := newPipelineFixture(t)
	require.NoError(t, f.store.Close())

	_, err := f.pipeline().ReindexByCriteria(context.Background(), &Criteria{Entity: store.EntityCandidate})
	assert.True(t, errors.Is(err, errs.ErrStore), "got %v", err)
}

func TestReindexByCriteria_CanceledContext(t *testing.T) {
	f := newPipelineFixture(t)
	seedBatch(t, f)
	p := f.pipeline()

	ids, err := f.store.ListRecordIDs(context.Background(), &store.FindRecordIDs{Entity: store.EntityCandidate})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := p.ReindexByCriteria(ctx, &Criteria{Entity: store.EntityCandidate})
	if err != nil {
		// Selection itself may observe the canceled context.
		assert.True(t, errors.Is(err, context.Canceled) || errors.Is(err, errs.ErrStore))
		return
	}
	assert.Len(t, report.Failed, len(ids))
}
