package reindex

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/recruitsense/ai/core/embedding"
	"github.com/hrygo/recruitsense/ai/indexer"
	"github.com/hrygo/recruitsense/internal/errs"
	"github.com/hrygo/recruitsense/internal/profile"
	"github.com/hrygo/recruitsense/store"
	"github.com/hrygo/recruitsense/store/db/sqlite"
)

// lengthEmbedder embeds text as [len, 1, 0] and records every input.
type lengthEmbedder struct {
	mu     sync.Mutex
	inputs []string
}

func (l *lengthEmbedder) Embed(_ context.Context, text string) (*embedding.Embedding, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errs.InvalidInput("empty text")
	}
	l.mu.Lock()
	l.inputs = append(l.inputs, text)
	l.mu.Unlock()
	return &embedding.Embedding{Vector: []float32{float32(len(text)), 1, 0}, Model: "length"}, nil
}

func (l *lengthEmbedder) Model() string   { return "length" }
func (l *lengthEmbedder) Dimensions() int { return 3 }

func (l *lengthEmbedder) last() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.inputs) == 0 {
		return ""
	}
	return l.inputs[len(l.inputs)-1]
}

// mapExtractor serves extracted text by url and records the requested urls.
type mapExtractor struct {
	mu    sync.Mutex
	texts map[string]string
	urls  []string
}

func (m *mapExtractor) Extract(_ context.Context, url string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.urls = append(m.urls, url)
	text, ok := m.texts[url]
	if !ok {
		return "", errs.EnrichmentUnavailable(nil, "not found: "+url)
	}
	return text, nil
}

type pipelineFixture struct {
	store     *store.Store
	embedder  *lengthEmbedder
	extractor *mapExtractor
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	p := &profile.Profile{
		DSN:                 filepath.Join(t.TempDir(), "reindex.db"),
		EmbeddingDimensions: 3,
	}
	driver, err := sqlite.NewDB(p)
	require.NoError(t, err)
	st := store.New(driver, p)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	return &pipelineFixture{
		store:     st,
		embedder:  &lengthEmbedder{},
		extractor: &mapExtractor{texts: map[string]string{}},
	}
}

func (f *pipelineFixture) pipeline(opts ...PipelineOption) *Pipeline {
	opts = append([]PipelineOption{WithExtractor(f.extractor)}, opts...)
	return NewPipeline(f.store, indexer.NewWriter(f.embedder, f.store), opts...)
}

func (f *pipelineFixture) put(t *testing.T, rec store.Record) {
	t.Helper()
	require.NoError(t, f.store.PutRecord(context.Background(), rec))
}

func (f *pipelineFixture) entry(t *testing.T, entity store.EntityType, id string) *store.IndexEntry {
	t.Helper()
	entry, err := f.store.GetIndexEntry(context.Background(), entity, id)
	require.NoError(t, err)
	require.NotNil(t, entry)
	return entry
}

func TestPipeline_CandidateEnrichment(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t)
	f.extractor.texts["https://files/cv.pdf"] = "Ten years of Go"
	f.extractor.texts["https://files/comp-new.pdf"] = "Kubernetes operator"
	f.put(t, &store.Candidate{
		ID:        "c-1",
		FirstName: "Ada",
		CVURL:     "https://files/cv.pdf",
		CompetenceFiles: []store.CompetenceFile{
			{URL: "https://files/comp-old.pdf", UploadedAt: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)},
			{URL: "https://files/comp-new.pdf", UploadedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		},
	})
	p := f.pipeline()

	for _, trigger := range []Trigger{
		TriggerCreate, TriggerUpdate, TriggerCVUpload, TriggerCompetenceFileUpload,
		TriggerSkillUpdate, TriggerProfileUpdate, TriggerManual,
	} {
		t.Run(string(trigger), func(t *testing.T) {
			f.extractor.urls = nil
			require.NoError(t, p.ReindexRecord(ctx, store.EntityCandidate, "c-1", trigger))

			entry := f.entry(t, store.EntityCandidate, "c-1")
			assert.Equal(t, "length", entry.Model)
			assert.Equal(t, []string{"https://files/cv.pdf", "https://files/comp-new.pdf"}, f.extractor.urls)
			assert.Equal(t, "Name: Ada\nCV: Ten years of Go\nCompetence file: Kubernetes operator", entry.SearchText)
		})
	}
}

func TestPipeline_CandidateEditKeepsCVText(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t)
	f.extractor.texts["https://files/cv.pdf"] = "Ten years of Go"
	f.put(t, &store.Candidate{ID: "c-1", FirstName: "Ada", CVURL: "https://files/cv.pdf"})
	p := f.pipeline()
	require.NoError(t, p.ReindexRecord(ctx, store.EntityCandidate, "c-1", TriggerCVUpload))

	f.put(t, &store.Candidate{ID: "c-1", FirstName: "Ada", Title: "Staff engineer", CVURL: "https://files/cv.pdf"})
	require.NoError(t, p.ReindexRecord(ctx, store.EntityCandidate, "c-1", TriggerProfileUpdate))
	assert.Equal(t, "Name: Ada\nTitle: Staff engineer\nCV: Ten years of Go", f.entry(t, store.EntityCandidate, "c-1").SearchText)
}

func TestPipeline_DocumentEnrichment(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t)
	f.extractor.texts["https://files/msa.pdf"] = "Master services agreement"
	f.put(t, &store.Document{ID: "d-1", Title: "MSA", FileURL: "https://files/msa.pdf"})
	p := f.pipeline()

	for _, trigger := range []Trigger{TriggerCreate, TriggerUpdate, TriggerManual} {
		require.NoError(t, p.ReindexRecord(ctx, store.EntityDocument, "d-1", trigger))
		assert.Equal(t, "Title: MSA\nDocument text: Master services agreement", f.entry(t, store.EntityDocument, "d-1").SearchText, trigger)
	}
}

func TestPipeline_DocumentTitleEditKeepsFileText(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t)
	f.extractor.texts["https://files/contract.pdf"] = "confidential kubernetes clause"
	f.put(t, &store.Document{ID: "d-1", Title: "Contract", FileURL: "https://files/contract.pdf"})
	p := f.pipeline()
	require.NoError(t, p.ReindexRecord(ctx, store.EntityDocument, "d-1", TriggerCreate))

	f.put(t, &store.Document{ID: "d-1", Title: "Contract v2", FileURL: "https://files/contract.pdf"})
	trigger := fieldTrigger("title")
	require.Equal(t, TriggerProfileUpdate, trigger)
	require.NoError(t, p.ReindexRecord(ctx, store.EntityDocument, "d-1", trigger))

	entry := f.entry(t, store.EntityDocument, "d-1")
	assert.Equal(t, "Title: Contract v2\nDocument text: confidential kubernetes clause", entry.SearchText)
	assert.Equal(t, float32(len(entry.SearchText)), entry.Embedding[0])
}

func TestPipeline_PartialEnrichmentFailure(t *testing.T) {
	f := newPipelineFixture(t)
	f.extractor.texts["https://files/comp.pdf"] = "Kubernetes operator"
	f.put(t, &store.Candidate{
		ID:              "c-1",
		FirstName:       "Ada",
		CVURL:           "https://files/missing.pdf",
		CompetenceFiles: []store.CompetenceFile{{URL: "https://files/comp.pdf"}},
	})

	require.NoError(t, f.pipeline().ReindexRecord(context.Background(), store.EntityCandidate, "c-1", TriggerManual))
	assert.Equal(t, "Name: Ada\nCompetence file: Kubernetes operator", f.entry(t, store.EntityCandidate, "c-1").SearchText)
}

func TestPipeline_EnrichmentFailureDegrades(t *testing.T) {
	f := newPipelineFixture(t)
	f.put(t, &store.Candidate{ID: "c-1", FirstName: "Ada", CVURL: "https://files/missing.pdf"})

	require.NoError(t, f.pipeline().ReindexRecord(context.Background(), store.EntityCandidate, "c-1", TriggerCVUpload))
	assert.Equal(t, "Name: Ada", f.entry(t, store.EntityCandidate, "c-1").SearchText)
}

func TestPipeline_WithoutExtractor(t *testing.T) {
	f := newPipelineFixture(t)
	f.put(t, &store.Candidate{ID: "c-1", FirstName: "Ada", CVURL: "https://files/cv.pdf"})

	p := NewPipeline(f.store, indexer.NewWriter(f.embedder, f.store))
	require.NoError(t, p.ReindexRecord(context.Background(), store.EntityCandidate, "c-1", TriggerCVUpload))
	assert.Equal(t, "Name: Ada", f.entry(t, store.EntityCandidate, "c-1").SearchText)
}

func TestPipeline_PrimarySegment(t *testing.T) {
	f := newPipelineFixture(t)
	summary := strings.Repeat("Builds distributed systems. ", 10)
	f.put(t, &store.Candidate{ID: "c-1", FirstName: "Ada", Summary: summary})

	p := f.pipeline(WithChunking(80, 20))
	require.NoError(t, p.ReindexRecord(context.Background(), store.EntityCandidate, "c-1", TriggerManual))

	entry := f.entry(t, store.EntityCandidate, "c-1")
	segment := f.embedder.last()
	assert.Greater(t, len(entry.SearchText), 80)
	assert.LessOrEqual(t, len(segment), 80)
	assert.True(t, strings.HasPrefix(entry.SearchText, segment))
	assert.Equal(t, float32(len(segment)), entry.Embedding[0])
}

func TestPipeline_ShortTextEmbedsWhole(t *testing.T) {
	f := newPipelineFixture(t)
	f.put(t, &store.Job{ID: "j-1", Title: "Go engineer", RequiredSkills: []string{"Go", "SQL"}})

	require.NoError(t, f.pipeline().ReindexRecord(context.Background(), store.EntityJob, "j-1", TriggerCreate))
	entry := f.entry(t, store.EntityJob, "j-1")
	assert.Equal(t, entry.SearchText, f.embedder.last())
}

func TestPipeline_Failures(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t)
	p := f.pipeline()

	err := p.ReindexRecord(ctx, store.EntityCandidate, "missing", TriggerManual)
	assert.True(t, errors.Is(err, ErrRecordNotFound), "got %v", err)

	f.put(t, &store.Candidate{ID: "empty"})
	err = p.ReindexRecord(ctx, store.EntityCandidate, "empty", TriggerManual)
	assert.True(t, errors.Is(err, errs.ErrInvalidInput), "got %v", err)
	entry := f.entry(t, store.EntityCandidate, "empty")
	assert.Nil(t, entry.Embedding)
	assert.Nil(t, entry.IndexedAt)
}

func TestPipeline_ReindexEvent(t *testing.T) {
	f := newPipelineFixture(t)
	f.put(t, &store.Client{ID: "cl-1", Name: "Acme"})

	err := f.pipeline().ReindexEvent(context.Background(), &Event{
		Entity: store.EntityClient, RecordID: "cl-1", Trigger: TriggerUpdate, ChangedFields: []string{"name"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Name: Acme", f.entry(t, store.EntityClient, "cl-1").SearchText)
}
