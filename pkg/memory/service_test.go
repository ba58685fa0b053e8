package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeVectorStore struct {
	mu      sync.Mutex
	points  map[string][]float32
	failing bool
}

func newFakeVectorStore() *fakeVectorStore {
	return &fakeVectorStore{points: make(map[string][]float32)}
}

func (f *fakeVectorStore) Upsert(ctx context.Context, pointID string, vector []float32, metadata map[string]any) error {
	if f.failing {
		return errors.New("vector store unavailable")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.points[metadata["record_id"].(string)] = vector
	return nil
}

func (f *fakeVectorStore) SearchSimilar(ctx context.Context, vector []float32, topK int) ([]VectorHit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var hits []VectorHit
	for recordID := range f.points {
		hits = append(hits, VectorHit{PointID: recordID, RecordID: recordID, Similarity: 0.9})
	}
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

type fakeRelationalStore struct {
	mu      sync.Mutex
	records map[string]Record
}

func newFakeRelationalStore() *fakeRelationalStore {
	return &fakeRelationalStore{records: make(map[string]Record)}
}

func (f *fakeRelationalStore) Upsert(ctx context.Context, record Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[record.RecordID] = record
	return nil
}

func (f *fakeRelationalStore) Get(ctx context.Context, recordID string) (*Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[recordID]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func TestStore_DerivesEmbeddingWhenAbsent(t *testing.T) {
	vec := newFakeVectorStore()
	rel := newFakeRelationalStore()
	svc := NewService(vec, rel)

	err := svc.Store(context.Background(), Record{RecordID: "r1", GoalSummary: "summarize invoices"})
	require.NoError(t, err)

	stored, err := rel.Get(context.Background(), "r1")
	require.NoError(t, err)
	assert.Len(t, stored.Embedding, embeddingDims)
}

func TestStore_VectorFailureDoesNotBlockRelationalWrite(t *testing.T) {
	vec := newFakeVectorStore()
	vec.failing = true
	rel := newFakeRelationalStore()
	svc := NewService(vec, rel)

	err := svc.Store(context.Background(), Record{RecordID: "r1", GoalSummary: "x"})
	require.NoError(t, err)

	stored, err := rel.Get(context.Background(), "r1")
	require.NoError(t, err)
	assert.NotNil(t, stored)
}

func TestSearch_FiltersByThresholdAndHydrates(t *testing.T) {
	vec := newFakeVectorStore()
	rel := newFakeRelationalStore()
	svc := NewService(vec, rel)

	require.NoError(t, svc.Store(context.Background(), Record{RecordID: "r1", GoalSummary: "a"}))
	require.NoError(t, svc.Store(context.Background(), Record{RecordID: "r2", GoalSummary: "b"}))

	hits, err := svc.Search(context.Background(), "a", 10, 0.5)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
	for _, h := range hits {
		assert.NotEmpty(t, h.Record.GoalSummary)
	}
}

func TestEmbed_IsDeterministic(t *testing.T) {
	a := Embed("goal")
	b := Embed("goal")
	assert.Equal(t, a, b)

	c := Embed("different goal")
	assert.NotEqual(t, a, c)
}
