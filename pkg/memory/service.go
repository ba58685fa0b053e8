package memory

import (
	"context"
	"log/slog"
	"sort"

	"github.com/google/uuid"
)

// Service is the Memory Service: write-through to a vector store plus a
// relational row, with similarity search (spec.md §4.6).
type Service struct {
	Vector     VectorStore
	Relational RelationalStore
}

func NewService(vector VectorStore, relational RelationalStore) *Service {
	return &Service{Vector: vector, Relational: relational}
}

// Store computes the record's embedding if absent, writes through to the
// vector store, and upserts the relational row. A vector-store failure is
// logged and does not prevent the relational write (graceful degradation).
func (s *Service) Store(ctx context.Context, record Record) error {
	if len(record.Embedding) == 0 {
		record.Embedding = Embed(record.GoalSummary)
	}

	if s.Vector != nil {
		pointID := uuid.NewString()
		metadata := map[string]any{
			"record_id": record.RecordID,
			"category":  record.Category,
			"tags":      record.Tags,
		}
		if err := s.Vector.Upsert(ctx, pointID, record.Embedding, metadata); err != nil {
			slog.Warn("memory: vector store upsert failed, continuing with relational write only",
				"error", err, "record_id", record.RecordID)
		}
	}

	return s.Relational.Upsert(ctx, record)
}

// Search embeds query, runs a vector top-k search, hydrates full records
// from the relational store, and filters by a minimum similarity
// threshold (spec.md §4.6).
func (s *Service) Search(ctx context.Context, query string, topK int, threshold float64) ([]Hit, error) {
	vec := Embed(query)
	vectorHits, err := s.Vector.SearchSimilar(ctx, vec, topK)
	if err != nil {
		return nil, err
	}

	var hits []Hit
	for _, vh := range vectorHits {
		if vh.Similarity < threshold {
			continue
		}
		record, err := s.Relational.Get(ctx, vh.RecordID)
		if err != nil {
			slog.Warn("memory: failed to hydrate record, skipping", "error", err, "record_id", vh.RecordID)
			continue
		}
		if record == nil {
			continue
		}
		hits = append(hits, Hit{RecordID: vh.RecordID, Similarity: vh.Similarity, Record: *record})
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	return hits, nil
}
