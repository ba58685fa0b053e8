package memory

import "context"

// VectorHit is a raw nearest-neighbor match before relational hydration.
type VectorHit struct {
	PointID    string
	RecordID   string
	Similarity float64
}

// VectorStore is the write-through vector index contract, backed by
// pgvector in production (see PgVectorStore).
type VectorStore interface {
	Upsert(ctx context.Context, pointID string, vector []float32, metadata map[string]any) error
	SearchSimilar(ctx context.Context, vector []float32, topK int) ([]VectorHit, error)
}

// RelationalStore is the row-level persistence contract for memory
// records, keyed by RecordID.
type RelationalStore interface {
	Upsert(ctx context.Context, record Record) error
	Get(ctx context.Context, recordID string) (*Record, error)
}
