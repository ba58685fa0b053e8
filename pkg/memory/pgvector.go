package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/pgvector/pgvector-go"
)

// PgVectorStore is a VectorStore backed by the pgvector Postgres extension,
// over the same *sql.DB/lib-pq connection used for persistence (spec.md
// §4.6, §6).
type PgVectorStore struct {
	db    *sql.DB
	table string
}

// NewPgVectorStore creates the backing table (dims must match Embed's
// output width) if it does not already exist.
func NewPgVectorStore(db *sql.DB, dims int) (*PgVectorStore, error) {
	const table = "memory_vectors"
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		point_id TEXT PRIMARY KEY,
		record_id TEXT NOT NULL,
		embedding vector(%d) NOT NULL,
		metadata JSONB
	)`, table, dims)
	if _, err := db.Exec(ddl); err != nil {
		return nil, fmt.Errorf("memory: create vector table: %w", err)
	}
	return &PgVectorStore{db: db, table: table}, nil
}

func (s *PgVectorStore) Upsert(ctx context.Context, pointID string, vector []float32, metadata map[string]any) error {
	recordID, _ := metadata["record_id"].(string)
	payload, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("memory: marshal metadata: %w", err)
	}
	query := fmt.Sprintf(`INSERT INTO %s (point_id, record_id, embedding, metadata)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (point_id) DO UPDATE SET embedding = EXCLUDED.embedding, metadata = EXCLUDED.metadata`, s.table)
	_, err = s.db.ExecContext(ctx, query, pointID, recordID, pgvector.NewVector(vector), payload)
	if err != nil {
		return fmt.Errorf("memory: upsert embedding: %w", err)
	}
	return nil
}

// SearchSimilar ranks by cosine distance (pgvector's <=> operator),
// converting distance to a similarity score of 1 - distance; cosine
// distance spans [0, 2], so the score lies in [-1, 1].
func (s *PgVectorStore) SearchSimilar(ctx context.Context, vector []float32, topK int) ([]VectorHit, error) {
	query := fmt.Sprintf(`SELECT point_id, record_id, 1 - (embedding <=> $1) AS similarity
		FROM %s ORDER BY embedding <=> $1 LIMIT $2`, s.table)
	rows, err := s.db.QueryContext(ctx, query, pgvector.NewVector(vector), topK)
	if err != nil {
		return nil, fmt.Errorf("memory: search similar: %w", err)
	}
	defer rows.Close()

	var hits []VectorHit
	for rows.Next() {
		var h VectorHit
		if err := rows.Scan(&h.PointID, &h.RecordID, &h.Similarity); err != nil {
			return nil, fmt.Errorf("memory: scan hit: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}
