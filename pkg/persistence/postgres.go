package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/r3e/taskgraph/pkg/billing"
	"github.com/r3e/taskgraph/pkg/memory"
)

// PostgresStore implements Store over lib/pq.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates the four tables of spec.md §6 if absent.
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS task_graphs (
			id TEXT PRIMARY KEY, status TEXT NOT NULL, state_json TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL, updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS memory_records (
			id TEXT PRIMARY KEY, content TEXT NOT NULL, type TEXT,
			timestamp TIMESTAMPTZ NOT NULL, embedding_id TEXT, metadata JSONB
		)`,
		`CREATE TABLE IF NOT EXISTS secrets (
			id TEXT PRIMARY KEY, user_id TEXT NOT NULL, provider TEXT NOT NULL,
			encrypted_key TEXT NOT NULL, created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS user_accounts (
			user_id TEXT PRIMARY KEY, balance_credits DOUBLE PRECISION NOT NULL,
			tier TEXT NOT NULL, updated_at TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, stmt := range ddl {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("persistence: create table: %w", err)
		}
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) UpsertGraphSnapshot(ctx context.Context, snap GraphSnapshot) error {
	query := `INSERT INTO task_graphs (id, status, state_json, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, state_json = EXCLUDED.state_json, updated_at = EXCLUDED.updated_at`
	_, err := s.db.ExecContext(ctx, query, snap.ID, snap.Status, snap.StateJSON, snap.CreatedAt, snap.UpdatedAt)
	if err != nil {
		return fmt.Errorf("persistence: upsert graph snapshot: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetGraphSnapshot(ctx context.Context, id string) (*GraphSnapshot, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, status, state_json, created_at, updated_at FROM task_graphs WHERE id = $1`, id)
	var snap GraphSnapshot
	if err := row.Scan(&snap.ID, &snap.Status, &snap.StateJSON, &snap.CreatedAt, &snap.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("persistence: get graph snapshot: %w", err)
	}
	return &snap, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, record memory.Record) error {
	content, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("persistence: marshal memory record: %w", err)
	}
	metadata, _ := json.Marshal(map[string]any{"tags": record.Tags, "access_count": record.AccessCount})
	ts := record.LastAccessed
	if ts.IsZero() {
		ts = time.Now()
	}
	query := `INSERT INTO memory_records (id, content, type, timestamp, metadata)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET content = EXCLUDED.content, type = EXCLUDED.type,
			timestamp = EXCLUDED.timestamp, metadata = EXCLUDED.metadata`
	_, err = s.db.ExecContext(ctx, query, record.RecordID, content, record.Category, ts, metadata)
	if err != nil {
		return fmt.Errorf("persistence: upsert memory record: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, recordID string) (*memory.Record, error) {
	var content []byte
	row := s.db.QueryRowContext(ctx, `SELECT content FROM memory_records WHERE id = $1`, recordID)
	if err := row.Scan(&content); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("persistence: get memory record: %w", err)
	}
	var record memory.Record
	if err := json.Unmarshal(content, &record); err != nil {
		return nil, fmt.Errorf("persistence: decode memory record: %w", err)
	}
	return &record, nil
}

func (s *PostgresStore) UpsertSecret(ctx context.Context, secret Secret) error {
	query := `INSERT INTO secrets (id, user_id, provider, encrypted_key, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET encrypted_key = EXCLUDED.encrypted_key`
	_, err := s.db.ExecContext(ctx, query, secret.ID, secret.UserID, secret.Provider, secret.EncryptedKey, secret.CreatedAt)
	if err != nil {
		return fmt.Errorf("persistence: upsert secret: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSecret(ctx context.Context, id string) (*Secret, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, user_id, provider, encrypted_key, created_at FROM secrets WHERE id = $1`, id)
	var secret Secret
	if err := row.Scan(&secret.ID, &secret.UserID, &secret.Provider, &secret.EncryptedKey, &secret.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("persistence: get secret: %w", err)
	}
	return &secret, nil
}

func (s *PostgresStore) GetAccount(ctx context.Context, userID string) (*billing.Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT user_id, balance_credits, tier FROM user_accounts WHERE user_id = $1`, userID)
	var account billing.Account
	var tierName string
	if err := row.Scan(&account.UserID, &account.Balance, &tierName); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("persistence: no account for user %q", userID)
		}
		return nil, fmt.Errorf("persistence: get account: %w", err)
	}
	account.Tier = billing.ResolveTier(tierName)
	return &account, nil
}

func (s *PostgresStore) Debit(ctx context.Context, userID string, amount float64) (float64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("persistence: begin debit tx: %w", err)
	}
	defer tx.Rollback()

	var balance float64
	row := tx.QueryRowContext(ctx, `SELECT balance_credits FROM user_accounts WHERE user_id = $1 FOR UPDATE`, userID)
	if err := row.Scan(&balance); err != nil {
		return 0, fmt.Errorf("persistence: read balance: %w", err)
	}
	balance -= amount
	if _, err := tx.ExecContext(ctx, `UPDATE user_accounts SET balance_credits = $1, updated_at = $2 WHERE user_id = $3`,
		balance, time.Now(), userID); err != nil {
		return 0, fmt.Errorf("persistence: write balance: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("persistence: commit debit tx: %w", err)
	}
	return balance, nil
}
