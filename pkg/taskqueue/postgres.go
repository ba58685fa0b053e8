package taskqueue

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresQueue backs the reliable-pop contract with a Postgres table:
// rows move pending -> processing -> gone (on Complete), so a crashed
// Worker simply leaves its row in "processing" for a supervisor to
// requeue (spec.md §4.2 reliability contract).
type PostgresQueue struct {
	db    *sql.DB
	table string
}

// NewPostgresQueue creates the backing table if absent.
func NewPostgresQueue(db *sql.DB) (*PostgresQueue, error) {
	const table = "taskqueue_payloads"
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		graph_id TEXT NOT NULL,
		node_id TEXT NOT NULL,
		node JSONB NOT NULL,
		priority INT NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'pending',
		enqueued_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`, table)
	if _, err := db.Exec(ddl); err != nil {
		return nil, fmt.Errorf("taskqueue: create backing table: %w", err)
	}
	return &PostgresQueue{db: db, table: table}, nil
}

func (q *PostgresQueue) Push(ctx context.Context, p Payload) error {
	query := fmt.Sprintf(`INSERT INTO %s (id, graph_id, node_id, node, priority, status, enqueued_at)
		VALUES ($1, $2, $3, $4, $5, 'pending', $6)
		ON CONFLICT (id) DO NOTHING`, q.table)
	_, err := q.db.ExecContext(ctx, query, p.ID, p.GraphID, p.NodeID, []byte(p.Node), p.Priority, p.EnqueuedAt)
	if err != nil {
		return fmt.Errorf("taskqueue: push: %w", err)
	}
	return nil
}

// Pop polls at a fixed interval until a pending row is claimed or timeout
// elapses. SELECT ... FOR UPDATE SKIP LOCKED lets multiple Workers poll
// concurrently without contending on the same row. Claim order is strict
// FIFO by enqueued_at: the queue is a transport, not a scheduler, and
// priority ordering belongs solely to the Orchestrator's ready-set
// dispatch.
func (q *PostgresQueue) Pop(ctx context.Context, timeout time.Duration) (*Payload, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		p, err := q.tryClaim(ctx)
		if err != nil {
			return nil, err
		}
		if p != nil {
			return p, nil
		}
		if time.Now().After(deadline) {
			return nil, nil
		}
		select {
		case <-ticker.C:
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (q *PostgresQueue) tryClaim(ctx context.Context) (*Payload, error) {
	query := fmt.Sprintf(`UPDATE %s SET status = 'processing'
		WHERE id = (
			SELECT id FROM %s WHERE status = 'pending'
			ORDER BY enqueued_at ASC LIMIT 1 FOR UPDATE SKIP LOCKED
		)
		RETURNING id, graph_id, node_id, node, priority, enqueued_at`, q.table, q.table)
	row := q.db.QueryRowContext(ctx, query)

	var p Payload
	var node []byte
	if err := row.Scan(&p.ID, &p.GraphID, &p.NodeID, &node, &p.Priority, &p.EnqueuedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("taskqueue: claim: %w", err)
	}
	p.Node = node
	return &p, nil
}

func (q *PostgresQueue) Size(ctx context.Context) (int, error) {
	query := fmt.Sprintf(`SELECT count(*) FROM %s WHERE status = 'pending'`, q.table)
	var n int
	if err := q.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("taskqueue: size: %w", err)
	}
	return n, nil
}

func (q *PostgresQueue) Complete(ctx context.Context, p Payload) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, q.table)
	if _, err := q.db.ExecContext(ctx, query, p.ID); err != nil {
		return fmt.Errorf("taskqueue: complete: %w", err)
	}
	return nil
}

func (q *PostgresQueue) Pending(ctx context.Context) ([]Payload, error) {
	query := fmt.Sprintf(`SELECT id, graph_id, node_id, node, priority, enqueued_at
		FROM %s WHERE status = 'processing'`, q.table)
	rows, err := q.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("taskqueue: pending: %w", err)
	}
	defer rows.Close()

	var out []Payload
	for rows.Next() {
		var p Payload
		var node []byte
		if err := rows.Scan(&p.ID, &p.GraphID, &p.NodeID, &node, &p.Priority, &p.EnqueuedAt); err != nil {
			return nil, fmt.Errorf("taskqueue: scan pending row: %w", err)
		}
		p.Node = node
		out = append(out, p)
	}
	return out, rows.Err()
}

// Requeue moves a processing row back to pending, for supervisor-driven
// redelivery after a consumer crash.
func (q *PostgresQueue) Requeue(ctx context.Context, id string) error {
	query := fmt.Sprintf(`UPDATE %s SET status = 'pending' WHERE id = $1`, q.table)
	if _, err := q.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("taskqueue: requeue %s: %w", id, err)
	}
	return nil
}
