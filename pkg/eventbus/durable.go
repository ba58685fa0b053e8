package eventbus

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
)

// Backend is the durable-stream contract an event bus can optionally sit on
// top of, so publishes survive a process restart and fan out across workers
// (spec.md REDESIGN FLAGS: event bus backed by a real message stream).
//
// Append persists e and returns once it is durably recorded. Poll returns
// newly available events since the last call (Ack'd events are not
// returned again). Ack marks ackID as delivered.
type Backend interface {
	Append(e Event) error
	Poll() ([]Event, error)
	Ack(ackID string) error
}

// PostgresBackend uses a Postgres table as the event log and LISTEN/NOTIFY
// as the wake signal, following the reliable-pop pattern: Poll moves rows
// from "pending" to "delivering" and Ack moves them to "delivered". Nothing
// moves a "delivering" row back to "pending", so an event claimed by a
// process that crashes before Ack is not returned by Poll again.
type PostgresBackend struct {
	db       *sql.DB
	listener *pq.Listener
	channel  string
	table    string
}

// NewPostgresBackend creates the backing table if absent and starts
// listening on channel for NOTIFY wakeups.
func NewPostgresBackend(db *sql.DB, dsn, channel string) (*PostgresBackend, error) {
	const table = "eventbus_events"
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		event_id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		payload JSONB NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`, table)
	if _, err := db.Exec(ddl); err != nil {
		return nil, fmt.Errorf("eventbus: create backing table: %w", err)
	}

	listener := pq.NewListener(dsn, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			slog.Warn("eventbus: postgres listener event", "error", err)
		}
	})
	if err := listener.Listen(channel); err != nil {
		return nil, fmt.Errorf("eventbus: listen %s: %w", channel, err)
	}

	return &PostgresBackend{db: db, listener: listener, channel: channel, table: table}, nil
}

func (p *PostgresBackend) Append(e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("eventbus: marshal event: %w", err)
	}
	query := fmt.Sprintf(`INSERT INTO %s (event_id, event_type, payload) VALUES ($1, $2, $3)
		ON CONFLICT (event_id) DO NOTHING`, p.table)
	if _, err := p.db.Exec(query, e.EventID, e.EventType, payload); err != nil {
		return fmt.Errorf("eventbus: insert event: %w", err)
	}
	if _, err := p.db.Exec(`SELECT pg_notify($1, $2)`, p.channel, e.EventID); err != nil {
		return fmt.Errorf("eventbus: notify: %w", err)
	}
	return nil
}

// Poll fetches pending rows and marks them "delivering" so a concurrent
// poller (another process) does not redeliver the same event.
func (p *PostgresBackend) Poll() ([]Event, error) {
	query := fmt.Sprintf(`UPDATE %s SET status = 'delivering'
		WHERE event_id IN (
			SELECT event_id FROM %s WHERE status = 'pending'
			ORDER BY created_at ASC LIMIT 100 FOR UPDATE SKIP LOCKED
		)
		RETURNING event_id, payload`, p.table, p.table)
	rows, err := p.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("eventbus: poll: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var id string
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("eventbus: scan row: %w", err)
		}
		var e Event
		if err := json.Unmarshal(payload, &e); err != nil {
			slog.Warn("eventbus: malformed durable payload, skipping", "event_id", id, "error", err)
			continue
		}
		e.AckID = id
		events = append(events, e)
	}
	return events, rows.Err()
}

func (p *PostgresBackend) Ack(ackID string) error {
	query := fmt.Sprintf(`UPDATE %s SET status = 'delivered' WHERE event_id = $1`, p.table)
	_, err := p.db.Exec(query, ackID)
	if err != nil {
		return fmt.Errorf("eventbus: ack %s: %w", ackID, err)
	}
	return nil
}

// Notifications exposes the raw LISTEN/NOTIFY channel so callers can wake
// a poll early instead of waiting for the next ticker tick.
func (p *PostgresBackend) Notifications() <-chan *pq.Notification {
	return p.listener.Notify
}

func (p *PostgresBackend) Close() error {
	return p.listener.Close()
}
