// Package persistence implements the column-level storage contract of
// spec.md §6 (task_graphs, memory_records, secrets, user_accounts) over
// Postgres and SQLite, plus an in-memory driver for tests.
package persistence

import "time"

// GraphSnapshot is one row of task_graphs: a full JSON snapshot of a
// TaskGraph at a point in time.
type GraphSnapshot struct {
	ID        string
	Status    string
	StateJSON string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Secret is one row of secrets: an encrypted credential owned by a user.
type Secret struct {
	ID           string
	UserID       string
	Provider     string
	EncryptedKey string
	CreatedAt    time.Time
}
