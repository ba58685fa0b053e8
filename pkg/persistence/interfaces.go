package persistence

import (
	"context"

	"github.com/r3e/taskgraph/pkg/billing"
	"github.com/r3e/taskgraph/pkg/memory"
)

// GraphStore persists TaskGraph snapshots (spec.md §4.8: upserted on
// every status change).
type GraphStore interface {
	UpsertGraphSnapshot(ctx context.Context, snapshot GraphSnapshot) error
	GetGraphSnapshot(ctx context.Context, id string) (*GraphSnapshot, error)
}

// SecretStore persists encrypted credentials; decryption is the Vault's
// job (pkg/vault), never this package's.
type SecretStore interface {
	UpsertSecret(ctx context.Context, secret Secret) error
	GetSecret(ctx context.Context, id string) (*Secret, error)
}

// Store is the full persistence contract: graph snapshots, secrets, and
// (by satisfying their narrower interfaces) the Memory Service's
// relational rows and the Billing Gate's account ledger.
type Store interface {
	GraphStore
	SecretStore
	memory.RelationalStore
	billing.Ledger
}
