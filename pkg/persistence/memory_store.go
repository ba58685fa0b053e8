package persistence

import (
	"context"
	"fmt"
	"sync"

	"github.com/r3e/taskgraph/pkg/billing"
	"github.com/r3e/taskgraph/pkg/memory"
)

// InMemoryStore implements Store without a database, for tests and for
// running without a configured persistence backend.
type InMemoryStore struct {
	mu       sync.Mutex
	graphs   map[string]GraphSnapshot
	records  map[string]memory.Record
	secrets  map[string]Secret
	accounts map[string]billing.Account
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		graphs:   make(map[string]GraphSnapshot),
		records:  make(map[string]memory.Record),
		secrets:  make(map[string]Secret),
		accounts: make(map[string]billing.Account),
	}
}

func (s *InMemoryStore) SeedAccount(account billing.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[account.UserID] = account
}

func (s *InMemoryStore) UpsertGraphSnapshot(ctx context.Context, snap GraphSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.graphs[snap.ID] = snap
	return nil
}

func (s *InMemoryStore) GetGraphSnapshot(ctx context.Context, id string) (*GraphSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.graphs[id]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

func (s *InMemoryStore) Upsert(ctx context.Context, record memory.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.RecordID] = record
	return nil
}

func (s *InMemoryStore) Get(ctx context.Context, recordID string) (*memory.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[recordID]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (s *InMemoryStore) UpsertSecret(ctx context.Context, secret Secret) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secrets[secret.ID] = secret
	return nil
}

func (s *InMemoryStore) GetSecret(ctx context.Context, id string) (*Secret, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	secret, ok := s.secrets[id]
	if !ok {
		return nil, nil
	}
	return &secret, nil
}

func (s *InMemoryStore) GetAccount(ctx context.Context, userID string) (*billing.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[userID]
	if !ok {
		return nil, fmt.Errorf("persistence: no account for user %q", userID)
	}
	return &a, nil
}

func (s *InMemoryStore) Debit(ctx context.Context, userID string, amount float64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[userID]
	if !ok {
		return 0, fmt.Errorf("persistence: no account for user %q", userID)
	}
	a.Balance -= amount
	s.accounts[userID] = a
	return a.Balance, nil
}
