package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r3e/taskgraph/pkg/billing"
	"github.com/r3e/taskgraph/pkg/memory"
)

func TestInMemoryStore_SatisfiesStoreContract(t *testing.T) {
	var _ Store = NewInMemoryStore()
}

func TestInMemoryStore_GraphSnapshotRoundTrips(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	snap := GraphSnapshot{ID: "g1", Status: "RUNNING", StateJSON: "{}", CreatedAt: time.Now(), UpdatedAt: time.Now()}
	require.NoError(t, s.UpsertGraphSnapshot(ctx, snap))

	got, err := s.GetGraphSnapshot(ctx, "g1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "RUNNING", got.Status)
}

func TestInMemoryStore_MemoryRecordRoundTrips(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, memory.Record{RecordID: "r1", GoalSummary: "x"}))

	got, err := s.Get(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "x", got.GoalSummary)
}

func TestInMemoryStore_DebitDecrementsBalance(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	s.SeedAccount(billing.Account{UserID: "u1", Balance: 1.0, Tier: billing.Tier{Name: "free", MaxNodesPerGraph: 10}})

	remaining, err := s.Debit(ctx, "u1", 0.1)
	require.NoError(t, err)
	assert.InDelta(t, 0.9, remaining, 1e-9)
}
