package billing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckGraphLimit_RejectsOversizedGraph(t *testing.T) {
	ledger := NewMemoryLedger()
	ledger.Seed(Account{UserID: "u1", Balance: 100, Tier: Tier{Name: "free", MaxNodesPerGraph: 5}})
	gate := NewGate(ledger)

	err := gate.CheckGraphLimit(context.Background(), "u1", 6)
	assert.ErrorIs(t, err, ErrTierLimitExceeded)
}

func TestCheckGraphLimit_AllowsWithinTier(t *testing.T) {
	ledger := NewMemoryLedger()
	ledger.Seed(Account{UserID: "u1", Balance: 100, Tier: Tier{Name: "free", MaxNodesPerGraph: 5}})
	gate := NewGate(ledger)

	err := gate.CheckGraphLimit(context.Background(), "u1", 5)
	assert.NoError(t, err)
}

func TestNodeBiller_ExhaustsBudget(t *testing.T) {
	ledger := NewMemoryLedger()
	ledger.Seed(Account{UserID: "u1", Balance: 0.15, Tier: Tier{MaxNodesPerGraph: 100}})
	gate := NewGate(ledger)
	biller := gate.ForUser("u1")

	require.NoError(t, biller.DebitOne(context.Background()))
	err := biller.DebitOne(context.Background())
	assert.ErrorIs(t, err, ErrBudgetExceeded)
}
