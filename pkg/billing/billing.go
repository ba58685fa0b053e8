// Package billing implements the Billing Gate: tier-limit checks on
// submission and per-node credit debits during execution (spec.md §4.7).
package billing

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	ErrTierLimitExceeded = errors.New("billing: graph exceeds tier's max nodes per graph")
	ErrBudgetExceeded    = errors.New("billing: insufficient balance")
)

// DefaultCostPerNode is the orchestration-cycle cost charged per node
// execution (spec.md §4.7).
const DefaultCostPerNode = 0.1

// Tier bounds how large a graph an account may submit.
type Tier struct {
	Name             string
	MaxNodesPerGraph int
}

// DefaultTierName is assigned to an account whose stored tier name does
// not resolve against TierLimits.
const DefaultTierName = "free"

// TierLimits is the static tier table (spec.md §4.7): accounts store only
// a tier name, and this map resolves it to the enforced limit. A
// persistence layer's GetAccount must call ResolveTier rather than
// leaving MaxNodesPerGraph at its zero value.
var TierLimits = map[string]Tier{
	"free":       {Name: "free", MaxNodesPerGraph: 5},
	"pro":        {Name: "pro", MaxNodesPerGraph: 50},
	"enterprise": {Name: "enterprise", MaxNodesPerGraph: 500},
}

// ResolveTier looks up name in TierLimits, falling back to DefaultTierName
// for an unknown or empty tier name.
func ResolveTier(name string) Tier {
	if t, ok := TierLimits[name]; ok {
		return t
	}
	return TierLimits[DefaultTierName]
}

// Account is a user's billing balance and tier.
type Account struct {
	UserID  string
	Balance float64
	Tier    Tier
}

// Ledger is the persistence contract for account balances.
type Ledger interface {
	GetAccount(ctx context.Context, userID string) (*Account, error)
	// Debit atomically subtracts amount from userID's balance inside a
	// transaction and returns the resulting balance.
	Debit(ctx context.Context, userID string, amount float64) (remaining float64, err error)
}

// Gate enforces tier limits at submission and debits credits per node.
type Gate struct {
	Ledger      Ledger
	CostPerNode float64
}

func NewGate(ledger Ledger) *Gate {
	return &Gate{Ledger: ledger, CostPerNode: DefaultCostPerNode}
}

// CheckGraphLimit rejects a submission whose node count exceeds the
// account's tier cap.
func (g *Gate) CheckGraphLimit(ctx context.Context, userID string, nodeCount int) error {
	account, err := g.Ledger.GetAccount(ctx, userID)
	if err != nil {
		return fmt.Errorf("billing: lookup account: %w", err)
	}
	if nodeCount > account.Tier.MaxNodesPerGraph {
		return fmt.Errorf("%w: %d nodes > tier %q limit %d",
			ErrTierLimitExceeded, nodeCount, account.Tier.Name, account.Tier.MaxNodesPerGraph)
	}
	return nil
}

// ForUser binds a NodeBiller to a specific user's account, satisfying the
// Handler Runtime's Biller interface over a single orchestration run.
func (g *Gate) ForUser(userID string) *NodeBiller {
	return &NodeBiller{gate: g, userID: userID}
}

// NodeBiller debits one node-execution cost per call.
type NodeBiller struct {
	gate   *Gate
	userID string
}

func (b *NodeBiller) DebitOne(ctx context.Context) error {
	remaining, err := b.gate.Ledger.Debit(ctx, b.userID, b.gate.CostPerNode)
	if err != nil {
		return fmt.Errorf("billing: debit: %w", err)
	}
	if remaining < 0 {
		return ErrBudgetExceeded
	}
	return nil
}

// MemoryLedger is an in-process Ledger, useful for tests and for running
// without a configured persistence backend.
type MemoryLedger struct {
	mu       sync.Mutex
	accounts map[string]*Account
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{accounts: make(map[string]*Account)}
}

// Seed registers an account, overwriting any existing entry for the user.
func (m *MemoryLedger) Seed(account Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := account
	m.accounts[account.UserID] = &a
}

func (m *MemoryLedger) GetAccount(ctx context.Context, userID string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[userID]
	if !ok {
		return nil, fmt.Errorf("billing: no account for user %q", userID)
	}
	cp := *a
	return &cp, nil
}

func (m *MemoryLedger) Debit(ctx context.Context, userID string, amount float64) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[userID]
	if !ok {
		return 0, fmt.Errorf("billing: no account for user %q", userID)
	}
	a.Balance -= amount
	return a.Balance, nil
}
