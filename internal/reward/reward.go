// Package reward provides implementations of the reward issuance capability
// invoked on successful claims. Minting against a real asset ledger is an
// external concern; the issuers here cover local accrual and development.
package reward

import (
	"context"
	"log"
	"sync"
)

// MemoryIssuer accrues issued rewards per (recipient, asset) in process.
type MemoryIssuer struct {
	mu       sync.Mutex
	balances map[string]map[string]uint64
}

// NewMemoryIssuer creates an issuer with no balances.
func NewMemoryIssuer() *MemoryIssuer {
	return &MemoryIssuer{balances: make(map[string]map[string]uint64)}
}

// Issue credits amount units of asset to recipient.
func (m *MemoryIssuer) Issue(ctx context.Context, recipient, asset string, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	assets, ok := m.balances[recipient]
	if !ok {
		assets = make(map[string]uint64)
		m.balances[recipient] = assets
	}
	assets[asset] += amount
	return nil
}

// Balance returns the accrued amount of asset held by recipient.
func (m *MemoryIssuer) Balance(recipient, asset string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[recipient][asset]
}

// LogIssuer logs every issuance and reports success. It stands in where the
// real minting bridge is not wired.
type LogIssuer struct{}

// Issue implements the issuer capability.
func (LogIssuer) Issue(ctx context.Context, recipient, asset string, amount uint64) error {
	log.Printf("issued %d units of %s to %s", amount, asset, recipient)
	return nil
}
