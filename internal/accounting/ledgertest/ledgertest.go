// Package ledgertest builds seeded in-memory ledgers for tests.
package ledgertest

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/finops-gl/internal/accounting"
	"github.com/odyssey-erp/finops-gl/internal/accounting/accounts"
	"github.com/odyssey-erp/finops-gl/internal/accounting/mappings"
	"github.com/odyssey-erp/finops-gl/internal/accounting/memstore"
	"github.com/odyssey-erp/finops-gl/internal/accounting/seed"
	"github.com/odyssey-erp/finops-gl/internal/shared"
)

// Branch is the branch every New ledger is seeded for.
const Branch = "b1"

// Actor is the user recorded on seeded rows.
const Actor = "tester"

// Ledger bundles a seeded store with the services that own its configuration.
type Ledger struct {
	Store    *memstore.Store
	Audit    *shared.MemoryAudit
	Accounts *accounts.Service
	Mappings *mappings.Service
	Chart    map[string]accounting.Account
}

// New seeds the demo configuration for Branch and any extra branches.
func New(t testing.TB, extraBranches ...string) *Ledger {
	t.Helper()
	ctx := context.Background()
	store := memstore.New()
	audit := shared.NewMemoryAudit(nil)
	maps := mappings.NewService(store, nil, audit, nil)
	accts := accounts.NewService(store, audit, maps, nil)
	l := &Ledger{Store: store, Audit: audit, Accounts: accts, Mappings: maps}
	for _, branch := range append([]string{Branch}, extraBranches...) {
		res, err := seed.Demo(ctx, store, accts, maps, branch, Actor)
		require.NoError(t, err)
		l.Chart = res.Accounts
	}
	return l
}

// ID returns the id of the seeded account with code.
func (l *Ledger) ID(code string) int64 {
	return l.Chart[code].ID
}

// Account reloads the account with code.
func (l *Ledger) Account(t testing.TB, code string) accounting.Account {
	t.Helper()
	var account accounting.Account
	require.NoError(t, l.Store.WithSnapshot(context.Background(), func(ctx context.Context, tx accounting.Tx) error {
		var err error
		account, err = tx.GetAccount(ctx, l.ID(code))
		return err
	}))
	return account
}

// Balance returns the cached balance of the account with code.
func (l *Ledger) Balance(t testing.TB, code string) decimal.Decimal {
	t.Helper()
	return l.Account(t, code).Balance
}

// Amount parses a decimal literal.
func Amount(raw string) decimal.Decimal {
	return decimal.RequireFromString(raw)
}
