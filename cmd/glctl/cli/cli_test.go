package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/finops-gl/internal/accounting"
	"github.com/odyssey-erp/finops-gl/internal/accounting/memstore"
	"github.com/odyssey-erp/finops-gl/internal/app"
	"github.com/odyssey-erp/finops-gl/internal/shared"
)

func memoryRuntime(t *testing.T) (Opener, *Runtime) {
	t.Helper()
	store := memstore.New()
	rt := &Runtime{
		Ledger: app.NewLedger(app.LedgerParams{Store: store, Audit: shared.NewMemoryAudit(nil)}),
	}
	return func(context.Context) (*Runtime, error) { return rt, nil }, rt
}

func run(t *testing.T, open Opener, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCommand(open, &out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSeedThenStats(t *testing.T) {
	open, _ := memoryRuntime(t)

	out, err := run(t, open, "seed", "--branch", "b1")
	require.NoError(t, err)
	assert.Contains(t, out, "branch b1: 9 accounts, 3 floats")

	out, err = run(t, open, "seed", "--branch", "b1")
	require.NoError(t, err)
	assert.Contains(t, out, "0 new mappings", "seeding twice is harmless")

	out, err = run(t, open, "stats", "--branch", "b1")
	require.NoError(t, err)
	var stats map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, float64(9), stats["total_accounts"])
	assert.Equal(t, true, stats["is_balanced"])
}

func TestSeedRequiresBranch(t *testing.T) {
	open, _ := memoryRuntime(t)
	_, err := run(t, open, "seed")
	assert.Error(t, err)
}

func TestIntegrityExitsUnhealthyOnDrift(t *testing.T) {
	open, rt := memoryRuntime(t)
	_, err := run(t, open, "seed", "--branch", "b1")
	require.NoError(t, err)

	out, err := run(t, open, "integrity")
	require.NoError(t, err)
	assert.Contains(t, out, `"is_balanced": true`)

	ctx := context.Background()
	require.NoError(t, rt.Ledger.Store.WithTx(ctx, func(ctx context.Context, tx accounting.Tx) error {
		account, err := tx.GetAccountByCode(ctx, "1010")
		if err != nil {
			return err
		}
		return tx.AdjustAccountBalances(ctx, map[int64]decimal.Decimal{account.ID: decimal.NewFromInt(3)})
	}))
	out, err = run(t, open, "integrity")
	assert.ErrorIs(t, err, ErrUnhealthy)
	assert.Contains(t, out, `"code": "1010"`)
}

func TestIntegrityEnqueue(t *testing.T) {
	open, rt := memoryRuntime(t)
	_, err := run(t, open, "integrity", "--enqueue")
	assert.EqualError(t, err, "no job queue configured")

	var requested string
	rt.Enqueue = func(_ context.Context, by string) (string, error) {
		requested = by
		return "task-1", nil
	}
	out, err := run(t, open, "integrity", "--enqueue")
	require.NoError(t, err)
	assert.Equal(t, "enqueued task-1\n", out)
	assert.Equal(t, "glctl", requested)
}

func TestMigrateNeedsPostgres(t *testing.T) {
	open, _ := memoryRuntime(t)
	_, err := run(t, open, "migrate")
	assert.EqualError(t, err, "migrate needs STORE_DRIVER=postgres")

	failing := func(context.Context) (*Runtime, error) { return nil, errors.New("bad config") }
	_, err = run(t, failing, "stats")
	assert.EqualError(t, err, "bad config")
}
