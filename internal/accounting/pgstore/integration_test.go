package pgstore_test

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/finops-gl/internal/accounting"
	"github.com/odyssey-erp/finops-gl/internal/accounting/accounts"
	"github.com/odyssey-erp/finops-gl/internal/accounting/balances"
	"github.com/odyssey-erp/finops-gl/internal/accounting/journals"
	"github.com/odyssey-erp/finops-gl/internal/accounting/ledgertest"
	"github.com/odyssey-erp/finops-gl/internal/accounting/mappings"
	"github.com/odyssey-erp/finops-gl/internal/accounting/pgstore"
	"github.com/odyssey-erp/finops-gl/internal/accounting/seed"
	"github.com/odyssey-erp/finops-gl/internal/accounting/settlements"
	"github.com/odyssey-erp/finops-gl/internal/platform/db"
	"github.com/odyssey-erp/finops-gl/internal/shared"
)

var amt = ledgertest.Amount

// openSchema migrates a throwaway schema on GL_TEST_DATABASE_URL.
func openSchema(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("GL_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("GL_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	admin, err := db.New(ctx, dsn, db.PoolOptions{})
	require.NoError(t, err)
	schema := "gl_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	_, err = admin.Exec(ctx, "CREATE SCHEMA "+schema)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = admin.Exec(context.Background(), "DROP SCHEMA "+schema+" CASCADE")
		admin.Close()
	})

	cfg, err := pgxpool.ParseConfig(dsn)
	require.NoError(t, err)
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	applied, err := pgstore.Migrate(ctx, pool, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_gl"}, applied)
	again, err := pgstore.Migrate(ctx, pool, nil)
	require.NoError(t, err)
	assert.Empty(t, again)
	return pool
}

func TestPostgresLedgerRoundTrip(t *testing.T) {
	pool := openSchema(t)
	ctx := context.Background()
	store := pgstore.New(pool)
	audit := shared.NewMemoryAudit(nil)
	maps := mappings.NewService(store, nil, audit, nil)
	accts := accounts.NewService(store, audit, maps, nil)
	res, err := seed.Demo(ctx, store, accts, maps, ledgertest.Branch, ledgertest.Actor)
	require.NoError(t, err)

	_, err = accts.Create(ctx, accounts.CreateAccountInput{Code: strings.ToLower(seed.CodeCash), Name: "dup", Type: accounting.AccountTypeAsset, ActorID: "admin"})
	assert.ErrorIs(t, err, accounting.ErrDuplicateCode)

	engine := journals.NewService(store, maps, journals.NewULIDReferences("GL"), audit, nil)
	engine.WithNow(func() time.Time { return time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC) })

	eventID := uuid.New()
	collect := journals.BusinessEvent{
		EventID:         eventID,
		TransactionType: accounting.TxJumiaPODCollection,
		BranchID:        ledgertest.Branch,
		Amount:          amt("300"),
		TrackingID:      "PKG-1",
		ActorID:         "rider",
	}
	entry, err := engine.PostEvent(ctx, collect)
	require.NoError(t, err)
	require.Len(t, entry.Lines, 2)
	assert.Equal(t, eventID, entry.EventID)

	_, err = engine.PostEvent(ctx, collect)
	assert.ErrorIs(t, err, accounting.ErrSourceAlreadyLinked)

	settle := settlements.NewService(store, engine, audit, nil)
	settle.WithNow(func() time.Time { return time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC) })
	submitted, err := settle.Submit(ctx, settlements.SubmitInput{
		BranchID:       ledgertest.Branch,
		Partner:        accounting.PartnerJumia,
		Amount:         amt("120"),
		Reference:      "JS-1",
		FloatAccountID: seed.FloatID(ledgertest.Branch, accounting.FloatCashInTill),
		TrackingIDs:    []string{"PKG-1"},
		ActorID:        "cashier",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"PKG-1"}, submitted.Record.TrackingIDs)

	_, err = settle.Submit(ctx, settlements.SubmitInput{
		BranchID:       ledgertest.Branch,
		Partner:        accounting.PartnerJumia,
		Amount:         amt("500"),
		Reference:      "JS-2",
		FloatAccountID: seed.FloatID(ledgertest.Branch, accounting.FloatCashInTill),
		ActorID:        "cashier",
	})
	assert.ErrorIs(t, err, accounting.ErrInsufficientLiability)

	calc, err := settle.Calculate(ctx, settlements.CalculateInput{BranchID: ledgertest.Branch, Partner: accounting.PartnerJumia})
	require.NoError(t, err)
	assert.True(t, calc.SettlementAmount.Equal(amt("180")), calc.SettlementAmount.String())
	assert.Equal(t, 0, calc.UnsettledPackageCount)

	stats := balances.NewService(store, 0, nil)
	payable, err := stats.BalanceOf(ctx, res.Accounts[seed.CodeJumiaPayable].ID, nil)
	require.NoError(t, err)
	assert.True(t, payable.Equal(amt("180")), payable.String())

	report, err := stats.CheckIntegrity(ctx)
	require.NoError(t, err)
	assert.True(t, report.Healthy())

	page, err := stats.History(ctx, balances.HistoryQuery{Filter: accounting.HistoryFilter{BranchID: ledgertest.Branch}, Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, 4, page.Total)
	assert.Len(t, page.Items, 3)
	require.NotEmpty(t, page.NextCursor)
	rest, err := stats.History(ctx, balances.HistoryQuery{Filter: accounting.HistoryFilter{BranchID: ledgertest.Branch}, Cursor: page.NextCursor, Limit: 3})
	require.NoError(t, err)
	assert.Len(t, rest.Items, 1)
	assert.Empty(t, rest.NextCursor)
}
