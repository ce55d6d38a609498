package balances

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/finops-gl/internal/accounting"
	"github.com/odyssey-erp/finops-gl/internal/accounting/journals"
	"github.com/odyssey-erp/finops-gl/internal/accounting/ledgertest"
	"github.com/odyssey-erp/finops-gl/internal/accounting/seed"
)

var amt = ledgertest.Amount

var clock = time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC)

type fixture struct {
	*ledgertest.Ledger
	engine  *journals.Service
	service *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	l := ledgertest.New(t)
	engine := journals.NewService(l.Store, l.Mappings, nil, l.Audit, nil)
	engine.WithNow(func() time.Time { return time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC) })
	svc := NewService(l.Store, 720*time.Hour, nil)
	svc.WithNow(func() time.Time { return clock })
	return &fixture{Ledger: l, engine: engine, service: svc}
}

func (f *fixture) post(t *testing.T, date time.Time, debitCode, creditCode, amount string) accounting.JournalEntry {
	t.Helper()
	entry, err := f.engine.Post(context.Background(), journals.PostingInput{
		Date:        date,
		Description: "Adjustment " + debitCode + "/" + creditCode,
		Source:      accounting.SourceManual,
		BranchID:    ledgertest.Branch,
		ActorID:     "clerk",
		Lines: []journals.PostingLineInput{
			{AccountID: f.ID(debitCode), Debit: amt(amount)},
			{AccountID: f.ID(creditCode), Credit: amt(amount)},
		},
	})
	require.NoError(t, err)
	return entry
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestStatisticsOnEmptyLedgerIsZeroDefaulted(t *testing.T) {
	f := newFixture(t)
	stats, err := f.service.Statistics(context.Background(), ledgertest.Branch)
	require.NoError(t, err)

	assert.Equal(t, 9, stats.TotalAccounts)
	assert.Equal(t, 9, stats.ActiveAccounts)
	assert.Zero(t, stats.TotalTransactions)
	assert.True(t, stats.TotalDebits.IsZero())
	assert.True(t, stats.IsBalanced)
	assert.True(t, stats.NetPosition.IsZero())
	assert.True(t, stats.FinancialPosition.Total.IsZero())
	assert.Len(t, stats.AccountsByType, len(accounting.AccountTypes))
	assert.Len(t, stats.RecentActivityByModule, len(accounting.AutomatedSources)+len(accounting.ManualSources))
	assert.Equal(t, 4, stats.AccountsByType[accounting.AccountTypeAsset].Count)
	assert.Equal(t, "720h0m0s", stats.ActivityWindow)
}

func TestStatisticsAggregatesPostings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.post(t, day(2023, 1, 1), seed.CodeCash, seed.CodeOwnerEquity, "1000")
	_, err := f.engine.PostEvent(ctx, journals.BusinessEvent{
		EventID:         uuid.New(),
		TransactionType: accounting.TxMomoCashIn,
		BranchID:        ledgertest.Branch,
		FloatAccountID:  seed.FloatID(ledgertest.Branch, accounting.FloatMomo),
		Amount:          amt("100"),
		Fee:             amt("1.50"),
		ActorID:         "teller",
	})
	require.NoError(t, err)
	f.post(t, day(2024, 3, 18), seed.CodeOperatingExpense, seed.CodeCash, "40")

	stats, err := f.service.Statistics(ctx, ledgertest.Branch)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalTransactions)
	assert.True(t, stats.TotalDebits.Equal(amt("1141.50")), stats.TotalDebits.String())
	assert.True(t, stats.TotalCredits.Equal(stats.TotalDebits))
	assert.True(t, stats.IsBalanced)
	assert.True(t, stats.BalanceDifference.IsZero())
	assert.True(t, stats.NetPosition.Equal(amt("-38.50")), stats.NetPosition.String())

	pos := stats.FinancialPosition
	assert.True(t, pos.Cash.Equal(amt("1061.50")), pos.Cash.String())
	assert.True(t, pos.Float.Equal(amt("-100")))
	assert.True(t, pos.Total.Equal(amt("961.50")))
	assert.True(t, stats.AccountsByType[accounting.AccountTypeAsset].Balance.Equal(pos.Total))

	momo := stats.RecentActivityByModule[accounting.SourceMomo]
	assert.Equal(t, 1, momo.Entries)
	assert.True(t, momo.Volume.Equal(amt("101.50")))
	manual := stats.RecentActivityByModule[accounting.SourceManual]
	assert.Equal(t, 1, manual.Entries, "entries outside the activity window are excluded")
	assert.Zero(t, stats.RecentActivityByModule[accounting.SourceJumia].Entries)

	other, err := f.service.Statistics(ctx, "b9")
	require.NoError(t, err)
	assert.Zero(t, other.TotalTransactions)
}

func TestStatisticsConcurrentCallsAgree(t *testing.T) {
	f := newFixture(t)
	f.post(t, day(2024, 3, 1), seed.CodeCash, seed.CodeOwnerEquity, "10")
	var wg sync.WaitGroup
	results := make([]Statistics, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			stats, err := f.service.Statistics(context.Background(), ledgertest.Branch)
			assert.NoError(t, err)
			results[i] = stats
		}(i)
	}
	wg.Wait()
	for _, stats := range results {
		assert.Equal(t, 1, stats.TotalTransactions)
	}
}

// gatedStore holds the first snapshot until released and honours ctx while it waits.
type gatedStore struct {
	accounting.Store
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedStore) WithSnapshot(ctx context.Context, fn func(ctx context.Context, tx accounting.Tx) error) error {
	g.once.Do(func() { close(g.entered) })
	select {
	case <-g.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	return g.Store.WithSnapshot(ctx, fn)
}

func TestStatisticsCancelledCallerDoesNotFailOthers(t *testing.T) {
	f := newFixture(t)
	f.post(t, day(2024, 3, 1), seed.CodeCash, seed.CodeOwnerEquity, "10")
	gate := &gatedStore{Store: f.Store, entered: make(chan struct{}), release: make(chan struct{})}
	svc := NewService(gate, 720*time.Hour, nil)
	svc.WithNow(func() time.Time { return clock })

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.Statistics(firstCtx, ledgertest.Branch)
		firstErr <- err
	}()
	<-gate.entered

	type result struct {
		stats Statistics
		err   error
	}
	second := make(chan result, 1)
	go func() {
		stats, err := svc.Statistics(context.Background(), ledgertest.Branch)
		second <- result{stats, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)
	close(gate.release)

	got := <-second
	require.NoError(t, got.err)
	assert.Equal(t, 1, got.stats.TotalTransactions)
}

func TestGlobalInvariantSurvivesLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.post(t, day(2024, 3, 1), seed.CodeCash, seed.CodeOwnerEquity, "500")
	reversed := f.post(t, day(2024, 3, 2), seed.CodeOperatingExpense, seed.CodeCash, "120.40")
	deleted := f.post(t, day(2024, 3, 3), seed.CodeEquipment, seed.CodeCash, "80")

	_, err := f.engine.Reverse(ctx, journals.ReverseInput{EntryID: reversed.ID, ActorID: "clerk"})
	require.NoError(t, err)
	_, err = f.engine.Delete(ctx, journals.DeleteInput{EntryID: deleted.ID, ActorID: "clerk", Reason: "duplicate"})
	require.NoError(t, err)

	report, err := f.service.CheckIntegrity(ctx)
	require.NoError(t, err)
	assert.True(t, report.Healthy(), "%+v", report)
	assert.True(t, report.TotalDebits.Equal(amt("740.80")), report.TotalDebits.String())

	cash, err := f.service.BalanceOf(ctx, f.ID(seed.CodeCash), nil)
	require.NoError(t, err)
	assert.True(t, cash.Equal(amt("500")), "reversal and deletion restore the balance: %s", cash)
	assert.True(t, f.Balance(t, seed.CodeOperatingExpense).IsZero())
	assert.True(t, f.Balance(t, seed.CodeEquipment).IsZero())
}

func TestCheckIntegrityReportsDrift(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.post(t, day(2024, 3, 1), seed.CodeCash, seed.CodeOwnerEquity, "50")
	require.NoError(t, f.Store.WithTx(ctx, func(ctx context.Context, tx accounting.Tx) error {
		return tx.AdjustAccountBalances(ctx, map[int64]decimal.Decimal{f.ID(seed.CodeCash): amt("5")})
	}))

	report, err := f.service.CheckIntegrity(ctx)
	require.NoError(t, err)
	assert.True(t, report.IsBalanced, "lines still balance")
	require.Len(t, report.DriftedAccounts, 1)
	drift := report.DriftedAccounts[0]
	assert.Equal(t, seed.CodeCash, drift.Code)
	assert.True(t, drift.Cached.Equal(amt("55")))
	assert.True(t, drift.Derived.Equal(amt("50")))
	assert.True(t, drift.Drift.Equal(amt("5")))
	assert.False(t, report.Healthy())
}

func TestBalanceOfAsOfDerivesFromLines(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.post(t, day(2024, 1, 10), seed.CodeCash, seed.CodeOwnerEquity, "100")
	f.post(t, day(2024, 2, 10), seed.CodeCash, seed.CodeOwnerEquity, "50")

	asOf := day(2024, 1, 31)
	historic, err := f.service.BalanceOf(ctx, f.ID(seed.CodeCash), &asOf)
	require.NoError(t, err)
	assert.True(t, historic.Equal(amt("100")))

	equity, err := f.service.BalanceOf(ctx, f.ID(seed.CodeOwnerEquity), &asOf)
	require.NoError(t, err)
	assert.True(t, equity.Equal(amt("100")), "credit-normal accounts grow with credits")

	current, err := f.service.BalanceOf(ctx, f.ID(seed.CodeCash), nil)
	require.NoError(t, err)
	assert.True(t, current.Equal(amt("150")))

	_, err = f.service.BalanceOf(ctx, 99999, nil)
	assert.ErrorIs(t, err, accounting.ErrNotFound)
}

func TestHistoryPaginationIsCompleteAndStable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 7; i++ {
		f.post(t, day(2024, 3, 1+i%3), seed.CodeCash, seed.CodeOwnerEquity, "10")
	}

	seen := make(map[int64]bool)
	var collected []accounting.HistoryItem
	query := HistoryQuery{Filter: accounting.HistoryFilter{BranchID: ledgertest.Branch}, Limit: 4}
	for pages := 0; ; pages++ {
		require.Less(t, pages, 10)
		page, err := f.service.History(ctx, query)
		require.NoError(t, err)
		assert.Equal(t, 14, page.Total)
		for _, item := range page.Items {
			assert.False(t, seen[item.LineID], "line %d returned twice", item.LineID)
			seen[item.LineID] = true
		}
		collected = append(collected, page.Items...)
		if pages == 0 {
			f.post(t, day(2024, 3, 9), seed.CodeCash, seed.CodeOwnerEquity, "1")
		}
		if page.NextCursor == "" {
			break
		}
		query.Cursor = page.NextCursor
	}
	require.Len(t, collected, 14)
	for i := 1; i < len(collected); i++ {
		prev, cur := collected[i-1], collected[i]
		if prev.Date.Equal(cur.Date) {
			assert.Greater(t, prev.LineID, cur.LineID)
		} else {
			assert.True(t, prev.Date.After(cur.Date))
		}
	}

	fresh, err := f.service.History(ctx, HistoryQuery{Limit: 100})
	require.NoError(t, err)
	assert.Equal(t, 16, fresh.Total, "a new walk sees lines posted after the old watermark")
}

func TestHistoryFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.post(t, day(2024, 3, 1), seed.CodeCash, seed.CodeOwnerEquity, "10")
	f.post(t, day(2024, 3, 5), seed.CodeOperatingExpense, seed.CodeCash, "4")

	page, err := f.service.History(ctx, HistoryQuery{Filter: accounting.HistoryFilter{AccountID: f.ID(seed.CodeOperatingExpense)}})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, seed.CodeOperatingExpense, page.Items[0].AccountCode)

	from := day(2024, 3, 2)
	page, err = f.service.History(ctx, HistoryQuery{Filter: accounting.HistoryFilter{From: &from}})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)

	to := day(2024, 2, 1)
	_, err = f.service.History(ctx, HistoryQuery{Filter: accounting.HistoryFilter{From: &from, To: &to}})
	assert.ErrorIs(t, err, accounting.ErrValidation)

	_, err = f.service.History(ctx, HistoryQuery{Cursor: "not-a-cursor"})
	assert.ErrorIs(t, err, accounting.ErrValidation)
}

func TestTrialBalanceAsOf(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.post(t, day(2024, 1, 5), seed.CodeCash, seed.CodeOwnerEquity, "300")
	f.post(t, day(2024, 2, 5), seed.CodeOperatingExpense, seed.CodeCash, "20")

	asOf := day(2024, 1, 31)
	tb, err := f.service.TrialBalance(ctx, ledgertest.Branch, &asOf)
	require.NoError(t, err)
	assert.True(t, tb.IsBalanced)
	assert.True(t, tb.TotalDebit.Equal(amt("300")))

	tb, err = f.service.TrialBalance(ctx, "", nil)
	require.NoError(t, err)
	assert.True(t, tb.TotalDebit.Equal(amt("320")))

	pl, err := f.service.ProfitAndLoss(ctx, ledgertest.Branch, nil)
	require.NoError(t, err)
	assert.True(t, pl.NetIncome.Equal(amt("-20")))

	bs, err := f.service.BalanceSheet(ctx, ledgertest.Branch, nil)
	require.NoError(t, err)
	assert.True(t, bs.IsBalanced)
}

func TestHandlerRoutes(t *testing.T) {
	f := newFixture(t)
	f.post(t, day(2024, 3, 1), seed.CodeCash, seed.CodeOwnerEquity, "25")
	r := chi.NewRouter()
	NewHandler(nil, f.service).MountRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/statistics?branch_id=b1", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var stats struct {
		TotalTransactions int                        `json:"total_transactions"`
		AccountsByType    map[string]json.RawMessage `json:"accounts_by_type"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.TotalTransactions)
	assert.Len(t, stats.AccountsByType, 5)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/transactions?limit=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Items      []json.RawMessage `json:"items"`
		Total      int               `json:"total"`
		NextCursor string            `json:"next_cursor"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Len(t, page.Items, 1)
	assert.Equal(t, 2, page.Total)
	assert.NotEmpty(t, page.NextCursor)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/transactions?source=bogus", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports/trial-balance?as_of=2024-03-31", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/balances/999999", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
