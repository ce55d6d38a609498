// Package balances answers balance, statistics, history and report queries over
// posted journal lines.
package balances

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/finops-gl/internal/accounting"
	"github.com/odyssey-erp/finops-gl/internal/accounting/reports"
	"github.com/odyssey-erp/finops-gl/internal/shared"
)

// DefaultActivityWindow bounds RecentActivityByModule when no window is configured.
const DefaultActivityWindow = 30 * 24 * time.Hour

type Service struct {
	store  accounting.Store
	window time.Duration
	group  singleflight.Group
	logger *slog.Logger
	now    func() time.Time
}

func NewService(store accounting.Store, window time.Duration, logger *slog.Logger) *Service {
	if window <= 0 {
		window = DefaultActivityWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, window: window, logger: logger, now: time.Now}
}

func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// BalanceOf returns the balance of an account in its normal direction. A nil asOf
// reads the running balance; otherwise the balance is derived from lines dated on or
// before asOf.
func (s *Service) BalanceOf(ctx context.Context, accountID int64, asOf *time.Time) (decimal.Decimal, error) {
	if accountID <= 0 {
		return decimal.Zero, accounting.NewValidationError("account_id", "must be a positive integer")
	}
	var balance decimal.Decimal
	err := s.store.WithSnapshot(ctx, func(ctx context.Context, tx accounting.Tx) error {
		account, err := tx.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		if asOf == nil {
			balance = account.Balance
			return nil
		}
		debit, credit, err := tx.SumAccountLines(ctx, accountID, asOf)
		if err != nil {
			return err
		}
		balance = account.Type.SignedDelta(debit, credit)
		return nil
	})
	if err != nil {
		return decimal.Zero, accounting.AsPersistence("balance of account", err)
	}
	return balance, nil
}

// Statistics summarises the ledger. Concurrent calls for the same branch share one
// read, which runs detached from any single caller's cancellation; each caller
// still stops waiting when its own ctx is done.
func (s *Service) Statistics(ctx context.Context, branchID string) (Statistics, error) {
	flight := s.group.DoChan("stats:"+branchID, func() (any, error) {
		return s.statistics(context.WithoutCancel(ctx), branchID)
	})
	select {
	case <-ctx.Done():
		return Statistics{}, ctx.Err()
	case res := <-flight:
		if res.Err != nil {
			return Statistics{}, res.Err
		}
		if res.Shared {
			s.logger.Debug("statistics coalesced", slog.String("branch_id", branchID))
		}
		return res.Val.(Statistics), nil
	}
}

func (s *Service) statistics(ctx context.Context, branchID string) (Statistics, error) {
	now := s.now()
	stats := Statistics{
		BranchID:               branchID,
		TotalDebits:            decimal.Zero,
		TotalCredits:           decimal.Zero,
		BalanceDifference:      decimal.Zero,
		NetPosition:            decimal.Zero,
		AccountsByType:         make(map[accounting.AccountType]TypeSummary, len(accounting.AccountTypes)),
		RecentActivityByModule: make(map[accounting.EntrySource]ModuleActivity),
		ActivityWindow:         s.window.String(),
		GeneratedAt:            now.UTC(),
	}
	for _, typ := range accounting.AccountTypes {
		stats.AccountsByType[typ] = TypeSummary{Balance: decimal.Zero}
	}
	for _, src := range accounting.AutomatedSources {
		stats.RecentActivityByModule[src] = ModuleActivity{Volume: decimal.Zero}
	}
	for _, src := range accounting.ManualSources {
		stats.RecentActivityByModule[src] = ModuleActivity{Volume: decimal.Zero}
	}

	err := s.store.WithSnapshot(ctx, func(ctx context.Context, tx accounting.Tx) error {
		accounts, _, err := tx.ListAccounts(ctx, accounting.AccountFilter{BranchID: branchID})
		if err != nil {
			return err
		}
		for _, acc := range accounts {
			summary := stats.AccountsByType[acc.Type]
			summary.Count++
			stats.TotalAccounts++
			if acc.IsActive {
				summary.Active++
				stats.ActiveAccounts++
			}
			stats.AccountsByType[acc.Type] = summary
		}

		rows, err := s.accountBalances(ctx, tx, branchID, nil)
		if err != nil {
			return err
		}
		for _, row := range rows {
			stats.TotalDebits = stats.TotalDebits.Add(row.Debit)
			stats.TotalCredits = stats.TotalCredits.Add(row.Credit)
			summary := stats.AccountsByType[row.Type]
			summary.Balance = summary.Balance.Add(row.Balance())
			stats.AccountsByType[row.Type] = summary
		}
		stats.BalanceDifference = stats.TotalDebits.Sub(stats.TotalCredits)
		stats.IsBalanced = accounting.Balanced(stats.TotalDebits, stats.TotalCredits)
		stats.NetPosition = reports.BuildProfitAndLoss(rows).NetIncome
		stats.FinancialPosition = reports.BuildFinancialPosition(rows)

		lifetime, err := tx.SourceActivity(ctx, branchID, nil)
		if err != nil {
			return err
		}
		for _, src := range lifetime {
			stats.TotalTransactions += src.Entries
		}

		since := now.Add(-s.window)
		recent, err := tx.SourceActivity(ctx, branchID, &since)
		if err != nil {
			return err
		}
		for _, src := range recent {
			stats.RecentActivityByModule[src.Source] = ModuleActivity{Entries: src.Entries, Volume: src.Debits}
		}
		return nil
	})
	if err != nil {
		return Statistics{}, accounting.AsPersistence("ledger statistics", err)
	}
	if !stats.IsBalanced {
		s.logger.Warn("ledger out of balance",
			slog.String("branch_id", branchID),
			slog.String("difference", stats.BalanceDifference.StringFixed(2)))
	}
	return stats, nil
}

// History returns one page of journal lines, newest first. The first page pins the
// highest line id so later pages never shift when new lines are posted.
func (s *Service) History(ctx context.Context, query HistoryQuery) (HistoryPage, error) {
	if err := validateFilter(query.Filter); err != nil {
		return HistoryPage{}, err
	}
	limit := shared.ClampPerPage(query.Limit)
	window := accounting.HistoryWindow{Filter: query.Filter, Limit: limit + 1}
	if query.Cursor != "" {
		c, err := decodeCursor(query.Cursor)
		if err != nil {
			return HistoryPage{}, err
		}
		window.Watermark = c.Watermark
		window.After = c.key()
	}

	page := HistoryPage{Items: []accounting.HistoryItem{}}
	err := s.store.WithSnapshot(ctx, func(ctx context.Context, tx accounting.Tx) error {
		if window.After == nil {
			watermark, err := tx.MaxLineID(ctx)
			if err != nil {
				return err
			}
			if watermark == 0 {
				return nil
			}
			window.Watermark = watermark
		}
		items, err := tx.ListHistory(ctx, window)
		if err != nil {
			return err
		}
		total, err := tx.CountHistory(ctx, query.Filter, window.Watermark)
		if err != nil {
			return err
		}
		page.Total = total
		if len(items) > limit {
			items = items[:limit]
			page.NextCursor = encodeCursor(window.Watermark, items[len(items)-1].Key())
		}
		page.Items = append(page.Items, items...)
		return nil
	})
	if err != nil {
		return HistoryPage{}, accounting.AsPersistence("transaction history", err)
	}
	return page, nil
}

func validateFilter(filter accounting.HistoryFilter) error {
	var errs accounting.ValidationErrors
	if filter.AccountID < 0 {
		errs = append(errs, accounting.NewValidationError("account_id", "must be a positive integer"))
	}
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		errs = append(errs, accounting.NewValidationError("from", "must not be after to"))
	}
	return errs.Err()
}

// TrialBalance lists debit and credit activity per account up to asOf.
func (s *Service) TrialBalance(ctx context.Context, branchID string, asOf *time.Time) (reports.TrialBalance, error) {
	rows, err := s.snapshotBalances(ctx, branchID, asOf)
	if err != nil {
		return reports.TrialBalance{}, accounting.AsPersistence("trial balance", err)
	}
	return reports.BuildTrialBalance(rows), nil
}

// ProfitAndLoss reports revenue against expense up to asOf.
func (s *Service) ProfitAndLoss(ctx context.Context, branchID string, asOf *time.Time) (reports.ProfitAndLoss, error) {
	rows, err := s.snapshotBalances(ctx, branchID, asOf)
	if err != nil {
		return reports.ProfitAndLoss{}, accounting.AsPersistence("profit and loss", err)
	}
	return reports.BuildProfitAndLoss(rows), nil
}

// BalanceSheet reports assets against liabilities and equity up to asOf.
func (s *Service) BalanceSheet(ctx context.Context, branchID string, asOf *time.Time) (reports.BalanceSheet, error) {
	rows, err := s.snapshotBalances(ctx, branchID, asOf)
	if err != nil {
		return reports.BalanceSheet{}, accounting.AsPersistence("balance sheet", err)
	}
	return reports.BuildBalanceSheet(rows), nil
}

func (s *Service) snapshotBalances(ctx context.Context, branchID string, asOf *time.Time) ([]reports.AccountBalance, error) {
	var rows []reports.AccountBalance
	err := s.store.WithSnapshot(ctx, func(ctx context.Context, tx accounting.Tx) error {
		var err error
		rows, err = s.accountBalances(ctx, tx, branchID, asOf)
		return err
	})
	return rows, err
}

// accountBalances joins line activity with account metadata.
func (s *Service) accountBalances(ctx context.Context, tx accounting.Tx, branchID string, asOf *time.Time) ([]reports.AccountBalance, error) {
	activity, err := tx.AccountActivity(ctx, branchID, asOf)
	if err != nil {
		return nil, err
	}
	accounts, err := accountIndex(ctx, tx)
	if err != nil {
		return nil, err
	}
	rows := make([]reports.AccountBalance, 0, len(activity))
	for _, act := range activity {
		acc, ok := accounts[act.AccountID]
		if !ok {
			return nil, &accounting.ReconciliationError{Detail: "journal lines reference an unknown account"}
		}
		rows = append(rows, reports.AccountBalance{
			AccountID: acc.ID,
			Code:      acc.Code,
			Name:      acc.Name,
			Type:      acc.Type,
			Subtype:   acc.Subtype,
			Debit:     act.Debit,
			Credit:    act.Credit,
		})
	}
	return rows, nil
}

func accountIndex(ctx context.Context, tx accounting.Tx) (map[int64]accounting.Account, error) {
	accounts, _, err := tx.ListAccounts(ctx, accounting.AccountFilter{})
	if err != nil {
		return nil, err
	}
	index := make(map[int64]accounting.Account, len(accounts))
	for _, acc := range accounts {
		index[acc.ID] = acc
	}
	return index, nil
}

// CheckIntegrity verifies the global invariant and compares every cached balance
// with the balance derived from its lines.
func (s *Service) CheckIntegrity(ctx context.Context) (IntegrityReport, error) {
	report := IntegrityReport{
		TotalDebits:     decimal.Zero,
		TotalCredits:    decimal.Zero,
		DriftedAccounts: []DriftedAccount{},
		CheckedAt:       s.now().UTC(),
	}
	err := s.store.WithSnapshot(ctx, func(ctx context.Context, tx accounting.Tx) error {
		activity, err := tx.AccountActivity(ctx, "", nil)
		if err != nil {
			return err
		}
		derived := make(map[int64]accounting.AccountActivity, len(activity))
		for _, act := range activity {
			derived[act.AccountID] = act
			report.TotalDebits = report.TotalDebits.Add(act.Debit)
			report.TotalCredits = report.TotalCredits.Add(act.Credit)
		}
		accounts, _, err := tx.ListAccounts(ctx, accounting.AccountFilter{})
		if err != nil {
			return err
		}
		for _, acc := range accounts {
			act, ok := derived[acc.ID]
			want := decimal.Zero
			if ok {
				want = acc.Type.SignedDelta(act.Debit, act.Credit)
			}
			if acc.Balance.Equal(want) {
				continue
			}
			report.DriftedAccounts = append(report.DriftedAccounts, DriftedAccount{
				AccountID: acc.ID,
				Code:      acc.Code,
				Cached:    acc.Balance,
				Derived:   want,
				Drift:     acc.Balance.Sub(want),
			})
		}
		return nil
	})
	if err != nil {
		return IntegrityReport{}, accounting.AsPersistence("integrity check", err)
	}
	report.Difference = report.TotalDebits.Sub(report.TotalCredits)
	report.IsBalanced = accounting.Balanced(report.TotalDebits, report.TotalCredits)
	return report, nil
}
