package balances

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/finops-gl/internal/accounting"
	"github.com/odyssey-erp/finops-gl/internal/accounting/reports"
)

// Statistics summarises the ledger for a branch, or for every branch when BranchID is empty.
// Numeric fields are always populated; an empty ledger reports zeros.
type Statistics struct {
	BranchID               string                                    `json:"branch_id,omitempty"`
	TotalAccounts          int                                       `json:"total_accounts"`
	ActiveAccounts         int                                       `json:"active_accounts"`
	TotalTransactions      int                                       `json:"total_transactions"`
	TotalDebits            decimal.Decimal                           `json:"total_debits"`
	TotalCredits           decimal.Decimal                           `json:"total_credits"`
	IsBalanced             bool                                      `json:"is_balanced"`
	BalanceDifference      decimal.Decimal                           `json:"balance_difference"`
	NetPosition            decimal.Decimal                           `json:"net_position"`
	FinancialPosition      reports.FinancialPosition                 `json:"financial_position"`
	AccountsByType         map[accounting.AccountType]TypeSummary    `json:"accounts_by_type"`
	RecentActivityByModule map[accounting.EntrySource]ModuleActivity `json:"recent_activity_by_module"`
	ActivityWindow         string                                    `json:"activity_window"`
	GeneratedAt            time.Time                                 `json:"generated_at"`
}

// TypeSummary counts accounts of one type and nets their balances.
type TypeSummary struct {
	Count   int             `json:"count"`
	Active  int             `json:"active"`
	Balance decimal.Decimal `json:"balance"`
}

// ModuleActivity is the posting volume of one source inside the activity window.
type ModuleActivity struct {
	Entries int             `json:"entries"`
	Volume  decimal.Decimal `json:"volume"`
}

// HistoryQuery asks for one page of transaction history. Cursor is the NextCursor
// of the previous page; filters must stay the same while paging.
type HistoryQuery struct {
	Filter accounting.HistoryFilter
	Cursor string
	Limit  int
}

// HistoryPage is one page of history. NextCursor is empty on the last page.
type HistoryPage struct {
	Items      []accounting.HistoryItem `json:"items"`
	Total      int                      `json:"total"`
	NextCursor string                   `json:"next_cursor,omitempty"`
}

// IntegrityReport compares cached account balances with balances derived from lines.
type IntegrityReport struct {
	IsBalanced      bool             `json:"is_balanced"`
	TotalDebits     decimal.Decimal  `json:"total_debits"`
	TotalCredits    decimal.Decimal  `json:"total_credits"`
	Difference      decimal.Decimal  `json:"difference"`
	DriftedAccounts []DriftedAccount `json:"drifted_accounts"`
	CheckedAt       time.Time        `json:"checked_at"`
}

// Healthy reports whether the ledger balances and no account drifted.
func (r IntegrityReport) Healthy() bool {
	return r.IsBalanced && len(r.DriftedAccounts) == 0
}

// DriftedAccount is an account whose cached balance disagrees with its lines.
type DriftedAccount struct {
	AccountID int64           `json:"account_id"`
	Code      string          `json:"code"`
	Cached    decimal.Decimal `json:"cached"`
	Derived   decimal.Decimal `json:"derived"`
	Drift     decimal.Decimal `json:"drift"`
}
