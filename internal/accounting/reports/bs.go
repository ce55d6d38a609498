package reports

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/finops-gl/internal/accounting"
)

// BalanceSheetAccount summarises an account for assets, liabilities, or equity.
type BalanceSheetAccount struct {
	Code    string          `json:"code"`
	Name    string          `json:"name"`
	Balance decimal.Decimal `json:"balance"`
}

// BalanceSheetSection contains the accounts and totals for a classification.
type BalanceSheetSection struct {
	Label    string                `json:"label"`
	Accounts []BalanceSheetAccount `json:"accounts"`
	Total    decimal.Decimal       `json:"total"`
}

// BalanceSheet is the structured response for the balance sheet report.
// Current earnings close the gap between assets and liabilities plus equity
// because there is no period close.
type BalanceSheet struct {
	Assets                    BalanceSheetSection `json:"assets"`
	Liabilities               BalanceSheetSection `json:"liabilities"`
	Equity                    BalanceSheetSection `json:"equity"`
	CurrentEarnings           decimal.Decimal     `json:"current_earnings"`
	TotalLiabilitiesAndEquity decimal.Decimal     `json:"total_liabilities_and_equity"`
	IsBalanced                bool                `json:"is_balanced"`
}

// BuildBalanceSheet aggregates balances into assets, liabilities, and equity sections.
func BuildBalanceSheet(accounts []AccountBalance) BalanceSheet {
	assets := BalanceSheetSection{Label: "Assets", Accounts: []BalanceSheetAccount{}, Total: decimal.Zero}
	liabilities := BalanceSheetSection{Label: "Liabilities", Accounts: []BalanceSheetAccount{}, Total: decimal.Zero}
	equity := BalanceSheetSection{Label: "Equity", Accounts: []BalanceSheetAccount{}, Total: decimal.Zero}

	for _, acc := range accounts {
		row := BalanceSheetAccount{Code: acc.Code, Name: acc.Name, Balance: acc.Balance()}
		switch acc.Type {
		case accounting.AccountTypeAsset:
			assets.Accounts = append(assets.Accounts, row)
			assets.Total = assets.Total.Add(row.Balance)
		case accounting.AccountTypeLiability:
			liabilities.Accounts = append(liabilities.Accounts, row)
			liabilities.Total = liabilities.Total.Add(row.Balance)
		case accounting.AccountTypeEquity:
			equity.Accounts = append(equity.Accounts, row)
			equity.Total = equity.Total.Add(row.Balance)
		}
	}

	sort.Slice(assets.Accounts, func(i, j int) bool { return assets.Accounts[i].Code < assets.Accounts[j].Code })
	sort.Slice(liabilities.Accounts, func(i, j int) bool { return liabilities.Accounts[i].Code < liabilities.Accounts[j].Code })
	sort.Slice(equity.Accounts, func(i, j int) bool { return equity.Accounts[i].Code < equity.Accounts[j].Code })

	earnings := BuildProfitAndLoss(accounts).NetIncome
	total := liabilities.Total.Add(equity.Total).Add(earnings)
	return BalanceSheet{
		Assets:                    assets,
		Liabilities:               liabilities,
		Equity:                    equity,
		CurrentEarnings:           earnings,
		TotalLiabilitiesAndEquity: total,
		IsBalanced:                accounting.Balanced(assets.Total, total),
	}
}

// FinancialPosition splits total assets into non-overlapping components by subtype.
type FinancialPosition struct {
	Cash        decimal.Decimal `json:"cash"`
	Float       decimal.Decimal `json:"float"`
	FixedAssets decimal.Decimal `json:"fixed_assets"`
	Receivables decimal.Decimal `json:"receivables"`
	Other       decimal.Decimal `json:"other"`
	Total       decimal.Decimal `json:"total"`
}

// BuildFinancialPosition sums asset balances per subtype. Total equals the sum of the parts.
func BuildFinancialPosition(accounts []AccountBalance) FinancialPosition {
	pos := FinancialPosition{
		Cash:        decimal.Zero,
		Float:       decimal.Zero,
		FixedAssets: decimal.Zero,
		Receivables: decimal.Zero,
		Other:       decimal.Zero,
		Total:       decimal.Zero,
	}
	for _, acc := range accounts {
		if acc.Type != accounting.AccountTypeAsset {
			continue
		}
		balance := acc.Balance()
		switch acc.Subtype {
		case accounting.AccountSubtypeCash:
			pos.Cash = pos.Cash.Add(balance)
		case accounting.AccountSubtypeFloat:
			pos.Float = pos.Float.Add(balance)
		case accounting.AccountSubtypeFixedAsset:
			pos.FixedAssets = pos.FixedAssets.Add(balance)
		case accounting.AccountSubtypeReceivable:
			pos.Receivables = pos.Receivables.Add(balance)
		default:
			pos.Other = pos.Other.Add(balance)
		}
		pos.Total = pos.Total.Add(balance)
	}
	return pos
}
