package reports

import "time"

// TrialBalanceViewModel is the JSON body of the trial balance report.
type TrialBalanceViewModel struct {
	BranchID    string       `json:"branch_id,omitempty"`
	AsOf        *time.Time   `json:"as_of,omitempty"`
	GeneratedAt time.Time    `json:"generated_at"`
	Report      TrialBalance `json:"report"`
}

// ProfitAndLossViewModel is the JSON body of the profit and loss report.
type ProfitAndLossViewModel struct {
	BranchID    string        `json:"branch_id,omitempty"`
	AsOf        *time.Time    `json:"as_of,omitempty"`
	GeneratedAt time.Time     `json:"generated_at"`
	Report      ProfitAndLoss `json:"report"`
}

// BalanceSheetViewModel is the JSON body of the balance sheet report.
type BalanceSheetViewModel struct {
	BranchID    string       `json:"branch_id,omitempty"`
	AsOf        *time.Time   `json:"as_of,omitempty"`
	GeneratedAt time.Time    `json:"generated_at"`
	Report      BalanceSheet `json:"report"`
}
