package settlements

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/finops-gl/internal/accounting"
)

// CalculateInput scopes a liability calculation. A nil AsOf covers everything posted.
type CalculateInput struct {
	BranchID string
	Partner  accounting.Partner
	AsOf     *time.Time
}

// Calculation is the outstanding liability towards a partner.
type Calculation struct {
	BranchID              string             `json:"branch_id"`
	Partner               accounting.Partner `json:"partner"`
	SettlementAmount      decimal.Decimal    `json:"settlement_amount"`
	CollectedAmount       decimal.Decimal    `json:"collected_amount"`
	SettledAmount         decimal.Decimal    `json:"settled_amount"`
	CollectionCount       int                `json:"collection_count"`
	SettlementCount       int                `json:"settlement_count"`
	UnsettledPackageCount int                `json:"unsettled_package_count"`
	LastSettlementDate    *time.Time         `json:"last_settlement_date"`
	AsOf                  *time.Time         `json:"as_of,omitempty"`
}

// SubmitInput pays part or all of the outstanding liability.
type SubmitInput struct {
	BranchID       string
	Partner        accounting.Partner
	Amount         decimal.Decimal
	Reference      string
	FloatAccountID string
	TrackingIDs    []string
	ActorID        string
	Date           time.Time
	Description    string
}

// Submission is the stored settlement and the journal entry that recorded it.
type Submission struct {
	Record accounting.SettlementRecord
	Entry  accounting.JournalEntry
}

func (in CalculateInput) validate() (CalculateInput, error) {
	var errs accounting.ValidationErrors
	in.BranchID = strings.TrimSpace(in.BranchID)
	if in.BranchID == "" {
		errs = append(errs, accounting.NewValidationError("branch_id", "is required"))
	}
	partner, err := accounting.ParsePartner(string(in.Partner))
	if err != nil {
		errs = append(errs, err.(*accounting.ValidationError))
	}
	in.Partner = partner
	return in, errs.Err()
}

func (in SubmitInput) validate() (SubmitInput, error) {
	var errs accounting.ValidationErrors
	in.BranchID = strings.TrimSpace(in.BranchID)
	if in.BranchID == "" {
		errs = append(errs, accounting.NewValidationError("branch_id", "is required"))
	}
	partner, err := accounting.ParsePartner(string(in.Partner))
	if err != nil {
		errs = append(errs, err.(*accounting.ValidationError))
	}
	in.Partner = partner
	in.Amount = accounting.RoundAmount(in.Amount)
	if !in.Amount.IsPositive() {
		errs = append(errs, accounting.NewValidationError("amount", "must be greater than zero"))
	}
	in.Reference = strings.TrimSpace(in.Reference)
	if in.Reference == "" {
		errs = append(errs, accounting.NewValidationError("reference", "is required"))
	}
	in.FloatAccountID = strings.TrimSpace(in.FloatAccountID)
	if in.FloatAccountID == "" {
		errs = append(errs, accounting.NewValidationError("float_account_id", "is required"))
	}
	in.ActorID = strings.TrimSpace(in.ActorID)
	if in.ActorID == "" {
		errs = append(errs, accounting.NewValidationError("actor", "is required"))
	}
	ids := make([]string, 0, len(in.TrackingIDs))
	seen := make(map[string]bool, len(in.TrackingIDs))
	for _, id := range in.TrackingIDs {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	in.TrackingIDs = ids
	in.Description = strings.TrimSpace(in.Description)
	return in, errs.Err()
}
