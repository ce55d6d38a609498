package journals

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/finops-gl/internal/accounting"
)

// PostingLineInput describes a journal line for a posting request.
type PostingLineInput struct {
	AccountID   int64
	Description string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
}

// PostingInput groups the fields required to create a journal entry.
// An empty Reference asks the engine to generate one.
type PostingInput struct {
	Date            time.Time
	Reference       string
	Description     string
	Source          accounting.EntrySource
	TransactionType accounting.TransactionType
	BranchID        string
	ActorID         string
	EventID         uuid.UUID
	TrackingID      string
	Lines           []PostingLineInput
}

// normalize trims text, rounds amounts to the minor unit and fills line descriptions.
func (in PostingInput) normalize() PostingInput {
	in.Reference = strings.TrimSpace(in.Reference)
	in.Description = strings.TrimSpace(in.Description)
	in.BranchID = strings.TrimSpace(in.BranchID)
	in.ActorID = strings.TrimSpace(in.ActorID)
	in.TrackingID = strings.TrimSpace(in.TrackingID)
	lines := make([]PostingLineInput, len(in.Lines))
	for i, line := range in.Lines {
		line.Description = strings.TrimSpace(line.Description)
		if line.Description == "" {
			line.Description = in.Description
		}
		line.Debit = accounting.RoundAmount(line.Debit)
		line.Credit = accounting.RoundAmount(line.Credit)
		lines[i] = line
	}
	in.Lines = lines
	return in
}

// Validate checks the static rules of a posting. Every violation is reported.
func (in PostingInput) Validate() error {
	var errs accounting.ValidationErrors
	if in.Description == "" {
		errs = append(errs, accounting.NewValidationError("description", "is required"))
	}
	if in.BranchID == "" {
		errs = append(errs, accounting.NewValidationError("branch_id", "is required"))
	}
	if in.ActorID == "" {
		errs = append(errs, accounting.NewValidationError("actor", "is required"))
	}
	if in.Date.IsZero() {
		errs = append(errs, accounting.NewValidationError("date", "is required"))
	}
	if _, err := accounting.ParseEntrySource(string(in.Source)); err != nil {
		errs = append(errs, err.(*accounting.ValidationError))
	}
	if in.TransactionType != "" {
		if _, err := accounting.ParseTransactionType(string(in.TransactionType)); err != nil {
			errs = append(errs, err.(*accounting.ValidationError))
		}
	}
	if len(in.Lines) < 2 {
		errs = append(errs, accounting.WrapValidation("lines", accounting.ErrTooFewLines))
	}
	debit, credit := decimal.Zero, decimal.Zero
	for i, line := range in.Lines {
		field := fmt.Sprintf("lines[%d]", i)
		if line.AccountID <= 0 {
			errs = append(errs, accounting.NewValidationError(field+".account_id", "is required"))
		}
		switch {
		case line.Debit.IsNegative() || line.Credit.IsNegative():
			errs = append(errs, accounting.NewValidationError(field, "amounts cannot be negative"))
		case line.Debit.IsPositive() && line.Credit.IsPositive():
			errs = append(errs, accounting.NewValidationError(field, "cannot be both debit and credit"))
		case line.Debit.IsZero() && line.Credit.IsZero():
			errs = append(errs, accounting.NewValidationError(field, "amount must be greater than zero"))
		}
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	if len(in.Lines) >= 2 && !accounting.Balanced(debit, credit) {
		errs = append(errs, &accounting.ValidationError{
			Field:  "lines",
			Reason: fmt.Sprintf("debits %s do not equal credits %s", debit.StringFixed(2), credit.StringFixed(2)),
			Cause:  accounting.ErrUnbalanced,
		})
	}
	return errs.Err()
}

// BusinessEvent is a completed business transaction to be posted from a template.
type BusinessEvent struct {
	EventID         uuid.UUID
	TransactionType accounting.TransactionType
	BranchID        string
	FloatAccountID  string
	Amount          decimal.Decimal
	Fee             decimal.Decimal
	Date            time.Time
	Reference       string
	Description     string
	TrackingID      string
	ActorID         string
}

// ReverseInput wraps parameters for reversal.
type ReverseInput struct {
	EntryID     int64
	ActorID     string
	Description string
	Date        *time.Time
}

// DeleteInput wraps parameters for deletion.
type DeleteInput struct {
	EntryID int64
	ActorID string
	Reason  string
}
