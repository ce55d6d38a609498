// Package manual validates human-authored journal entries before they reach
// the posting engine.
package manual

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/finops-gl/internal/accounting"
	"github.com/odyssey-erp/finops-gl/internal/accounting/journals"
)

// Draft is a journal entry as typed in by a person.
type Draft struct {
	Date        time.Time
	Reference   string
	Description string
	Source      accounting.EntrySource
	BranchID    string
	ActorID     string
	Lines       []DraftLine
}

// DraftLine is one line of a draft. Exactly one side carries an amount.
type DraftLine struct {
	AccountID   int64
	Description string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
}

// ValidatedEntry is a draft that passed every check, ready to post.
type ValidatedEntry struct {
	Input       journals.PostingInput
	Accounts    map[int64]accounting.Account
	TotalDebit  decimal.Decimal
	TotalCredit decimal.Decimal
}

// Poster commits validated entries.
type Poster interface {
	Post(ctx context.Context, input journals.PostingInput) (accounting.JournalEntry, error)
}

// Validator checks drafts and hands them to the posting engine.
type Validator struct {
	store  accounting.Store
	poster Poster
	now    func() time.Time
}

// NewValidator constructs a Validator.
func NewValidator(store accounting.Store, poster Poster) *Validator {
	return &Validator{store: store, poster: poster, now: time.Now}
}

func (v *Validator) WithNow(now func() time.Time) {
	if now != nil {
		v.now = now
	}
}

// Validate reports every problem with the draft at once as accounting.ValidationErrors.
func (v *Validator) Validate(ctx context.Context, d Draft) (ValidatedEntry, error) {
	var errs accounting.ValidationErrors
	description := strings.TrimSpace(d.Description)
	if description == "" {
		errs = append(errs, accounting.NewValidationError("description", "is required"))
	}
	source := accounting.EntrySource(strings.ToLower(strings.TrimSpace(string(d.Source))))
	if source == "" {
		source = accounting.SourceManual
	}
	if !source.IsManual() {
		errs = append(errs, accounting.NewValidationError("source", fmt.Sprintf("%q is not a manual or correction source", d.Source)))
	}
	branchID := strings.TrimSpace(d.BranchID)
	if branchID == "" {
		errs = append(errs, accounting.NewValidationError("branch_id", "is required"))
	}
	actorID := strings.TrimSpace(d.ActorID)
	if actorID == "" {
		errs = append(errs, accounting.NewValidationError("actor", "is required"))
	}
	date := d.Date
	if date.IsZero() {
		y, m, day := v.now().Date()
		date = time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
	}

	lines := make([]journals.PostingLineInput, 0, len(d.Lines))
	debit, credit := decimal.Zero, decimal.Zero
	for i, line := range d.Lines {
		field := fmt.Sprintf("lines[%d]", i)
		dr := accounting.RoundAmount(line.Debit)
		cr := accounting.RoundAmount(line.Credit)
		if line.AccountID <= 0 {
			errs = append(errs, accounting.NewValidationError(field+".account_id", "is required"))
		}
		switch {
		case dr.IsNegative() || cr.IsNegative():
			errs = append(errs, accounting.NewValidationError(field, "amounts cannot be negative"))
			continue
		case dr.IsPositive() && cr.IsPositive():
			errs = append(errs, accounting.NewValidationError(field, "cannot be both debit and credit"))
			continue
		case dr.IsZero() && cr.IsZero():
			errs = append(errs, accounting.NewValidationError(field, "amount must be greater than zero"))
			continue
		}
		debit = debit.Add(dr)
		credit = credit.Add(cr)
		desc := strings.TrimSpace(line.Description)
		if desc == "" {
			desc = description
		}
		lines = append(lines, journals.PostingLineInput{AccountID: line.AccountID, Description: desc, Debit: dr, Credit: cr})
	}
	if len(lines) < 2 {
		errs = append(errs, accounting.WrapValidation("lines", accounting.ErrTooFewLines))
	} else if !accounting.Balanced(debit, credit) {
		errs = append(errs, &accounting.ValidationError{
			Field:  "lines",
			Reason: fmt.Sprintf("debits %s do not equal credits %s", debit.StringFixed(2), credit.StringFixed(2)),
			Cause:  accounting.ErrUnbalanced,
		})
	}

	accounts, err := v.checkAccounts(ctx, branchID, d.Lines, &errs)
	if err != nil {
		return ValidatedEntry{}, err
	}
	if len(errs) > 0 {
		return ValidatedEntry{}, errs
	}
	return ValidatedEntry{
		Input: journals.PostingInput{
			Date:        date,
			Reference:   strings.TrimSpace(d.Reference),
			Description: description,
			Source:      source,
			BranchID:    branchID,
			ActorID:     actorID,
			Lines:       lines,
		},
		Accounts:    accounts,
		TotalDebit:  debit,
		TotalCredit: credit,
	}, nil
}

func (v *Validator) checkAccounts(ctx context.Context, branchID string, lines []DraftLine, errs *accounting.ValidationErrors) (map[int64]accounting.Account, error) {
	accounts := make(map[int64]accounting.Account, len(lines))
	err := v.store.WithSnapshot(ctx, func(ctx context.Context, tx accounting.Tx) error {
		for i, line := range lines {
			if line.AccountID <= 0 {
				continue
			}
			field := fmt.Sprintf("lines[%d].account_id", i)
			account, ok := accounts[line.AccountID]
			if !ok {
				var err error
				account, err = tx.GetAccount(ctx, line.AccountID)
				if errors.Is(err, accounting.ErrNotFound) {
					*errs = append(*errs, accounting.NewValidationError(field, "account does not exist"))
					continue
				}
				if err != nil {
					return err
				}
				accounts[line.AccountID] = account
			}
			switch {
			case !account.IsActive:
				*errs = append(*errs, accounting.NewValidationError(field, fmt.Sprintf("account %s is inactive", account.Code)))
			case branchID != "" && !account.UsableBy(branchID):
				*errs = append(*errs, accounting.NewValidationError(field, fmt.Sprintf("account %s belongs to another branch", account.Code)))
			}
		}
		return nil
	})
	if err != nil {
		return nil, accounting.AsPersistence("load draft accounts", err)
	}
	return accounts, nil
}

// Submit validates the draft and posts it.
func (v *Validator) Submit(ctx context.Context, d Draft) (accounting.JournalEntry, error) {
	validated, err := v.Validate(ctx, d)
	if err != nil {
		return accounting.JournalEntry{}, err
	}
	return v.poster.Post(ctx, validated.Input)
}
