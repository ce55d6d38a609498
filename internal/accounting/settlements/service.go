// Package settlements reconciles partner collections against what has been paid
// over and records new settlements within the outstanding liability.
package settlements

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/finops-gl/internal/accounting"
	"github.com/odyssey-erp/finops-gl/internal/accounting/journals"
	"github.com/odyssey-erp/finops-gl/internal/accounting/mappings"
	"github.com/odyssey-erp/finops-gl/internal/observability"
	"github.com/odyssey-erp/finops-gl/internal/shared"
)

// Engine prepares and posts the settlement journal entry.
type Engine interface {
	PrepareEvent(ctx context.Context, event journals.BusinessEvent, fresh bool) (journals.PostingInput, mappings.Resolution, error)
	PostTx(ctx context.Context, tx accounting.Tx, input journals.PostingInput, pins *mappings.Resolution) (accounting.JournalEntry, error)
}

type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// SettlementObserver receives submission outcomes.
type SettlementObserver interface {
	ObserveSettlement(partner, outcome string)
}

type Service struct {
	store    accounting.Store
	engine   Engine
	audit    AuditPort
	observer SettlementObserver
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(store accounting.Store, engine Engine, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, engine: engine, audit: audit, logger: logger, now: time.Now}
}

// WithObserver attaches settlement metrics.
func (s *Service) WithObserver(observer SettlementObserver) *Service {
	s.observer = observer
	return s
}

func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Calculate returns collected minus settled for the partner in the branch.
func (s *Service) Calculate(ctx context.Context, input CalculateInput) (Calculation, error) {
	input, err := input.validate()
	if err != nil {
		return Calculation{}, err
	}
	var calc Calculation
	err = s.store.WithSnapshot(ctx, func(ctx context.Context, tx accounting.Tx) error {
		var err error
		calc, err = calculate(ctx, tx, input)
		return err
	})
	if err != nil {
		return Calculation{}, accounting.AsPersistence("calculate settlement", err)
	}
	return calc, nil
}

func calculate(ctx context.Context, tx accounting.Tx, input CalculateInput) (Calculation, error) {
	collections, err := tx.SumCollections(ctx, input.BranchID, input.Partner.CollectionType(), input.AsOf)
	if err != nil {
		return Calculation{}, err
	}
	settled, err := tx.SumSettlements(ctx, input.BranchID, input.Partner, input.AsOf)
	if err != nil {
		return Calculation{}, err
	}
	paid := make(map[string]bool, len(settled.TrackingIDs))
	for _, id := range settled.TrackingIDs {
		paid[id] = true
	}
	unsettled := 0
	for _, id := range collections.TrackingIDs {
		if !paid[id] {
			unsettled++
		}
	}
	amount := collections.Amount.Sub(settled.Amount)
	if amount.IsNegative() {
		return Calculation{}, &accounting.ReconciliationError{
			Detail: fmt.Sprintf("%s settlements in branch %s exceed collections", input.Partner, input.BranchID),
			Amount: amount,
		}
	}
	return Calculation{
		BranchID:              input.BranchID,
		Partner:               input.Partner,
		SettlementAmount:      amount,
		CollectedAmount:       collections.Amount,
		SettledAmount:         settled.Amount,
		CollectionCount:       collections.Count,
		SettlementCount:       settled.Count,
		UnsettledPackageCount: unsettled,
		LastSettlementDate:    settled.LastSettledAt,
		AsOf:                  input.AsOf,
	}, nil
}

// Submit records a settlement. The outstanding liability is recomputed under the
// settlement scope lock, so the cap holds even when submissions race.
func (s *Service) Submit(ctx context.Context, input SubmitInput) (Submission, error) {
	input, err := input.validate()
	if err != nil {
		s.observe(input.Partner, err)
		return Submission{}, err
	}
	err = s.store.WithSnapshot(ctx, func(ctx context.Context, tx accounting.Tx) error {
		return checkFloat(ctx, tx, input)
	})
	if err != nil {
		s.observe(input.Partner, err)
		return Submission{}, accounting.AsPersistence("submit settlement", err)
	}
	if input.Date.IsZero() {
		input.Date = s.now()
	}
	y, m, d := input.Date.Date()
	input.Date = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	event := journals.BusinessEvent{
		EventID:         uuid.New(),
		TransactionType: input.Partner.SettlementType(),
		BranchID:        input.BranchID,
		FloatAccountID:  input.FloatAccountID,
		Amount:          input.Amount,
		Date:            input.Date,
		Description:     input.Description,
		ActorID:         input.ActorID,
	}
	if event.Description == "" {
		event.Description = fmt.Sprintf("%s settlement %s", input.Partner, input.Reference)
	}

	sub, err := s.submit(ctx, input, event, false)
	if errors.Is(err, accounting.ErrConcurrencyConflict) {
		s.logger.Warn("settlement conflict, retrying with fresh mappings",
			slog.String("branch_id", input.BranchID),
			slog.String("reference", input.Reference),
			slog.Any("error", err))
		sub, err = s.submit(ctx, input, event, true)
	}
	s.observe(input.Partner, err)
	if err != nil {
		return Submission{}, err
	}
	s.record(ctx, input.ActorID, sub)
	return sub, nil
}

func (s *Service) submit(ctx context.Context, input SubmitInput, event journals.BusinessEvent, fresh bool) (Submission, error) {
	posting, pins, err := s.engine.PrepareEvent(ctx, event, fresh)
	if err != nil {
		return Submission{}, err
	}
	var sub Submission
	err = s.store.WithTx(ctx, func(ctx context.Context, tx accounting.Tx) error {
		if err := checkFloat(ctx, tx, input); err != nil {
			return err
		}
		if err := tx.LockSettlementScope(ctx, input.BranchID, input.Partner); err != nil {
			return err
		}
		outstanding, err := outstandingFrom(ctx, tx, input)
		if err != nil {
			return err
		}
		if input.Amount.GreaterThan(outstanding) {
			return &accounting.InsufficientLiabilityError{Requested: input.Amount, Outstanding: outstanding}
		}
		entry, err := s.engine.PostTx(ctx, tx, posting, &pins)
		if err != nil {
			return err
		}
		record, err := tx.InsertSettlement(ctx, accounting.SettlementRecord{
			BranchID:       input.BranchID,
			Partner:        input.Partner,
			Amount:         input.Amount,
			Reference:      input.Reference,
			FloatAccountID: input.FloatAccountID,
			TrackingIDs:    input.TrackingIDs,
			JournalID:      entry.ID,
			CreatedBy:      input.ActorID,
			SettledAt:      input.Date,
		})
		if errors.Is(err, accounting.ErrReferenceTaken) {
			return &accounting.ValidationError{Field: "reference", Reason: "settlement reference already used", Cause: err}
		}
		if err != nil {
			return err
		}
		sub = Submission{Record: record, Entry: entry}
		return nil
	})
	if err != nil {
		return Submission{}, accounting.AsPersistence("submit settlement", err)
	}
	return sub, nil
}

// outstandingFrom is the most that can be settled on input.Date without any
// as-of calculation from that date on going negative. Collected minus settled
// only drops on settlement dates, so the new date, every later settlement date
// and the unbounded total cover every case.
func outstandingFrom(ctx context.Context, tx accounting.Tx, input SubmitInput) (decimal.Decimal, error) {
	records, err := tx.ListSettlements(ctx, input.BranchID, input.Partner)
	if err != nil {
		return decimal.Zero, err
	}
	date := input.Date
	checkpoints := []*time.Time{&date, nil}
	seen := map[time.Time]bool{date: true}
	for _, record := range records {
		at := record.SettledAt.UTC()
		if !at.After(date) || seen[at] {
			continue
		}
		seen[at] = true
		checkpoints = append(checkpoints, &at)
	}

	var outstanding decimal.Decimal
	for i, asOf := range checkpoints {
		calc, err := calculate(ctx, tx, CalculateInput{BranchID: input.BranchID, Partner: input.Partner, AsOf: asOf})
		if err != nil {
			return decimal.Zero, err
		}
		if i == 0 || calc.SettlementAmount.LessThan(outstanding) {
			outstanding = calc.SettlementAmount
		}
	}
	return outstanding, nil
}

func checkFloat(ctx context.Context, tx accounting.Tx, input SubmitInput) error {
	float, err := tx.GetFloatAccount(ctx, input.FloatAccountID)
	if errors.Is(err, accounting.ErrNotFound) {
		return accounting.NewValidationError("float_account_id", "float account does not exist")
	}
	if err != nil {
		return err
	}
	if float.BranchID != input.BranchID {
		return accounting.NewValidationError("float_account_id", "float account belongs to another branch")
	}
	if !float.IsActive {
		return accounting.NewValidationError("float_account_id", "float account is inactive")
	}
	return nil
}

// List returns recorded settlements, newest first.
func (s *Service) List(ctx context.Context, branchID string, partner accounting.Partner) ([]accounting.SettlementRecord, error) {
	var records []accounting.SettlementRecord
	err := s.store.WithSnapshot(ctx, func(ctx context.Context, tx accounting.Tx) error {
		var err error
		records, err = tx.ListSettlements(ctx, branchID, partner)
		return err
	})
	if err != nil {
		return nil, accounting.AsPersistence("list settlements", err)
	}
	return records, nil
}

func (s *Service) observe(partner accounting.Partner, err error) {
	if s.observer == nil {
		return
	}
	s.observer.ObserveSettlement(string(partner), observability.OutcomeOf(err))
}

func (s *Service) record(ctx context.Context, actorID string, sub Submission) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   "settlement.submit",
		Entity:   "settlement",
		EntityID: strconv.FormatInt(sub.Record.ID, 10),
		Meta: map[string]any{
			"reference":  sub.Record.Reference,
			"partner":    string(sub.Record.Partner),
			"branch_id":  sub.Record.BranchID,
			"amount":     sub.Record.Amount.StringFixed(2),
			"journal_id": sub.Entry.ID,
		},
		At: s.now(),
	}); err != nil {
		s.logger.Warn("audit record", slog.String("action", "settlement.submit"), slog.Any("error", err))
	}
}
