// Package journals is the posting engine: it turns manual drafts and business
// events into balanced journal entries and owns their lifecycle.
package journals

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/finops-gl/internal/accounting"
	"github.com/odyssey-erp/finops-gl/internal/accounting/mappings"
	"github.com/odyssey-erp/finops-gl/internal/observability"
	"github.com/odyssey-erp/finops-gl/internal/shared"
)

const maxReferenceAttempts = 3

// Resolver maps a business event onto GL accounts.
type Resolver interface {
	Resolve(ctx context.Context, req mappings.ResolveRequest) (mappings.Resolution, error)
}

type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// PostingObserver receives posting outcomes.
type PostingObserver interface {
	ObservePosting(source, outcome string, took time.Duration)
}

type Service struct {
	store    accounting.Store
	resolver Resolver
	refs     ReferenceGenerator
	audit    AuditPort
	observer PostingObserver
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(store accounting.Store, resolver Resolver, refs ReferenceGenerator, audit AuditPort, logger *slog.Logger) *Service {
	if refs == nil {
		refs = NewULIDReferences("")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, resolver: resolver, refs: refs, audit: audit, logger: logger, now: time.Now}
}

// WithObserver attaches posting metrics.
func (s *Service) WithObserver(observer PostingObserver) *Service {
	s.observer = observer
	return s
}

func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Post validates and commits a journal entry.
func (s *Service) Post(ctx context.Context, input PostingInput) (accounting.JournalEntry, error) {
	if input.Date.IsZero() {
		input.Date = today(s.now())
	}
	return s.post(ctx, input.normalize(), nil)
}

func (s *Service) post(ctx context.Context, input PostingInput, pins *mappings.Resolution) (accounting.JournalEntry, error) {
	started := time.Now()
	var entry accounting.JournalEntry
	err := input.Validate()
	if err == nil {
		err = s.store.WithTx(ctx, func(ctx context.Context, tx accounting.Tx) error {
			var err error
			entry, err = s.PostTx(ctx, tx, input, pins)
			return err
		})
	}
	s.observe(input.Source, err, time.Since(started))
	if err != nil {
		return accounting.JournalEntry{}, accounting.AsPersistence("post journal", err)
	}
	meta := map[string]any{
		"reference": entry.Reference,
		"source":    string(entry.Source),
		"branch_id": entry.BranchID,
	}
	if entry.TransactionType != "" {
		meta["transaction_type"] = string(entry.TransactionType)
	}
	if entry.EventID != uuid.Nil {
		meta["event_id"] = entry.EventID.String()
	}
	s.record(ctx, input.ActorID, "journal.post", entry.ID, meta)
	return entry, nil
}

// PostTx posts inside a transaction owned by the caller. pins, when set, are
// re-checked against the mapping table before anything is written.
func (s *Service) PostTx(ctx context.Context, tx accounting.Tx, input PostingInput, pins *mappings.Resolution) (accounting.JournalEntry, error) {
	input = input.normalize()
	if err := input.Validate(); err != nil {
		return accounting.JournalEntry{}, err
	}
	lines := make([]accounting.JournalLine, 0, len(input.Lines))
	for _, line := range input.Lines {
		lines = append(lines, accounting.JournalLine{
			AccountID:   line.AccountID,
			Description: line.Description,
			Debit:       line.Debit,
			Credit:      line.Credit,
		})
	}
	accounts, err := lockAccounts(ctx, tx, input.BranchID, lines, true)
	if err != nil {
		return accounting.JournalEntry{}, err
	}
	if pins != nil {
		if err := pins.Verify(ctx, tx); err != nil {
			return accounting.JournalEntry{}, err
		}
	}
	entry, err := s.insertEntry(ctx, tx, accounting.JournalEntry{
		Date:            input.Date,
		Description:     input.Description,
		Source:          input.Source,
		TransactionType: input.TransactionType,
		BranchID:        input.BranchID,
		CreatedBy:       input.ActorID,
		EventID:         input.EventID,
		TrackingID:      input.TrackingID,
	}, input.Reference)
	if err != nil {
		return accounting.JournalEntry{}, err
	}
	return writeLines(ctx, tx, entry, accounts, lines)
}

// PostEvent expands a business event through its template and posts it. A
// concurrency conflict is retried once against freshly resolved mappings.
func (s *Service) PostEvent(ctx context.Context, event BusinessEvent) (accounting.JournalEntry, error) {
	if partner, ok := accounting.PartnerOf(event.TransactionType); ok && event.TransactionType == partner.SettlementType() {
		return accounting.JournalEntry{}, accounting.NewValidationError("transaction_type", "partner settlements are submitted through the settlement calculator")
	}
	event, tpl, err := s.prepareEvent(event)
	if err != nil {
		s.observe(sourceOf(event.TransactionType), err, 0)
		return accounting.JournalEntry{}, err
	}
	entry, err := s.postEvent(ctx, event, tpl, false)
	if errors.Is(err, accounting.ErrConcurrencyConflict) {
		s.logger.Warn("posting conflict, retrying with fresh mappings",
			slog.String("transaction_type", string(event.TransactionType)),
			slog.String("event_id", event.EventID.String()),
			slog.Any("error", err))
		entry, err = s.postEvent(ctx, event, tpl, true)
	}
	return entry, err
}

func (s *Service) postEvent(ctx context.Context, event BusinessEvent, tpl template, fresh bool) (accounting.JournalEntry, error) {
	input, res, err := s.expand(ctx, event, tpl, fresh)
	if err != nil {
		s.observe(event.TransactionType.Module(), err, 0)
		return accounting.JournalEntry{}, err
	}
	return s.post(ctx, input, &res)
}

// PrepareEvent validates, resolves and expands an event without posting it. The
// caller posts the result with PostTx, passing the resolution as pins.
func (s *Service) PrepareEvent(ctx context.Context, event BusinessEvent, fresh bool) (PostingInput, mappings.Resolution, error) {
	event, tpl, err := s.prepareEvent(event)
	if err != nil {
		return PostingInput{}, mappings.Resolution{}, err
	}
	return s.expand(ctx, event, tpl, fresh)
}

func (s *Service) expand(ctx context.Context, event BusinessEvent, tpl template, fresh bool) (PostingInput, mappings.Resolution, error) {
	res, err := s.resolver.Resolve(ctx, mappings.ResolveRequest{
		TransactionType: event.TransactionType,
		BranchID:        event.BranchID,
		FloatAccountID:  event.FloatAccountID,
		MappingTypes:    tpl.mappingTypes(event.Amount, event.Fee),
		Fresh:           fresh,
	})
	if err != nil {
		return PostingInput{}, mappings.Resolution{}, err
	}
	return PostingInput{
		Date:            event.Date,
		Reference:       event.Reference,
		Description:     event.Description,
		Source:          event.TransactionType.Module(),
		TransactionType: event.TransactionType,
		BranchID:        event.BranchID,
		ActorID:         event.ActorID,
		EventID:         event.EventID,
		TrackingID:      event.TrackingID,
		Lines:           tpl.lines(res.Accounts, event.Amount, event.Fee, event.Description),
	}.normalize(), res, nil
}

func (s *Service) prepareEvent(event BusinessEvent) (BusinessEvent, template, error) {
	var (
		errs accounting.ValidationErrors
		tpl  template
	)
	txType, err := accounting.ParseTransactionType(string(event.TransactionType))
	if err != nil {
		errs = append(errs, err.(*accounting.ValidationError))
	} else {
		event.TransactionType = txType
		tpl, _ = templateFor(txType)
	}
	if event.EventID == uuid.Nil {
		errs = append(errs, accounting.NewValidationError("event_id", "is required"))
	}
	event.BranchID = strings.TrimSpace(event.BranchID)
	if event.BranchID == "" {
		errs = append(errs, accounting.NewValidationError("branch_id", "is required"))
	}
	event.ActorID = strings.TrimSpace(event.ActorID)
	if event.ActorID == "" {
		errs = append(errs, accounting.NewValidationError("actor", "is required"))
	}
	event.Amount = accounting.RoundAmount(event.Amount)
	event.Fee = accounting.RoundAmount(event.Fee)
	if !event.Amount.IsPositive() {
		errs = append(errs, accounting.NewValidationError("amount", "must be greater than zero"))
	}
	switch {
	case event.Fee.IsNegative():
		errs = append(errs, accounting.NewValidationError("fee", "cannot be negative"))
	case event.Fee.IsPositive() && err == nil && !tpl.chargesFee:
		errs = append(errs, accounting.NewValidationError("fee", fmt.Sprintf("%s does not carry a fee", txType)))
	}
	event.TrackingID = strings.TrimSpace(event.TrackingID)
	if partner, ok := accounting.PartnerOf(txType); ok && txType == partner.CollectionType() && event.TrackingID == "" {
		errs = append(errs, accounting.NewValidationError("tracking_id", "is required for partner collections"))
	}
	if len(errs) > 0 {
		return event, template{}, errs
	}
	event.FloatAccountID = strings.TrimSpace(event.FloatAccountID)
	if event.Date.IsZero() {
		event.Date = today(s.now())
	}
	event.Description = strings.TrimSpace(event.Description)
	if event.Description == "" {
		event.Description = describeEvent(event)
	}
	return event, tpl, nil
}

func describeEvent(event BusinessEvent) string {
	label := strings.ReplaceAll(string(event.TransactionType), "_", " ")
	if event.TrackingID != "" {
		return fmt.Sprintf("%s %s", label, event.TrackingID)
	}
	return label
}

// Reverse posts a mirror entry and marks the original REVERSED.
func (s *Service) Reverse(ctx context.Context, input ReverseInput) (accounting.JournalEntry, error) {
	if err := validateLifecycle(input.EntryID, input.ActorID); err != nil {
		return accounting.JournalEntry{}, err
	}
	var (
		original accounting.JournalEntry
		reversal accounting.JournalEntry
	)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx accounting.Tx) error {
		current, err := tx.LockJournal(ctx, input.EntryID)
		if err != nil {
			return err
		}
		if err := checkMutable(current); err != nil {
			return err
		}
		if err := guardSettledCollection(ctx, tx, current); err != nil {
			return err
		}
		lines := swapped(current.Lines)
		accounts, err := lockAccounts(ctx, tx, current.BranchID, lines, false)
		if err != nil {
			return err
		}
		description := strings.TrimSpace(input.Description)
		if description == "" {
			description = "Reversal of " + current.Reference
		}
		date := today(s.now())
		if input.Date != nil {
			date = *input.Date
		}
		entry, err := s.insertEntry(ctx, tx, accounting.JournalEntry{
			Date:            date,
			Description:     description,
			Source:          current.Source,
			TransactionType: current.TransactionType,
			BranchID:        current.BranchID,
			CreatedBy:       input.ActorID,
			ReversalOf:      &current.ID,
		}, "")
		if err != nil {
			return err
		}
		if reversal, err = writeLines(ctx, tx, entry, accounts, lines); err != nil {
			return err
		}
		if err := tx.UpdateJournalStatus(ctx, current.ID, accounting.JournalStatusReversed, &reversal.ID); err != nil {
			return err
		}
		original = current
		return nil
	})
	if err != nil {
		return accounting.JournalEntry{}, accounting.AsPersistence("reverse journal", err)
	}
	s.record(ctx, input.ActorID, "journal.reverse", original.ID, map[string]any{
		"reference":          original.Reference,
		"reversal_id":        reversal.ID,
		"reversal_reference": reversal.Reference,
	})
	return reversal, nil
}

// Delete retires a POSTED entry and backs its lines out of cached balances.
func (s *Service) Delete(ctx context.Context, input DeleteInput) (accounting.JournalEntry, error) {
	if err := validateLifecycle(input.EntryID, input.ActorID); err != nil {
		return accounting.JournalEntry{}, err
	}
	var deleted accounting.JournalEntry
	err := s.store.WithTx(ctx, func(ctx context.Context, tx accounting.Tx) error {
		current, err := tx.LockJournal(ctx, input.EntryID)
		if err != nil {
			return err
		}
		if err := checkMutable(current); err != nil {
			return err
		}
		if current.ReversalOf != nil {
			return &accounting.ValidationError{Field: "entry_id", Reason: "reversal entries cannot be deleted", Cause: accounting.ErrInvalidStatus}
		}
		if err := guardSettledCollection(ctx, tx, current); err != nil {
			return err
		}
		accounts, err := lockAccounts(ctx, tx, current.BranchID, current.Lines, false)
		if err != nil {
			return err
		}
		if err := tx.AdjustAccountBalances(ctx, balanceDeltas(accounts, swapped(current.Lines))); err != nil {
			return err
		}
		if err := tx.UpdateJournalStatus(ctx, current.ID, accounting.JournalStatusDeleted, nil); err != nil {
			return err
		}
		current.Status = accounting.JournalStatusDeleted
		deleted = current
		return nil
	})
	if err != nil {
		return accounting.JournalEntry{}, accounting.AsPersistence("delete journal", err)
	}
	s.record(ctx, input.ActorID, "journal.delete", deleted.ID, map[string]any{
		"reference": deleted.Reference,
		"reason":    input.Reason,
	})
	return deleted, nil
}

// Get returns an entry with its lines.
func (s *Service) Get(ctx context.Context, id int64) (accounting.JournalEntry, error) {
	var entry accounting.JournalEntry
	err := s.store.WithSnapshot(ctx, func(ctx context.Context, tx accounting.Tx) error {
		var err error
		entry, err = tx.GetJournalWithLines(ctx, id)
		return err
	})
	if err != nil {
		return accounting.JournalEntry{}, accounting.AsPersistence("get journal", err)
	}
	return entry, nil
}

func validateLifecycle(entryID int64, actorID string) error {
	var errs accounting.ValidationErrors
	if entryID <= 0 {
		errs = append(errs, accounting.NewValidationError("entry_id", "is required"))
	}
	if strings.TrimSpace(actorID) == "" {
		errs = append(errs, accounting.NewValidationError("actor", "is required"))
	}
	return errs.Err()
}

func checkMutable(entry accounting.JournalEntry) error {
	if entry.Status != accounting.JournalStatusPosted {
		return &accounting.ValidationError{
			Field:  "entry_id",
			Reason: fmt.Sprintf("entry %s is %s", entry.Reference, strings.ToLower(string(entry.Status))),
			Cause:  accounting.ErrInvalidStatus,
		}
	}
	if partner, ok := accounting.PartnerOf(entry.TransactionType); ok {
		if entry.TransactionType == partner.SettlementType() {
			return &accounting.ValidationError{Field: "entry_id", Reason: "settlement entries are immutable", Cause: accounting.ErrInvalidStatus}
		}
		if entry.ReversalOf != nil {
			return &accounting.ValidationError{Field: "entry_id", Reason: "a reversed collection is final, post a new collection instead", Cause: accounting.ErrInvalidStatus}
		}
	}
	return nil
}

// guardSettledCollection refuses to back out a partner collection that has
// already been paid over, which would leave settlements above collections.
func guardSettledCollection(ctx context.Context, tx accounting.Tx, entry accounting.JournalEntry) error {
	partner, ok := accounting.PartnerOf(entry.TransactionType)
	if !ok || entry.TransactionType != partner.CollectionType() || entry.ReversalOf != nil {
		return nil
	}
	if err := tx.LockSettlementScope(ctx, entry.BranchID, partner); err != nil {
		return err
	}
	// The collection leaves every as-of sum from its own date on, so each later
	// settlement date has to stay covered, not just the running total.
	records, err := tx.ListSettlements(ctx, entry.BranchID, partner)
	if err != nil {
		return err
	}
	checkpoints := []*time.Time{nil}
	seen := map[time.Time]bool{}
	for _, record := range records {
		at := record.SettledAt.UTC()
		if at.Before(entry.Date) || seen[at] {
			continue
		}
		seen[at] = true
		checkpoints = append(checkpoints, &at)
	}
	amount, _ := entry.Totals()
	for _, asOf := range checkpoints {
		collected, err := tx.SumCollections(ctx, entry.BranchID, entry.TransactionType, asOf)
		if err != nil {
			return err
		}
		settled, err := tx.SumSettlements(ctx, entry.BranchID, partner, asOf)
		if err != nil {
			return err
		}
		if collected.Amount.Sub(amount).LessThan(settled.Amount) {
			return &accounting.ValidationError{
				Field:  "entry_id",
				Reason: "collection has already been settled to the partner",
				Cause:  accounting.ErrInvalidStatus,
			}
		}
	}
	return nil
}

// lockAccounts locks every account the lines touch in id order. When usable is
// set each account must also be active and visible to the branch.
func lockAccounts(ctx context.Context, tx accounting.Tx, branchID string, lines []accounting.JournalLine, usable bool) (map[int64]accounting.Account, error) {
	seen := make(map[int64]bool, len(lines))
	ids := make([]int64, 0, len(lines))
	for _, line := range lines {
		if !seen[line.AccountID] {
			seen[line.AccountID] = true
			ids = append(ids, line.AccountID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	accounts, err := tx.LockAccounts(ctx, ids)
	if err != nil {
		return nil, err
	}
	var errs accounting.ValidationErrors
	for i, line := range lines {
		field := fmt.Sprintf("lines[%d].account_id", i)
		account, ok := accounts[line.AccountID]
		switch {
		case !ok:
			errs = append(errs, accounting.NewValidationError(field, "account does not exist"))
		case !usable:
		case !account.IsActive:
			errs = append(errs, accounting.NewValidationError(field, fmt.Sprintf("account %s is inactive", account.Code)))
		case !account.UsableBy(branchID):
			errs = append(errs, accounting.NewValidationError(field, fmt.Sprintf("account %s belongs to another branch", account.Code)))
		}
	}
	if len(errs) > 0 {
		return nil, errs
	}
	return accounts, nil
}

// insertEntry stores the header. A generated reference that collides is
// regenerated; a supplied one is not.
func (s *Service) insertEntry(ctx context.Context, tx accounting.Tx, entry accounting.JournalEntry, supplied string) (accounting.JournalEntry, error) {
	if supplied != "" {
		entry.Reference = supplied
		inserted, err := tx.InsertJournalEntry(ctx, entry)
		return inserted, classifyInsert(entry, err)
	}
	for attempt := 1; ; attempt++ {
		entry.Reference = s.refs.Next(s.now())
		inserted, err := tx.InsertJournalEntry(ctx, entry)
		if errors.Is(err, accounting.ErrReferenceTaken) && attempt < maxReferenceAttempts {
			s.logger.Warn("generated reference collided", slog.String("reference", entry.Reference), slog.Int("attempt", attempt))
			continue
		}
		return inserted, classifyInsert(entry, err)
	}
}

func classifyInsert(entry accounting.JournalEntry, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, accounting.ErrReferenceTaken):
		return &accounting.PersistenceError{Op: "insert journal " + entry.Reference, Cause: err}
	case errors.Is(err, accounting.ErrSourceAlreadyLinked):
		return &accounting.PersistenceError{Op: "link event " + entry.EventID.String(), Cause: err}
	}
	return err
}

func writeLines(ctx context.Context, tx accounting.Tx, entry accounting.JournalEntry, accounts map[int64]accounting.Account, lines []accounting.JournalLine) (accounting.JournalEntry, error) {
	inserted, err := tx.InsertJournalLines(ctx, entry.ID, lines)
	if err != nil {
		return accounting.JournalEntry{}, err
	}
	if err := tx.AdjustAccountBalances(ctx, balanceDeltas(accounts, inserted)); err != nil {
		return accounting.JournalEntry{}, err
	}
	entry.Lines = inserted
	return entry, nil
}

func balanceDeltas(accounts map[int64]accounting.Account, lines []accounting.JournalLine) map[int64]decimal.Decimal {
	out := make(map[int64]decimal.Decimal, len(lines))
	for _, line := range lines {
		delta := accounts[line.AccountID].Type.SignedDelta(line.Debit, line.Credit)
		out[line.AccountID] = out[line.AccountID].Add(delta)
	}
	return out
}

func swapped(lines []accounting.JournalLine) []accounting.JournalLine {
	out := make([]accounting.JournalLine, 0, len(lines))
	for _, line := range lines {
		out = append(out, accounting.JournalLine{
			AccountID:   line.AccountID,
			Description: line.Description,
			Debit:       line.Credit,
			Credit:      line.Debit,
		})
	}
	return out
}

func sourceOf(txType accounting.TransactionType) accounting.EntrySource {
	if _, err := accounting.ParseTransactionType(string(txType)); err != nil {
		return "unknown"
	}
	return txType.Module()
}

func today(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (s *Service) observe(source accounting.EntrySource, err error, took time.Duration) {
	if s.observer == nil {
		return
	}
	s.observer.ObservePosting(string(source), observability.OutcomeOf(err), took)
}

func (s *Service) record(ctx context.Context, actorID, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "journal_entry",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
		At:       s.now(),
	}); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}
