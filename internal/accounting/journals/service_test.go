package journals

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/finops-gl/internal/accounting"
	"github.com/odyssey-erp/finops-gl/internal/accounting/accounts"
	"github.com/odyssey-erp/finops-gl/internal/accounting/ledgertest"
	"github.com/odyssey-erp/finops-gl/internal/accounting/mappings"
	"github.com/odyssey-erp/finops-gl/internal/accounting/seed"
)

var amt = ledgertest.Amount

type scriptedRefs struct {
	refs  []string
	calls int
}

func (s *scriptedRefs) Next(time.Time) string {
	idx := s.calls
	if idx >= len(s.refs) {
		idx = len(s.refs) - 1
	}
	s.calls++
	return s.refs[idx]
}

type postingCounter map[string]int

func (c postingCounter) ObservePosting(source, outcome string, _ time.Duration) {
	c[source+"/"+outcome]++
}

func newService(t *testing.T, refs ReferenceGenerator) (*Service, *ledgertest.Ledger) {
	t.Helper()
	l := ledgertest.New(t)
	svc := NewService(l.Store, l.Mappings, refs, l.Audit, nil)
	svc.WithNow(func() time.Time { return time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC) })
	return svc, l
}

func manualInput(l *ledgertest.Ledger, debitCode, creditCode string, amount decimal.Decimal) PostingInput {
	return PostingInput{
		Description: "Owner capital injection",
		Source:      accounting.SourceManual,
		BranchID:    ledgertest.Branch,
		ActorID:     "u1",
		Lines: []PostingLineInput{
			{AccountID: l.ID(debitCode), Debit: amount},
			{AccountID: l.ID(creditCode), Credit: amount},
		},
	}
}

func accountInput(code, name string, accountType accounting.AccountType) accounts.CreateAccountInput {
	return accounts.CreateAccountInput{Code: code, Name: name, Type: accountType, ActorID: "admin"}
}

func TestPostAppliesSignedBalances(t *testing.T) {
	svc, l := newService(t, NewULIDReferences("GL"))
	ctx := context.Background()

	entry, err := svc.Post(ctx, manualInput(l, seed.CodeCash, seed.CodeOwnerEquity, amt("250.00")))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(entry.Reference, "GL-"))
	assert.Equal(t, accounting.JournalStatusPosted, entry.Status)
	require.Len(t, entry.Lines, 2)
	assert.Equal(t, "Owner capital injection", entry.Lines[0].Description)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), entry.Date)

	assert.True(t, l.Balance(t, seed.CodeCash).Equal(amt("250")))
	assert.True(t, l.Balance(t, seed.CodeOwnerEquity).Equal(amt("250")))

	_, err = svc.Post(ctx, manualInput(l, seed.CodeOperatingExpense, seed.CodeCash, amt("40.10")))
	require.NoError(t, err)
	assert.True(t, l.Balance(t, seed.CodeCash).Equal(amt("209.90")))
	assert.True(t, l.Balance(t, seed.CodeOperatingExpense).Equal(amt("40.10")))

	var actions []string
	for _, rec := range l.Audit.Records() {
		if rec.Entity == "journal_entry" {
			actions = append(actions, rec.Action)
		}
	}
	assert.Equal(t, []string{"journal.post", "journal.post"}, actions)
}

func TestPostRejectsUnbalancedEntryWithoutWriting(t *testing.T) {
	svc, l := newService(t, nil)
	in := manualInput(l, seed.CodeCash, seed.CodeOwnerEquity, amt("100"))
	in.Lines[1].Credit = amt("99.99")

	_, err := svc.Post(context.Background(), in)
	require.Error(t, err)
	assert.ErrorIs(t, err, accounting.ErrValidation)
	assert.ErrorIs(t, err, accounting.ErrUnbalanced)
	assert.True(t, l.Balance(t, seed.CodeCash).IsZero())
}

func TestPostCollectsStaticViolations(t *testing.T) {
	svc, _ := newService(t, nil)
	_, err := svc.Post(context.Background(), PostingInput{
		Source: "bogus",
		Lines:  []PostingLineInput{{AccountID: 0, Debit: amt("-1")}},
	})
	var verrs accounting.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	fields := verrs.Fields()
	for _, field := range []string{"description", "branch_id", "actor", "source", "lines", "lines[0].account_id", "lines[0]"} {
		assert.Contains(t, fields, field)
	}
	assert.ErrorIs(t, err, accounting.ErrTooFewLines)
}

func TestPostRejectsInactiveAndForeignAccounts(t *testing.T) {
	svc, l := newService(t, nil)
	ctx := context.Background()
	_, err := l.Accounts.Deactivate(ctx, l.ID(seed.CodeEquipment), "u1")
	require.NoError(t, err)

	_, err = svc.Post(ctx, manualInput(l, seed.CodeEquipment, seed.CodeOwnerEquity, amt("10")))
	var verrs accounting.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Contains(t, verrs.Fields(), "lines[0].account_id")

	in := manualInput(l, seed.CodeCash, seed.CodeOwnerEquity, amt("10"))
	in.Lines[1].AccountID = 9999
	_, err = svc.Post(ctx, in)
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, "account does not exist", verrs.Fields()["lines[1].account_id"])
}

func TestPostEventExpandsCashInTemplate(t *testing.T) {
	svc, l := newService(t, nil)
	counter := postingCounter{}
	svc.WithObserver(counter)

	entry, err := svc.PostEvent(context.Background(), BusinessEvent{
		EventID:         uuid.New(),
		TransactionType: accounting.TxMomoCashIn,
		BranchID:        ledgertest.Branch,
		FloatAccountID:  seed.FloatID(ledgertest.Branch, accounting.FloatMomo),
		Amount:          amt("100"),
		Fee:             amt("1.50"),
		ActorID:         "teller-7",
	})
	require.NoError(t, err)
	assert.Equal(t, accounting.SourceMomo, entry.Source)
	assert.Equal(t, accounting.TxMomoCashIn, entry.TransactionType)
	require.Len(t, entry.Lines, 3)
	debit, credit := entry.Totals()
	assert.True(t, debit.Equal(amt("101.50")))
	assert.True(t, credit.Equal(debit))

	assert.True(t, l.Balance(t, seed.CodeCash).Equal(amt("101.50")))
	assert.True(t, l.Balance(t, seed.CodeMomoFloat).Equal(amt("-100")))
	assert.True(t, l.Balance(t, seed.CodeFeeIncome).Equal(amt("1.50")))
	assert.Equal(t, 1, counter["momo/ok"])
}

func TestPostEventOmitsZeroFee(t *testing.T) {
	svc, l := newService(t, nil)
	entry, err := svc.PostEvent(context.Background(), BusinessEvent{
		EventID:         uuid.New(),
		TransactionType: accounting.TxMomoCashOut,
		BranchID:        ledgertest.Branch,
		Amount:          amt("60"),
		ActorID:         "teller-7",
	})
	require.NoError(t, err)
	require.Len(t, entry.Lines, 2)
	assert.True(t, l.Balance(t, seed.CodeCash).Equal(amt("-60")))
	assert.True(t, l.Balance(t, seed.CodeFeeIncome).IsZero())
}

func TestPostEventValidation(t *testing.T) {
	svc, _ := newService(t, nil)
	_, err := svc.PostEvent(context.Background(), BusinessEvent{
		TransactionType: accounting.TxCommissionEarned,
		Amount:          decimal.Zero,
		Fee:             amt("2"),
	})
	var verrs accounting.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	fields := verrs.Fields()
	for _, field := range []string{"event_id", "branch_id", "actor", "amount", "fee"} {
		assert.Contains(t, fields, field)
	}

	_, err = svc.PostEvent(context.Background(), BusinessEvent{
		EventID:         uuid.New(),
		TransactionType: accounting.TxJumiaPODCollection,
		BranchID:        ledgertest.Branch,
		Amount:          amt("20"),
		ActorID:         "u1",
	})
	require.ErrorAs(t, err, &verrs)
	assert.Contains(t, verrs.Fields(), "tracking_id")
}

func TestPostEventMissingMapping(t *testing.T) {
	svc, _ := newService(t, nil)
	_, err := svc.PostEvent(context.Background(), BusinessEvent{
		EventID:         uuid.New(),
		TransactionType: accounting.TxPowerSale,
		BranchID:        ledgertest.Branch,
		Amount:          amt("20"),
		ActorID:         "u1",
	})
	var notFound *accounting.MappingNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, accounting.TxPowerSale, notFound.TransactionType)
}

func TestPostEventDuplicateEventIsPersistenceError(t *testing.T) {
	svc, l := newService(t, nil)
	event := BusinessEvent{
		EventID:         uuid.New(),
		TransactionType: accounting.TxCommissionEarned,
		BranchID:        ledgertest.Branch,
		Amount:          amt("12.00"),
		ActorID:         "u1",
	}
	_, err := svc.PostEvent(context.Background(), event)
	require.NoError(t, err)
	_, err = svc.PostEvent(context.Background(), event)
	require.Error(t, err)
	assert.ErrorIs(t, err, accounting.ErrPersistence)
	assert.ErrorIs(t, err, accounting.ErrSourceAlreadyLinked)
	assert.True(t, l.Balance(t, seed.CodeCommissionIncome).Equal(amt("12")))
}

func TestGeneratedReferenceCollisionIsRetried(t *testing.T) {
	refs := &scriptedRefs{refs: []string{"GL-A", "GL-A", "GL-B"}}
	svc, l := newService(t, refs)
	ctx := context.Background()

	first, err := svc.Post(ctx, manualInput(l, seed.CodeCash, seed.CodeOwnerEquity, amt("5")))
	require.NoError(t, err)
	assert.Equal(t, "GL-A", first.Reference)
	second, err := svc.Post(ctx, manualInput(l, seed.CodeCash, seed.CodeOwnerEquity, amt("5")))
	require.NoError(t, err)
	assert.Equal(t, "GL-B", second.Reference)
	assert.Equal(t, 3, refs.calls)
}

func TestGeneratedReferenceGivesUpAfterThreeAttempts(t *testing.T) {
	refs := &scriptedRefs{refs: []string{"GL-A"}}
	svc, l := newService(t, refs)
	ctx := context.Background()

	_, err := svc.Post(ctx, manualInput(l, seed.CodeCash, seed.CodeOwnerEquity, amt("5")))
	require.NoError(t, err)
	_, err = svc.Post(ctx, manualInput(l, seed.CodeCash, seed.CodeOwnerEquity, amt("5")))
	assert.ErrorIs(t, err, accounting.ErrPersistence)
	assert.ErrorIs(t, err, accounting.ErrReferenceTaken)
	assert.Equal(t, 1+maxReferenceAttempts, refs.calls)
	assert.True(t, l.Balance(t, seed.CodeCash).Equal(amt("5")))
}

func TestSuppliedReferenceCollisionIsNotRetried(t *testing.T) {
	refs := &scriptedRefs{refs: []string{"GL-X"}}
	svc, l := newService(t, refs)
	ctx := context.Background()
	in := manualInput(l, seed.CodeCash, seed.CodeOwnerEquity, amt("5"))
	in.Reference = "INV-1"

	_, err := svc.Post(ctx, in)
	require.NoError(t, err)
	_, err = svc.Post(ctx, in)
	assert.ErrorIs(t, err, accounting.ErrPersistence)
	assert.Equal(t, 0, refs.calls)
}

// racingResolver swaps the fee mapping right after the first, cached resolution.
type racingResolver struct {
	inner *mappings.Service
	race  func()
	calls []bool
}

func (r *racingResolver) Resolve(ctx context.Context, req mappings.ResolveRequest) (mappings.Resolution, error) {
	r.calls = append(r.calls, req.Fresh)
	res, err := r.inner.Resolve(ctx, req)
	if len(r.calls) == 1 && r.race != nil {
		r.race()
	}
	return res, err
}

func TestPostEventRetriesOnceAfterMappingChange(t *testing.T) {
	l := ledgertest.New(t)
	ctx := context.Background()
	promo, err := l.Accounts.Create(ctx, accountInput("4110", "Promotional fee income", accounting.AccountTypeRevenue))
	require.NoError(t, err)

	resolver := &racingResolver{inner: l.Mappings}
	resolver.race = func() {
		_, err := l.Mappings.Create(ctx, mappings.CreateMappingInput{
			TransactionType: accounting.TxMomoCashIn,
			MappingType:     accounting.MappingFee,
			BranchID:        ledgertest.Branch,
			AccountID:       promo.ID,
			ActorID:         "admin",
		})
		require.NoError(t, err)
	}
	counter := postingCounter{}
	svc := NewService(l.Store, resolver, nil, l.Audit, nil).WithObserver(counter)

	entry, err := svc.PostEvent(ctx, BusinessEvent{
		EventID:         uuid.New(),
		TransactionType: accounting.TxMomoCashIn,
		BranchID:        ledgertest.Branch,
		Amount:          amt("50"),
		Fee:             amt("0.50"),
		ActorID:         "teller-7",
	})
	require.NoError(t, err)
	assert.Equal(t, []bool{false, true}, resolver.calls)
	assert.Equal(t, 1, counter["momo/conflict"])
	assert.Equal(t, 1, counter["momo/ok"])

	var feeLine accounting.JournalLine
	for _, line := range entry.Lines {
		if line.Credit.Equal(amt("0.50")) {
			feeLine = line
		}
	}
	assert.Equal(t, promo.ID, feeLine.AccountID)
	assert.True(t, l.Balance(t, seed.CodeFeeIncome).IsZero())
}

func TestReverseRestoresBalances(t *testing.T) {
	svc, l := newService(t, nil)
	ctx := context.Background()
	original, err := svc.Post(ctx, manualInput(l, seed.CodeCash, seed.CodeOwnerEquity, amt("75.25")))
	require.NoError(t, err)

	reversal, err := svc.Reverse(ctx, ReverseInput{EntryID: original.ID, ActorID: "u2"})
	require.NoError(t, err)
	require.NotNil(t, reversal.ReversalOf)
	assert.Equal(t, original.ID, *reversal.ReversalOf)
	assert.Equal(t, "Reversal of "+original.Reference, reversal.Description)
	assert.Equal(t, original.Source, reversal.Source)
	require.Len(t, reversal.Lines, 2)
	assert.True(t, reversal.Lines[0].Credit.Equal(original.Lines[0].Debit))

	assert.True(t, l.Balance(t, seed.CodeCash).IsZero())
	assert.True(t, l.Balance(t, seed.CodeOwnerEquity).IsZero())

	stored, err := svc.Get(ctx, original.ID)
	require.NoError(t, err)
	assert.Equal(t, accounting.JournalStatusReversed, stored.Status)
	require.NotNil(t, stored.ReversedBy)
	assert.Equal(t, reversal.ID, *stored.ReversedBy)

	_, err = svc.Reverse(ctx, ReverseInput{EntryID: original.ID, ActorID: "u2"})
	assert.ErrorIs(t, err, accounting.ErrInvalidStatus)
	_, err = svc.Delete(ctx, DeleteInput{EntryID: original.ID, ActorID: "u2"})
	assert.ErrorIs(t, err, accounting.ErrInvalidStatus)
	_, err = svc.Delete(ctx, DeleteInput{EntryID: reversal.ID, ActorID: "u2"})
	assert.ErrorIs(t, err, accounting.ErrInvalidStatus)
}

func TestDeleteBacksOutBalances(t *testing.T) {
	svc, l := newService(t, nil)
	ctx := context.Background()
	entry, err := svc.Post(ctx, manualInput(l, seed.CodeOperatingExpense, seed.CodeCash, amt("30")))
	require.NoError(t, err)
	require.True(t, l.Balance(t, seed.CodeOperatingExpense).Equal(amt("30")))

	deleted, err := svc.Delete(ctx, DeleteInput{EntryID: entry.ID, ActorID: "u1", Reason: "duplicate"})
	require.NoError(t, err)
	assert.Equal(t, accounting.JournalStatusDeleted, deleted.Status)
	assert.True(t, l.Balance(t, seed.CodeOperatingExpense).IsZero())
	assert.True(t, l.Balance(t, seed.CodeCash).IsZero())

	_, err = svc.Reverse(ctx, ReverseInput{EntryID: entry.ID, ActorID: "u1"})
	assert.ErrorIs(t, err, accounting.ErrInvalidStatus)

	_, err = svc.Delete(ctx, DeleteInput{EntryID: 4242, ActorID: "u1"})
	assert.ErrorIs(t, err, accounting.ErrNotFound)
}

func TestLifecycleRequiresActor(t *testing.T) {
	svc, _ := newService(t, nil)
	_, err := svc.Reverse(context.Background(), ReverseInput{EntryID: 1})
	var verrs accounting.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Contains(t, verrs.Fields(), "actor")
}
