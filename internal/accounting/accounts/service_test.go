package accounts

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/finops-gl/internal/accounting"
	"github.com/odyssey-erp/finops-gl/internal/accounting/memstore"
	"github.com/odyssey-erp/finops-gl/internal/shared"
)

type countingInvalidator struct{ calls int }

func (c *countingInvalidator) Invalidate(context.Context) error {
	c.calls++
	return nil
}

func newTestService(t *testing.T) (*Service, *memstore.Store, *shared.MemoryAudit, *countingInvalidator) {
	t.Helper()
	store := memstore.New()
	audit := shared.NewMemoryAudit(nil)
	inv := &countingInvalidator{}
	return NewService(store, audit, inv, nil), store, audit, inv
}

func TestCreateAccountValidates(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateAccountInput{Type: "BOGUS", Subtype: "CASH"})
	require.Error(t, err)
	assert.ErrorIs(t, err, accounting.ErrValidation)
	var verrs accounting.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	fields := verrs.Fields()
	assert.Contains(t, fields, "code")
	assert.Contains(t, fields, "name")
	assert.Contains(t, fields, "type")
}

func TestCreateAccountRejectsDuplicateCode(t *testing.T) {
	svc, _, audit, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateAccountInput{Code: "1000", Name: "Cash", Type: accounting.AccountTypeAsset, ActorID: "u1"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateAccountInput{Code: "1000", Name: "Cash again", Type: accounting.AccountTypeAsset, ActorID: "u1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, accounting.ErrValidation)
	assert.ErrorIs(t, err, accounting.ErrDuplicateCode)
	assert.Len(t, audit.Records(), 1)
}

func TestCreateAccountParentMustShareType(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	parent, err := svc.Create(ctx, CreateAccountInput{Code: "1000", Name: "Assets", Type: accounting.AccountTypeAsset})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateAccountInput{Code: "2000", Name: "Payables", Type: accounting.AccountTypeLiability, ParentID: &parent.ID})
	assert.ErrorIs(t, err, accounting.ErrValidation)

	child, err := svc.Create(ctx, CreateAccountInput{Code: "1010", Name: "Till", Type: accounting.AccountTypeAsset, Subtype: accounting.AccountSubtypeCash, ParentID: &parent.ID})
	require.NoError(t, err)
	assert.Equal(t, accounting.AccountSubtypeCash, child.Subtype)
	assert.True(t, child.IsActive)
}

func TestUpdateRejectsTypeChangeAndCycles(t *testing.T) {
	svc, _, _, inv := newTestService(t)
	ctx := context.Background()

	root, err := svc.Create(ctx, CreateAccountInput{Code: "1000", Name: "Assets", Type: accounting.AccountTypeAsset})
	require.NoError(t, err)
	child, err := svc.Create(ctx, CreateAccountInput{Code: "1010", Name: "Till", Type: accounting.AccountTypeAsset, ParentID: &root.ID})
	require.NoError(t, err)

	liability := accounting.AccountTypeLiability
	_, err = svc.Update(ctx, UpdateAccountInput{ID: root.ID, Type: &liability})
	assert.ErrorIs(t, err, accounting.ErrValidation)

	_, err = svc.Update(ctx, UpdateAccountInput{ID: root.ID, ParentID: &child.ID})
	assert.ErrorIs(t, err, accounting.ErrValidation)

	name := "Current assets"
	updated, err := svc.Update(ctx, UpdateAccountInput{ID: root.ID, Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Current assets", updated.Name)
	assert.Equal(t, 1, inv.calls)
}

func TestDeactivateAndRollup(t *testing.T) {
	svc, store, _, inv := newTestService(t)
	ctx := context.Background()

	root, err := svc.Create(ctx, CreateAccountInput{Code: "1000", Name: "Assets", Type: accounting.AccountTypeAsset})
	require.NoError(t, err)
	child, err := svc.Create(ctx, CreateAccountInput{Code: "1010", Name: "Till", Type: accounting.AccountTypeAsset, ParentID: &root.ID})
	require.NoError(t, err)
	grandchild, err := svc.Create(ctx, CreateAccountInput{Code: "1011", Name: "Till B", Type: accounting.AccountTypeAsset, ParentID: &child.ID})
	require.NoError(t, err)

	require.NoError(t, store.WithTx(ctx, func(ctx context.Context, tx accounting.Tx) error {
		return tx.AdjustAccountBalances(ctx, map[int64]decimal.Decimal{
			root.ID:       decimal.NewFromInt(5),
			child.ID:      decimal.NewFromInt(10),
			grandchild.ID: decimal.NewFromInt(20),
		})
	}))

	detail, err := svc.Get(ctx, root.ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(35).Equal(detail.RollupBalance))
	assert.Equal(t, 1, detail.Children)

	deactivated, err := svc.Deactivate(ctx, child.ID, "u1")
	require.NoError(t, err)
	assert.False(t, deactivated.IsActive)
	assert.Equal(t, 1, inv.calls)

	_, err = svc.Get(ctx, 999)
	assert.ErrorIs(t, err, accounting.ErrNotFound)
}

func TestListPaginates(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	for _, code := range []string{"1000", "1010", "1020", "2000"} {
		_, err := svc.Create(ctx, CreateAccountInput{Code: code, Name: "A" + code, Type: accounting.AccountTypeAsset})
		require.NoError(t, err)
	}
	page, err := svc.List(ctx, accounting.AccountFilter{Page: 2, PerPage: 3})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "2000", page.Items[0].Code)
	assert.Equal(t, 4, page.Pagination.Total)
	assert.Equal(t, 2, page.Pagination.TotalPages)

	page, err = svc.List(ctx, accounting.AccountFilter{Search: "a10"})
	require.NoError(t, err)
	assert.Len(t, page.Items, 3)
}
