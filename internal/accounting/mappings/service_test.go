package mappings

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/finops-gl/internal/accounting"
	"github.com/odyssey-erp/finops-gl/internal/accounting/memstore"
	"github.com/odyssey-erp/finops-gl/internal/platform/cache"
)

type cacheCounter struct{ hits, misses int }

func (c *cacheCounter) ObserveMappingCache(hit bool) {
	if hit {
		c.hits++
		return
	}
	c.misses++
}

type fixture struct {
	svc       *Service
	store     *memstore.Store
	counter   *cacheCounter
	till      accounting.Account
	momo      accounting.Account
	altMomo   accounting.Account
	feeIncome accounting.Account
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := memstore.New()
	f := fixture{store: store, counter: &cacheCounter{}}
	ctx := context.Background()
	require.NoError(t, store.WithTx(ctx, func(ctx context.Context, tx accounting.Tx) error {
		var err error
		if f.till, err = tx.InsertAccount(ctx, accounting.Account{Code: "1010", Name: "Cash in till", Type: accounting.AccountTypeAsset, IsActive: true}); err != nil {
			return err
		}
		if f.momo, err = tx.InsertAccount(ctx, accounting.Account{Code: "2100", Name: "MoMo float payable", Type: accounting.AccountTypeLiability, IsActive: true}); err != nil {
			return err
		}
		if f.altMomo, err = tx.InsertAccount(ctx, accounting.Account{Code: "2101", Name: "MoMo float payable B", Type: accounting.AccountTypeLiability, IsActive: true}); err != nil {
			return err
		}
		if f.feeIncome, err = tx.InsertAccount(ctx, accounting.Account{Code: "4100", Name: "MoMo fee income", Type: accounting.AccountTypeRevenue, IsActive: true}); err != nil {
			return err
		}
		for _, id := range []string{"float-mtn", "float-voda"} {
			if err := tx.UpsertFloatAccount(ctx, accounting.FloatAccount{ID: id, Provider: id, Type: accounting.FloatMomo, BranchID: "b1", IsActive: true}); err != nil {
				return err
			}
		}
		return nil
	}))
	c := cache.NewVersioned(client, "gl:mappings", time.Minute)
	f.svc = NewService(store, c, nil, nil).WithObserver(f.counter)
	return f
}

func (f fixture) create(t *testing.T, in CreateMappingInput) accounting.Mapping {
	t.Helper()
	m, err := f.svc.Create(context.Background(), in)
	require.NoError(t, err)
	return m
}

func TestResolveIsDeterministicAndCached(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, CreateMappingInput{TransactionType: accounting.TxMomoCashIn, MappingType: accounting.MappingMain, BranchID: "b1", AccountID: f.momo.ID})
	f.create(t, CreateMappingInput{TransactionType: accounting.TxMomoCashIn, MappingType: accounting.MappingAsset, BranchID: "b1", AccountID: f.till.ID})

	req := ResolveRequest{
		TransactionType: accounting.TxMomoCashIn,
		BranchID:        "b1",
		MappingTypes:    []accounting.MappingType{accounting.MappingMain, accounting.MappingAsset, accounting.MappingMain},
	}
	first, err := f.svc.Resolve(ctx, req)
	require.NoError(t, err)
	second, err := f.svc.Resolve(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, f.momo.ID, first.AccountID(accounting.MappingMain))
	assert.Equal(t, f.till.ID, first.AccountID(accounting.MappingAsset))
	assert.Len(t, first.Accounts, 2)
	assert.Equal(t, first.Mappings, second.Mappings)
	assert.Equal(t, first.AccountID(accounting.MappingMain), second.AccountID(accounting.MappingMain))
	assert.Equal(t, 1, f.counter.misses)
	assert.Equal(t, 1, f.counter.hits)
}

func TestResolveMissingMappingNamesTriple(t *testing.T) {
	f := newFixture(t)
	f.create(t, CreateMappingInput{TransactionType: accounting.TxMomoCashIn, MappingType: accounting.MappingMain, BranchID: "b1", AccountID: f.momo.ID})

	_, err := f.svc.Resolve(context.Background(), ResolveRequest{
		TransactionType: accounting.TxMomoCashIn,
		BranchID:        "b1",
		MappingTypes:    []accounting.MappingType{accounting.MappingMain, accounting.MappingFee},
	})
	require.Error(t, err)
	var notFound *accounting.MappingNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, accounting.TxMomoCashIn, notFound.TransactionType)
	assert.Equal(t, accounting.MappingFee, notFound.MappingType)
	assert.Equal(t, "b1", notFound.BranchID)

	_, err = f.svc.Resolve(context.Background(), ResolveRequest{TransactionType: accounting.TxMomoCashIn, BranchID: "b2",
		MappingTypes: []accounting.MappingType{accounting.MappingMain}})
	assert.ErrorIs(t, err, accounting.ErrMappingNotFound)
}

func TestResolveValidatesInputs(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Resolve(context.Background(), ResolveRequest{TransactionType: "nope"})
	require.Error(t, err)
	var verrs accounting.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	fields := verrs.Fields()
	assert.Contains(t, fields, "transaction_type")
	assert.Contains(t, fields, "branch_id")
	assert.Contains(t, fields, "mapping_types")
}

func TestSecondActiveManualMappingIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.create(t, CreateMappingInput{TransactionType: accounting.TxMomoCashIn, MappingType: accounting.MappingMain, BranchID: "b1", AccountID: f.momo.ID})

	_, err := f.svc.Create(ctx, CreateMappingInput{TransactionType: accounting.TxMomoCashIn, MappingType: accounting.MappingMain, BranchID: "b1", AccountID: f.altMomo.ID})
	require.Error(t, err)
	assert.ErrorIs(t, err, accounting.ErrValidation)
	assert.ErrorIs(t, err, accounting.ErrMappingConflict)

	active, err := f.svc.List(ctx, accounting.MappingFilter{BranchID: "b1", ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, first.ID, active[0].ID)
}

func TestManualSupersedesDefaultAndRestoresOnDeactivate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	def := f.create(t, CreateMappingInput{TransactionType: accounting.TxMomoCashIn, MappingType: accounting.MappingMain, BranchID: "b1", AccountID: f.momo.ID, Origin: accounting.MappingOriginDefault})
	req := ResolveRequest{TransactionType: accounting.TxMomoCashIn, BranchID: "b1", MappingTypes: []accounting.MappingType{accounting.MappingMain}}

	res, err := f.svc.Resolve(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, f.momo.ID, res.AccountID(accounting.MappingMain))

	manual := f.create(t, CreateMappingInput{TransactionType: accounting.TxMomoCashIn, MappingType: accounting.MappingMain, BranchID: "b1", AccountID: f.altMomo.ID})
	res, err = f.svc.Resolve(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, f.altMomo.ID, res.AccountID(accounting.MappingMain), "manual mapping takes precedence")

	all, err := f.svc.List(ctx, accounting.MappingFilter{BranchID: "b1"})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.False(t, all[0].IsActive)
	require.NotNil(t, all[0].SupersededBy)
	assert.Equal(t, manual.ID, *all[0].SupersededBy)

	_, err = f.svc.Create(ctx, CreateMappingInput{TransactionType: accounting.TxMomoCashIn, MappingType: accounting.MappingMain, BranchID: "b1", AccountID: f.momo.ID, Origin: accounting.MappingOriginDefault})
	assert.ErrorIs(t, err, accounting.ErrMappingConflict)

	_, err = f.svc.Deactivate(ctx, manual.ID, "u1")
	require.NoError(t, err)
	res, err = f.svc.Resolve(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, def.ID, res.Mappings[accounting.MappingMain].ID)

	_, err = f.svc.Deactivate(ctx, manual.ID, "u1")
	assert.ErrorIs(t, err, accounting.ErrInvalidStatus)
}

func TestResolveChecksFloatAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, CreateMappingInput{TransactionType: accounting.TxMomoCashIn, MappingType: accounting.MappingMain, BranchID: "b1", AccountID: f.momo.ID, FloatAccountID: "float-mtn"})

	_, err := f.svc.Resolve(ctx, ResolveRequest{TransactionType: accounting.TxMomoCashIn, BranchID: "b1", FloatAccountID: "float-mtn",
		MappingTypes: []accounting.MappingType{accounting.MappingMain}})
	require.NoError(t, err)

	_, err = f.svc.Resolve(ctx, ResolveRequest{TransactionType: accounting.TxMomoCashIn, BranchID: "b1", FloatAccountID: "float-voda",
		MappingTypes: []accounting.MappingType{accounting.MappingMain}})
	var notFound *accounting.MappingNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "float-voda", notFound.FloatAccountID)

	_, err = f.svc.Create(ctx, CreateMappingInput{TransactionType: accounting.TxMomoCashOut, MappingType: accounting.MappingMain, BranchID: "b1", AccountID: f.momo.ID, FloatAccountID: "missing"})
	assert.ErrorIs(t, err, accounting.ErrValidation)
}

func TestVerifyDetectsChangedMapping(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	def := f.create(t, CreateMappingInput{TransactionType: accounting.TxMomoCashIn, MappingType: accounting.MappingFee, BranchID: "b1", AccountID: f.feeIncome.ID, Origin: accounting.MappingOriginDefault})
	res, err := f.svc.Resolve(ctx, ResolveRequest{TransactionType: accounting.TxMomoCashIn, BranchID: "b1", MappingTypes: []accounting.MappingType{accounting.MappingFee}})
	require.NoError(t, err)

	require.NoError(t, f.store.WithSnapshot(ctx, func(ctx context.Context, tx accounting.Tx) error {
		return res.Verify(ctx, tx)
	}))

	_, err = f.svc.Deactivate(ctx, def.ID, "u1")
	require.NoError(t, err)
	err = f.store.WithSnapshot(ctx, func(ctx context.Context, tx accounting.Tx) error {
		return res.Verify(ctx, tx)
	})
	assert.ErrorIs(t, err, accounting.ErrConcurrencyConflict)
}
