// Package seed installs a demo chart of accounts, provider floats and default
// mappings for a branch. Running it twice is harmless.
package seed

import (
	"context"
	"errors"
	"fmt"

	"github.com/odyssey-erp/finops-gl/internal/accounting"
	"github.com/odyssey-erp/finops-gl/internal/accounting/accounts"
	"github.com/odyssey-erp/finops-gl/internal/accounting/mappings"
)

// AccountRegistry is the subset of the account service the seeder needs.
type AccountRegistry interface {
	Create(ctx context.Context, input accounts.CreateAccountInput) (accounting.Account, error)
	GetByCode(ctx context.Context, code string) (accounting.Account, error)
}

// MappingRegistry is the subset of the mapping service the seeder needs.
type MappingRegistry interface {
	Create(ctx context.Context, input mappings.CreateMappingInput) (accounting.Mapping, error)
}

// Chart of accounts codes.
const (
	CodeCash                 = "1010"
	CodeMomoFloat            = "1020"
	CodeCommissionReceivable = "1300"
	CodeEquipment            = "1500"
	CodeJumiaPayable         = "2300"
	CodeOwnerEquity          = "3000"
	CodeFeeIncome            = "4100"
	CodeCommissionIncome     = "4200"
	CodeOperatingExpense     = "5100"
)

var chart = []accounts.CreateAccountInput{
	{Code: CodeCash, Name: "Cash in till", Type: accounting.AccountTypeAsset, Subtype: accounting.AccountSubtypeCash},
	{Code: CodeMomoFloat, Name: "Mobile money float", Type: accounting.AccountTypeAsset, Subtype: accounting.AccountSubtypeFloat},
	{Code: CodeCommissionReceivable, Name: "Commission receivable", Type: accounting.AccountTypeAsset, Subtype: accounting.AccountSubtypeReceivable},
	{Code: CodeEquipment, Name: "Office equipment", Type: accounting.AccountTypeAsset, Subtype: accounting.AccountSubtypeFixedAsset},
	{Code: CodeJumiaPayable, Name: "Jumia collections payable", Type: accounting.AccountTypeLiability},
	{Code: CodeOwnerEquity, Name: "Owner's equity", Type: accounting.AccountTypeEquity},
	{Code: CodeFeeIncome, Name: "Transaction fee income", Type: accounting.AccountTypeRevenue},
	{Code: CodeCommissionIncome, Name: "Commission income", Type: accounting.AccountTypeRevenue},
	{Code: CodeOperatingExpense, Name: "Operating expenses", Type: accounting.AccountTypeExpense},
}

type defaultMapping struct {
	txType accounting.TransactionType
	mt     accounting.MappingType
	code   string
	float  accounting.FloatAccountType
}

var defaults = []defaultMapping{
	{accounting.TxMomoCashIn, accounting.MappingAsset, CodeCash, ""},
	{accounting.TxMomoCashIn, accounting.MappingMain, CodeMomoFloat, accounting.FloatMomo},
	{accounting.TxMomoCashIn, accounting.MappingFee, CodeFeeIncome, ""},
	{accounting.TxMomoCashOut, accounting.MappingMain, CodeMomoFloat, accounting.FloatMomo},
	{accounting.TxMomoCashOut, accounting.MappingAsset, CodeCash, ""},
	{accounting.TxMomoCashOut, accounting.MappingFee, CodeFeeIncome, ""},
	{accounting.TxJumiaPODCollection, accounting.MappingAsset, CodeCash, ""},
	{accounting.TxJumiaPODCollection, accounting.MappingLiability, CodeJumiaPayable, ""},
	{accounting.TxJumiaSettlement, accounting.MappingLiability, CodeJumiaPayable, ""},
	{accounting.TxJumiaSettlement, accounting.MappingMain, CodeCash, accounting.FloatCashInTill},
	{accounting.TxCommissionEarned, accounting.MappingCommission, CodeCommissionReceivable, ""},
	{accounting.TxCommissionEarned, accounting.MappingRevenue, CodeCommissionIncome, ""},
	{accounting.TxOperatingExpense, accounting.MappingExpense, CodeOperatingExpense, ""},
	{accounting.TxOperatingExpense, accounting.MappingAsset, CodeCash, ""},
}

var floats = []accounting.FloatAccountType{accounting.FloatMomo, accounting.FloatJumia, accounting.FloatCashInTill}

// FloatID names the demo float of the given kind for a branch.
func FloatID(branchID string, kind accounting.FloatAccountType) string {
	return fmt.Sprintf("%s-%s", branchID, kind)
}

// Result reports what the seeder installed or found.
type Result struct {
	Accounts map[string]accounting.Account
	Floats   []string
	Mappings int
}

// Demo installs the demo configuration for branchID.
func Demo(ctx context.Context, store accounting.Store, registry AccountRegistry, resolver MappingRegistry, branchID, actorID string) (Result, error) {
	if branchID == "" {
		return Result{}, accounting.NewValidationError("branch_id", "is required")
	}
	out := Result{Accounts: make(map[string]accounting.Account, len(chart))}
	for _, in := range chart {
		account, err := registry.GetByCode(ctx, in.Code)
		if errors.Is(err, accounting.ErrNotFound) {
			in.ActorID = actorID
			account, err = registry.Create(ctx, in)
		}
		if err != nil {
			return Result{}, fmt.Errorf("seed account %s: %w", in.Code, err)
		}
		out.Accounts[in.Code] = account
	}
	err := store.WithTx(ctx, func(ctx context.Context, tx accounting.Tx) error {
		for _, kind := range floats {
			id := FloatID(branchID, kind)
			if _, err := tx.GetFloatAccount(ctx, id); err == nil {
				continue
			} else if !errors.Is(err, accounting.ErrNotFound) {
				return err
			}
			if err := tx.UpsertFloatAccount(ctx, accounting.FloatAccount{
				ID:       id,
				Provider: string(kind),
				Type:     kind,
				BranchID: branchID,
				IsActive: true,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("seed floats: %w", err)
	}
	for _, kind := range floats {
		out.Floats = append(out.Floats, FloatID(branchID, kind))
	}
	for _, d := range defaults {
		in := mappings.CreateMappingInput{
			TransactionType: d.txType,
			MappingType:     d.mt,
			BranchID:        branchID,
			AccountID:       out.Accounts[d.code].ID,
			Origin:          accounting.MappingOriginDefault,
			ActorID:         actorID,
		}
		if d.float != "" {
			in.FloatAccountID = FloatID(branchID, d.float)
		}
		_, err := resolver.Create(ctx, in)
		if errors.Is(err, accounting.ErrMappingConflict) {
			continue
		}
		if err != nil {
			return Result{}, fmt.Errorf("seed mapping %s/%s: %w", d.txType, d.mt, err)
		}
		out.Mappings++
	}
	return out, nil
}
