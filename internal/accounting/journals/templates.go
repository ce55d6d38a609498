package journals

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/finops-gl/internal/accounting"
)

type leg struct {
	mapping accounting.MappingType
	side    accounting.Side
	amount  func(amount, fee decimal.Decimal) decimal.Decimal
}

func principal(amount, _ decimal.Decimal) decimal.Decimal { return amount }

func feeOnly(_, fee decimal.Decimal) decimal.Decimal { return fee }

func gross(amount, fee decimal.Decimal) decimal.Decimal { return amount.Add(fee) }

// template describes the lines a transaction type produces.
type template struct {
	legs       []leg
	chargesFee bool
}

var templates = map[accounting.TransactionType]template{
	accounting.TxMomoCashIn:         cashInTemplate,
	accounting.TxAgencyDeposit:      cashInTemplate,
	accounting.TxPowerSale:          cashInTemplate,
	accounting.TxMomoCashOut:        cashOutTemplate,
	accounting.TxAgencyWithdrawal:   cashOutTemplate,
	accounting.TxEzwichWithdrawal:   cashOutTemplate,
	accounting.TxJumiaPODCollection: collectionTemplate,
	accounting.TxJumiaSettlement:    settlementTemplate,
	accounting.TxCommissionEarned:   commissionTemplate,
	accounting.TxOperatingExpense:   expenseTemplate,
}

var cashInTemplate = template{chargesFee: true, legs: []leg{
	{accounting.MappingAsset, accounting.SideDebit, gross},
	{accounting.MappingMain, accounting.SideCredit, principal},
	{accounting.MappingFee, accounting.SideCredit, feeOnly},
}}

var cashOutTemplate = template{chargesFee: true, legs: []leg{
	{accounting.MappingMain, accounting.SideDebit, principal},
	{accounting.MappingAsset, accounting.SideCredit, principal},
	{accounting.MappingAsset, accounting.SideDebit, feeOnly},
	{accounting.MappingFee, accounting.SideCredit, feeOnly},
}}

var collectionTemplate = template{legs: []leg{
	{accounting.MappingAsset, accounting.SideDebit, principal},
	{accounting.MappingLiability, accounting.SideCredit, principal},
}}

var settlementTemplate = template{legs: []leg{
	{accounting.MappingLiability, accounting.SideDebit, principal},
	{accounting.MappingMain, accounting.SideCredit, principal},
}}

var commissionTemplate = template{legs: []leg{
	{accounting.MappingCommission, accounting.SideDebit, principal},
	{accounting.MappingRevenue, accounting.SideCredit, principal},
}}

var expenseTemplate = template{legs: []leg{
	{accounting.MappingExpense, accounting.SideDebit, principal},
	{accounting.MappingAsset, accounting.SideCredit, principal},
}}

func templateFor(txType accounting.TransactionType) (template, error) {
	tpl, ok := templates[txType]
	if !ok {
		return template{}, accounting.NewValidationError("transaction_type", fmt.Sprintf("no posting template for %q", txType))
	}
	return tpl, nil
}

// mappingTypes lists the mappings needed to post amount and fee, skipping legs that would be zero.
func (t template) mappingTypes(amount, fee decimal.Decimal) []accounting.MappingType {
	seen := make(map[accounting.MappingType]bool, len(t.legs))
	out := make([]accounting.MappingType, 0, len(t.legs))
	for _, l := range t.legs {
		if l.amount(amount, fee).IsZero() || seen[l.mapping] {
			continue
		}
		seen[l.mapping] = true
		out = append(out, l.mapping)
	}
	return out
}

// lines expands the template against resolved accounts. Zero components are omitted.
func (t template) lines(accounts map[accounting.MappingType]accounting.Account, amount, fee decimal.Decimal, description string) []PostingLineInput {
	out := make([]PostingLineInput, 0, len(t.legs))
	for _, l := range t.legs {
		value := accounting.RoundAmount(l.amount(amount, fee))
		if value.IsZero() {
			continue
		}
		line := PostingLineInput{
			AccountID:   accounts[l.mapping].ID,
			Description: description,
			Debit:       decimal.Zero,
			Credit:      decimal.Zero,
		}
		if l.side == accounting.SideDebit {
			line.Debit = value
		} else {
			line.Credit = value
		}
		out = append(out, line)
	}
	return out
}
