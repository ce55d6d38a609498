package accounting

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// AccountTypes lists every account type in presentation order.
var AccountTypes = []AccountType{
	AccountTypeAsset,
	AccountTypeLiability,
	AccountTypeEquity,
	AccountTypeRevenue,
	AccountTypeExpense,
}

// ParseAccountType maps free-form input onto a known account type.
func ParseAccountType(raw string) (AccountType, error) {
	switch AccountType(strings.ToUpper(strings.TrimSpace(raw))) {
	case AccountTypeAsset:
		return AccountTypeAsset, nil
	case AccountTypeLiability:
		return AccountTypeLiability, nil
	case AccountTypeEquity:
		return AccountTypeEquity, nil
	case AccountTypeRevenue:
		return AccountTypeRevenue, nil
	case AccountTypeExpense:
		return AccountTypeExpense, nil
	}
	return "", NewValidationError("type", fmt.Sprintf("unknown account type %q", raw))
}

// Side is the direction of a journal line.
type Side int

const (
	SideDebit Side = iota + 1
	SideCredit
)

// NormalSide reports which side increases the balance of this account type.
func (t AccountType) NormalSide() Side {
	switch t {
	case AccountTypeAsset, AccountTypeExpense:
		return SideDebit
	case AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue:
		return SideCredit
	}
	panic(fmt.Sprintf("accounting: unhandled account type %q", string(t)))
}

// SignedDelta converts a debit/credit pair into a balance movement for the type.
func (t AccountType) SignedDelta(debit, credit decimal.Decimal) decimal.Decimal {
	if t.NormalSide() == SideDebit {
		return debit.Sub(credit)
	}
	return credit.Sub(debit)
}

// AccountSubtype refines asset accounts for financial position breakdowns.
type AccountSubtype string

const (
	AccountSubtypeNone       AccountSubtype = ""
	AccountSubtypeCash       AccountSubtype = "CASH"
	AccountSubtypeFloat      AccountSubtype = "FLOAT"
	AccountSubtypeFixedAsset AccountSubtype = "FIXED_ASSET"
	AccountSubtypeReceivable AccountSubtype = "RECEIVABLE"
)

// ParseAccountSubtype accepts an empty value as "no subtype".
func ParseAccountSubtype(raw string) (AccountSubtype, error) {
	switch AccountSubtype(strings.ToUpper(strings.TrimSpace(raw))) {
	case AccountSubtypeNone:
		return AccountSubtypeNone, nil
	case AccountSubtypeCash:
		return AccountSubtypeCash, nil
	case AccountSubtypeFloat:
		return AccountSubtypeFloat, nil
	case AccountSubtypeFixedAsset:
		return AccountSubtypeFixedAsset, nil
	case AccountSubtypeReceivable:
		return AccountSubtypeReceivable, nil
	}
	return "", NewValidationError("subtype", fmt.Sprintf("unknown account subtype %q", raw))
}

// JournalStatus enumerates journal lifecycle values.
type JournalStatus string

const (
	JournalStatusDraft    JournalStatus = "DRAFT"
	JournalStatusPosted   JournalStatus = "POSTED"
	JournalStatusReversed JournalStatus = "REVERSED"
	JournalStatusDeleted  JournalStatus = "DELETED"
)

// AffectsBalance reports whether lines of an entry in this status count towards balances.
// A reversed original keeps its lines; the reversal entry offsets them.
func (s JournalStatus) AffectsBalance() bool {
	switch s {
	case JournalStatusPosted, JournalStatusReversed:
		return true
	case JournalStatusDraft, JournalStatusDeleted:
		return false
	}
	panic(fmt.Sprintf("accounting: unhandled journal status %q", string(s)))
}

// EntrySource identifies what produced a journal entry.
type EntrySource string

const (
	SourceManual           EntrySource = "manual"
	SourceMomoCorrection   EntrySource = "momo_correction"
	SourceAgencyCorrection EntrySource = "agency_correction"
	SourceEzwichCorrection EntrySource = "ezwich_correction"
	SourcePowerCorrection  EntrySource = "power_correction"
	SourceAdjustment       EntrySource = "adjustment"
	SourceReconciliation   EntrySource = "reconciliation"

	SourceMomo          EntrySource = "momo"
	SourceAgencyBanking EntrySource = "agency_banking"
	SourceEzwich        EntrySource = "ezwich"
	SourcePower         EntrySource = "power"
	SourceJumia         EntrySource = "jumia"
	SourceCommission    EntrySource = "commission"
	SourceExpense       EntrySource = "expense"
)

// ManualSources are the categories a person may pick when entering a journal.
var ManualSources = []EntrySource{
	SourceManual,
	SourceMomoCorrection,
	SourceAgencyCorrection,
	SourceEzwichCorrection,
	SourcePowerCorrection,
	SourceAdjustment,
	SourceReconciliation,
}

// AutomatedSources are the modules that post through business events.
var AutomatedSources = []EntrySource{
	SourceMomo,
	SourceAgencyBanking,
	SourceEzwich,
	SourcePower,
	SourceJumia,
	SourceCommission,
	SourceExpense,
}

// ParseEntrySource validates a source value.
func ParseEntrySource(raw string) (EntrySource, error) {
	src := EntrySource(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range ManualSources {
		if src == known {
			return src, nil
		}
	}
	for _, known := range AutomatedSources {
		if src == known {
			return src, nil
		}
	}
	return "", NewValidationError("source", fmt.Sprintf("unknown entry source %q", raw))
}

// IsManual reports whether the source is a human-entered category.
func (s EntrySource) IsManual() bool {
	for _, known := range ManualSources {
		if s == known {
			return true
		}
	}
	return false
}

// MappingType enumerates the purpose a mapped GL account serves in a posting.
type MappingType string

const (
	MappingMain       MappingType = "main"
	MappingFee        MappingType = "fee"
	MappingRevenue    MappingType = "revenue"
	MappingExpense    MappingType = "expense"
	MappingCommission MappingType = "commission"
	MappingAsset      MappingType = "asset"
	MappingLiability  MappingType = "liability"
)

// MappingTypes lists every mapping type in a fixed order.
var MappingTypes = []MappingType{
	MappingMain,
	MappingFee,
	MappingRevenue,
	MappingExpense,
	MappingCommission,
	MappingAsset,
	MappingLiability,
}

// MappingTypesOf returns the keys of m in MappingTypes order.
func MappingTypesOf[V any](m map[MappingType]V) []MappingType {
	out := make([]MappingType, 0, len(m))
	for _, mt := range MappingTypes {
		if _, ok := m[mt]; ok {
			out = append(out, mt)
		}
	}
	return out
}

// ParseMappingType validates a mapping type.
func ParseMappingType(raw string) (MappingType, error) {
	switch MappingType(strings.ToLower(strings.TrimSpace(raw))) {
	case MappingMain:
		return MappingMain, nil
	case MappingFee:
		return MappingFee, nil
	case MappingRevenue:
		return MappingRevenue, nil
	case MappingExpense:
		return MappingExpense, nil
	case MappingCommission:
		return MappingCommission, nil
	case MappingAsset:
		return MappingAsset, nil
	case MappingLiability:
		return MappingLiability, nil
	}
	return "", NewValidationError("mapping_type", fmt.Sprintf("unknown mapping type %q", raw))
}

// MappingOrigin distinguishes system defaults from user-configured mappings.
type MappingOrigin string

const (
	MappingOriginDefault MappingOrigin = "DEFAULT"
	MappingOriginManual  MappingOrigin = "MANUAL"
)

// ParseMappingOrigin defaults an empty value to MANUAL, the origin of user-created rows.
func ParseMappingOrigin(raw string) (MappingOrigin, error) {
	switch MappingOrigin(strings.ToUpper(strings.TrimSpace(raw))) {
	case "", MappingOriginManual:
		return MappingOriginManual, nil
	case MappingOriginDefault:
		return MappingOriginDefault, nil
	}
	return "", NewValidationError("origin", fmt.Sprintf("unknown mapping origin %q", raw))
}

// TransactionType enumerates business events the engine knows how to post.
type TransactionType string

const (
	TxMomoCashIn         TransactionType = "momo_cash_in"
	TxMomoCashOut        TransactionType = "momo_cash_out"
	TxAgencyDeposit      TransactionType = "agency_deposit"
	TxAgencyWithdrawal   TransactionType = "agency_withdrawal"
	TxEzwichWithdrawal   TransactionType = "ezwich_withdrawal"
	TxPowerSale          TransactionType = "power_sale"
	TxJumiaPODCollection TransactionType = "jumia_pod_collection"
	TxJumiaSettlement    TransactionType = "jumia_settlement"
	TxCommissionEarned   TransactionType = "commission_earned"
	TxOperatingExpense   TransactionType = "operating_expense"
)

// TransactionTypes lists every supported transaction type.
var TransactionTypes = []TransactionType{
	TxMomoCashIn,
	TxMomoCashOut,
	TxAgencyDeposit,
	TxAgencyWithdrawal,
	TxEzwichWithdrawal,
	TxPowerSale,
	TxJumiaPODCollection,
	TxJumiaSettlement,
	TxCommissionEarned,
	TxOperatingExpense,
}

// ParseTransactionType validates a transaction type.
func ParseTransactionType(raw string) (TransactionType, error) {
	tt := TransactionType(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range TransactionTypes {
		if tt == known {
			return tt, nil
		}
	}
	return "", NewValidationError("transaction_type", fmt.Sprintf("unknown transaction type %q", raw))
}

// Module returns the automated source that owns entries of this type.
func (t TransactionType) Module() EntrySource {
	switch t {
	case TxMomoCashIn, TxMomoCashOut:
		return SourceMomo
	case TxAgencyDeposit, TxAgencyWithdrawal:
		return SourceAgencyBanking
	case TxEzwichWithdrawal:
		return SourceEzwich
	case TxPowerSale:
		return SourcePower
	case TxJumiaPODCollection, TxJumiaSettlement:
		return SourceJumia
	case TxCommissionEarned:
		return SourceCommission
	case TxOperatingExpense:
		return SourceExpense
	}
	panic(fmt.Sprintf("accounting: unhandled transaction type %q", string(t)))
}

// FloatAccountType enumerates provider float kinds.
type FloatAccountType string

const (
	FloatMomo          FloatAccountType = "momo"
	FloatAgencyBanking FloatAccountType = "agency_banking"
	FloatEzwich        FloatAccountType = "ezwich"
	FloatPower         FloatAccountType = "power"
	FloatJumia         FloatAccountType = "jumia"
	FloatCashInTill    FloatAccountType = "cash_in_till"
)

// Partner enumerates third parties that collections are owed to.
type Partner string

const (
	PartnerJumia Partner = "jumia"
)

// ParsePartner validates a partner value.
func ParsePartner(raw string) (Partner, error) {
	switch Partner(strings.ToLower(strings.TrimSpace(raw))) {
	case PartnerJumia:
		return PartnerJumia, nil
	}
	return "", NewValidationError("partner", fmt.Sprintf("unknown partner %q", raw))
}

// CollectionType is the transaction type that creates liability towards the partner.
func (p Partner) CollectionType() TransactionType {
	switch p {
	case PartnerJumia:
		return TxJumiaPODCollection
	}
	panic(fmt.Sprintf("accounting: unhandled partner %q", string(p)))
}

// SettlementType is the transaction type that discharges liability towards the partner.
func (p Partner) SettlementType() TransactionType {
	switch p {
	case PartnerJumia:
		return TxJumiaSettlement
	}
	panic(fmt.Sprintf("accounting: unhandled partner %q", string(p)))
}

// PartnerOf reports the partner whose collections or settlements the type records.
func PartnerOf(t TransactionType) (Partner, bool) {
	switch t {
	case TxJumiaPODCollection, TxJumiaSettlement:
		return PartnerJumia, true
	}
	return "", false
}

// Account models a chart of accounts node.
type Account struct {
	ID        int64
	Code      string
	Name      string
	Type      AccountType
	Subtype   AccountSubtype
	ParentID  *int64
	BranchID  string
	IsActive  bool
	Balance   decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsGlobal reports whether the account is usable by every branch.
func (a Account) IsGlobal() bool {
	return a.BranchID == ""
}

// UsableBy reports whether the account accepts postings for the branch.
func (a Account) UsableBy(branchID string) bool {
	return a.IsActive && (a.IsGlobal() || a.BranchID == branchID)
}

// FloatAccount is a provider float held outside the ledger.
type FloatAccount struct {
	ID             string
	Provider       string
	Type           FloatAccountType
	BranchID       string
	CurrentBalance decimal.Decimal
	IsActive       bool
	UpdatedAt      time.Time
}

// Mapping links a transaction purpose to a GL account for a branch.
type Mapping struct {
	ID              int64
	TransactionType TransactionType
	MappingType     MappingType
	BranchID        string
	AccountID       int64
	FloatAccountID  string
	Origin          MappingOrigin
	IsActive        bool
	SupersededBy    *int64
	CreatedBy       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// MappingKey is the uniqueness key for active mappings.
type MappingKey struct {
	TransactionType TransactionType
	MappingType     MappingType
	BranchID        string
}

// Key returns the uniqueness key of the mapping.
func (m Mapping) Key() MappingKey {
	return MappingKey{TransactionType: m.TransactionType, MappingType: m.MappingType, BranchID: m.BranchID}
}

// JournalEntry captures posting metadata.
type JournalEntry struct {
	ID              int64
	Date            time.Time
	Reference       string
	Description     string
	Source          EntrySource
	TransactionType TransactionType
	BranchID        string
	CreatedBy       string
	Status          JournalStatus
	ReversalOf      *int64
	ReversedBy      *int64
	EventID         uuid.UUID
	TrackingID      string
	PostedAt        time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Lines           []JournalLine
}

// Totals returns the debit and credit sums of the entry lines.
func (e JournalEntry) Totals() (decimal.Decimal, decimal.Decimal) {
	debit, credit := decimal.Zero, decimal.Zero
	for _, line := range e.Lines {
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	return debit, credit
}

// JournalLine stores a debit or credit amount for an account.
type JournalLine struct {
	ID          int64
	JournalID   int64
	AccountID   int64
	Description string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	CreatedAt   time.Time
}

// SettlementRecord captures a settlement paid to a partner.
type SettlementRecord struct {
	ID             int64
	BranchID       string
	Partner        Partner
	Amount         decimal.Decimal
	Reference      string
	FloatAccountID string
	TrackingIDs    []string
	JournalID      int64
	CreatedBy      string
	SettledAt      time.Time
	CreatedAt      time.Time
}
