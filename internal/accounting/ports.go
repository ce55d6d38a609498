package accounting

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Store abstracts transactional access to the ledger.
type Store interface {
	// WithTx runs fn in a serializable read-write transaction. Returning an error rolls back.
	WithTx(ctx context.Context, fn func(context.Context, Tx) error) error
	// WithSnapshot runs fn against a consistent read-only snapshot.
	WithSnapshot(ctx context.Context, fn func(context.Context, Tx) error) error
}

// Tx exposes ledger operations available inside a transaction.
type Tx interface {
	InsertAccount(ctx context.Context, account Account) (Account, error)
	GetAccount(ctx context.Context, id int64) (Account, error)
	GetAccountByCode(ctx context.Context, code string) (Account, error)
	ListAccounts(ctx context.Context, filter AccountFilter) ([]Account, int, error)
	UpdateAccount(ctx context.Context, account Account) error
	LockAccounts(ctx context.Context, ids []int64) (map[int64]Account, error)
	AdjustAccountBalances(ctx context.Context, deltas map[int64]decimal.Decimal) error

	GetFloatAccount(ctx context.Context, id string) (FloatAccount, error)
	ListFloatAccounts(ctx context.Context, branchID string) ([]FloatAccount, error)
	UpsertFloatAccount(ctx context.Context, float FloatAccount) error

	InsertMapping(ctx context.Context, mapping Mapping) (Mapping, error)
	GetMapping(ctx context.Context, id int64) (Mapping, error)
	FindActiveMapping(ctx context.Context, key MappingKey) (Mapping, error)
	FindSupersededBy(ctx context.Context, mappingID int64) (Mapping, error)
	UpdateMapping(ctx context.Context, mapping Mapping) error
	ListMappings(ctx context.Context, filter MappingFilter) ([]Mapping, error)

	InsertJournalEntry(ctx context.Context, entry JournalEntry) (JournalEntry, error)
	InsertJournalLines(ctx context.Context, entryID int64, lines []JournalLine) ([]JournalLine, error)
	GetJournalWithLines(ctx context.Context, id int64) (JournalEntry, error)
	LockJournal(ctx context.Context, id int64) (JournalEntry, error)
	UpdateJournalStatus(ctx context.Context, id int64, status JournalStatus, reversedBy *int64) error

	SumAccountLines(ctx context.Context, accountID int64, asOf *time.Time) (decimal.Decimal, decimal.Decimal, error)
	AccountActivity(ctx context.Context, branchID string, asOf *time.Time) ([]AccountActivity, error)
	SourceActivity(ctx context.Context, branchID string, since *time.Time) ([]SourceActivity, error)
	MaxLineID(ctx context.Context) (int64, error)
	ListHistory(ctx context.Context, query HistoryWindow) ([]HistoryItem, error)
	CountHistory(ctx context.Context, filter HistoryFilter, watermark int64) (int, error)

	LockSettlementScope(ctx context.Context, branchID string, partner Partner) error
	SumCollections(ctx context.Context, branchID string, txType TransactionType, asOf *time.Time) (CollectionSummary, error)
	SumSettlements(ctx context.Context, branchID string, partner Partner, asOf *time.Time) (SettlementSummary, error)
	InsertSettlement(ctx context.Context, record SettlementRecord) (SettlementRecord, error)
	ListSettlements(ctx context.Context, branchID string, partner Partner) ([]SettlementRecord, error)
}

// AccountFilter narrows chart of accounts listings. PerPage 0 returns every row.
type AccountFilter struct {
	Type     *AccountType
	Search   string
	BranchID string
	Active   *bool
	Page     int
	PerPage  int
}

// MappingFilter narrows mapping listings.
type MappingFilter struct {
	TransactionType *TransactionType
	BranchID        string
	FloatAccountID  string
	Origin          *MappingOrigin
	ActiveOnly      bool
}

// AccountActivity aggregates balance-affecting lines per account.
type AccountActivity struct {
	AccountID int64
	Debit     decimal.Decimal
	Credit    decimal.Decimal
}

// SourceActivity aggregates balance-affecting entries per source.
type SourceActivity struct {
	Source  EntrySource
	Entries int
	Debits  decimal.Decimal
}

// HistoryFilter narrows transaction history.
type HistoryFilter struct {
	AccountID       int64
	BranchID        string
	Source          *EntrySource
	TransactionType *TransactionType
	From            *time.Time
	To              *time.Time
	IncludeDeleted  bool
}

// HistoryKey is the keyset position of a history row.
type HistoryKey struct {
	Date   time.Time
	LineID int64
}

// HistoryWindow asks for one page of history below a snapshot watermark.
type HistoryWindow struct {
	Filter    HistoryFilter
	Watermark int64
	After     *HistoryKey
	Limit     int
}

// HistoryItem is one journal line joined with its entry header.
type HistoryItem struct {
	EntryID         int64
	LineID          int64
	Date            time.Time
	Reference       string
	Description     string
	Source          EntrySource
	TransactionType TransactionType
	BranchID        string
	Status          JournalStatus
	AccountID       int64
	AccountCode     string
	AccountName     string
	Debit           decimal.Decimal
	Credit          decimal.Decimal
}

// Key returns the keyset position of the item.
func (h HistoryItem) Key() HistoryKey {
	return HistoryKey{Date: h.Date, LineID: h.LineID}
}

// CollectionSummary aggregates partner collections that are still in effect.
type CollectionSummary struct {
	Amount      decimal.Decimal
	Count       int
	TrackingIDs []string
}

// SettlementSummary aggregates settlements already paid.
type SettlementSummary struct {
	Amount        decimal.Decimal
	Count         int
	LastSettledAt *time.Time
	TrackingIDs   []string
}
