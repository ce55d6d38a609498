package mappings

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/finops-gl/internal/accounting"
)

// ResolveRequest asks for the GL accounts a posting must touch.
type ResolveRequest struct {
	TransactionType accounting.TransactionType
	BranchID        string
	FloatAccountID  string
	MappingTypes    []accounting.MappingType
	// Fresh bypasses the cache.
	Fresh bool
}

// Resolution holds exactly one account per requested mapping type.
// Account balances may be stale when served from cache.
type Resolution struct {
	TransactionType accounting.TransactionType
	BranchID        string
	FloatAccountID  string
	Accounts        map[accounting.MappingType]accounting.Account
	Mappings        map[accounting.MappingType]accounting.Mapping
}

// AccountID returns the account bound to the mapping type, or 0.
func (r Resolution) AccountID(mt accounting.MappingType) int64 {
	return r.Accounts[mt].ID
}

// Verify confirms, inside the posting transaction, that every resolved mapping is
// still the active row for its key and still points at the same account.
func (r Resolution) Verify(ctx context.Context, tx accounting.Tx) error {
	for _, mt := range accounting.MappingTypesOf(r.Mappings) {
		pinned := r.Mappings[mt]
		current, err := tx.FindActiveMapping(ctx, pinned.Key())
		if err != nil {
			return &accounting.ConcurrencyConflictError{
				Reason: fmt.Sprintf("%s mapping for %s was deactivated", mt, r.TransactionType),
				Cause:  err,
			}
		}
		if current.ID != pinned.ID || current.AccountID != pinned.AccountID {
			return &accounting.ConcurrencyConflictError{
				Reason: fmt.Sprintf("%s mapping for %s changed", mt, r.TransactionType),
			}
		}
	}
	return nil
}

// CreateMappingInput describes a new mapping row.
type CreateMappingInput struct {
	TransactionType accounting.TransactionType
	MappingType     accounting.MappingType
	BranchID        string
	AccountID       int64
	FloatAccountID  string
	Origin          accounting.MappingOrigin
	ActorID         string
}

type binding struct {
	Mapping accounting.Mapping `json:"mapping"`
	Account accounting.Account `json:"account"`
}
