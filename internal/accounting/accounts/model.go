package accounts

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/finops-gl/internal/accounting"
	"github.com/odyssey-erp/finops-gl/internal/shared"
)

// CreateAccountInput describes a new chart of accounts node.
type CreateAccountInput struct {
	Code     string
	Name     string
	Type     accounting.AccountType
	Subtype  accounting.AccountSubtype
	ParentID *int64
	BranchID string
	ActorID  string
}

// UpdateAccountInput changes mutable attributes. Nil pointers leave values untouched.
// Type is accepted only to reject it: account types are immutable.
type UpdateAccountInput struct {
	ID       int64
	Name     *string
	Subtype  *accounting.AccountSubtype
	ParentID *int64
	Type     *accounting.AccountType
	ActorID  string
}

// AccountDetail is an account with its own and subtree balances.
type AccountDetail struct {
	accounting.Account
	RollupBalance decimal.Decimal
	Children      int
}

// AccountPage is one page of the chart of accounts.
type AccountPage struct {
	Items      []accounting.Account
	Pagination shared.Pagination
}
