package accounting

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrValidation is the category of malformed or unbalanced input.
	ErrValidation = errors.New("accounting: validation failed")
	// ErrMappingNotFound is the category of missing GL mapping configuration.
	ErrMappingNotFound = errors.New("accounting: account mapping not found")
	// ErrInsufficientLiability is the category of settlements exceeding the outstanding amount.
	ErrInsufficientLiability = errors.New("accounting: insufficient liability")
	// ErrConcurrencyConflict is the category of optimistic checks failing at commit.
	ErrConcurrencyConflict = errors.New("accounting: concurrency conflict")
	// ErrPersistence is the category of storage failures.
	ErrPersistence = errors.New("accounting: persistence failure")
	// ErrReconciliation indicates the ledger contradicts itself.
	ErrReconciliation = errors.New("accounting: reconciliation error")

	// ErrNotFound indicates a missing record.
	ErrNotFound = errors.New("accounting: not found")
	// ErrUnbalanced indicates debit != credit.
	ErrUnbalanced = errors.New("accounting: journal lines must balance")
	// ErrTooFewLines indicates less than two lines.
	ErrTooFewLines = errors.New("accounting: journal requires at least two lines")
	// ErrInvalidStatus indicates action can't proceed.
	ErrInvalidStatus = errors.New("accounting: invalid status transition")
	// ErrMappingConflict indicates an active mapping already exists for the key.
	ErrMappingConflict = errors.New("accounting: active mapping already exists")
	// ErrReferenceTaken indicates a journal reference collision.
	ErrReferenceTaken = errors.New("accounting: reference already used")
	// ErrSourceAlreadyLinked indicates a business event was already posted.
	ErrSourceAlreadyLinked = errors.New("accounting: source already linked")
	// ErrDuplicateCode indicates an account code collision.
	ErrDuplicateCode = errors.New("accounting: account code already exists")
)

// ValidationError reports a single rule violation on a field.
type ValidationError struct {
	Field  string
	Reason string
	Cause  error
}

// NewValidationError builds a field-level validation error.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// WrapValidation builds a validation error that also matches cause via errors.Is.
func WrapValidation(field string, cause error) *ValidationError {
	return &ValidationError{Field: field, Reason: strings.TrimPrefix(cause.Error(), "accounting: "), Cause: cause}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "accounting: " + e.Reason
	}
	return fmt.Sprintf("accounting: %s: %s", e.Field, e.Reason)
}

// Is matches the validation category.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func (e *ValidationError) Unwrap() error {
	return e.Cause
}

// ValidationErrors collects every violation found in one pass.
type ValidationErrors []*ValidationError

func (e ValidationErrors) Error() string {
	parts := make([]string, 0, len(e))
	for _, v := range e {
		if v.Field == "" {
			parts = append(parts, v.Reason)
			continue
		}
		parts = append(parts, v.Field+": "+v.Reason)
	}
	return "accounting: validation failed: " + strings.Join(parts, "; ")
}

// Is matches the validation category and any contained cause.
func (e ValidationErrors) Is(target error) bool {
	if target == ErrValidation {
		return true
	}
	for _, v := range e {
		if v.Cause != nil && errors.Is(v.Cause, target) {
			return true
		}
	}
	return false
}

// Fields flattens the errors into field -> reason pairs.
func (e ValidationErrors) Fields() map[string]string {
	out := make(map[string]string, len(e))
	for _, v := range e {
		out[v.Field] = v.Reason
	}
	return out
}

// Err returns nil for an empty collection.
func (e ValidationErrors) Err() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

// MappingNotFoundError names the missing mapping triple.
type MappingNotFoundError struct {
	TransactionType TransactionType
	MappingType     MappingType
	BranchID        string
	FloatAccountID  string
}

func (e *MappingNotFoundError) Error() string {
	msg := fmt.Sprintf("accounting: no active %s mapping for transaction type %s in branch %s",
		e.MappingType, e.TransactionType, e.BranchID)
	if e.FloatAccountID != "" {
		msg += " bound to float account " + e.FloatAccountID
	}
	return msg
}

// Is matches the mapping category.
func (e *MappingNotFoundError) Is(target error) bool {
	return target == ErrMappingNotFound
}

// InsufficientLiabilityError reports a settlement request above the outstanding amount.
type InsufficientLiabilityError struct {
	Requested   decimal.Decimal
	Outstanding decimal.Decimal
}

func (e *InsufficientLiabilityError) Error() string {
	return fmt.Sprintf("accounting: settlement of %s exceeds outstanding liability %s",
		e.Requested.StringFixed(2), e.Outstanding.StringFixed(2))
}

// Is matches the liability category.
func (e *InsufficientLiabilityError) Is(target error) bool {
	return target == ErrInsufficientLiability
}

// ConcurrencyConflictError reports a failed optimistic check; retry once after re-resolving.
type ConcurrencyConflictError struct {
	Reason string
	Cause  error
}

func (e *ConcurrencyConflictError) Error() string {
	return "accounting: concurrency conflict: " + e.Reason
}

// Is matches the conflict category.
func (e *ConcurrencyConflictError) Is(target error) bool {
	return target == ErrConcurrencyConflict
}

func (e *ConcurrencyConflictError) Unwrap() error {
	return e.Cause
}

// PersistenceError reports a storage failure. Nothing was written.
type PersistenceError struct {
	Op    string
	Cause error
}

func (e *PersistenceError) Error() string {
	if e.Cause == nil {
		return "accounting: persistence failure: " + e.Op
	}
	return fmt.Sprintf("accounting: persistence failure: %s: %v", e.Op, e.Cause)
}

// Is matches the persistence category.
func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

func (e *PersistenceError) Unwrap() error {
	return e.Cause
}

// ReconciliationError reports a ledger state that should be impossible, e.g. over-settlement.
type ReconciliationError struct {
	Detail string
	Amount decimal.Decimal
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("accounting: reconciliation error: %s (%s)", e.Detail, e.Amount.StringFixed(2))
}

// Is matches the reconciliation category.
func (e *ReconciliationError) Is(target error) bool {
	return target == ErrReconciliation
}

// AsPersistence wraps unclassified storage errors so callers always see the taxonomy.
func AsPersistence(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, category := range []error{
		ErrValidation,
		ErrMappingNotFound,
		ErrInsufficientLiability,
		ErrConcurrencyConflict,
		ErrPersistence,
		ErrReconciliation,
		ErrNotFound,
	} {
		if errors.Is(err, category) {
			return err
		}
	}
	return &PersistenceError{Op: op, Cause: err}
}
