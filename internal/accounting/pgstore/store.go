// Package pgstore persists the ledger in PostgreSQL through pgx.
package pgstore

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/finops-gl/internal/accounting"
	"github.com/odyssey-erp/finops-gl/internal/platform/db"
)

// Unique indexes the store translates into domain sentinels.
const (
	idxAccountCode      = "uq_gl_accounts_code"
	idxActiveMapping    = "uq_gl_mappings_active"
	idxJournalReference = "uq_gl_journal_entries_reference"
	idxJournalEvent     = "uq_gl_journal_entries_event"
	idxSettlementRef    = "uq_gl_settlements_reference"
)

var errReadOnly = errors.New("pgstore: write attempted in read-only snapshot")

// Store implements accounting.Store on a pgx pool.
type Store struct {
	pool db.Beginner
}

// New wraps a pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// WithTx runs fn in a serializable transaction. Serialization failures and
// deadlocks surface as ConcurrencyConflictError.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, accounting.Tx) error) error {
	err := db.WithSerializableTx(ctx, s.pool, func(ptx pgx.Tx) error {
		return fn(ctx, &tx{q: ptx, writable: true})
	})
	return classify(err)
}

// WithSnapshot runs fn in a read-only repeatable read transaction.
func (s *Store) WithSnapshot(ctx context.Context, fn func(context.Context, accounting.Tx) error) error {
	err := db.WithReadOnlyTx(ctx, s.pool, func(ptx pgx.Tx) error {
		return fn(ctx, &tx{q: ptx})
	})
	return classify(err)
}

type tx struct {
	q        pgx.Tx
	writable bool
}

func (t *tx) guardWrite() error {
	if !t.writable {
		return errReadOnly
	}
	return nil
}

// classify maps driver errors onto the accounting taxonomy. Unknown errors
// pass through so callers can wrap them as persistence failures.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return accounting.ErrNotFound
	}
	if db.IsRetryable(err) {
		return &accounting.ConcurrencyConflictError{Reason: "transaction " + db.PgCode(err), Cause: err}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == db.CodeUniqueViolation {
		switch pgErr.ConstraintName {
		case idxAccountCode:
			return accounting.ErrDuplicateCode
		case idxActiveMapping:
			return accounting.ErrMappingConflict
		case idxJournalReference, idxSettlementRef:
			return accounting.ErrReferenceTaken
		case idxJournalEvent:
			return accounting.ErrSourceAlreadyLinked
		}
	}
	return err
}

// where accumulates positional predicates.
type where struct {
	clauses []string
	args    []any
}

func (w *where) add(clause string, arg any) {
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, strings.ReplaceAll(clause, "?", "$"+strconv.Itoa(len(w.args))))
}

func (w *where) raw(clause string) {
	w.clauses = append(w.clauses, clause)
}

func (w *where) next(arg any) string {
	w.args = append(w.args, arg)
	return "$" + strconv.Itoa(len(w.args))
}

func (w *where) sql() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

var _ accounting.Store = (*Store)(nil)
var _ accounting.Tx = (*tx)(nil)
