package pgstore

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/odyssey-erp/finops-gl/internal/accounting"
	"github.com/odyssey-erp/finops-gl/internal/platform/db"
)

func TestClassify(t *testing.T) {
	unique := func(constraint string) error {
		return fmt.Errorf("insert: %w", &pgconn.PgError{Code: db.CodeUniqueViolation, ConstraintName: constraint})
	}
	assert.NoError(t, classify(nil))
	assert.ErrorIs(t, classify(pgx.ErrNoRows), accounting.ErrNotFound)
	assert.ErrorIs(t, classify(unique(idxAccountCode)), accounting.ErrDuplicateCode)
	assert.ErrorIs(t, classify(unique(idxActiveMapping)), accounting.ErrMappingConflict)
	assert.ErrorIs(t, classify(unique(idxJournalReference)), accounting.ErrReferenceTaken)
	assert.ErrorIs(t, classify(unique(idxSettlementRef)), accounting.ErrReferenceTaken)
	assert.ErrorIs(t, classify(unique(idxJournalEvent)), accounting.ErrSourceAlreadyLinked)

	var conflict *accounting.ConcurrencyConflictError
	assert.True(t, errors.As(classify(&pgconn.PgError{Code: db.CodeSerializationFailure}), &conflict))
	assert.ErrorIs(t, classify(&pgconn.PgError{Code: db.CodeDeadlockDetected}), accounting.ErrConcurrencyConflict)

	plain := errors.New("connection reset")
	assert.Same(t, plain, classify(plain))
	other := unique("some_other_index")
	assert.Equal(t, other, classify(other))
}

func TestWhereNumbersPlaceholders(t *testing.T) {
	var w where
	assert.Equal(t, "", w.sql())

	w.add(`type = ?`, "ASSET")
	w.raw(`is_active`)
	w.add(`(code ILIKE ? OR name ILIKE ?)`, "%cash%")
	limit := w.next(10)

	assert.Equal(t, " WHERE type = $1 AND is_active AND (code ILIKE $2 OR name ILIKE $2)", w.sql())
	assert.Equal(t, "$3", limit)
	assert.Equal(t, []any{"ASSET", "%cash%", 10}, w.args)
}

func TestSnapshotRejectsWrites(t *testing.T) {
	ro := &tx{}
	assert.ErrorIs(t, ro.guardWrite(), errReadOnly)
	assert.NoError(t, (&tx{writable: true}).guardWrite())
}
