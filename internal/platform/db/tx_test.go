package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsUniqueViolation(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pgconn.PgError{Code: CodeUniqueViolation, ConstraintName: "uq_gl_journal_entries_reference"})
	assert.True(t, IsUniqueViolation(err, ""))
	assert.True(t, IsUniqueViolation(err, "uq_gl_journal_entries_reference"))
	assert.False(t, IsUniqueViolation(err, "other"))
	assert.False(t, IsUniqueViolation(errors.New("plain"), ""))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&pgconn.PgError{Code: CodeSerializationFailure}))
	assert.True(t, IsRetryable(fmt.Errorf("wrap: %w", &pgconn.PgError{Code: CodeDeadlockDetected})))
	assert.False(t, IsRetryable(&pgconn.PgError{Code: CodeUniqueViolation}))
	assert.Equal(t, "", PgCode(nil))
}
