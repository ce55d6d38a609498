package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/finops-gl/internal/accounting"
)

func TestRespondErrorTaxonomy(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"validation list", accounting.ValidationErrors{accounting.NewValidationError("description", "required")}, http.StatusUnprocessableEntity},
		{"single validation", fmt.Errorf("wrap: %w", accounting.NewValidationError("code", "taken")), http.StatusUnprocessableEntity},
		{"mapping", &accounting.MappingNotFoundError{TransactionType: accounting.TxMomoCashIn, MappingType: accounting.MappingMain, BranchID: "b1"}, http.StatusUnprocessableEntity},
		{"liability", &accounting.InsufficientLiabilityError{Requested: decimal.NewFromInt(400), Outstanding: decimal.NewFromInt(300)}, http.StatusConflict},
		{"conflict", &accounting.ConcurrencyConflictError{Reason: "mapping changed"}, http.StatusConflict},
		{"reference", &accounting.PersistenceError{Op: "insert", Cause: accounting.ErrReferenceTaken}, http.StatusConflict},
		{"persistence", &accounting.PersistenceError{Op: "insert"}, http.StatusServiceUnavailable},
		{"not found", fmt.Errorf("get: %w", accounting.ErrNotFound), http.StatusNotFound},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			RespondError(rr, tc.err)
			assert.Equal(t, tc.status, rr.Code)
			assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
		})
	}
}

func TestValidationProblemListsFields(t *testing.T) {
	err := accounting.ValidationErrors{
		accounting.NewValidationError("lines[1].account_id", "account is inactive"),
		accounting.NewValidationError("description", "required"),
	}
	rr := httptest.NewRecorder()
	RespondError(rr, err)

	var problem ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
	require.Len(t, problem.Errors, 2)
	assert.Equal(t, "description", problem.Errors[0].Field)
	assert.Equal(t, "lines[1].account_id", problem.Errors[1].Field)
}
