package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/finops-gl/internal/accounting"
)

// Sentinel errors for the transport layer.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
)

const problemBase = "https://finops-gl.dev/problems/"

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	WriteProblem(w, ProblemFor(err))
}

// ProblemFor classifies err into a problem document.
func ProblemFor(err error) ProblemDetail {
	var (
		verrs    accounting.ValidationErrors
		verr     *accounting.ValidationError
		mapping  *accounting.MappingNotFoundError
		shortage *accounting.InsufficientLiabilityError
	)
	switch {
	case errors.As(err, &verrs):
		return ProblemDetail{Type: problemBase + "validation", Title: "Validation Failed",
			Status: http.StatusUnprocessableEntity, Detail: err.Error(), Errors: sortedFields(verrs.Fields())}
	case errors.As(err, &verr):
		return ProblemDetail{Type: problemBase + "validation", Title: "Validation Failed",
			Status: http.StatusUnprocessableEntity, Detail: err.Error(),
			Errors: []FieldError{{Field: verr.Field, Reason: verr.Reason}}}
	case errors.Is(err, accounting.ErrValidation), errors.Is(err, ErrValidation):
		return ProblemDetail{Type: problemBase + "validation", Title: "Validation Failed",
			Status: http.StatusUnprocessableEntity, Detail: err.Error()}
	case errors.As(err, &mapping):
		return ProblemDetail{Type: problemBase + "mapping-not-found", Title: "Mapping Not Found",
			Status: http.StatusUnprocessableEntity, Detail: err.Error()}
	case errors.As(err, &shortage):
		return ProblemDetail{Type: problemBase + "insufficient-liability", Title: "Insufficient Liability",
			Status: http.StatusConflict, Detail: err.Error()}
	case errors.Is(err, accounting.ErrConcurrencyConflict):
		return ProblemDetail{Type: problemBase + "concurrency-conflict", Title: "Concurrency Conflict",
			Status: http.StatusConflict, Detail: err.Error()}
	case errors.Is(err, accounting.ErrReconciliation):
		return ProblemDetail{Type: problemBase + "reconciliation", Title: "Reconciliation Error",
			Status: http.StatusConflict, Detail: err.Error()}
	case errors.Is(err, accounting.ErrNotFound), errors.Is(err, ErrNotFound):
		return ProblemDetail{Title: "Not Found", Status: http.StatusNotFound, Detail: err.Error()}
	case errors.Is(err, ErrUnauthorized):
		return ProblemDetail{Title: "Unauthorized", Status: http.StatusUnauthorized, Detail: err.Error()}
	case errors.Is(err, accounting.ErrReferenceTaken), errors.Is(err, accounting.ErrSourceAlreadyLinked):
		return ProblemDetail{Type: problemBase + "duplicate", Title: "Duplicate",
			Status: http.StatusConflict, Detail: err.Error()}
	case errors.Is(err, accounting.ErrPersistence):
		return ProblemDetail{Type: problemBase + "persistence", Title: "Persistence Failure",
			Status: http.StatusServiceUnavailable, Detail: "the change was not recorded"}
	default:
		return ProblemDetail{Title: "Internal Error", Status: http.StatusInternalServerError}
	}
}
