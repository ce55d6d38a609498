package journals

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/finops-gl/internal/accounting"
	"github.com/odyssey-erp/finops-gl/internal/platform/httpx"
)

type Handler struct {
	service   *Service
	logger    *slog.Logger
	validator *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: httpx.NewValidator()}
}

// MountRoutes registers entry lifecycle routes under /journals.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/{id}", h.get)
	r.Post("/{id}/reverse", h.reverse)
	r.Delete("/{id}", h.delete)
}

// MountEventRoutes registers business event intake under /events.
func (h *Handler) MountEventRoutes(r chi.Router) {
	r.Post("/", h.postEvent)
}

type eventRequest struct {
	EventID         string          `json:"event_id" validate:"required,uuid"`
	TransactionType string          `json:"transaction_type" validate:"required"`
	BranchID        string          `json:"branch_id" validate:"required"`
	FloatAccountID  string          `json:"float_account_id"`
	Amount          decimal.Decimal `json:"amount"`
	Fee             decimal.Decimal `json:"fee"`
	Date            string          `json:"date"`
	Reference       string          `json:"reference" validate:"max=64"`
	Description     string          `json:"description" validate:"max=500"`
	TrackingID      string          `json:"tracking_id" validate:"max=64"`
}

type reverseRequest struct {
	Description string `json:"description" validate:"max=500"`
	Date        string `json:"date"`
}

// EntryVM is the JSON shape of a journal entry.
type EntryVM struct {
	ID              int64     `json:"id"`
	Date            string    `json:"date"`
	Reference       string    `json:"reference"`
	Description     string    `json:"description"`
	Source          string    `json:"source"`
	TransactionType string    `json:"transaction_type,omitempty"`
	BranchID        string    `json:"branch_id"`
	Status          string    `json:"status"`
	ReversalOf      *int64    `json:"reversal_of,omitempty"`
	ReversedBy      *int64    `json:"reversed_by,omitempty"`
	EventID         string    `json:"event_id,omitempty"`
	TrackingID      string    `json:"tracking_id,omitempty"`
	CreatedBy       string    `json:"created_by"`
	PostedAt        time.Time `json:"posted_at"`
	TotalDebit      string    `json:"total_debit"`
	TotalCredit     string    `json:"total_credit"`
	Lines           []LineVM  `json:"lines"`
}

// LineVM is the JSON shape of a journal line.
type LineVM struct {
	ID          int64  `json:"id"`
	AccountID   int64  `json:"account_id"`
	Description string `json:"description,omitempty"`
	Debit       string `json:"debit"`
	Credit      string `json:"credit"`
}

// ToVM converts an entry into its JSON shape.
func ToVM(e accounting.JournalEntry) EntryVM {
	debit, credit := e.Totals()
	vm := EntryVM{
		ID:              e.ID,
		Date:            e.Date.Format("2006-01-02"),
		Reference:       e.Reference,
		Description:     e.Description,
		Source:          string(e.Source),
		TransactionType: string(e.TransactionType),
		BranchID:        e.BranchID,
		Status:          string(e.Status),
		ReversalOf:      e.ReversalOf,
		ReversedBy:      e.ReversedBy,
		TrackingID:      e.TrackingID,
		CreatedBy:       e.CreatedBy,
		PostedAt:        e.PostedAt,
		TotalDebit:      debit.StringFixed(2),
		TotalCredit:     credit.StringFixed(2),
		Lines:           make([]LineVM, 0, len(e.Lines)),
	}
	if e.EventID != uuid.Nil {
		vm.EventID = e.EventID.String()
	}
	for _, line := range e.Lines {
		vm.Lines = append(vm.Lines, LineVM{
			ID:          line.ID,
			AccountID:   line.AccountID,
			Description: line.Description,
			Debit:       line.Debit.StringFixed(2),
			Credit:      line.Credit.StringFixed(2),
		})
	}
	return vm
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Int64Param(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entry, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get journal", err)
		return
	}
	httpx.JSON(w, http.StatusOK, ToVM(entry))
}

func (h *Handler) postEvent(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.RequireActor(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req eventRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := httpx.ValidateStruct(h.validator, req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	date, err := httpx.ParseDate("date", req.Date, h.service.now())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entry, err := h.service.PostEvent(r.Context(), BusinessEvent{
		EventID:         uuid.MustParse(req.EventID),
		TransactionType: accounting.TransactionType(req.TransactionType),
		BranchID:        req.BranchID,
		FloatAccountID:  req.FloatAccountID,
		Amount:          req.Amount,
		Fee:             req.Fee,
		Date:            date,
		Reference:       req.Reference,
		Description:     req.Description,
		TrackingID:      req.TrackingID,
		ActorID:         actor,
	})
	if err != nil {
		h.fail(w, "post event", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, ToVM(entry))
}

func (h *Handler) reverse(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.RequireActor(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, err := httpx.Int64Param(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req reverseRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
		if err := httpx.ValidateStruct(h.validator, req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	input := ReverseInput{EntryID: id, ActorID: actor, Description: req.Description}
	if req.Date != "" {
		date, err := httpx.ParseDate("date", req.Date, h.service.now())
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		input.Date = &date
	}
	reversal, err := h.service.Reverse(r.Context(), input)
	if err != nil {
		h.fail(w, "reverse journal", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, ToVM(reversal))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.RequireActor(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	id, err := httpx.Int64Param(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entry, err := h.service.Delete(r.Context(), DeleteInput{EntryID: id, ActorID: actor, Reason: r.URL.Query().Get("reason")})
	if err != nil {
		h.fail(w, "delete journal", err)
		return
	}
	httpx.JSON(w, http.StatusOK, ToVM(entry))
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	problem := httpx.ProblemFor(err)
	if problem.Status >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.WriteProblem(w, problem)
}
