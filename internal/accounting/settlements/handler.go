package settlements

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/finops-gl/internal/accounting"
	"github.com/odyssey-erp/finops-gl/internal/accounting/journals"
	"github.com/odyssey-erp/finops-gl/internal/platform/httpx"
)

// Handler exposes the settlement calculator.
type Handler struct {
	service *Service
	structs *validator.Validate
	logger  *slog.Logger
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, structs: httpx.NewValidator(), logger: logger}
}

// MountRoutes registers routes under /settlements.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/calculate", h.calculate)
	r.Post("/", h.submit)
}

type submitRequest struct {
	BranchID       string          `json:"branch_id" validate:"required"`
	Partner        string          `json:"partner" validate:"required"`
	Amount         decimal.Decimal `json:"amount"`
	Reference      string          `json:"reference" validate:"required,max=64"`
	FloatAccountID string          `json:"float_account_id" validate:"required"`
	TrackingIDs    []string        `json:"tracking_ids" validate:"max=500"`
	Date           string          `json:"date"`
	Description    string          `json:"description" validate:"max=500"`
}

// SettlementVM is the JSON shape of a recorded settlement.
type SettlementVM struct {
	ID             int64     `json:"id"`
	BranchID       string    `json:"branch_id"`
	Partner        string    `json:"partner"`
	Amount         string    `json:"amount"`
	Reference      string    `json:"reference"`
	FloatAccountID string    `json:"float_account_id"`
	TrackingIDs    []string  `json:"tracking_ids"`
	JournalID      int64     `json:"journal_id"`
	CreatedBy      string    `json:"created_by"`
	SettledAt      time.Time `json:"settled_at"`
}

func toVM(record accounting.SettlementRecord) SettlementVM {
	ids := record.TrackingIDs
	if ids == nil {
		ids = []string{}
	}
	return SettlementVM{
		ID:             record.ID,
		BranchID:       record.BranchID,
		Partner:        string(record.Partner),
		Amount:         record.Amount.StringFixed(2),
		Reference:      record.Reference,
		FloatAccountID: record.FloatAccountID,
		TrackingIDs:    ids,
		JournalID:      record.JournalID,
		CreatedBy:      record.CreatedBy,
		SettledAt:      record.SettledAt,
	}
}

func (h *Handler) calculate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	asOf, err := httpx.QueryDate(r, "as_of")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	calc, err := h.service.Calculate(r.Context(), CalculateInput{
		BranchID: q.Get("branch_id"),
		Partner:  accounting.Partner(q.Get("partner")),
		AsOf:     asOf,
	})
	if err != nil {
		h.fail(w, "calculate settlement", err)
		return
	}
	httpx.JSON(w, http.StatusOK, calc)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var partner accounting.Partner
	if raw := strings.TrimSpace(q.Get("partner")); raw != "" {
		parsed, err := accounting.ParsePartner(raw)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		partner = parsed
	}
	records, err := h.service.List(r.Context(), strings.TrimSpace(q.Get("branch_id")), partner)
	if err != nil {
		h.fail(w, "list settlements", err)
		return
	}
	out := make([]SettlementVM, 0, len(records))
	for _, record := range records {
		out = append(out, toVM(record))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"settlements": out})
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.RequireActor(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req submitRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := httpx.ValidateStruct(h.structs, req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	var date time.Time
	if strings.TrimSpace(req.Date) != "" {
		if date, err = httpx.ParseDate("date", req.Date, time.Now()); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	sub, err := h.service.Submit(r.Context(), SubmitInput{
		BranchID:       req.BranchID,
		Partner:        accounting.Partner(req.Partner),
		Amount:         req.Amount,
		Reference:      req.Reference,
		FloatAccountID: req.FloatAccountID,
		TrackingIDs:    req.TrackingIDs,
		ActorID:        actor,
		Date:           date,
		Description:    req.Description,
	})
	if err != nil {
		h.fail(w, "submit settlement", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"settlement": toVM(sub.Record),
		"entry":      journals.ToVM(sub.Entry),
	})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	problem := httpx.ProblemFor(err)
	if problem.Status >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.WriteProblem(w, problem)
}
