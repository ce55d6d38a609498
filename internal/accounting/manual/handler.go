package manual

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/finops-gl/internal/accounting"
	"github.com/odyssey-erp/finops-gl/internal/accounting/journals"
	"github.com/odyssey-erp/finops-gl/internal/platform/httpx"
)

// Handler accepts manual journal drafts.
type Handler struct {
	validator *Validator
	structs   *validator.Validate
	logger    *slog.Logger
}

func NewHandler(logger *slog.Logger, v *Validator) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{validator: v, structs: httpx.NewValidator(), logger: logger}
}

// MountRoutes registers draft routes under /journals.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.submit)
	r.Post("/validate", h.validate)
}

type draftRequest struct {
	Date        string             `json:"date"`
	Reference   string             `json:"reference" validate:"max=64"`
	Description string             `json:"description" validate:"max=500"`
	Source      string             `json:"source"`
	BranchID    string             `json:"branch_id"`
	Lines       []draftLineRequest `json:"lines" validate:"max=200,dive"`
}

type draftLineRequest struct {
	AccountID   int64           `json:"account_id"`
	Description string          `json:"description" validate:"max=500"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
}

func (h *Handler) decode(r *http.Request) (Draft, error) {
	actor, err := httpx.RequireActor(r)
	if err != nil {
		return Draft{}, err
	}
	var req draftRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		return Draft{}, err
	}
	if err := httpx.ValidateStruct(h.structs, req); err != nil {
		return Draft{}, err
	}
	date, err := httpx.ParseDate("date", req.Date, h.validator.now())
	if err != nil {
		return Draft{}, err
	}
	d := Draft{
		Date:        date,
		Reference:   req.Reference,
		Description: req.Description,
		Source:      accounting.EntrySource(req.Source),
		BranchID:    req.BranchID,
		ActorID:     actor,
		Lines:       make([]DraftLine, 0, len(req.Lines)),
	}
	for _, line := range req.Lines {
		d.Lines = append(d.Lines, DraftLine{
			AccountID:   line.AccountID,
			Description: line.Description,
			Debit:       line.Debit,
			Credit:      line.Credit,
		})
	}
	return d, nil
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	d, err := h.decode(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entry, err := h.validator.Submit(r.Context(), d)
	if err != nil {
		h.fail(w, "submit manual journal", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, journals.ToVM(entry))
}

func (h *Handler) validate(w http.ResponseWriter, r *http.Request) {
	d, err := h.decode(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	validated, err := h.validator.Validate(r.Context(), d)
	if err != nil {
		h.fail(w, "validate manual journal", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"valid":        true,
		"source":       validated.Input.Source,
		"line_count":   len(validated.Input.Lines),
		"total_debit":  validated.TotalDebit.StringFixed(2),
		"total_credit": validated.TotalCredit.StringFixed(2),
	})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	problem := httpx.ProblemFor(err)
	if problem.Status >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.WriteProblem(w, problem)
}
