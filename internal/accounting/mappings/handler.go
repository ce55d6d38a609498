package mappings

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/finops-gl/internal/accounting"
	"github.com/odyssey-erp/finops-gl/internal/platform/httpx"
)

// Handler exposes mapping query, creation and retirement.
type Handler struct {
	service   *Service
	logger    *slog.Logger
	validator *validator.Validate
}

// NewHandler constructs the mappings handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger, validator: httpx.NewValidator()}
}

// MountRoutes registers mapping routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/resolve", h.resolve)
	r.Delete("/{id}", h.deactivate)
}

type createMappingRequest struct {
	TransactionType string `json:"transaction_type" validate:"required"`
	MappingType     string `json:"mapping_type" validate:"required"`
	BranchID        string `json:"branch_id" validate:"required"`
	AccountID       int64  `json:"account_id" validate:"required,gt=0"`
	FloatAccountID  string `json:"float_account_id"`
	Origin          string `json:"origin" validate:"omitempty,oneof=MANUAL DEFAULT manual default"`
}

// MappingVM is the JSON shape of a mapping.
type MappingVM struct {
	ID              int64     `json:"id"`
	TransactionType string    `json:"transaction_type"`
	MappingType     string    `json:"mapping_type"`
	BranchID        string    `json:"branch_id"`
	AccountID       int64     `json:"account_id"`
	FloatAccountID  string    `json:"float_account_id,omitempty"`
	Origin          string    `json:"origin"`
	IsActive        bool      `json:"is_active"`
	SupersededBy    *int64    `json:"superseded_by,omitempty"`
	CreatedBy       string    `json:"created_by,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func toVM(m accounting.Mapping) MappingVM {
	return MappingVM{
		ID:              m.ID,
		TransactionType: string(m.TransactionType),
		MappingType:     string(m.MappingType),
		BranchID:        m.BranchID,
		AccountID:       m.AccountID,
		FloatAccountID:  m.FloatAccountID,
		Origin:          string(m.Origin),
		IsActive:        m.IsActive,
		SupersededBy:    m.SupersededBy,
		CreatedBy:       m.CreatedBy,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := accounting.MappingFilter{
		BranchID:       strings.TrimSpace(q.Get("branch_id")),
		FloatAccountID: strings.TrimSpace(q.Get("float_account_id")),
		ActiveOnly:     q.Get("include_inactive") != "true",
	}
	if raw := q.Get("transaction_type"); raw != "" {
		txType, err := accounting.ParseTransactionType(raw)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		filter.TransactionType = &txType
	}
	if raw := q.Get("origin"); raw != "" {
		origin, err := accounting.ParseMappingOrigin(raw)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		filter.Origin = &origin
	}
	rows, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.fail(w, "list mappings", err)
		return
	}
	items := make([]MappingVM, 0, len(rows))
	for _, m := range rows {
		items = append(items, toVM(m))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.RequireActor(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req createMappingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := httpx.ValidateStruct(h.validator, req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	mapping, err := h.service.Create(r.Context(), CreateMappingInput{
		TransactionType: accounting.TransactionType(req.TransactionType),
		MappingType:     accounting.MappingType(req.MappingType),
		BranchID:        req.BranchID,
		AccountID:       req.AccountID,
		FloatAccountID:  req.FloatAccountID,
		Origin:          accounting.MappingOrigin(req.Origin),
		ActorID:         actor,
	})
	if err != nil {
		h.fail(w, "create mapping", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toVM(mapping))
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
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
	mapping, err := h.service.Deactivate(r.Context(), id, actor)
	if err != nil {
		h.fail(w, "deactivate mapping", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toVM(mapping))
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := ResolveRequest{
		TransactionType: accounting.TransactionType(strings.TrimSpace(q.Get("transaction_type"))),
		BranchID:        strings.TrimSpace(q.Get("branch_id")),
		FloatAccountID:  strings.TrimSpace(q.Get("float_account_id")),
	}
	for _, raw := range strings.Split(q.Get("mapping_types"), ",") {
		if raw = strings.TrimSpace(raw); raw != "" {
			req.MappingTypes = append(req.MappingTypes, accounting.MappingType(raw))
		}
	}
	res, err := h.service.Resolve(r.Context(), req)
	if err != nil {
		h.fail(w, "resolve mapping", err)
		return
	}
	type resolvedVM struct {
		MappingID   int64  `json:"mapping_id"`
		AccountID   int64  `json:"account_id"`
		AccountCode string `json:"account_code"`
		AccountName string `json:"account_name"`
		Origin      string `json:"origin"`
	}
	out := make(map[string]resolvedVM, len(res.Accounts))
	for mt, account := range res.Accounts {
		out[string(mt)] = resolvedVM{
			MappingID:   res.Mappings[mt].ID,
			AccountID:   account.ID,
			AccountCode: account.Code,
			AccountName: account.Name,
			Origin:      string(res.Mappings[mt].Origin),
		}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"transaction_type": res.TransactionType,
		"branch_id":        res.BranchID,
		"accounts":         out,
	})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	problem := httpx.ProblemFor(err)
	if problem.Status >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.WriteProblem(w, problem)
}
