package accounts

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/finops-gl/internal/accounting"
	"github.com/odyssey-erp/finops-gl/internal/platform/httpx"
	"github.com/odyssey-erp/finops-gl/internal/shared"
)

// Handler exposes the chart of accounts over JSON.
type Handler struct {
	service   *Service
	logger    *slog.Logger
	validator *validator.Validate
}

// NewHandler constructs the accounts handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: httpx.NewValidator()}
}

// MountRoutes registers account routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Patch("/{id}", h.update)
	r.Post("/{id}/deactivate", h.deactivate)
	r.Post("/{id}/reactivate", h.reactivate)
}

type createAccountRequest struct {
	Code     string `json:"code" validate:"required,max=32"`
	Name     string `json:"name" validate:"required,max=200"`
	Type     string `json:"type" validate:"required"`
	Subtype  string `json:"subtype"`
	ParentID *int64 `json:"parent_id"`
	BranchID string `json:"branch_id"`
}

type updateAccountRequest struct {
	Name     *string `json:"name" validate:"omitempty,max=200"`
	Subtype  *string `json:"subtype"`
	ParentID *int64  `json:"parent_id"`
	Type     *string `json:"type"`
}

// AccountVM is the JSON shape of an account.
type AccountVM struct {
	ID            int64     `json:"id"`
	Code          string    `json:"code"`
	Name          string    `json:"name"`
	Type          string    `json:"type"`
	Subtype       string    `json:"subtype,omitempty"`
	ParentID      *int64    `json:"parent_id,omitempty"`
	BranchID      string    `json:"branch_id,omitempty"`
	IsActive      bool      `json:"is_active"`
	Balance       string    `json:"balance"`
	RollupBalance string    `json:"rollup_balance,omitempty"`
	Children      int       `json:"children,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ToVM converts an account into its JSON shape.
func ToVM(a accounting.Account) AccountVM {
	return AccountVM{
		ID:        a.ID,
		Code:      a.Code,
		Name:      a.Name,
		Type:      string(a.Type),
		Subtype:   string(a.Subtype),
		ParentID:  a.ParentID,
		BranchID:  a.BranchID,
		IsActive:  a.IsActive,
		Balance:   a.Balance.StringFixed(2),
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := accounting.AccountFilter{
		Search:   strings.TrimSpace(q.Get("search")),
		BranchID: strings.TrimSpace(q.Get("branch_id")),
	}
	if raw := q.Get("type"); raw != "" {
		accountType, err := accounting.ParseAccountType(raw)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		filter.Type = &accountType
	}
	if raw := q.Get("active"); raw != "" {
		active := raw == "true" || raw == "1"
		filter.Active = &active
	}
	var err error
	if filter.Page, err = httpx.QueryInt(r, "page", 1); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.PerPage, err = httpx.QueryInt(r, "per_page", 20); err != nil {
		httpx.RespondError(w, err)
		return
	}
	page, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.fail(w, "list accounts", err)
		return
	}
	items := make([]AccountVM, 0, len(page.Items))
	for _, account := range page.Items {
		items = append(items, ToVM(account))
	}
	httpx.JSON(w, http.StatusOK, struct {
		Items      []AccountVM       `json:"items"`
		Pagination shared.Pagination `json:"pagination"`
	}{Items: items, Pagination: page.Pagination})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.RequireActor(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req createAccountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := httpx.ValidateStruct(h.validator, req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	account, err := h.service.Create(r.Context(), CreateAccountInput{
		Code:     req.Code,
		Name:     req.Name,
		Type:     accounting.AccountType(req.Type),
		Subtype:  accounting.AccountSubtype(req.Subtype),
		ParentID: req.ParentID,
		BranchID: req.BranchID,
		ActorID:  actor,
	})
	if err != nil {
		h.fail(w, "create account", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, ToVM(account))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Int64Param(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	detail, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get account", err)
		return
	}
	vm := ToVM(detail.Account)
	vm.RollupBalance = detail.RollupBalance.StringFixed(2)
	vm.Children = detail.Children
	httpx.JSON(w, http.StatusOK, vm)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
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
	var req updateAccountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := httpx.ValidateStruct(h.validator, req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input := UpdateAccountInput{ID: id, Name: req.Name, ParentID: req.ParentID, ActorID: actor}
	if req.Subtype != nil {
		subtype := accounting.AccountSubtype(*req.Subtype)
		input.Subtype = &subtype
	}
	if req.Type != nil {
		accountType := accounting.AccountType(strings.ToUpper(strings.TrimSpace(*req.Type)))
		input.Type = &accountType
	}
	account, err := h.service.Update(r.Context(), input)
	if err != nil {
		h.fail(w, "update account", err)
		return
	}
	httpx.JSON(w, http.StatusOK, ToVM(account))
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, h.service.Deactivate)
}

func (h *Handler) reactivate(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, h.service.Reactivate)
}

func (h *Handler) toggle(w http.ResponseWriter, r *http.Request, fn func(context.Context, int64, string) (accounting.Account, error)) {
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
	account, err := fn(r.Context(), id, actor)
	if err != nil {
		h.fail(w, "toggle account", err)
		return
	}
	httpx.JSON(w, http.StatusOK, ToVM(account))
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	problem := httpx.ProblemFor(err)
	if problem.Status >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.WriteProblem(w, problem)
}
