package balances

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/finops-gl/internal/accounting"
	"github.com/odyssey-erp/finops-gl/internal/accounting/reports"
	"github.com/odyssey-erp/finops-gl/internal/platform/httpx"
)

// Handler serves read-side ledger queries.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger}
}

// MountRoutes registers query routes at the root of the ledger API.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/statistics", h.statistics)
	r.Get("/transactions", h.history)
	r.Get("/balances/{id}", h.balance)
	r.Get("/integrity", h.integrity)
	r.Route("/reports", func(r chi.Router) {
		r.Get("/trial-balance", h.trialBalance)
		r.Get("/profit-and-loss", h.profitAndLoss)
		r.Get("/balance-sheet", h.balanceSheet)
	})
}

func (h *Handler) statistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Statistics(r.Context(), branchParam(r))
	if err != nil {
		h.fail(w, "ledger statistics", err)
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := accounting.HistoryFilter{
		BranchID:       branchParam(r),
		IncludeDeleted: q.Get("include_deleted") == "true",
	}
	var err error
	if raw := strings.TrimSpace(q.Get("account_id")); raw != "" {
		var id int
		if id, err = httpx.QueryInt(r, "account_id", 0); err != nil || id == 0 {
			httpx.RespondError(w, accounting.NewValidationError("account_id", "must be a positive integer"))
			return
		}
		filter.AccountID = int64(id)
	}
	if raw := q.Get("source"); raw != "" {
		src, err := accounting.ParseEntrySource(raw)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		filter.Source = &src
	}
	if raw := q.Get("transaction_type"); raw != "" {
		txType, err := accounting.ParseTransactionType(raw)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		filter.TransactionType = &txType
	}
	if filter.From, err = httpx.QueryDate(r, "from"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.To, err = httpx.QueryDate(r, "to"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	limit, err := httpx.QueryInt(r, "limit", 0)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	page, err := h.service.History(r.Context(), HistoryQuery{
		Filter: filter,
		Cursor: strings.TrimSpace(q.Get("cursor")),
		Limit:  limit,
	})
	if err != nil {
		h.fail(w, "transaction history", err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) balance(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.Int64Param(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	asOf, err := httpx.QueryDate(r, "as_of")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	balance, err := h.service.BalanceOf(r.Context(), id, asOf)
	if err != nil {
		h.fail(w, "account balance", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"account_id": id,
		"as_of":      asOf,
		"balance":    balance.StringFixed(2),
	})
}

func (h *Handler) integrity(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.CheckIntegrity(r.Context())
	if err != nil {
		h.fail(w, "integrity check", err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) trialBalance(w http.ResponseWriter, r *http.Request) {
	branch, asOf, ok := h.reportParams(w, r)
	if !ok {
		return
	}
	tb, err := h.service.TrialBalance(r.Context(), branch, asOf)
	if err != nil {
		h.fail(w, "trial balance", err)
		return
	}
	httpx.JSON(w, http.StatusOK, reports.TrialBalanceViewModel{
		BranchID:    branch,
		AsOf:        asOf,
		GeneratedAt: time.Now().UTC(),
		Report:      tb,
	})
}

func (h *Handler) profitAndLoss(w http.ResponseWriter, r *http.Request) {
	branch, asOf, ok := h.reportParams(w, r)
	if !ok {
		return
	}
	pl, err := h.service.ProfitAndLoss(r.Context(), branch, asOf)
	if err != nil {
		h.fail(w, "profit and loss", err)
		return
	}
	httpx.JSON(w, http.StatusOK, reports.ProfitAndLossViewModel{
		BranchID:    branch,
		AsOf:        asOf,
		GeneratedAt: time.Now().UTC(),
		Report:      pl,
	})
}

func (h *Handler) balanceSheet(w http.ResponseWriter, r *http.Request) {
	branch, asOf, ok := h.reportParams(w, r)
	if !ok {
		return
	}
	bs, err := h.service.BalanceSheet(r.Context(), branch, asOf)
	if err != nil {
		h.fail(w, "balance sheet", err)
		return
	}
	httpx.JSON(w, http.StatusOK, reports.BalanceSheetViewModel{
		BranchID:    branch,
		AsOf:        asOf,
		GeneratedAt: time.Now().UTC(),
		Report:      bs,
	})
}

func (h *Handler) reportParams(w http.ResponseWriter, r *http.Request) (string, *time.Time, bool) {
	asOf, err := httpx.QueryDate(r, "as_of")
	if err != nil {
		httpx.RespondError(w, err)
		return "", nil, false
	}
	return branchParam(r), asOf, true
}

func branchParam(r *http.Request) string {
	return strings.TrimSpace(r.URL.Query().Get("branch_id"))
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	problem := httpx.ProblemFor(err)
	if problem.Status >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.WriteProblem(w, problem)
}
