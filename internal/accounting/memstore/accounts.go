package memstore

import (
	"context"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/finops-gl/internal/accounting"
)

func (t *tx) InsertAccount(ctx context.Context, account accounting.Account) (accounting.Account, error) {
	if err := t.guardWrite(); err != nil {
		return accounting.Account{}, err
	}
	for _, existing := range t.st.accounts {
		if strings.EqualFold(existing.Code, account.Code) {
			return accounting.Account{}, accounting.ErrDuplicateCode
		}
	}
	t.st.accountSeq++
	now := t.now()
	account.ID = t.st.accountSeq
	account.Balance = decimal.Zero
	account.CreatedAt = now
	account.UpdatedAt = now
	t.st.accounts[account.ID] = account
	return account, nil
}

func (t *tx) GetAccount(ctx context.Context, id int64) (accounting.Account, error) {
	account, ok := t.st.accounts[id]
	if !ok {
		return accounting.Account{}, accounting.ErrNotFound
	}
	return account, nil
}

func (t *tx) GetAccountByCode(ctx context.Context, code string) (accounting.Account, error) {
	for _, account := range t.st.accounts {
		if strings.EqualFold(account.Code, code) {
			return account, nil
		}
	}
	return accounting.Account{}, accounting.ErrNotFound
}

func (t *tx) ListAccounts(ctx context.Context, filter accounting.AccountFilter) ([]accounting.Account, int, error) {
	search := strings.ToLower(strings.TrimSpace(filter.Search))
	matched := make([]accounting.Account, 0, len(t.st.accounts))
	for _, account := range t.st.accounts {
		if filter.Type != nil && account.Type != *filter.Type {
			continue
		}
		if filter.Active != nil && account.IsActive != *filter.Active {
			continue
		}
		if filter.BranchID != "" && !account.IsGlobal() && account.BranchID != filter.BranchID {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(account.Code), search) &&
			!strings.Contains(strings.ToLower(account.Name), search) {
			continue
		}
		matched = append(matched, account)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Code < matched[j].Code })
	total := len(matched)
	if filter.PerPage <= 0 {
		return matched, total, nil
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	start := (page - 1) * filter.PerPage
	if start >= total {
		return []accounting.Account{}, total, nil
	}
	end := start + filter.PerPage
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (t *tx) UpdateAccount(ctx context.Context, account accounting.Account) error {
	if err := t.guardWrite(); err != nil {
		return err
	}
	current, ok := t.st.accounts[account.ID]
	if !ok {
		return accounting.ErrNotFound
	}
	current.Name = account.Name
	current.Subtype = account.Subtype
	current.ParentID = account.ParentID
	current.IsActive = account.IsActive
	current.UpdatedAt = t.now()
	t.st.accounts[account.ID] = current
	return nil
}

func (t *tx) LockAccounts(ctx context.Context, ids []int64) (map[int64]accounting.Account, error) {
	out := make(map[int64]accounting.Account, len(ids))
	for _, id := range ids {
		if account, ok := t.st.accounts[id]; ok {
			out[id] = account
		}
	}
	return out, nil
}

func (t *tx) AdjustAccountBalances(ctx context.Context, deltas map[int64]decimal.Decimal) error {
	if err := t.guardWrite(); err != nil {
		return err
	}
	for id, delta := range deltas {
		account, ok := t.st.accounts[id]
		if !ok {
			return accounting.ErrNotFound
		}
		account.Balance = account.Balance.Add(delta)
		t.st.accounts[id] = account
	}
	return nil
}

func (t *tx) GetFloatAccount(ctx context.Context, id string) (accounting.FloatAccount, error) {
	float, ok := t.st.floats[id]
	if !ok {
		return accounting.FloatAccount{}, accounting.ErrNotFound
	}
	return float, nil
}

func (t *tx) ListFloatAccounts(ctx context.Context, branchID string) ([]accounting.FloatAccount, error) {
	out := make([]accounting.FloatAccount, 0)
	for _, float := range t.st.floats {
		if branchID != "" && float.BranchID != branchID {
			continue
		}
		out = append(out, float)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *tx) UpsertFloatAccount(ctx context.Context, float accounting.FloatAccount) error {
	if err := t.guardWrite(); err != nil {
		return err
	}
	float.UpdatedAt = t.now()
	t.st.floats[float.ID] = float
	return nil
}
