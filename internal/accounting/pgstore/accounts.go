package pgstore

import (
	"context"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/finops-gl/internal/accounting"
)

const accountColumns = `id, code, name, type, subtype, parent_id, branch_id, is_active, balance, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (accounting.Account, error) {
	var a accounting.Account
	err := row.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.Subtype, &a.ParentID, &a.BranchID, &a.IsActive, &a.Balance, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (t *tx) InsertAccount(ctx context.Context, account accounting.Account) (accounting.Account, error) {
	if err := t.guardWrite(); err != nil {
		return accounting.Account{}, err
	}
	row := t.q.QueryRow(ctx, `INSERT INTO gl_accounts (code, name, type, subtype, parent_id, branch_id, is_active, balance)
VALUES ($1, $2, $3, $4, $5, $6, $7, 0)
RETURNING `+accountColumns,
		account.Code, account.Name, string(account.Type), string(account.Subtype), account.ParentID, account.BranchID, account.IsActive)
	inserted, err := scanAccount(row)
	return inserted, classify(err)
}

func (t *tx) GetAccount(ctx context.Context, id int64) (accounting.Account, error) {
	account, err := scanAccount(t.q.QueryRow(ctx, `SELECT `+accountColumns+` FROM gl_accounts WHERE id = $1`, id))
	return account, classify(err)
}

func (t *tx) GetAccountByCode(ctx context.Context, code string) (accounting.Account, error) {
	account, err := scanAccount(t.q.QueryRow(ctx, `SELECT `+accountColumns+` FROM gl_accounts WHERE LOWER(code) = LOWER($1)`, code))
	return account, classify(err)
}

func (t *tx) ListAccounts(ctx context.Context, filter accounting.AccountFilter) ([]accounting.Account, int, error) {
	var w where
	if filter.Type != nil {
		w.add(`type = ?`, string(*filter.Type))
	}
	if filter.Active != nil {
		w.add(`is_active = ?`, *filter.Active)
	}
	if filter.BranchID != "" {
		w.add(`(branch_id = '' OR branch_id = ?)`, filter.BranchID)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		w.add(`(code ILIKE ? OR name ILIKE ?)`, "%"+search+"%")
	}

	var total int
	if err := t.q.QueryRow(ctx, `SELECT COUNT(*) FROM gl_accounts`+w.sql(), w.args...).Scan(&total); err != nil {
		return nil, 0, classify(err)
	}

	query := `SELECT ` + accountColumns + ` FROM gl_accounts` + w.sql() + ` ORDER BY code`
	if filter.PerPage > 0 {
		page := filter.Page
		if page <= 0 {
			page = 1
		}
		query += ` LIMIT ` + w.next(filter.PerPage) + ` OFFSET ` + w.next((page-1)*filter.PerPage)
	}
	rows, err := t.q.Query(ctx, query, w.args...)
	if err != nil {
		return nil, 0, classify(err)
	}
	defer rows.Close()
	accounts := make([]accounting.Account, 0)
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, 0, classify(err)
		}
		accounts = append(accounts, account)
	}
	return accounts, total, classify(rows.Err())
}

func (t *tx) UpdateAccount(ctx context.Context, account accounting.Account) error {
	if err := t.guardWrite(); err != nil {
		return err
	}
	tag, err := t.q.Exec(ctx, `UPDATE gl_accounts
SET name = $2, subtype = $3, parent_id = $4, is_active = $5, updated_at = NOW()
WHERE id = $1`, account.ID, account.Name, string(account.Subtype), account.ParentID, account.IsActive)
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return accounting.ErrNotFound
	}
	return nil
}

// LockAccounts takes row locks in id order so concurrent postings over
// overlapping accounts queue instead of deadlocking.
func (t *tx) LockAccounts(ctx context.Context, ids []int64) (map[int64]accounting.Account, error) {
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	query := `SELECT ` + accountColumns + ` FROM gl_accounts WHERE id = ANY($1) ORDER BY id`
	if t.writable {
		query += ` FOR UPDATE`
	}
	rows, err := t.q.Query(ctx, query, sorted)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	out := make(map[int64]accounting.Account, len(ids))
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, classify(err)
		}
		out[account.ID] = account
	}
	return out, classify(rows.Err())
}

func (t *tx) AdjustAccountBalances(ctx context.Context, deltas map[int64]decimal.Decimal) error {
	if err := t.guardWrite(); err != nil {
		return err
	}
	ids := make([]int64, 0, len(deltas))
	for id := range deltas {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		tag, err := t.q.Exec(ctx, `UPDATE gl_accounts SET balance = balance + $2, updated_at = NOW() WHERE id = $1`, id, deltas[id])
		if err != nil {
			return classify(err)
		}
		if tag.RowsAffected() == 0 {
			return accounting.ErrNotFound
		}
	}
	return nil
}

const floatColumns = `id, provider, type, branch_id, current_balance, is_active, updated_at`

func scanFloat(row rowScanner) (accounting.FloatAccount, error) {
	var f accounting.FloatAccount
	err := row.Scan(&f.ID, &f.Provider, &f.Type, &f.BranchID, &f.CurrentBalance, &f.IsActive, &f.UpdatedAt)
	return f, err
}

func (t *tx) GetFloatAccount(ctx context.Context, id string) (accounting.FloatAccount, error) {
	float, err := scanFloat(t.q.QueryRow(ctx, `SELECT `+floatColumns+` FROM gl_float_accounts WHERE id = $1`, id))
	return float, classify(err)
}

func (t *tx) ListFloatAccounts(ctx context.Context, branchID string) ([]accounting.FloatAccount, error) {
	var w where
	if branchID != "" {
		w.add(`branch_id = ?`, branchID)
	}
	rows, err := t.q.Query(ctx, `SELECT `+floatColumns+` FROM gl_float_accounts`+w.sql()+` ORDER BY id`, w.args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	out := make([]accounting.FloatAccount, 0)
	for rows.Next() {
		float, err := scanFloat(rows)
		if err != nil {
			return nil, classify(err)
		}
		out = append(out, float)
	}
	return out, classify(rows.Err())
}

func (t *tx) UpsertFloatAccount(ctx context.Context, float accounting.FloatAccount) error {
	if err := t.guardWrite(); err != nil {
		return err
	}
	_, err := t.q.Exec(ctx, `INSERT INTO gl_float_accounts (id, provider, type, branch_id, current_balance, is_active, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, NOW())
ON CONFLICT (id) DO UPDATE SET
    provider = EXCLUDED.provider,
    type = EXCLUDED.type,
    branch_id = EXCLUDED.branch_id,
    current_balance = EXCLUDED.current_balance,
    is_active = EXCLUDED.is_active,
    updated_at = NOW()`,
		float.ID, float.Provider, string(float.Type), float.BranchID, float.CurrentBalance, float.IsActive)
	return classify(err)
}
