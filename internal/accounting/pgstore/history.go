package pgstore

import (
	"context"

	"github.com/odyssey-erp/finops-gl/internal/accounting"
)

const historyFrom = `
FROM gl_journal_lines l
JOIN gl_journal_entries e ON e.id = l.journal_id
JOIN gl_accounts a ON a.id = l.account_id`

func (t *tx) MaxLineID(ctx context.Context) (int64, error) {
	var id int64
	err := t.q.QueryRow(ctx, `SELECT COALESCE(MAX(id), 0) FROM gl_journal_lines`).Scan(&id)
	return id, classify(err)
}

func historyWhere(filter accounting.HistoryFilter, watermark int64) *where {
	w := &where{}
	if watermark > 0 {
		w.add(`l.id <= ?`, watermark)
	}
	if filter.AccountID != 0 {
		w.add(`l.account_id = ?`, filter.AccountID)
	}
	if !filter.IncludeDeleted {
		w.raw(`e.status <> 'DELETED'`)
	}
	if filter.BranchID != "" {
		w.add(`e.branch_id = ?`, filter.BranchID)
	}
	if filter.Source != nil {
		w.add(`e.source = ?`, string(*filter.Source))
	}
	if filter.TransactionType != nil {
		w.add(`e.transaction_type = ?`, string(*filter.TransactionType))
	}
	if filter.From != nil {
		w.add(`e.date >= ?::date`, *filter.From)
	}
	if filter.To != nil {
		w.add(`e.date <= ?::date`, *filter.To)
	}
	return w
}

// ListHistory pages newest first on (date, line id), which stays stable while
// new lines land above the watermark.
func (t *tx) ListHistory(ctx context.Context, query accounting.HistoryWindow) ([]accounting.HistoryItem, error) {
	w := historyWhere(query.Filter, query.Watermark)
	if query.After != nil {
		date := w.next(query.After.Date)
		line := w.next(query.After.LineID)
		w.raw(`(e.date, l.id) < (` + date + `::date, ` + line + `)`)
	}
	sql := `SELECT e.id, l.id, e.date, e.reference, COALESCE(NULLIF(l.description, ''), e.description),
    e.source, e.transaction_type, e.branch_id, e.status, l.account_id, a.code, a.name, l.debit, l.credit` +
		historyFrom + w.sql() + `
ORDER BY e.date DESC, l.id DESC`
	if query.Limit > 0 {
		sql += ` LIMIT ` + w.next(query.Limit)
	}
	rows, err := t.q.Query(ctx, sql, w.args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	out := make([]accounting.HistoryItem, 0)
	for rows.Next() {
		var h accounting.HistoryItem
		if err := rows.Scan(&h.EntryID, &h.LineID, &h.Date, &h.Reference, &h.Description, &h.Source, &h.TransactionType,
			&h.BranchID, &h.Status, &h.AccountID, &h.AccountCode, &h.AccountName, &h.Debit, &h.Credit); err != nil {
			return nil, classify(err)
		}
		out = append(out, h)
	}
	return out, classify(rows.Err())
}

func (t *tx) CountHistory(ctx context.Context, filter accounting.HistoryFilter, watermark int64) (int, error) {
	w := historyWhere(filter, watermark)
	var total int
	err := t.q.QueryRow(ctx, `SELECT COUNT(*)`+historyFrom+w.sql(), w.args...).Scan(&total)
	return total, classify(err)
}
