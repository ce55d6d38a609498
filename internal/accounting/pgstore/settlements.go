package pgstore

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/finops-gl/internal/accounting"
)

// LockSettlementScope serialises submissions for one branch and partner until
// the transaction ends.
func (t *tx) LockSettlementScope(ctx context.Context, branchID string, partner accounting.Partner) error {
	if err := t.guardWrite(); err != nil {
		return err
	}
	_, err := t.q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
		"gl_settlement:"+branchID+":"+string(partner))
	return classify(err)
}

func (t *tx) SumCollections(ctx context.Context, branchID string, txType accounting.TransactionType, asOf *time.Time) (accounting.CollectionSummary, error) {
	var w where
	w.add(`e.transaction_type = ?`, string(txType))
	w.add(`e.branch_id = ?`, branchID)
	w.raw(`e.status = 'POSTED'`)
	w.raw(`e.reversal_of IS NULL`)
	if asOf != nil {
		w.add(`e.date <= ?::date`, *asOf)
	}
	rows, err := t.q.Query(ctx, `SELECT e.tracking_id, COALESCE(SUM(l.debit), 0)
FROM gl_journal_entries e JOIN gl_journal_lines l ON l.journal_id = e.id`+w.sql()+`
GROUP BY e.id, e.tracking_id ORDER BY e.id`, w.args...)
	if err != nil {
		return accounting.CollectionSummary{}, classify(err)
	}
	defer rows.Close()
	summary := accounting.CollectionSummary{Amount: decimal.Zero, TrackingIDs: []string{}}
	for rows.Next() {
		var (
			trackingID string
			debit      decimal.Decimal
		)
		if err := rows.Scan(&trackingID, &debit); err != nil {
			return accounting.CollectionSummary{}, classify(err)
		}
		summary.Amount = summary.Amount.Add(debit)
		summary.Count++
		if trackingID != "" {
			summary.TrackingIDs = append(summary.TrackingIDs, trackingID)
		}
	}
	return summary, classify(rows.Err())
}

func (t *tx) SumSettlements(ctx context.Context, branchID string, partner accounting.Partner, asOf *time.Time) (accounting.SettlementSummary, error) {
	var w where
	w.add(`branch_id = ?`, branchID)
	w.add(`partner = ?`, string(partner))
	if asOf != nil {
		w.add(`settled_at <= ?::date`, *asOf)
	}
	rows, err := t.q.Query(ctx, `SELECT amount, tracking_ids, settled_at FROM gl_settlements`+w.sql()+` ORDER BY id`, w.args...)
	if err != nil {
		return accounting.SettlementSummary{}, classify(err)
	}
	defer rows.Close()
	summary := accounting.SettlementSummary{Amount: decimal.Zero, TrackingIDs: []string{}}
	for rows.Next() {
		var (
			amount    decimal.Decimal
			ids       []string
			settledAt time.Time
		)
		if err := rows.Scan(&amount, &ids, &settledAt); err != nil {
			return accounting.SettlementSummary{}, classify(err)
		}
		summary.Amount = summary.Amount.Add(amount)
		summary.Count++
		summary.TrackingIDs = append(summary.TrackingIDs, ids...)
		if summary.LastSettledAt == nil || settledAt.After(*summary.LastSettledAt) {
			summary.LastSettledAt = &settledAt
		}
	}
	return summary, classify(rows.Err())
}

const settlementColumns = `id, branch_id, partner, amount, reference, float_account_id, tracking_ids, journal_id, created_by, settled_at, created_at`

func scanSettlement(row rowScanner) (accounting.SettlementRecord, error) {
	var (
		r         accounting.SettlementRecord
		journalID *int64
	)
	err := row.Scan(&r.ID, &r.BranchID, &r.Partner, &r.Amount, &r.Reference, &r.FloatAccountID, &r.TrackingIDs,
		&journalID, &r.CreatedBy, &r.SettledAt, &r.CreatedAt)
	if journalID != nil {
		r.JournalID = *journalID
	}
	return r, err
}

func (t *tx) InsertSettlement(ctx context.Context, record accounting.SettlementRecord) (accounting.SettlementRecord, error) {
	if err := t.guardWrite(); err != nil {
		return accounting.SettlementRecord{}, err
	}
	ids := record.TrackingIDs
	if ids == nil {
		ids = []string{}
	}
	var journalID *int64
	if record.JournalID != 0 {
		journalID = &record.JournalID
	}
	row := t.q.QueryRow(ctx, `INSERT INTO gl_settlements
    (branch_id, partner, amount, reference, float_account_id, tracking_ids, journal_id, created_by, settled_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::date)
ON CONFLICT (reference) DO NOTHING
RETURNING `+settlementColumns,
		record.BranchID, string(record.Partner), record.Amount, record.Reference, record.FloatAccountID,
		ids, journalID, record.CreatedBy, record.SettledAt)
	inserted, err := scanSettlement(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return accounting.SettlementRecord{}, accounting.ErrReferenceTaken
	}
	return inserted, classify(err)
}

func (t *tx) ListSettlements(ctx context.Context, branchID string, partner accounting.Partner) ([]accounting.SettlementRecord, error) {
	var w where
	if branchID != "" {
		w.add(`branch_id = ?`, branchID)
	}
	if partner != "" {
		w.add(`partner = ?`, string(partner))
	}
	rows, err := t.q.Query(ctx, `SELECT `+settlementColumns+` FROM gl_settlements`+w.sql()+` ORDER BY id DESC`, w.args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	out := make([]accounting.SettlementRecord, 0)
	for rows.Next() {
		record, err := scanSettlement(rows)
		if err != nil {
			return nil, classify(err)
		}
		out = append(out, record)
	}
	return out, classify(rows.Err())
}
