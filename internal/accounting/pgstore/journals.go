package pgstore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/finops-gl/internal/accounting"
)

const entryColumns = `id, date, reference, description, source, transaction_type, branch_id, created_by, status,
reversal_of, reversed_by, event_id, tracking_id, posted_at, created_at, updated_at`

// balanceStatuses mirrors JournalStatus.AffectsBalance.
const balanceStatuses = `('POSTED', 'REVERSED')`

func scanEntry(row rowScanner) (accounting.JournalEntry, error) {
	var (
		e       accounting.JournalEntry
		eventID pgtype.UUID
	)
	err := row.Scan(&e.ID, &e.Date, &e.Reference, &e.Description, &e.Source, &e.TransactionType, &e.BranchID,
		&e.CreatedBy, &e.Status, &e.ReversalOf, &e.ReversedBy, &eventID, &e.TrackingID, &e.PostedAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return accounting.JournalEntry{}, err
	}
	if eventID.Valid {
		e.EventID = uuid.UUID(eventID.Bytes)
	}
	return e, nil
}

func eventArg(id uuid.UUID) any {
	if id == uuid.Nil {
		return nil
	}
	return pgtype.UUID{Bytes: id, Valid: true}
}

// InsertJournalEntry skips conflicting rows instead of failing so the caller
// can retry a reference inside the same transaction.
func (t *tx) InsertJournalEntry(ctx context.Context, entry accounting.JournalEntry) (accounting.JournalEntry, error) {
	if err := t.guardWrite(); err != nil {
		return accounting.JournalEntry{}, err
	}
	row := t.q.QueryRow(ctx, `INSERT INTO gl_journal_entries
    (date, reference, description, source, transaction_type, branch_id, created_by, status, reversal_of, event_id, tracking_id)
VALUES ($1::date, $2, $3, $4, $5, $6, $7, 'POSTED', $8, $9, $10)
ON CONFLICT DO NOTHING
RETURNING `+entryColumns,
		entry.Date, entry.Reference, entry.Description, string(entry.Source), string(entry.TransactionType),
		entry.BranchID, entry.CreatedBy, entry.ReversalOf, eventArg(entry.EventID), entry.TrackingID)
	inserted, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return accounting.JournalEntry{}, t.entryConflict(ctx, entry.Reference)
	}
	if err != nil {
		return accounting.JournalEntry{}, classify(err)
	}
	return inserted, nil
}

func (t *tx) entryConflict(ctx context.Context, reference string) error {
	var taken bool
	if err := t.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM gl_journal_entries WHERE reference = $1)`, reference).Scan(&taken); err != nil {
		return classify(err)
	}
	if taken {
		return accounting.ErrReferenceTaken
	}
	return accounting.ErrSourceAlreadyLinked
}

func (t *tx) InsertJournalLines(ctx context.Context, entryID int64, lines []accounting.JournalLine) ([]accounting.JournalLine, error) {
	if err := t.guardWrite(); err != nil {
		return nil, err
	}
	out := make([]accounting.JournalLine, 0, len(lines))
	for _, line := range lines {
		err := t.q.QueryRow(ctx, `INSERT INTO gl_journal_lines (journal_id, account_id, description, debit, credit)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, created_at`, entryID, line.AccountID, line.Description, line.Debit, line.Credit).Scan(&line.ID, &line.CreatedAt)
		if err != nil {
			return nil, classify(err)
		}
		line.JournalID = entryID
		out = append(out, line)
	}
	return out, nil
}

func (t *tx) GetJournalWithLines(ctx context.Context, id int64) (accounting.JournalEntry, error) {
	return t.journal(ctx, `SELECT `+entryColumns+` FROM gl_journal_entries WHERE id = $1`, id)
}

func (t *tx) LockJournal(ctx context.Context, id int64) (accounting.JournalEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM gl_journal_entries WHERE id = $1`
	if t.writable {
		query += ` FOR UPDATE`
	}
	return t.journal(ctx, query, id)
}

func (t *tx) journal(ctx context.Context, query string, id int64) (accounting.JournalEntry, error) {
	entry, err := scanEntry(t.q.QueryRow(ctx, query, id))
	if err != nil {
		return accounting.JournalEntry{}, classify(err)
	}
	rows, err := t.q.Query(ctx, `SELECT id, journal_id, account_id, description, debit, credit, created_at
FROM gl_journal_lines WHERE journal_id = $1 ORDER BY id`, id)
	if err != nil {
		return accounting.JournalEntry{}, classify(err)
	}
	defer rows.Close()
	entry.Lines = make([]accounting.JournalLine, 0, 2)
	for rows.Next() {
		var l accounting.JournalLine
		if err := rows.Scan(&l.ID, &l.JournalID, &l.AccountID, &l.Description, &l.Debit, &l.Credit, &l.CreatedAt); err != nil {
			return accounting.JournalEntry{}, classify(err)
		}
		entry.Lines = append(entry.Lines, l)
	}
	return entry, classify(rows.Err())
}

func (t *tx) UpdateJournalStatus(ctx context.Context, id int64, status accounting.JournalStatus, reversedBy *int64) error {
	if err := t.guardWrite(); err != nil {
		return err
	}
	tag, err := t.q.Exec(ctx, `UPDATE gl_journal_entries
SET status = $2, reversed_by = COALESCE($3, reversed_by), updated_at = NOW()
WHERE id = $1`, id, string(status), reversedBy)
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return accounting.ErrNotFound
	}
	return nil
}

func (t *tx) SumAccountLines(ctx context.Context, accountID int64, asOf *time.Time) (decimal.Decimal, decimal.Decimal, error) {
	var w where
	w.add(`l.account_id = ?`, accountID)
	w.raw(`e.status IN ` + balanceStatuses)
	if asOf != nil {
		w.add(`e.date <= ?::date`, *asOf)
	}
	debit, credit := decimal.Zero, decimal.Zero
	err := t.q.QueryRow(ctx, `SELECT COALESCE(SUM(l.debit), 0), COALESCE(SUM(l.credit), 0)
FROM gl_journal_lines l JOIN gl_journal_entries e ON e.id = l.journal_id`+w.sql(), w.args...).Scan(&debit, &credit)
	return debit, credit, classify(err)
}

func (t *tx) AccountActivity(ctx context.Context, branchID string, asOf *time.Time) ([]accounting.AccountActivity, error) {
	var w where
	w.raw(`e.status IN ` + balanceStatuses)
	if branchID != "" {
		w.add(`e.branch_id = ?`, branchID)
	}
	if asOf != nil {
		w.add(`e.date <= ?::date`, *asOf)
	}
	rows, err := t.q.Query(ctx, `SELECT l.account_id, SUM(l.debit), SUM(l.credit)
FROM gl_journal_lines l JOIN gl_journal_entries e ON e.id = l.journal_id`+w.sql()+`
GROUP BY l.account_id ORDER BY l.account_id`, w.args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	out := make([]accounting.AccountActivity, 0)
	for rows.Next() {
		var a accounting.AccountActivity
		if err := rows.Scan(&a.AccountID, &a.Debit, &a.Credit); err != nil {
			return nil, classify(err)
		}
		out = append(out, a)
	}
	return out, classify(rows.Err())
}

func (t *tx) SourceActivity(ctx context.Context, branchID string, since *time.Time) ([]accounting.SourceActivity, error) {
	var w where
	w.raw(`e.status IN ` + balanceStatuses)
	if branchID != "" {
		w.add(`e.branch_id = ?`, branchID)
	}
	if since != nil {
		w.add(`e.date >= ?::date`, *since)
	}
	rows, err := t.q.Query(ctx, `SELECT e.source, COUNT(*), COALESCE(SUM(d.debits), 0)
FROM gl_journal_entries e
JOIN LATERAL (SELECT COALESCE(SUM(debit), 0) AS debits FROM gl_journal_lines WHERE journal_id = e.id) d ON TRUE`+w.sql()+`
GROUP BY e.source ORDER BY e.source`, w.args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	out := make([]accounting.SourceActivity, 0)
	for rows.Next() {
		var s accounting.SourceActivity
		if err := rows.Scan(&s.Source, &s.Entries, &s.Debits); err != nil {
			return nil, classify(err)
		}
		out = append(out, s)
	}
	return out, classify(rows.Err())
}
