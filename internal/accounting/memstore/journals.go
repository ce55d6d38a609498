package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/finops-gl/internal/accounting"
)

func (t *tx) InsertJournalEntry(ctx context.Context, entry accounting.JournalEntry) (accounting.JournalEntry, error) {
	if err := t.guardWrite(); err != nil {
		return accounting.JournalEntry{}, err
	}
	if _, taken := t.st.references[entry.Reference]; taken {
		return accounting.JournalEntry{}, accounting.ErrReferenceTaken
	}
	if entry.EventID != uuid.Nil {
		if _, linked := t.st.eventIDs[entry.EventID]; linked {
			return accounting.JournalEntry{}, accounting.ErrSourceAlreadyLinked
		}
	}
	t.st.entrySeq++
	now := t.now()
	entry.ID = t.st.entrySeq
	entry.Status = accounting.JournalStatusPosted
	entry.PostedAt = now
	entry.CreatedAt = now
	entry.UpdatedAt = now
	entry.Lines = nil
	t.st.entries[entry.ID] = entry
	t.st.references[entry.Reference] = entry.ID
	if entry.EventID != uuid.Nil {
		t.st.eventIDs[entry.EventID] = entry.ID
	}
	return entry, nil
}

func (t *tx) InsertJournalLines(ctx context.Context, entryID int64, lines []accounting.JournalLine) ([]accounting.JournalLine, error) {
	if err := t.guardWrite(); err != nil {
		return nil, err
	}
	if _, ok := t.st.entries[entryID]; !ok {
		return nil, accounting.ErrNotFound
	}
	now := t.now()
	out := make([]accounting.JournalLine, 0, len(lines))
	for _, line := range lines {
		t.st.lineSeq++
		line.ID = t.st.lineSeq
		line.JournalID = entryID
		line.CreatedAt = now
		t.st.lines = append(t.st.lines, line)
		out = append(out, line)
	}
	return out, nil
}

func (t *tx) GetJournalWithLines(ctx context.Context, id int64) (accounting.JournalEntry, error) {
	entry, ok := t.st.entries[id]
	if !ok {
		return accounting.JournalEntry{}, accounting.ErrNotFound
	}
	entry.Lines = t.linesOf(id)
	return entry, nil
}

func (t *tx) LockJournal(ctx context.Context, id int64) (accounting.JournalEntry, error) {
	return t.GetJournalWithLines(ctx, id)
}

func (t *tx) UpdateJournalStatus(ctx context.Context, id int64, status accounting.JournalStatus, reversedBy *int64) error {
	if err := t.guardWrite(); err != nil {
		return err
	}
	entry, ok := t.st.entries[id]
	if !ok {
		return accounting.ErrNotFound
	}
	entry.Status = status
	if reversedBy != nil {
		entry.ReversedBy = reversedBy
	}
	entry.UpdatedAt = t.now()
	t.st.entries[id] = entry
	return nil
}

func (t *tx) linesOf(entryID int64) []accounting.JournalLine {
	out := make([]accounting.JournalLine, 0, 2)
	for _, line := range t.st.lines {
		if line.JournalID == entryID {
			out = append(out, line)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (t *tx) SumAccountLines(ctx context.Context, accountID int64, asOf *time.Time) (decimal.Decimal, decimal.Decimal, error) {
	debit, credit := decimal.Zero, decimal.Zero
	for _, line := range t.st.lines {
		if line.AccountID != accountID {
			continue
		}
		entry := t.st.entries[line.JournalID]
		if !entry.Status.AffectsBalance() {
			continue
		}
		if asOf != nil && entry.Date.After(*asOf) {
			continue
		}
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	return debit, credit, nil
}

func (t *tx) AccountActivity(ctx context.Context, branchID string, asOf *time.Time) ([]accounting.AccountActivity, error) {
	byAccount := make(map[int64]*accounting.AccountActivity)
	for _, line := range t.st.lines {
		entry := t.st.entries[line.JournalID]
		if !entry.Status.AffectsBalance() {
			continue
		}
		if branchID != "" && entry.BranchID != branchID {
			continue
		}
		if asOf != nil && entry.Date.After(*asOf) {
			continue
		}
		row, ok := byAccount[line.AccountID]
		if !ok {
			row = &accounting.AccountActivity{AccountID: line.AccountID, Debit: decimal.Zero, Credit: decimal.Zero}
			byAccount[line.AccountID] = row
		}
		row.Debit = row.Debit.Add(line.Debit)
		row.Credit = row.Credit.Add(line.Credit)
	}
	out := make([]accounting.AccountActivity, 0, len(byAccount))
	for _, row := range byAccount {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out, nil
}

func (t *tx) SourceActivity(ctx context.Context, branchID string, since *time.Time) ([]accounting.SourceActivity, error) {
	bySource := make(map[accounting.EntrySource]*accounting.SourceActivity)
	for _, entry := range t.st.entries {
		if !entry.Status.AffectsBalance() {
			continue
		}
		if branchID != "" && entry.BranchID != branchID {
			continue
		}
		if since != nil && entry.Date.Before(*since) {
			continue
		}
		row, ok := bySource[entry.Source]
		if !ok {
			row = &accounting.SourceActivity{Source: entry.Source, Debits: decimal.Zero}
			bySource[entry.Source] = row
		}
		row.Entries++
		for _, line := range t.linesOf(entry.ID) {
			row.Debits = row.Debits.Add(line.Debit)
		}
	}
	out := make([]accounting.SourceActivity, 0, len(bySource))
	for _, row := range bySource {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out, nil
}

func (t *tx) MaxLineID(ctx context.Context) (int64, error) {
	return t.st.lineSeq, nil
}

func (t *tx) ListHistory(ctx context.Context, query accounting.HistoryWindow) ([]accounting.HistoryItem, error) {
	items := t.history(query.Filter, query.Watermark)
	sort.Slice(items, func(i, j int) bool {
		if !items[i].Date.Equal(items[j].Date) {
			return items[i].Date.After(items[j].Date)
		}
		return items[i].LineID > items[j].LineID
	})
	if query.After != nil {
		after := *query.After
		start := len(items)
		for idx, item := range items {
			if item.Date.Before(after.Date) || (item.Date.Equal(after.Date) && item.LineID < after.LineID) {
				start = idx
				break
			}
		}
		items = items[start:]
	}
	if query.Limit > 0 && len(items) > query.Limit {
		items = items[:query.Limit]
	}
	return items, nil
}

func (t *tx) CountHistory(ctx context.Context, filter accounting.HistoryFilter, watermark int64) (int, error) {
	return len(t.history(filter, watermark)), nil
}

func (t *tx) history(filter accounting.HistoryFilter, watermark int64) []accounting.HistoryItem {
	out := make([]accounting.HistoryItem, 0)
	for _, line := range t.st.lines {
		if watermark > 0 && line.ID > watermark {
			continue
		}
		if filter.AccountID != 0 && line.AccountID != filter.AccountID {
			continue
		}
		entry := t.st.entries[line.JournalID]
		if !filter.IncludeDeleted && entry.Status == accounting.JournalStatusDeleted {
			continue
		}
		if filter.BranchID != "" && entry.BranchID != filter.BranchID {
			continue
		}
		if filter.Source != nil && entry.Source != *filter.Source {
			continue
		}
		if filter.TransactionType != nil && entry.TransactionType != *filter.TransactionType {
			continue
		}
		if filter.From != nil && entry.Date.Before(*filter.From) {
			continue
		}
		if filter.To != nil && entry.Date.After(*filter.To) {
			continue
		}
		account := t.st.accounts[line.AccountID]
		description := line.Description
		if description == "" {
			description = entry.Description
		}
		out = append(out, accounting.HistoryItem{
			EntryID:         entry.ID,
			LineID:          line.ID,
			Date:            entry.Date,
			Reference:       entry.Reference,
			Description:     description,
			Source:          entry.Source,
			TransactionType: entry.TransactionType,
			BranchID:        entry.BranchID,
			Status:          entry.Status,
			AccountID:       line.AccountID,
			AccountCode:     account.Code,
			AccountName:     account.Name,
			Debit:           line.Debit,
			Credit:          line.Credit,
		})
	}
	return out
}
