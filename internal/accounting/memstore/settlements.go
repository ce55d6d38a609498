package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/finops-gl/internal/accounting"
)

// LockSettlementScope is a no-op: WithTx already holds the ledger lock.
func (t *tx) LockSettlementScope(ctx context.Context, branchID string, partner accounting.Partner) error {
	return t.guardWrite()
}

func (t *tx) SumCollections(ctx context.Context, branchID string, txType accounting.TransactionType, asOf *time.Time) (accounting.CollectionSummary, error) {
	summary := accounting.CollectionSummary{Amount: decimal.Zero, TrackingIDs: []string{}}
	ids := make([]int64, 0)
	for id, entry := range t.st.entries {
		if entry.TransactionType != txType || entry.BranchID != branchID {
			continue
		}
		if entry.Status != accounting.JournalStatusPosted || entry.ReversalOf != nil {
			continue
		}
		if asOf != nil && entry.Date.After(*asOf) {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		entry := t.st.entries[id]
		entry.Lines = t.linesOf(id)
		debit, _ := entry.Totals()
		summary.Amount = summary.Amount.Add(debit)
		summary.Count++
		if entry.TrackingID != "" {
			summary.TrackingIDs = append(summary.TrackingIDs, entry.TrackingID)
		}
	}
	return summary, nil
}

func (t *tx) SumSettlements(ctx context.Context, branchID string, partner accounting.Partner, asOf *time.Time) (accounting.SettlementSummary, error) {
	summary := accounting.SettlementSummary{Amount: decimal.Zero, TrackingIDs: []string{}}
	for _, record := range t.st.settlements {
		if record.BranchID != branchID || record.Partner != partner {
			continue
		}
		if asOf != nil && record.SettledAt.After(*asOf) {
			continue
		}
		summary.Amount = summary.Amount.Add(record.Amount)
		summary.Count++
		summary.TrackingIDs = append(summary.TrackingIDs, record.TrackingIDs...)
		if summary.LastSettledAt == nil || record.SettledAt.After(*summary.LastSettledAt) {
			settled := record.SettledAt
			summary.LastSettledAt = &settled
		}
	}
	return summary, nil
}

func (t *tx) InsertSettlement(ctx context.Context, record accounting.SettlementRecord) (accounting.SettlementRecord, error) {
	if err := t.guardWrite(); err != nil {
		return accounting.SettlementRecord{}, err
	}
	if _, taken := t.st.settlementRefs[record.Reference]; taken {
		return accounting.SettlementRecord{}, accounting.ErrReferenceTaken
	}
	t.st.settlementSeq++
	record.ID = t.st.settlementSeq
	record.CreatedAt = t.now()
	record.TrackingIDs = append([]string(nil), record.TrackingIDs...)
	t.st.settlements = append(t.st.settlements, record)
	t.st.settlementRefs[record.Reference] = record.ID
	return record, nil
}

func (t *tx) ListSettlements(ctx context.Context, branchID string, partner accounting.Partner) ([]accounting.SettlementRecord, error) {
	out := make([]accounting.SettlementRecord, 0)
	for _, record := range t.st.settlements {
		if branchID != "" && record.BranchID != branchID {
			continue
		}
		if partner != "" && record.Partner != partner {
			continue
		}
		out = append(out, record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}
