package shared

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPagination(t *testing.T) {
	p := NewPagination(0, 0, 41)
	assert.Equal(t, Pagination{Page: 1, PerPage: 20, Total: 41, TotalPages: 3}, p)

	p = NewPagination(2, 1000, 10)
	assert.Equal(t, MaxPerPage, p.PerPage)
	assert.Equal(t, 1, p.TotalPages)
}

func TestMemoryAuditRecords(t *testing.T) {
	audit := NewMemoryAudit(nil)
	ctx := context.Background()
	require.Error(t, audit.Record(ctx, AuditLog{Action: "journal.post"}))
	require.NoError(t, audit.Record(ctx, AuditLog{ActorID: "u1", Action: "journal.post", Entity: "journal_entry", EntityID: "1"}))
	records := audit.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "u1", records[0].ActorID)
}

func TestActorContext(t *testing.T) {
	ctx := ContextWithActor(context.Background(), "teller-7")
	assert.Equal(t, "teller-7", ActorFromContext(ctx))
	assert.Equal(t, "", ActorFromContext(context.Background()))
}
