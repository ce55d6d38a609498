// Package memstore keeps the whole ledger in process memory. It backs local
// development (STORE_DRIVER=memory) and the behavioural tests of the engine.
package memstore

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/finops-gl/internal/accounting"
)

var errReadOnly = errors.New("memstore: write attempted in read-only snapshot")

// Store is an accounting.Store guarded by a single ledger lock.
type Store struct {
	mu    sync.RWMutex
	state *state
	now   func() time.Time
}

// New constructs an empty store.
func New() *Store {
	return &Store{state: newState(), now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Store) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

type state struct {
	accounts       map[int64]accounting.Account
	accountSeq     int64
	floats         map[string]accounting.FloatAccount
	mappings       map[int64]accounting.Mapping
	mappingSeq     int64
	entries        map[int64]accounting.JournalEntry
	entrySeq       int64
	lines          []accounting.JournalLine
	lineSeq        int64
	references     map[string]int64
	eventIDs       map[uuid.UUID]int64
	settlements    []accounting.SettlementRecord
	settlementSeq  int64
	settlementRefs map[string]int64
}

func newState() *state {
	return &state{
		accounts:       make(map[int64]accounting.Account),
		floats:         make(map[string]accounting.FloatAccount),
		mappings:       make(map[int64]accounting.Mapping),
		entries:        make(map[int64]accounting.JournalEntry),
		references:     make(map[string]int64),
		eventIDs:       make(map[uuid.UUID]int64),
		settlementRefs: make(map[string]int64),
	}
}

func (s *state) clone() *state {
	out := &state{
		accounts:       make(map[int64]accounting.Account, len(s.accounts)),
		accountSeq:     s.accountSeq,
		floats:         make(map[string]accounting.FloatAccount, len(s.floats)),
		mappings:       make(map[int64]accounting.Mapping, len(s.mappings)),
		mappingSeq:     s.mappingSeq,
		entries:        make(map[int64]accounting.JournalEntry, len(s.entries)),
		entrySeq:       s.entrySeq,
		lines:          make([]accounting.JournalLine, len(s.lines)),
		lineSeq:        s.lineSeq,
		references:     make(map[string]int64, len(s.references)),
		eventIDs:       make(map[uuid.UUID]int64, len(s.eventIDs)),
		settlements:    make([]accounting.SettlementRecord, len(s.settlements)),
		settlementSeq:  s.settlementSeq,
		settlementRefs: make(map[string]int64, len(s.settlementRefs)),
	}
	for k, v := range s.accounts {
		out.accounts[k] = v
	}
	for k, v := range s.floats {
		out.floats[k] = v
	}
	for k, v := range s.mappings {
		out.mappings[k] = v
	}
	for k, v := range s.entries {
		out.entries[k] = v
	}
	copy(out.lines, s.lines)
	for k, v := range s.references {
		out.references[k] = v
	}
	for k, v := range s.eventIDs {
		out.eventIDs[k] = v
	}
	copy(out.settlements, s.settlements)
	for k, v := range s.settlementRefs {
		out.settlementRefs[k] = v
	}
	return out
}

// WithTx runs fn against a private copy of the ledger and publishes it only on success.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, accounting.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	working := s.state.clone()
	if err := fn(ctx, &tx{st: working, writable: true, now: s.now}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.state = working
	return nil
}

// WithSnapshot runs fn while writers are excluded.
func (s *Store) WithSnapshot(ctx context.Context, fn func(context.Context, accounting.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(ctx, &tx{st: s.state, now: s.now})
}

type tx struct {
	st       *state
	writable bool
	now      func() time.Time
}

func (t *tx) guardWrite() error {
	if !t.writable {
		return errReadOnly
	}
	return nil
}

var _ accounting.Store = (*Store)(nil)
var _ accounting.Tx = (*tx)(nil)
