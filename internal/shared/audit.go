package shared

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditLog represents a record stored in gl_audit_logs.
type AuditLog struct {
	ActorID  string
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

func (l AuditLog) validate() error {
	if l.Action == "" || l.Entity == "" || l.EntityID == "" {
		return errors.New("audit log requires action/entity/entity_id")
	}
	return nil
}

// AuditLogger writes records into gl_audit_logs.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record persists the log entry.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil || l.pool == nil {
		return errors.New("audit logger not initialised")
	}
	if err := log.validate(); err != nil {
		return err
	}
	metaJSON, err := json.Marshal(log.Meta)
	if err != nil {
		return err
	}
	var at *time.Time
	if !log.At.IsZero() {
		at = &log.At
	}
	_, err = l.pool.Exec(ctx, `INSERT INTO gl_audit_logs (actor_id, action, entity, entity_id, meta, occurred_at) VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))`, log.ActorID, log.Action, log.Entity, log.EntityID, metaJSON, at)
	return err
}

// MemoryAudit keeps audit records in memory and mirrors them to a logger.
// Used with the in-memory store.
type MemoryAudit struct {
	mu      sync.Mutex
	logger  *slog.Logger
	records []AuditLog
}

// NewMemoryAudit constructs a MemoryAudit. A nil logger disables mirroring.
func NewMemoryAudit(logger *slog.Logger) *MemoryAudit {
	return &MemoryAudit{logger: logger}
}

// Record stores the log entry.
func (m *MemoryAudit) Record(ctx context.Context, log AuditLog) error {
	if err := log.validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.records = append(m.records, log)
	m.mu.Unlock()
	if m.logger != nil {
		m.logger.InfoContext(ctx, "audit", slog.String("action", log.Action),
			slog.String("entity", log.Entity), slog.String("entity_id", log.EntityID),
			slog.String("actor_id", log.ActorID))
	}
	return nil
}

// Records returns a copy of every stored entry.
func (m *MemoryAudit) Records() []AuditLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]AuditLog(nil), m.records...)
}
