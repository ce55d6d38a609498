package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/finops-gl/internal/accounting"
	"github.com/odyssey-erp/finops-gl/internal/accounting/accounts"
	"github.com/odyssey-erp/finops-gl/internal/accounting/balances"
	"github.com/odyssey-erp/finops-gl/internal/accounting/journals"
	"github.com/odyssey-erp/finops-gl/internal/accounting/manual"
	"github.com/odyssey-erp/finops-gl/internal/accounting/mappings"
	"github.com/odyssey-erp/finops-gl/internal/accounting/memstore"
	"github.com/odyssey-erp/finops-gl/internal/accounting/pgstore"
	"github.com/odyssey-erp/finops-gl/internal/accounting/settlements"
	"github.com/odyssey-erp/finops-gl/internal/observability"
	"github.com/odyssey-erp/finops-gl/internal/platform/cache"
	"github.com/odyssey-erp/finops-gl/internal/platform/db"
	"github.com/odyssey-erp/finops-gl/internal/shared"
)

// MappingCacheNamespace prefixes resolver cache keys in Redis.
const MappingCacheNamespace = "gl:mappings"

// AuditRecorder persists audit trail rows.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Backend is the storage a process runs against.
type Backend struct {
	Store accounting.Store
	Audit AuditRecorder
	Pool  *pgxpool.Pool
}

// Close releases the pool, if any.
func (b *Backend) Close() {
	if b != nil && b.Pool != nil {
		b.Pool.Close()
	}
}

// OpenBackend connects the configured store driver. The memory driver keeps
// everything in process and is meant for local runs.
func OpenBackend(ctx context.Context, cfg *Config, logger *slog.Logger) (*Backend, error) {
	switch cfg.StoreDriver {
	case StoreDriverMemory:
		logger.Warn("using in-memory ledger store, data is lost on exit")
		return &Backend{Store: memstore.New(), Audit: shared.NewMemoryAudit(logger)}, nil
	case StoreDriverPostgres:
		pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns})
		if err != nil {
			return nil, err
		}
		return &Backend{Store: pgstore.New(pool), Audit: shared.NewAuditLogger(pool), Pool: pool}, nil
	}
	return nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
}

// OpenMappingCache connects Redis for the resolver cache. When Redis is
// unreachable, or in test mode, the resolver reads straight from the store.
func OpenMappingCache(ctx context.Context, cfg *Config, logger *slog.Logger) (*cache.Versioned, *redis.Client) {
	if InTestMode() {
		return cache.NewVersioned(nil, MappingCacheNamespace, cfg.MappingCacheTTL), nil
	}
	client, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	if err != nil {
		logger.Warn("redis unavailable, mapping cache disabled", slog.Any("error", err))
		return cache.NewVersioned(nil, MappingCacheNamespace, cfg.MappingCacheTTL), nil
	}
	return cache.NewVersioned(client, MappingCacheNamespace, cfg.MappingCacheTTL), client
}

// Ledger bundles the services behind the GL API.
type Ledger struct {
	Store       accounting.Store
	Accounts    *accounts.Service
	Mappings    *mappings.Service
	Journals    *journals.Service
	Manual      *manual.Validator
	Balances    *balances.Service
	Settlements *settlements.Service
}

// LedgerParams groups what NewLedger wires together.
type LedgerParams struct {
	Config  *Config
	Store   accounting.Store
	Audit   AuditRecorder
	Cache   *cache.Versioned
	Metrics *observability.LedgerMetrics
	Logger  *slog.Logger
}

// NewLedger constructs every ledger service on one store.
func NewLedger(p LedgerParams) *Ledger {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	prefix, window := "GL", balances.DefaultActivityWindow
	if p.Config != nil {
		prefix, window = p.Config.LedgerReferencePrefix, p.Config.LedgerActivityWindow
	}

	maps := mappings.NewService(p.Store, p.Cache, p.Audit, logger.With(slog.String("component", "mappings")))
	engine := journals.NewService(p.Store, maps, journals.NewULIDReferences(prefix), p.Audit, logger.With(slog.String("component", "journals")))
	settle := settlements.NewService(p.Store, engine, p.Audit, logger.With(slog.String("component", "settlements")))
	if p.Metrics != nil {
		maps.WithObserver(p.Metrics)
		engine.WithObserver(p.Metrics)
		settle.WithObserver(p.Metrics)
	}
	return &Ledger{
		Store:       p.Store,
		Accounts:    accounts.NewService(p.Store, p.Audit, maps, logger.With(slog.String("component", "accounts"))),
		Mappings:    maps,
		Journals:    engine,
		Manual:      manual.NewValidator(p.Store, engine),
		Balances:    balances.NewService(p.Store, window, logger.With(slog.String("component", "balances"))),
		Settlements: settle,
	}
}
