// Package mappings resolves business transactions to GL accounts and maintains
// the mapping table.
package mappings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/odyssey-erp/finops-gl/internal/accounting"
	"github.com/odyssey-erp/finops-gl/internal/platform/cache"
	"github.com/odyssey-erp/finops-gl/internal/shared"
)

// AuditPort records mapping changes.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// CacheObserver receives resolver cache hits and misses.
type CacheObserver interface {
	ObserveMappingCache(hit bool)
}

// Service is the mapping resolver.
type Service struct {
	store    accounting.Store
	cache    *cache.Versioned
	audit    AuditPort
	observer CacheObserver
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs the resolver. A nil cache reads straight from the store.
func NewService(store accounting.Store, c *cache.Versioned, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, cache: c, audit: audit, logger: logger, now: time.Now}
}

// WithObserver attaches cache metrics.
func (s *Service) WithObserver(observer CacheObserver) *Service {
	s.observer = observer
	return s
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Resolve returns exactly one account per requested mapping type or a
// *accounting.MappingNotFoundError naming the first missing triple.
func (s *Service) Resolve(ctx context.Context, req ResolveRequest) (Resolution, error) {
	types, err := validateResolve(req)
	if err != nil {
		return Resolution{}, err
	}
	bindings, err := s.bindings(ctx, req.TransactionType, req.BranchID, req.Fresh)
	if err != nil {
		return Resolution{}, err
	}
	res := Resolution{
		TransactionType: req.TransactionType,
		BranchID:        req.BranchID,
		FloatAccountID:  req.FloatAccountID,
		Accounts:        make(map[accounting.MappingType]accounting.Account, len(types)),
		Mappings:        make(map[accounting.MappingType]accounting.Mapping, len(types)),
	}
	for _, mt := range types {
		b, ok := bindings[mt]
		if !ok {
			return Resolution{}, &accounting.MappingNotFoundError{
				TransactionType: req.TransactionType,
				MappingType:     mt,
				BranchID:        req.BranchID,
			}
		}
		if mt == accounting.MappingMain && req.FloatAccountID != "" && b.Mapping.FloatAccountID != req.FloatAccountID {
			return Resolution{}, &accounting.MappingNotFoundError{
				TransactionType: req.TransactionType,
				MappingType:     mt,
				BranchID:        req.BranchID,
				FloatAccountID:  req.FloatAccountID,
			}
		}
		res.Accounts[mt] = b.Account
		res.Mappings[mt] = b.Mapping
	}
	return res, nil
}

func validateResolve(req ResolveRequest) ([]accounting.MappingType, error) {
	var errs accounting.ValidationErrors
	if _, err := accounting.ParseTransactionType(string(req.TransactionType)); err != nil {
		errs = append(errs, err.(*accounting.ValidationError))
	}
	if strings.TrimSpace(req.BranchID) == "" {
		errs = append(errs, accounting.NewValidationError("branch_id", "is required"))
	}
	if len(req.MappingTypes) == 0 {
		errs = append(errs, accounting.NewValidationError("mapping_types", "at least one mapping type is required"))
	}
	seen := make(map[accounting.MappingType]bool, len(req.MappingTypes))
	types := make([]accounting.MappingType, 0, len(req.MappingTypes))
	for i, mt := range req.MappingTypes {
		parsed, err := accounting.ParseMappingType(string(mt))
		if err != nil {
			errs = append(errs, accounting.NewValidationError(fmt.Sprintf("mapping_types[%d]", i), "unknown mapping type"))
			continue
		}
		if !seen[parsed] {
			seen[parsed] = true
			types = append(types, parsed)
		}
	}
	if len(errs) > 0 {
		return nil, errs
	}
	return types, nil
}

// bindings loads every active mapping of a transaction type in a branch, with its account.
func (s *Service) bindings(ctx context.Context, txType accounting.TransactionType, branchID string, fresh bool) (map[accounting.MappingType]binding, error) {
	if fresh || !s.cache.Enabled() {
		return s.loadBindings(ctx, txType, branchID)
	}
	key, err := s.cache.BuildKey(ctx, "resolve", branchID, string(txType))
	if err != nil {
		s.logger.Warn("mapping cache key", slog.Any("error", err))
		return s.loadBindings(ctx, txType, branchID)
	}
	hit := true
	var out map[accounting.MappingType]binding
	err = s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
		hit = false
		return s.loadBindings(ctx, txType, branchID)
	})
	if s.observer != nil {
		s.observer.ObserveMappingCache(hit)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) loadBindings(ctx context.Context, txType accounting.TransactionType, branchID string) (map[accounting.MappingType]binding, error) {
	out := make(map[accounting.MappingType]binding)
	err := s.store.WithSnapshot(ctx, func(ctx context.Context, tx accounting.Tx) error {
		rows, err := tx.ListMappings(ctx, accounting.MappingFilter{
			TransactionType: &txType,
			BranchID:        branchID,
			ActiveOnly:      true,
		})
		if err != nil {
			return err
		}
		for _, m := range rows {
			account, err := tx.GetAccount(ctx, m.AccountID)
			if err != nil {
				return fmt.Errorf("mapping %d account %d: %w", m.ID, m.AccountID, err)
			}
			if prev, dup := out[m.MappingType]; dup {
				return &accounting.ReconciliationError{
					Detail: fmt.Sprintf("mappings %d and %d are both active for %s/%s", prev.Mapping.ID, m.ID, txType, m.MappingType),
				}
			}
			out[m.MappingType] = binding{Mapping: m, Account: account}
		}
		return nil
	})
	if err != nil {
		return nil, accounting.AsPersistence("load mappings", err)
	}
	return out, nil
}

// Create stores a mapping. A MANUAL mapping supersedes an active DEFAULT for the
// same key; any other collision with an active row is rejected.
func (s *Service) Create(ctx context.Context, input CreateMappingInput) (accounting.Mapping, error) {
	mapping, err := validateCreate(input)
	if err != nil {
		return accounting.Mapping{}, err
	}
	var (
		created    accounting.Mapping
		superseded *accounting.Mapping
	)
	err = s.store.WithTx(ctx, func(ctx context.Context, tx accounting.Tx) error {
		var errs accounting.ValidationErrors
		account, err := tx.GetAccount(ctx, mapping.AccountID)
		switch {
		case errors.Is(err, accounting.ErrNotFound):
			errs = append(errs, accounting.NewValidationError("account_id", "account does not exist"))
		case err != nil:
			return err
		case !account.UsableBy(mapping.BranchID):
			errs = append(errs, accounting.NewValidationError("account_id", "account is inactive or belongs to another branch"))
		}
		if mapping.FloatAccountID != "" {
			float, err := tx.GetFloatAccount(ctx, mapping.FloatAccountID)
			switch {
			case errors.Is(err, accounting.ErrNotFound):
				errs = append(errs, accounting.NewValidationError("float_account_id", "float account does not exist"))
			case err != nil:
				return err
			case float.BranchID != mapping.BranchID:
				errs = append(errs, accounting.NewValidationError("float_account_id", "float account belongs to another branch"))
			case !float.IsActive:
				errs = append(errs, accounting.NewValidationError("float_account_id", "float account is inactive"))
			}
		}
		if len(errs) > 0 {
			return errs
		}

		existing, err := tx.FindActiveMapping(ctx, mapping.Key())
		switch {
		case errors.Is(err, accounting.ErrNotFound):
		case err != nil:
			return err
		case mapping.Origin == accounting.MappingOriginManual && existing.Origin == accounting.MappingOriginDefault:
			existing.IsActive = false
			if err := tx.UpdateMapping(ctx, existing); err != nil {
				return err
			}
			superseded = &existing
		default:
			return accounting.WrapValidation("mapping", accounting.ErrMappingConflict)
		}

		inserted, err := tx.InsertMapping(ctx, mapping)
		if errors.Is(err, accounting.ErrMappingConflict) {
			return accounting.WrapValidation("mapping", err)
		}
		if err != nil {
			return err
		}
		if superseded != nil {
			superseded.SupersededBy = &inserted.ID
			if err := tx.UpdateMapping(ctx, *superseded); err != nil {
				return err
			}
		}
		created = inserted
		return nil
	})
	if err != nil {
		return accounting.Mapping{}, accounting.AsPersistence("create mapping", err)
	}
	s.invalidate(ctx)
	meta := map[string]any{
		"transaction_type": string(created.TransactionType),
		"mapping_type":     string(created.MappingType),
		"branch_id":        created.BranchID,
		"account_id":       created.AccountID,
		"origin":           string(created.Origin),
	}
	if superseded != nil {
		meta["superseded"] = superseded.ID
	}
	s.record(ctx, input.ActorID, "mapping.create", created.ID, meta)
	return created, nil
}

func validateCreate(input CreateMappingInput) (accounting.Mapping, error) {
	var errs accounting.ValidationErrors
	txType, err := accounting.ParseTransactionType(string(input.TransactionType))
	if err != nil {
		errs = append(errs, err.(*accounting.ValidationError))
	}
	mt, err := accounting.ParseMappingType(string(input.MappingType))
	if err != nil {
		errs = append(errs, err.(*accounting.ValidationError))
	}
	origin, err := accounting.ParseMappingOrigin(string(input.Origin))
	if err != nil {
		errs = append(errs, err.(*accounting.ValidationError))
	}
	branchID := strings.TrimSpace(input.BranchID)
	if branchID == "" {
		errs = append(errs, accounting.NewValidationError("branch_id", "is required"))
	}
	if input.AccountID <= 0 {
		errs = append(errs, accounting.NewValidationError("account_id", "is required"))
	}
	if len(errs) > 0 {
		return accounting.Mapping{}, errs
	}
	return accounting.Mapping{
		TransactionType: txType,
		MappingType:     mt,
		BranchID:        branchID,
		AccountID:       input.AccountID,
		FloatAccountID:  strings.TrimSpace(input.FloatAccountID),
		Origin:          origin,
		IsActive:        true,
		CreatedBy:       input.ActorID,
	}, nil
}

// Deactivate retires a mapping. Retiring a MANUAL mapping restores the DEFAULT it superseded.
func (s *Service) Deactivate(ctx context.Context, id int64, actorID string) (accounting.Mapping, error) {
	var (
		retired  accounting.Mapping
		restored *accounting.Mapping
	)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx accounting.Tx) error {
		current, err := tx.GetMapping(ctx, id)
		if err != nil {
			return err
		}
		if !current.IsActive {
			return accounting.WrapValidation("id", accounting.ErrInvalidStatus)
		}
		current.IsActive = false
		if err := tx.UpdateMapping(ctx, current); err != nil {
			return err
		}
		retired = current
		if current.Origin != accounting.MappingOriginManual {
			return nil
		}
		previous, err := tx.FindSupersededBy(ctx, current.ID)
		if errors.Is(err, accounting.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		previous.IsActive = true
		previous.SupersededBy = nil
		if err := tx.UpdateMapping(ctx, previous); err != nil {
			return err
		}
		restored = &previous
		return nil
	})
	if err != nil {
		return accounting.Mapping{}, accounting.AsPersistence("deactivate mapping", err)
	}
	s.invalidate(ctx)
	meta := map[string]any{}
	if restored != nil {
		meta["restored"] = restored.ID
	}
	s.record(ctx, actorID, "mapping.deactivate", retired.ID, meta)
	return retired, nil
}

// List returns mappings matching the filter.
func (s *Service) List(ctx context.Context, filter accounting.MappingFilter) ([]accounting.Mapping, error) {
	var out []accounting.Mapping
	err := s.store.WithSnapshot(ctx, func(ctx context.Context, tx accounting.Tx) error {
		var err error
		out, err = tx.ListMappings(ctx, filter)
		return err
	})
	if err != nil {
		return nil, accounting.AsPersistence("list mappings", err)
	}
	return out, nil
}

// Invalidate drops every cached resolution.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}

func (s *Service) invalidate(ctx context.Context) {
	if err := s.Invalidate(ctx); err != nil {
		s.logger.Error("invalidate mapping cache", slog.Any("error", err))
	}
}

func (s *Service) record(ctx context.Context, actorID, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "gl_mapping",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
		At:       s.now(),
	}); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}
