// Package accounts maintains the chart of accounts.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/finops-gl/internal/accounting"
	"github.com/odyssey-erp/finops-gl/internal/shared"
)

// AuditPort records chart of accounts changes.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Invalidator drops cached lookups that embed account state.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Service is the account registry.
type Service struct {
	store       accounting.Store
	audit       AuditPort
	invalidator Invalidator
	logger      *slog.Logger
	now         func() time.Time
}

// NewService constructs the account registry.
func NewService(store accounting.Store, audit AuditPort, invalidator Invalidator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, audit: audit, invalidator: invalidator, logger: logger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Create validates and stores a new account.
func (s *Service) Create(ctx context.Context, input CreateAccountInput) (accounting.Account, error) {
	account, err := validateCreate(input)
	if err != nil {
		return accounting.Account{}, err
	}
	var created accounting.Account
	err = s.store.WithTx(ctx, func(ctx context.Context, tx accounting.Tx) error {
		if account.ParentID != nil {
			parent, err := tx.GetAccount(ctx, *account.ParentID)
			if errors.Is(err, accounting.ErrNotFound) {
				return accounting.NewValidationError("parent_id", "parent account does not exist")
			}
			if err != nil {
				return err
			}
			if parent.Type != account.Type {
				return accounting.NewValidationError("parent_id", fmt.Sprintf("parent is %s, child must share the type", parent.Type))
			}
			if !parent.IsGlobal() && parent.BranchID != account.BranchID {
				return accounting.NewValidationError("parent_id", "parent belongs to another branch")
			}
		}
		inserted, err := tx.InsertAccount(ctx, account)
		if errors.Is(err, accounting.ErrDuplicateCode) {
			return accounting.WrapValidation("code", err)
		}
		if err != nil {
			return err
		}
		created = inserted
		return nil
	})
	if err != nil {
		return accounting.Account{}, accounting.AsPersistence("create account", err)
	}
	s.record(ctx, input.ActorID, "account.create", created.ID, map[string]any{
		"code": created.Code,
		"type": string(created.Type),
	})
	return created, nil
}

func validateCreate(input CreateAccountInput) (accounting.Account, error) {
	var errs accounting.ValidationErrors
	code := strings.TrimSpace(input.Code)
	if code == "" {
		errs = append(errs, accounting.NewValidationError("code", "is required"))
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		errs = append(errs, accounting.NewValidationError("name", "is required"))
	}
	accountType, err := accounting.ParseAccountType(string(input.Type))
	if err != nil {
		errs = append(errs, accounting.NewValidationError("type", err.(*accounting.ValidationError).Reason))
	}
	subtype, err := accounting.ParseAccountSubtype(string(input.Subtype))
	if err != nil {
		errs = append(errs, accounting.NewValidationError("subtype", err.(*accounting.ValidationError).Reason))
	} else if subtype != accounting.AccountSubtypeNone && accountType != accounting.AccountTypeAsset {
		errs = append(errs, accounting.NewValidationError("subtype", "only asset accounts carry a subtype"))
	}
	if len(errs) > 0 {
		return accounting.Account{}, errs
	}
	return accounting.Account{
		Code:     code,
		Name:     name,
		Type:     accountType,
		Subtype:  subtype,
		ParentID: input.ParentID,
		BranchID: strings.TrimSpace(input.BranchID),
		IsActive: true,
	}, nil
}

// Get returns an account with its cached balance and the rollup over its descendants.
func (s *Service) Get(ctx context.Context, id int64) (AccountDetail, error) {
	var detail AccountDetail
	err := s.store.WithSnapshot(ctx, func(ctx context.Context, tx accounting.Tx) error {
		account, err := tx.GetAccount(ctx, id)
		if err != nil {
			return err
		}
		all, _, err := tx.ListAccounts(ctx, accounting.AccountFilter{})
		if err != nil {
			return err
		}
		rollup, children := rollupBalance(account, all)
		detail = AccountDetail{Account: account, RollupBalance: rollup, Children: children}
		return nil
	})
	if err != nil {
		return AccountDetail{}, accounting.AsPersistence("get account", err)
	}
	return detail, nil
}

// rollupBalance sums the balance of root and every descendant. Children counts direct children.
func rollupBalance(root accounting.Account, all []accounting.Account) (decimal.Decimal, int) {
	byParent := make(map[int64][]accounting.Account)
	for _, account := range all {
		if account.ParentID != nil {
			byParent[*account.ParentID] = append(byParent[*account.ParentID], account)
		}
	}
	total := root.Balance
	visited := map[int64]bool{root.ID: true}
	queue := append([]accounting.Account(nil), byParent[root.ID]...)
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if visited[next.ID] {
			continue
		}
		visited[next.ID] = true
		total = total.Add(next.Balance)
		queue = append(queue, byParent[next.ID]...)
	}
	return total, len(byParent[root.ID])
}

// GetByCode looks an account up by its code.
func (s *Service) GetByCode(ctx context.Context, code string) (accounting.Account, error) {
	var account accounting.Account
	err := s.store.WithSnapshot(ctx, func(ctx context.Context, tx accounting.Tx) error {
		var err error
		account, err = tx.GetAccountByCode(ctx, strings.TrimSpace(code))
		return err
	})
	if err != nil {
		return accounting.Account{}, accounting.AsPersistence("get account by code", err)
	}
	return account, nil
}

// List returns a page of the chart of accounts.
func (s *Service) List(ctx context.Context, filter accounting.AccountFilter) (AccountPage, error) {
	filter.PerPage = shared.ClampPerPage(filter.PerPage)
	if filter.Page <= 0 {
		filter.Page = 1
	}
	var page AccountPage
	err := s.store.WithSnapshot(ctx, func(ctx context.Context, tx accounting.Tx) error {
		items, total, err := tx.ListAccounts(ctx, filter)
		if err != nil {
			return err
		}
		page = AccountPage{Items: items, Pagination: shared.NewPagination(filter.Page, filter.PerPage, total)}
		return nil
	})
	if err != nil {
		return AccountPage{}, accounting.AsPersistence("list accounts", err)
	}
	return page, nil
}

// Update changes the name, subtype or parent of an account.
func (s *Service) Update(ctx context.Context, input UpdateAccountInput) (accounting.Account, error) {
	var updated accounting.Account
	err := s.store.WithTx(ctx, func(ctx context.Context, tx accounting.Tx) error {
		current, err := tx.GetAccount(ctx, input.ID)
		if err != nil {
			return err
		}
		var errs accounting.ValidationErrors
		if input.Type != nil && *input.Type != current.Type {
			errs = append(errs, accounting.NewValidationError("type", "account type cannot change after creation"))
		}
		if input.Name != nil {
			name := strings.TrimSpace(*input.Name)
			if name == "" {
				errs = append(errs, accounting.NewValidationError("name", "is required"))
			}
			current.Name = name
		}
		if input.Subtype != nil {
			subtype, err := accounting.ParseAccountSubtype(string(*input.Subtype))
			switch {
			case err != nil:
				errs = append(errs, accounting.NewValidationError("subtype", err.(*accounting.ValidationError).Reason))
			case subtype != accounting.AccountSubtypeNone && current.Type != accounting.AccountTypeAsset:
				errs = append(errs, accounting.NewValidationError("subtype", "only asset accounts carry a subtype"))
			default:
				current.Subtype = subtype
			}
		}
		if input.ParentID != nil {
			if err := checkParent(ctx, tx, current, *input.ParentID); err != nil {
				errs = append(errs, err)
			} else {
				current.ParentID = input.ParentID
			}
		}
		if len(errs) > 0 {
			return errs
		}
		if err := tx.UpdateAccount(ctx, current); err != nil {
			return err
		}
		updated = current
		return nil
	})
	if err != nil {
		return accounting.Account{}, accounting.AsPersistence("update account", err)
	}
	s.invalidate(ctx)
	s.record(ctx, input.ActorID, "account.update", updated.ID, map[string]any{"name": updated.Name})
	return updated, nil
}

func checkParent(ctx context.Context, tx accounting.Tx, account accounting.Account, parentID int64) *accounting.ValidationError {
	if parentID == account.ID {
		return accounting.NewValidationError("parent_id", "account cannot be its own parent")
	}
	cursor := parentID
	for depth := 0; cursor != 0; depth++ {
		if depth > 64 {
			return accounting.NewValidationError("parent_id", "account hierarchy is too deep")
		}
		parent, err := tx.GetAccount(ctx, cursor)
		if err != nil {
			return accounting.NewValidationError("parent_id", "parent account does not exist")
		}
		if parent.ID == account.ID {
			return accounting.NewValidationError("parent_id", "parent would create a cycle")
		}
		if cursor == parentID && parent.Type != account.Type {
			return accounting.NewValidationError("parent_id", fmt.Sprintf("parent is %s, child must share the type", parent.Type))
		}
		if parent.ParentID == nil {
			break
		}
		cursor = *parent.ParentID
	}
	return nil
}

// Deactivate stops an account from receiving new postings. Accounts are never deleted.
func (s *Service) Deactivate(ctx context.Context, id int64, actorID string) (accounting.Account, error) {
	return s.setActive(ctx, id, false, actorID)
}

// Reactivate re-enables a deactivated account.
func (s *Service) Reactivate(ctx context.Context, id int64, actorID string) (accounting.Account, error) {
	return s.setActive(ctx, id, true, actorID)
}

func (s *Service) setActive(ctx context.Context, id int64, active bool, actorID string) (accounting.Account, error) {
	var updated accounting.Account
	err := s.store.WithTx(ctx, func(ctx context.Context, tx accounting.Tx) error {
		current, err := tx.GetAccount(ctx, id)
		if err != nil {
			return err
		}
		if current.IsActive == active {
			updated = current
			return nil
		}
		current.IsActive = active
		if err := tx.UpdateAccount(ctx, current); err != nil {
			return err
		}
		updated = current
		return nil
	})
	if err != nil {
		return accounting.Account{}, accounting.AsPersistence("set account active", err)
	}
	s.invalidate(ctx)
	action := "account.deactivate"
	if active {
		action = "account.reactivate"
	}
	s.record(ctx, actorID, action, updated.ID, nil)
	return updated, nil
}

// RegisterFloat records a provider float account. Its balance is owned by the provider.
func (s *Service) RegisterFloat(ctx context.Context, float accounting.FloatAccount) error {
	if strings.TrimSpace(float.ID) == "" {
		return accounting.NewValidationError("float_account_id", "is required")
	}
	if strings.TrimSpace(float.BranchID) == "" {
		return accounting.NewValidationError("branch_id", "is required")
	}
	err := s.store.WithTx(ctx, func(ctx context.Context, tx accounting.Tx) error {
		return tx.UpsertFloatAccount(ctx, float)
	})
	return accounting.AsPersistence("register float account", err)
}

// ListFloats returns the float accounts of a branch.
func (s *Service) ListFloats(ctx context.Context, branchID string) ([]accounting.FloatAccount, error) {
	var floats []accounting.FloatAccount
	err := s.store.WithSnapshot(ctx, func(ctx context.Context, tx accounting.Tx) error {
		var err error
		floats, err = tx.ListFloatAccounts(ctx, branchID)
		return err
	})
	if err != nil {
		return nil, accounting.AsPersistence("list float accounts", err)
	}
	return floats, nil
}

func (s *Service) invalidate(ctx context.Context) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Invalidate(ctx); err != nil {
		s.logger.Warn("invalidate mapping cache", slog.Any("error", err))
	}
}

func (s *Service) record(ctx context.Context, actorID, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "gl_account",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
		At:       s.now(),
	}); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}
