package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"checklists/api/internal/access"
	"checklists/api/internal/audit"
	"checklists/api/internal/lifecycle"
	"checklists/api/internal/metrics"
	"checklists/api/internal/ordering"
	"checklists/api/internal/quota"
	"checklists/api/internal/ratelimit"
	"checklists/api/internal/rbac"
	"checklists/api/internal/store"
	"checklists/api/internal/util"
)

type dataStore interface {
	WithTx(ctx context.Context, fn func(store.Tx) error) error
	View(ctx context.Context, fn func(store.Tx) error) error
	EnsureUser(ctx context.Context, email, name string, at time.Time) (store.User, bool, error)
	AppendAudit(ctx context.Context, entry store.AuditEntry) error
	ListAudit(ctx context.Context, filter store.AuditFilter) ([]store.AuditEntry, int, error)
	Ping(ctx context.Context) error
}

var (
	_ dataStore = (*store.PostgresStore)(nil)
	_ dataStore = (*store.MemoryStore)(nil)
)

// Deps wires a Service. Only Store is required.
type Deps struct {
	Store   dataStore
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	Limiter *ratelimit.Limiter
	Quotas  quota.Limits
	Now     func() time.Time
	// NewShareToken defaults to util.NewShareToken.
	NewShareToken func() (string, error)
}

type Service struct {
	store    dataStore
	logger   *zap.Logger
	metrics  *metrics.Metrics
	limiter  *ratelimit.Limiter
	quotas   quota.Limits
	recorder *audit.Recorder
	validate *inputValidator
	now      func() time.Time
	newToken func() (string, error)
}

func New(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	quotas := deps.Quotas
	if quotas == nil {
		quotas = quota.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	newToken := deps.NewShareToken
	if newToken == nil {
		newToken = util.NewShareToken
	}
	return &Service{
		store:    deps.Store,
		logger:   logger,
		metrics:  deps.Metrics,
		limiter:  deps.Limiter,
		quotas:   quotas,
		recorder: audit.NewRecorder(deps.Store, logger, deps.Metrics),
		validate: newValidator(),
		now:      func() time.Time { return now().UTC() },
		newToken: newToken,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Begin loads the acting user and returns the per-request Caller. Unknown
// and deactivated users are rejected.
func (s *Service) Begin(ctx context.Context, userID int64, origin access.Origin) (*access.Caller, error) {
	var user store.User
	err := s.store.View(ctx, func(tx store.Tx) error {
		var err error
		user, err = tx.GetUser(ctx, userID)
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, unauthorized()
	}
	if err != nil {
		return nil, s.fail("load caller", err)
	}
	if !user.Active {
		return nil, unauthorized()
	}
	return access.NewCaller(user, origin), nil
}

type EnsureUserInput struct {
	Email string `json:"email" validate:"required,email,max=255"`
	Name  string `json:"name" validate:"max=255"`
}

// EnsureUser is the hand-off from the external sign-in layer. It creates the
// user on first sight and refreshes last_login afterwards.
func (s *Service) EnsureUser(ctx context.Context, origin access.Origin, input EnsureUserInput) (store.User, error) {
	input.Email = normalizeEmail(input.Email)
	input.Name = strings.TrimSpace(input.Name)
	if err := s.check(input); err != nil {
		return store.User{}, s.fail("ensure user", err)
	}

	user, created, err := s.store.EnsureUser(ctx, input.Email, input.Name, s.now())
	if err != nil {
		return store.User{}, s.fail("ensure user", err)
	}
	if !user.Active {
		return store.User{}, s.fail("ensure user", forbidden("Account is deactivated"))
	}
	if created {
		userID := user.ID
		s.recorder.Record(ctx, origin, audit.UserCreated, &userID, map[string]any{
			"email": user.Email,
			"name":  user.Name,
		})
	}
	return user, nil
}

func (s *Service) allow(ctx context.Context, caller *access.Caller, action ratelimit.Action) error {
	if err := s.limiter.Allow(ctx, action, caller.UserID); err != nil {
		return s.fail(string(action), err)
	}
	return nil
}

// fail turns any error from an operation into the DomainError the caller
// sees. Storage errors are logged with their cause and masked.
func (s *Service) fail(op string, err error) error {
	if err == nil {
		return nil
	}
	mapped := s.classify(err)
	if mapped.Kind() == KindStorageFailure {
		s.logger.Error("storage failure", zap.String("op", op), zap.Error(err))
	}
	s.metrics.Denied(mapped.Code)
	return mapped
}

func (s *Service) classify(err error) *DomainError {
	var (
		domainErr *DomainError
		quotaErr  *quota.ExceededError
		limitErr  *ratelimit.LimitedError
	)
	switch {
	case errors.As(err, &domainErr):
		return domainErr
	case errors.Is(err, access.ErrNoStanding):
		return notFound("Checklist not found")
	case errors.Is(err, access.ErrInsufficientRole):
		return forbidden("You do not have permission to do that")
	case errors.As(err, &quotaErr):
		return domainError(http.StatusConflict, KindQuotaExceeded, quotaErr.Error(), map[string]any{
			"resource": string(quotaErr.Resource),
			"limit":    quotaErr.Limit,
			"current":  quotaErr.Current,
		})
	case errors.As(err, &limitErr):
		return domainError(http.StatusTooManyRequests, KindRateLimited, "Too many requests, slow down", map[string]any{
			"action":         string(limitErr.Action),
			"limit":          limitErr.Limit,
			"window_seconds": int(limitErr.Window.Seconds()),
		})
	case errors.Is(err, ordering.ErrInvalidPermutation):
		return invalidInput(err.Error(), nil)
	case errors.Is(err, sql.ErrNoRows):
		return notFound("Not found")
	case errors.Is(err, store.ErrDuplicate):
		return conflict("Already exists")
	default:
		return storageFailure()
	}
}

// requireChecklist checks caller's standing for action and returns the
// checklist. Writers lock the row first and resolve their role under the
// lock. Trashed checklists behave as missing.
func (s *Service) requireChecklist(ctx context.Context, tx store.Tx, caller *access.Caller, checklistID int64, action rbac.Action) (store.Checklist, rbac.Role, error) {
	var (
		checklist store.Checklist
		role      rbac.Role
		err       error
	)
	if action == rbac.ActionRead {
		if role, err = caller.Require(ctx, tx, checklistID, action); err != nil {
			return store.Checklist{}, role, err
		}
		checklist, err = tx.GetChecklist(ctx, checklistID)
	} else {
		checklist, err = tx.LockChecklist(ctx, checklistID)
		if err == nil {
			role, err = caller.Require(ctx, tx, checklistID, action)
			if err != nil {
				return store.Checklist{}, role, err
			}
		}
	}
	if errors.Is(err, sql.ErrNoRows) {
		return store.Checklist{}, role, notFound("Checklist not found")
	}
	if err != nil {
		return store.Checklist{}, role, err
	}
	if lifecycle.StateOf(checklist) != lifecycle.Active {
		return store.Checklist{}, role, notFound("Checklist not found")
	}
	return checklist, role, nil
}

// requireSection resolves a section and checks standing on its checklist.
// The first read only finds the checklist; the returned section is read
// again once the checklist row is locked.
func (s *Service) requireSection(ctx context.Context, tx store.Tx, caller *access.Caller, sectionID int64, action rbac.Action) (store.Section, store.Checklist, error) {
	section, err := getSection(ctx, tx, sectionID)
	if err != nil {
		return store.Section{}, store.Checklist{}, err
	}
	checklist, _, err := s.requireChecklist(ctx, tx, caller, section.ChecklistID, action)
	if err != nil {
		return store.Section{}, store.Checklist{}, err
	}
	if action != rbac.ActionRead {
		if section, err = getSection(ctx, tx, sectionID); err != nil {
			return store.Section{}, store.Checklist{}, err
		}
	}
	return section, checklist, nil
}

func getSection(ctx context.Context, tx store.Tx, sectionID int64) (store.Section, error) {
	section, err := tx.GetSection(ctx, sectionID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Section{}, notFound("Section not found")
	}
	return section, err
}

func (s *Service) requireItem(ctx context.Context, tx store.Tx, caller *access.Caller, itemID int64, action rbac.Action) (store.Item, store.Checklist, error) {
	item, err := getItem(ctx, tx, itemID)
	if err != nil {
		return store.Item{}, store.Checklist{}, err
	}
	checklist, _, err := s.requireChecklist(ctx, tx, caller, item.ChecklistID, action)
	if err != nil {
		return store.Item{}, store.Checklist{}, err
	}
	if action != rbac.ActionRead {
		if item, err = getItem(ctx, tx, itemID); err != nil {
			return store.Item{}, store.Checklist{}, err
		}
	}
	return item, checklist, nil
}

func getItem(ctx context.Context, tx store.Tx, itemID int64) (store.Item, error) {
	item, err := tx.GetItem(ctx, itemID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Item{}, notFound("Item not found")
	}
	return item, err
}

func requireAdmin(caller *access.Caller) error {
	if caller == nil || !rbac.Can(caller.SystemRole(), rbac.ActionAdminister) {
		return forbidden("Administrator access required")
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func excerpt(text string) string {
	return audit.Truncate(text, 100)
}
