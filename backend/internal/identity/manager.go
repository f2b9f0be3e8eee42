package identity

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	apperrors "graph-identity/backend/pkg/errors"
	"graph-identity/backend/pkg/logger"
)

// LockoutPolicy controls when repeated failures lock an account
type LockoutPolicy struct {
	EnabledByDefault  bool
	Duration          time.Duration
	MaxFailedAttempts int
}

// Manager applies account policy (password rules, hashing, lockout) on top
// of a Store.
type Manager struct {
	store    Store
	hasher   PasswordHasher
	password PasswordPolicy
	lockout  LockoutPolicy
	validate *validator.Validate
	logger   *zap.Logger
	now      func() time.Time
}

// ManagerOption customizes a Manager
type ManagerOption func(*Manager)

// WithHasher replaces the default bcrypt hasher
func WithHasher(h PasswordHasher) ManagerOption {
	return func(m *Manager) { m.hasher = h }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a new account manager
func NewManager(store Store, password PasswordPolicy, lockout LockoutPolicy, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:    store,
		hasher:   BcryptHasher{},
		password: password,
		lockout:  lockout,
		validate: validator.New(),
		logger:   logger.Named("identity"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Store returns the underlying store
func (m *Manager) Store() Store {
	return m.store
}

// Create validates the principal and secret, hashes the secret and persists
// the principal. p is sanitized in place.
func (m *Manager) Create(ctx context.Context, p *Principal, secret string) error {
	if p == nil {
		return apperrors.NewInvalidArgument("principal", "must not be nil")
	}
	if strings.TrimSpace(secret) == "" {
		return apperrors.NewInvalidArgument("secret", "must not be blank")
	}
	if err := m.validate.Struct(p); err != nil {
		return apperrors.NewInvalidArgument("principal", err.Error())
	}
	if problems := m.password.Check(secret); len(problems) > 0 {
		return apperrors.NewInvalidArgument("secret", joinProblems(problems))
	}

	hash, err := m.hasher.Hash(secret)
	if err != nil {
		return err
	}
	p.PasswordHash = hash
	p.LockoutEnabled = m.lockout.EnabledByDefault

	if err := m.store.Create(ctx, p); err != nil {
		return err
	}

	m.logger.Info("Principal registered",
		zap.String("principal_id", p.ID),
		zap.String("user_name", p.UserName),
	)
	return nil
}

// CheckPassword reports whether secret matches the stored hash
func (m *Manager) CheckPassword(p *Principal, secret string) bool {
	if p == nil || !m.store.HasPassword(p) {
		return false
	}
	return m.hasher.Verify(m.store.PasswordHash(p), secret)
}

// ChangePassword replaces the secret after verifying the current one
func (m *Manager) ChangePassword(ctx context.Context, p *Principal, current, next string) error {
	if p == nil {
		return apperrors.NewInvalidArgument("principal", "must not be nil")
	}
	if !m.CheckPassword(p, current) {
		return apperrors.NewInvalidArgument("current", "password mismatch")
	}
	if problems := m.password.Check(next); len(problems) > 0 {
		return apperrors.NewInvalidArgument("secret", joinProblems(problems))
	}
	hash, err := m.hasher.Hash(next)
	if err != nil {
		return err
	}
	return m.store.SetPasswordHash(ctx, p, hash)
}

// IsLockedOut reports whether the principal is currently locked out
func (m *Manager) IsLockedOut(p *Principal) bool {
	if p == nil || !m.store.LockoutEnabled(p) {
		return false
	}
	return m.store.LockoutEnd(p).After(m.now())
}

// AccessFailed records a failed login. Reaching the configured maximum locks
// the account for the lockout duration and resets the counter.
func (m *Manager) AccessFailed(ctx context.Context, p *Principal) error {
	if p == nil {
		return apperrors.NewInvalidArgument("principal", "must not be nil")
	}
	count, err := m.store.IncrementAccessFailedCount(ctx, p)
	if err != nil {
		return err
	}
	if !m.store.LockoutEnabled(p) || count < m.lockout.MaxFailedAttempts {
		return nil
	}

	end := m.now().Add(m.lockout.Duration).UTC()
	if err := m.store.SetLockoutEnd(ctx, p, end); err != nil {
		return err
	}
	m.logger.Warn("Principal locked out",
		zap.String("principal_id", p.ID),
		zap.Int("failed_logins", count),
		zap.Time("lockout_end", end),
	)
	return m.store.ResetAccessFailedCount(ctx, p)
}

// ResetAccessFailed clears the failed login counter
func (m *Manager) ResetAccessFailed(ctx context.Context, p *Principal) error {
	if p == nil {
		return apperrors.NewInvalidArgument("principal", "must not be nil")
	}
	return m.store.ResetAccessFailedCount(ctx, p)
}
