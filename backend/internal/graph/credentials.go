package graph

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"graph-identity/backend/internal/identity"
	apperrors "graph-identity/backend/pkg/errors"
)

// Getters read the supplied principal and never touch the graph; a nil
// principal reads as the zero value. Setters change the in-memory field and
// then write only that property, so concurrent setters on different fields
// do not overwrite each other.

// PasswordHash returns the stored password hash
func (s *Store) PasswordHash(p *identity.Principal) string {
	if p == nil {
		return ""
	}
	return p.PasswordHash
}

// HasPassword reports whether a password hash is set
func (s *Store) HasPassword(p *identity.Principal) bool { return s.PasswordHash(p) != "" }

// SetPasswordHash sets and persists the password hash
func (s *Store) SetPasswordHash(ctx context.Context, p *identity.Principal, hash string) error {
	if p == nil {
		return apperrors.NewInvalidArgument("principal", "must not be nil")
	}
	p.PasswordHash = hash
	return s.patch(ctx, p, map[string]any{propPasswordHash: nullableString(hash)})
}

// Email returns the stored email
func (s *Store) Email(p *identity.Principal) string {
	if p == nil {
		return ""
	}
	return p.Email
}

// EmailConfirmed reports whether the email was verified
func (s *Store) EmailConfirmed(p *identity.Principal) bool { return p != nil && p.EmailConfirmed }

// SetEmail stores a new email, lowercased. The write is skipped with an
// AlreadyExists error when another principal holds the address.
func (s *Store) SetEmail(ctx context.Context, p *identity.Principal, email string) error {
	if err := requirePrincipal(p); err != nil {
		return err
	}
	if isBlank(email) {
		return apperrors.NewInvalidArgument("email", "must not be blank")
	}

	email = identity.NormalizeKey(email)
	rows, err := s.run(ctx, s.q.PatchEmail(p.ID, email))
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return apperrors.NewNotFound(entityPrincipal, p.ID)
	}
	if getInt64FromMap(rows[0], "emailTaken", 0) > 0 {
		return apperrors.NewAlreadyExists(propEmail, email)
	}
	p.Email = email
	return nil
}

// SetEmailConfirmed sets and persists the email verification flag
func (s *Store) SetEmailConfirmed(ctx context.Context, p *identity.Principal, confirmed bool) error {
	if p == nil {
		return apperrors.NewInvalidArgument("principal", "must not be nil")
	}
	p.EmailConfirmed = confirmed
	return s.patch(ctx, p, map[string]any{propEmailConfirmed: confirmed})
}

// PhoneNumber returns the stored phone number
func (s *Store) PhoneNumber(p *identity.Principal) string {
	if p == nil {
		return ""
	}
	return p.PhoneNumber
}

// PhoneNumberConfirmed reports whether the phone number was verified
func (s *Store) PhoneNumberConfirmed(p *identity.Principal) bool {
	return p != nil && p.PhoneNumberConfirmed
}

// SetPhoneNumber sets and persists the phone number
func (s *Store) SetPhoneNumber(ctx context.Context, p *identity.Principal, phone string) error {
	if p == nil {
		return apperrors.NewInvalidArgument("principal", "must not be nil")
	}
	p.PhoneNumber = phone
	return s.patch(ctx, p, map[string]any{propPhoneNumber: nullableString(phone)})
}

// SetPhoneNumberConfirmed sets and persists the phone verification flag
func (s *Store) SetPhoneNumberConfirmed(ctx context.Context, p *identity.Principal, confirmed bool) error {
	if p == nil {
		return apperrors.NewInvalidArgument("principal", "must not be nil")
	}
	p.PhoneNumberConfirmed = confirmed
	return s.patch(ctx, p, map[string]any{propPhoneNumberConfirmed: confirmed})
}

// TwoFactorEnabled reports whether two-factor authentication is on
func (s *Store) TwoFactorEnabled(p *identity.Principal) bool { return p != nil && p.TwoFactorEnabled }

// SetTwoFactorEnabled sets and persists the two-factor flag
func (s *Store) SetTwoFactorEnabled(ctx context.Context, p *identity.Principal, enabled bool) error {
	if p == nil {
		return apperrors.NewInvalidArgument("principal", "must not be nil")
	}
	p.TwoFactorEnabled = enabled
	return s.patch(ctx, p, map[string]any{propTwoFactorEnabled: enabled})
}

// AccessFailedCount returns the failed login counter
func (s *Store) AccessFailedCount(p *identity.Principal) int {
	if p == nil {
		return 0
	}
	return p.FailedLoginCount
}

// IncrementAccessFailedCount adds one to the stored counter inside the
// engine and copies the new value into p
func (s *Store) IncrementAccessFailedCount(ctx context.Context, p *identity.Principal) (int, error) {
	if err := requirePrincipal(p); err != nil {
		return 0, err
	}

	stmt := s.q.IncrementFailedLogins(p.ID)
	rows, err := s.run(ctx, stmt)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, apperrors.NewNotFound(entityPrincipal, p.ID)
	}
	if len(rows) > 1 {
		return 0, apperrors.NewQueryFailed(stmt.Name, fmt.Errorf("expected 1 row, got %d", len(rows)))
	}

	p.FailedLoginCount = int(getInt64FromMap(rows[0], propFailedLoginCount, 0))
	s.logger.Debug("Failed login recorded",
		zap.String("principal_id", p.ID),
		zap.Int("failed_logins", p.FailedLoginCount),
	)
	return p.FailedLoginCount, nil
}

// ResetAccessFailedCount sets the failed login counter to zero
func (s *Store) ResetAccessFailedCount(ctx context.Context, p *identity.Principal) error {
	if p == nil {
		return apperrors.NewInvalidArgument("principal", "must not be nil")
	}
	p.FailedLoginCount = 0
	return s.patch(ctx, p, map[string]any{propFailedLoginCount: int64(0)})
}

// LockoutEnabled reports whether the account can be locked out
func (s *Store) LockoutEnabled(p *identity.Principal) bool { return p != nil && p.LockoutEnabled }

// SetLockoutEnabled sets and persists the lockout flag
func (s *Store) SetLockoutEnabled(ctx context.Context, p *identity.Principal, enabled bool) error {
	if p == nil {
		return apperrors.NewInvalidArgument("principal", "must not be nil")
	}
	p.LockoutEnabled = enabled
	return s.patch(ctx, p, map[string]any{propLockoutEnabled: enabled})
}

// LockoutEnd returns when the current lockout expires; zero if never locked
func (s *Store) LockoutEnd(p *identity.Principal) time.Time {
	if p == nil {
		return time.Time{}
	}
	return p.LockoutEnd
}

// SetLockoutEnd sets and persists the lockout expiry. A zero time clears it.
func (s *Store) SetLockoutEnd(ctx context.Context, p *identity.Principal, end time.Time) error {
	if p == nil {
		return apperrors.NewInvalidArgument("principal", "must not be nil")
	}
	if !end.IsZero() {
		end = end.UTC()
	}
	p.LockoutEnd = end
	return s.patch(ctx, p, map[string]any{propLockoutEnd: nullableTime(end)})
}

// RecordLogin refreshes LastLogin after a successful sign-in
func (s *Store) RecordLogin(ctx context.Context, p *identity.Principal) error {
	if p == nil {
		return apperrors.NewInvalidArgument("principal", "must not be nil")
	}
	p.LastLogin = s.now().UTC()
	return s.patch(ctx, p, map[string]any{propLastLogin: p.LastLogin})
}

func (s *Store) patch(ctx context.Context, p *identity.Principal, fields map[string]any) error {
	if err := requirePrincipal(p); err != nil {
		return err
	}

	rows, err := s.run(ctx, s.q.PatchPrincipal(p.ID, fields))
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return apperrors.NewNotFound(entityPrincipal, p.ID)
	}
	return nil
}
