package identity

import (
	"context"
	"strings"

	"go.uber.org/zap"

	apperrors "graph-identity/backend/pkg/errors"
)

// SignInStatus is the outcome of a password sign-in attempt
type SignInStatus string

const (
	SignInSucceeded         SignInStatus = "succeeded"
	SignInRequiresTwoFactor SignInStatus = "requires_two_factor"
	SignInLockedOut         SignInStatus = "locked_out"
	SignInFailed            SignInStatus = "failed"
)

// SignInResult carries the status and, unless the attempt failed, the principal
type SignInResult struct {
	Status    SignInStatus
	Principal *Principal
}

// PasswordSignIn checks secret for the named principal and drives the
// lockout state: a wrong secret counts as a failed attempt, a right one
// clears the counter. A principal with two-factor enabled stops at
// SignInRequiresTwoFactor and its last login is not recorded.
// An unknown user name returns a NotFound error.
func (m *Manager) PasswordSignIn(ctx context.Context, userName, secret string) (SignInResult, error) {
	if strings.TrimSpace(secret) == "" {
		return SignInResult{}, apperrors.NewInvalidArgument("secret", "must not be blank")
	}

	p, err := m.store.FindByUserName(ctx, userName)
	if err != nil {
		return SignInResult{}, err
	}

	if m.IsLockedOut(p) {
		m.logger.Info("Sign-in rejected, principal locked out", zap.String("principal_id", p.ID))
		return SignInResult{Status: SignInLockedOut, Principal: p}, nil
	}

	if !m.CheckPassword(p, secret) {
		if err := m.AccessFailed(ctx, p); err != nil {
			return SignInResult{}, err
		}
		if m.IsLockedOut(p) {
			return SignInResult{Status: SignInLockedOut, Principal: p}, nil
		}
		m.logger.Info("Sign-in failed",
			zap.String("principal_id", p.ID),
			zap.Int("failed_logins", p.FailedLoginCount),
		)
		return SignInResult{Status: SignInFailed}, nil
	}

	if err := m.ResetAccessFailed(ctx, p); err != nil {
		return SignInResult{}, err
	}
	if m.store.TwoFactorEnabled(p) {
		return SignInResult{Status: SignInRequiresTwoFactor, Principal: p}, nil
	}
	if err := m.store.RecordLogin(ctx, p); err != nil {
		return SignInResult{}, err
	}

	m.logger.Info("Principal signed in", zap.String("principal_id", p.ID))
	return SignInResult{Status: SignInSucceeded, Principal: p}, nil
}
