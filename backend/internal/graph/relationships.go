package graph

import (
	"context"

	"go.uber.org/zap"

	"graph-identity/backend/internal/identity"
	apperrors "graph-identity/backend/pkg/errors"
)

// ============================================================================
// Role membership
// ============================================================================

// AddRole links the principal to the role, creating the role node on first
// use. Adding the same role twice leaves a single edge.
func (s *Store) AddRole(ctx context.Context, p *identity.Principal, roleName string) error {
	if err := requirePrincipal(p); err != nil {
		return err
	}
	if isBlank(roleName) {
		return apperrors.NewInvalidArgument("roleName", "must not be blank")
	}

	rows, err := s.run(ctx, s.q.AddRole(p.ID, roleName))
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return apperrors.NewNotFound(entityPrincipal, p.ID)
	}

	s.logger.Info("Role added",
		zap.String("principal_id", p.ID),
		zap.String("role", roleName),
	)
	return nil
}

// ListRoles returns the principal's role names, sorted
func (s *Store) ListRoles(ctx context.Context, p *identity.Principal) ([]string, error) {
	if err := requirePrincipal(p); err != nil {
		return nil, err
	}

	rows, err := s.run(ctx, s.q.ListRoles(p.ID))
	if err != nil {
		return nil, err
	}

	roles := make([]string, 0, len(rows))
	for _, row := range rows {
		if name := getStringFromMap(row, "name", ""); name != "" {
			roles = append(roles, name)
		}
	}
	return roles, nil
}

// IsInRole reports whether the principal has the role. Only available with
// extended operations.
func (s *Store) IsInRole(ctx context.Context, p *identity.Principal, roleName string) (bool, error) {
	if !s.extended {
		return false, apperrors.NewUnsupported("IsInRole")
	}
	if err := requirePrincipal(p); err != nil {
		return false, err
	}
	if isBlank(roleName) {
		return false, apperrors.NewInvalidArgument("roleName", "must not be blank")
	}

	rows, err := s.run(ctx, s.q.HasRole(p.ID, roleName))
	if err != nil {
		return false, err
	}
	if len(rows) == 0 {
		return false, nil
	}
	return getBoolFromMap(rows[0], "inRole", false), nil
}

// RemoveRole unlinks the principal from the role. Removing a role the
// principal does not hold is a no-op. Only available with extended operations.
func (s *Store) RemoveRole(ctx context.Context, p *identity.Principal, roleName string) error {
	if !s.extended {
		return apperrors.NewUnsupported("RemoveRole")
	}
	if err := requirePrincipal(p); err != nil {
		return err
	}
	if isBlank(roleName) {
		return apperrors.NewInvalidArgument("roleName", "must not be blank")
	}

	if _, err := s.run(ctx, s.q.RemoveRole(p.ID, roleName)); err != nil {
		return err
	}

	s.logger.Info("Role removed",
		zap.String("principal_id", p.ID),
		zap.String("role", roleName),
	)
	return nil
}

// ============================================================================
// External logins
// ============================================================================

// AddExternalLogin binds a provider/key pair to the principal. The pair may
// belong to one principal only.
func (s *Store) AddExternalLogin(ctx context.Context, p *identity.Principal, login identity.LoginInfo) error {
	if err := requirePrincipal(p); err != nil {
		return err
	}
	if err := requireLogin(login); err != nil {
		return err
	}

	rows, err := s.run(ctx, s.q.AddExternalLogin(p.ID, login.Provider, login.ProviderKey))
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return apperrors.NewNotFound(entityPrincipal, p.ID)
	}
	if getInt64FromMap(rows[0], "claimedElsewhere", 0) > 0 {
		return apperrors.NewAlreadyExists("externalLogin", login.Provider+"/"+login.ProviderKey)
	}

	s.logger.Info("External login added",
		zap.String("principal_id", p.ID),
		zap.String("provider", login.Provider),
	)
	return nil
}

// FindByExternalLogin returns the principal bound to the provider/key pair
func (s *Store) FindByExternalLogin(ctx context.Context, login identity.LoginInfo) (*identity.Principal, error) {
	if err := requireLogin(login); err != nil {
		return nil, err
	}
	return s.findOne(ctx,
		s.q.FindByExternalLogin(login.Provider, login.ProviderKey),
		"externalLogin="+login.Provider+"/"+login.ProviderKey,
	)
}

// ListExternalLogins returns every provider/key pair bound to the principal
func (s *Store) ListExternalLogins(ctx context.Context, p *identity.Principal) ([]identity.LoginInfo, error) {
	if err := requirePrincipal(p); err != nil {
		return nil, err
	}

	rows, err := s.run(ctx, s.q.ListExternalLogins(p.ID))
	if err != nil {
		return nil, err
	}

	logins := make([]identity.LoginInfo, 0, len(rows))
	for _, row := range rows {
		logins = append(logins, identity.LoginInfo{
			Provider:    getStringFromMap(row, propLoginProvider, ""),
			ProviderKey: getStringFromMap(row, propProviderKey, ""),
		})
	}
	return logins, nil
}

// RemoveExternalLogin deletes the binding and its login node. Only available
// with extended operations.
func (s *Store) RemoveExternalLogin(ctx context.Context, p *identity.Principal, login identity.LoginInfo) error {
	if !s.extended {
		return apperrors.NewUnsupported("RemoveExternalLogin")
	}
	if err := requirePrincipal(p); err != nil {
		return err
	}
	if err := requireLogin(login); err != nil {
		return err
	}

	if _, err := s.run(ctx, s.q.RemoveExternalLogin(p.ID, login.Provider, login.ProviderKey)); err != nil {
		return err
	}

	s.logger.Info("External login removed",
		zap.String("principal_id", p.ID),
		zap.String("provider", login.Provider),
	)
	return nil
}

func requireLogin(login identity.LoginInfo) error {
	if isBlank(login.Provider) {
		return apperrors.NewInvalidArgument("provider", "must not be blank")
	}
	if isBlank(login.ProviderKey) {
		return apperrors.NewInvalidArgument("providerKey", "must not be blank")
	}
	return nil
}

// ============================================================================
// Claims
// ============================================================================

// AddClaim is not supported: claims are not persisted
func (s *Store) AddClaim(ctx context.Context, p *identity.Principal, claim identity.Claim) error {
	return apperrors.NewUnsupported("AddClaim")
}

// RemoveClaim is not supported: claims are not persisted
func (s *Store) RemoveClaim(ctx context.Context, p *identity.Principal, claim identity.Claim) error {
	return apperrors.NewUnsupported("RemoveClaim")
}

// ListClaims returns the single email claim derived from the principal
func (s *Store) ListClaims(ctx context.Context, p *identity.Principal) ([]identity.Claim, error) {
	if p == nil {
		return nil, apperrors.NewInvalidArgument("principal", "must not be nil")
	}
	return []identity.Claim{{Type: identity.ClaimTypeEmail, Value: p.Email}}, nil
}
