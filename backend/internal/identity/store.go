package identity

import (
	"context"
	"time"
)

// UserStore persists principals
type UserStore interface {
	Create(ctx context.Context, p *Principal) error
	FindByID(ctx context.Context, id string) (*Principal, error)
	FindByUserName(ctx context.Context, userName string) (*Principal, error)
	FindByEmail(ctx context.Context, email string) (*Principal, error)
	Update(ctx context.Context, p *Principal) error
	Delete(ctx context.Context, p *Principal) error
}

// RoleStore manages role membership
type RoleStore interface {
	AddRole(ctx context.Context, p *Principal, roleName string) error
	ListRoles(ctx context.Context, p *Principal) ([]string, error)
	IsInRole(ctx context.Context, p *Principal, roleName string) (bool, error)
	RemoveRole(ctx context.Context, p *Principal, roleName string) error
}

// ClaimStore exposes claims about a principal
type ClaimStore interface {
	AddClaim(ctx context.Context, p *Principal, claim Claim) error
	ListClaims(ctx context.Context, p *Principal) ([]Claim, error)
	RemoveClaim(ctx context.Context, p *Principal, claim Claim) error
}

// LoginStore manages external logins
type LoginStore interface {
	AddExternalLogin(ctx context.Context, p *Principal, login LoginInfo) error
	FindByExternalLogin(ctx context.Context, login LoginInfo) (*Principal, error)
	ListExternalLogins(ctx context.Context, p *Principal) ([]LoginInfo, error)
	RemoveExternalLogin(ctx context.Context, p *Principal, login LoginInfo) error
}

// CredentialStore persists password, contact, two-factor and lockout state.
// Getters read the supplied principal; setters update it and then persist.
type CredentialStore interface {
	PasswordHash(p *Principal) string
	HasPassword(p *Principal) bool
	SetPasswordHash(ctx context.Context, p *Principal, hash string) error

	Email(p *Principal) string
	EmailConfirmed(p *Principal) bool
	SetEmail(ctx context.Context, p *Principal, email string) error
	SetEmailConfirmed(ctx context.Context, p *Principal, confirmed bool) error

	PhoneNumber(p *Principal) string
	PhoneNumberConfirmed(p *Principal) bool
	SetPhoneNumber(ctx context.Context, p *Principal, phone string) error
	SetPhoneNumberConfirmed(ctx context.Context, p *Principal, confirmed bool) error

	TwoFactorEnabled(p *Principal) bool
	SetTwoFactorEnabled(ctx context.Context, p *Principal, enabled bool) error

	AccessFailedCount(p *Principal) int
	IncrementAccessFailedCount(ctx context.Context, p *Principal) (int, error)
	ResetAccessFailedCount(ctx context.Context, p *Principal) error

	LockoutEnabled(p *Principal) bool
	SetLockoutEnabled(ctx context.Context, p *Principal, enabled bool) error
	LockoutEnd(p *Principal) time.Time
	SetLockoutEnd(ctx context.Context, p *Principal, end time.Time) error

	RecordLogin(ctx context.Context, p *Principal) error
}

// Store is the full contract a hosting identity framework expects
type Store interface {
	UserStore
	RoleStore
	ClaimStore
	LoginStore
	CredentialStore
}
