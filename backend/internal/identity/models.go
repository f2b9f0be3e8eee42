package identity

import (
	"strings"
	"time"
)

// ClaimTypeEmail is the claim type synthesized from a principal's email
const ClaimTypeEmail = "http://schemas.xmlsoap.org/ws/2005/05/identity/claims/emailaddress"

// Principal is a persisted user account
type Principal struct {
	ID                   string    `json:"id"`
	UserName             string    `json:"user_name" validate:"required"`
	Email                string    `json:"email" validate:"required,email"`
	PasswordHash         string    `json:"-"`
	Joined               time.Time `json:"joined"`
	LastLogin            time.Time `json:"last_login"`
	PhoneNumber          string    `json:"phone_number,omitempty"`
	PhoneNumberConfirmed bool      `json:"phone_number_confirmed"`
	EmailConfirmed       bool      `json:"email_confirmed"`
	LockoutEnabled       bool      `json:"lockout_enabled"`
	FailedLoginCount     int       `json:"failed_login_count"`
	LockoutEnd           time.Time `json:"lockout_end,omitempty"` // zero when never locked
	TwoFactorEnabled     bool      `json:"two_factor_enabled"`
}

// NewPrincipal returns a principal with lockout enabled
func NewPrincipal(userName, email string) *Principal {
	return &Principal{
		UserName:       userName,
		Email:          email,
		LockoutEnabled: true,
	}
}

// Sanitize prepares a new principal for its first write: it lowercases the
// user name and email, assigns the id and stamps Joined and LastLogin. The
// receiver is modified in place.
func (p *Principal) Sanitize(id string, now time.Time) {
	p.UserName = NormalizeKey(p.UserName)
	p.Email = NormalizeKey(p.Email)
	p.ID = id
	p.Joined = now.UTC()
	p.LastLogin = p.Joined
}

// LoginInfo is an external (federated) credential bound to a principal
type LoginInfo struct {
	Provider    string `json:"provider"`
	ProviderKey string `json:"provider_key"`
}

// Claim is a typed statement about a principal
type Claim struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// NormalizeKey lowercases a user name or email for storage and lookup
func NormalizeKey(s string) string {
	return strings.ToLower(s)
}
