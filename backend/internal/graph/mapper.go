package graph

import (
	"time"

	"graph-identity/backend/internal/identity"
)

// Node property names
const (
	propID                   = "id"
	propUserName             = "userName"
	propEmail                = "email"
	propPasswordHash         = "passwordHash"
	propJoined               = "joined"
	propLastLogin            = "lastLogin"
	propPhoneNumber          = "phoneNumber"
	propPhoneNumberConfirmed = "isPhoneNumberConfirmed"
	propEmailConfirmed       = "isEmailConfirmed"
	propLockoutEnabled       = "isLockoutEnabled"
	propFailedLoginCount     = "failedLoginCount"
	propLockoutEnd           = "lockoutEndTimestamp"
	propTwoFactorEnabled     = "isTwoFactorEnabled"

	propRoleName      = "name"
	propLoginProvider = "loginProvider"
	propProviderKey   = "providerKey"
)

// principalProperties flattens p into a node property map. Empty strings and
// zero times map to nil so the engine leaves the property unset.
func principalProperties(p *identity.Principal) map[string]any {
	return map[string]any{
		propID:                   p.ID,
		propUserName:             p.UserName,
		propEmail:                p.Email,
		propPasswordHash:         nullableString(p.PasswordHash),
		propJoined:               nullableTime(p.Joined),
		propLastLogin:            nullableTime(p.LastLogin),
		propPhoneNumber:          nullableString(p.PhoneNumber),
		propPhoneNumberConfirmed: p.PhoneNumberConfirmed,
		propEmailConfirmed:       p.EmailConfirmed,
		propLockoutEnabled:       p.LockoutEnabled,
		propFailedLoginCount:     int64(p.FailedLoginCount),
		propLockoutEnd:           nullableTime(p.LockoutEnd),
		propTwoFactorEnabled:     p.TwoFactorEnabled,
	}
}

// principalFromProperties rebuilds a principal from a node property map.
// Values are returned as stored; nothing is re-normalized.
func principalFromProperties(props map[string]any) *identity.Principal {
	return &identity.Principal{
		ID:                   getStringFromMap(props, propID, ""),
		UserName:             getStringFromMap(props, propUserName, ""),
		Email:                getStringFromMap(props, propEmail, ""),
		PasswordHash:         getStringFromMap(props, propPasswordHash, ""),
		Joined:               getTimeFromMap(props, propJoined),
		LastLogin:            getTimeFromMap(props, propLastLogin),
		PhoneNumber:          getStringFromMap(props, propPhoneNumber, ""),
		PhoneNumberConfirmed: getBoolFromMap(props, propPhoneNumberConfirmed, false),
		EmailConfirmed:       getBoolFromMap(props, propEmailConfirmed, false),
		LockoutEnabled:       getBoolFromMap(props, propLockoutEnabled, true),
		FailedLoginCount:     int(getInt64FromMap(props, propFailedLoginCount, 0)),
		LockoutEnd:           getTimeFromMap(props, propLockoutEnd),
		TwoFactorEnabled:     getBoolFromMap(props, propTwoFactorEnabled, false),
	}
}

// principalFromRow reads the principal column of a match row
func principalFromRow(row Row) (*identity.Principal, bool) {
	props, ok := row["principal"].(map[string]any)
	if !ok {
		return nil, false
	}
	return principalFromProperties(props), true
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

// Helper functions

func getStringFromMap(m map[string]any, key, defaultValue string) string {
	val, ok := m[key]
	if !ok || val == nil {
		return defaultValue
	}
	if str, ok := val.(string); ok {
		return str
	}
	return defaultValue
}

func getBoolFromMap(m map[string]any, key string, defaultValue bool) bool {
	val, ok := m[key]
	if !ok || val == nil {
		return defaultValue
	}
	if b, ok := val.(bool); ok {
		return b
	}
	return defaultValue
}

func getInt64FromMap(m map[string]any, key string, defaultValue int64) int64 {
	val, ok := m[key]
	if !ok || val == nil {
		return defaultValue
	}
	switch i := val.(type) {
	case int64:
		return i
	case int:
		return int64(i)
	case float64:
		return int64(i)
	}
	return defaultValue
}

// Neo4j datetime values come back as time.Time
func getTimeFromMap(m map[string]any, key string) time.Time {
	val, ok := m[key]
	if !ok || val == nil {
		return time.Time{}
	}
	if t, ok := val.(time.Time); ok {
		return t.UTC()
	}
	return time.Time{}
}
