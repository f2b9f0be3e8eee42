package identity

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher hashes and verifies credential secrets
type PasswordHasher interface {
	Hash(secret string) (string, error)
	Verify(hash, secret string) bool
}

// BcryptHasher is the default PasswordHasher
type BcryptHasher struct {
	Cost int
}

// Hash hashes secret with bcrypt
func (h BcryptHasher) Hash(secret string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	bytes, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(bytes), nil
}

// Verify reports whether secret matches hash
func (h BcryptHasher) Verify(hash, secret string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

// MaxSecretBytes is the longest secret bcrypt accepts
const MaxSecretBytes = 72

// PasswordPolicy holds the complexity rules a new secret must satisfy
type PasswordPolicy struct {
	MinLength              int
	RequireDigit           bool
	RequireLowercase       bool
	RequireUppercase       bool
	RequireNonAlphanumeric bool
}

// Check returns every rule the secret violates, or nil. The bcrypt length
// limit applies whatever the policy says.
func (pp PasswordPolicy) Check(secret string) []string {
	var problems []string
	if len([]rune(secret)) < pp.MinLength {
		problems = append(problems, fmt.Sprintf("must be at least %d characters", pp.MinLength))
	}
	if len(secret) > MaxSecretBytes {
		problems = append(problems, fmt.Sprintf("must be at most %d bytes", MaxSecretBytes))
	}

	var hasDigit, hasLower, hasUpper, hasOther bool
	for _, r := range secret {
		switch {
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case !unicode.IsLetter(r):
			hasOther = true
		}
	}

	if pp.RequireDigit && !hasDigit {
		problems = append(problems, "must contain a digit")
	}
	if pp.RequireLowercase && !hasLower {
		problems = append(problems, "must contain a lowercase letter")
	}
	if pp.RequireUppercase && !hasUpper {
		problems = append(problems, "must contain an uppercase letter")
	}
	if pp.RequireNonAlphanumeric && !hasOther {
		problems = append(problems, "must contain a non-alphanumeric character")
	}
	return problems
}

func joinProblems(problems []string) string {
	return strings.Join(problems, "; ")
}
