package users

import (
	"errors"
	"fmt"
	"unicode"
)

// PasswordPolicy is the configured complexity requirement for new passwords.
type PasswordPolicy struct {
	MinLength      int
	RequireUpper   bool
	RequireLower   bool
	RequireNumber  bool
	RequireSpecial bool
}

// ErrWeakPassword wraps every complexity failure so handlers can map them
// to one status.
var ErrWeakPassword = errors.New("password does not meet the complexity policy")

// Validate checks a candidate password against the policy. The returned
// error names the first unmet requirement.
func (p PasswordPolicy) Validate(password string) error {
	if len(password) < p.MinLength {
		return fmt.Errorf("%w: at least %d characters required", ErrWeakPassword, p.MinLength)
	}
	var upper, lower, number, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			number = true
		default:
			special = true
		}
	}
	if p.RequireUpper && !upper {
		return fmt.Errorf("%w: an uppercase letter is required", ErrWeakPassword)
	}
	if p.RequireLower && !lower {
		return fmt.Errorf("%w: a lowercase letter is required", ErrWeakPassword)
	}
	if p.RequireNumber && !number {
		return fmt.Errorf("%w: a digit is required", ErrWeakPassword)
	}
	if p.RequireSpecial && !special {
		return fmt.Errorf("%w: a special character is required", ErrWeakPassword)
	}
	return nil
}
