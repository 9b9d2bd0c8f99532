package users

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func strictPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:      8,
		RequireUpper:   true,
		RequireLower:   true,
		RequireNumber:  true,
		RequireSpecial: true,
	}
}

func TestPasswordPolicyAcceptsCompliant(t *testing.T) {
	require.NoError(t, strictPolicy().Validate("Str0ng!pass"))
}

func TestPasswordPolicyRejections(t *testing.T) {
	policy := strictPolicy()
	cases := map[string]string{
		"too short":  "S0r!t",
		"no upper":   "weak!pass1",
		"no lower":   "WEAK!PASS1",
		"no digit":   "Weak!passX",
		"no special": "Weakpass11",
	}
	for name, password := range cases {
		t.Run(name, func(t *testing.T) {
			require.ErrorIs(t, policy.Validate(password), ErrWeakPassword)
		})
	}
}

func TestPasswordPolicyRelaxed(t *testing.T) {
	policy := PasswordPolicy{MinLength: 4}
	require.NoError(t, policy.Validate("abcd"))
	require.ErrorIs(t, policy.Validate("abc"), ErrWeakPassword)
}
