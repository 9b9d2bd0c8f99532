// Package ratelimit implements a sliding-window request governor with
// per-caller accounting and class-based policies.
package ratelimit

import "time"

// Traffic classes, from most to least restrictive. Credential endpoints get
// tight windows of their own; everything else is classed by who is calling.
const (
	ClassLogin         = "login"
	ClassRegister      = "register"
	ClassRefresh       = "refresh"
	ClassAnonymous     = "anonymous"
	ClassAuthenticated = "authenticated"
	ClassAdmin         = "admin"
)

// Policy is the admission budget for one traffic class: at most Max
// requests within any sliding Window.
type Policy struct {
	Class  string
	Max    int
	Window time.Duration
}

// Result reports one admission decision together with the header material
// clients use to pace themselves.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Policies maps each traffic class to its budget.
type Policies map[string]Policy

// DefaultPolicies returns the stock class budgets.
func DefaultPolicies() Policies {
	return Policies{
		ClassLogin:         {Class: ClassLogin, Max: 5, Window: 15 * time.Minute},
		ClassRegister:      {Class: ClassRegister, Max: 3, Window: time.Hour},
		ClassRefresh:       {Class: ClassRefresh, Max: 10, Window: 5 * time.Minute},
		ClassAnonymous:     {Class: ClassAnonymous, Max: 100, Window: time.Hour},
		ClassAuthenticated: {Class: ClassAuthenticated, Max: 1000, Window: time.Hour},
		ClassAdmin:         {Class: ClassAdmin, Max: 2000, Window: time.Hour},
	}
}
