package ratelimit

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testGovernor(base time.Time) (*Governor, *time.Time) {
	g := NewGovernor()
	now := base
	g.now = func() time.Time { return now }
	return g, &now
}

func TestGovernorAdmitsUpToMax(t *testing.T) {
	g, _ := testGovernor(time.Now())
	policy := Policy{Class: ClassLogin, Max: 5, Window: 15 * time.Minute}

	for i := 0; i < 5; i++ {
		result := g.Allow("login:ip:10.0.0.1", policy)
		require.True(t, result.Allowed, "request %d should be admitted", i+1)
		require.Equal(t, 5, result.Limit)
		require.Equal(t, 4-i, result.Remaining)
	}

	result := g.Allow("login:ip:10.0.0.1", policy)
	require.False(t, result.Allowed, "sixth request inside the window must be rejected")
	require.Equal(t, 0, result.Remaining)
	require.Greater(t, result.RetryAfter, time.Duration(0))
}

func TestGovernorWindowSlides(t *testing.T) {
	base := time.Now()
	g, now := testGovernor(base)
	policy := Policy{Class: ClassLogin, Max: 2, Window: time.Minute}

	require.True(t, g.Allow("k", policy).Allowed)
	*now = base.Add(30 * time.Second)
	require.True(t, g.Allow("k", policy).Allowed)
	require.False(t, g.Allow("k", policy).Allowed)

	// The first admission leaves the window; one slot frees up.
	*now = base.Add(61 * time.Second)
	result := g.Allow("k", policy)
	require.True(t, result.Allowed)
	// The second admission is still inside.
	require.False(t, g.Allow("k", policy).Allowed)
}

func TestGovernorRejectionsAreNotCharged(t *testing.T) {
	base := time.Now()
	g, now := testGovernor(base)
	policy := Policy{Class: ClassLogin, Max: 1, Window: time.Minute}

	require.True(t, g.Allow("k", policy).Allowed)
	for i := 0; i < 10; i++ {
		require.False(t, g.Allow("k", policy).Allowed)
	}

	// Hammering while limited must not extend the lockout.
	*now = base.Add(61 * time.Second)
	require.True(t, g.Allow("k", policy).Allowed)
}

func TestGovernorRetryAfterNamesOldestExit(t *testing.T) {
	base := time.Now()
	g, now := testGovernor(base)
	policy := Policy{Class: ClassLogin, Max: 2, Window: time.Minute}

	g.Allow("k", policy)
	*now = base.Add(20 * time.Second)
	g.Allow("k", policy)

	*now = base.Add(30 * time.Second)
	result := g.Allow("k", policy)
	require.False(t, result.Allowed)
	require.Equal(t, 30*time.Second, result.RetryAfter)
	require.Equal(t, base.Add(time.Minute).Unix(), result.ResetAt.Unix())
}

func TestGovernorKeysAreIndependent(t *testing.T) {
	g, _ := testGovernor(time.Now())
	policy := Policy{Class: ClassLogin, Max: 1, Window: time.Minute}

	require.True(t, g.Allow("login:ip:10.0.0.1", policy).Allowed)
	require.False(t, g.Allow("login:ip:10.0.0.1", policy).Allowed)
	require.True(t, g.Allow("login:ip:10.0.0.2", policy).Allowed)
	require.True(t, g.Allow("refresh:ip:10.0.0.1", policy).Allowed)
}

func TestGovernorSweep(t *testing.T) {
	base := time.Now()
	g, now := testGovernor(base)
	policy := Policy{Class: ClassAnonymous, Max: 10, Window: time.Minute}

	for i := 0; i < 20; i++ {
		g.Allow(fmt.Sprintf("ip:10.0.0.%d", i), policy)
	}
	require.Equal(t, 20, g.Size())

	*now = base.Add(2 * time.Minute)
	removed := g.Sweep(time.Minute)
	require.Equal(t, 20, removed)
	require.Equal(t, 0, g.Size())
}

func TestGovernorConcurrentAdmission(t *testing.T) {
	g, _ := testGovernor(time.Now())
	policy := Policy{Class: ClassAuthenticated, Max: 100, Window: time.Minute}

	var wg sync.WaitGroup
	admitted := make(chan bool, 200)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			admitted <- g.Allow("shared", policy).Allowed
		}()
	}
	wg.Wait()
	close(admitted)

	count := 0
	for ok := range admitted {
		if ok {
			count++
		}
	}
	// Exactly the budget is admitted, never more.
	require.Equal(t, 100, count)
}
