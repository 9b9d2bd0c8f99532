package ratelimit

import (
	"hash/fnv"
	"sync"
	"time"
)

const shardCount = 64

// Governor admits or rejects requests against sliding-window budgets. Each
// (class, caller) pair owns a timestamp log; a request is admitted when
// fewer than Max admissions happened within the trailing Window. Rejected
// requests are never charged against the budget.
//
// State is sharded by key hash so concurrent callers only contend when they
// hash to the same shard.
type Governor struct {
	shards [shardCount]shard
	now    func() time.Time
}

type shard struct {
	mu      sync.Mutex
	entries map[string][]time.Time
}

// NewGovernor constructs a Governor.
func NewGovernor() *Governor {
	g := &Governor{now: time.Now}
	for i := range g.shards {
		g.shards[i].entries = make(map[string][]time.Time)
	}
	return g
}

func (g *Governor) shardFor(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &g.shards[h.Sum32()%shardCount]
}

// Allow decides admission for one request under the given policy. The
// returned Result always carries Limit/Remaining/ResetAt; RetryAfter is only
// meaningful on rejection and names the wait until the oldest charged
// request leaves the window.
func (g *Governor) Allow(key string, policy Policy) Result {
	now := g.now()
	cutoff := now.Add(-policy.Window)

	s := g.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.entries[key]
	kept := log[:0]
	for _, ts := range log {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= policy.Max {
		s.entries[key] = kept
		oldest := kept[0]
		reset := oldest.Add(policy.Window)
		return Result{
			Allowed:    false,
			Limit:      policy.Max,
			Remaining:  0,
			ResetAt:    reset,
			RetryAfter: reset.Sub(now),
		}
	}

	kept = append(kept, now)
	s.entries[key] = kept
	return Result{
		Allowed:   true,
		Limit:     policy.Max,
		Remaining: policy.Max - len(kept),
		ResetAt:   kept[0].Add(policy.Window),
	}
}

// Sweep drops callers whose whole log has aged past maxAge, bounding memory
// between bursts. Run it periodically; admission already prunes the keys it
// touches.
func (g *Governor) Sweep(maxAge time.Duration) int {
	cutoff := g.now().Add(-maxAge)
	removed := 0
	for i := range g.shards {
		s := &g.shards[i]
		s.mu.Lock()
		for key, log := range s.entries {
			if len(log) == 0 || !log[len(log)-1].After(cutoff) {
				delete(s.entries, key)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Size reports the number of tracked callers, for metrics.
func (g *Governor) Size() int {
	total := 0
	for i := range g.shards {
		s := &g.shards[i]
		s.mu.Lock()
		total += len(s.entries)
		s.mu.Unlock()
	}
	return total
}
