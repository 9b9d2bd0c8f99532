package perf

import (
	"fmt"
	"testing"
	"time"

	"github.com/gatewarden/gatewarden/internal/ratelimit"
)

// The governor sits on every request, so its hot path has to stay cheap
// even with many distinct callers in flight.

func BenchmarkGovernorSingleCaller(b *testing.B) {
	g := ratelimit.NewGovernor()
	policy := ratelimit.Policy{Class: ratelimit.ClassAuthenticated, Max: 1 << 30, Window: time.Hour}

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		g.Allow("user:1", policy)
	}
}

func BenchmarkGovernorManyCallers(b *testing.B) {
	g := ratelimit.NewGovernor()
	policy := ratelimit.Policy{Class: ratelimit.ClassAnonymous, Max: 100, Window: time.Hour}
	keys := make([]string, 4096)
	for i := range keys {
		keys[i] = fmt.Sprintf("ip:198.51.100.%d:%d", i%256, i/256)
	}

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		g.Allow(keys[i%len(keys)], policy)
	}
}

func BenchmarkGovernorParallel(b *testing.B) {
	g := ratelimit.NewGovernor()
	policy := ratelimit.Policy{Class: ratelimit.ClassAuthenticated, Max: 1 << 30, Window: time.Hour}

	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			g.Allow(fmt.Sprintf("user:%d", i%64), policy)
			i++
		}
	})
}
