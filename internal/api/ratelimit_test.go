package api

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(limit int, period time.Duration) (*rateLimiter, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	rl := newRateLimiter(limit, period)
	rl.now = clock.Now
	return rl, clock
}

func TestRateLimiterAllow(t *testing.T) {
	t.Parallel()

	rl, _ := newTestLimiter(20, time.Hour)
	for i := range 20 {
		d := rl.allow("10.0.0.1")
		if !d.allowed {
			t.Fatalf("expected allow on iteration %d", i)
		}
		if d.remaining != 20-i-1 {
			t.Fatalf("iteration %d: remaining = %d", i, d.remaining)
		}
	}
	d := rl.allow("10.0.0.1")
	if d.allowed {
		t.Fatal("expected rate limit after the window is exhausted")
	}
	if d.remaining != 0 || d.limit != 20 {
		t.Fatalf("unexpected decision %+v", d)
	}
}

func TestRateLimiterIsolatesKeys(t *testing.T) {
	t.Parallel()

	rl, _ := newTestLimiter(2, time.Hour)
	rl.allow("a")
	rl.allow("a")
	if rl.allow("a").allowed {
		t.Fatal("expected a to be rate-limited")
	}
	if !rl.allow("b").allowed {
		t.Fatal("expected b to be allowed independently")
	}
}

func TestRateLimiterWindowResets(t *testing.T) {
	t.Parallel()

	rl, clock := newTestLimiter(1, time.Hour)
	if !rl.allow("a").allowed {
		t.Fatal("expected first request to pass")
	}
	clock.Advance(30 * time.Minute)
	d := rl.allow("a")
	if d.allowed {
		t.Fatal("expected second request in same window to fail")
	}
	if d.reset != 30*time.Minute {
		t.Fatalf("reset = %v", d.reset)
	}
	clock.Advance(30 * time.Minute)
	if !rl.allow("a").allowed {
		t.Fatal("expected a new window after the period")
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	t.Parallel()

	rl, clock := newTestLimiter(5, time.Minute)
	for i := range 50 {
		rl.allow(fmt.Sprintf("10.0.0.%d", i))
	}
	if got := rl.size(); got != 50 {
		t.Fatalf("expected 50 windows, got %d", got)
	}
	clock.Advance(30 * time.Second)
	rl.allow("fresh")
	clock.Advance(31 * time.Second)
	rl.cleanup()
	if got := rl.size(); got != 1 {
		t.Fatalf("expected only the fresh window to survive, got %d", got)
	}
}

func TestRateLimiterConcurrent(t *testing.T) {
	t.Parallel()

	rl, _ := newTestLimiter(100, time.Hour)
	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for range 200 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.allow("shared").allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if allowed != 100 {
		t.Fatalf("expected exactly 100 allowed, got %d", allowed)
	}
}

func TestShardIndexStable(t *testing.T) {
	t.Parallel()

	for _, key := range []string{"", "a", "203.0.113.1", "::1"} {
		i := shardIndex(key)
		if i < 0 || i >= rateLimiterShards {
			t.Fatalf("shard index out of range for %q: %d", key, i)
		}
		if shardIndex(key) != i {
			t.Fatalf("shard index unstable for %q", key)
		}
	}
}
