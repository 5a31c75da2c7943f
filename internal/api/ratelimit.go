package api

import (
	"sync"
	"time"
)

const (
	// rateLimiterShards controls how many independent shards the rate limiter
	// uses. Each shard has its own mutex so distinct client addresses rarely
	// contend.
	rateLimiterShards = 16
)

type window struct {
	start time.Time
	count int
}

// decision is the outcome of a single allow check.
type decision struct {
	allowed   bool
	limit     int
	remaining int
	reset     time.Duration
}

// rateLimiter implements a sharded per-key fixed-window counter. Keys are
// mapped to one of [rateLimiterShards] shards via FNV hashing.
type rateLimiter struct {
	limit  int
	period time.Duration
	now    func() time.Time
	shards [rateLimiterShards]rateLimiterShard
}

type rateLimiterShard struct {
	mu      sync.Mutex
	windows map[string]*window
}

func newRateLimiter(limit int, period time.Duration) *rateLimiter {
	rl := &rateLimiter{limit: limit, period: period, now: time.Now}
	for i := range rl.shards {
		rl.shards[i].windows = make(map[string]*window)
	}
	return rl
}

func (rl *rateLimiter) shard(key string) *rateLimiterShard {
	return &rl.shards[shardIndex(key)]
}

func shardIndex(key string) int {
	const (
		fnvOffset32 = uint32(2166136261)
		fnvPrime32  = uint32(16777619)
	)
	h := fnvOffset32
	for i := 0; i < len(key); i++ {
		h ^= uint32(key[i])
		h *= fnvPrime32
	}
	return int(h % uint32(rateLimiterShards))
}

// allow counts one request for key. Requests beyond the limit are rejected
// until the window that started with the key's first request has elapsed.
func (rl *rateLimiter) allow(key string) decision {
	s := rl.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	now := rl.now()
	w, ok := s.windows[key]
	if !ok || now.Sub(w.start) >= rl.period {
		w = &window{start: now}
		s.windows[key] = w
	}
	reset := rl.period - now.Sub(w.start)

	if w.count >= rl.limit {
		return decision{limit: rl.limit, reset: reset}
	}
	w.count++
	return decision{
		allowed:   true,
		limit:     rl.limit,
		remaining: rl.limit - w.count,
		reset:     reset,
	}
}

// cleanup evicts expired windows across all shards. Called periodically by
// the janitor so that the hot allow() path is never burdened with map
// iteration.
func (rl *rateLimiter) cleanup() {
	now := rl.now()
	for i := range rl.shards {
		s := &rl.shards[i]
		s.mu.Lock()
		for k, w := range s.windows {
			if now.Sub(w.start) >= rl.period {
				delete(s.windows, k)
			}
		}
		s.mu.Unlock()
	}
}

func (rl *rateLimiter) size() int {
	n := 0
	for i := range rl.shards {
		s := &rl.shards[i]
		s.mu.Lock()
		n += len(s.windows)
		s.mu.Unlock()
	}
	return n
}
