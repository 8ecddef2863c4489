package llm

import (
	"sync"
	"time"
)

// RateLimiter enforces per-business request and token ceilings over fixed
// 60-second windows. Counters reset when a full window has elapsed since the
// last reset, not on a rolling basis.
type RateLimiter struct {
	mu          sync.Mutex
	windows     map[string]*window
	maxRequests int
	maxTokens   int
	interval    time.Duration
	now         func() time.Time
}

type window struct {
	requests  int
	tokens    int
	resetTime time.Time
}

// NewRateLimiter builds a limiter. maxTokens <= 0 disables the token
// ceiling.
func NewRateLimiter(maxRequests, maxTokens int) *RateLimiter {
	return &RateLimiter{
		windows:     make(map[string]*window),
		maxRequests: maxRequests,
		maxTokens:   maxTokens,
		interval:    time.Minute,
		now:         time.Now,
	}
}

// Reserve counts one request against the business's current window. It
// returns a RateLimitError when either ceiling is already exhausted, before
// any model call is made.
func (rl *RateLimiter) Reserve(businessID string) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	w := rl.currentWindow(businessID)
	if rl.maxRequests > 0 && w.requests >= rl.maxRequests {
		return &RateLimitError{
			BusinessID: businessID,
			Limit:      rl.maxRequests,
			RetryAfter: w.resetTime.Sub(rl.now()),
		}
	}
	if rl.maxTokens > 0 && w.tokens >= rl.maxTokens {
		return &RateLimitError{
			BusinessID: businessID,
			Limit:      rl.maxTokens,
			RetryAfter: w.resetTime.Sub(rl.now()),
		}
	}
	w.requests++
	return nil
}

// RecordUsage charges consumed tokens to the business's current window.
func (rl *RateLimiter) RecordUsage(businessID string, tokens int) {
	if tokens <= 0 {
		return
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.currentWindow(businessID).tokens += tokens
}

func (rl *RateLimiter) currentWindow(businessID string) *window {
	now := rl.now()
	w, ok := rl.windows[businessID]
	if !ok || !now.Before(w.resetTime) {
		w = &window{resetTime: now.Add(rl.interval)}
		rl.windows[businessID] = w
	}
	return w
}
