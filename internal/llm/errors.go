package llm

import (
	"fmt"
	"time"
)

// RateLimitError is returned when a business exhausts its per-minute quota.
// It is the one orchestrator error meant to reach the outermost caller so
// backoff can be applied.
type RateLimitError struct {
	BusinessID string
	Limit      int
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("llm: rate limit exceeded for business %s (limit %d, retry after %s)",
		e.BusinessID, e.Limit, e.RetryAfter.Round(time.Second))
}

// ServiceError wraps a model call failure that is not a rate limit.
type ServiceError struct {
	CallType CallType
	Err      error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("llm: %s call failed: %v", e.CallType, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}
