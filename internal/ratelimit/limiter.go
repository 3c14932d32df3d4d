// Package ratelimit implements fixed-window request counters keyed by an
// arbitrary caller-supplied string, typically "operation:resource:ip".
package ratelimit

import (
	"context"
	"math"
	"strings"
	"time"
)

// Decision is the outcome of a single Check.
type Decision struct {
	Allowed           bool
	Remaining         int
	RetryAfterSeconds int
}

// Limiter counts requests per key within a fixed window.
type Limiter interface {
	Check(ctx context.Context, key string, maxRequests int, window time.Duration) (Decision, error)
}

// Key joins the parts of a rate-limit key, skipping blanks.
func Key(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			kept = append(kept, part)
		}
	}
	return strings.Join(kept, ":")
}

func retryAfter(remaining time.Duration) int {
	if remaining <= 0 {
		return 1
	}
	return int(math.Ceil(remaining.Seconds()))
}
