package ratelimit

import "context"

// DailyLimiter enforces the sends-per-day cap. The counter is keyed by
// calendar date and covers every send attempt, successful or not.
type DailyLimiter interface {
	Count(ctx context.Context) (int64, error)
	Remaining(ctx context.Context) (int64, error)
	Increment(ctx context.Context) (int64, error)
	Cap() int64
}
