package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/haiminhvu/mailflow/internal/ratelimit"
)

const defaultDailyCap int64 = 100

// counterZone pins the calendar day. Sending targets Japanese recipients,
// so "today" rolls over at JST midnight regardless of where the process
// runs.
var counterZone = time.FixedZone("JST", 9*60*60)

var incrScript = goredis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return current
`)

var _ ratelimit.DailyLimiter = (*RedisDailyCounter)(nil)

// RedisDailyCounter is the persisted per-day attempt counter. The key
// embeds the date and expires at the next midnight, so a new day starts at
// zero without an explicit reset.
type RedisDailyCounter struct {
	client *goredis.Client
	cap    int64
	now    func() time.Time
	script *goredis.Script
}

func NewRedisDailyCounter(client *goredis.Client, dailyCap int) (*RedisDailyCounter, error) {
	return newRedisDailyCounter(client, int64(dailyCap), time.Now)
}

func newRedisDailyCounter(client *goredis.Client, dailyCap int64, nowFn func() time.Time) (*RedisDailyCounter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if dailyCap <= 0 {
		dailyCap = defaultDailyCap
	}
	if nowFn == nil {
		nowFn = time.Now
	}

	return &RedisDailyCounter{
		client: client,
		cap:    dailyCap,
		now:    nowFn,
		script: incrScript,
	}, nil
}

func (c *RedisDailyCounter) Cap() int64 {
	if c == nil {
		return 0
	}
	return c.cap
}

func (c *RedisDailyCounter) Count(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, fmt.Errorf("daily counter is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	count, err := c.client.Get(ctx, c.key()).Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read daily counter: %w", err)
	}
	return count, nil
}

func (c *RedisDailyCounter) Remaining(ctx context.Context) (int64, error) {
	count, err := c.Count(ctx)
	if err != nil {
		return 0, err
	}

	remaining := c.cap - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// Increment counts one attempt and returns the new total for the day.
func (c *RedisDailyCounter) Increment(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil || c.script == nil {
		return 0, fmt.Errorf("daily counter is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	ttl := int64(c.secondsUntilMidnight())
	count, err := c.script.Run(ctx, c.client, []string{c.key()}, ttl).Int64()
	if err != nil {
		return 0, fmt.Errorf("failed to increment daily counter: %w", err)
	}
	return count, nil
}

func (c *RedisDailyCounter) key() string {
	return "dailycap:" + c.now().In(counterZone).Format("2006-01-02")
}

func (c *RedisDailyCounter) secondsUntilMidnight() int {
	now := c.now().In(counterZone)
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, counterZone).AddDate(0, 0, 1)

	seconds := int(midnight.Sub(now).Seconds())
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}
