package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/carecircle-dispatch/internal/domain"
	"github.com/kursadbilgin/carecircle-dispatch/internal/ratelimit"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultSendsPerWindow int64 = 100
	defaultWindow               = time.Second
	keyPrefix                   = "carecircle:sends"
)

// reserveScript counts a send in the current window and reports the new count.
var reserveScript = goredis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

var _ ratelimit.Limiter = (*ChannelLimiter)(nil)

type ChannelLimiterOptions struct {
	// Default applies to channels without an entry in PerChannel.
	Default    int64
	PerChannel map[domain.Channel]int64
	Window     time.Duration
}

// ChannelLimiter is a fixed-window send limiter shared by every worker through Redis.
type ChannelLimiter struct {
	client *goredis.Client
	opts   ChannelLimiterOptions
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewChannelLimiter(client *goredis.Client, opts ChannelLimiterOptions) (*ChannelLimiter, error) {
	return newChannelLimiter(client, opts, time.Now, sleepWithContext)
}

func newChannelLimiter(
	client *goredis.Client,
	opts ChannelLimiterOptions,
	nowFn func() time.Time,
	sleepFn func(ctx context.Context, d time.Duration) error,
) (*ChannelLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if opts.Default <= 0 {
		opts.Default = defaultSendsPerWindow
	}
	if opts.Window <= 0 {
		opts.Window = defaultWindow
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if sleepFn == nil {
		sleepFn = sleepWithContext
	}

	return &ChannelLimiter{
		client: client,
		opts:   opts,
		now:    nowFn,
		sleep:  sleepFn,
	}, nil
}

func (l *ChannelLimiter) limitFor(channel domain.Channel) int64 {
	if limit, ok := l.opts.PerChannel[channel]; ok && limit > 0 {
		return limit
	}
	return l.opts.Default
}

func (l *ChannelLimiter) Reserve(ctx context.Context, channel domain.Channel) (time.Duration, error) {
	if !channel.IsValid() {
		return 0, fmt.Errorf("%w: invalid channel %q", domain.ErrValidation, channel)
	}

	now := l.now().UTC()
	windowMs := l.opts.Window.Milliseconds()
	if windowMs < 1 {
		windowMs = 1
	}
	slot := now.UnixMilli() / windowMs
	key := fmt.Sprintf("%s:%s:%d", keyPrefix, channel, slot)

	count, err := reserveScript.Run(ctx, l.client, []string{key}, windowMs).Int64()
	if err != nil {
		return 0, fmt.Errorf("failed to reserve send slot: %w", err)
	}
	if count <= l.limitFor(channel) {
		return 0, nil
	}

	nextWindow := time.UnixMilli((slot + 1) * windowMs)
	wait := nextWindow.Sub(now)
	if wait <= 0 {
		wait = time.Millisecond
	}
	return wait, nil
}

func (l *ChannelLimiter) Wait(ctx context.Context, channel domain.Channel) error {
	for {
		wait, err := l.Reserve(ctx, channel)
		if err != nil {
			return err
		}
		if wait == 0 {
			return nil
		}
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
