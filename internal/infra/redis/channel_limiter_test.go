package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/kursadbilgin/carecircle-dispatch/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

func TestChannelLimiterReserve(t *testing.T) {
	t.Parallel()

	rdb := newTestRedisClient(t)
	now := time.UnixMilli(1_700_000_000_250)
	limiter, err := newChannelLimiter(rdb, ChannelLimiterOptions{Default: 2}, func() time.Time { return now }, sleepWithContext)
	if err != nil {
		t.Fatalf("newChannelLimiter() error = %v", err)
	}

	for i := 0; i < 2; i++ {
		wait, err := limiter.Reserve(context.Background(), domain.ChannelSMS)
		if err != nil {
			t.Fatalf("Reserve() error = %v", err)
		}
		if wait != 0 {
			t.Fatalf("call %d: expected slot, got wait %v", i+1, wait)
		}
	}

	wait, err := limiter.Reserve(context.Background(), domain.ChannelSMS)
	if err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}
	if wait != 750*time.Millisecond {
		t.Fatalf("expected wait until next window (750ms), got %v", wait)
	}

	now = now.Add(750 * time.Millisecond)
	wait, err = limiter.Reserve(context.Background(), domain.ChannelSMS)
	if err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}
	if wait != 0 {
		t.Fatalf("new window should grant a slot, got wait %v", wait)
	}
}

func TestChannelLimiterPerChannelLimits(t *testing.T) {
	t.Parallel()

	rdb := newTestRedisClient(t)
	now := time.UnixMilli(1_700_000_100_000)
	limiter, err := newChannelLimiter(rdb, ChannelLimiterOptions{
		Default:    5,
		PerChannel: map[domain.Channel]int64{domain.ChannelSMS: 1},
	}, func() time.Time { return now }, sleepWithContext)
	if err != nil {
		t.Fatalf("newChannelLimiter() error = %v", err)
	}

	if wait, _ := limiter.Reserve(context.Background(), domain.ChannelSMS); wait != 0 {
		t.Fatal("first sms should be granted")
	}
	if wait, _ := limiter.Reserve(context.Background(), domain.ChannelSMS); wait == 0 {
		t.Fatal("second sms should be throttled")
	}
	for i := 0; i < 5; i++ {
		if wait, _ := limiter.Reserve(context.Background(), domain.ChannelEmail); wait != 0 {
			t.Fatalf("email %d should use the default limit", i+1)
		}
	}
}

func TestChannelLimiterRejectsUnknownChannel(t *testing.T) {
	t.Parallel()

	limiter, err := NewChannelLimiter(newTestRedisClient(t), ChannelLimiterOptions{})
	if err != nil {
		t.Fatalf("NewChannelLimiter() error = %v", err)
	}

	_, err = limiter.Reserve(context.Background(), domain.Channel("fax"))
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestChannelLimiterWaitSleepsUntilNextWindow(t *testing.T) {
	t.Parallel()

	rdb := newTestRedisClient(t)
	now := time.UnixMilli(1_700_000_200_900)
	var slept []time.Duration
	limiter, err := newChannelLimiter(rdb, ChannelLimiterOptions{Default: 1},
		func() time.Time { return now },
		func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			now = now.Add(d)
			return nil
		},
	)
	if err != nil {
		t.Fatalf("newChannelLimiter() error = %v", err)
	}

	if err := limiter.Wait(context.Background(), domain.ChannelPush); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if err := limiter.Wait(context.Background(), domain.ChannelPush); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if len(slept) != 1 || slept[0] != 100*time.Millisecond {
		t.Fatalf("expected one 100ms sleep, got %v", slept)
	}
}

func TestChannelLimiterWaitContextDeadline(t *testing.T) {
	t.Parallel()

	rdb := newTestRedisClient(t)
	now := time.UnixMilli(1_700_000_300_000)
	limiter, err := newChannelLimiter(rdb, ChannelLimiterOptions{Default: 1}, func() time.Time { return now }, sleepWithContext)
	if err != nil {
		t.Fatalf("newChannelLimiter() error = %v", err)
	}

	if err := limiter.Wait(context.Background(), domain.ChannelSMS); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Millisecond)
	defer cancel()

	err = limiter.Wait(ctx, domain.ChannelSMS)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait() error = %v, want %v", err, context.DeadlineExceeded)
	}
}

func newTestRedisClient(t *testing.T) *goredis.Client {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
	})

	return rdb
}
