package ratelimit

import (
	"context"
	"time"

	"github.com/kursadbilgin/carecircle-dispatch/internal/domain"
)

// Limiter throttles provider sends per delivery channel.
type Limiter interface {
	// Reserve takes one send slot; a zero wait means the slot was granted.
	Reserve(ctx context.Context, channel domain.Channel) (wait time.Duration, err error)
	// Wait blocks until a slot is granted or ctx ends.
	Wait(ctx context.Context, channel domain.Channel) error
}

// Unlimited grants every request immediately. Used when no Redis is configured.
type Unlimited struct{}

func (Unlimited) Reserve(context.Context, domain.Channel) (time.Duration, error) { return 0, nil }

func (Unlimited) Wait(context.Context, domain.Channel) error { return nil }
