package provider

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

type BreakerSettings struct {
	// FailureThreshold is the number of consecutive transient failures that opens the breaker.
	FailureThreshold uint32
	OpenTimeout      time.Duration
	HalfOpenRequests uint32
	// OnStateChange is called after every transition, e.g. to export a gauge.
	OnStateChange func(name string, from, to gobreaker.State)
}

func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		FailureThreshold: 5,
		OpenTimeout:      30 * time.Second,
		HalfOpenRequests: 1,
	}
}

// BreakerProvider stops calling a provider that keeps failing with transient errors.
type BreakerProvider struct {
	next    Provider
	breaker *gobreaker.CircuitBreaker[*ProviderResponse]
}

func NewBreakerProvider(name string, next Provider, settings BreakerSettings, logger *zap.Logger) *BreakerProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if settings.FailureThreshold == 0 {
		settings.FailureThreshold = DefaultBreakerSettings().FailureThreshold
	}
	if settings.OpenTimeout <= 0 {
		settings.OpenTimeout = DefaultBreakerSettings().OpenTimeout
	}

	threshold := settings.FailureThreshold
	onChange := settings.OnStateChange

	cb := gobreaker.NewCircuitBreaker[*ProviderResponse](gobreaker.Settings{
		Name:        name,
		MaxRequests: settings.HalfOpenRequests,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// A rejected phone number says nothing about provider health.
		IsSuccessful: func(err error) bool {
			return err == nil || !IsTransient(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("provider circuit breaker state changed",
				zap.String("provider", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			if onChange != nil {
				onChange(name, from, to)
			}
		},
	})

	return &BreakerProvider{next: next, breaker: cb}
}

func (p *BreakerProvider) Send(ctx context.Context, msg Message) (*ProviderResponse, error) {
	resp, err := p.breaker.Execute(func() (*ProviderResponse, error) {
		return p.next.Send(ctx, msg)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, &ProviderError{
			Provider:  p.breaker.Name(),
			Message:   "circuit open",
			Transient: true,
			Cause:     err,
		}
	}
	return resp, err
}

func (p *BreakerProvider) State() gobreaker.State {
	return p.breaker.State()
}
