package service

import (
	"math/rand"
	"time"

	"github.com/kursadbilgin/carecircle-dispatch/internal/domain"
)

const (
	baseRetryDelay       = 200 * time.Millisecond
	maxRetryDelay        = 2 * time.Second
	maxRetryJitterMillis = 100
)

// RetryPolicy decides whether a failed result gets another send and how long to wait first.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     func(retryCount int) time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: domain.MaxRetryCount,
		Backoff:     exponentialBackoff(baseRetryDelay, maxRetryDelay, rand.Intn),
	}
}

// ShouldRetry is false for delivered results and for results that used up the budget.
func (p RetryPolicy) ShouldRetry(result domain.NotificationResult) bool {
	maxAttempts := min(p.MaxAttempts, domain.MaxRetryCount)
	return result.Status == domain.StatusFailed && result.RetryCount < maxAttempts
}

func (p RetryPolicy) Delay(retryCount int) time.Duration {
	if p.Backoff == nil {
		return 0
	}
	return max(p.Backoff(retryCount), 0)
}

// exponentialBackoff doubles base per retry up to limit and adds up to 100ms of jitter.
func exponentialBackoff(base, limit time.Duration, randIntn func(n int) int) func(int) time.Duration {
	return func(retryCount int) time.Duration {
		if retryCount < 1 {
			retryCount = 1
		}

		delay := base
		for i := 1; i < retryCount && delay < limit; i++ {
			delay *= 2
		}
		delay = min(delay, limit)

		jitterMillis := 0
		if randIntn != nil {
			jitterMillis = randIntn(maxRetryJitterMillis + 1)
		}
		return delay + time.Duration(jitterMillis)*time.Millisecond
	}
}
