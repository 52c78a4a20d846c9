package driver

import (
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/viant/fluxflow/model/definition"
	"github.com/viant/fluxflow/model/flow"
)

// RetryPolicy bounds re-drives of RETRYABLE rows
type RetryPolicy struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

// DefaultRetryPolicy returns the retry policy used when none is configured
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, InitialInterval: 500 * time.Millisecond, MaxInterval: 30 * time.Second, Multiplier: 2}
}

// Override applies a jober level retry configuration
func (p RetryPolicy) Override(retry *definition.Retry) RetryPolicy {
	if retry == nil {
		return p
	}
	if retry.MaxRetries > 0 {
		p.MaxRetries = retry.MaxRetries
	}
	if d, err := time.ParseDuration(retry.Delay); err == nil && d > 0 {
		p.InitialInterval = d
	}
	if d, err := time.ParseDuration(retry.MaxDelay); err == nil && d > 0 {
		p.MaxInterval = d
	}
	if retry.Multiplier > 0 {
		p.Multiplier = retry.Multiplier
	}
	return p
}

// Delay returns the wait before attempt number attempt (1 based)
func (p RetryPolicy) Delay(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	delay := b.NextBackOff()
	for i := 1; i < attempt; i++ {
		delay = b.NextBackOff()
	}
	return delay
}

// PendingPolicy decides when a row waiting on a filter threshold is evicted
type PendingPolicy interface {
	Expired(row *flow.Context, now time.Time) bool
}

// PendingFunc adapts a function to PendingPolicy
type PendingFunc func(row *flow.Context, now time.Time) bool

func (f PendingFunc) Expired(row *flow.Context, now time.Time) bool {
	return f(row, now)
}

// PendingTimeout evicts rows pending for longer than timeout; zero never evicts
func PendingTimeout(timeout time.Duration) PendingPolicy {
	return PendingFunc(func(row *flow.Context, now time.Time) bool {
		return timeout > 0 && row.Status == flow.StatusPending && now.Sub(row.UpdatedAt) > timeout
	})
}
