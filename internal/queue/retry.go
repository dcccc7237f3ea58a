package queue

import (
	"math/rand"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
)

// RetryPolicy decides how long a job waits before its next attempt.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// ProcessingTimeoutDelay replaces BaseDelay for media that was still
	// processing on the platform side.
	ProcessingTimeoutDelay time.Duration

	// Jitter is the fraction of the delay removed at random. It never
	// lengthens a delay, so a BaseDelay no longer than the tick interval
	// puts the first retry on the next tick.
	Jitter float64

	rand func() float64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:            models.MaxAttempts,
		BaseDelay:              30 * time.Second,
		MaxDelay:               15 * time.Minute,
		ProcessingTimeoutDelay: 2 * time.Minute,
		Jitter:                 0.2,
	}
}

// Delay returns base * 2^(attempts-1) for the error kind, capped at MaxDelay
// and shortened by up to Jitter.
func (p RetryPolicy) Delay(kind models.ErrorKind, attempts int) time.Duration {
	base := p.BaseDelay
	if kind == models.KindProcessingTimeout && p.ProcessingTimeoutDelay > 0 {
		base = p.ProcessingTimeoutDelay
	}
	if base <= 0 {
		return 0
	}
	if attempts < 1 {
		attempts = 1
	}

	delay := base
	for i := 1; i < attempts; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			delay = p.MaxDelay
			break
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}

	if p.Jitter > 0 {
		r := rand.Float64
		if p.rand != nil {
			r = p.rand
		}
		delay = time.Duration(float64(delay) * (1 - p.Jitter*r()))
	}
	return delay
}

// ShouldRetry reports whether a failed attempt may go back to scheduled.
func (p RetryPolicy) ShouldRetry(err error, attempts int) bool {
	return models.Retryable(err) && attempts < p.MaxAttempts
}
