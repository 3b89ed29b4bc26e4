package retry

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	retrygo "github.com/avast/retry-go"
)

const (
	defaultBase = 1 * time.Second
	defaultMax  = 60 * time.Second
)

// Policy is the single backoff definition shared by every RPC call site:
// head reads, block fetches and receipt fetches.
type Policy struct {
	MaxAttempts int
	Base        time.Duration
	Max         time.Duration
	// Jitter adds up to Jitter*delay of random spread, in [0,1].
	Jitter float64
	Logger *slog.Logger

	randFn func() float64
}

func (p Policy) base() time.Duration {
	if p.Base <= 0 {
		return defaultBase
	}
	return p.Base
}

func (p Policy) max() time.Duration {
	if p.Max <= 0 {
		return defaultMax
	}
	if p.Max < p.base() {
		return p.base()
	}
	return p.Max
}

// Delay returns the wait before retry number attempt (1-based): Base doubled
// attempt-1 times, capped at Max.
func (p Policy) Delay(attempt int) time.Duration {
	base, max := p.base(), p.max()
	delay := base
	for i := 1; i < attempt; i++ {
		if delay >= max/2 {
			delay = max
			break
		}
		delay *= 2
	}
	if delay > max {
		delay = max
	}
	return p.jitter(delay)
}

// Next advances a running backoff: zero starts at Base, otherwise it doubles
// up to Max.
func (p Policy) Next(current time.Duration) time.Duration {
	if current <= 0 {
		return p.base()
	}
	max := p.max()
	if current >= max/2 {
		return max
	}
	return current * 2
}

func (p Policy) jitter(delay time.Duration) time.Duration {
	if p.Jitter <= 0 {
		return delay
	}
	spread := p.Jitter
	if spread > 1 {
		spread = 1
	}
	rnd := rand.Float64
	if p.randFn != nil {
		rnd = p.randFn
	}
	jittered := delay + time.Duration(float64(delay)*spread*rnd())
	if max := p.max(); jittered > max {
		return max
	}
	return jittered
}

// Do runs fn until it succeeds, fails terminally, or MaxAttempts is spent.
// Only errors classified transient are retried.
func (p Policy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	made := 0
	err := retrygo.Do(
		func() error {
			made++
			return fn(ctx)
		},
		retrygo.Context(ctx),
		retrygo.Attempts(uint(attempts)),
		retrygo.LastErrorOnly(true),
		retrygo.RetryIf(func(err error) bool {
			return Classify(err).IsTransient()
		}),
		retrygo.DelayType(func(n uint, _ error, _ *retrygo.Config) time.Duration {
			return p.Delay(int(n) + 1)
		}),
		retrygo.OnRetry(func(n uint, err error) {
			if p.Logger == nil {
				return
			}
			decision := Classify(err)
			p.Logger.Warn("retrying rpc call",
				"op", op,
				"attempt", n+1,
				"classification", decision.Class,
				"classification_reason", decision.Reason,
				"error", err,
			)
		}),
	)
	if err == nil {
		return nil
	}

	decision := Classify(err)
	if !decision.IsTransient() {
		return fmt.Errorf("terminal_failure op=%s attempt=%d reason=%s: %w", op, made, decision.Reason, err)
	}
	return fmt.Errorf("transient_recovery_exhausted op=%s attempts=%d reason=%s: %w", op, made, decision.Reason, err)
}
