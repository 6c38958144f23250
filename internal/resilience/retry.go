package resilience

import (
	"context"
	"errors"
	"math/rand/v2"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Policy retries the transient failures of a remote read, such as a
// registry sheet download. The zero value is usable.
type Policy struct {
	// Op names the operation in retry logs, e.g. "registry download".
	Op string
	// Attempts is the total number of tries. Default 3.
	Attempts int
	// Base is the wait before the first retry; it doubles per retry up to
	// Cap. Defaults 500ms and 30s.
	Base time.Duration
	Cap  time.Duration
	// Jitter spreads each wait by up to ±Jitter of itself.
	Jitter float64
	// Retryable overrides IsTransient.
	Retryable func(error) bool

	sleep func(context.Context, time.Duration) error
}

// DownloadPolicy is the policy for fetching registry data from a URL.
func DownloadPolicy(attempts int) Policy {
	return Policy{
		Op:       "registry download",
		Attempts: attempts,
		Base:     200 * time.Millisecond,
		Cap:      10 * time.Second,
		Jitter:   0.25,
	}
}

func (p Policy) withDefaults() Policy {
	if p.Attempts <= 0 {
		p.Attempts = 3
	}
	if p.Base <= 0 {
		p.Base = 500 * time.Millisecond
	}
	if p.Cap <= 0 {
		p.Cap = 30 * time.Second
	}
	if p.Cap < p.Base {
		p.Cap = p.Base
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	if p.Retryable == nil {
		p.Retryable = IsTransient
	}
	if p.sleep == nil {
		p.sleep = sleep
	}
	return p
}

// Delay returns the wait before retry n (1-based) after err. A server that
// answered 429 gets one extra doubling, still bounded by Cap.
func (p Policy) Delay(n int, err error) time.Duration {
	p = p.withDefaults()
	d := p.Base
	for i := 1; i < n && d < p.Cap; i++ {
		d *= 2
	}
	var te *TransientError
	if errors.As(err, &te) && te.StatusCode == http.StatusTooManyRequests {
		d *= 2
	}
	if d > p.Cap {
		d = p.Cap
	}
	if p.Jitter > 0 {
		d += time.Duration((rand.Float64()*2 - 1) * p.Jitter * float64(d))
	}
	return max(d, 0)
}

// Run calls fn until it succeeds, fails with an error the policy does not
// retry, runs out of attempts, or ctx is done. fn receives the 1-based
// attempt number. The last error is returned unwrapped.
func Run[T any](ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	p = p.withDefaults()

	var zero T
	for attempt := 1; ; attempt++ {
		val, err := fn(ctx, attempt)
		if err == nil {
			return val, nil
		}
		if ctx.Err() != nil || !p.Retryable(err) || attempt >= p.Attempts {
			return zero, err
		}

		wait := p.Delay(attempt, err)
		zap.L().Warn("retrying",
			zap.String("op", p.Op),
			zap.Int("attempt", attempt),
			zap.Int("of", p.Attempts),
			zap.Duration("wait", wait),
			zap.String("kind", Kind(err)),
			zap.Error(err),
		)
		if p.sleep(ctx, wait) != nil {
			return zero, err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
