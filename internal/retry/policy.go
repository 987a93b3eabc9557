package retry

import (
	"context"
	"fmt"
	"time"

	ferrors "git.home.luguber.info/inful/sitepipe/internal/foundation/errors"
)

// Mode selects how the delay grows between attempts.
type Mode string

const (
	Fixed       Mode = "fixed"
	Linear      Mode = "linear"
	Exponential Mode = "exponential"
)

// Policy describes backoff for transient failures. It is immutable after
// construction.
type Policy struct {
	Mode       Mode
	Initial    time.Duration // first delay
	Max        time.Duration // cap
	MaxRetries int           // attempts after the first failure
}

// DefaultPolicy is exponential from 25ms, capped at 500ms, with 5 retries.
// It suits short lock contention on the state database.
func DefaultPolicy() Policy {
	return Policy{Mode: Exponential, Initial: 25 * time.Millisecond, Max: 500 * time.Millisecond, MaxRetries: 5}
}

// NewPolicy builds a policy; zero or unknown values keep the defaults.
func NewPolicy(mode Mode, initial, maxDelay time.Duration, maxRetries int) Policy {
	p := DefaultPolicy()
	if maxRetries >= 0 {
		p.MaxRetries = maxRetries
	}
	if initial > 0 {
		p.Initial = initial
	}
	if maxDelay > 0 {
		p.Max = maxDelay
	}
	switch mode {
	case Fixed, Linear, Exponential:
		p.Mode = mode
	}
	if p.Initial > p.Max {
		p.Initial = p.Max
	}
	return p
}

// Delay is the wait before retry n (1-based).
func (p Policy) Delay(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	var d time.Duration
	switch p.Mode {
	case Fixed:
		return p.Initial
	case Exponential:
		if n > 30 {
			return p.Max
		}
		d = p.Initial << (n - 1)
	default:
		d = time.Duration(n) * p.Initial
	}
	if d > p.Max || d <= 0 {
		return p.Max
	}
	return d
}

func (p Policy) Validate() error {
	if p.Initial <= 0 {
		return fmt.Errorf("initial must be >0")
	}
	if p.Max <= 0 {
		return fmt.Errorf("max must be >0")
	}
	if p.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	return nil
}

// Do runs op until it succeeds or fails with an error not classified as
// retryable (see ferrors.CanRetry). It gives up when retries are exhausted
// or ctx is done and returns the last error from op.
func (p Policy) Do(ctx context.Context, op func() error) error {
	err := op()
	for n := 1; err != nil && n <= p.MaxRetries && ferrors.CanRetry(err); n++ {
		t := time.NewTimer(p.Delay(n))
		select {
		case <-ctx.Done():
			t.Stop()
			return err
		case <-t.C:
		}
		err = op()
	}
	return err
}
