package recovery

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"os"
	"time"
)

// RetryWithBackoff waits with exponential backoff before retrying the same
// state. Suited to transient faults: timeouts, connection resets, rate
// limits. Jitter spreads retries from concurrent agents apart.
type RetryWithBackoff struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Jitter    bool

	// Matches overrides the transient-fault test. Nil means the default
	// (network errors, timeouts, context deadline).
	Matches func(error) bool
}

// NewRetryWithBackoff returns a backoff strategy with the usual defaults:
// 1s base, 60s cap, jitter on.
func NewRetryWithBackoff() *RetryWithBackoff {
	return &RetryWithBackoff{
		BaseDelay: time.Second,
		MaxDelay:  60 * time.Second,
		Jitter:    true,
	}
}

func (r *RetryWithBackoff) CanHandle(err error) bool {
	if r.Matches != nil {
		return r.Matches(err)
	}
	return isTransient(err)
}

func (r *RetryWithBackoff) Apply(state map[string]any, err error, attempt int) map[string]any {
	if !r.CanHandle(err) {
		return nil
	}

	base := r.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	delay := base << uint(attempt)
	if r.MaxDelay > 0 && delay > r.MaxDelay {
		delay = r.MaxDelay
	}
	if r.Jitter {
		delay = time.Duration(float64(delay) * (0.5 + rand.Float64()))
	}
	time.Sleep(delay)

	state["_retry_metadata"] = map[string]any{
		"strategy":      "backoff",
		"attempt":       attempt + 1,
		"delay_applied": delay.Seconds(),
	}
	return state
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err)
}
