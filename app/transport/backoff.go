package transport

import "time"

// BackoffPolicy describes one retry budget.
type BackoffPolicy struct {
	Base     time.Duration
	Max      time.Duration // 0 means uncapped
	Factor   float64       // growth per retry, ignored when Linear
	Linear   bool          // delay = Base * retry
	Attempts int           // retries allowed after the first request
}

func (p BackoffPolicy) New() *Backoff {
	return &Backoff{policy: p}
}

// Backoff is the retry state for one request: attempt count, current delay and cap.
type Backoff struct {
	policy  BackoffPolicy
	attempt int
	current time.Duration
}

// Next advances the state and returns the delay before the next retry.
// It returns false once the budget is spent.
func (b *Backoff) Next() (time.Duration, bool) {
	if b.attempt >= b.policy.Attempts {
		return 0, false
	}
	b.attempt++

	var d time.Duration
	switch {
	case b.policy.Linear:
		d = b.policy.Base * time.Duration(b.attempt)
	case b.attempt == 1:
		d = b.policy.Base
	default:
		factor := b.policy.Factor
		if factor < 1 {
			factor = 1
		}
		d = time.Duration(float64(b.current) * factor)
	}

	if b.policy.Max > 0 && d > b.policy.Max {
		d = b.policy.Max
	}
	b.current = d
	return d, true
}

func (b *Backoff) Attempts() int {
	return b.attempt
}

func (b *Backoff) Current() time.Duration {
	return b.current
}

func (b *Backoff) Reset() {
	b.attempt = 0
	b.current = 0
}
