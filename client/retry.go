package client

import "time"

const (
	// DefaultMaxAttempts is the number of sends a retryable call gets, the first included.
	DefaultMaxAttempts = 3
	// DefaultRetryDelay is the base of the linear backoff.
	DefaultRetryDelay = time.Second
	// DefaultMaxRetryWait caps any single wait, including server-requested ones.
	DefaultMaxRetryWait = 30 * time.Second
)

// Decision is the outcome of consulting the retry policy after a failed attempt.
type Decision struct {
	Retry bool
	Wait  time.Duration
}

// Retryable reports whether failures of kind are transient.
// AuthExpired is not: it is recovered by refresh-and-replay, outside the retry budget.
func Retryable(kind ErrorKind) bool {
	switch kind {
	case KindNetwork, KindTimeout, KindServerError, KindRateLimited:
		return true
	default:
		return false
	}
}

// Decide applies the linear policy. attempt is zero-based: attempt 0 is the
// first send. The wait before the next send is baseDelay*(attempt+1).
func Decide(attempt, maxAttempts int, baseDelay time.Duration, kind ErrorKind) Decision {
	if !Retryable(kind) || attempt+1 >= maxAttempts {
		return Decision{}
	}
	return Decision{Retry: true, Wait: baseDelay * time.Duration(attempt+1)}
}

// RetryPolicy carries the configured budget.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxWait     time.Duration
}

// DefaultRetryPolicy returns the policy used when nothing is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultRetryDelay,
		MaxWait:     DefaultMaxRetryWait,
	}
}

// Decide consults the policy for err after the given zero-based attempt.
// A Retry-After sent with a 429 raises the wait, within MaxWait.
func (p RetryPolicy) Decide(attempt int, err *APIError) Decision {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	d := Decide(attempt, maxAttempts, p.BaseDelay, err.Kind)
	if !d.Retry {
		return d
	}
	if err.Kind == KindRateLimited && err.RetryAfter > d.Wait {
		d.Wait = err.RetryAfter
	}
	if p.MaxWait > 0 && d.Wait > p.MaxWait {
		d.Wait = p.MaxWait
	}
	return d
}
