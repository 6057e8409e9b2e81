package client

import (
	"context"
	"io"
	"sync"
	"time"
)

// RateLimiter is a token bucket measured in bytes per second, shared by all
// downloads of one Client.
type RateLimiter struct {
	mu     sync.Mutex
	rate   int64   // bytes per second
	tokens float64 // current available tokens
	last   time.Time
}

// NewRateLimiter returns a limiter for bytesPerSecond, or nil (unlimited) when it is not positive.
func NewRateLimiter(bytesPerSecond int64) *RateLimiter {
	if bytesPerSecond <= 0 {
		return nil
	}
	return &RateLimiter{rate: bytesPerSecond, tokens: float64(bytesPerSecond), last: time.Now()}
}

// SetRate changes the limit; a non-positive rate disables limiting.
func (l *RateLimiter) SetRate(bytesPerSecond int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rate = bytesPerSecond
	if bytesPerSecond > 0 && l.tokens > float64(bytesPerSecond) {
		l.tokens = float64(bytesPerSecond)
	}
	l.last = time.Now()
}

// Rate returns the current limit in bytes per second.
func (l *RateLimiter) Rate() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rate
}

// Reader wraps r so reads are paced by the limiter. A nil limiter returns r.
func (l *RateLimiter) Reader(ctx context.Context, r io.Reader) io.Reader {
	if l == nil {
		return r
	}
	return &limitedReader{ctx: ctx, under: r, lim: l}
}

// take blocks until at least one byte may be read and returns how many may be read now.
func (l *RateLimiter) take(ctx context.Context, want int) (int, error) {
	for {
		l.mu.Lock()
		if l.rate <= 0 {
			l.mu.Unlock()
			return want, nil
		}
		now := time.Now()
		if elapsed := now.Sub(l.last).Seconds(); elapsed > 0 {
			l.tokens += elapsed * float64(l.rate)
			if maxTokens := float64(l.rate); l.tokens > maxTokens {
				l.tokens = maxTokens
			}
			l.last = now
		}
		allowed := int(l.tokens)
		if allowed > 0 {
			if want > allowed {
				want = allowed
			}
			l.tokens -= float64(want)
			l.mu.Unlock()
			return want, nil
		}
		wait := time.Duration(float64(time.Second) * (1 - l.tokens) / float64(l.rate))
		l.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return 0, ctx.Err()
		case <-timer.C:
		}
	}
}

// refund returns tokens reserved by take but not consumed by a short read.
func (l *RateLimiter) refund(n int) {
	if n <= 0 {
		return
	}
	l.mu.Lock()
	l.tokens += float64(n)
	l.mu.Unlock()
}

type limitedReader struct {
	ctx   context.Context
	under io.Reader
	lim   *RateLimiter
}

func (lr *limitedReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return lr.under.Read(p)
	}
	allowed, err := lr.lim.take(lr.ctx, len(p))
	if err != nil {
		return 0, err
	}
	n, err := lr.under.Read(p[:allowed])
	lr.lim.refund(allowed - n)
	return n, err
}
