// Copyright © 2025-2026 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package rate

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultChunkSize is the largest unit of data moved per token
// acquisition, it also bounds the buffering of a Pipe.
const DefaultChunkSize = 32 * 1024

// Limiter wraps a token bucket rate limiter with the rate captured from
// the Controller at creation time.
type Limiter struct {
	ctrl    *Controller
	key     string
	rate    int64
	burst   int
	limiter *rate.Limiter // nil when the captured rate is unlimited
	once    sync.Once
}

func newLimiter(r int64) *Limiter {
	l := &Limiter{
		rate:  r,
		burst: DefaultChunkSize,
	}
	if r <= 0 {
		return l
	}
	if r < int64(l.burst) {
		l.burst = int(r)
	}
	l.limiter = rate.NewLimiter(rate.Limit(r), l.burst)
	// start with an empty bucket so that the very first chunk is paced
	// as well, otherwise a full burst would pass for free
	l.limiter.AllowN(time.Now(), l.burst)
	return l
}

// Key returns the key the limiter is registered with.
func (l *Limiter) Key() string {
	return l.key
}

// Rate returns the captured rate in bytes per second, 0 if unlimited.
func (l *Limiter) Rate() int64 {
	return l.rate
}

// Burst returns the chunk size to be used with this limiter, every
// WaitN call must ask for at most this many tokens.
func (l *Limiter) Burst() int {
	return l.burst
}

// WaitN acquires n tokens from the underlying rate limiter, blocking as
// needed. Unlimited limiters only report context cancellation.
func (l *Limiter) WaitN(ctx context.Context, n int) error {
	if l.limiter == nil {
		return ctx.Err()
	}
	return l.limiter.WaitN(ctx, n)
}

// Release unregisters the limiter from its Controller, it is safe to
// call more than once.
func (l *Limiter) Release() {
	l.once.Do(func() {
		if l.ctrl != nil {
			l.ctrl.release(l)
		}
	})
}

// Split returns an unregistered limiter with its own empty bucket paced
// at the same captured rate, so that two directions of one session are
// limited independently while being accounted once.
func (l *Limiter) Split() *Limiter {
	return newLimiter(l.rate)
}
