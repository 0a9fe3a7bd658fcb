// Copyright © 2025-2026 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package rate

import (
	"sync"

	"github.com/go-core-stack/storage-proxy/errors"
)

// Controller holds the current throttle rate and tracks the limiters
// that were handed out and are still in use.
type Controller struct {
	mu       sync.RWMutex        // protects rate and the limiter registry
	rate     int64               // bytes per second, 0 means unlimited
	limiters map[string]*Limiter // registry of limiters not yet released
}

// Rate returns the current throttle rate in bytes per second.
func (c *Controller) Rate() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rate
}

// SetRate updates the throttle rate. Limiters already handed out keep
// the rate they captured. Negative values are treated as zero.
func (c *Controller) SetRate(r int64) {
	if r < 0 {
		r = 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rate = r
}

// Active returns the number of limiters that are not yet released.
func (c *Controller) Active() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.limiters)
}

// NewLimiter snapshots the current rate into a new limiter registered
// under the given key. The limiter must be released once the owner is
// done with it.
func (c *Controller) NewLimiter(key string) (*Limiter, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.limiters[key]; ok {
		return nil, errors.Wrapf(errors.AlreadyExists, "limiter %q, already exists", key)
	}
	lim := newLimiter(c.rate)
	lim.ctrl = c
	lim.key = key
	c.limiters[key] = lim
	return lim, nil
}

func (c *Controller) release(l *Limiter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.limiters[l.key]; ok && cur == l {
		delete(c.limiters, l.key)
	}
}

// NewController constructs a Controller with the specified initial rate.
func NewController(rate int64) *Controller {
	if rate < 0 {
		rate = 0
	}
	return &Controller{
		rate:     rate,
		limiters: make(map[string]*Limiter),
	}
}
