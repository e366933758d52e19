package ratelimiter

import (
	"sync"
	"time"
)

// Limiter allows one action per interval and is safe for concurrent use.
type Limiter struct {
	mu          sync.Mutex
	interval    time.Duration
	lastAllowed time.Time
	now         func() time.Time
}

// New creates a new rate limiter with the specified interval.
func New(interval time.Duration) *Limiter {
	return &Limiter{
		interval: interval,
		now:      time.Now,
	}
}

// Allow reports whether an action may run now. When rate-limited it also
// returns how long until the next action is allowed.
func (l *Limiter) Allow() (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return allow(&l.lastAllowed, l.now(), l.interval)
}

// Reset allows the next action immediately.
func (l *Limiter) Reset() {
	l.mu.Lock()
	l.lastAllowed = time.Time{}
	l.mu.Unlock()
}

// Interval returns the configured rate limit interval.
func (l *Limiter) Interval() time.Duration {
	return l.interval
}

// Keyed keeps an independent interval per key, e.g. one per transfer.
type Keyed struct {
	mu       sync.Mutex
	interval time.Duration
	last     map[string]time.Time
	now      func() time.Time
}

// NewKeyed creates a new keyed rate limiter with the specified interval.
func NewKeyed(interval time.Duration) *Keyed {
	return &Keyed{
		interval: interval,
		last:     make(map[string]time.Time),
		now:      time.Now,
	}
}

// Allow reports whether an action for key may run now.
func (k *Keyed) Allow(key string) (bool, time.Duration) {
	k.mu.Lock()
	defer k.mu.Unlock()

	last := k.last[key]
	ok, wait := allow(&last, k.now(), k.interval)
	k.last[key] = last
	return ok, wait
}

// Forget drops the state of key; its next action is allowed immediately.
func (k *Keyed) Forget(key string) {
	k.mu.Lock()
	delete(k.last, key)
	k.mu.Unlock()
}

// Len returns the number of tracked keys.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.last)
}

func allow(last *time.Time, now time.Time, interval time.Duration) (bool, time.Duration) {
	if last.IsZero() || now.Sub(*last) >= interval {
		*last = now
		return true, 0
	}
	return false, interval - now.Sub(*last)
}
