// Package ratelimit provides admission control for the contact endpoint.
//
// The algorithm is a fixed window, not a sliding one: counters reset at
// window boundaries, so a burst straddling two windows can admit up to
// twice the limit. That behaviour is intentional and matched by the tests.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter decides whether a request identified by key may proceed now.
// Implementations must be safe for concurrent use; the check and the
// counter increment happen as one atomic step.
type Limiter interface {
	Allow(key string) bool
}

// Default contact-endpoint policy.
const (
	DefaultMax    = 5
	DefaultWindow = time.Minute
)

type entry struct {
	count       int
	windowStart time.Time
}

// Window is an in-memory fixed-window Limiter keyed by client identifier.
//
// Entries are never evicted, so the map grows with the number of distinct
// identifiers seen over the process lifetime and resets on restart. That is
// acceptable for a single-instance deployment; multi-instance deployments
// need a Limiter backed by a shared store instead.
type Window struct {
	max    int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
}

// NewWindow constructs a Window limiter admitting max requests per key per
// window. Non-positive arguments fall back to the defaults.
func NewWindow(max int, window time.Duration) *Window {
	if max <= 0 {
		max = DefaultMax
	}
	if window <= 0 {
		window = DefaultWindow
	}

	return &Window{
		max:     max,
		window:  window,
		now:     time.Now,
		entries: make(map[string]*entry),
	}
}

// Allow reports whether the request is admitted and counts it if so.
// The first request in a new or expired window always passes.
func (w *Window) Allow(key string) bool {
	now := w.now()

	w.mu.Lock()
	defer w.mu.Unlock()

	e, ok := w.entries[key]
	if !ok || now.Sub(e.windowStart) > w.window {
		w.entries[key] = &entry{count: 1, windowStart: now}
		return true
	}

	if e.count >= w.max {
		return false
	}

	e.count++
	return true
}

// WithClock overrides the time source. Tests use this to step across
// window boundaries without sleeping.
func (w *Window) WithClock(now func() time.Time) *Window {
	if now != nil {
		w.now = now
	}
	return w
}
