package ratelimit

import (
	"context"
	"math"
	"time"

	"github.com/wolfman30/cashoffer-funnel/pkg/logging"
)

// Window is the state of one identifier's current window.
type Window struct {
	Count int
	Start time.Time
}

// Counter stores fixed-window counts keyed by identifier.
type Counter interface {
	// Increment records one request for key at now and returns the window
	// it was counted in. A window older than size is replaced by a fresh one.
	Increment(ctx context.Context, key string, now time.Time, size time.Duration) (Window, error)
}

// Decision is the outcome of a rate limit check.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter int // whole seconds, only set when rejected
}

// Limiter admits at most capacity requests per identifier per window.
type Limiter struct {
	name     string
	capacity int
	window   time.Duration
	counter  Counter
	logger   *logging.Logger
	now      func() time.Time
}

// Option customizes a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLogger sets the logger used for counter failures.
func WithLogger(logger *logging.Logger) Option {
	return func(l *Limiter) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New builds a Limiter. name namespaces keys so endpoints sharing a counter do
// not share budgets.
func New(name string, capacity int, window time.Duration, counter Counter, opts ...Option) *Limiter {
	if capacity <= 0 {
		capacity = 5
	}
	if window <= 0 {
		window = time.Minute
	}
	l := &Limiter{
		name:     name,
		capacity: capacity,
		window:   window,
		counter:  counter,
		logger:   logging.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Name returns the key namespace.
func (l *Limiter) Name() string { return l.name }

// Capacity returns N.
func (l *Limiter) Capacity() int { return l.capacity }

// Check counts one request from identifier and decides whether to admit it.
// Counter failures fail open.
func (l *Limiter) Check(ctx context.Context, identifier string) Decision {
	if identifier == "" {
		identifier = "unknown"
	}
	now := l.now()
	win, err := l.counter.Increment(ctx, l.name+":"+identifier, now, l.window)
	if err != nil {
		l.logger.Warn("rate limit counter unavailable", "limiter", l.name, "error", err)
		return Decision{Allowed: true, Remaining: l.capacity - 1}
	}
	if win.Count <= l.capacity {
		return Decision{Allowed: true, Remaining: l.capacity - win.Count}
	}
	remaining := win.Start.Add(l.window).Sub(now)
	retry := int(math.Ceil(remaining.Seconds()))
	if retry < 1 {
		retry = 1
	}
	return Decision{Allowed: false, RetryAfter: retry}
}
