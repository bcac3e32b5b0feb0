package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryCounter keeps windows in process memory. Expired windows are evicted
// by a background sweep so the map does not grow without bound.
type MemoryCounter struct {
	mu      sync.Mutex
	windows map[string]*memWindow
	now     func() time.Time
	stop    chan struct{}
	once    sync.Once
}

type memWindow struct {
	count int
	start time.Time
	size  time.Duration
}

// NewMemoryCounter starts a counter swept every sweepEvery. A non-positive
// interval disables the sweep.
func NewMemoryCounter(sweepEvery time.Duration) *MemoryCounter {
	c := &MemoryCounter{
		windows: make(map[string]*memWindow),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	if sweepEvery > 0 {
		go c.sweepLoop(sweepEvery)
	}
	return c
}

// Increment implements Counter.
func (c *MemoryCounter) Increment(_ context.Context, key string, now time.Time, size time.Duration) (Window, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	w, ok := c.windows[key]
	if !ok || now.Sub(w.start) >= size {
		w = &memWindow{start: now, size: size}
		c.windows[key] = w
	}
	w.count++
	return Window{Count: w.count, Start: w.start}, nil
}

// Sweep removes every window that has fully elapsed at now.
func (c *MemoryCounter) Sweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for key, w := range c.windows {
		if now.Sub(w.start) >= w.size {
			delete(c.windows, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked identifiers.
func (c *MemoryCounter) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.windows)
}

// Close stops the sweep goroutine.
func (c *MemoryCounter) Close() error {
	c.once.Do(func() { close(c.stop) })
	return nil
}

func (c *MemoryCounter) sweepLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.Sweep(c.now())
		}
	}
}
