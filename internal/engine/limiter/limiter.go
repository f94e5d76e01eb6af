// Package limiter provides the global byte budget shared by every transfer.
// The budget is a rolling one-second window: each Acquire adds to the bytes
// consumed in the current window and sleeps just long enough that the
// cumulative consumption matches the configured rate.
package limiter

import (
	"context"
	"sync"
	"time"
)

// Limiter caps aggregate throughput across all callers to a number of bytes
// per wall-clock second. A limit of 0 disables throttling.
type Limiter struct {
	mu          sync.Mutex
	limit       int64 // bytes per second, 0 = unlimited
	windowStart time.Time
	consumed    int64
}

func New(bytesPerSec int64) *Limiter {
	if bytesPerSec < 0 {
		bytesPerSec = 0
	}
	return &Limiter{
		limit:       bytesPerSec,
		windowStart: time.Now(),
	}
}

// Limit returns the current rate cap in bytes per second.
func (l *Limiter) Limit() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limit
}

// SetLimit replaces the rate cap and resets the accounting window.
func (l *Limiter) SetLimit(bytesPerSec int64) {
	if bytesPerSec < 0 {
		bytesPerSec = 0
	}
	l.mu.Lock()
	l.limit = bytesPerSec
	l.windowStart = time.Now()
	l.consumed = 0
	l.mu.Unlock()
}

// ChunkSize returns the read size workers should use so that a transfer hits
// the limiter at least four times per budgeted second. Unlimited transfers
// read 8 KiB at a time.
func (l *Limiter) ChunkSize() int {
	limit := l.Limit()
	if limit == 0 {
		return 8192
	}
	chunk := limit / 4
	if chunk < 1024 {
		chunk = 1024
	}
	return int(chunk)
}

// Acquire charges n bytes against the current window and blocks until the
// cumulative consumption is back under the rate cap. The sleep aborts early
// when ctx is cancelled; the caller re-checks cancellation before writing.
func (l *Limiter) Acquire(ctx context.Context, n int64) error {
	l.mu.Lock()
	if l.limit == 0 {
		l.mu.Unlock()
		return nil
	}

	now := time.Now()
	elapsed := now.Sub(l.windowStart)
	if elapsed >= time.Second {
		l.windowStart = now
		l.consumed = 0
		elapsed = 0
	}

	l.consumed += n

	// How long this much data should have taken at the configured rate.
	expected := time.Duration(float64(l.consumed) / float64(l.limit) * float64(time.Second))
	sleep := expected - elapsed
	windowFull := l.consumed >= l.limit
	l.mu.Unlock()

	if sleep > 0 {
		timer := time.NewTimer(sleep)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	// A full second's worth of data has been charged: start the next window
	// only now, so the sleep above counts against this window, not the next.
	if windowFull {
		l.mu.Lock()
		l.windowStart = time.Now()
		l.consumed = 0
		l.mu.Unlock()
	}
	return nil
}
