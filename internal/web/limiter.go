package web

// limiter.go bounds the number of table builds running at once.
//
// Builds hold a whole request body in memory and fan rows out to a worker
// pool, so the limiter uses a semaphore to cap them. When every slot is
// taken a request waits up to maxWait before failing with ErrTooManyBuilds.
// WaitForDrain lets shutdown block until running builds finish.

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTooManyBuilds is returned when all build slots are occupied and the
// wait timeout expires. Clients should retry after a short delay.
var ErrTooManyBuilds = errors.New("too many concurrent builds, please try again later")

// DefaultMaxConcurrentBuilds is the default limit for parallel builds.
const DefaultMaxConcurrentBuilds = 5

// DefaultMaxWaitTime is how long to wait for a slot before rejecting.
const DefaultMaxWaitTime = 30 * time.Second

// BuildLimiter controls concurrent builds using a semaphore.
type BuildLimiter struct {
	semaphore chan struct{}
	maxWait   time.Duration

	mu     sync.RWMutex
	active int
}

// NewBuildLimiter creates a limiter that allows at most maxConcurrent
// simultaneous builds. Requests that cannot acquire a slot within maxWait
// receive ErrTooManyBuilds.
func NewBuildLimiter(maxConcurrent int, maxWait time.Duration) *BuildLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentBuilds
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}

	return &BuildLimiter{
		semaphore: make(chan struct{}, maxConcurrent),
		maxWait:   maxWait,
	}
}

// Acquire attempts to acquire a build slot.
// The caller MUST call Release() when the build completes (use defer).
func (l *BuildLimiter) Acquire(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return nil

	case <-waitCtx.Done():
		// Check if original context was cancelled vs timeout
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrTooManyBuilds
	}
}

// TryAcquire attempts to acquire a slot without blocking.
func (l *BuildLimiter) TryAcquire() bool {
	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return true
	default:
		return false
	}
}

// Release releases a previously acquired slot.
// Must be called exactly once for each successful Acquire/TryAcquire.
func (l *BuildLimiter) Release() {
	l.mu.Lock()
	l.active--
	l.mu.Unlock()

	<-l.semaphore
}

// ActiveCount returns the number of running builds.
func (l *BuildLimiter) ActiveCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.active
}

// Available returns the number of free slots.
func (l *BuildLimiter) Available() int {
	return cap(l.semaphore) - len(l.semaphore)
}

// WaitForDrain blocks until all running builds complete or ctx is done.
func (l *BuildLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// LimiterStatus is a snapshot of the limiter's state.
type LimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status returns the current limiter state for monitoring.
func (l *BuildLimiter) Status() LimiterStatus {
	l.mu.RLock()
	active := l.active
	l.mu.RUnlock()

	return LimiterStatus{
		Active:        active,
		Available:     cap(l.semaphore) - len(l.semaphore),
		MaxConcurrent: cap(l.semaphore),
	}
}
