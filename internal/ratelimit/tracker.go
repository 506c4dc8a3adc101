package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// pruneThreshold is the tracked-key count above which expired windows are swept.
const pruneThreshold = 4096

// CheckResult is the outcome of a rate limit check.
type CheckResult struct {
	Exceeded   bool
	Current    int
	Limit      int
	RetryAfter time.Duration
	Reason     string
}

// Check compares the current count against the limit.
func Check(count int, limit Limit) CheckResult {
	if !limit.Enabled() {
		return CheckResult{}
	}
	if count >= limit.MaxRequests {
		return CheckResult{
			Exceeded: true,
			Current:  count,
			Limit:    limit.MaxRequests,
			Reason: fmt.Sprintf("rate limit exceeded: %d/%d requests in %s window",
				count, limit.MaxRequests, limit.Window),
		}
	}
	return CheckResult{}
}

type window struct {
	start time.Time
	count int
}

// Limiter tracks one fixed window per key. Safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window
}

// NewLimiter returns an empty limiter.
func NewLimiter() *Limiter {
	return &Limiter{windows: make(map[string]*window)}
}

// Allow records a request for key and reports whether it exceeded limit.
// The limit is passed per call so a policy reload takes effect immediately.
// Requests over the limit are not counted.
func (l *Limiter) Allow(key string, limit Limit, now time.Time) CheckResult {
	if !limit.Enabled() {
		return CheckResult{}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.windows) > pruneThreshold {
		l.prune(limit.Window, now)
	}

	w := l.windows[key]
	if w == nil || now.Sub(w.start) >= limit.Window {
		w = &window{start: now}
		l.windows[key] = w
	}

	result := Check(w.count, limit)
	if result.Exceeded {
		result.RetryAfter = w.start.Add(limit.Window).Sub(now)
		return result
	}
	w.count++
	return result
}

// Snapshot returns the count in key's current window.
func (l *Limiter) Snapshot(key string, limit Limit, now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	w := l.windows[key]
	if w == nil || now.Sub(w.start) >= limit.Window {
		return 0
	}
	return w.count
}

func (l *Limiter) prune(win time.Duration, now time.Time) {
	for k, w := range l.windows {
		if now.Sub(w.start) >= win {
			delete(l.windows, k)
		}
	}
}
