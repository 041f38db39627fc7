package embedding

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter defaults.
const (
	defaultWindow    = time.Minute
	defaultRPM       = 300
	defaultMaxActive = 5
	minRetryAfter    = 100 * time.Millisecond
)

// RateLimitError is returned when an admission is denied. RetryAfter is a
// hint for when a retry is likely to succeed.
type RateLimitError struct {
	Reason     string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited (%s), retry after %v", e.Reason, e.RetryAfter)
}

// Limiter combines a token bucket with a sliding window and an
// active-request ceiling. Admit never blocks; callers get an immediate
// decision and back off themselves.
type Limiter struct {
	mu         sync.Mutex
	timestamps []time.Time
	active     int

	rpm       int
	maxActive int
	window    time.Duration
	bucket    *rate.Limiter
	now       func() time.Time
}

// NewLimiter creates a limiter admitting at most rpm requests per sliding
// window with at most maxActive in flight. Zero values select defaults.
func NewLimiter(rpm, maxActive int) *Limiter {
	if rpm <= 0 {
		rpm = defaultRPM
	}
	if maxActive <= 0 {
		maxActive = defaultMaxActive
	}
	return &Limiter{
		rpm:       rpm,
		maxActive: maxActive,
		window:    defaultWindow,
		bucket:    rate.NewLimiter(rate.Limit(float64(rpm)/defaultWindow.Seconds()), rpm),
		now:       time.Now,
	}
}

// Admit asks for one request slot. On success the returned release must be
// called when the request finishes; calling it more than once is safe. On
// denial the error is a *RateLimitError with a retry-after hint.
func (l *Limiter) Admit(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.pruneLocked(now)

	if l.active >= l.maxActive {
		return nil, &RateLimitError{
			Reason:     fmt.Sprintf("%d requests in flight", l.active),
			RetryAfter: minRetryAfter,
		}
	}
	if len(l.timestamps) >= l.rpm {
		return nil, &RateLimitError{
			Reason:     fmt.Sprintf("%d requests in the last %v", len(l.timestamps), l.window),
			RetryAfter: l.retryAfterLocked(now),
		}
	}
	// Smoothing stage: spreads admissions across the window instead of
	// letting a burst exhaust it up front.
	if !l.bucket.AllowN(now, 1) {
		return nil, &RateLimitError{
			Reason:     "burst exhausted",
			RetryAfter: minRetryAfter,
		}
	}

	l.timestamps = append(l.timestamps, now)
	l.active++

	var once sync.Once
	release := func() {
		once.Do(func() {
			l.mu.Lock()
			l.active--
			l.mu.Unlock()
		})
	}
	return release, nil
}

// InFlight returns the number of admitted requests not yet released.
func (l *Limiter) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// pruneLocked drops timestamps that slid out of the window.
func (l *Limiter) pruneLocked(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.timestamps) && !l.timestamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.timestamps = append(l.timestamps[:0], l.timestamps[i:]...)
	}
}

// retryAfterLocked hints when the oldest windowed admission expires.
func (l *Limiter) retryAfterLocked(now time.Time) time.Duration {
	if len(l.timestamps) == 0 {
		return minRetryAfter
	}
	d := l.timestamps[0].Add(l.window).Sub(now)
	if d < minRetryAfter {
		d = minRetryAfter
	}
	return d
}
