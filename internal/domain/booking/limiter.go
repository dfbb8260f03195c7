package booking

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// phoneLimiter throttles OTP issuance per phone number.
type phoneLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	limit    rate.Limit
	burst    int
	ttl      time.Duration
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newPhoneLimiter(perMinute, burst int) *phoneLimiter {
	if perMinute <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &phoneLimiter{
		limiters: make(map[string]*limiterEntry),
		limit:    rate.Limit(float64(perMinute) / 60),
		burst:    burst,
		ttl:      10 * time.Minute,
	}
}

// Allow consumes a token for phone. A nil limiter allows everything.
func (l *phoneLimiter) Allow(phone string, now time.Time) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.limiters[phone]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[phone] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// run drops idle phones every interval until ctx ends.
func (l *phoneLimiter) run(ctx context.Context, interval time.Duration) {
	if l == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.sweep(now)
		}
	}
}

func (l *phoneLimiter) sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for phone, e := range l.limiters {
		if now.Sub(e.lastSeen) > l.ttl {
			delete(l.limiters, phone)
		}
	}
}
