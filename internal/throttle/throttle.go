// Package throttle keeps one token bucket per key (an address, a client IP) on top of golang.org/x/time/rate.
package throttle

import (
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

// ErrThrottled is returned by Check when the key has no tokens left.
var ErrThrottled = errors.New("too many requests")

// pruneAbove is the number of tracked keys above which idle buckets are dropped.
const pruneAbove = 4096

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter rate-limits independent keys. Each key gets burst tokens, refilled one per interval.
type Limiter struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	interval time.Duration
	burst    int
	clock    clockwork.Clock
}

// New returns a Limiter. A non-positive interval disables limiting. clock may be nil.
func New(interval time.Duration, burst int, clock clockwork.Clock) *Limiter {
	if burst < 1 {
		burst = 1
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Limiter{buckets: make(map[string]*bucket), interval: interval, burst: burst, clock: clock}
}

// PerMinute returns a Limiter allowing n events per minute per key with a burst of n.
func PerMinute(n int, clock clockwork.Clock) *Limiter {
	if n <= 0 {
		return New(0, 1, clock)
	}
	return New(time.Minute/time.Duration(n), n, clock)
}

// Allow takes one token for key.
func (l *Limiter) Allow(key string) bool {
	if l.interval <= 0 {
		return true
	}
	now := l.clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		if len(l.buckets) >= pruneAbove {
			l.prune(now)
		}
		b = &bucket{limiter: rate.NewLimiter(rate.Every(l.interval), l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// Check is Allow returning ErrThrottled.
func (l *Limiter) Check(key string) error {
	if !l.Allow(key) {
		return ErrThrottled
	}
	return nil
}

// prune drops buckets idle long enough to have refilled completely. Callers hold mu.
func (l *Limiter) prune(now time.Time) {
	full := l.interval * time.Duration(l.burst)
	for k, b := range l.buckets {
		if now.Sub(b.lastSeen) >= full {
			delete(l.buckets, k)
		}
	}
}
