// Package ratelimit provides per-key token-bucket rate limiting.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// cleanupInterval is how often idle entries are reaped.
const cleanupInterval = 5 * time.Minute

type entry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// Limiter hands out one token bucket per key and reaps entries that have
// not been used for a while. Keys are connection identities here, but the
// limiter does not care.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*entry
	rate    rate.Limit
	burst   int
	stopCh  chan struct{}
}

// New creates a Limiter allowing r events per second with the given burst,
// and starts the background cleanup loop.
func New(r rate.Limit, burst int) *Limiter {
	l := &Limiter{
		entries: make(map[string]*entry),
		rate:    r,
		burst:   burst,
		stopCh:  make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

// Allow reports whether key may proceed now, consuming a token if so.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.entries[key] = e
	}
	e.lastAccess = time.Now()
	l.mu.Unlock()

	return e.limiter.Allow()
}

// Forget drops the entry for key. Call it when the connection closes so a
// reused identity starts with a full bucket.
func (l *Limiter) Forget(key string) {
	l.mu.Lock()
	delete(l.entries, key)
	l.mu.Unlock()
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Stop terminates the cleanup loop.
func (l *Limiter) Stop() {
	close(l.stopCh)
}

func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.cleanup()
		case <-l.stopCh:
			return
		}
	}
}

// cleanup removes entries idle for more than twice the cleanup interval.
func (l *Limiter) cleanup() {
	ttl := 2 * cleanupInterval
	now := time.Now()

	l.mu.Lock()
	for key, e := range l.entries {
		if now.Sub(e.lastAccess) > ttl {
			delete(l.entries, key)
		}
	}
	l.mu.Unlock()
}
