// Package ratelimit implements the per-IP token bucket applied to
// PUT /pkarr/:key: 4 requests per second per client IP with a burst of 2,
// idle buckets swept every 60 seconds.
package ratelimit

import (
	"sync"
	"time"
)

const (
	// DefaultRate is the sustained rate, in requests per second, allowed
	// per client IP.
	DefaultRate = 4.0
	// DefaultBurst is the maximum number of requests a client may send
	// instantaneously before the sustained rate applies.
	DefaultBurst = 2
	// SweepInterval is how often idle buckets are evicted.
	SweepInterval = 60 * time.Second
	// idleTTL is how long a bucket may sit unused before a sweep removes it.
	idleTTL = 5 * time.Minute
)

type bucket struct {
	tokens float64
	last   time.Time
}

// Limiter is a per-IP token bucket limiter with a background sweeper.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64
	burst   int

	stop chan struct{}
	once sync.Once
}

// New builds a Limiter with the given rate and burst and starts its
// background sweep goroutine. Callers must call Stop when done.
func New(rate float64, burst int) *Limiter {
	l := &Limiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		burst:   burst,
		stop:    make(chan struct{}),
	}
	go l.sweepLoop()
	return l
}

// Allow reports whether a request from ip may proceed, consuming one token
// if so.
func (l *Limiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, exists := l.buckets[ip]
	now := time.Now()
	if !exists {
		b = &bucket{tokens: float64(l.burst), last: now}
		l.buckets[ip] = b
	}

	elapsed := now.Sub(b.last).Seconds()
	b.last = now
	b.tokens += elapsed * l.rate
	if b.tokens > float64(l.burst) {
		b.tokens = float64(l.burst)
	}

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// sweep removes buckets idle longer than idleTTL.
func (l *Limiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	for ip, b := range l.buckets {
		if now.Sub(b.last) > idleTTL {
			delete(l.buckets, ip)
		}
	}
}

func (l *Limiter) sweepLoop() {
	ticker := time.NewTicker(SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.sweep()
		case <-l.stop:
			return
		}
	}
}

// Stop terminates the background sweeper. Safe to call multiple times.
func (l *Limiter) Stop() {
	l.once.Do(func() { close(l.stop) })
}
