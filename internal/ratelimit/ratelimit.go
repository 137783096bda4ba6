// Package ratelimit protects the event ingestion and management APIs from
// floods.
//
// Buckets are keyed per monitored user when the route names one, falling
// back to the API key and then the client IP. Collectors for many users
// regularly share one egress address, so pure per-IP limiting would let a
// single runaway collector starve the rest of a deployment.
package ratelimit

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// Config tunes the token buckets.
type Config struct {
	// RequestsPerMinute is the sustained per-key rate.
	RequestsPerMinute int
	// BurstSize is the bucket capacity. Reconnecting collectors flush
	// buffered events in bursts well above the sustained rate.
	BurstSize int
	// CleanupInterval is how often idle buckets are dropped.
	CleanupInterval time.Duration
}

// DefaultConfig sizes buckets for live typing: keystroke and pointer
// events arrive continuously at a few per second per user.
func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 600, // 10 events/sec sustained
		BurstSize:         120, // several seconds of buffered replay
		CleanupInterval:   time.Minute,
	}
}

// Limiter tracks a token bucket per key.
type Limiter struct {
	cfg     Config
	mu      sync.Mutex
	buckets map[string]*bucket
	stop    chan struct{}
}

type bucket struct {
	tokens float64
	last   time.Time
}

// New creates a limiter and starts its bucket reaper.
func New(cfg Config) *Limiter {
	l := &Limiter{
		cfg:     cfg,
		buckets: make(map[string]*bucket),
		stop:    make(chan struct{}),
	}
	go l.reap()
	return l
}

// reap drops buckets idle for two cleanup intervals.
func (l *Limiter) reap() {
	ticker := time.NewTicker(l.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-2 * l.cfg.CleanupInterval)
			l.mu.Lock()
			for key, b := range l.buckets {
				if b.last.Before(cutoff) {
					delete(l.buckets, key)
				}
			}
			l.mu.Unlock()
		case <-l.stop:
			return
		}
	}
}

// Stop ends the background reaper.
func (l *Limiter) Stop() {
	close(l.stop)
}

// Allow consumes one token from key's bucket and reports whether the
// request may proceed.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, ok := l.buckets[key]
	if !ok {
		l.buckets[key] = &bucket{
			tokens: float64(l.cfg.BurstSize - 1),
			last:   now,
		}
		return true
	}

	refill := now.Sub(b.last).Seconds() * float64(l.cfg.RequestsPerMinute) / 60.0
	b.tokens += refill
	if capacity := float64(l.cfg.BurstSize); b.tokens > capacity {
		b.tokens = capacity
	}
	b.last = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Middleware returns gin middleware enforcing the limit. Key precedence:
// monitored user, API key, client IP.
func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if auth := c.GetHeader("Authorization"); auth != "" {
			key = "key:" + auth[:min(20, len(auth))]
		}
		if userID := c.Param("userId"); userID != "" {
			key = "user:" + userID
		}

		if !l.Allow(key) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate_limit_exceeded",
				"message":     "Too many requests. Please slow down.",
				"retry_after": 1,
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
