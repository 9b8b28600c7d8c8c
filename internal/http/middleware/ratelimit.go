package middleware

import (
	"net/http"
	"sync"
	"time"
)

const (
	evictEvery = 5 * time.Minute
	evictAfter = 10 * time.Minute
)

// RateLimiter enforces a per-client token bucket. Webhook endpoints use it
// to shed bursts from a single misbehaving source without affecting others.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*tokenBucket
	rate    float64
	burst   float64
	now     func() time.Time
}

type tokenBucket struct {
	tokens float64
	seen   time.Time
}

// NewRateLimiter allows rate requests per second with the given burst per
// client key.
func NewRateLimiter(rate float64, burst int) *RateLimiter {
	rl := &RateLimiter{
		clients: make(map[string]*tokenBucket),
		rate:    rate,
		burst:   float64(burst),
		now:     time.Now,
	}
	go rl.evictLoop()
	return rl
}

// Allow consumes one token for the client key, refilling first based on
// elapsed time. Returns false when the bucket is empty.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, ok := rl.clients[key]
	if !ok {
		b = &tokenBucket{tokens: rl.burst, seen: now}
		rl.clients[key] = b
	}

	b.tokens += now.Sub(b.seen).Seconds() * rl.rate
	if b.tokens > rl.burst {
		b.tokens = rl.burst
	}
	b.seen = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// evictLoop drops buckets idle longer than evictAfter so the map does not
// grow with one entry per address ever seen.
func (rl *RateLimiter) evictLoop() {
	ticker := time.NewTicker(evictEvery)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := rl.now().Add(-evictAfter)
		rl.mu.Lock()
		for key, b := range rl.clients {
			if b.seen.Before(cutoff) {
				delete(rl.clients, key)
			}
		}
		rl.mu.Unlock()
	}
}

// RateLimit rejects requests over the configured rate with 429. The client
// key is the X-Real-Ip header when chi's RealIP middleware has set it,
// falling back to RemoteAddr.
func RateLimit(rate float64, burst int) func(http.Handler) http.Handler {
	limiter := NewRateLimiter(rate, burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.RemoteAddr
			if xri := r.Header.Get("X-Real-Ip"); xri != "" {
				key = xri
			}
			if !limiter.Allow(key) {
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
