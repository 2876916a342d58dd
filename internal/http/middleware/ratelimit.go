package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// SourceLimiter throttles requests per source address with a token bucket.
// The admin portal sits behind it; carrier webhooks do not, since Telnyx and
// Twilio retry from shared egress ranges and a shared bucket would drop
// legitimate call events.
type SourceLimiter struct {
	mu      sync.Mutex
	buckets map[string]*tokenBucket
	rate    float64 // tokens refilled per second
	burst   int
	now     func() time.Time
}

type tokenBucket struct {
	tokens float64
	seen   time.Time
}

// NewSourceLimiter creates a limiter refilling rate tokens/sec up to burst
// per source. A background sweep drops sources idle for ten minutes.
func NewSourceLimiter(rate float64, burst int) *SourceLimiter {
	sl := &SourceLimiter{
		buckets: make(map[string]*tokenBucket),
		rate:    rate,
		burst:   burst,
		now:     time.Now,
	}
	go sl.sweep()
	return sl
}

// Allow spends one token for source, refilling first from elapsed time.
func (sl *SourceLimiter) Allow(source string) bool {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	now := sl.now()
	b, ok := sl.buckets[source]
	if !ok {
		b = &tokenBucket{tokens: float64(sl.burst), seen: now}
		sl.buckets[source] = b
	}

	b.tokens += now.Sub(b.seen).Seconds() * sl.rate
	if b.tokens > float64(sl.burst) {
		b.tokens = float64(sl.burst)
	}
	b.seen = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

func (sl *SourceLimiter) sweep() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		sl.mu.Lock()
		cutoff := sl.now().Add(-10 * time.Minute)
		for source, b := range sl.buckets {
			if b.seen.Before(cutoff) {
				delete(sl.buckets, source)
			}
		}
		sl.mu.Unlock()
	}
}

// clientSource identifies the caller for throttling: the address chi's RealIP
// middleware resolved when present, otherwise the peer address without port.
func clientSource(r *http.Request) string {
	if xri := r.Header.Get("X-Real-Ip"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimit rejects requests beyond the configured rate with 429.
func RateLimit(rate float64, burst int) func(http.Handler) http.Handler {
	limiter := NewSourceLimiter(rate, burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(clientSource(r)) {
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
