package httpx

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// PerClientRateLimiter keeps one token bucket per client key.
type PerClientRateLimiter struct {
	lastCleanup     time.Time
	now             func() time.Time
	clients         map[string]*clientLimiter
	limit           rate.Limit
	burst           int
	cleanupInterval time.Duration
	maxIdleTime     time.Duration
	requests        int64
	rejected        int64
	mu              sync.Mutex
}

// NewPerClientRateLimiter allows perSecond requests per client with the given burst.
func NewPerClientRateLimiter(perSecond float64, burst int) *PerClientRateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &PerClientRateLimiter{
		limit:           rate.Limit(perSecond),
		burst:           burst,
		now:             time.Now,
		clients:         make(map[string]*clientLimiter),
		cleanupInterval: 5 * time.Minute,
		maxIdleTime:     10 * time.Minute,
		lastCleanup:     time.Now(),
	}
}

// Allow reports whether a request from key may proceed now.
func (l *PerClientRateLimiter) Allow(key string) bool {
	l.mu.Lock()
	now := l.now()
	if now.Sub(l.lastCleanup) > l.cleanupInterval {
		l.cleanupLocked(now)
	}

	c, ok := l.clients[key]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = c
	}
	c.lastSeen = now
	l.requests++
	allowed := c.limiter.AllowN(now, 1)
	if !allowed {
		l.rejected++
	}
	l.mu.Unlock()
	return allowed
}

// cleanupLocked drops idle clients. Caller holds l.mu.
func (l *PerClientRateLimiter) cleanupLocked(now time.Time) {
	for key, c := range l.clients {
		if now.Sub(c.lastSeen) > l.maxIdleTime {
			delete(l.clients, key)
		}
	}
	l.lastCleanup = now
}

// Stats returns aggregate statistics.
func (l *PerClientRateLimiter) Stats() map[string]any {
	l.mu.Lock()
	defer l.mu.Unlock()
	return map[string]any{
		"rate":           float64(l.limit),
		"burst":          l.burst,
		"active_clients": len(l.clients),
		"total_requests": l.requests,
		"total_rejected": l.rejected,
	}
}

// Middleware rejects requests over the client's budget with 429.
// Clients are keyed by IP; run chi's RealIP first when behind a proxy.
func (l *PerClientRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(clientKey(r)) {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
