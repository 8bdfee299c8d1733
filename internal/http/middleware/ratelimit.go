package middleware

import (
	"math"
	"net/http"
	"sync"
	"time"
)

// Throttle keeps one token bucket per client IP. Session creation is the only
// funnel endpoint that allocates server state on every request, so it is the
// one route that carries this limiter; the knobs map to the router config's
// RateLimitPerSecond and RateLimitBurst.
type Throttle struct {
	mu        sync.Mutex
	perSecond float64
	burst     int
	clients   map[string]*tokenBucket
}

type tokenBucket struct {
	tokens   float64
	lastSeen time.Time
}

// NewThrottle creates a throttle refilling perSecond tokens per client, up to
// burst.
func NewThrottle(perSecond float64, burst int) *Throttle {
	th := &Throttle{
		perSecond: perSecond,
		burst:     burst,
		clients:   make(map[string]*tokenBucket),
	}
	go th.evictIdle(10*time.Minute, 30*time.Minute)
	return th
}

// allow refills the caller's bucket for the time elapsed since its previous
// request, then spends one token if one is available.
func (th *Throttle) allow(ip string, now time.Time) bool {
	th.mu.Lock()
	defer th.mu.Unlock()

	b, ok := th.clients[ip]
	if !ok {
		b = &tokenBucket{tokens: float64(th.burst), lastSeen: now}
		th.clients[ip] = b
	}
	b.tokens = math.Min(float64(th.burst), b.tokens+now.Sub(b.lastSeen).Seconds()*th.perSecond)
	b.lastSeen = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// evictIdle drops buckets not seen for the idle window, so one-visit IPs do
// not accumulate for the life of the process.
func (th *Throttle) evictIdle(every, idle time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-idle)
		th.mu.Lock()
		for ip, b := range th.clients {
			if b.lastSeen.Before(cutoff) {
				delete(th.clients, ip)
			}
		}
		th.mu.Unlock()
	}
}

// RateLimit rejects callers past their per-IP budget with 429 Too Many
// Requests.
func RateLimit(perSecond float64, burst int) func(http.Handler) http.Handler {
	th := NewThrottle(perSecond, burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// The X-Real-Ip header set by chi's RealIP middleware wins over
			// the raw peer address.
			ip := r.Header.Get("X-Real-Ip")
			if ip == "" {
				ip = r.RemoteAddr
			}
			if !th.allow(ip, time.Now()) {
				http.Error(w, "Trop de requêtes. Merci de patienter avant de réessayer.", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
