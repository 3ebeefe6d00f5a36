package httpserver

import (
	"net"
	"net/http"
	"sync"
	"time"

	"paperledger/internal/httputil"
)

// SecurityHeaders adds standard security headers to every response.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
}

type visitor struct {
	lastSeen time.Time
	tokens   float64
}

var limiter = &rateLimiter{visitors: make(map[string]*visitor)}

func (rl *rateLimiter) pruneVisitors() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := time.Now()
	for ip, v := range rl.visitors {
		if now.Sub(v.lastSeen) > 3*time.Minute {
			delete(rl.visitors, ip)
		}
	}
}

func init() {
	go func() {
		for {
			time.Sleep(time.Minute)
			limiter.pruneVisitors()
		}
	}()
}

const (
	rateLimit = 10.0 // requests per second
	rateBurst = 30.0
)

// RateLimitMiddleware is a per-IP token bucket: 10 req/s, burst 30.
func RateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}
		now := time.Now()
		limiter.mu.Lock()
		v, ok := limiter.visitors[ip]
		if !ok {
			v = &visitor{lastSeen: now, tokens: rateBurst}
			limiter.visitors[ip] = v
		}
		v.tokens += now.Sub(v.lastSeen).Seconds() * rateLimit
		if v.tokens > rateBurst {
			v.tokens = rateBurst
		}
		v.lastSeen = now
		allowed := v.tokens >= 1
		if allowed {
			v.tokens--
		}
		limiter.mu.Unlock()
		if !allowed {
			httputil.WriteJSON(w, http.StatusTooManyRequests, httputil.ErrorResponse{Error: "rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
