package web

import (
	"crypto/subtle"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/soyeahso/chatrelay/internal/logging"
	"golang.org/x/time/rate"
)

// requestLogger logs each HTTP request at debug level.
func requestLogger(log *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Debug().
				Str("req", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Str("remote", r.RemoteAddr).
				Msg("http request")
		})
	}
}

// cors answers preflight requests and sets CORS headers for allowed origins.
func cors(allowed []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && originAllowed(origin, allowed) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-Id")
				w.Header().Set("Access-Control-Max-Age", "86400")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// originAllowed reports whether a cross-origin request may proceed. No
// configured origins means cross-origin requests are denied.
func originAllowed(origin string, allowed []string) bool {
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}

// checkOrigin validates the websocket Origin header. Requests without one
// come from non-browser clients and are accepted.
func checkOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || originAllowed(origin, allowed)
	}
}

// requireToken rejects requests that do not carry token, either as a
// bearer Authorization header or a token query parameter. An empty token
// disables the check.
func requireToken(token string, limiter *failureLimiter, log *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			if !limiter.allow(r.RemoteAddr) {
				log.Warn().Str("remote", r.RemoteAddr).Msg("too many failed auth attempts")
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}
			if !safeEqual(requestToken(r), token) {
				limiter.recordFailure(r.RemoteAddr)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requestToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return r.URL.Query().Get("token")
}

// safeEqual compares in constant time without leaking the secret's length.
func safeEqual(a, b string) bool {
	lenMatch := subtle.ConstantTimeEq(int32(len(a)), int32(len(b)))
	cmp := subtle.ConstantTimeCompare([]byte(a), []byte(b))
	return subtle.ConstantTimeSelect(lenMatch, cmp, 0) == 1
}

const (
	authFailBurst  = 10
	authFailWindow = 5 * time.Minute
	authMaxHosts   = 10000
)

// failureLimiter blocks a host after authFailBurst failed attempts; the
// allowance refills over authFailWindow.
type failureLimiter struct {
	mu    sync.Mutex
	hosts map[string]*rate.Limiter
}

func newFailureLimiter() *failureLimiter {
	return &failureLimiter{hosts: make(map[string]*rate.Limiter)}
}

func (l *failureLimiter) allow(remoteAddr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.hosts[hostOf(remoteAddr)]
	if !ok {
		return true
	}
	return lim.Tokens() >= 1
}

func (l *failureLimiter) recordFailure(remoteAddr string) {
	host := hostOf(remoteAddr)
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.hosts[host]
	if !ok {
		if len(l.hosts) >= authMaxHosts {
			l.hosts = make(map[string]*rate.Limiter)
		}
		lim = rate.NewLimiter(rate.Every(authFailWindow/authFailBurst), authFailBurst)
		l.hosts[host] = lim
	}
	lim.Allow()
}

func hostOf(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil || host == "" {
		return remoteAddr
	}
	return host
}
