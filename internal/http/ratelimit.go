package httpx

import (
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	apperrors "github.com/chainsight/persona-api/internal/errors"
)

// clientLimiter is one client identity's token bucket plus its last-seen
// time for eviction.
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter enforces a per-client request budget on the analysis start
// endpoint. Identity is the API key when presented, otherwise the remote
// host. Idle buckets are evicted to bound memory.
type RateLimiter struct {
	perMinute int
	burst     int

	mu      sync.Mutex
	clients map[string]*clientLimiter
	now     func() time.Time
}

const clientIdleEviction = 10 * time.Minute

// NewRateLimiter builds a limiter granting perMinute requests with the
// given burst to each client identity.
func NewRateLimiter(perMinute, burst int) *RateLimiter {
	if perMinute < 1 {
		perMinute = 1
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		perMinute: perMinute,
		burst:     burst,
		clients:   make(map[string]*clientLimiter),
		now:       time.Now,
	}
}

// Middleware rejects requests over the client's budget with a rate-limit
// error before any job state is created.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(clientIdentity(r)) {
			WriteError(w, ErrorParams{
				Code:    http.StatusTooManyRequests,
				ErrCode: string(apperrors.ErrCodeRateLimited),
				Err:     errors.New("request budget exceeded, retry later"),
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) allow(identity string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cl, ok := rl.clients[identity]
	if !ok {
		cl = &clientLimiter{
			limiter:  rate.NewLimiter(rate.Limit(float64(rl.perMinute)/60.0), rl.burst),
			lastSeen: now,
		}
		rl.clients[identity] = cl
		rl.evictIdle(now)
	}
	cl.lastSeen = now
	return cl.limiter.Allow()
}

// evictIdle drops buckets idle past the eviction window. Called under the
// lock on new-client admission so steady traffic pays nothing.
func (rl *RateLimiter) evictIdle(now time.Time) {
	for identity, cl := range rl.clients {
		if now.Sub(cl.lastSeen) > clientIdleEviction {
			delete(rl.clients, identity)
		}
	}
}

// clientIdentity resolves who a request counts against.
func clientIdentity(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return "key:" + key
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "addr:" + r.RemoteAddr
	}
	return "addr:" + host
}
