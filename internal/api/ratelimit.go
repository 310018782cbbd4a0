package api

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// throttle is a per-client token bucket for the admin endpoints. Each client
// holds up to burst tokens, refilled continuously at burst per period.
type throttle struct {
	mu      sync.Mutex
	burst   float64
	perSec  float64
	clients map[string]*allowance
	clock   func() time.Time
}

type allowance struct {
	tokens float64
	seen   time.Time
}

func newThrottle(burst int, period time.Duration) *throttle {
	return &throttle{
		burst:   float64(burst),
		perSec:  float64(burst) / period.Seconds(),
		clients: make(map[string]*allowance),
		clock:   time.Now,
	}
}

// take spends a token for client. When none is left it returns how long
// until one is.
func (t *throttle) take(client string) (bool, time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock()
	a, ok := t.clients[client]
	if !ok {
		t.forgetIdle(now)
		a = &allowance{tokens: t.burst, seen: now}
		t.clients[client] = a
	}
	a.tokens = math.Min(t.burst, a.tokens+now.Sub(a.seen).Seconds()*t.perSec)
	a.seen = now

	if a.tokens >= 1 {
		a.tokens--
		return true, 0
	}
	if t.perSec <= 0 {
		return false, time.Hour
	}
	wait := (1 - a.tokens) / t.perSec
	return false, time.Duration(wait * float64(time.Second))
}

// forgetIdle drops clients whose bucket has refilled completely.
func (t *throttle) forgetIdle(now time.Time) {
	for id, a := range t.clients {
		if a.tokens+now.Sub(a.seen).Seconds()*t.perSec >= t.burst {
			delete(t.clients, id)
		}
	}
}

// guard answers 429 with Retry-After once a client runs dry.
func (t *throttle) guard(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ok, wait := t.take(remoteHost(r))
		if !ok {
			secs := int(math.Ceil(wait.Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(max(secs, 1)))
			http.Error(w, "too many admin requests", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}

// remoteHost identifies the caller, trusting the first X-Forwarded-For hop.
func remoteHost(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
