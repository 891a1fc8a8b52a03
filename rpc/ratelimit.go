package rpc

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	visitorIdleTTL   = 10 * time.Minute
	maxVisitors      = 10000
	defaultPerSecond = 5
	defaultBurst     = 10
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter keeps one token bucket per client address.
type rateLimiter struct {
	mu       sync.Mutex
	perSec   rate.Limit
	burst    int
	visitors map[string]*visitor
	trusted  map[string]struct{}
	clockNow func() time.Time
}

func newRateLimiter(perSecond float64, burst int, trustedProxies []string) *rateLimiter {
	if perSecond <= 0 {
		perSecond = defaultPerSecond
	}
	if burst <= 0 {
		burst = defaultBurst
	}
	trusted := make(map[string]struct{}, len(trustedProxies))
	for _, proxy := range trustedProxies {
		if ip := net.ParseIP(strings.TrimSpace(proxy)); ip != nil {
			trusted[ip.String()] = struct{}{}
		}
	}
	return &rateLimiter{
		perSec:   rate.Limit(perSecond),
		burst:    burst,
		visitors: make(map[string]*visitor),
		trusted:  trusted,
		clockNow: time.Now,
	}
}

func (l *rateLimiter) allow(source string) bool {
	now := l.clockNow()
	l.mu.Lock()
	defer l.mu.Unlock()

	v, ok := l.visitors[source]
	if !ok {
		if len(l.visitors) >= maxVisitors {
			l.prune(now)
		}
		v = &visitor{limiter: rate.NewLimiter(l.perSec, l.burst)}
		l.visitors[source] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

func (l *rateLimiter) prune(now time.Time) {
	for id, v := range l.visitors {
		if now.Sub(v.lastSeen) > visitorIdleTTL {
			delete(l.visitors, id)
		}
	}
}

// clientSource returns the client IP. X-Forwarded-For is honoured only when
// the direct peer is a trusted proxy.
func (l *rateLimiter) clientSource(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if _, ok := l.trusted[host]; !ok {
		return host
	}
	forwarded := r.Header.Get("X-Forwarded-For")
	if forwarded == "" {
		return host
	}
	first, _, _ := strings.Cut(forwarded, ",")
	if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
		return ip.String()
	}
	return host
}
