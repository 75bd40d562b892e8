package plugins

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/unihttp/unihttp-go"
	"github.com/unihttp/unihttp-go/fetch"
)

// RateLimit appends middleware that answers 429 when l refuses a request.
func RateLimit(l *rate.Limiter) unihttp.Plugin {
	return func(s *unihttp.Server) {
		s.Middleware = append(s.Middleware, fetch.Named("rate-limit", limit(func(fetch.Request) *rate.Limiter {
			return l
		})))
	}
}

// ClientRateLimit is RateLimit with one limiter per client IP. Limiters of
// clients idle for ten minutes are dropped.
func ClientRateLimit(r rate.Limit, burst int) unihttp.Plugin {
	pool := &limiterPool{r: r, burst: burst, ttl: 10 * time.Minute}
	return func(s *unihttp.Server) {
		s.Middleware = append(s.Middleware, fetch.Named("client-rate-limit", limit(func(req fetch.Request) *rate.Limiter {
			return pool.get(req.IP())
		})))
	}
}

func limit(limiterFor func(fetch.Request) *rate.Limiter) fetch.Middleware {
	return func(req fetch.Request, next fetch.Next) (*fetch.Response, error) {
		l := limiterFor(req)
		if l.Allow() {
			return next(req)
		}
		resp := fetch.Text(http.StatusTooManyRequests, http.StatusText(http.StatusTooManyRequests))
		if l.Limit() > 0 {
			retry := time.Duration(float64(time.Second) / float64(l.Limit()))
			_ = resp.Headers().Set("Retry-After", strconv.Itoa(int(retry.Seconds()+0.999)))
		}
		return resp, nil
	}
}

type limiterEntry struct {
	l        *rate.Limiter
	lastSeen time.Time
}

// limiterPool holds a limiter per key and sweeps idle ones on access.
type limiterPool struct {
	r     rate.Limit
	burst int
	ttl   time.Duration

	mu        sync.Mutex
	m         map[string]*limiterEntry
	lastSweep time.Time
}

func (p *limiterPool) get(key string) *rate.Limiter {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.m == nil {
		p.m = make(map[string]*limiterEntry)
	}
	if now.Sub(p.lastSweep) > p.ttl {
		for k, e := range p.m {
			if now.Sub(e.lastSeen) > p.ttl {
				delete(p.m, k)
			}
		}
		p.lastSweep = now
	}

	if e, ok := p.m[key]; ok {
		e.lastSeen = now
		return e.l
	}
	l := rate.NewLimiter(p.r, p.burst)
	p.m[key] = &limiterEntry{l: l, lastSeen: now}
	return l
}
