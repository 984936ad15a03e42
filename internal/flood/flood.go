// Package flood is per-IP burst protection for the submission endpoint.
//
// It sits in front of the one-paste-per-window admission gate and absorbs raw
// request floods before they turn into table-store I/O: every admission check
// costs a table read and write, so a hammering client would otherwise grind
// the disk even while being denied. This layer is in-memory, per instance,
// and intentionally coarse; the gate in internal/traffic holds the actual
// rate-limit semantics.
package flood

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Ahuahuachi/PrivateBin/internal/httpmw"
)

// client tracks a single IP's bucket and last activity.
type client struct {
	bucket   *rate.Limiter
	lastSeen time.Time
	// logged tracks whether the first-denial log fired for this entry;
	// resets when the entry is evicted and re-created
	logged bool
}

// Guard holds per-IP token buckets with background eviction.
type Guard struct {
	mu      sync.Mutex
	clients map[string]*client

	perSecond  rate.Limit
	burst      int
	ttl        time.Duration
	retryAfter string

	// OnFirstDenied fires once per tracked client when it first gets
	// throttled, for single-log-entry-per-offender logging.
	OnFirstDenied func(ip string)
	// OnDenied fires on every throttled request, for prometheus counters.
	OnDenied func(ip string)
}

type Option func(*Guard)

// WithRate sets the refill rate and burst ceiling. WithRate(10, 50) allows 50
// requests at once, then refills 10 tokens per second.
func WithRate(perSecond float64, burst int) Option {
	return func(g *Guard) {
		g.perSecond = rate.Limit(perSecond)
		g.burst = burst
	}
}

// WithTTL controls how long an idle IP stays tracked before eviction.
func WithTTL(d time.Duration) Option {
	return func(g *Guard) { g.ttl = d }
}

func WithOnFirstDenied(fn func(ip string)) Option {
	return func(g *Guard) { g.OnFirstDenied = fn }
}

func WithOnDenied(fn func(ip string)) Option {
	return func(g *Guard) { g.OnDenied = fn }
}

// New creates a Guard and starts the eviction goroutine, which stops when ctx
// is cancelled.
func New(ctx context.Context, opts ...Option) *Guard {
	g := &Guard{
		clients:   make(map[string]*client),
		perSecond: 10,
		burst:     30,
		ttl:       5 * time.Minute,
	}
	for _, o := range opts {
		o(g)
	}
	g.retryAfter = strconv.Itoa(retrySeconds(g.perSecond))
	go g.evict(ctx)
	return g
}

// retrySeconds is the refill time for one token, rounded up to whole seconds.
func retrySeconds(perSecond rate.Limit) int {
	if perSecond <= 0 {
		return 1
	}
	secs := int(math.Ceil(1 / float64(perSecond)))
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Allow reports whether a request from ip is within its burst budget.
func (g *Guard) Allow(ip string) bool {
	g.mu.Lock()
	c, ok := g.clients[ip]
	if !ok {
		c = &client{bucket: rate.NewLimiter(g.perSecond, g.burst)}
		g.clients[ip] = c
	}
	c.lastSeen = time.Now()
	allowed := c.bucket.Allow()

	if !allowed && !c.logged {
		c.logged = true
		// release before calling hooks; they may do slow work
		g.mu.Unlock()
		if g.OnFirstDenied != nil {
			g.OnFirstDenied(ip)
		}
		if g.OnDenied != nil {
			g.OnDenied(ip)
		}
		return false
	}
	g.mu.Unlock()

	if !allowed && g.OnDenied != nil {
		g.OnDenied(ip)
	}
	return allowed
}

// evict periodically drops clients idle longer than the TTL. Runs every TTL/2
// so stale entries don't linger much past their deadline.
func (g *Guard) evict(ctx context.Context) {
	ticker := time.NewTicker(g.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			g.mu.Lock()
			for ip, c := range g.clients {
				if now.Sub(c.lastSeen) > g.ttl {
					delete(g.clients, ip)
				}
			}
			g.mu.Unlock()
		}
	}
}

// Middleware rejects requests over the burst budget with 429.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := httpmw.ClientAddrFromContext(r.Context())
		if !g.Allow(ip) {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.Header().Set("Retry-After", g.retryAfter)
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"too many requests"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}
