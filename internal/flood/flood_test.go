package flood

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Ahuahuachi/PrivateBin/internal/httpmw"
)

// newTestGuard creates a guard with a short TTL and a cancellable context.
func newTestGuard(opts ...Option) (*Guard, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	defaults := []Option{
		WithRate(10, 5),
		WithTTL(100 * time.Millisecond),
	}
	all := append(defaults, opts...)
	g := New(ctx, all...)
	return g, cancel
}

func TestAllow_BurstThenReject(t *testing.T) {
	g, cancel := newTestGuard(WithRate(1, 5))
	defer cancel()

	ip := "10.0.0.1"

	for i := 0; i < 5; i++ {
		if !g.Allow(ip) {
			t.Fatalf("request %d should be allowed (within burst)", i+1)
		}
	}
	if g.Allow(ip) {
		t.Fatal("request 6 should be denied (burst exhausted)")
	}
}

func TestAllow_SeparateIPsGetSeparateBuckets(t *testing.T) {
	g, cancel := newTestGuard(WithRate(1, 3))
	defer cancel()

	for i := 0; i < 3; i++ {
		g.Allow("10.0.0.1")
	}
	if g.Allow("10.0.0.1") {
		t.Fatal("ip1 should be denied after burst")
	}
	if !g.Allow("10.0.0.2") {
		t.Fatal("ip2 should be allowed (separate bucket)")
	}
}

func TestAllow_RefillAfterTime(t *testing.T) {
	g, cancel := newTestGuard(WithRate(100, 1))
	defer cancel()

	ip := "10.0.0.1"
	if !g.Allow(ip) {
		t.Fatal("first request should be allowed")
	}
	if g.Allow(ip) {
		t.Fatal("second immediate request should be denied")
	}

	// 100/sec refill: one token back within ~10ms, give it slack
	time.Sleep(30 * time.Millisecond)
	if !g.Allow(ip) {
		t.Fatal("request after refill should be allowed")
	}
}

func TestAllow_OnFirstDeniedFiresOnce(t *testing.T) {
	var firstDenied atomic.Int64
	var denied atomic.Int64
	g, cancel := newTestGuard(
		WithRate(0.001, 1),
		WithOnFirstDenied(func(ip string) { firstDenied.Add(1) }),
		WithOnDenied(func(ip string) { denied.Add(1) }),
	)
	defer cancel()

	g.Allow("10.0.0.1")
	for i := 0; i < 4; i++ {
		g.Allow("10.0.0.1")
	}

	if got := firstDenied.Load(); got != 1 {
		t.Fatalf("OnFirstDenied fired %d times, want 1", got)
	}
	if got := denied.Load(); got != 4 {
		t.Fatalf("OnDenied fired %d times, want 4", got)
	}
}

func TestEvict_DropsIdleClients(t *testing.T) {
	g, cancel := newTestGuard(WithRate(1, 1), WithTTL(60*time.Millisecond))
	defer cancel()

	// exhaust the bucket
	g.Allow("10.0.0.1")
	if g.Allow("10.0.0.1") {
		t.Fatal("bucket should be exhausted")
	}

	// wait past the TTL so the entry is evicted and re-created fresh
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		g.mu.Lock()
		_, tracked := g.clients["10.0.0.1"]
		g.mu.Unlock()
		if !tracked {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	g.mu.Lock()
	_, tracked := g.clients["10.0.0.1"]
	g.mu.Unlock()
	if tracked {
		t.Fatal("idle client should be evicted after TTL")
	}

	// fresh entry gets a full burst again
	if !g.Allow("10.0.0.1") {
		t.Fatal("re-created client should be allowed")
	}
}

func TestMiddleware_DeniesWith429(t *testing.T) {
	g, cancel := newTestGuard(WithRate(0.001, 1))
	defer cancel()

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := g.Middleware(inner)

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/", http.NoBody)
		req = req.WithContext(httpmw.WithClientAddr(req.Context(), "10.0.0.1"))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	if rec := send(); rec.Code != http.StatusOK {
		t.Fatalf("first request: status = %d, want 200", rec.Code)
	}
	rec := send()
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("denial should carry Retry-After")
	}
}

func TestMiddleware_RetryAfterTracksRefillRate(t *testing.T) {
	cases := []struct {
		perSecond float64
		want      string
	}{
		{0.5, "2"},  // one token every 2s
		{0.1, "10"}, // one token every 10s
		{2, "1"},    // sub-second refill rounds up to 1
	}
	for _, tc := range cases {
		g, cancel := newTestGuard(WithRate(tc.perSecond, 1))

		g.Allow("10.0.0.1") // exhaust the single-token burst

		req := httptest.NewRequest("POST", "/", http.NoBody)
		req = req.WithContext(httpmw.WithClientAddr(req.Context(), "10.0.0.1"))
		rec := httptest.NewRecorder()
		g.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})).ServeHTTP(rec, req)

		if rec.Code != http.StatusTooManyRequests {
			t.Fatalf("rate %v: status = %d, want 429", tc.perSecond, rec.Code)
		}
		if got := rec.Header().Get("Retry-After"); got != tc.want {
			t.Errorf("rate %v: Retry-After = %q, want %q", tc.perSecond, got, tc.want)
		}
		cancel()
	}
}
