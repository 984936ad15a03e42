package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	dto "github.com/prometheus/client_model/go"

	"github.com/Ahuahuachi/PrivateBin/internal/version"
)

func gather(t *testing.T, m *ServerMetrics) []*dto.MetricFamily {
	t.Helper()
	mfs, err := m.reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	return mfs
}

// gatherValue returns the value of a counter/gauge family with the given
// label pair, or -1 if absent.
func gatherValue(t *testing.T, m *ServerMetrics, family, labelName, labelValue string) float64 {
	t.Helper()
	for _, mf := range gather(t, m) {
		if mf.GetName() != family {
			continue
		}
		for _, metric := range mf.GetMetric() {
			matched := labelName == ""
			for _, lp := range metric.GetLabel() {
				if lp.GetName() == labelName && lp.GetValue() == labelValue {
					matched = true
				}
			}
			if !matched {
				continue
			}
			if c := metric.GetCounter(); c != nil {
				return c.GetValue()
			}
			if g := metric.GetGauge(); g != nil {
				return g.GetValue()
			}
		}
	}
	return -1
}

func scrape(t *testing.T, m *ServerMetrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", http.NoBody))
	if rec.Code != http.StatusOK {
		t.Fatalf("scrape status = %d, want 200", rec.Code)
	}
	return rec.Body.String()
}

func TestNew_RegistersWithoutPanic(t *testing.T) {
	m := New()
	if m.Handler() == nil {
		t.Fatal("Handler() is nil")
	}
	// a second instance must not collide on a global registry
	_ = New()
}

func TestAdmissionCounter(t *testing.T) {
	m := New()
	m.IncAdmission("allowed")
	m.IncAdmission("allowed")
	m.IncAdmission("denied")

	body := scrape(t, m)
	if !strings.Contains(body, `traffic_admissions_total{decision="allowed"} 2`) {
		t.Fatalf("scrape missing allowed count:\n%s", body)
	}
	if !strings.Contains(body, `traffic_admissions_total{decision="denied"} 1`) {
		t.Fatalf("scrape missing denied count:\n%s", body)
	}
}

func TestDomainCounters(t *testing.T) {
	m := New()
	m.SetTableEntries(7)
	m.IncStoreFailure()
	m.IncFloodDenied()
	m.IncPasteAccepted()
	m.IncHttpPanic()

	body := scrape(t, m)
	for _, want := range []string{
		"traffic_table_entries 7",
		"traffic_store_failures_total 1",
		"flood_requests_denied_total 1",
		"pastes_accepted_total 1",
		"http_panic_total 1",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape missing %q", want)
		}
	}
}

func TestGather_AdmissionsByDecision(t *testing.T) {
	m := New()
	m.IncAdmission("exempted")
	m.IncAdmission("exempted")
	m.IncAdmission("disabled")

	if got := gatherValue(t, m, "traffic_admissions_total", "decision", "exempted"); got != 2 {
		t.Fatalf("exempted count = %v, want 2", got)
	}
	if got := gatherValue(t, m, "traffic_admissions_total", "decision", "disabled"); got != 1 {
		t.Fatalf("disabled count = %v, want 1", got)
	}
}

func TestBuildInfo(t *testing.T) {
	m := New()
	m.SetBuildInfoFromVersion(version.Info{
		Version:   "1.2.3",
		Commit:    "abc123",
		GoVersion: "go1.24.0",
	})

	body := scrape(t, m)
	if !strings.Contains(body, `version="1.2.3"`) {
		t.Fatalf("scrape missing build info:\n%s", body)
	}
}

func TestMiddleware_CountsRequests(t *testing.T) {
	m := New()
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/some/path", http.NoBody))

	body := scrape(t, m)
	if !strings.Contains(body, `http_requests_total{method="POST",route="/some/path",status="201"} 1`) {
		t.Fatalf("scrape missing request count:\n%s", body)
	}
}

func TestMiddleware_UsesRoutePatternFromInnerMux(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Get("/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := m.Middleware(r)

	for _, path := range []string{"/aaaa", "/bbbb"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("GET", path, http.NoBody))
	}

	if got := gatherValue(t, m, "http_requests_total", "route", "/{id}"); got != 2 {
		t.Fatalf("route pattern count = %v, want 2", got)
	}
	for _, raw := range []string{"/aaaa", "/bbbb"} {
		if got := gatherValue(t, m, "http_requests_total", "route", raw); got != -1 {
			t.Fatalf("raw path %q recorded as route label (count %v); cardinality unbounded", raw, got)
		}
	}
}

func TestMiddleware_ImplicitOKStatus(t *testing.T) {
	m := New()
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hi")) // no explicit WriteHeader
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/x", http.NoBody))

	body := scrape(t, m)
	if !strings.Contains(body, `status="200"`) {
		t.Fatalf("scrape missing implicit 200:\n%s", body)
	}
}
