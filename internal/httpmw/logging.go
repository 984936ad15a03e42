package httpmw

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Ahuahuachi/PrivateBin/internal/log"
)

// statusWriter captures status and bytes written for the access log.
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.bytes += int64(n)
	return n, err
}

// WithLogger attaches a request-scoped logger (request id, method, path) to
// the context so handlers and the admission gate log with correlation fields
// for free. The raw client address is deliberately not attached here: denied
// submissions are identified by digest only, and the access log adds the
// address itself on the responses that may carry it.
func WithLogger(base log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			L := base.With(
				"request_id", RequestIDFromContext(ctx),
				"http.request.method", r.Method,
				"url.path", r.URL.Path,
			)
			next.ServeHTTP(w, r.WithContext(log.WithContext(ctx, L)))
		})
	}
}

// AccessLog emits one log line per request with status, duration, and sizes.
// Health endpoints are skipped to keep the log useful.
func AccessLog() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w}

			next.ServeHTTP(sw, r)

			if r.URL.Path == "/-/healthy" || r.URL.Path == "/-/ready" {
				return
			}

			ctx := r.Context()
			status := sw.status
			if status == 0 {
				status = http.StatusOK
			}

			route := ""
			if rc := chi.RouteContext(ctx); rc != nil {
				route = rc.RoutePattern()
			}
			if route == "" {
				route = r.URL.Path
			}

			attrs := []any{
				"http.response.status_code", status,
				"http.server.request.duration", time.Since(start).Seconds(),
				"http.response.body.size", sw.bytes,
				"http.request.body.size", max(r.ContentLength, 0),
				"http.route", route,
			}
			// denied submissions are logged by digest elsewhere; the raw
			// address stays out of their access log line
			if status != http.StatusTooManyRequests {
				attrs = append(attrs, "client.address", ClientAddrFromContext(ctx))
			}

			log.FromContext(ctx).Info(ctx, "http request", attrs...)
		})
	}
}
