package traffic

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/Ahuahuachi/PrivateBin/internal/httpmw"
)

// MiddlewareOptions configures the gate's HTTP surface. All callbacks are
// optional; identity-bearing callbacks receive the strong digest, never the
// raw address.
type MiddlewareOptions struct {
	// OnDecision is called with the outcome of every completed admission
	// check, used for prometheus counters and debug-level decision logging.
	OnDecision func(d Decision, digest string)

	// OnFirstDenied is called at most once per identity per window, the
	// first time a submission inside its window is denied. Used for
	// warn-level abuse logging without one line per hammered request.
	OnFirstDenied func(digest string)

	// OnDenied is called on every denied submission.
	OnDenied func(digest string)

	// OnError is called when the admission check itself fails (store I/O).
	OnError func(err error)
}

// Middleware gates requests through the admission check. Denied submissions
// get 429 with a Retry-After of the window length. A store failure is 500: an
// unreadable table must never silently turn into an allow or a deny.
func (l *Limiter) Middleware(opts MiddlewareOptions) func(http.Handler) http.Handler {
	retryAfter := strconv.Itoa(l.cfg.Limit)

	// warned tracks which identities already triggered OnFirstDenied within
	// the current window; entries expire with the window so a repeat offender
	// surfaces again per window, not once per process lifetime.
	var mu sync.Mutex
	warned := make(map[string]int64)

	firstDenial := func(digest string) bool {
		now := l.now().Unix()
		limit := int64(l.cfg.Limit)
		mu.Lock()
		defer mu.Unlock()
		for k, at := range warned {
			if at+limit < now {
				delete(warned, k)
			}
		}
		if _, ok := warned[digest]; ok {
			return false
		}
		warned[digest] = now
		return true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawAddr := httpmw.ClientAddrFromContext(r.Context())

			decision, err := l.Check(r.Context(), rawAddr)
			if err != nil {
				if opts.OnError != nil {
					opts.OnError(err)
				}
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte(`{"error":"internal error"}`))
				return
			}

			digest := l.Digest(rawAddr, AlgoStrong)
			if opts.OnDecision != nil {
				opts.OnDecision(decision, digest)
			}

			if !decision.Pass() {
				if opts.OnFirstDenied != nil && firstDenial(digest) {
					opts.OnFirstDenied(digest)
				}
				if opts.OnDenied != nil {
					opts.OnDenied(digest)
				}
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.Header().Set("Retry-After", retryAfter)
				w.WriteHeader(http.StatusTooManyRequests)
				// intentionally no detail about the remaining wait per identity
				w.Write([]byte(`{"error":"please wait before sending another paste"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
