package httpmw

import (
	"net/http"

	"github.com/Ahuahuachi/PrivateBin/internal/log"
	"github.com/Ahuahuachi/PrivateBin/internal/xerrors"
)

// Recover logs handler panics and serves a 500 instead of killing the
// connection. onPanic is optional, used to increment a prometheus counter.
func Recover(L log.Logger, onPanic func()) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						// client went away mid-write; let the server handle it
						panic(rec)
					}
					if onPanic != nil {
						onPanic()
					}
					err, ok := rec.(error)
					if !ok {
						err = xerrors.Newf("panic: %v", rec)
					}
					if L != nil {
						L.Error(r.Context(), err, "recovered panic in http handler",
							"url.path", r.URL.Path,
						)
					}
					http.Error(w, "internal server error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
