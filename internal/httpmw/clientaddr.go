package httpmw

import (
	"context"
	"net"
	"net/http"
	"strings"
)

type clientAddrKey struct{}

// ClientAddrOptions configures origin address resolution.
type ClientAddrOptions struct {
	// Header names an alternate request header to read the origin address
	// from (e.g. X-Forwarded-For when behind a trusted proxy). It is adopted
	// per request only when the header is present and non-empty; otherwise
	// the connection's remote address is used. Only enable this behind a
	// proxy that strips the header from client traffic, since the value is
	// trusted as-is.
	Header string
}

// ClientAddr resolves the raw origin address for each request and stores it
// in the context. Downstream consumers (the admission gate, the flood
// limiter, access logs) all read the same resolved value.
func ClientAddr(opts ClientAddrOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			addr := resolveClientAddr(r, opts.Header)
			ctx := WithClientAddr(r.Context(), addr)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func resolveClientAddr(r *http.Request, header string) string {
	if header != "" {
		if v := strings.TrimSpace(r.Header.Get(header)); v != "" {
			// proxies append a chain; the leftmost entry is the origin
			if i := strings.IndexByte(v, ','); i >= 0 {
				v = strings.TrimSpace(v[:i])
			}
			if v != "" {
				return v
			}
		}
		// header configured but absent or empty: fall through to the
		// connection address rather than failing
	}

	// should never happen
	if r.RemoteAddr == "" {
		return "0.0.0.0"
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// no port component, use as-is
		return r.RemoteAddr
	}
	return host
}

// ClientAddrFromContext returns the resolved origin address, or "" if the
// ClientAddr middleware did not run.
func ClientAddrFromContext(ctx context.Context) string {
	addr, _ := ctx.Value(clientAddrKey{}).(string)
	return addr
}

// WithClientAddr stores an origin address in the context; used directly by
// tests to bypass the middleware.
func WithClientAddr(ctx context.Context, addr string) context.Context {
	if addr == "" {
		return ctx
	}
	return context.WithValue(ctx, clientAddrKey{}, addr)
}
