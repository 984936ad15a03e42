package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Ahuahuachi/PrivateBin/internal/health"
	"github.com/Ahuahuachi/PrivateBin/internal/httpmw"
	"github.com/Ahuahuachi/PrivateBin/internal/log"
)

type Options struct {
	Logger log.Logger
	Port   int

	Health    health.Probe
	Readiness health.Probe

	// Routes registers the application routes; gate is the admission
	// middleware to apply to rate-limited routes.
	Routes func(r chi.Router, gate func(http.Handler) http.Handler)

	// GateMW is the admission gate middleware (applied per route by Routes).
	GateMW func(http.Handler) http.Handler

	// FloodMW is the per-IP burst limiter, applied to the whole chain.
	FloodMW func(http.Handler) http.Handler

	MetricsMW func(http.Handler) http.Handler

	ClientAddrOpts httpmw.ClientAddrOptions
	MaxBodyBytes   int64

	UseRecoverMW bool
	OnPanic      func()
}
