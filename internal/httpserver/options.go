package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/asembed/embed-server/internal/health"
	"github.com/asembed/embed-server/internal/log"
)

type Options struct {
	Logger log.Logger
	Port   int

	// APIRoutes mounts the embed API and loader script routes.
	APIRoutes func(chi.Router)

	MetricsMW   func(http.Handler) http.Handler
	RateLimitMW func(http.Handler) http.Handler

	UseRecoverMW bool
	OnPanic      func()

	Health    health.Probe
	Readiness health.Probe
}
