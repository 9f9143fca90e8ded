package opshttp

import (
	"net/http"

	"github.com/asembed/embed-server/internal/health"
)

type Options struct {
	Port        int
	Metrics     http.Handler
	EnablePprof bool
	Health      health.Probe
	Readiness   health.Probe

	// Admin mounts the administrative API (allow-list, documents) under /admin/.
	Admin http.Handler

	OnPanic func() // Optional callback for when panics are recovered, e.g. to increment prometheus counters
}
