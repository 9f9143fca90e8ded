package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/asembed/embed-server/internal/version"
)

type ServerMetrics struct {
	reg            *prometheus.Registry
	handler        http.Handler
	inflight       prometheus.Gauge
	reqTotal       *prometheus.CounterVec
	reqDur         *prometheus.HistogramVec
	respBytes      *prometheus.HistogramVec
	httpPanicTotal prometheus.Counter
	buildInfo      *prometheus.GaugeVec

	ratelimitDeniedTotal   prometheus.Counter
	ratelimitCapacityTotal prometheus.Counter

	errorsTotal *prometheus.CounterVec

	profilingActive prometheus.Gauge

	// render cache metrics
	cacheHitsTotal        prometheus.Counter
	cacheMissesTotal      prometheus.Counter
	cacheInvalidatedTotal prometheus.Counter
	cacheEntries          prometheus.Gauge

	// origin gate metrics
	originGrantedTotal prometheus.Counter
	originDeniedTotal  prometheus.Counter

	// allow-list reload metrics
	allowlistReloadsTotal  prometheus.Counter
	allowlistSize          prometheus.Gauge
	allowlistLastReloadTs  prometheus.Gauge
	allowlistRejectedTotal prometheus.Counter

	documentsSavedTotal prometheus.Counter
}

// New returns a fresh registry + standard collectors + HTTP metrics
// safe labels only (method, route, code) to avoid path/cardinality explosions
func New() *ServerMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &ServerMetrics{
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests",
		}),
		reqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, route, and status",
		}, []string{"method", "route", "status"}),
		reqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Request latency by method and route",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),
		respBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "Response size by method and route",
			Buckets: []float64{256, 1024, 4096, 16384, 65536, 262144, 1048576},
		}, []string{"method", "route"}),
		httpPanicTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_panic_total",
			Help: "Total number of recovered httpserver panics",
		}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build metadata (value is always 1)",
		}, []string{"app", "version", "commit", "commit_date", "build_date", "vcs_dirty", "go_version"}),
		ratelimitDeniedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_total",
			Help: "Total requests rejected by rate limiter",
		}),
		ratelimitCapacityTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_capacity_total",
			Help: "Total number of times rate limiter visitor capacity was reached",
		}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total 5xx HTTP server errors by method and route (SLI)",
		}, []string{"method", "route"}),
		profilingActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "profiling_active",
			Help: "Whether continuous profiling is active (1) or disabled/failed (0)",
		}),
		cacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "render_cache_hits_total",
			Help: "Total render cache hits",
		}),
		cacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "render_cache_misses_total",
			Help: "Total render cache misses, including expired entries",
		}),
		cacheInvalidatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "render_cache_invalidations_total",
			Help: "Total explicit render cache invalidations",
		}),
		cacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "render_cache_entries",
			Help: "Current number of render cache entries, expired included",
		}),
		originGrantedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "origin_requests_granted_total",
			Help: "Total cross-origin requests granted by the origin gate",
		}),
		originDeniedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "origin_requests_denied_total",
			Help: "Total cross-origin requests denied by the origin gate",
		}),
		allowlistReloadsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "allowlist_reloads_total",
			Help: "Total allow-list reloads from disk",
		}),
		allowlistSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "allowlist_origins",
			Help: "Current number of origins on the allow-list",
		}),
		allowlistLastReloadTs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "allowlist_last_reload_timestamp_seconds",
			Help: "Unix timestamp of the last successful allow-list reload",
		}),
		allowlistRejectedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "allowlist_rejected_lines_total",
			Help: "Total malformed allow-list lines dropped during loads",
		}),
		documentsSavedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "documents_saved_total",
			Help: "Total document upserts through the admin API",
		}),
	}
	reg.MustRegister(
		m.inflight,
		m.reqTotal,
		m.reqDur,
		m.respBytes,
		m.httpPanicTotal,
		m.buildInfo,
		m.ratelimitDeniedTotal,
		m.ratelimitCapacityTotal,
		m.errorsTotal,
		m.profilingActive,
		m.cacheHitsTotal,
		m.cacheMissesTotal,
		m.cacheInvalidatedTotal,
		m.cacheEntries,
		m.originGrantedTotal,
		m.originDeniedTotal,
		m.allowlistReloadsTotal,
		m.allowlistSize,
		m.allowlistLastReloadTs,
		m.allowlistRejectedTotal,
		m.documentsSavedTotal,
	)

	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
	m.reg = reg
	return m
}

func (m *ServerMetrics) IncHttpPanic() {
	m.httpPanicTotal.Inc()
}

func (m *ServerMetrics) Handler() http.Handler {
	return m.handler
}

// set once at startup.
func (m *ServerMetrics) SetBuildInfoFromVersion(vi version.Info) {
	dirty := "unknown"
	if vi.VCSDirty != nil {
		dirty = strconv.FormatBool(*vi.VCSDirty)
	}
	m.buildInfo.With(prometheus.Labels{
		"app":         vi.AppName,
		"version":     vi.Version,
		"commit":      vi.Commit,
		"commit_date": vi.CommitDate,
		"build_date":  vi.BuildDate,
		"go_version":  vi.GoVersion,
		"vcs_dirty":   dirty,
	}).Set(1)
}

func (m *ServerMetrics) IncRateLimitDenied() {
	m.ratelimitDeniedTotal.Inc()
}

func (m *ServerMetrics) IncRateLimitCapacity() {
	m.ratelimitCapacityTotal.Inc()
}

func (m *ServerMetrics) SetProfilingActive(active bool) {
	if active {
		m.profilingActive.Set(1)
	} else {
		m.profilingActive.Set(0)
	}
}

func (m *ServerMetrics) IncCacheHit()          { m.cacheHitsTotal.Inc() }
func (m *ServerMetrics) IncCacheMiss()         { m.cacheMissesTotal.Inc() }
func (m *ServerMetrics) IncCacheInvalidation() { m.cacheInvalidatedTotal.Inc() }

func (m *ServerMetrics) SetCacheEntries(n int) {
	m.cacheEntries.Set(float64(n))
}

func (m *ServerMetrics) IncOriginGranted() { m.originGrantedTotal.Inc() }
func (m *ServerMetrics) IncOriginDenied()  { m.originDeniedTotal.Inc() }

func (m *ServerMetrics) IncAllowlistReload() {
	m.allowlistReloadsTotal.Inc()
}

func (m *ServerMetrics) SetAllowlistSize(n int) {
	m.allowlistSize.Set(float64(n))
}

func (m *ServerMetrics) SetAllowlistLastReload(unixSeconds float64) {
	m.allowlistLastReloadTs.Set(unixSeconds)
}

func (m *ServerMetrics) AddAllowlistRejected(n int) {
	m.allowlistRejectedTotal.Add(float64(n))
}

func (m *ServerMetrics) IncDocumentSaved() {
	m.documentsSavedTotal.Inc()
}
