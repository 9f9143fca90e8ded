package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/asembed/embed-server/internal/adminhttp"
	"github.com/asembed/embed-server/internal/cfg"
	"github.com/asembed/embed-server/internal/embedhttp"
	"github.com/asembed/embed-server/internal/health"
	"github.com/asembed/embed-server/internal/httpserver"
	"github.com/asembed/embed-server/internal/loaderjs"
	"github.com/asembed/embed-server/internal/log"
	"github.com/asembed/embed-server/internal/metrics"
	"github.com/asembed/embed-server/internal/opshttp"
	"github.com/asembed/embed-server/internal/origin"
	"github.com/asembed/embed-server/internal/otelx"
	"github.com/asembed/embed-server/internal/prof"
	"github.com/asembed/embed-server/internal/ratelimit"
	"github.com/asembed/embed-server/internal/render"
	"github.com/asembed/embed-server/internal/rendercache"
	"github.com/asembed/embed-server/internal/store"
	v "github.com/asembed/embed-server/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vi := v.Get()

	var conf cfg.App
	var showVersion bool

	// Parse config from flags and env
	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf(
			"%s %s (commit=%s, commit_date=%s, build_date=%s, go=%s, dirty=%v)\n",
			vi.AppName, vi.Version, vi.Commit, vi.CommitDate, vi.BuildDate, vi.GoVersion,
			vi.VCSDirty != nil && *vi.VCSDirty,
		)
		os.Exit(0)
	}

	// Fill in config from environment variables with prefix ASEMBED_ and validate
	cfg.FillFromEnv(flag.CommandLine, "ASEMBED_", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	// Setup logging
	lvl, err := log.ParseLevel(conf.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %s: %v\n", conf.LogLevel, err)
		os.Exit(1)
	}
	stLvl, err := log.ParseLevel(conf.StacktraceLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid stacktrace level %s: %v\n", conf.StacktraceLevel, err)
		os.Exit(1)
	}
	lg, err := log.New(log.Options{
		App:             v.AppName,
		Version:         vi.Version,
		Level:           lvl,
		StacktraceLevel: stLvl,
		JsonFormat:      conf.LogJSON,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(1)
	}
	// no-op for slog/stderr, but here if we swap backends in the future to ensure any buffered logs are flushed on shutdown
	defer lg.Sync()
	L := lg.With("component", "server")
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"commit_date", vi.CommitDate,
		"build_date", vi.BuildDate,
		"go_version", vi.GoVersion,
		"vcs_dirty", vi.VCSDirty,
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"db_path", conf.DBPath,
		"allowlist_path", conf.AllowlistPath,
		"public_base_url", conf.PublicBaseURL,
		"cache_ttl", conf.CacheTTL,
		"rate_limit", conf.RateLimitPerSecond,
		"rate_limit_burst", conf.RateLimitBurst,
		"enable_pprof", conf.EnablePprof,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_tracing", conf.EnableTracing,
		"otlp_endpoint", conf.OTLPEndpoint,
		"pyro_server", conf.PyroServer,
		"pyro_tenant", conf.PyroTenantID,
		"trace_sample", conf.TraceSample,
	)

	// Setup metrics first so every subsystem can hook into it
	m := metrics.New()
	m.SetBuildInfoFromVersion(vi)

	// Setup pyroscope profiling
	stopProf, err := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       v.AppName,
		AuthToken:     "",
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"app":       v.AppName,
			"component": "server",
			"version":   vi.Version,
			"commit":    vi.Commit,
			"source":    "go-agent",
		},
	})
	if err != nil {
		L.Error(ctx, err, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}
	m.SetProfilingActive(conf.EnablePyroscope && err == nil)
	defer func() { stopProf() }()

	// Setup otel for tracing
	// Insecure is true because we are only writing to a collector on localhost
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:   conf.EnableTracing,
		Endpoint:  conf.OTLPEndpoint,
		Insecure:  true,
		Sample:    conf.TraceSample,
		Service:   v.AppName,
		Component: "server",
		Version:   vi.Version,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed")
	}
	defer func() { _ = shutdownOTEL(context.Background()) }()

	// Open the document store
	docs, err := store.Open(conf.DBPath)
	if err != nil {
		L.Error(ctx, err, "failed to open document store", "db_path", conf.DBPath)
		os.Exit(1)
	}
	defer docs.Close()

	// Load the origin allow-list and keep it fresh on file changes
	origins := origin.NewStore(conf.AllowlistPath, L)
	origins.OnSwap = func(count, rejected int) {
		m.IncAllowlistReload()
		m.SetAllowlistSize(count)
		m.AddAllowlistRejected(rejected)
		m.SetAllowlistLastReload(float64(time.Now().Unix()))
	}
	if err := origins.Load(ctx); err != nil {
		// readiness stays down until a successful load, so start anyway and
		// let the watcher pick up a fixed file
		L.Error(ctx, err, "initial allow-list load failed", "allowlist_path", conf.AllowlistPath)
	}
	watcher, err := origin.NewWatcher(origin.WatcherOptions{
		Store:  origins,
		Logger: L,
	})
	if err != nil {
		L.Error(ctx, err, "failed to create allow-list watcher, reloads require a restart")
	} else {
		go func() {
			if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
				L.Error(ctx, err, "allow-list watcher stopped")
			}
		}()
	}

	// Rendering pipeline: resolver expands shortcodes, cache fronts it
	resolver := render.NewResolver(docs)
	cache := rendercache.New(resolver.Resolve,
		rendercache.WithTTL(conf.CacheTTL),
		rendercache.WithHooks(m.IncCacheHit, m.IncCacheMiss, m.IncCacheInvalidation),
		rendercache.WithSizeHook(m.SetCacheEntries),
	)

	// Saves from the admin API invalidate cached renders. Autosaves and
	// saves by actors without edit rights keep the cached entry.
	docs.OnSaved(func(id int64, info store.SaveInfo) {
		m.IncDocumentSaved()
		if info.Autosave || !info.ActorCanEdit {
			return
		}
		cache.Invalidate(id)
	})

	// Cross-origin gate around the delivery endpoint
	gate := origin.NewGate(origins)
	gate.OnGranted = func(string) { m.IncOriginGranted() }
	gate.OnDenied = func(o string) {
		m.IncOriginDenied()
		L.Warn(ctx, "origin denied", "origin", o)
	}

	// Loader script with the public base URL baked in
	loader, err := loaderjs.New(conf.PublicBaseURL)
	if err != nil {
		L.Error(ctx, err, "failed to render loader script", "public_base_url", conf.PublicBaseURL)
		os.Exit(1)
	}

	embedAPI := embedhttp.NewAPI(cache, gate.Middleware, L)

	// setup toggle for server shutdown
	var shutdownGate health.ShutdownGate

	// readiness requires the shutdown gate open, the database reachable,
	// and an allow-list snapshot loaded
	readiness := health.All(
		shutdownGate.Probe(),
		health.CheckFunc(docs.Ping),
		health.CheckFunc(func(ctx context.Context) error {
			return origins.Ready()
		}),
	)

	// Setup rate limiter middleware for the public listener
	limiter := ratelimit.New(ctx,
		ratelimit.WithRate(conf.RateLimitPerSecond, conf.RateLimitBurst),
		// increment prometheus counter on each denied request
		ratelimit.WithOnDenied(func(ip string) {
			m.IncRateLimitDenied()
		}),
		// only log the first time an ip is denied each time it is cleaned from the bucket
		ratelimit.WithOnFirstDenied(func(ip string) {
			L.Warn(ctx, "rate limit triggered", "ip", ip)
		}),
		ratelimit.WithOnCapacity(func() {
			m.IncRateLimitCapacity()
			L.Warn(ctx, "rate limit capacity reached, rejecting new visitors until some are evicted")
		}),
	)

	// start public http server: delivery endpoint plus loader script
	publicStop, err := httpserver.Start(ctx, &httpserver.Options{
		Port:   conf.HTTPPort,
		Logger: L,
		APIRoutes: func(r chi.Router) {
			embedAPI.RegisterRoutes(r)
			r.Get("/embed/v1/"+loaderjs.ScriptName, loader.ServeHTTP)
			r.Get("/", loader.RootHandler)
		},
		MetricsMW:    m.Middleware,
		RateLimitMW:  limiter.Middleware,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
		Health:       health.Fixed(true, ""),
		Readiness:    readiness,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start public http listener")
		os.Exit(1)
	}
	defer func() { _ = publicStop(context.Background()) }()

	// admin API rides the ops listener: metrics, health, pprof and the
	// document/allow-list management endpoints
	// sg restricts inbound to internal infrastructure
	// we reject connections from public ips in middleware
	// to prevent accidental exposure if sg is misconfigured
	adminRouter := chi.NewRouter()
	adminhttp.NewAPI(docs, origins, L).RegisterRoutes(adminRouter)

	opsStop, err := opshttp.Start(ctx, L, &opshttp.Options{
		Port:        conf.AdminPort,
		Metrics:     m.Handler(),
		EnablePprof: conf.EnablePprof,
		Health:      health.Fixed(true, ""),
		Readiness:   readiness,
		Admin:       adminRouter,
		OnPanic:     m.IncHttpPanic,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		os.Exit(1)
	}
	defer func() { _ = opsStop(context.Background()) }()

	// notify systemd that we started successfully if started under systemd
	if err := notifySystemd(); err != nil {
		// log and dont exit, worst case systemd will kill the process after timeout
		L.Warn(ctx, "failed to notify systemd of readiness", "error", err)
	}

	// block until signal so we dont exit
	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	L.Info(context.Background(), "shutdown signal received")

	// fail readiness to drain connections before stopping the listeners
	shutdownGate.Set("draining")
	L.Info(context.Background(), "shutdown gate closed")

	L.Info(context.Background(), "sleeping 15s for in-flight requests and load balancer health checks to drain")
	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-time.After(15 * time.Second):
		L.Info(context.Background(), "drain period complete")
	case <-forceCh:
		L.Warn(context.Background(), "second signal received, skipping drain")
	}
	signal.Stop(forceCh)

	if err := publicStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "public http server shutdown")
	}

	if err := opsStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "ops http server shutdown")
	}

	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "otel shutdown")
	}

	stopProf()

	L.Info(context.Background(), "shutdown complete")
	os.Exit(0)
}

func notifySystemd() error {
	// systemd will set NOTIFY_SOCKET to a unix socket path if we were started under systemd with type=notify
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set, skipping systemd notify")
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return fmt.Errorf("systemd notify failed: dial failed: %w", err)
	}
	conn.Write([]byte("READY=1"))
	if err := conn.Close(); err != nil {
		return fmt.Errorf("systemd notify failed: close failed: %w", err)
	}
	return nil
}
