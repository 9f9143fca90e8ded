package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/asembed/embed-server/internal/embedhttp"
	"github.com/asembed/embed-server/internal/health"
	"github.com/asembed/embed-server/internal/loaderjs"
	"github.com/asembed/embed-server/internal/log"
	"github.com/asembed/embed-server/internal/origin"
	"github.com/asembed/embed-server/internal/render"
	"github.com/asembed/embed-server/internal/rendercache"
	"github.com/asembed/embed-server/internal/store"
)

// testServer wires the real pipeline: store -> resolver -> cache -> API,
// with the origin gate in front, exactly as main assembles it.
type testServer struct {
	handler  http.Handler
	docs     *store.Store
	cache    *rendercache.Cache
	resolves atomic.Int64
}

func newTestServer(t *testing.T, origins string) *testServer {
	t.Helper()

	docs, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { docs.Close() })

	ts := &testServer{docs: docs}

	resolver := render.NewResolver(docs)
	ts.cache = rendercache.New(func(ctx context.Context, id int64) (string, error) {
		ts.resolves.Add(1)
		return resolver.Resolve(ctx, id)
	})
	docs.OnSaved(func(id int64, info store.SaveInfo) {
		if !info.Autosave && info.ActorCanEdit {
			ts.cache.Invalidate(id)
		}
	})

	originStore := origin.NewStore(filepath.Join(t.TempDir(), "origins.txt"), nil)
	if _, _, err := originStore.Replace(context.Background(), origins); err != nil {
		t.Fatalf("seed origins: %v", err)
	}
	gate := origin.NewGate(originStore)

	loader, err := loaderjs.New("https://cms.example")
	if err != nil {
		t.Fatalf("loaderjs: %v", err)
	}

	ts.handler = NewHandler(&Options{
		Logger: log.Nop(),
		APIRoutes: func(r chi.Router) {
			embedhttp.NewAPI(ts.cache, gate.Middleware, nil).RegisterRoutes(r)
			r.Get("/embed/v1/observer.js", loader.ServeHTTP)
			r.Get("/", loader.RootHandler)
		},
		UseRecoverMW: true,
		Health:       health.Fixed(true, ""),
		Readiness:    health.Fixed(true, ""),
	})
	return ts
}

func (ts *testServer) publish(t *testing.T, id int64, content string) {
	t.Helper()
	doc := store.Document{ID: id, Status: store.StatusPublished, Content: content}
	if err := ts.docs.Save(context.Background(), doc, store.SaveInfo{ActorCanEdit: true}); err != nil {
		t.Fatalf("publish %d: %v", id, err)
	}
}

func (ts *testServer) get(t *testing.T, path, orig string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if orig != "" {
		req.Header.Set("Origin", orig)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func contentOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp embedhttp.ContentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return resp.Content
}

// First embed request resolves and caches; the second is served from cache.
func TestDeliveryCachesAcrossRequests(t *testing.T) {
	ts := newTestServer(t, "https://a.example\n")
	ts.publish(t, 10, "<p>hello world</p>")

	rec := ts.get(t, "/embed/v1/post/10", "https://a.example")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if got := contentOf(t, rec); !strings.Contains(got, "hello world") {
		t.Errorf("content = %q", got)
	}
	if acao := rec.Header().Get("Access-Control-Allow-Origin"); acao != "https://a.example" {
		t.Errorf("ACAO = %q", acao)
	}
	if vary := rec.Header().Get("Vary"); !strings.Contains(vary, "Origin") {
		t.Errorf("Vary = %q", vary)
	}

	rec = ts.get(t, "/embed/v1/post/10", "https://a.example")
	if rec.Code != http.StatusOK {
		t.Fatalf("second status = %d", rec.Code)
	}
	if n := ts.resolves.Load(); n != 1 {
		t.Errorf("resolver ran %d times, want 1", n)
	}
}

// Saving a document invalidates its cache entry; the next request sees the
// new content. An autosave must not invalidate.
func TestDeliveryReflectsEditsAfterSave(t *testing.T) {
	ts := newTestServer(t, "https://a.example\n")
	ts.publish(t, 11, "<p>before</p>")

	if got := contentOf(t, ts.get(t, "/embed/v1/post/11", "https://a.example")); !strings.Contains(got, "before") {
		t.Fatalf("content = %q", got)
	}

	// autosave: cache keeps serving the old content
	draft := store.Document{ID: 11, Status: store.StatusPublished, Content: "<p>autosaved</p>"}
	if err := ts.docs.Save(context.Background(), draft, store.SaveInfo{Autosave: true, ActorCanEdit: true}); err != nil {
		t.Fatalf("autosave: %v", err)
	}
	if got := contentOf(t, ts.get(t, "/embed/v1/post/11", "https://a.example")); !strings.Contains(got, "before") {
		t.Errorf("autosave invalidated cache, content = %q", got)
	}

	// real save: next request resolves fresh
	ts.publish(t, 11, "<p>after</p>")
	if got := contentOf(t, ts.get(t, "/embed/v1/post/11", "https://a.example")); !strings.Contains(got, "after") {
		t.Errorf("content = %q, want the edited body", got)
	}
}

func TestDeliveryForbiddenOrigin(t *testing.T) {
	ts := newTestServer(t, "https://a.example\n")
	ts.publish(t, 12, "<p>secret-ish</p>")

	rec := ts.get(t, "/embed/v1/post/12", "https://evil.example")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	var e embedhttp.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &e); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if e.Code != "rest_forbidden_origin" {
		t.Errorf("code = %q", e.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("ACAO set on forbidden response")
	}
	if n := ts.resolves.Load(); n != 0 {
		t.Errorf("resolver ran %d times for a forbidden request", n)
	}
}

func TestDeliveryDraftIsNotFound(t *testing.T) {
	ts := newTestServer(t, "https://a.example\n")
	doc := store.Document{ID: 13, Status: store.StatusDraft, Content: "<p>draft</p>"}
	if err := ts.docs.Save(context.Background(), doc, store.SaveInfo{ActorCanEdit: true}); err != nil {
		t.Fatalf("save: %v", err)
	}

	rec := ts.get(t, "/embed/v1/post/13", "https://a.example")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "draft") {
		t.Error("draft content leaked into the response body")
	}
}

// A draft returning empty is never cached, so publishing becomes visible on
// the very next request.
func TestDeliveryPicksUpLatePublish(t *testing.T) {
	ts := newTestServer(t, "https://a.example\n")
	doc := store.Document{ID: 14, Status: store.StatusDraft, Content: "<p>soon</p>"}
	// save without edit rights so no invalidation hook interferes
	if err := ts.docs.Save(context.Background(), doc, store.SaveInfo{}); err != nil {
		t.Fatalf("save: %v", err)
	}

	if rec := ts.get(t, "/embed/v1/post/14", "https://a.example"); rec.Code != http.StatusNotFound {
		t.Fatalf("draft status = %d, want 404", rec.Code)
	}

	doc.Status = store.StatusPublished
	if err := ts.docs.Save(context.Background(), doc, store.SaveInfo{}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	rec := ts.get(t, "/embed/v1/post/14", "https://a.example")
	if rec.Code != http.StatusOK {
		t.Fatalf("published status = %d, want 200", rec.Code)
	}
	if got := contentOf(t, rec); !strings.Contains(got, "soon") {
		t.Errorf("content = %q", got)
	}
}

func TestPreflightShortCircuit(t *testing.T) {
	ts := newTestServer(t, "https://a.example\n")
	ts.publish(t, 15, "<p>x</p>")

	req := httptest.NewRequest(http.MethodOptions, "/embed/v1/post/15", nil)
	req.Header.Set("Origin", "https://a.example")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if acam := rec.Header().Get("Access-Control-Allow-Methods"); acam != "GET, OPTIONS" {
		t.Errorf("ACAM = %q", acam)
	}
	if acac := rec.Header().Get("Access-Control-Allow-Credentials"); acac != "true" {
		t.Errorf("ACAC = %q", acac)
	}
	if n := ts.resolves.Load(); n != 0 {
		t.Errorf("resolver ran on preflight")
	}
}

func TestLoaderScriptRoutes(t *testing.T) {
	ts := newTestServer(t, "https://a.example\n")

	for _, path := range []string{"/embed/v1/observer.js", "/?embed=observer.js"} {
		rec := ts.get(t, path, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d", path, rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/javascript; charset=utf-8" {
			t.Errorf("%s: content type = %q", path, ct)
		}
		if !strings.Contains(rec.Body.String(), "MutationObserver") {
			t.Errorf("%s: loader body missing observer", path)
		}
	}
}

func TestHealthRoutes(t *testing.T) {
	ts := newTestServer(t, "https://a.example\n")

	for _, path := range []string{"/-/healthy", "/-/ready"} {
		rec := ts.get(t, path, "")
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d", path, rec.Code)
		}
	}
}

func TestRequestIDHeader(t *testing.T) {
	ts := newTestServer(t, "https://a.example\n")

	rec := ts.get(t, "/-/healthy", "")
	if rec.Header().Get("X-Request-Id") == "" {
		t.Error("X-Request-Id missing from response")
	}
}

func TestSecurityHeadersPresent(t *testing.T) {
	ts := newTestServer(t, "https://a.example\n")
	ts.publish(t, 16, "<p>x</p>")

	rec := ts.get(t, "/embed/v1/post/16", "https://a.example")
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("nosniff missing")
	}
	if got := rec.Header().Get("Cross-Origin-Resource-Policy"); got != "cross-origin" {
		t.Errorf("CORP = %q", got)
	}
}

func TestRecoverMiddlewareWired(t *testing.T) {
	h := NewHandler(&Options{
		Logger: log.Nop(),
		APIRoutes: func(r chi.Router) {
			r.Get("/boom", func(w http.ResponseWriter, r *http.Request) {
				panic("kaput")
			})
		},
		UseRecoverMW: true,
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}
