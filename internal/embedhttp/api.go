// Package embedhttp is the public embed API: the content delivery endpoint
// behind the origin gate and render cache.
package embedhttp

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/asembed/embed-server/internal/log"
)

// ContentSource yields renderable content for a document id, typically the
// render cache. Empty content with nil error means "not available".
type ContentSource interface {
	GetOrCompute(ctx context.Context, id int64) (string, error)
}

// API implements the embed delivery endpoints.
type API struct {
	content ContentSource
	gate    func(http.Handler) http.Handler
	logger  log.Logger
}

// NewAPI creates the embed API handler. gate is the origin-gate middleware
// wrapped around every embed route; pass nil to serve ungated (tests only).
func NewAPI(content ContentSource, gate func(http.Handler) http.Handler, logger log.Logger) *API {
	if logger == nil {
		logger = log.Nop()
	}
	return &API{content: content, gate: gate, logger: logger}
}

// RegisterRoutes attaches the embed endpoints to the router.
func (api *API) RegisterRoutes(r chi.Router) {
	r.Group(func(gr chi.Router) {
		if api.gate != nil {
			gr.Use(api.gate)
		}
		gr.Get("/embed/v1/post/{id}", api.HandleGetContent)
		// OPTIONS reaches here only when the gate did not short-circuit
		// (same-origin or disallowed origin); answer like a plain endpoint
		gr.Options("/embed/v1/post/{id}", api.HandleOptions)
	})
}

// ContentResponse is the success body.
type ContentResponse struct {
	Content string `json:"content"`
}

// HandleGetContent serves GET /embed/v1/post/{id}.
func (api *API) HandleGetContent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := parseID(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusBadRequest, "rest_invalid_param", "id must be an unsigned integer")
		return
	}

	content, err := api.content.GetOrCompute(ctx, id)
	if err != nil {
		api.logger.Error(ctx, err, "content resolution failed", "document_id", id)
		writeError(w, http.StatusInternalServerError, "internal", "content resolution failed")
		return
	}
	if content == "" {
		writeError(w, http.StatusNotFound, "no_content", "content not found or not available")
		return
	}

	writeJSON(w, http.StatusOK, ContentResponse{Content: content})
}

// HandleOptions answers non-preflight OPTIONS calls that fell through the
// gate. No content logic runs.
func (api *API) HandleOptions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Allow", "GET, OPTIONS")
	w.WriteHeader(http.StatusOK)
}

func parseID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 0 {
		return 0, false
	}
	return id, true
}
