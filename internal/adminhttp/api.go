// Package adminhttp is the operator-facing API served on the ops listener:
// allow-list management, document upserts and embed-code generation. It is
// never exposed on the public listener.
package adminhttp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/asembed/embed-server/internal/log"
	"github.com/asembed/embed-server/internal/origin"
	"github.com/asembed/embed-server/internal/store"
)

// maxOriginsBody bounds PUT /admin/origins payloads.
const maxOriginsBody = 64 << 10

// DocumentStore is the slice of the document store the admin API needs.
type DocumentStore interface {
	Get(ctx context.Context, id int64) (*store.Document, error)
	Save(ctx context.Context, doc store.Document, info store.SaveInfo) error
}

// OriginStore manages the persisted allow-list.
type OriginStore interface {
	Snapshot() origin.Allowlist
	Replace(ctx context.Context, text string) (origin.Allowlist, []string, error)
}

type API struct {
	docs    DocumentStore
	origins OriginStore
	logger  log.Logger
}

func NewAPI(docs DocumentStore, origins OriginStore, logger log.Logger) *API {
	if logger == nil {
		logger = log.Nop()
	}
	return &API{docs: docs, origins: origins, logger: logger}
}

func (api *API) RegisterRoutes(r chi.Router) {
	r.Get("/admin/origins", api.HandleGetOrigins)
	r.Put("/admin/origins", api.HandlePutOrigins)
	r.Put("/admin/documents/{id}", api.HandlePutDocument)
	r.Get("/admin/documents/{id}/embed-code", api.HandleEmbedCode)
}

// HandleGetOrigins returns the current allow-list, one origin per line.
func (api *API) HandleGetOrigins(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, api.origins.Snapshot().String())
}

// OriginsResponse reports the outcome of an allow-list replacement.
type OriginsResponse struct {
	Origins  []string `json:"origins"`
	Rejected []string `json:"rejected,omitempty"`
}

// HandlePutOrigins replaces the allow-list wholesale. The body is plain
// text, one origin per line; malformed lines are dropped and reported.
func (api *API) HandlePutOrigins(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxOriginsBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "could not read request body")
		return
	}

	list, rejected, err := api.origins.Replace(ctx, string(body))
	if err != nil {
		api.logger.Error(ctx, err, "allow-list replace failed")
		writeError(w, http.StatusInternalServerError, "internal", "could not persist allow-list")
		return
	}
	if len(rejected) > 0 {
		api.logger.Warn(ctx, "allow-list lines rejected", "count", len(rejected))
	}

	writeJSON(w, http.StatusOK, OriginsResponse{Origins: list.Origins(), Rejected: rejected})
}

// DocumentRequest is the PUT /admin/documents/{id} body.
type DocumentRequest struct {
	Status       string `json:"status"`
	Content      string `json:"content"`
	BuilderHTML  string `json:"builder_html,omitempty"`
	Autosave     bool   `json:"autosave,omitempty"`
	ActorCanEdit bool   `json:"actor_can_edit"`
}

// HandlePutDocument upserts a document. Save hooks fire synchronously, so
// cache invalidation has happened by the time the response is written.
func (api *API) HandlePutDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := parseID(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusBadRequest, "rest_invalid_param", "id must be a positive integer")
		return
	}

	var req DocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "malformed JSON body")
		return
	}
	if req.Status != store.StatusPublished && req.Status != store.StatusDraft {
		writeError(w, http.StatusBadRequest, "rest_invalid_param",
			fmt.Sprintf("status must be %q or %q", store.StatusPublished, store.StatusDraft))
		return
	}

	doc := store.Document{
		ID:          id,
		Status:      req.Status,
		Content:     req.Content,
		BuilderHTML: req.BuilderHTML,
	}
	info := store.SaveInfo{Autosave: req.Autosave, ActorCanEdit: req.ActorCanEdit}
	if err := api.docs.Save(ctx, doc, info); err != nil {
		api.logger.Error(ctx, err, "document save failed", "document_id", id)
		writeError(w, http.StatusInternalServerError, "internal", "could not save document")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// EmbedCodeResponse carries the copyable snippets for embedding a document.
type EmbedCodeResponse struct {
	Placeholder string `json:"placeholder"`
	Shortcode   string `json:"shortcode"`
}

// HandleEmbedCode returns the placeholder div and shortcode for a document.
// The document must exist, but need not be published.
func (api *API) HandleEmbedCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := parseID(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusBadRequest, "rest_invalid_param", "id must be a positive integer")
		return
	}

	doc, err := api.docs.Get(ctx, id)
	if err != nil {
		api.logger.Error(ctx, err, "document lookup failed", "document_id", id)
		writeError(w, http.StatusInternalServerError, "internal", "could not load document")
		return
	}
	if doc == nil {
		writeError(w, http.StatusNotFound, "no_content", "document does not exist")
		return
	}

	writeJSON(w, http.StatusOK, EmbedCodeResponse{
		Placeholder: fmt.Sprintf(`<div class="content-embed-placeholder" data-post-id="%d"></div>`, id),
		Shortcode:   fmt.Sprintf(`[embed id="%d"]`, id),
	})
}

func parseID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// ErrorResponse mirrors the public API error shape.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: msg})
}
