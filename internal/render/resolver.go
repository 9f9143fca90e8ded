// Package render resolves a document id to its publicly renderable HTML.
// It is a pure read path: document lookup plus the content filter pipeline.
// Caching sits in front of it and is someone else's job.
package render

import (
	"context"

	"github.com/asembed/embed-server/internal/shortcode"
	"github.com/asembed/embed-server/internal/store"
)

type DocumentGetter interface {
	Get(ctx context.Context, id int64) (*store.Document, error)
}

type Resolver struct {
	docs      DocumentGetter
	sanitizer *sanitizer
}

func NewResolver(docs DocumentGetter) *Resolver {
	return &Resolver{
		docs:      docs,
		sanitizer: newSanitizer(),
	}
}

// Resolve returns the rendered content for id, or "" when the document does
// not exist, is not published, or the id is invalid. Draft content is never
// returned, not even partially. Errors are I/O only.
func (r *Resolver) Resolve(ctx context.Context, id int64) (string, error) {
	if id <= 0 {
		return "", nil
	}
	if visited(ctx, id) {
		// embed cycle: treat the inner occurrence as unavailable
		return "", nil
	}

	doc, err := r.docs.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if !doc.Published() {
		return "", nil
	}

	// page-builder renderings replace the raw body but still run through
	// the standard filter pipeline
	body := doc.Content
	if doc.BuilderHTML != "" {
		body = doc.BuilderHTML
	}

	ctx = markVisited(ctx, id)
	body = shortcode.Expand(ctx, body, id, r.Resolve)
	body = autop(body)
	return r.sanitizer.sanitize(body), nil
}

// visitedKey carries the set of document ids already being rendered on this
// resolution path, so embed chains terminate on cycles.
type visitedKey struct{}

func visited(ctx context.Context, id int64) bool {
	if m, ok := ctx.Value(visitedKey{}).(map[int64]bool); ok {
		return m[id]
	}
	return false
}

func markVisited(ctx context.Context, id int64) context.Context {
	next := map[int64]bool{id: true}
	if m, ok := ctx.Value(visitedKey{}).(map[int64]bool); ok {
		for k := range m {
			next[k] = true
		}
	}
	return context.WithValue(ctx, visitedKey{}, next)
}
