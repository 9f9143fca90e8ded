// Package shortcode expands [embed id="N"] markers inside document bodies.
// Expansion is server-side same-origin rendering, so it calls the resolver
// directly and never goes through the origin gate.
package shortcode

import (
	"context"
	"regexp"
	"strconv"
)

// ResolveFunc resolves a document id to its renderable content.
// Empty content with nil error means "nothing to embed".
type ResolveFunc func(ctx context.Context, id int64) (string, error)

var (
	tagRe    = regexp.MustCompile(`\[embed\b([^\]]*)\]`)
	idAttrRe = regexp.MustCompile(`\bid\s*=\s*"?(\d+)"?`)
)

const (
	warnMissingID = `<p class="embed-warning" style="color:red">Embed error: no valid document id given.</p>`
	warnSelfEmbed = `<p class="embed-warning" style="color:red">Embed error: a document cannot embed itself.</p>`
	warnLoad      = `<p class="embed-warning" style="color:red">Embedded content could not be loaded.</p>`
)

// Expand replaces every [embed id="N"] in body. containingID is the id of
// the document being rendered; embedding it within itself yields an inline
// warning instead of recursing. Failures never abort the surrounding render.
func Expand(ctx context.Context, body string, containingID int64, resolve ResolveFunc) string {
	if resolve == nil {
		return body
	}
	return tagRe.ReplaceAllStringFunc(body, func(tag string) string {
		attrs := tagRe.FindStringSubmatch(tag)[1]

		m := idAttrRe.FindStringSubmatch(attrs)
		if m == nil {
			return warnMissingID
		}
		id, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil || id <= 0 {
			return warnMissingID
		}
		if id == containingID {
			return warnSelfEmbed
		}

		content, err := resolve(ctx, id)
		if err != nil {
			return warnLoad
		}
		return `<div class="embedded-content">` + content + `</div>`
	})
}
