package render

import (
	"github.com/microcosm-cc/bluemonday"
)

// sanitizer is the last filter in the pipeline. Embedding clients inject our
// output into their DOM verbatim, so everything scripty has to die here.
type sanitizer struct {
	policy *bluemonday.Policy
}

func newSanitizer() *sanitizer {
	p := bluemonday.UGCPolicy()

	// embed markup carries classes (embedded-content, embed-warning,
	// skeleton styling hooks on the client side)
	p.AllowAttrs("class").Globally()

	// inline warnings use color only
	p.AllowStyles("color").Globally()

	p.AllowElements("div", "span", "figure", "figcaption", "section", "article", "aside", "header", "footer")

	return &sanitizer{policy: p}
}

func (s *sanitizer) sanitize(html string) string {
	return s.policy.Sanitize(html)
}
