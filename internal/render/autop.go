package render

import (
	"regexp"
	"strings"
)

// blockOpenRe matches content that already starts with a block-level tag and
// should not get an extra <p> wrapper.
var blockOpenRe = regexp.MustCompile(`(?i)^<(p|div|ul|ol|li|table|thead|tbody|tr|td|th|blockquote|h[1-6]|pre|figure|figcaption|section|article|header|footer|aside|hr|style)\b`)

var multiNewlineRe = regexp.MustCompile(`\n{2,}`)

// autop wraps double-newline separated chunks of plain text in <p> tags and
// turns single newlines inside a chunk into <br>. Chunks that already start
// with a block-level tag pass through untouched.
func autop(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	chunks := multiNewlineRe.Split(s, -1)
	out := make([]string, 0, len(chunks))
	for _, c := range chunks {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if blockOpenRe.MatchString(c) {
			out = append(out, c)
			continue
		}
		out = append(out, "<p>"+strings.ReplaceAll(c, "\n", "<br>\n")+"</p>")
	}
	return strings.Join(out, "\n")
}
