// Package origin decides whether a cross-origin request may read the embed
// API. The allow-list is operator-configured and exact-match only: no
// wildcards, no prefix matching, so a lookalike domain never slips through.
package origin

import (
	"net/url"
	"strings"
)

// Allowlist is an immutable, normalized set of origins
// (scheme://host[:port], no trailing slash, no path).
type Allowlist struct {
	ordered []string
	members map[string]struct{}
}

// ParseAllowlist reads one origin per line, trims whitespace, strips a
// trailing slash, and drops blanks and duplicates. Lines that do not parse
// as an absolute http(s) URL with a bare host are returned as rejected.
func ParseAllowlist(text string) (Allowlist, []string) {
	a := Allowlist{members: make(map[string]struct{})}
	var rejected []string

	for _, line := range strings.Split(text, "\n") {
		s := strings.TrimSpace(line)
		if s == "" {
			continue
		}
		s = strings.TrimRight(s, "/")

		if !validOrigin(s) {
			rejected = append(rejected, line)
			continue
		}
		if _, dup := a.members[s]; dup {
			continue
		}
		a.members[s] = struct{}{}
		a.ordered = append(a.ordered, s)
	}
	return a, rejected
}

func validOrigin(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	// an origin is scheme+host only
	return u.Host != "" && u.Path == "" && u.RawQuery == "" && u.Fragment == "" && u.User == nil
}

// Allows reports exact, case-sensitive membership of the declared origin.
func (a Allowlist) Allows(origin string) bool {
	if origin == "" {
		return false
	}
	_, ok := a.members[origin]
	return ok
}

// Origins returns the entries in their configured order.
func (a Allowlist) Origins() []string {
	out := make([]string, len(a.ordered))
	copy(out, a.ordered)
	return out
}

func (a Allowlist) Len() int { return len(a.ordered) }

// String renders the canonical on-disk form, one origin per line.
func (a Allowlist) String() string {
	if len(a.ordered) == 0 {
		return ""
	}
	return strings.Join(a.ordered, "\n") + "\n"
}
