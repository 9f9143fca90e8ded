package origin

import (
	"encoding/json"
	"net/http"
)

// Provider supplies the allow-list snapshot for one evaluation. The gate
// itself holds no state, so a reload between requests is always clean.
type Provider interface {
	Snapshot() Allowlist
}

// Decision is the outcome of evaluating a request's declared origin.
type Decision struct {
	// Origin is the declared Origin header value, "" for same-origin or
	// non-browser requests.
	Origin string

	// Grant means CORS response headers for Origin should be emitted.
	Grant bool

	// ShortCircuit means this is an allowed preflight: respond 200 with an
	// empty body and skip the content handler.
	ShortCircuit bool

	// Forbidden means the request must be rejected with 403. Disallowed
	// OPTIONS requests are NOT forbidden: they fall through so default
	// method handling still applies to non-CORS callers.
	Forbidden bool
}

type Gate struct {
	origins Provider

	// metrics hooks, either may be nil
	OnGranted func(origin string)
	OnDenied  func(origin string)
}

func NewGate(origins Provider) *Gate {
	return &Gate{origins: origins}
}

// Evaluate applies the cross-origin policy. Requests without an Origin
// header pass untouched: browsers only send Origin on cross-origin (and
// some same-origin) requests, and this gate exists solely for cross-origin
// control.
func (g *Gate) Evaluate(origin, method string) Decision {
	if origin == "" {
		return Decision{}
	}

	allowed := g.origins.Snapshot().Allows(origin)

	if allowed {
		if g.OnGranted != nil {
			g.OnGranted(origin)
		}
		return Decision{
			Origin:       origin,
			Grant:        true,
			ShortCircuit: method == http.MethodOptions,
		}
	}

	if method == http.MethodOptions {
		// not a grant, not a rejection: let default handling decide
		return Decision{Origin: origin}
	}

	if g.OnDenied != nil {
		g.OnDenied(origin)
	}
	return Decision{Origin: origin, Forbidden: true}
}

// Middleware enforces the gate around the embed API routes.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := g.Evaluate(r.Header.Get("Origin"), r.Method)

		if d.Grant {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", d.Origin)
			h.Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			h.Set("Access-Control-Allow-Credentials", "true")
			// responses differ per origin; shared caches must not conflate them
			h.Add("Vary", "Origin")
		}

		if d.ShortCircuit {
			w.WriteHeader(http.StatusOK)
			return
		}

		if d.Forbidden {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusForbidden)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"code":    "rest_forbidden_origin",
				"message": "access from this origin is not permitted",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}
