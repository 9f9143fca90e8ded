package httpmw

import (
	"context"
	"net"
	"net/http"
)

type clientIPKey struct{}

// WithClientIP stores the resolved client IP in the context.
func WithClientIP(ctx context.Context, ip string) context.Context {
	if ip == "" {
		return ctx
	}
	return context.WithValue(ctx, clientIPKey{}, ip)
}

// ClientIPFromContext gets the client IP from context, or "" if none.
func ClientIPFromContext(ctx context.Context) string {
	if v := ctx.Value(clientIPKey{}); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// ClientIP resolves the peer IP from the connection's remote address and
// stores it in the context for the rate limiter and logging. Forwarding
// headers are not consulted; this server terminates client connections
// directly.
func ClientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
		next.ServeHTTP(w, r.WithContext(WithClientIP(r.Context(), ip)))
	})
}
