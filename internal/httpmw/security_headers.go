package httpmw

import "net/http"

// SecurityHeaders adds baseline security headers to every response.
//
// This API exists to be consumed cross-origin, so Cross-Origin-Resource-Policy
// is deliberately set to cross-origin; the origin gate is the access control,
// not browser resource isolation. No cookies or sessions are involved, so
// CSRF protection is not applicable.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")

		// The server only emits JSON and the loader script; nothing here
		// should ever execute as a document.
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Resource-Policy", "cross-origin")

		next.ServeHTTP(w, r)
	})
}
