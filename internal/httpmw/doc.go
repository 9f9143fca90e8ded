// Package httpmw provides HTTP middleware for the embed server.
//
// Middleware is composed in a specific order in httpserver.NewHandler:
// security headers, recovery, request ID, rate limiting, OTEL tracing,
// metrics, structured logging, then the chi router. The origin gate is not
// here; it lives in internal/origin and wraps only the embed API routes.
//
// Each middleware is an independent function that can be tested, reordered,
// or removed individually.
package httpmw
