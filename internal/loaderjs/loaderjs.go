// Package loaderjs serves the client loader script. The script discovers
// embed placeholders in a host page's DOM, fetches content from the embed
// API and swaps it in, showing a skeleton while loading.
package loaderjs

import (
	_ "embed"
	"fmt"
	"net/http"
	"strings"
	"text/template"
)

//go:embed observer.js.tmpl
var scriptTemplate string

// ScriptName is the file name the script is served under, both as a path
// segment and as the value of the legacy ?embed= query parameter.
const ScriptName = "observer.js"

// Handler serves the rendered loader script. The API base URL is baked in
// at construction; the script is rendered once.
type Handler struct {
	script []byte
}

// New renders the loader script against the public base URL of the embed
// API, e.g. "https://cms.example" yields fetches against
// "https://cms.example/embed/v1/post/<id>".
func New(publicBaseURL string) (*Handler, error) {
	tmpl, err := template.New(ScriptName).Parse(scriptTemplate)
	if err != nil {
		return nil, fmt.Errorf("loaderjs: parse script template: %w", err)
	}

	base := strings.TrimRight(publicBaseURL, "/") + "/embed/v1/post/"
	var buf strings.Builder
	if err := tmpl.Execute(&buf, struct{ APIBaseURL string }{base}); err != nil {
		return nil, fmt.Errorf("loaderjs: render script: %w", err)
	}
	return &Handler{script: []byte(buf.String())}, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.script)
}

// RootHandler serves the legacy "GET /?embed=observer.js" form. Requests
// without the parameter get a 404.
func (h *Handler) RootHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("embed") == ScriptName {
		h.ServeHTTP(w, r)
		return
	}
	http.NotFound(w, r)
}
