package handler

import (
	"embed"
	"html/template"
	"log/slog"
	"net/http"
)

//go:embed templates/*.html
var embeddedTemplates embed.FS

// Renderer renders the server-rendered HTML surface. The core only
// produces the structured page data (errors, form state, entities);
// Renderer is the thin view layer that formats it, kept deliberately
// small since HTML presentation sits outside the core's scope.
type Renderer struct {
	tmpl   *template.Template
	logger *slog.Logger
}

// NewRenderer parses every templates/*.html file. layout.html defines
// the shared "header"/"footer" blocks; every other file defines one
// uniquely named top-level template that wraps its own content in them.
func NewRenderer(logger *slog.Logger) (*Renderer, error) {
	tmpl, err := template.ParseFS(embeddedTemplates, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &Renderer{tmpl: tmpl, logger: logger}, nil
}

// Render executes the named page template (each page wraps the
// shared "header"/"footer" blocks itself), writing the given status
// code first.
func (r *Renderer) Render(w http.ResponseWriter, status int, page string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := r.tmpl.ExecuteTemplate(w, page, data); err != nil {
		r.logger.Error("renderer: execute failed", "page", page, "error", err)
	}
}
