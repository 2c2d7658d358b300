// Package web renders the upload page.
package web

import (
	"embed"
	"fmt"
	"html/template"
	"io"
)

//go:embed templates/*.html
var templates embed.FS

// Page is the data rendered into index.html. A zero Page renders the bare
// upload form.
type Page struct {
	UploadImage string
	ResultImage string
	Detected    []string
}

// Renderer executes the embedded templates.
type Renderer struct {
	index *template.Template
}

// NewRenderer parses the embedded templates.
func NewRenderer() (*Renderer, error) {
	index, err := template.ParseFS(templates, "templates/index.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return &Renderer{index: index}, nil
}

// Index writes the upload page populated with p.
func (r *Renderer) Index(w io.Writer, p Page) error {
	return r.index.Execute(w, p)
}
