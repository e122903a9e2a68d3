package view

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
)

//go:embed templates/*.html
var templateFS embed.FS

// Region names an independently replaceable part of the page. Each region
// renders as a single element whose id is the region name.
type Region string

const (
	RegionStatus       Region = "status"
	RegionNotification Region = "notification"
	RegionHeader       Region = "header"
	RegionForms        Region = "forms"
	RegionIssues       Region = "issues"
	RegionStats        Region = "stats"
	RegionIssueList    Region = "issue-list"
)

// Renderer executes the embedded templates. html/template escapes every
// user-supplied value.
type Renderer struct {
	tmpl *template.Template
}

func NewRenderer() (*Renderer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

// MustRenderer is NewRenderer for package initialisation; the templates are
// embedded, so a failure is a build defect.
func MustRenderer() *Renderer {
	r, err := NewRenderer()
	if err != nil {
		panic(err)
	}
	return r
}

// Page writes the full document.
func (r *Renderer) Page(w io.Writer, m Model) error {
	return r.tmpl.ExecuteTemplate(w, "page", m)
}

// Region renders one region to a string.
func (r *Renderer) Region(region Region, m Model) (string, error) {
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, string(region), m); err != nil {
		return "", fmt.Errorf("render %s: %w", region, err)
	}
	return buf.String(), nil
}
