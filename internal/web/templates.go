package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"strconv"
	"time"

	"growpilot/internal/core"
	"growpilot/pkg/domain"
)

//go:embed templates/*.html
var templateFS embed.FS

// templates holds one parsed set per page so each can define "content".
type templates struct {
	pages map[core.Page]*template.Template
}

var funcs = template.FuncMap{
	"date": func(t time.Time) string { return t.Format(domain.DateLayout) },
	"grams": func(v float64) string {
		return strconv.FormatFloat(v, 'f', 1, 64)
	},
	"categoryTitle": func(c domain.Category) string { return c.Title() },
}

func loadTemplates() (*templates, error) {
	base, err := template.New("layout.html").Funcs(funcs).ParseFS(templateFS, "templates/layout.html")
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}
	t := &templates{pages: make(map[core.Page]*template.Template)}
	for _, page := range core.Pages() {
		clone, err := base.Clone()
		if err != nil {
			return nil, err
		}
		if _, err := clone.ParseFS(templateFS, "templates/"+string(page)+".html"); err != nil {
			return nil, fmt.Errorf("parse %s: %w", page, err)
		}
		t.pages[page] = clone
	}
	return t, nil
}

// render executes into a buffer first so a template error never leaves a
// half-written response.
func (t *templates) render(w io.Writer, page core.Page, data any) error {
	tmpl, ok := t.pages[page]
	if !ok {
		return fmt.Errorf("template %q not found", page)
	}
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		return err
	}
	_, err := buf.WriteTo(w)
	return err
}
