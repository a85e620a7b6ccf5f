// Package templates holds the server-rendered pages and the echo renderer for them.
package templates

import (
	"embed"
	"errors"
	"html/template"
	"io"
	"io/fs"
	"path"

	"github.com/labstack/echo/v4"
)

//go:embed html/*.html
var files embed.FS

const layout = "base.html"

type Registry struct {
	templates map[string]*template.Template
}

// New parses every page together with the shared layout.
func New() (*Registry, error) {
	pages, err := fs.Glob(files, "html/*.html")
	if err != nil {
		return nil, err
	}
	r := &Registry{templates: map[string]*template.Template{}}
	for _, page := range pages {
		name := path.Base(page)
		if name == layout {
			continue
		}
		t, err := template.ParseFS(files, "html/"+layout, page)
		if err != nil {
			return nil, err
		}
		r.templates[name] = t
	}
	return r, nil
}

func (r *Registry) Render(w io.Writer, name string, data interface{}, c echo.Context) error {
	tmpl, ok := r.templates[name]
	if !ok {
		return errors.New("template not found: " + name)
	}
	return tmpl.ExecuteTemplate(w, layout, data)
}
