package web

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"path"
	"time"

	"github.com/go-sprout/sprout"
	"github.com/gomarkdown/markdown"
)

type Ctx map[string]any

// A Registry holds the dashboard's parsed templates.  Pages render inside
// the base template, which receives the child's output as "body".
type Registry struct {
	funcs template.FuncMap
	base  *template.Template
	pages map[string]*template.Template
}

// NewRegistry returns a registry with the dashboard function map loaded.
func NewRegistry() *Registry {
	handler := sprout.New()
	handler.AddRegistry(newFuncRegistry("vinegar", sprout.FunctionMap{
		"safe": func(s string) template.HTML {
			return template.HTML(s)
		},
		"markdown": func(s string) template.HTML {
			return template.HTML(RenderMarkdown(s))
		},
		"naturalTime": func(t time.Time) string {
			return t.Format("2006-01-02 15:04")
		},
	}))
	return &Registry{
		funcs: template.FuncMap(handler.Build()),
		pages: make(map[string]*template.Template, 10),
	}
}

// AddBaseFS parses the named base template from fsys.
func (r *Registry) AddBaseFS(name string, fsys fs.FS) error {
	tmpl, err := r.parse(name, fsys)
	if err != nil {
		return err
	}
	r.base = tmpl
	return nil
}

// AddFS parses the named page template from fsys.
func (r *Registry) AddFS(name string, fsys fs.FS) error {
	tmpl, err := r.parse(name, fsys)
	if err != nil {
		return err
	}
	r.pages[name] = tmpl
	return nil
}

// parse names the template after the file so ParseFS fills it in.
func (r *Registry) parse(name string, fsys fs.FS) (*template.Template, error) {
	return template.New(path.Base(name)).Funcs(r.funcs).ParseFS(fsys, name)
}

// Render executes the named page inside the base template.
func (r *Registry) Render(w io.Writer, name string, ctx Ctx) error {
	page, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("no such template %q", name)
	}

	var body bytes.Buffer
	if err := page.Execute(&body, ctx); err != nil {
		return err
	}
	ctx["body"] = template.HTML(body.String())
	return r.base.Execute(w, ctx)
}

func RenderMarkdown(source string) string {
	return string(markdown.ToHTML([]byte(source), nil, nil))
}

// funcRegistry adapts a plain FunctionMap to sprout's registry interface.
type funcRegistry struct {
	uid string
	fns sprout.FunctionMap
}

func newFuncRegistry(uid string, fns sprout.FunctionMap) sprout.Registry {
	return &funcRegistry{uid: uid, fns: fns}
}

func (s *funcRegistry) Uid() string { return s.uid }

func (s *funcRegistry) LinkHandler(hn sprout.Handler) error { return nil }

func (s *funcRegistry) RegisterFunctions(fm sprout.FunctionMap) error {
	for name, fn := range s.fns {
		sprout.AddFunction(fm, name, fn)
	}
	return nil
}

func (s *funcRegistry) RegisterAliases(am sprout.FunctionAliasMap) error { return nil }
