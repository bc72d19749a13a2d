package render

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/ledgerdesk/backoffice/internal/browser"
	ierr "github.com/ledgerdesk/backoffice/internal/errors"
	"github.com/ledgerdesk/backoffice/internal/typst"
)

const (
	extTypst = ".typ"
	extHTML  = ".html"
)

type typstEngine struct {
	compiler typst.Compiler
}

// NewTypstEngine renders .typ templates; the binding is handed over as a
// JSON file read by the template through sys.inputs.path
func NewTypstEngine(compiler typst.Compiler) Engine {
	return &typstEngine{compiler: compiler}
}

func (e *typstEngine) Ext() string {
	return extTypst
}

func (e *typstEngine) Render(ctx context.Context, tpl *Template, data Binding) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("failed to marshal document data").
			Mark(ierr.ErrSystem)
	}
	return e.compiler.CompileTemplate(ctx, tpl.Path, payload)
}

type htmlEngine struct {
	printer browser.Printer
}

// NewHTMLEngine renders .html templates with html/template and prints the
// result with headless Chromium
func NewHTMLEngine(printer browser.Printer) Engine {
	return &htmlEngine{printer: printer}
}

func (e *htmlEngine) Ext() string {
	return extHTML
}

func (e *htmlEngine) Render(ctx context.Context, tpl *Template, data Binding) ([]byte, error) {
	if tpl.html == nil {
		return nil, ierr.NewErrorf("template %s was not parsed", tpl.ID()).
			Mark(ierr.ErrSystem)
	}
	var buf bytes.Buffer
	if err := tpl.html.Execute(&buf, map[string]any(data)); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Document template could not be filled").
			WithReportableDetails(map[string]any{"template": tpl.ID()}).
			Mark(ierr.ErrSystem)
	}
	return e.printer.PrintHTML(ctx, buf.Bytes())
}

// parseHTML prepares an html layout. Besides the builtins, layouts can use
// show (placeholder for missing values), asset (file URL of a file next to
// the layout) and dir (text direction of a language code).
func (r *Renderer) parseHTML(t *Template) error {
	dir, err := filepath.Abs(filepath.Dir(t.Path))
	if err != nil {
		dir = filepath.Dir(t.Path)
	}
	placeholder := r.opts.Placeholder

	funcs := template.FuncMap{
		"show": func(v any) string {
			if v == nil {
				return placeholder
			}
			s := strings.TrimSpace(fmt.Sprint(v))
			if s == "" {
				return placeholder
			}
			return s
		},
		"asset": func(name string) template.URL {
			path := filepath.Join(dir, filepath.Clean("/"+name))
			return template.URL((&url.URL{Scheme: "file", Path: path}).String())
		},
		"dir": func(lang any) string {
			if fmt.Sprint(lang) == "ar" {
				return "rtl"
			}
			return "ltr"
		},
	}

	parsed, err := template.New(filepath.Base(t.Path)).Funcs(funcs).Parse(string(t.Content))
	if err != nil {
		return ierr.WithError(err).
			WithHint("Document template is invalid").
			WithReportableDetails(map[string]any{"template": t.Name}).
			Mark(ierr.ErrSystem)
	}
	t.html = parsed
	return nil
}
