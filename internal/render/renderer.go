// Package render turns a template and a record binding into a base PDF.
package render

import (
	"bytes"
	"context"
	"time"

	"github.com/ledgerdesk/backoffice/internal/browser"
	"github.com/ledgerdesk/backoffice/internal/cache"
	"github.com/ledgerdesk/backoffice/internal/config"
	ierr "github.com/ledgerdesk/backoffice/internal/errors"
	"github.com/ledgerdesk/backoffice/internal/logger"
	"github.com/ledgerdesk/backoffice/internal/typst"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Binding is the generic key/value contract between records and templates
type Binding map[string]any

// Engine rasterizes a bound template into a PDF
type Engine interface {
	// Ext is the template file extension the engine handles
	Ext() string
	Render(ctx context.Context, tpl *Template, data Binding) ([]byte, error)
}

// Rendered is a base document produced by an engine
type Rendered struct {
	Data      []byte
	PageCount int
	// Template is the exact layout used, name@version
	Template string
	Engine   string
}

type Options struct {
	Dir string
	// Placeholder replaces optional values that are not set
	Placeholder string
	// Timeout bounds one engine run
	Timeout time.Duration
}

type Renderer struct {
	opts    Options
	logger  *logger.Logger
	cache   cache.Cache
	engines map[string]Engine
	order   []string
}

// NewRenderer wires the typst and Chromium engines configured for the application
func NewRenderer(cfg *config.Configuration, log *logger.Logger, c cache.Cache, compiler typst.Compiler, printer browser.Printer) *Renderer {
	return New(Options{
		Dir:         cfg.Templates.Dir,
		Placeholder: cfg.Templates.Placeholder,
		Timeout:     cfg.Render.Timeout,
	}, log, c, NewTypstEngine(compiler), NewHTMLEngine(printer))
}

// New creates a renderer over the given engines. When a template exists for
// several engines the first registered engine wins.
func New(opts Options, log *logger.Logger, c cache.Cache, engines ...Engine) *Renderer {
	r := &Renderer{
		opts:    opts,
		logger:  log,
		cache:   c,
		engines: make(map[string]Engine, len(engines)),
	}
	for _, e := range engines {
		if _, dup := r.engines[e.Ext()]; dup {
			continue
		}
		r.engines[e.Ext()] = e
		r.order = append(r.order, e.Ext())
	}
	return r
}

// Render resolves templateName, binds the record into it and runs the
// matching engine under the render timeout. A missing template is
// ErrTemplateNotFound and an engine that overruns is ErrRenderTimeout.
func (r *Renderer) Render(ctx context.Context, templateName string, binding Binding) (*Rendered, error) {
	tpl, err := r.Resolve(ctx, templateName)
	if err != nil {
		return nil, err
	}
	engine, ok := r.engines[tpl.Ext]
	if !ok {
		return nil, ierr.NewErrorf("no engine for %s templates", tpl.Ext).
			WithHint("Document template is missing").
			Mark(ierr.ErrTemplateNotFound)
	}

	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	data, err := engine.Render(ctx, tpl, Bind(binding, r.opts.Placeholder))
	if err != nil {
		if ctx.Err() != nil && !ierr.IsRenderTimeout(err) {
			err = ierr.WithError(err).
				WithHint("Rendering the document took too long").
				Mark(ierr.ErrRenderTimeout)
		}
		r.logger.Errorw("template rendering failed",
			"template", tpl.ID(),
			"engine", tpl.Ext,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err)
		return nil, err
	}

	pages, err := api.PageCount(bytes.NewReader(data), model.NewDefaultConfiguration())
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("The rendering engine produced an unreadable document").
			WithReportableDetails(map[string]any{"template": tpl.ID()}).
			Mark(ierr.ErrSystem)
	}

	r.logger.Infow("template rendered",
		"template", tpl.ID(),
		"engine", tpl.Ext,
		"pages", pages,
		"duration_ms", time.Since(start).Milliseconds())

	return &Rendered{
		Data:      data,
		PageCount: pages,
		Template:  tpl.ID(),
		Engine:    tpl.Ext,
	}, nil
}
