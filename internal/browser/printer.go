// Package browser prints HTML documents to PDF with headless Chromium.
package browser

import (
	"context"
	"errors"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ledgerdesk/backoffice/internal/config"
	ierr "github.com/ledgerdesk/backoffice/internal/errors"
	"github.com/ledgerdesk/backoffice/internal/logger"
)

const (
	// requestIdleWindow is how long the network must stay quiet
	requestIdleWindow = 500 * time.Millisecond
)

// Printer renders a complete HTML document into a PDF
type Printer interface {
	PrintHTML(ctx context.Context, html []byte) ([]byte, error)
}

type Options struct {
	// Bin is an explicit browser binary, empty resolves or downloads one
	Bin         string
	LoadTimeout time.Duration
	IdleTimeout time.Duration
	// Paper size in inches
	PaperWidth  float64
	PaperHeight float64
	NoSandbox   bool
}

type chromium struct {
	opts   Options
	logger *logger.Logger
}

// NewPrinter creates the Chromium printer configured for the application
func NewPrinter(cfg *config.Configuration, log *logger.Logger) Printer {
	return New(Options{
		Bin:         cfg.Browser.Bin,
		LoadTimeout: cfg.Browser.LoadTimeout,
		IdleTimeout: cfg.Browser.IdleTimeout,
		PaperWidth:  cfg.Browser.PaperWidth,
		PaperHeight: cfg.Browser.PaperHeight,
		NoSandbox:   cfg.Browser.NoSandbox,
	}, log)
}

func New(opts Options, log *logger.Logger) Printer {
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = 60 * time.Second
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 15 * time.Second
	}
	if opts.PaperWidth <= 0 || opts.PaperHeight <= 0 {
		opts.PaperWidth, opts.PaperHeight = 8.5, 11
	}
	return &chromium{opts: opts, logger: log}
}

// PrintHTML launches a dedicated browser, loads html from a scoped temp
// file and prints it. The browser process and its profile directory are
// torn down before returning on every path.
func (c *chromium) PrintHTML(ctx context.Context, html []byte) ([]byte, error) {
	work, err := os.MkdirTemp("", "render-html-*")
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("failed to prepare document").
			Mark(ierr.ErrSystem)
	}
	defer os.RemoveAll(work)

	page := filepath.Join(work, "document.html")
	if err := os.WriteFile(page, html, 0o600); err != nil {
		return nil, ierr.WithError(err).
			WithHint("failed to prepare document").
			Mark(ierr.ErrSystem)
	}

	l := launcher.New().
		Context(ctx).
		Headless(true).
		Leakless(true).
		UserDataDir(filepath.Join(work, "profile")).
		NoSandbox(c.opts.NoSandbox)
	if c.opts.Bin != "" {
		l = l.Bin(c.opts.Bin)
	}
	defer l.Cleanup()
	defer l.Kill()

	controlURL, err := l.Launch()
	if err != nil {
		return nil, c.wrap(ctx, err, "failed to launch browser")
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		return nil, c.wrap(ctx, err, "failed to connect to browser")
	}
	defer b.Close()

	return c.print(ctx, b, (&url.URL{Scheme: "file", Path: page}).String())
}

func (c *chromium) print(ctx context.Context, b *rod.Browser, target string) ([]byte, error) {
	p, err := b.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, c.wrap(ctx, err, "failed to open page")
	}
	defer p.Close()

	if err := p.Timeout(c.opts.LoadTimeout).Navigate(target); err != nil {
		return nil, c.wrap(ctx, err, "failed to load document")
	}
	if err := p.Timeout(c.opts.LoadTimeout).WaitLoad(); err != nil {
		return nil, c.wrap(ctx, err, "document did not finish loading")
	}

	// Fonts and images referenced by the layout may still be in flight.
	idle := p.Timeout(c.opts.IdleTimeout)
	waitIdle := idle.WaitRequestIdle(requestIdleWindow, nil, nil, nil)
	waitIdle()

	w, h := c.opts.PaperWidth, c.opts.PaperHeight
	margin := 0.4
	stream, err := p.PDF(&proto.PagePrintToPDF{
		PaperWidth:        &w,
		PaperHeight:       &h,
		MarginTop:         &margin,
		MarginBottom:      &margin,
		MarginLeft:        &margin,
		MarginRight:       &margin,
		PrintBackground:   true,
		PreferCSSPageSize: false,
	})
	if err != nil {
		return nil, c.wrap(ctx, err, "failed to print document")
	}
	data, err := io.ReadAll(stream)
	if err != nil {
		return nil, c.wrap(ctx, err, "failed to read printed document")
	}

	c.logger.Debugw("html document printed", "bytes", len(data))
	return data, nil
}

func (c *chromium) wrap(ctx context.Context, err error, hint string) error {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return ierr.WithError(err).
			WithMessage(hint).
			WithHint("Rendering the document took too long").
			WithReportableDetails(map[string]any{
				"engine": "chromium",
			}).
			Mark(ierr.ErrRenderTimeout)
	}
	return ierr.WithError(err).
		WithHint(hint).
		Mark(ierr.ErrSystem)
}
