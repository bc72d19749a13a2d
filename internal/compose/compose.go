// Package compose assembles the final document: the rendered base, page
// images of an attachment and the boilerplate appendix are merged into one
// PDF and stamped with the running header and footer.
package compose

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledgerdesk/backoffice/internal/cache"
	"github.com/ledgerdesk/backoffice/internal/config"
	ierr "github.com/ledgerdesk/backoffice/internal/errors"
	"github.com/ledgerdesk/backoffice/internal/logger"
	"github.com/ledgerdesk/backoffice/internal/raster"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	pdftypes "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

const imagePageLayout = "form:Letter, pos:c, scale:0.95 rel"

type Options struct {
	AppendixPath  string
	BrandingImage string
	BrandName     string
	DocumentCode  string
	// Font is a core font name or the path of a TrueType font to install
	Font     string
	FontSize int
}

// Input is everything one document is assembled from
type Input struct {
	Base            []byte
	Images          []raster.Image
	IncludeAppendix bool
	Stamp           Stamp
}

type Composer struct {
	opts   Options
	font   string
	cache  cache.Cache
	logger *logger.Logger
}

// NewComposer creates the composer configured for the application
func NewComposer(cfg *config.Configuration, log *logger.Logger, c cache.Cache) *Composer {
	return New(Options{
		AppendixPath:  cfg.Compose.AppendixPath,
		BrandingImage: cfg.Compose.BrandingImage,
		BrandName:     cfg.Compose.BrandName,
		DocumentCode:  cfg.Compose.DocumentCode,
		Font:          cfg.Compose.Font,
		FontSize:      cfg.Compose.FontSize,
	}, log, c)
}

func New(opts Options, log *logger.Logger, c cache.Cache) *Composer {
	if opts.FontSize <= 0 {
		opts.FontSize = 9
	}
	return &Composer{
		opts:   opts,
		font:   installFont(opts.Font, log),
		cache:  c,
		logger: log,
	}
}

// installFont makes a TrueType font available to pdfcpu and returns the
// font name to stamp with. Core font names are used as they are.
func installFont(font string, log *logger.Logger) string {
	ext := strings.ToLower(filepath.Ext(font))
	if ext != ".ttf" && ext != ".otf" {
		if font == "" {
			return "Helvetica"
		}
		return font
	}
	if err := api.InstallFonts([]string{font}); err != nil {
		log.Warnw("failed to install stamp font, using Helvetica", "font", font, "error", err)
		return "Helvetica"
	}
	return strings.TrimSuffix(filepath.Base(font), filepath.Ext(font))
}

// Compose merges base, images and optionally the appendix, then stamps
// every page. When any part cannot be merged the base is stamped alone and
// the result is degraded. Only a base that cannot be read or stamped fails.
func (c *Composer) Compose(ctx context.Context, in Input) Result {
	if err := ctx.Err(); err != nil {
		return fail(ierr.WithError(err).
			WithHint("Document assembly was cancelled").
			Mark(ierr.ErrRenderTimeout))
	}

	basePages, err := pageCount(in.Base)
	if err != nil {
		return fail(ierr.WithError(err).
			WithHint("Rendered document is not a valid PDF").
			Mark(ierr.ErrSystem))
	}

	parts := []io.ReadSeeker{bytes.NewReader(in.Base)}
	var problems []string

	if len(in.Images) > 0 {
		pages, err := c.imagePages(in.Images)
		if err != nil {
			problems = append(problems, "attachment: "+err.Error())
		} else {
			parts = append(parts, bytes.NewReader(pages))
		}
	}

	if in.IncludeAppendix {
		appendix, err := c.appendix(ctx)
		if err != nil {
			problems = append(problems, "appendix: "+err.Error())
		} else {
			parts = append(parts, bytes.NewReader(appendix))
		}
	}

	// A part that cannot be read leaves the base on its own rather than a
	// document with pages missing from the middle.
	doc, pages := in.Base, basePages
	merged := false
	if len(parts) > 1 && len(problems) == 0 {
		var out bytes.Buffer
		if err := api.MergeRaw(parts, &out, false, newConf()); err != nil {
			problems = append(problems, "merge: "+err.Error())
		} else if n, err := pageCount(out.Bytes()); err != nil {
			problems = append(problems, "merge: "+err.Error())
		} else {
			doc, pages, merged = out.Bytes(), n, true
		}
	}

	stamped, err := c.overlay(doc, pages, in.Stamp)
	if err != nil && merged {
		problems = append(problems, "overlay: "+err.Error())
		doc, pages, merged = in.Base, basePages, false
		stamped, err = c.overlay(doc, pages, in.Stamp)
	}
	if err != nil {
		return fail(err)
	}

	if len(problems) > 0 {
		reason := strings.Join(problems, "; ")
		c.logger.Warnw("document assembled without some parts",
			"number", in.Stamp.Number,
			"pages", pages,
			"reason", reason)
		return degraded(stamped, pages, merged, reason)
	}
	c.logger.Debugw("document assembled",
		"number", in.Stamp.Number,
		"pages", pages,
		"merged", merged)
	return ok(stamped, pages, merged)
}

// imagePages turns each image into one Letter page
func (c *Composer) imagePages(images []raster.Image) ([]byte, error) {
	imp, err := api.Import(imagePageLayout, pdftypes.POINTS)
	if err != nil {
		c.logger.Warnw("invalid image page layout, using defaults", "layout", imagePageLayout, "error", err)
		imp = pdfcpu.DefaultImportConfig()
	}
	readers := make([]io.Reader, len(images))
	for i, img := range images {
		readers[i] = bytes.NewReader(img.Data)
	}
	var out bytes.Buffer
	if err := api.ImportImages(nil, &out, readers, imp, newConf()); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// appendix returns the boilerplate document, read once and then served
// from the cache
func (c *Composer) appendix(ctx context.Context) ([]byte, error) {
	if c.opts.AppendixPath == "" {
		return nil, ierr.NewError("no appendix configured").
			WithHint("Appendix is not available").
			Mark(ierr.ErrInvalidOperation)
	}
	key := cache.GenerateKey(cache.PrefixAppendix, c.opts.AppendixPath)
	if v, ok := c.cache.Get(ctx, key); ok {
		if data, ok := v.([]byte); ok {
			return data, nil
		}
	}

	data, err := os.ReadFile(c.opts.AppendixPath)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Appendix is not available").
			Mark(ierr.ErrNotFound)
	}
	conf := newConf()
	if err := api.Validate(bytes.NewReader(data), conf); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Appendix is not a valid PDF").
			Mark(ierr.ErrInvalidAttachment)
	}
	c.cache.Set(ctx, key, data, 0)
	return data, nil
}

// newConf returns a fresh configuration per pdfcpu call since pdfcpu
// records the running command on it
func newConf() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

func pageCount(doc []byte) (int, error) {
	if len(doc) == 0 {
		return 0, ierr.NewError("empty document").Mark(ierr.ErrSystem)
	}
	n, err := api.PageCount(bytes.NewReader(doc), newConf())
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ierr.NewError("document has no pages").Mark(ierr.ErrSystem)
	}
	return n, nil
}
