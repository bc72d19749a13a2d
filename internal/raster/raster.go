// Package raster turns attachment documents into page images sized for
// embedding into generated documents.
package raster

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/matchers"
	"github.com/ledgerdesk/backoffice/internal/config"
	ierr "github.com/ledgerdesk/backoffice/internal/errors"
	"github.com/ledgerdesk/backoffice/internal/logger"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/image/draw"
)

var pageIndex = regexp.MustCompile(`(\d+)\.(?:png|ppm|jpe?g)$`)

// Image is one rasterized page encoded as JPEG
type Image struct {
	Page   int
	Width  int
	Height int
	Data   []byte
}

type Options struct {
	MaxWidth  int
	MaxHeight int
	Quality   int
	Timeout   time.Duration
	Workers   int
}

type Rasterizer struct {
	converter Converter
	opts      Options
	logger    *logger.Logger
}

// NewRasterizer creates the pdftoppm backed rasterizer configured for the application
func NewRasterizer(cfg *config.Configuration, log *logger.Logger) *Rasterizer {
	return New(NewPdftoppm(cfg.Raster.Binary, cfg.Raster.DPI), Options{
		MaxWidth:  cfg.Raster.MaxWidth,
		MaxHeight: cfg.Raster.MaxHeight,
		Quality:   cfg.Raster.Quality,
		Timeout:   cfg.Raster.Timeout,
		Workers:   cfg.Raster.Workers,
	}, log)
}

func New(converter Converter, opts Options, log *logger.Logger) *Rasterizer {
	if opts.MaxWidth <= 0 || opts.MaxHeight <= 0 {
		opts.MaxWidth, opts.MaxHeight = 850, 1100
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = 85
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	return &Rasterizer{converter: converter, opts: opts, logger: log}
}

// Rasterize converts a PDF into one image per page in page order. A PNG
// or JPEG attachment yields a single page. Any page failure fails the
// whole call and the scratch directory is removed on every path.
func (r *Rasterizer) Rasterize(ctx context.Context, document []byte) ([]Image, error) {
	kind, err := filetype.Match(document)
	if err != nil || kind == filetype.Unknown {
		return nil, invalidAttachment(err, "unrecognized attachment format")
	}

	switch kind {
	case matchers.TypePng, matchers.TypeJpeg:
		img, _, err := image.Decode(bytes.NewReader(document))
		if err != nil {
			return nil, invalidAttachment(err, "attachment image is corrupt")
		}
		page, err := r.encode(1, img)
		if err != nil {
			return nil, err
		}
		return []Image{page}, nil
	case matchers.TypePdf:
		return r.rasterizePDF(ctx, document)
	default:
		return nil, invalidAttachment(nil, "attachments must be PDF, PNG or JPEG, got "+kind.MIME.Value)
	}
}

func (r *Rasterizer) rasterizePDF(ctx context.Context, document []byte) ([]Image, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if err := api.Validate(bytes.NewReader(document), conf); err != nil {
		return nil, invalidAttachment(err, "attachment is not a readable PDF")
	}
	pages, err := api.PageCount(bytes.NewReader(document), conf)
	if err != nil || pages == 0 {
		return nil, invalidAttachment(err, "attachment has no pages")
	}

	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}

	work, err := os.MkdirTemp("", "raster-*")
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("failed to prepare attachment conversion").
			Mark(ierr.ErrSystem)
	}
	defer os.RemoveAll(work)

	input := filepath.Join(work, "input.pdf")
	if err := os.WriteFile(input, document, 0o600); err != nil {
		return nil, ierr.WithError(err).
			WithHint("failed to prepare attachment conversion").
			Mark(ierr.ErrSystem)
	}
	outDir := filepath.Join(work, "pages")
	if err := os.Mkdir(outDir, 0o700); err != nil {
		return nil, ierr.WithError(err).
			WithHint("failed to prepare attachment conversion").
			Mark(ierr.ErrSystem)
	}

	start := time.Now()
	if err := r.converter.Convert(ctx, input, outDir); err != nil {
		if ctx.Err() != nil && !ierr.IsRenderTimeout(err) {
			err = ierr.WithError(err).
				WithHint("Converting the attachment took too long").
				Mark(ierr.ErrRenderTimeout)
		}
		return nil, err
	}

	files, err := orderedPages(outDir)
	if err != nil {
		return nil, err
	}
	if len(files) != pages {
		return nil, ierr.NewErrorf("converter produced %d pages, document has %d", len(files), pages).
			WithHint("The attachment could not be converted").
			Mark(ierr.ErrSystem)
	}

	images := make([]Image, len(files))
	p := pool.New().
		WithContext(ctx).
		WithMaxGoroutines(r.opts.Workers).
		WithCancelOnError().
		WithFirstError()
	for i, f := range files {
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			img, err := decodeFile(f.path)
			if err != nil {
				return err
			}
			page, err := r.encode(f.index, img)
			if err != nil {
				return err
			}
			images[i] = page
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		if ctx.Err() != nil && !ierr.IsRenderTimeout(err) {
			err = ierr.WithError(err).
				WithHint("Converting the attachment took too long").
				Mark(ierr.ErrRenderTimeout)
		}
		return nil, err
	}

	r.logger.Infow("attachment rasterized",
		"pages", len(images),
		"duration_ms", time.Since(start).Milliseconds())
	return images, nil
}

type pageFile struct {
	index int
	path  string
}

// orderedPages lists converter output sorted by the page index in the file
// name. Directory order is not page order.
func orderedPages(dir string) ([]pageFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("failed to read converted pages").
			Mark(ierr.ErrSystem)
	}
	files := make([]pageFile, 0, len(entries))
	seen := make(map[int]bool, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := pageIndex.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		idx, err := strconv.Atoi(m[1])
		if err != nil || seen[idx] {
			return nil, ierr.NewErrorf("ambiguous page file %s", e.Name()).
				WithHint("The attachment could not be converted").
				Mark(ierr.ErrSystem)
		}
		seen[idx] = true
		files = append(files, pageFile{index: idx, path: filepath.Join(dir, e.Name())})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].index < files[j].index })
	return files, nil
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("failed to read converted page").
			Mark(ierr.ErrSystem)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHintf("converted page %s is corrupt", filepath.Base(path)).
			Mark(ierr.ErrSystem)
	}
	return img, nil
}

func (r *Rasterizer) encode(page int, img image.Image) (Image, error) {
	scaled := Fit(img, r.opts.MaxWidth, r.opts.MaxHeight)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, scaled, &jpeg.Options{Quality: r.opts.Quality}); err != nil {
		return Image{}, ierr.WithError(err).
			WithHint("failed to encode page image").
			Mark(ierr.ErrSystem)
	}
	b := scaled.Bounds()
	return Image{Page: page, Width: b.Dx(), Height: b.Dy(), Data: buf.Bytes()}, nil
}

// Fit scales img down to fit within maxW x maxH preserving its aspect
// ratio. Images that already fit are returned unchanged.
func Fit(img image.Image, maxW, maxH int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxW && h <= maxH {
		return img
	}
	scale := min(float64(maxW)/float64(w), float64(maxH)/float64(h))
	nw := max(1, int(float64(w)*scale+0.5))
	nh := max(1, int(float64(h)*scale+0.5))
	nw, nh = min(nw, maxW), min(nh, maxH)

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

func invalidAttachment(err error, hint string) error {
	if err == nil {
		return ierr.NewError(hint).
			WithHint(hint).
			Mark(ierr.ErrInvalidAttachment)
	}
	return ierr.WithError(err).
		WithHint(hint).
		Mark(ierr.ErrInvalidAttachment)
}
