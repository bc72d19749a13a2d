package compose

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	ierr "github.com/ledgerdesk/backoffice/internal/errors"
	"github.com/ledgerdesk/backoffice/internal/types"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	pdftypes "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// Stamp is the running header and footer content of one document
type Stamp struct {
	Number   string
	Revision int
	Date     time.Time
	Language types.Language
}

const (
	pageLabelEnglish = "Page %p of %P"
	pageLabelArabic  = "صفحة %p من %P"
	revisionEnglish  = "Rev. %d"
	revisionArabic   = "مراجعة %d"
)

type stampText struct {
	text string
	desc string
}

// pageLabel is resolved per page by pdfcpu once pagination is final
func pageLabel(lang types.Language) string {
	if lang.IsRTL() {
		return pageLabelArabic
	}
	return pageLabelEnglish
}

// texts lays out header and footer. Right to left documents mirror the
// layout and shape text right to left.
func (c *Composer) texts(s Stamp) []stampText {
	rtl := s.Language.IsRTL()
	start, end := "l", "r"
	startOff, endOff := "36", "-36"
	revision := revisionEnglish
	if rtl {
		start, end = end, start
		startOff, endOff = endOff, startOff
		revision = revisionArabic
	}

	header := strings.Join([]string{
		s.Number,
		fmt.Sprintf(revision, s.Revision),
		s.Date.Format(time.DateOnly),
	}, "   ")

	return []stampText{
		{text: header, desc: c.textDesc("t"+start, startOff+" -24", rtl)},
		{text: c.opts.BrandName, desc: c.textDesc("t"+end, endOff+" -24", rtl)},
		{text: c.opts.DocumentCode, desc: c.textDesc("b"+start, startOff+" 20", false)},
		{text: pageLabel(s.Language), desc: c.textDesc("b"+end, endOff+" 20", rtl)},
	}
}

func (c *Composer) textDesc(pos, off string, rtl bool) string {
	d := fmt.Sprintf("font:%s, points:%d, pos:%s, off:%s, scale:1 abs, rot:0, fillcolor:#222222, opacity:1",
		c.font, c.opts.FontSize, pos, off)
	if rtl {
		d += ", rtl:on"
	}
	return d
}

// overlay stamps header and footer onto every page of doc. Stamps of a
// previous run are removed first so applying it twice gives one set.
func (c *Composer) overlay(doc []byte, pages int, s Stamp) ([]byte, error) {
	conf := newConf()
	has, err := api.HasWatermarks(bytes.NewReader(doc), conf)
	if err != nil {
		return nil, overlayError(err)
	}
	if has {
		var clean bytes.Buffer
		if err := api.RemoveWatermarks(bytes.NewReader(doc), &clean, nil, newConf()); err != nil {
			return nil, overlayError(err)
		}
		doc = clean.Bytes()
	}

	var wms []*model.Watermark
	for _, t := range c.texts(s) {
		if t.text == "" {
			continue
		}
		wm, err := api.TextWatermark(t.text, t.desc, true, false, pdftypes.POINTS)
		if err != nil {
			return nil, overlayError(err)
		}
		wms = append(wms, wm)
	}
	if c.opts.BrandingImage != "" {
		wm, err := api.ImageWatermark(c.opts.BrandingImage, "pos:tc, off:0 -14, scale:0.06 rel, rot:0, opacity:1", true, false, pdftypes.POINTS)
		if err != nil {
			c.logger.Warnw("branding image skipped", "path", c.opts.BrandingImage, "error", err)
		} else {
			wms = append(wms, wm)
		}
	}

	m := make(map[int][]*model.Watermark, pages)
	for p := 1; p <= pages; p++ {
		m[p] = wms
	}

	var out bytes.Buffer
	if err := api.AddWatermarksSliceMap(bytes.NewReader(doc), &out, m, newConf()); err != nil {
		return nil, overlayError(err)
	}
	return out.Bytes(), nil
}

func overlayError(err error) error {
	return ierr.WithError(err).
		WithHint("Failed to stamp page header and footer").
		Mark(ierr.ErrSystem)
}
