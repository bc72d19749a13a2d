package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/stretchr/testify/require"
)

// PNG returns a solid w x h image encoded as PNG
func PNG(w, h int, c color.Color) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// BuildPDF returns a valid PDF with the given number of Letter pages
func BuildPDF(pages int) ([]byte, error) {
	imgs := make([]io.Reader, 0, pages)
	for i := 0; i < pages; i++ {
		shade := uint8(40 + (i*37)%200)
		imgs = append(imgs, bytes.NewReader(PNG(17, 22, color.RGBA{R: shade, G: 90, B: 160, A: 255})))
	}

	imp := pdfcpu.DefaultImportConfig()
	conf := model.NewDefaultConfiguration()
	var out bytes.Buffer
	if err := api.ImportImages(nil, &out, imgs, imp, conf); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// PDF is BuildPDF failing the test on error
func PDF(t testing.TB, pages int) []byte {
	t.Helper()
	data, err := BuildPDF(pages)
	require.NoError(t, err)
	return data
}

// PageCount reads the page count of a PDF
func PageCount(t testing.TB, data []byte) int {
	t.Helper()
	n, err := api.PageCount(bytes.NewReader(data), model.NewDefaultConfiguration())
	require.NoError(t, err)
	return n
}

// JPEG returns a solid w x h image encoded as JPEG
func JPEG(w, h int, c color.Color) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
