package raster

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os/exec"
	"strconv"

	ierr "github.com/ledgerdesk/backoffice/internal/errors"
	"github.com/ledgerdesk/backoffice/internal/utils"
)

// Converter renders every page of a PDF into an image file under outDir.
// File names must carry the 1-based page index as the last number before
// the extension, page-7.png or page-007.png.
type Converter interface {
	Convert(ctx context.Context, pdfPath, outDir string) error
}

type pdftoppm struct {
	binary string
	dpi    int
}

// NewPdftoppm uses poppler's pdftoppm to produce PNG pages
func NewPdftoppm(binary string, dpi int) Converter {
	if binary == "" {
		binary = "pdftoppm"
	}
	if dpi <= 0 {
		dpi = 100
	}
	return &pdftoppm{binary: binary, dpi: dpi}
}

func (p *pdftoppm) Convert(ctx context.Context, pdfPath, outDir string) error {
	cmd := exec.CommandContext(ctx, p.binary,
		"-r", strconv.Itoa(p.dpi),
		"-png",
		pdfPath,
		outDir+"/page",
	)
	utils.IsolateProcessGroup(cmd)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ierr.WithError(ctx.Err()).
				WithMessage("page conversion aborted").
				WithHint("Converting the attachment took too long").
				Mark(ierr.ErrRenderTimeout)
		}
		if !started(cmd, err) {
			return ierr.WithError(err).
				WithMessagef("%s is not runnable", p.binary).
				WithHint("Attachment conversion is unavailable").
				Mark(ierr.ErrSystem)
		}
		return ierr.WithError(err).
			WithMessage("page conversion failed").
			WithHint("The attachment could not be converted").
			WithReportableDetails(map[string]any{
				"stderr": stderr.String(),
			}).
			Mark(ierr.ErrInvalidAttachment)
	}
	return nil
}

// started reports whether the converter process ran at all. A missing or
// non-executable binary is a deployment problem, not a bad attachment.
func started(cmd *exec.Cmd, err error) bool {
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		return false
	}
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
		return false
	}
	return cmd.ProcessState != nil
}
