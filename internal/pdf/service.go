package pdf

import (
	"context"
	"time"

	"github.com/ledgerdesk/backoffice/internal/artifact"
	"github.com/ledgerdesk/backoffice/internal/compose"
	"github.com/ledgerdesk/backoffice/internal/domain/record"
	ierr "github.com/ledgerdesk/backoffice/internal/errors"
	"github.com/ledgerdesk/backoffice/internal/logger"
	"github.com/ledgerdesk/backoffice/internal/raster"
	"github.com/ledgerdesk/backoffice/internal/render"
	"github.com/ledgerdesk/backoffice/internal/types"
)

// Generator produces the artifact of a record: render, rasterize the
// attachment, compose and store.
type Generator interface {
	CreateArtifact(ctx context.Context, req *Request) (*Result, error)
	// DiscardArtifact removes a superseded or orphaned artifact
	DiscardArtifact(ctx context.Context, name string) error
}

type Renderer interface {
	Render(ctx context.Context, templateName string, binding render.Binding) (*render.Rendered, error)
}

type Rasterizer interface {
	Rasterize(ctx context.Context, document []byte) ([]raster.Image, error)
}

type Composer interface {
	Compose(ctx context.Context, in compose.Input) compose.Result
}

type ArtifactStore interface {
	Save(ctx context.Context, name string, data []byte) (*artifact.Info, error)
	Delete(ctx context.Context, name string) error
}

// Request asks for the artifact of one record
type Request struct {
	Record          *record.Record
	Template        string
	Binding         render.Binding
	Attachment      []byte
	IncludeAppendix bool
}

// Result describes a stored artifact. A failed generation is an error,
// never a Result.
type Result struct {
	ArtifactName string
	ArtifactPath string
	PageCount    int
	Merged       bool
	MergeError   string
	Outcome      types.ArtifactOutcome
	Template     string
}

type service struct {
	renderer   Renderer
	rasterizer Rasterizer
	composer   Composer
	artifacts  ArtifactStore
	logger     *logger.Logger
	now        func() time.Time
}

// NewGenerator creates the document pipeline
func NewGenerator(renderer *render.Renderer, rasterizer *raster.Rasterizer, composer *compose.Composer, artifacts *artifact.Store, log *logger.Logger) Generator {
	return newService(renderer, rasterizer, composer, artifacts, log)
}

func newService(renderer Renderer, rasterizer Rasterizer, composer Composer, artifacts ArtifactStore, log *logger.Logger) *service {
	return &service{
		renderer:   renderer,
		rasterizer: rasterizer,
		composer:   composer,
		artifacts:  artifacts,
		logger:     log,
		now:        time.Now,
	}
}

func (s *service) CreateArtifact(ctx context.Context, req *Request) (*Result, error) {
	if req == nil || req.Record == nil {
		return nil, ierr.NewError("record is required").
			WithHint("Document record is required").
			Mark(ierr.ErrValidation)
	}
	rec := req.Record

	rendered, err := s.renderer.Render(ctx, req.Template, req.Binding)
	if err != nil {
		return nil, err
	}

	var images []raster.Image
	var attachmentErr error
	if len(req.Attachment) > 0 {
		images, attachmentErr = s.rasterizer.Rasterize(ctx, req.Attachment)
		if attachmentErr != nil {
			if ctx.Err() != nil {
				return nil, attachmentErr
			}
			s.logger.Warnw("attachment rejected, keeping base document only",
				"number", rec.Number,
				"error", attachmentErr)
			images = nil
		}
	}
	includeAppendix := req.IncludeAppendix && attachmentErr == nil

	at := s.now()
	res := s.composer.Compose(ctx, compose.Input{
		Base:            rendered.Data,
		Images:          images,
		IncludeAppendix: includeAppendix,
		Stamp: compose.Stamp{
			Number:   rec.Number,
			Revision: rec.Revision,
			Date:     at,
			Language: rec.Language,
		},
	})
	if attachmentErr != nil {
		res = res.Degrade("attachment: " + attachmentErr.Error())
	}
	if res.Status == compose.StatusFail {
		return nil, res.Err
	}

	name := artifact.Name(rec.Number, rec.Label, rec.Kind, rec.Revision, at)
	info, err := s.artifacts.Save(ctx, name, res.Data)
	if err != nil {
		return nil, err
	}

	outcome := types.ArtifactOutcomeSucceeded
	if res.Status == compose.StatusDegraded {
		outcome = types.ArtifactOutcomeDegraded
	}

	s.logger.Infow("artifact created",
		"number", rec.Number,
		"artifact", name,
		"template", rendered.Template,
		"engine", rendered.Engine,
		"pages", res.PageCount,
		"merged", res.Merged,
		"outcome", outcome)

	return &Result{
		ArtifactName: name,
		ArtifactPath: info.Path,
		PageCount:    res.PageCount,
		Merged:       res.Merged,
		MergeError:   res.MergeError,
		Outcome:      outcome,
		Template:     rendered.Template,
	}, nil
}

func (s *service) DiscardArtifact(ctx context.Context, name string) error {
	if name == "" {
		return nil
	}
	return s.artifacts.Delete(ctx, name)
}
