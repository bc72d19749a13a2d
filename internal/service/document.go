package service

import (
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ledgerdesk/backoffice/internal/api/dto"
	"github.com/ledgerdesk/backoffice/internal/domain/document"
	"github.com/ledgerdesk/backoffice/internal/domain/record"
	ierr "github.com/ledgerdesk/backoffice/internal/errors"
	"github.com/ledgerdesk/backoffice/internal/pdf"
	"github.com/ledgerdesk/backoffice/internal/render"
	"github.com/ledgerdesk/backoffice/internal/store"
	"github.com/ledgerdesk/backoffice/internal/types"
	"github.com/ledgerdesk/backoffice/internal/validator"
	"github.com/samber/lo"
)

// DocumentService manages the records and artifacts of one document kind
type DocumentService interface {
	Kind() types.DocumentKind
	CreateDocument(ctx context.Context, req dto.CreateDocumentRequest) (*dto.DocumentResponse, error)
	GetDocument(ctx context.Context, id string) (*dto.DocumentResponse, error)
	ListDocuments(ctx context.Context, filter *types.DocumentFilter) (*dto.ListDocumentsResponse, error)
	UpdateDocument(ctx context.Context, id string, req dto.UpdateDocumentRequest) (*dto.DocumentResponse, error)
	DeleteDocument(ctx context.Context, id string) error
	RegenerateArtifact(ctx context.Context, id string, req dto.GenerateArtifactRequest) (*dto.DocumentResponse, error)
	OpenArtifact(ctx context.Context, id string) (*ArtifactDownload, error)
	ArtifactURL(ctx context.Context, id string) (string, error)
}

// ArtifactDownload streams a stored artifact. Callers close Content.
type ArtifactDownload struct {
	Name    string
	Size    int64
	ModTime time.Time
	Content io.ReadCloser
}

type documentService struct {
	ServiceParams
	spec document.Spec
	now  func() time.Time
	// mu orders artifact generation per record so two regenerations of the
	// same document never race for the same revision
	mu sync.Map
}

func NewDocumentService(params ServiceParams, kind types.DocumentKind) (DocumentService, error) {
	spec, err := document.SpecFor(kind)
	if err != nil {
		return nil, err
	}
	return &documentService{
		ServiceParams: params,
		spec:          spec,
		now:           func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *documentService) Kind() types.DocumentKind {
	return s.spec.Kind
}

func (s *documentService) CreateDocument(ctx context.Context, req dto.CreateDocumentRequest) (*dto.DocumentResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	schema, err := s.decode(req.Fields)
	if err != nil {
		return nil, err
	}
	fields, err := document.ToFields(schema)
	if err != nil {
		return nil, err
	}
	template, err := s.template(req.Template)
	if err != nil {
		return nil, err
	}

	now := s.now()
	label := lo.Ternary(strings.TrimSpace(req.Label) != "", strings.TrimSpace(req.Label), schema.Label())
	width := s.Config.Storage.NumberWidth

	rec, err := s.Store.Insert(ctx, s.spec.Collection, s.spec.Prefix, func(sequence int) (*record.Record, error) {
		return &record.Record{
			ID:              types.GenerateUUIDWithPrefix(s.spec.IDPrefix),
			Kind:            s.spec.Kind,
			Number:          store.FormatNumber(s.spec.Prefix, sequence, width),
			Language:        req.Language,
			Label:           label,
			IncludeAppendix: req.IncludeAppendix,
			CreatedBy:       actor(ctx),
			CreatedAt:       now,
			UpdatedAt:       now,
			Fields:          fields,
		}, nil
	})
	if err != nil {
		return nil, err
	}

	result, err := s.Generator.CreateArtifact(ctx, &pdf.Request{
		Record:          rec,
		Template:        template,
		Binding:         s.binding(rec, schema),
		Attachment:      req.Attachment,
		IncludeAppendix: req.IncludeAppendix,
	})
	if err != nil {
		s.rollback(ctx, rec, err)
		return nil, err
	}

	rec.Artifact = artifactOf(result, now)
	err = s.Store.Update(ctx, s.spec.Collection, func(records []*record.Record) ([]*record.Record, error) {
		i := record.Find(records, rec.ID)
		if i < 0 {
			return nil, s.notFound(rec.ID)
		}
		records[i].Artifact = rec.Artifact
		return records, nil
	})
	if err != nil {
		s.discard(ctx, result.ArtifactName)
		s.rollback(ctx, rec, err)
		return nil, err
	}

	s.Logger.Infow("document created",
		"kind", s.spec.Kind,
		"id", rec.ID,
		"number", rec.Number,
		"artifact", rec.Artifact.Name,
		"outcome", rec.Artifact.Outcome)
	return dto.NewDocumentResponse(rec), nil
}

func (s *documentService) GetDocument(ctx context.Context, id string) (*dto.DocumentResponse, error) {
	rec, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	return dto.NewDocumentResponse(rec), nil
}

func (s *documentService) ListDocuments(ctx context.Context, filter *types.DocumentFilter) (*dto.ListDocumentsResponse, error) {
	if filter == nil {
		filter = &types.DocumentFilter{}
	}
	if err := validator.ValidateRequest(filter); err != nil {
		return nil, err
	}

	records, err := s.Store.Load(ctx, s.spec.Collection)
	if err != nil {
		return nil, err
	}
	if filter.CreatedBy != "" {
		records = lo.Filter(records, func(r *record.Record, _ int) bool {
			return r.CreatedBy == filter.CreatedBy
		})
	}
	// Newest first; the sequence breaks ties of records created in the same instant.
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.After(records[j].CreatedAt)
		}
		return records[i].Sequence > records[j].Sequence
	})

	total := len(records)
	limit, offset := filter.GetLimit(), filter.GetOffset()
	page := lo.Slice(records, offset, offset+limit)

	items := lo.Map(page, func(r *record.Record, _ int) *dto.DocumentResponse {
		return dto.NewDocumentResponse(r)
	})
	resp := types.NewListResponse(items, total, limit, offset)
	return &resp, nil
}

func (s *documentService) UpdateDocument(ctx context.Context, id string, req dto.UpdateDocumentRequest) (*dto.DocumentResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	template, err := s.template(req.Template)
	if err != nil {
		return nil, err
	}

	unlock := s.lock(id)
	defer unlock()

	current, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	var schema document.Schema
	if req.Fields != nil {
		schema, err = s.decode(req.Fields)
	} else {
		schema, err = s.stored(current)
	}
	if err != nil {
		return nil, err
	}
	fields, err := document.ToFields(schema)
	if err != nil {
		return nil, err
	}

	next := current.Clone()
	next.Fields = fields
	if req.Language != "" {
		next.Language = req.Language
	}
	if req.Label != nil {
		next.Label = lo.Ternary(strings.TrimSpace(*req.Label) != "", strings.TrimSpace(*req.Label), schema.Label())
	}
	if req.IncludeAppendix != nil {
		next.IncludeAppendix = *req.IncludeAppendix
	}

	updated, err := s.supersede(ctx, current, next, schema, template, nil)
	if err != nil {
		return nil, err
	}
	return dto.NewDocumentResponse(updated), nil
}

func (s *documentService) RegenerateArtifact(ctx context.Context, id string, req dto.GenerateArtifactRequest) (*dto.DocumentResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	template, err := s.template(req.Template)
	if err != nil {
		return nil, err
	}

	unlock := s.lock(id)
	defer unlock()

	current, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	schema, err := s.stored(current)
	if err != nil {
		return nil, err
	}

	next := current.Clone()
	if req.IncludeAppendix != nil {
		next.IncludeAppendix = *req.IncludeAppendix
	}

	updated, err := s.supersede(ctx, current, next, schema, template, req.Attachment)
	if err != nil {
		return nil, err
	}
	return dto.NewDocumentResponse(updated), nil
}

// supersede generates the artifact of the next revision of current, points
// the stored record at it and only then deletes the previous artifact. A
// failed generation leaves the record untouched.
func (s *documentService) supersede(
	ctx context.Context,
	current, next *record.Record,
	schema document.Schema,
	template string,
	attachment []byte,
) (*record.Record, error) {
	now := s.now()
	next.Revision = current.Revision + 1
	next.UpdatedAt = now

	result, err := s.Generator.CreateArtifact(ctx, &pdf.Request{
		Record:          next,
		Template:        template,
		Binding:         s.binding(next, schema),
		Attachment:      attachment,
		IncludeAppendix: next.IncludeAppendix,
	})
	if err != nil {
		return nil, err
	}
	next.Artifact = artifactOf(result, now)

	err = s.Store.Update(ctx, s.spec.Collection, func(records []*record.Record) ([]*record.Record, error) {
		i := record.Find(records, current.ID)
		if i < 0 {
			return nil, s.notFound(current.ID)
		}
		if records[i].Revision != current.Revision {
			return nil, ierr.NewErrorf("document %s changed from revision %d to %d", current.ID, current.Revision, records[i].Revision).
				WithHint("The document was changed by another request, please retry").
				Mark(ierr.ErrInvalidOperation)
		}
		records[i] = next
		return records, nil
	})
	if err != nil {
		s.discard(ctx, result.ArtifactName)
		return nil, err
	}

	if current.Artifact != nil && current.Artifact.Name != next.Artifact.Name {
		s.discard(ctx, current.Artifact.Name)
	}

	s.Logger.Infow("document artifact superseded",
		"kind", s.spec.Kind,
		"id", next.ID,
		"number", next.Number,
		"revision", next.Revision,
		"artifact", next.Artifact.Name,
		"outcome", next.Artifact.Outcome)
	return next, nil
}

func (s *documentService) DeleteDocument(ctx context.Context, id string) error {
	unlock := s.lock(id)
	defer unlock()

	var removed *record.Record
	err := s.Store.Update(ctx, s.spec.Collection, func(records []*record.Record) ([]*record.Record, error) {
		i := record.Find(records, id)
		if i < 0 {
			return nil, s.notFound(id)
		}
		removed = records[i]
		return append(records[:i], records[i+1:]...), nil
	})
	if err != nil {
		return err
	}

	// callers queued on this id find the record gone once they get the lock
	s.mu.Delete(id)

	if removed.Artifact != nil {
		s.discard(ctx, removed.Artifact.Name)
	}
	s.Logger.Infow("document deleted",
		"kind", s.spec.Kind,
		"id", id,
		"number", removed.Number)
	return nil
}

func (s *documentService) OpenArtifact(ctx context.Context, id string) (*ArtifactDownload, error) {
	rec, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Artifact == nil {
		return nil, ierr.NewErrorf("document %s has no artifact", id).
			WithHint("Document has no generated file").
			Mark(ierr.ErrNotFound)
	}
	f, info, err := s.Artifacts.Open(rec.Artifact.Name)
	if err != nil {
		return nil, err
	}
	return &ArtifactDownload{
		Name:    info.Name,
		Size:    info.Size,
		ModTime: info.ModTime,
		Content: f,
	}, nil
}

// ArtifactURL returns a presigned download link of the mirrored artifact
func (s *documentService) ArtifactURL(ctx context.Context, id string) (string, error) {
	rec, err := s.get(ctx, id)
	if err != nil {
		return "", err
	}
	if rec.Artifact == nil {
		return "", ierr.NewErrorf("document %s has no artifact", id).
			WithHint("Document has no generated file").
			Mark(ierr.ErrNotFound)
	}
	url, ok, err := s.Artifacts.DownloadURL(ctx, rec.Artifact.Name)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ierr.NewError("artifact mirror is not configured").
			WithHint("Download links are not available, download the file directly").
			Mark(ierr.ErrInvalidOperation)
	}
	return url, nil
}

func (s *documentService) get(ctx context.Context, id string) (*record.Record, error) {
	records, err := s.Store.Load(ctx, s.spec.Collection)
	if err != nil {
		return nil, err
	}
	i := record.Find(records, id)
	if i < 0 {
		return nil, s.notFound(id)
	}
	return records[i], nil
}

func (s *documentService) decode(fields []byte) (document.Schema, error) {
	schema, err := document.Decode(s.spec.Kind, fields)
	if err != nil {
		return nil, err
	}
	if err := validator.ValidateRequest(schema); err != nil {
		return nil, err
	}
	return schema, nil
}

func (s *documentService) stored(rec *record.Record) (document.Schema, error) {
	schema, err := document.FromFields(s.spec.Kind, rec.Fields)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHintf("Stored document %s is unreadable", rec.Number).
			Mark(ierr.ErrSystem)
	}
	return schema, nil
}

// template resolves an optional layout override. Only versions of the
// kind's own layout may be selected.
func (s *documentService) template(override string) (string, error) {
	if override == "" {
		return s.spec.Template, nil
	}
	if name, _, _ := strings.Cut(override, "@"); name != s.spec.Template {
		return "", ierr.NewErrorf("template %s does not belong to %s", override, s.spec.Kind).
			WithHintf("Template must be %s or a version of it", s.spec.Template).
			Mark(ierr.ErrValidation)
	}
	return override, nil
}

// binding is the payload bindings plus the system fields every layout
// may print
func (s *documentService) binding(rec *record.Record, schema document.Schema) render.Binding {
	b := render.Binding(schema.Bindings())
	b["document"] = map[string]any{
		"id":         rec.ID,
		"kind":       rec.Kind.String(),
		"number":     rec.Number,
		"revision":   rec.Revision,
		"label":      rec.Label,
		"language":   string(rec.Language),
		"dir":        lo.Ternary(rec.Language.IsRTL(), "rtl", "ltr"),
		"date":       types.FormatDate(rec.CreatedAt),
		"updated":    types.FormatDate(rec.UpdatedAt),
		"created_by": rec.CreatedBy,
	}
	return b
}

// rollback removes a record whose artifact could not be produced. Its
// number stays consumed.
func (s *documentService) rollback(ctx context.Context, rec *record.Record, cause error) {
	err := s.Store.Update(context.WithoutCancel(ctx), s.spec.Collection, func(records []*record.Record) ([]*record.Record, error) {
		i := record.Find(records, rec.ID)
		if i < 0 {
			return records, nil
		}
		return append(records[:i], records[i+1:]...), nil
	})
	if err != nil {
		s.Logger.Errorw("failed to roll back document",
			"kind", s.spec.Kind,
			"id", rec.ID,
			"number", rec.Number,
			"cause", cause,
			"error", err)
		return
	}
	s.Logger.Warnw("document number voided",
		"kind", s.spec.Kind,
		"number", rec.Number,
		"cause", cause)
}

func (s *documentService) discard(ctx context.Context, name string) {
	if err := s.Generator.DiscardArtifact(context.WithoutCancel(ctx), name); err != nil {
		s.Logger.Errorw("failed to delete artifact", "artifact", name, "error", err)
	}
}

func (s *documentService) lock(id string) func() {
	v, _ := s.mu.LoadOrStore(id, &sync.Mutex{})
	m := v.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}

func (s *documentService) notFound(id string) error {
	return ierr.NewErrorf("%s %s not found", s.spec.Kind, id).
		WithHintf("%s not found", strings.ReplaceAll(s.spec.Kind.String(), "_", " ")).
		WithReportableDetails(map[string]any{
			"id": id,
		}).
		Mark(ierr.ErrNotFound)
}

func artifactOf(r *pdf.Result, at time.Time) *record.Artifact {
	return &record.Artifact{
		Name:       r.ArtifactName,
		PageCount:  r.PageCount,
		Merged:     r.Merged,
		MergeError: r.MergeError,
		Outcome:    r.Outcome,
		CreatedAt:  at,
	}
}

func actor(ctx context.Context) string {
	if id := types.GetUserID(ctx); id != "" {
		return id
	}
	return types.DefaultUserID
}
