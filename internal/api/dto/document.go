package dto

import (
	"encoding/json"
	"time"

	"github.com/ledgerdesk/backoffice/internal/domain/record"
	ierr "github.com/ledgerdesk/backoffice/internal/errors"
	"github.com/ledgerdesk/backoffice/internal/types"
	"github.com/ledgerdesk/backoffice/internal/validator"
)

type CreateDocumentRequest struct {
	// Fields is the payload of the document kind, see domain/document
	Fields   json.RawMessage `json:"fields" swaggertype:"object" validate:"required"`
	Language types.Language  `json:"language,omitempty"`
	// Label names the artifact file, defaults to the payload's own label
	Label string `json:"label,omitempty" validate:"omitempty,max=200"`
	// Template selects a layout version such as quote@2
	Template        string `json:"template,omitempty" validate:"omitempty,max=80"`
	IncludeAppendix bool   `json:"include_appendix"`

	// Attachment is read from the multipart form, never from JSON
	Attachment []byte `json:"-"`
}

func (r *CreateDocumentRequest) Validate() error {
	if r.Language == "" {
		r.Language = types.LanguageEnglish
	}
	if err := r.Language.Validate(); err != nil {
		return err
	}
	if len(r.Fields) == 0 || string(r.Fields) == "null" {
		return ierr.NewError("fields are required").
			WithHint("Document fields are required").
			Mark(ierr.ErrValidation)
	}
	return validator.ValidateRequest(r)
}

type UpdateDocumentRequest struct {
	Fields   json.RawMessage `json:"fields" swaggertype:"object"`
	Language types.Language  `json:"language,omitempty"`
	Label    *string         `json:"label,omitempty" validate:"omitempty,max=200"`
	Template string          `json:"template,omitempty" validate:"omitempty,max=80"`
	// IncludeAppendix keeps the stored choice when omitted
	IncludeAppendix *bool `json:"include_appendix,omitempty"`
}

func (r *UpdateDocumentRequest) Validate() error {
	if r.Language != "" {
		if err := r.Language.Validate(); err != nil {
			return err
		}
	}
	if string(r.Fields) == "null" {
		r.Fields = nil
	}
	return validator.ValidateRequest(r)
}

type GenerateArtifactRequest struct {
	Template        string `form:"template" json:"template,omitempty" validate:"omitempty,max=80"`
	IncludeAppendix *bool  `form:"include_appendix" json:"include_appendix,omitempty"`
	Attachment      []byte `form:"-" json:"-"`
}

func (r *GenerateArtifactRequest) Validate() error {
	return validator.ValidateRequest(r)
}

type ArtifactResponse struct {
	Name       string                `json:"name"`
	PageCount  int                   `json:"page_count"`
	Merged     bool                  `json:"merged"`
	MergeError string                `json:"merge_error,omitempty"`
	Outcome    types.ArtifactOutcome `json:"outcome"`
	CreatedAt  string                `json:"created_at"`
}

type DocumentResponse struct {
	ID              string             `json:"id"`
	Kind            types.DocumentKind `json:"kind"`
	Number          string             `json:"number"`
	Revision        int                `json:"revision"`
	Language        types.Language     `json:"language"`
	Label           string             `json:"label,omitempty"`
	IncludeAppendix bool               `json:"include_appendix"`
	Fields          map[string]any     `json:"fields"`
	Artifact        *ArtifactResponse  `json:"artifact,omitempty"`
	CreatedBy       string             `json:"created_by"`
	CreatedAt       string             `json:"created_at"`
	UpdatedAt       string             `json:"updated_at"`
}

type ListDocumentsResponse = types.ListResponse[*DocumentResponse]

func NewDocumentResponse(r *record.Record) *DocumentResponse {
	resp := &DocumentResponse{
		ID:              r.ID,
		Kind:            r.Kind,
		Number:          r.Number,
		Revision:        r.Revision,
		Language:        r.Language,
		Label:           r.Label,
		IncludeAppendix: r.IncludeAppendix,
		Fields:          r.Fields,
		CreatedBy:       r.CreatedBy,
		CreatedAt:       r.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       r.UpdatedAt.Format(time.RFC3339),
	}
	if a := r.Artifact; a != nil {
		resp.Artifact = &ArtifactResponse{
			Name:       a.Name,
			PageCount:  a.PageCount,
			Merged:     a.Merged,
			MergeError: a.MergeError,
			Outcome:    a.Outcome,
			CreatedAt:  a.CreatedAt.Format(time.RFC3339),
		}
	}
	return resp
}
