package record

import (
	"time"

	"github.com/ledgerdesk/backoffice/internal/types"
)

// Record is one stored business document. Fields holds the per-type
// payload; the remaining members are system fields owned by the store and
// the document services.
type Record struct {
	ID              string             `json:"id"`
	Kind            types.DocumentKind `json:"kind"`
	Number          string             `json:"number"`
	SequenceName    string             `json:"sequenceName"`
	Sequence        int                `json:"sequence"`
	Revision        int                `json:"revision"`
	Language        types.Language     `json:"language"`
	Label           string             `json:"label,omitempty"`
	IncludeAppendix bool               `json:"includeAppendix,omitempty"`
	CreatedBy       string             `json:"createdBy"`
	CreatedAt       time.Time          `json:"createdAt"`
	UpdatedAt       time.Time          `json:"updatedAt"`
	Fields          map[string]any     `json:"fields"`
	Artifact        *Artifact          `json:"artifact,omitempty"`
}

// Artifact references the generated document owned by a record
type Artifact struct {
	Name       string                `json:"name"`
	PageCount  int                   `json:"pageCount"`
	Merged     bool                  `json:"merged"`
	MergeError string                `json:"mergeError,omitempty"`
	Outcome    types.ArtifactOutcome `json:"outcome"`
	CreatedAt  time.Time             `json:"createdAt"`
}

// Clone returns a deep enough copy for callers that mutate fields in place
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	if r.Fields != nil {
		c.Fields = make(map[string]any, len(r.Fields))
		for k, v := range r.Fields {
			c.Fields[k] = v
		}
	}
	if r.Artifact != nil {
		a := *r.Artifact
		c.Artifact = &a
	}
	return &c
}

// Find returns the index of the record with the given id, or -1
func Find(records []*Record, id string) int {
	for i, r := range records {
		if r.ID == id {
			return i
		}
	}
	return -1
}
