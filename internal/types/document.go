package types

import (
	ierr "github.com/ledgerdesk/backoffice/internal/errors"
	"github.com/samber/lo"
)

// DocumentKind identifies one document type handled by the back office
type DocumentKind string

const (
	DocumentKindPurchaseOrder DocumentKind = "purchase_order"
	DocumentKindQuote         DocumentKind = "quote"
	DocumentKindReceipt       DocumentKind = "receipt"
	DocumentKindRequest       DocumentKind = "request"
)

var DocumentKinds = []DocumentKind{
	DocumentKindPurchaseOrder,
	DocumentKindQuote,
	DocumentKindReceipt,
	DocumentKindRequest,
}

func (k DocumentKind) String() string {
	return string(k)
}

func (k DocumentKind) Validate() error {
	if !lo.Contains(DocumentKinds, k) {
		return ierr.NewErrorf("invalid document kind: %s", k).
			WithHint("Please provide a valid document kind").
			WithReportableDetails(map[string]any{
				"allowed": DocumentKinds,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// Language is the language a document is printed in
type Language string

const (
	LanguageEnglish Language = "en"
	LanguageArabic  Language = "ar"
)

func (l Language) Validate() error {
	if l != LanguageEnglish && l != LanguageArabic {
		return ierr.NewErrorf("invalid language: %s", l).
			WithHint("Language must be one of en, ar").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// IsRTL reports whether the language is written right to left
func (l Language) IsRTL() bool {
	return l == LanguageArabic
}

// ArtifactOutcome reports how far document assembly got
type ArtifactOutcome string

const (
	// ArtifactOutcomeSucceeded means every requested part was composed
	ArtifactOutcomeSucceeded ArtifactOutcome = "succeeded"
	// ArtifactOutcomeDegraded means a usable base document was produced but
	// the attachment or appendix could not be merged
	ArtifactOutcomeDegraded ArtifactOutcome = "degraded"
)

// DocumentFilter narrows a document listing
type DocumentFilter struct {
	CreatedBy string `form:"created_by"`
	Limit     int    `form:"limit,default=50" validate:"omitempty,min=1,max=500"`
	Offset    int    `form:"offset,default=0" validate:"omitempty,min=0"`
}

const FILTER_DEFAULT_LIMIT = 50

func (f *DocumentFilter) GetLimit() int {
	if f == nil || f.Limit <= 0 {
		return FILTER_DEFAULT_LIMIT
	}
	return f.Limit
}

func (f *DocumentFilter) GetOffset() int {
	if f == nil || f.Offset < 0 {
		return 0
	}
	return f.Offset
}
