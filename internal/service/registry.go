package service

import (
	ierr "github.com/ledgerdesk/backoffice/internal/errors"
	"github.com/ledgerdesk/backoffice/internal/types"
)

// DocumentServices holds one DocumentService per document kind
type DocumentServices map[types.DocumentKind]DocumentService

func NewDocumentServices(params ServiceParams) (DocumentServices, error) {
	services := make(DocumentServices, len(types.DocumentKinds))
	for _, kind := range types.DocumentKinds {
		svc, err := NewDocumentService(params, kind)
		if err != nil {
			return nil, err
		}
		services[kind] = svc
	}
	return services, nil
}

// For returns the service of kind. Unknown kinds are not found so that
// /documents/<typo> reads like a missing route.
func (d DocumentServices) For(kind types.DocumentKind) (DocumentService, error) {
	svc, ok := d[kind]
	if !ok {
		return nil, ierr.NewErrorf("unknown document kind %q", kind).
			WithHint("Unknown document type").
			WithReportableDetails(map[string]any{
				"allowed": types.DocumentKinds,
			}).
			Mark(ierr.ErrNotFound)
	}
	return svc, nil
}
