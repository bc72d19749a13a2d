// Package document holds the per type payload schemas of back office
// documents. Services decode request payloads into these structs, validate
// them and hand the pipeline nothing but their generic Bindings.
package document

import (
	"bytes"
	"encoding/json"

	ierr "github.com/ledgerdesk/backoffice/internal/errors"
	"github.com/ledgerdesk/backoffice/internal/types"
	"github.com/ledgerdesk/backoffice/internal/utils"
)

// Schema is the typed payload of one document kind
type Schema interface {
	// Kind returns the document kind the schema belongs to
	Kind() types.DocumentKind

	// Label is the short human name used in artifact file names
	Label() string

	// Bindings flattens the payload into the key/value map templates bind
	// against. Optional values that are not set are nil.
	Bindings() map[string]any
}

// Spec describes how a document kind is numbered and printed
type Spec struct {
	Kind       types.DocumentKind
	Prefix     string
	Template   string
	Collection string
	IDPrefix   string
	new        func() Schema
}

var specs = map[types.DocumentKind]Spec{
	types.DocumentKindPurchaseOrder: {
		Kind:       types.DocumentKindPurchaseOrder,
		Prefix:     "PO",
		Template:   "purchase-order",
		Collection: "purchase_orders",
		IDPrefix:   types.UUID_PREFIX_PURCHASE_ORDER,
		new:        func() Schema { return &PurchaseOrder{} },
	},
	types.DocumentKindQuote: {
		Kind:       types.DocumentKindQuote,
		Prefix:     "QT",
		Template:   "quote",
		Collection: "quotes",
		IDPrefix:   types.UUID_PREFIX_QUOTE,
		new:        func() Schema { return &Quote{} },
	},
	types.DocumentKindReceipt: {
		Kind:       types.DocumentKindReceipt,
		Prefix:     "RC",
		Template:   "receipt",
		Collection: "receipts",
		IDPrefix:   types.UUID_PREFIX_RECEIPT,
		new:        func() Schema { return &Receipt{} },
	},
	types.DocumentKindRequest: {
		Kind:       types.DocumentKindRequest,
		Prefix:     "RQ",
		Template:   "request",
		Collection: "requests",
		IDPrefix:   types.UUID_PREFIX_REQUEST,
		new:        func() Schema { return &Request{} },
	},
}

// SpecFor returns the numbering and template settings of kind
func SpecFor(kind types.DocumentKind) (Spec, error) {
	if err := kind.Validate(); err != nil {
		return Spec{}, err
	}
	return specs[kind], nil
}

// Decode parses a JSON payload into the schema of kind. Unknown fields are
// rejected so typos do not silently print as placeholders.
func Decode(kind types.DocumentKind, payload []byte) (Schema, error) {
	spec, err := SpecFor(kind)
	if err != nil {
		return nil, err
	}
	schema := spec.new()
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(schema); err != nil {
		if ierr.IsValidation(err) {
			return nil, err
		}
		return nil, ierr.WithError(err).
			WithHintf("Invalid %s payload", kind).
			WithReportableDetails(map[string]any{
				"error": err.Error(),
			}).
			Mark(ierr.ErrValidation)
	}
	return schema, nil
}

// FromFields rebuilds the schema from a stored field bag
func FromFields(kind types.DocumentKind, fields map[string]any) (Schema, error) {
	data, err := utils.FromMap(fields)
	if err != nil {
		return nil, err
	}
	return Decode(kind, data)
}

// ToFields converts a schema into the generic field bag kept on the record
func ToFields(schema Schema) (map[string]any, error) {
	return utils.ToMap(schema)
}
