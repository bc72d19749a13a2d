package document

import (
	"github.com/ledgerdesk/backoffice/internal/types"
	"github.com/shopspring/decimal"
)

// Request is an internal purchase or service request raised by a department
type Request struct {
	Subject     string     `json:"subject" validate:"required,max=120"`
	Requester   string     `json:"requester" validate:"required,max=200"`
	Department  string     `json:"department,omitempty" validate:"omitempty,max=100"`
	Priority    string     `json:"priority" validate:"required,oneof=low normal high urgent"`
	NeededBy    *Date      `json:"needed_by,omitempty"`
	Description string     `json:"description,omitempty" validate:"omitempty,max=5000"`
	Items       []LineItem `json:"items,omitempty" validate:"omitempty,max=200,dive"`
	Currency    string     `json:"currency,omitempty" validate:"omitempty,len=3,alpha"`
}

func (r *Request) Kind() types.DocumentKind {
	return types.DocumentKindRequest
}

func (r *Request) Label() string {
	return r.Subject
}

func (r *Request) Bindings() map[string]any {
	out := map[string]any{
		"subject":     r.Subject,
		"requester":   r.Requester,
		"department":  optional(r.Department),
		"priority":    r.Priority,
		"needed_by":   optionalDate(r.NeededBy),
		"description": optional(r.Description),
		"items":       lineBindings(r.Items),
		"currency":    optional(r.Currency),
		"total":       nil,
	}
	if len(r.Items) > 0 {
		out["total"] = money(computeTotals(r.Items, decimal.Zero, decimal.Zero).Total)
	}
	return out
}
