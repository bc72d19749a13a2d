package document

import (
	"github.com/ledgerdesk/backoffice/internal/types"
	"github.com/shopspring/decimal"
)

// Receipt acknowledges money received
type Receipt struct {
	ReceivedFrom  Party           `json:"received_from"`
	ReceivedOn    *Date           `json:"received_on,omitempty"`
	Amount        decimal.Decimal `json:"amount" validate:"decimal_positive"`
	Currency      string          `json:"currency" validate:"required,len=3,alpha"`
	PaymentMethod string          `json:"payment_method" validate:"required,oneof=cash cheque transfer card"`
	Reference     string          `json:"reference,omitempty" validate:"omitempty,max=100"`
	Purpose       string          `json:"purpose,omitempty" validate:"omitempty,max=500"`
	Notes         string          `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

func (r *Receipt) Kind() types.DocumentKind {
	return types.DocumentKindReceipt
}

func (r *Receipt) Label() string {
	return r.ReceivedFrom.Name
}

func (r *Receipt) Bindings() map[string]any {
	return map[string]any{
		"received_from":  partyBindings(r.ReceivedFrom),
		"received_on":    optionalDate(r.ReceivedOn),
		"amount":         money(r.Amount),
		"currency":       r.Currency,
		"payment_method": r.PaymentMethod,
		"reference":      optional(r.Reference),
		"purpose":        optional(r.Purpose),
		"notes":          optional(r.Notes),
	}
}
