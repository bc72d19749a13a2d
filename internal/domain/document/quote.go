package document

import (
	"github.com/ledgerdesk/backoffice/internal/types"
	"github.com/shopspring/decimal"
)

// Quote is a priced offer sent to a customer
type Quote struct {
	Title           string          `json:"title,omitempty" validate:"omitempty,max=120"`
	Customer        Party           `json:"customer"`
	ValidUntil      *Date           `json:"valid_until,omitempty"`
	Currency        string          `json:"currency" validate:"required,len=3,alpha"`
	Items           []LineItem      `json:"items" validate:"required,min=1,max=200,dive"`
	DiscountPercent decimal.Decimal `json:"discount_percent" validate:"decimal_gte0"`
	TaxPercent      decimal.Decimal `json:"tax_percent" validate:"decimal_gte0"`
	Terms           string          `json:"terms,omitempty" validate:"omitempty,max=2000"`
	Notes           string          `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

func (q *Quote) Kind() types.DocumentKind {
	return types.DocumentKindQuote
}

func (q *Quote) Label() string {
	if q.Title != "" {
		return q.Title
	}
	return q.Customer.Name
}

func (q *Quote) Totals() Totals {
	return computeTotals(q.Items, q.DiscountPercent, q.TaxPercent)
}

func (q *Quote) Bindings() map[string]any {
	totals := q.Totals()
	return map[string]any{
		"title":            optional(q.Title),
		"customer":         partyBindings(q.Customer),
		"valid_until":      optionalDate(q.ValidUntil),
		"currency":         q.Currency,
		"items":            lineBindings(q.Items),
		"discount_percent": q.DiscountPercent.String(),
		"tax_percent":      q.TaxPercent.String(),
		"subtotal":         money(totals.Subtotal),
		"discount":         money(totals.Discount),
		"tax":              money(totals.Tax),
		"total":            money(totals.Total),
		"terms":            optional(q.Terms),
		"notes":            optional(q.Notes),
	}
}
