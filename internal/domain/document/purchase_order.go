package document

import (
	"github.com/ledgerdesk/backoffice/internal/types"
	"github.com/shopspring/decimal"
)

// PurchaseOrder is an order placed with a supplier
type PurchaseOrder struct {
	Title        string          `json:"title,omitempty" validate:"omitempty,max=120"`
	Supplier     Party           `json:"supplier"`
	ShipTo       string          `json:"ship_to,omitempty" validate:"omitempty,max=300"`
	DeliveryDate *Date           `json:"delivery_date,omitempty"`
	Currency     string          `json:"currency" validate:"required,len=3,alpha"`
	Items        []LineItem      `json:"items" validate:"required,min=1,max=200,dive"`
	TaxPercent   decimal.Decimal `json:"tax_percent" validate:"decimal_gte0"`
	PaymentTerms string          `json:"payment_terms,omitempty" validate:"omitempty,max=300"`
	Notes        string          `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

func (p *PurchaseOrder) Kind() types.DocumentKind {
	return types.DocumentKindPurchaseOrder
}

// Label prefers the order title and falls back to the supplier name
func (p *PurchaseOrder) Label() string {
	if p.Title != "" {
		return p.Title
	}
	return p.Supplier.Name
}

func (p *PurchaseOrder) Totals() Totals {
	return computeTotals(p.Items, decimal.Zero, p.TaxPercent)
}

func (p *PurchaseOrder) Bindings() map[string]any {
	totals := p.Totals()
	return map[string]any{
		"title":         optional(p.Title),
		"supplier":      partyBindings(p.Supplier),
		"ship_to":       optional(p.ShipTo),
		"delivery_date": optionalDate(p.DeliveryDate),
		"currency":      p.Currency,
		"items":         lineBindings(p.Items),
		"tax_percent":   p.TaxPercent.String(),
		"subtotal":      money(totals.Subtotal),
		"tax":           money(totals.Tax),
		"total":         money(totals.Total),
		"payment_terms": optional(p.PaymentTerms),
		"notes":         optional(p.Notes),
	}
}
