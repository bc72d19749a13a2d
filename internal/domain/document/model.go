package document

import (
	"encoding/json"
	"strings"
	"time"

	ierr "github.com/ledgerdesk/backoffice/internal/errors"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// Date is a calendar date serialized as YYYY-MM-DD
type Date struct {
	time.Time
}

func NewDate(t time.Time) *Date {
	return &Date{Time: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Format(dateLayout))
}

// UnmarshalJSON accepts a plain date or a full RFC 3339 timestamp
func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		d.Time = time.Time{}
		return nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		t, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return ierr.WithError(err).
				WithHintf("invalid date %q, expected YYYY-MM-DD", s).
				Mark(ierr.ErrValidation)
		}
	}
	*d = *NewDate(t)
	return nil
}

// Party is a supplier, customer or payer printed on a document
type Party struct {
	Name    string       `json:"name" validate:"required,max=200"`
	Email   string       `json:"email,omitempty" validate:"omitempty,email"`
	Phone   string       `json:"phone,omitempty" validate:"omitempty,max=40"`
	TaxID   string       `json:"tax_id,omitempty" validate:"omitempty,max=40"`
	Address *AddressInfo `json:"address,omitempty"`
}

// AddressInfo represents a physical address
type AddressInfo struct {
	Street     string `json:"street,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
}

// LineItem is one priced row of a purchase order, quote or request
type LineItem struct {
	Description string          `json:"description" validate:"required,max=500"`
	Unit        string          `json:"unit,omitempty" validate:"omitempty,max=20"`
	Quantity    decimal.Decimal `json:"quantity" validate:"decimal_positive"`
	UnitPrice   decimal.Decimal `json:"unit_price" validate:"decimal_gte0"`
}

// Amount is quantity times unit price
func (l LineItem) Amount() decimal.Decimal {
	return l.Quantity.Mul(l.UnitPrice)
}

// Totals of a priced document
type Totals struct {
	Subtotal decimal.Decimal
	Discount decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// computeTotals applies a percentage discount and then a percentage tax on the discounted subtotal
func computeTotals(items []LineItem, discountPercent, taxPercent decimal.Decimal) Totals {
	hundred := decimal.NewFromInt(100)
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.Amount())
	}
	discount := subtotal.Mul(discountPercent).Div(hundred).Round(2)
	taxable := subtotal.Sub(discount)
	tax := taxable.Mul(taxPercent).Div(hundred).Round(2)
	return Totals{
		Subtotal: subtotal.Round(2),
		Discount: discount,
		Tax:      tax,
		Total:    taxable.Add(tax).Round(2),
	}
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func lineBindings(items []LineItem) []map[string]any {
	rows := make([]map[string]any, 0, len(items))
	for i, item := range items {
		rows = append(rows, map[string]any{
			"index":       i + 1,
			"description": item.Description,
			"unit":        optional(item.Unit),
			"quantity":    item.Quantity.String(),
			"unit_price":  money(item.UnitPrice),
			"amount":      money(item.Amount()),
		})
	}
	return rows
}

func partyBindings(p Party) map[string]any {
	out := map[string]any{
		"name":    p.Name,
		"email":   optional(p.Email),
		"phone":   optional(p.Phone),
		"tax_id":  optional(p.TaxID),
		"address": nil,
	}
	if p.Address != nil {
		parts := make([]string, 0, 5)
		for _, s := range []string{p.Address.Street, p.Address.City, p.Address.State, p.Address.PostalCode, p.Address.Country} {
			if s = strings.TrimSpace(s); s != "" {
				parts = append(parts, s)
			}
		}
		if len(parts) > 0 {
			out["address"] = strings.Join(parts, ", ")
		}
	}
	return out
}

// optional maps empty values to nil so the renderer prints its placeholder
func optional(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

func optionalDate(d *Date) any {
	if d == nil || d.IsZero() {
		return nil
	}
	return d.Format(dateLayout)
}
