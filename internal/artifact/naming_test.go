package artifact

import (
	"testing"
	"time"
	"unicode/utf8"

	"github.com/ledgerdesk/backoffice/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestSanitizeLabel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Gulf Paper Trading", "Gulf_Paper_Trading"},
		{"  A & B   Co.  ", "A_B_Co"},
		{"../../etc/passwd", "etcpasswd"},
		{"شركة الأفق للتجارة", "شركة_الأفق_للتجارة"},
		{"Q3\tbudget\nreview", "Q3_budget_review"},
		{"!!!", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeLabel(tt.in), tt.in)
	}
}

func TestSanitizeLabelCapsRunes(t *testing.T) {
	got := SanitizeLabel("Международная торговая компания Восток")
	assert.LessOrEqual(t, utf8.RuneCountInString(got), MaxLabelLength)
	assert.NotEqual(t, '_', []rune(got)[len([]rune(got))-1])

	got = SanitizeLabel("abcdefghijklmnopqrstuvwxyz0123456789")
	assert.Equal(t, "abcdefghijklmnopqrstuvwxyz0123", got)
}

func TestName(t *testing.T) {
	at := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

	assert.Equal(t, "PO0007_Gulf_Paper_20260314.pdf",
		Name("PO0007", "Gulf Paper", types.DocumentKindPurchaseOrder, 0, at))
	assert.Equal(t, "RC0001_receipt_20260314.pdf",
		Name("RC0001", "***", types.DocumentKindReceipt, 0, at))
	assert.Equal(t, "QT0012_Acme_20260314_r2.pdf",
		Name("QT0012", "Acme", types.DocumentKindQuote, 2, at))
}
