package artifact

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/ledgerdesk/backoffice/internal/types"
)

// MaxLabelLength caps the sanitized label in runes
const MaxLabelLength = 30

const Extension = ".pdf"

// SanitizeLabel keeps letters, digits and combining marks of any script,
// collapses whitespace runs into a single underscore and drops everything
// else. The result is capped at MaxLabelLength runes.
func SanitizeLabel(label string) string {
	var b strings.Builder
	sep := false
	for _, r := range label {
		switch {
		case unicode.IsSpace(r):
			sep = b.Len() > 0
		case unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r):
			if sep {
				b.WriteByte('_')
				sep = false
			}
			b.WriteRune(r)
		}
	}
	out := []rune(b.String())
	if len(out) > MaxLabelLength {
		out = out[:MaxLabelLength]
	}
	return strings.TrimRight(string(out), "_")
}

// Name builds the artifact file name {number}_{label}_{YYYYMMDD}.pdf. An
// empty label falls back to the document kind. Regenerated artifacts carry
// their revision so a superseded file is never overwritten in place.
func Name(number, label string, kind types.DocumentKind, revision int, at time.Time) string {
	l := SanitizeLabel(label)
	if l == "" {
		l = kind.String()
	}
	name := fmt.Sprintf("%s_%s_%s", number, l, types.FormatCompactDate(at))
	if revision > 0 {
		name = fmt.Sprintf("%s_r%d", name, revision)
	}
	return name + Extension
}
