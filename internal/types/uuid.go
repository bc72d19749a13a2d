package types

import (
	"fmt"

	"github.com/oklog/ulid/v2"
)

// GenerateUUID returns a k-sortable unique identifier
func GenerateUUID() string {
	return ulid.Make().String()
}

// GenerateUUIDWithPrefix returns a k-sortable unique identifier
// with a prefix ex po_01JAE3W4RZ6TQ0V9M8X2B5C7DK
func GenerateUUIDWithPrefix(prefix string) string {
	if prefix == "" {
		return GenerateUUID()
	}
	return fmt.Sprintf("%s_%s", prefix, GenerateUUID())
}

const (
	// Prefixes for all document types

	UUID_PREFIX_PURCHASE_ORDER = "po"
	UUID_PREFIX_QUOTE          = "qt"
	UUID_PREFIX_RECEIPT        = "rc"
	UUID_PREFIX_REQUEST        = "rq"
)
