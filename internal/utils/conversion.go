package utils

import (
	"bytes"
	"encoding/json"

	ierr "github.com/ledgerdesk/backoffice/internal/errors"
)

// ToMap converts a struct into a JSON shaped field bag. Numbers are kept as
// json.Number so integers and amounts are stored exactly as encoded.
func ToMap(value any) (map[string]any, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to encode document fields").
			Mark(ierr.ErrSystem)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var result map[string]any
	if err := dec.Decode(&result); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to encode document fields").
			Mark(ierr.ErrSystem)
	}
	return result, nil
}

// FromMap encodes a field bag back into JSON for a typed decoder
func FromMap(fields map[string]any) ([]byte, error) {
	if fields == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Stored document fields are unreadable").
			Mark(ierr.ErrSystem)
	}
	return data, nil
}
