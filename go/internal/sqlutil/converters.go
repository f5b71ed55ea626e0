package sqlutil

import (
	"encoding/json"
	"fmt"

	"github.com/sqlc-dev/pqtype"
)

// Helper functions for converting between Go values and JSONB columns

// ToNullRawMessage marshals v into a JSONB value; a nil v becomes SQL NULL.
func ToNullRawMessage(v any) (pqtype.NullRawMessage, error) {
	if v == nil {
		return pqtype.NullRawMessage{Valid: false}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return pqtype.NullRawMessage{}, fmt.Errorf("failed to marshal jsonb value: %w", err)
	}
	if string(data) == "null" {
		return pqtype.NullRawMessage{Valid: false}, nil
	}
	return pqtype.NullRawMessage{RawMessage: data, Valid: true}, nil
}

// FromNullRawMessage unmarshals a JSONB value into dst and reports whether
// the column was non-NULL.
func FromNullRawMessage(val pqtype.NullRawMessage, dst any) (bool, error) {
	if !val.Valid || len(val.RawMessage) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(val.RawMessage, dst); err != nil {
		return false, fmt.Errorf("failed to unmarshal jsonb value: %w", err)
	}
	return true, nil
}

// IntPtr returns a pointer to a copy of v.
func IntPtr(v int) *int {
	return &v
}
