package table

import (
	"encoding/json"
	"strings"
)

// Value is a metadata cell. A missing cell is always the zero Value; there is
// no separate encoding for an empty string.
type Value struct {
	str   string
	valid bool
}

// Null returns the missing Value.
func Null() Value { return Value{} }

// String returns a present Value holding s. The empty string is missing.
func String(s string) Value {
	if s == "" {
		return Value{}
	}
	return Value{str: s, valid: true}
}

// ParseCell converts a raw text cell to a Value. Blank cells are missing.
func ParseCell(raw string) Value {
	return String(strings.TrimSpace(raw))
}

// Valid reports whether the value is present.
func (v Value) Valid() bool { return v.valid }

// Str returns the stored string and whether it is present.
func (v Value) Str() (string, bool) { return v.str, v.valid }

// MarshalJSON encodes a missing value as null.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.valid {
		return []byte("null"), nil
	}
	return json.Marshal(v.str)
}

// UnmarshalJSON decodes null and "" as missing.
func (v *Value) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = Null()
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*v = String(s)
	return nil
}
