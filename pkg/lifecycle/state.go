// Package lifecycle holds the soft-delete state carried by every ward entity.
package lifecycle

import (
	"database/sql/driver"
	"fmt"
)

// State is the lifecycle tag of a record. Records are never removed; a
// delete flips them to Inactive.
type State string

const (
	Active   State = "active"
	Inactive State = "inactive"
)

func (s State) IsActive() bool { return s == Active }

func (s State) Valid() bool {
	return s == Active || s == Inactive
}

// Parse converts a stored or client-supplied value into a State.
func Parse(v string) (State, error) {
	s := State(v)
	if !s.Valid() {
		return "", fmt.Errorf("invalid lifecycle state %q", v)
	}
	return s, nil
}

// Value implements driver.Valuer so State can be passed to pgx directly.
func (s State) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid lifecycle state %q", string(s))
	}
	return string(s), nil
}

// Scan implements sql.Scanner.
func (s *State) Scan(src interface{}) error {
	var raw string
	switch v := src.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("scan lifecycle state: unsupported type %T", src)
	}
	parsed, err := Parse(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// UnmarshalText validates states arriving in request bodies.
func (s *State) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
