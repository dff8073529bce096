// Package models contains data structures used throughout the application
package models

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

// ErrNotANumber is returned by ParseNumber when the input is not a finite number
var ErrNotANumber = errors.New("not a number")

// Value is a resolved number or the missing marker.
// The zero Value is missing.
type Value struct {
	Number float64
	Valid  bool
}

// Missing is the missing-value result
var Missing = Value{}

// Some wraps a number as a present Value
func Some(n float64) Value {
	return Value{Number: n, Valid: true}
}

// Get returns the number and whether it is present
func (v Value) Get() (float64, bool) {
	return v.Number, v.Valid
}

// Or returns the number, or fallback when missing
func (v Value) Or(fallback float64) float64 {
	if !v.Valid {
		return fallback
	}
	return v.Number
}

// Equal reports whether two values are both missing or hold the same number
func (v Value) Equal(other Value) bool {
	if v.Valid != other.Valid {
		return false
	}
	return !v.Valid || v.Number == other.Number
}

func (v Value) String() string {
	if !v.Valid {
		return "missing"
	}
	return strconv.FormatFloat(v.Number, 'f', -1, 64)
}

// MarshalJSON encodes a missing value as null
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.Valid {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, v.Number, 'f', -1, 64), nil
}

// UnmarshalJSON decodes null as missing
func (v *Value) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*v = Missing
		return nil
	}
	n, err := ParseNumber(strings.Trim(s, `"`))
	if err != nil {
		return err
	}
	*v = Some(n)
	return nil
}

// ParseNumber parses a decimal number. Unlike a lenient coercion it rejects
// trailing garbage, empty strings, NaN and infinities.
func ParseNumber(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, ErrNotANumber
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, ErrNotANumber
	}
	return n, nil
}
