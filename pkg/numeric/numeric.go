// Package numeric coerces loosely typed JSON values into exact decimals.
package numeric

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrMissing is returned for nil and blank values.
	ErrMissing = errors.New("value is missing")
	// ErrNotNumeric is returned for values that do not denote a finite number.
	ErrNotNumeric = errors.New("value is not a finite number")
	// ErrOutOfRange is returned for values a NUMERIC column cannot store
	// exactly.
	ErrOutOfRange = errors.New("value out of range")
)

// Bounds describes a NUMERIC(precision, scale) column: at most Scale decimal
// places and an absolute value below Limit.
type Bounds struct {
	Scale int32
	Limit decimal.Decimal
}

var (
	// Quantity matches NUMERIC(14,3).
	Quantity = Bounds{Scale: 3, Limit: decimal.New(1, 11)}
	// Money matches NUMERIC(12,2).
	Money = Bounds{Scale: 2, Limit: decimal.New(1, 10)}
)

// Check reports ErrOutOfRange when d would be rounded or overflow on write.
func (b Bounds) Check(d decimal.Decimal) error {
	if !d.Equal(d.Truncate(b.Scale)) {
		return fmt.Errorf("%w: must have at most %d decimal places", ErrOutOfRange, b.Scale)
	}
	if d.Abs().GreaterThanOrEqual(b.Limit) {
		return fmt.Errorf("%w: must be below %s", ErrOutOfRange, b.Limit.String())
	}
	return nil
}

// Parse converts a decoded JSON value (json.Number, float64, string or an
// integer type) into a decimal.
func Parse(v any) (decimal.Decimal, error) {
	switch n := v.(type) {
	case nil:
		return decimal.Zero, ErrMissing
	case decimal.Decimal:
		return n, nil
	case json.Number:
		return parseString(n.String())
	case string:
		return parseString(n)
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return decimal.Zero, ErrNotNumeric
		}
		return decimal.NewFromFloat(n), nil
	case float32:
		return Parse(float64(n))
	case int:
		return decimal.NewFromInt(int64(n)), nil
	case int32:
		return decimal.NewFromInt32(n), nil
	case int64:
		return decimal.NewFromInt(n), nil
	default:
		return decimal.Zero, fmt.Errorf("%w: %T", ErrNotNumeric, v)
	}
}

func parseString(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrMissing
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrNotNumeric, s)
	}
	return d, nil
}

// Positive parses v and requires it to be strictly greater than zero.
func Positive(v any) (decimal.Decimal, error) {
	d, err := Parse(v)
	if err != nil {
		return decimal.Zero, err
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: must be greater than zero", ErrNotNumeric)
	}
	return d, nil
}
