// Package core provides the expense domain types and the normalization rules
// shared by the parser and the ingestion service.
//
// This file contains amount coercion: callers and the model may send amounts
// as JSON numbers or as numeric text.
package core

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxAmount is the largest amount accepted at ingestion. Sums of accepted
// amounts stay finite and exact to the cent.
const MaxAmount = 1e12

var maxAmount = decimal.NewFromFloat(MaxAmount)

// CoerceAmount converts a number or numeric text to float64.
//
// It does not check the sign; positivity is enforced at ingestion. Values
// that do not fit a finite float64 are rejected.
//
// Examples:
//
//	CoerceAmount(150)     -> 150, nil
//	CoerceAmount("12.50") -> 12.5, nil
//	CoerceAmount("abc")   -> 0, ErrInvalidAmount
func CoerceAmount(v any) (float64, error) {
	d, err := toDecimal(v)
	if err != nil {
		return 0, err
	}
	f := d.InexactFloat64()
	if math.IsInf(f, 0) {
		return 0, ErrInvalidAmount
	}
	return f, nil
}

// PositiveAmount coerces v and rejects zero, negative and values above
// MaxAmount.
func PositiveAmount(v any) (float64, error) {
	d, err := toDecimal(v)
	if err != nil {
		return 0, err
	}
	if !d.IsPositive() || d.GreaterThan(maxAmount) {
		return 0, ErrInvalidAmount
	}
	return d.InexactFloat64(), nil
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch n := v.(type) {
	case float64:
		if math.IsInf(n, 0) || math.IsNaN(n) {
			return decimal.Zero, ErrInvalidAmount
		}
		return decimal.NewFromFloat(n), nil
	case float32:
		if math.IsInf(float64(n), 0) || math.IsNaN(float64(n)) {
			return decimal.Zero, ErrInvalidAmount
		}
		return decimal.NewFromFloat32(n), nil
	case int:
		return decimal.NewFromInt(int64(n)), nil
	case int64:
		return decimal.NewFromInt(n), nil
	case json.Number:
		return parseDecimalText(n.String())
	case decimal.Decimal:
		return n, nil
	case string:
		return parseDecimalText(n)
	default:
		return decimal.Zero, ErrInvalidAmount
	}
}

func parseDecimalText(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}
