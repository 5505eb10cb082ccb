package domain

import (
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the canonical calendar date format for expirations and filters.
const DateLayout = "2006-01-02"

// ValidateNonEmptyText returns the trimmed value or a ValidationError when it is blank.
func ValidateNonEmptyText(field, s string) (string, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return "", ValidationError{Field: field, Reason: "must not be empty"}
	}
	return trimmed, nil
}

// ValidatePositiveNumber parses raw as a decimal and requires it to be greater than zero.
func ValidatePositiveNumber(field, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, ValidationError{Field: field, Value: raw, Reason: "must be a number"}
	}
	if err := ValidatePositiveDecimal(field, d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

// ValidatePositiveDecimal requires d > 0.
func ValidatePositiveDecimal(field string, d decimal.Decimal) error {
	if !d.IsPositive() {
		return ValidationError{Field: field, Value: d.String(), Reason: "must be greater than zero"}
	}
	return nil
}

// ValidateNonNegativeDecimal requires d >= 0.
func ValidateNonNegativeDecimal(field string, d decimal.Decimal) error {
	if d.IsNegative() {
		return ValidationError{Field: field, Value: d.String(), Reason: "must not be negative"}
	}
	return nil
}

// ValidateFinite rejects NaN and infinite measurement values.
func ValidateFinite(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ValidationError{Field: field, Reason: "must be a finite number"}
	}
	return nil
}

// ValidateDateFormat parses s in DateLayout. The result is midnight UTC.
func ValidateDateFormat(field, s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, ValidationError{Field: field, Value: s, Reason: "must be a calendar date in YYYY-MM-DD format"}
	}
	return t, nil
}

// ValidateNames trims each entry and rejects an empty list or blank entries.
func ValidateNames(field string, names []string) ([]string, error) {
	if len(names) == 0 {
		return nil, ValidationError{Field: field, Reason: "at least one entry is required"}
	}
	out := make([]string, 0, len(names))
	for _, n := range names {
		trimmed, err := ValidateNonEmptyText(field, n)
		if err != nil {
			return nil, err
		}
		out = append(out, trimmed)
	}
	return out, nil
}
