package domain

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// MinorUnitsPerMajor is the scale between presentation amounts and stored amounts.
const MinorUnitsPerMajor = 100

var (
	// ErrAmountFormat is returned when a decimal amount cannot be represented in minor units.
	ErrAmountFormat = errors.New("amount must be a decimal number with at most two fractional digits")
	// ErrAmountOverflow is returned when a computed amount exceeds the int64 range.
	ErrAmountOverflow = errors.New("amount overflows")
)

// OrderTotal sums unitPrice * quantity across items using exact integer arithmetic.
func OrderTotal(items []OrderItem) (int64, error) {
	var total int64
	for _, item := range items {
		if item.Quantity < 0 || item.UnitPrice < 0 {
			return 0, fmt.Errorf("negative line item for %q", item.ProductID)
		}
		qty := int64(item.Quantity)
		if qty != 0 && item.UnitPrice > math.MaxInt64/qty {
			return 0, ErrAmountOverflow
		}
		line := item.UnitPrice * qty
		if total > math.MaxInt64-line {
			return 0, ErrAmountOverflow
		}
		total += line
	}
	return total, nil
}

// ParseAmount converts a decimal major-unit string ("10", "10.5", "10.05") into minor units.
func ParseAmount(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, ErrAmountFormat
	}
	negative := false
	if strings.HasPrefix(raw, "-") {
		negative = true
		raw = raw[1:]
	}
	whole, frac, hasFrac := strings.Cut(raw, ".")
	if whole == "" || (hasFrac && (frac == "" || len(frac) > 2)) {
		return 0, ErrAmountFormat
	}
	if !isDigits(whole) || (hasFrac && !isDigits(frac)) {
		return 0, ErrAmountFormat
	}
	major, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || major > math.MaxInt64/MinorUnitsPerMajor {
		return 0, ErrAmountOverflow
	}
	var minor int64
	if hasFrac {
		for len(frac) < 2 {
			frac += "0"
		}
		minor, _ = strconv.ParseInt(frac, 10, 64)
	}
	if major*MinorUnitsPerMajor > math.MaxInt64-minor {
		return 0, ErrAmountOverflow
	}
	amount := major*MinorUnitsPerMajor + minor
	if negative {
		amount = -amount
	}
	return amount, nil
}

// FormatAmount renders minor units as a decimal major-unit string without trailing zeros.
func FormatAmount(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	whole := minor / MinorUnitsPerMajor
	frac := minor % MinorUnitsPerMajor
	switch {
	case frac == 0:
		return fmt.Sprintf("%s%d", sign, whole)
	case frac%10 == 0:
		return fmt.Sprintf("%s%d.%d", sign, whole, frac/10)
	default:
		return fmt.Sprintf("%s%d.%02d", sign, whole, frac)
	}
}

func isDigits(value string) bool {
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return value != ""
}
