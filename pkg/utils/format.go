// Package utils provides shared utility functions.
package utils

import (
	"strings"

	"github.com/shopspring/decimal"
)

// NotAvailable is printed for null values.
const NotAvailable = "n/a"

// FormatUSD formats an amount as dollars with thousands separators.
func FormatUSD(amount decimal.Decimal) string {
	amount = amount.Round(2)
	negative := amount.IsNegative()
	str := amount.Abs().StringFixed(2)
	parts := strings.SplitN(str, ".", 2)

	result := "$" + groupThousands(parts[0]) + "." + parts[1]
	if negative {
		result = "-" + result
	}
	return result
}

// FormatNullUSD is FormatUSD for optional amounts.
func FormatNullUSD(amount decimal.NullDecimal) string {
	if !amount.Valid {
		return NotAvailable
	}
	return FormatUSD(amount.Decimal)
}

// groupThousands inserts commas every three digits from the right.
func groupThousands(s string) string {
	n := len(s)
	if n <= 3 {
		return s
	}

	var b strings.Builder
	head := n % 3
	if head > 0 {
		b.WriteString(s[:head])
	}
	for i := head; i < n; i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// FormatPercent formats a percentage with sign, or n/a when null.
func FormatPercent(value decimal.NullDecimal) string {
	if !value.Valid {
		return NotAvailable
	}
	rounded := value.Decimal.Round(2)
	sign := ""
	if rounded.IsPositive() {
		sign = "+"
	}
	return sign + rounded.StringFixed(2) + "%"
}

// FormatCount formats an integer with thousands separators.
func FormatCount(n int64) string {
	if n < 0 {
		return "-" + groupThousands(decimal.NewFromInt(-n).String())
	}
	return groupThousands(decimal.NewFromInt(n).String())
}
