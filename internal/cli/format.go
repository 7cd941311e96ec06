package cli

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"earnings-tracker/pkg/utils"
)

// notAvailable is shown for values that could not be computed.
const notAvailable = utils.NotAvailable

// FormatCurrency formats an amount in dollars with thousands separators.
func FormatCurrency(amount decimal.Decimal) string {
	return utils.FormatUSD(amount)
}

// FormatSignedCurrency formats a gain or loss with an explicit sign.
func FormatSignedCurrency(amount decimal.NullDecimal) string {
	if !amount.Valid {
		return notAvailable
	}
	formatted := utils.FormatNullUSD(amount)
	if amount.Decimal.Round(2).IsPositive() {
		return "+" + formatted
	}
	return formatted
}

// FormatPercent formats a percentage with sign.
func FormatPercent(value decimal.NullDecimal) string {
	return utils.FormatPercent(value)
}

// FormatRate formats a share such as a win rate, unsigned.
func FormatRate(value decimal.NullDecimal) string {
	if !value.Valid {
		return notAvailable
	}
	return value.Decimal.StringFixed(1) + "%"
}

// FormatPrice formats a closing price.
func FormatPrice(price decimal.NullDecimal) string {
	if !price.Valid {
		return "-"
	}
	return price.Decimal.StringFixed(2)
}

// FormatDate formats a trading date; the zero time renders as "-".
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02")
}

// FormatDateTime formats a timestamp in local time.
func FormatDateTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

// FormatDuration formats a duration in human-readable form.
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	} else if d < 24*time.Hour {
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%dd %dh", days, hours)
}

// TruncateString truncates a string to max length with ellipsis.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
