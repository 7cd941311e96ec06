// Package models provides domain models for the earnings tracker.
package models

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar-date layout used by the provider, the store and the API.
const DateLayout = "2006-01-02"

// Exchange represents a US stock exchange.
type Exchange string

const (
	NYSE   Exchange = "NYSE"
	NASDAQ Exchange = "NASDAQ"
	AMEX   Exchange = "AMEX"
	OTHER  Exchange = "OTHER"
)

// ParseExchange normalizes an exchange name, mapping unknown values to OTHER.
func ParseExchange(s string) Exchange {
	switch Exchange(strings.ToUpper(strings.TrimSpace(s))) {
	case NYSE:
		return NYSE
	case NASDAQ:
		return NASDAQ
	case AMEX:
		return AMEX
	default:
		return OTHER
	}
}

// MarketStatus represents the current US market status.
type MarketStatus string

const (
	MarketOpen       MarketStatus = "OPEN"
	MarketPreMarket  MarketStatus = "PRE_MARKET"
	MarketAfterHours MarketStatus = "AFTER_HOURS"
	MarketClosed     MarketStatus = "CLOSED"
)

// Company is a tracked ticker.
type Company struct {
	Symbol    string    `json:"symbol"`
	Name      string    `json:"name"`
	Exchange  Exchange  `json:"exchange"`
	Sector    string    `json:"sector,omitempty"`
	Industry  string    `json:"industry,omitempty"`
	IsSP500   bool      `json:"is_sp500"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NormalizeSymbol upper-cases and trims a ticker symbol.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// ParseDate parses a YYYY-MM-DD calendar date as UTC midnight.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// TruncateDate drops the clock part of t, keeping its calendar date in UTC.
func TruncateDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FormatDate renders a calendar date, or an empty string for the zero time.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}
