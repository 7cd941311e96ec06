package utils

import (
	"time"

	"earnings-tracker/internal/models"
)

// NewYorkLocation is the timezone for US markets.
var NewYorkLocation *time.Location

func init() {
	var err error
	NewYorkLocation, err = time.LoadLocation("America/New_York")
	if err != nil {
		// Fallback to EST; loses the DST shift
		NewYorkLocation = time.FixedZone("EST", -5*60*60)
	}
}

// Session boundaries in minutes after midnight, New York time.
const (
	preMarketStart  = 4 * 60
	regularOpen     = 9*60 + 30
	regularClose    = 16 * 60
	afterHoursClose = 20 * 60
)

// MarketStatusAt returns the market status at t.
func MarketStatusAt(t time.Time) models.MarketStatus {
	now := t.In(NewYorkLocation)

	// Check if weekend
	if now.Weekday() == time.Saturday || now.Weekday() == time.Sunday {
		return models.MarketClosed
	}

	timeMinutes := now.Hour()*60 + now.Minute()
	switch {
	case timeMinutes >= regularOpen && timeMinutes < regularClose:
		return models.MarketOpen
	case timeMinutes >= preMarketStart && timeMinutes < regularOpen:
		return models.MarketPreMarket
	case timeMinutes >= regularClose && timeMinutes < afterHoursClose:
		return models.MarketAfterHours
	default:
		return models.MarketClosed
	}
}

// IsMarketOpenAt returns true if the regular session is open at t.
func IsMarketOpenAt(t time.Time) bool {
	return MarketStatusAt(t) == models.MarketOpen
}

// GetNextMarketOpen returns the next regular-session opening time after t.
func GetNextMarketOpen(t time.Time) time.Time {
	now := t.In(NewYorkLocation)

	// Start with today at 9:30
	next := time.Date(now.Year(), now.Month(), now.Day(), 9, 30, 0, 0, NewYorkLocation)

	// If already past today's open, move to tomorrow
	if !now.Before(next) {
		next = next.AddDate(0, 0, 1)
	}

	// Skip weekends
	for next.Weekday() == time.Saturday || next.Weekday() == time.Sunday {
		next = next.AddDate(0, 0, 1)
	}

	return next
}
