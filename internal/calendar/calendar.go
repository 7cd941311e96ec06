// Package calendar resolves trading days against a symbol's price history.
//
// There is no holiday table: a weekday missing from the series is treated as
// a non-trading day. Weekends are skipped without consulting the series.
package calendar

import (
	"sort"
	"time"

	"earnings-tracker/internal/models"
)

// Direction is the search direction for the nearest trading day.
type Direction int

const (
	Backward Direction = -1
	Forward  Direction = 1
)

func (d Direction) String() string {
	if d == Backward {
		return "backward"
	}
	return "forward"
}

// Bounds limit how far the resolver searches.
type Bounds struct {
	// MaxAttempts is the number of weekday candidates examined, including the start date.
	MaxAttempts int
	// MaxSpanDays is the furthest calendar distance from the start date.
	MaxSpanDays int
}

// DefaultBounds covers a long weekend plus a holiday.
func DefaultBounds() Bounds {
	return Bounds{MaxAttempts: 5, MaxSpanDays: 7}
}

// Series is an immutable date-indexed view of a symbol's daily bars.
type Series struct {
	byDate map[time.Time]models.DailyPriceBar
	dates  []time.Time
}

// NewSeries indexes bars by calendar date. Later duplicates win.
func NewSeries(bars []models.DailyPriceBar) *Series {
	s := &Series{byDate: make(map[time.Time]models.DailyPriceBar, len(bars))}
	for _, b := range bars {
		d := models.TruncateDate(b.Date)
		b.Date = d
		if _, dup := s.byDate[d]; !dup {
			s.dates = append(s.dates, d)
		}
		s.byDate[d] = b
	}
	sort.Slice(s.dates, func(i, j int) bool { return s.dates[i].Before(s.dates[j]) })
	return s
}

// Bar returns the bar for date, if present.
func (s *Series) Bar(date time.Time) (models.DailyPriceBar, bool) {
	if s == nil {
		return models.DailyPriceBar{}, false
	}
	b, ok := s.byDate[models.TruncateDate(date)]
	return b, ok
}

// Has reports whether the series has a bar on date.
func (s *Series) Has(date time.Time) bool {
	_, ok := s.Bar(date)
	return ok
}

// Len returns the number of distinct dates.
func (s *Series) Len() int {
	if s == nil {
		return 0
	}
	return len(s.dates)
}

// First returns the oldest date in the series.
func (s *Series) First() (time.Time, bool) {
	if s.Len() == 0 {
		return time.Time{}, false
	}
	return s.dates[0], true
}

// Last returns the newest date in the series.
func (s *Series) Last() (time.Time, bool) {
	if s.Len() == 0 {
		return time.Time{}, false
	}
	return s.dates[len(s.dates)-1], true
}

// Bars returns the bars oldest-first.
func (s *Series) Bars() []models.DailyPriceBar {
	out := make([]models.DailyPriceBar, 0, s.Len())
	for _, d := range s.dates {
		out = append(out, s.byDate[d])
	}
	return out
}

// IsWeekend reports whether date falls on Saturday or Sunday.
func IsWeekend(date time.Time) bool {
	wd := date.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// IsTradingDay reports whether date is a weekday with a bar in the series.
func IsTradingDay(date time.Time, series *Series) bool {
	return !IsWeekend(date) && series.Has(date)
}

// Resolver finds nearest trading days within fixed bounds.
type Resolver struct {
	bounds Bounds
}

// NewResolver creates a resolver, falling back to DefaultBounds for non-positive limits.
func NewResolver(bounds Bounds) *Resolver {
	def := DefaultBounds()
	if bounds.MaxAttempts <= 0 {
		bounds.MaxAttempts = def.MaxAttempts
	}
	if bounds.MaxSpanDays <= 0 {
		bounds.MaxSpanDays = def.MaxSpanDays
	}
	return &Resolver{bounds: bounds}
}

// Bounds returns the resolver's search limits.
func (r *Resolver) Bounds() Bounds {
	return r.bounds
}

// NearestTradingDay returns date itself when it is a trading day, otherwise the
// closest trading day in dir. ok is false when the bounds are exhausted.
// The result is never a weekend and always present in series.
func (r *Resolver) NearestTradingDay(date time.Time, dir Direction, series *Series) (time.Time, bool) {
	if series.Len() == 0 {
		return time.Time{}, false
	}
	if dir != Backward {
		dir = Forward
	}

	start := models.TruncateDate(date)
	candidate := start
	attempts := 0

	for {
		if spanDays(start, candidate) > r.bounds.MaxSpanDays {
			return time.Time{}, false
		}
		if !IsWeekend(candidate) {
			if series.Has(candidate) {
				return candidate, true
			}
			attempts++
			if attempts >= r.bounds.MaxAttempts {
				return time.Time{}, false
			}
		}
		candidate = candidate.AddDate(0, 0, int(dir))
	}
}

// NearestTradingDay resolves with DefaultBounds.
func NearestTradingDay(date time.Time, dir Direction, series *Series) (time.Time, bool) {
	return NewResolver(DefaultBounds()).NearestTradingDay(date, dir, series)
}

func spanDays(a, b time.Time) int {
	d := int(b.Sub(a).Hours() / 24)
	if d < 0 {
		return -d
	}
	return d
}
