// Package alignment pairs earnings announcements with the daily closes that
// bracket them.
//
// Rules (close-to-close):
//
//	BMO:      before = last close strictly before the announcement day
//	          after  = close of the announcement day (next trading day if closed)
//	AMC, TNS: before = close of the announcement day (previous trading day if closed)
//	          after  = first close strictly after the announcement day
//
// With the legacy-next-open convention the after side uses the open of the
// resolved bar instead of its close.
package alignment

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"earnings-tracker/internal/calendar"
	"earnings-tracker/internal/models"
)

// Convention selects which price of the after bar is used.
type Convention string

const (
	CloseToClose   Convention = "close-to-close"
	LegacyNextOpen Convention = "legacy-next-open"
)

// Options configure alignment.
type Options struct {
	Convention Convention
	// UnspecifiedAs is the timing applied to TNS events: AMC or BMO.
	UnspecifiedAs models.Timing
	Bounds        calendar.Bounds
}

// DefaultOptions returns close-to-close alignment with TNS treated as AMC.
func DefaultOptions() Options {
	return Options{
		Convention:    CloseToClose,
		UnspecifiedAs: models.TimingAMC,
		Bounds:        calendar.DefaultBounds(),
	}
}

// Engine aligns events using a fixed set of options.
type Engine struct {
	opts     Options
	resolver *calendar.Resolver
}

// NewEngine creates an alignment engine.
func NewEngine(opts Options) *Engine {
	if opts.Convention != LegacyNextOpen {
		opts.Convention = CloseToClose
	}
	if opts.UnspecifiedAs != models.TimingBMO {
		opts.UnspecifiedAs = models.TimingAMC
	}
	return &Engine{
		opts:     opts,
		resolver: calendar.NewResolver(opts.Bounds),
	}
}

// Options returns the engine's effective options.
func (e *Engine) Options() Options {
	return e.opts
}

// EffectiveTiming maps TNS to the configured default.
func (e *Engine) EffectiveTiming(t models.Timing) models.Timing {
	if t.Known() {
		return t
	}
	return e.opts.UnspecifiedAs
}

// Align computes the price reaction to one event. It never panics and never
// fails; unresolved sides are reported through the effect's Status.
func (e *Engine) Align(event models.EarningsEvent, series *calendar.Series) models.AlignedEffect {
	date := models.TruncateDate(event.Date)
	effect := models.AlignedEffect{
		Symbol: event.Symbol,
		Date:   date,
		Timing: event.Timing,
		Status: models.EffectMissing,
	}
	if effect.Timing == "" {
		effect.Timing = models.TimingTNS
	}

	var beforeStart, afterStart time.Time
	switch e.EffectiveTiming(effect.Timing) {
	case models.TimingBMO:
		beforeStart = date.AddDate(0, 0, -1)
		afterStart = date
	default:
		beforeStart = date
		afterStart = date.AddDate(0, 0, 1)
	}

	if d, ok := e.resolver.NearestTradingDay(beforeStart, calendar.Backward, series); ok {
		bar, _ := series.Bar(d)
		effect.BeforeDate = d
		effect.Before = decimal.NewNullDecimal(bar.Close)
	}
	if d, ok := e.resolver.NearestTradingDay(afterStart, calendar.Forward, series); ok {
		bar, _ := series.Bar(d)
		effect.AfterDate = d
		if e.opts.Convention == LegacyNextOpen {
			effect.After = decimal.NewNullDecimal(bar.Open)
		} else {
			effect.After = decimal.NewNullDecimal(bar.Close)
		}
	}

	switch {
	case effect.Before.Valid && effect.After.Valid:
		effect.Status = models.EffectComplete
	case effect.Before.Valid || effect.After.Valid:
		effect.Status = models.EffectPartial
	}
	effect.PercentChange = PercentChange(effect.Before, effect.After)
	return effect
}

// Skipped describes an event that did not align completely.
type Skipped struct {
	Date   time.Time           `json:"date"`
	Status models.EffectStatus `json:"status"`
	Reason string              `json:"reason"`
}

func (s Skipped) MarshalJSON() ([]byte, error) {
	type plain Skipped
	return json.Marshal(struct {
		plain
		Date string `json:"date"`
	}{plain(s), models.FormatDate(s.Date)})
}

// Report summarizes a batch alignment.
type Report struct {
	Total    int       `json:"total"`
	Complete int       `json:"complete"`
	Partial  int       `json:"partial"`
	Missing  int       `json:"missing"`
	ZeroBase int       `json:"zero_base"`
	Skipped  []Skipped `json:"skipped,omitempty"`
}

// AlignAll aligns every event and returns the effects newest-first along with
// a report listing each event that could not be fully resolved.
func (e *Engine) AlignAll(events []models.EarningsEvent, series *calendar.Series) ([]models.AlignedEffect, Report) {
	sorted := make([]models.EarningsEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.After(sorted[j].Date) })

	effects := make([]models.AlignedEffect, 0, len(sorted))
	report := Report{Total: len(sorted)}

	for _, ev := range sorted {
		effect := e.Align(ev, series)
		effects = append(effects, effect)

		switch effect.Status {
		case models.EffectComplete:
			if effect.PercentChange.Valid {
				report.Complete++
				continue
			}
			report.ZeroBase++
			report.Skipped = append(report.Skipped, Skipped{Date: effect.Date, Status: effect.Status, Reason: "before price is zero"})
			continue
		case models.EffectPartial:
			report.Partial++
		default:
			report.Missing++
		}
		report.Skipped = append(report.Skipped, Skipped{
			Date:   effect.Date,
			Status: effect.Status,
			Reason: skipReason(effect, series),
		})
	}

	return effects, report
}

func skipReason(effect models.AlignedEffect, series *calendar.Series) string {
	if series.Len() == 0 {
		return "no price history"
	}
	first, _ := series.First()
	last, _ := series.Last()
	switch {
	case !effect.Before.Valid && !effect.After.Valid:
		return fmt.Sprintf("no trading day near announcement (history %s..%s)", models.FormatDate(first), models.FormatDate(last))
	case !effect.After.Valid:
		if !effect.Date.Before(last) {
			return "no trading day after announcement yet"
		}
		return "no trading day after announcement within bounds"
	default:
		if effect.Date.Before(first) {
			return "announcement predates price history"
		}
		return "no trading day before announcement within bounds"
	}
}

// Align aligns a single event with the given options.
func Align(event models.EarningsEvent, series *calendar.Series, opts Options) models.AlignedEffect {
	return NewEngine(opts).Align(event, series)
}

var hundred = decimal.NewFromInt(100)

// PercentChange returns (after - before) / before * 100. The result is null
// when either side is missing or before is zero.
func PercentChange(before, after decimal.NullDecimal) decimal.NullDecimal {
	if !before.Valid || !after.Valid || before.Decimal.IsZero() {
		return decimal.NullDecimal{}
	}
	change := after.Decimal.Sub(before.Decimal).Div(before.Decimal).Mul(hundred)
	return decimal.NewNullDecimal(change)
}
