package alignment

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"earnings-tracker/internal/calendar"
	"earnings-tracker/internal/models"
)

func mustDate(s string) time.Time {
	d, err := models.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

type bar struct {
	date        string
	open, close string
}

func series(bs ...bar) *calendar.Series {
	out := make([]models.DailyPriceBar, 0, len(bs))
	for _, b := range bs {
		open := b.open
		if open == "" {
			open = b.close
		}
		out = append(out, models.DailyPriceBar{
			Symbol: "XYZ",
			Date:   mustDate(b.date),
			Open:   decimal.RequireFromString(open),
			Close:  decimal.RequireFromString(b.close),
		})
	}
	return calendar.NewSeries(out)
}

func event(date string, timing models.Timing) models.EarningsEvent {
	return models.EarningsEvent{Symbol: "XYZ", Date: mustDate(date), Timing: timing}
}

func display(d decimal.NullDecimal) string {
	return d.Decimal.StringFixed(2)
}

func TestAlignBMO(t *testing.T) {
	s := series(
		bar{date: "2023-05-09", close: "100"},
		bar{date: "2023-05-10", close: "98"},
		bar{date: "2023-05-11", close: "101"},
	)

	effect := Align(event("2023-05-10", models.TimingBMO), s, DefaultOptions())

	assert.Equal(t, models.EffectComplete, effect.Status)
	assert.Equal(t, "2023-05-09", models.FormatDate(effect.BeforeDate))
	assert.Equal(t, "2023-05-10", models.FormatDate(effect.AfterDate))
	assert.True(t, effect.Before.Decimal.Equal(decimal.NewFromInt(100)))
	assert.True(t, effect.After.Decimal.Equal(decimal.NewFromInt(98)))
	require.True(t, effect.PercentChange.Valid)
	assert.Equal(t, "-2.00", display(effect.PercentChange))
}

func TestAlignAMC(t *testing.T) {
	s := series(
		bar{date: "2023-05-09", close: "100"},
		bar{date: "2023-05-10", close: "98"},
		bar{date: "2023-05-11", close: "101"},
	)

	effect := Align(event("2023-05-10", models.TimingAMC), s, DefaultOptions())

	assert.Equal(t, models.EffectComplete, effect.Status)
	assert.Equal(t, "2023-05-10", models.FormatDate(effect.BeforeDate))
	assert.Equal(t, "2023-05-11", models.FormatDate(effect.AfterDate))
	assert.Equal(t, "3.06", display(effect.PercentChange))
}

func TestAlignTNSDefaultsToAMC(t *testing.T) {
	s := series(
		bar{date: "2023-05-09", close: "100"},
		bar{date: "2023-05-10", close: "98"},
		bar{date: "2023-05-11", close: "101"},
	)

	tns := Align(event("2023-05-10", models.TimingTNS), s, DefaultOptions())
	amc := Align(event("2023-05-10", models.TimingAMC), s, DefaultOptions())
	assert.Equal(t, amc.BeforeDate, tns.BeforeDate)
	assert.Equal(t, amc.AfterDate, tns.AfterDate)
	assert.Equal(t, models.TimingTNS, tns.Timing)

	opts := DefaultOptions()
	opts.UnspecifiedAs = models.TimingBMO
	asBMO := Align(event("2023-05-10", models.TimingTNS), s, opts)
	assert.Equal(t, "-2.00", display(asBMO.PercentChange))

	empty := Align(event("2023-05-10", ""), s, DefaultOptions())
	assert.Equal(t, models.TimingTNS, empty.Timing)
}

func TestAlignAcrossWeekendAndHoliday(t *testing.T) {
	// Friday 2023-05-26 AMC, Monday 2023-05-29 is a holiday.
	s := series(
		bar{date: "2023-05-25", close: "50"},
		bar{date: "2023-05-26", close: "52"},
		bar{date: "2023-05-30", close: "55"},
	)
	effect := Align(event("2023-05-26", models.TimingAMC), s, DefaultOptions())
	assert.Equal(t, "2023-05-26", models.FormatDate(effect.BeforeDate))
	assert.Equal(t, "2023-05-30", models.FormatDate(effect.AfterDate))

	// BMO on the Tuesday after the holiday looks back to Friday.
	effect = Align(event("2023-05-30", models.TimingBMO), s, DefaultOptions())
	assert.Equal(t, "2023-05-26", models.FormatDate(effect.BeforeDate))
	assert.Equal(t, "2023-05-30", models.FormatDate(effect.AfterDate))

	// Announcement on a Saturday: AMC before resolves back to Friday.
	effect = Align(event("2023-05-27", models.TimingAMC), s, DefaultOptions())
	assert.Equal(t, "2023-05-26", models.FormatDate(effect.BeforeDate))
	assert.Equal(t, "2023-05-30", models.FormatDate(effect.AfterDate))
}

func TestAlignLegacyNextOpen(t *testing.T) {
	s := series(
		bar{date: "2023-05-09", close: "100"},
		bar{date: "2023-05-10", open: "95", close: "98"},
	)
	opts := DefaultOptions()
	opts.Convention = LegacyNextOpen

	effect := Align(event("2023-05-10", models.TimingBMO), s, opts)
	assert.True(t, effect.After.Decimal.Equal(decimal.NewFromInt(95)))
	assert.Equal(t, "-5.00", display(effect.PercentChange))
}

func TestAlignPartialAndMissing(t *testing.T) {
	s := series(bar{date: "2023-05-10", close: "98"})

	// after side not yet traded
	effect := Align(event("2023-05-10", models.TimingAMC), s, DefaultOptions())
	assert.Equal(t, models.EffectPartial, effect.Status)
	assert.True(t, effect.Before.Valid)
	assert.False(t, effect.After.Valid)
	assert.False(t, effect.PercentChange.Valid)

	effect = Align(event("2021-01-05", models.TimingAMC), s, DefaultOptions())
	assert.Equal(t, models.EffectMissing, effect.Status)
	assert.False(t, effect.PercentChange.Valid)
}

func TestAlignEmptySeriesDoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		effect := Align(event("2023-05-10", models.TimingBMO), calendar.NewSeries(nil), DefaultOptions())
		assert.Equal(t, models.EffectMissing, effect.Status)
	})
	assert.NotPanics(t, func() {
		effect := Align(event("2023-05-10", models.TimingAMC), nil, DefaultOptions())
		assert.Equal(t, models.EffectMissing, effect.Status)
	})
}

func TestPercentChangeZeroBefore(t *testing.T) {
	s := series(
		bar{date: "2023-05-09", close: "0"},
		bar{date: "2023-05-10", close: "98"},
	)
	effect := Align(event("2023-05-10", models.TimingBMO), s, DefaultOptions())
	assert.Equal(t, models.EffectComplete, effect.Status)
	assert.False(t, effect.PercentChange.Valid)
	assert.False(t, effect.Complete())
}

func TestPercentChange(t *testing.T) {
	tests := []struct {
		name          string
		before, after decimal.NullDecimal
		want          string
		valid         bool
	}{
		{"down", decimal.NewNullDecimal(decimal.NewFromInt(100)), decimal.NewNullDecimal(decimal.NewFromInt(98)), "-2.00", true},
		{"up", decimal.NewNullDecimal(decimal.NewFromInt(98)), decimal.NewNullDecimal(decimal.NewFromInt(101)), "3.06", true},
		{"flat", decimal.NewNullDecimal(decimal.NewFromInt(7)), decimal.NewNullDecimal(decimal.NewFromInt(7)), "0.00", true},
		{"zero before", decimal.NewNullDecimal(decimal.Zero), decimal.NewNullDecimal(decimal.NewFromInt(1)), "", false},
		{"missing after", decimal.NewNullDecimal(decimal.NewFromInt(1)), decimal.NullDecimal{}, "", false},
		{"missing before", decimal.NullDecimal{}, decimal.NewNullDecimal(decimal.NewFromInt(1)), "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PercentChange(tt.before, tt.after)
			require.Equal(t, tt.valid, got.Valid)
			if tt.valid {
				assert.Equal(t, tt.want, display(got))
			}
		})
	}
}

func TestAlignAllNewestFirstWithReport(t *testing.T) {
	s := series(
		bar{date: "2023-02-01", close: "10"},
		bar{date: "2023-02-02", close: "11"},
		bar{date: "2023-05-09", close: "100"},
		bar{date: "2023-05-10", close: "98"},
	)
	events := []models.EarningsEvent{
		event("2023-02-01", models.TimingAMC),
		event("2023-08-10", models.TimingAMC),
		event("2023-05-10", models.TimingBMO),
	}

	effects, report := NewEngine(DefaultOptions()).AlignAll(events, s)
	require.Len(t, effects, 3)
	assert.Equal(t, "2023-08-10", models.FormatDate(effects[0].Date))
	assert.Equal(t, "2023-05-10", models.FormatDate(effects[1].Date))
	assert.Equal(t, "2023-02-01", models.FormatDate(effects[2].Date))

	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 2, report.Complete)
	assert.Equal(t, 1, report.Partial+report.Missing)
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, "2023-08-10", models.FormatDate(report.Skipped[0].Date))
	assert.NotEmpty(t, report.Skipped[0].Reason)
}

func TestResolveTiming(t *testing.T) {
	assert.Equal(t, models.TimingBMO, ResolveTiming("tgt", models.TimingTNS))
	assert.Equal(t, models.TimingAMC, ResolveTiming("AAPL", models.TimingTNS))
	assert.Equal(t, models.TimingBMO, ResolveTiming("AAPL", models.TimingBMO))
	assert.Equal(t, models.TimingTNS, ResolveTiming("ZZZZ", models.TimingTNS))
}

// Property: on a gapless weekday series, BMO after is the announcement close
// and AMC before is the announcement close; percent change is never Inf/NaN.
func TestProperty_AnnouncementDayAnchors(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	base := mustDate("2023-01-02") // Monday

	properties.Property("announcement-day close anchors the relevant side", prop.ForAll(
		func(closes []int64, idx int) bool {
			var bars []models.DailyPriceBar
			d := base
			var tradingDays []models.DailyPriceBar
			for _, c := range closes {
				for calendar.IsWeekend(d) {
					d = d.AddDate(0, 0, 1)
				}
				b := models.DailyPriceBar{Date: d, Open: decimal.NewFromInt(c), Close: decimal.NewFromInt(c)}
				bars = append(bars, b)
				tradingDays = append(tradingDays, b)
				d = d.AddDate(0, 0, 1)
			}
			s := calendar.NewSeries(bars)
			ann := tradingDays[idx%len(tradingDays)]

			bmo := Align(models.EarningsEvent{Date: ann.Date, Timing: models.TimingBMO}, s, DefaultOptions())
			amc := Align(models.EarningsEvent{Date: ann.Date, Timing: models.TimingAMC}, s, DefaultOptions())

			if !bmo.After.Valid || !bmo.After.Decimal.Equal(ann.Close) || !bmo.AfterDate.Equal(ann.Date) {
				return false
			}
			if !amc.Before.Valid || !amc.Before.Decimal.Equal(ann.Close) || !amc.BeforeDate.Equal(ann.Date) {
				return false
			}
			for _, e := range []models.AlignedEffect{bmo, amc} {
				if e.PercentChange.Valid && e.Before.Decimal.IsZero() {
					return false
				}
				if e.Status == models.EffectComplete && !e.Before.Decimal.IsZero() && !e.PercentChange.Valid {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(30, gen.Int64Range(0, 500)),
		gen.IntRange(0, 29),
	))

	properties.TestingRun(t)
}
