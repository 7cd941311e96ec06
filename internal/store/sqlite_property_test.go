package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"

	"earnings-tracker/internal/models"
)

var propertySymbols atomic.Int64

// uniqueSymbol keeps property iterations from sharing rows.
func uniqueSymbol(prefix string) string {
	return fmt.Sprintf("%s%d", prefix, propertySymbols.Add(1))
}

func newPropertyStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "property.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// Property: upserting the same earnings twice leaves the stored rows
// byte-for-byte identical to the first read-back.
func TestProperty_EarningsUpsertIdempotence(t *testing.T) {
	store := newPropertyStore(t)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	timingGen := gen.OneConstOf(models.TimingBMO, models.TimingAMC, models.TimingTNS)

	properties.Property("earnings re-upsert is a no-op", prop.ForAll(
		func(count int, offset int, epsCents int64, timing models.Timing, withSurprise bool) bool {
			ctx := context.Background()
			symbol := uniqueSymbol("E")
			events := generateTestEvents(count, offset, epsCents, timing, withSurprise)

			if err := store.UpsertEarnings(ctx, symbol, events); err != nil {
				t.Logf("Failed to upsert earnings: %v", err)
				return false
			}
			first, err := store.GetEarnings(ctx, symbol)
			if err != nil || len(first) != count {
				t.Logf("First read: %d rows, err=%v", len(first), err)
				return false
			}

			if err := store.UpsertEarnings(ctx, symbol, events); err != nil {
				t.Logf("Failed to re-upsert earnings: %v", err)
				return false
			}
			second, err := store.GetEarnings(ctx, symbol)
			if err != nil {
				return false
			}

			a, _ := json.Marshal(first)
			b, _ := json.Marshal(second)
			if !bytes.Equal(a, b) {
				t.Logf("Read-back differs:\n%s\n%s", a, b)
				return false
			}

			for i := 1; i < len(second); i++ {
				if !second[i-1].Date.After(second[i].Date) {
					t.Logf("Not newest-first at %d", i)
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 12),
		gen.IntRange(0, 2000),
		gen.Int64Range(-500, 2500),
		timingGen,
		gen.Bool(),
	))

	properties.TestingRun(t)
}

// Property: price bars round-trip exactly, oldest first, and repeated
// upserts do not duplicate them.
func TestProperty_PriceRoundTrip(t *testing.T) {
	store := newPropertyStore(t)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("prices round-trip through the store", prop.ForAll(
		func(count int, baseCents int64) bool {
			ctx := context.Background()
			symbol := uniqueSymbol("P")
			bars := generateTestBars(count, baseCents)

			for i := 0; i < 2; i++ {
				if err := store.UpsertPrices(ctx, symbol, bars); err != nil {
					t.Logf("Failed to upsert prices: %v", err)
					return false
				}
			}

			got, err := store.GetPriceSeries(ctx, symbol)
			if err != nil || len(got) != len(bars) {
				t.Logf("Read %d bars, want %d, err=%v", len(got), len(bars), err)
				return false
			}
			for i := range bars {
				if !got[i].Date.Equal(bars[i].Date) || !got[i].Open.Equal(bars[i].Open) || !got[i].Close.Equal(bars[i].Close) {
					t.Logf("Bar mismatch at %d: %+v vs %+v", i, got[i], bars[i])
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 40),
		gen.Int64Range(1, 500000),
	))

	properties.TestingRun(t)
}

// generateTestEvents creates quarterly events going back from a base date.
func generateTestEvents(count, offset int, epsCents int64, timing models.Timing, withSurprise bool) []models.EarningsEvent {
	base := time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset)
	events := make([]models.EarningsEvent, count)
	for i := range events {
		date := base.AddDate(0, 3*i, 0)
		reported := decimal.New(epsCents+int64(i), -2)
		e := models.EarningsEvent{
			Date:             date,
			Timing:           timing,
			FiscalDateEnding: date.AddDate(0, 0, -30),
			ReportedEPS:      decimal.NewNullDecimal(reported),
			EstimatedEPS:     decimal.NewNullDecimal(decimal.New(epsCents, -2)),
		}
		if withSurprise {
			e.Surprise = decimal.NewNullDecimal(reported.Sub(e.EstimatedEPS.Decimal))
		}
		events[i] = e
	}
	return events
}

// generateTestBars creates consecutive weekday bars.
func generateTestBars(count int, baseCents int64) []models.DailyPriceBar {
	bars := make([]models.DailyPriceBar, 0, count)
	date := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; len(bars) < count; i++ {
		if date.Weekday() != time.Saturday && date.Weekday() != time.Sunday {
			bars = append(bars, models.DailyPriceBar{
				Date:  date,
				Open:  decimal.New(baseCents+int64(i), -2),
				Close: decimal.New(baseCents+int64(2*i), -2),
			})
		}
		date = date.AddDate(0, 0, 1)
	}
	return bars
}
