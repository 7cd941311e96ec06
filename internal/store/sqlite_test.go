package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "earnings-tracker/internal/errors"
	"earnings-tracker/internal/models"
)

func mustDate(s string) time.Time {
	d, err := models.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newTestStore(t *testing.T, opts ...Option) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func dec(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func TestCompanies(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for _, c := range []models.Company{
		{Symbol: "aapl", Name: "Apple Inc.", Exchange: models.NASDAQ, IsSP500: true},
		{Symbol: "MSFT", Name: "Microsoft Corporation", Exchange: models.NASDAQ, IsSP500: true},
		{Symbol: "APD", Name: "Air Products and Chemicals", Exchange: models.NYSE},
		{Symbol: "PAPA", Name: "Papa Holdings"},
	} {
		c := c
		require.NoError(t, store.UpsertCompany(ctx, &c))
	}

	c, err := store.GetCompany(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "Apple Inc.", c.Name)
	assert.True(t, c.IsSP500)
	assert.Equal(t, models.NASDAQ, c.Exchange)

	_, err = store.GetCompany(ctx, "NOPE")
	assert.ErrorIs(t, err, apperrors.ErrSymbolNotFound)

	all, err := store.ListCompanies(ctx, CompanyFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.Equal(t, "AAPL", all[0].Symbol)

	sp := true
	sp500, err := store.ListCompanies(ctx, CompanyFilter{SP500: &sp})
	require.NoError(t, err)
	assert.Len(t, sp500, 2)

	nyse, err := store.ListCompanies(ctx, CompanyFilter{Exchange: models.NYSE})
	require.NoError(t, err)
	require.Len(t, nyse, 1)
	assert.Equal(t, "APD", nyse[0].Symbol)

	// rename keeps one row
	renamed := models.Company{Symbol: "AAPL", Name: "Apple", Exchange: models.NASDAQ}
	require.NoError(t, store.UpsertCompany(ctx, &renamed))
	c, err = store.GetCompany(ctx, "aapl")
	require.NoError(t, err)
	assert.Equal(t, "Apple", c.Name)
	assert.False(t, c.IsSP500)
}

func TestSearchCompanies(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	for _, c := range []models.Company{
		{Symbol: "AP", Name: "Ampco"},
		{Symbol: "APD", Name: "Air Products"},
		{Symbol: "AAPL", Name: "Apple Inc."},
		{Symbol: "PAPA", Name: "Papa Holdings"},
		{Symbol: "XOM", Name: "Exxon 100% Mobil"},
	} {
		c := c
		require.NoError(t, store.UpsertCompany(ctx, &c))
	}

	got, err := store.SearchCompanies(ctx, "ap", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"AP", "APD", "AAPL", "PAPA"}, symbolsOf(got))

	got, err = store.SearchCompanies(ctx, "apple", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL"}, symbolsOf(got))

	got, err = store.SearchCompanies(ctx, "ap", 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = store.SearchCompanies(ctx, "%", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"XOM"}, symbolsOf(got))

	got, err = store.SearchCompanies(ctx, "  ", 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func symbolsOf(companies []models.Company) []string {
	out := make([]string, len(companies))
	for i, c := range companies {
		out[i] = c.Symbol
	}
	return out
}

func TestUpsertEarningsMerges(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	date := mustDate("2024-05-02")

	require.NoError(t, store.UpsertEarnings(ctx, "xyz", []models.EarningsEvent{{
		Date:         date,
		Timing:       models.TimingAMC,
		EstimatedEPS: dec("1.50"),
	}}))

	// a later payload without timing and with the reported figure
	require.NoError(t, store.UpsertEarnings(ctx, "XYZ", []models.EarningsEvent{{
		Date:        date,
		Timing:      models.TimingTNS,
		ReportedEPS: dec("1.62"),
	}}))

	events, err := store.GetEarnings(ctx, "XYZ")
	require.NoError(t, err)
	require.Len(t, events, 1)
	e := events[0]
	assert.Equal(t, "XYZ", e.Symbol)
	assert.Equal(t, models.TimingAMC, e.Timing)
	assert.Equal(t, "1.5", e.EstimatedEPS.Decimal.String())
	assert.Equal(t, "1.62", e.ReportedEPS.Decimal.String())
	assert.False(t, e.Surprise.Valid)
	assert.True(t, date.Equal(e.Date))
}

func TestUpsertEarningsOrderAndUpdatedAt(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	store := newTestStore(t, WithClock(func() time.Time { return clock }))

	events := []models.EarningsEvent{
		{Date: mustDate("2023-08-01"), Timing: models.TimingBMO},
		{Date: mustDate("2024-02-01"), Timing: models.TimingBMO},
		{Date: mustDate("2023-11-01"), Timing: models.TimingBMO},
	}
	require.NoError(t, store.UpsertEarnings(ctx, "XYZ", events))

	clock = clock.Add(time.Hour)
	require.NoError(t, store.UpsertEarnings(ctx, "XYZ", events))

	got, err := store.GetEarnings(ctx, "XYZ")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "2024-02-01", models.FormatDate(got[0].Date))
	assert.Equal(t, "2023-08-01", models.FormatDate(got[2].Date))
	for _, e := range got {
		assert.True(t, e.UpdatedAt.Equal(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)), "unchanged rows keep updated_at")
	}
}

func TestUpsertEarningsRequiresDate(t *testing.T) {
	store := newTestStore(t)
	err := store.UpsertEarnings(context.Background(), "XYZ", []models.EarningsEvent{{Timing: models.TimingAMC}})
	assert.ErrorIs(t, err, apperrors.ErrInputValidation)
}

func TestPricesRangeAndCache(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	bars := []models.DailyPriceBar{
		{Date: mustDate("2024-05-03"), Open: decimal.RequireFromString("101"), Close: decimal.RequireFromString("103.06")},
		{Date: mustDate("2024-05-01"), Open: decimal.RequireFromString("99"), Close: decimal.RequireFromString("98")},
		{Date: mustDate("2024-05-02"), Open: decimal.RequireFromString("98.5"), Close: decimal.RequireFromString("100")},
	}
	require.NoError(t, store.UpsertPrices(ctx, "XYZ", bars))

	all, err := store.GetPrices(ctx, "XYZ", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "2024-05-01", models.FormatDate(all[0].Date))
	assert.Equal(t, "103.06", all[2].Close.String())

	window, err := store.GetPrices(ctx, "XYZ", mustDate("2024-05-02"), mustDate("2024-05-02"))
	require.NoError(t, err)
	require.Len(t, window, 1)

	series, err := store.GetPriceSeries(ctx, "XYZ")
	require.NoError(t, err)
	require.Len(t, series, 3)

	// callers cannot corrupt the cache
	series[0].Close = decimal.Zero
	again, err := store.GetPriceSeries(ctx, "XYZ")
	require.NoError(t, err)
	assert.Equal(t, "98", again[0].Close.String())

	// upsert invalidates the cached series
	require.NoError(t, store.UpsertPrices(ctx, "XYZ", []models.DailyPriceBar{
		{Date: mustDate("2024-05-01"), Open: decimal.RequireFromString("99"), Close: decimal.RequireFromString("97.5")},
		{Date: mustDate("2024-05-06"), Open: decimal.RequireFromString("104"), Close: decimal.RequireFromString("105")},
	}))
	again, err = store.GetPriceSeries(ctx, "XYZ")
	require.NoError(t, err)
	require.Len(t, again, 4)
	assert.Equal(t, "97.5", again[0].Close.String())
}

func TestConcurrentUpserts(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	date := mustDate("2024-05-02")

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			symbol := fmt.Sprintf("S%d", i%4)
			errs <- store.UpsertEarnings(ctx, symbol, []models.EarningsEvent{{
				Date:        date,
				ReportedEPS: dec(fmt.Sprintf("%d.00", i)),
			}})
		}(i)
		go func(i int) {
			defer wg.Done()
			symbol := fmt.Sprintf("S%d", i%4)
			errs <- store.UpsertPrices(ctx, symbol, []models.DailyPriceBar{{
				Date: date, Open: decimal.NewFromInt(int64(i)), Close: decimal.NewFromInt(int64(i)),
			}})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	counts, err := store.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, counts.Earnings)
	assert.Equal(t, 4, counts.Prices)
}

func TestPayloadCache(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, _, err := store.LoadPayload(ctx, "EARNINGS:XYZ")
	assert.ErrorIs(t, err, apperrors.ErrDataNotFound)

	require.NoError(t, store.SavePayload(ctx, "EARNINGS:XYZ", []byte(`{"a":1}`)))
	require.NoError(t, store.SavePayload(ctx, "EARNINGS:XYZ", []byte(`{"a":2}`)))

	body, fetchedAt, err := store.LoadPayload(ctx, "EARNINGS:XYZ")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":2}`, string(body))
	assert.False(t, fetchedAt.IsZero())
}

func TestSyncRuns(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	latest, err := store.GetLatestSyncRun(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest)

	run := &models.SyncRun{
		ID:      "run-1",
		Status:  models.SyncRunning,
		Total:   3,
		Symbols: []string{"AAA", "BBB", "CCC"},
	}
	require.NoError(t, store.SaveSyncRun(ctx, run))

	run.Processed = 2
	run.Succeeded = 1
	run.LastSymbol = "BBB"
	require.NoError(t, store.SaveSyncRun(ctx, run))
	require.NoError(t, store.RecordSyncFailure(ctx, run.ID, models.SyncFailure{Symbol: "bbb", Error: "timeout", Attempts: 3}))

	got, err := store.GetSyncRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.SyncRunning, got.Status)
	assert.Equal(t, 2, got.Processed)
	assert.Equal(t, "BBB", got.LastSymbol)
	assert.Equal(t, []string{"AAA", "BBB", "CCC"}, got.Symbols)
	assert.True(t, got.FinishedAt.IsZero())
	require.Len(t, got.Failures, 1)
	assert.Equal(t, "BBB", got.Failures[0].Symbol)
	assert.Equal(t, 3, got.Failures[0].Attempts)

	run.Status = models.SyncCompleted
	run.FinishedAt = time.Now()
	require.NoError(t, store.SaveSyncRun(ctx, run))

	latest, err = store.GetLatestSyncRun(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, models.SyncCompleted, latest.Status)
	assert.False(t, latest.FinishedAt.IsZero())

	_, err = store.GetSyncRun(ctx, "missing")
	assert.ErrorIs(t, err, apperrors.ErrDataNotFound)
}

func TestLastSync(t *testing.T) {
	store := newTestStore(t)
	key := SyncKey(SyncTypeEarnings, "xyz")
	assert.Equal(t, "earnings:XYZ", key)
	assert.True(t, store.GetLastSync(key).IsZero())

	at := time.Date(2024, 5, 2, 15, 0, 0, 0, time.UTC)
	require.NoError(t, store.SetLastSync(key, at))
	assert.True(t, at.Equal(store.GetLastSync(key)))
}

func TestDeleteCompany(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	date := mustDate("2024-05-02")

	require.NoError(t, store.UpsertCompany(ctx, &models.Company{Symbol: "XYZ", Name: "XYZ Corp"}))
	require.NoError(t, store.UpsertEarnings(ctx, "XYZ", []models.EarningsEvent{{Date: date}}))
	require.NoError(t, store.UpsertPrices(ctx, "XYZ", []models.DailyPriceBar{{Date: date, Open: decimal.NewFromInt(1), Close: decimal.NewFromInt(1)}}))
	require.NoError(t, store.SetLastSync(SyncKey(SyncTypePrices, "XYZ"), time.Now()))
	_, err := store.GetPriceSeries(ctx, "XYZ")
	require.NoError(t, err)

	require.NoError(t, store.DeleteCompany(ctx, "xyz"))

	counts, err := store.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.DataCounts{}, counts)
	series, err := store.GetPriceSeries(ctx, "XYZ")
	require.NoError(t, err)
	assert.Empty(t, series)
	assert.True(t, store.GetLastSync(SyncKey(SyncTypePrices, "XYZ")).IsZero())

	assert.ErrorIs(t, store.DeleteCompany(ctx, "XYZ"), apperrors.ErrSymbolNotFound)
}

func TestConsistencyIssues(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for _, s := range []string{"AAA", "BBB", "CCC"} {
		require.NoError(t, store.UpsertCompany(ctx, &models.Company{Symbol: s, Name: s}))
	}
	// AAA: consistent
	require.NoError(t, store.UpsertEarnings(ctx, "AAA", []models.EarningsEvent{{Date: mustDate("2024-05-02")}}))
	require.NoError(t, store.UpsertPrices(ctx, "AAA", []models.DailyPriceBar{{Date: mustDate("2024-05-01"), Open: decimal.NewFromInt(1), Close: decimal.NewFromInt(1)}}))
	// BBB: prices far away from its two events
	require.NoError(t, store.UpsertEarnings(ctx, "BBB", []models.EarningsEvent{
		{Date: mustDate("2020-05-02")},
		{Date: mustDate("2020-08-02")},
	}))
	require.NoError(t, store.UpsertPrices(ctx, "BBB", []models.DailyPriceBar{{Date: mustDate("2024-05-01"), Open: decimal.NewFromInt(1), Close: decimal.NewFromInt(1)}}))
	// CCC: nothing stored

	issues, err := store.ConsistencyIssues(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []models.ConsistencyIssue{
		{Symbol: "CCC", Issue: IssueNoEarnings},
		{Symbol: "CCC", Issue: IssueNoPrices},
		{Symbol: "BBB", Issue: IssueUnpricedEvent, Count: 2},
	}, issues)

	counts, err := store.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.DataCounts{Companies: 3, Earnings: 3, Prices: 2}, counts)
}
