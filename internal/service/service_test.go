package service

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

	"earnings-tracker/internal/analysis"
	apperrors "earnings-tracker/internal/errors"
	"earnings-tracker/internal/models"
	"earnings-tracker/internal/provider"
	"earnings-tracker/internal/resilience"
	"earnings-tracker/internal/store"
)

func mustDate(s string) time.Time {
	d, err := models.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// fakeProvider serves canned data per symbol and counts calls.
type fakeProvider struct {
	mu       sync.Mutex
	events   map[string][]models.EarningsEvent
	bars     map[string][]models.DailyPriceBar
	errs     map[string]error
	stale    bool
	calls    map[string]int
	onFetch  func(symbol string)
	statusOK bool
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		events:   make(map[string][]models.EarningsEvent),
		bars:     make(map[string][]models.DailyPriceBar),
		errs:     make(map[string]error),
		calls:    make(map[string]int),
		statusOK: true,
	}
}

func (f *fakeProvider) fetch(symbol string) error {
	f.mu.Lock()
	f.calls[symbol]++
	err := f.errs[symbol]
	hook := f.onFetch
	f.mu.Unlock()
	if hook != nil {
		hook(symbol)
	}
	return err
}

func (f *fakeProvider) Earnings(_ context.Context, symbol string) (*provider.EarningsResult, error) {
	if err := f.fetch(symbol); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return &provider.EarningsResult{Events: f.events[symbol], FetchedAt: time.Now(), Stale: f.stale}, nil
}

func (f *fakeProvider) DailySeries(_ context.Context, symbol string) (*provider.SeriesResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &provider.SeriesResult{Bars: f.bars[symbol], FetchedAt: time.Now(), Stale: f.stale}, nil
}

func (f *fakeProvider) Overview(_ context.Context, symbol string) (*models.Company, error) {
	return &models.Company{Symbol: symbol, Name: symbol + " Holdings", Exchange: models.NYSE, Sector: "Industrials"}, nil
}

func (f *fakeProvider) Status(context.Context) error {
	if f.statusOK {
		return nil
	}
	return apperrors.ErrProvider
}

func (f *fakeProvider) callCount(symbol string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[symbol]
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func newTestService(t *testing.T, st store.DataStore, opts ...Option) *Service {
	t.Helper()
	cfg := DefaultConfig()
	cfg.SymbolRetryWait = time.Millisecond
	noSleep := WithSleep(func(ctx context.Context, _ time.Duration) error { return ctx.Err() })
	closed := func(time.Time) bool { return false }
	svc := New(st, cfg, append([]Option{noSleep, WithClock(time.Now, closed)}, opts...)...)
	t.Cleanup(svc.Close)
	return svc
}

func bar(symbol, date string, open, closePrice float64) models.DailyPriceBar {
	return models.DailyPriceBar{
		Symbol: symbol,
		Date:   mustDate(date),
		Open:   decimal.NewFromFloat(open),
		Close:  decimal.NewFromFloat(closePrice),
	}
}

func event(symbol, date string, timing models.Timing) models.EarningsEvent {
	return models.EarningsEvent{Symbol: symbol, Date: mustDate(date), Timing: timing}
}

func seedXYZ(p *fakeProvider) {
	p.events["XYZ"] = []models.EarningsEvent{
		event("XYZ", "2023-08-09", models.TimingAMC),
		event("XYZ", "2023-05-10", models.TimingBMO),
	}
	p.bars["XYZ"] = []models.DailyPriceBar{
		bar("XYZ", "2023-05-09", 99, 100),
		bar("XYZ", "2023-05-10", 99.5, 98),
		bar("XYZ", "2023-05-11", 98.5, 99),
		bar("XYZ", "2023-08-09", 97, 98),
		bar("XYZ", "2023-08-10", 100, 101),
	}
}

func TestSyncStoresDataAndRespectsFreshness(t *testing.T) {
	st := newTestStore(t)
	p := newFakeProvider()
	seedXYZ(p)
	svc := newTestService(t, st, WithProvider(p))
	ctx := context.Background()

	result, err := svc.Sync(ctx, "xyz", false)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Earnings)
	assert.Equal(t, 5, result.Prices)
	assert.False(t, result.FromCache)

	company, err := st.GetCompany(ctx, "XYZ")
	require.NoError(t, err)
	assert.Equal(t, "XYZ", company.Name)

	again, err := svc.Sync(ctx, "XYZ", false)
	require.NoError(t, err)
	assert.True(t, again.SkippedFresh)
	assert.Equal(t, 1, p.callCount("XYZ"))

	_, err = svc.Sync(ctx, "XYZ", true)
	require.NoError(t, err)
	assert.Equal(t, 2, p.callCount("XYZ"))

	assert.False(t, st.GetLastSync(store.SyncKey(store.SyncTypeProvider, "")).IsZero())
}

func TestSyncResolvesKnownTiming(t *testing.T) {
	st := newTestStore(t)
	p := newFakeProvider()
	p.events["WMT"] = []models.EarningsEvent{event("WMT", "2024-02-20", models.TimingTNS)}
	svc := newTestService(t, st, WithProvider(p))

	_, err := svc.Sync(context.Background(), "WMT", false)
	require.NoError(t, err)

	events, err := st.GetEarnings(context.Background(), "WMT")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.TimingBMO, events[0].Timing)
}

func TestSyncStalePayloadIsNotFresh(t *testing.T) {
	st := newTestStore(t)
	p := newFakeProvider()
	seedXYZ(p)
	p.stale = true
	svc := newTestService(t, st, WithProvider(p))

	result, err := svc.Sync(context.Background(), "XYZ", false)
	require.NoError(t, err)
	assert.True(t, result.FromCache)

	_, err = svc.Sync(context.Background(), "XYZ", false)
	require.NoError(t, err)
	assert.Equal(t, 2, p.callCount("XYZ"))
}

func TestSyncWithoutProvider(t *testing.T) {
	svc := newTestService(t, newTestStore(t))
	_, err := svc.Sync(context.Background(), "XYZ", false)
	assert.ErrorIs(t, err, apperrors.ErrMissingAPIKey)

	_, err = svc.SyncAll(context.Background(), SyncOptions{})
	assert.ErrorIs(t, err, apperrors.ErrMissingAPIKey)
}

func TestAlignedEffectsScenarios(t *testing.T) {
	st := newTestStore(t)
	p := newFakeProvider()
	seedXYZ(p)
	svc := newTestService(t, st, WithProvider(p))
	ctx := context.Background()

	_, err := svc.Sync(ctx, "XYZ", false)
	require.NoError(t, err)

	report, err := svc.AlignedEffects(ctx, "XYZ")
	require.NoError(t, err)
	require.Len(t, report.Effects, 2)

	amc, bmo := report.Effects[0], report.Effects[1]

	assert.Equal(t, models.EffectComplete, bmo.Status)
	assert.Equal(t, "100", bmo.Before.Decimal.String())
	assert.Equal(t, "98", bmo.After.Decimal.String())
	assert.Equal(t, "-2.00", bmo.PercentChange.Decimal.StringFixed(2))

	assert.Equal(t, models.EffectComplete, amc.Status)
	assert.Equal(t, "98", amc.Before.Decimal.String())
	assert.Equal(t, "101", amc.After.Decimal.String())
	assert.Equal(t, "3.06", amc.PercentChange.Decimal.StringFixed(2))

	assert.Equal(t, 2, report.Report.Complete)
	assert.Empty(t, report.Report.Skipped)
}

func TestAlignedEffectsReportsSkipped(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.UpsertEarnings(ctx, "ABC", []models.EarningsEvent{
		event("ABC", "2024-03-01", models.TimingAMC),
		event("ABC", "2023-01-05", models.TimingAMC),
	}))
	require.NoError(t, st.UpsertPrices(ctx, "ABC", []models.DailyPriceBar{
		bar("ABC", "2023-01-05", 10, 10),
		bar("ABC", "2023-01-06", 10, 11),
	}))
	svc := newTestService(t, st)

	report, err := svc.AlignedEffects(ctx, "ABC")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Report.Complete)
	require.Len(t, report.Report.Skipped, 1)
	assert.Equal(t, "2024-03-01", models.FormatDate(report.Report.Skipped[0].Date))
}

func TestAlignedEffectsWithoutEarnings(t *testing.T) {
	svc := newTestService(t, newTestStore(t))
	_, err := svc.AlignedEffects(context.Background(), "NONE")
	assert.ErrorIs(t, err, apperrors.ErrDataNotFound)
}

func TestAggregateStats(t *testing.T) {
	st := newTestStore(t)
	p := newFakeProvider()
	seedXYZ(p)
	svc := newTestService(t, st, WithProvider(p))
	ctx := context.Background()
	_, err := svc.Sync(ctx, "XYZ", false)
	require.NoError(t, err)

	stats, err := svc.AggregateStats(ctx, "XYZ", models.Range{})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.EventsAnalyzed)
	assert.Equal(t, 1, stats.UpMoves)
	assert.Equal(t, 1, stats.DownMoves)
	assert.Equal(t, "50", stats.WinRate.Decimal.String())

	latest, err := svc.AggregateStats(ctx, "XYZ", models.Range{Start: 1, End: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, latest.EventsAnalyzed)
	assert.Equal(t, "100", latest.WinRate.Decimal.String())

	_, err = svc.AggregateStats(ctx, "XYZ", models.Range{Start: 3, End: 1})
	assert.ErrorIs(t, err, apperrors.ErrInputValidation)
}

func seedLeaderboard(t *testing.T, st store.DataStore) {
	t.Helper()
	ctx := context.Background()
	for _, c := range []struct {
		symbol string
		after  float64
	}{{"UPP", 110}, {"DWN", 90}, {"FLT", 100}} {
		require.NoError(t, st.UpsertCompany(ctx, &models.Company{Symbol: c.symbol, Name: c.symbol, Exchange: models.NYSE}))
		require.NoError(t, st.UpsertEarnings(ctx, c.symbol, []models.EarningsEvent{event(c.symbol, "2024-01-10", models.TimingAMC)}))
		require.NoError(t, st.UpsertPrices(ctx, c.symbol, []models.DailyPriceBar{
			bar(c.symbol, "2024-01-10", 100, 100),
			bar(c.symbol, "2024-01-11", c.after, c.after),
		}))
	}
	require.NoError(t, st.UpsertCompany(ctx, &models.Company{Symbol: "EMPTY", Name: "No data", Exchange: models.NYSE}))
}

func TestLeaderboard(t *testing.T) {
	st := newTestStore(t)
	seedLeaderboard(t, st)
	svc := newTestService(t, st)

	entries, err := svc.Leaderboard(context.Background(), models.Range{}, analysis.SortAvgMove)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "UPP", entries[0].Company.Symbol)
	assert.Equal(t, 1, entries[0].Rank)
	assert.Equal(t, "DWN", entries[2].Company.Symbol)

	bySymbol, err := svc.Leaderboard(context.Background(), models.Range{}, analysis.SortSymbol)
	require.NoError(t, err)
	assert.Equal(t, "DWN", bySymbol[0].Company.Symbol)
}

func TestCalculator(t *testing.T) {
	st := newTestStore(t)
	seedLeaderboard(t, st)
	svc := newTestService(t, st)

	results, err := svc.Calculator(context.Background(), decimal.NewFromInt(1000), models.Range{})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "UPP", results[0].Symbol)
	assert.Equal(t, "1100", results[0].TradeValue.Decimal.String())
	assert.Equal(t, "DWN", results[2].Symbol)

	_, err = svc.Calculator(context.Background(), decimal.Zero, models.Range{})
	assert.ErrorIs(t, err, apperrors.ErrInputValidation)
}

func registerCompanies(t *testing.T, st store.DataStore, symbols ...string) {
	t.Helper()
	for _, s := range symbols {
		require.NoError(t, st.UpsertCompany(context.Background(), &models.Company{Symbol: s, Name: s, Exchange: models.NYSE}))
	}
}

func TestSyncAllRecordsFailuresAndContinues(t *testing.T) {
	st := newTestStore(t)
	registerCompanies(t, st, "AAA", "BBB", "CCC")
	p := newFakeProvider()
	p.errs["BBB"] = fmt.Errorf("%w: HTTP 500", apperrors.ErrProvider)
	svc := newTestService(t, st, WithProvider(p))

	run, err := svc.SyncAll(context.Background(), SyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, models.SyncCompleted, run.Status)
	assert.Equal(t, 3, run.Processed)
	assert.Equal(t, 2, run.Succeeded)
	require.Len(t, run.Failures, 1)
	assert.Equal(t, "BBB", run.Failures[0].Symbol)
	assert.Equal(t, 3, run.Failures[0].Attempts)
	assert.Equal(t, 3, p.callCount("BBB"))

	stored, err := st.GetSyncRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncCompleted, stored.Status)
	require.Len(t, stored.Failures, 1)
}

func TestSyncAllRetriesOnlyTransientErrors(t *testing.T) {
	st := newTestStore(t)
	registerCompanies(t, st, "AAA", "BBB", "CCC")
	p := newFakeProvider()
	p.errs["AAA"] = fmt.Errorf("%w: AAA", apperrors.ErrSymbolNotFound)
	p.errs["BBB"] = apperrors.NewProviderError("EARNINGS", "BBB", 4, "rate-limit marker persisted", apperrors.ErrRateLimited)
	p.errs["CCC"] = fmt.Errorf("%w: disk I/O", apperrors.ErrDatabaseError)
	svc := newTestService(t, st, WithProvider(p))

	run, err := svc.SyncAll(context.Background(), SyncOptions{})
	require.NoError(t, err)
	require.Len(t, run.Failures, 3)

	attempts := map[string]int{}
	for _, f := range run.Failures {
		attempts[f.Symbol] = f.Attempts
	}
	assert.Equal(t, map[string]int{"AAA": 1, "BBB": 1, "CCC": 3}, attempts)
	assert.Equal(t, 1, p.callCount("AAA"))
	assert.Equal(t, 1, p.callCount("BBB"))
	assert.Equal(t, 3, p.callCount("CCC"))
}

func TestSyncAllResumesAfterInterruption(t *testing.T) {
	st := newTestStore(t)
	registerCompanies(t, st, "AAA", "BBB", "CCC", "DDD")
	p := newFakeProvider()
	svc := newTestService(t, st, WithProvider(p))

	ctx, cancel := context.WithCancel(context.Background())
	first, err := svc.SyncAll(ctx, SyncOptions{Progress: func(run *models.SyncRun, _ models.SymbolSyncResult) {
		if run.Processed == 2 {
			cancel()
		}
	}})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, models.SyncAborted, first.Status)
	assert.Equal(t, "BBB", first.LastSymbol)

	resumed, err := svc.SyncAll(context.Background(), SyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, first.ID, resumed.ID)
	assert.Equal(t, models.SyncCompleted, resumed.Status)
	assert.Equal(t, 4, resumed.Processed)
	assert.Equal(t, 4, resumed.Succeeded)
	for _, s := range []string{"AAA", "BBB", "CCC", "DDD"} {
		assert.Equal(t, 1, p.callCount(s), s)
	}

	restarted, err := svc.SyncAll(context.Background(), SyncOptions{Restart: true, Force: true})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, restarted.ID)
	assert.Equal(t, 2, p.callCount("AAA"))
}

func TestSyncAllStopsWhenQuotaOpens(t *testing.T) {
	st := newTestStore(t)
	registerCompanies(t, st, "AAA", "BBB", "CCC")
	now := time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC)
	breaker := resilience.NewCircuitBreaker(provider.ServiceName, resilience.QuotaCircuitConfig(time.Hour)).
		WithClock(func() time.Time { return now })
	quotaErr := fmt.Errorf("%w: quota", apperrors.ErrRateLimited)
	p := newFakeProvider()
	p.errs["BBB"] = quotaErr
	p.onFetch = func(symbol string) {
		if symbol == "BBB" {
			breaker.Record(quotaErr)
		}
	}
	svc := newTestService(t, st, WithProvider(p), WithQuotaCircuit(breaker))

	run, err := svc.SyncAll(context.Background(), SyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, models.SyncAborted, run.Status)
	assert.Equal(t, 1, run.Processed)
	assert.Empty(t, run.Failures)
	assert.Equal(t, 1, p.callCount("BBB"))
	assert.Zero(t, p.callCount("CCC"))

	now = now.Add(time.Hour)
	delete(p.errs, "BBB")
	resumed, err := svc.SyncAll(context.Background(), SyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, run.ID, resumed.ID)
	assert.Equal(t, models.SyncCompleted, resumed.Status)
	assert.Equal(t, 1, p.callCount("CCC"))
}

func TestSyncAllExplicitSymbols(t *testing.T) {
	st := newTestStore(t)
	p := newFakeProvider()
	svc := newTestService(t, st, WithProvider(p))

	run, err := svc.SyncAll(context.Background(), SyncOptions{Symbols: []string{"aaa", "AAA", "bbb"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"AAA", "BBB"}, run.Symbols)

	_, err = svc.SyncAll(context.Background(), SyncOptions{Symbols: []string{"not-valid"}})
	assert.ErrorIs(t, err, apperrors.ErrInputValidation)
}

func TestStatus(t *testing.T) {
	st := newTestStore(t)
	p := newFakeProvider()
	seedXYZ(p)
	breaker := resilience.NewCircuitBreaker(provider.ServiceName, resilience.QuotaCircuitConfig(time.Hour))
	svc := newTestService(t, st, WithProvider(p), WithQuotaCircuit(breaker))
	ctx := context.Background()

	registerCompanies(t, st, "NODATA")
	_, err := svc.Sync(ctx, "XYZ", false)
	require.NoError(t, err)

	status, err := svc.Status(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 2, status.Counts.Companies)
	assert.Equal(t, 2, status.Counts.Earnings)
	assert.Equal(t, 5, status.Counts.Prices)
	assert.Equal(t, "CLOSED", status.QuotaCircuit)
	assert.False(t, status.LastProviderAt.IsZero())
	assert.Nil(t, status.ProviderHealthy)
	assert.NotEmpty(t, status.Issues)

	p.statusOK = false
	checked, err := svc.Status(ctx, true)
	require.NoError(t, err)
	require.NotNil(t, checked.ProviderHealthy)
	assert.False(t, *checked.ProviderHealthy)
}

func TestHealthChecker(t *testing.T) {
	breaker := resilience.NewCircuitBreaker(provider.ServiceName, resilience.QuotaCircuitConfig(time.Hour))
	svc := newTestService(t, newTestStore(t), WithQuotaCircuit(breaker))

	health := svc.HealthChecker(time.Second).Check(context.Background())
	assert.Equal(t, resilience.HealthStatusHealthy, health.Status)
	assert.Len(t, health.Components, 2)
}

func TestCompanies(t *testing.T) {
	st := newTestStore(t)
	p := newFakeProvider()
	svc := newTestService(t, st, WithProvider(p))
	ctx := context.Background()

	n, err := svc.Seed(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(SeedCompanies()), n)

	found, err := svc.SearchCompanies(ctx, "apple")
	require.NoError(t, err)
	require.NotEmpty(t, found)
	assert.Equal(t, "AAPL", found[0].Symbol)

	_, err = svc.SearchCompanies(ctx, "  ")
	assert.ErrorIs(t, err, apperrors.ErrInputValidation)

	added, err := svc.AddCompany(ctx, "zzz", "", false)
	require.NoError(t, err)
	assert.Equal(t, "ZZZ Holdings", added.Name)
	assert.Equal(t, models.NYSE, added.Exchange)

	named, err := svc.AddCompany(ctx, "yyy", "Yyy Inc.", true)
	require.NoError(t, err)
	assert.True(t, named.IsSP500)

	_, err = svc.AddCompany(ctx, "TOOLONGX", "", false)
	assert.ErrorIs(t, err, apperrors.ErrInputValidation)

	require.NoError(t, svc.RemoveCompany(ctx, "ZZZ"))
	assert.ErrorIs(t, svc.RemoveCompany(ctx, "ZZZ"), apperrors.ErrSymbolNotFound)
}

func TestValidateSymbol(t *testing.T) {
	for _, ok := range []string{"A", "aapl", "BRK.B", "GOOGL"} {
		_, err := ValidateSymbol(ok)
		assert.NoError(t, err, ok)
	}
	for _, bad := range []string{"", "TOOLONG", "AB1", "A-B", "A B"} {
		_, err := ValidateSymbol(bad)
		assert.ErrorIs(t, err, apperrors.ErrInputValidation, bad)
	}
}
