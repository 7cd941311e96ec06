// Package service orchestrates fetching, storing, aligning and summarizing
// earnings data. The HTTP server and the CLI are thin adapters over it.
package service

import (
	"context"
	"regexp"
	"time"

	"github.com/rs/zerolog"

	"earnings-tracker/internal/alignment"
	"earnings-tracker/internal/calendar"
	"earnings-tracker/internal/config"
	apperrors "earnings-tracker/internal/errors"
	"earnings-tracker/internal/models"
	"earnings-tracker/internal/performance"
	"earnings-tracker/internal/provider"
	"earnings-tracker/internal/resilience"
	"earnings-tracker/internal/store"
)

// MarketData is the provider surface the service needs.
type MarketData interface {
	Earnings(ctx context.Context, symbol string) (*provider.EarningsResult, error)
	DailySeries(ctx context.Context, symbol string) (*provider.SeriesResult, error)
	Overview(ctx context.Context, symbol string) (*models.Company, error)
	Status(ctx context.Context) error
}

// Config holds the service settings derived from the application config.
type Config struct {
	Alignment       alignment.Options
	Freshness       store.FreshnessConfig
	SymbolAttempts  int
	SymbolRetryWait time.Duration
	Workers         int
}

// DefaultConfig returns the settings used when no config file is present.
func DefaultConfig() Config {
	return Config{
		Alignment:       alignment.DefaultOptions(),
		Freshness:       store.DefaultFreshnessConfig(),
		SymbolAttempts:  3,
		SymbolRetryWait: 2 * time.Second,
		Workers:         4,
	}
}

// ConfigFrom maps the application config onto service settings.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		Alignment: alignment.Options{
			Convention:    alignment.Convention(cfg.Alignment.Convention),
			UnspecifiedAs: models.ParseTiming(cfg.Alignment.UnspecifiedAs),
			Bounds: calendar.Bounds{
				MaxAttempts: cfg.Calendar.MaxAttempts,
				MaxSpanDays: cfg.Calendar.MaxSpanDays,
			},
		},
		Freshness: store.FreshnessConfig{
			StaleThresholds: map[store.SyncDataType]time.Duration{
				store.SyncTypeEarnings: cfg.Sync.EarningsStale,
				store.SyncTypePrices:   cfg.Sync.PricesStale,
			},
			MarketHoursThreshold: cfg.Sync.MarketHoursStale,
		},
		SymbolAttempts:  cfg.Sync.SymbolAttempts,
		SymbolRetryWait: cfg.Sync.SymbolRetryWait,
		Workers:         cfg.Server.Workers,
	}
}

// Service is the earnings tracker's application layer.
type Service struct {
	store     store.DataStore
	provider  MarketData
	engine    *alignment.Engine
	freshness *store.FreshnessPolicy
	breaker   *resilience.CircuitBreaker
	monitor   *resilience.ServiceMonitor
	pool      *performance.WorkerPool
	config    Config
	sleep     func(ctx context.Context, d time.Duration) error
	now       func() time.Time
	log       zerolog.Logger
}

// Option configures the Service.
type Option func(*Service)

// WithProvider enables fetching. Without one, only stored data is served.
func WithProvider(p MarketData) Option {
	return func(s *Service) { s.provider = p }
}

// WithQuotaCircuit lets bulk syncs stop once the provider quota is exhausted.
func WithQuotaCircuit(cb *resilience.CircuitBreaker) Option {
	return func(s *Service) { s.breaker = cb }
}

// WithServiceMonitor exposes provider call outcomes in Status.
func WithServiceMonitor(m *resilience.ServiceMonitor) Option {
	return func(s *Service) { s.monitor = m }
}

// WithLogger sets a logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) { s.log = logger }
}

// WithClock overrides the clock used for sync bookkeeping and freshness.
func WithClock(now func() time.Time, marketOpen func(time.Time) bool) Option {
	return func(s *Service) {
		s.now = now
		s.freshness.WithClock(now, marketOpen)
	}
}

// WithSleep replaces the wait between per-symbol retries.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Service) { s.sleep = sleep }
}

// New creates a service over st. Call Close to release the worker pool.
func New(st store.DataStore, cfg Config, opts ...Option) *Service {
	if cfg.SymbolAttempts < 1 {
		cfg.SymbolAttempts = 1
	}

	s := &Service{
		store:     st,
		engine:    alignment.NewEngine(cfg.Alignment),
		freshness: store.NewFreshnessPolicy(st, cfg.Freshness),
		config:    cfg,
		now:       time.Now,
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With().Str("component", "service").Logger()

	s.pool = performance.NewWorkerPool(cfg.Workers)
	s.pool.Start()
	return s
}

// Close stops the worker pool. The store is owned by the caller.
func (s *Service) Close() {
	s.pool.Stop()
}

// Store returns the underlying data store.
func (s *Service) Store() store.DataStore {
	return s.store
}

// Engine returns the alignment engine.
func (s *Service) Engine() *alignment.Engine {
	return s.engine
}

// HasProvider reports whether fetching is configured.
func (s *Service) HasProvider() bool {
	return s.provider != nil
}

var symbolPattern = regexp.MustCompile(`^[A-Za-z.]{1,6}$`)

// ValidateSymbol checks a user-supplied ticker and returns it normalized.
func ValidateSymbol(symbol string) (string, error) {
	if !symbolPattern.MatchString(symbol) {
		return "", apperrors.NewValidationError("symbol", symbol, "must be 1-6 letters or dots")
	}
	return models.NormalizeSymbol(symbol), nil
}

// ValidateRange checks a 1-based inclusive event range. Zero bounds are open.
func ValidateRange(r models.Range) error {
	if r.Start < 0 || r.End < 0 {
		return apperrors.NewValidationError("range", r, "bounds must not be negative")
	}
	if r.Start > 0 && r.End > 0 && r.Start > r.End {
		return apperrors.NewValidationError("range", r, "start must not exceed end")
	}
	return nil
}
