// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"earnings-tracker/internal/models"
)

// DataStore defines the interface for data persistence.
type DataStore interface {
	// Companies
	UpsertCompany(ctx context.Context, company *models.Company) error
	GetCompany(ctx context.Context, symbol string) (*models.Company, error)
	ListCompanies(ctx context.Context, filter CompanyFilter) ([]models.Company, error)
	SearchCompanies(ctx context.Context, query string, limit int) ([]models.Company, error)
	DeleteCompany(ctx context.Context, symbol string) error

	// Earnings
	UpsertEarnings(ctx context.Context, symbol string, events []models.EarningsEvent) error
	GetEarnings(ctx context.Context, symbol string) ([]models.EarningsEvent, error)

	// Prices
	UpsertPrices(ctx context.Context, symbol string, bars []models.DailyPriceBar) error
	GetPrices(ctx context.Context, symbol string, from, to time.Time) ([]models.DailyPriceBar, error)
	GetPriceSeries(ctx context.Context, symbol string) ([]models.DailyPriceBar, error)

	PayloadCache

	// Sync bookkeeping
	GetLastSync(key string) time.Time
	SetLastSync(key string, t time.Time) error
	SaveSyncRun(ctx context.Context, run *models.SyncRun) error
	GetSyncRun(ctx context.Context, id string) (*models.SyncRun, error)
	GetLatestSyncRun(ctx context.Context) (*models.SyncRun, error)
	RecordSyncFailure(ctx context.Context, runID string, failure models.SyncFailure) error

	// Diagnostics
	Counts(ctx context.Context) (models.DataCounts, error)
	ConsistencyIssues(ctx context.Context) ([]models.ConsistencyIssue, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}

// PayloadCache keeps the last good raw provider response per request key.
type PayloadCache interface {
	SavePayload(ctx context.Context, key string, body []byte) error
	LoadPayload(ctx context.Context, key string) ([]byte, time.Time, error)
}

// CompanyFilter represents filters for listing companies.
type CompanyFilter struct {
	Exchange models.Exchange
	SP500    *bool
	Limit    int
}
