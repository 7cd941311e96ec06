package store

import (
	"fmt"
	"time"

	"earnings-tracker/internal/models"
	"earnings-tracker/pkg/utils"
)

// SyncDataType represents the type of data being synced.
type SyncDataType string

const (
	SyncTypeEarnings SyncDataType = "earnings"
	SyncTypePrices   SyncDataType = "prices"
	SyncTypeProvider SyncDataType = "provider"
)

// SyncKey is the sync_status key of one data type for one symbol.
func SyncKey(dataType SyncDataType, symbol string) string {
	if symbol == "" {
		return string(dataType)
	}
	return string(dataType) + ":" + models.NormalizeSymbol(symbol)
}

// DataFreshness represents the freshness of stored data.
type DataFreshness struct {
	DataType    SyncDataType
	Symbol      string
	LastUpdated time.Time
	IsFresh     bool
	Age         time.Duration
}

// FreshnessConfig holds the staleness thresholds.
type FreshnessConfig struct {
	// StaleThresholds defines how old data can be before it's considered stale
	StaleThresholds map[SyncDataType]time.Duration
	// MarketHoursThreshold replaces the price threshold while the US session is open
	MarketHoursThreshold time.Duration
}

// DefaultFreshnessConfig returns default freshness configuration.
func DefaultFreshnessConfig() FreshnessConfig {
	return FreshnessConfig{
		StaleThresholds: map[SyncDataType]time.Duration{
			SyncTypeEarnings: 24 * time.Hour,
			SyncTypePrices:   24 * time.Hour,
		},
		MarketHoursThreshold: 15 * time.Minute,
	}
}

// FreshnessPolicy decides whether stored data needs a provider fetch.
type FreshnessPolicy struct {
	store      DataStore
	config     FreshnessConfig
	now        func() time.Time
	marketOpen func(time.Time) bool
}

// NewFreshnessPolicy creates a policy over store's sync timestamps.
func NewFreshnessPolicy(store DataStore, config FreshnessConfig) *FreshnessPolicy {
	return &FreshnessPolicy{
		store:      store,
		config:     config,
		now:        time.Now,
		marketOpen: utils.IsMarketOpenAt,
	}
}

// WithClock overrides the clock and the market-hours check.
func (p *FreshnessPolicy) WithClock(now func() time.Time, marketOpen func(time.Time) bool) *FreshnessPolicy {
	p.now = now
	if marketOpen != nil {
		p.marketOpen = marketOpen
	}
	return p
}

// Threshold returns the staleness limit for dataType at the current time.
func (p *FreshnessPolicy) Threshold(dataType SyncDataType) time.Duration {
	threshold := p.config.StaleThresholds[dataType]
	if threshold == 0 {
		threshold = 24 * time.Hour
	}
	if dataType == SyncTypePrices && p.config.MarketHoursThreshold > 0 && p.marketOpen(p.now()) {
		if p.config.MarketHoursThreshold < threshold {
			threshold = p.config.MarketHoursThreshold
		}
	}
	return threshold
}

// Check returns the freshness of one data type for symbol.
func (p *FreshnessPolicy) Check(dataType SyncDataType, symbol string) DataFreshness {
	lastSync := p.store.GetLastSync(SyncKey(dataType, symbol))
	f := DataFreshness{
		DataType:    dataType,
		Symbol:      models.NormalizeSymbol(symbol),
		LastUpdated: lastSync,
	}
	if lastSync.IsZero() {
		return f
	}
	f.Age = p.now().Sub(lastSync)
	f.IsFresh = f.Age < p.Threshold(dataType)
	return f
}

// IsFresh reports whether both earnings and prices of symbol are fresh.
func (p *FreshnessPolicy) IsFresh(symbol string) bool {
	return p.Check(SyncTypeEarnings, symbol).IsFresh && p.Check(SyncTypePrices, symbol).IsFresh
}

// MarkSynced marks a data type of symbol as synced now.
func (p *FreshnessPolicy) MarkSynced(dataType SyncDataType, symbol string) error {
	if err := p.store.SetLastSync(SyncKey(dataType, symbol), p.now()); err != nil {
		return fmt.Errorf("failed to mark %s as synced: %w", SyncKey(dataType, symbol), err)
	}
	return nil
}
