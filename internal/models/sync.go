package models

import "time"

// SyncRunStatus is the lifecycle state of a bulk sync.
type SyncRunStatus string

const (
	SyncRunning   SyncRunStatus = "running"
	SyncCompleted SyncRunStatus = "completed"
	SyncAborted   SyncRunStatus = "aborted"
)

// SyncRun is the persisted progress of a bulk sync, used to resume after interruption.
type SyncRun struct {
	ID         string        `json:"id"`
	Status     SyncRunStatus `json:"status"`
	Total      int           `json:"total"`
	Processed  int           `json:"processed"`
	Succeeded  int           `json:"succeeded"`
	Cached     int           `json:"cached"`
	LastSymbol string        `json:"last_symbol,omitempty"`
	Symbols    []string      `json:"symbols,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
	FinishedAt time.Time     `json:"finished_at,omitempty"`
	Failures   []SyncFailure `json:"failures,omitempty"`
}

// SyncFailure records a symbol that could not be refreshed in a run.
type SyncFailure struct {
	Symbol   string    `json:"symbol"`
	Error    string    `json:"error"`
	Attempts int       `json:"attempts"`
	FailedAt time.Time `json:"failed_at"`
}

// SymbolSyncResult is the outcome of refreshing one symbol.
type SymbolSyncResult struct {
	Symbol       string `json:"symbol"`
	Earnings     int    `json:"earnings"`
	Prices       int    `json:"prices"`
	FromCache    bool   `json:"from_cache"`
	SkippedFresh bool   `json:"skipped_fresh"`
	Error        string `json:"error,omitempty"`
}

// DataCounts are row counts of the persisted data.
type DataCounts struct {
	Companies int `json:"companies"`
	Earnings  int `json:"earnings"`
	Prices    int `json:"prices"`
}

// ConsistencyIssue flags stored data that cannot produce complete effects.
type ConsistencyIssue struct {
	Symbol string `json:"symbol"`
	Issue  string `json:"issue"`
	Count  int    `json:"count,omitempty"`
}

// SystemStatus is the diagnostic snapshot exposed by status endpoints.
type SystemStatus struct {
	Counts          DataCounts         `json:"counts"`
	LastProviderAt  time.Time          `json:"last_provider_call,omitempty"`
	LastSyncRun     *SyncRun           `json:"last_sync_run,omitempty"`
	QuotaCircuit    string             `json:"quota_circuit"`
	MarketStatus    MarketStatus       `json:"market_status"`
	Issues          []ConsistencyIssue `json:"issues,omitempty"`
	ProviderHealthy *bool              `json:"provider_healthy,omitempty"`
}
