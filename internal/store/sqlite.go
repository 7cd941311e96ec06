// Package store provides data persistence implementations.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	apperrors "earnings-tracker/internal/errors"
	"earnings-tracker/internal/models"
)

// SQLiteStore implements DataStore using SQLite.
type SQLiteStore struct {
	db        *sql.DB
	mu        sync.RWMutex
	syncTimes map[string]time.Time
	series    map[string][]models.DailyPriceBar
	locks     *keyedMutex
	policy    MergePolicy
	now       func() time.Time
}

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithMergePolicy replaces the default earnings merge policy.
func WithMergePolicy(p MergePolicy) Option {
	return func(s *SQLiteStore) { s.policy = p }
}

// WithClock overrides the clock used for updated_at columns.
func WithClock(now func() time.Time) Option {
	return func(s *SQLiteStore) { s.now = now }
}

// NewSQLiteStore creates a new SQLite-based data store.
func NewSQLiteStore(dbPath string, opts ...Option) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for concurrent access
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{
		db:        db,
		syncTimes: make(map[string]time.Time),
		series:    make(map[string][]models.DailyPriceBar),
		locks:     newKeyedMutex(),
		policy:    DefaultMergePolicy(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(store)
	}

	if err := store.policy.Validate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("invalid merge policy: %w", err)
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Tracked companies
	CREATE TABLE IF NOT EXISTS companies (
		symbol TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		exchange TEXT NOT NULL DEFAULT 'OTHER',
		sector TEXT,
		industry TEXT,
		is_sp500 INTEGER NOT NULL DEFAULT 0,
		updated_at DATETIME
	);

	-- Quarterly earnings reports; decimals are stored as text to keep them exact
	CREATE TABLE IF NOT EXISTS earnings (
		symbol TEXT NOT NULL,
		date TEXT NOT NULL,
		timing TEXT NOT NULL DEFAULT 'TNS',
		fiscal_date_ending TEXT,
		fiscal_quarter TEXT,
		fiscal_year INTEGER,
		estimated_eps TEXT,
		reported_eps TEXT,
		surprise TEXT,
		surprise_percent TEXT,
		updated_at DATETIME,
		PRIMARY KEY (symbol, date)
	);

	-- Daily open/close bars
	CREATE TABLE IF NOT EXISTS daily_prices (
		symbol TEXT NOT NULL,
		date TEXT NOT NULL,
		open TEXT NOT NULL,
		close TEXT NOT NULL,
		PRIMARY KEY (symbol, date)
	);

	-- Last good raw provider responses
	CREATE TABLE IF NOT EXISTS provider_payloads (
		key TEXT PRIMARY KEY,
		body BLOB NOT NULL,
		fetched_at DATETIME NOT NULL
	);

	-- Sync status table
	CREATE TABLE IF NOT EXISTS sync_status (
		data_type TEXT PRIMARY KEY,
		last_sync DATETIME NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Bulk sync progress
	CREATE TABLE IF NOT EXISTS sync_runs (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		total INTEGER NOT NULL DEFAULT 0,
		processed INTEGER NOT NULL DEFAULT 0,
		succeeded INTEGER NOT NULL DEFAULT 0,
		cached INTEGER NOT NULL DEFAULT 0,
		last_symbol TEXT,
		symbols TEXT,
		started_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		finished_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS sync_failures (
		run_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		error TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		failed_at DATETIME NOT NULL,
		PRIMARY KEY (run_id, symbol),
		FOREIGN KEY (run_id) REFERENCES sync_runs(id)
	);

	-- Indexes
	CREATE INDEX IF NOT EXISTS idx_earnings_date ON earnings(date);
	CREATE INDEX IF NOT EXISTS idx_companies_name ON companies(name);
	CREATE INDEX IF NOT EXISTS idx_sync_runs_started ON sync_runs(started_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ============================================================================
// Companies Methods
// ============================================================================

// UpsertCompany inserts or updates a company keyed by symbol.
func (s *SQLiteStore) UpsertCompany(ctx context.Context, c *models.Company) error {
	symbol := models.NormalizeSymbol(c.Symbol)
	if symbol == "" {
		return apperrors.NewValidationError("symbol", c.Symbol, "symbol is required")
	}
	exchange := c.Exchange
	if exchange == "" {
		exchange = models.OTHER
	}
	updatedAt := s.now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO companies (symbol, name, exchange, sector, industry, is_sp500, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			name = excluded.name,
			exchange = excluded.exchange,
			sector = excluded.sector,
			industry = excluded.industry,
			is_sp500 = excluded.is_sp500,
			updated_at = excluded.updated_at
	`, symbol, c.Name, string(exchange), c.Sector, c.Industry, c.IsSP500, updatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert company: %w", err)
	}

	c.Symbol = symbol
	c.Exchange = exchange
	c.UpdatedAt = updatedAt
	return nil
}

// GetCompany returns one company or ErrSymbolNotFound.
func (s *SQLiteStore) GetCompany(ctx context.Context, symbol string) (*models.Company, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT symbol, name, exchange, sector, industry, is_sp500, updated_at
		FROM companies WHERE symbol = ?
	`, models.NormalizeSymbol(symbol))

	c, err := scanCompany(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrSymbolNotFound, models.NormalizeSymbol(symbol))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get company: %w", err)
	}
	return &c, nil
}

// ListCompanies returns companies ordered by symbol.
func (s *SQLiteStore) ListCompanies(ctx context.Context, filter CompanyFilter) ([]models.Company, error) {
	query := "SELECT symbol, name, exchange, sector, industry, is_sp500, updated_at FROM companies WHERE 1=1"
	args := []interface{}{}

	if filter.Exchange != "" {
		query += " AND exchange = ?"
		args = append(args, string(filter.Exchange))
	}
	if filter.SP500 != nil {
		query += " AND is_sp500 = ?"
		args = append(args, *filter.SP500)
	}

	query += " ORDER BY symbol ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	return s.queryCompanies(ctx, query, args...)
}

// SearchCompanies matches query as a case-insensitive substring of the symbol
// or the name. Exact symbol matches come first, then symbol prefixes.
func (s *SQLiteStore) SearchCompanies(ctx context.Context, query string, limit int) ([]models.Company, error) {
	q := strings.ToUpper(strings.TrimSpace(query))
	if q == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	pattern := "%" + escapeLike(q) + "%"

	return s.queryCompanies(ctx, `
		SELECT symbol, name, exchange, sector, industry, is_sp500, updated_at
		FROM companies
		WHERE symbol LIKE ? ESCAPE '\' OR UPPER(name) LIKE ? ESCAPE '\'
		ORDER BY
			CASE WHEN symbol = ? THEN 0 WHEN symbol LIKE ? ESCAPE '\' THEN 1 ELSE 2 END,
			symbol ASC
		LIMIT ?
	`, pattern, pattern, q, escapeLike(q)+"%", limit)
}

// DeleteCompany removes a company with its earnings, prices and sync marks.
func (s *SQLiteStore) DeleteCompany(ctx context.Context, symbol string) error {
	symbol = models.NormalizeSymbol(symbol)
	unlock := s.locks.Lock(symbol)
	defer unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var affected int64
	for _, q := range []string{
		"DELETE FROM companies WHERE symbol = ?",
		"DELETE FROM earnings WHERE symbol = ?",
		"DELETE FROM daily_prices WHERE symbol = ?",
	} {
		res, err := tx.ExecContext(ctx, q, symbol)
		if err != nil {
			return fmt.Errorf("failed to delete company data: %w", err)
		}
		n, _ := res.RowsAffected()
		affected += n
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM sync_status WHERE data_type LIKE ?", "%:"+symbol); err != nil {
		return fmt.Errorf("failed to delete sync status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.mu.Lock()
	delete(s.series, symbol)
	for key := range s.syncTimes {
		if strings.HasSuffix(key, ":"+symbol) {
			delete(s.syncTimes, key)
		}
	}
	s.mu.Unlock()

	if affected == 0 {
		return fmt.Errorf("%w: %s", apperrors.ErrSymbolNotFound, symbol)
	}
	return nil
}

func (s *SQLiteStore) queryCompanies(ctx context.Context, query string, args ...interface{}) ([]models.Company, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query companies: %w", err)
	}
	defer rows.Close()

	var companies []models.Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan company: %w", err)
		}
		companies = append(companies, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating companies: %w", err)
	}
	return companies, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCompany(row rowScanner) (models.Company, error) {
	var c models.Company
	var exchange string
	var sector, industry sql.NullString
	var updatedAt sql.NullTime
	if err := row.Scan(&c.Symbol, &c.Name, &exchange, &sector, &industry, &c.IsSP500, &updatedAt); err != nil {
		return c, err
	}
	c.Exchange = models.Exchange(exchange)
	c.Sector = sector.String
	c.Industry = industry.String
	if updatedAt.Valid {
		c.UpdatedAt = updatedAt.Time.UTC()
	}
	return c, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// ============================================================================
// Earnings Methods
// ============================================================================

// UpsertEarnings merges events into the stored rows for symbol. Rows the merge
// leaves unchanged are not rewritten, so repeating an upsert is a no-op.
func (s *SQLiteStore) UpsertEarnings(ctx context.Context, symbol string, events []models.EarningsEvent) error {
	if len(events) == 0 {
		return nil
	}
	symbol = models.NormalizeSymbol(symbol)
	unlock := s.locks.Lock(symbol)
	defer unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	existing, err := queryEarnings(ctx, tx, symbol)
	if err != nil {
		return err
	}
	byDate := make(map[string]*models.EarningsEvent, len(existing))
	for i := range existing {
		byDate[models.FormatDate(existing[i].Date)] = &existing[i]
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO earnings (symbol, date, timing, fiscal_date_ending, fiscal_quarter, fiscal_year,
			estimated_eps, reported_eps, surprise, surprise_percent, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, date) DO UPDATE SET
			timing = excluded.timing,
			fiscal_date_ending = excluded.fiscal_date_ending,
			fiscal_quarter = excluded.fiscal_quarter,
			fiscal_year = excluded.fiscal_year,
			estimated_eps = excluded.estimated_eps,
			reported_eps = excluded.reported_eps,
			surprise = excluded.surprise,
			surprise_percent = excluded.surprise_percent,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := s.now().UTC()
	for _, incoming := range events {
		if incoming.Date.IsZero() {
			return apperrors.NewValidationError("date", incoming.Date, "earnings date is required")
		}
		incoming.Symbol = symbol
		incoming.Date = models.TruncateDate(incoming.Date)
		if !incoming.FiscalDateEnding.IsZero() {
			incoming.FiscalDateEnding = models.TruncateDate(incoming.FiscalDateEnding)
		}
		if incoming.Timing == "" {
			incoming.Timing = models.TimingTNS
		}
		key := models.FormatDate(incoming.Date)

		merged, changed := MergeEarnings(byDate[key], incoming, s.policy)
		if !changed {
			continue
		}
		merged.UpdatedAt = now

		_, err := stmt.ExecContext(ctx, symbol, key, string(merged.Timing),
			nullString(models.FormatDate(merged.FiscalDateEnding)), nullString(merged.FiscalQuarter), nullInt(merged.FiscalYear),
			merged.EstimatedEPS, merged.ReportedEPS, merged.Surprise, merged.SurprisePercent, now)
		if err != nil {
			return fmt.Errorf("failed to upsert earnings: %w", err)
		}
		byDate[key] = &merged
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetEarnings returns the stored events for symbol, newest first.
func (s *SQLiteStore) GetEarnings(ctx context.Context, symbol string) ([]models.EarningsEvent, error) {
	return queryEarnings(ctx, s.db, models.NormalizeSymbol(symbol))
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

func queryEarnings(ctx context.Context, q querier, symbol string) ([]models.EarningsEvent, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT date, timing, fiscal_date_ending, fiscal_quarter, fiscal_year,
			estimated_eps, reported_eps, surprise, surprise_percent, updated_at
		FROM earnings
		WHERE symbol = ?
		ORDER BY date DESC
	`, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to query earnings: %w", err)
	}
	defer rows.Close()

	var events []models.EarningsEvent
	for rows.Next() {
		e := models.EarningsEvent{Symbol: symbol}
		var date, timing string
		var fiscalEnd, fiscalQuarter sql.NullString
		var fiscalYear sql.NullInt64
		var updatedAt sql.NullTime

		if err := rows.Scan(&date, &timing, &fiscalEnd, &fiscalQuarter, &fiscalYear,
			&e.EstimatedEPS, &e.ReportedEPS, &e.Surprise, &e.SurprisePercent, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan earnings: %w", err)
		}

		if e.Date, err = models.ParseDate(date); err != nil {
			return nil, fmt.Errorf("corrupt earnings row for %s: %w", symbol, err)
		}
		e.Timing = models.Timing(timing)
		if fiscalEnd.Valid && fiscalEnd.String != "" {
			if e.FiscalDateEnding, err = models.ParseDate(fiscalEnd.String); err != nil {
				return nil, fmt.Errorf("corrupt earnings row for %s: %w", symbol, err)
			}
		}
		e.FiscalQuarter = fiscalQuarter.String
		e.FiscalYear = int(fiscalYear.Int64)
		if updatedAt.Valid {
			e.UpdatedAt = updatedAt.Time.UTC()
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating earnings: %w", err)
	}
	return events, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(n int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(n), Valid: n != 0}
}

// ============================================================================
// Prices Methods
// ============================================================================

// UpsertPrices writes bars keyed by (symbol, date) and drops the cached series.
func (s *SQLiteStore) UpsertPrices(ctx context.Context, symbol string, bars []models.DailyPriceBar) error {
	if len(bars) == 0 {
		return nil
	}
	symbol = models.NormalizeSymbol(symbol)
	unlock := s.locks.Lock(symbol)
	defer unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO daily_prices (symbol, date, open, close)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(symbol, date) DO UPDATE SET
			open = excluded.open,
			close = excluded.close
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		if b.Date.IsZero() {
			return apperrors.NewValidationError("date", b.Date, "price date is required")
		}
		_, err := stmt.ExecContext(ctx, symbol, models.FormatDate(b.Date), b.Open.String(), b.Close.String())
		if err != nil {
			return fmt.Errorf("failed to upsert price: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.mu.Lock()
	delete(s.series, symbol)
	s.mu.Unlock()
	return nil
}

// GetPrices returns bars in [from, to], oldest first. A zero bound is open.
func (s *SQLiteStore) GetPrices(ctx context.Context, symbol string, from, to time.Time) ([]models.DailyPriceBar, error) {
	symbol = models.NormalizeSymbol(symbol)
	lo, hi := "0000-01-01", "9999-12-31"
	if !from.IsZero() {
		lo = models.FormatDate(from)
	}
	if !to.IsZero() {
		hi = models.FormatDate(to)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT date, open, close
		FROM daily_prices
		WHERE symbol = ? AND date >= ? AND date <= ?
		ORDER BY date ASC
	`, symbol, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("failed to query prices: %w", err)
	}
	defer rows.Close()

	var bars []models.DailyPriceBar
	for rows.Next() {
		b := models.DailyPriceBar{Symbol: symbol}
		var date string
		if err := rows.Scan(&date, &b.Open, &b.Close); err != nil {
			return nil, fmt.Errorf("failed to scan price: %w", err)
		}
		if b.Date, err = models.ParseDate(date); err != nil {
			return nil, fmt.Errorf("corrupt price row for %s: %w", symbol, err)
		}
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating prices: %w", err)
	}
	return bars, nil
}

// GetPriceSeries returns the full series for symbol through a read-through cache.
func (s *SQLiteStore) GetPriceSeries(ctx context.Context, symbol string) ([]models.DailyPriceBar, error) {
	symbol = models.NormalizeSymbol(symbol)

	s.mu.RLock()
	cached, ok := s.series[symbol]
	s.mu.RUnlock()
	if ok {
		return copyBars(cached), nil
	}

	unlock := s.locks.Lock(symbol)
	defer unlock()

	s.mu.RLock()
	cached, ok = s.series[symbol]
	s.mu.RUnlock()
	if ok {
		return copyBars(cached), nil
	}

	bars, err := s.GetPrices(ctx, symbol, time.Time{}, time.Time{})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.series[symbol] = bars
	s.mu.Unlock()
	return copyBars(bars), nil
}

func copyBars(bars []models.DailyPriceBar) []models.DailyPriceBar {
	if bars == nil {
		return nil
	}
	out := make([]models.DailyPriceBar, len(bars))
	copy(out, bars)
	return out
}

// ============================================================================
// Provider Payload Methods
// ============================================================================

// SavePayload stores the latest good response body for key.
func (s *SQLiteStore) SavePayload(ctx context.Context, key string, body []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO provider_payloads (key, body, fetched_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET body = excluded.body, fetched_at = excluded.fetched_at
	`, key, body, s.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save payload: %w", err)
	}
	return nil
}

// LoadPayload returns the stored body for key and when it was fetched.
func (s *SQLiteStore) LoadPayload(ctx context.Context, key string) ([]byte, time.Time, error) {
	var body []byte
	var fetchedAt time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT body, fetched_at FROM provider_payloads WHERE key = ?
	`, key).Scan(&body, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, fmt.Errorf("%w: payload %s", apperrors.ErrDataNotFound, key)
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to load payload: %w", err)
	}
	return body, fetchedAt.UTC(), nil
}

// ============================================================================
// Sync Methods
// ============================================================================

// GetLastSync returns the last sync time for a key.
func (s *SQLiteStore) GetLastSync(key string) time.Time {
	s.mu.RLock()
	if t, ok := s.syncTimes[key]; ok {
		s.mu.RUnlock()
		return t
	}
	s.mu.RUnlock()

	var lastSync time.Time
	err := s.db.QueryRow(`
		SELECT last_sync FROM sync_status WHERE data_type = ?
	`, key).Scan(&lastSync)
	if err != nil {
		return time.Time{}
	}

	s.mu.Lock()
	s.syncTimes[key] = lastSync
	s.mu.Unlock()

	return lastSync
}

// SetLastSync sets the last sync time for a key.
func (s *SQLiteStore) SetLastSync(key string, t time.Time) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO sync_status (data_type, last_sync, updated_at)
		VALUES (?, ?, ?)
	`, key, t.UTC(), s.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set last sync: %w", err)
	}

	s.mu.Lock()
	s.syncTimes[key] = t.UTC()
	s.mu.Unlock()

	return nil
}

// SaveSyncRun inserts or updates the progress row of a bulk sync.
func (s *SQLiteStore) SaveSyncRun(ctx context.Context, run *models.SyncRun) error {
	if run.ID == "" {
		return apperrors.NewValidationError("id", run.ID, "sync run id is required")
	}
	symbols, err := json.Marshal(run.Symbols)
	if err != nil {
		return fmt.Errorf("failed to encode sync symbols: %w", err)
	}
	run.UpdatedAt = s.now().UTC()
	if run.StartedAt.IsZero() {
		run.StartedAt = run.UpdatedAt
	}
	var finished sql.NullTime
	if !run.FinishedAt.IsZero() {
		finished = sql.NullTime{Time: run.FinishedAt.UTC(), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sync_runs (id, status, total, processed, succeeded, cached, last_symbol, symbols, started_at, updated_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			total = excluded.total,
			processed = excluded.processed,
			succeeded = excluded.succeeded,
			cached = excluded.cached,
			last_symbol = excluded.last_symbol,
			symbols = excluded.symbols,
			updated_at = excluded.updated_at,
			finished_at = excluded.finished_at
	`, run.ID, string(run.Status), run.Total, run.Processed, run.Succeeded, run.Cached,
		run.LastSymbol, string(symbols), run.StartedAt.UTC(), run.UpdatedAt, finished)
	if err != nil {
		return fmt.Errorf("failed to save sync run: %w", err)
	}
	return nil
}

// GetSyncRun loads a run with its failures.
func (s *SQLiteStore) GetSyncRun(ctx context.Context, id string) (*models.SyncRun, error) {
	return s.loadSyncRun(ctx, "WHERE id = ?", id)
}

// GetLatestSyncRun returns the most recently started run, or nil if none exist.
func (s *SQLiteStore) GetLatestSyncRun(ctx context.Context) (*models.SyncRun, error) {
	run, err := s.loadSyncRun(ctx, "ORDER BY started_at DESC, rowid DESC LIMIT 1")
	if errors.Is(err, apperrors.ErrDataNotFound) {
		return nil, nil
	}
	return run, err
}

func (s *SQLiteStore) loadSyncRun(ctx context.Context, clause string, args ...interface{}) (*models.SyncRun, error) {
	var run models.SyncRun
	var status string
	var lastSymbol, symbols sql.NullString
	var finished sql.NullTime

	err := s.db.QueryRowContext(ctx, `
		SELECT id, status, total, processed, succeeded, cached, last_symbol, symbols, started_at, updated_at, finished_at
		FROM sync_runs `+clause, args...).Scan(
		&run.ID, &status, &run.Total, &run.Processed, &run.Succeeded, &run.Cached,
		&lastSymbol, &symbols, &run.StartedAt, &run.UpdatedAt, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: sync run", apperrors.ErrDataNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load sync run: %w", err)
	}

	run.Status = models.SyncRunStatus(status)
	run.LastSymbol = lastSymbol.String
	run.StartedAt = run.StartedAt.UTC()
	run.UpdatedAt = run.UpdatedAt.UTC()
	if finished.Valid {
		run.FinishedAt = finished.Time.UTC()
	}
	if symbols.Valid && symbols.String != "" {
		if err := json.Unmarshal([]byte(symbols.String), &run.Symbols); err != nil {
			return nil, fmt.Errorf("failed to decode sync symbols: %w", err)
		}
	}

	failures, err := s.syncFailures(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	run.Failures = failures
	return &run, nil
}

// RecordSyncFailure stores the latest failure of a symbol within a run.
func (s *SQLiteStore) RecordSyncFailure(ctx context.Context, runID string, f models.SyncFailure) error {
	if f.FailedAt.IsZero() {
		f.FailedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_failures (run_id, symbol, error, attempts, failed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id, symbol) DO UPDATE SET
			error = excluded.error,
			attempts = excluded.attempts,
			failed_at = excluded.failed_at
	`, runID, models.NormalizeSymbol(f.Symbol), f.Error, f.Attempts, f.FailedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to record sync failure: %w", err)
	}
	return nil
}

func (s *SQLiteStore) syncFailures(ctx context.Context, runID string) ([]models.SyncFailure, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, error, attempts, failed_at
		FROM sync_failures WHERE run_id = ?
		ORDER BY failed_at ASC, symbol ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync failures: %w", err)
	}
	defer rows.Close()

	var failures []models.SyncFailure
	for rows.Next() {
		var f models.SyncFailure
		if err := rows.Scan(&f.Symbol, &f.Error, &f.Attempts, &f.FailedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sync failure: %w", err)
		}
		f.FailedAt = f.FailedAt.UTC()
		failures = append(failures, f)
	}
	return failures, rows.Err()
}

// ============================================================================
// Diagnostics
// ============================================================================

// Counts returns row counts of companies, earnings and prices.
func (s *SQLiteStore) Counts(ctx context.Context) (models.DataCounts, error) {
	var c models.DataCounts
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM companies),
			(SELECT COUNT(*) FROM earnings),
			(SELECT COUNT(*) FROM daily_prices)
	`).Scan(&c.Companies, &c.Earnings, &c.Prices)
	if err != nil {
		return c, fmt.Errorf("failed to count rows: %w", err)
	}
	return c, nil
}

// Consistency issue kinds.
const (
	IssueNoEarnings    = "no earnings stored"
	IssueNoPrices      = "no prices stored"
	IssueUnpricedEvent = "earnings without nearby prices"
)

// ConsistencyIssues lists tracked companies whose stored data cannot produce
// complete effects.
func (s *SQLiteStore) ConsistencyIssues(ctx context.Context) ([]models.ConsistencyIssue, error) {
	checks := []struct {
		issue string
		query string
	}{
		{IssueNoEarnings, `
			SELECT c.symbol, 0 FROM companies c
			WHERE NOT EXISTS (SELECT 1 FROM earnings e WHERE e.symbol = c.symbol)
			ORDER BY c.symbol`},
		{IssueNoPrices, `
			SELECT c.symbol, 0 FROM companies c
			WHERE NOT EXISTS (SELECT 1 FROM daily_prices p WHERE p.symbol = c.symbol)
			ORDER BY c.symbol`},
		{IssueUnpricedEvent, `
			SELECT e.symbol, COUNT(*) FROM earnings e
			WHERE EXISTS (SELECT 1 FROM daily_prices p0 WHERE p0.symbol = e.symbol)
			AND NOT EXISTS (
				SELECT 1 FROM daily_prices p
				WHERE p.symbol = e.symbol
				AND p.date BETWEEN date(e.date, '-7 days') AND date(e.date, '+7 days')
			)
			GROUP BY e.symbol
			ORDER BY e.symbol`},
	}

	var issues []models.ConsistencyIssue
	for _, check := range checks {
		rows, err := s.db.QueryContext(ctx, check.query)
		if err != nil {
			return nil, fmt.Errorf("failed to run consistency check: %w", err)
		}
		for rows.Next() {
			issue := models.ConsistencyIssue{Issue: check.issue}
			if err := rows.Scan(&issue.Symbol, &issue.Count); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan consistency issue: %w", err)
			}
			issues = append(issues, issue)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("error iterating consistency issues: %w", err)
		}
	}
	return issues, nil
}
