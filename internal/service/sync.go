package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"earnings-tracker/internal/alignment"
	apperrors "earnings-tracker/internal/errors"
	"earnings-tracker/internal/logging"
	"earnings-tracker/internal/metrics"
	"earnings-tracker/internal/models"
	"earnings-tracker/internal/store"
	"earnings-tracker/pkg/utils"
)

// Sync refreshes earnings and prices of one symbol. Fresh data is left alone
// unless force is set. Payloads served from the provider cache are stored
// but do not count as a refresh.
func (s *Service) Sync(ctx context.Context, symbol string, force bool) (models.SymbolSyncResult, error) {
	symbol = models.NormalizeSymbol(symbol)
	result := models.SymbolSyncResult{Symbol: symbol}
	logger := logging.WithSymbol(s.log, symbol)

	if !force && s.freshness.IsFresh(symbol) {
		result.SkippedFresh = true
		metrics.SymbolSyncs.WithLabelValues("fresh").Inc()
		logger.Debug().Msg("Stored data is fresh; skipping fetch")
		return result, nil
	}

	if s.provider == nil {
		return result, apperrors.ErrMissingAPIKey
	}

	err := s.syncSymbol(ctx, symbol, &result)
	logging.LogSync(logger, symbol, result.Earnings, result.Prices, result.FromCache, err)

	switch {
	case err != nil:
		result.Error = err.Error()
		metrics.SymbolSyncs.WithLabelValues("failed").Inc()
	case result.FromCache:
		metrics.SymbolSyncs.WithLabelValues("cached").Inc()
	default:
		metrics.SymbolSyncs.WithLabelValues("synced").Inc()
	}
	return result, err
}

func (s *Service) syncSymbol(ctx context.Context, symbol string, result *models.SymbolSyncResult) error {
	earnings, err := s.provider.Earnings(ctx, symbol)
	if err != nil {
		return fmt.Errorf("fetch earnings: %w", err)
	}

	events := make([]models.EarningsEvent, len(earnings.Events))
	for i, ev := range earnings.Events {
		ev.Timing = alignment.ResolveTiming(symbol, ev.Timing)
		events[i] = ev
	}
	if err := s.store.UpsertEarnings(ctx, symbol, events); err != nil {
		return fmt.Errorf("store earnings: %w", err)
	}
	result.Earnings = len(events)
	result.FromCache = earnings.Stale
	if !earnings.Stale {
		s.markSynced(store.SyncTypeEarnings, symbol)
	}

	if err := s.ensureCompany(ctx, symbol); err != nil {
		return err
	}

	series, err := s.provider.DailySeries(ctx, symbol)
	if err != nil {
		return fmt.Errorf("fetch prices: %w", err)
	}
	if err := s.store.UpsertPrices(ctx, symbol, series.Bars); err != nil {
		return fmt.Errorf("store prices: %w", err)
	}
	result.Prices = len(series.Bars)
	result.FromCache = result.FromCache || series.Stale
	if !series.Stale {
		s.markSynced(store.SyncTypePrices, symbol)
	}
	return nil
}

func (s *Service) markSynced(dataType store.SyncDataType, symbol string) {
	if err := s.freshness.MarkSynced(dataType, symbol); err != nil {
		s.log.Warn().Err(err).Str("symbol", symbol).Str("type", string(dataType)).Msg("Failed to record sync time")
	}
	if err := s.store.SetLastSync(store.SyncKey(store.SyncTypeProvider, ""), s.now()); err != nil {
		s.log.Warn().Err(err).Msg("Failed to record provider call time")
	}
}

// ensureCompany registers symbol with a placeholder name the first time it
// is synced.
func (s *Service) ensureCompany(ctx context.Context, symbol string) error {
	_, err := s.store.GetCompany(ctx, symbol)
	if err == nil {
		return nil
	}
	if !errors.Is(err, apperrors.ErrSymbolNotFound) {
		return err
	}
	return s.store.UpsertCompany(ctx, &models.Company{Symbol: symbol, Name: symbol, Exchange: models.OTHER})
}

// SyncOptions control a bulk sync.
type SyncOptions struct {
	// Symbols limits the run; empty means every registered company.
	Symbols []string
	// Restart ignores an interrupted run instead of resuming it.
	Restart bool
	// Force refetches symbols whose stored data is still fresh.
	Force bool
	// Progress, when set, is called after each symbol.
	Progress func(run *models.SyncRun, result models.SymbolSyncResult)
}

// SyncAll refreshes symbols one at a time, persisting progress after each so
// an interrupted run resumes where it stopped. Failing symbols are retried
// with linear backoff and then recorded; the run continues. Once the quota
// circuit opens the run stops issuing fetches and is left resumable, with the
// remaining symbols served from stored data.
func (s *Service) SyncAll(ctx context.Context, opts SyncOptions) (*models.SyncRun, error) {
	if s.provider == nil {
		return nil, apperrors.ErrMissingAPIKey
	}

	run, err := s.startRun(ctx, opts)
	if err != nil {
		return nil, err
	}

	logger := logging.WithRunID(s.log, run.ID)
	logger.Info().
		Int("total", run.Total).
		Int("processed", run.Processed).
		Msg("Bulk sync started")

	start := time.Now()
	defer func() {
		metrics.SyncRunDuration.Observe(time.Since(start).Seconds())
	}()

	retry := utils.RetryConfig{
		MaxAttempts: s.config.SymbolAttempts,
		Backoff:     utils.LinearBackoff(s.config.SymbolRetryWait),
		Retryable:   apperrors.IsRetryable,
		Sleep:       s.sleep,
	}

	for run.Processed < len(run.Symbols) {
		if err := ctx.Err(); err != nil {
			s.finishRun(run, models.SyncAborted)
			return run, err
		}
		if s.quotaExhausted() {
			remaining := len(run.Symbols) - run.Processed
			logger.Warn().
				Int("remaining", remaining).
				Msg("Provider quota exhausted; remaining symbols served from stored data")
			s.finishRun(run, models.SyncAborted)
			return run, nil
		}

		symbol := run.Symbols[run.Processed]
		attempts := 0
		retry.OnRetry = func(attempt int, err error, wait time.Duration) {
			logger.Warn().Err(err).Str("symbol", symbol).Int("attempt", attempt).Dur("wait", wait).Msg("Retrying symbol")
		}
		result, err := utils.RetryWithResult(ctx, retry, func() (models.SymbolSyncResult, error) {
			attempts++
			return s.Sync(ctx, symbol, opts.Force)
		})
		if err != nil && ctx.Err() != nil {
			s.finishRun(run, models.SyncAborted)
			return run, ctx.Err()
		}
		if err != nil && errors.Is(err, apperrors.ErrRateLimited) && s.quotaExhausted() {
			// leave the symbol for the resumed run
			continue
		}

		if err != nil {
			failure := models.SyncFailure{Symbol: symbol, Error: err.Error(), Attempts: attempts, FailedAt: s.now()}
			run.Failures = append(run.Failures, failure)
			if ferr := s.store.RecordSyncFailure(ctx, run.ID, failure); ferr != nil {
				logger.Warn().Err(ferr).Msg("Failed to record sync failure")
			}
			result.Symbol = symbol
			result.Error = err.Error()
		} else {
			run.Succeeded++
			if result.FromCache {
				run.Cached++
			}
		}

		run.Processed++
		run.LastSymbol = symbol
		run.UpdatedAt = s.now()
		if err := s.store.SaveSyncRun(ctx, run); err != nil {
			logger.Warn().Err(err).Msg("Failed to save sync progress")
		}
		if opts.Progress != nil {
			opts.Progress(run, result)
		}
	}

	s.finishRun(run, models.SyncCompleted)
	logger.Info().
		Int("succeeded", run.Succeeded).
		Int("cached", run.Cached).
		Int("failed", len(run.Failures)).
		Dur("duration", time.Since(start)).
		Msg("Bulk sync completed")
	return run, nil
}

// startRun resumes the latest unfinished run or creates a new one.
func (s *Service) startRun(ctx context.Context, opts SyncOptions) (*models.SyncRun, error) {
	if !opts.Restart && len(opts.Symbols) == 0 {
		latest, err := s.store.GetLatestSyncRun(ctx)
		if err != nil {
			return nil, err
		}
		if latest != nil && latest.Status != models.SyncCompleted && latest.Processed < len(latest.Symbols) {
			latest.Status = models.SyncRunning
			latest.FinishedAt = time.Time{}
			s.log.Info().
				Str("run_id", latest.ID).
				Str("last_symbol", latest.LastSymbol).
				Msg("Resuming interrupted sync")
			return latest, s.store.SaveSyncRun(ctx, latest)
		}
	}

	symbols, err := s.runSymbols(ctx, opts.Symbols)
	if err != nil {
		return nil, err
	}

	now := s.now()
	run := &models.SyncRun{
		ID:        uuid.New().String(),
		Status:    models.SyncRunning,
		Total:     len(symbols),
		Symbols:   symbols,
		StartedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.SaveSyncRun(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

func (s *Service) runSymbols(ctx context.Context, requested []string) ([]string, error) {
	if len(requested) > 0 {
		seen := make(map[string]bool, len(requested))
		symbols := make([]string, 0, len(requested))
		for _, raw := range requested {
			symbol, err := ValidateSymbol(raw)
			if err != nil {
				return nil, err
			}
			if !seen[symbol] {
				seen[symbol] = true
				symbols = append(symbols, symbol)
			}
		}
		return symbols, nil
	}

	companies, err := s.store.ListCompanies(ctx, store.CompanyFilter{})
	if err != nil {
		return nil, err
	}
	symbols := make([]string, 0, len(companies))
	for _, c := range companies {
		symbols = append(symbols, c.Symbol)
	}
	sort.Strings(symbols)
	return symbols, nil
}

func (s *Service) finishRun(run *models.SyncRun, status models.SyncRunStatus) {
	run.Status = status
	run.UpdatedAt = s.now()
	run.FinishedAt = run.UpdatedAt
	// The caller's context may already be cancelled; progress must still land.
	if err := s.store.SaveSyncRun(context.Background(), run); err != nil {
		s.log.Warn().Err(err).Str("run_id", run.ID).Msg("Failed to save sync run")
	}
}

func (s *Service) quotaExhausted() bool {
	return s.breaker != nil && s.breaker.IsOpen()
}
