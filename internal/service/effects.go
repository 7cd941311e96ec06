package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"earnings-tracker/internal/alignment"
	"earnings-tracker/internal/analysis"
	"earnings-tracker/internal/calendar"
	apperrors "earnings-tracker/internal/errors"
	"earnings-tracker/internal/logging"
	"earnings-tracker/internal/metrics"
	"earnings-tracker/internal/models"
	"earnings-tracker/internal/performance"
	"earnings-tracker/internal/store"
)

// EffectsReport is the aligned history of one symbol.
type EffectsReport struct {
	Symbol  string                 `json:"symbol"`
	Effects []models.AlignedEffect `json:"effects"`
	Report  alignment.Report       `json:"report"`
}

// AlignedEffects aligns every stored earnings event of symbol against its
// stored price series, newest first. Events that cannot be fully aligned are
// logged and listed in the report.
func (s *Service) AlignedEffects(ctx context.Context, symbol string) (*EffectsReport, error) {
	symbol = models.NormalizeSymbol(symbol)
	effects, report, err := s.align(ctx, symbol)
	if err != nil {
		return nil, err
	}

	logger := logging.WithOperation(s.log, "align")
	for _, sk := range report.Skipped {
		logging.LogSkippedEvent(logger, symbol, sk.Date, string(sk.Status), sk.Reason)
	}
	metrics.RecordAlignment(report.Complete, report.Partial, report.Missing)

	return &EffectsReport{Symbol: symbol, Effects: effects, Report: report}, nil
}

func (s *Service) align(ctx context.Context, symbol string) ([]models.AlignedEffect, alignment.Report, error) {
	events, err := s.store.GetEarnings(ctx, symbol)
	if err != nil {
		return nil, alignment.Report{}, fmt.Errorf("load earnings: %w", err)
	}
	if len(events) == 0 {
		return nil, alignment.Report{}, apperrors.NewDataError("earnings", symbol, "no earnings stored", apperrors.ErrDataNotFound)
	}

	bars, err := s.store.GetPriceSeries(ctx, symbol)
	if err != nil {
		return nil, alignment.Report{}, fmt.Errorf("load prices: %w", err)
	}

	effects, report := s.engine.AlignAll(events, calendar.NewSeries(bars))
	return effects, report, nil
}

// AggregateStats summarizes the aligned effects of symbol within r.
func (s *Service) AggregateStats(ctx context.Context, symbol string, r models.Range) (models.AggregateStats, error) {
	if err := ValidateRange(r); err != nil {
		return models.AggregateStats{}, err
	}
	symbol = models.NormalizeSymbol(symbol)
	effects, _, err := s.align(ctx, symbol)
	if err != nil {
		return models.AggregateStats{}, err
	}
	return analysis.Compute(symbol, effects, r), nil
}

type symbolEffects struct {
	company models.Company
	effects []models.AlignedEffect
	err     error
}

// effectsForAll aligns every registered company on the worker pool. Companies
// without stored earnings are left out.
func (s *Service) effectsForAll(ctx context.Context) ([]symbolEffects, error) {
	companies, err := s.store.ListCompanies(ctx, store.CompanyFilter{})
	if err != nil {
		return nil, err
	}

	results, err := performance.Map(ctx, s.pool, companies, func(ctx context.Context, c models.Company) symbolEffects {
		effects, _, err := s.align(ctx, c.Symbol)
		return symbolEffects{company: c, effects: effects, err: err}
	})
	if err != nil {
		return nil, err
	}

	out := results[:0]
	for _, r := range results {
		switch {
		case r.err == nil:
			out = append(out, r)
		case apperrors.Is(r.err, apperrors.ErrDataNotFound):
		default:
			s.log.Warn().Err(r.err).Str("symbol", r.company.Symbol).Msg("Skipping symbol")
		}
	}
	return out, nil
}

// Leaderboard ranks every company with stored earnings by key within r.
// Higher is better for every key except symbol, which sorts alphabetically.
func (s *Service) Leaderboard(ctx context.Context, r models.Range, key analysis.SortKey) ([]models.LeaderboardEntry, error) {
	if err := ValidateRange(r); err != nil {
		return nil, err
	}

	all, err := s.effectsForAll(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]models.LeaderboardEntry, 0, len(all))
	for _, se := range all {
		stats := analysis.Compute(se.company.Symbol, se.effects, r)
		if stats.EventsAnalyzed == 0 {
			continue
		}
		entries = append(entries, models.LeaderboardEntry{Company: se.company, Stats: stats})
	}

	return analysis.Rank(entries, key, key != analysis.SortSymbol), nil
}

// Calculator replays amount through each company's earnings within r and
// returns the results ordered by trade return, best first.
func (s *Service) Calculator(ctx context.Context, amount decimal.Decimal, r models.Range) ([]models.CalculatorResult, error) {
	if !amount.IsPositive() {
		return nil, apperrors.NewValidationError("amount", amount.String(), "must be positive")
	}
	if err := ValidateRange(r); err != nil {
		return nil, err
	}

	all, err := s.effectsForAll(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]models.CalculatorResult, 0, len(all))
	for _, se := range all {
		res := analysis.Calculate(se.company.Symbol, se.effects, amount, r)
		if res.Trades == 0 {
			continue
		}
		results = append(results, res)
	}

	sort.SliceStable(results, func(i, j int) bool {
		if c := results[i].TradeReturn.Decimal.Cmp(results[j].TradeReturn.Decimal); c != 0 {
			return c > 0
		}
		return results[i].Symbol < results[j].Symbol
	})
	return results, nil
}
