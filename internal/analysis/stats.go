// Package analysis derives statistics from aligned earnings effects.
//
// Every function takes effects newest-first, as returned by the alignment
// engine, and is pure.
package analysis

import (
	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"earnings-tracker/internal/models"
)

var hundred = decimal.NewFromInt(100)

// Select returns the effects chosen by r: 1-based, inclusive, newest-first.
// Out-of-range bounds are clamped; the zero range selects everything.
func Select(effects []models.AlignedEffect, r models.Range) []models.AlignedEffect {
	n := len(effects)
	if n == 0 || r.IsZero() {
		return effects
	}
	start, end := r.Start, r.End
	if start < 1 {
		start = 1
	}
	if end == 0 || end > n {
		end = n
	}
	if start > end {
		return nil
	}
	return effects[start-1 : end]
}

// Moves returns the percent changes of complete effects, keeping list order.
func Moves(effects []models.AlignedEffect) []decimal.Decimal {
	moves := make([]decimal.Decimal, 0, len(effects))
	for _, e := range effects {
		if e.Complete() {
			moves = append(moves, e.PercentChange.Decimal)
		}
	}
	return moves
}

// Compute summarizes the effects selected by r. Partial and missing effects
// count towards EventsAnalyzed only.
func Compute(symbol string, effects []models.AlignedEffect, r models.Range) models.AggregateStats {
	selected := Select(effects, r)
	moves := Moves(selected)

	stats := models.AggregateStats{
		Symbol:         symbol,
		Range:          r,
		EventsAnalyzed: len(selected),
		ValidMoves:     len(moves),
	}

	var sum, upSum, downSum decimal.Decimal
	for i, m := range moves {
		sum = sum.Add(m)
		switch m.Sign() {
		case 1:
			stats.UpMoves++
			upSum = upSum.Add(m)
		case -1:
			stats.DownMoves++
			downSum = downSum.Add(m)
		default:
			stats.FlatMoves++
		}
		if i == 0 {
			stats.BestMove = decimal.NewNullDecimal(m)
			stats.WorstMove = decimal.NewNullDecimal(m)
			stats.LastQuarterMove = decimal.NewNullDecimal(m)
			continue
		}
		if m.GreaterThan(stats.BestMove.Decimal) {
			stats.BestMove.Decimal = m
		}
		if m.LessThan(stats.WorstMove.Decimal) {
			stats.WorstMove.Decimal = m
		}
	}

	if n := len(moves); n > 0 {
		count := decimal.NewFromInt(int64(n))
		stats.WinRate = ratio(stats.UpMoves, n)
		stats.AvgMove = decimal.NewNullDecimal(sum.Div(count))
		stats.Volatility = volatility(moves)
	}
	if stats.UpMoves > 0 {
		stats.AvgUpMove = decimal.NewNullDecimal(upSum.Div(decimal.NewFromInt(int64(stats.UpMoves))))
	}
	if stats.DownMoves > 0 {
		stats.AvgDownMove = decimal.NewNullDecimal(downSum.Div(decimal.NewFromInt(int64(stats.DownMoves))))
	}

	stats.MaxPositiveStreak, stats.MaxNegativeStreak = Streaks(selected)

	rec := Recovery(selected)
	stats.Drops = rec.Drops
	stats.RecoveredDrops = rec.Recovered
	stats.RecoveryRate = rec.Rate()
	stats.AvgRecoveryPeriods = rec.AvgPeriods()

	return stats
}

// volatility is the population standard deviation of the moves.
func volatility(moves []decimal.Decimal) decimal.NullDecimal {
	xs := make([]float64, len(moves))
	for i, m := range moves {
		xs[i] = m.InexactFloat64()
	}
	_, std := stat.PopMeanStdDev(xs, nil)
	return decimal.NewNullDecimal(decimal.NewFromFloat(std))
}

func ratio(part, whole int) decimal.NullDecimal {
	if whole == 0 {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(
		decimal.NewFromInt(int64(part)).Div(decimal.NewFromInt(int64(whole))).Mul(hundred),
	)
}

// Round returns a copy of s with every decimal rounded to places for display.
func Round(s models.AggregateStats, places int32) models.AggregateStats {
	for _, d := range []*decimal.NullDecimal{
		&s.WinRate, &s.AvgMove, &s.AvgUpMove, &s.AvgDownMove, &s.BestMove,
		&s.WorstMove, &s.LastQuarterMove, &s.Volatility, &s.RecoveryRate, &s.AvgRecoveryPeriods,
	} {
		if d.Valid {
			d.Decimal = d.Decimal.Round(places)
		}
	}
	return s
}

// RoundEffect returns a copy of e with its percent change rounded for display.
func RoundEffect(e models.AlignedEffect, places int32) models.AlignedEffect {
	if e.PercentChange.Valid {
		e.PercentChange.Decimal = e.PercentChange.Decimal.Round(places)
	}
	return e
}
