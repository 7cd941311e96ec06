package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Range selects events from a newest-first list, 1-based and inclusive.
// The zero value selects everything.
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// IsZero reports whether the range selects the full list.
func (r Range) IsZero() bool {
	return r.Start == 0 && r.End == 0
}

// AggregateStats summarizes the aligned effects of one symbol.
type AggregateStats struct {
	Symbol             string              `json:"symbol"`
	Range              Range               `json:"range"`
	EventsAnalyzed     int                 `json:"events_analyzed"`
	ValidMoves         int                 `json:"valid_moves"`
	UpMoves            int                 `json:"up_moves"`
	DownMoves          int                 `json:"down_moves"`
	FlatMoves          int                 `json:"flat_moves"`
	WinRate            decimal.NullDecimal `json:"win_rate"`
	AvgMove            decimal.NullDecimal `json:"avg_move"`
	AvgUpMove          decimal.NullDecimal `json:"avg_up_move"`
	AvgDownMove        decimal.NullDecimal `json:"avg_down_move"`
	BestMove           decimal.NullDecimal `json:"best_move"`
	WorstMove          decimal.NullDecimal `json:"worst_move"`
	LastQuarterMove    decimal.NullDecimal `json:"last_quarter_move"`
	Volatility         decimal.NullDecimal `json:"volatility"`
	MaxPositiveStreak  int                 `json:"max_positive_streak"`
	MaxNegativeStreak  int                 `json:"max_negative_streak"`
	Drops              int                 `json:"drops"`
	RecoveredDrops     int                 `json:"recovered_drops"`
	RecoveryRate       decimal.NullDecimal `json:"recovery_rate"`
	AvgRecoveryPeriods decimal.NullDecimal `json:"avg_recovery_periods"`
}

// LeaderboardEntry is one ranked row of the cross-symbol leaderboard.
type LeaderboardEntry struct {
	Rank    int            `json:"rank"`
	Company Company        `json:"company"`
	Stats   AggregateStats `json:"stats"`
}

// CalculatorResult compares trading around earnings with holding through them.
type CalculatorResult struct {
	Symbol       string              `json:"symbol"`
	Amount       decimal.Decimal     `json:"amount"`
	Trades       int                 `json:"trades"`
	TradeValue   decimal.NullDecimal `json:"trade_value"`
	TradeReturn  decimal.NullDecimal `json:"trade_return"`
	TradePercent decimal.NullDecimal `json:"trade_percent"`
	AvgReturn    decimal.NullDecimal `json:"avg_return"`
	HoldValue    decimal.NullDecimal `json:"hold_value"`
	HoldReturn   decimal.NullDecimal `json:"hold_return"`
	HoldPercent  decimal.NullDecimal `json:"hold_percent"`
	FirstDate    time.Time           `json:"first_date"`
	LastDate     time.Time           `json:"last_date"`
	BeatsHolding bool                `json:"beats_holding"`
}
