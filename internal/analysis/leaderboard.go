package analysis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"earnings-tracker/internal/models"
)

// SortKey names a leaderboard ordering.
type SortKey string

const (
	SortRecoveryRate    SortKey = "recovery_rate"
	SortWinRate         SortKey = "win_rate"
	SortAvgMove         SortKey = "avg_move"
	SortBestMove        SortKey = "best_move"
	SortWorstMove       SortKey = "worst_move"
	SortLastQuarterMove SortKey = "last_quarter_move"
	SortVolatility      SortKey = "volatility"
	SortSymbol          SortKey = "symbol"
)

// SortKeys lists the accepted keys.
var SortKeys = []SortKey{
	SortRecoveryRate, SortWinRate, SortAvgMove, SortBestMove,
	SortWorstMove, SortLastQuarterMove, SortVolatility, SortSymbol,
}

// ParseSortKey validates a sort key; empty means recovery rate.
func ParseSortKey(s string) (SortKey, error) {
	if s == "" {
		return SortRecoveryRate, nil
	}
	key := SortKey(strings.ToLower(strings.TrimSpace(s)))
	for _, k := range SortKeys {
		if k == key {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown sort key %q", s)
}

func (k SortKey) value(s models.AggregateStats) decimal.NullDecimal {
	switch k {
	case SortWinRate:
		return s.WinRate
	case SortAvgMove:
		return s.AvgMove
	case SortBestMove:
		return s.BestMove
	case SortWorstMove:
		return s.WorstMove
	case SortLastQuarterMove:
		return s.LastQuarterMove
	case SortVolatility:
		return s.Volatility
	default:
		return s.RecoveryRate
	}
}

// Rank orders entries by key and assigns 1-based ranks. Entries whose value is
// null sort last in either direction; ties fall back to symbol order.
func Rank(entries []models.LeaderboardEntry, key SortKey, desc bool) []models.LeaderboardEntry {
	out := make([]models.LeaderboardEntry, len(entries))
	copy(out, entries)

	sort.SliceStable(out, func(i, j int) bool {
		si, sj := out[i].Company.Symbol, out[j].Company.Symbol
		if key == SortSymbol {
			if desc {
				return si > sj
			}
			return si < sj
		}

		vi, vj := key.value(out[i].Stats), key.value(out[j].Stats)
		switch {
		case vi.Valid && !vj.Valid:
			return true
		case !vi.Valid && vj.Valid:
			return false
		case !vi.Valid && !vj.Valid:
			return si < sj
		}
		if c := vi.Decimal.Cmp(vj.Decimal); c != 0 {
			if desc {
				return c > 0
			}
			return c < 0
		}
		return si < sj
	})

	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}
