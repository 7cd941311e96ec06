package analysis

import (
	"github.com/shopspring/decimal"

	"earnings-tracker/internal/models"
)

// Streaks returns the longest runs of positive and negative moves in list order.
// A zero move resets neither run; incomplete effects are skipped.
func Streaks(effects []models.AlignedEffect) (maxPositive, maxNegative int) {
	var pos, neg int
	for _, e := range effects {
		if !e.Complete() {
			continue
		}
		switch e.PercentChange.Decimal.Sign() {
		case 1:
			pos++
			neg = 0
		case -1:
			neg++
			pos = 0
		}
		if pos > maxPositive {
			maxPositive = pos
		}
		if neg > maxNegative {
			maxNegative = neg
		}
	}
	return maxPositive, maxNegative
}

// RecoveryStats summarizes how drops were recovered.
type RecoveryStats struct {
	Drops     int
	Recovered int
	// Periods holds, per recovered drop, how many events it took.
	Periods []int
}

// Rate is the percentage of drops that recovered, null without drops.
func (r RecoveryStats) Rate() decimal.NullDecimal {
	return ratio(r.Recovered, r.Drops)
}

// AvgPeriods is the mean recovery length, null without recoveries.
func (r RecoveryStats) AvgPeriods() decimal.NullDecimal {
	if len(r.Periods) == 0 {
		return decimal.NullDecimal{}
	}
	total := 0
	for _, p := range r.Periods {
		total += p
	}
	return decimal.NewNullDecimal(decimal.NewFromInt(int64(total)).Div(decimal.NewFromInt(int64(len(r.Periods)))))
}

// Recovery scans, for each negative move at position i, the later positions
// j > i until an effect's after price exceeds the drop's before price. The
// distance j-i is the recovery length. Drops without such an effect within
// the list are counted but unrecovered.
func Recovery(effects []models.AlignedEffect) RecoveryStats {
	var rs RecoveryStats
	for i, drop := range effects {
		if !drop.Complete() || drop.PercentChange.Decimal.Sign() >= 0 {
			continue
		}
		rs.Drops++
		for j := i + 1; j < len(effects); j++ {
			if !effects[j].After.Valid {
				continue
			}
			if effects[j].After.Decimal.GreaterThan(drop.Before.Decimal) {
				rs.Recovered++
				rs.Periods = append(rs.Periods, j-i)
				break
			}
		}
	}
	return rs
}
