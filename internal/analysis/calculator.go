package analysis

import (
	"github.com/shopspring/decimal"

	"earnings-tracker/internal/models"
)

// Calculate replays amount through the selected earnings oldest-first.
//
// The trade strategy buys at each before price and sells at the matching after
// price, compounding. The hold strategy buys at the oldest before price and
// sells at the newest after price.
func Calculate(symbol string, effects []models.AlignedEffect, amount decimal.Decimal, r models.Range) models.CalculatorResult {
	result := models.CalculatorResult{Symbol: symbol, Amount: amount}

	selected := Select(effects, r)
	var trades []models.AlignedEffect
	for i := len(selected) - 1; i >= 0; i-- {
		if selected[i].Complete() {
			trades = append(trades, selected[i])
		}
	}
	if len(trades) == 0 || !amount.IsPositive() {
		return result
	}

	value := amount
	var moveSum decimal.Decimal
	for _, e := range trades {
		value = value.Mul(e.After.Decimal).Div(e.Before.Decimal)
		moveSum = moveSum.Add(e.PercentChange.Decimal)
	}
	result.Trades = len(trades)
	result.TradeValue = decimal.NewNullDecimal(value)
	result.TradeReturn = decimal.NewNullDecimal(value.Sub(amount))
	result.TradePercent = decimal.NewNullDecimal(value.Sub(amount).Div(amount).Mul(hundred))
	result.AvgReturn = decimal.NewNullDecimal(moveSum.Div(decimal.NewFromInt(int64(len(trades)))))

	first, last := trades[0], trades[len(trades)-1]
	result.FirstDate = first.Date
	result.LastDate = last.Date
	hold := amount.Mul(last.After.Decimal).Div(first.Before.Decimal)
	result.HoldValue = decimal.NewNullDecimal(hold)
	result.HoldReturn = decimal.NewNullDecimal(hold.Sub(amount))
	result.HoldPercent = decimal.NewNullDecimal(hold.Sub(amount).Div(amount).Mul(hundred))
	result.BeatsHolding = value.GreaterThan(hold)

	return result
}

// RoundResult returns a copy of c with money rounded for display.
func RoundResult(c models.CalculatorResult, places int32) models.CalculatorResult {
	for _, d := range []*decimal.NullDecimal{
		&c.TradeValue, &c.TradeReturn, &c.TradePercent, &c.AvgReturn,
		&c.HoldValue, &c.HoldReturn, &c.HoldPercent,
	} {
		if d.Valid {
			d.Decimal = d.Decimal.Round(places)
		}
	}
	return c
}
