package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	apperrors "earnings-tracker/internal/errors"
	"earnings-tracker/internal/models"
)

// Alpha Vantage functions used by the tracker.
const (
	FunctionEarnings    = "EARNINGS"
	FunctionDailySeries = "TIME_SERIES_DAILY"
	FunctionOverview    = "OVERVIEW"

	earningsKey    = "quarterlyEarnings"
	dailySeriesKey = "Time Series (Daily)"
	overviewKey    = "Symbol"

	statusCheckSymbol = "IBM"
)

// EarningsResult is the parsed EARNINGS response.
type EarningsResult struct {
	Events    []models.EarningsEvent
	FetchedAt time.Time
	Stale     bool
}

// SeriesResult is the parsed TIME_SERIES_DAILY response, oldest first.
type SeriesResult struct {
	Bars      []models.DailyPriceBar
	FetchedAt time.Time
	Stale     bool
}

type earningsResponse struct {
	Symbol            string              `json:"symbol"`
	QuarterlyEarnings []quarterlyEarnings `json:"quarterlyEarnings"`
}

type quarterlyEarnings struct {
	FiscalDateEnding   string `json:"fiscalDateEnding"`
	ReportedDate       string `json:"reportedDate"`
	ReportedEPS        string `json:"reportedEPS"`
	EstimatedEPS       string `json:"estimatedEPS"`
	Surprise           string `json:"surprise"`
	SurprisePercentage string `json:"surprisePercentage"`
	ReportTime         string `json:"reportTime"`
	FiscalQuarter      string `json:"fiscalQuarter"`
	FiscalYear         string `json:"fiscalYear"`
}

type dailyBar struct {
	Open  string `json:"1. open"`
	Close string `json:"4. close"`
}

type overviewResponse struct {
	Symbol   string `json:"Symbol"`
	Name     string `json:"Name"`
	Exchange string `json:"Exchange"`
	Sector   string `json:"Sector"`
	Industry string `json:"Industry"`
}

// Earnings fetches the quarterly earnings history of symbol.
func (c *Client) Earnings(ctx context.Context, symbol string) (*EarningsResult, error) {
	symbol = models.NormalizeSymbol(symbol)
	payload, err := c.Fetch(ctx, Request{
		Function: FunctionEarnings,
		Symbol:   symbol,
		DataKey:  earningsKey,
	})
	if err != nil {
		return nil, err
	}

	events, err := ParseEarnings(symbol, payload.Body)
	if err != nil {
		return nil, err
	}
	return &EarningsResult{Events: events, FetchedAt: payload.FetchedAt, Stale: payload.Stale}, nil
}

// DailySeries fetches the full daily price history of symbol.
func (c *Client) DailySeries(ctx context.Context, symbol string) (*SeriesResult, error) {
	symbol = models.NormalizeSymbol(symbol)
	payload, err := c.Fetch(ctx, Request{
		Function: FunctionDailySeries,
		Symbol:   symbol,
		Params:   url.Values{"outputsize": {"full"}},
		DataKey:  dailySeriesKey,
	})
	if err != nil {
		return nil, err
	}

	bars, err := ParseDailySeries(symbol, payload.Body)
	if err != nil {
		return nil, err
	}
	return &SeriesResult{Bars: bars, FetchedAt: payload.FetchedAt, Stale: payload.Stale}, nil
}

// Overview fetches company metadata for symbol.
func (c *Client) Overview(ctx context.Context, symbol string) (*models.Company, error) {
	symbol = models.NormalizeSymbol(symbol)
	payload, err := c.Fetch(ctx, Request{
		Function: FunctionOverview,
		Symbol:   symbol,
		DataKey:  overviewKey,
	})
	if err != nil {
		return nil, err
	}

	var resp overviewResponse
	if err := json.Unmarshal(payload.Body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode overview: %v", apperrors.ErrProvider, err)
	}
	if resp.Symbol == "" {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrSymbolNotFound, symbol)
	}

	return &models.Company{
		Symbol:   models.NormalizeSymbol(resp.Symbol),
		Name:     resp.Name,
		Exchange: models.ParseExchange(resp.Exchange),
		Sector:   optional(resp.Sector),
		Industry: optional(resp.Industry),
	}, nil
}

// Status checks the API key with a small daily-series request. It bypasses
// the payload cache so a stale body never reads as healthy.
func (c *Client) Status(ctx context.Context) error {
	check := *c
	check.cache = nil
	_, err := check.Fetch(ctx, Request{
		Function: FunctionDailySeries,
		Symbol:   statusCheckSymbol,
		DataKey:  dailySeriesKey,
	})
	return err
}

// ParseEarnings decodes an EARNINGS body. The provider's "None" reads as
// null. A missing reported date falls back to the fiscal date ending; rows
// with neither are dropped. Fiscal quarter and year are only set when the
// provider labels them, since fiscalDateEnding alone does not determine them.
func ParseEarnings(symbol string, body []byte) ([]models.EarningsEvent, error) {
	var resp earningsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode earnings: %v", apperrors.ErrProvider, err)
	}

	symbol = models.NormalizeSymbol(symbol)
	events := make([]models.EarningsEvent, 0, len(resp.QuarterlyEarnings))
	for _, q := range resp.QuarterlyEarnings {
		fiscalEnd, _ := parseOptionalDate(q.FiscalDateEnding)
		date, ok := parseOptionalDate(q.ReportedDate)
		if !ok {
			date = fiscalEnd
		}
		if date.IsZero() {
			continue
		}

		event := models.EarningsEvent{
			Symbol:           symbol,
			Date:             date,
			Timing:           models.ParseTiming(q.ReportTime),
			FiscalDateEnding: fiscalEnd,
			EstimatedEPS:     parseNullDecimal(q.EstimatedEPS),
			ReportedEPS:      parseNullDecimal(q.ReportedEPS),
			Surprise:         parseNullDecimal(q.Surprise),
			SurprisePercent:  parseNullDecimal(q.SurprisePercentage),
		}
		event.FiscalQuarter = parseFiscalQuarter(q.FiscalQuarter)
		if y, err := strconv.Atoi(strings.TrimSpace(q.FiscalYear)); err == nil && y > 0 {
			event.FiscalYear = y
		}
		events = append(events, event)
	}

	sort.Slice(events, func(i, j int) bool { return events[i].Date.After(events[j].Date) })
	return events, nil
}

// parseFiscalQuarter accepts "Q1" or "1" style labels and returns "" otherwise.
func parseFiscalQuarter(raw string) string {
	q := strings.ToUpper(strings.TrimSpace(raw))
	q = strings.TrimPrefix(q, "Q")
	if len(q) == 1 && q[0] >= '1' && q[0] <= '4' {
		return "Q" + q
	}
	return ""
}

// ParseDailySeries decodes a TIME_SERIES_DAILY body into bars sorted oldest
// first. Entries with unparsable dates or prices are dropped.
func ParseDailySeries(symbol string, body []byte) ([]models.DailyPriceBar, error) {
	var resp map[string]json.RawMessage
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode daily series: %v", apperrors.ErrProvider, err)
	}

	raw, ok := resp[dailySeriesKey]
	if !ok {
		return nil, fmt.Errorf("%w: response lacks %q", apperrors.ErrProvider, dailySeriesKey)
	}

	var series map[string]dailyBar
	if err := json.Unmarshal(raw, &series); err != nil {
		return nil, fmt.Errorf("%w: decode daily series: %v", apperrors.ErrProvider, err)
	}

	symbol = models.NormalizeSymbol(symbol)
	bars := make([]models.DailyPriceBar, 0, len(series))
	for day, b := range series {
		date, err := models.ParseDate(day)
		if err != nil {
			continue
		}
		open, err := decimal.NewFromString(b.Open)
		if err != nil {
			continue
		}
		closePrice, err := decimal.NewFromString(b.Close)
		if err != nil {
			continue
		}
		bars = append(bars, models.DailyPriceBar{Symbol: symbol, Date: date, Open: open, Close: closePrice})
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars, nil
}

func parseOptionalDate(s string) (time.Time, bool) {
	if isNone(s) {
		return time.Time{}, false
	}
	t, err := models.ParseDate(s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func parseNullDecimal(s string) decimal.NullDecimal {
	if isNone(s) {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

func isNone(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || strings.EqualFold(s, "None")
}

func optional(s string) string {
	if isNone(s) {
		return ""
	}
	return strings.TrimSpace(s)
}
