package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Timing describes when an earnings report is released relative to the session.
type Timing string

const (
	TimingBMO Timing = "BMO" // before market open
	TimingAMC Timing = "AMC" // after market close
	TimingTNS Timing = "TNS" // time not supplied
)

// ParseTiming accepts the canonical codes and the provider's report-time strings.
// Anything unrecognized is TNS.
func ParseTiming(s string) Timing {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bmo", "pre-market", "premarket", "before market open":
		return TimingBMO
	case "amc", "post-market", "postmarket", "after market close":
		return TimingAMC
	default:
		return TimingTNS
	}
}

// Known reports whether the timing was actually supplied.
func (t Timing) Known() bool {
	return t == TimingBMO || t == TimingAMC
}

// EarningsEvent is one quarterly report for a symbol. Unique per (Symbol, Date).
type EarningsEvent struct {
	Symbol           string              `json:"symbol"`
	Date             time.Time           `json:"date"`
	Timing           Timing              `json:"timing"`
	FiscalDateEnding time.Time           `json:"fiscal_date_ending"`
	FiscalQuarter    string              `json:"fiscal_quarter,omitempty"`
	FiscalYear       int                 `json:"fiscal_year,omitempty"`
	EstimatedEPS     decimal.NullDecimal `json:"estimated_eps"`
	ReportedEPS      decimal.NullDecimal `json:"reported_eps"`
	Surprise         decimal.NullDecimal `json:"surprise"`
	SurprisePercent  decimal.NullDecimal `json:"surprise_percent"`
	UpdatedAt        time.Time           `json:"updated_at,omitempty"`
}

// DailyPriceBar is one trading day of a symbol. Absence of a bar means the
// market was closed for that symbol on that date.
type DailyPriceBar struct {
	Symbol string          `json:"symbol"`
	Date   time.Time       `json:"date"`
	Open   decimal.Decimal `json:"open"`
	Close  decimal.Decimal `json:"close"`
}

// EffectStatus says how much of an earnings effect could be resolved.
type EffectStatus string

const (
	EffectComplete EffectStatus = "complete"
	EffectPartial  EffectStatus = "partial"
	EffectMissing  EffectStatus = "missing"
)

// AlignedEffect is the price reaction bracketing one earnings event.
// It is derived on read and never stored.
type AlignedEffect struct {
	Symbol        string              `json:"symbol"`
	Date          time.Time           `json:"date"`
	Timing        Timing              `json:"timing"`
	BeforeDate    time.Time           `json:"before_date"`
	Before        decimal.NullDecimal `json:"before"`
	AfterDate     time.Time           `json:"after_date"`
	After         decimal.NullDecimal `json:"after"`
	PercentChange decimal.NullDecimal `json:"percent_change"`
	Status        EffectStatus        `json:"status"`
}

// Complete reports whether both sides and the percent change are present.
func (e AlignedEffect) Complete() bool {
	return e.Status == EffectComplete && e.PercentChange.Valid
}
