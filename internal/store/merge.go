package store

import (
	"fmt"

	"earnings-tracker/internal/models"
)

// Precedence decides which side of a merge wins for one field.
type Precedence int

const (
	// PreferIncoming always takes the incoming value, even when empty.
	PreferIncoming Precedence = iota
	// PreferIncomingIfPresent takes the incoming value unless it is absent.
	PreferIncomingIfPresent
	// PreferExisting keeps the stored value once one exists.
	PreferExisting
)

func (p Precedence) String() string {
	switch p {
	case PreferIncoming:
		return "prefer-incoming"
	case PreferIncomingIfPresent:
		return "prefer-incoming-if-present"
	case PreferExisting:
		return "prefer-existing"
	default:
		return fmt.Sprintf("precedence(%d)", int(p))
	}
}

// Field names a mergeable earnings column.
type Field string

const (
	FieldTiming           Field = "timing"
	FieldFiscalDateEnding Field = "fiscal_date_ending"
	FieldFiscalQuarter    Field = "fiscal_quarter"
	FieldFiscalYear       Field = "fiscal_year"
	FieldEstimatedEPS     Field = "estimated_eps"
	FieldReportedEPS      Field = "reported_eps"
	FieldSurprise         Field = "surprise"
	FieldSurprisePercent  Field = "surprise_percent"
)

// FieldRule binds a field to its precedence.
type FieldRule struct {
	Field      Field
	Precedence Precedence
}

// MergePolicy is an ordered rule table. Fields it does not mention keep the
// stored value.
type MergePolicy []FieldRule

// DefaultMergePolicy fills gaps from newer payloads without letting an empty
// payload erase what is already known. TNS counts as absent for timing.
func DefaultMergePolicy() MergePolicy {
	return MergePolicy{
		{FieldTiming, PreferIncomingIfPresent},
		{FieldFiscalDateEnding, PreferIncomingIfPresent},
		{FieldFiscalQuarter, PreferIncomingIfPresent},
		{FieldFiscalYear, PreferIncomingIfPresent},
		{FieldEstimatedEPS, PreferIncomingIfPresent},
		{FieldReportedEPS, PreferIncomingIfPresent},
		{FieldSurprise, PreferIncomingIfPresent},
		{FieldSurprisePercent, PreferIncomingIfPresent},
	}
}

type fieldAccess struct {
	present func(e *models.EarningsEvent) bool
	copy    func(dst, src *models.EarningsEvent)
	equal   func(a, b *models.EarningsEvent) bool
}

var fieldAccessors = map[Field]fieldAccess{
	FieldTiming: {
		present: func(e *models.EarningsEvent) bool { return e.Timing.Known() },
		copy:    func(dst, src *models.EarningsEvent) { dst.Timing = src.Timing },
		equal:   func(a, b *models.EarningsEvent) bool { return a.Timing == b.Timing },
	},
	FieldFiscalDateEnding: {
		present: func(e *models.EarningsEvent) bool { return !e.FiscalDateEnding.IsZero() },
		copy:    func(dst, src *models.EarningsEvent) { dst.FiscalDateEnding = src.FiscalDateEnding },
		equal:   func(a, b *models.EarningsEvent) bool { return a.FiscalDateEnding.Equal(b.FiscalDateEnding) },
	},
	FieldFiscalQuarter: {
		present: func(e *models.EarningsEvent) bool { return e.FiscalQuarter != "" },
		copy:    func(dst, src *models.EarningsEvent) { dst.FiscalQuarter = src.FiscalQuarter },
		equal:   func(a, b *models.EarningsEvent) bool { return a.FiscalQuarter == b.FiscalQuarter },
	},
	FieldFiscalYear: {
		present: func(e *models.EarningsEvent) bool { return e.FiscalYear != 0 },
		copy:    func(dst, src *models.EarningsEvent) { dst.FiscalYear = src.FiscalYear },
		equal:   func(a, b *models.EarningsEvent) bool { return a.FiscalYear == b.FiscalYear },
	},
	FieldEstimatedEPS: {
		present: func(e *models.EarningsEvent) bool { return e.EstimatedEPS.Valid },
		copy:    func(dst, src *models.EarningsEvent) { dst.EstimatedEPS = src.EstimatedEPS },
		equal:   func(a, b *models.EarningsEvent) bool { return nullEqual(a.EstimatedEPS.Valid, b.EstimatedEPS.Valid, a.EstimatedEPS.Decimal.Equal(b.EstimatedEPS.Decimal)) },
	},
	FieldReportedEPS: {
		present: func(e *models.EarningsEvent) bool { return e.ReportedEPS.Valid },
		copy:    func(dst, src *models.EarningsEvent) { dst.ReportedEPS = src.ReportedEPS },
		equal:   func(a, b *models.EarningsEvent) bool { return nullEqual(a.ReportedEPS.Valid, b.ReportedEPS.Valid, a.ReportedEPS.Decimal.Equal(b.ReportedEPS.Decimal)) },
	},
	FieldSurprise: {
		present: func(e *models.EarningsEvent) bool { return e.Surprise.Valid },
		copy:    func(dst, src *models.EarningsEvent) { dst.Surprise = src.Surprise },
		equal:   func(a, b *models.EarningsEvent) bool { return nullEqual(a.Surprise.Valid, b.Surprise.Valid, a.Surprise.Decimal.Equal(b.Surprise.Decimal)) },
	},
	FieldSurprisePercent: {
		present: func(e *models.EarningsEvent) bool { return e.SurprisePercent.Valid },
		copy:    func(dst, src *models.EarningsEvent) { dst.SurprisePercent = src.SurprisePercent },
		equal:   func(a, b *models.EarningsEvent) bool { return nullEqual(a.SurprisePercent.Valid, b.SurprisePercent.Valid, a.SurprisePercent.Decimal.Equal(b.SurprisePercent.Decimal)) },
	},
}

func nullEqual(aValid, bValid, valuesEqual bool) bool {
	if aValid != bValid {
		return false
	}
	return !aValid || valuesEqual
}

// Validate rejects rules naming unknown fields or listing a field twice.
func (p MergePolicy) Validate() error {
	seen := make(map[Field]bool, len(p))
	for _, r := range p {
		if _, ok := fieldAccessors[r.Field]; !ok {
			return fmt.Errorf("unknown merge field %q", r.Field)
		}
		if seen[r.Field] {
			return fmt.Errorf("merge field %q listed twice", r.Field)
		}
		seen[r.Field] = true
	}
	return nil
}

// MergeEarnings combines a stored event with an incoming one for the same
// (symbol, date). It reports whether the result differs from existing; a nil
// existing always yields incoming and true.
func MergeEarnings(existing *models.EarningsEvent, incoming models.EarningsEvent, policy MergePolicy) (models.EarningsEvent, bool) {
	if existing == nil {
		return incoming, true
	}

	merged := *existing
	for _, r := range policy {
		acc, ok := fieldAccessors[r.Field]
		if !ok {
			continue
		}
		switch r.Precedence {
		case PreferIncoming:
			acc.copy(&merged, &incoming)
		case PreferIncomingIfPresent:
			if acc.present(&incoming) {
				acc.copy(&merged, &incoming)
			}
		case PreferExisting:
			if !acc.present(existing) {
				acc.copy(&merged, &incoming)
			}
		}
	}

	return merged, !sameEvent(existing, &merged)
}

func sameEvent(a, b *models.EarningsEvent) bool {
	for _, acc := range fieldAccessors {
		if !acc.equal(a, b) {
			return false
		}
	}
	return true
}
