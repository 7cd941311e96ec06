package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Calendar dates go on the wire as YYYY-MM-DD and unset ones as null.
// Unset timestamps are left out.

type jsonDate time.Time

func (d jsonDate) MarshalJSON() ([]byte, error) {
	t := time.Time(d)
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(strconv.Quote(t.UTC().Format(DateLayout))), nil
}

func (d *jsonDate) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*d = jsonDate{}
		return nil
	}
	s, err := strconv.Unquote(string(b))
	if err != nil {
		return fmt.Errorf("invalid date %s", b)
	}
	t, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = jsonDate(t)
	return nil
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func (e EarningsEvent) MarshalJSON() ([]byte, error) {
	type plain EarningsEvent
	return json.Marshal(struct {
		plain
		Date             jsonDate   `json:"date"`
		FiscalDateEnding jsonDate   `json:"fiscal_date_ending"`
		UpdatedAt        *time.Time `json:"updated_at,omitempty"`
	}{plain(e), jsonDate(e.Date), jsonDate(e.FiscalDateEnding), optionalTime(e.UpdatedAt)})
}

func (e *EarningsEvent) UnmarshalJSON(b []byte) error {
	type plain EarningsEvent
	aux := struct {
		*plain
		Date             jsonDate   `json:"date"`
		FiscalDateEnding jsonDate   `json:"fiscal_date_ending"`
		UpdatedAt        *time.Time `json:"updated_at,omitempty"`
	}{plain: (*plain)(e)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	e.Date = time.Time(aux.Date)
	e.FiscalDateEnding = time.Time(aux.FiscalDateEnding)
	e.UpdatedAt = timeOrZero(aux.UpdatedAt)
	return nil
}

func (b DailyPriceBar) MarshalJSON() ([]byte, error) {
	type plain DailyPriceBar
	return json.Marshal(struct {
		plain
		Date jsonDate `json:"date"`
	}{plain(b), jsonDate(b.Date)})
}

func (b *DailyPriceBar) UnmarshalJSON(data []byte) error {
	type plain DailyPriceBar
	aux := struct {
		*plain
		Date jsonDate `json:"date"`
	}{plain: (*plain)(b)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	b.Date = time.Time(aux.Date)
	return nil
}

func (e AlignedEffect) MarshalJSON() ([]byte, error) {
	type plain AlignedEffect
	return json.Marshal(struct {
		plain
		Date       jsonDate `json:"date"`
		BeforeDate jsonDate `json:"before_date"`
		AfterDate  jsonDate `json:"after_date"`
	}{plain(e), jsonDate(e.Date), jsonDate(e.BeforeDate), jsonDate(e.AfterDate)})
}

func (e *AlignedEffect) UnmarshalJSON(b []byte) error {
	type plain AlignedEffect
	aux := struct {
		*plain
		Date       jsonDate `json:"date"`
		BeforeDate jsonDate `json:"before_date"`
		AfterDate  jsonDate `json:"after_date"`
	}{plain: (*plain)(e)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	e.Date = time.Time(aux.Date)
	e.BeforeDate = time.Time(aux.BeforeDate)
	e.AfterDate = time.Time(aux.AfterDate)
	return nil
}

func (r CalculatorResult) MarshalJSON() ([]byte, error) {
	type plain CalculatorResult
	return json.Marshal(struct {
		plain
		FirstDate jsonDate `json:"first_date"`
		LastDate  jsonDate `json:"last_date"`
	}{plain(r), jsonDate(r.FirstDate), jsonDate(r.LastDate)})
}

func (r SyncRun) MarshalJSON() ([]byte, error) {
	type plain SyncRun
	return json.Marshal(struct {
		plain
		FinishedAt *time.Time `json:"finished_at,omitempty"`
	}{plain(r), optionalTime(r.FinishedAt)})
}

func (r *SyncRun) UnmarshalJSON(b []byte) error {
	type plain SyncRun
	aux := struct {
		*plain
		FinishedAt *time.Time `json:"finished_at,omitempty"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	r.FinishedAt = timeOrZero(aux.FinishedAt)
	return nil
}

func (s SystemStatus) MarshalJSON() ([]byte, error) {
	type plain SystemStatus
	return json.Marshal(struct {
		plain
		LastProviderAt *time.Time `json:"last_provider_call,omitempty"`
	}{plain(s), optionalTime(s.LastProviderAt)})
}
