// Package model holds the canonical entities for the visa bulletin pipeline.
// All values are storage independent; the store package maps them to SQL.
package model

import "time"

// Bulletin is one monthly State Department visa bulletin. (Year, Month) is the
// natural identity; FiscalYear is always derived via FiscalYear(), never
// trusted from the source document.
type Bulletin struct {
	ID           int64     `json:"id"`
	FiscalYear   int       `json:"fiscal_year"`
	Month        int       `json:"month"`
	Year         int       `json:"year"`
	BulletinDate time.Time `json:"bulletin_date"`
	SourceURL    string    `json:"source_url"`
	RawHTML      string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// FiscalYear derives the US federal fiscal year for a calendar (month, year).
// FY N runs October of year N-1 through September of year N.
func FiscalYear(month, year int) int {
	if month >= 10 {
		return year + 1
	}
	return year
}

// CategoryEntry is one cell of a bulletin cutoff table.
// PriorityDate is set iff Status == StatusDated.
type CategoryEntry struct {
	ID           int64       `json:"id"`
	BulletinID   int64       `json:"bulletin_id"`
	Category     Category    `json:"category"`
	Country      Country     `json:"country"`
	Chart        Chart       `json:"chart"`
	Status       EntryStatus `json:"status"`
	PriorityDate *time.Time  `json:"priority_date,omitempty"`
	Notes        string      `json:"notes,omitempty"`
}

// SeriesKey identifies one (category, country, chart) time series.
type SeriesKey struct {
	Category Category `json:"category"`
	Country  Country  `json:"country"`
	Chart    Chart    `json:"chart"`
}

// SeriesPoint is one observation of a series, ordered by BulletinDate.
type SeriesPoint struct {
	BulletinDate time.Time   `json:"bulletin_date"`
	Status       EntryStatus `json:"status"`
	PriorityDate *time.Time  `json:"priority_date,omitempty"`
}

// Momentum compares the recent six observed deltas against the six before.
type Momentum struct {
	RecentMeanDays  float64 `json:"recent_mean_days"`
	EarlierMeanDays float64 `json:"earlier_mean_days"`
	ChangeDays      float64 `json:"change_days"`
}

// TrendSummary is the derived trend statistics for one series over a window.
type TrendSummary struct {
	Key                  SeriesKey        `json:"key"`
	WindowMonths         int              `json:"window_months"`
	StartDate            time.Time        `json:"start_date"`
	EndDate              time.Time        `json:"end_date"`
	Observations         int              `json:"observations"`
	TotalAdvancementDays int              `json:"total_advancement_days"`
	MeanMonthlyDays      float64          `json:"mean_monthly_days"`
	Volatility           float64          `json:"volatility"`
	TrendDirection       TrendDirection   `json:"trend_direction"`
	SeasonalFactors      map[int]*float64 `json:"seasonal_factors,omitempty"`
	BestMonth            int              `json:"best_month,omitempty"`
	WorstMonth           int              `json:"worst_month,omitempty"`
	Momentum             *Momentum        `json:"momentum,omitempty"`
}

// Forecast is a predicted cutoff for a series at a target month.
type Forecast struct {
	Key           SeriesKey  `json:"key"`
	TargetYear    int        `json:"target_year"`
	TargetMonth   int        `json:"target_month"`
	PredictedDate *time.Time `json:"predicted_date,omitempty"`
	Confidence    float64    `json:"confidence"`
	ModelID       string     `json:"model_id"`
	ProducedAt    time.Time  `json:"produced_at"`
	FeaturesHash  string     `json:"features_hash"`
}

// StoreStats summarizes repository contents.
type StoreStats struct {
	BulletinCount int        `json:"bulletin_count"`
	EntryCount    int        `json:"entry_count"`
	Earliest      *time.Time `json:"earliest,omitempty"`
	Latest        *time.Time `json:"latest,omitempty"`
	LastIngestAt  *time.Time `json:"last_ingest_at,omitempty"`
}

// Date returns a UTC midnight time for a calendar date. Priority dates carry
// no time-of-day component, so every date in the pipeline goes through here.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DatePtr is Date returning a pointer, for optional priority dates.
func DatePtr(year int, month time.Month, day int) *time.Time {
	d := Date(year, month, day)
	return &d
}
