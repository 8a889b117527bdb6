package model

import "github.com/rotisserie/eris"

// Category is a visa preference category as published in the bulletin.
type Category string

const (
	CategoryEB1             Category = "EB1"
	CategoryEB2             Category = "EB2"
	CategoryEB3             Category = "EB3"
	CategoryEB3OtherWorkers Category = "EB3_OTHER_WORKERS"
	CategoryEB4             Category = "EB4"
	CategoryEB5             Category = "EB5"
	CategoryF1              Category = "F1"
	CategoryF2A             Category = "F2A"
	CategoryF2B             Category = "F2B"
	CategoryF3              Category = "F3"
	CategoryF4              Category = "F4"
)

// Categories lists every supported category in a stable order.
func Categories() []Category {
	return []Category{
		CategoryEB1, CategoryEB2, CategoryEB3, CategoryEB3OtherWorkers,
		CategoryEB4, CategoryEB5,
		CategoryF1, CategoryF2A, CategoryF2B, CategoryF3, CategoryF4,
	}
}

// ParseCategory parses a canonical category string. Raw bulletin labels are
// handled by the parser package; this only accepts canonical values.
func ParseCategory(s string) (Category, error) {
	c := Category(s)
	switch c {
	case CategoryEB1, CategoryEB2, CategoryEB3, CategoryEB3OtherWorkers,
		CategoryEB4, CategoryEB5,
		CategoryF1, CategoryF2A, CategoryF2B, CategoryF3, CategoryF4:
		return c, nil
	}
	return "", eris.Errorf("model: unknown category %q", s)
}

// IsEmployment reports whether the category is employment based.
func (c Category) IsEmployment() bool {
	switch c {
	case CategoryEB1, CategoryEB2, CategoryEB3, CategoryEB3OtherWorkers, CategoryEB4, CategoryEB5:
		return true
	}
	return false
}

// Country is a chargeability area with its own per-country queue.
type Country string

const (
	CountryWorldwide   Country = "WORLDWIDE"
	CountryChina       Country = "CHINA"
	CountryIndia       Country = "INDIA"
	CountryMexico      Country = "MEXICO"
	CountryPhilippines Country = "PHILIPPINES"
)

// Countries lists every supported chargeability area in a stable order.
func Countries() []Country {
	return []Country{CountryWorldwide, CountryChina, CountryIndia, CountryMexico, CountryPhilippines}
}

// ParseCountry parses a canonical country string.
func ParseCountry(s string) (Country, error) {
	c := Country(s)
	switch c {
	case CountryWorldwide, CountryChina, CountryIndia, CountryMexico, CountryPhilippines:
		return c, nil
	}
	return "", eris.Errorf("model: unknown country %q", s)
}

// Chart distinguishes the two cutoff tables each bulletin publishes.
type Chart string

const (
	ChartFinalAction    Chart = "FINAL_ACTION"
	ChartDatesForFiling Chart = "DATES_FOR_FILING"
)

// ParseChart parses a canonical chart string.
func ParseChart(s string) (Chart, error) {
	c := Chart(s)
	switch c {
	case ChartFinalAction, ChartDatesForFiling:
		return c, nil
	}
	return "", eris.Errorf("model: unknown chart %q", s)
}

// EntryStatus is the state of one category/country cell.
type EntryStatus string

const (
	StatusCurrent     EntryStatus = "CURRENT"
	StatusUnavailable EntryStatus = "UNAVAILABLE"
	StatusDated       EntryStatus = "DATED"
)

// ParseEntryStatus parses a canonical status string.
func ParseEntryStatus(s string) (EntryStatus, error) {
	st := EntryStatus(s)
	switch st {
	case StatusCurrent, StatusUnavailable, StatusDated:
		return st, nil
	}
	return "", eris.Errorf("model: unknown entry status %q", s)
}

// TrendDirection classifies the movement of a priority-date series.
type TrendDirection string

const (
	TrendAdvancing     TrendDirection = "ADVANCING"
	TrendStable        TrendDirection = "STABLE"
	TrendRetrogressing TrendDirection = "RETROGRESSING"
	TrendMixed         TrendDirection = "MIXED"
)
