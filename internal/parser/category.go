package parser

import (
	"strings"

	"github.com/visawatch/bulletin-cli/internal/model"
)

// NormalizeCategory maps a raw first-column label to a canonical category.
// Bulletins label employment rows inconsistently across two decades: ordinals
// ("1st"), codes ("EB-3"), and prose ("Professionals and Skilled Workers").
// "Other Workers" must be matched before any EB-3 pattern because historical
// rows read "3rd Other Workers". Returns false for labels that are not visa
// category rows (section headers, footnote rows).
func NormalizeCategory(label string) (model.Category, bool) {
	s := strings.ToUpper(strings.TrimSpace(label))
	if s == "" {
		return "", false
	}

	if strings.Contains(s, "OTHER WORKERS") {
		return model.CategoryEB3OtherWorkers, true
	}

	// Family preference codes are published as-is.
	switch {
	case strings.HasPrefix(s, "F2A"):
		return model.CategoryF2A, true
	case strings.HasPrefix(s, "F2B"):
		return model.CategoryF2B, true
	case strings.HasPrefix(s, "F1"):
		return model.CategoryF1, true
	case strings.HasPrefix(s, "F3"):
		return model.CategoryF3, true
	case strings.HasPrefix(s, "F4"):
		return model.CategoryF4, true
	}

	switch {
	case strings.Contains(s, "EB-1"), strings.Contains(s, "EB1"),
		strings.HasPrefix(s, "1ST"), strings.Contains(s, "PRIORITY WORKERS"):
		return model.CategoryEB1, true
	case strings.Contains(s, "EB-2"), strings.Contains(s, "EB2"),
		strings.HasPrefix(s, "2ND"), strings.Contains(s, "ADVANCED DEGREE"):
		return model.CategoryEB2, true
	case strings.Contains(s, "EB-3"), strings.Contains(s, "EB3"),
		strings.HasPrefix(s, "3RD"), strings.Contains(s, "SKILLED WORKERS"):
		return model.CategoryEB3, true
	case strings.Contains(s, "EB-4"), strings.Contains(s, "EB4"),
		strings.HasPrefix(s, "4TH"), strings.Contains(s, "SPECIAL IMMIGRANTS"),
		strings.Contains(s, "RELIGIOUS WORKERS"):
		return model.CategoryEB4, true
	case strings.Contains(s, "EB-5"), strings.Contains(s, "EB5"),
		strings.HasPrefix(s, "5TH"), strings.Contains(s, "EMPLOYMENT 5TH"),
		strings.Contains(s, "INVESTOR"), strings.Contains(s, "UNRESERVED"),
		strings.Contains(s, "C5 AND T5"), strings.Contains(s, "I5 AND R5"):
		return model.CategoryEB5, true
	}

	return "", false
}

// matchCountry maps a column header to a chargeability area. The State
// Department writes these many ways ("CHINA-mainland born", "All
// Chargeability Areas Except Those Listed").
func matchCountry(header string) (model.Country, bool) {
	s := strings.ToUpper(header)
	switch {
	case strings.Contains(s, "CHINA"):
		return model.CountryChina, true
	case strings.Contains(s, "INDIA"):
		return model.CountryIndia, true
	case strings.Contains(s, "MEXICO"):
		return model.CountryMexico, true
	case strings.Contains(s, "PHILIPPINES"):
		return model.CountryPhilippines, true
	case strings.Contains(s, "WORLDWIDE"), strings.Contains(s, "ALL CHARGEABILITY"):
		return model.CountryWorldwide, true
	}
	return "", false
}
