package parser

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/visawatch/bulletin-cli/internal/model"
)

// Accepted cutoff-date forms, attempted in order. DDMMMYY is the canonical
// State Department form; the rest appear in older bulletins.
var monthAbbrevs = map[string]time.Month{
	"JAN": time.January, "FEB": time.February, "MAR": time.March,
	"APR": time.April, "MAY": time.May, "JUN": time.June,
	"JUL": time.July, "AUG": time.August, "SEP": time.September,
	"OCT": time.October, "NOV": time.November, "DEC": time.December,
}

var (
	ddmmmyyRe   = regexp.MustCompile(`^(\d{1,2})([A-Z]{3})(\d{2})$`)
	mmmDDYYYYRe = regexp.MustCompile(`^([A-Z]{3,9})\.?\s+(\d{1,2}),?\s+(\d{4})$`)
	ddMMMYYYYRe = regexp.MustCompile(`^(\d{1,2})\s+([A-Z]{3,9})\.?\s+(\d{4})$`)
	slashRe     = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{2}|\d{4})$`)
)

// expandTwoDigitYear applies the pivot: 50 and above is 19xx, below is 20xx.
func expandTwoDigitYear(yy int) int {
	if yy >= 50 {
		return 1900 + yy
	}
	return 2000 + yy
}

func monthFromName(name string) (time.Month, bool) {
	if m, ok := monthAbbrevs[name]; ok {
		return m, true
	}
	// Full month names in older bulletins.
	if len(name) > 3 {
		if m, ok := monthAbbrevs[name[:3]]; ok {
			full := strings.ToUpper(m.String())
			if full == name {
				return m, true
			}
		}
	}
	return 0, false
}

// ParseCutoffDate parses a cleaned, upper-cased cell as a cutoff date.
// Returns false for anything that is not a recognized date literal; callers
// decide how to account for the failure.
func ParseCutoffDate(s string) (time.Time, bool) {
	if m := ddmmmyyRe.FindStringSubmatch(s); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, ok := monthAbbrevs[m[2]]
		if !ok {
			return time.Time{}, false
		}
		year := expandTwoDigitYear(mustAtoi(m[3]))
		return validateDate(year, month, day)
	}

	if m := mmmDDYYYYRe.FindStringSubmatch(s); m != nil {
		month, ok := monthFromName(m[1])
		if !ok {
			return time.Time{}, false
		}
		day, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		return validateDate(year, month, day)
	}

	if m := ddMMMYYYYRe.FindStringSubmatch(s); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, ok := monthFromName(m[2])
		if !ok {
			return time.Time{}, false
		}
		year, _ := strconv.Atoi(m[3])
		return validateDate(year, month, day)
	}

	if m := slashRe.FindStringSubmatch(s); m != nil {
		month, _ := strconv.Atoi(m[1])
		day, _ := strconv.Atoi(m[2])
		year := mustAtoi(m[3])
		if len(m[3]) == 2 {
			year = expandTwoDigitYear(year)
		}
		if month < 1 || month > 12 {
			return time.Time{}, false
		}
		return validateDate(year, time.Month(month), day)
	}

	return time.Time{}, false
}

// validateDate rejects day overflow: time.Date would silently normalize
// 31FEB23 into March.
func validateDate(year int, month time.Month, day int) (time.Time, bool) {
	if day < 1 || day > 31 {
		return time.Time{}, false
	}
	d := model.Date(year, month, day)
	if d.Day() != day || d.Month() != month || d.Year() != year {
		return time.Time{}, false
	}
	return d, true
}

func mustAtoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
