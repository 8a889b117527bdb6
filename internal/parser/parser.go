// Package parser extracts bulletin metadata and cutoff tables from State
// Department HTML. It tolerates incidental markup drift (wrapping tags, NBSP,
// whitespace) but expects the tabular shape: first column is the category,
// remaining columns are country keyed.
//
// The parser never fails on a bad cell; it records a warning and keeps a
// per-run date-parse success rate that the normalizer turns into a quarantine
// decision.
package parser

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/unicode/norm"

	"github.com/visawatch/bulletin-cli/internal/model"
)

// Label identifies which bulletin the HTML is expected to be. It comes from
// the planner and backstops documents with no recognizable date.
type Label struct {
	Year      int
	Month     int
	SourceURL string
}

// Result is the parser output for one bulletin document.
type Result struct {
	Bulletin model.Bulletin
	Entries  []model.CategoryEntry
	Warnings []string

	// DateCellCandidates counts cells that were not C/U status codes and so
	// should have parsed as dates; DateCellsParsed counts the ones that did.
	DateCellCandidates int
	DateCellsParsed    int
}

// DateParseRate is the fraction of candidate date cells that parsed. A
// document with no date cells at all parses at rate 1.
func (r *Result) DateParseRate() float64 {
	if r.DateCellCandidates == 0 {
		return 1
	}
	return float64(r.DateCellsParsed) / float64(r.DateCellCandidates)
}

func (r *Result) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

var categorySignals = []string{
	"EMPLOYMENT", "FAMILY", "EB-", "1ST", "2ND", "3RD", "OTHER WORKERS",
	"F1", "F2A", "F2B", "F3", "F4",
}

var countrySignals = []string{
	"WORLDWIDE", "ALL CHARGEABILITY", "CHINA", "INDIA", "MEXICO", "PHILIPPINES",
}

// Parse extracts one bulletin and its category entries from raw HTML.
// Structural problems (no usable tables) return a ParseError; cell-level
// problems become warnings on the Result.
func Parse(html []byte, label Label) (*Result, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, &model.ParseError{URL: label.SourceURL, Msg: "not parseable as HTML: " + err.Error()}
	}

	res := &Result{}

	month, year, ok := extractBulletinDate(doc, label)
	if !ok {
		return nil, &model.ParseError{URL: label.SourceURL, Msg: "no bulletin date in document or label"}
	}

	res.Bulletin = model.Bulletin{
		FiscalYear:   model.FiscalYear(month, year),
		Month:        month,
		Year:         year,
		BulletinDate: model.Date(year, time.Month(month), 1),
		SourceURL:    label.SourceURL,
		RawHTML:      string(html),
	}

	// Walk headings and tables in document order so each table inherits the
	// chart named by the nearest preceding heading.
	chart := model.Chart("")
	sawTable := false
	doc.Find("h1, h2, h3, h4, h5, p, b, strong, u, table").Each(func(_ int, sel *goquery.Selection) {
		if goquery.NodeName(sel) != "table" {
			t := strings.ToUpper(cleanText(sel.Text()))
			// Headings are short; skip body paragraphs that merely mention
			// the chart names.
			if len(t) > 200 {
				return
			}
			if strings.Contains(t, "DATES FOR FILING") {
				chart = model.ChartDatesForFiling
			} else if strings.Contains(t, "FINAL ACTION DATE") || strings.Contains(t, "APPLICATION FINAL ACTION") {
				chart = model.ChartFinalAction
			}
			return
		}

		if !isVisaTable(sel) {
			return
		}
		sawTable = true
		if chart == "" {
			res.warnf("table skipped: no preceding chart heading")
			return
		}
		parseTable(sel, chart, res)
	})

	if !sawTable {
		return nil, &model.ParseError{URL: label.SourceURL, Msg: "no visa cutoff tables found"}
	}
	return res, nil
}

// isVisaTable requires both a category signal and a country signal in the
// header row.
func isVisaTable(table *goquery.Selection) bool {
	header := table.Find("tr").First()
	text := strings.ToUpper(cleanText(header.Text()))

	var hasCategory, hasCountry bool
	for _, s := range categorySignals {
		if strings.Contains(text, s) {
			hasCategory = true
			break
		}
	}
	for _, s := range countrySignals {
		if strings.Contains(text, s) {
			hasCountry = true
			break
		}
	}
	return hasCategory && hasCountry
}

func parseTable(table *goquery.Selection, chart model.Chart, res *Result) {
	rows := table.Find("tr")
	if rows.Length() < 2 {
		res.warnf("table skipped: fewer than two rows")
		return
	}

	// Country columns from the header row.
	countryCols := map[int]model.Country{}
	rows.First().Find("th, td").Each(func(i int, cell *goquery.Selection) {
		if i == 0 {
			return
		}
		if c, ok := matchCountry(cleanText(cell.Text())); ok {
			countryCols[i] = c
		}
	})
	if len(countryCols) == 0 {
		res.warnf("table skipped: no country columns recognized")
		return
	}

	rows.Slice(1, rows.Length()).Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("th, td")
		if cells.Length() < 2 {
			return
		}

		rawLabel := cleanText(cells.First().Text())
		category, ok := NormalizeCategory(rawLabel)
		if !ok {
			if rawLabel != "" {
				res.warnf("row dropped: unrecognized category %q", rawLabel)
			}
			return
		}

		cells.Each(func(i int, cell *goquery.Selection) {
			country, isCountry := countryCols[i]
			if !isCountry {
				return
			}
			entry, ok := parseCell(cleanText(cell.Text()), category, country, chart, res)
			if ok {
				res.Entries = append(res.Entries, entry)
			}
		})
	})
}

// parseCell interprets one table cell: "C", "U", or a cutoff date literal.
// Anything else drops the cell with a warning and counts against the
// date-parse rate.
func parseCell(text string, category model.Category, country model.Country, chart model.Chart, res *Result) (model.CategoryEntry, bool) {
	entry := model.CategoryEntry{
		Category: category,
		Country:  country,
		Chart:    chart,
	}

	switch strings.ToUpper(text) {
	case "":
		return entry, false
	case "C", "CURRENT":
		entry.Status = model.StatusCurrent
		return entry, true
	case "U", "UNAVAILABLE", "UNAVAIL":
		entry.Status = model.StatusUnavailable
		return entry, true
	}

	res.DateCellCandidates++
	d, ok := ParseCutoffDate(strings.ToUpper(text))
	if !ok {
		res.warnf("cell dropped: %s/%s %s: unparseable %q", category, country, chart, text)
		return entry, false
	}
	res.DateCellsParsed++
	entry.Status = model.StatusDated
	entry.PriorityDate = &d
	return entry, true
}

var (
	urlDateRe      = regexp.MustCompile(`visa-bulletin-for-([a-z]+)-(\d{4})\.html`)
	contentDateRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:for|bulletin)\s+([a-z]+)\s+(\d{4})`),
		regexp.MustCompile(`(?i)([a-z]+)\s+(\d{4})\s+visa\s+bulletin`),
	}
	monthNumbers = map[string]int{
		"january": 1, "february": 2, "march": 3, "april": 4,
		"may": 5, "june": 6, "july": 7, "august": 8,
		"september": 9, "october": 10, "november": 11, "december": 12,
	}
)

// extractBulletinDate tries the source URL, then the document text, then the
// planner label.
func extractBulletinDate(doc *goquery.Document, label Label) (month, year int, ok bool) {
	if m := urlDateRe.FindStringSubmatch(strings.ToLower(label.SourceURL)); m != nil {
		if mo, found := monthNumbers[m[1]]; found {
			if y, err := strconv.Atoi(m[2]); err == nil {
				return mo, y, true
			}
		}
	}

	text := cleanText(doc.Find("title, h1, h2, h3").Text())
	for _, re := range contentDateRes {
		if m := re.FindStringSubmatch(strings.ToLower(text)); m != nil {
			if mo, found := monthNumbers[m[1]]; found {
				if y, err := strconv.Atoi(m[2]); err == nil {
					return mo, y, true
				}
			}
		}
	}

	if label.Month >= 1 && label.Month <= 12 && label.Year > 0 {
		return label.Month, label.Year, true
	}
	return 0, 0, false
}

// cleanText folds NBSP and friends via NFKC and collapses whitespace.
func cleanText(s string) string {
	s = norm.NFKC.String(s)
	s = strings.ReplaceAll(s, " ", " ")
	return strings.Join(strings.Fields(s), " ")
}
