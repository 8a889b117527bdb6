// Package planner enumerates candidate bulletin URLs. The State Department
// publishes each monthly bulletin at a deterministic path under its
// fiscal-year directory, with the month spelled out in English:
//
//	{base}/{fiscal_year}/visa-bulletin-for-{month}-{calendar_year}.html
//
// Enumeration is pure; only "current" mode (see Current) touches the network.
package planner

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/visawatch/bulletin-cli/internal/model"
)

// Candidate is one planned bulletin URL with its calendar identity.
type Candidate struct {
	FiscalYear int
	Year       int
	Month      int
	URL        string
}

var monthNames = []string{
	"january", "february", "march", "april", "may", "june",
	"july", "august", "september", "october", "november", "december",
}

// Planner builds bulletin URLs from a base URL.
type Planner struct {
	baseURL  string
	indexURL string
}

// New creates a Planner. baseURL is the bulletin root (no trailing slash);
// indexURL is the landing page used by Current.
func New(baseURL, indexURL string) *Planner {
	return &Planner{
		baseURL:  strings.TrimRight(baseURL, "/"),
		indexURL: indexURL,
	}
}

// BulletinURL returns the canonical URL for the bulletin of one calendar
// (year, month). The path segment is the fiscal year the bulletin belongs to.
func (p *Planner) BulletinURL(year, month int) (string, error) {
	if month < 1 || month > 12 {
		return "", eris.Errorf("planner: invalid month %d", month)
	}
	if year < 1990 || year > 2100 {
		return "", eris.Errorf("planner: invalid year %d", year)
	}
	fy := model.FiscalYear(month, year)
	return fmt.Sprintf("%s/%d/visa-bulletin-for-%s-%d.html", p.baseURL, fy, monthNames[month-1], year), nil
}

// Plan enumerates candidates for the inclusive fiscal-year range [fyFrom,
// fyTo] in fiscal order (October first). Deterministic from its inputs.
func (p *Planner) Plan(fyFrom, fyTo int) ([]Candidate, error) {
	if fyFrom > fyTo {
		return nil, eris.Errorf("planner: fiscal year range inverted: %d > %d", fyFrom, fyTo)
	}
	var out []Candidate
	for fy := fyFrom; fy <= fyTo; fy++ {
		for i := 0; i < 12; i++ {
			// FY starts in October of the prior calendar year.
			month := (9+i)%12 + 1
			year := fy
			if month >= 10 {
				year = fy - 1
			}
			u, err := p.BulletinURL(year, month)
			if err != nil {
				return nil, err
			}
			out = append(out, Candidate{FiscalYear: fy, Year: year, Month: month, URL: u})
		}
	}
	return out, nil
}

var bulletinHrefRe = regexp.MustCompile(`visa-bulletin-for-([a-z]+)-(\d{4})\.html`)

// IndexFetcher fetches the raw HTML of the bulletin index page.
type IndexFetcher interface {
	FetchIndex(ctx context.Context, indexURL string) ([]byte, error)
}

// Current fetches the index page and returns the topmost published bulletin
// link as a Candidate.
func (p *Planner) Current(ctx context.Context, f IndexFetcher) (Candidate, error) {
	body, err := f.FetchIndex(ctx, p.indexURL)
	if err != nil {
		return Candidate{}, eris.Wrap(err, "planner: fetch index")
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return Candidate{}, eris.Wrap(err, "planner: parse index")
	}

	var found Candidate
	var ok bool
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		m := bulletinHrefRe.FindStringSubmatch(strings.ToLower(href))
		if m == nil {
			return true
		}
		month := monthIndex(m[1])
		if month == 0 {
			return true
		}
		year, convErr := strconv.Atoi(m[2])
		if convErr != nil {
			return true
		}
		found = Candidate{
			FiscalYear: model.FiscalYear(month, year),
			Year:       year,
			Month:      month,
			URL:        p.resolve(href),
		}
		ok = true
		return false // topmost link wins
	})
	if !ok {
		return Candidate{}, eris.New("planner: no bulletin link on index page")
	}
	return found, nil
}

func monthIndex(name string) int {
	for i, m := range monthNames {
		if m == name {
			return i + 1
		}
	}
	return 0
}

func (p *Planner) resolve(href string) string {
	base, err := url.Parse(p.indexURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
