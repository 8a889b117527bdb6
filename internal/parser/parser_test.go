package parser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visawatch/bulletin-cli/internal/model"
)

const sourceURL = "https://travel.example.gov/visa-bulletin/2025/visa-bulletin-for-march-2025.html"

func employmentTable(cells string) string {
	return `<table>
		<tr><td>Employment-based</td>
			<td>All Chargeability Areas Except Those Listed</td>
			<td>CHINA-mainland born</td>
			<td>INDIA</td></tr>
		` + cells + `
	</table>`
}

func TestParseBulletinIdentityFromURL(t *testing.T) {
	html := `<html><body>
		<h3>A. FINAL ACTION DATES FOR EMPLOYMENT-BASED PREFERENCE CASES</h3>
		` + employmentTable(`<tr><td>1st</td><td>C</td><td>C</td><td>C</td></tr>`) + `
	</body></html>`

	res, err := Parse([]byte(html), Label{SourceURL: sourceURL})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Bulletin.Month)
	assert.Equal(t, 2025, res.Bulletin.Year)
	assert.Equal(t, 2025, res.Bulletin.FiscalYear)
	assert.Equal(t, model.Date(2025, time.March, 1), res.Bulletin.BulletinDate)
	assert.Equal(t, sourceURL, res.Bulletin.SourceURL)
	assert.Equal(t, html, res.Bulletin.RawHTML)
}

func TestParseEntriesAndStatuses(t *testing.T) {
	html := `<html><body>
		<h3>A. FINAL ACTION DATES FOR EMPLOYMENT-BASED PREFERENCE CASES</h3>
		` + employmentTable(`
		<tr><td>1st</td><td>C</td><td>C</td><td>U</td></tr>
		<tr><td>2nd</td><td>C</td><td>01JAN20</td><td>01MAR12</td></tr>
		`) + `
	</body></html>`

	res, err := Parse([]byte(html), Label{SourceURL: sourceURL})
	require.NoError(t, err)
	require.Len(t, res.Entries, 6)

	byKey := map[model.SeriesKey]model.CategoryEntry{}
	for _, e := range res.Entries {
		byKey[model.SeriesKey{Category: e.Category, Country: e.Country, Chart: e.Chart}] = e
	}

	e := byKey[model.SeriesKey{Category: model.CategoryEB1, Country: model.CountryIndia, Chart: model.ChartFinalAction}]
	assert.Equal(t, model.StatusUnavailable, e.Status)
	assert.Nil(t, e.PriorityDate)

	e = byKey[model.SeriesKey{Category: model.CategoryEB2, Country: model.CountryWorldwide, Chart: model.ChartFinalAction}]
	assert.Equal(t, model.StatusCurrent, e.Status)

	e = byKey[model.SeriesKey{Category: model.CategoryEB2, Country: model.CountryChina, Chart: model.ChartFinalAction}]
	assert.Equal(t, model.StatusDated, e.Status)
	require.NotNil(t, e.PriorityDate)
	assert.Equal(t, model.Date(2020, time.January, 1), *e.PriorityDate)
}

func TestParseChartFromNearestHeading(t *testing.T) {
	html := `<html><body>
		<h3>A. FINAL ACTION DATES FOR EMPLOYMENT-BASED PREFERENCE CASES</h3>
		` + employmentTable(`<tr><td>1st</td><td>C</td><td>C</td><td>C</td></tr>`) + `
		<h3>B. DATES FOR FILING OF EMPLOYMENT-BASED VISA APPLICATIONS</h3>
		` + employmentTable(`<tr><td>1st</td><td>C</td><td>C</td><td>C</td></tr>`) + `
	</body></html>`

	res, err := Parse([]byte(html), Label{SourceURL: sourceURL})
	require.NoError(t, err)
	require.Len(t, res.Entries, 6)

	charts := map[model.Chart]int{}
	for _, e := range res.Entries {
		charts[e.Chart]++
	}
	assert.Equal(t, 3, charts[model.ChartFinalAction])
	assert.Equal(t, 3, charts[model.ChartDatesForFiling])
}

func TestParseDateParseRate(t *testing.T) {
	// Three status cells and two good dates: every candidate parses.
	html := `<html><body>
		<h3>FINAL ACTION DATES</h3>
		` + employmentTable(`
		<tr><td>1st</td><td>C</td><td>C</td><td>C</td></tr>
		<tr><td>2nd</td><td>01JAN20</td><td>01MAR12</td><td>U</td></tr>
		`) + `
	</body></html>`

	res, err := Parse([]byte(html), Label{SourceURL: sourceURL})
	require.NoError(t, err)
	assert.Equal(t, 2, res.DateCellCandidates)
	assert.Equal(t, 2, res.DateCellsParsed)
	assert.Equal(t, 1.0, res.DateParseRate())
}

func TestParseGarbageCellsLowerRate(t *testing.T) {
	html := `<html><body>
		<h3>FINAL ACTION DATES</h3>
		` + employmentTable(`
		<tr><td>1st</td><td>XXXX</td><td>??</td><td>01JAN20</td></tr>
		`) + `
	</body></html>`

	res, err := Parse([]byte(html), Label{SourceURL: sourceURL})
	require.NoError(t, err)
	assert.Equal(t, 3, res.DateCellCandidates)
	assert.Equal(t, 1, res.DateCellsParsed)
	assert.InDelta(t, 1.0/3.0, res.DateParseRate(), 1e-9)
	assert.Len(t, res.Entries, 1)
	assert.NotEmpty(t, res.Warnings)
}

func TestParseTableWithoutHeadingIsSkipped(t *testing.T) {
	html := `<html><body>
		` + employmentTable(`<tr><td>1st</td><td>C</td><td>C</td><td>C</td></tr>`) + `
	</body></html>`

	res, err := Parse([]byte(html), Label{SourceURL: sourceURL})
	require.NoError(t, err)
	assert.Empty(t, res.Entries)
	assert.NotEmpty(t, res.Warnings)
}

func TestParseNoTablesIsStructuralError(t *testing.T) {
	_, err := Parse([]byte("<html><body><p>maintenance page</p></body></html>"), Label{SourceURL: sourceURL})
	require.Error(t, err)
	var pe *model.ParseError
	assert.ErrorAs(t, err, &pe)
}

func TestParseLabelFallbackDate(t *testing.T) {
	html := `<html><body>
		<h3>FINAL ACTION DATES</h3>
		` + employmentTable(`<tr><td>1st</td><td>C</td><td>C</td><td>C</td></tr>`) + `
	</body></html>`

	res, err := Parse([]byte(html), Label{Year: 2019, Month: 11, SourceURL: "https://example.com/archive/unnamed.html"})
	require.NoError(t, err)
	assert.Equal(t, 11, res.Bulletin.Month)
	assert.Equal(t, 2019, res.Bulletin.Year)
	assert.Equal(t, 2020, res.Bulletin.FiscalYear)
}

func TestParseNBSPAndWrappedMarkup(t *testing.T) {
	html := `<html><body>
		<h3>FINAL ACTION DATES</h3>
		<table>
			<tr><td><b>Employment-based</b></td><td><span>CHINA-mainland&nbsp;born</span></td></tr>
			<tr><td><i>2nd</i></td><td> 01JAN20 </td></tr>
		</table>
	</body></html>`

	res, err := Parse([]byte(html), Label{SourceURL: sourceURL})
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	assert.Equal(t, model.CategoryEB2, res.Entries[0].Category)
	assert.Equal(t, model.CountryChina, res.Entries[0].Country)
	require.NotNil(t, res.Entries[0].PriorityDate)
	assert.Equal(t, model.Date(2020, time.January, 1), *res.Entries[0].PriorityDate)
}
