package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFiscalYear(t *testing.T) {
	tests := []struct {
		name  string
		month int
		year  int
		want  int
	}{
		{"october starts next fiscal year", 10, 2024, 2025},
		{"november", 11, 2024, 2025},
		{"december", 12, 2024, 2025},
		{"september stays in fiscal year", 9, 2024, 2024},
		{"january", 1, 2025, 2025},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FiscalYear(tt.month, tt.year))
		})
	}
}

func TestParseCategory(t *testing.T) {
	c, err := ParseCategory("EB3_OTHER_WORKERS")
	require.NoError(t, err)
	assert.Equal(t, CategoryEB3OtherWorkers, c)

	_, err = ParseCategory("EB9")
	assert.Error(t, err)

	_, err = ParseCategory("eb2")
	assert.Error(t, err, "only canonical upper-case values are accepted")
}

func TestCategoryIsEmployment(t *testing.T) {
	assert.True(t, CategoryEB1.IsEmployment())
	assert.True(t, CategoryEB3OtherWorkers.IsEmployment())
	assert.False(t, CategoryF2A.IsEmployment())
}

func TestParseCountryAndChart(t *testing.T) {
	c, err := ParseCountry("INDIA")
	require.NoError(t, err)
	assert.Equal(t, CountryIndia, c)

	_, err = ParseCountry("BRAZIL")
	assert.Error(t, err)

	ch, err := ParseChart("DATES_FOR_FILING")
	require.NoError(t, err)
	assert.Equal(t, ChartDatesForFiling, ch)

	_, err = ParseChart("FILING")
	assert.Error(t, err)
}

func TestDateHelpers(t *testing.T) {
	d := Date(2023, time.March, 15)
	assert.Equal(t, time.UTC, d.Location())
	assert.Equal(t, 0, d.Hour())

	p := DatePtr(2023, time.March, 15)
	require.NotNil(t, p)
	assert.Equal(t, d, *p)
}

func TestErrorKinds(t *testing.T) {
	nf := &NotFoundError{URL: "http://example.com/x"}
	assert.True(t, IsNotFound(nf))
	assert.False(t, IsNotFound(&ParseError{URL: "u", Msg: "m"}))

	qe := &QualityError{Reason: "date_parse_rate_below_floor", Rate: 0.15}
	assert.True(t, IsQuality(qe))
	assert.Contains(t, qe.Error(), "0.15")

	ne := &NetworkError{URL: "u", Retries: 3, Err: assert.AnError}
	assert.ErrorIs(t, ne, assert.AnError)
}

func TestRunReportHasFailures(t *testing.T) {
	r := RunReport{}
	assert.False(t, r.HasFailures())
	r.Failed = append(r.Failed, RunFailure{Stage: "fetch"})
	assert.True(t, r.HasFailures())

	q := RunReport{}
	q.Quarantined = append(q.Quarantined, RunFailure{Stage: "quarantine"})
	assert.True(t, q.HasFailures())
}
