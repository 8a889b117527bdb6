package planner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const base = "https://travel.example.gov/visa-bulletin"

func TestBulletinURLFiscalYearSegment(t *testing.T) {
	p := New(base, base+".html")

	// October belongs to the next fiscal year's directory.
	u, err := p.BulletinURL(2024, 10)
	require.NoError(t, err)
	assert.Equal(t, base+"/2025/visa-bulletin-for-october-2024.html", u)

	// September stays in the current fiscal year's directory.
	u, err = p.BulletinURL(2024, 9)
	require.NoError(t, err)
	assert.Equal(t, base+"/2024/visa-bulletin-for-september-2024.html", u)
}

func TestBulletinURLRejectsBadInput(t *testing.T) {
	p := New(base, base+".html")

	_, err := p.BulletinURL(2024, 0)
	assert.Error(t, err)
	_, err = p.BulletinURL(2024, 13)
	assert.Error(t, err)
	_, err = p.BulletinURL(1901, 5)
	assert.Error(t, err)
}

func TestPlanFiscalOrder(t *testing.T) {
	p := New(base, base+".html")

	cands, err := p.Plan(2024, 2024)
	require.NoError(t, err)
	require.Len(t, cands, 12)

	// Fiscal year 2024 runs October 2023 through September 2024.
	assert.Equal(t, 10, cands[0].Month)
	assert.Equal(t, 2023, cands[0].Year)
	assert.Equal(t, 9, cands[11].Month)
	assert.Equal(t, 2024, cands[11].Year)
	for _, c := range cands {
		assert.Equal(t, 2024, c.FiscalYear)
	}
}

func TestPlanRange(t *testing.T) {
	p := New(base, base+".html")

	cands, err := p.Plan(2022, 2024)
	require.NoError(t, err)
	assert.Len(t, cands, 36)

	_, err = p.Plan(2024, 2022)
	assert.Error(t, err)
}

func TestPlanDeterministic(t *testing.T) {
	p := New(base, base+".html")
	a, err := p.Plan(2023, 2024)
	require.NoError(t, err)
	b, err := p.Plan(2023, 2024)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

type stubIndexFetcher struct {
	body []byte
	err  error
}

func (s *stubIndexFetcher) FetchIndex(ctx context.Context, indexURL string) ([]byte, error) {
	return s.body, s.err
}

func TestCurrentPicksTopmostLink(t *testing.T) {
	p := New(base, "https://travel.example.gov/index.html")

	html := `<html><body>
		<a href="/visa-bulletin/2025/visa-bulletin-for-march-2025.html">March 2025</a>
		<a href="/visa-bulletin/2025/visa-bulletin-for-february-2025.html">February 2025</a>
	</body></html>`

	cand, err := p.Current(context.Background(), &stubIndexFetcher{body: []byte(html)})
	require.NoError(t, err)
	assert.Equal(t, 3, cand.Month)
	assert.Equal(t, 2025, cand.Year)
	assert.Equal(t, 2025, cand.FiscalYear)
	assert.Equal(t, "https://travel.example.gov/visa-bulletin/2025/visa-bulletin-for-march-2025.html", cand.URL)
}

func TestCurrentNoLink(t *testing.T) {
	p := New(base, base+".html")
	_, err := p.Current(context.Background(), &stubIndexFetcher{body: []byte("<html><body>nothing here</body></html>")})
	assert.Error(t, err)
}
