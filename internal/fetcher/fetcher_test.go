package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visawatch/bulletin-cli/internal/model"
)

func testOptions() Options {
	return Options{
		MaxWorkers:        2,
		MaxRetries:        2,
		Timeout:           5 * time.Second,
		RequestsPerSecond: 1000, // don't throttle tests
	}
}

func TestFetchOneSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("User-Agent"), "bulletin-cli")
		w.Write([]byte("<html>ok</html>")) //nolint:errcheck
	}))
	defer srv.Close()

	f := New(testOptions())
	res := f.FetchOne(context.Background(), Request{URL: srv.URL, Year: 2025, Month: 3})
	require.NoError(t, res.Err)
	assert.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, []byte("<html>ok</html>"), res.Body)
	assert.Equal(t, 2025, res.Year)
}

func TestFetchOneNotFoundNoRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := New(testOptions())
	res := f.FetchOne(context.Background(), Request{URL: srv.URL})
	require.Error(t, res.Err)
	assert.True(t, model.IsNotFound(res.Err))
	assert.Equal(t, int32(1), calls.Load(), "404 is terminal")
}

func TestFetchOneRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("recovered")) //nolint:errcheck
	}))
	defer srv.Close()

	opts := testOptions()
	f := New(opts)
	res := f.FetchOne(context.Background(), Request{URL: srv.URL})
	require.NoError(t, res.Err)
	assert.Equal(t, []byte("recovered"), res.Body)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 2, res.Retries)
}

func TestFetchOneExhaustedRetriesIsNetworkError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	f := New(testOptions())
	res := f.FetchOne(context.Background(), Request{URL: srv.URL})
	require.Error(t, res.Err)

	var ne *model.NetworkError
	require.ErrorAs(t, res.Err, &ne)
	assert.Equal(t, srv.URL, ne.URL)
	assert.Equal(t, int32(3), calls.Load(), "initial attempt plus two retries")
}

func TestFetchOneClientErrorIsTerminal(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	f := New(testOptions())
	res := f.FetchOne(context.Background(), Request{URL: srv.URL})
	require.Error(t, res.Err)
	assert.False(t, model.IsNotFound(res.Err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchOneBudgetCoversRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(80 * time.Millisecond)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := New(testOptions())
	start := time.Now()
	res := f.FetchOne(context.Background(), Request{URL: srv.URL, Budget: 50 * time.Millisecond})
	require.Error(t, res.Err)

	// The deadline starts at fetch begin and cuts off retries.
	assert.WithinDuration(t, start.Add(50*time.Millisecond), res.Deadline, 30*time.Millisecond)
	assert.Equal(t, int32(1), calls.Load(), "no retry once the budget is spent")
}

func TestFetchOneNoBudgetLeavesDeadlineZero(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok")) //nolint:errcheck
	}))
	defer srv.Close()

	f := New(testOptions())
	res := f.FetchOne(context.Background(), Request{URL: srv.URL})
	require.NoError(t, res.Err)
	assert.True(t, res.Deadline.IsZero())
}

func TestFetchParallelDeliversAllResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(r.URL.Path)) //nolint:errcheck
	}))
	defer srv.Close()

	f := New(testOptions())
	var reqs []Request
	for m := 1; m <= 8; m++ {
		reqs = append(reqs, Request{URL: srv.URL + "/" + string(rune('a'+m)), Month: m})
	}

	seen := map[int]bool{}
	for res := range f.Fetch(context.Background(), reqs) {
		require.NoError(t, res.Err)
		seen[res.Month] = true
	}
	assert.Len(t, seen, 8)
}

func TestFetchCancellationClosesChannel(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	f := New(testOptions())

	out := f.Fetch(ctx, []Request{{URL: srv.URL}, {URL: srv.URL}, {URL: srv.URL}})
	cancel()

	// Channel must close rather than hang.
	for range out { //nolint:revive
	}
}

func TestVerify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	f := New(testOptions())
	ok, err := f.Verify(context.Background(), srv.URL+"/present")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.Verify(context.Background(), srv.URL+"/missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFetchIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>index</html>")) //nolint:errcheck
	}))
	defer srv.Close()

	f := New(testOptions())
	body, err := f.FetchIndex(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, []byte("<html>index</html>"), body)
}
