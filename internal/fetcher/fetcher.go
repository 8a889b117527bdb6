// Package fetcher downloads bulletin pages concurrently. Failures are never
// raised into the pipeline; every outcome is reified as a Result value.
package fetcher

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/visawatch/bulletin-cli/internal/model"
	"github.com/visawatch/bulletin-cli/internal/resilience"
)

// Request is one URL to fetch, labeled with its bulletin identity. Labels are
// carried through unchanged so results can be matched to their input.
type Request struct {
	URL        string
	FiscalYear int
	Year       int
	Month      int

	// Budget bounds this bulletin end to end, retries included. The clock
	// starts when the fetch begins; whatever remains is left for downstream
	// stages via Result.Deadline. Zero means no budget.
	Budget time.Duration
}

// Result is the outcome of one Request. Exactly one of Body or Err is set.
type Result struct {
	Request
	Status  int
	Body    []byte
	Err     error
	Retries int

	// Deadline is when the request's Budget expires. Zero when no budget
	// was set.
	Deadline time.Time
}

// Options configures the Fetcher.
type Options struct {
	UserAgent string
	Timeout   time.Duration
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	MaxWorkers int
	// RequestsPerSecond bounds the request rate against the source host.
	RequestsPerSecond float64
}

// Fetcher performs bounded-parallel HTTP fetches with retry.
type Fetcher struct {
	client  *http.Client
	opts    Options
	limiter *rate.Limiter
}

// New creates a Fetcher. The underlying transport and its connection pool are
// shared by all workers.
func New(opts Options) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 3
	}
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = 4
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "bulletin-cli/1.0"
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 4
	}
	transport := &http.Transport{
		MaxIdleConnsPerHost: opts.MaxWorkers,
		MaxConnsPerHost:     2 * opts.MaxWorkers,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Fetcher{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.MaxWorkers),
	}
}

// Fetch downloads all requests with at most MaxWorkers in flight and returns
// results on a channel of capacity 2×MaxWorkers. Output order is unspecified.
// The channel is closed when all requests have completed or ctx is cancelled.
func (f *Fetcher) Fetch(ctx context.Context, reqs []Request) <-chan Result {
	out := make(chan Result, 2*f.opts.MaxWorkers)

	go func() {
		defer close(out)

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(f.opts.MaxWorkers)
		for _, req := range reqs {
			if gctx.Err() != nil {
				break
			}
			g.Go(func() error {
				res := f.fetchOne(gctx, req)
				select {
				case out <- res:
				case <-gctx.Done():
				}
				return nil
			})
		}
		_ = g.Wait()
	}()

	return out
}

// FetchOne downloads a single request synchronously.
func (f *Fetcher) FetchOne(ctx context.Context, req Request) Result {
	return f.fetchOne(ctx, req)
}

// FetchIndex downloads the bulletin index page. Satisfies planner.IndexFetcher.
func (f *Fetcher) FetchIndex(ctx context.Context, indexURL string) ([]byte, error) {
	res := f.fetchOne(ctx, Request{URL: indexURL})
	if res.Err != nil {
		return nil, res.Err
	}
	return res.Body, nil
}

// Verify probes a URL with a HEAD request, reporting reachability without
// downloading the body. No retries: verification is advisory.
func (f *Fetcher) Verify(ctx context.Context, rawURL string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return false, eris.Wrap(err, "fetcher: create head request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)

	if err := f.limiter.Wait(ctx); err != nil {
		return false, eris.Wrap(err, "fetcher: rate limiter wait")
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return false, eris.Wrap(err, "fetcher: head request")
	}
	defer resp.Body.Close() //nolint:errcheck

	return resp.StatusCode == http.StatusOK, nil
}

func (f *Fetcher) fetchOne(ctx context.Context, req Request) Result {
	res := Result{Request: req}

	if req.Budget > 0 {
		res.Deadline = time.Now().Add(req.Budget)
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, res.Deadline)
		defer cancel()
	}

	cfg := resilience.DefaultRetryConfig()
	cfg.MaxAttempts = f.opts.MaxRetries + 1
	cfg.OnRetry = func(attempt int, err error) {
		res.Retries = attempt
		zap.L().Warn("fetch retrying",
			zap.String("url", req.URL),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}

	type page struct {
		status int
		body   []byte
	}

	p, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (page, error) {
		if err := f.limiter.Wait(ctx); err != nil {
			return page{}, eris.Wrap(err, "fetcher: rate limiter wait")
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
		if err != nil {
			return page{}, eris.Wrap(err, "fetcher: create request")
		}
		httpReq.Header.Set("User-Agent", f.opts.UserAgent)

		resp, err := f.client.Do(httpReq)
		if err != nil {
			return page{}, resilience.NewTransientError(err, 0)
		}
		defer resp.Body.Close() //nolint:errcheck

		if resp.StatusCode == http.StatusNotFound {
			return page{status: resp.StatusCode}, &model.NotFoundError{URL: req.URL}
		}
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return page{status: resp.StatusCode},
				resilience.NewTransientError(eris.Errorf("http %d from %s", resp.StatusCode, req.URL), resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			// Other 4xx: terminal, no retry.
			return page{status: resp.StatusCode}, eris.Errorf("http %d from %s", resp.StatusCode, req.URL)
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return page{status: resp.StatusCode}, resilience.NewTransientError(err, resp.StatusCode)
		}
		return page{status: resp.StatusCode, body: body}, nil
	})

	res.Status = p.status
	if err != nil {
		if model.IsNotFound(err) {
			res.Err = err
			return res
		}
		var te *resilience.TransientError
		if errors.As(err, &te) || resilience.IsTransient(err) {
			res.Err = &model.NetworkError{URL: req.URL, Retries: res.Retries, Err: err}
		} else {
			res.Err = err
		}
		return res
	}

	res.Body = p.body
	return res
}
