package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/license-verify/internal/resilience"
)

// AdaptiveLimiter wraps a rate.Limiter with adaptive rate adjustment.
// On success it increases the rate by 20% (up to 2x initial).
// On 429 it halves the rate (down to initial/4 minimum).
type AdaptiveLimiter struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	maxRate     rate.Limit
	minRate     rate.Limit
	currentRate rate.Limit
}

// NewAdaptiveLimiter creates an adaptive rate limiter that auto-tunes.
func NewAdaptiveLimiter(initialRate rate.Limit, burst int) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		limiter:     rate.NewLimiter(initialRate, burst),
		maxRate:     initialRate * 2,
		minRate:     initialRate / 4,
		currentRate: initialRate,
	}
}

// Wait blocks until the limiter allows an event.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess increases the rate by 20%, up to 2x initial.
func (a *AdaptiveLimiter) OnSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.currentRate = min(a.currentRate*1.2, a.maxRate)
	a.limiter.SetLimit(a.currentRate)
}

// OnRateLimit halves the rate on 429 responses.
func (a *AdaptiveLimiter) OnRateLimit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.currentRate = max(a.currentRate*0.5, a.minRate)
	a.limiter.SetLimit(a.currentRate)
	zap.L().Warn("adaptive rate limit: reducing rate after 429",
		zap.Float64("new_rate", float64(a.currentRate)),
	)
}

// Limit returns the current rate limit.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentRate
}

// HostLimiters hands out one AdaptiveLimiter per host, created on first use.
// Government lookup sites are slow and easily annoyed, so the default is
// conservative.
type HostLimiters struct {
	mu     sync.Mutex
	rate   rate.Limit
	burst  int
	byHost map[string]*AdaptiveLimiter
}

// NewHostLimiters creates a limiter set. Non-positive values fall back to
// one request per second with a burst of two.
func NewHostLimiters(r rate.Limit, burst int) *HostLimiters {
	if r <= 0 {
		r = 1
	}
	if burst <= 0 {
		burst = 2
	}
	return &HostLimiters{rate: r, burst: burst, byHost: make(map[string]*AdaptiveLimiter)}
}

// For returns the limiter for rawURL's host.
func (h *HostLimiters) For(rawURL string) *AdaptiveLimiter {
	host := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		host = u.Host
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	lim, ok := h.byHost[host]
	if !ok {
		lim = NewAdaptiveLimiter(h.rate, h.burst)
		h.byHost[host] = lim
	}
	return lim
}

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
}

// HTTPFetcher implements Fetcher using net/http with retry and rate limiting.
// It is used for registry sheets only; verification lookups never retry.
type HTTPFetcher struct {
	client   *http.Client
	opts     HTTPOptions
	limiters *HostLimiters
}

// NewHTTPFetcher creates a new HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "license-verify/1.0"
	}
	return &HTTPFetcher{
		client:   &http.Client{Timeout: opts.Timeout},
		opts:     opts,
		limiters: NewHostLimiters(5, 5),
	}
}

// Download fetches the URL and returns the response body. Transient
// failures (network errors, 429, 5xx) are retried with backoff.
func (f *HTTPFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	lim := f.limiters.For(rawURL)

	policy := resilience.DownloadPolicy(f.opts.MaxRetries)
	policy.Op = "download " + rawURL

	body, err := resilience.Run(ctx, policy, func(ctx context.Context, _ int) (io.ReadCloser, error) {
		if err := lim.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "rate limiter wait")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, eris.Wrap(err, "create request")
		}
		req.Header.Set("User-Agent", f.opts.UserAgent)

		resp, err := f.client.Do(req)
		if err != nil {
			return nil, resilience.NewTransientError(eris.Wrap(err, "http get"), 0)
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			lim.OnRateLimit()
		}
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			_ = resp.Body.Close()
			return nil, resilience.NewTransientError(
				eris.Errorf("http %d from %s", resp.StatusCode, rawURL), resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			_ = resp.Body.Close()
			return nil, eris.Errorf("download: unexpected status %d from %s", resp.StatusCode, rawURL)
		}
		lim.OnSuccess()
		return resp.Body, nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "download")
	}
	return body, nil
}
