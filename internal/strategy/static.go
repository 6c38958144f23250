package strategy

import (
	"context"
	"io"
	"math/rand/v2"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/license-verify/internal/fetcher"
	"github.com/sells-group/license-verify/internal/metrics"
	"github.com/sells-group/license-verify/internal/model"
	"github.com/sells-group/license-verify/internal/resilience"
)

const (
	defaultStaticTimeout = 15 * time.Second
	defaultMaxBody       = 2 << 20
	defaultUserAgent     = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

// StaticOptions configures the static strategy. Zero values take defaults.
type StaticOptions struct {
	Timeout   time.Duration
	UserAgent string
	MaxBody   int64
	// ThinkMin and ThinkMax bound the random pause taken before contacting
	// sites whose notes call for caution. Defaults: 500ms and 2s.
	ThinkMin time.Duration
	ThinkMax time.Duration
	Limiters *fetcher.HostLimiters
	// Transport replaces http.DefaultTransport.
	Transport http.RoundTripper
	// Sleep replaces the context-aware wait used for think time.
	Sleep   func(ctx context.Context, d time.Duration) error
	Metrics *metrics.Metrics
}

// Static submits the lookup over plain HTTP: warm-up GET for cookies, then
// the identifier as a query parameter or form field.
type Static struct {
	opts StaticOptions
}

// NewStatic creates a Static strategy.
func NewStatic(opts StaticOptions) *Static {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultStaticTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.MaxBody <= 0 {
		opts.MaxBody = defaultMaxBody
	}
	if opts.ThinkMin <= 0 && opts.ThinkMax <= 0 {
		opts.ThinkMin, opts.ThinkMax = 500*time.Millisecond, 2*time.Second
	}
	if opts.Limiters == nil {
		opts.Limiters = fetcher.NewHostLimiters(0, 0)
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	return &Static{opts: opts}
}

// Method implements Strategy.
func (s *Static) Method() model.FetchMethod { return model.FetchStatic }

// Fetch implements Strategy. Every call uses a fresh cookie jar.
func (s *Static) Fetch(ctx context.Context, cfg model.JurisdictionConfig, identifier string) Outcome {
	start := time.Now()
	defer s.opts.Metrics.ObserveFetch(string(model.FetchStatic), start)

	if cfg.URL == "" {
		return failure(eris.Errorf("static: %s has no verification url", cfg.Code))
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	jar, err := cookiejar.New(nil)
	if err != nil {
		return failure(eris.Wrap(err, "static: cookie jar"))
	}
	client := &http.Client{Jar: jar, Transport: s.opts.Transport}
	lim := s.opts.Limiters.For(cfg.URL)

	if NeedsCaution(cfg.Notes) {
		if err := s.opts.Sleep(ctx, s.thinkTime()); err != nil {
			return failure(eris.Wrap(err, "static: think time"))
		}
	}

	warm, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.URL, nil)
	if err != nil {
		return failure(eris.Wrap(err, "static: build warm-up request"))
	}
	if _, _, err := s.do(client, lim, warm); err != nil {
		if ctx.Err() != nil {
			return failure(eris.Wrap(err, "static: warm-up"))
		}
		zap.L().Debug("static: warm-up failed", zap.String("jurisdiction", cfg.Code), zap.Error(err))
	}

	req, err := lookupRequest(ctx, cfg, identifier)
	if err != nil {
		return failure(err)
	}
	resp, body, err := s.do(client, lim, req)
	if err != nil {
		return failure(eris.Wrap(err, "static: lookup"))
	}

	if bt := DetectBlock(resp, body); bt != BlockNone {
		return failure(eris.Errorf("static: blocked (%s)", bt))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := eris.Errorf("static: http %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return failure(resilience.NewTransientError(err, resp.StatusCode))
		}
		return failure(err)
	}

	return Outcome{Content: body, FinalURL: resp.Request.URL.String()}
}

// do sends req under the host limiter and reads at most MaxBody bytes. The
// response body is closed before returning.
func (s *Static) do(client *http.Client, lim *fetcher.AdaptiveLimiter, req *http.Request) (*http.Response, []byte, error) {
	if err := lim.Wait(req.Context()); err != nil {
		return nil, nil, eris.Wrap(err, "rate limiter wait")
	}
	req.Header.Set("User-Agent", s.opts.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.opts.MaxBody))
	if err != nil {
		return nil, nil, eris.Wrap(err, "read body")
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		lim.OnRateLimit()
	case resp.StatusCode < 400:
		lim.OnSuccess()
	}
	return resp, body, nil
}

func (s *Static) thinkTime() time.Duration {
	lo, hi := s.opts.ThinkMin, s.opts.ThinkMax
	if hi <= lo {
		return lo
	}
	return lo + rand.N(hi-lo+1)
}

// lookupRequest builds the GET or POST carrying the identifier plus any
// static form fields.
func lookupRequest(ctx context.Context, cfg model.JurisdictionConfig, identifier string) (*http.Request, error) {
	field := cfg.Field
	if field == "" {
		field = DefaultField
	}
	vals := url.Values{}
	for k, v := range cfg.Form {
		vals.Set(k, v)
	}
	vals.Set(field, identifier)

	if cfg.Method == model.SubmitPOST {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, strings.NewReader(vals.Encode()))
		if err != nil {
			return nil, eris.Wrap(err, "static: build lookup request")
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Referer", cfg.URL)
		return req, nil
	}

	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, eris.Wrapf(err, "static: parse url %q", cfg.URL)
	}
	q := u.Query()
	for k := range vals {
		q.Set(k, vals.Get(k))
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "static: build lookup request")
	}
	return req, nil
}
