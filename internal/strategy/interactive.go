package strategy

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/license-verify/internal/metrics"
	"github.com/sells-group/license-verify/internal/model"
)

const defaultInteractiveTimeout = 45 * time.Second

// ErrNoElement is returned by a Session when nothing matches a selector.
var ErrNoElement = eris.New("no matching element")

// Session is one isolated browser context. Element lookups do not wait:
// a selector that matches nothing returns ErrNoElement immediately.
type Session interface {
	Navigate(ctx context.Context, url string) error
	Type(ctx context.Context, selector, text string) error
	Click(ctx context.Context, selector string) error
	// ClickMatching clicks the first element matching selector whose text
	// matches the JavaScript regular expression pattern.
	ClickMatching(ctx context.Context, selector, pattern string) error
	PressEnter(ctx context.Context, selector string) error
	WaitLoad(ctx context.Context) error
	Screenshot(ctx context.Context) ([]byte, error)
	HTML(ctx context.Context) (string, error)
	URL() string
	Close() error
}

// Launcher opens a fresh Session. Sessions are never shared or pooled.
type Launcher interface {
	Launch(ctx context.Context) (Session, error)
}

// EvidenceSink persists screenshots.
type EvidenceSink interface {
	Save(ctx context.Context, code, identifier string, png []byte) (*model.Evidence, error)
}

// Input and submit heuristics, tried after the jurisdiction's own selector.
var (
	InputSelectors = []string{
		`input[name*="license" i]`,
		`input[id*="license" i]`,
		`input[name*="number" i]`,
		`input[type="text"]`,
		`input[type="search"]`,
	}
	SubmitSelectors = []string{
		`button[type="submit"]`,
		`input[type="submit"]`,
		`button`,
	}
)

// detailControls matches the "view details" style links shown next to
// search hits. Written as a JS regex literal so the flag survives.
const detailControls = `/^\s*(view\s+)?(details?|more(\s+info)?|view)\s*$/i`

// InteractiveOptions configures the interactive strategy.
type InteractiveOptions struct {
	Timeout  time.Duration
	Launcher Launcher
	// Evidence is optional; without it no screenshot is taken.
	Evidence EvidenceSink
	Metrics  *metrics.Metrics
}

// Interactive drives a browser through the jurisdiction's search form.
type Interactive struct {
	opts InteractiveOptions
}

// NewInteractive creates an Interactive strategy.
func NewInteractive(opts InteractiveOptions) *Interactive {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultInteractiveTimeout
	}
	return &Interactive{opts: opts}
}

// Method implements Strategy.
func (s *Interactive) Method() model.FetchMethod { return model.FetchInteractive }

// Fetch implements Strategy. The session is closed on every path.
func (s *Interactive) Fetch(ctx context.Context, cfg model.JurisdictionConfig, identifier string) (out Outcome) {
	start := time.Now()
	defer s.opts.Metrics.ObserveFetch(string(model.FetchInteractive), start)
	defer func() {
		if r := recover(); r != nil {
			out = failure(eris.Errorf("interactive: panic: %v", r))
		}
	}()

	if s.opts.Launcher == nil {
		return failure(eris.New("interactive: no browser launcher configured"))
	}
	if cfg.URL == "" {
		return failure(eris.Errorf("interactive: %s has no verification url", cfg.Code))
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	sess, err := s.opts.Launcher.Launch(ctx)
	if err != nil {
		return failure(eris.Wrap(err, "interactive: launch"))
	}
	s.opts.Metrics.SessionOpened()
	defer func() {
		if err := sess.Close(); err != nil {
			zap.L().Warn("interactive: close session", zap.String("jurisdiction", cfg.Code), zap.Error(err))
		}
		s.opts.Metrics.SessionClosed()
	}()

	if err := sess.Navigate(ctx, cfg.URL); err != nil {
		return failure(eris.Wrap(err, "interactive: navigate"))
	}

	input, err := firstOf(candidates(cfg.Selectors.Input, InputSelectors), func(sel string) error {
		return sess.Type(ctx, sel, identifier)
	})
	if err != nil {
		return failure(eris.Wrap(err, "interactive: locate input"))
	}

	if _, err := firstOf(candidates(cfg.Selectors.Submit, SubmitSelectors), func(sel string) error {
		return sess.Click(ctx, sel)
	}); err != nil {
		if !errors.Is(err, ErrNoElement) {
			return failure(eris.Wrap(err, "interactive: submit"))
		}
		if err := sess.PressEnter(ctx, input); err != nil {
			return failure(eris.Wrap(err, "interactive: submit"))
		}
	}

	if err := sess.WaitLoad(ctx); err != nil {
		return failure(eris.Wrap(err, "interactive: wait for results"))
	}

	s.followDetail(ctx, sess, cfg.Code, identifier)

	var ev *model.Evidence
	if s.opts.Evidence != nil {
		ev = s.capture(ctx, sess, cfg.Code, identifier)
	}

	html, err := sess.HTML(ctx)
	if err != nil {
		return failure(eris.Wrap(err, "interactive: read page"))
	}
	return Outcome{Content: []byte(html), Evidence: ev, FinalURL: sess.URL()}
}

// followDetail tries each secondary navigation once; the first that works
// wins and none working is fine: the results page may already be the
// detail page.
func (s *Interactive) followDetail(ctx context.Context, sess Session, code, identifier string) {
	attempts := []struct {
		name string
		fn   func() error
	}{
		{"identifier link", func() error {
			return sess.ClickMatching(ctx, "a", fmt.Sprintf(`^\s*%s\s*$`, regexp.QuoteMeta(identifier)))
		}},
		{"details control", func() error {
			return sess.ClickMatching(ctx, "a, button, input[type=button]", detailControls)
		}},
		{"first result link", func() error {
			return sess.Click(ctx, "table a[href]")
		}},
	}

	for _, a := range attempts {
		if err := a.fn(); err != nil {
			if !errors.Is(err, ErrNoElement) {
				zap.L().Debug("interactive: secondary navigation failed",
					zap.String("jurisdiction", code),
					zap.String("via", a.name),
					zap.Error(err),
				)
			}
			continue
		}
		if err := sess.WaitLoad(ctx); err != nil {
			zap.L().Debug("interactive: detail page load", zap.String("jurisdiction", code), zap.Error(err))
		}
		return
	}
}

func (s *Interactive) capture(ctx context.Context, sess Session, code, identifier string) *model.Evidence {
	png, err := sess.Screenshot(ctx)
	if err != nil {
		zap.L().Warn("interactive: screenshot", zap.String("jurisdiction", code), zap.Error(err))
		return nil
	}
	ev, err := s.opts.Evidence.Save(ctx, code, identifier, png)
	if err != nil {
		zap.L().Warn("interactive: save evidence", zap.String("jurisdiction", code), zap.Error(err))
		return nil
	}
	s.opts.Metrics.IncrementEvidence()
	return ev
}

func candidates(configured string, heuristics []string) []string {
	if configured == "" {
		return heuristics
	}
	return append([]string{configured}, heuristics...)
}

// firstOf returns the first selector fn accepts. Selectors that match
// nothing are skipped; any other error stops the search.
func firstOf(selectors []string, fn func(string) error) (string, error) {
	for _, sel := range selectors {
		err := fn(sel)
		if err == nil {
			return sel, nil
		}
		if !errors.Is(err, ErrNoElement) {
			return "", err
		}
	}
	return "", ErrNoElement
}
