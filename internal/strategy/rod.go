package strategy

import (
	"context"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/cdp"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// RodOptions configures browser sessions.
type RodOptions struct {
	// RemoteURL is the DevTools WebSocket of an already running browser.
	// Empty launches a local browser per session.
	RemoteURL string
	// Bin is the browser binary. Empty lets the launcher find or fetch one.
	Bin      string
	Headless bool
}

// ErrLauncherClosed is returned by Launch after Close.
var ErrLauncherClosed = eris.New("rod: launcher closed")

const closeTimeout = 5 * time.Second

// browserConn is one DevTools connection.
type browserConn interface {
	// Open starts a stealth page in a new incognito context.
	Open(ctx context.Context) (Session, error)
	// Alive reports whether the browser still answers.
	Alive(ctx context.Context) bool
	Close() error
}

type dialFunc func(ctx context.Context, controlURL string) (browserConn, error)

// RodLauncher opens stealth pages in an incognito context per session.
// With RemoteURL set, every session shares one connection to the remote
// browser, held until Close. Otherwise each session launches and owns a
// local browser process.
type RodLauncher struct {
	opts RodOptions
	dial dialFunc

	mu     sync.Mutex
	remote browserConn
	closed bool
}

// NewRodLauncher creates a RodLauncher.
func NewRodLauncher(opts RodOptions) *RodLauncher {
	return &RodLauncher{opts: opts, dial: dialRod}
}

// Launch implements Launcher.
func (l *RodLauncher) Launch(ctx context.Context) (Session, error) {
	if l.opts.RemoteURL != "" {
		return l.launchRemote(ctx)
	}
	return l.launchLocal(ctx)
}

func (l *RodLauncher) launchRemote(ctx context.Context) (Session, error) {
	conn, err := l.shared(ctx)
	if err != nil {
		return nil, err
	}
	sess, err := conn.Open(ctx)
	if err != nil {
		if !conn.Alive(ctx) {
			l.drop(conn)
		}
		return nil, err
	}
	return sess, nil
}

// shared returns the remote connection, dialing it on first use or after
// it was dropped.
func (l *RodLauncher) shared(ctx context.Context) (browserConn, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrLauncherClosed
	}
	if l.remote != nil {
		return l.remote, nil
	}
	conn, err := l.dial(ctx, l.opts.RemoteURL)
	if err != nil {
		return nil, err
	}
	l.remote = conn
	return conn, nil
}

func (l *RodLauncher) drop(conn browserConn) {
	l.mu.Lock()
	if l.remote == conn {
		l.remote = nil
	}
	l.mu.Unlock()
	zap.L().Warn("rod: remote browser unreachable, reconnecting on next session")
	_ = conn.Close()
}

func (l *RodLauncher) launchLocal(ctx context.Context) (Session, error) {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return nil, ErrLauncherClosed
	}

	lch := launcher.New().Context(ctx).Headless(l.opts.Headless).
		Set("disable-blink-features", "AutomationControlled")
	if l.opts.Bin != "" {
		lch = lch.Bin(l.opts.Bin)
	}
	u, err := lch.Launch()
	if err != nil {
		// Cleanup would wait for a process that may never have started.
		lch.Kill()
		return nil, eris.Wrap(err, "rod: launch browser")
	}
	stop := func() {
		lch.Kill()
		lch.Cleanup()
	}
	conn, err := l.dial(ctx, u)
	if err != nil {
		stop()
		return nil, err
	}
	sess, err := conn.Open(ctx)
	if err != nil {
		_ = conn.Close()
		stop()
		return nil, err
	}
	return &ownedSession{Session: sess, release: func() {
		_ = conn.Close()
		stop()
	}}, nil
}

// Close releases the shared remote connection. Sessions still open keep
// working until their own Close fails; new Launch calls are refused.
func (l *RodLauncher) Close() error {
	l.mu.Lock()
	conn := l.remote
	l.remote, l.closed = nil, true
	l.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

// ownedSession releases the browser it runs in after closing.
type ownedSession struct {
	Session
	release func()
}

func (s *ownedSession) Close() error {
	err := s.Session.Close()
	s.release()
	return err
}

// dialRod connects to a DevTools endpoint. ctx bounds the dial only; the
// connection lives until Close.
func dialRod(ctx context.Context, controlURL string) (browserConn, error) {
	ws := &cdp.WebSocket{}
	if err := ws.Connect(ctx, controlURL, nil); err != nil {
		return nil, eris.Wrap(err, "rod: dial devtools")
	}
	connCtx, cancel := context.WithCancel(context.Background())
	browser := rod.New().Client(cdp.New().Start(ws)).Context(connCtx)
	if err := browser.Connect(); err != nil {
		cancel()
		_ = ws.Close()
		return nil, eris.Wrap(err, "rod: connect")
	}
	return &rodConn{browser: browser, ws: ws, cancel: cancel}, nil
}

type rodConn struct {
	browser *rod.Browser
	ws      *cdp.WebSocket
	cancel  context.CancelFunc
	once    sync.Once
}

func (c *rodConn) Open(ctx context.Context) (Session, error) {
	incognito, err := c.browser.Context(ctx).Incognito()
	if err != nil {
		return nil, eris.Wrap(err, "rod: incognito context")
	}
	page, err := stealth.Page(incognito)
	if err != nil {
		sess := &rodSession{incognito: incognito}
		_ = sess.Close()
		return nil, eris.Wrap(err, "rod: open page")
	}
	return &rodSession{incognito: incognito, page: page}, nil
}

func (c *rodConn) Alive(ctx context.Context) bool {
	_, err := c.browser.Context(ctx).Version()
	return err == nil
}

// Close drops the websocket; the remote browser itself keeps running.
func (c *rodConn) Close() error {
	var err error
	c.once.Do(func() {
		c.cancel()
		err = c.ws.Close()
	})
	return eris.Wrap(err, "rod: close connection")
}

type rodSession struct {
	incognito *rod.Browser
	page      *rod.Page
}

func (s *rodSession) find(ctx context.Context, selector string) (*rod.Element, error) {
	has, el, err := s.page.Context(ctx).Has(selector)
	if err != nil {
		return nil, eris.Wrapf(err, "rod: query %q", selector)
	}
	if !has {
		return nil, ErrNoElement
	}
	return el, nil
}

func (s *rodSession) Navigate(ctx context.Context, url string) error {
	p := s.page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return eris.Wrapf(err, "rod: navigate %s", url)
	}
	return eris.Wrap(p.WaitLoad(), "rod: wait load")
}

func (s *rodSession) Type(ctx context.Context, selector, text string) error {
	el, err := s.find(ctx, selector)
	if err != nil {
		return err
	}
	if err := el.SelectAllText(); err != nil {
		zap.L().Debug("rod: select existing text", zap.Error(err))
	}
	return eris.Wrapf(el.Input(text), "rod: type into %q", selector)
}

func (s *rodSession) Click(ctx context.Context, selector string) error {
	el, err := s.find(ctx, selector)
	if err != nil {
		return err
	}
	return eris.Wrapf(el.Click(proto.InputMouseButtonLeft, 1), "rod: click %q", selector)
}

func (s *rodSession) ClickMatching(ctx context.Context, selector, pattern string) error {
	has, el, err := s.page.Context(ctx).HasR(selector, pattern)
	if err != nil {
		return eris.Wrapf(err, "rod: query %q", selector)
	}
	if !has {
		return ErrNoElement
	}
	return eris.Wrapf(el.Click(proto.InputMouseButtonLeft, 1), "rod: click %q", selector)
}

func (s *rodSession) PressEnter(ctx context.Context, selector string) error {
	el, err := s.find(ctx, selector)
	if err != nil {
		return err
	}
	return eris.Wrap(el.Type(input.Enter), "rod: press enter")
}

func (s *rodSession) WaitLoad(ctx context.Context) error {
	return eris.Wrap(s.page.Context(ctx).WaitStable(time.Second), "rod: wait stable")
}

func (s *rodSession) Screenshot(ctx context.Context) ([]byte, error) {
	png, err := s.page.Context(ctx).Screenshot(true, nil)
	return png, eris.Wrap(err, "rod: screenshot")
}

func (s *rodSession) HTML(ctx context.Context) (string, error) {
	html, err := s.page.Context(ctx).HTML()
	return html, eris.Wrap(err, "rod: read html")
}

func (s *rodSession) URL() string {
	info, err := s.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

// Close disposes of the page and the incognito context. It runs on a fresh
// context so a session whose fetch timed out is still released.
func (s *rodSession) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.page != nil {
		keep(s.page.Context(ctx).Close())
	}
	if s.incognito != nil {
		keep(s.incognito.Context(ctx).Close())
	}
	return eris.Wrap(firstErr, "rod: close session")
}
