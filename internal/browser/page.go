// Package browser attaches the capture engine to a live Chrome tab over
// the DevTools protocol. It implements the watcher's document source, the
// driver's scroll surface, and the mutation notifier against the real
// page, keeping all in-page JavaScript in one place.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"chatscribe/internal/driver"
	"chatscribe/internal/fragment"
)

// Config holds browser attachment settings.
type Config struct {
	// DebuggerURL connects to an already-running Chrome; empty launches one.
	DebuggerURL       string
	Bin               string
	Headless          bool
	NavigationTimeout time.Duration
	// MutationPoll is the interval for draining the in-page mutation
	// counter into notifications.
	MutationPoll time.Duration
	// HeightMargin is the scrollHeight-over-clientHeight slack an element
	// needs to qualify as the conversation scroller.
	HeightMargin int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Headless:          false,
		NavigationTimeout: 30 * time.Second,
		MutationPoll:      150 * time.Millisecond,
		HeightMargin:      50,
	}
}

// Session is one attached capture tab.
type Session struct {
	ID      string
	cfg     Config
	logger  *zap.Logger
	browser *rod.Browser
	page    *rod.Page
}

// NewSession creates an unconnected session.
func NewSession(cfg Config, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MutationPoll <= 0 {
		cfg.MutationPoll = 150 * time.Millisecond
	}
	if cfg.HeightMargin <= 0 {
		cfg.HeightMargin = 50
	}
	return &Session{ID: uuid.NewString(), cfg: cfg, logger: logger}
}

// Connect attaches to the configured Chrome, launching one when no
// debugger URL is given.
func (s *Session) Connect(ctx context.Context) error {
	controlURL := s.cfg.DebuggerURL
	if controlURL == "" {
		l := launcher.New().Headless(s.cfg.Headless)
		if s.cfg.Bin != "" {
			l = l.Bin(s.cfg.Bin)
		}
		url, err := l.Launch()
		if err != nil {
			return fmt.Errorf("launch chrome: %w", err)
		}
		controlURL = url
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}
	s.browser = b
	s.logger.Info("browser connected", zap.String("session", s.ID))
	return nil
}

// AttachThread binds the session to the tab showing the given thread URL,
// opening and navigating a new tab when none matches.
func (s *Session) AttachThread(ctx context.Context, threadURL string) error {
	if s.browser == nil {
		return fmt.Errorf("browser not connected")
	}

	pages, err := s.browser.Pages()
	if err != nil {
		return fmt.Errorf("list pages: %w", err)
	}
	for _, p := range pages {
		info, err := p.Info()
		if err != nil {
			continue
		}
		if strings.HasPrefix(info.URL, strings.TrimSuffix(threadURL, "/")) {
			s.page = p.Context(ctx)
			s.logger.Info("attached to existing tab", zap.String("url", info.URL))
			return nil
		}
	}

	page, err := s.browser.Page(proto.TargetCreateTarget{URL: threadURL})
	if err != nil {
		return fmt.Errorf("open thread tab: %w", err)
	}
	page = page.Context(ctx)
	if err := page.Timeout(s.cfg.NavigationTimeout).WaitLoad(); err != nil {
		s.logger.Warn("wait for page load", zap.Error(err))
	}
	s.page = page
	s.logger.Info("opened thread tab", zap.String("url", threadURL))
	return nil
}

// URL reports the attached tab's current URL.
func (s *Session) URL() (string, error) {
	if s.page == nil {
		return "", fmt.Errorf("no attached page")
	}
	info, err := s.page.Info()
	if err != nil {
		return "", fmt.Errorf("page info: %w", err)
	}
	return info.URL, nil
}

// Close shuts the browser connection down.
func (s *Session) Close() error {
	if s.browser == nil {
		return nil
	}
	return s.browser.Close()
}

// Candidates collects every candidate message fragment currently rendered:
// outermost elements carrying the identity attribute, with their outer
// HTML and vertical offset relative to the conversation scroller.
func (s *Session) Candidates(ctx context.Context) ([]fragment.Candidate, error) {
	res, err := s.eval(ctx, candidatesJS)
	if err != nil {
		return nil, fmt.Errorf("collect candidates: %w", err)
	}
	var out []fragment.Candidate
	if err := json.Unmarshal([]byte(res.Value.Str()), &out); err != nil {
		return nil, fmt.Errorf("decode candidates: %w", err)
	}
	return out, nil
}

// LocateScrollContainer resolves the conversation scroller: known
// structural hints first, then the most deeply nested element whose
// content height exceeds its visible height by the configured margin.
func (s *Session) LocateScrollContainer(ctx context.Context) error {
	res, err := s.eval(ctx, locateContainerJS, containerHints, s.cfg.HeightMargin)
	if err != nil {
		return fmt.Errorf("locate scroll container: %w", err)
	}
	if !res.Value.Bool() {
		return driver.ErrNoScrollContainer
	}
	return nil
}

// ScrollToTop forces the conversation scroller to its origin.
func (s *Session) ScrollToTop(ctx context.Context) error {
	res, err := s.eval(ctx, scrollToTopJS)
	if err != nil {
		return fmt.Errorf("scroll to top: %w", err)
	}
	if !res.Value.Bool() {
		return driver.ErrNoScrollContainer
	}
	return nil
}

// ScrollToBottom restores the scroller to its end.
func (s *Session) ScrollToBottom(ctx context.Context) error {
	res, err := s.eval(ctx, scrollToBottomJS)
	if err != nil {
		return fmt.Errorf("scroll to bottom: %w", err)
	}
	if !res.Value.Bool() {
		return driver.ErrNoScrollContainer
	}
	return nil
}

// WatchMutations installs a subtree MutationObserver in the page and
// drains its counter into notify until the context ends. One subscription
// per session lifetime; the notification payload is never trusted, every
// tick just means "rescan now".
func (s *Session) WatchMutations(ctx context.Context, notify func()) error {
	if _, err := s.eval(ctx, installObserverJS); err != nil {
		return fmt.Errorf("install mutation observer: %w", err)
	}

	go func() {
		ticker := time.NewTicker(s.cfg.MutationPoll)
		defer ticker.Stop()
		last := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				res, err := s.eval(ctx, readObserverJS)
				if err != nil {
					if ctx.Err() == nil {
						s.logger.Debug("read mutation counter", zap.Error(err))
					}
					continue
				}
				if n := res.Value.Int(); n != last {
					last = n
					notify()
				}
			}
		}
	}()
	return nil
}

func (s *Session) eval(ctx context.Context, js string, args ...interface{}) (*proto.RuntimeRemoteObject, error) {
	if s.page == nil {
		return nil, fmt.Errorf("no attached page")
	}
	return s.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           js,
		JSArgs:       args,
		ByValue:      true,
		AwaitPromise: true,
	})
}

// containerHints are tried in order before the generic tallest-content
// fallback; they track the host site's current markup.
var containerHints = []string{
	`[data-testid="conversation-scroller"]`,
	"main .overflow-y-auto",
	".conversation-container",
}

const candidatesJS = `() => {
	const sel = 'div[data-testid]';
	const sc = window.__chatscribeContainer || null;
	const base = sc ? sc.scrollTop : (window.scrollY || 0);
	const out = [];
	for (const el of document.querySelectorAll(sel)) {
		if (el.parentElement && el.parentElement.closest(sel)) continue;
		const rect = el.getBoundingClientRect();
		out.push({ html: el.outerHTML, offset: rect.top + base });
	}
	return JSON.stringify(out);
}`

const locateContainerJS = `(hints, margin) => {
	for (const sel of hints) {
		let el = null;
		try { el = document.querySelector(sel); } catch (e) {}
		if (el && el.scrollHeight > el.clientHeight + margin) {
			window.__chatscribeContainer = el;
			return true;
		}
	}
	let best = null;
	let bestDepth = -1;
	for (const el of document.querySelectorAll('*')) {
		if (el.scrollHeight <= el.clientHeight + margin) continue;
		let depth = 0;
		for (let p = el; p; p = p.parentElement) depth++;
		if (depth > bestDepth) { best = el; bestDepth = depth; }
	}
	if (best) {
		window.__chatscribeContainer = best;
		return true;
	}
	return false;
}`

const scrollToTopJS = `() => {
	const sc = window.__chatscribeContainer;
	if (!sc) return false;
	sc.scrollTop = 0;
	return true;
}`

const scrollToBottomJS = `() => {
	const sc = window.__chatscribeContainer;
	if (!sc) return false;
	sc.scrollTop = sc.scrollHeight;
	return true;
}`

const installObserverJS = `() => {
	const w = window;
	if (w.__chatscribeHooked) return true;
	w.__chatscribeHooked = true;
	w.__chatscribeMutations = 0;
	const obs = new MutationObserver(() => { w.__chatscribeMutations++; });
	obs.observe(document.documentElement || document.body, { childList: true, subtree: true });
	return true;
}`

const readObserverJS = `() => window.__chatscribeMutations || 0`
