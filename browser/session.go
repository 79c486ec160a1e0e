// Package browser drives a Chrome tab through the DevTools protocol and
// records the tab's data-API traffic for the capture loop.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/goccy/go-json"
	pkgerrors "github.com/pkg/errors"

	"github.com/aluiziolira/marketplace-capture/config"
	"github.com/aluiziolira/marketplace-capture/scraper"
)

const (
	loginEmailSelector    = "#email"
	loginPasswordSelector = "#pass"
	loginButtonSelector   = "button[name='login']"

	listingLinkScript = `function() { const a = this.closest('a'); return a ? a.href : ''; }`
)

// Session owns one Chrome process and the tab the capture loop works on.
// It implements scraper.Browser.
type Session struct {
	cfg      *config.Config
	tab      context.Context
	cancels  []context.CancelFunc
	Recorder *Recorder
}

// NewSession launches Chrome with the configured flags.
func NewSession(parent context.Context, cfg *config.Config) (*Session, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", false),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-notifications", true),
		chromedp.UserAgent(cfg.UserAgent),
	)
	if cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.UserDataDir))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(parent, opts...)
	ctx, cancelCtx := chromedp.NewContext(allocCtx)
	s := &Session{
		cfg:      cfg,
		tab:      ctx,
		cancels:  []context.CancelFunc{cancelAlloc, cancelCtx},
		Recorder: NewRecorder(cfg.APIEndpoint),
	}
	s.Recorder.DrainTimeout = cfg.WaitTimeout
	if err := chromedp.Run(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	return s, nil
}

// Close shuts the browser down.
func (s *Session) Close() {
	for i := len(s.cancels) - 1; i >= 0; i-- {
		s.cancels[i]()
	}
	s.cancels = nil
}

// Login submits the login form. It is a no-op without credentials.
func (s *Session) Login(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		slog.Info("no credentials configured, skipping login")
		return nil
	}
	slog.Info("logging in", slog.String("url", s.cfg.LoginURL))

	waitCtx, cancel := context.WithTimeout(ctx, s.cfg.WaitTimeout)
	defer cancel()
	err := s.run(waitCtx,
		chromedp.Navigate(s.cfg.LoginURL),
		chromedp.WaitVisible(loginEmailSelector, chromedp.ByQuery),
		chromedp.SendKeys(loginEmailSelector, username, chromedp.ByQuery),
		chromedp.SendKeys(loginPasswordSelector, password, chromedp.ByQuery),
		chromedp.Click(loginButtonSelector, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("login: %w", classify(err))
	}
	return s.pause(ctx, s.cfg.SettleDelay)
}

// OpenCategory opens pageURL in a new tab, starts recording its network
// traffic, and waits for the first listings to render.
func (s *Session) OpenCategory(ctx context.Context, pageURL string) error {
	tab, cancel := chromedp.NewContext(s.tab)
	s.cancels = append(s.cancels, cancel)
	s.tab = tab

	s.Recorder.Attach(tab)
	slog.Info("opening category", slog.String("url", pageURL))

	waitCtx, cancelWait := context.WithTimeout(ctx, s.cfg.WaitTimeout)
	defer cancelWait()
	err := s.run(waitCtx,
		network.Enable(),
		chromedp.Navigate(pageURL),
		chromedp.WaitVisible(s.cfg.ListingSelector, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("open category: %w", classify(err))
	}
	return nil
}

// VisibleListings implements scraper.Browser.
func (s *Session) VisibleListings(ctx context.Context) ([]scraper.Handle, error) {
	var nodes []*cdp.Node
	err := s.run(ctx, chromedp.Nodes(s.cfg.ListingSelector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0)))
	if err != nil {
		return nil, classify(err)
	}
	handles := make([]scraper.Handle, len(nodes))
	for i, n := range nodes {
		handles[i] = n
	}
	return handles, nil
}

// ListingURL implements scraper.Browser.
func (s *Session) ListingURL(ctx context.Context, h scraper.Handle) (string, error) {
	node, err := asNode(h)
	if err != nil {
		return "", err
	}
	var href string
	err = s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		obj, err := dom.ResolveNode().WithBackendNodeID(node.BackendNodeID).Do(ctx)
		if err != nil {
			return err
		}
		res, exc, err := runtime.CallFunctionOn(listingLinkScript).
			WithObjectID(obj.ObjectID).
			WithReturnByValue(true).
			Do(ctx)
		if err != nil {
			return err
		}
		if exc != nil {
			return fmt.Errorf("resolve listing link: %s", exc.Text)
		}
		return json.Unmarshal([]byte(res.Value), &href)
	}))
	if err != nil {
		return "", classify(err)
	}
	if href == "" {
		return "", pkgerrors.WithStack(scraper.ErrElementMissing{Err: fmt.Errorf("listing has no link ancestor")})
	}
	return canonicalListingURL(href), nil
}

// Open implements scraper.Browser.
func (s *Session) Open(ctx context.Context, h scraper.Handle) error {
	node, err := asNode(h)
	if err != nil {
		return err
	}
	if err := s.run(ctx, chromedp.MouseClickNode(node)); err != nil {
		return classify(err)
	}
	return nil
}

// AwaitDetail implements scraper.Browser.
func (s *Session) AwaitDetail(ctx context.Context) error {
	if s.cfg.DetailSelector == "" {
		return nil
	}
	waitCtx, cancel := context.WithTimeout(ctx, s.cfg.WaitTimeout)
	defer cancel()
	if err := s.run(waitCtx, chromedp.WaitVisible(s.cfg.DetailSelector, chromedp.ByQuery)); err != nil {
		return classify(err)
	}
	return nil
}

// Back implements scraper.Browser.
func (s *Session) Back(ctx context.Context) error {
	if err := s.run(ctx, chromedp.Evaluate(`window.history.go(-1)`, nil)); err != nil {
		return classify(err)
	}
	return nil
}

// ScrollToBottom implements scraper.Browser.
func (s *Session) ScrollToBottom(ctx context.Context) error {
	if err := s.run(ctx, chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil)); err != nil {
		return classify(err)
	}
	return nil
}

// run executes actions on the current tab, aborting when ctx is done.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.tab)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (s *Session) pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func asNode(h scraper.Handle) (*cdp.Node, error) {
	node, ok := h.(*cdp.Node)
	if !ok || node == nil {
		return nil, pkgerrors.WithStack(scraper.ErrElementMissing{Err: fmt.Errorf("unexpected handle %T", h)})
	}
	return node, nil
}

// canonicalListingURL strips the query string, fragment and trailing slash.
func canonicalListingURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		if i := strings.IndexAny(raw, "?#"); i >= 0 {
			raw = raw[:i]
		}
		return strings.TrimSuffix(raw, "/")
	}
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	return strings.TrimSuffix(u.String(), "/")
}
