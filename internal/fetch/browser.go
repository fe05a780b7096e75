// Package fetch - browser.go renders profile pages in headless Chrome.
package fetch

import (
	"context"
	"errors"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// innerTextScript reads the page's visible text the way a user would copy it.
const innerTextScript = `document.body.innerText`

// BrowserOpener launches one headless Chrome per run. Each fetch opens a new
// tab in that browser and closes it when done.
// Requires Chrome/Chromium to be installed on the system.
type BrowserOpener struct {
	opts *Options
	// ExecPath overrides the Chrome binary. Empty uses chromedp's lookup.
	ExecPath string
}

// NewBrowserOpener creates a BrowserOpener.
func NewBrowserOpener(opts *Options) *BrowserOpener {
	return &BrowserOpener{opts: normalize(opts)}
}

// allocatorOptions returns the Chrome flags used for every run.
func (o *BrowserOpener) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(o.opts.UserAgent),
	)
	if o.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(o.ExecPath))
	}
	return opts
}

// Open starts the browser. The returned session must be closed to stop it.
func (o *BrowserOpener) Open(ctx context.Context) (Session, error) {
	o.opts.Logger.Info("Launching headless browser")

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, o.allocatorOptions()...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Run with no actions starts the browser process.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, &Error{Message: "failed to launch browser", Cause: err}
	}

	return &browserSession{
		opts:          o.opts,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
	}, nil
}

type browserSession struct {
	opts          *Options
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
}

// Fetch navigates a fresh tab to the profile, waits for client-side rendering
// to settle and returns document.body.innerText.
func (s *browserSession) Fetch(ctx context.Context, id string) (string, error) {
	pageURL := ProfileURL(s.opts.URLTemplate, id)
	log := s.opts.Logger.With(zap.String("url", pageURL))
	log.Debug("Visiting profile")

	tabCtx, closeTab := chromedp.NewContext(s.browserCtx)
	defer closeTab()
	// Tie the tab to the caller's deadline as well as the browser's lifetime.
	stop := context.AfterFunc(ctx, closeTab)
	defer stop()

	// Allocate the tab before deriving timeouts so expiring a timeout does
	// not tear the tab down mid-run.
	if err := chromedp.Run(tabCtx); err != nil {
		return "", &Error{ID: id, URL: pageURL, Message: "failed to open tab", Cause: err}
	}

	navCtx, cancelNav := context.WithTimeout(tabCtx, s.opts.NavigationTimeout)
	defer cancelNav()
	if err := chromedp.Run(navCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return "", &Error{ID: id, URL: pageURL, Message: "navigation failed", Cause: err}
	}

	var text string
	start := time.Now()
	if err := chromedp.Run(tabCtx,
		chromedp.Sleep(s.opts.SettleDelay),
		chromedp.Evaluate(innerTextScript, &text),
	); err != nil {
		return "", &Error{ID: id, URL: pageURL, Message: "failed to read page text", Cause: err}
	}

	log.Debug("Rendered profile",
		zap.Int("bytes", len(text)),
		zap.Duration("settle", time.Since(start)))
	return text, nil
}

// Close shuts the browser down. It is safe to call more than once.
func (s *browserSession) Close() error {
	err := chromedp.Cancel(s.browserCtx)
	s.browserCancel()
	s.allocCancel()
	s.opts.Logger.Info("Browser closed")
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
