// File: internal/browser/chrome.go
package browser

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/mailforge/mailforge-cli/internal/config"
)

// ChromeFactory builds one isolated browser process per session. Each job
// gets its own allocator so the proxy endpoint can differ between jobs; a
// shared browser process cannot switch egress mid-flight.
type ChromeFactory struct {
	cfg    config.BrowserConfig
	logger *zap.Logger
}

// NewChromeFactory prepares a factory over the given browser configuration.
func NewChromeFactory(cfg config.BrowserConfig, logger *zap.Logger) *ChromeFactory {
	return &ChromeFactory{
		cfg:    cfg,
		logger: logger.Named("browser"),
	}
}

// New launches a browser bound to the given egress endpoint (empty means a
// direct connection) and verifies it is responsive before handing it out.
func (f *ChromeFactory) New(ctx context.Context, proxy string) (Session, error) {
	opts := buildAllocatorOptions(f.cfg, proxy)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	cleanup := func() {
		tabCancel()
		allocCancel()
	}

	// Confirm the browser starts and responds before the job begins; a
	// startup failure here is the dispatcher's cue to fail the job, not the
	// batch.
	testCtx, cancelTest := context.WithTimeout(tabCtx, 30*time.Second)
	defer cancelTest()
	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		cleanup()
		return nil, fmt.Errorf("browser failed to start or respond: %w", err)
	}

	f.logger.Debug("Browser session launched",
		zap.String("proxy", proxy), zap.Bool("headless", f.cfg.Headless))

	return &chromeSession{
		tabCtx:  tabCtx,
		cleanup: cleanup,
		cfg:     f.cfg,
		logger:  f.logger,
	}, nil
}

// buildAllocatorOptions assembles the launch flags, filtering out the ones
// that reveal automation.
func buildAllocatorOptions(cfg config.BrowserConfig, proxy string) []chromedp.ExecAllocatorOption {
	var opts []chromedp.ExecAllocatorOption
	for _, opt := range chromedp.DefaultExecAllocatorOptions[:] {
		if flag, ok := opt.(chromedp.Flag); ok && flag.Name == "enable-automation" {
			continue
		}
		opts = append(opts, opt)
	}

	opts = append(opts,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-gpu", cfg.Headless),
		chromedp.Flag("window-size", "1920,1080"),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if proxy != "" {
		opts = append(opts, chromedp.ProxyServer(proxyServerURL(proxy)))
	}

	// Custom arguments from config.yaml, "--flag" or "--flag=value" form.
	for _, arg := range cfg.Args {
		parts := strings.SplitN(arg, "=", 2)
		flagName := strings.TrimPrefix(parts[0], "--")
		if len(parts) == 2 {
			opts = append(opts, chromedp.Flag(flagName, parts[1]))
		} else {
			opts = append(opts, chromedp.Flag(flagName, true))
		}
	}

	// Flags required for running inside containers.
	if runtime.GOOS == "linux" {
		opts = append(opts,
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-setuid-sandbox", true),
		)
	}

	return opts
}

// proxyServerURL renders an egress endpoint as the SOCKS5 proxy flag value.
func proxyServerURL(endpoint string) string {
	if strings.Contains(endpoint, "://") {
		return endpoint
	}
	return "socks5://" + endpoint
}

// chromeSession drives one browser tab. The session context outlives any
// single call; per-call deadlines are derived from it.
type chromeSession struct {
	tabCtx    context.Context
	cleanup   func()
	cfg       config.BrowserConfig
	logger    *zap.Logger
	closeOnce sync.Once
}

func (s *chromeSession) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	navCtx, cancel := context.WithTimeout(s.tabCtx, s.cfg.NavigationTimeout)
	defer cancel()

	if err := chromedp.Run(navCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

func (s *chromeSession) WaitVisible(ctx context.Context, selector string, timeout time.Duration) (Element, error) {
	if err := ctx.Err(); err != nil {
		return Element{}, err
	}
	waitCtx, cancel := context.WithTimeout(s.tabCtx, timeout)
	defer cancel()

	if err := chromedp.Run(waitCtx, chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
		return Element{}, fmt.Errorf("%w: %s: %v", ErrElementNotFound, selector, err)
	}
	return Element{Selector: selector}, nil
}

func (s *chromeSession) WaitClickable(ctx context.Context, selector string, timeout time.Duration) (Element, error) {
	if err := ctx.Err(); err != nil {
		return Element{}, err
	}
	waitCtx, cancel := context.WithTimeout(s.tabCtx, timeout)
	defer cancel()

	// Visible and enabled is as close to "clickable" as the protocol gets;
	// the node query confirms the element actually resolved.
	var nodes []*cdp.Node
	if err := chromedp.Run(waitCtx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.WaitEnabled(selector, chromedp.ByQuery),
		chromedp.Nodes(selector, &nodes, chromedp.ByQuery, chromedp.NodeVisible),
	); err != nil {
		return Element{}, fmt.Errorf("%w: %s: %v", ErrElementNotClickable, selector, err)
	}
	if len(nodes) == 0 {
		return Element{}, fmt.Errorf("%w: %s: no matching node", ErrElementNotClickable, selector)
	}
	return Element{Selector: selector}, nil
}

func (s *chromeSession) Fill(ctx context.Context, el Element, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fillCtx, cancel := context.WithTimeout(s.tabCtx, s.cfg.ElementTimeout)
	defer cancel()

	if err := chromedp.Run(fillCtx,
		chromedp.Clear(el.Selector, chromedp.ByQuery),
		chromedp.SendKeys(el.Selector, text, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("failed to fill %s: %w", el.Selector, err)
	}
	return nil
}

func (s *chromeSession) Click(ctx context.Context, el Element) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	clickCtx, cancel := context.WithTimeout(s.tabCtx, s.cfg.ElementTimeout)
	defer cancel()

	if err := chromedp.Run(clickCtx, chromedp.Click(el.Selector, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("failed to click %s: %w", el.Selector, err)
	}
	return nil
}

// Close tears down the tab and the browser process. Safe to call more than
// once; every exit path in a worker ends here.
func (s *chromeSession) Close(context.Context) error {
	s.closeOnce.Do(func() {
		s.cleanup()
		s.logger.Debug("Browser session closed")
	})
	return nil
}
