package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/nickheyer/sitemapscraper/internal/scrapeutil"
)

// BrowserFetcher retrieves pages via headless Chrome through chromedp. It
// exists for sites that serve meaningful HTML only to a real browser
// context (cookie gates, bot walls) — it still only retrieves the
// document once navigation finishes, waiting a further 3 seconds if
// readyState is not yet "complete" at that point; no selector ever
// runs against the live DOM, keeping the "no JavaScript rendering of
// extraction" rule intact.
type BrowserFetcher struct {
	userAgent string
	timeout   time.Duration

	allocCtx    context.Context
	allocCancel context.CancelFunc
	browserCtx  context.Context
	browserCancel context.CancelFunc
}

// NewBrowserFetcher launches a headless Chrome instance, falling back to a
// non-headless instance if headless mode fails to start (common in some
// sandboxed containers). Call Close when done.
func NewBrowserFetcher(ctx context.Context, userAgent string, timeout time.Duration) (*BrowserFetcher, error) {
	if userAgent == "" {
		userAgent = "sitemapscraper/1.0"
	}

	bctx, bcancel, allocCtx, allocCancel, err := attemptBrowserCreation(ctx, userAgent, true)
	if err != nil {
		scrapeutil.GetLogger().Warn("headless browser start failed, retrying non-headless", map[string]any{"error": err.Error()})
		bcancel()
		allocCancel()
		bctx, bcancel, allocCtx, allocCancel, err = attemptBrowserCreation(ctx, userAgent, false)
		if err != nil {
			bcancel()
			allocCancel()
			return nil, fmt.Errorf("browser fetcher init: %w", err)
		}
	}

	return &BrowserFetcher{
		userAgent:     userAgent,
		timeout:       timeout,
		allocCtx:      allocCtx,
		allocCancel:   allocCancel,
		browserCtx:    bctx,
		browserCancel: bcancel,
	}, nil
}

// Close releases the browser context and its allocator.
func (f *BrowserFetcher) Close() {
	f.browserCancel()
	f.allocCancel()
}

// Fetch implements Fetcher.
func (f *BrowserFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	timeout := f.timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	navCtx, cancel := context.WithTimeout(f.browserCtx, timeout)
	defer cancel()

	var html string
	err := chromedp.Run(navCtx,
		chromedp.Navigate(url),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var readyState string
			if err := chromedp.Evaluate(`document.readyState`, &readyState).Do(ctx); err != nil {
				return err
			}
			if readyState != "complete" {
				return chromedp.Sleep(3 * time.Second).Do(ctx)
			}
			return nil
		}),
		chromedp.OuterHTML("html", &html),
	)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("navigation timeout after %v: %w", timeout, err)
		}
		return nil, err
	}

	return []byte(html), nil
}

func attemptBrowserCreation(ctx context.Context, userAgent string, headless bool) (context.Context, context.CancelFunc, context.Context, context.CancelFunc, error) {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("ignore-certificate-errors", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.WindowSize(1920, 1080),
		chromedp.UserAgent(userAgent),
	}

	if headless {
		opts = append(opts, chromedp.Headless, chromedp.Flag("disable-blink-features", "AutomationControlled"))
	} else {
		opts = append(opts, chromedp.Flag("window-position", "0,0"), chromedp.Flag("window-size", "1,1"))
	}

	debugOutput := &bytes.Buffer{}
	opts = append(opts, chromedp.CombinedOutput(debugOutput))

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	var version string
	if err := chromedp.Run(browserCtx, chromedp.Evaluate(`navigator.userAgent`, &version)); err != nil {
		return browserCtx, browserCancel, allocCtx, allocCancel, fmt.Errorf("browser init test failed: %w (debug: %s)", err, debugOutput.String())
	}

	return browserCtx, browserCancel, allocCtx, allocCancel, nil
}

// findChromePath locates a Chrome/Chromium binary in the usual install
// paths, then on PATH. Nothing in the repository calls it: NewBrowserFetcher
// leaves locating the browser to chromedp's exec allocator.
func findChromePath() string {
	var paths []string
	switch runtime.GOOS {
	case "windows":
		paths = []string{
			`C:\Program Files\Google\Chrome\Application\chrome.exe`,
			`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
		}
	case "darwin":
		paths = []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
		}
	default:
		paths = []string{
			"/usr/bin/google-chrome",
			"/usr/bin/google-chrome-stable",
			"/usr/bin/chromium",
			"/usr/bin/chromium-browser",
		}
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	for _, browser := range []string{"chrome", "google-chrome", "chromium", "chromium-browser"} {
		if path, err := exec.LookPath(browser); err == nil {
			return path
		}
	}
	return ""
}
