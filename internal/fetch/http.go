package fetch

import (
	"compress/gzip"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/nickheyer/sitemapscraper/internal/scrapeutil"
)

// HTTPFetcher retrieves pages with a plain net/http client: cookie jar,
// browser-like headers, gzip-aware body reading and a bounded retry loop.
// This is the default Fetcher.
type HTTPFetcher struct {
	client     *http.Client
	userAgent  string
	timeout    time.Duration
	maxRetries int
}

// NewHTTPFetcher builds an HTTPFetcher with the given user agent and
// per-request timeout.
func NewHTTPFetcher(userAgent string, timeout time.Duration) *HTTPFetcher {
	jar, _ := cookiejar.New(&cookiejar.Options{
		PublicSuffixList: publicsuffix.List,
	})

	transport := &http.Transport{
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: true},
		MaxIdleConns:          100,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   15 * time.Second,
		ResponseHeaderTimeout: 60 * time.Second,
		ExpectContinueTimeout: 5 * time.Second,
	}

	client := &http.Client{
		Transport: transport,
		Jar:       jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return http.ErrUseLastResponse
			}
			for key, val := range via[0].Header {
				if _, ok := req.Header[key]; !ok {
					req.Header[key] = val
				}
			}
			return nil
		},
	}

	if userAgent == "" {
		userAgent = "sitemapscraper/1.0"
	}

	return &HTTPFetcher{
		client:     client,
		userAgent:  userAgent,
		timeout:    timeout,
		maxRetries: 3,
	}
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	setBrowserHeaders(req, f.userAgent)

	var resp *http.Response
	var lastErr error

	for attempt := 0; attempt < f.maxRetries; attempt++ {
		resp, err = f.client.Do(req)

		if err == nil && resp.StatusCode < 500 {
			break
		}
		if resp != nil {
			resp.Body.Close()
		}
		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("server returned status: %d", resp.StatusCode)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 2 * time.Second):
		}

		scrapeutil.GetLogger().Warn("retrying fetch", map[string]any{
			"url": url, "attempt": attempt + 1, "error": lastErr.Error(),
		})
	}

	if resp == nil {
		return nil, fmt.Errorf("fetch failed after %d attempts: %w", f.maxRetries, lastErr)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("server returned status code %d", resp.StatusCode)
	}

	var reader io.ReadCloser
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		reader, err = gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		defer reader.Close()
	default:
		reader = resp.Body
	}

	return io.ReadAll(io.LimitReader(reader, 10*1024*1024))
}

func setBrowserHeaders(req *http.Request, userAgent string) {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	req.Header.Set("Cache-Control", "max-age=0")
}

// TestSiteAccessibility does a quick unauthenticated GET to check whether a
// site appears reachable without bot-protection, surfaced to operators
// deciding whether a sitemap needs the browser fetcher instead.
func TestSiteAccessibility(ctx context.Context, url string) error {
	client := &http.Client{
		Timeout: 10 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	setBrowserHeaders(req, "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("site returned error status: %d %s", resp.StatusCode, resp.Status)
	}

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if err != nil {
		return fmt.Errorf("reading body: %w", err)
	}

	bodyLower := strings.ToLower(string(bodyBytes))
	if strings.Contains(bodyLower, "captcha") ||
		(strings.Contains(bodyLower, "cloudflare") && strings.Contains(bodyLower, "security")) ||
		strings.Contains(bodyLower, "ddos") ||
		strings.Contains(bodyLower, "checking your browser") {
		return fmt.Errorf("site appears to have bot protection active")
	}

	return nil
}
