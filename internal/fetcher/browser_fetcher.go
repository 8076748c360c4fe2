package fetcher

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

// BrowserFetcher renders a page in headless Chrome so script-built content
// is present in the returned HTML.
type BrowserFetcher struct {
	userAgent string
	timeout   time.Duration
}

func NewBrowserFetcher(userAgent string, timeout time.Duration) *BrowserFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &BrowserFetcher{
		userAgent: userAgent,
		timeout:   timeout,
	}
}

func (bf *BrowserFetcher) FetchHTML(ctx context.Context, urlStr string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, bf.timeout)
	defer cancel()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(bf.userAgent),
		chromedp.Flag("disable-downloads", true),
		chromedp.Flag("disable-plugins", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-background-networking", true),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	var htmlContent string

	err := chromedp.Run(browserCtx,
		chromedp.Navigate(urlStr),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &htmlContent),
	)
	if err != nil {
		return "", fmt.Errorf("browser fetch failed: %w", err)
	}

	return htmlContent, nil
}
