package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const maxBodySize = 10 << 20

type Response struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
}

type Options struct {
	UserAgent string
	Referrer  string
	Timeout   time.Duration
}

type Fetcher struct {
	client    *http.Client
	userAgent string
	referrer  string
}

func New(opts Options) *Fetcher {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		userAgent: opts.UserAgent,
		referrer:  opts.Referrer,
	}
}

// Fetch performs a GET and reads the body. HTTP error statuses are returned
// as a Response; only transport failures return an error.
func (f *Fetcher) Fetch(ctx context.Context, urlStr string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	if f.referrer != "" {
		req.Header.Set("Referer", f.referrer)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}

	return &Response{
		URL:         urlStr,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}
