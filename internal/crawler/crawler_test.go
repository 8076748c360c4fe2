package crawler_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/deidaraiorek/sitesearch/internal/crawler"
	"github.com/deidaraiorek/sitesearch/internal/fetcher"
	"github.com/deidaraiorek/sitesearch/internal/parser"
	"github.com/deidaraiorek/sitesearch/internal/storage"
)

// memorySink keeps stored pages keyed by path.
type memorySink struct {
	mu    sync.Mutex
	pages map[string]*storage.Page
}

func newMemorySink() *memorySink {
	return &memorySink{pages: make(map[string]*storage.Page)}
}

func (m *memorySink) StorePage(ctx context.Context, page *storage.Page) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[page.Path] = page
	return nil
}

func (m *memorySink) get(path string) *storage.Page {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pages[path]
}

func (m *memorySink) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pages)
}

// hitCounter counts requests per path.
type hitCounter struct {
	mu   sync.Mutex
	hits map[string]int
}

func (h *hitCounter) inc(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hits[path]++
}

func (h *hitCounter) get(path string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hits[path]
}

func page(title string, links ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<html><head><title>%s</title></head><body><p>%s page</p>", title, title)
	for _, l := range links {
		fmt.Fprintf(&b, `<a href="%s">link</a>`, l)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func newSiteServer(t *testing.T, counter *hitCounter) *httptest.Server {
	t.Helper()
	pages := map[string]string{
		"/":  page("Home", "/a", "/b", "/c", "/a/", "/a?x=1", "#top"),
		"/a": page("A", "/", "/b", "/c", "/doc.pdf", "/data"),
		"/b": page("B", "/a", "/c", "/missing"),
		"/c": page("C", "/b", "http://other.example/x", "mailto:x@y.z"),
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		counter.inc(r.URL.Path)
		switch r.URL.Path {
		case "/data":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"a":1}`))
			return
		case "/missing":
			w.Header().Set("Content-Type", "text/html")
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(page("Not found", "/hidden")))
			return
		}
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newCrawler(sink crawler.PageSink, parallelism int) *crawler.Crawler {
	f := fetcher.New(fetcher.Options{UserAgent: "TestBot/1.0", Timeout: 5 * time.Second})
	return crawler.New(crawler.Config{Parallelism: parallelism}, f, nil, parser.New(parser.ModeBody), sink, nil)
}

func TestRunVisitsEveryPageOnce(t *testing.T) {
	counter := &hitCounter{hits: make(map[string]int)}
	srv := newSiteServer(t, counter)
	sink := newMemorySink()
	c := newCrawler(sink, 8)

	sess := c.NewSession(context.Background(), &storage.Site{ID: 1, URL: srv.URL + "/"})
	defer sess.Close()

	seen, err := c.Run(sess)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}

	for _, path := range []string{"/", "/a", "/b", "/c", "/data", "/missing"} {
		if got := counter.get(path); got != 1 {
			t.Errorf("%s fetched %d times, want 1", path, got)
		}
	}
	if got := counter.get("/hidden"); got != 0 {
		t.Errorf("links of a 404 page were followed: /hidden fetched %d times", got)
	}
	if got := counter.get("/doc.pdf"); got != 0 {
		t.Errorf("asset link fetched %d times", got)
	}

	for _, path := range []string{"/", "/a", "/b", "/c"} {
		p := sink.get(path)
		if p == nil || p.Code != http.StatusOK || p.SiteID != 1 {
			t.Errorf("page %s = %+v", path, p)
		}
	}
	if p := sink.get("/missing"); p == nil || p.Code != http.StatusNotFound {
		t.Errorf("404 page should be recorded with its code, got %+v", p)
	}
	if sink.get("/data") != nil {
		t.Error("non-html response should not be stored")
	}
	if sink.len() != 5 {
		t.Errorf("stored %d pages, want 5", sink.len())
	}
	if title := sink.get("/a").Title; title != "A" {
		t.Errorf("title = %q", title)
	}

	if len(seen) != 6 {
		t.Errorf("seen %d urls, want 6: %v", len(seen), seen)
	}
	stats := sess.Stats()
	if stats.Fetched != 5 || stats.Skipped != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n, _ := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/p"))
		select {
		case <-time.After(20 * time.Millisecond):
		case <-r.Context().Done():
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(page("chain", fmt.Sprintf("/p%d", n+1), fmt.Sprintf("/p%d", n+2))))
	}))
	defer srv.Close()

	sink := newMemorySink()
	c := newCrawler(sink, 4)
	sess := c.NewSession(context.Background(), &storage.Site{ID: 1, URL: srv.URL})
	defer sess.Close()

	done := make(chan error, 1)
	go func() {
		_, err := c.Run(sess)
		done <- err
	}()

	time.Sleep(150 * time.Millisecond)
	sess.Cancel()

	select {
	case err := <-done:
		if !errors.Is(err, crawler.ErrCancelled) {
			t.Errorf("Run error = %v, want ErrCancelled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Cancel")
	}

	stored := sink.len()
	time.Sleep(100 * time.Millisecond)
	if sink.len() != stored {
		t.Errorf("pages stored after cancellation: %d -> %d", stored, sink.len())
	}
	if !sess.Cancelled() {
		t.Error("session should report cancelled")
	}
}

func TestRunReportsUnreachableRoot(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := newCrawler(newMemorySink(), 2)
	sess := c.NewSession(context.Background(), &storage.Site{ID: 1, URL: url})
	defer sess.Close()

	_, err := c.Run(sess)
	var fetchErr *crawler.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("Run error = %v, want FetchError", err)
	}
}

func TestFetchDoesNotFollowLinks(t *testing.T) {
	counter := &hitCounter{hits: make(map[string]int)}
	srv := newSiteServer(t, counter)
	sink := newMemorySink()
	c := newCrawler(sink, 2)

	sess := c.NewSession(context.Background(), &storage.Site{ID: 7, URL: srv.URL})
	defer sess.Close()

	if err := c.Fetch(sess, srv.URL+"/a/"); err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if p := sink.get("/a"); p == nil || p.SiteID != 7 {
		t.Fatalf("page /a = %+v", p)
	}
	if sink.len() != 1 {
		t.Errorf("stored %d pages, want 1", sink.len())
	}
	if counter.get("/b") != 0 {
		t.Error("Fetch followed links")
	}

	if err := c.Fetch(sess, srv.URL+"/data"); !errors.Is(err, crawler.ErrNotHTML) {
		t.Errorf("Fetch(/data) error = %v, want ErrNotHTML", err)
	}
	if err := c.Fetch(sess, srv.URL+"/a"); !errors.Is(err, crawler.ErrSeen) {
		t.Errorf("second Fetch error = %v, want ErrSeen", err)
	}
}

// fakeRenderer stands in for the headless browser.
type fakeRenderer struct {
	mu    sync.Mutex
	calls []string
	html  string
	err   error
}

func (r *fakeRenderer) FetchHTML(ctx context.Context, url string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, url)
	return r.html, r.err
}

func (r *fakeRenderer) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func TestBrowserFallback(t *testing.T) {
	const shell = `<html><head><title>Shell</title></head><body><div id="app">loading</div></body></html>`
	rendered := `<html><head><title>Rendered</title></head><body><p>` +
		strings.Repeat("rendered article text ", 10) + `</p><a href="/more">more</a></body></html>`

	counter := &hitCounter{hits: make(map[string]int)}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		counter.inc(r.URL.Path)
		w.Header().Set("Content-Type", "text/html")
		switch r.URL.Path {
		case "/", "/thin":
		case "/more":
			w.Write([]byte(page("More")))
			return
		default:
			w.WriteHeader(http.StatusNotFound)
		}
		w.Write([]byte(shell))
	}))
	defer srv.Close()

	tests := []struct {
		name        string
		path        string
		renderer    *fakeRenderer
		wantCalls   int
		wantCode    int
		wantTitle   string
		wantContent string
	}{
		{
			name:        "thin page replaced by rendered content",
			path:        "/thin",
			renderer:    &fakeRenderer{html: rendered},
			wantCalls:   1,
			wantCode:    http.StatusOK,
			wantTitle:   "Rendered",
			wantContent: "rendered article text",
		},
		{
			name:        "renderer error keeps plain document",
			path:        "/thin",
			renderer:    &fakeRenderer{err: errors.New("chrome not found")},
			wantCalls:   1,
			wantCode:    http.StatusOK,
			wantTitle:   "Shell",
			wantContent: "loading",
		},
		{
			name:        "error page never rendered",
			path:        "/gone",
			renderer:    &fakeRenderer{html: rendered},
			wantCalls:   0,
			wantCode:    http.StatusNotFound,
			wantTitle:   "Shell",
			wantContent: "loading",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := newMemorySink()
			f := fetcher.New(fetcher.Options{UserAgent: "TestBot/1.0", Timeout: 5 * time.Second})
			c := crawler.New(crawler.Config{Parallelism: 2}, f, tt.renderer, parser.New(parser.ModeBody), sink, nil)

			sess := c.NewSession(context.Background(), &storage.Site{ID: 1, URL: srv.URL})
			defer sess.Close()

			if err := c.Fetch(sess, srv.URL+tt.path); err != nil {
				t.Fatalf("Fetch error: %v", err)
			}
			if got := tt.renderer.callCount(); got != tt.wantCalls {
				t.Errorf("renderer called %d times, want %d", got, tt.wantCalls)
			}

			p := sink.get(tt.path)
			if p == nil {
				t.Fatalf("page %s not stored", tt.path)
			}
			if p.Code != tt.wantCode || p.Title != tt.wantTitle || !strings.Contains(p.Content, tt.wantContent) {
				t.Errorf("page = %+v", p)
			}
		})
	}

	t.Run("rendered links are followed", func(t *testing.T) {
		sink := newMemorySink()
		f := fetcher.New(fetcher.Options{UserAgent: "TestBot/1.0", Timeout: 5 * time.Second})
		c := crawler.New(crawler.Config{Parallelism: 2}, f, &fakeRenderer{html: rendered}, parser.New(parser.ModeBody), sink, nil)

		sess := c.NewSession(context.Background(), &storage.Site{ID: 1, URL: srv.URL})
		defer sess.Close()

		if _, err := c.Run(sess); err != nil {
			t.Fatalf("Run error: %v", err)
		}
		if p := sink.get("/more"); p == nil {
			t.Error("link found only in the rendered page was not followed")
		}
		if counter.get("/more") != 1 {
			t.Errorf("/more fetched %d times, want 1", counter.get("/more"))
		}
	})
}
