// Package crawler walks a site as a fork/join tree: every fetched page
// forks one goroutine per newly discovered in-site link and waits for them.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/deidaraiorek/sitesearch/internal/fetcher"
	"github.com/deidaraiorek/sitesearch/internal/parser"
	"github.com/deidaraiorek/sitesearch/internal/storage"
)

var (
	ErrCancelled = errors.New("crawl cancelled")
	ErrNotHTML   = errors.New("not an html page")
	ErrSeen      = errors.New("url already visited")
)

type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*fetcher.Response, error)
}

// Renderer returns the HTML of a page after scripts have run.
type Renderer interface {
	FetchHTML(ctx context.Context, url string) (string, error)
}

// PageSink persists a fetched page.
type PageSink interface {
	StorePage(ctx context.Context, page *storage.Page) error
}

type Config struct {
	Parallelism int
	DelayMin    time.Duration
	DelayMax    time.Duration
}

type Crawler struct {
	config   Config
	fetcher  PageFetcher
	renderer Renderer
	parser   *parser.Parser
	sink     PageSink
	logger   *slog.Logger
}

// New creates a crawler. renderer may be nil to disable the browser
// fallback for script-heavy pages.
func New(cfg Config, f PageFetcher, renderer Renderer, p *parser.Parser, sink PageSink, logger *slog.Logger) *Crawler {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}
	if cfg.DelayMax < cfg.DelayMin {
		cfg.DelayMax = cfg.DelayMin
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Crawler{
		config:   cfg,
		fetcher:  f,
		renderer: renderer,
		parser:   p,
		sink:     sink,
		logger:   logger,
	}
}

// NewSession starts the state of a crawl of site. Call Close on the session
// once done with it.
func (c *Crawler) NewSession(ctx context.Context, site *storage.Site) *Session {
	return newSession(ctx, site, c.config.Parallelism)
}

// Run crawls the session's site from its root and returns every URL seen
// once the whole tree has joined. It returns ErrCancelled when the session
// was stopped, or the error of the root page when the site is unreachable.
func (c *Crawler) Run(sess *Session) ([]string, error) {
	root := parser.Normalize(sess.Site.URL)
	log := c.logger.With("session", sess.ID, "site", sess.Site.URL)
	log.Info("crawl started", "root", root)

	start := time.Now()
	err := c.crawl(sess, Task{URL: root}, log)

	stats := sess.Stats()
	log.Info("crawl finished",
		"fetched", stats.Fetched,
		"failed", stats.Failed,
		"skipped", stats.Skipped,
		"elapsed", time.Since(start).Round(time.Millisecond),
		"cancelled", sess.stopped(),
	)

	if sess.stopped() {
		return sess.Seen(), ErrCancelled
	}
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return sess.Seen(), err
	}
	return sess.Seen(), nil
}

// Fetch visits a single URL of the session's site without following its
// links.
func (c *Crawler) Fetch(sess *Session, url string) error {
	log := c.logger.With("session", sess.ID, "site", sess.Site.URL)
	url = parser.Normalize(url)
	if !sess.claim(url) {
		return ErrSeen
	}
	_, err := c.visit(sess, Task{URL: url}, log)
	return err
}

// FetchError is a transport failure fetching a page.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func (c *Crawler) crawl(sess *Session, task Task, log *slog.Logger) error {
	if !sess.claim(task.URL) {
		return ErrSeen
	}

	links, err := c.visit(sess, task, log)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	for _, link := range links {
		if sess.stopped() {
			break
		}
		if sess.isSeen(link) {
			continue
		}
		child := Task{URL: link, Parent: task.URL, Depth: task.Depth + 1}
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.crawl(sess, child, log)
		}()
	}
	wg.Wait()

	return nil
}

// visit fetches and persists one page and returns its in-site links. Links
// are only followed from 200 pages.
func (c *Crawler) visit(sess *Session, task Task, log *slog.Logger) ([]string, error) {
	if sess.stopped() {
		return nil, ErrCancelled
	}
	if !sess.acquire() {
		return nil, ErrCancelled
	}
	defer sess.release()

	if err := sleepCtx(sess.ctx, c.delay()); err != nil {
		return nil, ErrCancelled
	}

	resp, err := c.fetcher.Fetch(sess.ctx, task.URL)
	if err != nil {
		if sess.stopped() {
			return nil, ErrCancelled
		}
		sess.failed.Add(1)
		log.Warn("fetch failed", "url", task.URL, "parent", task.Parent, "err", err)
		return nil, &FetchError{URL: task.URL, Err: err}
	}

	if !parser.IsHTML(resp.ContentType) {
		sess.skipped.Add(1)
		log.Debug("skipping non-html content", "url", task.URL, "content_type", resp.ContentType)
		return nil, ErrNotHTML
	}

	doc, err := c.parser.Parse(resp.Body, task.URL)
	if err != nil {
		sess.failed.Add(1)
		log.Warn("parse failed", "url", task.URL, "err", err)
		return nil, fmt.Errorf("parse %s: %w", task.URL, err)
	}

	if resp.StatusCode == http.StatusOK && c.renderer != nil && !doc.HasSufficientContent() {
		doc = c.render(sess, task, doc, log)
	}

	if sess.stopped() {
		return nil, ErrCancelled
	}

	page := &storage.Page{
		SiteID:  sess.Site.ID,
		Path:    parser.Path(task.URL),
		Code:    resp.StatusCode,
		Title:   doc.Title,
		Content: doc.Content,
	}
	if err := c.sink.StorePage(sess.ctx, page); err != nil {
		if sess.stopped() {
			return nil, ErrCancelled
		}
		sess.failed.Add(1)
		log.Error("failed to store page", "url", task.URL, "err", err)
		return nil, fmt.Errorf("store %s: %w", task.URL, err)
	}
	sess.fetched.Add(1)
	log.Debug("page stored", "url", task.URL, "code", resp.StatusCode, "depth", task.Depth)

	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}

	links := make([]string, 0, len(doc.Links))
	for _, link := range doc.Links {
		if parser.InDomain(link, sess.Domain) {
			links = append(links, link)
		}
	}
	return links, nil
}

// render retries a thin page in the browser, keeping the plain document
// when rendering fails or adds nothing.
func (c *Crawler) render(sess *Session, task Task, doc *parser.Document, log *slog.Logger) *parser.Document {
	log.Debug("insufficient content, retrying with browser", "url", task.URL)

	html, err := c.renderer.FetchHTML(sess.ctx, task.URL)
	if err != nil {
		log.Warn("browser fetch failed", "url", task.URL, "err", err)
		return doc
	}

	rendered, err := c.parser.Parse([]byte(html), task.URL)
	if err != nil || len(rendered.Content) <= len(doc.Content) {
		return doc
	}
	return rendered
}

func (c *Crawler) delay() time.Duration {
	span := c.config.DelayMax - c.config.DelayMin
	if span <= 0 {
		return c.config.DelayMin
	}
	return c.config.DelayMin + time.Duration(rand.Int63n(int64(span+1)))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
