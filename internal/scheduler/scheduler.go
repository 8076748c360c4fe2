// Package scheduler runs full site crawls on a small worker pool and
// single-page re-indexing, and tracks the indexing status of every site.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/deidaraiorek/sitesearch/internal/config"
	"github.com/deidaraiorek/sitesearch/internal/crawler"
	"github.com/deidaraiorek/sitesearch/internal/indexer"
	"github.com/deidaraiorek/sitesearch/internal/parser"
	"github.com/deidaraiorek/sitesearch/internal/storage"
)

var (
	ErrAlreadyRunning = errors.New("Indexing is already running")
	ErrNotRunning     = errors.New("Indexing is not running")
	ErrOutsideSites   = errors.New("This page is outside the sites specified in the configuration file")
)

const (
	StoppedByUser = "Indexing stopped by user"
	Interrupted   = "Indexing interrupted"
)

type Scheduler struct {
	sites   []config.Site
	workers int
	db      *storage.Database
	crawler *crawler.Crawler
	indexer *indexer.Indexer
	logger  *slog.Logger

	mu       sync.Mutex
	running  bool
	sessions []*crawler.Session
	done     chan struct{}
}

func New(sites []config.Site, workers int, db *storage.Database, c *crawler.Crawler, idx *indexer.Indexer, logger *slog.Logger) *Scheduler {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		sites:   sites,
		workers: workers,
		db:      db,
		crawler: c,
		indexer: idx,
		logger:  logger,
	}
}

// ResetInterrupted fails sites left INDEXING by a previous process, so a
// new run can start.
func (s *Scheduler) ResetInterrupted(ctx context.Context) error {
	n, err := s.db.FailIndexing(ctx, Interrupted)
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.Warn("marked interrupted sites as failed", "sites", n)
	}
	return nil
}

// StartAll clears every configured site and crawls them in the background.
func (s *Scheduler) StartAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}
	indexing, err := s.anyIndexing(ctx)
	if err != nil {
		return err
	}
	if indexing {
		return ErrAlreadyRunning
	}

	// The run outlives the request that started it.
	runCtx := context.WithoutCancel(ctx)

	sessions := make([]*crawler.Session, 0, len(s.sites))
	for _, cfgSite := range s.sites {
		site, err := s.prepareSite(ctx, cfgSite)
		if err != nil {
			for _, sess := range sessions {
				sess.Close()
			}
			return err
		}
		sessions = append(sessions, s.crawler.NewSession(runCtx, site))
	}

	s.running = true
	s.sessions = sessions
	s.done = make(chan struct{})

	go s.run(sessions, s.done)

	s.logger.Info("indexing started", "sites", len(sessions), "workers", s.workers)
	return nil
}

func (s *Scheduler) anyIndexing(ctx context.Context) (bool, error) {
	sites, err := s.db.ListSites(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to list sites: %w", err)
	}
	configured := make(map[string]bool, len(s.sites))
	for _, site := range s.sites {
		configured[site.URL] = true
	}
	for _, site := range sites {
		if configured[site.URL] && site.Status == storage.StatusIndexing {
			return true, nil
		}
	}
	return false, nil
}

func (s *Scheduler) prepareSite(ctx context.Context, cfgSite config.Site) (*storage.Site, error) {
	site, err := s.db.UpsertSite(ctx, cfgSite.URL, cfgSite.Name)
	if err != nil {
		return nil, err
	}
	if err := s.db.ResetSite(ctx, site.ID); err != nil {
		return nil, fmt.Errorf("failed to reset site %s: %w", site.URL, err)
	}
	if err := s.db.UpdateSiteStatus(ctx, site.ID, storage.StatusIndexing, ""); err != nil {
		return nil, err
	}
	site.Status = storage.StatusIndexing
	return site, nil
}

func (s *Scheduler) run(sessions []*crawler.Session, done chan struct{}) {
	jobs := make(chan *crawler.Session)

	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sess := range jobs {
				s.crawlSite(sess)
			}
		}()
	}

	for _, sess := range sessions {
		jobs <- sess
	}
	close(jobs)
	wg.Wait()

	// Sweep before the run is released so a new run never sees it.
	for _, sess := range sessions {
		if sess.Cancelled() {
			s.failIfIndexing(sess.Site)
		}
	}

	s.mu.Lock()
	s.running = false
	s.sessions = nil
	s.mu.Unlock()
	close(done)

	s.logger.Info("indexing finished")
}

func (s *Scheduler) crawlSite(sess *crawler.Session) {
	defer sess.Close()

	start := time.Now()
	_, err := s.crawler.Run(sess)

	// The session context is done by now; status updates must not use it.
	ctx := context.Background()
	switch {
	case errors.Is(err, crawler.ErrCancelled):
		s.updateStatus(ctx, sess.Site, storage.StatusFailed, StoppedByUser)
	case err != nil:
		s.updateStatus(ctx, sess.Site, storage.StatusFailed, err.Error())
	default:
		s.updateStatus(ctx, sess.Site, storage.StatusIndexed, "")
	}

	s.logger.Info("site done", "site", sess.Site.URL, "session", sess.ID,
		"elapsed", time.Since(start).Round(time.Millisecond), "err", err)
}

// updateStatus logs and gives up when the site row has disappeared.
func (s *Scheduler) updateStatus(ctx context.Context, site *storage.Site, status storage.Status, lastError string) {
	err := s.db.UpdateSiteStatus(ctx, site.ID, status, lastError)
	if errors.Is(err, storage.ErrNotFound) {
		s.logger.Error("site row missing, status not updated", "site", site.URL, "status", status)
		return
	}
	if err != nil {
		s.logger.Error("failed to update site status", "site", site.URL, "status", status, "err", err)
	}
}

func (s *Scheduler) failIfIndexing(site *storage.Site) {
	failed, err := s.db.FailSiteIfIndexing(context.Background(), site.ID, StoppedByUser)
	if err != nil {
		s.logger.Error("failed to mark stopped site", "site", site.URL, "err", err)
		return
	}
	if failed {
		s.logger.Warn("stopped site left indexing, marked failed", "site", site.URL)
	}
}

// Stop cancels every running crawl and waits for the workers to drain. The
// sites of the stopped run that did not finish end up FAILED.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	for _, sess := range s.sessions {
		sess.Cancel()
	}
	done := s.done
	s.mu.Unlock()

	s.logger.Info("stopping indexing")

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until the current run, if any, has finished.
func (s *Scheduler) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()

	if done != nil {
		<-done
	}
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// IndexPage re-fetches and re-indexes a single page of a configured site.
func (s *Scheduler) IndexPage(ctx context.Context, rawURL string) error {
	pageURL := parser.Normalize(rawURL)

	cfgSite, ok := s.siteFor(pageURL)
	if !ok {
		return ErrOutsideSites
	}

	site, err := s.db.UpsertSite(ctx, cfgSite.URL, cfgSite.Name)
	if err != nil {
		return err
	}

	// A full run owns the status of its sites.
	ownsStatus := !s.IsRunning()
	if ownsStatus {
		s.updateStatus(ctx, site, storage.StatusIndexing, "")
	}

	if err := s.reindex(ctx, site, pageURL); err != nil {
		if ownsStatus {
			s.updateStatus(context.WithoutCancel(ctx), site, storage.StatusFailed, err.Error())
		}
		return err
	}

	if ownsStatus {
		s.updateStatus(ctx, site, storage.StatusIndexed, "")
	}
	s.logger.Info("page indexed", "site", site.URL, "url", pageURL)
	return nil
}

func (s *Scheduler) reindex(ctx context.Context, site *storage.Site, pageURL string) error {
	existing, err := s.db.FindPage(ctx, site.ID, parser.Path(pageURL))
	if err != nil {
		return err
	}
	if existing != nil {
		if err := s.indexer.RemovePage(ctx, existing); err != nil {
			return err
		}
	}

	sess := s.crawler.NewSession(ctx, site)
	defer sess.Close()

	if err := s.crawler.Fetch(sess, pageURL); err != nil {
		return fmt.Errorf("failed to index %s: %w", pageURL, err)
	}
	return nil
}

func (s *Scheduler) siteFor(pageURL string) (config.Site, bool) {
	for _, site := range s.sites {
		if parser.InDomain(pageURL, parser.Domain(site.URL)) {
			return site, true
		}
	}
	return config.Site{}, false
}
