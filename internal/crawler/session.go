package crawler

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/deidaraiorek/sitesearch/internal/parser"
	"github.com/deidaraiorek/sitesearch/internal/storage"
)

// Task is one URL to visit. Children are created with Parent set to the
// page the link was found on.
type Task struct {
	URL    string
	Parent string
	Depth  int
}

type Stats struct {
	Fetched int64
	Failed  int64
	Skipped int64
}

// Session holds the state of one site crawl: the seen registry, the
// cancellation flag and the fetch slots. Sessions are never shared between
// sites.
type Session struct {
	ID     string
	Site   *storage.Site
	Domain string

	ctx       context.Context
	cancel    context.CancelFunc
	cancelled atomic.Bool

	seen  sync.Map
	slots chan struct{}

	fetched atomic.Int64
	failed  atomic.Int64
	skipped atomic.Int64
}

func newSession(ctx context.Context, site *storage.Site, parallelism int) *Session {
	if parallelism <= 0 {
		parallelism = 1
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Session{
		ID:     uuid.NewString(),
		Site:   site,
		Domain: parser.Domain(site.URL),
		ctx:    ctx,
		cancel: cancel,
		slots:  make(chan struct{}, parallelism),
	}
}

// Cancel stops the crawl. In-flight requests are abandoned and no further
// pages are persisted.
func (s *Session) Cancel() {
	s.cancelled.Store(true)
	s.cancel()
}

// Cancelled reports whether Cancel was called.
func (s *Session) Cancelled() bool {
	return s.cancelled.Load()
}

// stopped also covers cancellation of the parent context.
func (s *Session) stopped() bool {
	return s.cancelled.Load() || s.ctx.Err() != nil
}

// Close releases the session context once the crawl has returned.
func (s *Session) Close() {
	s.cancel()
}

// Context is cancelled together with the session.
func (s *Session) Context() context.Context {
	return s.ctx
}

// claim marks url as seen. Only the first caller for a URL gets true.
func (s *Session) claim(url string) bool {
	_, loaded := s.seen.LoadOrStore(url, struct{}{})
	return !loaded
}

func (s *Session) isSeen(url string) bool {
	_, ok := s.seen.Load(url)
	return ok
}

// Seen returns every URL claimed in this session, sorted.
func (s *Session) Seen() []string {
	var urls []string
	s.seen.Range(func(key, _ any) bool {
		urls = append(urls, key.(string))
		return true
	})
	sort.Strings(urls)
	return urls
}

func (s *Session) Stats() Stats {
	return Stats{
		Fetched: s.fetched.Load(),
		Failed:  s.failed.Load(),
		Skipped: s.skipped.Load(),
	}
}

// acquire takes a fetch slot, giving up when the session is cancelled.
func (s *Session) acquire() bool {
	select {
	case s.slots <- struct{}{}:
		return true
	case <-s.ctx.Done():
		return false
	}
}

func (s *Session) release() {
	<-s.slots
}
