// Package search ranks indexed pages against a text query.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/deidaraiorek/sitesearch/internal/config"
	"github.com/deidaraiorek/sitesearch/internal/snippet"
	"github.com/deidaraiorek/sitesearch/internal/storage"
	"github.com/deidaraiorek/sitesearch/internal/textprocessor"
)

var ErrEmptyQuery = errors.New("An empty search query was given")

// NotFoundError means the query was valid but matched nothing.
type NotFoundError struct {
	Reason string
}

func (e *NotFoundError) Error() string {
	return e.Reason
}

func notFound(format string, args ...any) error {
	return &NotFoundError{Reason: fmt.Sprintf(format, args...)}
}

type Query struct {
	Text   string
	Site   string
	Offset int
	Limit  int
}

type Result struct {
	Site      string  `json:"site"`
	SiteName  string  `json:"siteName"`
	URI       string  `json:"uri"`
	Title     string  `json:"title"`
	Snippet   string  `json:"snippet"`
	Relevance float64 `json:"relevance"`
}

type Results struct {
	Count int
	Data  []Result
}

type Engine struct {
	sites     []config.Site
	cfg       config.Search
	db        *storage.Database
	processor *textprocessor.TextProcessor
	snippets  *snippet.Builder
	logger    *slog.Logger
}

func NewEngine(sites []config.Site, cfg config.Search, db *storage.Database, processor *textprocessor.TextProcessor, logger *slog.Logger) *Engine {
	if processor == nil {
		processor = textprocessor.NewTextProcessor(nil)
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 20
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		sites:     sites,
		cfg:       cfg,
		db:        db,
		processor: processor,
		snippets:  snippet.NewBuilder(processor),
		logger:    logger,
	}
}

// siteLemmas is the part of a query answerable by one site.
type siteLemmas struct {
	site   *storage.Site
	lemmas []*storage.Lemma
}

type hit struct {
	siteID   int64
	pageID   int64
	absolute float64
	relative float64
}

// Search returns pages containing every lemma of the query, most relevant
// first. Relevance is the sum of lemma ranks on the page, divided by the
// best page of the same site.
func (e *Engine) Search(ctx context.Context, q Query) (*Results, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, ErrEmptyQuery
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	if q.Limit <= 0 {
		q.Limit = e.cfg.DefaultLimit
	}

	log := e.logger.With("query", q.Text, "site", q.Site)
	log.Info("search", "offset", q.Offset, "limit", q.Limit)

	sites, err := e.candidateSites(ctx, q.Site)
	if err != nil {
		return nil, err
	}
	if len(sites) == 0 {
		if q.Site != "" {
			return nil, notFound("Search site %s not found", q.Site)
		}
		return nil, notFound("No indexed sites found")
	}

	words := e.processor.QueryLemmas(q.Text)
	if len(words) == 0 {
		return nil, notFound("search lemmas: not found in database")
	}

	var groups []siteLemmas
	for _, site := range sites {
		lemmas, err := e.siteLemmas(ctx, site, words)
		if err != nil {
			return nil, err
		}
		if lemmas != nil {
			groups = append(groups, siteLemmas{site: site, lemmas: lemmas})
		}
	}
	if len(groups) == 0 {
		return nil, notFound("search lemmas: not found in database")
	}

	groups, err = e.dropFrequent(ctx, groups, log)
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return nil, notFound("Not found lemmas in DB")
	}

	var hits []hit
	for _, g := range groups {
		siteHits, err := e.rankSite(ctx, g)
		if err != nil {
			return nil, err
		}
		hits = append(hits, siteHits...)
	}
	if len(hits) == 0 {
		return nil, notFound("Nothing found")
	}

	sort.Slice(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.relative != b.relative {
			return a.relative > b.relative
		}
		if a.absolute != b.absolute {
			return a.absolute > b.absolute
		}
		if a.siteID != b.siteID {
			return a.siteID < b.siteID
		}
		return a.pageID < b.pageID
	})

	total := len(hits)
	if q.Offset >= total {
		return &Results{Count: total, Data: []Result{}}, nil
	}
	end := min(q.Offset+q.Limit, total)
	page := hits[q.Offset:end]

	data, err := e.render(ctx, page, groups)
	if err != nil {
		return nil, err
	}

	log.Info("search done", "count", total, "returned", len(data))
	return &Results{Count: total, Data: data}, nil
}

// candidateSites returns the stored sites the query may search: the one
// named by siteURL, or every configured site when siteURL is empty.
func (e *Engine) candidateSites(ctx context.Context, siteURL string) ([]*storage.Site, error) {
	want := strings.TrimSuffix(siteURL, "/")

	var sites []*storage.Site
	for _, cfgSite := range e.sites {
		if want != "" && strings.TrimSuffix(cfgSite.URL, "/") != want {
			continue
		}
		site, err := e.db.GetSiteByURL(ctx, cfgSite.URL)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		sites = append(sites, site)
		if want != "" {
			break
		}
	}
	return sites, nil
}

// siteLemmas loads the lemma rows of words for site, or nil when the site
// lacks any of them.
func (e *Engine) siteLemmas(ctx context.Context, site *storage.Site, words []string) ([]*storage.Lemma, error) {
	lemmas := make([]*storage.Lemma, 0, len(words))
	for _, w := range words {
		lemma, err := e.db.GetLemma(ctx, site.ID, w)
		if err != nil {
			return nil, err
		}
		if lemma == nil {
			return nil, nil
		}
		lemmas = append(lemmas, lemma)
	}
	return lemmas, nil
}

// dropFrequent removes lemmas found on nearly every page of a large site,
// then orders the remaining lemmas from rarest to most frequent.
func (e *Engine) dropFrequent(ctx context.Context, groups []siteLemmas, log *slog.Logger) ([]siteLemmas, error) {
	kept := groups[:0]
	for _, g := range groups {
		pageCount, err := e.db.CountPages(ctx, g.site.ID)
		if err != nil {
			return nil, err
		}

		lemmas := g.lemmas[:0]
		for _, l := range g.lemmas {
			if l.Frequency >= pageCount && pageCount > e.cfg.FrequentLemmaMinPages {
				log.Debug("dropping frequent lemma", "lemma", l.Lemma, "site_id", g.site.ID, "frequency", l.Frequency)
				continue
			}
			lemmas = append(lemmas, l)
		}
		if len(lemmas) == 0 {
			continue
		}

		sort.Slice(lemmas, func(i, j int) bool {
			if lemmas[i].Frequency != lemmas[j].Frequency {
				return lemmas[i].Frequency < lemmas[j].Frequency
			}
			return lemmas[i].Lemma < lemmas[j].Lemma
		})
		kept = append(kept, siteLemmas{site: g.site, lemmas: lemmas})
	}
	return kept, nil
}

// rankSite intersects the postings of the site's lemmas, starting from the
// rarest one, and scores every page that contains them all.
func (e *Engine) rankSite(ctx context.Context, g siteLemmas) ([]hit, error) {
	seed, err := e.db.PostingsByLemma(ctx, g.lemmas[0].ID)
	if err != nil {
		return nil, err
	}

	scores := make(map[int64]float64, len(seed))
	for _, p := range seed {
		scores[p.PageID] = float64(p.Rank)
	}

	for _, l := range g.lemmas[1:] {
		if len(scores) == 0 {
			break
		}
		postings, err := e.db.PostingsByLemma(ctx, l.ID)
		if err != nil {
			return nil, err
		}

		next := make(map[int64]float64, len(scores))
		for _, p := range postings {
			if score, ok := scores[p.PageID]; ok {
				next[p.PageID] = score + float64(p.Rank)
			}
		}
		scores = next
	}

	var best float64
	for _, score := range scores {
		best = max(best, score)
	}
	if best == 0 {
		return nil, nil
	}

	hits := make([]hit, 0, len(scores))
	for pageID, score := range scores {
		if score == 0 {
			continue
		}
		hits = append(hits, hit{
			siteID:   g.site.ID,
			pageID:   pageID,
			absolute: score,
			relative: score / best,
		})
	}
	return hits, nil
}

func (e *Engine) render(ctx context.Context, hits []hit, groups []siteLemmas) ([]Result, error) {
	bySite := make(map[int64]siteLemmas, len(groups))
	for _, g := range groups {
		bySite[g.site.ID] = g
	}

	data := make([]Result, 0, len(hits))
	for _, h := range hits {
		page, err := e.db.GetPage(ctx, h.pageID)
		if err != nil {
			return nil, fmt.Errorf("failed to load page %d: %w", h.pageID, err)
		}
		g := bySite[h.siteID]

		texts := make([]string, len(g.lemmas))
		for i, l := range g.lemmas {
			texts[i] = l.Lemma
		}

		data = append(data, Result{
			Site:      strings.TrimSuffix(g.site.URL, "/"),
			SiteName:  g.site.Name,
			URI:       uri(page.Path),
			Title:     page.Title,
			Snippet:   e.snippets.Build(page.Content, texts),
			Relevance: h.relative,
		})
	}
	return data, nil
}

// uri drops the trailing slash of a page path, except for the root.
func uri(path string) string {
	if path == "/" || path == "" {
		return "/"
	}
	return strings.TrimSuffix(path, "/")
}
