// Package indexer stores crawled pages and maintains their lemma postings.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/deidaraiorek/sitesearch/internal/storage"
	"github.com/deidaraiorek/sitesearch/internal/textprocessor"
)

type Indexer struct {
	db        *storage.Database
	processor *textprocessor.TextProcessor
	logger    *slog.Logger
}

func NewIndexer(db *storage.Database, processor *textprocessor.TextProcessor, logger *slog.Logger) *Indexer {
	if processor == nil {
		processor = textprocessor.NewTextProcessor(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		db:        db,
		processor: processor,
		logger:    logger,
	}
}

// StorePage saves a crawled page and indexes it when it is new and was
// served with 200. A page whose path is already stored is left untouched.
func (idx *Indexer) StorePage(ctx context.Context, page *storage.Page) error {
	_, inserted, err := idx.db.SavePage(ctx, page)
	if err != nil {
		return err
	}
	if !inserted {
		idx.logger.Debug("page already stored", "site_id", page.SiteID, "path", page.Path)
		return nil
	}
	if page.Code != http.StatusOK {
		return nil
	}
	return idx.IndexPage(ctx, page)
}

// IndexPage adds the lemmas of a stored page to the index.
func (idx *Indexer) IndexPage(ctx context.Context, page *storage.Page) error {
	if page.ID == 0 {
		return fmt.Errorf("index page %s: page is not stored", page.Path)
	}

	lemmas := idx.processor.Extract(page.Content)
	if err := idx.db.IndexPage(ctx, page.ID, page.SiteID, lemmas); err != nil {
		return fmt.Errorf("index page %s: %w", page.Path, err)
	}

	idx.logger.Debug("page indexed", "site_id", page.SiteID, "path", page.Path, "lemmas", len(lemmas))
	return nil
}

// RemovePage deletes a page together with its postings, keeping the
// frequencies of the site's lemmas consistent.
func (idx *Indexer) RemovePage(ctx context.Context, page *storage.Page) error {
	if err := idx.db.RemovePage(ctx, page.ID); err != nil {
		return fmt.Errorf("remove page %s: %w", page.Path, err)
	}
	idx.logger.Debug("page removed", "site_id", page.SiteID, "path", page.Path)
	return nil
}
