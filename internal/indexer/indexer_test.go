package indexer_test

import (
	"context"
	"testing"

	"github.com/deidaraiorek/sitesearch/internal/indexer"
	"github.com/deidaraiorek/sitesearch/internal/storage"
)

func setup(t *testing.T) (*storage.Database, *indexer.Indexer, *storage.Site) {
	t.Helper()
	db, err := storage.NewDatabase("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	site, err := db.UpsertSite(context.Background(), "https://example.com", "Example")
	if err != nil {
		t.Fatalf("UpsertSite error: %v", err)
	}
	return db, indexer.NewIndexer(db, nil, nil), site
}

func rankOf(t *testing.T, db *storage.Database, siteID, pageID int64, lemma string) int {
	t.Helper()
	ctx := context.Background()
	l, err := db.GetLemma(ctx, siteID, lemma)
	if err != nil {
		t.Fatal(err)
	}
	if l == nil {
		return 0
	}
	postings, err := db.PostingsByPage(ctx, pageID)
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range postings {
		if p.LemmaID == l.ID {
			return p.Rank
		}
	}
	return 0
}

func assertFrequencies(t *testing.T, db *storage.Database, siteID int64) {
	t.Helper()
	mismatches, err := db.CheckFrequencies(context.Background(), siteID)
	if err != nil {
		t.Fatal(err)
	}
	if len(mismatches) != 0 {
		t.Errorf("frequency != posting count: %v", mismatches)
	}
}

func TestStorePageIndexesRanks(t *testing.T) {
	ctx := context.Background()
	db, idx, site := setup(t)

	page := &storage.Page{SiteID: site.ID, Path: "/", Code: 200, Content: "cat dog cat"}
	if err := idx.StorePage(ctx, page); err != nil {
		t.Fatalf("StorePage error: %v", err)
	}

	if got := rankOf(t, db, site.ID, page.ID, "cat"); got != 2 {
		t.Errorf("rank(cat) = %d, want 2", got)
	}
	if got := rankOf(t, db, site.ID, page.ID, "dog"); got != 1 {
		t.Errorf("rank(dog) = %d, want 1", got)
	}
	assertFrequencies(t, db, site.ID)
}

func TestStorePageSkipsErrorPagesAndDuplicates(t *testing.T) {
	ctx := context.Background()
	db, idx, site := setup(t)

	notFound := &storage.Page{SiteID: site.ID, Path: "/gone", Code: 404, Content: "cat"}
	if err := idx.StorePage(ctx, notFound); err != nil {
		t.Fatalf("StorePage error: %v", err)
	}
	if n, _ := db.CountLemmas(ctx, site.ID); n != 0 {
		t.Errorf("404 page was indexed: %d lemmas", n)
	}
	if n, _ := db.CountPages(ctx, site.ID); n != 1 {
		t.Errorf("404 page should still be stored, pages = %d", n)
	}

	first := &storage.Page{SiteID: site.ID, Path: "/a", Code: 200, Content: "cat"}
	dup := &storage.Page{SiteID: site.ID, Path: "/a", Code: 200, Content: "cat cat"}
	idx.StorePage(ctx, first)
	if err := idx.StorePage(ctx, dup); err != nil {
		t.Fatalf("StorePage(dup) error: %v", err)
	}

	cat, _ := db.GetLemma(ctx, site.ID, "cat")
	if cat == nil || cat.Frequency != 1 {
		t.Errorf("duplicate page changed frequencies: %+v", cat)
	}
	assertFrequencies(t, db, site.ID)
}

func TestFrequencyTracksPagesAcrossReindexing(t *testing.T) {
	ctx := context.Background()
	db, idx, site := setup(t)

	pages := []*storage.Page{
		{SiteID: site.ID, Path: "/1", Code: 200, Content: "cat dog"},
		{SiteID: site.ID, Path: "/2", Code: 200, Content: "cat bird"},
		{SiteID: site.ID, Path: "/3", Code: 200, Content: "cat cat cat"},
	}
	for _, p := range pages {
		if err := idx.StorePage(ctx, p); err != nil {
			t.Fatalf("StorePage error: %v", err)
		}
	}

	cat, _ := db.GetLemma(ctx, site.ID, "cat")
	if cat.Frequency != 3 {
		t.Errorf("cat frequency = %d, want 3", cat.Frequency)
	}

	if err := idx.RemovePage(ctx, pages[0]); err != nil {
		t.Fatalf("RemovePage error: %v", err)
	}
	cat, _ = db.GetLemma(ctx, site.ID, "cat")
	if cat.Frequency != 2 {
		t.Errorf("cat frequency after removal = %d, want 2", cat.Frequency)
	}
	if dog, _ := db.GetLemma(ctx, site.ID, "dog"); dog != nil {
		t.Errorf("dog should be gone, got %+v", dog)
	}
	assertFrequencies(t, db, site.ID)

	again := &storage.Page{SiteID: site.ID, Path: "/1", Code: 200, Content: "dog dog"}
	if err := idx.StorePage(ctx, again); err != nil {
		t.Fatalf("StorePage error: %v", err)
	}
	if got := rankOf(t, db, site.ID, again.ID, "dog"); got != 2 {
		t.Errorf("rank(dog) = %d, want 2", got)
	}
	assertFrequencies(t, db, site.ID)
}

func TestIndexPageRequiresStoredPage(t *testing.T) {
	_, idx, site := setup(t)

	err := idx.IndexPage(context.Background(), &storage.Page{SiteID: site.ID, Path: "/x", Code: 200})
	if err == nil {
		t.Fatal("expected error for unsaved page")
	}
}
