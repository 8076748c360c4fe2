package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
)

type Lemma struct {
	ID        int64
	SiteID    int64
	Lemma     string
	Frequency int
}

type Posting struct {
	PageID  int64
	LemmaID int64
	Rank    int
}

// IndexPage records the lemmas of a page in one transaction: every lemma is
// upserted with its frequency incremented, then the postings are inserted.
func (d *Database) IndexPage(ctx context.Context, pageID, siteID int64, lemmas map[string]int) error {
	if len(lemmas) == 0 {
		return nil
	}

	texts := make([]string, 0, len(lemmas))
	for text := range lemmas {
		texts = append(texts, text)
	}
	sort.Strings(texts)

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	upsertLemmaStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO lemmas (site_id, lemma, frequency) VALUES (?, ?, 1)
		ON CONFLICT(site_id, lemma) DO UPDATE SET frequency = frequency + 1
		RETURNING id
	`)
	if err != nil {
		return err
	}
	defer upsertLemmaStmt.Close()

	lemmaIDs := make([]int64, len(texts))
	for i, text := range texts {
		if err := upsertLemmaStmt.QueryRowContext(ctx, siteID, text).Scan(&lemmaIDs[i]); err != nil {
			return fmt.Errorf("failed to upsert lemma %q: %w", text, err)
		}
	}

	insertPostingStmt, err := tx.PrepareContext(ctx,
		"INSERT INTO postings (page_id, lemma_id, rank) VALUES (?, ?, ?)")
	if err != nil {
		return err
	}
	defer insertPostingStmt.Close()

	for i, text := range texts {
		if _, err := insertPostingStmt.ExecContext(ctx, pageID, lemmaIDs[i], lemmas[text]); err != nil {
			return fmt.Errorf("failed to insert posting for lemma %q: %w", text, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit page %d: %w", pageID, err)
	}
	return nil
}

// RemovePage deletes a page and its postings, decrementing the frequency of
// every lemma the page referenced and dropping lemmas that reach zero.
func (d *Database) RemovePage(ctx context.Context, pageID int64) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var siteID int64
	err = tx.QueryRowContext(ctx, "SELECT site_id FROM pages WHERE id = ?", pageID).Scan(&siteID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("page %d: %w", pageID, ErrNotFound)
	}
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE lemmas SET frequency = frequency - 1
		WHERE id IN (SELECT lemma_id FROM postings WHERE page_id = ?)
	`, pageID); err != nil {
		return fmt.Errorf("failed to decrement lemmas: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM postings WHERE page_id = ?", pageID); err != nil {
		return fmt.Errorf("failed to delete postings: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM lemmas WHERE site_id = ? AND frequency <= 0", siteID); err != nil {
		return fmt.Errorf("failed to delete unused lemmas: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM pages WHERE id = ?", pageID); err != nil {
		return fmt.Errorf("failed to delete page: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit removal of page %d: %w", pageID, err)
	}
	return nil
}

// GetLemma returns the lemma row of a site, or nil when it is not indexed.
func (d *Database) GetLemma(ctx context.Context, siteID int64, text string) (*Lemma, error) {
	var lemma Lemma
	err := d.db.QueryRowContext(ctx,
		"SELECT id, site_id, lemma, frequency FROM lemmas WHERE site_id = ? AND lemma = ?",
		siteID, text,
	).Scan(&lemma.ID, &lemma.SiteID, &lemma.Lemma, &lemma.Frequency)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &lemma, nil
}

func (d *Database) PostingsByLemma(ctx context.Context, lemmaID int64) ([]Posting, error) {
	return d.queryPostings(ctx,
		"SELECT page_id, lemma_id, rank FROM postings WHERE lemma_id = ? ORDER BY page_id", lemmaID)
}

func (d *Database) PostingsByPage(ctx context.Context, pageID int64) ([]Posting, error) {
	return d.queryPostings(ctx,
		"SELECT page_id, lemma_id, rank FROM postings WHERE page_id = ? ORDER BY lemma_id", pageID)
}

func (d *Database) queryPostings(ctx context.Context, query string, arg int64) ([]Posting, error) {
	rows, err := d.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var postings []Posting
	for rows.Next() {
		var p Posting
		if err := rows.Scan(&p.PageID, &p.LemmaID, &p.Rank); err != nil {
			return nil, err
		}
		postings = append(postings, p)
	}
	return postings, rows.Err()
}

func (d *Database) CountLemmas(ctx context.Context, siteID int64) (int, error) {
	var count int
	err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM lemmas WHERE site_id = ?", siteID).Scan(&count)
	return count, err
}

// CheckFrequencies reports lemmas of a site whose frequency disagrees with
// their posting count, keyed by lemma text.
func (d *Database) CheckFrequencies(ctx context.Context, siteID int64) (map[string][2]int, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT l.lemma, l.frequency, COUNT(p.page_id)
		FROM lemmas l LEFT JOIN postings p ON p.lemma_id = l.id
		WHERE l.site_id = ?
		GROUP BY l.id
		HAVING l.frequency != COUNT(p.page_id)
	`, siteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	mismatches := make(map[string][2]int)
	for rows.Next() {
		var text string
		var freq, postings int
		if err := rows.Scan(&text, &freq, &postings); err != nil {
			return nil, err
		}
		mismatches[text] = [2]int{freq, postings}
	}
	return mismatches, rows.Err()
}
