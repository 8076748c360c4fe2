package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type Page struct {
	ID      int64
	SiteID  int64
	Path    string
	Code    int
	Title   string
	Content string
}

// SavePage inserts page unless the site already has a page with the same
// path. The returned flag reports whether a row was written; on insert
// page.ID is set.
func (d *Database) SavePage(ctx context.Context, page *Page) (int64, bool, error) {
	result, err := d.db.ExecContext(ctx, `
		INSERT INTO pages (site_id, path, code, title, content)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(site_id, path) DO NOTHING
	`, page.SiteID, page.Path, page.Code, page.Title, page.Content)
	if err != nil {
		return 0, false, fmt.Errorf("failed to save page %s: %w", page.Path, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, false, err
	}
	if n == 0 {
		return 0, false, nil
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, false, err
	}
	page.ID = id
	return id, true, nil
}

// FindPage returns the page of a site by path, or nil when there is none.
func (d *Database) FindPage(ctx context.Context, siteID int64, path string) (*Page, error) {
	row := d.db.QueryRowContext(ctx,
		"SELECT id, site_id, path, code, title, content FROM pages WHERE site_id = ? AND path = ?",
		siteID, path)

	page, err := scanPage(row)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return page, err
}

func (d *Database) GetPage(ctx context.Context, id int64) (*Page, error) {
	row := d.db.QueryRowContext(ctx,
		"SELECT id, site_id, path, code, title, content FROM pages WHERE id = ?", id)
	return scanPage(row)
}

func scanPage(s scanner) (*Page, error) {
	var page Page
	err := s.Scan(&page.ID, &page.SiteID, &page.Path, &page.Code, &page.Title, &page.Content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &page, nil
}

func (d *Database) CountPages(ctx context.Context, siteID int64) (int, error) {
	var count int
	err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM pages WHERE site_id = ?", siteID).Scan(&count)
	return count, err
}
