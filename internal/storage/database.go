// Package storage persists sites, pages, lemmas and postings in SQLite.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("not found")

type Status string

const (
	StatusIndexing Status = "INDEXING"
	StatusIndexed  Status = "INDEXED"
	StatusFailed   Status = "FAILED"
)

type Site struct {
	ID         int64
	URL        string
	Name       string
	Status     Status
	StatusTime time.Time
	LastError  string
}

type Database struct {
	db *sql.DB
}

// NewDatabase opens the database with the given driver ("sqlite3" or
// "sqlite") and creates the schema.
func NewDatabase(driver, dbPath string) (*Database, error) {
	db, err := sql.Open(driver, dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection serializes writers and keeps :memory: databases whole.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	database := &Database{db: db}

	if err := database.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return database, nil
}

func (d *Database) initSchema() error {
	if _, err := d.db.Exec(Schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

// UpsertSite creates the site row for url or refreshes its name.
func (d *Database) UpsertSite(ctx context.Context, url, name string) (*Site, error) {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO sites (url, name, status, status_time, last_error)
		VALUES (?, ?, ?, ?, '')
		ON CONFLICT(url) DO UPDATE SET name = excluded.name
	`, url, name, string(StatusIndexing), time.Now().UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to upsert site %s: %w", url, err)
	}
	return d.GetSiteByURL(ctx, url)
}

func (d *Database) GetSiteByURL(ctx context.Context, url string) (*Site, error) {
	row := d.db.QueryRowContext(ctx,
		"SELECT id, url, name, status, status_time, last_error FROM sites WHERE url = ?", url)
	return scanSite(row)
}

func (d *Database) GetSiteByID(ctx context.Context, id int64) (*Site, error) {
	row := d.db.QueryRowContext(ctx,
		"SELECT id, url, name, status, status_time, last_error FROM sites WHERE id = ?", id)
	return scanSite(row)
}

func (d *Database) ListSites(ctx context.Context) ([]Site, error) {
	rows, err := d.db.QueryContext(ctx,
		"SELECT id, url, name, status, status_time, last_error FROM sites ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sites []Site
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, err
		}
		sites = append(sites, *site)
	}
	return sites, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSite(s scanner) (*Site, error) {
	var (
		site   Site
		status string
		millis int64
	)
	err := s.Scan(&site.ID, &site.URL, &site.Name, &status, &millis, &site.LastError)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	site.Status = Status(status)
	site.StatusTime = time.UnixMilli(millis)
	return &site, nil
}

// UpdateSiteStatus sets the status and error text of a site and stamps the
// status time. It returns ErrNotFound when the row does not exist.
func (d *Database) UpdateSiteStatus(ctx context.Context, siteID int64, status Status, lastError string) error {
	result, err := d.db.ExecContext(ctx,
		"UPDATE sites SET status = ?, status_time = ?, last_error = ? WHERE id = ?",
		string(status), time.Now().UnixMilli(), lastError, siteID)
	if err != nil {
		return fmt.Errorf("failed to update site %d: %w", siteID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("site %d: %w", siteID, ErrNotFound)
	}
	return nil
}

// FailIndexing marks every site still INDEXING as FAILED with reason.
func (d *Database) FailIndexing(ctx context.Context, reason string) (int64, error) {
	result, err := d.db.ExecContext(ctx,
		"UPDATE sites SET status = ?, status_time = ?, last_error = ? WHERE status = ?",
		string(StatusFailed), time.Now().UnixMilli(), reason, string(StatusIndexing))
	if err != nil {
		return 0, fmt.Errorf("failed to fail indexing sites: %w", err)
	}
	return result.RowsAffected()
}

// FailSiteIfIndexing marks one site FAILED with reason when it is still
// INDEXING and reports whether it did.
func (d *Database) FailSiteIfIndexing(ctx context.Context, siteID int64, reason string) (bool, error) {
	result, err := d.db.ExecContext(ctx,
		"UPDATE sites SET status = ?, status_time = ?, last_error = ? WHERE id = ? AND status = ?",
		string(StatusFailed), time.Now().UnixMilli(), reason, siteID, string(StatusIndexing))
	if err != nil {
		return false, fmt.Errorf("failed to fail site %d: %w", siteID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ResetSite deletes every page, lemma and posting of a site.
func (d *Database) ResetSite(ctx context.Context, siteID int64) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM postings WHERE page_id IN (SELECT id FROM pages WHERE site_id = ?)", siteID); err != nil {
		return fmt.Errorf("failed to delete postings: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM lemmas WHERE site_id = ?", siteID); err != nil {
		return fmt.Errorf("failed to delete lemmas: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM pages WHERE site_id = ?", siteID); err != nil {
		return fmt.Errorf("failed to delete pages: %w", err)
	}

	return tx.Commit()
}
