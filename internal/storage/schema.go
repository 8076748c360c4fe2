package storage

const Schema = `
-- Sites: one row per configured site
CREATE TABLE IF NOT EXISTS sites (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    url TEXT UNIQUE NOT NULL,
    name TEXT NOT NULL,
    status TEXT NOT NULL,
    status_time INTEGER NOT NULL,
    last_error TEXT NOT NULL DEFAULT ''
);

-- Pages: every HTML response, path relative to the site url
CREATE TABLE IF NOT EXISTS pages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    site_id INTEGER NOT NULL,
    path TEXT NOT NULL,
    code INTEGER NOT NULL,
    title TEXT NOT NULL DEFAULT '',
    content TEXT NOT NULL DEFAULT '',
    UNIQUE (site_id, path),
    FOREIGN KEY (site_id) REFERENCES sites(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_pages_site ON pages(site_id);

-- Lemmas: frequency is the number of pages of the site containing the lemma
CREATE TABLE IF NOT EXISTS lemmas (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    site_id INTEGER NOT NULL,
    lemma TEXT NOT NULL,
    frequency INTEGER NOT NULL DEFAULT 0,
    UNIQUE (site_id, lemma),
    FOREIGN KEY (site_id) REFERENCES sites(id) ON DELETE CASCADE
);

-- Postings: rank is the number of occurrences of the lemma on the page
CREATE TABLE IF NOT EXISTS postings (
    page_id INTEGER NOT NULL,
    lemma_id INTEGER NOT NULL,
    rank INTEGER NOT NULL,
    PRIMARY KEY (page_id, lemma_id),
    FOREIGN KEY (page_id) REFERENCES pages(id) ON DELETE CASCADE,
    FOREIGN KEY (lemma_id) REFERENCES lemmas(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_postings_lemma ON postings(lemma_id);
`
