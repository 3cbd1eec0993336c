package store

// schemaDDL creates every table the crawl engine needs, idempotently.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	finished_at DATETIME,
	config_hash TEXT NOT NULL,
	status TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS pages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	url TEXT NOT NULL UNIQUE,
	host TEXT NOT NULL,
	state TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	http_status INTEGER NOT NULL DEFAULT 0,
	content_type TEXT NOT NULL DEFAULT '',
	discovery_run INTEGER NOT NULL REFERENCES runs(id),
	visited_at DATETIME,
	retry_count INTEGER NOT NULL DEFAULT 0,
	last_error TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_pages_host ON pages(host);
CREATE INDEX IF NOT EXISTS idx_pages_state ON pages(state);

CREATE TABLE IF NOT EXISTS page_depths (
	page_id INTEGER NOT NULL REFERENCES pages(id),
	origin TEXT NOT NULL,
	depth INTEGER NOT NULL,
	UNIQUE(page_id, origin)
);

CREATE INDEX IF NOT EXISTS idx_page_depths_page ON page_depths(page_id);

CREATE TABLE IF NOT EXISTS links (
	from_page INTEGER NOT NULL REFERENCES pages(id),
	to_page INTEGER NOT NULL REFERENCES pages(id),
	UNIQUE(from_page, to_page)
);

CREATE TABLE IF NOT EXISTS blacklisted_urls (
	url TEXT PRIMARY KEY,
	host TEXT NOT NULL,
	reference_count INTEGER NOT NULL DEFAULT 0,
	first_seen_run INTEGER NOT NULL REFERENCES runs(id)
);

CREATE TABLE IF NOT EXISTS blacklisted_referrers (
	target_url TEXT NOT NULL REFERENCES blacklisted_urls(url),
	referrer_page TEXT NOT NULL,
	UNIQUE(target_url, referrer_page)
);

CREATE TABLE IF NOT EXISTS stubbed_urls (
	url TEXT PRIMARY KEY,
	host TEXT NOT NULL,
	reference_count INTEGER NOT NULL DEFAULT 0,
	first_seen_run INTEGER NOT NULL REFERENCES runs(id)
);

CREATE TABLE IF NOT EXISTS stubbed_referrers (
	target_url TEXT NOT NULL REFERENCES stubbed_urls(url),
	referrer_page TEXT NOT NULL,
	UNIQUE(target_url, referrer_page)
);

CREATE TABLE IF NOT EXISTS domain_states (
	host TEXT PRIMARY KEY,
	request_count INTEGER NOT NULL DEFAULT 0,
	last_request_time DATETIME,
	rate_limited INTEGER NOT NULL DEFAULT 0,
	robots_body TEXT NOT NULL DEFAULT '',
	robots_fetched_at DATETIME
);

CREATE TABLE IF NOT EXISTS frontier (
	page_id INTEGER PRIMARY KEY REFERENCES pages(id),
	priority INTEGER NOT NULL,
	added_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_frontier_priority ON frontier(priority, added_at);
`
