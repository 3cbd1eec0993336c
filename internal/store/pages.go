package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sumiripple/sumiripple/internal/state"
)

// Page is a row of the pages table.
type Page struct {
	ID           int64
	URL          string
	Host         string
	State        state.PageState
	Title        string
	HTTPStatus   int
	ContentType  string
	DiscoveryRun int64
	RetryCount   int
	LastError    string
}

// InsertOrGetPage is idempotent by canonical URL: a first sighting inserts
// a Discovered row and returns its id; a repeat sighting returns the
// existing id unchanged.
func (s *Store) InsertOrGetPage(ctx context.Context, canonicalURL, host string, discoveryRun int64) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM pages WHERE url = ?`, canonicalURL).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("%w: lookup page %q: %s", ErrIO, canonicalURL, err)
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO pages(url, host, state, discovery_run) VALUES (?, ?, ?, ?)`,
		canonicalURL, host, state.Discovered.String(), discoveryRun,
	)
	if err != nil {
		return 0, fmt.Errorf("%w: insert page %q: %s", ErrIO, canonicalURL, err)
	}
	return result.LastInsertId()
}

// GetPage loads a page by canonical URL.
func (s *Store) GetPage(ctx context.Context, canonicalURL string) (Page, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, url, host, state, title, http_status, content_type, discovery_run, retry_count, last_error
		 FROM pages WHERE url = ?`,
		canonicalURL,
	)
	return scanPage(row)
}

// GetPageByID loads a page by its primary key.
func (s *Store) GetPageByID(ctx context.Context, id int64) (Page, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, url, host, state, title, http_status, content_type, discovery_run, retry_count, last_error
		 FROM pages WHERE id = ?`,
		id,
	)
	return scanPage(row)
}

func scanPage(row *sql.Row) (Page, error) {
	var p Page
	var stateName string
	if err := row.Scan(&p.ID, &p.URL, &p.Host, &stateName, &p.Title, &p.HTTPStatus, &p.ContentType, &p.DiscoveryRun, &p.RetryCount, &p.LastError); err != nil {
		if err == sql.ErrNoRows {
			return Page{}, ErrNotFound
		}
		return Page{}, fmt.Errorf("%w: scan page: %s", ErrIO, err)
	}
	parsed, ok := state.ParsePageState(stateName)
	if !ok {
		return Page{}, fmt.Errorf("%w: unrecognized page state %q", ErrIO, stateName)
	}
	p.State = parsed
	return p, nil
}

// SetPageState moves a page to a new terminal state (DeadLink, Unreachable,
// RateLimited, Failed, ContentMismatch, SkippedBlacklist, SkippedStub, ...),
// stamping visited_at and the observed HTTP/content-type metadata. The
// caller is responsible for only calling this with a legal transition
// (state.CanTransition); the store does not itself re-derive the prior
// state to check it, since the caller always already knows it.
func (s *Store) SetPageState(ctx context.Context, pageID int64, newState state.PageState, httpStatus int, contentType, lastError string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE pages SET state = ?, http_status = ?, content_type = ?, last_error = ?, visited_at = CURRENT_TIMESTAMP WHERE id = ?`,
		newState.String(), httpStatus, contentType, lastError, pageID,
	)
	if err != nil {
		return fmt.Errorf("%w: set page %d state: %s", ErrIO, pageID, err)
	}
	return nil
}

// SetPageQueued transitions a Discovered page to Queued, the step the
// coordinator takes once a newly discovered target is admissible.
func (s *Store) SetPageQueued(ctx context.Context, pageID int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE pages SET state = ? WHERE id = ?`, state.Queued.String(), pageID)
	if err != nil {
		return fmt.Errorf("%w: set page %d queued: %s", ErrIO, pageID, err)
	}
	return nil
}

// SetPageFetching transitions a Queued page to Fetching, just before the
// coordinator runs the fetch pipeline against it.
func (s *Store) SetPageFetching(ctx context.Context, pageID int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE pages SET state = ? WHERE id = ?`, state.Fetching.String(), pageID)
	if err != nil {
		return fmt.Errorf("%w: set page %d fetching: %s", ErrIO, pageID, err)
	}
	return nil
}

// RecordProcessed sets a page Processed with its observed metadata and
// inserts a link edge to every already-resolved target page id, all within
// one transaction. References (blacklist/stub) and newly discovered pages
// are recorded by separate calls the coordinator makes per target, since
// those decisions depend on classification the store itself does not
// perform (see DESIGN.md).
func (s *Store) RecordProcessed(ctx context.Context, pageID int64, httpStatus int, contentType string, targetPageIDs []int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE pages SET state = ?, http_status = ?, content_type = ?, visited_at = CURRENT_TIMESTAMP WHERE id = ?`,
			state.Processed.String(), httpStatus, contentType, pageID,
		); err != nil {
			return fmt.Errorf("%w: mark page %d processed: %s", ErrIO, pageID, err)
		}

		for _, toID := range targetPageIDs {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO links(from_page, to_page) VALUES (?, ?)`,
				pageID, toID,
			); err != nil {
				return fmt.Errorf("%w: insert link %d->%d: %s", ErrIO, pageID, toID, err)
			}
		}
		return nil
	})
}
