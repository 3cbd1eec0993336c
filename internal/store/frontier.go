package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sumiripple/sumiripple/internal/state"
)

// FrontierRow is a persisted frontier entry, joined with its page's URL and
// host so the coordinator can repopulate the in-memory scheduler on resume
// without a second round-trip per row.
type FrontierRow struct {
	PageID   int64
	URL      string
	Host     string
	Priority int
}

// FrontierPush persists a frontier admission. The in-memory scheduler
// (internal/frontier) is authoritative for dispatch ordering within a
// run; this table exists purely so a crash mid-run can be resumed without
// replaying discovery from scratch.
func (s *Store) FrontierPush(ctx context.Context, pageID int64, priority int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO frontier(page_id, priority) VALUES (?, ?)`,
		pageID, priority,
	)
	if err != nil {
		return fmt.Errorf("%w: push frontier entry for page %d: %s", ErrIO, pageID, err)
	}
	return nil
}

// FrontierRemove deletes a page's frontier row once it has been dispatched
// (moved to Fetching) so a resumed run does not re-enqueue it.
func (s *Store) FrontierRemove(ctx context.Context, pageID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM frontier WHERE page_id = ?`, pageID)
	if err != nil {
		return fmt.Errorf("%w: remove frontier entry for page %d: %s", ErrIO, pageID, err)
	}
	return nil
}

// LoadFrontier returns every persisted frontier row joined with its page's
// URL and host, in priority order, for resume-time scheduler repopulation.
func (s *Store) LoadFrontier(ctx context.Context) ([]FrontierRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT f.page_id, p.url, p.host, f.priority
		 FROM frontier f JOIN pages p ON p.id = f.page_id
		 ORDER BY f.priority ASC, f.added_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: load frontier: %s", ErrIO, err)
	}
	defer rows.Close()

	var out []FrontierRow
	for rows.Next() {
		var r FrontierRow
		if err := rows.Scan(&r.PageID, &r.URL, &r.Host, &r.Priority); err != nil {
			return nil, fmt.Errorf("%w: scan frontier row: %s", ErrIO, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LoadPagesInState returns every page currently in one of the given states,
// used on resume to find pages stuck in Fetching (treated as Queued) and
// re-admit them to the frontier.
func (s *Store) LoadPagesInState(ctx context.Context, states []string) ([]Page, error) {
	if len(states) == 0 {
		return nil, nil
	}
	placeholders := ""
	args := make([]any, 0, len(states))
	for i, st := range states {
		if i > 0 {
			placeholders += ","
		}
		placeholders += "?"
		args = append(args, st)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, url, host, state, title, http_status, content_type, discovery_run, retry_count, last_error
		 FROM pages WHERE state IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: load pages in state: %s", ErrIO, err)
	}
	defer rows.Close()

	var out []Page
	for rows.Next() {
		p, err := scanPageRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPageRows(rows *sql.Rows) (Page, error) {
	var p Page
	var stateName string
	if err := rows.Scan(&p.ID, &p.URL, &p.Host, &stateName, &p.Title, &p.HTTPStatus, &p.ContentType, &p.DiscoveryRun, &p.RetryCount, &p.LastError); err != nil {
		return Page{}, fmt.Errorf("%w: scan page row: %s", ErrIO, err)
	}
	parsed, ok := state.ParsePageState(stateName)
	if !ok {
		return Page{}, fmt.Errorf("%w: unrecognized page state %q", ErrIO, stateName)
	}
	p.State = parsed
	return p, nil
}
