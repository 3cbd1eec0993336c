package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sumiripple/sumiripple/internal/state"
)

// UpsertDepth stores proposed as the page's depth under origin if no row
// exists yet, or lowers the existing row to min(existing, proposed);
// monotone decrease only.
func (s *Store) UpsertDepth(ctx context.Context, pageID int64, origin string, proposed int) error {
	var existing int
	err := s.db.QueryRowContext(ctx,
		`SELECT depth FROM page_depths WHERE page_id = ? AND origin = ?`, pageID, origin,
	).Scan(&existing)

	switch {
	case err == sql.ErrNoRows:
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO page_depths(page_id, origin, depth) VALUES (?, ?, ?)`,
			pageID, origin, proposed,
		)
		if err != nil {
			return fmt.Errorf("%w: insert depth (%d,%s): %s", ErrIO, pageID, origin, err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("%w: read depth (%d,%s): %s", ErrIO, pageID, origin, err)
	}

	newDepth := state.UpsertDepth(existing, true, proposed)
	if newDepth == existing {
		return nil
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE page_depths SET depth = ? WHERE page_id = ? AND origin = ?`,
		newDepth, pageID, origin,
	)
	if err != nil {
		return fmt.Errorf("%w: update depth (%d,%s): %s", ErrIO, pageID, origin, err)
	}
	return nil
}

// LoadDepths returns every (origin, depth) row for a page.
func (s *Store) LoadDepths(ctx context.Context, pageID int64) ([]state.PageDepth, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT origin, depth FROM page_depths WHERE page_id = ?`, pageID)
	if err != nil {
		return nil, fmt.Errorf("%w: load depths for page %d: %s", ErrIO, pageID, err)
	}
	defer rows.Close()

	var out []state.PageDepth
	for rows.Next() {
		var d state.PageDepth
		if err := rows.Scan(&d.Origin, &d.Depth); err != nil {
			return nil, fmt.Errorf("%w: scan depth row: %s", ErrIO, err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// MinDepth returns the smallest depth across every origin row for a page,
// and false if the page has no depth rows at all.
func (s *Store) MinDepth(ctx context.Context, pageID int64) (int, bool, error) {
	var depth sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MIN(depth) FROM page_depths WHERE page_id = ?`, pageID).Scan(&depth)
	if err != nil {
		return 0, false, fmt.Errorf("%w: min depth for page %d: %s", ErrIO, pageID, err)
	}
	if !depth.Valid {
		return 0, false, nil
	}
	return int(depth.Int64), true, nil
}
