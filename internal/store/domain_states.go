package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sumiripple/sumiripple/internal/state"
)

// SaveDomainState upserts the per-host bookkeeping row, used after every
// dispatch and on shutdown so a resumed run starts with accurate counters.
func (s *Store) SaveDomainState(ctx context.Context, ds state.DomainState) error {
	var lastRequest, robotsFetchedAt any
	if !ds.LastRequestTime.IsZero() {
		lastRequest = ds.LastRequestTime.UTC().Format(time.RFC3339Nano)
	}
	if !ds.RobotsFetchedAt.IsZero() {
		robotsFetchedAt = ds.RobotsFetchedAt.UTC().Format(time.RFC3339Nano)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO domain_states(host, request_count, last_request_time, rate_limited, robots_body, robots_fetched_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(host) DO UPDATE SET
			request_count = excluded.request_count,
			last_request_time = excluded.last_request_time,
			rate_limited = excluded.rate_limited,
			robots_body = excluded.robots_body,
			robots_fetched_at = excluded.robots_fetched_at`,
		ds.Host, ds.RequestCount, lastRequest, boolToInt(ds.RateLimited), ds.RobotsBody, robotsFetchedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: save domain state %q: %s", ErrIO, ds.Host, err)
	}
	return nil
}

// LoadAllDomainStates returns every persisted domain_states row, used to
// repopulate the scheduler's in-memory map on resume.
func (s *Store) LoadAllDomainStates(ctx context.Context) ([]state.DomainState, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT host, request_count, last_request_time, rate_limited, robots_body, robots_fetched_at FROM domain_states`,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: load domain states: %s", ErrIO, err)
	}
	defer rows.Close()

	var out []state.DomainState
	for rows.Next() {
		var ds state.DomainState
		var lastRequest, robotsFetchedAt sql.NullString
		var rateLimited int
		if err := rows.Scan(&ds.Host, &ds.RequestCount, &lastRequest, &rateLimited, &ds.RobotsBody, &robotsFetchedAt); err != nil {
			return nil, fmt.Errorf("%w: scan domain state row: %s", ErrIO, err)
		}
		ds.RateLimited = rateLimited != 0
		if lastRequest.Valid {
			ds.LastRequestTime = parseTimestamp(lastRequest.String)
		}
		if robotsFetchedAt.Valid {
			ds.RobotsFetchedAt = parseTimestamp(robotsFetchedAt.String)
		}
		out = append(out, ds)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
