package store

import (
	"context"
	"fmt"
)

// StateCount is the number of pages currently in a given PageState.
type StateCount struct {
	State string
	Count int
}

// CountPagesByState returns the number of pages in every observed state,
// used for the summary's overall-counts and error-histogram sections.
func (s *Store) CountPagesByState(ctx context.Context) ([]StateCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT state, COUNT(*) FROM pages GROUP BY state ORDER BY state`,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: count pages by state: %s", ErrIO, err)
	}
	defer rows.Close()

	var out []StateCount
	for rows.Next() {
		var sc StateCount
		if err := rows.Scan(&sc.State, &sc.Count); err != nil {
			return nil, fmt.Errorf("%w: scan state count: %s", ErrIO, err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// DepthCount is the number of pages whose minimum depth across all quality
// origins equals Depth.
type DepthCount struct {
	Depth int
	Count int
}

// CountPagesByDepth buckets every page with at least one depth row by its
// minimum depth, for the summary's depth-breakdown section.
func (s *Store) CountPagesByDepth(ctx context.Context) ([]DepthCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT min_depth, COUNT(*) FROM (
			SELECT page_id, MIN(depth) AS min_depth FROM page_depths GROUP BY page_id
		) GROUP BY min_depth ORDER BY min_depth`,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: count pages by depth: %s", ErrIO, err)
	}
	defer rows.Close()

	var out []DepthCount
	for rows.Next() {
		var dc DepthCount
		if err := rows.Scan(&dc.Depth, &dc.Count); err != nil {
			return nil, fmt.Errorf("%w: scan depth count: %s", ErrIO, err)
		}
		out = append(out, dc)
	}
	return out, rows.Err()
}

// HostCount is the number of pages discovered for a given host.
type HostCount struct {
	Host  string
	Count int
}

// CountPagesByHost returns every distinct host seen and how many pages were
// discovered under it, used to classify domains for the summary's
// domains-by-classification section (the store has no classify dependency,
// so classification itself happens in the caller).
func (s *Store) CountPagesByHost(ctx context.Context) ([]HostCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT host, COUNT(*) FROM pages GROUP BY host ORDER BY host`,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: count pages by host: %s", ErrIO, err)
	}
	defer rows.Close()

	var out []HostCount
	for rows.Next() {
		var hc HostCount
		if err := rows.Scan(&hc.Host, &hc.Count); err != nil {
			return nil, fmt.Errorf("%w: scan host count: %s", ErrIO, err)
		}
		out = append(out, hc)
	}
	return out, rows.Err()
}

// RateLimitedHosts returns every host whose domain_states row is currently
// flagged rate_limited, for the summary's rate-limited host list.
func (s *Store) RateLimitedHosts(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT host FROM domain_states WHERE rate_limited = 1 ORDER BY host`,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: load rate-limited hosts: %s", ErrIO, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var host string
		if err := rows.Scan(&host); err != nil {
			return nil, fmt.Errorf("%w: scan rate-limited host: %s", ErrIO, err)
		}
		out = append(out, host)
	}
	return out, rows.Err()
}
