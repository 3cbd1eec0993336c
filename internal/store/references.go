package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Reference is a row of blacklisted_urls / stubbed_urls with its referrer
// count, for the top-20 report section.
type Reference struct {
	URL            string
	Host           string
	ReferenceCount int
	FirstSeenRun   int64
}

// RecordBlacklistReference records that referrerPageURL links to (or
// redirects into) targetURL, a blacklisted host. reference_count is kept
// equal to the distinct referrer count by recomputing it from
// blacklisted_referrers on every write.
func (s *Store) RecordBlacklistReference(ctx context.Context, targetURL, host, referrerPageURL string, runID int64) error {
	return s.recordReference(ctx, "blacklisted_urls", "blacklisted_referrers", targetURL, host, referrerPageURL, runID)
}

// RecordStubReference is the symmetric operation for stubbed hosts.
func (s *Store) RecordStubReference(ctx context.Context, targetURL, host, referrerPageURL string, runID int64) error {
	return s.recordReference(ctx, "stubbed_urls", "stubbed_referrers", targetURL, host, referrerPageURL, runID)
}

func (s *Store) recordReference(ctx context.Context, urlsTable, referrersTable, targetURL, host, referrerPageURL string, runID int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`INSERT OR IGNORE INTO %s(url, host, first_seen_run) VALUES (?, ?, ?)`, urlsTable),
			targetURL, host, runID,
		); err != nil {
			return fmt.Errorf("%w: insert %s: %s", ErrIO, urlsTable, err)
		}

		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`INSERT OR IGNORE INTO %s(target_url, referrer_page) VALUES (?, ?)`, referrersTable),
			targetURL, referrerPageURL,
		); err != nil {
			return fmt.Errorf("%w: insert %s: %s", ErrIO, referrersTable, err)
		}

		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`UPDATE %s SET reference_count = (SELECT COUNT(*) FROM %s WHERE target_url = ?) WHERE url = ?`,
				urlsTable, referrersTable),
			targetURL, targetURL,
		); err != nil {
			return fmt.Errorf("%w: recount %s: %s", ErrIO, urlsTable, err)
		}
		return nil
	})
}

// TopBlacklistReferences returns the n most-referenced blacklisted URLs,
// highest reference_count first.
func (s *Store) TopBlacklistReferences(ctx context.Context, n int) ([]Reference, error) {
	return s.topReferences(ctx, "blacklisted_urls", n)
}

// TopStubReferences returns the n most-referenced stubbed URLs.
func (s *Store) TopStubReferences(ctx context.Context, n int) ([]Reference, error) {
	return s.topReferences(ctx, "stubbed_urls", n)
}

func (s *Store) topReferences(ctx context.Context, table string, n int) ([]Reference, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT url, host, reference_count, first_seen_run FROM %s ORDER BY reference_count DESC, url ASC LIMIT ?`, table),
		n,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: top references from %s: %s", ErrIO, table, err)
	}
	defer rows.Close()

	var out []Reference
	for rows.Next() {
		var r Reference
		if err := rows.Scan(&r.URL, &r.Host, &r.ReferenceCount, &r.FirstSeenRun); err != nil {
			return nil, fmt.Errorf("%w: scan reference row: %s", ErrIO, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
