package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// RunStatus is the lifecycle state of a single crawl run.
type RunStatus string

const (
	RunRunning     RunStatus = "running"
	RunCompleted   RunStatus = "completed"
	RunInterrupted RunStatus = "interrupted"
)

// Run is a single crawl execution record.
type Run struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt time.Time
	ConfigHash string
	Status     RunStatus
}

// FindRunningRun returns the most recent run still marked running, if any.
// At most one such run exists globally; the coordinator consults this on
// startup to decide fresh-start versus resume.
func (s *Store) FindRunningRun(ctx context.Context) (Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, started_at, config_hash, status FROM runs WHERE status = ? ORDER BY id DESC LIMIT 1`,
		string(RunRunning),
	)

	var r Run
	var status string
	var startedAt string
	if err := row.Scan(&r.ID, &startedAt, &r.ConfigHash, &status); err != nil {
		if err == sql.ErrNoRows {
			return Run{}, ErrNoRunningRun
		}
		return Run{}, fmt.Errorf("%w: find running run: %s", ErrIO, err)
	}
	r.Status = RunStatus(status)
	r.StartedAt = parseTimestamp(startedAt)
	return r, nil
}

// MarkStaleRunsInterrupted moves every running run to interrupted. Called
// on a --fresh start, before BeginRun, so a crashed prior run is recorded
// honestly rather than left running forever.
func (s *Store) MarkStaleRunsInterrupted(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, finished_at = CURRENT_TIMESTAMP WHERE status = ?`,
		string(RunInterrupted), string(RunRunning),
	)
	if err != nil {
		return fmt.Errorf("%w: mark stale runs interrupted: %s", ErrIO, err)
	}
	return nil
}

// BeginRun inserts a new running run and returns its id.
func (s *Store) BeginRun(ctx context.Context, configHash string) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO runs(config_hash, status) VALUES (?, ?)`,
		configHash, string(RunRunning),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: begin run: %s", ErrIO, err)
	}
	return result.LastInsertId()
}

// FinishRun sets a run's terminal status and finish timestamp.
func (s *Store) FinishRun(ctx context.Context, id int64, status RunStatus) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, finished_at = CURRENT_TIMESTAMP WHERE id = ?`,
		string(status), id,
	)
	if err != nil {
		return fmt.Errorf("%w: finish run %d: %s", ErrIO, id, err)
	}
	return nil
}

var timestampFormats = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z",
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
}

// parseTimestamp tries every format SQLite's driver has been observed to
// return a DATETIME column as, falling back to the zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
