package store

import "errors"

// ErrIO marks any storage-layer failure: open, pragma, schema, transaction,
// or query failure. The coordinator treats a per-link write failure as
// non-fatal (logged and the link is skipped) since one bad link should not
// abort an otherwise healthy run; only a failure returned from Start or from
// the scheduler itself aborts the run and marks it interrupted.
var ErrIO = errors.New("store: io failure")

// ErrNotFound is returned by lookups that find no matching row.
var ErrNotFound = errors.New("store: not found")

// ErrNoRunningRun is returned by FindRunningRun when no run is in the
// running state (a fresh start, or a run that already finished cleanly).
var ErrNoRunningRun = errors.New("store: no running run")
