// Package state holds the pure value logic of the crawl engine's page and
// domain lifecycle: enumerated page states with a legal-transition table,
// monotone per-origin depth tracking, and per-host rate-limit bookkeeping.
package state

import "fmt"

// PageState is the lifecycle state of a single page.
type PageState int

const (
	// Active states: the page may still be processed.
	Discovered PageState = iota
	Queued
	Fetching

	// Terminal success.
	Processed

	// Terminal skip states.
	Blacklisted
	Stubbed
	DepthExceeded
	RequestLimitHit

	// Terminal error states.
	DeadLink
	Unreachable
	RateLimited
	Failed
	ContentMismatch

	// SkippedBlacklist/SkippedStub are reached from Fetching when a
	// redirect chain leads into a blacklisted or stubbed host: the source
	// page was never itself classified as blacklisted/stubbed (it would
	// have been caught at Discovered otherwise), but the fetch ends
	// without content, keyed by the target's classification rather than
	// a fetch error.
	SkippedBlacklist
	SkippedStub
)

var pageStateNames = map[PageState]string{
	Discovered:       "discovered",
	Queued:           "queued",
	Fetching:         "fetching",
	Processed:        "processed",
	Blacklisted:      "blacklisted",
	Stubbed:          "stubbed",
	DepthExceeded:    "depth_exceeded",
	RequestLimitHit:  "request_limit_hit",
	DeadLink:         "dead_link",
	Unreachable:      "unreachable",
	RateLimited:      "rate_limited",
	Failed:           "failed",
	ContentMismatch:  "content_mismatch",
	SkippedBlacklist: "skipped_blacklist",
	SkippedStub:      "skipped_stub",
}

var pageStateFromName = func() map[string]PageState {
	m := make(map[string]PageState, len(pageStateNames))
	for state, name := range pageStateNames {
		m[name] = state
	}
	return m
}()

func (s PageState) String() string {
	if name, ok := pageStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

// ParsePageState parses the database string representation produced by
// String(), returning ok=false for an unrecognized value.
func ParsePageState(s string) (PageState, bool) {
	state, ok := pageStateFromName[s]
	return state, ok
}

// IsActive reports whether the page may still be processed.
func (s PageState) IsActive() bool {
	return s == Discovered || s == Queued || s == Fetching
}

// IsTerminal reports whether the page's lifecycle has ended.
func (s PageState) IsTerminal() bool {
	return !s.IsActive()
}

// IsSuccess reports whether the page completed successfully.
func (s PageState) IsSuccess() bool {
	return s == Processed
}

// IsSkipped reports whether the page was never fetched by classification,
// or was being fetched but redirected straight into a blacklisted/stubbed
// target.
func (s PageState) IsSkipped() bool {
	switch s {
	case Blacklisted, Stubbed, SkippedBlacklist, SkippedStub:
		return true
	default:
		return false
	}
}

// IsError reports whether the page ended in a terminal error state.
// DepthExceeded and RequestLimitHit are terminal skips, not errors - see
// IsSkipped.
func (s PageState) IsError() bool {
	switch s {
	case DeadLink, Unreachable, RateLimited, Failed, ContentMismatch:
		return true
	default:
		return false
	}
}

// legalTransitions enumerates the set of states reachable in one step from
// each state. The zero value (no prior state, "first sighting") is modeled
// by CanDiscover rather than an entry here.
var legalTransitions = map[PageState]map[PageState]struct{}{
	Discovered: {Queued: {}, Blacklisted: {}, Stubbed: {}},
	Queued:     {DepthExceeded: {}, RequestLimitHit: {}, Fetching: {}},
	Fetching: {
		Processed:        {},
		DeadLink:         {},
		RateLimited:      {},
		Unreachable:      {},
		Failed:           {},
		ContentMismatch:  {},
		SkippedBlacklist: {},
		SkippedStub:      {},
	},
}

// CanTransition reports whether moving from 'from' to 'to' is a legal step
// in the page lifecycle. Terminal states accept no further transitions.
func CanTransition(from, to PageState) bool {
	next, ok := legalTransitions[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}
