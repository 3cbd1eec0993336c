package state

import (
	"time"
)

// DomainState is per-host bookkeeping used by the scheduler to gate
// dispatch: request accounting, sticky rate-limit status, and the robots
// fetch timestamp mirrored here for persistence.
type DomainState struct {
	Host            string
	RequestCount    int
	LastRequestTime time.Time
	RateLimited     bool
	RobotsBody      string
	RobotsFetchedAt time.Time
}

// NewDomainState returns a zero-valued DomainState for host.
func NewDomainState(host string) DomainState {
	return DomainState{Host: host}
}

// CanRequest reports whether a request to this domain is admissible right
// now, given the configured per-domain cap and minimum inter-request delay.
// effectiveDelay is max(config.min_time_on_page, robots.crawl_delay).
func (d DomainState) CanRequest(maxDomainRequests int, effectiveDelay time.Duration, now time.Time) bool {
	if d.RateLimited {
		return false
	}
	if d.RequestCount >= maxDomainRequests {
		return false
	}
	if !d.LastRequestTime.IsZero() && now.Sub(d.LastRequestTime) < effectiveDelay {
		return false
	}
	return true
}

// TimeUntilReady returns the duration until CanRequest would next return
// true judged purely on the cooldown clock (ignoring RateLimited/request
// count, which are not time-based). Returns 0 if already past cooldown.
func (d DomainState) TimeUntilReady(effectiveDelay time.Duration, now time.Time) time.Duration {
	if d.LastRequestTime.IsZero() {
		return 0
	}
	elapsed := now.Sub(d.LastRequestTime)
	if elapsed >= effectiveDelay {
		return 0
	}
	return effectiveDelay - elapsed
}

// RecordRequest increments the request count and stamps the last request
// time, atomically from the scheduler's perspective (the caller holds
// whatever lock guards the domain-state map).
func (d *DomainState) RecordRequest(now time.Time) {
	d.RequestCount++
	d.LastRequestTime = now
}

// MarkRateLimited sets the sticky rate-limit flag for the remainder of the
// run.
func (d *DomainState) MarkRateLimited() {
	d.RateLimited = true
}

// HasExceededLimit reports whether the domain has hit its request cap.
func (d DomainState) HasExceededLimit(maxDomainRequests int) bool {
	return d.RequestCount >= maxDomainRequests
}

// PageDepth is a `(page, quality_origin) -> depth` relation row. Depth
// forms a join-semilattice under min: UpsertDepth only lowers the stored
// value, never raises it.
type PageDepth struct {
	PageURL string
	Origin  string
	Depth   int
}

// UpsertDepth returns the depth that should be stored for (pageURL, origin)
// given the existing row (ok=false if no row exists yet) and a newly
// proposed depth. The result is min(existing, proposed) when a row already
// exists, else proposed.
func UpsertDepth(existing int, existingOK bool, proposed int) int {
	if !existingOK {
		return proposed
	}
	if proposed < existing {
		return proposed
	}
	return existing
}

// PropagatedDepth computes the depth to propose for a link target reached
// from a source page depth sourceDepth under quality origin q: same depth
// if the target's host matches q (internal to the same quality domain),
// else sourceDepth + 1.
func PropagatedDepth(sourceDepth int, sameQualityDomain bool) int {
	if sameQualityDomain {
		return sourceDepth
	}
	return sourceDepth + 1
}

// EligibleForFetch reports whether a page is admissible for dispatch: Queued
// AND at least one depth row <= maxDepth AND host not rate-limited AND
// under the per-domain cap.
func EligibleForFetch(pageState PageState, depths []PageDepth, maxDepth int, domain DomainState, maxDomainRequests int) bool {
	if pageState != Queued {
		return false
	}
	if domain.RateLimited || domain.RequestCount >= maxDomainRequests {
		return false
	}
	for _, d := range depths {
		if d.Depth <= maxDepth {
			return true
		}
	}
	return false
}
