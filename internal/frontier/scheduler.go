// Package frontier implements the crawl scheduler: a priority frontier of
// pages awaiting fetch, gated by a global concurrency cap and per-domain
// readiness.
package frontier

import (
	"container/heap"
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/sumiripple/sumiripple/internal/state"
)

// CrawlDelayFunc resolves the robots crawl-delay directive for a host, or 0
// if none is known. The scheduler combines this with the configured
// minimum inter-request interval to get the effective delay.
type CrawlDelayFunc func(host string) time.Duration

// Ticket is a dispatched frontier entry holding its global admission slot.
// The caller MUST call Release exactly once when the fetch completes
// (success, failure, or panic-recovery path).
type Ticket struct {
	Entry   Entry
	release func()
}

// Release returns the ticket's global admission slot to the scheduler.
func (t Ticket) Release() {
	if t.release != nil {
		t.release()
	}
}

// Scheduler owns the frontier heap, the per-host domain-state map, and the
// global concurrency semaphore. All mutable state is guarded by mu; network
// I/O never happens while mu is held.
type Scheduler struct {
	mu      sync.Mutex
	items   entryHeap
	queued  Set[string]
	domains map[string]*state.DomainState

	sem               *semaphore.Weighted
	minTimeOnPage     time.Duration
	maxDomainRequests int
	crawlDelay        CrawlDelayFunc
}

// New builds a Scheduler. maxConcurrentPagesOpen bounds the global number of
// in-flight fetches; minTimeOnPage and maxDomainRequests mirror the
// crawler.* config keys; crawlDelay resolves robots crawl-delay per host
// (pass a func returning 0 if robots delays are not tracked).
func New(maxConcurrentPagesOpen int, minTimeOnPage time.Duration, maxDomainRequests int, crawlDelay CrawlDelayFunc) *Scheduler {
	if crawlDelay == nil {
		crawlDelay = func(string) time.Duration { return 0 }
	}
	items := entryHeap{}
	heap.Init(&items)
	return &Scheduler{
		items:             items,
		queued:            NewSet[string](),
		domains:           make(map[string]*state.DomainState),
		sem:               semaphore.NewWeighted(int64(maxConcurrentPagesOpen)),
		minTimeOnPage:     minTimeOnPage,
		maxDomainRequests: maxDomainRequests,
		crawlDelay:        crawlDelay,
	}
}

// Push admits a page into the frontier. A page already present (by
// PageURL) is not re-queued; duplicate discovery only matters for
// reference counting, which happens in the Store, not here.
func (s *Scheduler) Push(e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.queued.Contains(e.PageURL) {
		return
	}
	s.queued.Add(e.PageURL)
	if _, ok := s.domains[e.Host]; !ok {
		ds := state.NewDomainState(e.Host)
		s.domains[e.Host] = &ds
	}
	heap.Push(&s.items, e)
}

// Len reports the number of entries currently queued (not yet dispatched).
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items.Len()
}

// Next blocks until a dispatchable entry is available, the frontier is
// permanently empty, or ctx is cancelled. It returns ok=false only when the
// frontier is empty.
func (s *Scheduler) Next(ctx context.Context) (Ticket, bool, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return Ticket{}, false, err
	}

	for {
		entry, wait, found, empty := s.tryDispatch()
		if empty {
			s.sem.Release(1)
			return Ticket{}, false, nil
		}
		if found {
			released := false
			release := func() {
				if !released {
					released = true
					s.sem.Release(1)
				}
			}
			return Ticket{Entry: entry, release: release}, true, nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.sem.Release(1)
			return Ticket{}, false, ctx.Err()
		case <-timer.C:
		}
	}
}

type candidate struct {
	idx   int
	entry Entry
}

// tryDispatch scans the frontier once under lock: find the highest-priority
// ready entry, else compute the minimum wait until any host becomes ready.
func (s *Scheduler) tryDispatch() (entry Entry, wait time.Duration, found bool, empty bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.items.Len() == 0 {
		return Entry{}, 0, false, true
	}

	now := time.Now()

	candidates := make([]candidate, len(s.items))
	for i, e := range s.items {
		candidates[i] = candidate{idx: i, entry: e}
	}
	sort.Slice(candidates, func(a, b int) bool {
		ea, eb := candidates[a].entry, candidates[b].entry
		if ea.Priority != eb.Priority {
			return ea.Priority < eb.Priority
		}
		return ea.AddedAt.Before(eb.AddedAt)
	})

	minWait := time.Duration(-1)
	for _, c := range candidates {
		d := s.domains[c.entry.Host]
		delay := s.effectiveDelay(c.entry.Host)
		if d.CanRequest(s.maxDomainRequests, delay, now) {
			heap.Remove(&s.items, c.idx)
			s.queued.Remove(c.entry.PageURL)
			return c.entry, 0, true, false
		}
		remaining := d.TimeUntilReady(delay, now)
		if minWait < 0 || remaining < minWait {
			minWait = remaining
		}
	}

	if minWait < 10*time.Millisecond {
		minWait = 10 * time.Millisecond
	}
	return Entry{}, minWait, false, false
}

func (s *Scheduler) effectiveDelay(host string) time.Duration {
	delay := s.minTimeOnPage
	if crawlDelay := s.crawlDelay(host); crawlDelay > delay {
		delay = crawlDelay
	}
	return delay
}

// RecordRequest marks host as having just been dispatched: increments its
// request count and stamps the current time, atomically within the
// scheduler.
func (s *Scheduler) RecordRequest(host string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.domainLocked(host)
	d.RecordRequest(time.Now())
}

// MarkRateLimited sets the sticky rate-limit flag for host for the
// remainder of the run.
func (s *Scheduler) MarkRateLimited(host string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.domainLocked(host)
	d.MarkRateLimited()
}

// DrainHost removes every currently queued entry for host from the frontier
// and returns them. Once a host is rate-limited, CanRequest never admits it
// again, so without this its queued entries would sit in the heap for the
// rest of the run; the caller is expected to transition each drained entry
// to a terminal state instead.
func (s *Scheduler) DrainHost(host string) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	var drained []Entry
	remaining := make(entryHeap, 0, len(s.items))
	for _, e := range s.items {
		if e.Host == host {
			drained = append(drained, e)
			s.queued.Remove(e.PageURL)
			continue
		}
		remaining = append(remaining, e)
	}
	heap.Init(&remaining)
	s.items = remaining
	return drained
}

// DomainState returns a copy of the current bookkeeping for host, for
// persistence (internal/store) or reporting.
func (s *Scheduler) DomainState(host string) state.DomainState {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.domainLocked(host)
	return *d
}

// RestoreDomainState seeds the scheduler's in-memory map from a persisted
// row, used on resume.
func (s *Scheduler) RestoreDomainState(ds state.DomainState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := ds
	s.domains[ds.Host] = &copied
}

func (s *Scheduler) domainLocked(host string) *state.DomainState {
	d, ok := s.domains[host]
	if !ok {
		fresh := state.NewDomainState(host)
		d = &fresh
		s.domains[host] = d
	}
	return d
}
