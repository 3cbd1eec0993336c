// Package coordinator drives the crawl engine's main loop: pop the next
// fetchable page from the scheduler, run the fetch pipeline, harvest and
// classify outgoing links, persist every mutation, and feed admissible
// targets back into the frontier.
package coordinator

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/sumiripple/sumiripple/internal/classify"
	"github.com/sumiripple/sumiripple/internal/config"
	"github.com/sumiripple/sumiripple/internal/fetcher"
	"github.com/sumiripple/sumiripple/internal/frontier"
	"github.com/sumiripple/sumiripple/internal/metadata"
	"github.com/sumiripple/sumiripple/internal/state"
	"github.com/sumiripple/sumiripple/internal/store"
	"github.com/sumiripple/sumiripple/pkg/urlutil"
)

// Coordinator owns the run lifecycle and the translation from a Fetch
// Pipeline Outcome into store writes and frontier pushes.
type Coordinator struct {
	store        *store.Store
	scheduler    *frontier.Scheduler
	pipeline     *fetcher.Pipeline
	classifier   *classify.Classifier
	cfg          config.Config
	metadataSink metadata.MetadataSink

	runID int64
	// urlToPageID caches canonical-URL -> page id lookups made while
	// pushing the frontier, avoiding a redundant store round trip when the
	// scheduler later dispatches the same URL.
	urlToPageID map[string]int64
}

// New builds a Coordinator over already-constructed collaborators. The
// scheduler, pipeline, and classifier are expected to already be wired
// against cfg (crawl limits, blacklist/stub/quality rules).
func New(
	st *store.Store,
	scheduler *frontier.Scheduler,
	pipeline *fetcher.Pipeline,
	classifier *classify.Classifier,
	cfg config.Config,
	metadataSink metadata.MetadataSink,
) *Coordinator {
	return &Coordinator{
		store:        st,
		scheduler:    scheduler,
		pipeline:     pipeline,
		classifier:   classifier,
		cfg:          cfg,
		metadataSink: metadataSink,
		urlToPageID:  make(map[string]int64),
	}
}

// Start establishes the run: on fresh, any stale running run is marked
// interrupted and a new run begins with the frontier seeded from every
// quality domain's seed URLs at depth 0; on resume, the most recent running
// run is reattached and its domain states and frontier are reloaded.
func (c *Coordinator) Start(ctx context.Context, fresh bool) error {
	if fresh {
		if err := c.store.MarkStaleRunsInterrupted(ctx); err != nil {
			return err
		}
		return c.startFresh(ctx)
	}

	run, err := c.store.FindRunningRun(ctx)
	if err != nil {
		if err == store.ErrNoRunningRun {
			return c.startFresh(ctx)
		}
		return err
	}

	c.runID = run.ID
	return c.resume(ctx)
}

func (c *Coordinator) startFresh(ctx context.Context) error {
	configHash, err := c.cfg.Hash()
	if err != nil {
		return fmt.Errorf("hash config: %w", err)
	}
	runID, err := c.store.BeginRun(ctx, configHash)
	if err != nil {
		return err
	}
	c.runID = runID

	for _, quality := range c.cfg.QualityDomains() {
		for _, seed := range quality.Seeds {
			if err := c.seedQualityDomain(ctx, quality.Domain, seed); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Coordinator) seedQualityDomain(ctx context.Context, domain, seedURL string) error {
	parsed, err := url.Parse(seedURL)
	if err != nil {
		return fmt.Errorf("parse seed url %q: %w", seedURL, err)
	}
	canonical := urlutil.Canonicalize(*parsed)
	canonicalStr := canonical.String()
	host := urlutil.ExtractDomain(canonical)

	pageID, err := c.store.InsertOrGetPage(ctx, canonicalStr, host, c.runID)
	if err != nil {
		return err
	}
	c.urlToPageID[canonicalStr] = pageID

	if err := c.store.UpsertDepth(ctx, pageID, domain, 0); err != nil {
		return err
	}
	if err := c.store.SetPageQueued(ctx, pageID); err != nil {
		return err
	}
	if err := c.store.FrontierPush(ctx, pageID, 0); err != nil {
		return err
	}

	c.scheduler.Push(frontier.Entry{
		PageURL:  canonicalStr,
		Host:     host,
		Priority: 0,
		AddedAt:  time.Now(),
	})
	return nil
}

// resume reloads domain states and the persisted frontier into the
// in-memory scheduler. Pages left in Fetching by a crash are treated as
// Queued and re-admitted.
func (c *Coordinator) resume(ctx context.Context) error {
	domainStates, err := c.store.LoadAllDomainStates(ctx)
	if err != nil {
		return err
	}
	for _, ds := range domainStates {
		c.scheduler.RestoreDomainState(ds)
	}

	rows, err := c.store.LoadFrontier(ctx)
	if err != nil {
		return err
	}
	for _, row := range rows {
		c.urlToPageID[row.URL] = row.PageID
		c.scheduler.Push(frontier.Entry{
			PageURL:  row.URL,
			Host:     row.Host,
			Priority: row.Priority,
			AddedAt:  time.Now(),
		})
	}

	stuck, err := c.store.LoadPagesInState(ctx, []string{state.Fetching.String()})
	if err != nil {
		return err
	}
	for _, page := range stuck {
		c.urlToPageID[page.URL] = page.ID
		if err := c.store.SetPageQueued(ctx, page.ID); err != nil {
			return err
		}
		if err := c.store.FrontierPush(ctx, page.ID, classify.Discovered.Priority()); err != nil {
			return err
		}
		c.scheduler.Push(frontier.Entry{
			PageURL:  page.URL,
			Host:     page.Host,
			Priority: classify.Discovered.Priority(),
			AddedAt:  time.Now(),
		})
	}

	return nil
}

// Run drains the frontier until it is empty or ctx is cancelled, then
// finalizes the run's status. A cancelled context leaves the run
// `interrupted`; normal drain marks it `completed`.
func (c *Coordinator) Run(ctx context.Context) error {
	for {
		ticket, ok, err := c.scheduler.Next(ctx)
		if err != nil {
			_ = c.store.FinishRun(context.Background(), c.runID, store.RunInterrupted)
			return err
		}
		if !ok {
			return c.store.FinishRun(ctx, c.runID, store.RunCompleted)
		}

		c.processOne(ctx, ticket)
	}
}

func (c *Coordinator) processOne(ctx context.Context, ticket frontier.Ticket) {
	defer ticket.Release()

	entry := ticket.Entry
	pageID, ok := c.urlToPageID[entry.PageURL]
	if !ok {
		// Discovered by a prior run and never cached in this process's
		// map (can happen after a crash mid-resume); look it up.
		page, err := c.store.GetPage(ctx, entry.PageURL)
		if err != nil {
			c.recordInternalError("processOne", entry.PageURL, err)
			return
		}
		pageID = page.ID
		c.urlToPageID[entry.PageURL] = pageID
	}

	if err := c.store.FrontierRemove(ctx, pageID); err != nil {
		c.recordInternalError("processOne", entry.PageURL, err)
		return
	}
	if err := c.store.SetPageFetching(ctx, pageID); err != nil {
		c.recordInternalError("processOne", entry.PageURL, err)
		return
	}

	pageURL, err := url.Parse(entry.PageURL)
	if err != nil {
		c.recordInternalError("processOne", entry.PageURL, err)
		return
	}

	crawlDepth, _, err := c.store.MinDepth(ctx, pageID)
	if err != nil {
		c.recordInternalError("processOne", entry.PageURL, err)
		return
	}

	outcome := c.pipeline.Run(ctx, crawlDepth, *pageURL)
	c.scheduler.RecordRequest(entry.Host)
	if err := c.store.SaveDomainState(ctx, c.scheduler.DomainState(entry.Host)); err != nil {
		c.recordInternalError("processOne", entry.PageURL, err)
	}

	c.applyOutcome(ctx, pageID, entry, outcome)
}

func (c *Coordinator) applyOutcome(ctx context.Context, pageID int64, entry frontier.Entry, outcome fetcher.Outcome) {
	switch outcome.State {
	case state.Processed:
		c.applyProcessed(ctx, pageID, entry, outcome)
	case state.RateLimited:
		c.scheduler.MarkRateLimited(entry.Host)
		_ = c.store.SetPageState(ctx, pageID, state.RateLimited, 0, "", "rate limited")
		c.drainRateLimitedHost(ctx, entry.Host)
	case state.SkippedBlacklist, state.SkippedStub:
		c.applySkippedRedirect(ctx, pageID, entry, outcome)
	default:
		_ = c.store.SetPageState(ctx, pageID, outcome.State, 0, outcome.ContentType, "")
	}
}

// drainRateLimitedHost transitions every other page still queued for host to
// RateLimited. Once the scheduler's sticky flag is set for a host it never
// dispatches that host again, so anything left in the frontier for it would
// otherwise never reach a terminal state.
func (c *Coordinator) drainRateLimitedHost(ctx context.Context, host string) {
	for _, drained := range c.scheduler.DrainHost(host) {
		pageID, ok := c.urlToPageID[drained.PageURL]
		if !ok {
			page, err := c.store.GetPage(ctx, drained.PageURL)
			if err != nil {
				c.recordInternalError("drainRateLimitedHost", drained.PageURL, err)
				continue
			}
			pageID = page.ID
			c.urlToPageID[drained.PageURL] = pageID
		}
		if err := c.store.FrontierRemove(ctx, pageID); err != nil {
			c.recordInternalError("drainRateLimitedHost", drained.PageURL, err)
			continue
		}
		_ = c.store.SetPageState(ctx, pageID, state.RateLimited, 0, "", "rate limited")
	}
}

func (c *Coordinator) applySkippedRedirect(ctx context.Context, pageID int64, entry frontier.Entry, outcome fetcher.Outcome) {
	for _, ref := range outcome.References {
		targetURL := outcome.FinalURL.String()
		var err error
		if ref.Classification == classify.Blacklisted {
			err = c.store.RecordBlacklistReference(ctx, targetURL, ref.Host, entry.PageURL, c.runID)
		} else {
			err = c.store.RecordStubReference(ctx, targetURL, ref.Host, entry.PageURL, c.runID)
		}
		if err != nil {
			c.recordInternalError("applySkippedRedirect", entry.PageURL, err)
		}
	}
	_ = c.store.SetPageState(ctx, pageID, outcome.State, 0, "", "")
}

func (c *Coordinator) applyProcessed(ctx context.Context, sourcePageID int64, entry frontier.Entry, outcome fetcher.Outcome) {
	origins, err := c.store.LoadDepths(ctx, sourcePageID)
	if err != nil {
		c.recordInternalError("applyProcessed", entry.PageURL, err)
		return
	}

	var targetPageIDs []int64
	for _, link := range outcome.Links {
		canonical := urlutil.Canonicalize(link)
		canonicalStr := canonical.String()
		host := urlutil.ExtractDomain(canonical)

		classification := c.classifier.Classify(host)
		if classification == classify.Blacklisted {
			if err := c.store.RecordBlacklistReference(ctx, canonicalStr, host, entry.PageURL, c.runID); err != nil {
				c.recordInternalError("applyProcessed", entry.PageURL, err)
			}
			continue
		}
		if classification == classify.Stubbed {
			if err := c.store.RecordStubReference(ctx, canonicalStr, host, entry.PageURL, c.runID); err != nil {
				c.recordInternalError("applyProcessed", entry.PageURL, err)
			}
			continue
		}

		targetID, err := c.store.InsertOrGetPage(ctx, canonicalStr, host, c.runID)
		if err != nil {
			c.recordInternalError("applyProcessed", entry.PageURL, err)
			continue
		}
		c.urlToPageID[canonicalStr] = targetID
		targetPageIDs = append(targetPageIDs, targetID)

		c.propagateDepths(ctx, targetID, host, origins)
		c.admitIfEligible(ctx, targetID, canonicalStr, host, classification)
	}

	if err := c.store.RecordProcessed(ctx, sourcePageID, 0, outcome.ContentType, targetPageIDs); err != nil {
		c.recordInternalError("applyProcessed", entry.PageURL, err)
	}
}

// propagateDepths applies the depth-propagation rule for every quality
// origin the source page carries: same depth if target.host belongs to
// that origin, else sourceDepth + 1.
func (c *Coordinator) propagateDepths(ctx context.Context, targetID int64, targetHost string, origins []state.PageDepth) {
	for _, origin := range origins {
		sameDomain := isSameQualityOrigin(c.classifier, origin.Origin, targetHost)
		proposed := state.PropagatedDepth(origin.Depth, sameDomain)
		if err := c.store.UpsertDepth(ctx, targetID, origin.Origin, proposed); err != nil {
			c.recordInternalError("propagateDepths", targetHost, err)
		}
	}
}

func isSameQualityOrigin(classifier *classify.Classifier, origin, host string) bool {
	matched, ok := classifier.QualityOrigin(host)
	return ok && matched == origin
}

// admitIfEligible transitions a target page to Queued and pushes it to the
// frontier if it is still Discovered and at least one depth row is within
// max_depth.
func (c *Coordinator) admitIfEligible(ctx context.Context, pageID int64, pageURL, host string, classification classify.Classification) {
	page, err := c.store.GetPageByID(ctx, pageID)
	if err != nil {
		c.recordInternalError("admitIfEligible", pageURL, err)
		return
	}
	if page.State != state.Discovered {
		return
	}

	depth, ok, err := c.store.MinDepth(ctx, pageID)
	if err != nil {
		c.recordInternalError("admitIfEligible", pageURL, err)
		return
	}
	if !ok || depth > c.cfg.MaxDepth() {
		// DepthExceeded is reachable only from Queued in the page lifecycle,
		// so the page passes through Queued on its way there.
		if err := c.store.SetPageQueued(ctx, pageID); err != nil {
			c.recordInternalError("admitIfEligible", pageURL, err)
			return
		}
		_ = c.store.SetPageState(ctx, pageID, state.DepthExceeded, 0, "", "")
		return
	}

	priority := classification.Priority()
	if err := c.store.SetPageQueued(ctx, pageID); err != nil {
		c.recordInternalError("admitIfEligible", pageURL, err)
		return
	}
	if err := c.store.FrontierPush(ctx, pageID, priority); err != nil {
		c.recordInternalError("admitIfEligible", pageURL, err)
		return
	}

	c.scheduler.Push(frontier.Entry{
		PageURL:  pageURL,
		Host:     host,
		Priority: priority,
		AddedAt:  time.Now(),
	})
}

func (c *Coordinator) recordInternalError(action, url string, err error) {
	c.metadataSink.RecordError(
		time.Now(),
		"coordinator",
		action,
		metadata.CauseStorageFailure,
		err.Error(),
		[]metadata.Attribute{metadata.NewAttr(metadata.AttrURL, url)},
	)
}
