package fetcher

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/sumiripple/sumiripple/internal/classify"
	"github.com/sumiripple/sumiripple/internal/harvester"
	"github.com/sumiripple/sumiripple/internal/robots"
	"github.com/sumiripple/sumiripple/internal/state"
	"github.com/sumiripple/sumiripple/pkg/retry"
	"github.com/sumiripple/sumiripple/pkg/timeutil"
	"github.com/sumiripple/sumiripple/pkg/urlutil"
)

// maxRedirects bounds manual redirect traversal.
const maxRedirects = 10

// getRetryParam is the GET retry policy: 3 attempts in total, with an
// exponential backoff of 5s and then 10s between them (the backoff is
// capped at 20s).
var getRetryParam = retry.NewRetryParam(
	5*time.Second,
	0,
	1,
	3,
	timeutil.NewBackoffParam(5*time.Second, 2.0, 20*time.Second),
)

// Reference records a hop of a redirect chain that terminated at a
// blacklisted or stubbed host, for the store's reference-counting tables.
type Reference struct {
	Host           string
	Classification classify.Classification
}

// Outcome is the terminal result of running the pipeline against one page.
// The coordinator translates it into a page state transition and, on
// success, fans Links back into the frontier.
type Outcome struct {
	State       state.PageState
	FinalURL    url.URL
	ContentType string
	Links       []url.URL
	References  []Reference
	RateLimited bool
}

// Pipeline runs the robots gate, HEAD content-type pre-check, GET-with-retry,
// and manual redirect traversal, returning a terminal Outcome for the
// coordinator to apply.
type Pipeline struct {
	fetcher    *HtmlFetcher
	robot      *robots.Robot
	harvester  *harvester.Harvester
	classifier *classify.Classifier
	userAgent  string
}

func NewPipeline(
	fetcher *HtmlFetcher,
	robot *robots.Robot,
	harvester *harvester.Harvester,
	classifier *classify.Classifier,
	userAgent string,
) Pipeline {
	return Pipeline{
		fetcher:    fetcher,
		robot:      robot,
		harvester:  harvester,
		classifier: classifier,
		userAgent:  userAgent,
	}
}

// Run drives one page through the full fetch pipeline.
func (p *Pipeline) Run(ctx context.Context, crawlDepth int, pageURL url.URL) Outcome {
	decision, err := p.robot.Decide(ctx, pageURL)
	if err != nil || !decision.Allowed {
		return Outcome{State: state.Failed, FinalURL: pageURL}
	}

	// HEAD is a best-effort content-type pre-check: a HEAD failure (network
	// error, method not allowed, ...) does not abort the fetch, it just
	// forgoes the early exit and lets GET run the real check.
	if head, headErr := p.fetcher.Head(ctx, pageURL, p.userAgent); headErr == nil {
		if ct := head.Headers()["Content-Type"]; ct != "" && head.Code() < 300 && !isHTMLContent(ct) {
			return Outcome{State: state.ContentMismatch, FinalURL: pageURL, ContentType: ct}
		}
	}

	return p.followRedirects(ctx, crawlDepth, pageURL)
}

// followRedirects performs the GET-with-retry/redirect loop. The transport
// never auto-follows redirects (see html.go); every hop is classified and
// re-gated here.
func (p *Pipeline) followRedirects(ctx context.Context, crawlDepth int, startURL url.URL) Outcome {
	canonStart := urlutil.Canonicalize(startURL)
	chain := map[string]struct{}{
		canonStart.String(): {},
	}

	current := startURL
	for hop := 0; ; hop++ {
		param := NewFetchParam(current, p.userAgent)
		result, err := p.fetcher.Fetch(ctx, crawlDepth, param, getRetryParam)
		if err != nil {
			return p.onFetchError(current, err)
		}

		if result.Code() < 300 || result.Code() >= 400 {
			return p.onFetched(current, result)
		}

		location := result.Location()
		if location == "" {
			return Outcome{State: state.Failed, FinalURL: current}
		}
		next, parseErr := current.Parse(location)
		if parseErr != nil {
			return Outcome{State: state.Failed, FinalURL: current}
		}

		canonicalNext := urlutil.Canonicalize(*next)
		key := canonicalNext.String()

		if _, looped := chain[key]; looped {
			return Outcome{State: state.Failed, FinalURL: current}
		}
		if hop+1 >= maxRedirects {
			return Outcome{State: state.Failed, FinalURL: current}
		}

		targetHost := urlutil.ExtractDomain(canonicalNext)
		switch p.classifier.Classify(targetHost) {
		case classify.Blacklisted:
			return Outcome{
				State:      state.SkippedBlacklist,
				FinalURL:   canonicalNext,
				References: []Reference{{Host: targetHost, Classification: classify.Blacklisted}},
			}
		case classify.Stubbed:
			return Outcome{
				State:      state.SkippedStub,
				FinalURL:   canonicalNext,
				References: []Reference{{Host: targetHost, Classification: classify.Stubbed}},
			}
		}

		chain[key] = struct{}{}
		current = canonicalNext
	}
}

func (p *Pipeline) onFetched(finalURL url.URL, result FetchResult) Outcome {
	contentType := result.Headers()["Content-Type"]
	links, harvestErr := p.harvester.Harvest(finalURL, result.Body())
	if harvestErr != nil {
		// Harvest already logged the parse failure; the page itself fetched
		// fine, it just yielded no links.
		return Outcome{State: state.Processed, FinalURL: finalURL, ContentType: contentType}
	}

	return Outcome{
		State:       state.Processed,
		FinalURL:    finalURL,
		ContentType: contentType,
		Links:       links,
	}
}

func (p *Pipeline) onFetchError(at url.URL, err error) Outcome {
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		switch fetchErr.Cause {
		case ErrCauseRequest404:
			return Outcome{State: state.DeadLink, FinalURL: at}
		case ErrCauseRequestTooMany:
			return Outcome{State: state.RateLimited, FinalURL: at, RateLimited: true}
		case ErrCauseTLSOrDNSFailure:
			return Outcome{State: state.Unreachable, FinalURL: at}
		case ErrCauseContentTypeInvalid:
			return Outcome{State: state.ContentMismatch, FinalURL: at}
		}
	}

	return Outcome{State: state.Failed, FinalURL: at}
}
