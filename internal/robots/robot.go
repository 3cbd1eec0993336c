package robots

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sumiripple/sumiripple/internal/metadata"
)

/*
Responsibilities

- Fetch robots.txt per host (via RobotsFetcher, TTL-cached)
- Map the parsed response onto a ruleSet for the crawler's user agent
- Enforce allow/disallow rules for each URL at fetch time

Robots checks run in the fetch pipeline, just before a page is fetched. A
host whose robots.txt cannot be fetched (4xx, 429, 5xx, transport failure)
gets a cached allow-all rule set, not an error. Decide returns an error
only when the request cannot be built, the body cannot be read, or the
caller's context ends before the fetch completes.
*/

type Robot struct {
	fetcher      *RobotsFetcher
	userAgent    string
	metadataSink metadata.MetadataSink
}

func NewRobot(fetcher *RobotsFetcher, userAgent string, metadataSink metadata.MetadataSink) Robot {
	return Robot{
		fetcher:      fetcher,
		userAgent:    userAgent,
		metadataSink: metadataSink,
	}
}

// Decide fetches (or reuses the cached) robots.txt for target's host and
// returns whether target may be crawled by this robot's user agent.
func (r *Robot) Decide(ctx context.Context, target url.URL) (Decision, error) {
	decision, err := r.decide(ctx, target)
	if err != nil {
		var robotsError *RobotsError
		errors.As(err, &robotsError)
		r.metadataSink.RecordError(
			time.Now(),
			"robots",
			"Robot.Decide",
			mapRobotsErrorToMetadataCause(robotsError),
			err.Error(),
			[]metadata.Attribute{
				metadata.NewAttr(metadata.AttrURL, fmt.Sprintf("%v", target)),
			},
		)
		return Decision{}, robotsError
	}
	return decision, nil
}

func (r *Robot) decide(ctx context.Context, target url.URL) (Decision, error) {
	fetchResult, fetchErr := r.fetcher.Fetch(ctx, target.Scheme, target.Host)
	if fetchErr != nil {
		return Decision{}, fetchErr
	}

	rs := MapResponseToRuleSet(fetchResult.Response, r.userAgent, fetchResult.FetchedAt)

	allowed, reason := evaluate(rs, target.Path)

	return Decision{
		Url:        target,
		Allowed:    allowed,
		Reason:     reason,
		CrawlDelay: rs.CrawlDelay(),
	}, nil
}

// evaluate applies the longest-match-wins precedence rule: among every
// allow/disallow rule whose prefix matches path, the longest prefix wins;
// an exact tie between an allow and a disallow favors the disallow. An
// empty rule set, or a rule set with no matching user-agent group, means
// the path is allowed.
func evaluate(rs ruleSet, path string) (bool, DecisionReason) {
	if !rs.hasGroups {
		return true, EmptyRuleSet
	}
	if !rs.matchedGroup {
		return true, UserAgentNotMatched
	}

	if path == "" {
		path = "/"
	}

	bestLen := -1
	bestAllow := true

	for _, rule := range rs.allowRules {
		if l := matchLength(rule.prefix, path); l > bestLen {
			bestLen = l
			bestAllow = true
		}
	}
	for _, rule := range rs.disallowRules {
		if l := matchLength(rule.prefix, path); l >= bestLen && l >= 0 {
			bestLen = l
			bestAllow = false
		}
	}

	if bestLen < 0 {
		return true, NoMatchingRules
	}
	if bestAllow {
		return true, AllowedByRobots
	}
	return false, DisallowedByRobots
}

// matchLength returns the length of prefix if it matches path (supporting a
// trailing "*" wildcard and a "$" end-of-path anchor), or -1 if it does not
// match at all.
func matchLength(prefix, path string) int {
	if prefix == "" {
		return -1
	}

	anchored := strings.HasSuffix(prefix, "$")
	trimmed := strings.TrimSuffix(prefix, "$")
	trimmed = strings.ReplaceAll(trimmed, "*", "")

	if anchored {
		if path == trimmed {
			return len(trimmed)
		}
		return -1
	}

	if strings.HasPrefix(path, trimmed) {
		return len(trimmed)
	}
	return -1
}
