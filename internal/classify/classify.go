// Package classify maps a host to a crawl classification using the
// configured quality/blacklist/stub domain lists, in fixed priority order.
package classify

import (
	"github.com/sumiripple/sumiripple/internal/config"
	"github.com/sumiripple/sumiripple/pkg/urlutil"
)

// Classification is the outcome of matching a host against the configured
// domain rules.
type Classification int

const (
	// Discovered is the default: no rule matched, the host is unknown.
	Discovered Classification = iota
	// Quality marks a host inside one of the curated, fully-explored domains.
	Quality
	// Stubbed marks a host whose URLs are recorded as references but never
	// fetched.
	Stubbed
	// Blacklisted marks a host that is never fetched and never recorded
	// beyond a reference count.
	Blacklisted
)

func (c Classification) String() string {
	switch c {
	case Quality:
		return "quality"
	case Stubbed:
		return "stubbed"
	case Blacklisted:
		return "blacklisted"
	default:
		return "discovered"
	}
}

// Priority returns the frontier dispatch priority for this classification,
// lower values dispatched first.
func (c Classification) Priority() int {
	if c == Quality {
		return 0
	}
	return 10
}

// Classifier holds the compiled domain rule lists from the run configuration
// and answers host classification queries.
type Classifier struct {
	blacklist []string
	stub      []string
	quality   []string
}

// New builds a Classifier from a validated Config.
func New(cfg config.Config) *Classifier {
	qualityDomains := cfg.QualityDomains()
	quality := make([]string, len(qualityDomains))
	for i, q := range qualityDomains {
		quality[i] = q.Domain
	}
	return &Classifier{
		blacklist: cfg.Blacklist(),
		stub:      cfg.Stub(),
		quality:   quality,
	}
}

// Classify tests host against the rule lists in fixed priority order —
// Blacklist, then Stub, then Quality — and returns the first match, else
// Discovered. A rule is either an exact host or a `*.base` wildcard matched
// by urlutil.MatchesWildcard.
func (c *Classifier) Classify(host string) Classification {
	if matchesAny(c.blacklist, host) {
		return Blacklisted
	}
	if matchesAny(c.stub, host) {
		return Stubbed
	}
	if matchesAny(c.quality, host) {
		return Quality
	}
	return Discovered
}

// QualityOrigin returns the quality domain that host belongs to and true,
// or ("", false) if host does not match any quality rule. Used to compute
// propagated page depth: traversal within the same quality
// origin does not increase depth.
func (c *Classifier) QualityOrigin(host string) (string, bool) {
	for _, pattern := range c.quality {
		if urlutil.MatchesWildcard(pattern, host) {
			return pattern, true
		}
	}
	return "", false
}

func matchesAny(patterns []string, host string) bool {
	for _, pattern := range patterns {
		if urlutil.MatchesWildcard(pattern, host) {
			return true
		}
	}
	return false
}
