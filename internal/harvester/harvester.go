// Package harvester extracts outbound link targets from a fetched HTML
// document.
package harvester

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/sumiripple/sumiripple/internal/metadata"
	"github.com/sumiripple/sumiripple/pkg/failure"
	"github.com/sumiripple/sumiripple/pkg/urlutil"
)

/*
Responsibilities
- Parse HTML into a DOM tree
- Collect every outbound link target worth enqueueing
- Resolve relative URLs against the document's final (post-redirect) URL
- Normalize and deduplicate the result

Inclusion rules
- <a href> anywhere in the document
- <link rel="canonical" href>

Exclusion rules
- anchors carrying a "download" attribute
- hrefs with scheme javascript:, mailto:, tel:, data:
- every other <link> relation (stylesheet, icon, preload, ...)

rel="nofollow" is followed by explicit policy: it marks an anchor's target
as not editorially endorsed, not as unreachable.
*/

var excludedSchemes = map[string]struct{}{
	"javascript": {},
	"mailto":     {},
	"tel":        {},
	"data":       {},
}

type Harvester struct {
	metadataSink metadata.MetadataSink
}

func NewHarvester(metadataSink metadata.MetadataSink) Harvester {
	return Harvester{metadataSink: metadataSink}
}

// Harvest parses htmlBody as found at documentURL (the final, post-redirect
// location) and returns the deduplicated, normalized set of outbound link
// targets.
func (h *Harvester) Harvest(documentURL url.URL, htmlBody []byte) ([]url.URL, failure.ClassifiedError) {
	links, err := h.harvest(documentURL, htmlBody)
	if err != nil {
		var harvestErr *HarvestError
		errors.As(err, &harvestErr)
		h.metadataSink.RecordError(
			time.Now(),
			"harvester",
			"Harvester.Harvest",
			mapHarvestErrorToMetadataCause(harvestErr),
			err.Error(),
			[]metadata.Attribute{
				metadata.NewAttr(metadata.AttrURL, documentURL.String()),
			},
		)
		return nil, harvestErr
	}
	return links, nil
}

func (h *Harvester) harvest(documentURL url.URL, htmlBody []byte) ([]url.URL, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(htmlBody))
	if err != nil {
		return nil, &HarvestError{
			Message:   fmt.Sprintf("failed to parse HTML: %v", err),
			Retryable: false,
			Cause:     ErrCauseMalformedHTML,
		}
	}

	seen := make(map[string]struct{})
	var links []url.URL

	collect := func(raw string) {
		resolved, ok := resolveTarget(documentURL, raw)
		if !ok {
			return
		}
		canonical := urlutil.Canonicalize(resolved)
		key := canonical.String()
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		links = append(links, canonical)
	}

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		if _, hasDownload := sel.Attr("download"); hasDownload {
			return
		}
		href, _ := sel.Attr("href")
		collect(href)
	})

	doc.Find(`link[rel="canonical"][href]`).Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		collect(href)
	})

	return links, nil
}

// resolveTarget resolves raw against base and reports ok=false for empty
// hrefs, unparseable hrefs, or hrefs using an excluded scheme.
func resolveTarget(base url.URL, raw string) (url.URL, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || trimmed == "#" {
		return url.URL{}, false
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return url.URL{}, false
	}

	if parsed.Scheme != "" {
		if _, excluded := excludedSchemes[strings.ToLower(parsed.Scheme)]; excluded {
			return url.URL{}, false
		}
	}

	resolved := base.ResolveReference(parsed)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return url.URL{}, false
	}

	return *resolved, true
}
