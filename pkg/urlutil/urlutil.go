package urlutil

import (
	"net/url"
	"sort"
	"strings"

	"golang.org/x/net/idna"
)

// trackingParams lists exact-match tracking query parameters removed during
// normalization. Parameters with a "utm_" prefix are removed regardless of
// whether they appear here.
var trackingParams = map[string]struct{}{
	"utm_source":   {},
	"utm_medium":   {},
	"utm_campaign": {},
	"utm_term":     {},
	"utm_content":  {},
	"fbclid":       {},
	"gclid":        {},
	"mc_eid":       {},
	"ref":          {},
	"source":       {},
}

// Canonicalize applies a deterministic normalization to a URL, producing a
// canonical form that maps equivalent URL spellings to a single
// representation.
//
// The normalization follows these rules:
//  1. Force the scheme to https
//  2. Lowercase the host and convert any internationalized labels to their
//     ASCII (punycode) form, so a Unicode hostname and its punycode
//     spelling canonicalize to the same value
//  3. Strip a leading "www." label from the host
//  4. Clean the path: collapse dot segments and duplicate slashes, strip the
//     trailing slash (except for root), and default the empty path to "/"
//  5. Remove the fragment
//  6. Remove tracking query parameters and sort the remainder by key
//  7. Remove an empty query string
//
// Default ports (80 for http, 443 for https) are omitted since the scheme is
// always forced to https.
//
// Properties:
//   - Pure: no state, no memory
//   - Deterministic: same input always produces same output
//   - Idempotent: Canonicalize(Canonicalize(url)) == Canonicalize(url)
//   - Context-free: does not depend on crawl history
func Canonicalize(sourceUrl url.URL) url.URL {
	canonical := sourceUrl

	canonical.Scheme = "https"

	host, port := canonical.Hostname(), canonical.Port()
	host = toASCIIHost(host)
	host = strings.TrimPrefix(host, "www.")
	if port != "" && port != "443" && !(port == "80" && strings.EqualFold(sourceUrl.Scheme, "http")) {
		canonical.Host = host + ":" + port
	} else {
		canonical.Host = host
	}

	canonical.Path = normalizePath(canonical.Path)
	canonical.RawPath = ""

	canonical.Fragment = ""
	canonical.RawFragment = ""

	if canonical.RawQuery != "" {
		canonical.RawQuery = filterAndSortQuery(canonical.Query())
	}
	canonical.ForceQuery = false

	return canonical
}

// ExtractDomain returns the lowercased host of u, or "" if u has no host.
func ExtractDomain(u url.URL) string {
	return lowerASCII(u.Hostname())
}

// MatchesWildcard reports whether candidate matches pattern. A pattern of
// the form "*.base" matches base itself or any subdomain of base. Any other
// pattern must match candidate exactly.
func MatchesWildcard(pattern, candidate string) bool {
	if base, ok := strings.CutPrefix(pattern, "*."); ok {
		return candidate == base || strings.HasSuffix(candidate, "."+base)
	}
	return candidate == pattern
}

// normalizePath removes "." and ".." segments, collapses duplicate slashes, and strips a trailing slash unless
// the path is root.
func normalizePath(path string) string {
	if path == "" {
		return "/"
	}

	segments := strings.Split(path, "/")
	normalized := make([]string, 0, len(segments))
	for _, segment := range segments {
		switch segment {
		case "", ".":
			continue
		case "..":
			if len(normalized) > 0 {
				normalized = normalized[:len(normalized)-1]
			}
		default:
			normalized = append(normalized, segment)
		}
	}

	if len(normalized) == 0 {
		return "/"
	}

	return "/" + strings.Join(normalized, "/")
}

// filterAndSortQuery removes tracking parameters from values and returns the
// remaining parameters encoded and sorted by key, or "" if none remain.
func filterAndSortQuery(values url.Values) string {
	keys := make([]string, 0, len(values))
	for key := range values {
		if isTrackingParam(key) {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, key := range keys {
		for j, v := range values[key] {
			if i > 0 || j > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(key))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}

// isTrackingParam reports whether key is a tracking query parameter that
// must be removed during normalization.
func isTrackingParam(key string) bool {
	if _, ok := trackingParams[key]; ok {
		return true
	}
	return strings.HasPrefix(key, "utm_")
}

// idnaProfile converts internationalized domain labels to their ASCII
// (punycode) form for comparison and storage, without rejecting hosts that
// merely look unusual (VerifyDNSLength/StrictDomainName off).
var idnaProfile = idna.New(
	idna.MapForLookup(),
	idna.Transitional(false),
)

// toASCIIHost lowercases host and converts any Unicode labels to punycode.
// Hosts idna can't process (IP literals, already-ASCII hosts with no
// internationalized labels, malformed input) pass through lowercased and
// otherwise unchanged.
func toASCIIHost(host string) string {
	ascii, err := idnaProfile.ToASCII(host)
	if err != nil {
		return lowerASCII(host)
	}
	return lowerASCII(ascii)
}

// lowerASCII converts ASCII characters to lowercase without allocating when
// the input is already lowercase.
func lowerASCII(s string) string {
	var needsLower bool
	for i := 0; i < len(s); i++ {
		if s[i] >= 'A' && s[i] <= 'Z' {
			needsLower = true
			break
		}
	}
	if !needsLower {
		return s
	}
	b := make([]byte, len(s))
	copy(b, s)
	for i := 0; i < len(b); i++ {
		if b[i] >= 'A' && b[i] <= 'Z' {
			b[i] += 'a' - 'A'
		}
	}
	return string(b)
}
