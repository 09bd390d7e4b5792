// Package crawler implements the duplicate detector, priority queue, link
// discoverer, and statistics tracker used by the AI-Agent crawler tier.
// No teacher or pack example offers a multi-page crawler or priority-queue
// analog, so this package is built fresh in plain Go idiom.
package crawler

import (
	"net/url"
	"sort"
	"strings"
)

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

var trackingParamPrefixes = []string{"utm_"}
var trackingParamExact = map[string]bool{
	"fbclid": true,
	"gclid":  true,
}

// NormalizeURL lowercases scheme+host, strips default ports, strips the
// fragment, drops tracking query params, sorts the remaining ones, and
// strips a trailing slash from the path.
func NormalizeURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	if port := u.Port(); port != "" && defaultPorts[u.Scheme] == port {
		u.Host = u.Hostname()
	}

	if u.Path != "/" {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}

	q := u.Query()
	for key := range q {
		lower := strings.ToLower(key)
		if trackingParamExact[lower] {
			q.Del(key)
			continue
		}
		for _, prefix := range trackingParamPrefixes {
			if strings.HasPrefix(lower, prefix) {
				q.Del(key)
				break
			}
		}
	}

	if len(q) > 0 {
		keys := make([]string, 0, len(q))
		for k := range q {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sorted := url.Values{}
		for _, k := range keys {
			sorted[k] = q[k]
		}
		u.RawQuery = sorted.Encode()
	} else {
		u.RawQuery = ""
	}

	return u.String(), nil
}

// DuplicateDetector tracks the set of normalized URLs seen so far in a crawl.
type DuplicateDetector struct {
	seen map[string]bool
}

// NewDuplicateDetector constructs an empty detector.
func NewDuplicateDetector() *DuplicateDetector {
	return &DuplicateDetector{seen: make(map[string]bool)}
}

// AddURL normalizes raw and reports whether it had not been seen before,
// recording it either way. An unparseable URL is never considered new.
func (d *DuplicateDetector) AddURL(raw string) bool {
	norm, err := NormalizeURL(raw)
	if err != nil {
		return false
	}
	if d.seen[norm] {
		return false
	}
	d.seen[norm] = true
	return true
}

// Has reports whether raw (after normalization) has already been seen.
func (d *DuplicateDetector) Has(raw string) bool {
	norm, err := NormalizeURL(raw)
	if err != nil {
		return false
	}
	return d.seen[norm]
}

// Size returns the number of distinct normalized URLs recorded.
func (d *DuplicateDetector) Size() int {
	return len(d.seen)
}
