// Package analysis computes structural statistics over a sitemap's URL records.
package analysis

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/romangod6/sitemap-clusters/internal/models"
)

// extensionRe matches a trailing file extension such as .html or .php.
var extensionRe = regexp.MustCompile(`\.\w+$`)

// lastModLayouts are tried in order; the first that parses wins.
var lastModLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05",
}

const dateOnly = "2006-01-02"

// PathComponents returns the non-empty path segments of loc, after removing a
// single trailing extension from the path.
func PathComponents(loc string) []string {
	_, path := SplitURL(loc)
	path = extensionRe.ReplaceAllString(path, "")

	var components []string
	for _, part := range strings.Split(path, "/") {
		if part != "" {
			components = append(components, part)
		}
	}
	return components
}

// SplitURL returns the host and path of loc. Locations net/url rejects, such
// as ones with malformed percent escapes, are split on their delimiters instead.
func SplitURL(loc string) (host, path string) {
	if u, err := url.Parse(loc); err == nil {
		return u.Host, u.Path
	}

	rest := loc
	if i := strings.IndexAny(rest, "?#"); i >= 0 {
		rest = rest[:i]
	}
	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+len("://"):]
	} else if strings.HasPrefix(rest, "//") {
		rest = rest[2:]
	} else {
		return "", rest
	}

	host, path = rest, ""
	if i := strings.Index(rest, "/"); i >= 0 {
		host, path = rest[:i], rest[i:]
	}
	if i := strings.LastIndex(host, "@"); i >= 0 {
		host = host[i+1:]
	}
	return host, path
}

// Depth is the number of path components of loc.
func Depth(loc string) int {
	return len(PathComponents(loc))
}

// ParseLastMod parses a lastmod value against the accepted layouts.
func ParseLastMod(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range lastModLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Analyze computes SitemapStats for records. Ties for the main domain go to
// the domain encountered first. Unparseable lastmod values are ignored.
func Analyze(records []models.URLRecord) models.SitemapStats {
	stats := models.SitemapStats{
		TotalURLs:         len(records),
		Domains:           make(map[string]int),
		DepthDistribution: make(map[int]int),
	}

	var (
		domainOrder    []string
		depthSum       int
		newest, oldest time.Time
		dated          int
	)

	for _, record := range records {
		host, _ := SplitURL(record.Loc)
		if _, seen := stats.Domains[host]; !seen {
			domainOrder = append(domainOrder, host)
		}
		stats.Domains[host]++

		depth := Depth(record.Loc)
		stats.DepthDistribution[depth]++
		depthSum += depth

		if t, ok := ParseLastMod(record.LastMod); ok {
			if dated == 0 || t.After(newest) {
				newest = t
			}
			if dated == 0 || t.Before(oldest) {
				oldest = t
			}
			dated++
		}
	}

	best := 0
	for _, domain := range domainOrder {
		if count := stats.Domains[domain]; count > best {
			best = count
			stats.MainDomain = domain
		}
	}

	if stats.TotalURLs > 0 {
		stats.AvgDepth = float64(depthSum) / float64(stats.TotalURLs)
	}

	if dated > 0 {
		stats.HasLastMod = true
		stats.NewestPage = newest.Format(dateOnly)
		stats.OldestPage = oldest.Format(dateOnly)
	}

	return stats
}
