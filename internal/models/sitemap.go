// internal/models/sitemap.go
package models

import "encoding/xml"

// SitemapNamespace is the Sitemap Protocol 0.9 namespace.
const SitemapNamespace = "http://www.sitemaps.org/schemas/sitemap/0.9"

// URLSet represents the structure of an XML sitemap.
type URLSet struct {
	XMLName xml.Name    `xml:"urlset"`
	Xmlns   string      `xml:"xmlns,attr,omitempty"`
	URLs    []URLRecord `xml:"url"`
}

// URLRecord represents a single URL entry in the sitemap.
type URLRecord struct {
	Loc        string `xml:"loc" json:"loc"`
	LastMod    string `xml:"lastmod,omitempty" json:"lastmod,omitempty"`
	ChangeFreq string `xml:"changefreq,omitempty" json:"changefreq,omitempty"`
	Priority   string `xml:"priority,omitempty" json:"priority,omitempty"`
}

// SitemapStats holds structural statistics computed over a URL list.
type SitemapStats struct {
	TotalURLs         int            `json:"total_urls"`
	Domains           map[string]int `json:"domains"`
	MainDomain        string         `json:"main_domain"`
	AvgDepth          float64        `json:"avg_depth"`
	DepthDistribution map[int]int    `json:"depth_distribution"`
	HasLastMod        bool           `json:"has_lastmod"`
	NewestPage        string         `json:"newest_page,omitempty"`
	OldestPage        string         `json:"oldest_page,omitempty"`
}

// Reasons a discovered sub-sitemap was not expanded.
const (
	SkipCapacity   = "capacity"
	SkipCycle      = "cycle"
	SkipDepth      = "depth"
	SkipFetchError = "fetch_error"
	SkipParseError = "parse_error"
	SkipMissingLoc = "missing_loc"
)

// SkippedSitemap records a sub-sitemap that was listed in an index but not expanded.
type SkippedSitemap struct {
	URL    string `json:"url"`
	Reason string `json:"reason"`
	Detail string `json:"detail,omitempty"`
}

// Locs returns the loc of every record, in order.
func Locs(records []URLRecord) []string {
	locs := make([]string, 0, len(records))
	for _, r := range records {
		locs = append(locs, r.Loc)
	}
	return locs
}
