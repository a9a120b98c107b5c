package sitemap

import (
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"github.com/temoto/robotstxt"
)

// ConventionalPaths are tried after robots.txt and the home page when the
// input does not point at a sitemap directly.
var ConventionalPaths = []string{
	"/sitemap.xml",
	"/sitemap_index.xml",
	"/wp-sitemap.xml",
}

// Discoverer turns user input (a bare domain, a site URL or a sitemap URL)
// into an ordered list of sitemap candidates.
type Discoverer struct {
	fetcher ContentFetcher
	logger  zerolog.Logger
}

func NewDiscoverer(fetcher ContentFetcher, logger zerolog.Logger) *Discoverer {
	return &Discoverer{
		fetcher: fetcher,
		logger:  logger,
	}
}

// NormalizeInput adds an https scheme to bare domains and scheme-relative URLs.
func NormalizeInput(input string) string {
	input = NormalizeURL(input)
	if input == "" {
		return ""
	}
	if !strings.HasPrefix(input, "http://") && !strings.HasPrefix(input, "https://") {
		input = "https://" + input
	}
	return input
}

// LooksLikeSitemap reports whether the URL already names a sitemap document.
func LooksLikeSitemap(u *url.URL) bool {
	path := strings.ToLower(u.Path)
	return strings.HasSuffix(path, ".xml") ||
		strings.HasSuffix(path, ".xml.gz") ||
		strings.HasSuffix(path, ".json") ||
		strings.Contains(path, "sitemap")
}

// Candidates returns sitemap URLs to try for input, most specific first.
func (d *Discoverer) Candidates(ctx context.Context, input string) ([]string, error) {
	normalized := NormalizeInput(input)
	u, err := url.Parse(normalized)
	if err != nil || u.Host == "" {
		return nil, &FetchError{URL: input, Err: errInvalidURL(input, err)}
	}
	if LooksLikeSitemap(u) {
		return []string{normalized}, nil
	}

	base := u.Scheme + "://" + u.Host
	seen := make(map[string]struct{})
	var candidates []string
	add := func(loc string) {
		loc = strings.TrimSpace(loc)
		if loc == "" {
			return
		}
		if _, ok := seen[loc]; ok {
			return
		}
		seen[loc] = struct{}{}
		candidates = append(candidates, loc)
	}

	for _, loc := range d.fromRobots(ctx, base) {
		add(loc)
	}
	for _, loc := range d.fromHomePage(ctx, u) {
		add(loc)
	}
	for _, path := range ConventionalPaths {
		add(base + path)
	}

	d.logger.Debug().Str("input", input).Strs("candidates", candidates).Msg("Discovered sitemap candidates")
	return candidates, nil
}

func (d *Discoverer) fromRobots(ctx context.Context, base string) []string {
	body, err := d.fetcher.Fetch(ctx, base+"/robots.txt")
	if err != nil {
		d.logger.Debug().Err(err).Msg("No robots.txt")
		return nil
	}
	robots, err := robotstxt.FromString(body)
	if err != nil {
		d.logger.Debug().Err(err).Msg("Unparseable robots.txt")
		return nil
	}
	return robots.Sitemaps
}

func (d *Discoverer) fromHomePage(ctx context.Context, page *url.URL) []string {
	body, err := d.fetcher.Fetch(ctx, page.String())
	if err != nil {
		d.logger.Debug().Err(err).Msg("Home page not reachable")
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil
	}

	var found []string
	doc.Find(`link[rel="sitemap"]`).Each(func(_ int, s *goquery.Selection) {
		href, exists := s.Attr("href")
		if !exists {
			return
		}
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		found = append(found, page.ResolveReference(ref).String())
	})
	return found
}
