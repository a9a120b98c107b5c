package analyzer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romangod6/sitemap-clusters/internal/cluster"
	"github.com/romangod6/sitemap-clusters/internal/models"
	"github.com/romangod6/sitemap-clusters/internal/sitemap"
)

type memoryFetcher map[string]string

func (m memoryFetcher) Fetch(_ context.Context, rawURL string) (string, error) {
	doc, ok := m[rawURL]
	if !ok {
		return "", &sitemap.FetchError{URL: rawURL, StatusCode: http.StatusNotFound, Err: errors.New("Not Found")}
	}
	return doc, nil
}

func urlSet(locs ...string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`)
	for _, loc := range locs {
		fmt.Fprintf(&b, "<url><loc>%s</loc><lastmod>2023-04-01</lastmod></url>", loc)
	}
	b.WriteString("</urlset>")
	return b.String()
}

func blogLocs(n int) []string {
	locs := make([]string, 0, n)
	for i := 0; i < n; i++ {
		locs = append(locs, fmt.Sprintf("https://example.com/blog/2023/04/post-%d/", i))
	}
	return locs
}

func newTestAnalyzer(fetcher sitemap.ContentFetcher, gen cluster.Generator, policy Policy, discover bool) *Analyzer {
	parser := sitemap.NewParser(fetcher, sitemap.DefaultParserConfig(), zerolog.Nop())
	var discoverer *sitemap.Discoverer
	if discover {
		discoverer = sitemap.NewDiscoverer(fetcher, zerolog.Nop())
	}
	opts := cluster.DefaultOptions()
	opts.RetryDelay = time.Millisecond
	opts.MaxRetries = 1
	agg := cluster.NewAggregator(gen, opts, zerolog.Nop())
	return New(parser, discoverer, agg, policy, zerolog.Nop())
}

func failingGenerator() cluster.Generator {
	return cluster.GeneratorFunc(func(context.Context, []string, models.SitemapStats, int) ([]cluster.RawCluster, error) {
		return nil, errors.New("model unavailable")
	})
}

func TestRunEndToEnd(t *testing.T) {
	locs := blogLocs(10)
	fetcher := memoryFetcher{
		"https://example.com/sitemap_index.xml": `<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
			<sitemap><loc>https://example.com/posts.xml</loc></sitemap>
			<sitemap><loc>https://example.com/missing.xml</loc></sitemap>
		</sitemapindex>`,
		"https://example.com/posts.xml": urlSet(locs...),
	}
	gen := cluster.GeneratorFunc(func(_ context.Context, urls []string, stats models.SitemapStats, target int) ([]cluster.RawCluster, error) {
		assert.Equal(t, 10, stats.TotalURLs)
		assert.Equal(t, 5, target)
		return []cluster.RawCluster{{"title": "Spring Blog Archive", "count": "10 posts"}}, nil
	})

	report, err := newTestAnalyzer(fetcher, gen, Strict, false).Run(context.Background(), "https://example.com/sitemap_index.xml")
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/sitemap_index.xml", report.SitemapURL)
	assert.Equal(t, 10, report.Stats.TotalURLs)
	assert.Equal(t, "example.com", report.Stats.MainDomain)
	assert.Equal(t, "2023-04-01", report.Stats.NewestPage)
	assert.Equal(t, 2, report.Fetched)
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, models.SkipFetchError, report.Skipped[0].Reason)
	assert.False(t, report.UsedFallback)
	require.Len(t, report.Clusters.Clusters, 1)
	assert.Equal(t, "Spring Blog Archive", report.Clusters.Clusters[0].Title)
	assert.Equal(t, 10, report.Clusters.Clusters[0].Count)
	assert.Equal(t, locs[:3], report.Clusters.Clusters[0].Examples)
	assert.False(t, report.GeneratedAt.IsZero())
}

func TestRunNoURLs(t *testing.T) {
	fetcher := memoryFetcher{
		"https://example.com/sitemap.xml": `<urlset><url><lastmod>2024-01-01</lastmod></url><url/><url><priority>1</priority></url></urlset>`,
	}

	_, err := newTestAnalyzer(fetcher, cluster.FallbackGenerator{}, Strict, false).Run(context.Background(), "https://example.com/sitemap.xml")

	var noURLs *NoURLsError
	require.True(t, errors.As(err, &noURLs))
	assert.Equal(t, "https://example.com/sitemap.xml", noURLs.URL)
}

func TestRunPrimaryFetchError(t *testing.T) {
	_, err := newTestAnalyzer(memoryFetcher{}, cluster.FallbackGenerator{}, Strict, false).Run(context.Background(), "example.com/sitemap.xml")

	var fetchErr *sitemap.FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, "https://example.com/sitemap.xml", fetchErr.URL)
}

func TestRunPrimaryParseError(t *testing.T) {
	fetcher := memoryFetcher{"https://example.com/sitemap.xml": "<urlset><url>"}

	_, err := newTestAnalyzer(fetcher, cluster.FallbackGenerator{}, Strict, false).Run(context.Background(), "https://example.com/sitemap.xml")

	var parseErr *sitemap.ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Equal(t, "https://example.com/sitemap.xml", parseErr.URL)
}

func TestRunStrictPolicyPropagatesGenerationError(t *testing.T) {
	fetcher := memoryFetcher{"https://example.com/sitemap.xml": urlSet(blogLocs(10)...)}

	_, err := newTestAnalyzer(fetcher, failingGenerator(), Strict, false).Run(context.Background(), "https://example.com/sitemap.xml")

	var genErr *cluster.GenerationError
	require.True(t, errors.As(err, &genErr))
	assert.Equal(t, 2, genErr.Attempts)
}

func TestRunLenientPolicyFallsBack(t *testing.T) {
	fetcher := memoryFetcher{"https://example.com/sitemap.xml": urlSet(blogLocs(10)...)}

	report, err := newTestAnalyzer(fetcher, failingGenerator(), Lenient, false).Run(context.Background(), "https://example.com/sitemap.xml")
	require.NoError(t, err)

	assert.True(t, report.UsedFallback)
	require.Len(t, report.Clusters.Clusters, 1)
	assert.Equal(t, "Blog Posts", report.Clusters.Clusters[0].Title)
	assert.Equal(t, 10, report.Clusters.Clusters[0].Count)
}

func TestRunWithDiscovery(t *testing.T) {
	fetcher := memoryFetcher{
		"https://example.com/robots.txt":  "User-agent: *\nSitemap: https://example.com/empty.xml\n",
		"https://example.com/empty.xml":   urlSet(),
		"https://example.com/sitemap.xml": urlSet(blogLocs(4)...),
	}

	report, err := newTestAnalyzer(fetcher, cluster.FallbackGenerator{}, Strict, true).Run(context.Background(), "example.com")
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/sitemap.xml", report.SitemapURL)
	assert.Equal(t, 4, report.Stats.TotalURLs)
	require.Len(t, report.Clusters.Clusters, 1)
	assert.Equal(t, "Blog Posts", report.Clusters.Clusters[0].Title)
}

func TestRunUsesContextLogger(t *testing.T) {
	fetcher := memoryFetcher{"https://example.com/sitemap.xml": urlSet(blogLocs(3)...)}
	var buf bytes.Buffer
	ctx := zerolog.New(&buf).WithContext(context.Background())

	_, err := newTestAnalyzer(fetcher, cluster.FallbackGenerator{}, Strict, false).Run(ctx, "https://example.com/sitemap.xml")
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "Starting sitemap analysis")
	assert.Contains(t, buf.String(), "Identified topical clusters")
}
