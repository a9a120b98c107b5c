// Package analyzer runs the full sitemap analysis: resolve the sitemap,
// compute structural statistics and group the URLs into clusters.
package analyzer

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/romangod6/sitemap-clusters/internal/analysis"
	"github.com/romangod6/sitemap-clusters/internal/cluster"
	"github.com/romangod6/sitemap-clusters/internal/metrics"
	"github.com/romangod6/sitemap-clusters/internal/models"
	"github.com/romangod6/sitemap-clusters/internal/sitemap"
)

// Policy decides what happens when cluster generation fails for good.
type Policy string

const (
	// Strict returns the generation error to the caller.
	Strict Policy = "strict"
	// Lenient logs the error and falls back to heuristic clustering.
	Lenient Policy = "lenient"
)

// NoURLsError is returned when the sitemap parsed but yielded no URL records.
type NoURLsError struct {
	URL string
}

func (e *NoURLsError) Error() string {
	return "no URLs found in sitemap " + e.URL
}

// Report is the outcome of one analysis.
type Report struct {
	SitemapURL   string                  `json:"sitemap_url"`
	Stats        models.SitemapStats     `json:"stats"`
	Clusters     models.ClusterSet       `json:"clusters"`
	Skipped      []models.SkippedSitemap `json:"skipped,omitempty"`
	Fetched      int                     `json:"fetched"`
	UsedFallback bool                    `json:"used_fallback"`
	GeneratedAt  time.Time               `json:"generated_at"`
}

type Analyzer struct {
	parser     *sitemap.Parser
	discoverer *sitemap.Discoverer
	aggregator *cluster.Aggregator
	policy     Policy
	logger     zerolog.Logger
}

// New builds an Analyzer. discoverer may be nil, in which case the input must
// already name a sitemap.
func New(parser *sitemap.Parser, discoverer *sitemap.Discoverer, aggregator *cluster.Aggregator, policy Policy, logger zerolog.Logger) *Analyzer {
	if policy != Lenient {
		policy = Strict
	}
	return &Analyzer{
		parser:     parser,
		discoverer: discoverer,
		aggregator: aggregator,
		policy:     policy,
		logger:     logger,
	}
}

// Run analyzes the sitemap named by input. A logger attached to ctx with
// zerolog's WithContext takes precedence over the Analyzer's own.
func (a *Analyzer) Run(ctx context.Context, input string) (report *Report, err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveAnalysis(start, err)
	}()

	logger := a.logger
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		logger = *l
	}

	logger.Info().Str("input", input).Msg("Starting sitemap analysis")

	res, err := a.resolve(ctx, input)
	if err != nil {
		logger.Error().Err(err).Str("input", input).Msg("Failed to resolve sitemap")
		return nil, err
	}
	for _, s := range res.Skipped {
		logger.Warn().Str("sitemap", s.URL).Str("reason", s.Reason).Str("detail", s.Detail).Msg("Skipped sub-sitemap")
	}
	if len(res.URLs) == 0 {
		return nil, &NoURLsError{URL: res.SitemapURL}
	}
	logger.Info().Str("sitemap", res.SitemapURL).Int("urls", len(res.URLs)).Int("fetched", res.Fetched).Msg("Parsed sitemap")

	stats := analysis.Analyze(res.URLs)
	logger.Info().
		Int("total_urls", stats.TotalURLs).
		Int("domains", len(stats.Domains)).
		Str("main_domain", stats.MainDomain).
		Float64("avg_depth", stats.AvgDepth).
		Msg("Analyzed sitemap structure")

	report = &Report{
		SitemapURL: res.SitemapURL,
		Stats:      stats,
		Skipped:    res.Skipped,
		Fetched:    res.Fetched,
	}

	clusters, err := a.aggregator.IdentifyClusters(ctx, res.URLs, stats)
	if err != nil {
		var genErr *cluster.GenerationError
		if a.policy != Lenient || ctx.Err() != nil || !errors.As(err, &genErr) {
			logger.Error().Err(err).Msg("Cluster generation failed")
			return nil, err
		}
		logger.Warn().Err(err).Msg("Cluster generation failed, using heuristic clustering")
		metrics.ClusterFallbacks.Inc()
		clusters = cluster.Heuristic(res.URLs)
		report.UsedFallback = true
	}

	report.Clusters = clusters
	report.GeneratedAt = time.Now().UTC()
	logger.Info().Int("clusters", clusters.Len()).Bool("fallback", report.UsedFallback).Msg("Identified topical clusters")
	return report, nil
}

func (a *Analyzer) resolve(ctx context.Context, input string) (*sitemap.Result, error) {
	if a.discoverer == nil {
		return a.parser.Resolve(ctx, sitemap.NormalizeInput(input))
	}
	candidates, err := a.discoverer.Candidates(ctx, input)
	if err != nil {
		return nil, err
	}
	return a.parser.ResolveFirst(ctx, candidates)
}
