package sitemap

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/romangod6/sitemap-clusters/internal/metrics"
	"github.com/romangod6/sitemap-clusters/internal/models"
)

const (
	DefaultMaxIndexEntries = 3
	DefaultMaxDepth        = 5
)

type ParserConfig struct {
	// MaxIndexEntries caps how many entries of each sitemap index are
	// expanded. Zero means no cap.
	MaxIndexEntries int
	// MaxDepth caps index nesting below the primary document. Zero means no cap.
	MaxDepth int
}

// DefaultParserConfig returns the recursion limits used when none are configured.
func DefaultParserConfig() ParserConfig {
	return ParserConfig{
		MaxIndexEntries: DefaultMaxIndexEntries,
		MaxDepth:        DefaultMaxDepth,
	}
}

// Result is the flattened outcome of parsing a sitemap and its sub-sitemaps.
type Result struct {
	SitemapURL string
	URLs       []models.URLRecord
	Skipped    []models.SkippedSitemap
	// Fetched counts documents downloaded, the primary one included.
	Fetched int
}

// Parser turns sitemap content into URL records, following sitemap indexes
// through its fetcher. Failures below the primary document are recorded in
// Result.Skipped rather than returned.
type Parser struct {
	fetcher ContentFetcher
	config  ParserConfig
	logger  zerolog.Logger
}

func NewParser(fetcher ContentFetcher, config ParserConfig, logger zerolog.Logger) *Parser {
	return &Parser{
		fetcher: fetcher,
		config:  config,
		logger:  logger,
	}
}

// Parse returns the URL records in raw, expanding index entries recursively.
// An empty URL set yields an empty list and no error.
func (p *Parser) Parse(ctx context.Context, raw string) ([]models.URLRecord, error) {
	res, err := p.ParseContent(ctx, "", raw)
	if err != nil {
		return nil, err
	}
	return res.URLs, nil
}

// ParseContent parses raw as the document found at source. source may be
// empty; when set it seeds the cycle guard.
func (p *Parser) ParseContent(ctx context.Context, source, raw string) (*Result, error) {
	res := &Result{SitemapURL: source}
	visited := make(map[string]struct{})
	if source != "" {
		visited[visitKey(source)] = struct{}{}
	}
	if err := p.expand(ctx, source, raw, 0, visited, res); err != nil {
		return nil, err
	}
	p.logger.Debug().Int("urls", len(res.URLs)).Int("skipped", len(res.Skipped)).Msg("Extracted URLs from sitemap")
	return res, nil
}

// Resolve fetches and parses the sitemap at sitemapURL. Errors on the primary
// document are returned as *FetchError or *ParseError.
func (p *Parser) Resolve(ctx context.Context, sitemapURL string) (*Result, error) {
	target := NormalizeURL(sitemapURL)
	raw, err := p.fetcher.Fetch(ctx, target)
	if err != nil {
		return nil, err
	}
	res, err := p.ParseContent(ctx, target, raw)
	if err != nil {
		return nil, err
	}
	res.Fetched++
	return res, nil
}

// ResolveFirst resolves candidates in order and returns the first result with
// at least one URL. If every candidate parses but is empty the first parsed
// result is returned; if none parses the last error is returned.
func (p *Parser) ResolveFirst(ctx context.Context, candidates []string) (*Result, error) {
	var (
		firstEmpty *Result
		lastErr    error
	)
	for _, candidate := range candidates {
		res, err := p.Resolve(ctx, candidate)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			p.logger.Debug().Err(err).Str("sitemap", candidate).Msg("Candidate sitemap failed")
			lastErr = err
			continue
		}
		if len(res.URLs) > 0 {
			return res, nil
		}
		if firstEmpty == nil {
			firstEmpty = res
		}
	}
	if firstEmpty != nil {
		return firstEmpty, nil
	}
	if lastErr == nil {
		lastErr = errors.New("no sitemap candidates")
	}
	return nil, lastErr
}

func (p *Parser) expand(ctx context.Context, source, raw string, depth int, visited map[string]struct{}, res *Result) error {
	doc, err := Decode(raw)
	if err != nil {
		return &ParseError{URL: source, Err: err}
	}

	if doc.Kind == KindURLSet {
		res.URLs = append(res.URLs, doc.URLs...)
		return nil
	}

	p.logger.Debug().Str("sitemap", source).Int("entries", len(doc.Sitemaps)).Msg("Processing sitemap index")

	for i, child := range doc.Sitemaps {
		if p.config.MaxIndexEntries > 0 && i >= p.config.MaxIndexEntries {
			p.skip(res, child, models.SkipCapacity, nil)
			continue
		}
		if child == "" {
			p.skip(res, child, models.SkipMissingLoc, nil)
			continue
		}

		key := visitKey(child)
		if _, seen := visited[key]; seen {
			p.skip(res, child, models.SkipCycle, nil)
			continue
		}
		if p.config.MaxDepth > 0 && depth+1 > p.config.MaxDepth {
			p.skip(res, child, models.SkipDepth, nil)
			continue
		}
		visited[key] = struct{}{}

		content, err := p.fetcher.Fetch(ctx, child)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.skip(res, child, models.SkipFetchError, err)
			continue
		}
		res.Fetched++

		if err := p.expand(ctx, child, content, depth+1, visited, res); err != nil {
			var parseErr *ParseError
			if errors.As(err, &parseErr) && parseErr.URL == child {
				p.skip(res, child, models.SkipParseError, err)
				continue
			}
			return err
		}
	}
	return nil
}

func (p *Parser) skip(res *Result, loc, reason string, err error) {
	skipped := models.SkippedSitemap{URL: loc, Reason: reason}
	event := p.logger.Warn()
	if reason == models.SkipCapacity {
		event = p.logger.Info()
	}
	if err != nil {
		skipped.Detail = err.Error()
		event = event.Err(err)
	}
	res.Skipped = append(res.Skipped, skipped)
	metrics.SitemapsSkipped.WithLabelValues(reason).Inc()
	event.Str("sitemap", loc).Str("reason", reason).Msg("Skipping sub-sitemap")
}

// visitKey normalises a sitemap location for the cycle guard.
func visitKey(loc string) string {
	loc = NormalizeURL(loc)
	u, err := url.Parse(loc)
	if err != nil {
		return loc
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String()
}
