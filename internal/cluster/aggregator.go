package cluster

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/pmezard/go-difflib/difflib"
	"github.com/rs/zerolog"

	"github.com/romangod6/sitemap-clusters/internal/metrics"
	"github.com/romangod6/sitemap-clusters/internal/models"
)

const (
	DefaultBatchSize      = 100
	DefaultMaxRetries     = 3
	DefaultRetryDelay     = 2 * time.Second
	DefaultMergeThreshold = 0.8

	minTargetClusters = 5
	maxTargetClusters = 15
	urlsPerCluster    = 30

	mergedExampleLimit = 5
	mergedIdeaLimit    = 10
)

// Options tune batching, retries and cross-batch merging.
type Options struct {
	BatchSize         int
	MaxRetries        int
	RetryDelay        time.Duration
	MergeThreshold    float64
	SmallerBatchRetry bool
}

func DefaultOptions() Options {
	return Options{
		BatchSize:         DefaultBatchSize,
		MaxRetries:        DefaultMaxRetries,
		RetryDelay:        DefaultRetryDelay,
		MergeThreshold:    DefaultMergeThreshold,
		SmallerBatchRetry: true,
	}
}

// Aggregator drives a Generator over fixed-size batches and merges the
// normalized results into one ranked ClusterSet.
type Aggregator struct {
	generator Generator
	options   Options
	logger    zerolog.Logger
}

func NewAggregator(generator Generator, options Options, logger zerolog.Logger) *Aggregator {
	if options.BatchSize <= 0 {
		options.BatchSize = DefaultBatchSize
	}
	if options.MaxRetries < 0 {
		options.MaxRetries = 0
	}
	if options.RetryDelay < 0 {
		options.RetryDelay = 0
	}
	if options.MergeThreshold <= 0 {
		options.MergeThreshold = DefaultMergeThreshold
	}
	return &Aggregator{
		generator: generator,
		options:   options,
		logger:    logger,
	}
}

// TargetClusterCount is total/30 rounded half to even, clamped to [5, 15].
func TargetClusterCount(total int) int {
	target := int(math.RoundToEven(float64(total) / urlsPerCluster))
	return min(max(target, minTargetClusters), maxTargetClusters)
}

// IdentifyClusters partitions records into batches, asks the generator for
// clusters per batch and merges them. A batch that keeps failing aborts the
// whole run with a *GenerationError.
func (a *Aggregator) IdentifyClusters(ctx context.Context, records []models.URLRecord, stats models.SitemapStats) (models.ClusterSet, error) {
	var urls []string
	for _, r := range records {
		if r.Loc != "" {
			urls = append(urls, r.Loc)
		}
	}
	if len(urls) == 0 {
		return models.ClusterSet{Clusters: []models.Cluster{}}, nil
	}

	target := TargetClusterCount(len(urls))
	batches := Batches(urls, a.options.BatchSize)
	a.logger.Info().
		Int("urls", len(urls)).
		Int("batches", len(batches)).
		Int("target", target).
		Msg("Identifying topical clusters")

	var aggregate []models.Cluster
	for i, batch := range batches {
		clusters, err := a.generateBatch(ctx, i, batch, stats, target)
		if err != nil {
			return models.ClusterSet{}, err
		}
		for _, c := range clusters {
			aggregate = Merge(aggregate, c, a.options.MergeThreshold)
		}
		a.logger.Debug().Int("batch", i).Int("clusters", len(clusters)).Int("aggregate", len(aggregate)).Msg("Batch merged")
	}

	return Rank(aggregate, target), nil
}

// generateBatch returns the normalized clusters for one batch. Malformed
// responses that survive every retry get one more chance as two half batches.
func (a *Aggregator) generateBatch(ctx context.Context, index int, batch []string, stats models.SitemapStats, target int) ([]models.Cluster, error) {
	attempts := 0
	policy := retrypolicy.NewBuilder[[]RawCluster]().
		WithMaxRetries(a.options.MaxRetries).
		WithDelay(a.options.RetryDelay).
		HandleIf(func(_ []RawCluster, err error) bool {
			return err != nil && ctx.Err() == nil
		}).
		ReturnLastFailure().
		OnRetry(func(e failsafe.ExecutionEvent[[]RawCluster]) {
			a.logger.Warn().
				Err(e.LastError()).
				Int("batch", index).
				Int("attempt", e.Attempts()).
				Msg("Retrying cluster generation")
		}).
		Build()

	raws, err := failsafe.With(policy).WithContext(ctx).Get(func() ([]RawCluster, error) {
		attempts++
		return a.call(ctx, batch, stats, target)
	})
	if err == nil {
		return normalizeAll(raws, batch), nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if a.options.SmallerBatchRetry && errors.Is(err, ErrMalformedResponse) && len(batch) > 1 {
		a.logger.Warn().Err(err).Int("batch", index).Int("size", len(batch)).Msg("Retrying malformed batch as two smaller batches")
		mid := len(batch) / 2
		var clusters []models.Cluster
		for _, half := range [][]string{batch[:mid], batch[mid:]} {
			attempts++
			raws, herr := a.call(ctx, half, stats, target)
			if herr != nil {
				return nil, &GenerationError{Batch: index, Attempts: attempts, Err: herr}
			}
			clusters = append(clusters, normalizeAll(raws, half)...)
		}
		return clusters, nil
	}

	return nil, &GenerationError{Batch: index, Attempts: attempts, Err: err}
}

func (a *Aggregator) call(ctx context.Context, batch []string, stats models.SitemapStats, target int) ([]RawCluster, error) {
	raws, err := a.generator.GenerateClusters(ctx, batch, stats, target)
	if err != nil {
		metrics.GenerationAttempts.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.GenerationAttempts.WithLabelValues("success").Inc()
	return raws, nil
}

func normalizeAll(raws []RawCluster, batch []string) []models.Cluster {
	clusters := make([]models.Cluster, 0, len(raws))
	for _, raw := range raws {
		clusters = append(clusters, Normalize(raw, batch))
	}
	return clusters
}

// Batches splits urls into consecutive slices of at most size elements.
func Batches(urls []string, size int) [][]string {
	if size <= 0 {
		size = DefaultBatchSize
	}
	var batches [][]string
	for start := 0; start < len(urls); start += size {
		end := min(start+size, len(urls))
		batches = append(batches, urls[start:end])
	}
	return batches
}

// TitleSimilarity is the case-insensitive sequence similarity ratio of two
// titles, between 0 and 1.
func TitleSimilarity(a, b string) float64 {
	a, b = strings.ToLower(a), strings.ToLower(b)
	if a == b {
		return 1
	}
	m := difflib.NewMatcher(strings.Split(a, ""), strings.Split(b, ""))
	return m.Ratio()
}

// Merge folds c into aggregate. If the most similar existing title scores
// above threshold the two clusters are combined, otherwise c is appended.
func Merge(aggregate []models.Cluster, c models.Cluster, threshold float64) []models.Cluster {
	best, bestScore := -1, 0.0
	for i, existing := range aggregate {
		if score := TitleSimilarity(existing.Title, c.Title); score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 || bestScore <= threshold {
		return append(aggregate, c)
	}

	target := &aggregate[best]
	target.Count += c.Count
	target.Examples = unionExamples(target.Examples, c.Examples, mergedExampleLimit)

	ideas := make([]models.ArticleIdea, 0, mergedIdeaLimit)
	for _, idea := range append(append([]models.ArticleIdea{}, target.ArticleIdeas...), c.ArticleIdeas...) {
		if len(ideas) == mergedIdeaLimit {
			break
		}
		ideas = append(ideas, idea)
	}
	target.ArticleIdeas = ideas
	return aggregate
}

// Rank sorts clusters by count, largest first, and keeps at most target.
func Rank(clusters []models.Cluster, target int) models.ClusterSet {
	ranked := append([]models.Cluster{}, clusters...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Count > ranked[j].Count
	})
	if target >= 0 && len(ranked) > target {
		ranked = ranked[:target]
	}
	return models.ClusterSet{Clusters: ranked}
}

func unionExamples(a, b []string, limit int) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, limit)
	for _, list := range [][]string{a, b} {
		for _, e := range list {
			if len(out) == limit {
				return out
			}
			if seen[e] {
				continue
			}
			seen[e] = true
			out = append(out, e)
		}
	}
	return out
}
