package cluster

import (
	"context"

	"github.com/romangod6/sitemap-clusters/internal/models"
)

// RawCluster is one cluster record as returned by a generator, before
// normalization. Any field may be missing or have an unexpected type.
type RawCluster = map[string]any

// Generator produces candidate clusters for one batch of URLs.
type Generator interface {
	GenerateClusters(ctx context.Context, urls []string, stats models.SitemapStats, target int) ([]RawCluster, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, urls []string, stats models.SitemapStats, target int) ([]RawCluster, error)

func (f GeneratorFunc) GenerateClusters(ctx context.Context, urls []string, stats models.SitemapStats, target int) ([]RawCluster, error) {
	return f(ctx, urls, stats, target)
}

// FallbackGenerator clusters each batch with the path heuristics. It never
// touches the network and always returns the same output for the same input.
type FallbackGenerator struct{}

func (FallbackGenerator) GenerateClusters(ctx context.Context, urls []string, _ models.SitemapStats, _ int) ([]RawCluster, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	set := clusterLocs(urls)
	raws := make([]RawCluster, 0, len(set.Clusters))
	for _, c := range set.Clusters {
		raws = append(raws, ToRaw(c))
	}
	return raws, nil
}

// ToRaw converts a cluster to its raw record form. Empty article ideas are
// left out so normalization treats them as absent.
func ToRaw(c models.Cluster) RawCluster {
	examples := make([]any, 0, len(c.Examples))
	for _, e := range c.Examples {
		examples = append(examples, e)
	}
	raw := RawCluster{
		"title":            c.Title,
		"description":      c.Description,
		"count":            c.Count,
		"examples":         examples,
		"seo_significance": c.SEOSignificance,
	}
	if len(c.ArticleIdeas) > 0 {
		ideas := make([]any, 0, len(c.ArticleIdeas))
		for _, idea := range c.ArticleIdeas {
			ideas = append(ideas, map[string]any{
				"headline":    idea.Headline,
				"description": idea.Description,
			})
		}
		raw["article_ideas"] = ideas
	}
	return raw
}
