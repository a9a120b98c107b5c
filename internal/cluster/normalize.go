package cluster

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/romangod6/sitemap-clusters/internal/models"
)

const (
	DefaultTitle           = "Unnamed Cluster"
	DefaultDescription     = "No description was provided for this cluster."
	DefaultSEOSignificance = "No SEO significance was provided for this cluster."

	articleIdeaLimit = 5
)

var digitsRe = regexp.MustCompile(`\d+`)

var placeholderIdeas = []struct {
	headline    string
	description string
}{
	{"The Complete Guide to %s", "A pillar article covering the core topics of %s."},
	{"%s: Frequently Asked Questions", "Answers to the questions readers ask most about %s."},
	{"Getting Started with %s", "An introduction for readers new to %s."},
	{"Common Mistakes in %s and How to Avoid Them", "Practical pitfalls and fixes related to %s."},
	{"%s Trends to Watch", "A forward-looking piece on where %s is heading."},
}

// Normalize turns a raw generator record into a structurally complete
// Cluster. Missing or mistyped fields get defaults; it never fails. When no
// examples can be extracted the first URLs of batch are used instead.
func Normalize(raw RawCluster, batch []string) models.Cluster {
	title := stringField(raw, "title")
	if title == "" {
		title = DefaultTitle
	}

	description := stringField(raw, "description")
	if description == "" {
		description = DefaultDescription
	}

	seo := stringField(raw, "seo_significance")
	if seo == "" {
		seo = DefaultSEOSignificance
	}

	examples := normalizeExamples(raw["examples"], exampleLimit)
	if len(examples) == 0 {
		examples = firstN(batch, exampleLimit)
	}

	ideas := normalizeIdeas(raw["article_ideas"], articleIdeaLimit)
	if len(ideas) == 0 {
		ideas = PlaceholderIdeas(title)
	}

	return models.Cluster{
		Title:           title,
		Description:     description,
		Count:           NormalizeCount(raw["count"]),
		Examples:        examples,
		SEOSignificance: seo,
		ArticleIdeas:    ideas,
	}
}

// NormalizeCount coerces a count value to a non-negative integer. Strings
// yield their first run of digits ("~120" is 120); anything else is 0.
func NormalizeCount(v any) int {
	switch n := v.(type) {
	case int:
		return max(n, 0)
	case int64:
		return max(int(n), 0)
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) || n < 0 {
			return 0
		}
		return int(n)
	case json.Number:
		return NormalizeCount(n.String())
	case string:
		m := digitsRe.FindString(n)
		if m == "" {
			return 0
		}
		count, err := strconv.Atoi(m)
		if err != nil {
			return 0
		}
		return count
	default:
		return 0
	}
}

// PlaceholderIdeas returns five generic article ideas for a cluster title.
func PlaceholderIdeas(title string) []models.ArticleIdea {
	ideas := make([]models.ArticleIdea, 0, len(placeholderIdeas))
	for _, p := range placeholderIdeas {
		ideas = append(ideas, models.ArticleIdea{
			Headline:    fmt.Sprintf(p.headline, title),
			Description: fmt.Sprintf(p.description, title),
		})
	}
	return ideas
}

func stringField(raw RawCluster, key string) string {
	s, _ := raw[key].(string)
	return strings.TrimSpace(s)
}

func normalizeExamples(v any, limit int) []string {
	var items []any
	switch list := v.(type) {
	case []any:
		items = list
	case []string:
		for _, s := range list {
			items = append(items, s)
		}
	case string:
		items = []any{list}
	}

	seen := make(map[string]bool)
	examples := make([]string, 0, limit)
	for _, item := range items {
		if len(examples) == limit {
			break
		}
		loc := exampleURL(item)
		if loc == "" || seen[loc] {
			continue
		}
		seen[loc] = true
		examples = append(examples, loc)
	}
	return examples
}

func exampleURL(item any) string {
	switch e := item.(type) {
	case string:
		return strings.TrimSpace(e)
	case map[string]any:
		for _, key := range []string{"url", "loc"} {
			if s, ok := e[key].(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

func normalizeIdeas(v any, limit int) []models.ArticleIdea {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	ideas := make([]models.ArticleIdea, 0, limit)
	for _, item := range list {
		if len(ideas) == limit {
			break
		}
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		headline, _ := m["headline"].(string)
		headline = strings.TrimSpace(headline)
		if headline == "" {
			continue
		}
		description, _ := m["description"].(string)
		ideas = append(ideas, models.ArticleIdea{
			Headline:    headline,
			Description: strings.TrimSpace(description),
		})
	}
	return ideas
}

func firstN(urls []string, n int) []string {
	out := make([]string, 0, n)
	for _, u := range urls {
		if len(out) == n {
			break
		}
		out = append(out, u)
	}
	return out
}
