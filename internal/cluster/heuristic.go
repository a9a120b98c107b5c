package cluster

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/romangod6/sitemap-clusters/internal/analysis"
	"github.com/romangod6/sitemap-clusters/internal/models"
)

const (
	maxFrequentSegments  = 7
	minHeuristicCluster  = 3
	maxHeuristicClusters = 5
	exampleLimit         = 3
)

// Segments that never describe content.
var ignoredSegments = map[string]bool{
	"tag":         true,
	"wp-content":  true,
	"wp-includes": true,
	"wp-admin":    true,
	"category":    true,
	"feed":        true,
	"author":      true,
}

type contentPattern struct {
	key      string
	name     string
	keywords []string
}

// contentPatterns are checked in order; the first pattern with a keyword
// contained in any path segment wins.
var contentPatterns = []contentPattern{
	{key: "product", name: "Product Pages", keywords: []string{"product", "shop", "store"}},
	{key: "recipe", name: "Recipes", keywords: []string{"recipe"}},
	{key: "review", name: "Reviews", keywords: []string{"review"}},
	{key: "guide", name: "Guides", keywords: []string{"guide", "how-to", "howto"}},
	{key: "tutorial", name: "Tutorials", keywords: []string{"tutorial", "course", "lesson"}},
	{key: "news", name: "News & Press", keywords: []string{"news", "press"}},
	{key: "blog", name: "Blog Posts", keywords: []string{"blog", "post", "article"}},
	{key: "service", name: "Services", keywords: []string{"service"}},
	{key: "location", name: "Location Pages", keywords: []string{"location", "city", "near-me"}},
	{key: "faq", name: "Help & FAQ", keywords: []string{"faq", "help", "support"}},
	{key: "docs", name: "Documentation", keywords: []string{"docs", "documentation", "kb"}},
	{key: "event", name: "Events", keywords: []string{"event", "webinar"}},
	{key: "case-study", name: "Case Studies", keywords: []string{"case-stud", "customer"}},
}

var (
	friendlyNames = func() map[string]string {
		names := map[string]string{"general": "General Pages"}
		for _, p := range contentPatterns {
			names[p.key] = p.name
		}
		return names
	}()

	yearRe  = regexp.MustCompile(`^\d{4}$`)
	monthRe = regexp.MustCompile(`^\d{2}$`)

	separatorReplacer = strings.NewReplacer("-", " ", "_", " ", ".", " ", "+", " ")
	titleCaser        = cases.Title(language.English)
)

// Heuristic groups records into at most five clusters using URL path rules
// only. The result depends on nothing but the input order and content.
func Heuristic(records []models.URLRecord) models.ClusterSet {
	return clusterLocs(models.Locs(records))
}

func clusterLocs(locs []string) models.ClusterSet {
	components := make([][]string, len(locs))
	for i, loc := range locs {
		components[i] = analysis.PathComponents(loc)
	}

	frequent := frequentFirstSegments(components)

	var order []string
	buckets := make(map[string][]string)
	for i, loc := range locs {
		if loc == "" {
			continue
		}
		key := bucketFor(components[i], frequent)
		if _, ok := buckets[key]; !ok {
			order = append(order, key)
		}
		buckets[key] = append(buckets[key], loc)
	}

	clusters := make([]models.Cluster, 0, len(order))
	for _, key := range order {
		urls := buckets[key]
		if len(urls) < minHeuristicCluster {
			continue
		}
		clusters = append(clusters, heuristicCluster(key, urls))
	}

	sort.SliceStable(clusters, func(i, j int) bool {
		return clusters[i].Count > clusters[j].Count
	})
	if len(clusters) > maxHeuristicClusters {
		clusters = clusters[:maxHeuristicClusters]
	}
	return models.ClusterSet{Clusters: clusters}
}

// frequentFirstSegments returns up to seven of the most common first path
// segments. Ties keep the order in which segments were first seen.
func frequentFirstSegments(components [][]string) map[string]bool {
	counts := make(map[string]int)
	var seen []string
	for _, parts := range components {
		if len(parts) == 0 {
			continue
		}
		first := strings.ToLower(parts[0])
		if ignoredSegments[first] || isDateArchive(parts) {
			continue
		}
		if _, ok := counts[first]; !ok {
			seen = append(seen, first)
		}
		counts[first]++
	}

	sort.SliceStable(seen, func(i, j int) bool {
		return counts[seen[i]] > counts[seen[j]]
	})
	if len(seen) > maxFrequentSegments {
		seen = seen[:maxFrequentSegments]
	}

	frequent := make(map[string]bool, len(seen))
	for _, s := range seen {
		frequent[s] = true
	}
	return frequent
}

// bucketFor picks the bucket for one URL. Year/month archive paths go to the
// blog bucket before any other rule so a frequent year never forms its own
// bucket.
func bucketFor(parts []string, frequent map[string]bool) string {
	if isDateArchive(parts) {
		return "blog"
	}

	if len(parts) > 0 {
		if first := strings.ToLower(parts[0]); frequent[first] {
			return first
		}
	}

	for _, p := range contentPatterns {
		for _, part := range parts {
			lower := strings.ToLower(part)
			for _, kw := range p.keywords {
				if strings.Contains(lower, kw) {
					return p.key
				}
			}
		}
	}

	return "general"
}

func isDateArchive(parts []string) bool {
	return len(parts) >= 2 && yearRe.MatchString(parts[0]) && monthRe.MatchString(parts[1])
}

func heuristicCluster(key string, urls []string) models.Cluster {
	title := HeuristicTitle(key)
	return models.Cluster{
		Title:           title,
		Description:     fmt.Sprintf("Pages grouped under %s, identified from shared URL path patterns.", title),
		Count:           len(urls),
		Examples:        firstN(urls, exampleLimit),
		SEOSignificance: fmt.Sprintf("A consistent %s section signals topical depth to search engines and gives internal links a clear hub.", title),
		ArticleIdeas:    []models.ArticleIdea{},
	}
}

// HeuristicTitle returns the friendly name for a known bucket key, or the key
// title-cased with a "Content" suffix.
func HeuristicTitle(key string) string {
	if name, ok := friendlyNames[key]; ok {
		return name
	}
	words := strings.Join(strings.Fields(separatorReplacer.Replace(key)), " ")
	if words == "" {
		return "General Pages"
	}
	return titleCaser.String(words) + " Content"
}
