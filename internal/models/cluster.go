package models

// ArticleIdea is a suggested piece of content for a cluster.
type ArticleIdea struct {
	Headline    string `json:"headline"`
	Description string `json:"description"`
}

// Cluster is a group of sitemap URLs sharing a content topic.
type Cluster struct {
	Title           string        `json:"title"`
	Description     string        `json:"description"`
	Count           int           `json:"count"`
	Examples        []string      `json:"examples"`
	SEOSignificance string        `json:"seo_significance"`
	ArticleIdeas    []ArticleIdea `json:"article_ideas"`
}

// ClusterSet is the ranked list of clusters produced for one sitemap.
type ClusterSet struct {
	Clusters []Cluster `json:"clusters"`
}

// Len returns the number of clusters in the set.
func (cs ClusterSet) Len() int {
	return len(cs.Clusters)
}
