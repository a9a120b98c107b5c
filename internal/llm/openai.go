// Package llm implements the live cluster generator on top of an
// OpenAI-compatible chat completions API.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/romangod6/sitemap-clusters/internal/cluster"
	"github.com/romangod6/sitemap-clusters/internal/models"
)

const (
	DefaultAPIURL      = "https://api.openai.com/v1"
	DefaultModel       = "gpt-4o"
	DefaultTemperature = 0.5
	DefaultMaxTokens   = 2000
	DefaultTimeout     = 120 * time.Second

	systemPrompt = "You are an SEO expert analyzing website sitemaps to identify topical clusters."
)

type Config struct {
	APIURL      string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// LiveGenerator asks a chat completions endpoint for clusters in JSON mode.
type LiveGenerator struct {
	client      *http.Client
	apiURL      string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	logger      zerolog.Logger
}

var _ cluster.Generator = (*LiveGenerator)(nil)

func NewLiveGenerator(cfg Config, logger zerolog.Logger) *LiveGenerator {
	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &LiveGenerator{
		client:      &http.Client{Timeout: timeout},
		apiURL:      apiURL,
		apiKey:      cfg.APIKey,
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   maxTokens,
		logger:      logger,
	}
}

func (g *LiveGenerator) GenerateClusters(ctx context.Context, urls []string, stats models.SitemapStats, target int) ([]cluster.RawCluster, error) {
	prompt, err := BuildPrompt(urls, stats, target)
	if err != nil {
		return nil, err
	}

	reqBody := chatRequest{
		Model: g.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		ResponseFormat: &responseFormat{Type: "json_object"},
		Temperature:    g.temperature,
		MaxTokens:      g.maxTokens,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("openai: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.apiURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("openai: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai: read response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("openai: unexpected status %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var completion chatResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return nil, fmt.Errorf("openai: decode response: %w: %w", cluster.ErrMalformedResponse, err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("openai: response has no choices: %w", cluster.ErrMalformedResponse)
	}

	raws, err := ParseClusters(completion.Choices[0].Message.Content)
	if err != nil {
		g.logger.Debug().Str("content", truncate(completion.Choices[0].Message.Content, 500)).Msg("Unusable completion content")
		return nil, err
	}

	g.logger.Debug().
		Int("urls", len(urls)).
		Int("clusters", len(raws)).
		Dur("elapsed", time.Since(start)).
		Msg("Generated clusters")
	return raws, nil
}

// ParseClusters reads the "clusters" array out of a JSON completion.
func ParseClusters(content string) ([]cluster.RawCluster, error) {
	var payload map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &payload); err != nil {
		return nil, fmt.Errorf("openai: decode content: %w: %w", cluster.ErrMalformedResponse, err)
	}

	list, ok := payload["clusters"].([]any)
	if !ok {
		return nil, &cluster.ValidationError{Reason: "response has no clusters array"}
	}

	raws := make([]cluster.RawCluster, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			raws = append(raws, m)
		}
	}
	if len(raws) == 0 && len(list) > 0 {
		return nil, &cluster.ValidationError{Reason: "clusters array holds no objects"}
	}
	return raws, nil
}

// BuildPrompt renders the user prompt for one batch.
func BuildPrompt(urls []string, stats models.SitemapStats, target int) (string, error) {
	if len(urls) == 0 {
		return "", errors.New("openai: no URLs to analyze")
	}
	list, err := json.MarshalIndent(urls, "", "  ")
	if err != nil {
		return "", fmt.Errorf("openai: marshal urls: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "I need to analyze a website sitemap to identify the top %d SEO topical clusters.\n\n", target)
	b.WriteString("Here are some details about the sitemap:\n")
	fmt.Fprintf(&b, "- Total URLs: %d\n", stats.TotalURLs)
	fmt.Fprintf(&b, "- Main domain: %s\n", stats.MainDomain)
	fmt.Fprintf(&b, "- Average path depth: %.2f\n", stats.AvgDepth)
	if stats.HasLastMod {
		fmt.Fprintf(&b, "- Last modified range: %s to %s\n", stats.OldestPage, stats.NewestPage)
	}
	fmt.Fprintf(&b, "\nHere is a batch of %d URLs from the sitemap:\n%s\n\n", len(urls), list)
	fmt.Fprintf(&b, `Based on SEO best practices and content organization:
1. Identify up to %d topical clusters present in these URLs
2. Count the approximate number of URLs in this batch that belong to each cluster
3. List 3 example URLs for each cluster
4. Provide a brief description of each cluster and its SEO significance
5. Suggest a descriptive title for each cluster
6. Suggest 5 article ideas for each cluster, each with a headline and a short description

Respond with JSON in the following format:
{
  "clusters": [
    {
      "title": "Cluster title",
      "description": "Brief description of this topical cluster",
      "count": 0,
      "examples": ["example-url-1", "example-url-2", "example-url-3"],
      "seo_significance": "Why this cluster is significant for SEO",
      "article_ideas": [{"headline": "Article headline", "description": "What the article covers"}]
    }
  ]
}
`, target)
	return b.String(), nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
