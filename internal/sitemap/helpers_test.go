package sitemap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
)

// fakeFetcher serves documents from memory and records every requested URL.
type fakeFetcher struct {
	mu    sync.Mutex
	docs  map[string]string
	calls []string
}

func newFakeFetcher(docs map[string]string) *fakeFetcher {
	return &fakeFetcher{docs: docs}
}

func (f *fakeFetcher) Fetch(_ context.Context, rawURL string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, rawURL)
	doc, ok := f.docs[rawURL]
	if !ok {
		return "", &FetchError{URL: rawURL, StatusCode: http.StatusNotFound, Err: errors.New("Not Found")}
	}
	return doc, nil
}

func (f *fakeFetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func urlSet(locs ...string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">` + "\n")
	for _, loc := range locs {
		fmt.Fprintf(&b, "  <url><loc>%s</loc></url>\n", loc)
	}
	b.WriteString("</urlset>")
	return b.String()
}

func sitemapIndex(locs ...string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">` + "\n")
	for _, loc := range locs {
		fmt.Fprintf(&b, "  <sitemap><loc>%s</loc></sitemap>\n", loc)
	}
	b.WriteString("</sitemapindex>")
	return b.String()
}
