package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romangod6/sitemap-clusters/internal/analyzer"
)

func TestAnalyzeCommandFallback(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?><urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`)
		for i := 0; i < 6; i++ {
			fmt.Fprintf(w, "<url><loc>%s/blog/post-%d</loc></url>", srv.URL, i)
		}
		fmt.Fprint(w, "</urlset>")
	}))
	defer srv.Close()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("clustering:\n  mode: fallback\nlog:\n  level: error\n"), 0o644))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"analyze", "--config-dir", dir, "--no-discover", srv.URL + "/sitemap.xml"})
	require.NoError(t, rootCmd.Execute())

	var report analyzer.Report
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.Equal(t, 6, report.Stats.TotalURLs)
	require.NotEmpty(t, report.Clusters.Clusters)
	assert.Equal(t, "Blog Posts", report.Clusters.Clusters[0].Title)
}
