package sitemap

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romangod6/sitemap-clusters/internal/models"
)

func newTestFetcher() *Fetcher {
	return NewFetcher(FetcherConfig{Timeout: 5 * time.Second}, zerolog.Nop())
}

func gzipBytes(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestFetcherSendsBrowserHeaders(t *testing.T) {
	var gotUA, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(urlSet("https://example.com/a")))
	}))
	defer srv.Close()

	body, err := newTestFetcher().Fetch(context.Background(), srv.URL+"/sitemap.xml")
	require.NoError(t, err)

	assert.Contains(t, body, "https://example.com/a")
	assert.Equal(t, DefaultUserAgent, gotUA)
	assert.Equal(t, DefaultAccept, gotAccept)
}

func TestFetcherDecompressesGzip(t *testing.T) {
	payload := urlSet("https://example.com/zipped")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-gzip")
		_, _ = w.Write(gzipBytes(t, payload))
	}))
	defer srv.Close()

	body, err := newTestFetcher().Fetch(context.Background(), srv.URL+"/sitemap.xml.gz")
	require.NoError(t, err)
	assert.Equal(t, payload, body)
}

func TestFetcherConvertsJSONSitemap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"url": "https://example.com/a?x=1&y=2", "lastmod": "2024-02-01"},
			{"loc": "https://example.com/b", "priority": 0.5},
			"https://example.com/c",
			{"title": "no url"}
		]`))
	}))
	defer srv.Close()

	body, err := newTestFetcher().Fetch(context.Background(), srv.URL+"/sitemap.json")
	require.NoError(t, err)

	doc, err := Decode(body)
	require.NoError(t, err)
	assert.Equal(t, []models.URLRecord{
		{Loc: "https://example.com/a?x=1&y=2", LastMod: "2024-02-01"},
		{Loc: "https://example.com/b", Priority: "0.5"},
		{Loc: "https://example.com/c"},
	}, doc.URLs)
}

func TestFetcherErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := newTestFetcher().Fetch(context.Background(), srv.URL+"/sitemap.xml")

	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, http.StatusNotFound, fetchErr.StatusCode)
	assert.Equal(t, srv.URL+"/sitemap.xml", fetchErr.URL)
}

func TestFetcherEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte("   \n\t "))
	}))
	defer srv.Close()

	_, err := newTestFetcher().Fetch(context.Background(), srv.URL+"/sitemap.xml")
	assert.ErrorIs(t, err, ErrEmptyBody)
}

func TestFetcherLatin1Sitemap(t *testing.T) {
	latin1 := "<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?>\n" +
		"<urlset xmlns=\"http://www.sitemaps.org/schemas/sitemap/0.9\"><url><loc>https://ex.com/caf\xe9</loc></url></urlset>"

	tests := []struct {
		name        string
		contentType string
	}{
		{"charset in header and prolog", "application/xml; charset=ISO-8859-1"},
		{"charset in prolog only", "application/xml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				_, _ = w.Write([]byte(latin1))
			}))
			defer srv.Close()

			body, err := newTestFetcher().Fetch(context.Background(), srv.URL+"/sitemap.xml")
			require.NoError(t, err)
			assert.Contains(t, body, `encoding="UTF-8"`)

			parser := NewParser(newTestFetcher(), DefaultParserConfig(), zerolog.Nop())
			res, err := parser.Resolve(context.Background(), srv.URL+"/sitemap.xml")
			require.NoError(t, err)
			assert.Equal(t, []string{"https://ex.com/café"}, models.Locs(res.URLs))
		})
	}
}

func TestFetcherBodyTooLarge(t *testing.T) {
	payload := urlSet("https://example.com/a", "https://example.com/b", "https://example.com/c")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(payload))
	}))
	defer srv.Close()

	f := NewFetcher(FetcherConfig{Timeout: 5 * time.Second, MaxBodySize: 64}, zerolog.Nop())
	_, err := f.Fetch(context.Background(), srv.URL+"/sitemap.xml")

	require.ErrorIs(t, err, ErrBodyTooLarge)
	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, srv.URL+"/sitemap.xml", fetchErr.URL)

	f = NewFetcher(FetcherConfig{Timeout: 5 * time.Second, MaxBodySize: len(payload) + 1}, zerolog.Nop())
	body, err := f.Fetch(context.Background(), srv.URL+"/sitemap.xml")
	require.NoError(t, err)
	assert.Equal(t, payload, body)
}

func TestToUTF8(t *testing.T) {
	assert.Equal(t, `<?xml version="1.0" encoding='UTF-8'?><a/>`,
		string(toUTF8([]byte(`<?xml version="1.0" encoding='windows-1252'?><a/>`), "")))
	assert.Equal(t, "<?xml version=\"1.0\" encoding=\"UTF-8\"?><a>\u00e9</a>",
		string(toUTF8([]byte("<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?><a>\xe9</a>"), "")))
	assert.Equal(t, "<a>plain</a>", string(toUTF8([]byte("<a>plain</a>"), "text/xml")))
}

func TestResolveOverHTTP(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/sitemap_index.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(sitemapIndex(srv.URL+"/posts.xml", srv.URL+"/pages.xml.gz")))
	})
	mux.HandleFunc("/posts.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/xml; charset=utf-8")
		_, _ = w.Write([]byte(urlSet("https://example.com/blog/a", "https://example.com/blog/b")))
	})
	mux.HandleFunc("/pages.xml.gz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(gzipBytes(t, urlSet("https://example.com/about")))
	})

	parser := NewParser(newTestFetcher(), DefaultParserConfig(), zerolog.Nop())
	res, err := parser.Resolve(context.Background(), srv.URL+"/sitemap_index.xml")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"https://example.com/blog/a",
		"https://example.com/blog/b",
		"https://example.com/about",
	}, models.Locs(res.URLs))
	assert.Empty(t, res.Skipped)
	assert.Equal(t, 3, res.Fetched)
}

func TestNormalizeURL(t *testing.T) {
	assert.Equal(t, "https://example.com/sitemap.xml", NormalizeURL("  //example.com/sitemap.xml "))
	assert.Equal(t, "http://example.com/sitemap.xml", NormalizeURL("http://example.com/sitemap.xml"))
}
