package sitemap

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gocolly/colly/v2"
	"github.com/rs/zerolog"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"

	"github.com/romangod6/sitemap-clusters/internal/metrics"
	"github.com/romangod6/sitemap-clusters/internal/models"
)

const (
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	DefaultAccept    = "text/html,application/xml,application/xhtml+xml,text/xml;q=0.9,*/*;q=0.8"
	DefaultTimeout   = 30 * time.Second
)

var (
	// ErrEmptyBody is wrapped by FetchError when the server returned no content.
	ErrEmptyBody = errors.New("empty response from server")
	// ErrBodyTooLarge is wrapped by FetchError when the body reached the size limit.
	ErrBodyTooLarge = errors.New("response body exceeds size limit")
)

var (
	gzipMagic      = []byte{0x1f, 0x8b}
	encodingDeclRe = regexp.MustCompile(`^(\x{FEFF}?\s*<\?xml[^>]*?encoding\s*=\s*["'])([^"']*)(["'])`)
)

// ContentFetcher retrieves the raw text of a sitemap document.
type ContentFetcher interface {
	Fetch(ctx context.Context, rawURL string) (string, error)
}

type FetcherConfig struct {
	UserAgent   string
	Accept      string
	Timeout     time.Duration
	MaxBodySize int
	Transport   http.RoundTripper
}

// Fetcher downloads sitemap content with a colly collector per request. It
// holds no per-request state and is safe for concurrent use.
type Fetcher struct {
	config FetcherConfig
	logger zerolog.Logger
}

func NewFetcher(config FetcherConfig, logger zerolog.Logger) *Fetcher {
	if config.UserAgent == "" {
		config.UserAgent = DefaultUserAgent
	}
	if config.Accept == "" {
		config.Accept = DefaultAccept
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	return &Fetcher{
		config: config,
		logger: logger,
	}
}

// Fetch returns the sitemap at rawURL as text. Gzip payloads are decompressed
// and JSON sitemaps are rewritten into an equivalent <urlset> document.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	target := NormalizeURL(rawURL)
	f.logger.Debug().Str("url", target).Msg("Fetching sitemap")

	body, headers, err := f.get(ctx, target)
	if err != nil {
		metrics.SitemapFetches.WithLabelValues("error").Inc()
		return "", err
	}

	contentType := strings.ToLower(headers.Get("Content-Type"))

	// Check if the content is gzipped either by URL or content type
	if isGzipped(target, contentType) && bytes.HasPrefix(body, gzipMagic) {
		f.logger.Debug().Str("url", target).Msg("Detected gzipped content, decompressing")
		body, err = gunzip(body)
		if err != nil {
			metrics.SitemapFetches.WithLabelValues("error").Inc()
			return "", &FetchError{URL: target, Err: fmt.Errorf("decompress: %w", err)}
		}
	}

	body = toUTF8(body, contentType)

	if strings.Contains(contentType, "application/json") {
		converted, err := jsonToURLSet(body)
		if err != nil {
			f.logger.Warn().Err(err).Str("url", target).Msg("Failed to convert JSON sitemap")
		} else {
			f.logger.Debug().Str("url", target).Msg("Converted JSON sitemap to XML")
			body = converted
		}
	}

	if len(bytes.TrimSpace(body)) == 0 {
		metrics.SitemapFetches.WithLabelValues("empty").Inc()
		return "", &FetchError{URL: target, Err: ErrEmptyBody}
	}

	metrics.SitemapFetches.WithLabelValues("success").Inc()
	f.logger.Debug().Str("url", target).Int("bytes", len(body)).Msg("Successfully fetched sitemap")
	return string(body), nil
}

func (f *Fetcher) get(ctx context.Context, target string) ([]byte, *http.Header, error) {
	c := colly.NewCollector(
		colly.UserAgent(f.config.UserAgent),
		colly.AllowURLRevisit(),
		colly.MaxBodySize(f.config.MaxBodySize),
		colly.StdlibContext(ctx),
	)
	c.SetRequestTimeout(f.config.Timeout)
	if f.config.Transport != nil {
		c.WithTransport(f.config.Transport)
	}

	var (
		body    []byte
		headers *http.Header
		status  int
	)

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", f.config.Accept)
	})
	c.OnResponse(func(r *colly.Response) {
		body = r.Body
		headers = r.Headers
		status = r.StatusCode
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
	})

	if err := c.Visit(target); err != nil {
		return nil, nil, &FetchError{URL: target, StatusCode: status, Err: err}
	}
	if headers == nil {
		headers = &http.Header{}
	}
	if status != 0 && (status < http.StatusOK || status >= http.StatusMultipleChoices) {
		return nil, nil, &FetchError{URL: target, StatusCode: status, Err: errors.New(http.StatusText(status))}
	}
	// colly truncates at MaxBodySize without reporting it.
	if limit := f.config.MaxBodySize; limit > 0 && len(body) >= limit {
		f.logger.Warn().Str("url", target).Int("limit", limit).Msg("Sitemap body hit the size limit")
		return nil, nil, &FetchError{URL: target, StatusCode: status, Err: fmt.Errorf("%w (%d bytes)", ErrBodyTooLarge, limit)}
	}
	return body, headers, nil
}

// NormalizeURL trims the input and gives scheme-relative URLs an https scheme.
func NormalizeURL(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if strings.HasPrefix(rawURL, "//") {
		return "https:" + rawURL
	}
	return rawURL
}

func isGzipped(target, contentType string) bool {
	if strings.Contains(contentType, "gzip") {
		return true
	}
	if u, err := url.Parse(target); err == nil {
		return strings.HasSuffix(strings.ToLower(u.Path), ".gz")
	}
	return strings.HasSuffix(strings.ToLower(target), ".gz")
}

func gunzip(body []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

// toUTF8 returns body as UTF-8 with any XML prolog encoding rewritten to
// UTF-8, so the parser never decodes it a second time. colly has already
// transcoded bodies whose Content-Type names a charset; anything still not
// valid UTF-8 is decoded with the prolog's encoding, else by sniffing.
func toUTF8(body []byte, contentType string) []byte {
	if !utf8.Valid(body) {
		var enc encoding.Encoding
		if m := encodingDeclRe.FindSubmatch(body); m != nil {
			enc, _ = charset.Lookup(string(m[2]))
		}
		if enc == nil {
			enc, _, _ = charset.DetermineEncoding(body, contentType)
		}
		decoded, err := enc.NewDecoder().Bytes(body)
		if err != nil {
			return body
		}
		body = decoded
	}
	return encodingDeclRe.ReplaceAll(body, []byte("${1}UTF-8${3}"))
}

type jsonEntry struct {
	URL        string `json:"url"`
	Loc        string `json:"loc"`
	LastMod    string `json:"lastmod"`
	ChangeFreq string `json:"changefreq"`
	Priority   any    `json:"priority"`
}

// jsonToURLSet accepts a JSON array of entries (objects with url or loc, or
// bare strings), or an object wrapping that array under "urls".
func jsonToURLSet(body []byte) ([]byte, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		var wrapped struct {
			URLs []json.RawMessage `json:"urls"`
		}
		if err2 := json.Unmarshal(body, &wrapped); err2 != nil || wrapped.URLs == nil {
			return nil, fmt.Errorf("unsupported JSON sitemap shape: %w", err)
		}
		items = wrapped.URLs
	}

	set := models.URLSet{Xmlns: models.SitemapNamespace}
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			if s = strings.TrimSpace(s); s != "" {
				set.URLs = append(set.URLs, models.URLRecord{Loc: s})
			}
			continue
		}

		var entry jsonEntry
		if err := json.Unmarshal(item, &entry); err != nil {
			continue
		}
		loc := strings.TrimSpace(entry.URL)
		if loc == "" {
			loc = strings.TrimSpace(entry.Loc)
		}
		if loc == "" {
			continue
		}
		record := models.URLRecord{
			Loc:        loc,
			LastMod:    strings.TrimSpace(entry.LastMod),
			ChangeFreq: strings.TrimSpace(entry.ChangeFreq),
		}
		if entry.Priority != nil {
			record.Priority = strings.TrimSpace(fmt.Sprint(entry.Priority))
		}
		set.URLs = append(set.URLs, record)
	}

	out, err := xml.Marshal(set)
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), out...), nil
}
