package sitemap

import (
	"errors"
	"regexp"
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/romangod6/sitemap-clusters/internal/models"
)

// DocumentKind distinguishes leaf URL sets from sitemap indexes.
type DocumentKind int

const (
	KindURLSet DocumentKind = iota
	KindIndex
)

func (k DocumentKind) String() string {
	if k == KindIndex {
		return "sitemapindex"
	}
	return "urlset"
}

// Document is one decoded sitemap file.
type Document struct {
	Kind      DocumentKind
	Namespace string
	URLs      []models.URLRecord
	// Sitemaps lists the child locations of an index in document order. An
	// entry without a <loc> is kept as an empty string.
	Sitemaps []string
}

var (
	errNoRoot     = errors.New("document has no root element")
	declarationRe = regexp.MustCompile(`<\?xml\s[^>]*\?>`)
	byteOrderMark = "\ufeff"
)

// Decode parses a single sitemap document without following index entries.
func Decode(raw string) (*Document, error) {
	doc, err := xmlquery.Parse(strings.NewReader(cleanDeclarations(raw)))
	if err != nil {
		return nil, err
	}

	root := rootElement(doc)
	if root == nil {
		return nil, errNoRoot
	}
	namespace := root.NamespaceURI
	stripNamespaces(doc)

	out := &Document{Namespace: namespace}

	if strings.Contains(strings.ToLower(root.Data), "sitemapindex") {
		out.Kind = KindIndex
		for _, el := range entries(root, "sitemap") {
			out.Sitemaps = append(out.Sitemaps, childText(el, "loc"))
		}
		return out, nil
	}

	out.Kind = KindURLSet
	for _, el := range entries(root, "url") {
		loc := childText(el, "loc")
		if loc == "" {
			continue
		}
		out.URLs = append(out.URLs, models.URLRecord{
			Loc:        loc,
			LastMod:    childText(el, "lastmod"),
			ChangeFreq: childText(el, "changefreq"),
			Priority:   childText(el, "priority"),
		})
	}
	return out, nil
}

// cleanDeclarations keeps the first XML declaration and drops any later ones,
// which appear in concatenated feeds.
func cleanDeclarations(raw string) string {
	raw = strings.TrimPrefix(strings.TrimLeft(raw, " \t\r\n"), byteOrderMark)
	raw = strings.TrimLeft(raw, " \t\r\n")

	locs := declarationRe.FindAllStringIndex(raw, -1)
	if len(locs) <= 1 {
		return raw
	}

	var b strings.Builder
	b.Grow(len(raw))
	prev := locs[0][1]
	b.WriteString(raw[:prev])
	for _, loc := range locs[1:] {
		b.WriteString(raw[prev:loc[0]])
		prev = loc[1]
	}
	b.WriteString(raw[prev:])
	return b.String()
}

func rootElement(doc *xmlquery.Node) *xmlquery.Node {
	for n := doc.FirstChild; n != nil; n = n.NextSibling {
		if n.Type == xmlquery.ElementNode {
			return n
		}
	}
	return nil
}

// stripNamespaces rewrites every element to its bare local name once, so the
// lookups below work the same with or without a declared namespace.
func stripNamespaces(n *xmlquery.Node) {
	if n.Type == xmlquery.ElementNode {
		if i := strings.LastIndexByte(n.Data, ':'); i >= 0 {
			n.Data = n.Data[i+1:]
		}
		n.Prefix = ""
		n.NamespaceURI = ""
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		stripNamespaces(c)
	}
}

// entries returns descendants of root named name, or all element children of
// root when there are none.
func entries(root *xmlquery.Node, name string) []*xmlquery.Node {
	var found []*xmlquery.Node
	var walk func(*xmlquery.Node)
	walk = func(n *xmlquery.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != xmlquery.ElementNode {
				continue
			}
			if c.Data == name {
				found = append(found, c)
				continue
			}
			walk(c)
		}
	}
	walk(root)
	if len(found) > 0 {
		return found
	}

	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode {
			found = append(found, c)
		}
	}
	return found
}

func childText(el *xmlquery.Node, name string) string {
	for c := el.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode && c.Data == name {
			if text := strings.TrimSpace(c.InnerText()); text != "" {
				return text
			}
		}
	}
	return ""
}
