package process

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// suspectPaths mark non-content sections that are never traversed.
var suspectPaths = []string{"/search", "/login", "/register", "/user", "/tag", "/rss"}

// IsSuspect reports whether a URL points into a non-content path.
func IsSuspect(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return true
	}
	p := strings.ToLower(u.Path)
	for _, s := range suspectPaths {
		if strings.Contains(p, s) {
			return true
		}
	}
	return false
}

var (
	baseSelector   = mustSelector("base[href]")
	anchorSelector = mustSelector("a[href]")
)

// ExtractLinks returns the canonical same-host, non-suspect links of a page,
// deduplicated in first-seen order. A <base href> re-roots relative links.
func ExtractLinks(body []byte, pageURL string) ([]string, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	page, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}

	links := linkSet{page: pageURL, base: page, seen: make(map[string]struct{})}
	if n := cascadia.Query(doc, baseSelector); n != nil {
		if b, err := page.Parse(strings.TrimSpace(attr(n, "href"))); err == nil {
			links.base = b
		}
	}
	for _, a := range cascadia.QueryAll(doc, anchorSelector) {
		links.add(attr(a, "href"))
	}
	return links.out, nil
}

// linkSet collects the followable links of one page.
type linkSet struct {
	page string
	base *url.URL
	seen map[string]struct{}
	out  []string
}

func (s *linkSet) add(href string) {
	href = strings.TrimSpace(href)
	if href == "" {
		return
	}
	ref, err := url.Parse(href)
	if err != nil {
		return
	}

	abs := s.base.ResolveReference(ref)
	if scheme := strings.ToLower(abs.Scheme); scheme != "http" && scheme != "https" {
		return
	}

	link, err := Canonicalize(abs.String())
	if err != nil || !SameHost(link, s.page) || IsSuspect(link) {
		return
	}
	if _, ok := s.seen[link]; ok {
		return
	}
	s.seen[link] = struct{}{}
	s.out = append(s.out, link)
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
