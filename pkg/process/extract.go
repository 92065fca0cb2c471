package process

import (
	"bytes"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// MinLineChars is the shortest line kept in extracted body text; shorter
// lines are navigation fragments or bare punctuation.
const MinLineChars = 3

// mainSelectors are the likely main-content containers, in priority order.
var mainSelectors = []cascadia.Sel{
	mustSelector("article"),
	mustSelector("div.content"),
	mustSelector("div#content"),
	mustSelector("div.node-content"),
	mustSelector("div.main"),
	mustSelector("div.container"),
}

var (
	headingSelector = mustSelector("h1")
	bodySelector    = mustSelector("body")
)

func mustSelector(s string) cascadia.Sel {
	sel, err := cascadia.Parse(s)
	if err != nil {
		panic(err)
	}
	return sel
}

// ExtractMain isolates the title and main body text of a page. It never
// fails: unparseable markup yields empty strings.
func ExtractMain(body []byte, pageURL string) (title, text string) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return "", ""
	}

	stripChrome(doc)

	if h1 := cascadia.Query(doc, headingSelector); h1 != nil {
		title = NormalizeText(nodeText(h1, " "))
	} else {
		title = lastPathSegment(pageURL)
	}

	main := mainContainer(doc)
	text = NormalizeText(nodeText(main, "\n"))

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if utf8.RuneCountInString(line) < MinLineChars {
			continue
		}
		lines = append(lines, line)
	}

	return title, NormalizeText(strings.Join(lines, "\n"))
}

func mainContainer(doc *html.Node) *html.Node {
	var (
		best    *html.Node
		bestLen int
	)
	for _, sel := range mainSelectors {
		el := cascadia.Query(doc, sel)
		if el == nil {
			continue
		}
		n := utf8.RuneCountInString(nodeText(el, " "))
		if best == nil || n > bestLen {
			best, bestLen = el, n
		}
	}
	if best != nil {
		return best
	}

	if b := cascadia.Query(doc, bodySelector); b != nil {
		return b
	}
	return doc
}

// stripChrome removes elements that never contribute to title or body.
func stripChrome(n *html.Node) {
	var doomed []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "template", "iframe", "svg",
				"nav", "footer", "aside":
				doomed = append(doomed, n)
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)

	for _, d := range doomed {
		if d.Parent != nil {
			d.Parent.RemoveChild(d)
		}
	}
}

func lastPathSegment(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	p := u.Path
	if i := strings.LastIndex(p, "/"); i >= 0 {
		p = p[i+1:]
	}
	return p
}
