package process

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var (
	horizontalSpace = regexp.MustCompile(`[ \t]+`)
	manyNewlines    = regexp.MustCompile(`\n{3,}`)
)

// NormalizeText replaces non-breaking spaces, collapses runs of spaces and
// tabs to one space, collapses three or more newlines to two and trims the
// result. It is idempotent.
func NormalizeText(text string) string {
	text = strings.ReplaceAll(text, "\u00a0", " ")
	text = horizontalSpace.ReplaceAllString(text, " ")
	text = manyNewlines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// nodeText joins the trimmed, non-blank text nodes under n with sep.
func nodeText(n *html.Node, sep string) string {
	var parts []string
	collectText(n, &parts)
	return strings.Join(parts, sep)
}

func collectText(n *html.Node, parts *[]string) {
	if n.Type == html.TextNode {
		if s := strings.TrimSpace(n.Data); s != "" {
			*parts = append(*parts, s)
		}
		return
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, parts)
	}
}
