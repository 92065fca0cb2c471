package process

import (
	"regexp"
	"unicode/utf8"
)

// clauseMarker matches a line opening with a numbered clause: one to four
// dot-separated integers such as "1.", "1.1.", "2.3.4".
var clauseMarker = regexp.MustCompile(`(?m)^[ \t]*\d+(\.\d+){0,3}\.?(\s|$)`)

// Classifier decides whether a fetched page is a terminal document or a
// section page to expand. Lengths are counted in characters.
type Classifier struct {
	// MinChars is the length below which a page is never a document.
	MinChars int
	// LongChars is the length at which unmarked text still counts as a document.
	LongChars int
}

var DefaultClassifier = Classifier{MinChars: 800, LongChars: 1500}

func (c Classifier) IsDocument(title, text string) bool {
	n := utf8.RuneCountInString(text)
	if n < c.MinChars {
		return false
	}
	if clauseMarker.MatchString(text) {
		return true
	}
	return n >= c.LongChars
}
