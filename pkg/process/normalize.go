package process

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/purell"
)

// Canonicalize strips the fragment and query string and normalizes the rest,
// so /page#x and /page?y=1 both collapse to /page.
func Canonicalize(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	u.Fragment = ""
	u.RawFragment = ""
	u.RawQuery = ""
	u.ForceQuery = false

	flags := purell.FlagLowercaseScheme |
		purell.FlagLowercaseHost |
		purell.FlagRemoveDefaultPort |
		purell.FlagDecodeUnnecessaryEscapes |
		purell.FlagRemoveDuplicateSlashes |
		purell.FlagRemoveDotSegments

	return purell.NormalizeURL(u, flags), nil
}

// Host returns the lowercased host (with port, if any) of a URL.
func Host(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}

func SameHost(a, b string) bool {
	ha := Host(a)
	return ha != "" && ha == Host(b)
}
