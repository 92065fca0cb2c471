package process

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"nbsp", "a b", "a b"},
		{"horizontal runs", "a \t  b\t\tc", "a b c"},
		{"newline runs", "a\n\n\n\n\nb", "a\n\nb"},
		{"double newline kept", "a\n\nb", "a\n\nb"},
		{"trim", "  \n a \n ", "a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeText(tt.in))
		})
	}
}

func TestNormalizeText_Idempotent(t *testing.T) {
	inputs := []string{
		"",
		"  1.1 Общие положения   \n\n\n\n 1.2  Область  ",
		"a \n \n \n b\t\t\n\n\n\nc",
		"\n\n\n",
	}
	for _, in := range inputs {
		once := NormalizeText(in)
		assert.Equal(t, once, NormalizeText(once), "input %q", in)
	}
}

const samplePage = `<!doctype html>
<html><head><title>ignored</title><script>var x = "script text";</script></head>
<body>
<nav><h1>Menu heading</h1><a href="/razdel-1">Раздел 1</a></nav>
<div class="container">short container text</div>
<div class="content">
  <h1>СНиП 21-01-97</h1>
  <p>1.1 Настоящие нормы устанавливают требования.</p>
  <p>»</p>
  <p>1.2 Требования распространяются на здания.</p>
  <style>.x{}</style>
</div>
<aside>Реклама в боковой колонке</aside>
<footer>© footer text here</footer>
</body></html>`

func TestExtractMain_PicksLongestCandidate(t *testing.T) {
	title, text := ExtractMain([]byte(samplePage), "http://example.com/snip/doc-1")

	assert.Equal(t, "СНиП 21-01-97", title, "nav h1 must not win")
	assert.Contains(t, text, "1.1 Настоящие нормы устанавливают требования.")
	assert.Contains(t, text, "1.2 Требования распространяются на здания.")
	assert.NotContains(t, text, "»", "lines under 3 chars are dropped")
	assert.NotContains(t, text, "short container text")
	assert.NotContains(t, text, "Реклама")
	assert.NotContains(t, text, "footer")
	assert.NotContains(t, text, "script text")
}

func TestExtractMain_TitleFallsBackToPathSegment(t *testing.T) {
	page := `<html><body><p>Some body text that is long enough.</p></body></html>`
	title, text := ExtractMain([]byte(page), "http://example.com/snip/glava-3?x=1")

	assert.Equal(t, "glava-3", title)
	assert.Equal(t, "Some body text that is long enough.", text)
}

func TestExtractMain_FallsBackToBody(t *testing.T) {
	page := `<html><body><div><p>Line one of body</p><p>Line two of body</p></div></body></html>`
	_, text := ExtractMain([]byte(page), "http://example.com/a")
	assert.Equal(t, "Line one of body\nLine two of body", text)
}

func TestExtractMain_EmptyPage(t *testing.T) {
	title, text := ExtractMain([]byte(`<html><body><div class="content"></div></body>`), "http://example.com/")
	assert.Equal(t, "", title)
	assert.Equal(t, "", text)
}

func TestExtractMain_MalformedNeverPanics(t *testing.T) {
	assert.NotPanics(t, func() {
		ExtractMain([]byte("<div><p><table><tr><td>x</div></span>\x00<<"), "::bad url")
	})
}

func TestExtractLinks(t *testing.T) {
	page := `<html><body>
<a href="/razdel-1">one</a>
<a href="/razdel-1#top">dup with fragment</a>
<a href="/razdel-1?page=2">dup with query</a>
<a href="glava-2">relative</a>
<a href="http://other.com/x">other host</a>
<a href="/search?q=1">search</a>
<a href="/user/42">user</a>
<a href="/rss.xml">feed</a>
<a href="mailto:a@b.c">mail</a>
<a href="">empty</a>
<a href="javascript:void(0)">script</a>
<a href=" /razdel-3 ">padded</a>
</body></html>`

	links, err := ExtractLinks([]byte(page), "http://example.com/snip/")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"http://example.com/razdel-1",
		"http://example.com/snip/glava-2",
		"http://example.com/razdel-3",
	}, links)
}

func TestExtractLinks_HonorsBaseHref(t *testing.T) {
	page := `<html><head><base href="http://example.com/docs/"></head><body><a href="a">a</a></body></html>`
	links, err := ExtractLinks([]byte(page), "http://example.com/other/page")
	require.NoError(t, err)
	assert.Equal(t, []string{"http://example.com/docs/a"}, links)
}

func TestExtractLinks_BaseOnOtherHostDropsRelativeLinks(t *testing.T) {
	page := `<html><head><base href="http://mirror.com/"></head><body>
<a href="a">relative</a>
<a href="http://example.com/b">absolute</a>
</body></html>`
	links, err := ExtractLinks([]byte(page), "http://example.com/page")
	require.NoError(t, err)
	assert.Equal(t, []string{"http://example.com/b"}, links)
}

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"http://example.com/page#x", "http://example.com/page"},
		{"http://example.com/page?y=1", "http://example.com/page"},
		{"http://example.com/page?y=1#x", "http://example.com/page"},
		{"HTTP://Example.COM:80/a/../b", "http://example.com/b"},
		{"http://example.com//a//b", "http://example.com/a/b"},
	}
	for _, tt := range tests {
		got, err := Canonicalize(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
	}
}

func TestIsSuspect(t *testing.T) {
	assert.True(t, IsSuspect("http://example.com/search"))
	assert.True(t, IsSuspect("http://example.com/LOGIN"))
	assert.True(t, IsSuspect("http://example.com/tags/snip"))
	assert.False(t, IsSuspect("http://example.com/razdel-1"))
}

func TestClassifier_ShortTextNeverDocument(t *testing.T) {
	text := "1.2.3 Общие положения\n" + strings.Repeat("x", 700)
	assert.False(t, DefaultClassifier.IsDocument("", text))
}

func TestClassifier_ClauseMarkerConfirmsDocument(t *testing.T) {
	body := strings.Repeat("слово ", 150)
	for _, marker := range []string{"1.", "1.1.", "2.3.4", "1.2.3.4", "7"} {
		text := "Введение\n" + marker + " Требования к лестницам\n" + body
		require.GreaterOrEqual(t, len([]rune(text)), 800)
		assert.True(t, DefaultClassifier.IsDocument("t", text), "marker %q", marker)
	}
}

func TestClassifier_LengthAloneAboveLongThreshold(t *testing.T) {
	unmarked := strings.Repeat("а", 1000)
	assert.False(t, DefaultClassifier.IsDocument("", unmarked))

	long := strings.Repeat("а", 1500)
	assert.True(t, DefaultClassifier.IsDocument("", long))
}

func TestClassifier_MarkerMidLineDoesNotCount(t *testing.T) {
	text := "see clause 1.2 of the norm " + strings.Repeat("b", 900)
	assert.False(t, DefaultClassifier.IsDocument("", text))
}

func TestRobots_DisallowAndCache(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			hits++
			fmt.Fprint(w, "User-agent: *\nDisallow: /private\n")
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	r := NewRobots("normkb", time.Second, nil)
	ctx := context.Background()

	assert.True(t, r.Allowed(ctx, srv.URL+"/razdel-1"))
	assert.False(t, r.Allowed(ctx, srv.URL+"/private/doc"))
	assert.Equal(t, 1, hits, "robots.txt is fetched once per host")
}

func TestRobots_UnreachableAllows(t *testing.T) {
	r := NewRobots("normkb", 100*time.Millisecond, nil)
	assert.True(t, r.Allowed(context.Background(), "http://127.0.0.1:1/page"))
}

type countingPacer struct {
	waits int
	err   error
}

func (p *countingPacer) Wait(context.Context) error {
	p.waits++
	return p.err
}

func TestRobots_FetchWaitsOnPacer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "User-agent: *\nDisallow: /private\n")
	}))
	defer srv.Close()

	pacer := &countingPacer{}
	r := NewRobots("normkb", time.Second, pacer)
	ctx := context.Background()

	assert.True(t, r.Allowed(ctx, srv.URL+"/a"))
	assert.False(t, r.Allowed(ctx, srv.URL+"/private/b"))
	assert.Equal(t, 1, pacer.waits, "only the robots.txt fetch is paced, cached lookups are not")
}

func TestRobots_CancelledWaitIsNotCached(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		fmt.Fprint(w, "User-agent: *\nDisallow: /\n")
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pacer := &countingPacer{err: context.Canceled}
	r := NewRobots("normkb", time.Second, pacer)
	assert.True(t, r.Allowed(ctx, srv.URL+"/a"))
	assert.Equal(t, 0, hits)

	pacer.err = nil
	assert.False(t, r.Allowed(context.Background(), srv.URL+"/a"))
	assert.Equal(t, 1, hits)
}
