package frontier

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrontier_FIFO(t *testing.T) {
	f := NewFrontier()
	f.Push("http://example.com/a", 0, "")
	f.Push("http://example.com/b", 1, "http://example.com/a")
	f.Push("http://example.com/c", 1, "http://example.com/a")
	assert.Equal(t, 3, f.Len())

	var order []string
	for {
		c, ok := f.Pop()
		if !ok {
			break
		}
		order = append(order, c.URL)
	}
	assert.Equal(t, []string{"http://example.com/a", "http://example.com/b", "http://example.com/c"}, order)
	assert.Equal(t, 0, f.Len())
}

func TestFrontier_VisitedURLsAreNotRequeued(t *testing.T) {
	f := NewFrontier()
	assert.True(t, f.Visit("http://example.com/a"))
	assert.False(t, f.Visit("http://example.com/a"))
	assert.True(t, f.Seen("http://example.com/a"))

	assert.False(t, f.Push("http://example.com/a", 2, ""))
	assert.Equal(t, 0, f.Len())
	assert.Equal(t, 1, f.Visited())
}

func TestFrontier_DuplicatesDroppedOnVisit(t *testing.T) {
	f := NewFrontier()
	f.Push("http://example.com/x", 1, "")
	f.Push("http://example.com/x", 1, "")

	c, _ := f.Pop()
	assert.True(t, f.Visit(c.URL))
	c, _ = f.Pop()
	assert.False(t, f.Visit(c.URL))
}

func TestParseSeeds(t *testing.T) {
	seeds, err := ParseSeeds([]string{
		"http://Example.com/snip/#top",
		"  ",
		"http://example.com/snip/?page=2",
		"http://example.com/other",
	}, "http://fallback.example/")
	require.NoError(t, err)
	assert.Equal(t, []string{"http://example.com/snip/", "http://example.com/other"}, seeds)
}

func TestParseSeeds_FallsBackToBase(t *testing.T) {
	seeds, err := ParseSeeds(nil, "http://sniprf.ru/snip")
	require.NoError(t, err)
	assert.Equal(t, []string{"http://sniprf.ru/snip"}, seeds)

	_, err = ParseSeeds(nil, "")
	assert.ErrorIs(t, err, ErrNoSeeds)
}

func TestLoadSeedsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seeds.txt")
	require.NoError(t, os.WriteFile(path, []byte("# sections\nhttp://example.com/a\n\nhttp://example.com/b\n"), 0o644))

	seeds, err := LoadSeedsFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"http://example.com/a", "http://example.com/b"}, seeds)

	_, err = LoadSeedsFile(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}
