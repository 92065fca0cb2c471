package chunker

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devraulu/normkb/pkg/process"
)

func mustNew(t *testing.T, size, overlap int) *Chunker {
	t.Helper()
	c, err := New(size, overlap)
	require.NoError(t, err)
	return c
}

func TestNew_RejectsDegenerateConfig(t *testing.T) {
	for _, tc := range []struct{ size, overlap int }{
		{0, 0}, {-1, 0}, {100, 100}, {100, 150}, {100, -1},
	} {
		_, err := New(tc.size, tc.overlap)
		assert.ErrorIs(t, err, ErrInvalidConfig, "size=%d overlap=%d", tc.size, tc.overlap)
	}
}

func TestSplit_Empty(t *testing.T) {
	c := mustNew(t, 100, 10)
	assert.Empty(t, c.Split(""))
	assert.Empty(t, c.Split(" \n\n\t "))
}

func TestSplit_ExactlyChunkSizeIsOneChunk(t *testing.T) {
	c := mustNew(t, 100, 10)
	text := strings.Repeat("я", 100)
	assert.Equal(t, []string{text}, c.Split(text))
}

func TestSplit_SlidingWindowWithOverlap(t *testing.T) {
	c := mustNew(t, 10, 3)
	text := "abcdefghijklmnopqrstuvwxy"

	assert.Equal(t, []string{
		"abcdefghij",
		"hijklmnopq",
		"opqrstuvwx",
		"vwxy",
	}, c.Split(text))
}

func TestSplit_SnapsToLateParagraphBreak(t *testing.T) {
	c := mustNew(t, 100, 10)
	a := strings.Repeat("a", 70)
	b := strings.Repeat("b", 60)

	chunks := c.Split(a + "\n\n" + b)

	require.Len(t, chunks, 2)
	assert.Equal(t, a, chunks[0])
	assert.Equal(t, strings.Repeat("a", 10)+"\n\n"+b, chunks[1])
}

func TestSplit_IgnoresEarlyParagraphBreak(t *testing.T) {
	c := mustNew(t, 100, 20)
	a := strings.Repeat("a", 30)
	b := strings.Repeat("b", 100)

	chunks := c.Split(a + "\n\n" + b)

	require.Len(t, chunks, 2)
	assert.Equal(t, a+"\n\n"+strings.Repeat("b", 68), chunks[0])
	assert.Equal(t, strings.Repeat("b", 52), chunks[1])
}

func TestSplit_SnapShorterThanOverlapStillProgresses(t *testing.T) {
	c := mustNew(t, 100, 90)
	text := strings.Repeat("a", 65) + "\n\n" + strings.Repeat("b", 100)

	chunks := c.Split(text)

	require.GreaterOrEqual(t, len(chunks), 2)
	assert.Equal(t, strings.Repeat("a", 65), chunks[0])
	for _, ch := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(ch), 100)
	}
}

func TestSplit_CoversWholeText(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	var sb strings.Builder
	for i := 0; i < 1500; i++ {
		fmt.Fprintf(&sb, "w%05d", i)
		switch rng.Intn(12) {
		case 0:
			sb.WriteString("\n\n")
		case 1:
			sb.WriteString("\n")
		default:
			sb.WriteString(" ")
		}
	}
	text := process.NormalizeText(sb.String())

	for _, cfg := range []struct{ size, overlap int }{
		{1600, 250}, {500, 100}, {300, 0}, {200, 150},
	} {
		t.Run(fmt.Sprintf("%d_%d", cfg.size, cfg.overlap), func(t *testing.T) {
			chunks := mustNew(t, cfg.size, cfg.overlap).Split(text)
			require.GreaterOrEqual(t, len(chunks), 2)

			prevStart, prevEnd := -1, 0
			for i, ch := range chunks {
				require.NotEmpty(t, ch)
				assert.LessOrEqual(t, utf8.RuneCountInString(ch), cfg.size)

				from := max(prevStart+1, prevEnd-cfg.overlap)
				at := strings.Index(text[from:], ch)
				require.GreaterOrEqual(t, at, 0, "chunk %d is not a slice of the source", i)
				at += from

				if at > prevEnd {
					assert.Empty(t, strings.TrimSpace(text[prevEnd:at]), "gap before chunk %d", i)
				}
				prevStart, prevEnd = at, max(prevEnd, at+len(ch))
			}
			assert.Equal(t, len(text), prevEnd, "last chunk reaches the end")
		})
	}
}

func TestSplit_Deterministic(t *testing.T) {
	c := mustNew(t, 120, 30)
	text := strings.Repeat("Пункт 1.1 Требования к ограждениям.\n\n", 20)
	assert.Equal(t, c.Split(text), c.Split(text))
}
