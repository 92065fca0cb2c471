// Package chunker splits normalized page text into bounded, overlapping
// windows that prefer to end on paragraph boundaries.
package chunker

import (
	"errors"
	"fmt"
	"strings"

	"github.com/devraulu/normkb/pkg/process"
)

// SnapRatio is how far into a window a paragraph break must sit before the
// window is cut there instead of mid-paragraph.
const SnapRatio = 0.6

var ErrInvalidConfig = errors.New("invalid chunker config")

// Chunker holds a validated size/overlap pair. Sizes are in characters.
type Chunker struct {
	size    int
	overlap int
}

func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size must be positive, got %d", ErrInvalidConfig, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap %d must be in [0, %d)", ErrInvalidConfig, overlap, size)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

func (c *Chunker) Size() int    { return c.size }
func (c *Chunker) Overlap() int { return c.overlap }

// Split normalizes text and returns its chunks in order. Empty input yields
// no chunks; input no longer than the chunk size yields exactly one.
func (c *Chunker) Split(text string) []string {
	text = process.NormalizeText(text)
	if text == "" {
		return nil
	}

	runes := []rune(text)
	n := len(runes)
	if n <= c.size {
		return []string{text}
	}

	snapAfter := int(float64(c.size) * SnapRatio)

	var chunks []string
	start := 0
	for start < n {
		end := min(n, start+c.size)
		window := runes[start:end]

		if cut := lastParagraphBreak(window); cut > snapAfter {
			window = window[:cut]
			end = start + cut
		}

		if chunk := strings.TrimSpace(string(window)); chunk != "" {
			chunks = append(chunks, chunk)
		}

		if end >= n {
			break
		}

		next := max(0, end-c.overlap)
		if next <= start {
			// a snapped window shorter than the overlap would stall
			next = end
		}
		start = next
	}
	return chunks
}

func lastParagraphBreak(window []rune) int {
	for i := len(window) - 2; i >= 0; i-- {
		if window[i] == '\n' && window[i+1] == '\n' {
			return i
		}
	}
	return -1
}
