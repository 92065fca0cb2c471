package storage

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"strconv"
	"time"
)

// Snippet is one chunk of a document page, the atomic retrievable unit.
type Snippet struct {
	ID        string
	SourceURL string
	Title     string
	Text      string
	ChunkNo   int
}

// Record is a ledger row: a snippet without its text.
type Record struct {
	ID        string `json:"id"`
	SourceURL string `json:"source_url"`
	Title     string `json:"title"`
	ChunkNo   int    `json:"chunk_no"`
}

func (s Snippet) Record() Record {
	return Record{
		ID:        s.ID,
		SourceURL: s.SourceURL,
		Title:     s.Title,
		ChunkNo:   s.ChunkNo,
	}
}

// idPrefixChars is how much of a chunk's text feeds its id.
const idPrefixChars = 80

// SnippetID derives a stable id from the source URL, the 1-based chunk
// number and the first 80 characters of the chunk text.
func SnippetID(sourceURL string, chunkNo int, text string) string {
	prefix := text
	if r := []rune(text); len(r) > idPrefixChars {
		prefix = string(r[:idPrefixChars])
	}

	h := sha1.New()
	for _, p := range []string{sourceURL, strconv.Itoa(chunkNo), prefix} {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// PageKind is the outcome of visiting a page during discovery.
type PageKind string

const (
	PageDocument PageKind = "document"
	PageSection  PageKind = "section"
	PageFailed   PageKind = "failed"
	PageSkipped  PageKind = "skipped"
)

// Page is the archive record of one discovery visit.
type Page struct {
	URL        string
	Depth      int
	Kind       PageKind
	Title      string
	TextLength int
	Error      string
	Timestamp  time.Time
}

// Run summarizes one crawl run for the archive.
type Run struct {
	StartedAt      time.Time
	FinishedAt     time.Time
	PagesVisited   int
	PagesErrored   int
	PagesSkipped   int
	DocumentsFound int
	Snippets       int
	Error          string
}

// Archive records crawl activity for operators. Archive failures are never
// fatal to a run.
type Archive interface {
	SavePage(ctx context.Context, p Page) error
	SaveRun(ctx context.Context, r Run) error
	Close() error
}

// NopArchive discards everything.
type NopArchive struct{}

func (NopArchive) SavePage(context.Context, Page) error { return nil }
func (NopArchive) SaveRun(context.Context, Run) error   { return nil }
func (NopArchive) Close() error                         { return nil }
