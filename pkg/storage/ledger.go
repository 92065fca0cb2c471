package storage

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

var (
	ErrLedgerMissing = errors.New("snippet ledger missing, run the crawl first")
	ErrCorrupt       = errors.New("knowledge base corrupt")
)

const (
	LedgerFile      = "snippets_meta.jsonl"
	SnippetsDir     = "snippets"
	IndexFile       = "index.bin"
	HarvestedMarker = "HARVESTED"
)

// Layout is one knowledge-base directory: the ledger, the per-id text blobs
// and the similarity index artifact.
type Layout struct {
	Dir string
}

func (l Layout) LedgerPath() string   { return filepath.Join(l.Dir, LedgerFile) }
func (l Layout) SnippetsPath() string { return filepath.Join(l.Dir, SnippetsDir) }
func (l Layout) IndexPath() string    { return filepath.Join(l.Dir, IndexFile) }
func (l Layout) MarkerPath() string   { return filepath.Join(l.Dir, HarvestedMarker) }

func (l Layout) SnippetPath(id string) string {
	return filepath.Join(l.SnippetsPath(), id+".txt")
}

// Reset discards everything in the layout and recreates it empty.
func (l Layout) Reset() error {
	if err := os.RemoveAll(l.Dir); err != nil {
		return err
	}
	return os.MkdirAll(l.SnippetsPath(), 0o755)
}

func (l Layout) HasLedger() bool {
	_, err := os.Stat(l.LedgerPath())
	return err == nil
}

func (l Layout) HasIndex() bool {
	_, err := os.Stat(l.IndexPath())
	return err == nil
}

// Harvested reports whether a harvest into this layout completed end to end.
func (l Layout) Harvested() bool {
	_, err := os.Stat(l.MarkerPath())
	return err == nil
}

func (l Layout) MarkHarvested(snippets int) error {
	return os.WriteFile(l.MarkerPath(), []byte(strconv.Itoa(snippets)+"\n"), 0o644)
}

// LoadText returns the stored text of a snippet.
func (l Layout) LoadText(id string) (string, error) {
	data, err := os.ReadFile(l.SnippetPath(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: no text for snippet %s", ErrCorrupt, id)
		}
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// Writer appends snippets to a layout: text blob first, then the ledger row,
// so every ledger row has its text.
type Writer struct {
	layout Layout
	file   *os.File
	buf    *bufio.Writer
	enc    *json.Encoder
	count  int
}

// NewWriter resets the layout and opens a fresh ledger.
func NewWriter(l Layout) (*Writer, error) {
	if err := l.Reset(); err != nil {
		return nil, fmt.Errorf("reset %s: %w", l.Dir, err)
	}

	f, err := os.OpenFile(l.LedgerPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}

	buf := bufio.NewWriter(f)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)

	return &Writer{layout: l, file: f, buf: buf, enc: enc}, nil
}

func (w *Writer) Append(sn Snippet) error {
	if sn.ID == "" || strings.TrimSpace(sn.Text) == "" {
		return fmt.Errorf("refusing empty snippet %q from %s", sn.ID, sn.SourceURL)
	}
	if err := os.WriteFile(w.layout.SnippetPath(sn.ID), []byte(sn.Text), 0o644); err != nil {
		return err
	}
	if err := w.enc.Encode(sn.Record()); err != nil {
		return err
	}
	w.count++
	return nil
}

// Count is the number of ledger rows written so far.
func (w *Writer) Count() int { return w.count }

func (w *Writer) Close() error {
	if err := w.buf.Flush(); err != nil {
		w.file.Close()
		return err
	}
	if err := w.file.Sync(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

// ReadLedger loads the ledger rows in order.
func ReadLedger(l Layout) ([]Record, error) {
	f, err := os.Open(l.LedgerPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrLedgerMissing, l.LedgerPath())
		}
		return nil, err
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var r Record
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("%w: ledger line %d: %v", ErrCorrupt, line, err)
		}
		records = append(records, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// LoadTexts reads the text of every ledger row, in ledger order.
func LoadTexts(l Layout, records []Record) ([]string, error) {
	texts := make([]string, len(records))
	for i, r := range records {
		text, err := l.LoadText(r.ID)
		if err != nil {
			return nil, fmt.Errorf("ledger row %d: %w", i, err)
		}
		texts[i] = text
	}
	return texts, nil
}

// Verify checks that every ledger row has a stored text blob.
func Verify(l Layout, records []Record) error {
	for i, r := range records {
		if _, err := os.Stat(l.SnippetPath(r.ID)); err != nil {
			return fmt.Errorf("%w: ledger row %d (%s) has no text", ErrCorrupt, i, r.ID)
		}
	}
	return nil
}
