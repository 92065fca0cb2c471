// Package index builds and searches the exact inner-product similarity index
// over snippet embeddings. Row N of the index is row N of the ledger.
package index

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
)

var (
	ErrDimension  = errors.New("vector dimension mismatch")
	ErrBadFormat  = errors.New("not an index file")
	fileMagic     = [8]byte{'N', 'K', 'B', 'F', 'L', 'A', 'T', '1'}
	byteOrder     = binary.LittleEndian
	maxDimension  = 1 << 16
	maxIndexBytes = int64(1) << 34
)

// Hit is one search result. Row is -1 when fewer than k rows exist.
type Hit struct {
	Row   int
	Score float32
}

// Flat is an immutable-after-build exact index of unit-normalized vectors.
type Flat struct {
	dim  int
	rows [][]float32
}

func NewFlat(dim int) *Flat {
	return &Flat{dim: dim}
}

func (f *Flat) Dim() int { return f.dim }
func (f *Flat) Len() int { return len(f.rows) }

// Add normalizes and appends vectors in order.
func (f *Flat) Add(vectors ...[]float32) error {
	for i, v := range vectors {
		if len(v) != f.dim {
			return fmt.Errorf("%w: vector %d has %d dims, index has %d", ErrDimension, f.Len()+i, len(v), f.dim)
		}
	}
	for _, v := range vectors {
		row := make([]float32, len(v))
		copy(row, v)
		Normalize(row)
		f.rows = append(f.rows, row)
	}
	return nil
}

// Search returns exactly k hits ranked by descending inner product with the
// normalized query. Ties rank the lower row first. Missing neighbors are
// padded with Row -1.
func (f *Flat) Search(query []float32, k int) ([]Hit, error) {
	if len(query) != f.dim {
		return nil, fmt.Errorf("%w: query has %d dims, index has %d", ErrDimension, len(query), f.dim)
	}
	if k <= 0 {
		return nil, nil
	}

	q := make([]float32, len(query))
	copy(q, query)
	Normalize(q)

	hits := make([]Hit, len(f.rows))
	for i, row := range f.rows {
		hits[i] = Hit{Row: i, Score: Dot(row, q)}
	}
	sort.SliceStable(hits, func(a, b int) bool {
		return hits[a].Score > hits[b].Score
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	for len(hits) < k {
		hits = append(hits, Hit{Row: -1, Score: float32(math.Inf(-1))})
	}
	return hits, nil
}

// WriteFile stores the index at path, replacing any previous file atomically.
func (f *Flat) WriteFile(path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".index-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	if _, err := w.Write(fileMagic[:]); err != nil {
		tmp.Close()
		return err
	}
	header := []uint32{uint32(f.dim), uint32(len(f.rows))}
	if err := binary.Write(w, byteOrder, header); err != nil {
		tmp.Close()
		return err
	}
	for _, row := range f.rows {
		if err := binary.Write(w, byteOrder, row); err != nil {
			tmp.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// ReadFile loads an index written by WriteFile.
func ReadFile(path string) (*Flat, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := bufio.NewReader(file)

	var magic [8]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil || magic != fileMagic {
		return nil, fmt.Errorf("%w: %s", ErrBadFormat, path)
	}

	var header [2]uint32
	if err := binary.Read(r, byteOrder, &header); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBadFormat, path, err)
	}
	dim, n := int(header[0]), int(header[1])
	if dim <= 0 || dim > maxDimension || int64(dim)*int64(n)*4 > maxIndexBytes {
		return nil, fmt.Errorf("%w: %s: implausible shape %dx%d", ErrBadFormat, path, n, dim)
	}

	f := &Flat{dim: dim, rows: make([][]float32, n)}
	for i := range f.rows {
		row := make([]float32, dim)
		if err := binary.Read(r, byteOrder, row); err != nil {
			return nil, fmt.Errorf("%w: %s: row %d: %v", ErrBadFormat, path, i, err)
		}
		f.rows[i] = row
	}
	return f, nil
}
