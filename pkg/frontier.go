package frontier

import (
	"log/slog"
	"sync"
)

// Candidate is a queued page and the depth it was found at.
type Candidate struct {
	URL      string
	Depth    int
	Referrer string
}

// Frontier is the FIFO queue of one discovery run plus its visited set.
// URLs must already be canonical.
type Frontier struct {
	mu      sync.Mutex
	queue   []Candidate
	visited map[string]struct{}
}

func NewFrontier() *Frontier {
	return &Frontier{
		visited: make(map[string]struct{}),
	}
}

// Push enqueues url unless it was already visited. A URL may sit in the
// queue more than once; Visit drops the repeats when they come out.
func (f *Frontier) Push(url string, depth int, referrer string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.visited[url]; ok {
		return false
	}

	f.queue = append(f.queue, Candidate{URL: url, Depth: depth, Referrer: referrer})
	slog.Debug("frontier push", slog.String("url", url), slog.Int("depth", depth), slog.Int("queue_len", len(f.queue)))
	return true
}

// Pop dequeues the earliest pushed candidate.
func (f *Frontier) Pop() (Candidate, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.queue) == 0 {
		return Candidate{}, false
	}

	c := f.queue[0]
	f.queue[0] = Candidate{}
	f.queue = f.queue[1:]
	return c, true
}

// Visit marks url visited and reports whether this is the first visit.
func (f *Frontier) Visit(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.visited[url]; ok {
		return false
	}
	f.visited[url] = struct{}{}
	return true
}

func (f *Frontier) Seen(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.visited[url]
	return ok
}

// Len is the number of queued candidates, repeats included.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}

func (f *Frontier) Visited() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.visited)
}
