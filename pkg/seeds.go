package frontier

import (
	"bufio"
	"errors"
	"log/slog"
	"os"
	"strings"

	"github.com/devraulu/normkb/pkg/process"
)

var (
	ErrNoSeeds = errors.New("no seeds loaded")
)

// ParseSeeds canonicalizes and dedupes seeds, keeping their order. With no
// usable seed it falls back to base.
func ParseSeeds(seeds []string, base string) ([]string, error) {
	var out []string
	seen := make(map[string]bool)

	for _, raw := range seeds {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		canonical, err := process.Canonicalize(raw)
		if err != nil {
			slog.Error("couldn't normalize seed", slog.String("seed", raw), slog.Any("err", err))
			continue
		}
		if seen[canonical] {
			continue
		}
		seen[canonical] = true
		out = append(out, canonical)
	}

	if len(out) == 0 && strings.TrimSpace(base) != "" {
		canonical, err := process.Canonicalize(base)
		if err != nil {
			return nil, err
		}
		slog.Info("no seeds given, using base url", slog.String("base_url", canonical))
		out = append(out, canonical)
	}

	if len(out) == 0 {
		return nil, ErrNoSeeds
	}
	return out, nil
}

// LoadSeedsFile reads one seed per line. Blank lines and lines starting
// with # are ignored.
func LoadSeedsFile(path string) ([]string, error) {
	slog.Info("loading seeds", "path", path)
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var seeds []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		seeds = append(seeds, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	slog.Info("loaded seeds", "count", len(seeds))
	return seeds, nil
}
