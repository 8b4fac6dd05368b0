package prebuilt

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Filter holds path substrings that keep a package from being uploaded.
// The zero value and a nil *Filter filter nothing.
type Filter struct {
	patterns map[string]struct{}
}

// NewFilter builds a filter from patterns. Empty patterns are ignored.
func NewFilter(patterns ...string) *Filter {
	f := &Filter{patterns: make(map[string]struct{}, len(patterns))}
	for _, p := range patterns {
		f.add(p)
	}
	return f
}

// LoadFilterFile reads one pattern per line. Blank lines are skipped and
// duplicates collapse.
func LoadFilterFile(path string) (*Filter, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("prebuilt: open filter file: %w", err)
	}
	defer file.Close()

	f := NewFilter()
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		f.add(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("prebuilt: read filter file %s: %w", path, err)
	}
	return f, nil
}

func (f *Filter) add(pattern string) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return
	}
	f.patterns[pattern] = struct{}{}
}

// Len reports how many distinct patterns are loaded.
func (f *Filter) Len() int {
	if f == nil {
		return 0
	}
	return len(f.patterns)
}

// Patterns returns the loaded patterns in sorted order.
func (f *Filter) Patterns() []string {
	if f == nil {
		return nil
	}
	out := make([]string, 0, len(f.patterns))
	for p := range f.patterns {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// ShouldFilterPackage reports whether any pattern occurs anywhere in path.
// Matching is case-sensitive and ignores path segment boundaries.
func (f *Filter) ShouldFilterPackage(path string) bool {
	if f == nil {
		return false
	}
	for p := range f.patterns {
		if strings.Contains(path, p) {
			return true
		}
	}
	return false
}
