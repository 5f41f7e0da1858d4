package normalizer

import (
	"sort"
	"strings"
	"sync"

	"github.com/cloudflare/ahocorasick"
)

// MarkerSet answers "does this text contain any of these markers" in a single
// pass using an Aho-Corasick automaton. Matching is case-sensitive, the same
// way the document artifacts are configured.
type MarkerSet struct {
	matcher  *ahocorasick.Matcher
	patterns []string // longest first, same order as matcher
	mu       sync.Mutex
}

// NewMarkerSet builds a set from static markers plus per-request dynamic ones.
// Blank markers are ignored and duplicates collapsed.
func NewMarkerSet(static, dynamic []string) *MarkerSet {
	m := &MarkerSet{patterns: MergeMarkers(static, dynamic)}
	if len(m.patterns) > 0 {
		m.matcher = ahocorasick.NewStringMatcher(m.patterns)
	}
	return m
}

// MergeMarkers joins static and dynamic markers, drops blanks and duplicates
// and sorts longest-first so overlapping markers resolve to the longer one.
func MergeMarkers(static, dynamic []string) []string {
	seen := make(map[string]struct{}, len(static)+len(dynamic))
	out := make([]string, 0, len(static)+len(dynamic))
	for _, list := range [][]string{static, dynamic} {
		for _, m := range list {
			if strings.TrimSpace(m) == "" {
				continue
			}
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return len(out[i]) > len(out[j]) })
	return out
}

// Len returns the number of distinct markers.
func (m *MarkerSet) Len() int {
	if m == nil {
		return 0
	}
	return len(m.patterns)
}

// Patterns returns the markers, longest first.
func (m *MarkerSet) Patterns() []string {
	if m == nil {
		return nil
	}
	return m.patterns
}

// hits returns the markers present in text.
func (m *MarkerSet) hits(text string) []string {
	if m == nil || m.matcher == nil || text == "" {
		return nil
	}

	// The matcher keeps per-call state.
	m.mu.Lock()
	idx := m.matcher.Match([]byte(text))
	m.mu.Unlock()

	if len(idx) == 0 {
		return nil
	}
	sort.Ints(idx)
	out := make([]string, 0, len(idx))
	for _, i := range idx {
		out = append(out, m.patterns[i])
	}
	return out
}

// ContainsAny reports whether text contains at least one marker.
func (m *MarkerSet) ContainsAny(text string) bool {
	return len(m.hits(text)) > 0
}

// Earliest returns the byte offset of the first marker occurrence in text,
// or -1 when none is present.
func (m *MarkerSet) Earliest(text string) int {
	cut := -1
	for _, p := range m.hits(text) {
		if i := strings.Index(text, p); i >= 0 && (cut < 0 || i < cut) {
			cut = i
		}
	}
	return cut
}

// Offsets returns every byte offset at which some marker starts, ascending.
// Overlapping occurrences are all reported.
func (m *MarkerSet) Offsets(text string) []int {
	found := make(map[int]struct{})
	for _, p := range m.hits(text) {
		for start := 0; start < len(text); {
			i := strings.Index(text[start:], p)
			if i < 0 {
				break
			}
			found[start+i] = struct{}{}
			start += i + 1
		}
	}
	out := make([]int, 0, len(found))
	for off := range found {
		out = append(out, off)
	}
	sort.Ints(out)
	return out
}
