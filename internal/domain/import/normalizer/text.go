// Package normalizer turns raw page text into canonical lines: whitespace and
// accent folding, splitting of runs glued to known markers, noise line removal
// and inline truncation.
package normalizer

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var newRowPattern = regexp.MustCompile(`^\d+(?:\.\d+)*\s+\S+`)

// CollapseWhitespace trims s and folds every whitespace run (including
// non-breaking spaces and line breaks) into a single space.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(strings.ReplaceAll(s, "\u00a0", " ")), " ")
}

// StripAccents removes combining diacritics ("Próprio" -> "Proprio").
func StripAccents(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// StripAccentsUpper builds a comparison key: collapsed, accent-free, upper case.
// Never use it for display text.
func StripAccentsUpper(s string) string {
	s = CollapseWhitespace(s)
	if s == "" {
		return ""
	}
	return strings.ToUpper(StripAccents(s))
}

// NormCode is the comparison form of a code or bank name: StripAccentsUpper
// without any spaces.
func NormCode(s string) string {
	return strings.ReplaceAll(StripAccentsUpper(s), " ", "")
}

// NormalizeLines splits page text into collapsed, non-empty lines.
func NormalizeLines(text string) []string {
	raw := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		if s := CollapseWhitespace(l); s != "" {
			lines = append(lines, s)
		}
	}
	return lines
}

// SplitGluedMarkers inserts a line break immediately before every occurrence
// of any static or dynamic marker, so text runs that the PDF glued onto a
// marker end up on their own line.
func SplitGluedMarkers(text string, static, dynamic []string) string {
	if text == "" {
		return text
	}
	set := NewMarkerSet(static, dynamic)
	if set.Len() == 0 {
		return text
	}
	offsets := set.Offsets(text)
	if len(offsets) == 0 {
		return text
	}

	var b strings.Builder
	b.Grow(len(text) + len(offsets))
	prev := 0
	for _, off := range offsets {
		b.WriteString(text[prev:off])
		b.WriteByte('\n')
		prev = off
	}
	b.WriteString(text[prev:])
	return b.String()
}

// Truncator cuts text at the earliest inline-stop marker.
type Truncator struct {
	set *MarkerSet
}

// NewTruncator builds a truncator over static inline-stop markers plus
// dynamic ones.
func NewTruncator(stripInlineFrom, dynamic []string) *Truncator {
	return &Truncator{set: NewMarkerSet(stripInlineFrom, dynamic)}
}

// Clean collapses whitespace and truncates at the earliest marker.
func (t *Truncator) Clean(text string) string {
	s := CollapseWhitespace(text)
	if s == "" {
		return s
	}
	if cut := t.set.Earliest(s); cut >= 0 {
		s = s[:cut]
	}
	return CollapseWhitespace(s)
}

// Contaminated reports whether text still carries one of the markers.
func (t *Truncator) Contaminated(text string) bool {
	return t.set.ContainsAny(text)
}

// CleanInline is a one-shot Truncator.Clean.
func CleanInline(text string, stripInlineFrom, dynamic []string) string {
	return NewTruncator(stripInlineFrom, dynamic).Clean(text)
}

// DropOrTruncateLines removes lines containing a drop marker and truncates the
// survivors at the earliest inline-stop marker. Lines that end up empty are
// removed too.
func DropOrTruncateLines(lines, dropIfContains, stripInlineFrom, dynamic []string) []string {
	drop := NewMarkerSet(dropIfContains, nil)
	trunc := NewTruncator(stripInlineFrom, dynamic)

	out := make([]string, 0, len(lines))
	for _, ln := range lines {
		s := CollapseWhitespace(ln)
		if s == "" || drop.ContainsAny(s) {
			continue
		}
		if s = trunc.Clean(s); s == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}

// DynamicMarkers builds per-request markers from free-text context values
// (site name, site location). Each value contributes its surface form, the
// form without spaces, the accent-free form and the accent-free form without
// spaces. Order is preserved and duplicates dropped.
func DynamicMarkers(values ...string) []string {
	var out []string
	seen := make(map[string]struct{})
	add := func(s string) {
		if s == "" {
			return
		}
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}

	for _, v := range values {
		s := strings.TrimSpace(v)
		if s == "" {
			continue
		}
		plain := StripAccents(s)
		add(s)
		add(strings.ReplaceAll(s, " ", ""))
		add(plain)
		add(strings.ReplaceAll(plain, " ", ""))
	}
	return out
}

// LooksLikeNewRow reports whether a line starts with a dotted item number.
func LooksLikeNewRow(line string) bool {
	return newRowPattern.MatchString(CollapseWhitespace(line))
}

// IsSafeContinuation reports whether line may be appended to the previous
// item's free text: it must not be empty, must not start a new numbered row
// and must not carry a toxic marker.
func IsSafeContinuation(line string, toxic *MarkerSet) bool {
	s := CollapseWhitespace(line)
	if s == "" {
		return false
	}
	if newRowPattern.MatchString(s) {
		return false
	}
	return !toxic.ContainsAny(s)
}
