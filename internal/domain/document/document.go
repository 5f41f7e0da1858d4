// Package document models the pages of an uploaded cost-estimate document and
// the page ranges callers select from it.
package document

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrEmptyDocument is returned when a document has no readable pages.
var ErrEmptyDocument = errors.New("document has no pages")

// Page is one page of a document: its plain text and its table rows.
type Page struct {
	Number int        `json:"numero"`
	Text   string     `json:"texto"`
	Rows   [][]string `json:"linhas,omitempty"`
}

// Document is an ordered list of pages. Page numbers are 1-based.
type Document struct {
	Pages []Page `json:"paginas"`
}

// Extractor reads a document from its raw bytes.
type Extractor interface {
	Extract(ctx context.Context, r io.ReaderAt, size int64) (*Document, error)
}

// Len returns the page count.
func (d *Document) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Pages)
}

// Texts returns the plain text of pages start..end (1-based, inclusive).
// The range must already be clamped.
func (d *Document) Texts(start, end int) []string {
	if d.Len() == 0 || start < 1 || end < start {
		return nil
	}
	out := make([]string, 0, end-start+1)
	for _, p := range d.Pages[start-1 : min(end, d.Len())] {
		out = append(out, p.Text)
	}
	return out
}

// Rows returns the table rows of every page, indexed by page.
func (d *Document) Rows() [][][]string {
	out := make([][][]string, 0, d.Len())
	if d == nil {
		return out
	}
	for _, p := range d.Pages {
		out = append(out, p.Rows)
	}
	return out
}

// ClampRange fits a 1-based inclusive page range into a document of n pages.
// Out-of-bounds values are clamped and an inverted range is swapped; the
// returned warning describes any adjustment and is empty otherwise. An empty
// document yields 0..0 and a warning.
func ClampRange(start, end, n int) (int, int, string) {
	if n <= 0 {
		return 0, 0, fmt.Sprintf("page range %d-%d requested but the document has no pages", start, end)
	}

	s := max(1, min(start, n))
	e := max(1, min(end, n))
	if e < s {
		s, e = e, s
	}
	if s == start && e == end {
		return s, e, ""
	}
	return s, e, fmt.Sprintf("page range %d-%d adjusted to %d-%d (document has %d pages)", start, end, s, e, n)
}
