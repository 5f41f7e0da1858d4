package document

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Layout thresholds, in points or as fractions of the glyph font size.
const (
	rowTolerance   = 2.0
	spaceGapFactor = 0.2
	cellGapFactor  = 1.5
	minCellGap     = 6.0
)

// PDFExtractor reads page text and table rows with github.com/ledongthuc/pdf.
type PDFExtractor struct {
	logger *slog.Logger
}

// NewPDFExtractor creates a PDF extractor.
func NewPDFExtractor(logger *slog.Logger) *PDFExtractor {
	return &PDFExtractor{logger: logger}
}

// Extract opens the PDF and reads every page. A page whose content stream
// cannot be decoded is kept empty and logged; a document that cannot be
// opened at all is an error.
func (e *PDFExtractor) Extract(ctx context.Context, r io.ReaderAt, size int64) (doc *Document, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			doc, err = nil, fmt.Errorf("open pdf: %v", rec)
		}
	}()

	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	n := reader.NumPage()
	if n == 0 {
		return nil, ErrEmptyDocument
	}

	doc = &Document{Pages: make([]Page, 0, n)}
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc.Pages = append(doc.Pages, e.readPage(reader, i))
	}
	return doc, nil
}

func (e *PDFExtractor) readPage(reader *pdf.Reader, num int) (page Page) {
	page.Number = num
	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Warn("pdf page could not be decoded",
				slog.Int("page", num),
				slog.Any("error", rec),
			)
		}
	}()

	p := reader.Page(num)
	if p.V.IsNull() {
		return page
	}

	text, err := p.GetPlainText(nil)
	if err != nil {
		e.logger.Warn("pdf page text extraction failed",
			slog.Int("page", num),
			slog.Any("error", err),
		)
	}
	page.Text = text
	page.Rows = GroupRows(p.Content().Text)
	return page
}

type rowData struct {
	y     float64
	texts []pdf.Text
}

// GroupRows rebuilds table rows from positioned glyphs: glyphs sharing a
// baseline (within rowTolerance) form a row, read top to bottom, and a
// horizontal gap wider than the cell threshold starts a new cell.
func GroupRows(texts []pdf.Text) [][]string {
	var rows []rowData
	for _, t := range texts {
		if t.S == "" {
			continue
		}
		placed := false
		for i := range rows {
			if abs(rows[i].y-t.Y) < rowTolerance {
				rows[i].texts = append(rows[i].texts, t)
				placed = true
				break
			}
		}
		if !placed {
			rows = append(rows, rowData{y: t.Y, texts: []pdf.Text{t}})
		}
	}

	// PDF y grows upwards.
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].y > rows[j].y })

	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		if cells := splitCells(r.texts); len(cells) > 0 {
			out = append(out, cells)
		}
	}
	return out
}

func splitCells(texts []pdf.Text) []string {
	sort.SliceStable(texts, func(i, j int) bool { return texts[i].X < texts[j].X })

	var cells []string
	var cur strings.Builder
	pendingSpace := false
	end := 0.0

	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			cells = append(cells, s)
		}
		cur.Reset()
		pendingSpace = false
	}

	for i, t := range texts {
		if strings.TrimSpace(t.S) == "" {
			pendingSpace = true
			end = max(end, t.X+t.W)
			continue
		}
		if i > 0 && cur.Len() > 0 {
			gap := t.X - end
			switch {
			case gap > max(minCellGap, cellGapFactor*t.FontSize):
				flush()
			case pendingSpace || gap > spaceGapFactor*t.FontSize:
				cur.WriteByte(' ')
			}
		}
		cur.WriteString(t.S)
		pendingSpace = false
		end = t.X + t.W
	}
	flush()
	return cells
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
