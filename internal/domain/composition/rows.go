package composition

import (
	"regexp"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/FACorreiaa/orcamento-import/internal/domain/import/normalizer"
	"github.com/FACorreiaa/orcamento-import/pkg/money"
)

// RowKind classifies a table row by the label in its first cell.
type RowKind int

const (
	RowNone RowKind = iota
	RowComposition
	RowAuxiliary
	RowInput
)

func (k RowKind) String() string {
	switch k {
	case RowComposition:
		return "composicao"
	case RowAuxiliary:
		return "composicao_auxiliar"
	case RowInput:
		return "insumo"
	default:
		return "none"
	}
}

// minSimilarity is the fuzzy fallback threshold for row labels garbled by
// extraction.
const minSimilarity = 0.60

var itemNumberPattern = regexp.MustCompile(`^\d+(?:\.\d+)*$`)

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return normalizer.CollapseWhitespace(row[i])
}

func blankRow(row []string) bool {
	for _, c := range row {
		if normalizer.CollapseWhitespace(c) != "" {
			return false
		}
	}
	return true
}

// mergeSplitLabel repairs a label broken across two cells, as in
// ["Composiçã", "o", ...] or ["Composiçã", "o Auxiliar", ...].
func mergeSplitLabel(row []string) []string {
	if len(row) < 2 {
		return row
	}
	c0 := strings.ToLower(cell(row, 0))
	c1 := strings.ToLower(cell(row, 1))
	if !strings.HasPrefix(c0, "compos") || (c1 != "o" && !strings.HasPrefix(c1, "o aux")) {
		return row
	}

	out := make([]string, 0, len(row)-1)
	out = append(out, strings.TrimSpace(row[0])+" "+strings.TrimSpace(row[1]))
	return append(out, row[2:]...)
}

func startsWithCode(s string) bool {
	s = strings.ToLower(s)
	return strings.HasPrefix(s, "cód") || strings.HasPrefix(s, "cod")
}

// isItemHeader matches the row opening an item block: ["1.1.1", "Código", ...].
func isItemHeader(row []string) bool {
	return len(row) >= 2 && itemNumberPattern.MatchString(cell(row, 0)) && startsWithCode(cell(row, 1))
}

// isColumnHeader matches the column header repeated on a continuation page.
func isColumnHeader(row []string) bool {
	return len(row) >= 2 && cell(row, 0) == "" && startsWithCode(cell(row, 1))
}

// Classify maps a row label to its kind: substring and prefix tests on the
// accent-free letters first, then a fuzzy comparison of the leading letters
// against "insumo" and "composicao".
func Classify(label string) RowKind {
	c0 := strings.ToLower(normalizer.CollapseWhitespace(label))
	if c0 == "" {
		return RowNone
	}
	if strings.HasPrefix(c0, "ocompos") || strings.HasPrefix(c0, "oinsumo") {
		c0 = c0[1:]
	}

	letters := labelLetters(c0)
	aux := strings.Contains(c0, "auxiliar") || strings.Contains(letters, "auxiliar")
	composition := func() RowKind {
		if aux {
			return RowAuxiliary
		}
		return RowComposition
	}

	if strings.Contains(head(letters, 12), "insumo") || strings.HasPrefix(letters, "insu") {
		return RowInput
	}
	if strings.Contains(head(letters, 14), "compos") || strings.HasPrefix(letters, "comp") {
		return composition()
	}

	lead := head(letters, 10)
	if similarity(head(lead, 6), "insumo") >= minSimilarity {
		return RowInput
	}
	if similarity(head(lead, 9), "composicao") >= minSimilarity {
		return composition()
	}
	return RowNone
}

// labelLetters keeps the lowercase letters of s, accents removed.
func labelLetters(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'à' && r <= 'ú') {
			b.WriteRune(r)
		}
	}
	return strings.ToLower(normalizer.StripAccents(b.String()))
}

func head(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// similarity is the Levenshtein ratio of a and b, in [0, 1].
func similarity(a, b string) float64 {
	longest := max(len([]rune(a)), len([]rune(b)))
	if longest == 0 {
		return 0
	}
	return 1 - float64(fuzzy.LevenshteinDistance(a, b))/float64(longest)
}

// splitEmbeddedBank splits "00000367/ SINAPI" into code and bank.
func splitEmbeddedBank(raw string) (code, bank string) {
	raw = normalizer.CollapseWhitespace(raw)
	c, b, ok := strings.Cut(raw, "/")
	if !ok {
		return raw, ""
	}
	return strings.TrimSpace(c), normalizer.CollapseWhitespace(b)
}

// lineFromRow reads the fixed column layout: label, code, bank, description,
// type, unit, quantity, unit value, total. Input rows may carry their bank
// inside the code cell, which then wins over the bank column.
func lineFromRow(row []string, kind RowKind, trunc *normalizer.Truncator) Line {
	bankCol := cell(row, 2)
	code := cell(row, 1)
	bank := bankCol
	if kind == RowInput {
		if c, b := splitEmbeddedBank(code); b != "" {
			code, bank = c, b
		}
	}

	return Line{
		Code:        code,
		Bank:        bank,
		BankColumn:  bankCol,
		Description: trunc.Clean(cell(row, 3)),
		Type:        cell(row, 4),
		Unit:        cell(row, 5),
		Quantity:    money.ParseRegionalPtr(cell(row, 6)),
		UnitValue:   money.ParseRegionalPtr(cell(row, 7)),
		Total:       money.ParseRegionalPtr(cell(row, 8)),
	}
}
