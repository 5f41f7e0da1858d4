// Package money provides the numeric handling used by cost documents: parsing
// pt-BR formatted amounts ("1.234,56"), BRL display through go-money and
// tolerance-bounded comparisons on shopspring/decimal values.
package money

import (
	"regexp"
	"strings"

	gomoney "github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// BRL is the ISO-4217 code of the Brazilian Real.
const BRL = gomoney.BRL

// NumberPattern matches one regional number token: thousands separated by
// dots with an optional decimal comma, or a plain run of digits with an
// optional decimal comma. It is shared by the line parsers that need to find
// numbers inside longer text.
const NumberPattern = `\d{1,3}(?:\.\d{3})*(?:,\d+)?|\d+(?:,\d+)?`

var regionalNumber = regexp.MustCompile(`^-?(?:` + NumberPattern + `)$`)

// ParseRegional converts a pt-BR formatted string into a float64.
// The second return value is false when s does not look like a number; an
// absent number is a normal state (e.g. a redacted total), never an error.
func ParseRegional(s string) (float64, bool) {
	d, ok := ParseRegionalDecimal(s)
	if !ok {
		return 0, false
	}
	return d.InexactFloat64(), true
}

// ParseRegionalDecimal is ParseRegional keeping full decimal precision.
func ParseRegionalDecimal(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "R$", "")
	s = strings.ReplaceAll(s, "\u00a0", "")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" || !regionalNumber.MatchString(s) {
		return decimal.Zero, false
	}

	s = strings.ReplaceAll(s, ".", "")
	s = strings.Replace(s, ",", ".", 1)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// ParseRegionalPtr is ParseRegional for nullable fields.
func ParseRegionalPtr(s string) *float64 {
	v, ok := ParseRegional(s)
	if !ok {
		return nil
	}
	return &v
}

// Display formats a value in BRL with regional separators (e.g. "R$1.234,56").
// Values are rounded to cents.
func Display(v float64) string {
	cents := decimal.NewFromFloat(v).Shift(2).Round(0).IntPart()
	return gomoney.New(cents, BRL).Display()
}

// Tolerance is an absolute floor combined with a share of the reference
// magnitude. The effective bound is max(Abs, Rel*|reference|).
type Tolerance struct {
	Abs float64
	Rel float64
}

// Bound returns the tolerance allowed around reference.
func (t Tolerance) Bound(reference decimal.Decimal) decimal.Decimal {
	abs := decimal.NewFromFloat(t.Abs)
	rel := reference.Abs().Mul(decimal.NewFromFloat(t.Rel))
	return decimal.Max(abs, rel)
}

// Comparison is the outcome of checking an actual value against an expected one.
type Comparison struct {
	Expected   decimal.Decimal
	Actual     decimal.Decimal
	Difference decimal.Decimal // Actual - Expected
	Tolerance  decimal.Decimal
	Within     bool
}

// Compare checks actual against expected; the relative part of the tolerance
// is taken from |expected|.
func (t Tolerance) Compare(expected, actual decimal.Decimal) Comparison {
	diff := actual.Sub(expected)
	bound := t.Bound(expected)
	return Comparison{
		Expected:   expected,
		Actual:     actual,
		Difference: diff,
		Tolerance:  bound,
		Within:     diff.Abs().LessThanOrEqual(bound),
	}
}

// CloseEnough reports whether two optional values agree within t. A missing
// value on either side does not disqualify.
func (t Tolerance) CloseEnough(expected, actual *float64) bool {
	if expected == nil || actual == nil {
		return true
	}
	return t.Compare(decimal.NewFromFloat(*expected), decimal.NewFromFloat(*actual)).Within
}

// Float rounds d to cents and returns it as a float64 for reporting.
func Float(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}
