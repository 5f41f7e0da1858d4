// Package validation accumulates the diagnostics produced while parsing a
// document: warnings, errors, numeric divergences and the missing/extra
// reference keys found by reconciliation.
package validation

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/orcamento-import/pkg/money"
)

// Divergence kinds.
const (
	KindItem  = "item"
	KindGroup = "grupo"
)

// Divergence is a structured numeric mismatch record. It is kept for audit even
// when it does not escalate to an error.
type Divergence struct {
	Kind       string   `json:"tipo"`
	Item       string   `json:"item"`
	Expected   *float64 `json:"esperado,omitempty"`
	Actual     *float64 `json:"obtido,omitempty"`
	Difference *float64 `json:"diferenca,omitempty"`
	Tolerance  *float64 `json:"tolerancia,omitempty"`
	Reason     string   `json:"motivo,omitempty"`
}

// FromComparison builds a divergence from a tolerance comparison.
func FromComparison(kind, item string, c money.Comparison, reason string) Divergence {
	return Divergence{
		Kind:       kind,
		Item:       item,
		Expected:   ptr(c.Expected),
		Actual:     ptr(c.Actual),
		Difference: ptr(c.Difference),
		Tolerance:  ptr(c.Tolerance),
		Reason:     reason,
	}
}

// divergencePlaces is the precision kept in divergence records.
const divergencePlaces = 4

func ptr(d decimal.Decimal) *float64 {
	v := d.Round(divergencePlaces).InexactFloat64()
	return &v
}

// Report is the validation section of a parse response. A Report belongs to a
// single parse invocation and is not safe for concurrent use.
type Report struct {
	MissingItems []string     `json:"itens_faltando"`
	ExtraItems   []string     `json:"itens_extras"`
	Warnings     []string     `json:"avisos"`
	Errors       []string     `json:"erros"`
	Divergences  []Divergence `json:"divergencias"`
}

// NewReport returns an empty report whose lists encode as [] rather than null.
func NewReport() *Report {
	return &Report{
		MissingItems: []string{},
		ExtraItems:   []string{},
		Warnings:     []string{},
		Errors:       []string{},
		Divergences:  []Divergence{},
	}
}

// Warn records a recoverable oddity.
func (r *Report) Warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Error records a failure. Whether it aborts the request is up to the caller.
func (r *Report) Error(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *Report) AddDivergence(d Divergence) {
	r.Divergences = append(r.Divergences, d)
}

func (r *Report) AddMissing(key string) {
	r.MissingItems = append(r.MissingItems, key)
}

func (r *Report) AddExtra(key string) {
	r.ExtraItems = append(r.ExtraItems, key)
}

// HasErrors reports whether any error was recorded.
func (r *Report) HasErrors() bool {
	return len(r.Errors) > 0
}

// Merge appends everything recorded in other, preserving order.
func (r *Report) Merge(other *Report) {
	if other == nil {
		return
	}
	r.MissingItems = append(r.MissingItems, other.MissingItems...)
	r.ExtraItems = append(r.ExtraItems, other.ExtraItems...)
	r.Warnings = append(r.Warnings, other.Warnings...)
	r.Errors = append(r.Errors, other.Errors...)
	r.Divergences = append(r.Divergences, other.Divergences...)
}

// Truncate shortens s to at most n runes for inclusion in a diagnostic.
func Truncate(s string, n int) string {
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	return string(rs[:n])
}
