// Package composition extracts composition blocks from the table rows of the
// "composições" section of a cost-estimate document and reconciles them with
// the line items the budget expects.
package composition

import (
	"github.com/FACorreiaa/orcamento-import/internal/domain/reconcile"
	"github.com/FACorreiaa/orcamento-import/internal/domain/validation"
)

// Line is a composition row: a principal or an auxiliary composition.
type Line struct {
	Code        string   `json:"codigo"`
	Bank        string   `json:"banco"`
	Description string   `json:"descricao"`
	Type        string   `json:"tipo"`
	Unit        string   `json:"und"`
	Quantity    *float64 `json:"quant"`
	UnitValue   *float64 `json:"valor_unit"`
	Total       *float64 `json:"total"`
	BankColumn  string   `json:"banco_coluna,omitempty"`
}

// Key is the raw identity key "{code}|{bank}".
func (l Line) Key() string { return reconcile.Key(l.Code, l.Bank) }

// InputLine is an elementary input row (insumo).
type InputLine Line

// Block is one budget item decomposed into its principal composition, the
// auxiliary compositions it uses and its inputs.
type Block struct {
	Item        string      `json:"item"`
	Principal   Line        `json:"principal"`
	Auxiliaries []Line      `json:"composicoes_auxiliares"`
	Inputs      []InputLine `json:"insumos"`
}

// Set is the composition section of a parse response. Principals and global
// auxiliaries are keyed by raw "{code}|{bank}".
type Set struct {
	Principals        map[string]*Block `json:"principais"`
	GlobalAuxiliaries map[string]Line   `json:"auxiliares_globais"`
	AuxiliaryAliases  map[string]string `json:"aliases_auxiliares"`
}

// EmptySet returns a set whose maps encode as {} rather than null.
func EmptySet() Set {
	return Set{
		Principals:        map[string]*Block{},
		GlobalAuxiliaries: map[string]Line{},
		AuxiliaryAliases:  map[string]string{},
	}
}

// Result is the output of one composition pass.
type Result struct {
	Set    Set
	Report *validation.Report
}
