// Package budget builds the synthetic budget tree (groups and line items) out
// of line-wrapped page text and checks its arithmetic.
package budget

import (
	"strings"

	"github.com/FACorreiaa/orcamento-import/internal/domain/reconcile"
	"github.com/FACorreiaa/orcamento-import/internal/domain/validation"
)

// Node types.
const (
	TypeMeta    = "meta"
	TypeSubmeta = "submeta"
	TypeItem    = "item"
)

// PlaceholderCode marks a line item whose code was lost in extraction.
const PlaceholderCode = "COMPOSICAO"

// Node is a group (meta or submeta) or a line item of the budget. Numeric
// fields hold the text as printed; they are parsed only for validation.
type Node struct {
	Type string `json:"tipo"`
	Item string `json:"item"`

	// Groups
	Description string `json:"descricao,omitempty"`
	TotalCost   string `json:"custo_total,omitempty"`

	// Line items
	Code               string `json:"codigo,omitempty"`
	Source             string `json:"fonte,omitempty"`
	Specification      string `json:"especificacao,omitempty"`
	Unit               string `json:"und,omitempty"`
	Quantity           string `json:"quant,omitempty"`
	UnitCostWithoutBDI string `json:"custo_unitario_sem_bdi,omitempty"`
	UnitCostWithBDI    string `json:"custo_unitario_com_bdi,omitempty"`
	PartialCost        string `json:"custo_parcial,omitempty"`

	Children []*Node `json:"filhos"`

	// contaminated is set when the joined item text carried a marker that
	// cleaning had to cut.
	contaminated bool
}

// Level is the nesting depth implied by the dotted item number: "9" is 1,
// "9.4.1" is 3.
func (n *Node) Level() int {
	return Level(n.Item)
}

// IsItem reports whether n is a line item.
func (n *Node) IsItem() bool {
	return n.Type == TypeItem
}

// Level returns the depth of a dotted item number.
func Level(item string) int {
	return strings.Count(item, ".") + 1
}

// groupType is meta for top-level numbers and submeta below.
func groupType(item string) string {
	if strings.Contains(item, ".") {
		return TypeSubmeta
	}
	return TypeMeta
}

// Tree is the synthetic budget.
type Tree struct {
	Description string   `json:"descricao"`
	Total       *float64 `json:"total"`
	Roots       []*Node  `json:"itens_raiz"`
	// Flat lists the item number of every line item in document order.
	Flat []string `json:"itens_plano"`
}

// Walk visits every node depth-first in document order.
func (t *Tree) Walk(fn func(n *Node)) {
	var walk func(nodes []*Node)
	walk = func(nodes []*Node) {
		for _, n := range nodes {
			fn(n)
			walk(n.Children)
		}
	}
	walk(t.Roots)
}

// EmptyTree returns a tree with no nodes that encodes lists as [].
func EmptyTree() Tree {
	return Tree{Roots: []*Node{}, Flat: []string{}}
}

// Result is the outcome of a budget pass.
type Result struct {
	Tree       Tree
	References []reconcile.ExpectedReference
	Report     *validation.Report
}
