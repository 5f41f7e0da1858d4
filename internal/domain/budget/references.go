package budget

import (
	"sort"
	"strings"

	"github.com/FACorreiaa/orcamento-import/internal/domain/reconcile"
	"github.com/FACorreiaa/orcamento-import/internal/domain/validation"
	"github.com/FACorreiaa/orcamento-import/pkg/money"
)

// insumoBank is the only bank whose catalogue prints elementary inputs with a
// "0000" code prefix.
const insumoBank = "SINAPI"

// looksLikeInsumo reports whether a budget line cites an elementary input
// instead of a composition.
func looksLikeInsumo(code, bank string) bool {
	code = strings.TrimSpace(code)
	if !strings.EqualFold(strings.TrimSpace(bank), insumoBank) || len(code) < 6 || !strings.HasPrefix(code, "0000") {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// collectReferences lists the line items the composition section should
// detail, in document order. Placeholder codes and cited inputs are left out
// with a warning.
func collectReferences(tree *Tree, report *validation.Report) []reconcile.ExpectedReference {
	var refs []reconcile.ExpectedReference
	var placeholders []string
	insumos := make(map[string]struct{})

	tree.Walk(func(n *Node) {
		if !n.IsItem() {
			return
		}
		code := strings.TrimSpace(n.Code)
		bank := strings.TrimSpace(n.Source)
		if n.Item == "" || code == "" || bank == "" {
			return
		}
		if strings.EqualFold(code, PlaceholderCode) {
			placeholders = append(placeholders, n.Item)
			return
		}
		if looksLikeInsumo(code, bank) {
			insumos[reconcile.Key(code, bank)+" (item "+n.Item+")"] = struct{}{}
			return
		}
		refs = append(refs, reconcile.ExpectedReference{
			Item:           n.Item,
			Code:           code,
			Bank:           bank,
			CostWithoutBDI: money.ParseRegionalPtr(n.UnitCostWithoutBDI),
			CostWithBDI:    money.ParseRegionalPtr(n.UnitCostWithBDI),
		})
	})

	cited := make([]string, 0, len(insumos))
	for k := range insumos {
		cited = append(cited, k)
	}
	sort.Strings(cited)
	for _, k := range cited {
		report.Warn("budget: input cited as a budget item: %s, review the source document", k)
	}

	if len(placeholders) > 0 {
		examples := placeholders
		if len(examples) > 10 {
			examples = examples[:10]
		}
		report.Warn("budget: %d item(s) with missing or broken code (%s placeholder), e.g. item %s",
			len(placeholders), PlaceholderCode, strings.Join(examples, ", item "))
	}
	return refs
}
