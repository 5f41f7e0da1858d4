package budget

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/orcamento-import/internal/domain/validation"
	"github.com/FACorreiaa/orcamento-import/pkg/config"
	"github.com/FACorreiaa/orcamento-import/pkg/money"
)

// validateItem checks quant x unit cost (with BDI) against the partial cost.
// Items lacking any of the three numbers pass: there is nothing to check.
// Lines reach the builder already truncated, so a marker can only surface
// once a wrapped item is joined, e.g. a site name split over two lines.
func (b *builder) validateItem(n *Node) (bool, validation.Divergence) {
	if b.cfg.Validation.FailIfContaminatedText && n.contaminated {
		return false, validation.Divergence{
			Kind:   validation.KindItem,
			Item:   n.Item,
			Reason: "contaminated especificacao (markers detected)",
		}
	}

	q, okQ := money.ParseRegionalDecimal(n.Quantity)
	u, okU := money.ParseRegionalDecimal(n.UnitCostWithBDI)
	p, okP := money.ParseRegionalDecimal(n.PartialCost)
	if !okQ || !okU || !okP {
		return true, validation.Divergence{}
	}

	c := b.cfg.ItemTolerance().Compare(q.Mul(u), p)
	if c.Within {
		return true, validation.Divergence{}
	}
	reason := fmt.Sprintf("partial %s != quant*unit %s (tol %s)",
		p.StringFixed(2), c.Expected.StringFixed(2), c.Tolerance.StringFixed(2))
	return false, validation.FromComparison(validation.KindItem, n.Item, c, reason)
}

// validateTree compares every group's declared total with the sum of its
// children and returns the sum of nodes. Items contribute their partial
// cost, groups the sum of their own children. Absent totals are skipped.
func validateTree(nodes []*Node, cfg config.SourceConfig, report *validation.Report) float64 {
	return money.Float(sumAndCheck(nodes, cfg, report))
}

func sumAndCheck(nodes []*Node, cfg config.SourceConfig, report *validation.Report) decimal.Decimal {
	val := cfg.Validation
	tol := cfg.GroupTolerance()

	sum := decimal.Zero
	for _, n := range nodes {
		if n.IsItem() {
			if p, ok := money.ParseRegionalDecimal(n.PartialCost); ok {
				sum = sum.Add(p)
			}
			continue
		}

		childSum := sumAndCheck(n.Children, cfg, report)
		sum = sum.Add(childSum)

		raw := strings.TrimSpace(n.TotalCost)
		if raw == "" || raw == val.MissingGroupTotalValue {
			continue
		}
		total, ok := money.ParseRegionalDecimal(raw)
		if !ok {
			report.Warn("budget: non-numeric custo_total in group %s: %q", n.Item, raw)
			continue
		}

		c := tol.Compare(total, childSum)
		if val.ReportAllGroupChecks || !c.Within {
			report.AddDivergence(validation.FromComparison(validation.KindGroup, n.Item, c, groupReason(c)))
		}
		if !c.Within {
			report.Error("budget: group %s children sum %s differs from custo_total %s (tol %s)",
				n.Item, c.Actual.StringFixed(2), c.Expected.StringFixed(2), c.Tolerance.StringFixed(2))
		}
	}
	return sum
}

func groupReason(c money.Comparison) string {
	if c.Within {
		return "ok"
	}
	return "children sum differs from custo_total"
}
