package export

import (
	"fmt"
	"io"
	"sort"

	"github.com/xuri/excelize/v2"

	"github.com/FACorreiaa/orcamento-import/internal/domain/budget"
	"github.com/FACorreiaa/orcamento-import/internal/domain/composition"
	importservice "github.com/FACorreiaa/orcamento-import/internal/domain/import/service"
	"github.com/FACorreiaa/orcamento-import/pkg/money"
)

// Sheet names of the exported workbook.
const (
	SheetBudget       = "Orçamento"
	SheetCompositions = "Composições"
	SheetValidation   = "Validação"
)

var (
	budgetHeader = []any{
		"Tipo", "Item", "Código", "Fonte", "Descrição", "Und",
		"Quant.", "Custo unit. s/ BDI", "Custo unit. c/ BDI", "Custo parcial", "Custo total",
	}
	compositionHeader = []any{
		"Item", "Principal", "Linha", "Código", "Banco", "Descrição", "Tipo", "Und",
		"Quant.", "Valor unit.", "Total",
	}
	validationHeader = []any{"Categoria", "Item", "Mensagem", "Esperado", "Obtido", "Diferença", "Tolerância"}
)

// WriteWorkbook renders the response as an XLSX workbook with one sheet for
// the budget, one for the compositions and one for the validation report.
func WriteWorkbook(w io.Writer, resp *importservice.Response) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	if err := f.SetSheetName("Sheet1", SheetBudget); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}
	for _, name := range []string{SheetCompositions, SheetValidation} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", name, err)
		}
	}

	sheets := []struct {
		name   string
		header []any
		rows   [][]any
	}{
		{SheetBudget, budgetHeader, budgetRows(resp.Budget)},
		{SheetCompositions, compositionHeader, compositionRows(resp.Compositions)},
		{SheetValidation, validationHeader, validationRows(resp)},
	}
	for _, s := range sheets {
		if err := writeSheet(f, s.name, bold, s.header, s.rows); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, headerStyle int, header []any, rows [][]any) error {
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write %s header: %w", sheet, err)
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("failed to style %s header: %w", sheet, err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, i+2, err)
		}
	}
	return nil
}

// number turns a printed amount into a numeric cell, keeping the text when it
// does not parse.
func number(s string) any {
	if s == "" {
		return nil
	}
	if v := money.ParseRegionalPtr(s); v != nil {
		return *v
	}
	return s
}

func optional(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func budgetRows(tree budget.Tree) [][]any {
	var rows [][]any
	tree.Walk(func(n *budget.Node) {
		desc := n.Description
		if n.IsItem() {
			desc = n.Specification
		}
		rows = append(rows, []any{
			n.Type, n.Item, n.Code, n.Source, desc, n.Unit,
			number(n.Quantity),
			number(n.UnitCostWithoutBDI),
			number(n.UnitCostWithBDI),
			number(n.PartialCost),
			number(n.TotalCost),
		})
	})
	if tree.Total != nil {
		rows = append(rows, []any{"total", "", "", "", "", "", nil, nil, nil, nil, *tree.Total})
	}
	return rows
}

func compositionRows(set composition.Set) [][]any {
	keys := make([]string, 0, len(set.Principals))
	for k := range set.Principals {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var rows [][]any
	line := func(item, principal, kind string, l composition.Line) {
		rows = append(rows, []any{
			item, principal, kind, l.Code, l.Bank, l.Description, l.Type, l.Unit,
			optional(l.Quantity), optional(l.UnitValue), optional(l.Total),
		})
	}
	for _, k := range keys {
		b := set.Principals[k]
		line(b.Item, k, "principal", b.Principal)
		for _, aux := range b.Auxiliaries {
			line(b.Item, k, "auxiliar", aux)
		}
		for _, in := range b.Inputs {
			line(b.Item, k, "insumo", composition.Line(in))
		}
	}
	return rows
}

func validationRows(resp *importservice.Response) [][]any {
	rep := resp.Validation
	if rep == nil {
		return nil
	}
	var rows [][]any
	for _, msg := range rep.Errors {
		rows = append(rows, []any{"erro", "", msg})
	}
	for _, msg := range rep.Warnings {
		rows = append(rows, []any{"aviso", "", msg})
	}
	for _, k := range rep.MissingItems {
		rows = append(rows, []any{"faltando", "", k})
	}
	for _, k := range rep.ExtraItems {
		rows = append(rows, []any{"extra", "", k})
	}
	for _, d := range rep.Divergences {
		rows = append(rows, []any{
			"divergencia " + d.Kind, d.Item, d.Reason,
			optional(d.Expected), optional(d.Actual), optional(d.Difference), optional(d.Tolerance),
		})
	}
	return rows
}
