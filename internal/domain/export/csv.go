// Package export renders a parse response as JSON, CSV or an XLSX workbook.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/gocarina/gocsv"

	"github.com/FACorreiaa/orcamento-import/internal/domain/budget"
	importservice "github.com/FACorreiaa/orcamento-import/internal/domain/import/service"
	"github.com/FACorreiaa/orcamento-import/internal/domain/reconcile"
)

// Reference statuses.
const (
	StatusFound   = "encontrado"
	StatusMissing = "faltando"
)

// Delimiter is the field separator of the CSV files, the one spreadsheet
// applications expect for pt-BR locales.
const Delimiter = ';'

type referenceRow struct {
	Item           string `csv:"item"`
	Code           string `csv:"codigo"`
	Bank           string `csv:"banco"`
	CostWithoutBDI string `csv:"custo_sem_bdi"`
	CostWithBDI    string `csv:"custo_com_bdi"`
	Status         string `csv:"situacao"`
}

type itemRow struct {
	Type               string `csv:"tipo"`
	Item               string `csv:"item"`
	Code               string `csv:"codigo"`
	Source             string `csv:"fonte"`
	Description        string `csv:"descricao"`
	Unit               string `csv:"und"`
	Quantity           string `csv:"quant"`
	UnitCostWithoutBDI string `csv:"custo_unitario_sem_bdi"`
	UnitCostWithBDI    string `csv:"custo_unitario_com_bdi"`
	PartialCost        string `csv:"custo_parcial"`
	TotalCost          string `csv:"custo_total"`
}

func newCSVWriter(w io.Writer) *gocsv.SafeCSVWriter {
	cw := csv.NewWriter(w)
	cw.Comma = Delimiter
	return gocsv.NewSafeCSVWriter(cw)
}

// WriteJSON writes the response as indented JSON.
func WriteJSON(w io.Writer, resp *importservice.Response) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(resp); err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}
	return nil
}

// WriteReferencesCSV writes the expected references, each marked found or
// missing according to the missing keys of the reconciliation.
func WriteReferencesCSV(w io.Writer, refs []reconcile.ExpectedReference, missing []string) error {
	missingKeys := make(map[string]struct{}, len(missing))
	for _, k := range missing {
		missingKeys[k] = struct{}{}
	}

	rows := make([]*referenceRow, 0, len(refs))
	for _, r := range refs {
		status := StatusFound
		if _, ok := missingKeys[r.RawKey()]; ok {
			status = StatusMissing
		}
		rows = append(rows, &referenceRow{
			Item:           r.Item,
			Code:           r.Code,
			Bank:           r.Bank,
			CostWithoutBDI: formatCost(r.CostWithoutBDI),
			CostWithBDI:    formatCost(r.CostWithBDI),
			Status:         status,
		})
	}

	if err := gocsv.MarshalCSV(&rows, newCSVWriter(w)); err != nil {
		return fmt.Errorf("failed to write references csv: %w", err)
	}
	return nil
}

// WriteItemsCSV writes every node of the budget tree in document order.
func WriteItemsCSV(w io.Writer, tree budget.Tree) error {
	var rows []*itemRow
	tree.Walk(func(n *budget.Node) {
		desc := n.Description
		if n.IsItem() {
			desc = n.Specification
		}
		rows = append(rows, &itemRow{
			Type:               n.Type,
			Item:               n.Item,
			Code:               n.Code,
			Source:             n.Source,
			Description:        desc,
			Unit:               n.Unit,
			Quantity:           n.Quantity,
			UnitCostWithoutBDI: n.UnitCostWithoutBDI,
			UnitCostWithBDI:    n.UnitCostWithBDI,
			PartialCost:        n.PartialCost,
			TotalCost:          n.TotalCost,
		})
	})

	if err := gocsv.MarshalCSV(&rows, newCSVWriter(w)); err != nil {
		return fmt.Errorf("failed to write items csv: %w", err)
	}
	return nil
}

func formatCost(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}
