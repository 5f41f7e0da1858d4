package composition

import (
	"sort"
	"strings"

	"github.com/FACorreiaa/orcamento-import/internal/domain/document"
	"github.com/FACorreiaa/orcamento-import/internal/domain/import/normalizer"
	"github.com/FACorreiaa/orcamento-import/internal/domain/reconcile"
	"github.com/FACorreiaa/orcamento-import/internal/domain/validation"
	"github.com/FACorreiaa/orcamento-import/pkg/config"
)

// ParseRange extracts the composition blocks found in pages start..end
// (1-based, inclusive) of pageRows, repairs truncated principal codes against
// refs, resolves auxiliary aliases and reconciles the principals with refs.
// The range is clamped to the available pages with a warning. Like the
// budget pass it never fails: problems go to the report.
func ParseRange(
	pageRows [][][]string,
	start, end int,
	cfg config.SourceConfig,
	refs []reconcile.ExpectedReference,
	ctx normalizer.Context,
) Result {
	report := validation.NewReport()

	s, e, warning := document.ClampRange(start, end, len(pageRows))
	if warning != "" {
		report.Warn("compositions: %s", warning)
	}
	if s == 0 {
		report.Error("compositions: no table rows detected in the requested page range")
		return Result{Set: EmptySet(), Report: report}
	}

	x := newExtractor(cfg, refs, ctx, report)
	for _, rows := range pageRows[s-1 : e] {
		for _, row := range rows {
			x.row(row)
		}
	}
	x.closeBlock()

	if x.rows == 0 {
		report.Error("compositions: no table rows detected in the requested page range")
	}
	if x.strays > 0 {
		report.Warn("compositions: %d auxiliary or input row(s) outside any composition block were ignored", x.strays)
	}

	x.set.AuxiliaryAliases = reconcile.ResolveAliases(x.principalKeys(), x.auxiliaryKeys())

	report.Warn("compositions: processed pages %d-%d; principals=%d; global auxiliaries=%d; aliases=%d",
		s, e, len(x.set.Principals), len(x.set.GlobalAuxiliaries), len(x.set.AuxiliaryAliases))

	if len(refs) > 0 {
		reconcile.CrossReconcile(refs, x.detected(), report)
	}
	return Result{Set: x.set, Report: report}
}

// extractor is the state of one composition pass: the open block, the item
// number announced by the last block header and everything collected so far.
type extractor struct {
	index  *reconcile.Index
	trunc  *normalizer.Truncator
	skip   *normalizer.MarkerSet
	report *validation.Report

	set         Set
	block       *Block
	currentItem string
	recovered   map[string]struct{}
	rows        int
	strays      int
}

func newExtractor(cfg config.SourceConfig, refs []reconcile.ExpectedReference, ctx normalizer.Context, report *validation.Report) *extractor {
	skip := make([]string, 0, len(cfg.Compositions.SkipMarkers))
	for _, m := range cfg.Compositions.SkipMarkers {
		skip = append(skip, strings.ToUpper(m))
	}
	return &extractor{
		index:     reconcile.NewIndex(refs),
		trunc:     normalizer.NewTruncator(nil, ctx.Markers()),
		skip:      normalizer.NewMarkerSet(skip, nil),
		report:    report,
		set:       EmptySet(),
		recovered: make(map[string]struct{}),
	}
}

func (x *extractor) row(row []string) {
	if len(row) == 0 || blankRow(row) {
		return
	}
	x.rows++
	row = mergeSplitLabel(row)

	if isItemHeader(row) {
		x.closeBlock()
		x.currentItem = cell(row, 0)
		return
	}
	if isColumnHeader(row) {
		return
	}

	label := cell(row, 0)
	if x.skip.ContainsAny(strings.ToUpper(label)) {
		return
	}

	kind := Classify(label)
	if kind == RowNone {
		return
	}
	line := lineFromRow(row, kind, x.trunc)

	switch kind {
	case RowComposition:
		x.openBlock(line)
	case RowAuxiliary:
		if x.block == nil {
			x.strays++
			return
		}
		x.block.Auxiliaries = append(x.block.Auxiliaries, line)
		x.set.GlobalAuxiliaries[line.Key()] = line
	case RowInput:
		if x.block == nil {
			x.strays++
			return
		}
		x.block.Inputs = append(x.block.Inputs, InputLine(line))
	}
}

// openBlock closes the current block and starts a new one for principal,
// after repairing a truncated code against the expected references.
func (x *extractor) openBlock(principal Line) {
	x.closeBlock()

	if full, ok := x.index.Recover(principal.Code, principal.Bank); ok &&
		normalizer.NormCode(full) != normalizer.NormCode(principal.Code) {
		key := principal.Key()
		if _, seen := x.recovered[key]; !seen {
			x.recovered[key] = struct{}{}
			x.report.Warn("compositions: truncated code recovered: '%s' -> '%s' (bank=%s)", principal.Code, full, principal.Bank)
		}
		principal.Code = full
	}

	item := x.currentItem
	if item == "" {
		item = x.index.ItemFor(principal.Code, principal.Bank)
	}

	x.block = &Block{
		Item:        item,
		Principal:   principal,
		Auxiliaries: []Line{},
		Inputs:      []InputLine{},
	}
}

func (x *extractor) closeBlock() {
	if x.block == nil {
		return
	}
	key := x.block.Principal.Key()
	if _, dup := x.set.Principals[key]; dup {
		x.report.Warn("compositions: principal %s appears more than once, keeping the last block", key)
	}
	x.set.Principals[key] = x.block
	x.block = nil
}

func (x *extractor) principalKeys() []string {
	keys := make([]string, 0, len(x.set.Principals))
	for k := range x.set.Principals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (x *extractor) auxiliaryKeys() []string {
	keys := make([]string, 0, len(x.set.GlobalAuxiliaries))
	for k := range x.set.GlobalAuxiliaries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (x *extractor) detected() []reconcile.Detected {
	out := make([]reconcile.Detected, 0, len(x.set.Principals))
	for _, k := range x.principalKeys() {
		p := x.set.Principals[k].Principal
		out = append(out, reconcile.Detected{Code: p.Code, Bank: p.Bank, UnitValue: p.UnitValue})
	}
	return out
}
