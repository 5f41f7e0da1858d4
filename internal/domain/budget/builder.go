package budget

import (
	"strings"

	"github.com/FACorreiaa/orcamento-import/internal/domain/import/normalizer"
	"github.com/FACorreiaa/orcamento-import/internal/domain/validation"
	"github.com/FACorreiaa/orcamento-import/pkg/config"
)

// maxLookahead bounds how many following lines an item may borrow while
// looking for its numeric tail.
const maxLookahead = 2

// ParseRange builds the budget tree from the plain text of each page in the
// budget range, validates its arithmetic and collects the references the
// composition section is expected to detail. It never fails: problems are
// recorded in the result's report.
func ParseRange(pages []string, cfg config.SourceConfig, ctx normalizer.Context) Result {
	report := validation.NewReport()
	dynamic := ctx.Markers()
	pats := newPatterns(cfg.Synthetic.Sources)

	lines := selectLines(pages, cfg, dynamic, pats)
	if len(lines) == 0 {
		report.Error("budget: no budget lines detected in the requested page range")
		return Result{Tree: EmptyTree(), References: nil, Report: report}
	}

	b := newBuilder(cfg, dynamic, pats, report)
	b.run(lines)

	tree := Tree{Roots: b.root.Children, Flat: b.flat}
	if tree.Roots == nil {
		tree.Roots = []*Node{}
	}
	if tree.Flat == nil {
		tree.Flat = []string{}
	}

	total := validateTree(tree.Roots, cfg, report)
	tree.Total = &total

	return Result{
		Tree:       tree,
		References: collectReferences(&tree, report),
		Report:     report,
	}
}

// selectLines turns page text into the budget lines: glued markers split,
// ignored and header lines removed, noise dropped and inline markers cut, then
// everything before the first budget row and after a stop marker discarded.
func selectLines(pages []string, cfg config.SourceConfig, dynamic []string, pats *patterns) []string {
	syn := cfg.Synthetic
	san := cfg.Sanitizer

	ignore := normalizer.NewMarkerSet(syn.IgnoreMarkers, nil)
	headers := make(map[string]struct{}, len(syn.HeaderMarkers))
	for _, h := range syn.HeaderMarkers {
		headers[h] = struct{}{}
	}

	var raw []string
	for _, page := range pages {
		fixed := normalizer.SplitGluedMarkers(page, san.BreakBefore, dynamic)
		for _, ln := range normalizer.NormalizeLines(fixed) {
			if ignore.ContainsAny(ln) {
				continue
			}
			if _, ok := headers[ln]; ok {
				continue
			}
			if hasAnyPrefix(ln, syn.HeaderPrefixes) {
				continue
			}
			raw = append(raw, ln)
		}
	}

	raw = normalizer.DropOrTruncateLines(raw, san.DropLinesIfContains, san.StripInlineFrom, dynamic)

	stop := normalizer.NewMarkerSet(syn.StopMarkers, nil)
	started := false
	var lines []string
	for _, ln := range raw {
		if !started {
			if !opensBudget(ln, pats) {
				continue
			}
			started = true
		} else if stop.ContainsAny(ln) {
			break
		}
		lines = append(lines, ln)
	}
	return lines
}

// opensBudget reports whether ln is the first row of the budget proper: a
// group heading with its total or a line item.
func opensBudget(ln string, pats *patterns) bool {
	if pats.startsItem(ln) {
		return true
	}
	g := submatch(groupTotalPattern, ln)
	return g != nil && pats.probableHeading(g["desc"])
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

type stackEntry struct {
	level int
	node  *Node
}

// builder is the per-invocation state of the line state machine: the pending
// item buffer, the stack of open ancestors and the node receiving
// continuation text.
type builder struct {
	cfg    config.SourceConfig
	pats   *patterns
	trunc  *normalizer.Truncator
	toxic  *normalizer.MarkerSet
	report *validation.Report

	root     Node
	stack    []stackEntry
	flat     []string
	lastItem *Node
	buf      []string
}

func newBuilder(cfg config.SourceConfig, dynamic []string, pats *patterns, report *validation.Report) *builder {
	b := &builder{
		cfg:    cfg,
		pats:   pats,
		trunc:  normalizer.NewTruncator(cfg.Sanitizer.StripInlineFrom, dynamic),
		toxic:  normalizer.NewMarkerSet(cfg.Sanitizer.ToxicForContinuation, dynamic),
		report: report,
	}
	b.stack = []stackEntry{{level: 0, node: &b.root}}
	return b
}

// push attaches n under the nearest open ancestor with a strictly lower level.
func (b *builder) push(n *Node) {
	level := n.Level()
	for len(b.stack) > 1 && b.stack[len(b.stack)-1].level >= level {
		b.stack = b.stack[:len(b.stack)-1]
	}
	parent := b.stack[len(b.stack)-1].node
	parent.Children = append(parent.Children, n)
	b.stack = append(b.stack, stackEntry{level: level, node: n})

	if n.IsItem() {
		b.lastItem = n
		b.flat = append(b.flat, n.Item)
	} else {
		b.lastItem = nil
	}
}

func (b *builder) pushGroup(item, desc, total string) {
	b.push(&Node{
		Type:        groupType(item),
		Item:        item,
		Description: desc,
		TotalCost:   strings.TrimSpace(total),
		Children:    []*Node{},
	})
}

func lookahead(lines []string, from int) []string {
	if from >= len(lines) {
		return nil
	}
	return lines[from:min(from+maxLookahead, len(lines))]
}

func (b *builder) run(lines []string) {
	for i := 0; i < len(lines); {
		ln := lines[i]

		if len(b.buf) > 0 {
			if normalizer.LooksLikeNewRow(ln) {
				// The new row itself is never borrowed; reprocess it.
				b.flush(lookahead(lines, i))
				continue
			}
			b.buf = append(b.buf, ln)
			if itemTailPattern.MatchString(strings.Join(b.buf, " ")) {
				i += b.flush(lookahead(lines, i+1))
			}
			i++
			continue
		}

		if b.pats.startsItem(ln) {
			b.buf = []string{ln}
			if itemTailPattern.MatchString(ln) {
				i += b.flush(lookahead(lines, i+1))
			}
			i++
			continue
		}

		if g := submatch(groupTotalPattern, ln); g != nil {
			if b.pats.probableHeading(g["desc"]) {
				b.pushGroup(g["item"], g["desc"], g["total"])
			} else if !b.appendContinuation(ln) {
				b.report.Warn("budget: suspicious group kept, review it: %s", validation.Truncate(ln, 180))
				b.pushGroup(g["item"], g["desc"], g["total"])
			}
			i++
			continue
		}

		if g := submatch(groupPattern, ln); g != nil && b.pats.probableHeading(g["desc"]) {
			total := ""
			if i+1 < len(lines) && onlyNumberPattern.MatchString(lines[i+1]) {
				total = lines[i+1]
				i++
			}
			if total == "" {
				val := b.cfg.Validation
				if val.AllowMissingGroupTotal {
					b.report.Warn("budget: group %s has no total in the document", g["item"])
				} else {
					b.report.Error("budget: group %s has no total and missing totals are not allowed", g["item"])
				}
				total = val.MissingGroupTotalValue
			}
			b.pushGroup(g["item"], g["desc"], total)
			i++
			continue
		}

		if b.appendContinuation(ln) {
			i++
			continue
		}

		b.report.Warn("budget: line ignored, matches no item or group: %s", validation.Truncate(ln, 180))
		i++
	}

	if len(b.buf) > 0 {
		b.flush(nil)
	}
}

// appendContinuation appends ln to the specification of the last item when
// it is a safe continuation.
func (b *builder) appendContinuation(ln string) bool {
	if b.lastItem == nil || !normalizer.IsSafeContinuation(ln, b.toxic) {
		return false
	}
	b.lastItem.Specification = strings.TrimSpace(b.lastItem.Specification + " " + b.trunc.Clean(ln))
	return true
}

// flush finalizes the pending buffer, pushes the item when one was parsed and
// returns how many lookahead lines were consumed.
func (b *builder) flush(ahead []string) int {
	buf := b.buf
	b.buf = nil

	n, used := b.finalize(buf, ahead)
	if n == nil {
		b.report.Warn("budget: item could not be parsed: %s", validation.Truncate(strings.Join(buf, " "), 180))
		return 0
	}
	b.push(n)
	return used
}

// finalize parses the buffered lines as one item, borrowing up to
// len(ahead) following lines while the numbers do not add up, as long as the
// borrowed line does not start a new row. When borrowing never produces a
// valid item, the last parsed candidate is returned with its failure recorded
// and only the lines it used are consumed.
func (b *builder) finalize(buf, ahead []string) (*Node, int) {
	cur := append([]string(nil), buf...)
	maxExtra := min(maxLookahead, len(ahead))

	var (
		best            *Node
		bestDiv         validation.Divergence
		bestExtra       int
		bestPlaceholder bool
	)

	for extra := 0; ; extra++ {
		n, placeholder := b.parseItem(strings.Join(cur, " "))
		canBorrow := extra < maxExtra && !normalizer.LooksLikeNewRow(ahead[extra])

		if n != nil {
			ok, div := b.validateItem(n)
			if ok {
				return b.accept(n, placeholder, true, div), extra
			}
			best, bestDiv, bestExtra, bestPlaceholder = n, div, extra, placeholder
		}

		if canBorrow {
			cur = append(cur, ahead[extra])
			continue
		}
		if best == nil {
			return nil, extra
		}
		return b.accept(best, bestPlaceholder, false, bestDiv), bestExtra
	}
}

// accept records the diagnostics of a finalized item and returns it.
func (b *builder) accept(n *Node, placeholder, ok bool, div validation.Divergence) *Node {
	if placeholder {
		b.report.Warn("budget: item %s marks a COMPOSIÇÃO with a missing or broken code, kept as codigo=%q", n.Item, PlaceholderCode)
	}
	if !ok {
		b.report.AddDivergence(div)
		b.report.Error("budget: item %s failed validation: %s", n.Item, div.Reason)
	}
	return n
}

// parseItem reads an item row. The second result is true when the row names
// a COMPOSIÇÃO without a code.
func (b *builder) parseItem(text string) (*Node, bool) {
	tail := submatch(itemTailPattern, text)
	if tail == nil {
		return nil, false
	}

	head := submatch(b.pats.itemStart, text)
	placeholder := false
	if head == nil {
		if head = submatch(b.pats.compositionStart, text); head == nil {
			return nil, false
		}
		head["code"] = PlaceholderCode
		placeholder = true
	}

	spec := itemTailPattern.ReplaceAllString(head["rest"], "")
	return &Node{
		contaminated:       b.trunc.Contaminated(spec),
		Type:               TypeItem,
		Item:               head["item"],
		Code:               head["code"],
		Source:             head["source"],
		Specification:      b.trunc.Clean(spec),
		Unit:               tail["und"],
		Quantity:           tail["quant"],
		UnitCostWithoutBDI: tail["sbdi"],
		UnitCostWithBDI:    tail["cbdi"],
		PartialCost:        tail["partial"],
		Children:           []*Node{},
	}, placeholder
}
