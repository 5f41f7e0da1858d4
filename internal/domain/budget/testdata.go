package budget

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/FACorreiaa/orcamento-import/pkg/money"
)

// TestDataGenerator generates synthetic budget documents using gofakeit.
type TestDataGenerator struct {
	faker *gofakeit.Faker
}

// NewTestDataGeneratorWithSeed creates a generator with a specific seed for reproducibility.
func NewTestDataGeneratorWithSeed(seed int64) *TestDataGenerator {
	return &TestDataGenerator{faker: gofakeit.New(seed)}
}

// GeneratedNode is the expected placement of one generated row.
type GeneratedNode struct {
	Item   string
	Parent string // empty for top-level groups
	IsItem bool
}

// GeneratedBudget is a synthetic budget rendered as page text.
type GeneratedBudget struct {
	Pages      []string
	Nodes      []GeneratedNode
	TotalCents int64
}

// Budget renders metas top-level groups, nested depth levels deep, each group
// holding up to itemsPerGroup line items. Every total adds up exactly.
func (g *TestDataGenerator) Budget(metas, depth, itemsPerGroup int) GeneratedBudget {
	var out GeneratedBudget
	var lines []string
	for m := 1; m <= metas; m++ {
		l, total := g.group(fmt.Sprint(m), "", 1, depth, itemsPerGroup, &out.Nodes)
		lines = append(lines, l...)
		out.TotalCents += total
	}

	half := len(lines) / 2
	out.Pages = []string{
		"ORÇAMENTO SINTÉTICO\n" + strings.Join(lines[:half], "\n"),
		strings.Join(lines[half:], "\n") + "\nTOTAL SEM BDI " + Regional(out.TotalCents),
	}
	return out
}

func (g *TestDataGenerator) group(item, parent string, level, depth, itemsPerGroup int, nodes *[]GeneratedNode) ([]string, int64) {
	*nodes = append(*nodes, GeneratedNode{Item: item, Parent: parent})

	var body []string
	var total int64
	child := 1
	for n := g.faker.Number(1, itemsPerGroup); n > 0; n-- {
		line, partial := g.item(fmt.Sprintf("%s.%d", item, child))
		*nodes = append(*nodes, GeneratedNode{Item: fmt.Sprintf("%s.%d", item, child), Parent: item, IsItem: true})
		body = append(body, line)
		total += partial
		child++
	}
	if level < depth {
		for n := g.faker.Number(1, 2); n > 0; n-- {
			l, sub := g.group(fmt.Sprintf("%s.%d", item, child), item, level+1, depth, itemsPerGroup, nodes)
			body = append(body, l...)
			total += sub
			child++
		}
	}

	heading := fmt.Sprintf("%s %s %s", item, g.words(2, true), Regional(total))
	return append([]string{heading}, body...), total
}

func (g *TestDataGenerator) item(item string) (string, int64) {
	quant := int64(g.faker.Number(1, 300))
	unitWithBDI := int64(g.faker.Number(100, 99999))
	unitWithoutBDI := unitWithBDI * 100 / 125
	partial := quant * unitWithBDI

	line := fmt.Sprintf("%s %d SINAPI %s M2 %s %s %s %s",
		item,
		g.faker.Number(100000, 999999),
		g.words(3, false),
		Regional(quant*100),
		Regional(unitWithoutBDI),
		Regional(unitWithBDI),
		Regional(partial),
	)
	return line, partial
}

// words returns n letter-only nouns that cannot be mistaken for column headers.
func (g *TestDataGenerator) words(n int, upper bool) string {
	out := make([]string, 0, n)
	for len(out) < n {
		w := g.faker.Noun()
		if len(w) < 3 || !isLetters(w) {
			continue
		}
		if _, bad := blacklistWord(strings.ToUpper(w)); bad {
			continue
		}
		if upper {
			w = strings.ToUpper(w)
		}
		out = append(out, w)
	}
	return strings.Join(out, " ")
}

func blacklistWord(w string) (string, bool) {
	for _, b := range headingBlacklist {
		if w == b {
			return b, true
		}
	}
	return "", false
}

func isLetters(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// Regional formats a cent amount the way the documents print it ("1.234,56").
func Regional(cents int64) string {
	return strings.TrimPrefix(money.Display(float64(cents)/100), "R$")
}
