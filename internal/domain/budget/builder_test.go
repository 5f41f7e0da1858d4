package budget

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/orcamento-import/internal/domain/import/normalizer"
	"github.com/FACorreiaa/orcamento-import/internal/domain/validation"
	"github.com/FACorreiaa/orcamento-import/pkg/config"
)

func parseLines(cfg config.SourceConfig, lines ...string) Result {
	return ParseRange([]string{strings.Join(lines, "\n")}, cfg, normalizer.Context{})
}

func find(t *testing.T, tree Tree, item string) *Node {
	t.Helper()
	var found *Node
	tree.Walk(func(n *Node) {
		if n.Item == item && found == nil {
			found = n
		}
	})
	require.NotNil(t, found, "node %s not found", item)
	return found
}

func TestParseRange_SingleLineItem(t *testing.T) {
	res := parseLines(config.DefaultSourceConfig(),
		"9 ALVENARIAS 550,00",
		"9.4 00000123 SINAPI Alvenaria M2 10,00 50,00 55,00 550,00",
	)

	assert.Empty(t, res.Report.Errors)
	assert.Empty(t, res.Report.Divergences)

	n := find(t, res.Tree, "9.4")
	assert.Equal(t, TypeItem, n.Type)
	assert.Equal(t, "00000123", n.Code)
	assert.Equal(t, "SINAPI", n.Source)
	assert.Equal(t, "Alvenaria", n.Specification)
	assert.Equal(t, "M2", n.Unit)
	assert.Equal(t, "10,00", n.Quantity)
	assert.Equal(t, "50,00", n.UnitCostWithoutBDI)
	assert.Equal(t, "55,00", n.UnitCostWithBDI)
	assert.Equal(t, "550,00", n.PartialCost)
	assert.Equal(t, []string{"9.4"}, res.Tree.Flat)

	// 0000-prefixed SINAPI codes are inputs, not compositions.
	assert.Empty(t, res.References)
	assert.True(t, containsWarning(res.Report, "input cited as a budget item: 00000123|SINAPI (item 9.4)"))
}

func TestParseRange_GroupTotals(t *testing.T) {
	children := func(second string) []string {
		return []string{
			"9 Fundações 12345,67",
			"9.1 92540 SINAPI Concreto M3 1,00 8000,00 10000,00 10000,00",
			"9.2 92541 SINAPI Forma M2 1,00 2000,00 " + second + " " + second,
		}
	}

	t.Run("children add up", func(t *testing.T) {
		res := parseLines(config.DefaultSourceConfig(), children("2345,67")...)

		assert.Empty(t, res.Report.Errors)
		assert.Empty(t, res.Report.Divergences)
		require.NotNil(t, res.Tree.Total)
		assert.Equal(t, 12345.67, *res.Tree.Total)

		group := find(t, res.Tree, "9")
		assert.Equal(t, TypeMeta, group.Type)
		assert.Equal(t, "Fundações", group.Description)
		assert.Equal(t, "12345,67", group.TotalCost)
		assert.Len(t, group.Children, 2)
	})

	t.Run("children diverge", func(t *testing.T) {
		res := parseLines(config.DefaultSourceConfig(), children("2000,00")...)

		require.Len(t, res.Report.Divergences, 1)
		d := res.Report.Divergences[0]
		assert.Equal(t, validation.KindGroup, d.Kind)
		assert.Equal(t, "9", d.Item)
		assert.Equal(t, -345.67, *d.Difference)
		require.Len(t, res.Report.Errors, 1)
		assert.Contains(t, res.Report.Errors[0], "group 9")
	})

	t.Run("report all group checks", func(t *testing.T) {
		cfg := config.DefaultSourceConfig()
		cfg.Validation.ReportAllGroupChecks = true
		res := parseLines(cfg, children("2345,67")...)

		require.Len(t, res.Report.Divergences, 1)
		assert.Equal(t, "ok", res.Report.Divergences[0].Reason)
		assert.Empty(t, res.Report.Errors)
	})
}

func TestParseRange_WrappedItem(t *testing.T) {
	res := parseLines(config.DefaultSourceConfig(),
		"1 ESTRUTURA 240,00",
		"1.1 92540 SINAPI Concreto usinado",
		"bombeável fck 25 MPa M3 2,00 100,00 120,00 240,00",
	)

	assert.Empty(t, res.Report.Errors)
	n := find(t, res.Tree, "1.1")
	assert.Equal(t, "Concreto usinado bombeável fck 25 MPa", n.Specification)
	assert.Equal(t, "240,00", n.PartialCost)
}

func TestParseRange_LookaheadRecoversTail(t *testing.T) {
	res := parseLines(config.DefaultSourceConfig(),
		"1 ESTRUTURA 60,00",
		"1.1 92540 SINAPI Forma tipo A 1 2 3 4",
		"M2 10,00 5,00 6,00 60,00",
		"2 PINTURA 10,00",
		"2.1 88489 SINAPI Pintura látex M2 1,00 8,00 10,00 10,00",
	)

	assert.Empty(t, res.Report.Errors)
	assert.Empty(t, res.Report.Divergences)

	n := find(t, res.Tree, "1.1")
	assert.Equal(t, "M2", n.Unit)
	assert.Equal(t, "10,00", n.Quantity)
	assert.Equal(t, "60,00", n.PartialCost)
	assert.Equal(t, []string{"1.1", "2.1"}, res.Tree.Flat)
	assert.Len(t, res.Tree.Roots, 2)
}

func TestParseRange_FailedItemIsKept(t *testing.T) {
	res := parseLines(config.DefaultSourceConfig(),
		"1 ESTRUTURA 70,00",
		"1.1 92540 SINAPI Forma M2 10,00 5,00 6,00 70,00",
		"1.2 92541 SINAPI Escora UN 1,00 1,00 1,00 1,00",
	)

	require.Len(t, res.Report.Errors, 2, "item and group both fail")
	assert.Contains(t, res.Report.Errors[0], "item 1.1 failed validation")

	require.NotEmpty(t, res.Report.Divergences)
	d := res.Report.Divergences[0]
	assert.Equal(t, validation.KindItem, d.Kind)
	assert.Equal(t, 60.0, *d.Expected)
	assert.Equal(t, 70.0, *d.Actual)

	assert.Equal(t, []string{"1.1", "1.2"}, res.Tree.Flat)
}

func TestParseRange_FailedItemBeforeWrappedText(t *testing.T) {
	res := parseLines(config.DefaultSourceConfig(),
		"1 FUNDAÇÕES 1.549,00",
		"1.1 88316 SINAPI Alvenaria M2 10,00 50,00 55,00 999,00",
		"de vedação em bloco",
		"1.2 88317 SINAPI Reboco M2 10,00 50,00 55,00 550,00",
	)

	require.Len(t, res.Report.Errors, 1)
	assert.Contains(t, res.Report.Errors[0], "item 1.1 failed validation")

	require.Len(t, res.Report.Divergences, 1)
	d := res.Report.Divergences[0]
	assert.Equal(t, "1.1", d.Item)
	assert.Equal(t, 550.0, *d.Expected)
	assert.Equal(t, 999.0, *d.Actual)

	assert.Equal(t, []string{"1.1", "1.2"}, res.Tree.Flat)
	n := find(t, res.Tree, "1.1")
	assert.Equal(t, "Alvenaria de vedação em bloco", n.Specification)
	assert.Equal(t, "999,00", n.PartialCost)

	require.Len(t, res.References, 2)
	assert.Equal(t, "88316", res.References[0].Code)

	for _, w := range res.Report.Warnings {
		assert.NotContains(t, w, "could not be parsed")
		assert.NotContains(t, w, "line ignored")
	}
}

func TestParseRange_ContaminatedWrappedItem(t *testing.T) {
	lines := []string{
		"1 OBRA 60,00",
		"1.1 92540 SINAPI Forma ESCOLA",
		"MUNICIPAL M2 10,00 5,00 6,00 60,00",
	}
	site := normalizer.Context{SiteName: "ESCOLA MUNICIPAL"}

	tests := []struct {
		name      string
		fail      bool
		wantError bool
	}{
		{name: "check enabled", fail: true, wantError: true},
		{name: "check disabled", fail: false, wantError: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultSourceConfig()
			cfg.Validation.FailIfContaminatedText = tt.fail

			res := ParseRange([]string{strings.Join(lines, "\n")}, cfg, site)

			n := find(t, res.Tree, "1.1")
			assert.Equal(t, "Forma", n.Specification)
			assert.Equal(t, []string{"1.1"}, res.Tree.Flat)

			if !tt.wantError {
				assert.Empty(t, res.Report.Errors)
				return
			}
			require.Len(t, res.Report.Errors, 1)
			assert.Contains(t, res.Report.Errors[0], "item 1.1 failed validation: contaminated especificacao")
			require.Len(t, res.Report.Divergences, 1)
			assert.Equal(t, validation.KindItem, res.Report.Divergences[0].Kind)
		})
	}
}

func TestParseRange_SingleLineMarkerIsNotContamination(t *testing.T) {
	res := ParseRange([]string{strings.Join([]string{
		"1 OBRA 60,00",
		"1.1 92540 SINAPI Forma M2 10,00 5,00 6,00 60,00 ESCOLA MUNICIPAL",
	}, "\n")}, config.DefaultSourceConfig(), normalizer.Context{SiteName: "ESCOLA MUNICIPAL"})

	assert.Empty(t, res.Report.Errors)
	assert.Equal(t, []string{"1.1"}, res.Tree.Flat)
}

func TestParseRange_GroupWithoutTotal(t *testing.T) {
	lines := []string{
		"1 SERVIÇOS PRELIMINARES 10,00",
		"1.1 88489 SINAPI Placa de obra UN 1,00 8,00 10,00 10,00",
		"2 FUNDAÇÕES",
		"240,00",
		"2.1 92540 SINAPI Concreto M3 2,00 100,00 120,00 240,00",
		"3 ACABAMENTO",
		"3.1 88490 SINAPI Pintura M2 1,00 8,00 10,00 10,00",
	}

	t.Run("allowed", func(t *testing.T) {
		res := parseLines(config.DefaultSourceConfig(), lines...)

		assert.Empty(t, res.Report.Errors)
		assert.Equal(t, "240,00", find(t, res.Tree, "2").TotalCost)
		assert.Empty(t, find(t, res.Tree, "3").TotalCost)
		assert.True(t, containsWarning(res.Report, "group 3 has no total"))
	})

	t.Run("not allowed", func(t *testing.T) {
		cfg := config.DefaultSourceConfig()
		cfg.Validation.AllowMissingGroupTotal = false
		cfg.Validation.MissingGroupTotalValue = "-"
		res := parseLines(cfg, lines...)

		require.Len(t, res.Report.Errors, 1)
		assert.Contains(t, res.Report.Errors[0], "group 3")
		assert.Equal(t, "-", find(t, res.Tree, "3").TotalCost)
		assert.Empty(t, res.Report.Divergences, "sentinel totals are not checked")
	})
}

func TestParseRange_ContinuationAndNoise(t *testing.T) {
	cfg := config.DefaultSourceConfig()
	cfg.Sanitizer.ToxicForContinuation = []string{"Observação"}

	res := parseLines(cfg,
		"1 ESTRUTURA 10,00",
		"1.1 88489 SINAPI Pintura M2 1,00 8,00 10,00 10,00",
		"com duas demãos",
		"Observação: ver memorial",
	)

	assert.Equal(t, "Pintura com duas demãos", find(t, res.Tree, "1.1").Specification)
	assert.True(t, containsWarning(res.Report, "line ignored, matches no item or group: Observação: ver memorial"))
}

func TestParseRange_StartAndStopGating(t *testing.T) {
	res := ParseRange([]string{
		"PREFEITURA MUNICIPAL\nOrçamento Sintético\n1 ESTRUTURA 10,00",
		"1.1 88489 SINAPI Pintura M2 1,00 8,00 10,00 10,00\nTOTAL SEM BDI 8,00\n2 IGNORADO 5,00",
	}, config.DefaultSourceConfig(), normalizer.Context{})

	assert.Empty(t, res.Report.Warnings)
	assert.Len(t, res.Tree.Roots, 1)
	assert.Equal(t, []string{"1.1"}, res.Tree.Flat)
}

func TestParseRange_HeadersAndMarkers(t *testing.T) {
	cfg := config.DefaultSourceConfig()
	cfg.Synthetic.IgnoreMarkers = []string{"Página"}
	cfg.Synthetic.HeaderMarkers = []string{"Item Código Fonte"}
	cfg.Sanitizer.DropLinesIfContains = []string{"CREA"}

	res := ParseRange([]string{strings.Join([]string{
		"1 ESTRUTURA 10,00",
		"Item Código Fonte",
		"CUSTO UNITÁRIO",
		"S/ BDI C/ BDI",
		"Página 1 de 2",
		"Eng. Fulano CREA 1234",
		"1.1 88489 SINAPI Pintura M2 1,00 8,00 10,00 10,00Escola Central",
		"Escola Central - Rua das Flores",
	}, "\n")}, cfg, normalizer.Context{SiteName: "Escola Central"})

	assert.Empty(t, res.Report.Warnings)
	assert.Empty(t, res.Report.Errors)
	assert.Equal(t, "Pintura", find(t, res.Tree, "1.1").Specification)
}

func TestParseRange_CompositionPlaceholder(t *testing.T) {
	res := parseLines(config.DefaultSourceConfig(),
		"1 SERVIÇOS 22,00",
		"1.1 COMPOSIÇÃO SINAPI Serviço especial UN 1,00 10,00 12,00 12,00",
		"1.2 88489 SINAPI Pintura M2 1,00 8,00 10,00 10,00",
	)

	n := find(t, res.Tree, "1.1")
	assert.Equal(t, PlaceholderCode, n.Code)
	assert.Equal(t, "Serviço especial", n.Specification)

	require.Len(t, res.References, 1)
	assert.Equal(t, "88489", res.References[0].Code)
	assert.Equal(t, "1.2", res.References[0].Item)
	require.NotNil(t, res.References[0].CostWithoutBDI)
	assert.Equal(t, 8.0, *res.References[0].CostWithoutBDI)
	assert.Equal(t, 10.0, *res.References[0].CostWithBDI)

	assert.True(t, containsWarning(res.Report, "item 1.1 marks a COMPOSIÇÃO"))
	assert.True(t, containsWarning(res.Report, "1 item(s) with missing or broken code"))
}

func TestParseRange_SuspiciousGroup(t *testing.T) {
	res := parseLines(config.DefaultSourceConfig(),
		"1 ESTRUTURA 10,00",
		"2 CUSTO TOTAL 10,00",
	)

	assert.True(t, containsWarning(res.Report, "suspicious group kept"))
	assert.Equal(t, TypeMeta, find(t, res.Tree, "2").Type)
}

func TestParseRange_NonNumericTotal(t *testing.T) {
	cfg := config.DefaultSourceConfig()
	res := parseLines(cfg,
		"1 ESTRUTURA 10,00",
		"2 ACABAMENTO",
		"3 PINTURA 5,00",
	)
	find(t, res.Tree, "2").TotalCost = "n/d"
	validateTree(res.Tree.Roots, cfg, res.Report)

	assert.True(t, containsWarning(res.Report, `non-numeric custo_total in group 2: "n/d"`))
}

func TestParseRange_EmptyRange(t *testing.T) {
	res := ParseRange([]string{"capa do documento", ""}, config.DefaultSourceConfig(), normalizer.Context{})

	require.Len(t, res.Report.Errors, 1)
	assert.Contains(t, res.Report.Errors[0], "no budget lines")
	assert.Empty(t, res.Tree.Roots)
	assert.NotNil(t, res.Tree.Roots)
}

func TestParseRange_TreeDepthProperty(t *testing.T) {
	for seed := int64(1); seed <= 8; seed++ {
		gen := NewTestDataGeneratorWithSeed(seed).Budget(3, 3, 3)
		res := ParseRange(gen.Pages, config.DefaultSourceConfig(), normalizer.Context{})

		require.Empty(t, res.Report.Errors, "seed %d", seed)
		require.Empty(t, res.Report.Warnings, "seed %d", seed)

		parents := make(map[string]string)
		depths := make(map[string]int)
		var walk func(nodes []*Node, parent string, depth int)
		walk = func(nodes []*Node, parent string, depth int) {
			for _, n := range nodes {
				parents[n.Item] = parent
				depths[n.Item] = depth
				walk(n.Children, n.Item, depth+1)
			}
		}
		walk(res.Tree.Roots, "", 1)

		var items []string
		require.Len(t, parents, len(gen.Nodes), "seed %d", seed)
		for _, g := range gen.Nodes {
			assert.Equal(t, g.Parent, parents[g.Item], "parent of %s", g.Item)
			assert.Equal(t, Level(g.Item), depths[g.Item], "depth of %s", g.Item)
			if g.IsItem {
				items = append(items, g.Item)
			}
		}
		assert.Equal(t, items, res.Tree.Flat)
		require.NotNil(t, res.Tree.Total)
		assert.InDelta(t, float64(gen.TotalCents)/100, *res.Tree.Total, 0.001)
	}
}

func TestPush_NestsByLevelDespiteOrder(t *testing.T) {
	b := newBuilder(config.DefaultSourceConfig(), nil, newPatterns(nil), validation.NewReport())

	for _, item := range []string{"9", "9.4", "9.4.1", "9.3", "10", "9.4.2"} {
		b.pushGroup(item, "X", "")
	}

	require.Len(t, b.root.Children, 2)
	nine := b.root.Children[0]
	assert.Equal(t, []string{"9.4", "9.3"}, items(nine.Children))
	assert.Equal(t, []string{"9.4.1"}, items(nine.Children[0].Children))
	ten := b.root.Children[1]
	assert.Equal(t, []string{"9.4.2"}, items(ten.Children), "a deeper number nests under the nearest open ancestor")
}

func TestProbableHeading(t *testing.T) {
	p := newPatterns(nil)

	assert.True(t, p.probableHeading("FUNDAÇÕES"))
	assert.True(t, p.probableHeading("Serviços preliminares"))
	assert.False(t, p.probableHeading("AB"))
	assert.False(t, p.probableHeading("CUSTO UNITÁRIO"))
	assert.False(t, p.probableHeading("Quant. total"))
	assert.False(t, p.probableHeading("Taxa 5%"))
	assert.False(t, p.probableHeading("Bloco 14 x 19"))
	assert.False(t, p.probableHeading("Item Próprio"))
}

func items(nodes []*Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.Item)
	}
	return out
}

func containsWarning(r *validation.Report, substr string) bool {
	for _, w := range r.Warnings {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}
