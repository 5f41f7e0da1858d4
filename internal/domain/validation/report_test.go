package validation

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/orcamento-import/pkg/money"
)

func TestReport_EmptyEncodesLists(t *testing.T) {
	data, err := json.Marshal(NewReport())
	require.NoError(t, err)
	assert.JSONEq(t, `{"itens_faltando":[],"itens_extras":[],"avisos":[],"erros":[],"divergencias":[]}`, string(data))
}

func TestReport_Accumulates(t *testing.T) {
	r := NewReport()
	r.Warn("linha ignorada: %s", "xyz")
	r.Error("grupo %s falhou", "9")
	r.AddMissing("123|SINAPI")
	r.AddExtra("999|SINAPI")

	assert.True(t, r.HasErrors())
	assert.Equal(t, []string{"linha ignorada: xyz"}, r.Warnings)
	assert.Equal(t, []string{"grupo 9 falhou"}, r.Errors)
	assert.Equal(t, []string{"123|SINAPI"}, r.MissingItems)
	assert.Equal(t, []string{"999|SINAPI"}, r.ExtraItems)
}

func TestReport_Merge(t *testing.T) {
	a := NewReport()
	a.Warn("a")
	b := NewReport()
	b.Warn("b")
	b.Error("e")
	b.AddDivergence(Divergence{Kind: KindItem, Item: "1.1", Reason: "x"})

	a.Merge(b)
	a.Merge(nil)

	assert.Equal(t, []string{"a", "b"}, a.Warnings)
	assert.Equal(t, []string{"e"}, a.Errors)
	require.Len(t, a.Divergences, 1)
	assert.Equal(t, "1.1", a.Divergences[0].Item)
}

func TestFromComparison(t *testing.T) {
	tol := money.Tolerance{Abs: 0.05, Rel: 0.0001}
	c := tol.Compare(decimal.RequireFromString("12345.67"), decimal.RequireFromString("12000"))

	d := FromComparison(KindGroup, "9", c, "soma dos filhos difere do total")

	assert.Equal(t, KindGroup, d.Kind)
	require.NotNil(t, d.Difference)
	assert.Equal(t, -345.67, *d.Difference)
	assert.Equal(t, 12345.67, *d.Expected)
	assert.Equal(t, 1.2346, *d.Tolerance)
}

func TestFromComparisonKeepsSubCentPrecision(t *testing.T) {
	tol := money.Tolerance{Abs: 0.001, Rel: 0.0001}
	expected := decimal.RequireFromString("3.333").Mul(decimal.RequireFromString("1.11"))
	c := tol.Compare(expected, decimal.RequireFromString("3.70"))

	d := FromComparison(KindItem, "1.1", c, "partial differs")

	assert.Equal(t, 3.6996, *d.Expected)
	assert.Equal(t, 3.7, *d.Actual)
	assert.Equal(t, 0.0004, *d.Difference)
	assert.Equal(t, 0.001, *d.Tolerance)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "ação", Truncate("ação", 10))
	assert.Equal(t, "aç", Truncate("ação", 2))
}
