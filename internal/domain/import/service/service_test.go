package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/orcamento-import/internal/domain/document"
	"github.com/FACorreiaa/orcamento-import/pkg/config"
	"github.com/FACorreiaa/orcamento-import/pkg/observability"
)

type fakeExtractor struct {
	doc *document.Document
	err error
}

func (f *fakeExtractor) Extract(_ context.Context, _ io.ReaderAt, _ int64) (*document.Document, error) {
	return f.doc, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(ext document.Extractor, mutate ...func(*config.SourceConfig)) *ImportService {
	cfg := config.DefaultSourceConfig()
	cfg.ID = "sinapi"
	for _, m := range mutate {
		m(&cfg)
	}
	return NewImportService(config.NewSourceStore(cfg), ext, testLogger()).WithMetrics(observability.NewMetrics())
}

func sampleDocument(partial string) *document.Document {
	return &document.Document{Pages: []document.Page{
		{
			Number: 1,
			Text: strings.Join([]string{
				"ORÇAMENTO SINTÉTICO",
				"1 ALVENARIAS " + partial,
				"1.1 88316 SINAPI Alvenaria de vedação M2 10,00 50,00 55,00 " + partial,
			}, "\n"),
		},
		{
			Number: 2,
			Rows: [][]string{
				{"1.1", "Código", "Banco", "Descrição", "Tipo", "Und", "Quant.", "Valor Unit", "Total"},
				{"Composição", "88316", "SINAPI", "ALVENARIA DE VEDAÇÃO", "", "M2", "1,00", "50,00", "50,00"},
				{"Insumo", "00000367/ SINAPI", "", "AREIA", "Material", "M3", "0,01", "100,00", "1,00"},
			},
		},
	}}
}

func validRequest() ParseRequest {
	return ParseRequest{
		SourceID:     "SINAPI",
		Document:     []byte("%PDF-1.7 fake"),
		Budget:       PageRange{Start: 1, End: 1},
		Compositions: PageRange{Start: 2, End: 2},
	}
}

func hasWarning(resp *Response, fragment string) bool {
	for _, w := range resp.Validation.Warnings {
		if strings.Contains(w, fragment) {
			return true
		}
	}
	return false
}

func TestParse_FullDocument(t *testing.T) {
	svc := newTestService(&fakeExtractor{doc: sampleDocument("550,00")})

	resp, err := svc.Parse(context.Background(), validRequest())
	require.NoError(t, err)

	assert.Equal(t, "sinapi", resp.SourceID)
	assert.Equal(t, []string{"1.1"}, resp.Budget.Flat)
	require.Len(t, resp.References, 1)
	assert.Equal(t, "88316", resp.References[0].Code)

	block, ok := resp.Compositions.Principals["88316|SINAPI"]
	require.True(t, ok)
	assert.Equal(t, "1.1", block.Item)
	require.Len(t, block.Inputs, 1)
	assert.Equal(t, "SINAPI", block.Inputs[0].Bank)

	v := resp.Validation
	assert.Empty(t, v.Errors)
	assert.Empty(t, v.MissingItems)
	assert.Empty(t, v.ExtraItems)
	assert.True(t, hasWarning(resp, "budget: processed pages 1-1; items=1; references=1"))
	assert.True(t, hasWarning(resp, "compositions: processed pages 2-2; principals=1"))
}

func TestParse_UnknownSource(t *testing.T) {
	svc := newTestService(&fakeExtractor{doc: sampleDocument("550,00")})

	req := validRequest()
	req.SourceID = "sicro"
	resp, err := svc.Parse(context.Background(), req)

	assert.Nil(t, resp)
	assert.ErrorIs(t, err, ErrUnknownSource)
	assert.Equal(t, []string{"sinapi"}, svc.Sources())
}

func TestParse_EmptyDocument(t *testing.T) {
	svc := newTestService(&fakeExtractor{})

	req := validRequest()
	req.Document = nil
	_, err := svc.Parse(context.Background(), req)
	assert.ErrorIs(t, err, ErrEmptyDocument)
}

func TestParse_DocumentOpenFailure(t *testing.T) {
	ext := &fakeExtractor{err: errors.New("malformed xref")}

	t.Run("strict", func(t *testing.T) {
		resp, err := newTestService(ext).Parse(context.Background(), validRequest())

		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		require.NotNil(t, resp)
		assert.Contains(t, resp.Validation.Errors[0], "could not open PDF: malformed xref")
		assert.Empty(t, resp.Budget.Roots)
		assert.Empty(t, resp.Compositions.Principals)
	})

	t.Run("lenient", func(t *testing.T) {
		svc := newTestService(ext, func(c *config.SourceConfig) { c.Validation.Strict = false })
		resp, err := svc.Parse(context.Background(), validRequest())

		require.NoError(t, err)
		assert.Len(t, resp.Validation.Errors, 1)
	})
}

func TestParse_SniffedDocument(t *testing.T) {
	svc := newTestService(&fakeExtractor{doc: sampleDocument("550,00")})

	tests := []struct {
		name string
		data []byte
		want string
	}{
		{name: "not a pdf", data: []byte("item;codigo;banco"), want: "document: content does not start with a PDF header"},
		{name: "encrypted", data: []byte("%PDF-1.6\ntrailer << /Encrypt 9 0 R >>"), want: "document: PDF is encrypted"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			req.Document = tt.data
			resp, err := svc.Parse(context.Background(), req)

			require.NoError(t, err)
			assert.True(t, hasWarning(resp, tt.want))
			assert.Equal(t, []string{"1.1"}, resp.Budget.Flat)
		})
	}
}

func TestParse_StrictArithmeticFailure(t *testing.T) {
	doc := sampleDocument("600,00")
	svc := newTestService(&fakeExtractor{doc: doc})

	resp, err := svc.Parse(context.Background(), validRequest())

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Same(t, resp.Validation, verr.Report)
	assert.Contains(t, err.Error(), "validation failed")
	assert.NotEmpty(t, resp.Validation.Divergences)
	// the failed item is still in the tree
	assert.Equal(t, []string{"1.1"}, resp.Budget.Flat)
}

func TestParse_CompositionPassSkipped(t *testing.T) {
	svc := newTestService(&fakeExtractor{doc: sampleDocument("550,00")})

	req := validRequest()
	req.Compositions = PageRange{}
	resp, err := svc.Parse(context.Background(), req)

	require.NoError(t, err)
	assert.Empty(t, resp.Compositions.Principals)
	assert.Empty(t, resp.Validation.MissingItems)
	assert.True(t, hasWarning(resp, "compositions: not processed"))
}

func TestParse_BudgetRangeClamped(t *testing.T) {
	svc := newTestService(&fakeExtractor{doc: sampleDocument("550,00")})

	req := validRequest()
	req.Budget = PageRange{Start: 1, End: 40}
	resp, err := svc.Parse(context.Background(), req)

	require.NoError(t, err)
	assert.True(t, hasWarning(resp, "budget: page range 1-40 adjusted to 1-2"))
	assert.Equal(t, []string{"1.1"}, resp.Budget.Flat)
}

func TestParse_Cancelled(t *testing.T) {
	svc := newTestService(&fakeExtractor{doc: sampleDocument("550,00")})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp, err := svc.Parse(ctx, validRequest())
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", outcome(nil))
	assert.Equal(t, "invalid", outcome(&ValidationError{}))
	assert.Equal(t, "rejected", outcome(ErrUnknownSource))
	assert.Equal(t, "failed", outcome(errors.New("x")))
}
