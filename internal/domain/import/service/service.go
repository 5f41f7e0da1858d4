// Package service provides the import orchestration logic: it extracts the
// uploaded document, runs the budget pass and then the composition pass, and
// merges their results into a single response.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/FACorreiaa/orcamento-import/internal/domain/budget"
	"github.com/FACorreiaa/orcamento-import/internal/domain/composition"
	"github.com/FACorreiaa/orcamento-import/internal/domain/document"
	"github.com/FACorreiaa/orcamento-import/internal/domain/import/normalizer"
	"github.com/FACorreiaa/orcamento-import/internal/domain/import/sniffer"
	"github.com/FACorreiaa/orcamento-import/internal/domain/reconcile"
	"github.com/FACorreiaa/orcamento-import/internal/domain/validation"
	"github.com/FACorreiaa/orcamento-import/pkg/config"
	"github.com/FACorreiaa/orcamento-import/pkg/observability"
)

var (
	// ErrUnknownSource is returned when the request names a source with no
	// configuration.
	ErrUnknownSource = errors.New("unknown source")
	// ErrEmptyDocument is returned when the request carries no document bytes.
	ErrEmptyDocument = errors.New("empty document")
)

// ValidationError is returned, together with the full response, when the
// source is strict and the parse recorded errors.
type ValidationError struct {
	Report *validation.Report
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed with %d error(s)", len(e.Report.Errors))
}

// PageRange is a 1-based inclusive page range. A range with a bound below 1
// means the pass is not requested.
type PageRange struct {
	Start int
	End   int
}

func (r PageRange) requested() bool {
	return r.Start >= 1 && r.End >= 1
}

// ParseRequest describes one uploaded document.
type ParseRequest struct {
	SourceID     string
	Document     []byte
	Budget       PageRange
	Compositions PageRange
	Context      normalizer.Context
}

// Response is the merged result of both passes.
type Response struct {
	SourceID     string             `json:"base_id"`
	Budget       budget.Tree        `json:"orcamento_sintetico"`
	Compositions composition.Set    `json:"composicoes"`
	Validation   *validation.Report `json:"validacao"`

	// References is the snapshot handed from the budget pass to the
	// composition pass. It is exported by the CLI, not by the API.
	References []reconcile.ExpectedReference `json:"-"`
}

// ImportService orchestrates document extraction and both parsing passes.
// It holds no per-request state and is safe for concurrent use.
type ImportService struct {
	sources   *config.SourceStore
	extractor document.Extractor
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// NewImportService creates a new import service
func NewImportService(sources *config.SourceStore, extractor document.Extractor, logger *slog.Logger) *ImportService {
	return &ImportService{
		sources:   sources,
		extractor: extractor,
		logger:    logger,
	}
}

// WithMetrics adds Prometheus metrics to the import service
func (s *ImportService) WithMetrics(m *observability.Metrics) *ImportService {
	s.metrics = m
	return s
}

// Sources lists the configured source ids.
func (s *ImportService) Sources() []string {
	return s.sources.IDs()
}

// Parse runs the whole pipeline over one document. Domain problems never
// fail the call: they are recorded in the response's report. The returned
// error is ErrUnknownSource or ErrEmptyDocument for unusable requests, a
// context error when the caller gave up, or a *ValidationError (alongside the
// complete response) when the source is strict and errors were recorded.
func (s *ImportService) Parse(ctx context.Context, req ParseRequest) (resp *Response, err error) {
	ctx, span := observability.StartSpan(ctx, "import.parse", attribute.String("source", req.SourceID))
	defer func() {
		s.metrics.ObserveRequest(req.SourceID, outcome(err))
		observability.EndSpan(span, err)
	}()

	cfg, ok := s.sources.Get(req.SourceID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, req.SourceID)
	}
	if len(req.Document) == 0 {
		return nil, ErrEmptyDocument
	}

	report := validation.NewReport()
	resp = &Response{
		SourceID:     cfg.ID,
		Budget:       budget.EmptyTree(),
		Compositions: composition.EmptySet(),
		Validation:   report,
	}

	info, _ := sniffer.Detect(req.Document)
	s.logger.Debug("document received",
		slog.String("source", cfg.ID),
		slog.String("fingerprint", info.Short()),
		slog.Int("size", info.Size),
		slog.String("pdf_version", info.Version),
	)
	if !info.IsPDF {
		report.Warn("document: content does not start with a PDF header")
	}
	if info.Encrypted {
		report.Warn("document: PDF is encrypted, text extraction may be incomplete")
	}

	doc, err := s.extractor.Extract(ctx, bytes.NewReader(req.Document), int64(len(req.Document)))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		s.logger.Warn("document could not be opened",
			slog.String("source", cfg.ID),
			slog.Any("error", err),
		)
		report.Error("document: could not open PDF: %v", err)
		return s.finish(resp, cfg)
	}

	s.runBudget(ctx, doc, cfg, req, resp)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.runCompositions(ctx, doc, cfg, req, resp)

	return s.finish(resp, cfg)
}

func (s *ImportService) runBudget(ctx context.Context, doc *document.Document, cfg config.SourceConfig, req ParseRequest, resp *Response) {
	report := resp.Validation
	if !req.Budget.requested() {
		report.Warn("budget: invalid page range %d-%d, budget not processed", req.Budget.Start, req.Budget.End)
		return
	}

	_, span := observability.StartSpan(ctx, "budget.parse",
		attribute.Int("pages.start", req.Budget.Start),
		attribute.Int("pages.end", req.Budget.End),
	)
	defer span.End()
	started := time.Now()

	start, end, warning := document.ClampRange(req.Budget.Start, req.Budget.End, doc.Len())
	if warning != "" {
		report.Warn("budget: %s", warning)
	}

	res := budget.ParseRange(doc.Texts(start, end), cfg, req.Context)
	report.Merge(res.Report)
	resp.Budget = res.Tree
	resp.References = res.References

	report.Warn("budget: processed pages %d-%d; items=%d; references=%d",
		start, end, len(res.Tree.Flat), len(res.References))

	span.SetAttributes(
		attribute.Int("items", len(res.Tree.Flat)),
		attribute.Int("references", len(res.References)),
	)
	s.metrics.ObservePass("budget", time.Since(started))
	s.logger.Debug("budget pass finished",
		slog.String("source", cfg.ID),
		slog.Int("items", len(res.Tree.Flat)),
		slog.Int("errors", len(res.Report.Errors)),
	)
}

func (s *ImportService) runCompositions(ctx context.Context, doc *document.Document, cfg config.SourceConfig, req ParseRequest, resp *Response) {
	report := resp.Validation
	if !req.Compositions.requested() {
		report.Warn("compositions: not processed, no valid page range given (send a 1-based range to include them)")
		return
	}

	_, span := observability.StartSpan(ctx, "compositions.parse",
		attribute.Int("pages.start", req.Compositions.Start),
		attribute.Int("pages.end", req.Compositions.End),
	)
	defer span.End()
	started := time.Now()

	res := composition.ParseRange(doc.Rows(), req.Compositions.Start, req.Compositions.End, cfg, resp.References, req.Context)
	report.Merge(res.Report)
	resp.Compositions = res.Set

	span.SetAttributes(
		attribute.Int("principals", len(res.Set.Principals)),
		attribute.Int("aliases", len(res.Set.AuxiliaryAliases)),
	)
	s.metrics.ObservePass("compositions", time.Since(started))
	s.logger.Debug("composition pass finished",
		slog.String("source", cfg.ID),
		slog.Int("principals", len(res.Set.Principals)),
		slog.Int("missing", len(res.Report.MissingItems)),
		slog.Int("extra", len(res.Report.ExtraItems)),
	)
}

// finish applies the strict policy of the source.
func (s *ImportService) finish(resp *Response, cfg config.SourceConfig) (*Response, error) {
	r := resp.Validation
	s.metrics.ObserveDiagnostics(len(r.Warnings), len(r.Errors), len(r.Divergences))

	s.logger.Info("document parsed",
		slog.String("source", cfg.ID),
		slog.Int("warnings", len(r.Warnings)),
		slog.Int("errors", len(r.Errors)),
		slog.Int("divergences", len(r.Divergences)),
		slog.Int("missing", len(r.MissingItems)),
		slog.Int("extra", len(r.ExtraItems)),
	)

	if cfg.Validation.Strict && r.HasErrors() {
		return resp, &ValidationError{Report: r}
	}
	return resp, nil
}

func outcome(err error) string {
	var verr *ValidationError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &verr):
		return "invalid"
	case errors.Is(err, ErrUnknownSource), errors.Is(err, ErrEmptyDocument):
		return "rejected"
	default:
		return "failed"
	}
}
