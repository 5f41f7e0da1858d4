package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/FACorreiaa/orcamento-import/internal/domain/document"
	"github.com/FACorreiaa/orcamento-import/internal/domain/export"
	"github.com/FACorreiaa/orcamento-import/internal/domain/import/normalizer"
	importservice "github.com/FACorreiaa/orcamento-import/internal/domain/import/service"
	"github.com/FACorreiaa/orcamento-import/pkg/config"
)

// Output formats accepted by --format.
const (
	formatJSON  = "json"
	formatXLSX  = "xlsx"
	formatCSV   = "csv"
	formatItems = "items-csv"
)

type parseOptions struct {
	source       string
	sourcesPath  string
	budgetStart  int
	budgetEnd    int
	compStart    int
	compEnd      int
	siteName     string
	siteLocation string
	format       string
	out          string
	verbose      bool
}

func parseCmd() *cobra.Command {
	opts := &parseOptions{}

	cmd := &cobra.Command{
		Use:   "parse <file.pdf>",
		Short: "Parse a budget PDF",
		Long: `Parse the synthetic budget and, optionally, the composition section of a PDF.

Page ranges are 1-based and inclusive. Ranges past the end of the document are
clamped; a composition range of 0 skips that section.

Formats:
  json       full response (default)
  xlsx       workbook with budget, compositions and validation sheets
  csv        expected references with their reconciliation status
  items-csv  every budget node in document order

Example:
  orcamento parse edital.pdf --budget 3-9 --compositions 10-42
  orcamento parse edital.pdf --budget 3-9 --format xlsx --out edital.xlsx
  orcamento parse edital.pdf --budget 3-9 --site-name "ESCOLA MUNICIPAL" --format csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			budget, _ := cmd.Flags().GetString("budget")
			comps, _ := cmd.Flags().GetString("compositions")

			var err error
			if opts.budgetStart, opts.budgetEnd, err = parseRange(budget); err != nil {
				return fmt.Errorf("--budget: %w", err)
			}
			if comps != "" {
				if opts.compStart, opts.compEnd, err = parseRange(comps); err != nil {
					return fmt.Errorf("--compositions: %w", err)
				}
			}
			return runParse(cmd.Context(), args[0], opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVar(&opts.source, "source", "sinapi", "pricing source id (base_id)")
	cmd.Flags().StringVar(&opts.sourcesPath, "sources", "configs/sources.json", "source configuration file")
	cmd.Flags().String("budget", "", "budget page range, e.g. 3-9")
	cmd.Flags().String("compositions", "", "composition page range, e.g. 10-42")
	cmd.Flags().StringVar(&opts.siteName, "site-name", "", "construction site name (obra_nome)")
	cmd.Flags().StringVar(&opts.siteLocation, "site-location", "", "construction site location (obra_localizacao)")
	cmd.Flags().StringVar(&opts.format, "format", formatJSON, "output format: json, xlsx, csv or items-csv")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "output file (defaults to stdout)")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "log extraction details")
	_ = cmd.MarkFlagRequired("budget")

	return cmd
}

func sourcesCmd() *cobra.Command {
	var sourcesPath string

	cmd := &cobra.Command{
		Use:   "sources",
		Short: "List configured pricing sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := config.LoadSources(sourcesPath)
			if err != nil {
				return err
			}
			for _, id := range store.IDs() {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sourcesPath, "sources", "configs/sources.json", "source configuration file")
	return cmd
}

// parseRange reads "a-b" or a single page "a".
func parseRange(s string) (int, int, error) {
	s = strings.TrimSpace(s)
	first, last, found := strings.Cut(s, "-")
	start, err := strconv.Atoi(strings.TrimSpace(first))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid page range %q", s)
	}
	end := start
	if found {
		if end, err = strconv.Atoi(strings.TrimSpace(last)); err != nil {
			return 0, 0, fmt.Errorf("invalid page range %q", s)
		}
	}
	return start, end, nil
}

func runParse(ctx context.Context, path string, opts *parseOptions, stdout, stderr io.Writer) error {
	switch opts.format {
	case formatJSON, formatXLSX, formatCSV, formatItems:
	default:
		return fmt.Errorf("unknown format %q", opts.format)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	sources, err := config.LoadSources(opts.sourcesPath)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	svc := importservice.NewImportService(sources, document.NewPDFExtractor(logger), logger)
	resp, parseErr := svc.Parse(ctx, importservice.ParseRequest{
		SourceID:     opts.source,
		Document:     data,
		Budget:       importservice.PageRange{Start: opts.budgetStart, End: opts.budgetEnd},
		Compositions: importservice.PageRange{Start: opts.compStart, End: opts.compEnd},
		Context: normalizer.Context{
			SiteName:     opts.siteName,
			SiteLocation: opts.siteLocation,
		},
	})

	var vErr *importservice.ValidationError
	if parseErr != nil && !errors.As(parseErr, &vErr) {
		return parseErr
	}

	if err := writeOutput(resp, opts, stdout); err != nil {
		return err
	}
	printSummary(stderr, resp)

	if vErr != nil {
		return vErr
	}
	return nil
}

func writeOutput(resp *importservice.Response, opts *parseOptions, stdout io.Writer) (err error) {
	w := stdout
	if opts.out != "" {
		f, cerr := os.Create(opts.out)
		if cerr != nil {
			return fmt.Errorf("failed to create %s: %w", opts.out, cerr)
		}
		defer func() {
			if cerr := f.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}()
		w = f
	}

	switch opts.format {
	case formatXLSX:
		return export.WriteWorkbook(w, resp)
	case formatCSV:
		return export.WriteReferencesCSV(w, resp.References, resp.Validation.MissingItems)
	case formatItems:
		return export.WriteItemsCSV(w, resp.Budget)
	default:
		return export.WriteJSON(w, resp)
	}
}
