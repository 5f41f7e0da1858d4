package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "orcamento",
		Short: "Extract budgets and unit-cost compositions from public-works PDFs",
		Long: `orcamento reads a public-works budget PDF and produces:
  - the synthetic budget as a tree of goals, sub-goals and line items
  - the unit-cost composition blocks keyed by code and bank
  - a validation report reconciling both sections`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(parseCmd())
	rootCmd.AddCommand(sourcesCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error:"), err)
		os.Exit(1)
	}
}
