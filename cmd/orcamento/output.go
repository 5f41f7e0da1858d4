package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	importservice "github.com/FACorreiaa/orcamento-import/internal/domain/import/service"
	"github.com/FACorreiaa/orcamento-import/pkg/money"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("33"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("220"))

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("33")).
			Padding(0, 1)
)

// printSummary renders counts and totals of a parse response.
func printSummary(w io.Writer, resp *importservice.Response) {
	fmt.Fprintln(w, boxStyle.Render(summary(resp)))
}

func summary(resp *importservice.Response) string {
	total := dimStyle.Render("n/a")
	if resp.Budget.Total != nil {
		total = money.Display(*resp.Budget.Total)
	}

	rep := resp.Validation
	status := successStyle.Render("ok")
	if len(rep.Errors) > 0 {
		status = errorStyle.Render(fmt.Sprintf("%d error(s)", len(rep.Errors)))
	}

	lines := []string{
		fmt.Sprintf("%s %s", titleStyle.Render("Source:"), resp.SourceID),
		fmt.Sprintf("%s %d   %s %s", dimStyle.Render("Items:"), len(resp.Budget.Flat), dimStyle.Render("Total:"), total),
		fmt.Sprintf("%s %d   %s %d",
			dimStyle.Render("Compositions:"), len(resp.Compositions.Principals),
			dimStyle.Render("Global auxiliaries:"), len(resp.Compositions.GlobalAuxiliaries)),
		fmt.Sprintf("%s %d   %s %d",
			dimStyle.Render("Missing:"), len(rep.MissingItems),
			dimStyle.Render("Extra:"), len(rep.ExtraItems)),
		fmt.Sprintf("%s %s   %s %s",
			dimStyle.Render("Warnings:"), warnStyle.Render(fmt.Sprint(len(rep.Warnings))),
			dimStyle.Render("Status:"), status),
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
