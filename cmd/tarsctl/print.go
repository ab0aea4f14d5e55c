package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/ShaurayaMohan/TARS-Windscribe/internal/model"
)

func printHeader(w io.Writer, title string) {
	cyan := color.New(color.FgCyan, color.Bold)
	fmt.Fprintln(w)
	cyan.Fprintln(w, title)
}

func printSuccess(w io.Writer, msg string) {
	green := color.New(color.FgGreen)
	green.Fprintf(w, "✓ %s\n", msg)
}

func printError(w io.Writer, msg string) {
	red := color.New(color.FgRed)
	red.Fprintf(w, "✗ %s\n", msg)
}

func printWarning(w io.Writer, msg string) {
	yellow := color.New(color.FgYellow)
	yellow.Fprintf(w, "! %s\n", msg)
}

func severityColor(s model.Severity) *color.Color {
	switch s {
	case model.SeverityCritical:
		return color.New(color.FgRed, color.Bold)
	case model.SeverityHigh:
		return color.New(color.FgRed)
	case model.SeverityMedium:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgWhite)
	}
}

func printClusters(w io.Writer, clusters []model.Cluster) {
	for i, c := range clusters {
		fmt.Fprintf(w, "%2d. ", i+1)
		severityColor(c.Severity).Fprintf(w, "[%s]", c.Severity)
		fmt.Fprintf(w, " %s (%d tickets)\n", c.Title, len(c.TicketIDs))
		if c.RootCause != "" {
			fmt.Fprintf(w, "    %s\n", c.RootCause)
		}
	}
}
