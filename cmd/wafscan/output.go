package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/wafscan/wafscan/internal/checks"
	"github.com/wafscan/wafscan/internal/results"
	"golang.org/x/term"
)

const (
	formatAuto  = "auto"
	formatTable = "table"
	formatJSON  = "json"
)

// resolveFormat turns "auto" into table for terminals and JSON otherwise.
func resolveFormat(format string, w io.Writer) (string, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", formatAuto:
		if isTerminal(w) {
			return formatTable, nil
		}
		return formatJSON, nil
	case formatTable:
		return formatTable, nil
	case formatJSON:
		return formatJSON, nil
	default:
		return "", fmt.Errorf("invalid --format %q (expected auto, table, or json)", format)
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func writeSummaryTable(w io.Writer, s results.ScanSummary) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "PILLAR\tSCORE\tPASS\tWARN\tFAIL\tN/A\tERROR")
	for _, p := range s.ByPillar {
		fmt.Fprintf(tw, "%s\t%.2f\t%d\t%d\t%d\t%d\t%d\n",
			p.Pillar, p.ComplianceScore, p.Passed, p.Warnings, p.Failed, p.NotApplicable, p.Errors)
	}
	fmt.Fprintf(tw, "overall\t%.2f\t%d\t%d\t%d\t%d\t%d\n",
		s.ComplianceScore, s.Passed, s.Warnings, s.Failed, s.NotApplicable, s.Errors+s.Timeouts+s.Cancelled)
	return tw.Flush()
}

func writeDiffTable(w io.Writer, d results.BaselineDiff) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "CHANGE\tSUBSCRIPTION\tCHECK\tBASELINE\tCURRENT")
	sections := []struct {
		label   string
		changes []results.Change
	}{
		{"new failure", d.NewFailures},
		{"improvement", d.Improvements},
		{"added", d.Added},
		{"removed", d.Removed},
	}
	for _, s := range sections {
		for _, c := range s.changes {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", s.label, c.SubscriptionID, c.CheckID, dash(string(c.Baseline)), dash(string(c.Current)))
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\nunchanged: %d  score: %.2f -> %.2f (%+.2f, %s)\n",
		len(d.Unchanged), d.ScoreTrend.From, d.ScoreTrend.To, d.ScoreTrend.Delta, d.ScoreTrend.Direction)
	return err
}

func writeDefinitionsTable(w io.Writer, defs []checks.Definition) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tPILLAR\tSEVERITY\tEFFORT\tTITLE\tTAGS")
	for _, d := range defs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			d.ID, d.Pillar, d.Severity, dash(string(d.RemediationEffort)), d.Title, dash(strings.Join(d.Tags, ",")))
	}
	return tw.Flush()
}

func dash(v string) string {
	if v == "" {
		return "-"
	}
	return v
}
