package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/wafscan/wafscan/internal/results"
)

type compareOptions struct {
	current          string
	baseline         string
	format           string
	failOnRegression bool
}

var compareOpts compareOptions

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Diff a scan report against a baseline report",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCompare(compareOpts, cmd.OutOrStdout())
	},
}

func init() {
	compareCmd.Flags().StringVar(&compareOpts.current, "current", "", "Current report (required)")
	compareCmd.Flags().StringVar(&compareOpts.baseline, "baseline", "", "Baseline report (required)")
	compareCmd.Flags().StringVar(&compareOpts.format, "format", formatAuto, "Output format: auto, table, or json")
	compareCmd.Flags().BoolVar(&compareOpts.failOnRegression, "fail-on-regression", false, "Exit with status 2 when there are new failures")
}

func runCompare(opts compareOptions, stdout io.Writer) error {
	if opts.current == "" || opts.baseline == "" {
		return commandError(errors.New("--current and --baseline are required"))
	}
	format, err := resolveFormat(opts.format, stdout)
	if err != nil {
		return commandError(err)
	}

	current, err := results.ReadReport(opts.current)
	if err != nil {
		return commandError(fmt.Errorf("read current report: %w", err))
	}
	baseline, err := results.ReadReport(opts.baseline)
	if err != nil {
		return commandError(fmt.Errorf("read baseline report: %w", err))
	}

	diff := results.Compare(current.Results, baseline.Results)
	if format == formatTable {
		err = writeDiffTable(stdout, diff)
	} else {
		err = writeJSON(stdout, diff)
	}
	if err != nil {
		return commandError(err)
	}

	if opts.failOnRegression && diff.HasRegressions() {
		return &exitError{
			code: exitCodeRegressions,
			err:  fmt.Errorf("%d new failures against baseline", len(diff.NewFailures)),
		}
	}
	return nil
}
