package main

import (
	"io"

	"github.com/spf13/cobra"
	"github.com/wafscan/wafscan/internal/checks"
	"github.com/wafscan/wafscan/internal/checks/catalog"
)

type checksOptions struct {
	format string
	filter filterFlags
}

var checksOpts checksOptions

var checksCmd = &cobra.Command{
	Use:   "checks",
	Short: "List the registered checks, optionally filtered",
	RunE: func(cmd *cobra.Command, args []string) error {
		return commandError(runChecks(checksOpts, cmd.OutOrStdout()))
	},
}

func init() {
	checksCmd.Flags().StringVar(&checksOpts.format, "format", formatAuto, "Output format: auto, table, or json")
	checksOpts.filter.register(checksCmd)
}

type checkListing struct {
	ID                string   `json:"id"`
	Pillar            string   `json:"pillar"`
	Title             string   `json:"title"`
	Description       string   `json:"description,omitempty"`
	Severity          string   `json:"severity"`
	RemediationEffort string   `json:"remediationEffort,omitempty"`
	Tags              []string `json:"tags"`
	DocumentationURL  string   `json:"documentationUrl,omitempty"`
}

func runChecks(opts checksOptions, stdout io.Writer) error {
	format, err := resolveFormat(opts.format, stdout)
	if err != nil {
		return err
	}
	filter, err := opts.filter.apply(checks.Filter{})
	if err != nil {
		return err
	}
	reg, err := catalog.NewRegistry()
	if err != nil {
		return err
	}
	defs := reg.List(filter)

	if format == formatTable {
		return writeDefinitionsTable(stdout, defs)
	}
	out := make([]checkListing, 0, len(defs))
	for _, d := range defs {
		tags := d.Tags
		if tags == nil {
			tags = []string{}
		}
		out = append(out, checkListing{
			ID:                d.ID,
			Pillar:            string(d.Pillar),
			Title:             d.Title,
			Description:       d.Description,
			Severity:          string(d.Severity),
			RemediationEffort: string(d.RemediationEffort),
			Tags:              tags,
			DocumentationURL:  d.DocumentationURL,
		})
	}
	return writeJSON(stdout, out)
}
