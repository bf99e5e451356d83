package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"
)

func newDetectCommand(ctx *commandContext) *cobra.Command {
	var (
		patternNames []string
		jsonOutput   bool
	)

	cmd := &cobra.Command{
		Use:   "detect [file]",
		Short: "Report sensitive data and its risk level",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, _, _, err := ctx.pipeline(true)
			if err != nil {
				return err
			}
			input, err := readInput(cmd, args)
			if err != nil {
				return err
			}

			report, err := p.DetectSensitiveData(input, patternNames...)
			if err != nil {
				return err
			}

			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), report)
			}

			out := cmd.OutOrStdout()
			if !report.HasSensitiveData {
				_, err := fmt.Fprintln(out, "No sensitive data detected")
				return err
			}

			names := make([]string, 0, len(report.Detected))
			for name := range report.Detected {
				names = append(names, name)
			}
			sort.Strings(names)

			rows := make([][]string, 0, len(names))
			for _, name := range names {
				d := report.Detected[name]
				rows = append(rows, []string{name, strconv.Itoa(d.Count), string(d.Class)})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Pattern", "Count", "Class"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignLeft},
			))
			_, err = fmt.Fprintf(out, "Total: %d  Risk: %s (score %d)\n", report.TotalCount, report.RiskLevel, report.RiskScore)
			return err
		},
	}

	cmd.Flags().StringSliceVarP(&patternNames, "patterns", "p", nil, "Patterns to scan for (default: configured or all)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the report, including examples, as JSON")

	return cmd
}
