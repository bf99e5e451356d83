package main

import (
	"fmt"
	"strings"

	"github.com/raaihank/llm-anonymizer/internal/strategy"
	"github.com/spf13/cobra"
)

func newAnonymizeCommand(ctx *commandContext) *cobra.Command {
	var (
		strategyFlag   string
		patternNames   []string
		literals       map[string]string
		preserveFormat bool
		caseSensitive  bool
		jsonOutput     bool
		copyOutput     bool
	)

	cmd := &cobra.Command{
		Use:   "anonymize [file]",
		Short: "Replace sensitive values in text",
		Long:  "Anonymize the file argument, or stdin when no file (or -) is given, and print the result.",
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

			opts := p.Defaults()
			if cmd.Flags().Changed("strategy") {
				opts.DefaultStrategy = strategyFlag
			}
			if len(patternNames) > 0 {
				opts.SelectedPatterns = patternNames
			}
			if cmd.Flags().Changed("preserve-format") {
				opts.PreserveFormat = preserveFormat
			}
			if cmd.Flags().Changed("case-sensitive") {
				opts.CaseSensitive = caseSensitive
			}
			if len(literals) > 0 {
				overrides := make(map[string]strategy.Override, len(opts.Overrides)+len(literals))
				for k, v := range opts.Overrides {
					overrides[k] = v
				}
				for name, value := range literals {
					value := value
					overrides[name] = strategy.Override{Literal: &value}
				}
				opts.Overrides = overrides
			}

			result, err := p.Anonymize(input, opts)
			if err != nil {
				return err
			}

			if copyOutput {
				if err := copyResult(cmd, result.AnonymizedText); err != nil {
					return err
				}
			}

			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			out := result.AnonymizedText
			if !strings.HasSuffix(out, "\n") {
				out += "\n"
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), out)
			return err
		},
	}

	cmd.Flags().StringVarP(&strategyFlag, "strategy", "s", "", "Default strategy: mask, hash, hmac, replace or remove")
	cmd.Flags().StringSliceVarP(&patternNames, "patterns", "p", nil, "Patterns to apply (default: configured or all)")
	cmd.Flags().StringToStringVar(&literals, "literal", nil, "Fixed replacement per pattern, e.g. --literal email=[EMAIL]")
	cmd.Flags().BoolVar(&preserveFormat, "preserve-format", false, "Keep separators when masking")
	cmd.Flags().BoolVar(&caseSensitive, "case-sensitive", false, "Match patterns case-sensitively")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the full result with metadata as JSON")
	cmd.Flags().BoolVar(&copyOutput, "copy", false, "Copy the anonymized text to the clipboard")

	return cmd
}
