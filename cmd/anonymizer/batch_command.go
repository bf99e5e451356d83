package main

import (
	"fmt"
	"io"
	"os"

	"github.com/raaihank/llm-anonymizer/internal/etl"
	"github.com/spf13/cobra"
)

func newBatchCommand(ctx *commandContext) *cobra.Command {
	var (
		output       string
		format       string
		workers      int
		batchSize    int
		strategyFlag string
		patternNames []string
		jsonSummary  bool
	)

	cmd := &cobra.Command{
		Use:   "batch <input>...",
		Short: "Anonymize CSV, JSON lines or Parquet files",
		Long: "Anonymize every {id, text} record of the inputs. Inputs may be globs such as " +
			"'data/**/*.csv'. Records that fail are counted and skipped.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, cfg, log, err := ctx.pipeline(true)
			if err != nil {
				return err
			}

			batchConfig := etl.Config{
				Workers:      cfg.Batch.Workers,
				BatchSize:    cfg.Batch.BatchSize,
				OutputFormat: cfg.Batch.OutputFormat,
				IDColumn:     cfg.Batch.IDColumn,
				TextColumn:   cfg.Batch.TextColumn,
				Options:      p.Defaults(),
			}
			if cmd.Flags().Changed("format") {
				batchConfig.OutputFormat = format
			}
			if workers > 0 {
				batchConfig.Workers = workers
			}
			if batchSize > 0 {
				batchConfig.BatchSize = batchSize
			}
			if strategyFlag != "" {
				batchConfig.Options.DefaultStrategy = strategyFlag
			}
			if len(patternNames) > 0 {
				batchConfig.Options.SelectedPatterns = patternNames
			}

			var out io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create output: %w", err)
				}
				defer f.Close()
				out = f
			}

			result, err := etl.NewPipeline(p, batchConfig, log.Logger).Run(cmd.Context(), args, out)
			if err != nil {
				return err
			}

			if jsonSummary {
				return writeJSON(cmd.ErrOrStderr(), result)
			}
			_, err = fmt.Fprintf(cmd.ErrOrStderr(), "Processed %d records from %d files: %d ok, %d failed, %d replacements in %s\n",
				result.TotalRecords, result.Files, result.ProcessedOK, result.ProcessedFailed, result.Replacements, result.Duration)
			return err
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")
	cmd.Flags().StringVar(&format, "format", "", "Output format: jsonl or parquet")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "Worker count (default from config)")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Records per batch (default from config)")
	cmd.Flags().StringVarP(&strategyFlag, "strategy", "s", "", "Default strategy")
	cmd.Flags().StringSliceVarP(&patternNames, "patterns", "p", nil, "Patterns to apply")
	cmd.Flags().BoolVar(&jsonSummary, "json", false, "Print the run summary as JSON on stderr")

	return cmd
}
