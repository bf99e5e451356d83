package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/raaihank/llm-anonymizer/internal/anonymizer"
	"github.com/raaihank/llm-anonymizer/internal/config"
	"github.com/raaihank/llm-anonymizer/internal/patterns"
	"github.com/raaihank/llm-anonymizer/internal/patternstore"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const storeTimeout = 10 * time.Second

func newPatternsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patterns",
		Short: "Inspect and manage patterns",
	}

	cmd.AddCommand(newPatternsListCommand(ctx))
	cmd.AddCommand(newPatternsShowCommand(ctx))
	cmd.AddCommand(newPatternsAddCommand(ctx))
	cmd.AddCommand(newPatternsRemoveCommand(ctx))

	return cmd
}

func newPatternsListCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered patterns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, _, _, err := ctx.pipeline(true)
			if err != nil {
				return err
			}

			list := p.ListPatterns()
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), list)
			}

			rows := make([][]string, 0, len(list))
			for _, info := range list {
				rows = append(rows, []string{info.Name, string(info.Class), info.Description})
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Name", "Class", "Description"}, rows, nil))
			return err
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print as JSON")
	return cmd
}

func newPatternsShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <name>",
		Short: "Show one pattern",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, _, _, err := ctx.pipeline(true)
			if err != nil {
				return err
			}

			pattern, ok := p.Registry().Get(args[0])
			if !ok {
				return fmt.Errorf("pattern not found: %s", args[0])
			}

			info := patterns.Info{Name: pattern.Name, Source: pattern.Source, Description: pattern.Description, Class: pattern.Class}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), info)
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Name:        %s\nPattern:     %s\nClass:       %s\nDescription: %s\n",
				info.Name, info.Source, info.Class, info.Description)
			return err
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print as JSON")
	return cmd
}

func newPatternsAddCommand(ctx *commandContext) *cobra.Command {
	var (
		description string
		class       string
		file        string
	)

	cmd := &cobra.Command{
		Use:   "add <name> <pattern>",
		Short: "Validate and save a custom pattern",
		Long: "Validate a custom pattern and save it to a YAML pattern file (--file) or, " +
			"when pattern_store is enabled, to the shared pattern store.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, cfg, log, err := ctx.pipeline(true)
			if err != nil {
				return err
			}

			res := p.AddPattern(patterns.Definition{
				Name:        args[0],
				Source:      args[1],
				Description: description,
				Class:       patterns.Class(class),
			})
			if !res.Success {
				return fmt.Errorf("%s: %s", res.Code, res.Error)
			}
			def := patterns.Definition{Name: res.Name, Source: res.PatternSource, Description: res.Description, Class: res.Class}

			if err := persistPattern(cmd.Context(), cfg, log.Logger, file, def, false); err != nil {
				return err
			}

			verb := "added"
			if res.Overwritten {
				verb = "updated"
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Pattern '%s' %s\n", def.Name, verb)
			return err
		},
	}

	cmd.Flags().StringVarP(&description, "description", "d", "", "Pattern description")
	cmd.Flags().StringVar(&class, "class", "", "Sensitivity class: high, medium or low (default inferred from the name)")
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML pattern file to update")
	return cmd
}

func newPatternsRemoveCommand(ctx *commandContext) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a saved custom pattern",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfg, log, err := ctx.pipeline(true)
			if err != nil {
				return err
			}

			def := patterns.Definition{Name: args[0]}
			if err := persistPattern(cmd.Context(), cfg, log.Logger, file, def, true); err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Pattern '%s' removed successfully\n", def.Name)
			return err
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML pattern file to update")
	return cmd
}

// persistPattern saves or deletes def in the pattern file, or in the shared
// pattern store when no file is given
func persistPattern(ctx context.Context, cfg *config.Config, log *zap.Logger, file string, def patterns.Definition, remove bool) error {
	if file != "" {
		return updatePatternFile(file, def, remove)
	}
	if !cfg.PatternStore.Enabled {
		return errors.New("nowhere to save: pass --file or enable pattern_store")
	}

	store, err := patternstore.New(patternStoreConfig(cfg), log)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	if remove {
		return store.Delete(ctx, def.Name)
	}
	return store.Save(ctx, def)
}

func updatePatternFile(path string, def patterns.Definition, remove bool) error {
	defs, err := patterns.LoadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	found := false
	out := defs[:0]
	for _, d := range defs {
		if d.Name != def.Name {
			out = append(out, d)
			continue
		}
		found = true
		if !remove {
			out = append(out, def)
		}
	}

	switch {
	case remove && !found:
		return fmt.Errorf("%s: %w: %s", anonymizer.CodePatternNotFound, patterns.ErrPatternNotFound, def.Name)
	case !remove && !found:
		out = append(out, def)
	}

	return patterns.SaveFile(path, out)
}

func patternStoreConfig(cfg *config.Config) patternstore.Config {
	return patternstore.Config{
		URL:          cfg.PatternStore.URL,
		KeyPrefix:    cfg.PatternStore.KeyPrefix,
		PoolSize:     cfg.PatternStore.PoolSize,
		DialTimeout:  cfg.PatternStore.DialTimeout,
		ReadTimeout:  cfg.PatternStore.ReadTimeout,
		WriteTimeout: cfg.PatternStore.WriteTimeout,
	}
}
