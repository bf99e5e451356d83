package main

import (
	"fmt"
	"strings"
	"sync"

	"github.com/raaihank/llm-anonymizer/internal/anonymizer"
	"github.com/raaihank/llm-anonymizer/internal/config"
	"github.com/raaihank/llm-anonymizer/internal/logger"
	"github.com/raaihank/llm-anonymizer/internal/patterns"
	"github.com/raaihank/llm-anonymizer/internal/privacy"
	"github.com/raaihank/llm-anonymizer/internal/risk"
	"github.com/raaihank/llm-anonymizer/internal/strategy"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type commandContext struct {
	configFlag *string
	verbose    *bool

	configOnce sync.Once
	config     *config.Config
	viper      *viper.Viper
	configErr  error

	loggerOnce sync.Once
	logger     *logger.Logger
	loggerErr  error
}

func newCommandContext(configFlag *string, verbose *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		verbose:    verbose,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, *viper.Viper, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		c.config, c.viper, c.configErr = config.Load(path)
	})
	return c.config, c.viper, c.configErr
}

// ensureLogger builds the logger from configuration. One-shot commands log
// warnings only unless --verbose is set; serve always uses the configured level.
func (c *commandContext) ensureLogger(quiet bool) (*logger.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, _, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}

		loggerConfig := logger.Config{
			Level:  cfg.Logging.Level,
			Format: cfg.Logging.Format,
		}
		if quiet && (c.verbose == nil || !*c.verbose) {
			loggerConfig.Level = "warn"
		}
		if cfg.Logging.File.Enabled {
			loggerConfig.File = &logger.FileConfig{
				Enabled: cfg.Logging.File.Enabled,
				Path:    cfg.Logging.File.Path,
			}
		}

		c.logger, c.loggerErr = logger.New(loggerConfig)
	})
	return c.logger, c.loggerErr
}

// pipeline loads configuration and builds an anonymization pipeline from it
func (c *commandContext) pipeline(quiet bool) (*anonymizer.Pipeline, *config.Config, *logger.Logger, error) {
	cfg, _, err := c.ensureConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	log, err := c.ensureLogger(quiet)
	if err != nil {
		return nil, nil, nil, err
	}
	p, err := buildPipeline(cfg, log.Logger)
	if err != nil {
		return nil, nil, nil, err
	}
	return p, cfg, log, nil
}

// buildPipeline wires built-in and configured patterns, strategies and risk policy
func buildPipeline(cfg *config.Config, log *zap.Logger) (*anonymizer.Pipeline, error) {
	registry, err := patterns.NewDefaultRegistry(log, patterns.WithMatchTimeout(cfg.Anonymizer.MatchTimeout))
	if err != nil {
		return nil, fmt.Errorf("failed to load built-in patterns: %w", err)
	}

	// invalid custom patterns are skipped; the valid ones stay registered
	if n, err := registry.RegisterAll(cfg.Anonymizer.CustomPatterns); err != nil {
		log.Warn("Some custom patterns were rejected", zap.Int("registered", n), zap.Error(err))
	}
	if len(cfg.Anonymizer.PatternFiles) > 0 {
		if n, err := registry.LoadFiles(cfg.Anonymizer.PatternFiles...); err != nil {
			log.Warn("Some pattern files failed to load", zap.Int("registered", n), zap.Error(err))
		}
	}

	resolver, err := strategy.NewResolver(cfg.Anonymizer.Config, log)
	if err != nil {
		return nil, fmt.Errorf("failed to configure strategies: %w", err)
	}

	return anonymizer.New(
		registry,
		privacy.New(privacy.Config{Parallel: cfg.Anonymizer.ParallelScan}, log),
		resolver,
		risk.NewScorer(cfg.Risk),
		anonymizer.Config{Defaults: anonymizer.Options{
			SelectedPatterns: cfg.Anonymizer.Patterns,
			DefaultStrategy:  cfg.Anonymizer.DefaultStrategy,
			Overrides:        cfg.Anonymizer.Overrides,
			PreserveFormat:   cfg.Anonymizer.PreserveFormat,
			CaseSensitive:    cfg.Anonymizer.CaseSensitive,
		}},
		log,
	), nil
}

// reloadPatterns registers custom patterns that are new or changed in cfg.
// Patterns dropped from the file stay registered until removed explicitly.
func reloadPatterns(p *anonymizer.Pipeline, cfg *config.Config, log *zap.Logger) {
	updated := 0
	for _, def := range cfg.Anonymizer.CustomPatterns {
		if existing, ok := p.Registry().Get(def.Name); ok && sameDefinition(existing.Definition(), def) {
			continue
		}
		res := p.AddPattern(def)
		if !res.Success {
			log.Warn("Custom pattern rejected on reload", zap.String("pattern", def.Name), zap.String("error", res.Error))
			continue
		}
		updated++
	}
	log.Info("Configuration reloaded", zap.Int("patterns_updated", updated))
}

func sameDefinition(a, b patterns.Definition) bool {
	if a.Source != b.Source || a.Description != b.Description {
		return false
	}
	if b.Class == "" {
		return true
	}
	class, err := patterns.ParseClass(string(b.Class))
	return err == nil && class == a.Class
}
