package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/raaihank/llm-anonymizer/internal/strategy"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment variable overrides,
// e.g. ANONYMIZER_SERVER_PORT
const EnvPrefix = "ANONYMIZER"

// New returns a viper instance with search paths, environment overrides and
// defaults configured. An explicit configPath replaces the search paths.
func New(configPath string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/llm-anonymizer/")
	v.AddConfigPath("$HOME/.llm-anonymizer/")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	}

	if err := setDefaults(v, GetDefaults()); err != nil {
		return nil, fmt.Errorf("failed to register defaults: %w", err)
	}

	return v, nil
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, *viper.Viper, error) {
	v, err := New(configPath)
	if err != nil {
		return nil, nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		// A missing config file falls back to defaults
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	config, err := decode(v)
	if err != nil {
		return nil, nil, err
	}

	return config, v, nil
}

// decode unmarshals and validates the current state of v
func decode(v *viper.Viper) (*Config, error) {
	config := GetDefaults()
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// setDefaults registers every leaf of cfg as a viper default so that
// environment overrides apply to keys absent from the config file
func setDefaults(v *viper.Viper, cfg *Config) error {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	var tree map[string]any
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return err
	}

	flatten("", tree, v.SetDefault)
	return nil
}

func flatten(prefix string, tree map[string]any, set func(string, any)) {
	for k, val := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := val.(map[string]any); ok && len(sub) > 0 {
			flatten(key, sub, set)
			continue
		}
		set(key, val)
	}
}

// validateConfig validates the loaded configuration
func validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	switch config.Anonymizer.DefaultStrategy {
	case strategy.Mask, strategy.Hash, strategy.Replace, strategy.Remove:
	case strategy.HMAC:
		if config.Anonymizer.HMACKey == "" {
			return fmt.Errorf("default strategy hmac requires anonymizer.hmac_key")
		}
	default:
		return fmt.Errorf("invalid default strategy: %s (must be mask, hash, hmac, replace, or remove)", config.Anonymizer.DefaultStrategy)
	}

	if config.Anonymizer.MatchTimeout <= 0 {
		return fmt.Errorf("invalid match timeout: %s", config.Anonymizer.MatchTimeout)
	}

	for i, def := range config.Anonymizer.CustomPatterns {
		if strings.TrimSpace(def.Name) == "" || strings.TrimSpace(def.Source) == "" {
			return fmt.Errorf("custom pattern %d: name and pattern are required", i)
		}
	}

	if err := config.Risk.Validate(); err != nil {
		return fmt.Errorf("invalid risk policy: %w", err)
	}

	if config.Logging.Level != "debug" && config.Logging.Level != "info" && config.Logging.Level != "warn" && config.Logging.Level != "error" {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.Logging.Level)
	}

	if config.Logging.Format != "json" && config.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", config.Logging.Format)
	}

	if config.RateLimit.Enabled && (config.RateLimit.RequestsPerSecond <= 0 || config.RateLimit.Burst <= 0) {
		return fmt.Errorf("rate limit requires positive requests_per_second and burst")
	}

	if config.Audit.Enabled && config.Audit.Driver != "postgres" && config.Audit.Driver != "sqlite" {
		return fmt.Errorf("invalid audit driver: %s (must be postgres or sqlite)", config.Audit.Driver)
	}

	if config.Batch.Workers <= 0 {
		return fmt.Errorf("invalid batch workers: %d", config.Batch.Workers)
	}

	if config.Batch.OutputFormat != "jsonl" && config.Batch.OutputFormat != "parquet" {
		return fmt.Errorf("invalid batch output format: %s (must be jsonl or parquet)", config.Batch.OutputFormat)
	}

	return nil
}

// Watch re-reads the configuration file on change and passes each valid
// configuration to callback. Invalid reloads go to onError and keep the
// previous configuration in effect.
func Watch(v *viper.Viper, callback func(*Config), onError func(error)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		newConfig, err := decode(v)
		if err != nil {
			if onError != nil {
				onError(fmt.Errorf("reload %s: %w", e.Name, err))
			}
			return
		}

		callback(newConfig)
	})
	v.WatchConfig()
}
