package config

import (
	"time"

	"github.com/raaihank/llm-anonymizer/internal/patterns"
	"github.com/raaihank/llm-anonymizer/internal/risk"
	"github.com/raaihank/llm-anonymizer/internal/strategy"
)

// Config represents the main configuration structure
type Config struct {
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
	Anonymizer   AnonymizerConfig   `yaml:"anonymizer" mapstructure:"anonymizer"`
	Risk         risk.Policy        `yaml:"risk" mapstructure:"risk"`
	Logging      LoggingConfig      `yaml:"logging" mapstructure:"logging"`
	RateLimit    RateLimitConfig    `yaml:"rate_limit" mapstructure:"rate_limit"`
	WebSocket    WebSocketConfig    `yaml:"websocket" mapstructure:"websocket"`
	PatternStore PatternStoreConfig `yaml:"pattern_store" mapstructure:"pattern_store"`
	Audit        AuditConfig        `yaml:"audit" mapstructure:"audit"`
	Batch        BatchConfig        `yaml:"batch" mapstructure:"batch"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host" mapstructure:"host"`
	Port            int           `yaml:"port" mapstructure:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
}

// AnonymizerConfig contains pipeline defaults and the custom pattern catalog
type AnonymizerConfig struct {
	strategy.Config `yaml:",inline" mapstructure:",squash"`

	DefaultStrategy string                       `yaml:"default_strategy" mapstructure:"default_strategy"`
	Patterns        []string                     `yaml:"patterns" mapstructure:"patterns"`
	PreserveFormat  bool                         `yaml:"preserve_format" mapstructure:"preserve_format"`
	CaseSensitive   bool                         `yaml:"case_sensitive" mapstructure:"case_sensitive"`
	ParallelScan    bool                         `yaml:"parallel_scan" mapstructure:"parallel_scan"`
	MatchTimeout    time.Duration                `yaml:"match_timeout" mapstructure:"match_timeout"`
	Overrides       map[string]strategy.Override `yaml:"overrides" mapstructure:"overrides"`
	CustomPatterns  []patterns.Definition        `yaml:"custom_patterns" mapstructure:"custom_patterns"`
	PatternFiles    []string                     `yaml:"pattern_files" mapstructure:"pattern_files"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // json or console
	File   struct {
		Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
		Path    string `yaml:"path" mapstructure:"path"`
	} `yaml:"file" mapstructure:"file"`
}

// RateLimitConfig contains per-client rate limiting for the HTTP API
type RateLimitConfig struct {
	Enabled           bool          `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerSecond float64       `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int           `yaml:"burst" mapstructure:"burst"`
	ClientTTL         time.Duration `yaml:"client_ttl" mapstructure:"client_ttl"`
}

// WebSocketConfig contains event hub configuration
type WebSocketConfig struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	Path            string        `yaml:"path" mapstructure:"path"`
	MaxConnections  int           `yaml:"max_connections" mapstructure:"max_connections"`
	ReadBufferSize  int           `yaml:"read_buffer_size" mapstructure:"read_buffer_size"`
	WriteBufferSize int           `yaml:"write_buffer_size" mapstructure:"write_buffer_size"`
	PingInterval    time.Duration `yaml:"ping_interval" mapstructure:"ping_interval"`
	PongTimeout     time.Duration `yaml:"pong_timeout" mapstructure:"pong_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	MaxMessageSize  int64         `yaml:"max_message_size" mapstructure:"max_message_size"`
	AllowedOrigins  []string      `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	Username        string        `yaml:"username" mapstructure:"username"`
	Password        string        `yaml:"password" mapstructure:"password"`
	Events          struct {
		BroadcastAnonymizations bool `yaml:"broadcast_anonymizations" mapstructure:"broadcast_anonymizations"`
		BroadcastDetections     bool `yaml:"broadcast_detections" mapstructure:"broadcast_detections"`
		BroadcastPatternChanges bool `yaml:"broadcast_pattern_changes" mapstructure:"broadcast_pattern_changes"`
		BroadcastConnections    bool `yaml:"broadcast_connections" mapstructure:"broadcast_connections"`
	} `yaml:"events" mapstructure:"events"`
}

// PatternStoreConfig contains the shared Redis pattern store configuration
type PatternStoreConfig struct {
	Enabled      bool          `yaml:"enabled" mapstructure:"enabled"`
	URL          string        `yaml:"url" mapstructure:"url"`
	KeyPrefix    string        `yaml:"key_prefix" mapstructure:"key_prefix"`
	PoolSize     int           `yaml:"pool_size" mapstructure:"pool_size"`
	DialTimeout  time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
}

// AuditConfig contains the audit database configuration
type AuditConfig struct {
	Enabled      bool          `yaml:"enabled" mapstructure:"enabled"`
	Driver       string        `yaml:"driver" mapstructure:"driver"` // postgres or sqlite
	DSN          string        `yaml:"dsn" mapstructure:"dsn"`
	MaxOpenConns int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	MaxLifetime  time.Duration `yaml:"max_lifetime" mapstructure:"max_lifetime"`
	BufferSize   int           `yaml:"buffer_size" mapstructure:"buffer_size"`
}

// BatchConfig contains batch anonymization defaults
type BatchConfig struct {
	Workers      int    `yaml:"workers" mapstructure:"workers"`
	BatchSize    int    `yaml:"batch_size" mapstructure:"batch_size"`
	OutputFormat string `yaml:"output_format" mapstructure:"output_format"` // jsonl or parquet
	IDColumn     string `yaml:"id_column" mapstructure:"id_column"`
	TextColumn   string `yaml:"text_column" mapstructure:"text_column"`
}

// GetDefaults returns a configuration with sensible defaults
func GetDefaults() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxBodyBytes:    10 << 20,
		},
		Anonymizer: AnonymizerConfig{
			Config: strategy.Config{
				ScriptTimeout: strategy.DefaultScriptTimeout,
			},
			DefaultStrategy: strategy.Mask,
			MatchTimeout:    patterns.DefaultMatchTimeout,
		},
		Risk: risk.DefaultPolicy(),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: 20,
			Burst:             40,
			ClientTTL:         10 * time.Minute,
		},
		WebSocket: WebSocketConfig{
			Enabled:         true,
			Path:            "/ws",
			MaxConnections:  100,
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			PingInterval:    54 * time.Second,
			PongTimeout:     60 * time.Second,
			WriteTimeout:    10 * time.Second,
			MaxMessageSize:  4096,
			AllowedOrigins:  []string{"*"},
		},
		PatternStore: PatternStoreConfig{
			Enabled:      false,
			URL:          "redis://localhost:6379/0",
			KeyPrefix:    "anonymizer",
			PoolSize:     10,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:      false,
			Driver:       "sqlite",
			DSN:          "file:anonymizer-audit.db?_pragma=busy_timeout(5000)",
			MaxOpenConns: 10,
			MaxIdleConns: 5,
			MaxLifetime:  5 * time.Minute,
			BufferSize:   1024,
		},
		Batch: BatchConfig{
			Workers:      4,
			BatchSize:    500,
			OutputFormat: "jsonl",
			IDColumn:     "id",
			TextColumn:   "text",
		},
	}

	cfg.Logging.File.Path = "logs/anonymizer.log"
	cfg.WebSocket.Events.BroadcastAnonymizations = true
	cfg.WebSocket.Events.BroadcastDetections = true
	cfg.WebSocket.Events.BroadcastPatternChanges = true
	cfg.WebSocket.Events.BroadcastConnections = true

	return cfg
}
