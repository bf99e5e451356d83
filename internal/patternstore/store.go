package patternstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/raaihank/llm-anonymizer/internal/anonymizer"
	"github.com/raaihank/llm-anonymizer/internal/patterns"
	"go.uber.org/zap"
)

const (
	scanCount    = 100
	writeTimeout = 5 * time.Second
)

// Config contains pattern store configuration
type Config struct {
	URL          string
	KeyPrefix    string
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// record is the JSON value stored under each pattern key
type record struct {
	patterns.Definition
	UpdatedAt time.Time `json:"updated_at"`
}

// Store shares custom pattern definitions between instances through Redis
type Store struct {
	client *redis.Client
	config Config
	logger *zap.Logger

	once      sync.Once
	persister *persister
}

// New connects to Redis and verifies the connection
func New(config Config, logger *zap.Logger) (*Store, error) {
	opts, err := redis.ParseURL(config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	if config.DialTimeout > 0 {
		opts.DialTimeout = config.DialTimeout
	}
	if config.ReadTimeout > 0 {
		opts.ReadTimeout = config.ReadTimeout
	}
	if config.WriteTimeout > 0 {
		opts.WriteTimeout = config.WriteTimeout
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "anonymizer"
	}

	store := &Store{
		client: redis.NewClient(opts),
		config: config,
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := store.client.Ping(ctx).Err(); err != nil {
		store.client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Pattern store initialized",
		zap.String("redis_url", maskRedisURL(config.URL)),
		zap.String("key_prefix", config.KeyPrefix),
	)

	return store, nil
}

// Save writes a pattern definition, replacing any stored one of the same name
func (s *Store) Save(ctx context.Context, def patterns.Definition) error {
	data, err := encode(def, time.Now().UTC())
	if err != nil {
		return err
	}

	if err := s.client.Set(ctx, s.key(def.Name), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save pattern %s: %w", def.Name, err)
	}

	s.logger.Debug("Pattern saved", zap.String("pattern", def.Name))
	return nil
}

// Delete removes a stored pattern. Deleting an absent pattern is not an error.
func (s *Store) Delete(ctx context.Context, name string) error {
	if err := s.client.Del(ctx, s.key(name)).Err(); err != nil {
		return fmt.Errorf("failed to delete pattern %s: %w", name, err)
	}

	s.logger.Debug("Pattern deleted", zap.String("pattern", name))
	return nil
}

// LoadAll returns every stored definition. Corrupt entries are logged and skipped.
func (s *Store) LoadAll(ctx context.Context) ([]patterns.Definition, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, s.key("*"), scanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan pattern keys: %w", err)
	}

	if len(keys) == 0 {
		return []patterns.Definition{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(keys))
	for i, key := range keys {
		cmds[i] = pipe.Get(ctx, key)
	}
	// redis.Nil on a key deleted mid-scan is reported per command
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to load patterns: %w", err)
	}

	defs := make([]patterns.Definition, 0, len(keys))
	for i, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			continue
		}
		def, err := decode(data)
		if err != nil {
			s.logger.Warn("Skipping corrupt stored pattern", zap.String("key", keys[i]), zap.Error(err))
			continue
		}
		defs = append(defs, def)
	}

	return defs, nil
}

// Sync registers every stored definition into registry
func (s *Store) Sync(ctx context.Context, registry *patterns.Registry) (int, error) {
	defs, err := s.LoadAll(ctx)
	if err != nil {
		return 0, err
	}

	n, err := registry.RegisterAll(defs)
	s.logger.Info("Patterns synced from store",
		zap.Int("stored", len(defs)),
		zap.Int("registered", n),
	)
	return n, err
}

// Observer persists registry mutations made through the pipeline. Writes
// run on a single background goroutine in the order the changes were made.
func (s *Store) Observer() anonymizer.Observer {
	s.once.Do(func() {
		s.persister = newPersister(s, changeBuffer, s.logger)
	})
	if s.persister == nil {
		return func(anonymizer.Event) {}
	}
	return s.persister.observer()
}

// Close writes any queued pattern changes and closes the Redis connection
func (s *Store) Close() error {
	s.once.Do(func() {})
	if s.persister != nil {
		s.persister.close()
	}
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func (s *Store) key(name string) string {
	return patternKey(s.config.KeyPrefix, name)
}

func patternKey(prefix, name string) string {
	return fmt.Sprintf("%s:pattern:%s", prefix, name)
}

func encode(def patterns.Definition, now time.Time) ([]byte, error) {
	data, err := json.Marshal(record{Definition: def, UpdatedAt: now})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal pattern %s: %w", def.Name, err)
	}
	return data, nil
}

func decode(data []byte) (patterns.Definition, error) {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return patterns.Definition{}, err
	}
	if strings.TrimSpace(r.Name) == "" || r.Source == "" {
		return patterns.Definition{}, fmt.Errorf("stored pattern is missing name or source")
	}
	return r.Definition, nil
}

// maskRedisURL masks the password of a Redis URL for logging
func maskRedisURL(url string) string {
	at := strings.LastIndex(url, "@")
	if at < 0 {
		return url
	}
	userInfo := url[:at]
	colon := strings.LastIndex(userInfo, ":")
	// a colon inside the scheme separator is not a password separator
	if colon < strings.Index(userInfo, "://")+3 {
		return url
	}
	return userInfo[:colon+1] + "***" + url[at:]
}
