package patterns

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Snapshot is an immutable view of a registry at one point in time.
// Detection always runs against a snapshot, so concurrent register and
// remove calls are never observed mid-scan.
type Snapshot struct {
	patterns []*Pattern
	index    map[string]int
}

var emptySnapshot = &Snapshot{index: map[string]int{}}

// Get looks up a pattern by name
func (s *Snapshot) Get(name string) (*Pattern, bool) {
	i, ok := s.index[name]
	if !ok {
		return nil, false
	}
	return s.patterns[i], true
}

// Names returns pattern names in registration order
func (s *Snapshot) Names() []string {
	names := make([]string, len(s.patterns))
	for i, p := range s.patterns {
		names[i] = p.Name
	}
	return names
}

// Len returns the number of patterns in the snapshot
func (s *Snapshot) Len() int {
	return len(s.patterns)
}

// Registry owns the set of named patterns. Reads are lock-free; writers
// serialize on a mutex and publish a fresh snapshot.
type Registry struct {
	mu      sync.Mutex
	current atomic.Pointer[Snapshot]
	timeout time.Duration
	logger  *zap.Logger
}

// Option configures a Registry
type Option func(*Registry)

// WithMatchTimeout overrides DefaultMatchTimeout for patterns compiled by the registry
func WithMatchTimeout(d time.Duration) Option {
	return func(r *Registry) {
		r.timeout = d
	}
}

// NewRegistry creates an empty registry
func NewRegistry(logger *zap.Logger, opts ...Option) *Registry {
	r := &Registry{
		timeout: DefaultMatchTimeout,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.current.Store(emptySnapshot)
	return r
}

// NewDefaultRegistry creates a registry preloaded with the built-in catalog
func NewDefaultRegistry(logger *zap.Logger, opts ...Option) (*Registry, error) {
	r := NewRegistry(logger, opts...)
	if _, err := r.RegisterAll(Builtins()); err != nil {
		return nil, fmt.Errorf("failed to register built-in patterns: %w", err)
	}
	return r, nil
}

// Snapshot returns the current immutable view of the registry
func (r *Registry) Snapshot() *Snapshot {
	return r.current.Load()
}

// Register compiles source and stores it under name with the default class for name
func (r *Registry) Register(name, source, description string) (Registration, error) {
	return r.RegisterPattern(Definition{
		Name:        name,
		Source:      source,
		Description: description,
	})
}

// RegisterPattern compiles def and inserts it. A pattern with the same name
// is replaced in place; the overwrite is logged and reported, not rejected.
func (r *Registry) RegisterPattern(def Definition) (Registration, error) {
	name := strings.TrimSpace(def.Name)
	if name == "" {
		return Registration{}, fmt.Errorf("%w: name must not be empty", ErrInvalidPatternName)
	}
	if strings.TrimSpace(def.Source) == "" {
		return Registration{}, fmt.Errorf("%w: %s: empty pattern", ErrInvalidPatternSyntax, name)
	}

	class := ClassFor(name)
	if def.Class != "" {
		parsed, err := ParseClass(string(def.Class))
		if err != nil {
			return Registration{}, fmt.Errorf("%s: %w", name, err)
		}
		class = parsed
	}

	matcher, err := Compile(def.Source, r.timeout)
	if err != nil {
		return Registration{}, fmt.Errorf("%w: %s: %v", ErrInvalidPatternSyntax, name, err)
	}

	pattern := &Pattern{
		Name:        name,
		Source:      def.Source,
		Description: def.Description,
		Class:       class,
		matcher:     matcher,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.current.Load()
	next := &Snapshot{
		patterns: make([]*Pattern, len(prev.patterns), len(prev.patterns)+1),
		index:    make(map[string]int, len(prev.index)+1),
	}
	copy(next.patterns, prev.patterns)
	for k, v := range prev.index {
		next.index[k] = v
	}

	i, overwritten := next.index[name]
	if overwritten {
		next.patterns[i] = pattern
	} else {
		next.index[name] = len(next.patterns)
		next.patterns = append(next.patterns, pattern)
	}
	r.current.Store(next)

	if overwritten {
		r.logger.Warn("Pattern overwritten",
			zap.String("pattern", name),
			zap.String("class", string(class)),
		)
	} else {
		r.logger.Debug("Pattern registered",
			zap.String("pattern", name),
			zap.String("class", string(class)),
		)
	}

	return Registration{Name: name, Overwritten: overwritten}, nil
}

// RegisterAll registers every definition. Invalid definitions are collected
// into the returned error and do not prevent the remaining ones from loading.
func (r *Registry) RegisterAll(defs []Definition) (int, error) {
	var errs []error
	registered := 0
	for _, def := range defs {
		if _, err := r.RegisterPattern(def); err != nil {
			errs = append(errs, err)
			continue
		}
		registered++
	}
	return registered, errors.Join(errs...)
}

// Remove deletes the named pattern
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.current.Load()
	i, ok := prev.index[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPatternNotFound, name)
	}

	next := &Snapshot{
		patterns: make([]*Pattern, 0, len(prev.patterns)-1),
		index:    make(map[string]int, len(prev.index)-1),
	}
	next.patterns = append(next.patterns, prev.patterns[:i]...)
	next.patterns = append(next.patterns, prev.patterns[i+1:]...)
	for j, p := range next.patterns {
		next.index[p.Name] = j
	}
	r.current.Store(next)

	r.logger.Debug("Pattern removed", zap.String("pattern", name))
	return nil
}

// Get returns the named pattern. Absence is a normal outcome, not an error.
func (r *Registry) Get(name string) (*Pattern, bool) {
	return r.Snapshot().Get(name)
}

// List returns metadata for all patterns in registration order
func (r *Registry) List() []Info {
	snap := r.Snapshot()
	infos := make([]Info, len(snap.patterns))
	for i, p := range snap.patterns {
		infos[i] = Info{
			Name:        p.Name,
			Source:      p.Source,
			Description: p.Description,
			Class:       p.Class,
		}
	}
	return infos
}
