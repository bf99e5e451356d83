package strategy

import (
	"fmt"

	"go.uber.org/zap"
)

// Resolution is the outcome of resolving one match
type Resolution struct {
	Replacement string
	// Strategy is the name of the strategy that produced Replacement
	Strategy string
	// Err is set when the selected strategy failed and Mask was used instead
	Err error
}

// Resolver picks and applies a strategy per match with this precedence:
// literal override, per-pattern script or strategy override, the default
// strategy, then Mask.
type Resolver struct {
	strategies map[string]Strategy
	scripts    *scriptCache
	logger     *zap.Logger
}

// NewResolver creates a resolver with the built-in strategies. Extra
// strategies replace built-ins of the same name.
func NewResolver(cfg Config, logger *zap.Logger, extra ...Strategy) (*Resolver, error) {
	src := NewRandomSource()
	if cfg.Seed != 0 {
		src = NewSeededSource(cfg.Seed)
	}

	r := &Resolver{
		strategies: make(map[string]Strategy),
		scripts:    newScriptCache(cfg.ScriptTimeout),
		logger:     logger,
	}
	r.Register(MaskStrategy{})
	r.Register(HashStrategy{})
	r.Register(NewReplaceStrategy(src))
	r.Register(RemoveStrategy{})

	if cfg.HMACKey != "" {
		h, err := NewHMACStrategy([]byte(cfg.HMACKey))
		if err != nil {
			return nil, err
		}
		r.Register(h)
	}

	for _, s := range extra {
		r.Register(s)
	}

	return r, nil
}

// Register adds or replaces a strategy. Not safe for use concurrently with Resolve.
func (r *Resolver) Register(s Strategy) {
	r.strategies[s.Name()] = s
}

// Lookup returns the strategy registered under name
func (r *Resolver) Lookup(name string) (Strategy, bool) {
	s, ok := r.strategies[name]
	return s, ok
}

// Names returns the registered strategy names
func (r *Resolver) Names() []string {
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	return names
}

// Resolve computes the replacement for original. It never fails: a strategy
// error or panic is isolated and the match is masked instead.
func (r *Resolver) Resolve(original, patternName, defaultStrategy string, overrides map[string]Override, opts Options) Resolution {
	selected := r.selectStrategy(patternName, defaultStrategy, overrides)
	if selected.literal != nil {
		return Resolution{Replacement: *selected.literal, Strategy: Literal}
	}

	var err error
	if selected.err == nil {
		var out string
		out, err = safeApply(selected.strategy, original, patternName, opts)
		if err == nil {
			return Resolution{Replacement: out, Strategy: selected.strategy.Name()}
		}
	} else {
		err = selected.err
	}

	r.logger.Debug("Strategy failed, falling back to mask",
		zap.String("pattern", patternName),
		zap.Error(err),
	)

	return Resolution{
		Replacement: maskText(original, patternName, opts),
		Strategy:    Mask,
		Err:         err,
	}
}

type selection struct {
	literal  *string
	strategy Strategy
	err      error
}

func (r *Resolver) selectStrategy(patternName, defaultStrategy string, overrides map[string]Override) selection {
	if ov, ok := overrides[patternName]; ok {
		if ov.Literal != nil {
			return selection{literal: ov.Literal}
		}
		if ov.Script != "" {
			s, err := r.scripts.get(ov.Script)
			if err != nil {
				return selection{err: fmt.Errorf("%w: %v", ErrStrategyResolution, err)}
			}
			return selection{strategy: s}
		}
		if s, ok := r.strategies[ov.Strategy]; ok {
			return selection{strategy: s}
		}
	}

	if s, ok := r.strategies[defaultStrategy]; ok {
		return selection{strategy: s}
	}

	return selection{strategy: r.strategies[Mask]}
}

// safeApply runs s and converts both errors and panics into ErrStrategyResolution
func safeApply(s Strategy, original, patternName string, opts Options) (out string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %s panicked: %v", ErrStrategyResolution, s.Name(), rec)
		}
	}()

	out, err = s.Apply(original, patternName, opts)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrStrategyResolution, s.Name(), err)
	}
	return out, nil
}
