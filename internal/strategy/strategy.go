// Package strategy implements the replacement behaviors applied to detected
// matches and the resolver that picks one per match.
package strategy

import (
	"errors"
	"time"
)

// Strategy names
const (
	Mask    = "mask"
	Hash    = "hash"
	HMAC    = "hmac"
	Replace = "replace"
	Remove  = "remove"
	Literal = "literal"
	Script  = "script"
)

// ErrStrategyResolution marks a strategy that failed for one match. The
// resolver isolates it and falls back to Mask.
var ErrStrategyResolution = errors.New("strategy resolution failed")

// Options carries the per-call settings that influence a replacement
type Options struct {
	PreserveFormat bool
}

// Strategy converts the original text of a match into its replacement
type Strategy interface {
	Name() string
	Apply(original, patternName string, opts Options) (string, error)
}

// Override is a per-pattern replacement policy. Literal wins over Script,
// which wins over Strategy.
type Override struct {
	Strategy string  `json:"strategy,omitempty" yaml:"strategy" mapstructure:"strategy"`
	Literal  *string `json:"literalReplacement,omitempty" yaml:"literal" mapstructure:"literal"`
	Script   string  `json:"script,omitempty" yaml:"script" mapstructure:"script"`
}

// Config contains strategy configuration
type Config struct {
	// Seed makes Replace deterministic; zero seeds from the runtime
	Seed uint64 `yaml:"seed" mapstructure:"seed"`
	// HMACKey enables the keyed hmac strategy when non-empty
	HMACKey string `yaml:"hmac_key" mapstructure:"hmac_key"`
	// ScriptTimeout bounds a single script override invocation
	ScriptTimeout time.Duration `yaml:"script_timeout" mapstructure:"script_timeout"`
}

// Func adapts a function to the Strategy interface
type Func struct {
	StrategyName string
	Fn           func(original, patternName string, opts Options) (string, error)
}

func (f Func) Name() string {
	return f.StrategyName
}

func (f Func) Apply(original, patternName string, opts Options) (string, error) {
	return f.Fn(original, patternName, opts)
}

// RemoveStrategy replaces every match with the empty string
type RemoveStrategy struct{}

func (RemoveStrategy) Name() string {
	return Remove
}

func (RemoveStrategy) Apply(string, string, Options) (string, error) {
	return "", nil
}
