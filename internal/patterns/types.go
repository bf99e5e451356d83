package patterns

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidPatternSyntax is returned when a pattern source fails to compile
	ErrInvalidPatternSyntax = errors.New("invalid pattern syntax")
	// ErrInvalidPatternName is returned for empty or malformed pattern names
	ErrInvalidPatternName = errors.New("invalid pattern name")
	// ErrInvalidPatternClass is returned for an unknown sensitivity class
	ErrInvalidPatternClass = errors.New("invalid pattern class")
	// ErrPatternNotFound is returned when removing a pattern that is not registered
	ErrPatternNotFound = errors.New("pattern not found")
)

// Class is the sensitivity class of a pattern. It drives risk weighting only.
type Class string

const (
	ClassHigh   Class = "high"
	ClassMedium Class = "medium"
	ClassLow    Class = "low"
	ClassOther  Class = "other"
)

// ParseClass parses a sensitivity class name. An empty string yields ClassOther.
func ParseClass(s string) (Class, error) {
	switch Class(strings.ToLower(strings.TrimSpace(s))) {
	case ClassHigh:
		return ClassHigh, nil
	case ClassMedium:
		return ClassMedium, nil
	case ClassLow:
		return ClassLow, nil
	case ClassOther, "":
		return ClassOther, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPatternClass, s)
	}
}

// Definition is the serializable form of a pattern, as found in config files,
// YAML pattern files and the shared pattern store.
type Definition struct {
	Name        string `yaml:"name" json:"name" mapstructure:"name"`
	Source      string `yaml:"pattern" json:"pattern" mapstructure:"pattern"`
	Description string `yaml:"description" json:"description,omitempty" mapstructure:"description"`
	Class       Class  `yaml:"class" json:"class,omitempty" mapstructure:"class"`
}

// Pattern is a compiled, named matching rule. Patterns are immutable once registered.
type Pattern struct {
	Name        string
	Source      string
	Description string
	Class       Class

	matcher *Matcher
}

// FindAll returns the spans of all non-empty matches of the pattern in subject.
func (p *Pattern) FindAll(subject *Subject, caseSensitive bool) ([]Span, error) {
	return p.matcher.FindAll(subject, caseSensitive)
}

// Definition returns the serializable form of the pattern.
func (p *Pattern) Definition() Definition {
	return Definition{
		Name:        p.Name,
		Source:      p.Source,
		Description: p.Description,
		Class:       p.Class,
	}
}

// Info is the read-only listing entry returned by Registry.List
type Info struct {
	Name        string `json:"name"`
	Source      string `json:"patternSource"`
	Description string `json:"description"`
	Class       Class  `json:"sensitivityClass"`
}

// Registration describes the outcome of a successful register call
type Registration struct {
	Name        string
	Overwritten bool
}
