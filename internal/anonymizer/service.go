package anonymizer

import (
	"errors"
	"fmt"

	"github.com/raaihank/llm-anonymizer/internal/patterns"
	"go.uber.org/zap"
)

// Error codes carried by failed PatternResult payloads
const (
	CodeInvalidPatternSyntax = "INVALID_PATTERN_SYNTAX"
	CodeInvalidPatternName   = "INVALID_PATTERN_NAME"
	CodeInvalidPatternClass  = "INVALID_PATTERN_CLASS"
	CodePatternNotFound      = "PATTERN_NOT_FOUND"
	CodeInternal             = "INTERNAL"
)

// PatternResult is the discriminated payload of registry mutations.
// Success payloads carry the pattern fields; failures carry Error and Code.
type PatternResult struct {
	Success       bool           `json:"success"`
	Name          string         `json:"name,omitempty"`
	PatternSource string         `json:"patternSource,omitempty"`
	Description   string         `json:"description,omitempty"`
	Class         patterns.Class `json:"sensitivityClass,omitempty"`
	Overwritten   bool           `json:"overwritten,omitempty"`
	Message       string         `json:"message,omitempty"`
	Error         string         `json:"error,omitempty"`
	Code          string         `json:"code,omitempty"`
}

// AddCustomPattern registers a pattern under name, overwriting any existing one
func (p *Pipeline) AddCustomPattern(name, source, description string) PatternResult {
	return p.AddPattern(patterns.Definition{Name: name, Source: source, Description: description})
}

// AddPattern registers a full definition, including an explicit class
func (p *Pipeline) AddPattern(def patterns.Definition) PatternResult {
	reg, err := p.registry.RegisterPattern(def)
	if err != nil {
		p.logger.Info("Pattern rejected", zap.String("pattern", def.Name), zap.Error(err))
		return failure(err)
	}

	pattern, ok := p.registry.Get(reg.Name)
	if !ok {
		// removed concurrently between register and read back
		return failure(fmt.Errorf("%w: %s", patterns.ErrPatternNotFound, reg.Name))
	}

	action := "added"
	if reg.Overwritten {
		action = "overwritten"
	}
	p.notify(Event{
		Type:      EventPatternChanged,
		Timestamp: p.now(),
		Change:    &PatternChange{Action: action, Definition: pattern.Definition()},
	})

	return PatternResult{
		Success:       true,
		Name:          pattern.Name,
		PatternSource: pattern.Source,
		Description:   pattern.Description,
		Class:         pattern.Class,
		Overwritten:   reg.Overwritten,
	}
}

// RemovePattern deletes the named pattern
func (p *Pipeline) RemovePattern(name string) PatternResult {
	pattern, _ := p.registry.Get(name)
	if err := p.registry.Remove(name); err != nil {
		return failure(err)
	}

	def := patterns.Definition{Name: name}
	if pattern != nil {
		def = pattern.Definition()
	}
	p.notify(Event{
		Type:      EventPatternChanged,
		Timestamp: p.now(),
		Change:    &PatternChange{Action: "removed", Definition: def},
	})

	return PatternResult{
		Success: true,
		Name:    name,
		Message: fmt.Sprintf("Pattern '%s' removed successfully", name),
	}
}

// ListPatterns returns metadata for every registered pattern in registration order
func (p *Pipeline) ListPatterns() []patterns.Info {
	return p.registry.List()
}

// GetPatternDescription returns the description of the named pattern
func (p *Pipeline) GetPatternDescription(name string) (string, bool) {
	pattern, ok := p.registry.Get(name)
	if !ok {
		return "", false
	}
	return pattern.Description, true
}

func failure(err error) PatternResult {
	code := CodeInternal
	switch {
	case errors.Is(err, patterns.ErrInvalidPatternSyntax):
		code = CodeInvalidPatternSyntax
	case errors.Is(err, patterns.ErrInvalidPatternName):
		code = CodeInvalidPatternName
	case errors.Is(err, patterns.ErrInvalidPatternClass):
		code = CodeInvalidPatternClass
	case errors.Is(err, patterns.ErrPatternNotFound):
		code = CodePatternNotFound
	}
	return PatternResult{Success: false, Error: err.Error(), Code: code}
}
