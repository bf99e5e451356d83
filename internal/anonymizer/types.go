package anonymizer

import (
	"errors"
	"fmt"
	"time"

	"github.com/raaihank/llm-anonymizer/internal/patterns"
	"github.com/raaihank/llm-anonymizer/internal/risk"
	"github.com/raaihank/llm-anonymizer/internal/strategy"
)

// ErrPipelineFailure matches any *PipelineError via errors.Is
var ErrPipelineFailure = errors.New("pipeline failure")

// PipelineError is the only fatal error of Anonymize and DetectSensitiveData.
// It wraps the failure that occurred while assembling the result.
type PipelineError struct {
	Op  string
	Err error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Op, ErrPipelineFailure, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

func (e *PipelineError) Is(target error) bool {
	return target == ErrPipelineFailure
}

// Options controls one Anonymize call
type Options struct {
	// SelectedPatterns is the ordered pattern selection; empty selects all
	SelectedPatterns []string                     `json:"patterns,omitempty" mapstructure:"patterns"`
	DefaultStrategy  string                       `json:"strategy,omitempty" mapstructure:"strategy"`
	Overrides        map[string]strategy.Override `json:"overrides,omitempty" mapstructure:"overrides"`
	PreserveFormat   bool                         `json:"preserveFormat" mapstructure:"preserve_format"`
	CaseSensitive    bool                         `json:"caseSensitive" mapstructure:"case_sensitive"`
}

// ReplacementRecord describes one applied substitution. Position is the
// start offset of the match in the original text.
type ReplacementRecord struct {
	Pattern     string `json:"pattern"`
	Original    string `json:"original"`
	Replacement string `json:"replacement"`
	Strategy    string `json:"strategy"`
	Position    int    `json:"position"`
}

// End returns the end offset of the replaced span in the original text
func (r ReplacementRecord) End() int {
	return r.Position + len(r.Original)
}

// Metadata accompanies an anonymized text
type Metadata struct {
	OriginalLength    int                 `json:"originalLength"`
	AnonymizedLength  int                 `json:"anonymizedLength"`
	ProcessingTimeMs  float64             `json:"processingTimeMs"`
	ReplacementsCount int                 `json:"replacementsCount"`
	PatternsUsed      []string            `json:"patternsUsed"`
	Strategy          string              `json:"strategy"`
	SkippedOverlaps   int                 `json:"skippedOverlaps,omitempty"`
	Replacements      []ReplacementRecord `json:"replacements"`
}

// Result is the output of Anonymize
type Result struct {
	AnonymizedText string   `json:"anonymizedText"`
	Metadata       Metadata `json:"metadata"`
}

// Detection summarizes the matches of one pattern
type Detection struct {
	Count         int            `json:"count"`
	Examples      []string       `json:"examples"`
	Class         patterns.Class `json:"sensitivityClass"`
	PatternSource string         `json:"patternSource"`
}

// DetectionReport is the output of DetectSensitiveData
type DetectionReport struct {
	Detected         map[string]Detection `json:"detected"`
	TotalCount       int                  `json:"totalCount"`
	HasSensitiveData bool                 `json:"hasSensitiveData"`
	RiskLevel        risk.Level           `json:"riskLevel"`
	RiskScore        int                  `json:"riskScore"`
}

// EventType identifies what an observer is being notified about
type EventType string

const (
	EventAnonymized     EventType = "anonymized"
	EventDetected       EventType = "detected"
	EventPatternChanged EventType = "pattern_changed"
)

// PatternChange describes a registry mutation
type PatternChange struct {
	Action     string              `json:"action"` // "added", "overwritten" or "removed"
	Definition patterns.Definition `json:"definition"`
}

// Event is delivered to observers after a call completes. Events never
// carry the input text; Fingerprint identifies repeated inputs instead.
type Event struct {
	Type        EventType
	Timestamp   time.Time
	Duration    time.Duration
	InputLength int
	Fingerprint uint64
	Options     Options
	Result      *Result
	Report      *DetectionReport
	Change      *PatternChange
}

// Observer receives pipeline events. Observers run synchronously on the
// calling goroutine and must not block.
type Observer func(Event)

// Config contains pipeline defaults
type Config struct {
	Defaults Options
}
