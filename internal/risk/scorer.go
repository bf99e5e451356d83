package risk

import (
	"fmt"

	"github.com/raaihank/llm-anonymizer/internal/patterns"
)

// Level is an ordinal summary of aggregate detected sensitivity
type Level string

const (
	LevelNone   Level = "NONE"
	LevelLow    Level = "LOW"
	LevelMedium Level = "MEDIUM"
	LevelHigh   Level = "HIGH"
)

// Rank orders levels from NONE (0) to HIGH (3)
func (l Level) Rank() int {
	switch l {
	case LevelLow:
		return 1
	case LevelMedium:
		return 2
	case LevelHigh:
		return 3
	default:
		return 0
	}
}

// ParseLevel parses a level name
func ParseLevel(s string) (Level, error) {
	switch Level(s) {
	case LevelNone, LevelLow, LevelMedium, LevelHigh:
		return Level(s), nil
	default:
		return "", fmt.Errorf("unknown risk level: %s", s)
	}
}

// Policy holds the weights and thresholds of the risk model. The defaults
// are carried over unchanged; they are tuning knobs, not derived values.
type Policy struct {
	HighWeight      int `yaml:"high_weight" mapstructure:"high_weight"`
	MediumWeight    int `yaml:"medium_weight" mapstructure:"medium_weight"`
	DefaultWeight   int `yaml:"default_weight" mapstructure:"default_weight"`
	HighThreshold   int `yaml:"high_threshold" mapstructure:"high_threshold"`
	MediumThreshold int `yaml:"medium_threshold" mapstructure:"medium_threshold"`
	LowThreshold    int `yaml:"low_threshold" mapstructure:"low_threshold"`
}

// DefaultPolicy returns 3/2/1 points per occurrence with thresholds 10/5/1
func DefaultPolicy() Policy {
	return Policy{
		HighWeight:      3,
		MediumWeight:    2,
		DefaultWeight:   1,
		HighThreshold:   10,
		MediumThreshold: 5,
		LowThreshold:    1,
	}
}

// Validate checks that weights are positive and thresholds ascend
func (p Policy) Validate() error {
	if p.HighWeight < 1 || p.MediumWeight < 1 || p.DefaultWeight < 1 {
		return fmt.Errorf("risk weights must be positive")
	}
	if !(p.LowThreshold >= 1 && p.LowThreshold <= p.MediumThreshold && p.MediumThreshold <= p.HighThreshold) {
		return fmt.Errorf("risk thresholds must satisfy 1 <= low <= medium <= high")
	}
	return nil
}

// Weight returns the points one occurrence of the given class contributes
func (p Policy) Weight(class patterns.Class) int {
	switch class {
	case patterns.ClassHigh:
		return p.HighWeight
	case patterns.ClassMedium:
		return p.MediumWeight
	default:
		return p.DefaultWeight
	}
}

// Classify maps a point total to a level
func (p Policy) Classify(score int) Level {
	switch {
	case score >= p.HighThreshold:
		return LevelHigh
	case score >= p.MediumThreshold:
		return LevelMedium
	case score >= p.LowThreshold:
		return LevelLow
	default:
		return LevelNone
	}
}

// Tally is the per-pattern input to scoring
type Tally struct {
	Count int
	Class patterns.Class
}

// Assessment is the result of scoring
type Assessment struct {
	Score int   `json:"riskScore"`
	Level Level `json:"riskLevel"`
}

// Scorer aggregates match counts into a risk assessment
type Scorer struct {
	policy Policy
}

// NewScorer creates a scorer with the given policy
func NewScorer(policy Policy) *Scorer {
	return &Scorer{policy: policy}
}

// Policy returns the scorer's policy
func (s *Scorer) Policy() Policy {
	return s.policy
}

// Score computes the weighted sum of tallies and its level
func (s *Scorer) Score(tallies map[string]Tally) Assessment {
	score := 0
	for _, t := range tallies {
		score += t.Count * s.policy.Weight(t.Class)
	}
	return Assessment{Score: score, Level: s.policy.Classify(score)}
}
