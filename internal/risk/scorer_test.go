package risk

import (
	"testing"

	"github.com/raaihank/llm-anonymizer/internal/patterns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScorer(t *testing.T) {
	s := NewScorer(DefaultPolicy())

	cases := []struct {
		name    string
		tallies map[string]Tally
		score   int
		level   Level
	}{
		{"Empty", nil, 0, LevelNone},
		{"EmailAndPhone", map[string]Tally{
			"email": {Count: 1, Class: patterns.ClassMedium},
			"phone": {Count: 1, Class: patterns.ClassMedium},
		}, 4, LevelLow},
		{"CustomPattern", map[string]Tally{
			"employeeId": {Count: 1, Class: patterns.ClassOther},
		}, 1, LevelLow},
		{"MediumBoundary", map[string]Tally{
			"ssn":   {Count: 1, Class: patterns.ClassHigh},
			"email": {Count: 1, Class: patterns.ClassMedium},
		}, 5, LevelMedium},
		{"HighBoundary", map[string]Tally{
			"creditCard": {Count: 2, Class: patterns.ClassHigh},
			"ssn":        {Count: 1, Class: patterns.ClassHigh},
			"url":        {Count: 1, Class: patterns.ClassLow},
		}, 10, LevelHigh},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := s.Score(tc.tallies)
			assert.Equal(t, tc.score, a.Score)
			assert.Equal(t, tc.level, a.Level)
		})
	}
}

func TestScoreMonotonicInSSNCount(t *testing.T) {
	s := NewScorer(DefaultPolicy())
	prev := s.Score(nil)
	for n := 1; n <= 8; n++ {
		next := s.Score(map[string]Tally{"ssn": {Count: n, Class: patterns.ClassHigh}})
		assert.GreaterOrEqual(t, next.Score, prev.Score)
		assert.GreaterOrEqual(t, next.Level.Rank(), prev.Level.Rank())
		prev = next
	}
}

func TestPolicy(t *testing.T) {
	require.NoError(t, DefaultPolicy().Validate())

	p := DefaultPolicy()
	p.MediumThreshold = 20
	assert.Error(t, p.Validate())

	p = DefaultPolicy()
	p.DefaultWeight = 0
	assert.Error(t, p.Validate())

	custom := Policy{HighWeight: 5, MediumWeight: 1, DefaultWeight: 1, HighThreshold: 5, MediumThreshold: 3, LowThreshold: 1}
	a := NewScorer(custom).Score(map[string]Tally{"ssn": {Count: 1, Class: patterns.ClassHigh}})
	assert.Equal(t, LevelHigh, a.Level)

	_, err := ParseLevel("EXTREME")
	assert.Error(t, err)
	lvl, err := ParseLevel("MEDIUM")
	require.NoError(t, err)
	assert.Equal(t, LevelMedium, lvl)
}
