package anonymizer

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/raaihank/llm-anonymizer/internal/patterns"
	"github.com/raaihank/llm-anonymizer/internal/privacy"
	"github.com/raaihank/llm-anonymizer/internal/risk"
	"github.com/raaihank/llm-anonymizer/internal/strategy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestPipeline(t *testing.T) *Pipeline {
	t.Helper()
	logger := zap.NewNop()

	registry, err := patterns.NewDefaultRegistry(logger)
	require.NoError(t, err)
	resolver, err := strategy.NewResolver(strategy.Config{Seed: 1}, logger)
	require.NoError(t, err)

	return New(
		registry,
		privacy.New(privacy.Config{}, logger),
		resolver,
		risk.NewScorer(risk.DefaultPolicy()),
		Config{},
		logger,
	)
}

func TestAnonymize(t *testing.T) {
	p := newTestPipeline(t)

	t.Run("MaskEmailAndPhone", func(t *testing.T) {
		text := "Contact: jane.doe@example.com or 555-123-4567"
		res, err := p.Anonymize(text, Options{
			SelectedPatterns: []string{patterns.Email, patterns.Phone},
			DefaultStrategy:  strategy.Mask,
		})
		require.NoError(t, err)

		assert.Equal(t, "Contact: j******e@example.com or ***-***-4567", res.AnonymizedText)
		assert.Equal(t, 2, res.Metadata.ReplacementsCount)
		assert.Equal(t, len(text), res.Metadata.OriginalLength)
		assert.Equal(t, len(res.AnonymizedText), res.Metadata.AnonymizedLength)
		assert.Equal(t, []string{patterns.Email, patterns.Phone}, res.Metadata.PatternsUsed)
		assert.Equal(t, strategy.Mask, res.Metadata.Strategy)

		require.Len(t, res.Metadata.Replacements, 2)
		assert.Equal(t, ReplacementRecord{
			Pattern:     patterns.Email,
			Original:    "jane.doe@example.com",
			Replacement: "j******e@example.com",
			Strategy:    strategy.Mask,
			Position:    9,
		}, res.Metadata.Replacements[0])
		assert.Equal(t, "555-123-4567", res.Metadata.Replacements[1].Original)
		assert.Equal(t, strings.Index(text, "555"), res.Metadata.Replacements[1].Position)
	})

	t.Run("DefaultsToMaskAndAllPatterns", func(t *testing.T) {
		res, err := p.Anonymize("ssn 123-45-6789", Options{})
		require.NoError(t, err)
		assert.Equal(t, "ssn ***-**-6789", res.AnonymizedText)
		assert.Equal(t, strategy.Mask, res.Metadata.Strategy)
		assert.Equal(t, p.Registry().Snapshot().Names(), res.Metadata.PatternsUsed)
	})

	t.Run("UnknownStrategyReportsMask", func(t *testing.T) {
		res, err := p.Anonymize("ssn 123-45-6789", Options{
			SelectedPatterns: []string{patterns.SSN},
			DefaultStrategy:  "shred",
		})
		require.NoError(t, err)
		assert.Equal(t, "ssn ***-**-6789", res.AnonymizedText)
		assert.Equal(t, strategy.Mask, res.Metadata.Strategy)
		require.Len(t, res.Metadata.Replacements, 1)
		assert.Equal(t, strategy.Mask, res.Metadata.Replacements[0].Strategy)
	})

	t.Run("Remove", func(t *testing.T) {
		res, err := p.Anonymize("Call 555-123-4567 now", Options{
			SelectedPatterns: []string{patterns.Phone},
			DefaultStrategy:  strategy.Remove,
		})
		require.NoError(t, err)
		assert.Equal(t, "Call  now", res.AnonymizedText)
	})

	t.Run("DuplicateValuesReplacedAtEachPosition", func(t *testing.T) {
		text := "a@b.io and again a@b.io"
		res, err := p.Anonymize(text, Options{
			SelectedPatterns: []string{patterns.Email},
			DefaultStrategy:  strategy.Hash,
		})
		require.NoError(t, err)
		require.Len(t, res.Metadata.Replacements, 2)

		first, second := res.Metadata.Replacements[0], res.Metadata.Replacements[1]
		assert.Equal(t, first.Replacement, second.Replacement)
		assert.NotEqual(t, first.Position, second.Position)
		assert.Equal(t, first.Replacement+" and again "+second.Replacement, res.AnonymizedText)
		assert.NotContains(t, res.AnonymizedText, "a@b.io")
	})

	t.Run("UnknownPatternsAreSkipped", func(t *testing.T) {
		res, err := p.Anonymize("mail a@b.io", Options{SelectedPatterns: []string{"nope", patterns.Email}})
		require.NoError(t, err)
		assert.Equal(t, 1, res.Metadata.ReplacementsCount)
	})

	t.Run("NoMatches", func(t *testing.T) {
		res, err := p.Anonymize("nothing to see", Options{})
		require.NoError(t, err)
		assert.Equal(t, "nothing to see", res.AnonymizedText)
		assert.Empty(t, res.Metadata.Replacements)
		assert.NotNil(t, res.Metadata.Replacements)
	})

	t.Run("EmptyText", func(t *testing.T) {
		res, err := p.Anonymize("", Options{})
		require.NoError(t, err)
		assert.Equal(t, "", res.AnonymizedText)
		assert.Zero(t, res.Metadata.ReplacementsCount)
	})

	t.Run("LiteralOverride", func(t *testing.T) {
		lit := "[EMAIL]"
		res, err := p.Anonymize("to a@b.io", Options{
			SelectedPatterns: []string{patterns.Email},
			Overrides:        map[string]strategy.Override{patterns.Email: {Literal: &lit}},
		})
		require.NoError(t, err)
		assert.Equal(t, "to [EMAIL]", res.AnonymizedText)
		assert.Equal(t, strategy.Literal, res.Metadata.Replacements[0].Strategy)
	})

	t.Run("ReconstructsFromRecords", func(t *testing.T) {
		text := "x 10.0.0.1 y a@b.io z 123-45-6789 w 10.0.0.2"
		res, err := p.Anonymize(text, Options{DefaultStrategy: strategy.Hash})
		require.NoError(t, err)
		assert.Equal(t, len(res.Metadata.Replacements), res.Metadata.ReplacementsCount)
		for _, r := range res.Metadata.Replacements {
			assert.Equal(t, r.Original, text[r.Position:r.End()])
		}
		assert.Equal(t, res.AnonymizedText, mustSplice(t, text, res.Metadata.Replacements))
	})
}

func TestDefaultsReturnsCopy(t *testing.T) {
	logger := zap.NewNop()
	registry, err := patterns.NewDefaultRegistry(logger)
	require.NoError(t, err)
	resolver, err := strategy.NewResolver(strategy.Config{Seed: 1}, logger)
	require.NoError(t, err)

	p := New(registry, privacy.New(privacy.Config{}, logger), resolver, risk.NewScorer(risk.DefaultPolicy()), Config{
		Defaults: Options{
			SelectedPatterns: []string{patterns.Email, patterns.Phone},
			Overrides:        map[string]strategy.Override{patterns.Email: {Strategy: strategy.Remove}},
		},
	}, logger)

	opts := p.Defaults()
	opts.SelectedPatterns[0] = patterns.SSN
	opts.Overrides[patterns.Phone] = strategy.Override{Strategy: strategy.Hash}

	again := p.Defaults()
	assert.Equal(t, []string{patterns.Email, patterns.Phone}, again.SelectedPatterns)
	assert.Len(t, again.Overrides, 1)
}

func TestAnonymizeOverlaps(t *testing.T) {
	p := newTestPipeline(t)
	res := p.AddCustomPattern("digits", `\d+`, "digit runs")
	require.True(t, res.Success)

	out, err := p.Anonymize("SSN 123-45-6789", Options{SelectedPatterns: []string{patterns.SSN, "digits"}})
	require.NoError(t, err)
	assert.Equal(t, "SSN ***-**-6789", out.AnonymizedText)
	assert.Equal(t, 1, out.Metadata.ReplacementsCount)
	assert.Equal(t, 3, out.Metadata.SkippedOverlaps)

	// earlier pattern in the selection wins
	out, err = p.Anonymize("SSN 123-45-6789", Options{SelectedPatterns: []string{"digits", patterns.SSN}})
	require.NoError(t, err)
	assert.Equal(t, 3, out.Metadata.ReplacementsCount)
	assert.Equal(t, 1, out.Metadata.SkippedOverlaps)
	assert.Equal(t, "SSN ***-**-****", out.AnonymizedText)
}

func TestCustomPatternWorkedExample(t *testing.T) {
	p := newTestPipeline(t)

	res := p.AddCustomPattern("employeeId", `EMP-\d{6}`, "Employee identifiers")
	require.True(t, res.Success)
	assert.Equal(t, patterns.ClassOther, res.Class)

	text := "Employee EMP-123456 joined"
	report, err := p.DetectSensitiveData(text, "employeeId")
	require.NoError(t, err)
	assert.Equal(t, 1, report.TotalCount)
	assert.True(t, report.HasSensitiveData)
	assert.Equal(t, risk.LevelLow, report.RiskLevel)
	assert.Equal(t, 1, report.RiskScore)
	assert.Equal(t, Detection{
		Count:         1,
		Examples:      []string{"EMP-123456"},
		Class:         patterns.ClassOther,
		PatternSource: `EMP-\d{6}`,
	}, report.Detected["employeeId"])

	out, err := p.Anonymize(text, Options{SelectedPatterns: []string{"employeeId"}, DefaultStrategy: strategy.Hash})
	require.NoError(t, err)
	assert.Regexp(t, `^Employee E_[0-9a-f]{1,8} joined$`, out.AnonymizedText)

	out, err = p.Anonymize("employee emp-654321", Options{SelectedPatterns: []string{"employeeId"}})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Metadata.ReplacementsCount, "case-insensitive by default")

	out, err = p.Anonymize("employee emp-654321", Options{SelectedPatterns: []string{"employeeId"}, CaseSensitive: true})
	require.NoError(t, err)
	assert.Zero(t, out.Metadata.ReplacementsCount)
}

func TestDetectSensitiveData(t *testing.T) {
	p := newTestPipeline(t)

	t.Run("EmailAndPhoneIsLow", func(t *testing.T) {
		report, err := p.DetectSensitiveData("Contact: jane.doe@example.com or 555-123-4567", patterns.Email, patterns.Phone)
		require.NoError(t, err)
		assert.Equal(t, 2, report.TotalCount)
		assert.Equal(t, risk.LevelLow, report.RiskLevel)
		assert.Equal(t, 4, report.RiskScore)
		assert.Equal(t, []string{"jane.doe@example.com"}, report.Detected[patterns.Email].Examples)
		assert.Equal(t, patterns.ClassMedium, report.Detected[patterns.Phone].Class)
	})

	t.Run("ExamplesCappedAtThree", func(t *testing.T) {
		report, err := p.DetectSensitiveData("a@b.io c@d.io e@f.io g@h.io", patterns.Email)
		require.NoError(t, err)
		d := report.Detected[patterns.Email]
		assert.Equal(t, 4, d.Count)
		assert.Len(t, d.Examples, 3)
		assert.Equal(t, "MEDIUM", string(report.RiskLevel))
	})

	t.Run("CountsMatchAnonymize", func(t *testing.T) {
		text := "ip 10.0.0.1 and 10.0.0.2, ssn 123-45-6789"
		report, err := p.DetectSensitiveData(text)
		require.NoError(t, err)
		res, err := p.Anonymize(text, Options{})
		require.NoError(t, err)
		assert.Equal(t, report.TotalCount, res.Metadata.ReplacementsCount+res.Metadata.SkippedOverlaps)
	})

	t.Run("NothingFound", func(t *testing.T) {
		report, err := p.DetectSensitiveData("plain words")
		require.NoError(t, err)
		assert.False(t, report.HasSensitiveData)
		assert.Equal(t, risk.LevelNone, report.RiskLevel)
		assert.Empty(t, report.Detected)
	})

	t.Run("JSONShape", func(t *testing.T) {
		report, err := p.DetectSensitiveData("a@b.io", patterns.Email)
		require.NoError(t, err)
		raw, err := json.Marshal(report)
		require.NoError(t, err)
		var decoded map[string]any
		require.NoError(t, json.Unmarshal(raw, &decoded))
		for _, key := range []string{"detected", "totalCount", "hasSensitiveData", "riskLevel"} {
			assert.Contains(t, decoded, key)
		}
	})
}

func TestSpliceValidation(t *testing.T) {
	_, err := splice("abc", []ReplacementRecord{{Pattern: "p", Original: "zz", Position: 1}})
	require.Error(t, err)

	_, err = splice("abc", []ReplacementRecord{{Pattern: "p", Original: "abcd", Position: 0}})
	require.Error(t, err)

	_, err = splice("abcd", []ReplacementRecord{
		{Pattern: "p", Original: "ab", Position: 0},
		{Pattern: "q", Original: "bc", Position: 1},
	})
	require.Error(t, err)

	out, err := splice("abcd", []ReplacementRecord{
		{Pattern: "q", Original: "d", Replacement: "4", Position: 3},
		{Pattern: "p", Original: "a", Replacement: "1", Position: 0},
	})
	require.NoError(t, err)
	assert.Equal(t, "1bc4", out)

	perr := &PipelineError{Op: "anonymize", Err: err}
	assert.ErrorIs(t, perr, ErrPipelineFailure)
}

func TestObservers(t *testing.T) {
	p := newTestPipeline(t)

	var mu sync.Mutex
	var events []EventType
	p.Observe(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e.Type)
	})
	p.Observe(func(Event) { panic("observer failure") })

	res, err := p.Anonymize("a@b.io", Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Metadata.ReplacementsCount)

	_, err = p.DetectSensitiveData("a@b.io")
	require.NoError(t, err)

	p.AddCustomPattern("badge", `B-\d+`, "")
	p.RemovePattern("badge")

	assert.Equal(t, []EventType{EventAnonymized, EventDetected, EventPatternChanged, EventPatternChanged}, events)
}

func mustSplice(t *testing.T, text string, records []ReplacementRecord) string {
	t.Helper()
	out, err := splice(text, records)
	require.NoError(t, err)
	return out
}
