package anonymizer

import (
	"fmt"
	"maps"
	"slices"
	"sort"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/raaihank/llm-anonymizer/internal/patterns"
	"github.com/raaihank/llm-anonymizer/internal/privacy"
	"github.com/raaihank/llm-anonymizer/internal/risk"
	"github.com/raaihank/llm-anonymizer/internal/strategy"
	"go.uber.org/zap"
)

const maxExamples = 3

// Pipeline orchestrates detection, strategy resolution and risk scoring.
// It keeps no per-call state; the registry is the only shared resource.
type Pipeline struct {
	registry  *patterns.Registry
	detector  *privacy.Detector
	resolver  *strategy.Resolver
	scorer    *risk.Scorer
	config    Config
	observers []Observer
	logger    *zap.Logger
	now       func() time.Time
}

// New creates a new anonymization pipeline
func New(
	registry *patterns.Registry,
	detector *privacy.Detector,
	resolver *strategy.Resolver,
	scorer *risk.Scorer,
	config Config,
	logger *zap.Logger,
) *Pipeline {
	if config.Defaults.DefaultStrategy == "" {
		config.Defaults.DefaultStrategy = strategy.Mask
	}

	return &Pipeline{
		registry: registry,
		detector: detector,
		resolver: resolver,
		scorer:   scorer,
		config:   config,
		logger:   logger,
		now:      time.Now,
	}
}

// Observe registers an observer. Call before the pipeline is shared.
func (p *Pipeline) Observe(o Observer) {
	p.observers = append(p.observers, o)
}

// Registry returns the pattern registry backing the pipeline
func (p *Pipeline) Registry() *patterns.Registry {
	return p.registry
}

// Defaults returns a copy of the configured default options. Callers may
// modify the result freely.
func (p *Pipeline) Defaults() Options {
	opts := p.config.Defaults
	opts.SelectedPatterns = slices.Clone(opts.SelectedPatterns)
	opts.Overrides = maps.Clone(opts.Overrides)
	return opts
}

// Anonymize returns a copy of text with every selected match replaced.
// Substitution is applied by exact span, so repeated values are each
// replaced once at their own position.
func (p *Pipeline) Anonymize(text string, opts Options) (result *Result, err error) {
	start := p.now()
	defer func() {
		if rec := recover(); rec != nil {
			result = nil
			err = &PipelineError{Op: "anonymize", Err: fmt.Errorf("panic: %v", rec)}
		}
	}()

	if opts.DefaultStrategy == "" {
		opts.DefaultStrategy = p.config.Defaults.DefaultStrategy
	}
	// unknown default strategies resolve to mask; report what was applied
	if _, ok := p.resolver.Lookup(opts.DefaultStrategy); !ok {
		p.logger.Debug("Unknown default strategy, using mask", zap.String("strategy", opts.DefaultStrategy))
		opts.DefaultStrategy = strategy.Mask
	}

	snap := p.registry.Snapshot()
	names := p.selection(snap, opts.SelectedPatterns)
	matches := p.detector.Detect(snap, text, names, opts.CaseSensitive)

	records, skipped := p.resolve(matches, opts)

	output, err := splice(text, records)
	if err != nil {
		return nil, &PipelineError{Op: "anonymize", Err: err}
	}

	result = &Result{
		AnonymizedText: output,
		Metadata: Metadata{
			OriginalLength:    len(text),
			AnonymizedLength:  len(output),
			ProcessingTimeMs:  elapsedMs(p.now().Sub(start)),
			ReplacementsCount: len(records),
			PatternsUsed:      names,
			Strategy:          opts.DefaultStrategy,
			SkippedOverlaps:   skipped,
			Replacements:      records,
		},
	}

	p.logger.Debug("Text anonymized",
		zap.Int("original_length", result.Metadata.OriginalLength),
		zap.Int("replacements", result.Metadata.ReplacementsCount),
		zap.Int("skipped_overlaps", skipped),
		zap.String("strategy", opts.DefaultStrategy),
	)

	p.notify(Event{
		Type:        EventAnonymized,
		Timestamp:   p.now(),
		Duration:    p.now().Sub(start),
		InputLength: len(text),
		Fingerprint: xxhash.Sum64String(text),
		Options:     opts,
		Result:      result,
	})
	return result, nil
}

// DetectSensitiveData reports matches per pattern and the aggregate risk
// without transforming text. Empty names selects all registered patterns.
func (p *Pipeline) DetectSensitiveData(text string, names ...string) (report *DetectionReport, err error) {
	start := p.now()
	defer func() {
		if rec := recover(); rec != nil {
			report = nil
			err = &PipelineError{Op: "detect", Err: fmt.Errorf("panic: %v", rec)}
		}
	}()

	snap := p.registry.Snapshot()
	selected := p.selection(snap, names)
	matches := p.detector.Detect(snap, text, selected, p.config.Defaults.CaseSensitive)

	report = &DetectionReport{Detected: make(map[string]Detection)}
	tallies := make(map[string]risk.Tally)
	for _, m := range matches {
		d, ok := report.Detected[m.PatternName]
		if !ok {
			pattern, _ := snap.Get(m.PatternName)
			d = Detection{
				Examples:      make([]string, 0, maxExamples),
				Class:         pattern.Class,
				PatternSource: pattern.Source,
			}
		}
		d.Count++
		if len(d.Examples) < maxExamples {
			d.Examples = append(d.Examples, m.Text)
		}
		report.Detected[m.PatternName] = d
		tallies[m.PatternName] = risk.Tally{Count: d.Count, Class: d.Class}
	}

	assessment := p.scorer.Score(tallies)
	report.TotalCount = len(matches)
	report.HasSensitiveData = len(matches) > 0
	report.RiskLevel = assessment.Level
	report.RiskScore = assessment.Score

	p.notify(Event{
		Type:        EventDetected,
		Timestamp:   p.now(),
		Duration:    p.now().Sub(start),
		InputLength: len(text),
		Fingerprint: xxhash.Sum64String(text),
		Report:      report,
	})
	return report, nil
}

// selection returns the requested names, the configured defaults, or every
// registered pattern, in that order of preference
func (p *Pipeline) selection(snap *patterns.Snapshot, requested []string) []string {
	if len(requested) > 0 {
		return requested
	}
	if len(p.config.Defaults.SelectedPatterns) > 0 {
		return slices.Clone(p.config.Defaults.SelectedPatterns)
	}
	return snap.Names()
}

// resolve turns matches into replacement records in pattern-major order.
// A match overlapping a span already claimed by an earlier match is skipped.
func (p *Pipeline) resolve(matches []privacy.Match, opts Options) ([]ReplacementRecord, int) {
	records := make([]ReplacementRecord, 0, len(matches))
	claimed := make([]privacy.Match, 0, len(matches)) // sorted by Start
	skipped := 0
	sopts := strategy.Options{PreserveFormat: opts.PreserveFormat}

	for _, m := range matches {
		i := sort.Search(len(claimed), func(i int) bool { return claimed[i].Start >= m.Start })
		if (i < len(claimed) && claimed[i].Overlaps(m)) || (i > 0 && claimed[i-1].Overlaps(m)) {
			skipped++
			continue
		}
		claimed = append(claimed, privacy.Match{})
		copy(claimed[i+1:], claimed[i:])
		claimed[i] = m

		res := p.resolver.Resolve(m.Text, m.PatternName, opts.DefaultStrategy, opts.Overrides, sopts)
		records = append(records, ReplacementRecord{
			Pattern:     m.PatternName,
			Original:    m.Text,
			Replacement: res.Replacement,
			Strategy:    res.Strategy,
			Position:    m.Start,
		})
	}

	return records, skipped
}

// splice rebuilds text with each record's span replaced. Records are applied
// in ascending position order with a moving cursor over the original.
func splice(text string, records []ReplacementRecord) (string, error) {
	order := make([]int, len(records))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return records[order[a]].Position < records[order[b]].Position
	})

	out := make([]byte, 0, len(text))
	cursor := 0
	for _, idx := range order {
		r := records[idx]
		end := r.End()
		if r.Position < cursor || end > len(text) {
			return "", fmt.Errorf("replacement span [%d,%d) of pattern %s out of bounds", r.Position, end, r.Pattern)
		}
		if text[r.Position:end] != r.Original {
			return "", fmt.Errorf("replacement span [%d,%d) of pattern %s does not match original text", r.Position, end, r.Pattern)
		}
		out = append(out, text[cursor:r.Position]...)
		out = append(out, r.Replacement...)
		cursor = end
	}
	out = append(out, text[cursor:]...)

	return string(out), nil
}

// notify delivers an event to each observer, isolating observer panics
func (p *Pipeline) notify(e Event) {
	for _, o := range p.observers {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					p.logger.Error("Observer panicked", zap.String("event", string(e.Type)), zap.Any("panic", rec))
				}
			}()
			o(e)
		}()
	}
}

func elapsedMs(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
