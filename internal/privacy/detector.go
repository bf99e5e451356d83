package privacy

import (
	"github.com/raaihank/llm-anonymizer/internal/patterns"
	"github.com/sourcegraph/conc/iter"
	"go.uber.org/zap"
)

// Detector locates pattern matches in text. It holds no per-call state and
// never mutates the text it scans.
type Detector struct {
	config Config
	logger *zap.Logger
}

// New creates a new detector instance
func New(cfg Config, logger *zap.Logger) *Detector {
	return &Detector{
		config: cfg,
		logger: logger,
	}
}

// Detect scans text against the named patterns of snap. Unknown names are
// skipped. Each pattern scans the original text independently; the result
// is pattern-major: all matches of names[0] in position order, then all
// matches of names[1], and so on.
func (d *Detector) Detect(snap *patterns.Snapshot, text string, names []string, caseSensitive bool) []Match {
	resolved := make([]*patterns.Pattern, 0, len(names))
	for _, name := range names {
		p, ok := snap.Get(name)
		if !ok {
			d.logger.Debug("Unknown pattern selected, skipping", zap.String("pattern", name))
			continue
		}
		resolved = append(resolved, p)
	}

	if len(resolved) == 0 || text == "" {
		return []Match{}
	}

	subject := patterns.NewSubject(text)
	scan := func(p **patterns.Pattern) []Match {
		return d.scanPattern(*p, subject, caseSensitive)
	}

	var perPattern [][]Match
	if d.config.Parallel && len(resolved) > 1 {
		// iter.Map preserves input order, which keeps the merge pattern-major
		perPattern = iter.Map(resolved, scan)
	} else {
		perPattern = make([][]Match, len(resolved))
		for i := range resolved {
			perPattern[i] = scan(&resolved[i])
		}
	}

	total := 0
	for _, ms := range perPattern {
		total += len(ms)
	}

	matches := make([]Match, 0, total)
	for _, ms := range perPattern {
		matches = append(matches, ms...)
	}

	return matches
}

// scanPattern runs a single pattern over the subject
func (d *Detector) scanPattern(p *patterns.Pattern, subject *patterns.Subject, caseSensitive bool) []Match {
	spans, err := p.FindAll(subject, caseSensitive)
	if err != nil {
		// A failing pattern keeps what it found and never aborts the others
		d.logger.Warn("Pattern scan failed, using partial results",
			zap.String("pattern", p.Name),
			zap.Int("partial_matches", len(spans)),
			zap.Error(err),
		)
	}

	text := subject.Text()
	matches := make([]Match, 0, len(spans))
	for _, s := range spans {
		matches = append(matches, Match{
			PatternName: p.Name,
			Text:        text[s.Start:s.End],
			Start:       s.Start,
			End:         s.End,
		})
	}

	if len(matches) > 0 {
		d.logger.Debug("Pattern matched",
			zap.String("pattern", p.Name),
			zap.Int("count", len(matches)),
		)
	}

	return matches
}
