package patterns

import (
	"fmt"
	"time"

	"github.com/dlclark/regexp2"
)

// DefaultMatchTimeout bounds a single pattern scan so that a pathological
// custom pattern cannot stall a pipeline call.
const DefaultMatchTimeout = 2 * time.Second

// Span is a half-open byte range [Start, End) into the scanned text
type Span struct {
	Start int
	End   int
}

// Subject is a text prepared for scanning. The regex engine reports rune
// offsets; Subject maps them back to byte offsets of the original string.
type Subject struct {
	text    string
	offsets []int
}

// NewSubject prepares text for scanning by any number of patterns
func NewSubject(text string) *Subject {
	offsets := make([]int, 0, len(text)+1)
	for i := range text {
		offsets = append(offsets, i)
	}
	offsets = append(offsets, len(text))

	return &Subject{text: text, offsets: offsets}
}

// Text returns the original text
func (s *Subject) Text() string {
	return s.text
}

func (s *Subject) byteOffset(runeIndex int) int {
	return s.offsets[runeIndex]
}

// Matcher holds the case-sensitive and case-folded compilations of one source
type Matcher struct {
	source    string
	sensitive *regexp2.Regexp
	folded    *regexp2.Regexp
}

// Compile compiles source with ECMAScript semantics. A zero timeout disables
// the per-scan match timeout.
func Compile(source string, timeout time.Duration) (*Matcher, error) {
	sensitive, err := regexp2.Compile(source, regexp2.ECMAScript)
	if err != nil {
		return nil, err
	}

	folded, err := regexp2.Compile(source, regexp2.ECMAScript|regexp2.IgnoreCase)
	if err != nil {
		return nil, err
	}

	if timeout > 0 {
		sensitive.MatchTimeout = timeout
		folded.MatchTimeout = timeout
	}

	return &Matcher{source: source, sensitive: sensitive, folded: folded}, nil
}

// Source returns the uncompiled pattern text
func (m *Matcher) Source() string {
	return m.source
}

// FindAll returns all non-empty matches in ascending order of start offset.
// If the engine fails mid-scan (e.g. on timeout) the spans found so far are
// returned together with the error.
func (m *Matcher) FindAll(subject *Subject, caseSensitive bool) ([]Span, error) {
	re := m.folded
	if caseSensitive {
		re = m.sensitive
	}

	var spans []Span
	match, err := re.FindStringMatch(subject.text)
	for err == nil && match != nil {
		if match.Length > 0 {
			spans = append(spans, Span{
				Start: subject.byteOffset(match.Index),
				End:   subject.byteOffset(match.Index + match.Length),
			})
		}
		match, err = re.FindNextMatch(match)
	}
	if err != nil {
		return spans, fmt.Errorf("scan %q: %w", m.source, err)
	}

	return spans, nil
}
