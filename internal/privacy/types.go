package privacy

// Match is a single located occurrence of a pattern. Start and End are byte
// offsets into the original, unmodified input and Text == input[Start:End].
type Match struct {
	PatternName string `json:"pattern"`
	Text        string `json:"text"`
	Start       int    `json:"start"`
	End         int    `json:"end"`
}

// Len returns the byte length of the matched span
func (m Match) Len() int {
	return m.End - m.Start
}

// Overlaps reports whether the spans of m and o intersect
func (m Match) Overlaps(o Match) bool {
	return m.Start < o.End && o.Start < m.End
}

// Config controls how the detector scans
type Config struct {
	// Parallel runs per-pattern scans concurrently. Output order is unaffected.
	Parallel bool `yaml:"parallel" mapstructure:"parallel"`
}
