package strategy

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/raaihank/llm-anonymizer/internal/patterns"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Source is the randomness used to build synthetic values
type Source interface {
	IntN(n int) int
}

type lockedSource struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func (s *lockedSource) IntN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rnd.IntN(n)
}

// NewSeededSource returns a deterministic, goroutine-safe source
func NewSeededSource(seed uint64) Source {
	return &lockedSource{rnd: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// NewRandomSource returns a goroutine-safe source seeded from the runtime
func NewRandomSource() Source {
	return &lockedSource{rnd: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
}

type generator func(src Source) string

// ReplaceStrategy substitutes a structurally plausible synthetic value for
// categories with a generator and a bracketed placeholder for all others
type ReplaceStrategy struct {
	source     Source
	generators map[string]generator
}

// NewReplaceStrategy creates a replace strategy drawing from src
func NewReplaceStrategy(src Source) *ReplaceStrategy {
	return &ReplaceStrategy{
		source: src,
		generators: map[string]generator{
			patterns.Email:      generateEmail,
			patterns.Phone:      generatePhone,
			patterns.SSN:        generateSSN,
			patterns.CreditCard: generateCreditCard,
			patterns.IPv4:       generateIPv4,
		},
	}
}

func (s *ReplaceStrategy) Name() string {
	return Replace
}

func (s *ReplaceStrategy) Apply(_ string, patternName string, _ Options) (string, error) {
	if gen, ok := s.generators[patternName]; ok {
		return gen(s.source), nil
	}
	return Placeholder(patternName), nil
}

// Placeholder returns the bracketed stand-in for categories without a generator
func Placeholder(patternName string) string {
	return "[ANONYMIZED_" + cases.Upper(language.Und).String(patternName) + "]"
}

var (
	syntheticUsers   = []string{"alex", "sam", "jordan", "taylor", "casey", "morgan", "riley", "jamie"}
	syntheticDomains = []string{"example.com", "example.org", "example.net"}
)

func generateEmail(src Source) string {
	user := syntheticUsers[src.IntN(len(syntheticUsers))]
	domain := syntheticDomains[src.IntN(len(syntheticDomains))]
	return fmt.Sprintf("%s%04d@%s", user, src.IntN(10000), domain)
}

// generatePhone uses the 555 exchange reserved for fictional numbers
func generatePhone(src Source) string {
	return fmt.Sprintf("%03d-555-%04d", 200+src.IntN(800), src.IntN(10000))
}

// generateSSN avoids the never-issued 000, 666 and 9xx areas
func generateSSN(src Source) string {
	area := 1 + src.IntN(899)
	if area == 666 {
		area = 667
	}
	group := 1 + src.IntN(99)
	serial := 1 + src.IntN(9999)
	return fmt.Sprintf("%03d-%02d-%04d", area, group, serial)
}

// generateCreditCard produces a Luhn-valid 16 digit number with a test prefix
func generateCreditCard(src Source) string {
	digits := make([]int, 16)
	digits[0] = 4
	for i := 1; i < 15; i++ {
		digits[i] = src.IntN(10)
	}
	digits[15] = luhnCheckDigit(digits[:15])

	var b strings.Builder
	for i, d := range digits {
		if i > 0 && i%4 == 0 {
			b.WriteByte('-')
		}
		b.WriteByte(byte('0' + d))
	}
	return b.String()
}

func generateIPv4(src Source) string {
	return fmt.Sprintf("%d.%d.%d.%d", 1+src.IntN(223), src.IntN(256), src.IntN(256), 1+src.IntN(254))
}

// luhnCheckDigit computes the check digit to append to payload
func luhnCheckDigit(payload []int) int {
	sum := 0
	double := true
	for i := len(payload) - 1; i >= 0; i-- {
		d := payload[i]
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return (10 - sum%10) % 10
}
