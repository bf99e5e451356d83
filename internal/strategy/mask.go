package strategy

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/raaihank/llm-anonymizer/internal/patterns"
)

// MaskStrategy performs category-aware partial redaction
type MaskStrategy struct{}

func (MaskStrategy) Name() string {
	return Mask
}

func (MaskStrategy) Apply(original, patternName string, opts Options) (string, error) {
	return maskText(original, patternName, opts), nil
}

func maskText(original, patternName string, opts Options) string {
	switch patternName {
	case patterns.Email:
		return maskEmail(original, opts)
	case patterns.Phone:
		return maskWithLastDigits(original, "***-***-")
	case patterns.SSN:
		return maskWithLastDigits(original, "***-**-")
	case patterns.CreditCard:
		digits := extractDigits(original)
		if len(digits) != 16 {
			return stars(original)
		}
		return "****-****-****-" + digits[12:]
	default:
		return maskGeneric(original, opts)
	}
}

// maskEmail keeps the first and last character of the local part and the domain
func maskEmail(original string, opts Options) string {
	at := strings.LastIndex(original, "@")
	if at <= 0 {
		return maskGeneric(original, opts)
	}

	local := []rune(original[:at])
	if len(local) <= 2 {
		return strings.Repeat("*", len(local)) + original[at:]
	}

	var b strings.Builder
	b.WriteRune(local[0])
	b.WriteString(strings.Repeat("*", len(local)-2))
	b.WriteRune(local[len(local)-1])
	b.WriteString(original[at:])
	return b.String()
}

// maskWithLastDigits renders prefix followed by the last four digits, or
// masks everything when fewer than four digits are present
func maskWithLastDigits(original, prefix string) string {
	digits := extractDigits(original)
	if len(digits) < 4 {
		return stars(original)
	}
	return prefix + digits[len(digits)-4:]
}

func maskGeneric(original string, opts Options) string {
	if !opts.PreserveFormat {
		return stars(original)
	}

	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return '*'
		}
		return r
	}, original)
}

func stars(s string) string {
	return strings.Repeat("*", utf8.RuneCountInString(s))
}

func extractDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
