package strategy

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"unicode"
	"unicode/utf8"
)

// HashStrategy labels a match with a deterministic 32-bit rolling-hash
// fingerprint such as "E_1a2b3c4d".
//
// The fingerprint is NOT unique and NOT secure: distinct inputs collide and
// the original is trivially brute-forced for short or structured values. It
// exists for pseudonymous labeling only. Use HMACStrategy when the label
// must resist guessing.
type HashStrategy struct{}

func (HashStrategy) Name() string {
	return Hash
}

func (HashStrategy) Apply(original, patternName string, _ Options) (string, error) {
	h := int64(RollingHash(original))
	if h < 0 {
		h = -h
	}
	return labelPrefix(patternName) + strconv.FormatInt(h, 16), nil
}

// RollingHash computes h = h*31 + c over the runes of s with int32 wraparound
func RollingHash(s string) int32 {
	var h int32
	for _, r := range s {
		h = h*31 + int32(r)
	}
	return h
}

// HMACStrategy labels a match with a keyed HMAC-SHA256 digest. It keeps the
// label shape of HashStrategy but is not reversible without the key.
type HMACStrategy struct {
	key []byte
}

// NewHMACStrategy creates a keyed hash strategy
func NewHMACStrategy(key []byte) (*HMACStrategy, error) {
	if len(key) == 0 {
		return nil, errors.New("hmac key must not be empty")
	}
	return &HMACStrategy{key: key}, nil
}

func (s *HMACStrategy) Name() string {
	return HMAC
}

func (s *HMACStrategy) Apply(original, patternName string, _ Options) (string, error) {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(patternName))
	mac.Write([]byte{0})
	mac.Write([]byte(original))
	return labelPrefix(patternName) + hex.EncodeToString(mac.Sum(nil))[:16], nil
}

// labelPrefix returns the upper-cased first letter of the pattern name and an underscore
func labelPrefix(patternName string) string {
	r, _ := utf8.DecodeRuneInString(patternName)
	if r == utf8.RuneError {
		return "X_"
	}
	return string(unicode.ToUpper(r)) + "_"
}
