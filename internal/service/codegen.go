package service

import (
	"crypto/rand"
	"fmt"
	"io"
	"regexp"
)

const (
	// CodeLength is the number of symbols in a coupon code
	CodeLength = 8
	// CodeAlphabet is the symbol set codes are drawn from
	CodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// codePattern is the only accepted wire format for a coupon code
var codePattern = regexp.MustCompile(`^[A-Z0-9]{8}$`)

// ValidCode reports whether s is a well-formed coupon code
func ValidCode(s string) bool {
	return codePattern.MatchString(s)
}

// CodeGenerator draws coupon codes uniformly from CodeAlphabet
type CodeGenerator struct {
	random io.Reader
}

// NewCodeGenerator creates a generator reading from random. A nil reader
// means crypto/rand.
func NewCodeGenerator(random io.Reader) *CodeGenerator {
	if random == nil {
		random = rand.Reader
	}
	return &CodeGenerator{random: random}
}

// NewCode returns one random code. Bytes at or above the largest multiple of
// the alphabet size are discarded so every symbol is equally likely.
func (g *CodeGenerator) NewCode() (string, error) {
	const limit = 256 - 256%len(CodeAlphabet) // 252

	code := make([]byte, 0, CodeLength)
	buf := make([]byte, CodeLength*2)
	for len(code) < CodeLength {
		if _, err := io.ReadFull(g.random, buf); err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			code = append(code, CodeAlphabet[int(b)%len(CodeAlphabet)])
			if len(code) == CodeLength {
				break
			}
		}
	}
	return string(code), nil
}
