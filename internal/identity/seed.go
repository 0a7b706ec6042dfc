// Package identity derives stable numeric seeds for named identities.
//
// A seed pairs a textual identity (character or environment) with its master
// reference image for local bookkeeping. Seeds are never sent to the
// generation API and never appear in prompt text.
package identity

import (
	"strings"
	"unicode/utf16"
)

// MaxSeed is the exclusive upper bound of every seed (2^53).
const MaxSeed uint64 = 1 << 53

// separator keeps ("ab", "c") and ("a", "bc") apart.
const separator = "\x1f"

// Seed returns the 53-bit seed for a name and its attribute string.
// The name is trimmed and lowercased before hashing.
func Seed(name, attributes string) uint64 {
	return Hash53(NormalizeName(name) + separator + attributes)
}

// NormalizeName returns the case-insensitive key used for identities.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Hash53 is cyrb53 over the UTF-16 code units of s, so values match the
// browser implementation for identical input.
func Hash53(s string) uint64 {
	h1 := uint32(0xdeadbeef)
	h2 := uint32(0x41c6ce57)

	for _, unit := range utf16.Encode([]rune(s)) {
		ch := uint32(unit)
		h1 = (h1 ^ ch) * 2654435761
		h2 = (h2 ^ ch) * 1597334677
	}

	h1 = (h1 ^ (h1 >> 16)) * 2246822507
	h1 ^= (h2 ^ (h2 >> 13)) * 3266489909
	h2 = (h2 ^ (h2 >> 16)) * 2246822507
	h2 ^= (h1 ^ (h1 >> 13)) * 3266489909

	return uint64(h2&0x1fffff)<<32 | uint64(h1)
}
