// Package shareid mints and validates the short public identifiers used to
// address shared workout plans.
package shareid

import (
	"crypto/rand"
	"regexp"
	"strings"
)

const (
	// Length is the exact number of characters in every share ID.
	Length = 6
	// Alphabet holds the 36 symbols a share ID may contain.
	Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// Largest multiple of len(Alphabet) that fits in a byte; bytes at or above it
// are rejected so every symbol stays equally likely.
const rejectAbove = 256 - (256 % len(Alphabet))

var formatRegex = regexp.MustCompile(`^[A-Z0-9]{6}$`)

// Generator produces candidate share IDs. It never checks for collisions.
type Generator func() string

// Generate returns a random 6-character ID drawn uniformly from Alphabet.
func Generate() string {
	out := make([]byte, 0, Length)
	buf := make([]byte, Length*2)
	for len(out) < Length {
		if _, err := rand.Read(buf); err != nil {
			// crypto/rand only fails when the OS entropy source is broken.
			panic("shareid: reading random bytes: " + err.Error())
		}
		for _, b := range buf {
			if int(b) >= rejectAbove {
				continue
			}
			out = append(out, Alphabet[int(b)%len(Alphabet)])
			if len(out) == Length {
				break
			}
		}
	}
	return string(out)
}

// Normalize trims surrounding whitespace and upper-cases the ID, which is the
// canonical form used for every lookup and write.
func Normalize(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

// Valid reports whether id, once normalized, matches ^[A-Z0-9]{6}$.
func Valid(id string) bool {
	return formatRegex.MatchString(Normalize(id))
}
