// Package ids generates and validates the time-prefixed, lexicographically
// sortable identifiers used throughout the memory engine.
package ids

import (
	"crypto/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Length is the fixed size of a generated id: 26 Crockford-base32 characters.
const Length = 26

// entropySource is shared across New calls; ulid.ULID generation only needs a
// monotonic-safe reader, crypto/rand is sufficient and avoids a global seed.
var entropySource = ulid.Monotonic(rand.Reader, 0)

// New returns a new id with the current time encoded in its leading
// component, so ids created later sort after ids created earlier.
func New() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropySource).String()
}

// NewAt returns a new id with t encoded in its leading component. Useful in
// tests that need deterministic ordering.
func NewAt(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), entropySource).String()
}

// Valid reports whether s has the structural shape of an id produced by
// New: 26 characters, Crockford base32 alphabet only.
func Valid(s string) bool {
	if len(s) != Length {
		return false
	}
	_, err := ulid.ParseStrict(strings.ToUpper(s))
	return err == nil
}

// Time extracts the embedded timestamp from an id produced by New. It
// returns an error if s is not structurally valid.
func Time(s string) (time.Time, error) {
	parsed, err := ulid.ParseStrict(strings.ToUpper(s))
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
