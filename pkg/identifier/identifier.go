// Package identifier emits the 26-character, Crockford-base32 identifiers
// used for deploy ids and graph observation markers. Identifiers are ULIDs:
// a 48-bit millisecond timestamp followed by 80 random bits, so they sort
// lexicographically by creation time.
package identifier

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Generator produces strictly increasing identifiers within one process.
// Same-millisecond calls increment the random portion instead of colliding.
type Generator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func NewGenerator() *Generator {
	return &Generator{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// New returns the next identifier. A nil Generator still produces a valid
// identifier from plain random entropy, it just loses the monotonic
// same-millisecond guarantee.
func (g *Generator) New() string {
	now := ulid.Timestamp(time.Now().UTC())
	if g == nil {
		return ulid.MustNew(now, rand.Reader).String()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	id, err := ulid.New(now, g.entropy)
	if err != nil {
		// Monotonic overflow within a single millisecond. Fresh randomness
		// keeps the identifier valid; ordering resumes next millisecond.
		return ulid.MustNew(now, rand.Reader).String()
	}
	return id.String()
}

var defaultGen = NewGenerator()

// New returns an identifier from the process-wide generator.
func New() string {
	return defaultGen.New()
}
