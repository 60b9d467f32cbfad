package capture

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// IDGenerator mints lead ids of the form lead_YYYYMMDD_HHMMSS_<suffix>.
// The suffix is the entropy part of a monotonic ULID, so ids minted in the
// same second stay unique.
type IDGenerator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewIDGenerator returns a generator seeded from crypto/rand.
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{entropy: ulid.Monotonic(rand.Reader, 0)}
}

// New returns a fresh lead id stamped with t in UTC.
func (g *IDGenerator) New(t time.Time) string {
	g.mu.Lock()
	id := ulid.MustNew(ulid.Timestamp(t), g.entropy)
	g.mu.Unlock()

	return "lead_" + t.UTC().Format("20060102_150405") + "_" + strings.ToLower(id.String()[10:])
}
