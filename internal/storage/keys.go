package storage

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// keyGen hands out Append keys. ULIDs sort by creation time, so a collection's
// keys are roughly ordered even across writers.
type keyGen struct {
	mu      sync.Mutex
	now     func() time.Time
	entropy *ulid.MonotonicEntropy
}

func newKeyGen(now func() time.Time) *keyGen {
	if now == nil {
		now = time.Now
	}
	return &keyGen{now: now, entropy: ulid.Monotonic(rand.Reader, 0)}
}

func (g *keyGen) next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(g.now()), g.entropy).String()
}
