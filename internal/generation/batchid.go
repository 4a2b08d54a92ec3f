package generation

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewBatchID mints a generation batch identifier: a ULID, i.e. a millisecond
// timestamp prefix plus a random suffix. Uniqueness is best-effort; collision
// probability is negligible for append-only batch tagging.
func NewBatchID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
