package util

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid"
)

var (
	entropyLock sync.Mutex
	entropy     = ulid.Monotonic(rand.Reader, 0)
)

// NewULID returns a new lexicographically sortable ulid.ULID for the given moment
// NOTE: monotonic entropy keeps ids ordered within the same millisecond
func NewULID(t time.Time) ulid.ULID {
	entropyLock.Lock()
	id := ulid.MustNew(ulid.Timestamp(t), entropy)
	entropyLock.Unlock()

	return id
}
