// Package id issues the ULIDs that name runs and ledger trades. Being
// time-sortable, they keep decision-log lines and archive rows in creation
// order without a separate sequence column.
package id

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu      sync.Mutex
	entropy io.Reader = newEntropy()
)

// newEntropy builds a monotonic ULID entropy source over a PRNG seeded from
// crypto/rand. Monotonic reading keeps IDs minted in the same millisecond in
// increasing order.
func newEntropy() io.Reader {
	var seed int64
	if err := binary.Read(cryptorand.Reader, binary.LittleEndian, &seed); err != nil || seed == 0 {
		seed = time.Now().UnixNano()
	}
	return ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)
}

// New returns a fresh ULID string.
func New() string {
	mu.Lock()
	defer mu.Unlock()

	u, err := ulid.New(ulid.Timestamp(time.Now().UTC()), entropy)
	if err != nil {
		panic(err)
	}
	return u.String()
}
