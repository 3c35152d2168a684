// Package payload provides the fixed load buffer both the client
// loaders and the server's download pusher write onto the wire. Bytes
// are never inspected by either side; only the count matters.
package payload

import "math/rand"

// Size is the fixed load buffer size: large enough to keep a loader
// CPU-bound on I/O rather than content generation, and reused across
// every stream and phase.
const Size = 512 * 1024

// seed is a fixed constant so the buffer's byte sequence is stable
// across runs and hosts -- not a security property, just a
// reproducibility one for anyone diffing captures.
const seed int64 = 8142186158195764244

// Buffer is the shared, read-only load payload.
var Buffer = build()

func build() []byte {
	buf := make([]byte, Size)
	rnd := rand.New(rand.NewSource(seed))
	if _, err := rnd.Read(buf); err != nil {
		panic("payload: failed to fill buffer: " + err.Error())
	}
	return buf
}
