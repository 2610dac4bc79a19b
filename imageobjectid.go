package heapbuilder

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// ImageObjectId is the opaque relocation-record symbol identity from
// spec.md §6 ("DirectNoAddend{... symbol: ImageObjectId}"). A host object's
// own pointer identity is not a safe long-lived symbol: it can be reused
// by the host allocator once the canonical object becomes unreachable from
// the caller's own bookkeeping, and it is not printable in diagnostics in
// any stable way across runs.
//
// Symbols are derived deterministically (uuid.NewSHA1 over a per-build
// insertion sequence number) rather than with uuid.New()'s random v4: spec.md
// §8 property 7 requires re-running the builder on the same inputs to
// produce identical relocation records, and insertion order is already the
// one deterministic thing the worklist guarantees (spec.md §5).
type ImageObjectId uuid.UUID

// imageObjectIdNamespace roots the SHA1-based symbol derivation.
var imageObjectIdNamespace = uuid.NewSHA1(uuid.Nil, []byte("nativeimage.heapbuilder.objectinfo"))

// newImageObjectIdFromSequence derives the symbol for the seq'th object
// inserted into the identity map, in traversal order.
func newImageObjectIdFromSequence(seq uint64) ImageObjectId {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)
	return ImageObjectId(uuid.NewSHA1(imageObjectIdNamespace, buf[:]))
}

func (id ImageObjectId) String() string {
	return uuid.UUID(id).String()
}
