package heapbuilder

import (
	"encoding/binary"
	"fmt"

	sha256simd "github.com/minio/sha256-simd"
)

// ValueEqual lets a host type opt into "own equality" canonicalization
// (spec.md §4.2: "they compare equal under the object's own equality").
// CanonicalBytes must be a stable, content-determined encoding: two
// objects that should canonicalize to one image object must produce
// identical bytes.
type ValueEqual interface {
	CanonicalBytes() []byte
}

// PrimitiveArray and ReferenceArray are the two array shapes spec.md
// §4.2 singles out for deep-content canonicalization: primitive arrays
// (byte/char/int/long) compare element-wise, and reference arrays compare
// recursively with identity for embedded non-array objects.
type PrimitiveArray interface {
	ArrayKind() StorageKind // one of KindByte, KindChar, KindInt, KindLong
	ArrayBytes() []byte     // the raw element bytes, host byte order normalized to little-endian
}

type ReferenceArray interface {
	ArrayElements() []interface{}
}

// canonicalizationKey is the wrapper from spec.md §3 giving value-equality
// hashing/equality for the shapes that may be canonicalized. It is
// reduced to a fixed-width digest via sha256-simd so the Go map used to
// back the canonicalization map can key on a plain comparable array
// rather than re-running a recursive Equal on every lookup.
type canonicalizationKey struct {
	className string
	digest    [32]byte
}

// computeCanonicalizationKey classifies obj's shape and produces its key.
// The boolean result is false when obj does not match any canonicalizable
// shape (it should not be looked up in the canonicalization map at all).
func computeCanonicalizationKey(className string, obj interface{}) (canonicalizationKey, bool) {
	h := sha256simd.New()

	switch v := obj.(type) {
	case *HostString:
		h.Write([]byte(v.Value))
	case PrimitiveArray:
		var kindTag [1]byte
		kindTag[0] = byte(v.ArrayKind())
		h.Write(kindTag[:])
		h.Write(v.ArrayBytes())
	case ReferenceArray:
		elems := v.ArrayElements()
		var lenBuf [8]byte
		binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(elems)))
		h.Write(lenBuf[:])
		for _, e := range elems {
			// Embedded non-array objects participate by identity, not
			// recursive content equality (spec.md §4.2); embedded arrays
			// recurse via their own PrimitiveArray/ReferenceArray shape.
			switch ev := e.(type) {
			case PrimitiveArray, ReferenceArray:
				sub, ok := computeCanonicalizationKey(className, ev)
				if !ok {
					return canonicalizationKey{}, false
				}
				h.Write(sub.digest[:])
			default:
				fmt.Fprintf(h, "identity:%p", e)
			}
		}
	case ValueEqual:
		h.Write(v.CanonicalBytes())
	default:
		return canonicalizationKey{}, false
	}

	var key canonicalizationKey
	key.className = className
	copy(key.digest[:], h.Sum(nil))
	return key, true
}

// canonicalizationMap is spec.md §3's "Canonicalization Map": the first
// host object seen for a given content key wins; later lookups with an
// equal key return the stored winner.
type canonicalizationMap struct {
	entries map[canonicalizationKey]interface{}
}

func newCanonicalizationMap() *canonicalizationMap {
	return &canonicalizationMap{entries: make(map[canonicalizationKey]interface{})}
}

// lookupOrInsert returns the canonical object for key, inserting obj as
// the winner if no entry exists yet.
func (m *canonicalizationMap) lookupOrInsert(key canonicalizationKey, obj interface{}) interface{} {
	if existing, ok := m.entries[key]; ok {
		return existing
	}
	m.entries[key] = obj
	return obj
}

// classify implements spec.md §4.1 step 4 for non-string objects: start
// from the parent's canonicalizable flag, override to false if any
// known_non_canonicalizable class matches, else override to true if any
// known_canonicalizable class matches. known_non_canonicalizable wins
// when both match, since it is consulted first.
func classify(meta Metadata, obj interface{}, parentCanonicalizable bool) bool {
	if meta.KnownNonCanonicalizable(obj) {
		return false
	}
	if meta.KnownCanonicalizable(obj) {
		return true
	}
	return parentCanonicalizable
}
