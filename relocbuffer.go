package heapbuilder

import "encoding/binary"

// RelocationKind distinguishes the two non-compressed relocation record
// shapes of spec.md §6. EncodedCompressedRef is not a record at all — it
// is a plain little-endian write — so it has no RelocationKind.
type RelocationKind int

const (
	DirectNoAddend RelocationKind = iota
	DirectWithAddend
)

// Relocation is the abstract relocation record format from spec.md §6.
type Relocation struct {
	Kind   RelocationKind
	At     int64
	Size   uint8
	Addend uint64
	Symbol ImageObjectId
}

// RelocatableBuffer is spec.md §2's "Relocatable Buffer": a byte buffer
// plus a set of relocation records. One instance backs the
// writable partitions' output and one backs the read-only partitions'.
// Unlike the teacher's append-only bytes.Buffer (flapc's eb.text/eb.rodata),
// objects here are written at partition-assigned offsets that are known
// before writing starts, so the buffer is pre-sized to the partition's
// frozen total and writes are indexed, not appended.
type RelocatableBuffer struct {
	data        []byte
	relocations []Relocation
}

// NewRelocatableBuffer allocates a buffer of exactly size bytes, zeroed.
func NewRelocatableBuffer(size int64) *RelocatableBuffer {
	return &RelocatableBuffer{data: make([]byte, size)}
}

func (b *RelocatableBuffer) Bytes() []byte { return b.data }

func (b *RelocatableBuffer) Relocations() []Relocation { return b.relocations }

func (b *RelocatableBuffer) Len() int64 { return int64(len(b.data)) }

// WriteByte writes a single byte at the given offset.
func (b *RelocatableBuffer) WriteByte(at int64, v byte) {
	b.data[at] = v
}

// OrByte ORs mask into the byte at the given offset, used for the
// hybrid-bitset field and for OR-ing header bits into a hub reference.
func (b *RelocatableBuffer) OrByte(at int64, mask byte) {
	b.data[at] |= mask
}

func (b *RelocatableBuffer) WriteUint16(at int64, v uint16) {
	binary.LittleEndian.PutUint16(b.data[at:at+2], v)
}

func (b *RelocatableBuffer) WriteUint32(at int64, v uint32) {
	binary.LittleEndian.PutUint32(b.data[at:at+4], v)
}

func (b *RelocatableBuffer) WriteUint64(at int64, v uint64) {
	binary.LittleEndian.PutUint64(b.data[at:at+8], v)
}

func (b *RelocatableBuffer) WriteBytes(at int64, data []byte) {
	copy(b.data[at:at+int64(len(data))], data)
}

// addDirectNoAddend records a "direct relocation, no addend" at index at,
// sized one word, carrying symbol as the target.
func (b *RelocatableBuffer) addDirectNoAddend(at int64, size uint8, symbol ImageObjectId) {
	b.relocations = append(b.relocations, Relocation{
		Kind: DirectNoAddend, At: at, Size: size, Symbol: symbol,
	})
}

// addDirectWithAddend records a "direct relocation, with addend" at index
// at, carrying symbol and the header-bits addend.
func (b *RelocatableBuffer) addDirectWithAddend(at int64, size uint8, addend uint64, symbol ImageObjectId) {
	b.relocations = append(b.relocations, Relocation{
		Kind: DirectWithAddend, At: at, Size: size, Addend: addend, Symbol: symbol,
	})
}
