package heapbuilder

import "fmt"

// PartitionKind identifies one of the four append-only regions from
// spec.md §2–§3, along the axes {writable, read-only} x {references,
// primitive only}.
type PartitionKind int

const (
	ReadOnlyPrimitive PartitionKind = iota
	ReadOnlyReference
	WritablePrimitive
	WritableReference
)

func (k PartitionKind) String() string {
	switch k {
	case ReadOnlyPrimitive:
		return "readOnlyPrimitive"
	case ReadOnlyReference:
		return "readOnlyReference"
	case WritablePrimitive:
		return "writablePrimitive"
	case WritableReference:
		return "writableReference"
	default:
		return "unknownPartition"
	}
}

// Writable reports whether objects in this partition live in the
// writable segment.
func (k PartitionKind) Writable() bool {
	return k == WritablePrimitive || k == WritableReference
}

// References reports whether objects in this partition carry outgoing
// object references that must be scanned/relocated.
func (k PartitionKind) References() bool {
	return k == ReadOnlyReference || k == WritableReference
}

// AllPartitionKinds lists the four partitions in a fixed, stable order
// used for iteration (diagnostics, boundary patching).
var AllPartitionKinds = [4]PartitionKind{
	ReadOnlyPrimitive, ReadOnlyReference, WritablePrimitive, WritableReference,
}

// HeapPartition is a named, typed, append-only region: spec.md §3 "Heap
// Partition". Size and count grow monotonically during the add phase and
// are frozen once writing begins; SectionName/SectionOffset are assigned
// once by the link layer via SetReadonlySection/SetWritableSection.
type HeapPartition struct {
	Kind  PartitionKind
	size  int64
	count int64

	sectionName   string
	sectionOffset int64
	sectionSet    bool
}

// NewHeapPartition constructs an empty partition of the given kind.
func NewHeapPartition(kind PartitionKind) *HeapPartition {
	return &HeapPartition{Kind: kind}
}

// Size returns the partition's running byte size.
func (p *HeapPartition) Size() int64 { return p.size }

// Count returns the number of objects placed in the partition.
func (p *HeapPartition) Count() int64 { return p.count }

// reserve appends size bytes to the partition and returns the offset the
// new object starts at. size must already be reference-aligned; callers
// (add-to-image) are responsible for that alignment.
func (p *HeapPartition) reserve(size int64) int64 {
	offset := p.size
	p.size += size
	p.count++
	return offset
}

// SectionName reports the section this partition has been assigned to, if
// any.
func (p *HeapPartition) SectionName() (string, bool) {
	return p.sectionName, p.sectionSet
}

// SectionOffset reports the partition's offset within its section, if
// assigned.
func (p *HeapPartition) SectionOffset() (int64, bool) {
	return p.sectionOffset, p.sectionSet
}

// setSection assigns the section name and starting offset. Once set it is
// final: a second call is a programming error, surfaced as an
// AlignmentViolationError, the kind this package uses for partition and
// section invariants.
func (p *HeapPartition) setSection(name string, offset int64) error {
	if p.sectionSet {
		return newAlignmentViolationError(fmt.Sprintf(
			"partition %s: section already set to %s@%d, cannot reassign to %s@%d",
			p.Kind, p.sectionName, p.sectionOffset, name, offset))
	}
	p.sectionName = name
	p.sectionOffset = offset
	p.sectionSet = true
	return nil
}
