package heapbuilder

// This file declares the interfaces consumed from the metadata layer and
// the object-layout/hybrid-layout constants described in spec.md §6. Per
// spec.md §1 ("Out of scope: external collaborators"), the static
// analysis that marks types instantiated and fields read/written, and the
// concrete metadata model itself, are not implemented here — only the
// shape the builder depends on. reflectmeta.go provides one concrete,
// reflection-based implementation used by tests and the cmd/ demo driver.

// StorageKind mirrors the host field/array element kinds the builder must
// size and serialize: one reference kind plus the primitive kinds.
type StorageKind int

const (
	KindObject StorageKind = iota
	KindBoolean
	KindByte
	KindChar
	KindShort
	KindInt
	KindLong
	KindFloat
	KindDouble
	KindWord
)

// IsReference reports whether values of this kind are heap references
// that must be traversed, encoded, and possibly relocated.
func (k StorageKind) IsReference() bool { return k == KindObject }

// ByteSize returns the storage width of the kind, not counting Object
// (whose width is ByteLayout.WordBytes and is sized by the caller).
func (k StorageKind) ByteSize() int64 {
	switch k {
	case KindBoolean, KindByte:
		return 1
	case KindChar, KindShort:
		return 2
	case KindInt, KindFloat:
		return 4
	case KindLong, KindDouble, KindWord:
		return 8
	default:
		return 0
	}
}

// ByteLayout carries the object-layout constants from spec.md §6:
// hub_offset, array_length_offset, array_hash_code_offset,
// array_element_offset(kind,i), reference_aligned(n), alignment,
// word_bytes.
type ByteLayout struct {
	WordBytes          int64
	Alignment          int64
	HubOffset          int64
	ArrayLengthOffset  int64
	ArrayHashCodeOffset int64
	ArrayBaseOffset    int64
}

// ReferenceAligned rounds n up to the next multiple of the layout's
// alignment.
func (l ByteLayout) ReferenceAligned(n int64) int64 {
	if l.Alignment <= 0 {
		return n
	}
	rem := n % l.Alignment
	if rem == 0 {
		return n
	}
	return n + (l.Alignment - rem)
}

// ArrayElementOffset returns the byte offset of element i of an array
// whose elements are of the given kind.
func (l ByteLayout) ArrayElementOffset(kind StorageKind, i int64) int64 {
	width := l.elementWidth(kind)
	return l.ArrayBaseOffset + i*width
}

func (l ByteLayout) elementWidth(kind StorageKind) int64 {
	if kind.IsReference() {
		return l.WordBytes
	}
	return kind.ByteSize()
}

// Hub is the per-class runtime descriptor every image object carries a
// reference to at ByteLayout.HubOffset.
type Hub interface {
	// LayoutEncoding distinguishes instance vs. array and, for hybrid
	// instance classes, identifies the hybrid layout.
	LayoutEncoding() int64
	// HashCodeOffset is the offset, within an instance of this hub's
	// class, at which the identity hash code is stored.
	HashCodeOffset() int64
	// HeaderBits are the object-header bits the runtime expects ORed
	// into every reference that targets this hub.
	HeaderBits() uint64
}

// ImageField describes one instance or static field as seen by the
// analyzer.
type ImageField struct {
	Name       string
	Kind       StorageKind
	Accessed   bool
	Written    bool
	Final      bool
	Offset     int64 // offset within the instance, or static-slot index
	ReadValue  func(receiver interface{}) (interface{}, error)
}

// BitSet is the shape of a hybrid class's embedded bitset field: spec.md
// §4.3 writes it by OR-ing one bit at a time into the hybrid bit-field
// area, so the builder only needs the set bit positions, not the host's
// own bitset representation.
type BitSet interface {
	SetBits() []int
}

// HybridLayoutProvider describes an instance class whose memory form
// embeds a trailing array and optionally a bitset inside the same
// allocation as the instance fields (spec.md glossary: "Hybrid layout").
type HybridLayoutProvider interface {
	ArrayFieldName() string
	BitsetFieldName() (name string, ok bool)
	BitFieldOffset() int64
	ArrayElementOffset(i int64) int64
	ArrayElementKind() StorageKind
	TotalSize(arrayLength int64) int64
}

// ImageType is the per-class view the builder needs: spec.md §6
// "lookup_type ... is_instantiated ... is_instance_class/is_array ...
// component_kind ... hub ... instance_fields ... instance_size_from_layout_encoding
// ... monitor_field_offset".
type ImageType interface {
	Name() string
	IsInstantiated() bool
	IsInstanceClass() bool
	IsArray() bool
	ComponentKind() StorageKind // valid only when IsArray()
	Hub() Hub
	InstanceFields() []ImageField // including inherited
	InstanceSizeFromLayoutEncoding() int64
	MonitorFieldOffset() int64 // 0 means "no monitor field"
	HybridLayout() (HybridLayoutProvider, bool)
}

// Metadata is the full external collaborator surface from spec.md §6.
type Metadata interface {
	Layout() ByteLayout

	// LookupType resolves a host object's runtime class to its image
	// type. The second return is false when the analyzer has no
	// knowledge of the class at all (as opposed to knowing it but not
	// marking it instantiated, which IsInstantiated() reports).
	LookupType(hostObject interface{}) (ImageType, bool)

	// IdentityHashCodeProvider returns a host-provided identity hash for
	// obj, if the host type supplies one; otherwise the builder falls
	// back to a host-identity hash.
	IdentityHashCodeProvider(obj interface{}) (int32, bool)

	// HostIdentityHashCode is the fallback used when no provider exists.
	HostIdentityHashCode(obj interface{}) int32

	// IsWord reports whether obj is a machine-sized integer wrapper,
	// which add() must ignore entirely (spec.md §4.1 step 1).
	IsWord(obj interface{}) bool

	// IsClassObject reports whether obj is a host class object (as
	// opposed to an instance); these must never become image objects
	// directly (spec.md §4.1 step 2).
	IsClassObject(obj interface{}) bool

	// DynamicHubOf returns the host's DynamicHub-equivalent runtime
	// representative for obj's class, enqueued alongside every added
	// object.
	DynamicHubOf(obj interface{}) interface{}

	// ClassObjectOf returns the java.lang.Class-equivalent host object
	// for a hub, used to detect the identity-hash upgrade path of
	// spec.md §3 / scenario S6. The second return is false until a class
	// reference for that hub's class has actually been noted via
	// NoteClassReference — most classes in a build are never reached via
	// their java.lang.Class side at all, so this must not default to true.
	ClassObjectOf(hub interface{}) (interface{}, bool)

	// NoteClassReference records that class is the host java.lang.Class
	// representative for its type, establishing the correspondence
	// ClassObjectOf(DynamicHubOf(class)) subsequently reports. Called when
	// a classObjectRef field is resolved (spec.md §3 / scenario S6).
	NoteClassReference(class interface{})

	// IsInternedString reports whether s is the host's single interned
	// instance for its content (spec.md §4.1 step 4: "checked by
	// interning a fresh copy and comparing for pointer-equality").
	IsInternedString(s *HostString) bool

	// KnownNonCanonicalizable and KnownCanonicalizable implement the
	// ordered instance-of classification of spec.md §3: the first list
	// (in order) whose check matches wins, non-canonicalizable over
	// canonicalizable.
	KnownNonCanonicalizable(obj interface{}) bool
	KnownCanonicalizable(obj interface{}) bool

	// StaticRoots returns the two static-field placeholder arrays plus
	// every statically-held object field that is both written and
	// accessed, per spec.md §4.1 add_initial_objects. The two arrays are
	// themselves ordinary image objects (added like any other array);
	// each StaticFieldRoot's value lives at a slot within whichever of
	// the two its Kind selects.
	StaticRoots() (primitiveArray, referenceArray interface{}, fields []StaticFieldRoot)

	// ObjectHeaderBits returns the header bits the runtime ORs into
	// every reference targeting an object of this hub.
	ObjectHeaderBits(hub Hub) uint64

	// WellKnownRuntimeInfoObject is the static object whose fields hold
	// the first/last boundary markers of the four partitions, patched in
	// WriteHeap (spec.md §4.5). It must already be reachable from StaticRoots so it
	// has an Object Info by the time boundaries are patched.
	WellKnownRuntimeInfoObject() interface{}

	// BoundaryFieldLocation returns the receiver and field offset of the
	// named boundary field ("readOnlyPrimitiveFirst", etc.) within the
	// well-known runtime info object.
	BoundaryFieldLocation(name string) (BoundaryLocation, bool)

	// NewInternedStringArray constructs the host array object that will
	// carry the sorted, deduplicated interned strings (spec.md §4.1
	// add_trailing_objects: "builds the sorted intern array ... adds
	// it"), of a type the implementation has already registered with
	// itself so the builder can add it exactly like any other array.
	NewInternedStringArray(values []string) interface{}
}

// StaticFieldRoot names a statically-held field the builder must enqueue
// as a root, plus where its value lives once written: ArrayRoot is
// whichever of the two StaticRoots() placeholder arrays backs this slot,
// and Index is this field's element index within it.
type StaticFieldRoot struct {
	Name      string
	Kind      StorageKind
	ArrayRoot interface{}
	Index     int64
	ReadValue func() (interface{}, error)
}

// BoundaryLocation names a field at a fixed byte offset within a
// receiver object (the well-known runtime-info object, for the four
// boundary markers of spec.md §4.5).
type BoundaryLocation struct {
	Receiver interface{}
	Offset   int64
}

// HostString is a marker type distinguishing host strings from arbitrary
// byte content for canonicalization purposes (spec.md §4.1 step 4: string
// interning is special-cased ahead of the general canonicalizable rule).
type HostString struct {
	Value string
}
