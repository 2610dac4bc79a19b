package heapbuilder

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// widget and widgetInfo mirror cmd/imageheap's demo types, kept local to
// the test package so library tests don't depend on the cmd/ tree.
type widget struct {
	Name *HostString `heap:"kind=object,written"`
	Next *widget     `heap:"kind=object,written"`
}

func newTestMetadata(t *testing.T) (*ReflectMetadata, *widget, *widget) {
	t.Helper()
	meta := NewReflectMetadata()
	require.NoError(t, meta.RegisterInstanceClass("Widget", &widget{}, 0, nil))

	leaf := &widget{Name: &HostString{Value: "leaf"}}
	head := &widget{Name: &HostString{Value: "head"}, Next: leaf}

	meta.SetStaticRoots(nil, nil, []StaticFieldRoot{})
	return meta, head, leaf
}

func buildAndWrite(t *testing.T, meta *ReflectMetadata, roots []interface{}) (*NativeImageHeap, *RelocatableBuffer, *RelocatableBuffer) {
	t.Helper()
	h, err := NewNativeImageHeap(DefaultConfig(), meta)
	require.NoError(t, err)

	require.NoError(t, h.AddInitialObjects(false))
	for _, r := range roots {
		h.worklist.push(addTask{original: r, reason: Reason{RootTag: "testRoot"}})
	}
	require.NoError(t, h.drainWorklist())
	require.NoError(t, h.AddTrailingObjects(false))

	roBuf := NewRelocatableBuffer(h.GetReadonlySize())
	rwBuf := NewRelocatableBuffer(h.GetWritableSize())
	require.NoError(t, h.SetReadonlySection("ro_image_heap", 0))
	require.NoError(t, h.SetWritableSection("rw_image_heap", 0))
	require.NoError(t, h.WriteHeap(false, roBuf, rwBuf))
	return h, roBuf, rwBuf
}

func TestAddTraversesReachableGraph(t *testing.T) {
	meta, head, leaf := newTestMetadata(t)
	h, roBuf, rwBuf := buildAndWrite(t, meta, []interface{}{head})

	headInfo, ok := h.GetObjectInfo(head)
	require.True(t, ok)
	leafInfo, ok := h.GetObjectInfo(leaf)
	require.True(t, ok)
	assert.NotEqual(t, headInfo.ID, leafInfo.ID)

	assert.Equal(t, h.GetReadonlySize(), roBuf.Len())
	assert.Equal(t, h.GetWritableSize(), rwBuf.Len())
}

func TestAddIsIdempotentOnRepeatedIdentity(t *testing.T) {
	meta, head, _ := newTestMetadata(t)
	h, err := NewNativeImageHeap(DefaultConfig(), meta)
	require.NoError(t, err)
	require.NoError(t, h.addPhase.Allow())
	require.NoError(t, h.intern.phase.Allow())

	require.NoError(t, h.add(head, false, false, Reason{RootTag: "a"}))
	countAfterFirst := h.partitions[WritableReference].Count() + h.partitions[WritablePrimitive].Count() +
		h.partitions[ReadOnlyReference].Count() + h.partitions[ReadOnlyPrimitive].Count()

	require.NoError(t, h.add(head, false, false, Reason{RootTag: "b"}))
	countAfterSecond := h.partitions[WritableReference].Count() + h.partitions[WritablePrimitive].Count() +
		h.partitions[ReadOnlyReference].Count() + h.partitions[ReadOnlyPrimitive].Count()

	assert.Equal(t, countAfterFirst, countAfterSecond, "adding the same object twice must not grow any partition")
}

func TestStringCanonicalizationMergesEqualContent(t *testing.T) {
	meta, _, _ := newTestMetadata(t)
	a := &widget{Name: &HostString{Value: "shared"}}
	b := &widget{Name: &HostString{Value: "shared"}}

	h, _, _ := buildAndWrite(t, meta, []interface{}{a, b})

	aInfo, ok := h.GetObjectInfo(a.Name)
	require.True(t, ok)
	bInfo, ok := h.GetObjectInfo(b.Name)
	require.True(t, ok)
	assert.Equal(t, aInfo.ID, bInfo.ID, "equal-content strings canonicalize to one image object")
}

func TestInternedStringsProduceSortedInternArray(t *testing.T) {
	meta, _, _ := newTestMetadata(t)
	banana := &HostString{Value: "banana"}
	apple := &HostString{Value: "apple"}
	meta.Intern(banana)
	meta.Intern(apple)

	a := &widget{Name: banana}
	b := &widget{Name: apple}

	h, _, _ := buildAndWrite(t, meta, []interface{}{a, b})

	require.True(t, h.intern.phase.IsAfter())
	assert.Equal(t, []string{"apple", "banana"}, h.intern.frozen)
}

func TestRegisterImmutableOnlyBeforeAddPhase(t *testing.T) {
	meta, head, _ := newTestMetadata(t)
	h, err := NewNativeImageHeap(DefaultConfig(), meta)
	require.NoError(t, err)

	require.NoError(t, h.RegisterImmutable(head))
	require.NoError(t, h.addPhase.Allow())
	assert.Error(t, h.RegisterImmutable(head), "register_immutable after add_phase.allow is a phase violation")
}

func TestNilReferenceFieldWritesAsZeroNotAnError(t *testing.T) {
	meta, _, leaf := newTestMetadata(t)
	_, roBuf, rwBuf := buildAndWrite(t, meta, []interface{}{leaf})
	// leaf.Next is nil; WriteHeap must not fail, and the buffers must stay
	// whatever size was reserved (the nil field contributes zero bytes on
	// top of the object's own fixed size, not a LateMutationError).
	assert.NotNil(t, roBuf)
	assert.NotNil(t, rwBuf)
}

func TestConfigUseOnlyWritableBootImageHeapRejectsSpawnIsolates(t *testing.T) {
	meta, head, _ := newTestMetadata(t)
	cfg := DefaultConfig()
	cfg.UseOnlyWritableBootImageHeap = true
	cfg.SpawnIsolates = true
	cfg.UseHeapBase = true
	_, err := NewNativeImageHeap(cfg, meta)
	require.Error(t, err, "constructing with this combination must fail validateConfig before any traversal begins")
	_ = head
}

func TestLateMutationErrorOnDanglingReference(t *testing.T) {
	meta, head, leaf := newTestMetadata(t)
	h, err := NewNativeImageHeap(DefaultConfig(), meta)
	require.NoError(t, err)
	require.NoError(t, h.addPhase.Allow())
	require.NoError(t, h.intern.phase.Allow())

	// Add only the head object itself: the children it enqueues (its hub,
	// name and leaf) are never drained from the worklist, so they have no
	// Object Info, simulating objects that changed after analysis.
	typ, ok := meta.LookupType(head)
	require.True(t, ok)
	require.NoError(t, h.addInstanceToImage(typ, head, head, 1, false, false, Reason{RootTag: "partial"}))
	require.NoError(t, h.addPhase.Disallow())

	roBuf := NewRelocatableBuffer(h.GetReadonlySize())
	rwBuf := NewRelocatableBuffer(h.GetWritableSize())
	require.NoError(t, h.SetReadonlySection("ro", 0))
	require.NoError(t, h.SetWritableSection("rw", 0))

	err = h.WriteHeap(false, roBuf, rwBuf)
	require.Error(t, err)
	var be *BuildError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "LateMutationError", be.Kind)
	_ = leaf
}

// hybridWidget models an instance class whose memory form embeds a
// trailing int[] array plus a bitset in the same allocation (glossary:
// "Hybrid layout").
type hybridWidget struct {
	Items *GoPrimitiveArray `heap:"kind=word,written"`
	Bits  *testBitSet       `heap:"kind=word"`
	// Alias deliberately points at the same array as Items, modeling an
	// independent field that reaches the embedded array a second way.
	Alias *GoPrimitiveArray `heap:"kind=object,written"`
}

type testBitSet struct {
	bits []int
}

func (b *testBitSet) SetBits() []int { return b.bits }

// constHybridLayout is a fixed HybridLayoutProvider for tests: element i of
// the embedded int array sits at 16+i*4, the bit-field area starts right
// after a four-element array, and total size covers one byte of bits.
type constHybridLayout struct {
	arrayField, bitsetField string
	bitFieldOffset          int64
}

func (l *constHybridLayout) ArrayFieldName() string            { return l.arrayField }
func (l *constHybridLayout) BitsetFieldName() (string, bool)   { return l.bitsetField, l.bitsetField != "" }
func (l *constHybridLayout) BitFieldOffset() int64             { return l.bitFieldOffset }
func (l *constHybridLayout) ArrayElementOffset(i int64) int64  { return 16 + i*4 }
func (l *constHybridLayout) ArrayElementKind() StorageKind     { return KindInt }
func (l *constHybridLayout) TotalSize(arrayLength int64) int64 { return l.bitFieldOffset + 1 }

func encodeInt32s(values []int32) []byte {
	out := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[i*4:], uint32(v))
	}
	return out
}

// TestHybridLayoutWritesEmbeddedArrayAndBitset covers the hybrid-object
// scenario: an embedded int[4] array plus a three-bit embedded bitset
// {0, 7, 8}, written into the same allocation as the instance.
func TestHybridLayoutWritesEmbeddedArrayAndBitset(t *testing.T) {
	meta := NewReflectMetadata()
	hybrid := &constHybridLayout{arrayField: "Items", bitsetField: "Bits", bitFieldOffset: 32}
	require.NoError(t, meta.RegisterInstanceClass("HybridWidget", &hybridWidget{}, 0, hybrid))
	meta.SetStaticRoots(nil, nil, []StaticFieldRoot{})

	items := &GoPrimitiveArray{Kind: KindInt, Bytes: encodeInt32s([]int32{1, 2, 3, 4})}
	obj := &hybridWidget{
		Items: items,
		Bits:  &testBitSet{bits: []int{0, 7, 8}},
		Alias: items,
	}

	h, roBuf, rwBuf := buildAndWrite(t, meta, []interface{}{obj})

	info, ok := h.GetObjectInfo(obj)
	require.True(t, ok)
	base, ok := info.OffsetInSection()
	require.True(t, ok)

	buf := roBuf
	if info.Partition.Kind.Writable() {
		buf = rwBuf
	}

	assert.Equal(t, encodeInt32s([]int32{1, 2, 3, 4}), buf.Bytes()[base+16:base+32])

	bitByte0 := buf.Bytes()[base+32]
	bitByte1 := buf.Bytes()[base+33]
	assert.Equal(t, byte(0x81), bitByte0, "bits 0 and 7 set in the first bit-field byte")
	assert.Equal(t, byte(0x01), bitByte1, "bit 8 set in the second bit-field byte")

	// Alias reaches the same array independently of the hybrid field. It
	// must never get a standalone Object Info of its own (no ImageType is
	// even registered for *GoPrimitiveArray, so reaching LookupType for it
	// would fail outright).
	assert.True(t, h.blacklist.contains(items))
	_, standalone := h.GetObjectInfo(items)
	assert.False(t, standalone, "an embedded hybrid array must never become a standalone Object Info")
}

// testMethodPointer is a MethodPointer used only to exercise the
// method-pointer relocation path (spec.md §4.3's "only non-data
// relocation"): it is never registered as a host class and so must never
// be pushed through the ordinary add() worklist.
type testMethodPointer struct {
	symbol     ImageObjectId
	codeOffset int64
	compiled   bool
}

func (p *testMethodPointer) Symbol() ImageObjectId     { return p.symbol }
func (p *testMethodPointer) CodeOffset() (int64, bool) { return p.codeOffset, p.compiled }

// TestMethodPointerEmitsDirectRelocationWithoutAddend covers a compiled,
// vtable-reachable method pointer stored in a reference array: it must
// produce a DirectNoAddend relocation at the slot, with no data bytes
// written there (the value is resolved by the linker, not by this writer).
func TestMethodPointerEmitsDirectRelocationWithoutAddend(t *testing.T) {
	meta := NewReflectMetadata()
	meta.SetStaticRoots(nil, nil, []StaticFieldRoot{})

	mp := &testMethodPointer{
		symbol:     newImageObjectIdFromSequence(7),
		codeOffset: 1024,
		compiled:   true,
	}
	arr := &GoReferenceArray{Values: []interface{}{mp}}

	h, roBuf, rwBuf := buildAndWrite(t, meta, []interface{}{arr})

	info, ok := h.GetObjectInfo(arr)
	require.True(t, ok)
	base, ok := info.OffsetInSection()
	require.True(t, ok)

	buf := roBuf
	if info.Partition.Kind.Writable() {
		buf = rwBuf
	}
	at := base + h.layout.ArrayElementOffset(KindObject, 0)

	var found *Relocation
	for i := range buf.Relocations() {
		if buf.Relocations()[i].At == at {
			found = &buf.Relocations()[i]
			break
		}
	}
	require.NotNil(t, found, "expected a relocation record at the method pointer slot")
	assert.Equal(t, DirectNoAddend, found.Kind)
	assert.Equal(t, mp.symbol, found.Symbol)
	assert.Equal(t, uint8(h.layout.WordBytes), found.Size)

	zero := make([]byte, h.layout.WordBytes)
	assert.Equal(t, zero, buf.Bytes()[at:at+h.layout.WordBytes], "a relocation carries no inline data")

	// An uncompiled method pointer (code_offset invalid) must fail to write.
	meta2 := NewReflectMetadata()
	meta2.SetStaticRoots(nil, nil, []StaticFieldRoot{})
	uncompiled := &testMethodPointer{symbol: newImageObjectIdFromSequence(8), compiled: false}
	arr2 := &GoReferenceArray{Values: []interface{}{uncompiled}}

	h2, err := NewNativeImageHeap(DefaultConfig(), meta2)
	require.NoError(t, err)
	require.NoError(t, h2.AddInitialObjects(false))
	h2.worklist.push(addTask{original: arr2, reason: Reason{RootTag: "root"}})
	require.NoError(t, h2.drainWorklist())
	require.NoError(t, h2.AddTrailingObjects(false))

	roBuf2 := NewRelocatableBuffer(h2.GetReadonlySize())
	rwBuf2 := NewRelocatableBuffer(h2.GetWritableSize())
	require.NoError(t, h2.SetReadonlySection("ro", 0))
	require.NoError(t, h2.SetWritableSection("rw", 0))
	err = h2.WriteHeap(false, roBuf2, rwBuf2)
	require.Error(t, err)
	var be *BuildError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "UnknownPointerRelocationError", be.Kind)
}

// monitorWidget has no written or reference fields of its own; only its
// monitor field offset forces the writable_reference partition.
type monitorWidget struct {
	Tag int32 `heap:"kind=int,final"`
}

// TestMonitorFieldForcesWritableReferencePartition covers a monitor-bearing
// class: zero written fields, yet selectPartition must still choose
// writable_reference because the class carries a monitor slot.
func TestMonitorFieldForcesWritableReferencePartition(t *testing.T) {
	meta := NewReflectMetadata()
	require.NoError(t, meta.RegisterInstanceClass("MonitorWidget", &monitorWidget{}, 8, nil))
	meta.SetStaticRoots(nil, nil, []StaticFieldRoot{})

	obj := &monitorWidget{Tag: 42}
	h, _, _ := buildAndWrite(t, meta, []interface{}{obj})

	info, ok := h.GetObjectInfo(obj)
	require.True(t, ok)
	assert.Equal(t, WritableReference, info.Partition.Kind, "a monitor field forces writable_reference even with no written fields")
}

// TestClassObjectHashWinsOverDynamicHubHash covers the identity-hash
// upgrade: the same DynamicHub is reached first through its own class's
// traversal, then again through an explicit java.lang.Class reference, and
// the class-object side must win.
func TestClassObjectHashWinsOverDynamicHubHash(t *testing.T) {
	meta, head, _ := newTestMetadata(t)
	h, err := NewNativeImageHeap(DefaultConfig(), meta)
	require.NoError(t, err)
	require.NoError(t, h.addPhase.Allow())
	require.NoError(t, h.intern.phase.Allow())

	require.NoError(t, h.add(head, false, false, Reason{RootTag: "root"}))
	require.NoError(t, h.drainWorklist())

	hub := meta.DynamicHubOf(head)
	hubInfo, ok := h.identityMap[hub]
	require.True(t, ok)
	hashBeforeUpgrade := hubInfo.IdentityHashCode

	classMarker := &widget{}
	require.NoError(t, h.add(WrapClassReference(classMarker), false, false, Reason{RootTag: "classRef"}))

	expectedHash := meta.HostIdentityHashCode(classMarker)
	assert.NotEqual(t, hashBeforeUpgrade, expectedHash, "the class object must carry a different host identity than the hub")
	assert.Equal(t, expectedHash, hubInfo.IdentityHashCode, "the class-object hash must win once the class reference is resolved")

	// A second class reference for the same class must not disturb the
	// already-upgraded hash: the upgrade happens exactly once.
	require.NoError(t, h.add(WrapClassReference(&widget{}), false, false, Reason{RootTag: "classRefAgain"}))
	assert.Equal(t, expectedHash, hubInfo.IdentityHashCode)
}
