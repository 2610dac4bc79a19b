package heapbuilder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeCanonicalizationKeyStrings(t *testing.T) {
	a := &HostString{Value: "hello"}
	b := &HostString{Value: "hello"}
	c := &HostString{Value: "world"}

	keyA, ok := computeCanonicalizationKey("String", a)
	require.True(t, ok)
	keyB, ok := computeCanonicalizationKey("String", b)
	require.True(t, ok)
	keyC, ok := computeCanonicalizationKey("String", c)
	require.True(t, ok)

	assert.Equal(t, keyA, keyB, "equal content must hash to the same key")
	assert.NotEqual(t, keyA, keyC)
}

func TestComputeCanonicalizationKeyPrimitiveArray(t *testing.T) {
	a := &GoPrimitiveArray{Kind: KindInt, Bytes: []byte{1, 2, 3, 4}}
	b := &GoPrimitiveArray{Kind: KindInt, Bytes: []byte{1, 2, 3, 4}}
	c := &GoPrimitiveArray{Kind: KindInt, Bytes: []byte{1, 2, 3, 5}}

	keyA, ok := computeCanonicalizationKey("int[]", a)
	require.True(t, ok)
	keyB, _ := computeCanonicalizationKey("int[]", b)
	keyC, _ := computeCanonicalizationKey("int[]", c)

	assert.Equal(t, keyA, keyB)
	assert.NotEqual(t, keyA, keyC)
}

func TestComputeCanonicalizationKeyReferenceArrayRecursesIntoEmbeddedArrays(t *testing.T) {
	shared := &GoPrimitiveArray{Kind: KindByte, Bytes: []byte{9}}
	a := &GoReferenceArray{Values: []interface{}{shared}}
	b := &GoReferenceArray{Values: []interface{}{shared}}
	other := &GoReferenceArray{Values: []interface{}{&GoPrimitiveArray{Kind: KindByte, Bytes: []byte{9}}}}

	keyA, ok := computeCanonicalizationKey("Object[]", a)
	require.True(t, ok)
	keyB, _ := computeCanonicalizationKey("Object[]", b)
	assert.Equal(t, keyA, keyB, "same backing elements canonicalize the same")

	// other embeds a distinct (but content-equal) primitive array, which
	// recurses via its own shape rather than identity, so it still matches.
	keyOther, _ := computeCanonicalizationKey("Object[]", other)
	assert.Equal(t, keyA, keyOther)
}

func TestComputeCanonicalizationKeyReferenceArrayEmbeddedStringUsesIdentity(t *testing.T) {
	a := &GoReferenceArray{Values: []interface{}{&HostString{Value: "dup"}}}
	b := &GoReferenceArray{Values: []interface{}{&HostString{Value: "dup"}}}
	keyA, ok := computeCanonicalizationKey("Object[]", a)
	require.True(t, ok)
	keyB, ok := computeCanonicalizationKey("Object[]", b)
	require.True(t, ok)
	assert.NotEqual(t, keyA, keyB, "an embedded non-array object canonicalizes by identity, not content")

	shared := &HostString{Value: "dup"}
	c := &GoReferenceArray{Values: []interface{}{shared}}
	d := &GoReferenceArray{Values: []interface{}{shared}}
	keyC, _ := computeCanonicalizationKey("Object[]", c)
	keyD, _ := computeCanonicalizationKey("Object[]", d)
	assert.Equal(t, keyC, keyD, "the same embedded instance still canonicalizes the same")
}

func TestComputeCanonicalizationKeyUnshapedObjectIsNotCanonicalizable(t *testing.T) {
	type opaque struct{ n int }
	_, ok := computeCanonicalizationKey("Opaque", &opaque{n: 1})
	assert.False(t, ok)
}

func TestCanonicalizationMapFirstWriterWins(t *testing.T) {
	m := newCanonicalizationMap()
	a := &HostString{Value: "x"}
	b := &HostString{Value: "x"}
	keyA, _ := computeCanonicalizationKey("String", a)
	keyB, _ := computeCanonicalizationKey("String", b)

	winner := m.lookupOrInsert(keyA, a)
	assert.Same(t, a, winner)

	second := m.lookupOrInsert(keyB, b)
	assert.Same(t, a, second, "the first object inserted for a key stays the canonical representative")
}

func TestClassifyOrdering(t *testing.T) {
	meta := NewReflectMetadata()
	type canon struct{}
	type noncanon struct{}
	meta.RegisterCanonicalizable(&canon{})
	meta.RegisterNonCanonicalizable(&noncanon{})

	assert.True(t, classify(meta, &canon{}, false))
	assert.False(t, classify(meta, &noncanon{}, true), "known-non-canonicalizable wins even over an inherited true")
	assert.True(t, classify(meta, "unrelated", true), "falls back to the parent flag when neither list matches")
	assert.False(t, classify(meta, "unrelated", false))
}
