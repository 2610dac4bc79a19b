package heapbuilder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartitionReserveIsAppendOnly(t *testing.T) {
	p := NewHeapPartition(WritableReference)

	first := p.reserve(16)
	assert.Equal(t, int64(0), first)
	second := p.reserve(24)
	assert.Equal(t, int64(16), second)

	assert.Equal(t, int64(40), p.Size())
	assert.Equal(t, int64(2), p.Count())
}

func TestPartitionSectionSetOnce(t *testing.T) {
	p := NewHeapPartition(ReadOnlyPrimitive)
	require.NoError(t, p.setSection("ro_image_heap", 0))

	name, ok := p.SectionName()
	require.True(t, ok)
	assert.Equal(t, "ro_image_heap", name)

	offset, ok := p.SectionOffset()
	require.True(t, ok)
	assert.Equal(t, int64(0), offset)

	err := p.setSection("ro_image_heap", 128)
	assert.Error(t, err, "section placement must happen exactly once")
}

func TestPartitionKindPredicates(t *testing.T) {
	assert.False(t, ReadOnlyPrimitive.Writable())
	assert.False(t, ReadOnlyReference.Writable())
	assert.True(t, WritablePrimitive.Writable())
	assert.True(t, WritableReference.Writable())

	assert.False(t, ReadOnlyPrimitive.References())
	assert.True(t, ReadOnlyReference.References())
	assert.False(t, WritablePrimitive.References())
	assert.True(t, WritableReference.References())
}
