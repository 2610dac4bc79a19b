package heapbuilder

import (
	"fmt"
	"math"
)

// MethodPointer is the one relocation target from spec.md §4.3 that is not
// a heap object. Symbol identifies the method itself (stable across runs,
// allocated by the metadata layer — methods are a fixed set known before
// the build starts, unlike image objects whose identity is assigned during
// traversal); CodeOffset reports whether the method was compiled and is
// vtable-reachable.
type MethodPointer interface {
	Symbol() ImageObjectId
	CodeOffset() (int64, bool)
}

// WriteHeap implements spec.md §4.1's write_heap and §4.3's per-object
// serialization: every Object Info is written into its partition's buffer,
// then static-field payloads are written, then the four partition-boundary
// markers are patched. Traversal order over the identity map does not
// matter — each object's bytes depend only on its own fields and on the
// frozen offsets of its reference targets, never on write order.
func (h *NativeImageHeap) WriteHeap(debug bool, roBuf, rwBuf *RelocatableBuffer) error {
	SetVerbose(debug)

	written := make(map[*ObjectInfo]struct{})
	for _, info := range h.identityMap {
		if _, ok := written[info]; ok {
			continue
		}
		written[info] = struct{}{}
		buf := h.bufferFor(info, roBuf, rwBuf)
		if err := h.writeObject(buf, info); err != nil {
			return err
		}
	}

	if err := h.writeStaticFields(roBuf, rwBuf); err != nil {
		return err
	}
	return h.patchBoundaries(roBuf, rwBuf)
}

func (h *NativeImageHeap) bufferFor(info *ObjectInfo, roBuf, rwBuf *RelocatableBuffer) *RelocatableBuffer {
	if info.Partition.Kind.Writable() {
		return rwBuf
	}
	return roBuf
}

// writeObject writes the hub reference common to every object, then
// dispatches to the instance or array layout.
func (h *NativeImageHeap) writeObject(buf *RelocatableBuffer, info *ObjectInfo) error {
	base, ok := info.OffsetInSection()
	if !ok {
		return newAlignmentViolationError(fmt.Sprintf("object %s has no section offset assigned", info.ID))
	}
	if base%h.layout.Alignment != 0 {
		return newAlignmentViolationError(fmt.Sprintf("object %s offset %d is not reference-aligned", info.ID, base))
	}

	headerBits := h.meta.ObjectHeaderBits(info.Class.Hub())
	if err := h.emitHubReference(buf, base+h.layout.HubOffset, info, h.meta.DynamicHubOf(info.Object), headerBits); err != nil {
		return err
	}

	switch {
	case info.Class.IsInstanceClass():
		return h.writeInstance(buf, base, info)
	case info.Class.IsArray():
		return h.writeArray(buf, base, info)
	default:
		return newUnrecognizedMoveTypeError(fmt.Sprintf("type %q (neither instance nor array) at write time", info.Class.Name()))
	}
}

func (h *NativeImageHeap) writeInstance(buf *RelocatableBuffer, base int64, info *ObjectInfo) error {
	typ := info.Class
	fields := typ.InstanceFields()
	hybrid, isHybrid := typ.HybridLayout()

	var hybridArrayField, hybridBitsetField *ImageField
	if isHybrid {
		hybrid = h.hybridCache.getOrBuild(typ.Name(), func() HybridLayoutProvider { return hybrid })
		for i := range fields {
			f := &fields[i]
			if f.Name == hybrid.ArrayFieldName() {
				hybridArrayField = f
				continue
			}
			if bsName, ok := hybrid.BitsetFieldName(); ok && f.Name == bsName {
				hybridBitsetField = f
			}
		}
		if hybridBitsetField != nil {
			if err := h.writeHybridBitset(buf, base, info, hybrid, hybridBitsetField); err != nil {
				return err
			}
		}
	}

	for i := range fields {
		f := &fields[i]
		if hybridArrayField != nil && f.Name == hybridArrayField.Name {
			continue
		}
		if hybridBitsetField != nil && f.Name == hybridBitsetField.Name {
			continue
		}
		if !f.Accessed {
			continue
		}
		value, err := f.ReadValue(info.Object)
		if err != nil {
			return wrapf(err, "reading field %q of %q", f.Name, typ.Name())
		}
		if err := h.writeValue(buf, base+f.Offset, info, f.Kind, value); err != nil {
			return err
		}
	}

	buf.WriteUint32(base+typ.Hub().HashCodeOffset(), uint32(info.IdentityHashCode))

	if isHybrid {
		arrVal, err := hybridArrayField.ReadValue(info.Object)
		if err != nil {
			return wrapf(err, "reading hybrid array field %q of %q", hybridArrayField.Name, typ.Name())
		}
		length := arrayLengthOf(arrVal)
		buf.WriteUint32(base+h.layout.ArrayLengthOffset, uint32(length))
		offsetOf := func(i int64) int64 { return hybrid.ArrayElementOffset(i) }
		if err := h.writeArrayElements(buf, base, info, hybrid.ArrayElementKind(), arrVal, length, offsetOf); err != nil {
			return err
		}
	}

	return nil
}

func (h *NativeImageHeap) writeHybridBitset(buf *RelocatableBuffer, base int64, info *ObjectInfo, hybrid HybridLayoutProvider, field *ImageField) error {
	value, err := field.ReadValue(info.Object)
	if err != nil {
		return wrapf(err, "reading hybrid bitset field %q", field.Name)
	}
	bits, ok := value.(BitSet)
	if !ok {
		return newUnrecognizedMoveTypeError(fmt.Sprintf("hybrid bitset field %q does not implement BitSet", field.Name))
	}
	for _, bit := range bits.SetBits() {
		at := base + hybrid.BitFieldOffset() + int64(bit/8)
		mask := byte(1) << uint(bit%8)
		buf.OrByte(at, mask)
	}
	return nil
}

func (h *NativeImageHeap) writeArray(buf *RelocatableBuffer, base int64, info *ObjectInfo) error {
	typ := info.Class
	kind := typ.ComponentKind()
	length := arrayLengthOf(info.Object)

	buf.WriteUint32(base+h.layout.ArrayLengthOffset, uint32(length))
	buf.WriteUint32(base+h.layout.ArrayHashCodeOffset, uint32(info.IdentityHashCode))

	offsetOf := func(i int64) int64 { return h.layout.ArrayElementOffset(kind, i) }
	return h.writeArrayElements(buf, base, info, kind, info.Object, length, offsetOf)
}

// writeArrayElements writes the element area shared by plain arrays and a
// hybrid instance's embedded array, dispatching on component kind.
func (h *NativeImageHeap) writeArrayElements(buf *RelocatableBuffer, base int64, info *ObjectInfo, kind StorageKind, arrayValue interface{}, length int64, offsetOf func(i int64) int64) error {
	if kind.IsReference() {
		refArr, ok := arrayValue.(ReferenceArray)
		if !ok {
			return newUnrecognizedMoveTypeError(fmt.Sprintf("reference array %v does not implement ReferenceArray", arrayValue))
		}
		for i, elem := range refArr.ArrayElements() {
			if elem == nil {
				continue
			}
			at := base + offsetOf(int64(i))
			if mp, isMethod := elem.(MethodPointer); isMethod {
				if err := h.emitMethodPointer(buf, at, mp); err != nil {
					return err
				}
				continue
			}
			if err := h.emitReference(buf, at, info, elem); err != nil {
				return err
			}
		}
		return nil
	}

	primArr, ok := arrayValue.(PrimitiveArray)
	if !ok {
		return newUnrecognizedMoveTypeError(fmt.Sprintf("primitive array %v does not implement PrimitiveArray", arrayValue))
	}
	width := kind.ByteSize()
	raw := primArr.ArrayBytes()
	for i := int64(0); i < length; i++ {
		at := base + offsetOf(i)
		buf.WriteBytes(at, raw[i*width:(i+1)*width])
	}
	return nil
}

func (h *NativeImageHeap) writeValue(buf *RelocatableBuffer, at int64, info *ObjectInfo, kind StorageKind, value interface{}) error {
	if kind.IsReference() {
		if value == nil {
			// A null field needs no relocation: the buffer is already
			// zero-filled, which is the correct null-reference encoding
			// both compressed and uncompressed.
			return nil
		}
		if mp, ok := value.(MethodPointer); ok {
			return h.emitMethodPointer(buf, at, mp)
		}
		return h.emitReference(buf, at, info, value)
	}
	return writePrimitive(buf, at, kind, value)
}

// emitReference implements spec.md §4.3 "Emitting a reference".
func (h *NativeImageHeap) emitReference(buf *RelocatableBuffer, at int64, from *ObjectInfo, target interface{}) error {
	return h.emitEncodedReference(buf, at, from, target, 0)
}

// emitHubReference implements spec.md §4.3 "Emitting a DynamicHub
// reference": the same encoding, with the object-header bits OR'ed in.
func (h *NativeImageHeap) emitHubReference(buf *RelocatableBuffer, at int64, from *ObjectInfo, target interface{}, headerBits uint64) error {
	return h.emitEncodedReference(buf, at, from, target, headerBits)
}

func (h *NativeImageHeap) emitEncodedReference(buf *RelocatableBuffer, at int64, from *ObjectInfo, target interface{}, headerBits uint64) error {
	targetInfo, ok := h.identityMap[target]
	if !ok {
		label := "<root>"
		chain := []string{label}
		if from != nil {
			label = describeObjectInfo(from)
			chain = reasonChainStrings(from.Reason, label)
		}
		return newLateMutationError(fmt.Sprintf("reference to %v from %s has no Object Info (object changed after analysis)", target, label), chain)
	}

	if h.config.UseHeapBase {
		offset, ok := targetInfo.OffsetInSection()
		if !ok {
			return newAlignmentViolationError(fmt.Sprintf("target %s has no section offset assigned", targetInfo.ID))
		}
		value := (uint64(offset) >> h.config.CompressionShift) | headerBits
		buf.WriteUint64(at, value)
		return nil
	}

	wordSize := uint8(h.layout.WordBytes)
	if headerBits != 0 {
		buf.addDirectWithAddend(at, wordSize, headerBits, targetInfo.ID)
	} else {
		buf.addDirectNoAddend(at, wordSize, targetInfo.ID)
	}
	return nil
}

// emitMethodPointer implements spec.md §4.3 "Emitting a method pointer":
// a direct relocation without addend, recorded only when the method's
// code-offset is valid (compiled and vtable-reachable); CodeOffset's value
// itself is not written, only used as the validity gate (scenario S4).
func (h *NativeImageHeap) emitMethodPointer(buf *RelocatableBuffer, at int64, mp MethodPointer) error {
	if _, ok := mp.CodeOffset(); !ok {
		return newUnknownPointerRelocationError(fmt.Sprintf("method pointer at offset %d is not compiled or not vtable-reachable", at))
	}
	buf.addDirectNoAddend(at, uint8(h.layout.WordBytes), mp.Symbol())
	return nil
}

// writePrimitive implements spec.md §4.3 "Emitting a primitive": dispatch
// by kind to fixed-width little-endian writes.
func writePrimitive(buf *RelocatableBuffer, at int64, kind StorageKind, value interface{}) error {
	switch kind {
	case KindBoolean:
		v, _ := value.(bool)
		if v {
			buf.WriteByte(at, 1)
		} else {
			buf.WriteByte(at, 0)
		}
	case KindByte:
		buf.WriteByte(at, toByte(value))
	case KindChar, KindShort:
		buf.WriteUint16(at, toUint16(value))
	case KindInt, KindFloat:
		buf.WriteUint32(at, toUint32(value))
	case KindLong, KindDouble, KindWord:
		buf.WriteUint64(at, toUint64(value))
	default:
		return newUnrecognizedMoveTypeError(fmt.Sprintf("primitive storage kind %v", kind))
	}
	return nil
}

func toByte(v interface{}) byte {
	switch n := v.(type) {
	case int8:
		return byte(n)
	case uint8:
		return n
	case int:
		return byte(n)
	default:
		return 0
	}
}

func toUint16(v interface{}) uint16 {
	switch n := v.(type) {
	case int16:
		return uint16(n)
	case uint16:
		return n
	case int:
		return uint16(n)
	default:
		return 0
	}
}

func toUint32(v interface{}) uint32 {
	switch n := v.(type) {
	case int32:
		return uint32(n)
	case uint32:
		return n
	case float32:
		return math.Float32bits(n)
	case int:
		return uint32(n)
	default:
		return 0
	}
}

func toUint64(v interface{}) uint64 {
	switch n := v.(type) {
	case int64:
		return uint64(n)
	case uint64:
		return n
	case float64:
		return math.Float64bits(n)
	case int:
		return uint64(n)
	default:
		return 0
	}
}
