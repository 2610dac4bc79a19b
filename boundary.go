package heapbuilder

import "fmt"

// writeStaticFields implements the "then writes static-field payloads" step
// of spec.md §4.1's write_heap: every statically-held field the analyzer
// marked written and accessed gets its current value written at the
// location the metadata layer assigned it.
func (h *NativeImageHeap) writeStaticFields(roBuf, rwBuf *RelocatableBuffer) error {
	_, _, fields := h.meta.StaticRoots()
	for _, f := range fields {
		value, err := f.ReadValue()
		if err != nil {
			return wrapf(err, "reading static field %q", f.Name)
		}
		if value == nil {
			continue
		}

		arrInfo, ok := h.identityMap[f.ArrayRoot]
		if !ok {
			return newLateMutationError(
				fmt.Sprintf("static field %q's backing array has no Object Info", f.Name),
				h.ReasonChain(f.ArrayRoot))
		}
		base, ok := arrInfo.OffsetInSection()
		if !ok {
			return newAlignmentViolationError(fmt.Sprintf("static field %q's backing array has no section offset assigned", f.Name))
		}
		at := base + h.layout.ArrayElementOffset(f.Kind, f.Index)

		buf := roBuf
		if arrInfo.Partition.Kind.Writable() {
			buf = rwBuf
		}

		if f.Kind.IsReference() {
			if err := h.emitReference(buf, at, arrInfo, value); err != nil {
				return err
			}
			continue
		}
		if err := writePrimitive(buf, at, f.Kind, value); err != nil {
			return err
		}
	}
	return nil
}

// partitionBounds tracks the first- and last-placed Object Info within one
// partition, by offset_in_section.
type partitionBounds struct {
	first, last *ObjectInfo
}

// patchBoundaries implements spec.md §4.5: scan the identity map once,
// find the min/max offset_in_section per partition, and overwrite the
// corresponding static fields of the well-known runtime-info object.
func (h *NativeImageHeap) patchBoundaries(roBuf, rwBuf *RelocatableBuffer) error {
	if h.meta.WellKnownRuntimeInfoObject() == nil {
		// No driver has wired up a runtime-info object to carry the
		// boundary markers; nothing to patch.
		return nil
	}

	seen := make(map[*ObjectInfo]struct{})
	var perPartition [4]partitionBounds

	for _, info := range h.identityMap {
		if _, ok := seen[info]; ok {
			continue
		}
		seen[info] = struct{}{}

		offset, ok := info.OffsetInSection()
		if !ok {
			continue
		}
		b := &perPartition[info.Partition.Kind]
		if b.first == nil {
			b.first, b.last = info, info
			continue
		}
		firstOffset, _ := b.first.OffsetInSection()
		lastOffset, _ := b.last.OffsetInSection()
		if offset < firstOffset {
			b.first = info
		}
		if offset > lastOffset {
			b.last = info
		}
	}

	for _, kind := range AllPartitionKinds {
		b := perPartition[kind]
		if b.first == nil {
			continue
		}
		if err := h.patchBoundaryField(roBuf, rwBuf, kind.String()+"First", b.first); err != nil {
			return err
		}
		if err := h.patchBoundaryField(roBuf, rwBuf, kind.String()+"Last", b.last); err != nil {
			return err
		}
	}
	return nil
}

func (h *NativeImageHeap) patchBoundaryField(roBuf, rwBuf *RelocatableBuffer, name string, target *ObjectInfo) error {
	loc, ok := h.meta.BoundaryFieldLocation(name)
	if !ok {
		return newAlignmentViolationError(fmt.Sprintf("no boundary field location registered for %q", name))
	}
	receiverInfo, ok := h.identityMap[loc.Receiver]
	if !ok {
		return newLateMutationError(
			fmt.Sprintf("boundary field %q's receiver has no Object Info", name),
			h.ReasonChain(loc.Receiver))
	}
	base, ok := receiverInfo.OffsetInSection()
	if !ok {
		return newAlignmentViolationError(fmt.Sprintf("boundary field %q's receiver has no section offset assigned", name))
	}
	buf := roBuf
	if receiverInfo.Partition.Kind.Writable() {
		buf = rwBuf
	}
	return h.emitReference(buf, base+loc.Offset, receiverInfo, target.Object)
}
