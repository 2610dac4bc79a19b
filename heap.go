package heapbuilder

import "fmt"

// NativeImageHeap is spec.md §2's top-level component: it owns the
// partitions, the identity map from host object to ObjectInfo, the
// canonicalization map, the intern table, the blacklist, the hybrid
// layout cache, and orchestrates traversal, partitioning, and writing.
type NativeImageHeap struct {
	config Config
	meta   Metadata
	layout ByteLayout

	addPhase *Phase
	intern   *internTable

	identityMap map[interface{}]*ObjectInfo
	canonMap    *canonicalizationMap
	blacklist   *blacklist
	hybridCache *hybridLayoutCache

	knownImmutable map[interface{}]struct{}

	partitions [4]*HeapPartition
	worklist   *addObjectWorklist

	internArrayAdded bool
	nextObjectSeq    uint64
}

// allocObjectId hands out the next deterministic symbol identity, in
// add-to-image insertion order (spec.md §8 property 7).
func (h *NativeImageHeap) allocObjectId() ImageObjectId {
	id := newImageObjectIdFromSequence(h.nextObjectSeq)
	h.nextObjectSeq++
	return id
}

// NewNativeImageHeap constructs an empty builder for the given
// configuration and metadata view. Both addPhase and intern_phase start
// in the "before" state.
func NewNativeImageHeap(cfg Config, meta Metadata) (*NativeImageHeap, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	h := &NativeImageHeap{
		config:         cfg,
		meta:           meta,
		layout:         meta.Layout(),
		addPhase:       NewPhase("add_phase"),
		intern:         newInternTable(),
		identityMap:    make(map[interface{}]*ObjectInfo),
		canonMap:       newCanonicalizationMap(),
		blacklist:      newBlacklist(),
		hybridCache:    newHybridLayoutCache(),
		knownImmutable: make(map[interface{}]struct{}),
		worklist:       newAddObjectWorklist(),
	}
	for _, kind := range AllPartitionKinds {
		h.partitions[kind] = NewHeapPartition(kind)
	}
	return h, nil
}

// RegisterImmutable asserts add_phase == before and adds obj to the
// known-immutable set (spec.md §4.1).
func (h *NativeImageHeap) RegisterImmutable(obj interface{}) error {
	if err := h.addPhase.RequireBefore("register_immutable"); err != nil {
		return err
	}
	h.knownImmutable[obj] = struct{}{}
	return nil
}

// AddInitialObjects transitions add_phase and intern_phase to allowed,
// then enqueues the two static-field arrays plus every statically-held
// object field that is both written and accessed by the analyzer
// (spec.md §4.1).
func (h *NativeImageHeap) AddInitialObjects(debug bool) error {
	SetVerbose(debug)
	if err := h.addPhase.Allow(); err != nil {
		return err
	}
	if err := h.intern.phase.Allow(); err != nil {
		return err
	}

	primitiveArray, referenceArray, fields := h.meta.StaticRoots()

	log.WithFields(logFields{"static_fields": len(fields)}).Debug("adding initial objects")

	if primitiveArray != nil {
		h.worklist.push(addTask{original: primitiveArray, reason: Reason{RootTag: "staticPrimitiveFields"}})
	}
	if referenceArray != nil {
		h.worklist.push(addTask{original: referenceArray, reason: Reason{RootTag: "staticObjectFields"}})
	}
	for _, f := range fields {
		if !f.Kind.IsReference() {
			continue
		}
		value, err := f.ReadValue()
		if err != nil {
			return wrapf(err, "reading static field %q", f.Name)
		}
		if value == nil {
			continue
		}
		h.worklist.push(addTask{original: value, reason: Reason{RootTag: "staticField:" + f.Name}})
	}

	return h.drainWorklist()
}

// AddTrailingObjects drains the worklist; if interning is in use, freezes
// it, adds the sorted intern array and its hub, and drains again; then
// closes both phases. Asserts the worklist is empty at exit (spec.md
// §4.1).
func (h *NativeImageHeap) AddTrailingObjects(debug bool) error {
	SetVerbose(debug)
	if err := h.drainWorklist(); err != nil {
		return err
	}

	if len(h.intern.strings) > 0 && !h.internArrayAdded {
		sorted, err := h.intern.freeze()
		if err != nil {
			return err
		}
		internArray := h.meta.NewInternedStringArray(sorted)
		h.worklist.push(addTask{original: internArray, reason: Reason{RootTag: "internedStrings"}})
		h.internArrayAdded = true
		if err := h.drainWorklist(); err != nil {
			return err
		}
	} else if !h.intern.phase.IsAfter() {
		if _, err := h.intern.freeze(); err != nil {
			return err
		}
	}

	if err := h.addPhase.Disallow(); err != nil {
		return err
	}
	if !h.worklist.empty() {
		return newAlignmentViolationError(fmt.Sprintf("worklist not empty at addTrailingObjects exit: %d pending", h.worklist.len()))
	}
	return nil
}

// drainWorklist pops tasks until the worklist is empty, calling add for
// each.
func (h *NativeImageHeap) drainWorklist() error {
	for {
		task, ok := h.worklist.pop()
		if !ok {
			return nil
		}
		if err := h.add(task.original, task.parentCanonicalizable, task.immutableFromParent, task.reason); err != nil {
			return err
		}
	}
}

// GetObjectInfo returns the ObjectInfo for a host object, if it has been
// added (directly or as a canonicalization target).
func (h *NativeImageHeap) GetObjectInfo(obj interface{}) (*ObjectInfo, bool) {
	info, ok := h.identityMap[obj]
	return info, ok
}

// GetReadonlySize is the sum of the two read-only partitions, without
// padding between them.
func (h *NativeImageHeap) GetReadonlySize() int64 {
	return h.partitions[ReadOnlyPrimitive].Size() + h.partitions[ReadOnlyReference].Size()
}

// GetWritableSize is the sum of the two writable partitions, without
// padding between them.
func (h *NativeImageHeap) GetWritableSize() int64 {
	return h.partitions[WritablePrimitive].Size() + h.partitions[WritableReference].Size()
}

// SetReadonlySection assigns the section and propagates the reference
// partition's offset to start immediately after the primitive
// partition's size (spec.md §4.1).
func (h *NativeImageHeap) SetReadonlySection(name string, offset int64) error {
	if err := h.partitions[ReadOnlyPrimitive].setSection(name, offset); err != nil {
		return err
	}
	refOffset := offset + h.partitions[ReadOnlyPrimitive].Size()
	return h.partitions[ReadOnlyReference].setSection(name, refOffset)
}

// SetWritableSection does the same for the writable pair.
func (h *NativeImageHeap) SetWritableSection(name string, offset int64) error {
	if err := h.partitions[WritablePrimitive].setSection(name, offset); err != nil {
		return err
	}
	refOffset := offset + h.partitions[WritablePrimitive].Size()
	return h.partitions[WritableReference].setSection(name, refOffset)
}

// Partition exposes one of the four partitions for diagnostics and
// testing.
func (h *NativeImageHeap) Partition(kind PartitionKind) *HeapPartition {
	return h.partitions[kind]
}

// ReasonChain reconstructs the provenance chain for obj by walking
// ObjectInfo.Reason back to a root tag (spec.md §7). This is the
// "reason-chain reconstruction as a first-class diagnostic" feature from
// SPEC_FULL.md. Errors that carry a provenance chain build it with this
// method or with reasonChainStrings, which performs the walk itself; the
// phase, alignment, pointer-relocation and move-type errors carry none.
func (h *NativeImageHeap) ReasonChain(obj interface{}) []string {
	info, ok := h.identityMap[obj]
	if !ok {
		return []string{fmt.Sprintf("<unreachable: %v>", obj)}
	}
	return reasonChainStrings(info.Reason, describeObjectInfo(info))
}

func describeObjectInfo(info *ObjectInfo) string {
	name := "?"
	if info.Class != nil {
		name = info.Class.Name()
	}
	return fmt.Sprintf("%s@%s", name, info.ID)
}
