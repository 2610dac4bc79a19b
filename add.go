package heapbuilder

import "fmt"

// classObjectRef wraps a host class so add() can detect "this reference
// is typed java.lang.Class" without confusing it with a bare class object
// reached by programming error (spec.md §4.1 step 2). Drivers that expose
// a field whose static type is java.lang.Class should enqueue the field
// value wrapped this way; the builder replaces it with the class's
// DynamicHub and, if the hub's ObjectInfo already exists, performs the
// identity-hash upgrade of spec.md §3 / scenario S6.
type classObjectRef struct {
	class interface{}
}

// WrapClassReference is the public constructor for classObjectRef, used
// by metadata implementations and tests to model a static or instance
// field typed java.lang.Class.
func WrapClassReference(class interface{}) interface{} {
	return &classObjectRef{class: class}
}

// add implements spec.md §4.1's `add` algorithm.
func (h *NativeImageHeap) add(original interface{}, parentCanonicalizable, immutableFromParent bool, reason Reason) error {
	if err := h.addPhase.RequireAllowed("add"); err != nil {
		return err
	}
	if original == nil {
		return nil
	}
	if h.meta.IsWord(original) {
		return nil
	}
	if h.blacklist.contains(original) {
		// Embedded in a hybrid parent (spec.md §3 Blacklist): it must never
		// become a standalone ObjectInfo, even if some other field also
		// references it directly (spec.md §8 property 4).
		return nil
	}

	if ref, isRef := original.(*classObjectRef); isRef {
		return h.addClassReference(ref, reason)
	}

	if h.meta.IsClassObject(original) {
		return newUnrecognizedMoveTypeError(fmt.Sprintf("%v (raw class object; expected a DynamicHub or a wrapped class reference)", original))
	}

	hashCode, hasProvider := h.meta.IdentityHashCodeProvider(original)
	if !hasProvider {
		hashCode = h.meta.HostIdentityHashCode(original)
	}

	canonicalizable, hostString := h.classifyCanonicalizability(original, parentCanonicalizable)
	if hostString != nil {
		if err := h.intern.insert(hostString.Value); err != nil {
			return err
		}
	}

	canonical := original
	if canonicalizable {
		typeName := h.typeNameOf(original)
		if key, ok := computeCanonicalizationKey(typeName, original); ok {
			canonical = h.canonMap.lookupOrInsert(key, original)
		}
	}

	if info, ok := h.identityMap[canonical]; ok {
		if canonical != original {
			h.identityMap[original] = info
		}
		return nil
	}

	return h.addToImage(canonical, original, hashCode, canonicalizable, immutableFromParent, reason)
}

// addClassReference handles a field whose static type is java.lang.Class:
// it always resolves to the class's DynamicHub, upgrading the hub's
// identity hash from the class side if the hub is already present.
func (h *NativeImageHeap) addClassReference(ref *classObjectRef, reason Reason) error {
	h.meta.NoteClassReference(ref.class)
	hub := h.meta.DynamicHubOf(ref.class)

	classHash, hasProvider := h.meta.IdentityHashCodeProvider(ref.class)
	if !hasProvider {
		classHash = h.meta.HostIdentityHashCode(ref.class)
	}

	if info, ok := h.identityMap[hub]; ok {
		info.upgradeIdentityHashCode(classHash, true)
		return nil
	}

	if err := h.add(hub, false, false, reason); err != nil {
		return err
	}
	if info, ok := h.identityMap[hub]; ok {
		info.upgradeIdentityHashCode(classHash, true)
	}
	return nil
}

// classifyCanonicalizability implements spec.md §4.1 step 4. It returns
// the non-nil *HostString when original is a string, so the caller can
// record interning separately.
func (h *NativeImageHeap) classifyCanonicalizability(original interface{}, parentCanonicalizable bool) (bool, *HostString) {
	if s, ok := original.(*HostString); ok {
		if h.meta.IsInternedString(s) {
			return true, s
		}
		return classify(h.meta, original, parentCanonicalizable), nil
	}
	return classify(h.meta, original, parentCanonicalizable), nil
}

func (h *NativeImageHeap) typeNameOf(obj interface{}) string {
	if typ, ok := h.meta.LookupType(obj); ok {
		return typ.Name()
	}
	return fmt.Sprintf("%T", obj)
}

// addToImage implements spec.md §4.1's "Add-to-image" procedure.
func (h *NativeImageHeap) addToImage(canonical, original interface{}, hashCode int32, canonicalizable, immutableFromParent bool, reason Reason) error {
	typ, found := h.meta.LookupType(canonical)
	if !found || !typ.IsInstantiated() {
		name := h.typeNameOf(canonical)
		chain := reasonChainStrings(reason, name)
		return newUnreachableTypeError(name, chain)
	}

	switch {
	case typ.IsInstanceClass():
		return h.addInstanceToImage(typ, canonical, original, hashCode, canonicalizable, immutableFromParent, reason)
	case typ.IsArray():
		return h.addArrayToImage(typ, canonical, original, hashCode, canonicalizable, immutableFromParent, reason)
	default:
		return newUnrecognizedMoveTypeError(fmt.Sprintf("type %q (neither instance nor array)", typ.Name()))
	}
}

func (h *NativeImageHeap) addInstanceToImage(typ ImageType, canonical, original interface{}, hashCode int32, canonicalizable, immutableFromParent bool, reason Reason) error {
	fields := typ.InstanceFields()
	hybrid, isHybrid := typ.HybridLayout()

	var hybridArrayField, hybridBitsetField *ImageField
	var hybridArrayValue, hybridBitsetValue interface{}
	var hybridArrayLength int64

	written := false
	hasReference := false

	if isHybrid {
		layout := h.hybridCache.getOrBuild(typ.Name(), func() HybridLayoutProvider { return hybrid })
		hybrid = layout
	}

	for i := range fields {
		f := &fields[i]
		if isHybrid && f.Name == hybrid.ArrayFieldName() {
			hybridArrayField = f
			if f.Written {
				written = true
			}
			continue
		}
		if isHybrid {
			if bsName, ok := hybrid.BitsetFieldName(); ok && f.Name == bsName {
				hybridBitsetField = f
				continue
			}
		}
		if f.Kind.IsReference() {
			hasReference = true
		}
		if !f.Final && f.Written {
			written = true
		}
	}

	var size int64
	if isHybrid {
		if hybrid.ArrayElementKind().IsReference() {
			hasReference = true
		}
		if hybridArrayField == nil {
			return newUnrecognizedMoveTypeError(fmt.Sprintf("hybrid field %q missing on class %q", hybrid.ArrayFieldName(), typ.Name()))
		}
		val, err := hybridArrayField.ReadValue(canonical)
		if err != nil {
			return wrapf(err, "reading hybrid array field %q of %q", hybridArrayField.Name, typ.Name())
		}
		hybridArrayValue = val
		hybridArrayLength = arrayLengthOf(val)
		if hybridBitsetField != nil {
			bsVal, err := hybridBitsetField.ReadValue(canonical)
			if err != nil {
				return wrapf(err, "reading hybrid bitset field %q of %q", hybridBitsetField.Name, typ.Name())
			}
			hybridBitsetValue = bsVal
		}
		size = hybrid.TotalSize(hybridArrayLength)
	} else {
		size = typ.InstanceSizeFromLayoutEncoding()
	}
	size = h.layout.ReferenceAligned(size)

	monitorOffset := typ.MonitorFieldOffset()
	forcedByMonitor := monitorOffset != 0
	if forcedByMonitor {
		written = true
		hasReference = true
	}

	immutable := decideImmutable(canonical, immutableFromParent, canonicalizable, hashCode, h.knownImmutable)
	if forcedByMonitor {
		immutable = false
	}

	partitionKind, err := h.selectPartition(written, hasReference, immutable)
	if err != nil {
		return err
	}

	info := h.newObjectInfo(canonical, typ, partitionKind, size, hashCode, reason, immutable)
	h.insertIdentity(canonical, original, info)
	h.maybeUpgradeFromClassObject(canonical, info)
	log.WithFields(logFields{"type": typ.Name(), "partition": partitionKind, "size": size}).Debug("added instance to image")

	if isHybrid {
		h.blacklist.add(hybridArrayValue)
		if hybridBitsetValue != nil {
			h.blacklist.add(hybridBitsetValue)
		}
		if hybrid.ArrayElementKind().IsReference() {
			if refArr, ok := hybridArrayValue.(ReferenceArray); ok {
				for _, elem := range refArr.ArrayElements() {
					h.enqueueChild(elem, canonicalizable, false, info)
				}
			}
		}
	}

	h.enqueueChild(h.meta.DynamicHubOf(canonical), canonicalizable, false, info)

	childImmutable := isCanonicalString(canonical, canonicalizable)
	for i := range fields {
		f := &fields[i]
		if hybridArrayField != nil && f.Name == hybridArrayField.Name {
			continue
		}
		if hybridBitsetField != nil && f.Name == hybridBitsetField.Name {
			continue
		}
		if !f.Kind.IsReference() {
			continue
		}
		value, err := f.ReadValue(canonical)
		if err != nil {
			return wrapf(err, "reading field %q of %q", f.Name, typ.Name())
		}
		h.enqueueChild(value, canonicalizable, childImmutable, info)
	}

	return nil
}

func (h *NativeImageHeap) addArrayToImage(typ ImageType, canonical, original interface{}, hashCode int32, canonicalizable, immutableFromParent bool, reason Reason) error {
	componentKind := typ.ComponentKind()
	length := arrayLengthOf(canonical)
	size := h.layout.ReferenceAligned(h.layout.ArrayElementOffset(componentKind, length))

	written := true
	hasReference := componentKind.IsReference()

	immutable := decideImmutable(canonical, immutableFromParent, canonicalizable, hashCode, h.knownImmutable)

	partitionKind, err := h.selectPartition(written, hasReference, immutable)
	if err != nil {
		return err
	}

	info := h.newObjectInfo(canonical, typ, partitionKind, size, hashCode, reason, immutable)
	h.insertIdentity(canonical, original, info)
	h.maybeUpgradeFromClassObject(canonical, info)
	log.WithFields(logFields{"type": typ.Name(), "partition": partitionKind, "size": size, "length": length}).Debug("added array to image")

	h.enqueueChild(h.meta.DynamicHubOf(canonical), canonicalizable, false, info)

	if hasReference {
		if refArr, ok := canonical.(ReferenceArray); ok {
			for _, elem := range refArr.ArrayElements() {
				h.enqueueChild(elem, canonicalizable, false, info)
			}
		}
	}

	return nil
}

func (h *NativeImageHeap) newObjectInfo(canonical interface{}, typ ImageType, kind PartitionKind, size int64, hashCode int32, reason Reason, immutable bool) *ObjectInfo {
	info := &ObjectInfo{
		ID:        h.allocObjectId(),
		Object:    canonical,
		Class:     typ,
		Partition: h.partitions[kind],
		Size:      size,
		IdentityHashCode: hashCode,
		Reason:    reason,
		Immutable: immutable,
	}
	info.OffsetInPartition = info.Partition.reserve(size)
	return info
}

// maybeUpgradeFromClassObject implements the DynamicHub side of spec.md
// §3's identity-hash upgrade (scenario S6): if canonical is itself a hub
// with a corresponding host java.lang.Class, that class's hash always
// wins, whether canonical was reached through the class reference first
// (handled in addClassReference) or through its own class's DynamicHub
// traversal first (handled here).
func (h *NativeImageHeap) maybeUpgradeFromClassObject(canonical interface{}, info *ObjectInfo) {
	classObj, ok := h.meta.ClassObjectOf(canonical)
	if !ok {
		return
	}
	classHash, hasProvider := h.meta.IdentityHashCodeProvider(classObj)
	if !hasProvider {
		classHash = h.meta.HostIdentityHashCode(classObj)
	}
	info.upgradeIdentityHashCode(classHash, true)
}

func (h *NativeImageHeap) insertIdentity(canonical, original interface{}, info *ObjectInfo) {
	h.identityMap[canonical] = info
	if original != canonical {
		h.identityMap[original] = info
	}
}

func (h *NativeImageHeap) enqueueChild(value interface{}, parentCanonicalizable, immutableFromParent bool, parent *ObjectInfo) {
	if value == nil {
		return
	}
	if _, isMethod := value.(MethodPointer); isMethod {
		// A method pointer is spec.md §4.3's "only non-data relocation": it
		// targets a fixed, pre-existing method symbol, never an image
		// object, so it must never get an ObjectInfo of its own. write.go
		// resolves it directly from the element value at write time.
		return
	}
	h.worklist.push(addTask{
		original:              value,
		parentCanonicalizable: parentCanonicalizable,
		immutableFromParent:   immutableFromParent,
		reason:                Reason{Parent: parent},
	})
}

// selectPartition implements spec.md §4.1 step 2.
func (h *NativeImageHeap) selectPartition(written, references, immutable bool) (PartitionKind, error) {
	if h.config.UseOnlyWritableBootImageHeap {
		if h.config.SpawnIsolates {
			return 0, newConfigError("use_only_writable_boot_image_heap is incompatible with spawn_isolates")
		}
		return WritableReference, nil
	}
	if !written || immutable {
		if references {
			return ReadOnlyReference, nil
		}
		return ReadOnlyPrimitive, nil
	}
	if references {
		return WritableReference, nil
	}
	return WritablePrimitive, nil
}

// decideImmutable implements spec.md §4.1 add-to-image step 1.
func decideImmutable(obj interface{}, immutableFromParent, canonicalizable bool, hashCode int32, knownImmutable map[interface{}]struct{}) bool {
	if immutableFromParent {
		return true
	}
	if _, isString := obj.(*HostString); isString {
		return hashCode != 0
	}
	if _, ok := knownImmutable[obj]; ok {
		return true
	}
	return canonicalizable
}

func isCanonicalString(obj interface{}, canonicalizable bool) bool {
	_, isString := obj.(*HostString)
	return isString && canonicalizable
}

func arrayLengthOf(obj interface{}) int64 {
	switch v := obj.(type) {
	case ReferenceArray:
		return int64(len(v.ArrayElements()))
	case PrimitiveArray:
		width := v.ArrayKind().ByteSize()
		if width == 0 {
			return 0
		}
		return int64(len(v.ArrayBytes())) / width
	default:
		return 0
	}
}

// reasonChainStrings reconstructs a provenance chain the way spec.md §7
// requires: walk ObjectInfo.Reason back to a root tag. selfLabel
// describes the object that failed to be added (it has no ObjectInfo of
// its own yet, so it cannot be looked up).
func reasonChainStrings(reason Reason, selfLabel string) []string {
	chain := []string{selfLabel}
	cur := reason
	for {
		if cur.isRoot() {
			chain = append(chain, fmt.Sprintf("root(%s)", cur.RootTag))
			break
		}
		chain = append(chain, describeObjectInfo(cur.Parent))
		cur = cur.Parent.Reason
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}
