package heapbuilder

// Reason records why an object was added to the image: either a parent
// ObjectInfo (the object that referenced it) or a root tag identifying
// which call to AddInitialObjects/AddTrailingObjects introduced it.
// spec.md §3: "free-form provenance ... used only for error messages."
type Reason struct {
	Parent  *ObjectInfo
	RootTag string
}

func (r Reason) isRoot() bool {
	return r.Parent == nil
}

// ObjectInfo is the sole in-image identity of a canonical image object:
// spec.md §3 "Object Info".
type ObjectInfo struct {
	ID ImageObjectId

	// Object is the canonical host object this record represents. Stored
	// as interface{} because the builder is agnostic to host object
	// shape; Metadata is what interprets it.
	Object interface{}

	Class ImageType

	Partition *HeapPartition

	// OffsetInPartition and Size are reference-aligned and, once set, are
	// immutable for the lifetime of the record.
	OffsetInPartition int64
	Size              int64

	// IdentityHashCode may be upgraded exactly once: from a DynamicHub
	// derived value to a java.lang.Class derived value, when the same
	// canonical object is reached from both hosts (spec.md §3, scenario
	// S6). hashUpgraded tracks whether that single upgrade has happened.
	IdentityHashCode int32
	hashUpgraded     bool

	// hashFromClassObject marks whether the current IdentityHashCode came
	// from the "class object" side of the upgrade path. A second attempted
	// upgrade is rejected by hashUpgraded, not by this flag.
	hashFromClassObject bool

	Reason Reason

	// Immutable records the immutability decision made in add-to-image,
	// which took part in selecting the object's partition. The builder
	// does not read it again after that.
	Immutable bool
}

// OffsetInSection returns the object's absolute offset within its
// partition's section, if the partition has been assigned one.
func (o *ObjectInfo) OffsetInSection() (int64, bool) {
	sectionOffset, ok := o.Partition.SectionOffset()
	if !ok {
		return 0, false
	}
	return sectionOffset + o.OffsetInPartition, true
}

// upgradeIdentityHashCode implements the single permitted upgrade path
// from spec.md §3: a DynamicHub-derived hash may be replaced, exactly
// once, by a java.lang.Class-derived hash for the same canonical image
// object. fromClassObject is true when the new hash comes from the class
// side of the pair.
func (o *ObjectInfo) upgradeIdentityHashCode(newHash int32, fromClassObject bool) {
	if !fromClassObject {
		// A DynamicHub-side hash never overrides an existing value; the
		// first writer (whichever side is seen first) wins unless the
		// class-object side arrives later.
		return
	}
	if o.hashUpgraded {
		return
	}
	o.IdentityHashCode = newHash
	o.hashUpgraded = true
	o.hashFromClassObject = true
}
