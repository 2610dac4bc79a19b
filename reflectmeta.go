package heapbuilder

import (
	"fmt"
	"reflect"
	"sync"
)

// This file is the one place in the package that uses reflection (spec.md
// §9 Design Notes: "the metadata layer must offer typed accessors ... the
// builder never needs untyped reflection once the metadata interface is
// present"). ReflectMetadata is a concrete Metadata built over plain Go
// structs and struct tags, used by the package's tests and by the
// cmd/imageheap demo driver in place of a real ahead-of-time analyzer.
//
// A host class is any Go struct type. Instance fields are discovered via
// the `heap:"..."` struct tag:
//
//	type Point struct {
//		X int32 `heap:"kind=int,written"`
//		Y int32 `heap:"kind=int,written"`
//	}
//
// Recognized tag keys: kind (object|boolean|byte|char|short|int|long|float|
// double|word), written, final, accessed (every tagged field is treated as
// accessed, with or without this key). Reference-typed fields (kind=object) hold interface{} values
// pointing at other registered host objects.

// Word marks a machine-sized integer wrapper so IsWord can recognize it
// without a type switch over every integer width in client code.
type Word struct {
	Value int64
}

// ReflectMetadata implements Metadata over a statically registered set of
// Go struct types.
type ReflectMetadata struct {
	mu sync.Mutex

	layout ByteLayout

	types map[reflect.Type]*reflectType
	hubs  map[reflect.Type]*reflectHub // one hub per registered class

	hashCodes  map[interface{}]int32
	nextHash   int32

	internedStrings map[string]*HostString

	knownCanonicalizable    []reflect.Type
	knownNonCanonicalizable []reflect.Type

	hubHandles map[reflect.Type]*hubHandle

	// classObjects records the host java.lang.Class representative noted
	// for a type via NoteClassReference. Most registered classes never
	// appear here: only ones actually reached through a classObjectRef
	// field have a known class-object side (scenario S6).
	classObjects map[reflect.Type]interface{}

	staticFields []StaticFieldRoot
	staticPrimitiveArray interface{}
	staticReferenceArray interface{}

	runtimeInfo  interface{}
	boundaryLocs map[string]BoundaryLocation
}

// NewReflectMetadata constructs an empty registry using the 8-byte
// word-size layout spec.md calls "the exercised setting."
func NewReflectMetadata() *ReflectMetadata {
	m := &ReflectMetadata{
		layout: ByteLayout{
			WordBytes:           8,
			Alignment:           8,
			HubOffset:           0,
			ArrayLengthOffset:   8,
			ArrayHashCodeOffset: 12,
			ArrayBaseOffset:     16,
		},
		types:           make(map[reflect.Type]*reflectType),
		hubs:            make(map[reflect.Type]*reflectHub),
		hubHandles:      make(map[reflect.Type]*hubHandle),
		classObjects:    make(map[reflect.Type]interface{}),
		hashCodes:       make(map[interface{}]int32),
		internedStrings: make(map[string]*HostString),
		boundaryLocs:    make(map[string]BoundaryLocation),
	}
	m.registerHubClass()
	m.registerBuiltinReferenceArrayClass()
	// Host strings are an instance class with no heap-tagged fields, and
	// equal-content copies canonicalize to one image object.
	_ = m.RegisterInstanceClass("String", &HostString{}, 0, nil)
	m.RegisterCanonicalizable(&HostString{})
	return m
}

// registerBuiltinReferenceArrayClass gives GoReferenceArray a lookupable
// ImageType up front, the way registerHubClass does for *hubHandle: it
// backs both NewInternedStringArray's result and, conventionally, a
// driver's static reference-field placeholder array, so it must always be
// resolvable without a separate RegisterArrayClass call.
func (m *ReflectMetadata) registerBuiltinReferenceArrayClass() {
	goType := reflect.TypeOf(&GoReferenceArray{})
	rt := &reflectType{
		name:          "ObjectArray",
		goType:        goType,
		instantiated:  true,
		isArray:       true,
		componentKind: KindObject,
	}
	hub := &reflectHub{hashCodeOffset: m.layout.ArrayHashCodeOffset}
	rt.hubRef = hub
	m.types[goType] = rt
	m.hubs[goType] = hub
}

// NewInternedStringArray implements the Metadata hook AddTrailingObjects
// uses to materialize the sorted intern table as a real host object
// (spec.md §4.1: "builds the sorted intern array ... adds it"). The
// result is a GoReferenceArray, already registered above.
func (m *ReflectMetadata) NewInternedStringArray(values []string) interface{} {
	elems := make([]interface{}, len(values))
	for i, v := range values {
		elems[i] = &HostString{Value: v}
	}
	return &GoReferenceArray{Values: elems}
}

// registerHubClass gives *hubHandle itself a lookupable ImageType: every
// DynamicHubOf(obj) result becomes an image object like any other, so it
// must resolve through LookupType instead of failing add_to_image's
// is_instantiated check. Its own hub (the hub of the DynamicHub class) is
// the same cached singleton DynamicHubOf already returns for this goType,
// so it self-resolves rather than regressing infinitely.
func (m *ReflectMetadata) registerHubClass() {
	goType := reflect.TypeOf(&hubHandle{})
	rt := &reflectType{
		name:         "DynamicHub",
		goType:       goType,
		instantiated: true,
		instanceSize: 16,
	}
	hub := &reflectHub{hashCodeOffset: m.layout.ArrayHashCodeOffset}
	rt.hubRef = hub
	m.types[goType] = rt
	m.hubs[goType] = hub
}

func (m *ReflectMetadata) Layout() ByteLayout { return m.layout }

type reflectType struct {
	name          string
	goType        reflect.Type
	instantiated  bool
	isArray       bool
	componentKind StorageKind
	fields        []ImageField
	hybrid        HybridLayoutProvider
	monitorOffset int64
	instanceSize  int64
	hubRef        Hub
}

type reflectHub struct {
	headerBits     uint64
	hashCodeOffset int64
	layoutEncoding int64
}

func (hub *reflectHub) LayoutEncoding() int64 { return hub.layoutEncoding }
func (hub *reflectHub) HashCodeOffset() int64 { return hub.hashCodeOffset }
func (hub *reflectHub) HeaderBits() uint64    { return hub.headerBits }

func (t *reflectType) Name() string                               { return t.name }
func (t *reflectType) IsInstantiated() bool                       { return t.instantiated }
func (t *reflectType) IsInstanceClass() bool                      { return !t.isArray }
func (t *reflectType) IsArray() bool                              { return t.isArray }
func (t *reflectType) ComponentKind() StorageKind                 { return t.componentKind }
func (t *reflectType) InstanceFields() []ImageField                { return t.fields }
func (t *reflectType) InstanceSizeFromLayoutEncoding() int64       { return t.instanceSize }
func (t *reflectType) MonitorFieldOffset() int64                  { return t.monitorOffset }
func (t *reflectType) HybridLayout() (HybridLayoutProvider, bool) { return t.hybrid, t.hybrid != nil }

func (t *reflectType) Hub() Hub {
	// Populated by RegisterInstanceClass/RegisterArrayClass via the
	// enclosing ReflectMetadata; stored out-of-band to keep reflectType
	// free of a back-pointer to its owning registry.
	return t.hubRef
}

// RegisterInstanceClass derives field metadata from example's struct tags
// and registers it as an instantiated instance class. example must be a
// pointer to a struct; monitorFieldOffset of 0 means no monitor field.
func (m *ReflectMetadata) RegisterInstanceClass(name string, example interface{}, monitorFieldOffset int64, hybrid HybridLayoutProvider) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	goType := reflect.TypeOf(example)
	if goType.Kind() != reflect.Ptr || goType.Elem().Kind() != reflect.Struct {
		return newConfigError(fmt.Sprintf("RegisterInstanceClass(%q): example must be a pointer to a struct", name))
	}
	elem := goType.Elem()

	fields, size, err := deriveFields(elem)
	if err != nil {
		return wrapf(err, "deriving fields for %q", name)
	}

	rt := &reflectType{
		name:          name,
		goType:        goType,
		instantiated:  true,
		fields:        fields,
		hybrid:        hybrid,
		monitorOffset: monitorFieldOffset,
		instanceSize:  size,
	}
	hub := &reflectHub{hashCodeOffset: m.layout.ArrayHashCodeOffset, layoutEncoding: 1}
	rt.hubRef = hub
	m.types[goType] = rt
	m.hubs[goType] = hub
	return nil
}

// RegisterArrayClass registers a reference or primitive array shape.
func (m *ReflectMetadata) RegisterArrayClass(name string, example interface{}, componentKind StorageKind) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	goType := reflect.TypeOf(example)
	rt := &reflectType{
		name:          name,
		goType:        goType,
		instantiated:  true,
		isArray:       true,
		componentKind: componentKind,
	}
	hub := &reflectHub{hashCodeOffset: m.layout.ArrayHashCodeOffset, layoutEncoding: 2}
	rt.hubRef = hub
	m.types[goType] = rt
	m.hubs[goType] = hub
	return nil
}

func deriveFields(elem reflect.Type) ([]ImageField, int64, error) {
	var fields []ImageField
	offset := int64(16) // past hub, length/hash-sized header region

	for i := 0; i < elem.NumField(); i++ {
		sf := elem.Field(i)
		tag, ok := sf.Tag.Lookup("heap")
		if !ok {
			continue
		}
		spec, err := parseFieldTag(tag)
		if err != nil {
			return nil, 0, err
		}
		fieldIndex := i
		width := spec.kind.ByteSize()
		if spec.kind.IsReference() {
			width = 8
		}
		fields = append(fields, ImageField{
			Name:     sf.Name,
			Kind:     spec.kind,
			Accessed: spec.accessed,
			Written:  spec.written,
			Final:    spec.final,
			Offset:   offset,
			ReadValue: func(receiver interface{}) (interface{}, error) {
				v := reflect.ValueOf(receiver)
				if v.Kind() == reflect.Ptr {
					v = v.Elem()
				}
				fv := v.Field(fieldIndex)
				// A nil Go pointer boxed into interface{} is a non-nil
				// interface value (the type tag survives), which would
				// defeat every `value == nil` check downstream. Normalize
				// it to a true nil here, the only file allowed to know
				// the host representation is reflect-based.
				if fv.Kind() == reflect.Ptr && fv.IsNil() {
					return nil, nil
				}
				return fv.Interface(), nil
			},
		})
		offset += width
	}
	return fields, offset, nil
}

type fieldSpec struct {
	kind     StorageKind
	written  bool
	final    bool
	accessed bool
}

func parseFieldTag(tag string) (fieldSpec, error) {
	spec := fieldSpec{accessed: true}
	for _, part := range splitComma(tag) {
		switch {
		case part == "written":
			spec.written = true
		case part == "final":
			spec.final = true
		case part == "accessed":
			spec.accessed = true
		case len(part) > 5 && part[:5] == "kind=":
			k, err := parseKind(part[5:])
			if err != nil {
				return spec, err
			}
			spec.kind = k
		}
	}
	return spec, nil
}

func parseKind(s string) (StorageKind, error) {
	switch s {
	case "object":
		return KindObject, nil
	case "boolean":
		return KindBoolean, nil
	case "byte":
		return KindByte, nil
	case "char":
		return KindChar, nil
	case "short":
		return KindShort, nil
	case "int":
		return KindInt, nil
	case "long":
		return KindLong, nil
	case "float":
		return KindFloat, nil
	case "double":
		return KindDouble, nil
	case "word":
		return KindWord, nil
	default:
		return 0, newConfigError(fmt.Sprintf("unknown heap field kind %q", s))
	}
}

func splitComma(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

func (m *ReflectMetadata) LookupType(hostObject interface{}) (ImageType, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rt, ok := m.types[reflect.TypeOf(hostObject)]
	if !ok {
		return nil, false
	}
	return rt, true
}

func (m *ReflectMetadata) IdentityHashCodeProvider(obj interface{}) (int32, bool) {
	if hp, ok := obj.(interface{ IdentityHash() int32 }); ok {
		return hp.IdentityHash(), true
	}
	return 0, false
}

func (m *ReflectMetadata) HostIdentityHashCode(obj interface{}) int32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.hashCodes[obj]; ok {
		return h
	}
	m.nextHash++
	m.hashCodes[obj] = m.nextHash
	return m.nextHash
}

func (m *ReflectMetadata) IsWord(obj interface{}) bool {
	_, ok := obj.(*Word)
	return ok
}

func (m *ReflectMetadata) IsClassObject(obj interface{}) bool {
	_, ok := obj.(*hostClass)
	return ok
}

// hostClass is the raw "java.lang.Class" stand-in: a bare reference to one
// should never reach add() directly (spec.md §4.1 step 2); drivers that
// hold a class-typed field must wrap it with WrapClassReference instead.
type hostClass struct {
	goType reflect.Type
}

func (m *ReflectMetadata) DynamicHubOf(obj interface{}) interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := reflect.TypeOf(obj)
	if rt, ok := m.types[t]; ok {
		t = rt.goType
	}
	// One hub per class: the identity map dedupes by pointer equality, and
	// a hub has no shape computeCanonicalizationKey recognizes, so a fresh
	// pointer per call would defeat deduplication entirely.
	if hh, ok := m.hubHandles[t]; ok {
		return hh
	}
	hh := &hubHandle{goType: t}
	m.hubHandles[t] = hh
	return hh
}

// hubHandle is the host-side DynamicHub stand-in: one per registered
// class, comparable by goType so repeated DynamicHubOf calls for the same
// class return an identity-equal value.
type hubHandle struct {
	goType reflect.Type
}

// ClassObjectOf reports the host java.lang.Class representative for hub's
// class, but only once NoteClassReference has recorded one: most classes
// in a build are never reached through their java.lang.Class side at all,
// so this must not synthesize one on demand.
func (m *ReflectMetadata) ClassObjectOf(hub interface{}) (interface{}, bool) {
	hh, ok := hub.(*hubHandle)
	if !ok {
		return nil, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	class, ok := m.classObjects[hh.goType]
	return class, ok
}

// NoteClassReference resolves class to the same goType key DynamicHubOf
// uses and records it as that type's java.lang.Class representative.
func (m *ReflectMetadata) NoteClassReference(class interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := reflect.TypeOf(class)
	if rt, ok := m.types[t]; ok {
		t = rt.goType
	}
	if _, already := m.classObjects[t]; !already {
		m.classObjects[t] = class
	}
}

func (m *ReflectMetadata) IsInternedString(s *HostString) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.internedStrings[s.Value]
	return ok && existing == s
}

// Intern records s as the canonical instance for its content, the way the
// host JVM's String.intern() would; used by test/demo drivers to construct
// scenario S2 (independently built strings with equal content).
func (m *ReflectMetadata) Intern(s *HostString) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.internedStrings[s.Value]; !ok {
		m.internedStrings[s.Value] = s
	}
}

func (m *ReflectMetadata) KnownNonCanonicalizable(obj interface{}) bool {
	return matchesAny(obj, m.knownNonCanonicalizable)
}

func (m *ReflectMetadata) KnownCanonicalizable(obj interface{}) bool {
	return matchesAny(obj, m.knownCanonicalizable)
}

func matchesAny(obj interface{}, types []reflect.Type) bool {
	t := reflect.TypeOf(obj)
	for _, candidate := range types {
		if t == candidate {
			return true
		}
	}
	return false
}

// RegisterCanonicalizable and RegisterNonCanonicalizable append to the
// ordered instance-of lists spec.md §3 describes.
func (m *ReflectMetadata) RegisterCanonicalizable(example interface{}) {
	m.knownCanonicalizable = append(m.knownCanonicalizable, reflect.TypeOf(example))
}

func (m *ReflectMetadata) RegisterNonCanonicalizable(example interface{}) {
	m.knownNonCanonicalizable = append(m.knownNonCanonicalizable, reflect.TypeOf(example))
}

// SetStaticRoots configures the two placeholder arrays and the set of
// statically-held object fields add_initial_objects enqueues.
func (m *ReflectMetadata) SetStaticRoots(primitiveArray, referenceArray interface{}, fields []StaticFieldRoot) {
	m.staticPrimitiveArray = primitiveArray
	m.staticReferenceArray = referenceArray
	m.staticFields = fields
}

func (m *ReflectMetadata) StaticRoots() (interface{}, interface{}, []StaticFieldRoot) {
	return m.staticPrimitiveArray, m.staticReferenceArray, m.staticFields
}

func (m *ReflectMetadata) ObjectHeaderBits(hub Hub) uint64 {
	return hub.HeaderBits()
}

// SetWellKnownRuntimeInfoObject registers the static object whose fields
// hold the partition boundary markers, plus their locations.
func (m *ReflectMetadata) SetWellKnownRuntimeInfoObject(obj interface{}, locations map[string]BoundaryLocation) {
	m.runtimeInfo = obj
	m.boundaryLocs = locations
}

func (m *ReflectMetadata) WellKnownRuntimeInfoObject() interface{} {
	return m.runtimeInfo
}

func (m *ReflectMetadata) BoundaryFieldLocation(name string) (BoundaryLocation, bool) {
	loc, ok := m.boundaryLocs[name]
	return loc, ok
}

// GoReferenceArray and GoPrimitiveArray are the concrete array shapes:
// GoReferenceArray is registered by NewReflectMetadata, and GoPrimitiveArray
// is registered via RegisterArrayClass by a driver that uses it (as
// cmd/imageheap does). A bare Go slice doesn't carry enough type identity
// for LookupType, so roots and fields hold these wrapper structs instead.
type GoReferenceArray struct {
	Values []interface{}
}

func (a *GoReferenceArray) ArrayElements() []interface{} { return a.Values }

type GoPrimitiveArray struct {
	Kind  StorageKind
	Bytes []byte
}

func (a *GoPrimitiveArray) ArrayKind() StorageKind { return a.Kind }
func (a *GoPrimitiveArray) ArrayBytes() []byte      { return a.Bytes }
