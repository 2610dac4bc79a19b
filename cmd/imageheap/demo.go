package main

import (
	heapbuilder "github.com/nativeimage/heapbuilder"
)

// Widget is a toy instance class: a name and a singly linked next pointer.
type Widget struct {
	Name *heapbuilder.HostString `heap:"kind=object,written"`
	Next *Widget                 `heap:"kind=object,written"`
}

// RuntimeInfo stands in for the well-known runtime-info object spec.md
// §4.5 describes: one reference field per partition-boundary marker.
type RuntimeInfo struct {
	ReadOnlyPrimitiveFirst interface{} `heap:"kind=object,written"`
	ReadOnlyPrimitiveLast  interface{} `heap:"kind=object,written"`
	ReadOnlyReferenceFirst interface{} `heap:"kind=object,written"`
	ReadOnlyReferenceLast  interface{} `heap:"kind=object,written"`
	WritablePrimitiveFirst interface{} `heap:"kind=object,written"`
	WritablePrimitiveLast  interface{} `heap:"kind=object,written"`
	WritableReferenceFirst interface{} `heap:"kind=object,written"`
	WritableReferenceLast  interface{} `heap:"kind=object,written"`
}

// buildDemoGraph registers a tiny class set and wires a three-node root
// graph (two Widgets, one RuntimeInfo) the way an ahead-of-time driver
// would wire the real static-field arrays.
func buildDemoGraph() (*heapbuilder.ReflectMetadata, []interface{}) {
	meta := heapbuilder.NewReflectMetadata()

	must(meta.RegisterInstanceClass("Widget", &Widget{}, 0, nil))
	must(meta.RegisterInstanceClass("RuntimeInfo", &RuntimeInfo{}, 0, nil))
	must(meta.RegisterArrayClass("ReferenceArray", &heapbuilder.GoReferenceArray{}, heapbuilder.KindObject))
	must(meta.RegisterArrayClass("PrimitiveArray", &heapbuilder.GoPrimitiveArray{}, heapbuilder.KindInt))

	leaf := &Widget{Name: &heapbuilder.HostString{Value: "leaf"}}
	head := &Widget{Name: &heapbuilder.HostString{Value: "head"}, Next: leaf}
	runtimeInfo := &RuntimeInfo{}

	referenceArray := &heapbuilder.GoReferenceArray{Values: []interface{}{head, runtimeInfo}}
	primitiveArray := &heapbuilder.GoPrimitiveArray{Kind: heapbuilder.KindInt, Bytes: nil}

	fields := []heapbuilder.StaticFieldRoot{
		{
			Name:      "headWidget",
			Kind:      heapbuilder.KindObject,
			ArrayRoot: referenceArray,
			Index:     0,
			ReadValue: func() (interface{}, error) { return head, nil },
		},
		{
			Name:      "runtimeInfo",
			Kind:      heapbuilder.KindObject,
			ArrayRoot: referenceArray,
			Index:     1,
			ReadValue: func() (interface{}, error) { return runtimeInfo, nil },
		},
	}
	meta.SetStaticRoots(primitiveArray, referenceArray, fields)

	boundaryField := func(name string) heapbuilder.BoundaryLocation {
		return heapbuilder.BoundaryLocation{Receiver: runtimeInfo, Offset: fieldOffsetOf(meta, runtimeInfo, name)}
	}
	meta.SetWellKnownRuntimeInfoObject(runtimeInfo, map[string]heapbuilder.BoundaryLocation{
		"readOnlyPrimitiveFirst": boundaryField("ReadOnlyPrimitiveFirst"),
		"readOnlyPrimitiveLast":  boundaryField("ReadOnlyPrimitiveLast"),
		"readOnlyReferenceFirst": boundaryField("ReadOnlyReferenceFirst"),
		"readOnlyReferenceLast":  boundaryField("ReadOnlyReferenceLast"),
		"writablePrimitiveFirst": boundaryField("WritablePrimitiveFirst"),
		"writablePrimitiveLast":  boundaryField("WritablePrimitiveLast"),
		"writableReferenceFirst": boundaryField("WritableReferenceFirst"),
		"writableReferenceLast":  boundaryField("WritableReferenceLast"),
	})

	return meta, []interface{}{head, leaf, runtimeInfo}
}

func fieldOffsetOf(meta *heapbuilder.ReflectMetadata, obj interface{}, name string) int64 {
	typ, ok := meta.LookupType(obj)
	if !ok {
		panic("imageheap demo: type not registered for " + name)
	}
	for _, f := range typ.InstanceFields() {
		if f.Name == name {
			return f.Offset
		}
	}
	panic("imageheap demo: field not found: " + name)
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
