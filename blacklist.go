package heapbuilder

// blacklist is spec.md §3's set of host objects that must never appear as
// standalone image objects because they are embedded in a hybrid parent
// (the hybrid instance's trailing array and, if present, its bitset).
type blacklist struct {
	objects map[interface{}]struct{}
}

func newBlacklist() *blacklist {
	return &blacklist{objects: make(map[interface{}]struct{})}
}

func (bl *blacklist) add(obj interface{}) {
	bl.objects[obj] = struct{}{}
}

func (bl *blacklist) contains(obj interface{}) bool {
	_, ok := bl.objects[obj]
	return ok
}
