package heapbuilder

// addTask is a single pending traversal step: spec.md §4.1 "enqueue the
// class's DynamicHub and every reference-typed field (or array element)
// onto the worklist, propagating the canonicalizable flag ... and
// propagating immutability."
type addTask struct {
	original             interface{}
	parentCanonicalizable bool
	immutableFromParent  bool
	reason               Reason
}

// addObjectWorklist is the LIFO buffer from spec.md §2/§4.1 that converts
// naive recursion into traversal bounded by available memory rather than
// call-stack depth: "no step of the algorithm relies on recursive
// completion of children before the parent's Object Info is created."
type addObjectWorklist struct {
	tasks []addTask
}

func newAddObjectWorklist() *addObjectWorklist {
	return &addObjectWorklist{}
}

func (w *addObjectWorklist) push(t addTask) {
	w.tasks = append(w.tasks, t)
}

// pop removes and returns the most recently pushed task (LIFO order).
func (w *addObjectWorklist) pop() (addTask, bool) {
	n := len(w.tasks)
	if n == 0 {
		return addTask{}, false
	}
	t := w.tasks[n-1]
	w.tasks = w.tasks[:n-1]
	return t, true
}

func (w *addObjectWorklist) empty() bool {
	return len(w.tasks) == 0
}

func (w *addObjectWorklist) len() int {
	return len(w.tasks)
}
