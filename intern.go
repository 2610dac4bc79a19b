package heapbuilder

import "sort"

// internTable is spec.md §3's "Intern Table": strings interned on the
// host must appear in the image's intern table. insert is guarded by
// intern_phase (spec.md §4.4): disallowed before the sorted array has
// been built, so the array stays stable once emitted.
type internTable struct {
	phase   *Phase
	strings map[string]struct{}
	frozen  []string
}

func newInternTable() *internTable {
	return &internTable{
		phase:   NewPhase("intern_phase"),
		strings: make(map[string]struct{}),
	}
}

// insert records s as interned. Returns a phase violation if the table
// has already been frozen into its sorted array.
func (t *internTable) insert(s string) error {
	if err := t.phase.RequireAllowed("intern"); err != nil {
		return err
	}
	t.strings[s] = struct{}{}
	return nil
}

// freeze builds the final alphabetically sorted array of distinct
// strings and closes intern_phase so no further insertions are
// permitted. spec.md §8 property 6: "Sorted intern array is strictly
// ascending by byte order of the string."
func (t *internTable) freeze() ([]string, error) {
	sorted := make([]string, 0, len(t.strings))
	for s := range t.strings {
		sorted = append(sorted, s)
	}
	sort.Strings(sorted)
	if err := t.phase.Disallow(); err != nil {
		return nil, err
	}
	t.frozen = sorted
	return sorted, nil
}
