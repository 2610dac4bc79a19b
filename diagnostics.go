package heapbuilder

import (
	"fmt"
	"sort"

	"github.com/dustin/go-humanize"
)

// PrintHeapHistogram implements the print_heap_histogram diagnostic from
// spec.md §6's configuration enumeration: a per-class breakdown of object
// count and total byte size across the whole heap, largest first.
func (h *NativeImageHeap) PrintHeapHistogram() {
	if !h.config.PrintHeapHistogram {
		return
	}

	type row struct {
		className string
		count     int64
		bytes     int64
	}
	byClass := make(map[string]*row)
	seen := make(map[*ObjectInfo]struct{})

	for _, info := range h.identityMap {
		if _, ok := seen[info]; ok {
			continue
		}
		seen[info] = struct{}{}
		name := "?"
		if info.Class != nil {
			name = info.Class.Name()
		}
		r, ok := byClass[name]
		if !ok {
			r = &row{className: name}
			byClass[name] = r
		}
		r.count++
		r.bytes += info.Size
	}

	rows := make([]*row, 0, len(byClass))
	for _, r := range byClass {
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].bytes > rows[j].bytes })

	log.Info("heap histogram:")
	for _, r := range rows {
		log.Infof("  %-40s %8d objects  %10s", r.className, r.count, humanize.Bytes(uint64(r.bytes)))
	}
}

// PrintPartitionSizes implements the print_partition_sizes diagnostic.
func (h *NativeImageHeap) PrintPartitionSizes() {
	if !h.config.PrintPartitionSizes {
		return
	}
	log.Info("partition sizes:")
	for _, kind := range AllPartitionKinds {
		p := h.partitions[kind]
		log.Infof("  %-20s %8d objects  %10s", p.Kind, p.Count(), humanize.Bytes(uint64(p.Size())))
	}
	log.Infof("  %-20s %19s", "read-only total", humanize.Bytes(uint64(h.GetReadonlySize())))
	log.Infof("  %-20s %19s", "writable total", humanize.Bytes(uint64(h.GetWritableSize())))
}

// describePartitionBoundary renders a human-readable summary of one
// partition's boundary pair.
func describePartitionBoundary(kind PartitionKind, first, last *ObjectInfo) string {
	if first == nil {
		return fmt.Sprintf("%s: empty", kind)
	}
	return fmt.Sprintf("%s: first=%s last=%s", kind, first.ID, last.ID)
}
