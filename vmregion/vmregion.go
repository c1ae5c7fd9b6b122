// Package vmregion implements VirtualRegion (spec.md §4.1): a free-list
// allocator over a contiguous address interval, supporting anchored and
// floating reservation.
//
// Grounded in original_source/mem/space.c's vm_alloc/vm_free, which
// maintain a singly linked list of free vm_region_t nodes and handle four
// cases when carving a reservation out of (or returning one to) a free
// node: the allocation consumes the whole node, truncates its head,
// truncates its tail, or splits it into two surviving siblings. The
// teacher repo's own Vmregion_t/Vminfo_t types were not present in the
// retrieved sources (pruned), so this package is authored directly from
// the C original rather than adapted from a missing Go file; its package
// name and the vm package's use of it still follow the teacher's
// "vm holds an embedded region allocator" shape (vm/as.go's Vm_t.Vmregion
// field).
package vmregion

import (
	"sort"
	"sync"

	"github.com/susmicrosystems/Uwuntu-sub002/defs"
	"github.com/susmicrosystems/Uwuntu-sub002/mem"
)

// Interval is a half-open byte range [Base, Base+Size).
type Interval struct {
	Base uintptr
	Size uintptr
}

func (iv Interval) end() uintptr { return iv.Base + iv.Size }

func (iv Interval) contains(o Interval) bool {
	return iv.Base <= o.Base && o.end() <= iv.end()
}

func aligned(v uintptr) bool {
	return v%uintptr(mem.PGSIZE) == 0
}

// VirtualRegion manages a contiguous address range via an ordered,
// disjoint list of free sub-intervals.
type VirtualRegion struct {
	mu   sync.Mutex
	span Interval
	free []Interval // ordered ascending by Base, disjoint, coalesced
}

// New creates a VirtualRegion spanning [base, base+size), entirely free.
func New(base, size uintptr) *VirtualRegion {
	if !aligned(base) || !aligned(size) || size == 0 {
		panic("vmregion: misaligned span")
	}
	return &VirtualRegion{
		span: Interval{base, size},
		free: []Interval{{base, size}},
	}
}

// Span reports the region's full extent.
func (vr *VirtualRegion) Span() Interval {
	return vr.span
}

// Alloc reserves size bytes. With anchor non-nil it requires
// [*anchor, *anchor+size) to lie entirely within one free interval and
// fails (InvalidArgument) otherwise; with anchor nil it returns the first
// free interval with enough room ("floating" allocation). It never
// returns a partial allocation.
func (vr *VirtualRegion) Alloc(anchor *uintptr, size uintptr) (uintptr, defs.Err_t) {
	if !aligned(size) || size == 0 {
		return 0, defs.InvalidArgument
	}
	if anchor != nil && !aligned(*anchor) {
		return 0, defs.InvalidArgument
	}
	vr.mu.Lock()
	defer vr.mu.Unlock()

	if anchor != nil {
		want := Interval{*anchor, size}
		for i, f := range vr.free {
			if f.contains(want) {
				vr.carve(i, f, want)
				return want.Base, 0
			}
		}
		return 0, defs.InvalidArgument
	}

	for i, f := range vr.free {
		if f.Size >= size {
			want := Interval{f.Base, size}
			vr.carve(i, f, want)
			return want.Base, 0
		}
	}
	return 0, defs.OutOfMemory
}

// carve removes want from the free interval f at index i, replacing it
// with zero, one or two surviving pieces (full-remove / head-truncate /
// tail-truncate / split), per space.c's vm_alloc.
func (vr *VirtualRegion) carve(i int, f, want Interval) {
	headLen := want.Base - f.Base
	tailLen := f.end() - want.end()
	switch {
	case headLen == 0 && tailLen == 0:
		vr.free = append(vr.free[:i], vr.free[i+1:]...)
	case headLen == 0:
		vr.free[i] = Interval{want.end(), tailLen}
	case tailLen == 0:
		vr.free[i] = Interval{f.Base, headLen}
	default:
		vr.free[i] = Interval{f.Base, headLen}
		tail := Interval{want.end(), tailLen}
		vr.free = append(vr.free, Interval{})
		copy(vr.free[i+2:], vr.free[i+1:])
		vr.free[i+1] = tail
	}
}

// Free returns [addr, addr+size) to the free list, coalescing with
// immediate neighbors, per space.c's vm_free.
func (vr *VirtualRegion) Free(addr, size uintptr) defs.Err_t {
	if !aligned(addr) || !aligned(size) || size == 0 {
		return defs.InvalidArgument
	}
	iv := Interval{addr, size}
	if !vr.span.contains(iv) {
		return defs.InvalidArgument
	}
	vr.mu.Lock()
	defer vr.mu.Unlock()

	idx := sort.Search(len(vr.free), func(i int) bool { return vr.free[i].Base >= iv.Base })
	vr.free = append(vr.free, Interval{})
	copy(vr.free[idx+1:], vr.free[idx:])
	vr.free[idx] = iv
	vr.coalesce(idx)
	return 0
}

func (vr *VirtualRegion) coalesce(idx int) {
	if idx+1 < len(vr.free) && vr.free[idx].end() == vr.free[idx+1].Base {
		vr.free[idx].Size += vr.free[idx+1].Size
		vr.free = append(vr.free[:idx+1], vr.free[idx+2:]...)
	}
	if idx > 0 && vr.free[idx-1].end() == vr.free[idx].Base {
		vr.free[idx-1].Size += vr.free[idx].Size
		vr.free = append(vr.free[:idx], vr.free[idx+1:]...)
	}
}

// Test reports whether [addr, addr+size) lies entirely within free space.
func (vr *VirtualRegion) Test(addr, size uintptr) bool {
	vr.mu.Lock()
	defer vr.mu.Unlock()
	want := Interval{addr, size}
	for _, f := range vr.free {
		if f.contains(want) {
			return true
		}
	}
	return false
}

// Dup returns a structural clone of vr's free list.
func (vr *VirtualRegion) Dup() *VirtualRegion {
	vr.mu.Lock()
	defer vr.mu.Unlock()
	out := &VirtualRegion{span: vr.span, free: make([]Interval, len(vr.free))}
	copy(out.free, vr.free)
	return out
}

// FreeList returns a snapshot of the free intervals, for tests and
// invariant (#6) byte-for-byte comparisons.
func (vr *VirtualRegion) FreeList() []Interval {
	vr.mu.Lock()
	defer vr.mu.Unlock()
	out := make([]Interval, len(vr.free))
	copy(out, vr.free)
	return out
}
