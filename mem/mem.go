// Package mem implements the PageFrame allocator: the process-wide pool of
// simulated physical page frames shared by copy-on-write forks, file-backed
// zones and SysV shared memory.
//
// The teacher (Oichkatzelesfrettschen-biscuit, vm/mem) backs pages with
// real physical RAM reached through a direct-mapped virtual window
// (mem/dmap.go's recursive x86-64 page-table addressing). This module runs
// as an ordinary host process rather than a freestanding kernel, so there
// is no physical RAM to direct-map; frames are instead slices of a single
// arena allocated once by NewAllocator. Everything downstream of frame
// allocation — the free list threaded through Physpg_t.nexti and reference
// counting — is kept in the teacher's shape; there is no shared zero page,
// RefpgNew zero-fills each frame it hands out instead.
package mem

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// PGSHIFT/PGSIZE/PGOFFSET/PGMASK mirror the teacher's constants. PGSIZE is
// fixed at compile time: config.Limits has no page-size setting, and
// nothing changes the page size at startup.
const (
	PGSHIFT uint  = 12
	PGSIZE  int   = 1 << PGSHIFT
	PGOFFSET Pa_t = Pa_t(PGSIZE - 1)
	PGMASK   Pa_t = ^PGOFFSET
)

// Pa_t is a physical frame index (not a byte address — there is no real
// physical address space to index into).
type Pa_t uintptr

// Page is one PGSIZE-byte frame.
type Page [PGSIZE]byte

// Physpg_t mirrors the teacher's per-frame bookkeeping: a reference count
// and a free-list successor index. The teacher additionally carries a
// Cpumask used for cross-CPU TLB-shootdown bookkeeping (mem/mem.go); that
// field has no meaning without real CPUs backing this process and is
// dropped here, with TLB shootdown itself replaced by the vm package's
// SimMMU simply dropping its own PTE cache entries synchronously.
type Physpg_t struct {
	Refcnt int32
	nexti  uint32
}

// Allocator is the PageFrame allocator (spec.md §2): it owns the arena of
// simulated physical frames, hands them out, and reclaims them by
// reference count, exactly as the teacher's Physmem_t does with its
// per-CPU-free-list fast path removed (that optimization exists to avoid
// cross-CPU lock contention on real hardware; a single free-list mutex is
// the correct analogue in a simulated, not-actually-parallel-on-frames
// allocator).
type Allocator struct {
	mu      sync.Mutex
	arena   []Page
	pgs     []Physpg_t
	freei   uint32 // index of first free page, or sentinel
	freelen int32
}

const nilIdx = ^uint32(0)

// NewAllocator reserves npages simulated physical frames.
func NewAllocator(npages int) *Allocator {
	if npages <= 0 {
		panic("mem: npages must be positive")
	}
	a := &Allocator{
		arena: make([]Page, npages),
		pgs:   make([]Physpg_t, npages),
	}
	for i := range a.pgs {
		a.pgs[i].Refcnt = 0
		if i == npages-1 {
			a.pgs[i].nexti = nilIdx
		} else {
			a.pgs[i].nexti = uint32(i + 1)
		}
	}
	a.freei = 0
	a.freelen = int32(npages)
	return a
}

// Refaddr returns the refcount pointer for frame p.
func (a *Allocator) Refaddr(p Pa_t) *int32 {
	return &a.pgs[int(p)].Refcnt
}

// Refcnt returns the current reference count of frame p.
func (a *Allocator) Refcnt(p Pa_t) int {
	return int(atomic.LoadInt32(a.Refaddr(p)))
}

// Refup increments the reference count of frame p.
func (a *Allocator) Refup(p Pa_t) {
	c := atomic.AddInt32(a.Refaddr(p), 1)
	if c <= 0 {
		panic("mem: refup on freed frame")
	}
}

// Refdown decrements the reference count of frame p, returning true when
// the frame was freed as a result (refcount reached zero).
func (a *Allocator) Refdown(p Pa_t) bool {
	c := atomic.AddInt32(a.Refaddr(p), -1)
	if c < 0 {
		panic("mem: refdown below zero")
	}
	if c == 0 {
		a.put(p)
		return true
	}
	return false
}

func (a *Allocator) put(p Pa_t) {
	idx := uint32(p)
	a.mu.Lock()
	a.pgs[idx].nexti = a.freei
	a.freei = idx
	a.freelen++
	a.mu.Unlock()
}

func (a *Allocator) get() (Pa_t, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.freei == nilIdx {
		return 0, false
	}
	idx := a.freei
	a.freei = a.pgs[idx].nexti
	a.freelen--
	if a.pgs[idx].Refcnt != 0 {
		panic("mem: free list frame has nonzero refcount")
	}
	return Pa_t(idx), true
}

// RefpgNew allocates a zero-filled frame with refcount 1. It mirrors the
// teacher's Refpg_new, whose caller relies on the returned page already
// being zeroed (anonymous demand-paged memory must read as zero).
func (a *Allocator) RefpgNew() (Pa_t, bool) {
	p, ok := a.get()
	if !ok {
		return 0, false
	}
	for i := range a.arena[p] {
		a.arena[p][i] = 0
	}
	atomic.StoreInt32(a.Refaddr(p), 1)
	return p, true
}

// RefpgNewNozero allocates a frame with refcount 1 without zeroing it,
// mirroring Refpg_new_nozero — used when the caller is about to overwrite
// the whole frame anyway (COW copy, file read-through).
func (a *Allocator) RefpgNewNozero() (Pa_t, bool) {
	p, ok := a.get()
	if !ok {
		return 0, false
	}
	atomic.StoreInt32(a.Refaddr(p), 1)
	return p, true
}

// Bytes returns the backing bytes for frame p. Analogous to the teacher's
// Dmap, minus the direct-map address arithmetic.
func (a *Allocator) Bytes(p Pa_t) []byte {
	return a.arena[p][:]
}

// Free reports the number of frames on the free list, for introspection.
func (a *Allocator) Free() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return int(a.freelen)
}

// Total reports the size of the arena in frames.
func (a *Allocator) Total() int {
	return len(a.pgs)
}

func (a *Allocator) String() string {
	return fmt.Sprintf("mem.Allocator{total=%d free=%d}", a.Total(), a.Free())
}
