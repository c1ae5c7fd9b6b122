// Package vm implements AddressSpace (spec.md §4.2): a process's virtual
// memory, composed of an ordered, non-overlapping sequence of Zones and a
// set of ShmBindings, backed by an abstract MMU.
//
// Grounded in the teacher's vm/as.go (Vm_t: embedded mutex, Lock_pmap /
// Unlock_pmap / Lockassert_pmap, Vmregion, Sys_pgfault's COW/anon/file
// dispatch) and in original_source/mem/space.c (vm_space_t, vm_zone_t,
// vm_fault, vm_space_protect, dup_zones/vm_space_dup) — the teacher's own
// Vmregion_t/Vminfo_t types were pruned from the retrieval set, so the
// zone bookkeeping here follows space.c directly. The "ops vtable on
// Zone" the teacher would reach for is replaced by a ZoneKind tag plus a
// small ShmFaulter capability interface, per spec.md §9's design note.
package vm

import (
	"github.com/susmicrosystems/Uwuntu-sub002/defs"
	"github.com/susmicrosystems/Uwuntu-sub002/mem"
)

// Prot is a protection bitset over {Read, Write, Execute}.
type Prot uint8

const (
	ProtRead Prot = 1 << iota
	ProtWrite
	ProtExec
)

func (p Prot) Has(bit Prot) bool { return p&bit != 0 }

// ZoneKind tags the variant behavior a Zone's fault/open/close would have
// dispatched through an ops vtable in the teacher's style.
type ZoneKind int

const (
	KindAnonymous ZoneKind = iota
	KindFileBacked
	KindShm
	KindReserved
)

// File is the narrow subset of the Filesystem external interface (spec.md
// §6) the loader and file-backed zones need: sequential positioned reads
// plus reference counting. The full File/Node contract (lookup, readdir,
// mmap as a filesystem-driven operation) belongs to the external
// filesystem collaborator and is out of this core's scope (spec.md §1).
type File interface {
	Readseq(buf []byte, off int64) (int, defs.Err_t)
	Ref()
	Free()
}

// ShmFaulter is the capability a ShmSegment supplies to a Zone of
// KindShm, replacing the teacher's generic ops.{open,close,fault} vtable
// with the tagged-variant shape spec.md §9 calls for.
type ShmFaulter interface {
	Open(shmID int32)
	Close(shmID int32)
	Fault(shmID int32, pageIndex int) (mem.Pa_t, defs.Err_t)
}

// Zone is a contiguous, protected, page-aligned sub-region of an
// AddressSpace (spec.md §3).
type Zone struct {
	Addr uintptr
	Size uintptr
	Off  int64
	Prot Prot
	Kind ZoneKind

	// KindFileBacked
	File   File
	Shared bool // MAP_SHARED (writes visible to other mappers) vs MAP_PRIVATE/COW

	// KindShm
	ShmID  int32
	Faults ShmFaulter
}

func (z *Zone) end() uintptr { return z.Addr + z.Size }

func (z *Zone) contains(addr uintptr) bool {
	return addr >= z.Addr && addr < z.end()
}

// clone copies a Zone's metadata (used when splitting a zone or
// duplicating an AddressSpace); the caller is responsible for adjusting
// Addr/Size/Off and for running the open/close bookkeeping spec.md §4.2
// requires around splits.
func (z *Zone) clone() *Zone {
	cp := *z
	return &cp
}

// ShmBinding records that a shm segment is mapped at Addr in some
// AddressSpace (spec.md §3).
type ShmBinding struct {
	Addr  uintptr
	Size  uintptr
	ShmID int32
}

// MMU is the external interface spec.md §6 names: map / unmap / protect /
// populate / copy-address-space operations, abstract so the core never
// assumes real hardware page tables.
type MMU interface {
	Map(space *AddressSpace, vaddr uintptr, frame mem.Pa_t, size uintptr, prot Prot) defs.Err_t
	Unmap(space *AddressSpace, vaddr uintptr, size uintptr) defs.Err_t
	Protect(space *AddressSpace, vaddr uintptr, size uintptr, prot Prot) defs.Err_t
	Populate(space *AddressSpace, vaddr uintptr, access Prot) (mem.Pa_t, defs.Err_t)
	Translate(space *AddressSpace, vaddr uintptr) (mem.Pa_t, defs.Err_t)
	SpaceInit(space *AddressSpace) defs.Err_t
	SpaceCopy(dst, src *AddressSpace) defs.Err_t
	SpaceCleanup(space *AddressSpace)
}
