package vm

import (
	"sync"

	"github.com/susmicrosystems/Uwuntu-sub002/defs"
	"github.com/susmicrosystems/Uwuntu-sub002/mem"
)

// pte mirrors a hardware page-table entry's relevant bits: which frame
// backs a page, what it's mapped for, and whether it is a COW copy shared
// with another AddressSpace.
type pte struct {
	frame mem.Pa_t
	prot  Prot
	cow   bool
}

// SimMMU is the concrete MMU (spec.md §6) standing in for real page
// tables: a per-AddressSpace map from page-aligned virtual address to
// pte. Grounded in the teacher's vm/as.go, which drives the same
// operations (Map_pgs, Unmap_pgs, Pgfault's COW-claim, Copy_pmap) against
// real x86-64 page tables; this replaces the hardware walk with a map,
// keeping the same call shape so vm/space.go's callers are unaffected by
// the substitution.
type SimMMU struct {
	mu     sync.Mutex
	frames *mem.Allocator
	spaces map[*AddressSpace]map[uintptr]pte
}

func NewSimMMU(frames *mem.Allocator) *SimMMU {
	return &SimMMU{frames: frames, spaces: make(map[*AddressSpace]map[uintptr]pte)}
}

func (m *SimMMU) SpaceInit(space *AddressSpace) defs.Err_t {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spaces[space] = make(map[uintptr]pte)
	return 0
}

func (m *SimMMU) SpaceCleanup(space *AddressSpace) {
	m.mu.Lock()
	tab := m.spaces[space]
	delete(m.spaces, space)
	m.mu.Unlock()

	for _, e := range tab {
		m.frames.Refdown(e.frame)
	}
}

func (m *SimMMU) Map(space *AddressSpace, vaddr uintptr, frame mem.Pa_t, size uintptr, prot Prot) defs.Err_t {
	m.mu.Lock()
	defer m.mu.Unlock()
	tab := m.spaces[space]
	for off := uintptr(0); off < size; off += uintptr(mem.PGSIZE) {
		tab[vaddr+off] = pte{frame: frame, prot: prot}
	}
	return 0
}

func (m *SimMMU) Unmap(space *AddressSpace, vaddr uintptr, size uintptr) defs.Err_t {
	m.mu.Lock()
	defer m.mu.Unlock()
	tab := m.spaces[space]
	for off := uintptr(0); off < size; off += uintptr(mem.PGSIZE) {
		va := vaddr + off
		if e, ok := tab[va]; ok {
			m.frames.Refdown(e.frame)
			delete(tab, va)
		}
	}
	return 0
}

func (m *SimMMU) Protect(space *AddressSpace, vaddr uintptr, size uintptr, prot Prot) defs.Err_t {
	m.mu.Lock()
	defer m.mu.Unlock()
	tab := m.spaces[space]
	for off := uintptr(0); off < size; off += uintptr(mem.PGSIZE) {
		va := vaddr + off
		if e, ok := tab[va]; ok {
			e.prot = prot
			tab[va] = e
		}
	}
	return 0
}

// Populate resolves a fault at vaddr: an existing COW entry is either
// claimed in place (sole owner) or copied; a missing entry is obtained
// from FaultPage and installed. Mirrors the teacher's Pgfault dispatch in
// vm/as.go (Sys_pgfault): guard/permission checks already happened in
// FaultPage, so Populate only deals with the PTE-install and COW-claim
// mechanics proper to the MMU layer.
func (m *SimMMU) Populate(space *AddressSpace, vaddr uintptr, access Prot) (mem.Pa_t, defs.Err_t) {
	m.mu.Lock()
	tab := m.spaces[space]
	if e, ok := tab[vaddr]; ok && e.cow {
		if access.Has(ProtWrite) {
			if m.frames.Refcnt(e.frame) == 1 {
				// sole owner: claim the frame outright, drop the cow tag
				e.cow = false
				e.prot |= ProtWrite
				tab[vaddr] = e
				m.mu.Unlock()
				return e.frame, 0
			}
			m.mu.Unlock()
			np, ok := m.frames.RefpgNewNozero()
			if !ok {
				return 0, defs.OutOfMemory
			}
			copy(m.frames.Bytes(np), m.frames.Bytes(e.frame))
			m.frames.Refdown(e.frame)

			m.mu.Lock()
			e.frame = np
			e.cow = false
			e.prot |= ProtWrite
			tab[vaddr] = e
			m.mu.Unlock()
			return np, 0
		}
		m.mu.Unlock()
		return e.frame, 0
	}
	if e, ok := tab[vaddr]; ok {
		m.mu.Unlock()
		return e.frame, 0
	}
	m.mu.Unlock()

	frame, _, err := space.FaultPage(vaddr, access)
	if err != 0 {
		return 0, err
	}
	m.mu.Lock()
	tab[vaddr] = pte{frame: frame, prot: access}
	m.mu.Unlock()
	return frame, 0
}

// Translate returns the frame currently backing vaddr without faulting
// it in, for callers (vm.Peek/vm.Poke) that already populated the page
// themselves and just need the backing bytes.
func (m *SimMMU) Translate(space *AddressSpace, vaddr uintptr) (mem.Pa_t, defs.Err_t) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.spaces[space][vaddr]
	if !ok {
		return 0, defs.Fault
	}
	return e.frame, 0
}

// SpaceCopy duplicates src's page table into dst, marking private
// writable mappings copy-on-write in both spaces (so the parent loses
// direct write access to pages it now shares — spec.md §4.2's fork
// contract) and sharing MAP_SHARED/shm mappings outright. Zone kind for
// each address is read from src, which SpaceCopy's caller (AddressSpace.
// Dup) already holds locked; dst's zone list is geometrically identical
// at this point in Dup so no separate lookup against dst is needed.
func (m *SimMMU) SpaceCopy(dst, src *AddressSpace) defs.Err_t {
	m.mu.Lock()
	defer m.mu.Unlock()
	srcTab := m.spaces[src]
	dstTab := m.spaces[dst]
	for vaddr, e := range srcTab {
		z, ok := src.findLocked(vaddr)
		if !ok {
			continue
		}
		shared := z.Kind == KindShm || (z.Kind == KindFileBacked && z.Shared)
		if shared {
			m.frames.Refup(e.frame)
			dstTab[vaddr] = e
			continue
		}
		if z.Prot.Has(ProtWrite) {
			e.cow = true
		}
		srcTab[vaddr] = e
		m.frames.Refup(e.frame)
		dstTab[vaddr] = e
	}
	return 0
}
