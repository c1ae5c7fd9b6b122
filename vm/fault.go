package vm

import (
	"github.com/susmicrosystems/Uwuntu-sub002/defs"
	"github.com/susmicrosystems/Uwuntu-sub002/mem"
	"github.com/susmicrosystems/Uwuntu-sub002/util"
)

func pageAlign(addr uintptr) uintptr {
	return util.Rounddown(addr, uintptr(mem.PGSIZE))
}

// FaultPage locates the zone covering addr and obtains a frame for it:
// read-through for file-backed zones, a shm-cache lookup for shm zones, or
// a fresh zero frame for anonymous zones (spec.md §4.2). Must be called
// with the AddressSpace lock already held — it is only ever reached via
// HandlePageFault (through MMU.Populate), which holds it.
func (as *AddressSpace) FaultPage(addr uintptr, access Prot) (mem.Pa_t, *Zone, defs.Err_t) {
	as.lockassert()
	pa := pageAlign(addr)
	z, ok := as.findLocked(pa)
	if !ok {
		return 0, nil, defs.Fault
	}
	if z.Prot == 0 {
		// guard zone: no access is permissible
		return 0, nil, defs.Fault
	}
	if access.Has(ProtWrite) && !z.Prot.Has(ProtWrite) {
		return 0, nil, defs.Fault
	}
	pageIndex := int((pa - z.Addr) / uintptr(mem.PGSIZE))

	switch z.Kind {
	case KindShm:
		p, err := z.Faults.Fault(z.ShmID, pageIndex)
		return p, z, err
	case KindFileBacked:
		p, err := as.readThrough(z, pageIndex)
		return p, z, err
	default:
		p, ok := as.frames.RefpgNew()
		if !ok {
			return 0, nil, defs.OutOfMemory
		}
		return p, z, 0
	}
}

// readThrough reads one page of a file-backed zone's content, zeroing
// whatever part of the page lies past the end of the file (a short read).
// File bytes that follow a zone's data within the file are read like any
// other; the ELF loader zeroes a segment's tail past p_filesz itself.
func (as *AddressSpace) readThrough(z *Zone, pageIndex int) (mem.Pa_t, defs.Err_t) {
	p, ok := as.frames.RefpgNewNozero()
	if !ok {
		return 0, defs.OutOfMemory
	}
	buf := as.frames.Bytes(p)
	off := z.Off + int64(pageIndex)*int64(mem.PGSIZE)
	n, err := z.File.Readseq(buf, off)
	if err != 0 {
		as.frames.Refdown(p)
		return 0, err
	}
	for i := n; i < len(buf); i++ {
		buf[i] = 0
	}
	return p, 0
}

// HandlePageFault is the CPU-fault entry point (spec.md §4.2 "Demand
// paging"): align the address, reject addresses outside the user region,
// then ask the MMU to populate the page under the AddressSpace lock.
func (as *AddressSpace) HandlePageFault(addr uintptr, access Prot) defs.Err_t {
	pa := pageAlign(addr)
	span := as.region.Span()
	if pa < span.Base || pa >= span.Base+span.Size {
		return defs.Fault
	}
	as.LockSpace()
	defer as.UnlockSpace()
	_, err := as.mmu.Populate(as, pa, access)
	return err
}
