package vm

import "github.com/susmicrosystems/Uwuntu-sub002/defs"

// Dup implements fork's address-space duplication (spec.md §4.2): clone
// the VirtualRegion's free list, clone every Zone (running its open
// bookkeeping — file ref-up, shm nattch++), then ask the MMU to copy the
// page table with copy-on-write semantics. Grounded in the teacher's
// Vm_t.Copy (vm/as.go) and original_source/mem/space.c's vm_space_dup.
func (as *AddressSpace) Dup() (*AddressSpace, defs.Err_t) {
	as.LockSpace()
	defer as.UnlockSpace()

	child := &AddressSpace{
		region:   as.region.Dup(),
		binds:    make(map[uintptr]ShmBinding, len(as.binds)),
		refcount: 1,
		frames:   as.frames,
		mmu:      as.mmu,
		cred:     as.cred,
		log:      as.log,
	}
	child.zones = make([]*Zone, len(as.zones))
	for i, z := range as.zones {
		cz := z.clone()
		as.openZone(cz)
		child.zones[i] = cz
	}
	for addr, b := range as.binds {
		child.binds[addr] = b
	}

	if err := as.mmu.SpaceInit(child); err != 0 {
		return nil, err
	}
	if err := as.mmu.SpaceCopy(child, as); err != 0 {
		as.mmu.SpaceCleanup(child)
		return nil, err
	}
	return child, 0
}

// Cleanup tears down an AddressSpace once its last referencing thread
// exits: the MMU drops every frame reference, then the zone list's own
// file/shm references are closed.
func (as *AddressSpace) Cleanup() {
	as.LockSpace()
	zones := as.zones
	as.zones = nil
	as.UnlockSpace()

	as.mmu.SpaceCleanup(as)
	for _, z := range zones {
		as.closeZone(z)
	}
}
