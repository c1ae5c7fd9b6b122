package vm

import (
	"github.com/susmicrosystems/Uwuntu-sub002/defs"
)

// AttachShm installs a KindShm zone covering a shm segment's full size at
// addr (anchored) or at the first fitting address (anchor nil), and
// records a ShmBinding so DetachShm can find it again by address
// (spec.md §4.5's shmat). faults supplies the segment's page-cache
// lookup; the caller (the shm package) has already performed the
// permission check and computed size as a whole number of pages.
func (as *AddressSpace) AttachShm(anchor *uintptr, shmID int32, size uintptr, prot Prot, faults ShmFaulter) (uintptr, defs.Err_t) {
	z, err := as.Alloc(anchor, 0, size, prot, KindShm, nil)
	if err != 0 {
		return 0, err
	}
	as.LockSpace()
	z.ShmID = shmID
	z.Faults = faults
	as.binds[z.Addr] = ShmBinding{Addr: z.Addr, Size: size, ShmID: shmID}
	as.UnlockSpace()

	faults.Open(shmID)
	return z.Addr, 0
}

// DetachShm implements shmdt: addr must match a previously attached
// segment exactly (spec.md §4.5 rejects detaching from the middle of a
// mapping).
func (as *AddressSpace) DetachShm(addr uintptr) defs.Err_t {
	as.LockSpace()
	b, ok := as.binds[addr]
	if !ok {
		as.UnlockSpace()
		return defs.InvalidArgument
	}
	delete(as.binds, addr)
	as.UnlockSpace()

	return as.Free(b.Addr, b.Size)
}

// ShmBindings returns a snapshot of this AddressSpace's active shm
// attachments, for introspection (spec.md §4.8).
func (as *AddressSpace) ShmBindings() []ShmBinding {
	as.LockSpace()
	defer as.UnlockSpace()
	out := make([]ShmBinding, 0, len(as.binds))
	for _, b := range as.binds {
		out = append(out, b)
	}
	return out
}
