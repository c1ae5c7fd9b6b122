package vm

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/susmicrosystems/Uwuntu-sub002/defs"
	"github.com/susmicrosystems/Uwuntu-sub002/mem"
	"github.com/susmicrosystems/Uwuntu-sub002/vmregion"
)

// AddressSpace is a process's virtual memory (spec.md §3). Mutation is
// serialized by a single mutex; spec.md §9 notes a recursive mutex is only
// needed so fault handling (invoked from inside alloc/free) can re-enter —
// this implementation instead structures fault handling so FaultPage is
// always called already holding the lock, and never calls LockSpace a
// second time, which spec.md §9 explicitly allows as an alternative to a
// true recursive mutex. lockassert plays the role of the teacher's
// Lockassert_pmap: it documents (and checks) the precondition of internal
// helpers instead of letting them silently run unlocked.
type AddressSpace struct {
	mu     sync.Mutex
	locked bool

	region *vmregion.VirtualRegion
	zones  []*Zone // ascending by Addr, disjoint
	binds  map[uintptr]ShmBinding

	refcount int32

	frames *mem.Allocator
	mmu    MMU
	cred   defs.Cred_t
	log    *logrus.Entry
}

// New creates an AddressSpace whose user region spans [base, base+size).
func New(base, size uintptr, frames *mem.Allocator, mmu MMU, cred defs.Cred_t, log *logrus.Entry) *AddressSpace {
	as := &AddressSpace{
		region:   vmregion.New(base, size),
		binds:    make(map[uintptr]ShmBinding),
		refcount: 1,
		frames:   frames,
		mmu:      mmu,
		cred:     cred,
		log:      log,
	}
	mmu.SpaceInit(as)
	return as
}

func (as *AddressSpace) LockSpace() {
	as.mu.Lock()
	as.locked = true
}

func (as *AddressSpace) UnlockSpace() {
	as.locked = false
	as.mu.Unlock()
}

func (as *AddressSpace) lockassert() {
	if !as.locked {
		panic("vm: AddressSpace used without holding its lock")
	}
}

// UserRegion exposes the backing VirtualRegion (e.g. for the ELF loader's
// floating-span probing for interpreter/kmod base-address selection).
func (as *AddressSpace) UserRegion() *vmregion.VirtualRegion { return as.region }

// Ref/Unref implement the AddressSpace reference count (spec.md §3): it is
// shared by threads of the same process and destroyed when the last
// referencing thread exits.
func (as *AddressSpace) Ref()   { atomic.AddInt32(&as.refcount, 1) }
func (as *AddressSpace) Unref() bool {
	return atomic.AddInt32(&as.refcount, -1) == 0
}

func (as *AddressSpace) zoneIndex(addr uintptr) int {
	return sort.Search(len(as.zones), func(i int) bool { return as.zones[i].Addr >= addr })
}

// insertZone keeps as.zones ordered and non-overlapping (invariant #1).
func (as *AddressSpace) insertZone(z *Zone) {
	i := as.zoneIndex(z.Addr)
	as.zones = append(as.zones, nil)
	copy(as.zones[i+1:], as.zones[i:])
	as.zones[i] = z
}

// Alloc reserves virtual space via VirtualRegion, creates a Zone and
// inserts it; no physical pages are committed (spec.md §4.2).
func (as *AddressSpace) Alloc(anchor *uintptr, off int64, size uintptr, prot Prot, kind ZoneKind, file File) (*Zone, defs.Err_t) {
	as.LockSpace()
	defer as.UnlockSpace()

	if size == 0 || size%uintptr(mem.PGSIZE) != 0 {
		return nil, defs.InvalidArgument
	}
	addr, err := as.region.Alloc(anchor, size)
	if err != 0 {
		return nil, err
	}
	z := &Zone{Addr: addr, Size: size, Off: off, Prot: prot, Kind: kind, File: file}
	if file != nil {
		file.Ref()
	}
	as.insertZone(z)
	return z, 0
}

// Find performs a binary-search lookup over the ordered zone list
// (spec.md §4.2).
func (as *AddressSpace) Find(addr uintptr) (*Zone, bool) {
	as.LockSpace()
	defer as.UnlockSpace()
	return as.findLocked(addr)
}

func (as *AddressSpace) findLocked(addr uintptr) (*Zone, bool) {
	as.lockassert()
	i := sort.Search(len(as.zones), func(i int) bool { return as.zones[i].end() > addr })
	if i < len(as.zones) && as.zones[i].contains(addr) {
		return as.zones[i], true
	}
	return nil, false
}

// closeZone runs a zone's close bookkeeping (spec.md §4.2: "invoke close
// on the replaced whole"): drop the file ref, or tell a shm segment this
// mapping went away.
func (as *AddressSpace) closeZone(z *Zone) {
	switch z.Kind {
	case KindFileBacked:
		if z.File != nil {
			z.File.Free()
		}
	case KindShm:
		if z.Faults != nil {
			z.Faults.Close(z.ShmID)
		}
	}
}

// openZone is the counterpart run on a newly-created sibling zone
// produced by a split.
func (as *AddressSpace) openZone(z *Zone) {
	switch z.Kind {
	case KindFileBacked:
		if z.File != nil {
			z.File.Ref()
		}
	case KindShm:
		if z.Faults != nil {
			z.Faults.Open(z.ShmID)
		}
	}
}

// Free unmaps [addr, addr+size): every intersecting zone is fully
// removed, head-truncated, tail-truncated, or split, per spec.md §4.2.
// Per spec.md §9's open question on partial failure, any sibling Zone a
// split would need is allocated (via clone(), pure Go struct copy, which
// cannot fail) before the MMU unmap call, so the only fallible step
// leaves the zone list already consistent.
func (as *AddressSpace) Free(addr, size uintptr) defs.Err_t {
	if size == 0 || addr%uintptr(mem.PGSIZE) != 0 || size%uintptr(mem.PGSIZE) != 0 {
		return defs.InvalidArgument
	}
	as.LockSpace()
	defer as.UnlockSpace()

	target := Interval{addr, size}
	var newZones []*Zone
	var removed []*Zone
	for _, z := range as.zones {
		zi := Interval{z.Addr, z.Size}
		lo, hi := intersect(zi, target)
		if lo >= hi {
			newZones = append(newZones, z)
			continue
		}
		switch {
		case lo == zi.Base && hi == zi.end():
			// full remove
			removed = append(removed, z)
		case lo == zi.Base:
			// head truncated away; surviving tail is a pre-allocated sibling
			tail := z.clone()
			tail.Addr = hi
			tail.Size = zi.end() - hi
			tail.Off = z.Off + int64(hi-zi.Base)
			removed = append(removed, z)
			as.openZone(tail)
			newZones = append(newZones, tail)
		case hi == zi.end():
			// tail truncated away
			head := z.clone()
			head.Size = lo - zi.Base
			removed = append(removed, z)
			as.openZone(head)
			newZones = append(newZones, head)
		default:
			// split: freed middle, two surviving siblings
			head := z.clone()
			head.Size = lo - zi.Base
			tail := z.clone()
			tail.Addr = hi
			tail.Size = zi.end() - hi
			tail.Off = z.Off + int64(hi-zi.Base)
			removed = append(removed, z)
			as.openZone(head)
			as.openZone(tail)
			newZones = append(newZones, head, tail)
		}
	}
	sort.Slice(newZones, func(i, j int) bool { return newZones[i].Addr < newZones[j].Addr })

	if err := as.mmu.Unmap(as, addr, size); err != 0 {
		// Invariant violations here indicate a bug in the MMU simulator,
		// not a recoverable input condition (spec.md §7).
		panic("vm: mmu unmap of a consistent range failed: " + err.Error())
	}
	for _, z := range removed {
		as.closeZone(z)
	}
	as.zones = newZones
	return as.region.Free(addr, size)
}

// Protect updates protection over [addr, addr+size): zones fully
// contained are updated in place; partially contained zones are split so
// the sub-range gets its own Zone (spec.md §4.2).
func (as *AddressSpace) Protect(addr, size uintptr, newProt Prot) defs.Err_t {
	if size == 0 || addr%uintptr(mem.PGSIZE) != 0 || size%uintptr(mem.PGSIZE) != 0 {
		return defs.InvalidArgument
	}
	as.LockSpace()
	defer as.UnlockSpace()

	target := Interval{addr, size}
	var newZones []*Zone
	for _, z := range as.zones {
		zi := Interval{z.Addr, z.Size}
		lo, hi := intersect(zi, target)
		if lo >= hi {
			newZones = append(newZones, z)
			continue
		}
		if lo == zi.Base && hi == zi.end() {
			z.Prot = newProt
			newZones = append(newZones, z)
			continue
		}
		if lo > zi.Base {
			head := z.clone()
			head.Size = lo - zi.Base
			newZones = append(newZones, head)
		}
		mid := z.clone()
		mid.Addr = lo
		mid.Size = hi - lo
		mid.Off = z.Off + int64(lo-zi.Base)
		mid.Prot = newProt
		newZones = append(newZones, mid)
		if hi < zi.end() {
			tail := z.clone()
			tail.Addr = hi
			tail.Size = zi.end() - hi
			tail.Off = z.Off + int64(hi-zi.Base)
			newZones = append(newZones, tail)
		}
	}
	sort.Slice(newZones, func(i, j int) bool { return newZones[i].Addr < newZones[j].Addr })
	as.zones = newZones
	return as.mmu.Protect(as, addr, size, newProt)
}

// Interval is a half-open byte range, mirroring vmregion.Interval for the
// zone-splitting arithmetic above.
type Interval struct {
	Base uintptr
	Size uintptr
}

func (iv Interval) end() uintptr { return iv.Base + iv.Size }

func intersect(a, b Interval) (lo, hi uintptr) {
	lo = a.Base
	if b.Base > lo {
		lo = b.Base
	}
	hi = a.end()
	if b.end() < hi {
		hi = b.end()
	}
	return
}

// Zones returns a snapshot of the ordered zone list, for tests and
// introspection.
func (as *AddressSpace) Zones() []*Zone {
	as.LockSpace()
	defer as.UnlockSpace()
	out := make([]*Zone, len(as.zones))
	copy(out, as.zones)
	return out
}
