// Package shm implements SysV shared memory segments (spec.md §4.5):
// shmget/shmat/shmdt/shmctl over a shared ipcns.Namespace, with pages
// allocated lazily on first fault and shared by refcount across every
// attaching AddressSpace.
//
// Grounded in original_source/kern/ipc.c's sysv_shm/shm_alloc/shm_free/
// sys_shmget/sys_shmat/sys_shmdt/sys_shmctl and shm_vm_open/close/fault.
// The vm_shm_alloc page cache (ramfile_getpage) is replaced by a plain
// []pageSlot slice indexed by page number, since this module's frames
// already live in a single in-process arena (mem.Allocator) rather than
// behind a generic ramfile abstraction.
package shm

import (
	"sync"

	"github.com/susmicrosystems/Uwuntu-sub002/config"
	"github.com/susmicrosystems/Uwuntu-sub002/defs"
	"github.com/susmicrosystems/Uwuntu-sub002/ipcns"
	"github.com/susmicrosystems/Uwuntu-sub002/mem"
	"github.com/susmicrosystems/Uwuntu-sub002/vm"
)

// Segment is one shared memory segment.
type Segment struct {
	mu       sync.Mutex
	id       int32
	perm     defs.Perm
	size     uintptr
	pages    []pageSlot
	nattch   int
	removed  bool
	refcount int32
	frames   *mem.Allocator

	cpid, lpid defs.Pid_t
}

// pageSlot is lazily filled on first fault; present distinguishes "never
// faulted" from a legitimately-zero Pa_t (frame index 0 is a valid
// allocator index).
type pageSlot struct {
	frame   mem.Pa_t
	present bool
}

func (s *Segment) ID() int32        { return s.id }
func (s *Segment) Perm() *defs.Perm { return &s.perm }
func (s *Segment) Refs() *int32     { return &s.refcount }

// Stat is the shmid_ds equivalent returned by IPC_STAT (spec.md §4.5).
type Stat struct {
	Perm    defs.Perm
	Size    uintptr
	Nattch  int
	Cpid    defs.Pid_t
	Lpid    defs.Pid_t
	Removed bool
}

// Namespace owns every live shm segment in the system.
type Namespace struct {
	ns     *ipcns.Namespace
	frames *mem.Allocator
	limits config.ShmLimits
}

func NewNamespace(frames *mem.Allocator, limits config.ShmLimits) *Namespace {
	return &Namespace{
		ns:     ipcns.New(limits.MNI, 64),
		frames: frames,
		limits: limits,
	}
}

// Get implements shmget: resolve or create a segment for key, per the
// IPC_CREAT/IPC_EXCL decision table (spec.md §9).
func (n *Namespace) Get(key int32, size uintptr, flags int, cred defs.Cred_t, pid defs.Pid_t) (int32, defs.Err_t) {
	size = roundup(size, uintptr(mem.PGSIZE))
	creating := flags&IpcCreat != 0
	if key == ipcns.IPCPrivate {
		creating = true
	}
	if creating && (size == 0 || size < n.limits.Min || size > n.limits.Max) {
		return 0, defs.InvalidArgument
	}

	assign := func(id int32) ipcns.Object {
		return &Segment{
			id:     id,
			pages:  make([]pageSlot, size/uintptr(mem.PGSIZE)),
			size:   size,
			frames: n.frames,
			perm: defs.Perm{
				Key: key, Uid: cred.Euid, Gid: cred.Egid,
				Cuid: cred.Euid, Cgid: cred.Egid, Mode: uint32(flags) & 0777,
			},
			cpid:     pid,
			refcount: 1,
		}
	}

	obj, created, err := n.ns.GetOrCreate(key, flags&IpcCreat != 0, flags&IpcExcl != 0, assign)
	if err != 0 {
		return 0, err
	}
	seg := obj.(*Segment)
	if !created {
		seg.mu.Lock()
		ok := seg.perm.HasPerm(cred, defs.PermRead)
		seg.mu.Unlock()
		if !ok {
			return 0, defs.PermissionDenied
		}
	}
	return seg.ID(), 0
}

// lookup finds a registered segment by id. It leaves the segment's
// refcount unchanged; a removed segment is no longer registered and is
// not found.
func (n *Namespace) lookup(shmid int32) (*Segment, defs.Err_t) {
	obj, ok := n.ns.Lookup(shmid)
	if !ok {
		return nil, defs.InvalidArgument
	}
	return obj.(*Segment), 0
}

// Attach implements shmat: installs a KindShm zone spanning the
// segment's full size. spec.md §11 rejects a caller-supplied address
// (the original's shmaddr parameter is always nil here) since this
// module never exposes raw virtual addresses to callers ahead of time.
func (n *Namespace) Attach(as *vm.AddressSpace, shmid int32, prot vm.Prot, cred defs.Cred_t, pid defs.Pid_t) (uintptr, defs.Err_t) {
	seg, err := n.lookup(shmid)
	if err != 0 {
		return 0, err
	}
	want := defs.PermRead
	if prot.Has(vm.ProtWrite) {
		want |= defs.PermWrite
	}
	seg.mu.Lock()
	ok := seg.perm.HasPerm(cred, want)
	size := seg.size
	seg.mu.Unlock()
	if !ok {
		return 0, defs.PermissionDenied
	}

	addr, err := as.AttachShm(nil, shmid, size, prot, (*segFaulter)(seg))
	if err != 0 {
		return 0, err
	}
	seg.mu.Lock()
	seg.lpid = pid
	seg.mu.Unlock()
	return addr, 0
}

// Detach implements shmdt: addr must be exactly the base address a prior
// Attach returned.
func (n *Namespace) Detach(as *vm.AddressSpace, addr uintptr) defs.Err_t {
	return as.DetachShm(addr)
}

// Stat implements shmctl(IPC_STAT). Remove deregisters a segment's id at
// once, so Stat on a removed segment fails with InvalidArgument even while
// the segment is still attached.
func (n *Namespace) Stat(shmid int32, cred defs.Cred_t) (Stat, defs.Err_t) {
	seg, err := n.lookup(shmid)
	if err != 0 {
		return Stat{}, err
	}
	seg.mu.Lock()
	defer seg.mu.Unlock()
	if !seg.perm.HasPerm(cred, defs.PermRead) {
		return Stat{}, defs.PermissionDenied
	}
	return Stat{
		Perm: seg.perm, Size: seg.size, Nattch: seg.nattch,
		Cpid: seg.cpid, Lpid: seg.lpid, Removed: seg.removed,
	}, 0
}

// SetPerm implements shmctl(IPC_SET): only uid/gid/mode are mutable.
// original_source/kern/ipc.c has a copy-paste bug here — it ORs in
// buf.shm_perm.uid instead of buf.shm_perm.mode when rebuilding the low
// nine bits — corrected here (spec.md §10).
func (n *Namespace) SetPerm(shmid int32, cred defs.Cred_t, uid, gid int, mode uint32) defs.Err_t {
	seg, err := n.lookup(shmid)
	if err != 0 {
		return err
	}
	seg.mu.Lock()
	defer seg.mu.Unlock()
	if !seg.perm.IsOwner(cred) {
		return defs.NotOwner
	}
	seg.perm.Uid = uid
	seg.perm.Gid = gid
	seg.perm.Mode = (seg.perm.Mode &^ 0777) | (mode & 0777)
	return 0
}

// Remove implements shmctl(IPC_RMID): marks the segment removed and
// deregisters both its id and its key, so neither Get nor any id-based
// call finds it again; freeing its pages is deferred until the last
// attachment detaches (Close below).
func (n *Namespace) Remove(shmid int32, cred defs.Cred_t) defs.Err_t {
	seg, err := n.lookup(shmid)
	if err != 0 {
		return err
	}
	seg.mu.Lock()
	if !seg.perm.IsOwner(cred) {
		seg.mu.Unlock()
		return defs.NotOwner
	}
	seg.removed = true
	nattch := seg.nattch
	key := seg.perm.Key
	seg.mu.Unlock()

	n.ns.Remove(seg, key)
	if nattch == 0 {
		n.free(seg)
	}
	return 0
}

// ListIDs returns the ids of every segment cred may read, in insertion
// order — the introspection stream shmlist_read backs (spec.md §4.8).
func (n *Namespace) ListIDs(cred defs.Cred_t) []int32 {
	var ids []int32
	for _, obj := range n.ns.List() {
		if obj.Perm().HasPerm(cred, defs.PermRead) {
			ids = append(ids, obj.ID())
		}
	}
	return ids
}

func (n *Namespace) free(seg *Segment) {
	seg.mu.Lock()
	defer seg.mu.Unlock()
	seg.freeLocked()
}

func (seg *Segment) freeLocked() {
	for i, p := range seg.pages {
		if p.present {
			seg.frames.Refdown(p.frame)
			seg.pages[i] = pageSlot{}
		}
	}
}

// segFaulter adapts *Segment to vm.ShmFaulter without shm importing vm's
// internal zone types; the vm package only ever sees this narrow
// capability (spec.md §9's tagged-variant replacement for an ops vtable).
type segFaulter Segment

func (f *segFaulter) seg() *Segment { return (*Segment)(f) }

// Open implements shm_vm_open: bumps the attach count every time a zone
// referencing this segment is installed, including by fork (vm.Dup's
// openZone call).
func (f *segFaulter) Open(shmID int32) {
	s := f.seg()
	s.mu.Lock()
	s.nattch++
	s.mu.Unlock()
}

// Close implements shm_vm_close: drops the attach count and, if the
// segment has been removed and this was the last attachment, releases
// every page it still holds.
func (f *segFaulter) Close(shmID int32) {
	s := f.seg()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nattch--
	if s.removed && s.nattch == 0 {
		s.freeLocked()
	}
}

// Fault implements shm_vm_fault: the first touch of a page allocates and
// zero-fills it; later touches (including from another attaching
// AddressSpace) return the same frame, giving every attacher of the
// segment a consistent, shared view.
// Each populated page carries one steady reference owned by the segment
// itself (dropped only in freeLocked) plus one reference per attaching
// mapping (dropped by the MMU's Unmap when that attacher detaches), so
// refcount stays correct whether detach or removal happens first.
func (f *segFaulter) Fault(shmID int32, pageIndex int) (mem.Pa_t, defs.Err_t) {
	s := f.seg()
	s.mu.Lock()
	defer s.mu.Unlock()
	if pageIndex < 0 || pageIndex >= len(s.pages) {
		return 0, defs.Overflow
	}
	if s.pages[pageIndex].present {
		s.frames.Refup(s.pages[pageIndex].frame)
		return s.pages[pageIndex].frame, 0
	}
	p, ok := s.frames.RefpgNew()
	if !ok {
		return 0, defs.OutOfMemory
	}
	s.pages[pageIndex] = pageSlot{frame: p, present: true}
	s.frames.Refup(p)
	return p, 0
}

func roundup(v, b uintptr) uintptr {
	if v == 0 {
		return 0
	}
	return (v + b - 1) &^ (b - 1)
}

const (
	IpcCreat = 01000
	IpcExcl  = 02000
)
