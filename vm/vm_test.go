package vm

import (
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/susmicrosystems/Uwuntu-sub002/defs"
	"github.com/susmicrosystems/Uwuntu-sub002/mem"
)

func newTestSpace(t *testing.T, frames *mem.Allocator) *AddressSpace {
	t.Helper()
	log := logrus.NewEntry(logrus.New())
	base := uintptr(0x1000 * uintptr(mem.PGSIZE))
	size := uintptr(256 * mem.PGSIZE)
	mmu := NewSimMMU(frames)
	return New(base, size, frames, mmu, defs.Cred_t{}, log)
}

func TestAllocThenReadFaultAnonSucceeds(t *testing.T) {
	frames := mem.NewAllocator(64)
	as := newTestSpace(t, frames)

	z, err := as.Alloc(nil, 0, uintptr(mem.PGSIZE), ProtRead|ProtWrite, KindAnonymous, nil)
	if err != 0 {
		t.Fatalf("Alloc: %v", err)
	}
	if err := as.HandlePageFault(z.Addr, ProtRead); err != 0 {
		t.Fatalf("HandlePageFault: %v", err)
	}
}

func TestFaultOutsideUserRegionIsFatal(t *testing.T) {
	frames := mem.NewAllocator(16)
	as := newTestSpace(t, frames)
	if err := as.HandlePageFault(0, ProtRead); err != defs.Fault {
		t.Fatalf("expected Fault, got %v", err)
	}
}

func TestFreeSplitsMiddle(t *testing.T) {
	frames := mem.NewAllocator(16)
	as := newTestSpace(t, frames)

	z, err := as.Alloc(nil, 0, uintptr(3*mem.PGSIZE), ProtRead|ProtWrite, KindAnonymous, nil)
	if err != 0 {
		t.Fatalf("Alloc: %v", err)
	}
	mid := z.Addr + uintptr(mem.PGSIZE)
	if err := as.Free(mid, uintptr(mem.PGSIZE)); err != 0 {
		t.Fatalf("Free: %v", err)
	}
	zones := as.Zones()
	if len(zones) != 2 {
		t.Fatalf("expected 2 surviving zones after middle free, got %d", len(zones))
	}
	if zones[0].Addr != z.Addr || zones[0].Size != uintptr(mem.PGSIZE) {
		t.Fatalf("unexpected head zone: %+v", zones[0])
	}
	if zones[1].Addr != mid+uintptr(mem.PGSIZE) || zones[1].Size != uintptr(mem.PGSIZE) {
		t.Fatalf("unexpected tail zone: %+v", zones[1])
	}
}

func TestDupCopyOnWriteDivergesAfterChildWrite(t *testing.T) {
	frames := mem.NewAllocator(16)
	parent := newTestSpace(t, frames)

	z, err := parent.Alloc(nil, 0, uintptr(mem.PGSIZE), ProtRead|ProtWrite, KindAnonymous, nil)
	if err != 0 {
		t.Fatalf("Alloc: %v", err)
	}
	if err := parent.HandlePageFault(z.Addr, ProtWrite); err != 0 {
		t.Fatalf("fault parent: %v", err)
	}

	child, err := parent.Dup()
	if err != 0 {
		t.Fatalf("Dup: %v", err)
	}

	if err := child.HandlePageFault(z.Addr, ProtWrite); err != 0 {
		t.Fatalf("fault child: %v", err)
	}

	parentMMU := parent.mmu.(*SimMMU)
	childMMU := child.mmu.(*SimMMU)
	pFrame := parentMMU.spaces[parent][z.Addr].frame
	cFrame := childMMU.spaces[child][z.Addr].frame
	if pFrame == cFrame {
		t.Fatalf("expected parent and child to diverge onto separate frames after child write")
	}
}

func TestShmAttachDetachRoundtrips(t *testing.T) {
	frames := mem.NewAllocator(16)
	as := newTestSpace(t, frames)

	seg := &fakeShm{}
	addr, err := as.AttachShm(nil, 7, uintptr(mem.PGSIZE), ProtRead|ProtWrite, seg)
	if err != 0 {
		t.Fatalf("AttachShm: %v", err)
	}
	if seg.opens != 1 {
		t.Fatalf("expected one Open call, got %d", seg.opens)
	}
	if err := as.DetachShm(addr); err != 0 {
		t.Fatalf("DetachShm: %v", err)
	}
	if seg.closes != 1 {
		t.Fatalf("expected one Close call, got %d", seg.closes)
	}
	if err := as.DetachShm(addr); err != defs.InvalidArgument {
		t.Fatalf("expected InvalidArgument detaching twice, got %v", err)
	}
}

type fakeShm struct {
	opens, closes int
}

func (f *fakeShm) Open(int32)  { f.opens++ }
func (f *fakeShm) Close(int32) { f.closes++ }
func (f *fakeShm) Fault(shmID int32, pageIndex int) (mem.Pa_t, defs.Err_t) {
	return 0, defs.Fault
}
