package shm

import (
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/susmicrosystems/Uwuntu-sub002/config"
	"github.com/susmicrosystems/Uwuntu-sub002/defs"
	"github.com/susmicrosystems/Uwuntu-sub002/mem"
	"github.com/susmicrosystems/Uwuntu-sub002/vm"
)

func testSpace(frames *mem.Allocator) *vm.AddressSpace {
	log := logrus.NewEntry(logrus.New())
	mmu := vm.NewSimMMU(frames)
	return vm.New(uintptr(0x2000*mem.PGSIZE), uintptr(256*mem.PGSIZE), frames, mmu, defs.Cred_t{}, log)
}

func TestGetCreateAndAttachCountsBothAttachments(t *testing.T) {
	frames := mem.NewAllocator(64)
	limits := config.Default().Shm
	ns := NewNamespace(frames, limits)
	cred := defs.Cred_t{Euid: 1, Egid: 1}

	id, err := ns.Get(42, uintptr(mem.PGSIZE), IpcCreat|0600, cred, 100)
	if err != 0 {
		t.Fatalf("Get: %v", err)
	}

	as1 := testSpace(frames)
	as2 := testSpace(frames)

	addr1, err := ns.Attach(as1, id, vm.ProtRead|vm.ProtWrite, cred, 100)
	if err != 0 {
		t.Fatalf("Attach 1: %v", err)
	}
	addr2, err := ns.Attach(as2, id, vm.ProtRead|vm.ProtWrite, cred, 101)
	if err != 0 {
		t.Fatalf("Attach 2: %v", err)
	}

	if err := as1.HandlePageFault(addr1, vm.ProtWrite); err != 0 {
		t.Fatalf("fault 1: %v", err)
	}
	if err := as2.HandlePageFault(addr2, vm.ProtRead); err != 0 {
		t.Fatalf("fault 2: %v", err)
	}

	stat, err := ns.Stat(id, cred)
	if err != 0 {
		t.Fatalf("Stat: %v", err)
	}
	if stat.Nattch != 2 {
		t.Fatalf("expected nattch=2, got %d", stat.Nattch)
	}
}

func TestGetExclOnExistingKeyFails(t *testing.T) {
	frames := mem.NewAllocator(16)
	ns := NewNamespace(frames, config.Default().Shm)
	cred := defs.Cred_t{Euid: 1}

	if _, err := ns.Get(7, uintptr(mem.PGSIZE), IpcCreat|0600, cred, 1); err != 0 {
		t.Fatalf("Get: %v", err)
	}
	if _, err := ns.Get(7, uintptr(mem.PGSIZE), IpcCreat|IpcExcl|0600, cred, 1); err != defs.Exists {
		t.Fatalf("expected EEXIST, got %v", err)
	}
}

func TestRemoveDefersFreeUntilLastDetach(t *testing.T) {
	frames := mem.NewAllocator(16)
	ns := NewNamespace(frames, config.Default().Shm)
	cred := defs.Cred_t{Euid: 0}

	id, err := ns.Get(0, uintptr(mem.PGSIZE), IpcCreat|0600, cred, 1)
	if err != 0 {
		t.Fatalf("Get: %v", err)
	}
	as := testSpace(frames)
	addr, err := ns.Attach(as, id, vm.ProtRead|vm.ProtWrite, cred, 1)
	if err != 0 {
		t.Fatalf("Attach: %v", err)
	}
	if err := as.HandlePageFault(addr, vm.ProtWrite); err != 0 {
		t.Fatalf("fault: %v", err)
	}
	before := frames.Free()

	if err := ns.Remove(id, cred); err != 0 {
		t.Fatalf("Remove: %v", err)
	}
	if frames.Free() != before {
		t.Fatalf("expected page still held while attached")
	}
	if err := ns.Detach(as, addr); err != 0 {
		t.Fatalf("Detach: %v", err)
	}
	if frames.Free() != before+1 {
		t.Fatalf("expected page released after last detach of removed segment")
	}
}
